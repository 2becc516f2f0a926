/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package sio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
)

var shell = regexp.MustCompile(`<<(.*?)>>`)

// ShellExpand replaces each '<<COMMAND>>' in the line with the
// output of running COMMAND with bash.  A trailing newline of the
// output is dropped so a request stays on one line.
func ShellExpand(ctx context.Context, line string) (string, error) {
	literals := shell.Split(line, -1)
	ss := shell.FindAllStringSubmatch(line, -1)
	acc := literals[0]
	for i, s := range ss {
		sh := s[1]
		cmd := exec.CommandContext(ctx, "bash", "-c", sh)
		var out bytes.Buffer
		cmd.Stdout = &out
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("shell %q: %w", sh, err)
		}
		acc += string(bytes.TrimSuffix(out.Bytes(), []byte("\n")))
		acc += literals[i+1]
	}
	return acc, nil
}
