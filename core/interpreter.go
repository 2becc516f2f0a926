/* Copyright 2018 Comcast Cable Communications Management, LLC
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

package core

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/Comcast/tuplescript/match"

	"go.uber.org/zap"
)

// Space is the tuple store as seen by scripts and couplings.
type Space interface {
	Set(owner int, key string, v Value) (*Tuple, error)
	SetMeta(owner int, key string, target Ref) (*Tuple, error)
	DeclareMeta(owner int, key string) (*Tuple, error)
	Append(owner int, key string, v Value) (*Tuple, error)

	// Get resolves meta tuples and returns the terminal literal
	// tuple.
	Get(owner int, key string) (*Tuple, error)

	// Resolve is Get starting from a ref.
	Resolve(r Ref) (*Tuple, error)

	Snapshot(p match.Pattern) *View
	Delete(owner int, key string) (bool, error)
}

// SubID identifies a subscription.
type SubID uint64

// Host is what a running task offers to its interpreter.
//
// Sleep and Await are the only suspension points.
type Host interface {
	Space() Space
	Kernel() Kernel

	// Output is where "echo" writes.
	Output() io.Writer

	Logger() *zap.Logger

	Sleep(ctx context.Context, d time.Duration) error

	Subscribe(p match.Pattern) (SubID, error)
	Poll(id SubID) (Event, bool, error)

	// Await returns Timeout if no event arrives before the
	// timeout.  A non-positive timeout waits until the context is
	// done.
	Await(ctx context.Context, id SubID, timeout time.Duration) (Event, error)
	Unsubscribe(id SubID) error
}

// Program is a compiled script.
type Program interface {
	Name() string
}

// Interpreter can compile and execute scripts.
type Interpreter interface {
	// Compile parses the source.  Syntax problems are reported
	// as ParseErrors.
	Compile(ctx context.Context, name string, src []byte) (Program, error)

	// Exec runs the program to completion.  A script that
	// executes "exit" results in Exit.
	Exec(ctx context.Context, host Host, p Program) error
}

// InterpretersMap maps a file extension (without the dot) or a name
// to an Interpreter.
type InterpretersMap map[string]Interpreter

func NewInterpretersMap() InterpretersMap {
	return make(InterpretersMap, 8)
}

// Find returns the interpreter for the given filename based on its
// extension.
func (m InterpretersMap) Find(filename string) (Interpreter, error) {
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	i, have := m[ext]
	if !have {
		return nil, InterpreterNotFound
	}
	return i, nil
}
