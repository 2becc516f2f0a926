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

package tools

import (
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/Comcast/tuplescript/interpreters/tuplescript"

	md "github.com/russross/blackfriday/v2"
)

// RenderBuiltinsHTML writes a table per category of builtins.  Docs
// are markdown.
func RenderBuiltinsHTML(docs []tuplescript.BuiltinDoc, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	category := ""
	for _, d := range docs {
		if d.Category != category {
			if category != "" {
				f(`</table></div>`)
			}
			category = d.Category
			f(`<div class="category"><h2 id="%s">%s</h2><table>`, category, category)
		}
		f(`<tr class="builtin"><td><span id="%s" class="builtinName">%s</span></td><td>`,
			html.EscapeString(d.Name), html.EscapeString(d.Name))
		f(`<div class="usage"><code>%s</code></div>`, html.EscapeString(d.Usage))
		if 0 < len(d.Aliases) {
			f(`<div class="aliases">aliases: <code>%s</code></div>`, html.EscapeString(strings.Join(d.Aliases, " ")))
		}
		if d.Doc != "" {
			f(`<div class="builtinDoc doc">%s</div>`, md.Run([]byte(d.Doc)))
		}
		f(`</td></tr>`)
	}
	if category != "" {
		f(`</table></div>`)
	}
	return nil
}

// RenderBuiltinsPage writes a complete HTML page.
func RenderBuiltinsPage(docs []tuplescript.BuiltinDoc, out io.Writer, cssFiles []string) error {
	fmt.Fprintf(out, `<!DOCTYPE html>
<html>
  <head>
  <meta charset="utf-8">
  <title>tuplescript builtins</title>
`)
	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}
	fmt.Fprintf(out, `  </head>
  <body>
    <h1>tuplescript builtins</h1>
`)

	if err := RenderBuiltinsHTML(docs, out); err != nil {
		return err
	}

	_, err := fmt.Fprintf(out, `
  </body>
</html>
`)
	return err
}
