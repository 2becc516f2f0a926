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
	"io"
	"strings"

	"github.com/Comcast/tuplescript/core"
)

// MetaFill is the Mermaid fill color for meta tuples.
var MetaFill = "#bcf2db"

// Mermaid makes a Mermaid (https://mermaidjs.github.io/) input file
// for the given tuples.
func Mermaid(ts []*core.Tuple, w io.Writer, opts *GraphOpts) error {
	if opts == nil {
		opts = &GraphOpts{ShowValues: true}
	}
	g := newMetaGraph(ts)

	fmt.Fprintf(w, "graph LR\n")

	for _, owner := range g.owners {
		fmt.Fprintf(w, "  subgraph o%s[\"%d\"]\n", clusterName(owner), owner)
		for _, n := range g.nodes[owner] {
			label := quote(n.ref.Key)
			switch {
			case n.missing:
				fmt.Fprintf(w, "    %s{{\"%s (missing)\"}}\n", n.id, label)
				fmt.Fprintf(w, "    style %s stroke:#f00\n", n.id)
			case n.t.IsMeta:
				if n.t.Meta == nil {
					label += " (unbound)"
				}
				fmt.Fprintf(w, "    %s([\"%s\"])\n", n.id, label)
				fmt.Fprintf(w, "    style %s fill:%s\n", n.id, MetaFill)
			default:
				if v := opts.value(n.t); v != "" {
					label += " = " + quote(v)
				}
				fmt.Fprintf(w, "    %s[\"%s\"]\n", n.id, label)
			}
			if opts.highlighted(n.ref) {
				fmt.Fprintf(w, "    style %s stroke-width:3px\n", n.id)
			}
		}
		fmt.Fprintf(w, "  end\n")
	}

	for _, e := range g.edges {
		fmt.Fprintf(w, "  %s -.-> %s\n", e.from.id, e.to.id)
	}

	_, err := fmt.Fprintf(w, "\n")
	return err
}

func quote(s string) string {
	return strings.Replace(s, `"`, `'`, -1)
}
