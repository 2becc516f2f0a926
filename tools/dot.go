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

// dot -Tpng g.dot > g.png

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Comcast/tuplescript/core"
)

// Dot makes a Graphviz dot file for the given tuples.  Each owner is
// a cluster.  Meta tuples are notes with dashed edges to what they
// point at.
func Dot(ts []*core.Tuple, w io.Writer, opts *GraphOpts) error {
	if opts == nil {
		opts = &GraphOpts{ShowValues: true}
	}
	g := newMetaGraph(ts)

	fmt.Fprintf(w, "digraph G {\n")
	fmt.Fprintf(w, `  graph [rankdir=LR,nodesep=0.3,ranksep=0.6]
  node [shape="record" style="rounded,filled" fontsize="10"]
  edge [style="dashed"]
`)

	for _, owner := range g.owners {
		fmt.Fprintf(w, "  subgraph cluster_%s {\n", clusterName(owner))
		fmt.Fprintf(w, "    label=\"%d\"\n", owner)
		for _, n := range g.nodes[owner] {
			var (
				shape     = "record"
				style     = "filled"
				color     = "black"
				fillcolor = "#99ddc8"
				label     = escape(n.ref.Key)
			)
			switch {
			case n.missing:
				style += ",dashed"
				color = "red"
				fillcolor = "#f98b8b"
				label += `\n(missing)`
			case n.t.IsMeta:
				shape = "note"
				fillcolor = "#2d93ad"
				if n.t.Meta == nil {
					label += `\n(unbound)`
				}
			default:
				if v := opts.value(n.t); v != "" {
					label = "{" + escbraces(label) + "|" + escbraces(escape(v)) + "}"
				}
			}
			if opts.highlighted(n.ref) {
				style += ",bold"
				color = "red"
			}
			fmt.Fprintf(w, "    %s [shape=\"%s\", style=\"%s\", color=\"%s\", fillcolor=\"%s\", label=\"%s\"]\n",
				n.id, shape, style, color, fillcolor, label)
		}
		fmt.Fprintf(w, "  }\n")
	}

	for _, e := range g.edges {
		fmt.Fprintf(w, "  %s -> %s\n", e.from.id, e.to.id)
	}

	_, err := fmt.Fprintf(w, "}\n")
	return err
}

// PNG generates a PNG image based on output from Dot.
//
// This function with write two files: basename.dot and basename.png,
// where the basename is the given string.
func PNG(ts []*core.Tuple, basename string, opts *GraphOpts) (string, error) {
	dotname := basename + ".dot"
	pngname := basename + ".png"

	dotfile, err := os.Create(dotname)
	if err != nil {
		return pngname, err
	}
	if err := Dot(ts, dotfile, opts); err != nil {
		dotfile.Close()
		return pngname, err
	}
	if err := dotfile.Close(); err != nil {
		return pngname, err
	}
	if err := exec.Command("dot", "-Tpng", "-o", pngname, dotname).Run(); err != nil {
		return pngname, err
	}
	return pngname, nil
}

func clusterName(owner int) string {
	if owner < 0 {
		return "m" + strconv.Itoa(-owner)
	}
	return strconv.Itoa(owner)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func escape(s string) string {
	return strings.Replace(s, `"`, `\"`, -1)
}

func escbraces(s string) string {
	for _, c := range []string{"{", "}", "|", "<", ">"} {
		s = strings.Replace(s, c, `\`+c, -1)
	}
	return s
}
