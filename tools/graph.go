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
	"sort"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/tuples"
)

// GraphOpts controls Dot and Mermaid output.
type GraphOpts struct {
	// ShowValues puts literal values in node labels.
	ShowValues bool `json:"showValues"`

	// MaxValue truncates values in labels.  Zero means 32.
	MaxValue int `json:"maxValue,omitempty"`

	// Highlight marks these coordinates.
	Highlight []core.Ref `json:"highlight,omitempty"`
}

func (o *GraphOpts) highlighted(r core.Ref) bool {
	for _, h := range o.Highlight {
		if h == r {
			return true
		}
	}
	return false
}

func (o *GraphOpts) value(t *core.Tuple) string {
	if !o.ShowValues {
		return ""
	}
	s := t.Payload().Repr()
	limit := o.MaxValue
	if limit <= 0 {
		limit = 32
	}
	if limit < len(s) {
		s = s[0:limit] + "..."
	}
	return s
}

type gnode struct {
	id      string
	ref     core.Ref
	t       *core.Tuple
	missing bool
}

type gedge struct {
	from, to *gnode
}

// metaGraph is the tuples as nodes and meta links as edges.  A meta
// tuple that points at a coordinate with no tuple gets a "missing"
// node for the target.
type metaGraph struct {
	owners []int
	nodes  map[int][]*gnode
	edges  []gedge
}

func newMetaGraph(ts []*core.Tuple) *metaGraph {
	ts = append([]*core.Tuple(nil), ts...)
	tuples.SortTuples(ts)

	g := &metaGraph{
		nodes: make(map[int][]*gnode, 8),
	}
	byRef := make(map[core.Ref]*gnode, len(ts))
	n := 0
	add := func(r core.Ref, t *core.Tuple) *gnode {
		n++
		x := &gnode{
			id:      "t" + itoa(n),
			ref:     r,
			t:       t,
			missing: t == nil,
		}
		if _, have := g.nodes[r.Owner]; !have {
			g.owners = append(g.owners, r.Owner)
		}
		g.nodes[r.Owner] = append(g.nodes[r.Owner], x)
		byRef[r] = x
		return x
	}

	for _, t := range ts {
		add(t.Ref(), t)
	}
	for _, t := range ts {
		if !t.IsMeta || t.Meta == nil {
			continue
		}
		to, have := byRef[*t.Meta]
		if !have {
			to = add(*t.Meta, nil)
		}
		g.edges = append(g.edges, gedge{from: byRef[t.Ref()], to: to})
	}
	sort.Ints(g.owners)
	return g
}

// MetaReport summarizes the meta links among some tuples.
type MetaReport struct {
	Literals int `json:"literals"`
	Metas    int `json:"metas"`

	// Unbound are declared meta tuples that don't point anywhere.
	Unbound []core.Ref `json:"unbound,omitempty"`

	// Dangling are meta tuples whose chain ends at a missing
	// tuple.
	Dangling []core.Ref `json:"dangling,omitempty"`

	// Cyclic are meta tuples whose chain never ends.
	Cyclic []core.Ref `json:"cyclic,omitempty"`
}

// AnalyzeMeta follows every meta chain.
func AnalyzeMeta(ts []*core.Tuple) *MetaReport {
	byRef := make(map[core.Ref]*core.Tuple, len(ts))
	for _, t := range ts {
		byRef[t.Ref()] = t
	}

	r := &MetaReport{}
	sorted := append([]*core.Tuple(nil), ts...)
	tuples.SortTuples(sorted)
	for _, t := range sorted {
		if !t.IsMeta {
			r.Literals++
			continue
		}
		r.Metas++
		if t.Meta == nil {
			r.Unbound = append(r.Unbound, t.Ref())
			continue
		}
		seen := map[core.Ref]bool{t.Ref(): true}
		at := *t.Meta
		for {
			if seen[at] {
				r.Cyclic = append(r.Cyclic, t.Ref())
				break
			}
			seen[at] = true
			next, have := byRef[at]
			if !have {
				r.Dangling = append(r.Dangling, t.Ref())
				break
			}
			if !next.IsMeta {
				break
			}
			if next.Meta == nil {
				r.Unbound = append(r.Unbound, t.Ref())
				break
			}
			at = *next.Meta
		}
	}
	return r
}
