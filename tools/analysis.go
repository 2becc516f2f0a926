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

	"github.com/Comcast/tuplescript/interpreters/tuplescript"
)

// ScriptAnalysis is what a tuplescript program mentions without
// running it.
type ScriptAnalysis struct {
	Name string `json:"name"`

	Reads         []string `json:"reads,omitempty"`
	Writes        []string `json:"writes,omitempty"`
	Deletes       []string `json:"deletes,omitempty"`
	Metas         []string `json:"metas,omitempty"`
	MetaTargets   []string `json:"metaTargets,omitempty"`
	Views         []string `json:"views,omitempty"`
	Subscriptions []string `json:"subscriptions,omitempty"`
	Functions     []string `json:"functions,omitempty"`

	// Dynamic counts addresses whose owner or key is computed.
	Dynamic int `json:"dynamic"`
}

// Analyze sorts the program's tuple addresses by what the program
// does with them.
func Analyze(p *tuplescript.Program) *ScriptAnalysis {
	a := &ScriptAnalysis{
		Name:      p.Name(),
		Functions: append([]string(nil), p.Functions...),
	}

	sets := map[string]map[string]bool{}
	add := func(kind, addr string) {
		m, have := sets[kind]
		if !have {
			m = make(map[string]bool)
			sets[kind] = m
		}
		m[addr] = true
	}

	for _, r := range p.Refs {
		addr := r.Owner + ":" + r.Key
		if r.Owner == "?" || r.Key == "?" {
			a.Dynamic++
		}
		switch r.Op {
		case "get", "$", "%":
			add("reads", addr)
		case "set", "append":
			add("writes", addr)
		case "delete":
			add("deletes", addr)
		case "set_meta", "declare_meta":
			add("metas", addr)
		case tuplescript.RefTarget:
			add("targets", addr)
		case "@":
			add("views", addr)
		case "subscribe":
			add("subscriptions", addr)
		}
	}

	a.Reads = keysToStringSlice(sets["reads"])
	a.Writes = keysToStringSlice(sets["writes"])
	a.Deletes = keysToStringSlice(sets["deletes"])
	a.Metas = keysToStringSlice(sets["metas"])
	a.MetaTargets = keysToStringSlice(sets["targets"])
	a.Views = keysToStringSlice(sets["views"])
	a.Subscriptions = keysToStringSlice(sets["subscriptions"])
	sort.Strings(a.Functions)

	return a
}

// keysToStringSlice returns the map's keys in order.
func keysToStringSlice(m map[string]bool) []string {
	var list []string
	for key := range m {
		list = append(list, key)
	}
	sort.Strings(list)
	return list
}
