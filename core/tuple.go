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
	"strconv"
	"time"

	"github.com/Comcast/tuplescript/match"
)

// AnyOwner is the owner wildcard.
const AnyOwner = match.AnyOwner

// Ref is the coordinate of a tuple.
type Ref struct {
	Owner int    `json:"owner"`
	Key   string `json:"key"`
}

func (r Ref) String() string {
	return strconv.Itoa(r.Owner) + ":" + r.Key
}

// Tuple is an entry in the store.
//
// A tuple either holds a literal Value or is a meta tuple that
// refers to another tuple.  A meta tuple with a nil Meta has been
// declared but not yet pointed anywhere.
type Tuple struct {
	Owner    int    `json:"owner"`
	Key      string `json:"key"`
	Value    Value  `json:"-"`
	IsMeta   bool   `json:"meta,omitempty"`
	Meta     *Ref   `json:"ref,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`

	// Timestamp is when the store accepted the write.
	Timestamp time.Time `json:"ts"`

	// Seq is the store's acceptance sequence number for the
	// write.  It's the tie-break for writes with equal
	// timestamps.
	Seq uint64 `json:"seq"`
}

func (t *Tuple) Ref() Ref {
	return Ref{Owner: t.Owner, Key: t.Key}
}

// Payload returns the literal value or, for a meta tuple, the target
// coordinates as a list (owner key).
func (t *Tuple) Payload() Value {
	if t.IsMeta {
		if t.Meta == nil {
			return NilValue
		}
		return List{Int(t.Meta.Owner), String(t.Meta.Key)}
	}
	if t.Value == nil {
		return NilValue
	}
	return t.Value
}

// Copy returns a shallow copy.  Values are immutable, so that's
// enough.
func (t *Tuple) Copy() *Tuple {
	acc := *t
	if t.Meta != nil {
		ref := *t.Meta
		acc.Meta = &ref
	}
	return &acc
}

func (t *Tuple) String() string {
	s := strconv.Itoa(t.Owner) + ":" + t.Key
	if t.IsMeta {
		if t.Meta == nil {
			return s + " -> ?"
		}
		return s + " -> " + t.Meta.String()
	}
	return s + "=" + t.Payload().Repr()
}

// View is an ordered, immutable set of tuples captured at a point in
// time.
type View struct {
	Pattern match.Pattern
	Taken   time.Time

	tuples []*Tuple
}

// NewView makes a view that owns the given tuples, which should
// already be copies.
func NewView(p match.Pattern, taken time.Time, ts []*Tuple) *View {
	return &View{
		Pattern: p,
		Taken:   taken,
		tuples:  ts,
	}
}

func (v *View) Len() int {
	return len(v.tuples)
}

// Tuple returns a copy of the i-th tuple.
func (v *View) Tuple(i int) *Tuple {
	return v.tuples[i].Copy()
}

// Tuples returns copies of all of the view's tuples.
func (v *View) Tuples() []*Tuple {
	acc := make([]*Tuple, len(v.tuples))
	for i, t := range v.tuples {
		acc[i] = t.Copy()
	}
	return acc
}

func (*View) Kind() Kind { return KindView }
func (*View) value() {}

func (v *View) String() string {
	return "@" + v.Pattern.String() + "[" + strconv.Itoa(len(v.tuples)) + "]"
}

func (v *View) Repr() string { return v.String() }

// EventKind says what kind of change an Event reports.
type EventKind int

const (
	EventSet EventKind = iota
	EventMeta
	EventDelete

	// EventOverflow is the in-band marker a subscription queue
	// inserts when it had to evict events.
	EventOverflow
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventMeta:
		return "meta"
	case EventDelete:
		return "delete"
	case EventOverflow:
		return "overflow"
	}
	return "event(" + strconv.Itoa(int(k)) + ")"
}

// Event is a change accepted by the store (or an overflow marker).
type Event struct {
	Kind EventKind `json:"kind"`

	// Tuple is a copy of the tuple after the change.  For a
	// delete, it's the tuple as it was before removal but with
	// the delete's timestamp and seq.
	Tuple *Tuple `json:"tuple,omitempty"`

	Seq uint64 `json:"seq"`

	// Dropped counts evicted events for an EventOverflow.
	Dropped int `json:"dropped,omitempty"`
}

// Err returns a SubscriptionOverflow error for an overflow marker and
// nil otherwise.
func (e Event) Err() error {
	if e.Kind != EventOverflow {
		return nil
	}
	return Errorf(SubscriptionOverflow, "%d events dropped", e.Dropped)
}
