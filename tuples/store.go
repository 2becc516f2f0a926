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

// Package tuples implements the tuple store: the authoritative
// (owner, key) repository with meta tuples.
//
// Tuples live in shards selected by a hash of their coordinate.
// Each shard has its own lock, so readers of different coordinates
// don't contend.  Every write passes through one serialization point
// that assigns the write's sequence number and then tells listeners
// about it.  Consequently all listeners see writes in the same order,
// which is the order in which the store accepted them.
//
// Last write wins.  A write with an explicit timestamp (Put) that's
// older than the current tuple's timestamp is ignored.  Writes with
// equal timestamps are ordered by their sequence numbers, so the
// later arrival wins.
package tuples

import (
	"sort"
	"sync"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

const (
	// DefaultMaxMetaDepth bounds meta tuple resolution.
	DefaultMaxMetaDepth = 32

	// DefaultShards is the default number of shards.
	DefaultShards = 16
)

// Listener hears about every change the store accepts.
//
// Changed is called while the store's serialization point is held, so
// it must not call back into the store's write methods.
type Listener interface {
	Changed(ev core.Event)
}

// ListenerFunc adapts a function to a Listener.
type ListenerFunc func(ev core.Event)

func (f ListenerFunc) Changed(ev core.Event) {
	f(ev)
}

// Options configures a Store.
type Options struct {
	Shards       int
	MaxMetaDepth int

	// Now is the store's clock.  Defaults to time.Now.
	Now func() time.Time

	Logger *zap.Logger
}

type shard struct {
	sync.RWMutex
	tuples map[core.Ref]*core.Tuple
}

// Store is a tuple store.  It implements core.Space.
type Store struct {
	shards   []*shard
	maxDepth int
	now      func() time.Time
	logger   *zap.Logger

	// pub is the serialization point for writes.
	pub       sync.Mutex
	seq       uint64
	listeners []Listener
}

// NewStore makes a Store.  opts can be nil.
func NewStore(opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	n := opts.Shards
	if n <= 0 {
		n = DefaultShards
	}
	s := &Store{
		shards:   make([]*shard, n),
		maxDepth: opts.MaxMetaDepth,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			tuples: make(map[core.Ref]*core.Tuple, 64),
		}
	}
	if s.maxDepth <= 0 {
		s.maxDepth = DefaultMaxMetaDepth
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// AddListener registers a listener for all future changes.
func (s *Store) AddListener(l Listener) {
	s.pub.Lock()
	s.listeners = append(s.listeners, l)
	s.pub.Unlock()
}

func (s *Store) shard(ref core.Ref) *shard {
	h := xxhash.Sum64String(ref.String())
	return s.shards[h%uint64(len(s.shards))]
}

// ref validates and canonicalizes a coordinate of a stored tuple.
func ref(owner int, key string) (core.Ref, error) {
	if owner < 0 {
		return core.Ref{}, core.Errorf(core.InvalidKey, "owner %d can't own a tuple", owner)
	}
	k, err := match.CanonicalKey(key)
	if err != nil {
		return core.Ref{}, core.Errorf(core.InvalidKey, "%d:%s: %s", owner, key, err)
	}
	return core.Ref{Owner: owner, Key: k}, nil
}

// mutation computes a new tuple from the current one (which may be
// nil).  A nil result without an error means "no change".
type mutation func(old *core.Tuple) (*core.Tuple, core.EventKind, error)

// write applies the mutation at the serialization point and notifies
// listeners.  The timestamp of the new tuple is ts if not zero and the
// store's clock otherwise.
func (s *Store) write(r core.Ref, ts time.Time, f mutation) (*core.Tuple, error) {
	sh := s.shard(r)

	s.pub.Lock()
	defer s.pub.Unlock()

	sh.Lock()
	old := sh.tuples[r]
	t, kind, err := f(old)
	if err != nil || t == nil {
		sh.Unlock()
		if old != nil && err == nil {
			return old.Copy(), nil
		}
		return nil, err
	}

	if ts.IsZero() {
		ts = s.now()
		if old != nil && ts.Before(old.Timestamp) {
			// Keep timestamps non-decreasing per key even if
			// the clock steps backwards.
			ts = old.Timestamp
		}
	} else if old != nil && ts.Before(old.Timestamp) {
		sh.Unlock()
		s.logger.Debug("stale write ignored",
			zap.Stringer("ref", r),
			zap.Time("ts", ts),
			zap.Time("current", old.Timestamp))
		return old.Copy(), nil
	}

	s.seq++
	t.Owner, t.Key = r.Owner, r.Key
	t.Timestamp = ts
	t.Seq = s.seq
	sh.tuples[r] = t
	sh.Unlock()

	s.logger.Debug("write",
		zap.Stringer("kind", kind),
		zap.Stringer("tuple", t),
		zap.Uint64("seq", t.Seq))

	s.notify(core.Event{
		Kind:  kind,
		Tuple: t.Copy(),
		Seq:   t.Seq,
	})

	return t.Copy(), nil
}

// notify must be called with s.pub held.
func (s *Store) notify(ev core.Event) {
	for _, l := range s.listeners {
		l.Changed(ev)
	}
}

// Set upserts a literal value.
func (s *Store) Set(owner int, key string, v core.Value) (*core.Tuple, error) {
	return s.SetAt(owner, key, v, time.Time{})
}

// SetAt is Set with an explicit timestamp.  A zero timestamp means
// now.  A write older than the current tuple is ignored, and the
// current tuple is returned.
func (s *Store) SetAt(owner int, key string, v core.Value, ts time.Time) (*core.Tuple, error) {
	r, err := ref(owner, key)
	if err != nil {
		return nil, err
	}
	if v == nil {
		v = core.NilValue
	}
	return s.write(r, ts, func(old *core.Tuple) (*core.Tuple, core.EventKind, error) {
		return &core.Tuple{
			Value:    v,
			Mimetype: core.Mimetype(v),
		}, core.EventSet, nil
	})
}

// SetMeta makes (owner, key) refer to the target coordinate.
func (s *Store) SetMeta(owner int, key string, target core.Ref) (*core.Tuple, error) {
	r, err := ref(owner, key)
	if err != nil {
		return nil, err
	}
	to, err := ref(target.Owner, target.Key)
	if err != nil {
		return nil, err
	}
	return s.write(r, time.Time{}, func(old *core.Tuple) (*core.Tuple, core.EventKind, error) {
		return &core.Tuple{
			IsMeta: true,
			Meta:   &to,
		}, core.EventMeta, nil
	})
}

// DeclareMeta makes (owner, key) an unbound meta tuple unless it's
// already a meta tuple.
func (s *Store) DeclareMeta(owner int, key string) (*core.Tuple, error) {
	r, err := ref(owner, key)
	if err != nil {
		return nil, err
	}
	return s.write(r, time.Time{}, func(old *core.Tuple) (*core.Tuple, core.EventKind, error) {
		if old != nil && old.IsMeta {
			return nil, core.EventMeta, nil
		}
		return &core.Tuple{
			IsMeta: true,
		}, core.EventMeta, nil
	})
}

// Append extends an existing literal tuple.  A string gets the text
// of the value appended.  A list gets the value as a new element.
func (s *Store) Append(owner int, key string, v core.Value) (*core.Tuple, error) {
	r, err := ref(owner, key)
	if err != nil {
		return nil, err
	}
	return s.write(r, time.Time{}, func(old *core.Tuple) (*core.Tuple, core.EventKind, error) {
		if old == nil {
			return nil, core.EventSet, core.Errorf(core.TupleNotFound, "%s", r)
		}
		if old.IsMeta {
			return nil, core.EventSet, core.Errorf(core.TypeMismatch, "can't append to meta tuple %s", r)
		}
		var acc core.Value
		switch x := old.Value.(type) {
		case core.String:
			acc = x + core.String(v.String())
		case core.List:
			l := make(core.List, len(x), len(x)+1)
			copy(l, x)
			acc = append(l, v)
		default:
			return nil, core.EventSet, core.Errorf(core.TypeMismatch, "can't append to a %s", old.Value.Kind())
		}
		return &core.Tuple{
			Value:    acc,
			Mimetype: old.Mimetype,
		}, core.EventSet, nil
	})
}

// Delete removes a tuple.  Deleting a missing tuple does nothing and
// returns false.
func (s *Store) Delete(owner int, key string) (bool, error) {
	r, err := ref(owner, key)
	if err != nil {
		return false, err
	}
	sh := s.shard(r)

	s.pub.Lock()
	defer s.pub.Unlock()

	sh.Lock()
	old, have := sh.tuples[r]
	if !have {
		sh.Unlock()
		return false, nil
	}
	delete(sh.tuples, r)
	s.seq++
	gone := old.Copy()
	gone.Seq = s.seq
	if now := s.now(); now.After(gone.Timestamp) {
		gone.Timestamp = now
	}
	sh.Unlock()

	s.logger.Debug("delete", zap.Stringer("ref", r), zap.Uint64("seq", gone.Seq))

	s.notify(core.Event{
		Kind:  core.EventDelete,
		Tuple: gone,
		Seq:   gone.Seq,
	})
	return true, nil
}

// Lookup returns a copy of the tuple at the coordinate without
// resolving meta tuples.
func (s *Store) Lookup(owner int, key string) (*core.Tuple, bool) {
	r, err := ref(owner, key)
	if err != nil {
		return nil, false
	}
	return s.lookup(r)
}

func (s *Store) lookup(r core.Ref) (*core.Tuple, bool) {
	sh := s.shard(r)
	sh.RLock()
	t, have := sh.tuples[r]
	if have {
		t = t.Copy()
	}
	sh.RUnlock()
	return t, have
}

// Get resolves (owner, key) through any meta tuples and returns the
// terminal literal tuple.
//
// The walk is bounded by the maximum meta depth and remembers every
// coordinate it visits.  Each hop is read atomically, but the chain
// as a whole isn't a snapshot.
func (s *Store) Get(owner int, key string) (*core.Tuple, error) {
	r, err := ref(owner, key)
	if err != nil {
		return nil, err
	}
	return s.Resolve(r)
}

// Resolve is Get for a Ref.
func (s *Store) Resolve(r core.Ref) (*core.Tuple, error) {
	start := r
	visited := make(map[core.Ref]bool, 4)
	for depth := 0; ; depth++ {
		if visited[r] {
			return nil, core.Errorf(core.CyclicMetaLink, "%s revisits %s", start, r)
		}
		if s.maxDepth <= depth {
			return nil, core.Errorf(core.CyclicMetaLink, "%s: chain longer than %d", start, s.maxDepth)
		}
		visited[r] = true

		t, have := s.lookup(r)
		if !have {
			if depth == 0 {
				return nil, core.Errorf(core.TupleNotFound, "%s", r)
			}
			return nil, core.Errorf(core.TupleNotFound, "%s (via %s)", r, start)
		}
		if !t.IsMeta {
			return t, nil
		}
		if t.Meta == nil {
			return nil, core.Errorf(core.TupleNotFound, "%s is an unbound meta tuple", r)
		}
		r = *t.Meta
	}
}

// Snapshot captures all tuples that match the pattern, ordered by
// owner and then by key.
//
// Writers wait while the snapshot is taken, so the view is the state
// of the store after some particular write.
func (s *Store) Snapshot(p match.Pattern) *core.View {
	s.pub.Lock()
	defer s.pub.Unlock()

	taken := s.now()

	if p.IsLiteral() {
		r := core.Ref{Owner: p.Owner, Key: p.Key()}
		if t, have := s.lookup(r); have {
			return core.NewView(p, taken, []*core.Tuple{t})
		}
		return core.NewView(p, taken, nil)
	}

	acc := make([]*core.Tuple, 0, 16)
	for _, sh := range s.shards {
		sh.RLock()
		for r, t := range sh.tuples {
			if p.Matches(r.Owner, r.Key) {
				acc = append(acc, t.Copy())
			}
		}
		sh.RUnlock()
	}
	SortTuples(acc)

	return core.NewView(p, taken, acc)
}

// All returns copies of every tuple in (owner, key) order.
func (s *Store) All() []*core.Tuple {
	s.pub.Lock()
	defer s.pub.Unlock()

	acc := make([]*core.Tuple, 0, 64)
	for _, sh := range s.shards {
		sh.RLock()
		for _, t := range sh.tuples {
			acc = append(acc, t.Copy())
		}
		sh.RUnlock()
	}
	SortTuples(acc)
	return acc
}

// Restore loads tuples (from storage, say) without notifying
// listeners.  The store's sequence number advances past the largest
// restored one.
func (s *Store) Restore(ts []*core.Tuple) error {
	s.pub.Lock()
	defer s.pub.Unlock()

	for _, t := range ts {
		r, err := ref(t.Owner, t.Key)
		if err != nil {
			return err
		}
		t = t.Copy()
		t.Owner, t.Key = r.Owner, r.Key
		if !t.IsMeta && t.Value == nil {
			t.Value = core.NilValue
		}
		sh := s.shard(r)
		sh.Lock()
		sh.tuples[r] = t
		sh.Unlock()
		if s.seq < t.Seq {
			s.seq = t.Seq
		}
	}
	s.logger.Info("restored", zap.Int("tuples", len(ts)), zap.Uint64("seq", s.seq))
	return nil
}

// Seq returns the sequence number of the last accepted write.
func (s *Store) Seq() uint64 {
	s.pub.Lock()
	defer s.pub.Unlock()
	return s.seq
}

// SortTuples orders tuples by owner and then by key.
func SortTuples(ts []*core.Tuple) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].Owner != ts[j].Owner {
			return ts[i].Owner < ts[j].Owner
		}
		return ts[i].Key < ts[j].Key
	})
}
