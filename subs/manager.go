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

// Package subs is the subscription manager.
//
// A Manager listens to a tuple store.  Every accepted change whose
// coordinate matches a live subscription's pattern is queued for that
// subscription.  Delivery is at most once: an event leaves the queue
// when it's taken, and evicted events are only counted.
package subs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"
	"github.com/Comcast/tuplescript/metrics"

	"go.uber.org/zap"
)

var (
	// ErrTimeout is returned by Await when no event arrived in
	// time.
	ErrTimeout = core.Timeout

	// ErrUnsubscribed is returned for a subscription that no
	// longer exists (including one removed while an Await was
	// pending).
	ErrUnsubscribed = core.Unsubscribed
)

// Subscription is a live pattern with its queue.
type Subscription struct {
	ID      core.SubID
	Holder  string
	Pattern match.Pattern

	sync.Mutex
	q *queue

	// ready has capacity one.  It's signaled when an event is
	// queued.
	ready chan struct{}

	// done is closed on unsubscribe.
	done chan struct{}
}

// Options configures a Manager.
type Options struct {
	// Capacity is the capacity of each subscription queue.
	Capacity int

	Logger *zap.Logger
}

// Manager is the set of live subscriptions.  It implements
// tuples.Listener.
type Manager struct {
	sync.RWMutex

	capacity int
	logger   *zap.Logger
	subs     map[core.SubID]*Subscription
	next     core.SubID
}

func NewManager(opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	m := &Manager{
		capacity: opts.Capacity,
		logger:   opts.Logger,
		subs:     make(map[core.SubID]*Subscription, 32),
	}
	if m.capacity <= 0 {
		m.capacity = DefaultCapacity
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

// Subscribe starts a subscription for the holder.  Only changes
// accepted after Subscribe returns are delivered.
func (m *Manager) Subscribe(holder string, p match.Pattern) *Subscription {
	m.Lock()
	m.next++
	s := &Subscription{
		ID:      m.next,
		Holder:  holder,
		Pattern: p,
		q:       newQueue(m.capacity),
		ready:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	m.subs[s.ID] = s
	m.Unlock()

	metrics.SubscriptionAdded()
	m.logger.Debug("subscribe",
		zap.Uint64("sub", uint64(s.ID)),
		zap.String("holder", holder),
		zap.Stringer("pattern", p))

	return s
}

// Changed queues the event for every matching subscription.
func (m *Manager) Changed(ev core.Event) {
	if ev.Tuple == nil {
		return
	}
	owner, key := ev.Tuple.Owner, ev.Tuple.Key

	m.RLock()
	defer m.RUnlock()

	for _, s := range m.subs {
		if !s.Pattern.Matches(owner, key) {
			continue
		}
		s.Lock()
		evicted, first := s.q.add(ev)
		s.Unlock()

		metrics.EventQueued()
		if evicted {
			metrics.EventDropped(first)
			if first {
				m.logger.Warn("subscription overflow",
					zap.Uint64("sub", uint64(s.ID)),
					zap.String("holder", s.Holder),
					zap.Stringer("pattern", s.Pattern))
			}
		}

		select {
		case s.ready <- struct{}{}:
		default:
		}
	}
}

func (m *Manager) get(id core.SubID) (*Subscription, error) {
	m.RLock()
	s, have := m.subs[id]
	m.RUnlock()
	if !have {
		return nil, ErrUnsubscribed
	}
	return s, nil
}

// Poll takes the next event without blocking.
func (m *Manager) Poll(id core.SubID) (core.Event, bool, error) {
	s, err := m.get(id)
	if err != nil {
		return core.Event{}, false, err
	}
	s.Lock()
	ev, ok := s.q.take()
	s.Unlock()
	return ev, ok, nil
}

// Await takes the next event, waiting if necessary.  A non-positive
// timeout waits until the context is done.
func (m *Manager) Await(ctx context.Context, id core.SubID, timeout time.Duration) (core.Event, error) {
	s, err := m.get(id)
	if err != nil {
		return core.Event{}, err
	}

	var expired <-chan time.Time
	if 0 < timeout {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		s.Lock()
		ev, ok := s.q.take()
		s.Unlock()
		if ok {
			return ev, nil
		}

		select {
		case <-ctx.Done():
			return core.Event{}, ctx.Err()
		case <-s.done:
			return core.Event{}, ErrUnsubscribed
		case <-expired:
			return core.Event{}, ErrTimeout
		case <-s.ready:
		}
	}
}

// Unsubscribe removes the subscription.  Removing one that's already
// gone isn't an error.
func (m *Manager) Unsubscribe(id core.SubID) error {
	m.Lock()
	s, have := m.subs[id]
	if have {
		delete(m.subs, id)
	}
	m.Unlock()

	if have {
		close(s.done)
		metrics.SubscriptionRemoved()
		m.logger.Debug("unsubscribe", zap.Uint64("sub", uint64(id)))
	}
	return nil
}

// ReleaseHolder removes all of the holder's subscriptions and returns
// how many there were.
func (m *Manager) ReleaseHolder(holder string) int {
	m.Lock()
	var gone []*Subscription
	for id, s := range m.subs {
		if s.Holder == holder {
			delete(m.subs, id)
			gone = append(gone, s)
		}
	}
	m.Unlock()

	for _, s := range gone {
		close(s.done)
		metrics.SubscriptionRemoved()
	}
	if 0 < len(gone) {
		m.logger.Debug("released", zap.String("holder", holder), zap.Int("subs", len(gone)))
	}
	return len(gone)
}

// Holder returns the holder of the subscription.
func (m *Manager) Holder(id core.SubID) (string, error) {
	s, err := m.get(id)
	if err != nil {
		return "", err
	}
	return s.Holder, nil
}

// Pending counts the entries waiting in the subscription's queue.
func (m *Manager) Pending(id core.SubID) (int, error) {
	s, err := m.get(id)
	if err != nil {
		return 0, err
	}
	s.Lock()
	defer s.Unlock()
	return s.q.Len(), nil
}

// Len counts live subscriptions.
func (m *Manager) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.subs)
}

// IsTimeout reports whether the error is ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
