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

// Package timers provides one facility for many pending wakeups.  At
// any point in time, only one time.Timer exists to implement all
// managed timers.  The scheduler uses a Timers to wake sleeping
// tasks.
//
// Pending timers are kept in a list ordered by ascending trigger
// time.  When the head of that list changes, the loop replaces its
// internal timer with one for the new head.  When the internal timer
// fires, every timer that's due is removed and its work is started in
// a new goroutine, so it's okay for that work to block.
//
// Deadlines use the monotonic clock when At came from time.Now, so
// wall clock adjustments don't move them.
package timers

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	NotFound       = errors.New("not found")
	TooMany        = errors.New("too many")
	IdExists       = errors.New("id exists")
	NotRunning     = errors.New("not running")
	AlreadyRunning = errors.New("already running")
)

const (
	notRunning = int32(iota)
	running
)

// Timer represents some work to be done in the future.
type Timer struct {
	// ID is a unique identifier across all timers managed by a
	// given Timers instance.
	ID string `json:"id"`

	// F is the work to be performed.  The timer is passed along so
	// that one F can serve many timers.
	F func(context.Context, *Timer) `json:"-"`

	// At is the desired time to execute F.
	At time.Time `json:"at"`

	// Executed is written just before F is started.
	Executed time.Time `json:"executed,omitempty"`
}

// Timers is a managed set of Timer instances.
//
// You need to Run the Timers before calling Add.
type Timers struct {
	Max int `json:"max"`

	logger *zap.Logger

	sync.Mutex
	backlog []*Timer

	// up is signaled when the head of the backlog changes.
	up chan struct{}

	running int32
	started chan struct{}
	once    sync.Once
}

// NewTimers makes a new instance with the given maximum number of
// pending timers.
func NewTimers(max int, logger *zap.Logger) *Timers {
	initial := max / 4
	if initial < 8 {
		initial = 8
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timers{
		Max:     max,
		logger:  logger,
		backlog: make([]*Timer, 0, initial),
		up:      make(chan struct{}, 1),
		started: make(chan struct{}),
	}
}

// Run processes timers in the current goroutine until the context is
// done.  This method must be running to use the Timers instance.
//
// Timers still pending when Run returns never fire.
func (ts *Timers) Run(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&ts.running, notRunning, running) {
		return AlreadyRunning
	}
	defer atomic.StoreInt32(&ts.running, notRunning)

	ts.once.Do(func() { close(ts.started) })

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ts.up:
		case <-fire:
		}

		now := time.Now()
		due, next, have := ts.due(now)
		for _, t := range due {
			ts.logger.Debug("firing",
				zap.String("timer", t.ID),
				zap.Duration("late", now.Sub(t.At)))
			t.Executed = now
			go t.F(ctx, t)
		}

		if timer != nil {
			timer.Stop()
			timer, fire = nil, nil
		}
		if have {
			timer = time.NewTimer(next.Sub(now))
			fire = timer.C
		}
	}
}

// due removes and returns the timers that are due.  It also returns
// the time of the next pending timer, if any.
func (ts *Timers) due(now time.Time) ([]*Timer, time.Time, bool) {
	ts.Lock()
	defer ts.Unlock()

	var acc []*Timer
	i := 0
	for ; i < len(ts.backlog); i++ {
		if ts.backlog[i].At.After(now) {
			break
		}
		acc = append(acc, ts.backlog[i])
		ts.backlog[i] = nil
	}
	ts.backlog = ts.backlog[i:]

	if len(ts.backlog) == 0 {
		return acc, time.Time{}, false
	}
	return acc, ts.backlog[0].At, true
}

// IsRunning tries to report whether the Run method is currently
// executing.
func (ts *Timers) IsRunning() bool {
	return atomic.LoadInt32(&ts.running) == running
}

// Wait waits up to the given duration for Run to start.
func (ts *Timers) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ts.started:
		return true
	}
}

// Add adds the given timer.
func (ts *Timers) Add(t *Timer) error {
	if !ts.IsRunning() {
		return NotRunning
	}

	ts.Lock()
	defer ts.Unlock()

	if len(ts.backlog) == ts.Max {
		return TooMany
	}
	for _, x := range ts.backlog {
		if x.ID == t.ID {
			return IdExists
		}
	}

	i := sort.Search(len(ts.backlog), func(i int) bool {
		return ts.backlog[i].At.After(t.At)
	})
	ts.backlog = append(ts.backlog, nil)
	copy(ts.backlog[i+1:], ts.backlog[i:])
	ts.backlog[i] = t

	ts.logger.Debug("add",
		zap.String("timer", t.ID),
		zap.Duration("in", time.Until(t.At)),
		zap.Int("at", i),
		zap.Int("pending", len(ts.backlog)))

	if i == 0 {
		ts.reset()
	}

	return nil
}

// Rem removes the given timer.  A timer that's not pending (perhaps
// because it already fired) results in NotFound.
func (ts *Timers) Rem(id string) error {
	if !ts.IsRunning() {
		return NotRunning
	}

	ts.Lock()
	defer ts.Unlock()

	for i, t := range ts.backlog {
		if t.ID != id {
			continue
		}
		copy(ts.backlog[i:], ts.backlog[i+1:])
		ts.backlog[len(ts.backlog)-1] = nil
		ts.backlog = ts.backlog[:len(ts.backlog)-1]

		ts.logger.Debug("rem", zap.String("timer", id), zap.Int("at", i))

		if i == 0 {
			ts.reset()
		}
		return nil
	}

	return NotFound
}

// Pending counts the timers that haven't fired.
func (ts *Timers) Pending() int {
	ts.Lock()
	defer ts.Unlock()
	return len(ts.backlog)
}

// reset tells the loop that the head changed.  Must be called with
// the lock held.
func (ts *Timers) reset() {
	select {
	case ts.up <- struct{}{}:
	default:
	}
}
