// Package sched runs scripts as cooperative tasks.
//
// Each task executes in its own goroutine, but only while it holds
// the scheduler's baton, so at most one task executes script logic at
// any time.  A task gives up the baton when it sleeps or awaits a
// subscription event.  When its condition is satisfied, the task
// joins a FIFO queue for the baton.  Tasks are therefore resumed in the
// order in which their conditions were satisfied.
//
// The store isn't protected by the baton.  External components write
// to it concurrently.
package sched

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/metrics"
	"github.com/Comcast/tuplescript/subs"
	"github.com/Comcast/tuplescript/timers"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	NotStarted     = errors.New("scheduler not started")
	AlreadyStarted = errors.New("scheduler already started")
)

// DefaultMaxTimers bounds the number of simultaneously sleeping
// tasks.
const DefaultMaxTimers = 1024

// Options configures a Scheduler.
type Options struct {
	Space  core.Space
	Subs   *subs.Manager
	Kernel core.Kernel

	// Output is where scripts write.  Defaults to os.Stdout.
	Output io.Writer

	Logger    *zap.Logger
	MaxTimers int
}

// Scheduler owns the tasks.
type Scheduler struct {
	space  core.Space
	subs   *subs.Manager
	kernel core.Kernel
	output io.Writer
	logger *zap.Logger
	timers *timers.Timers

	ctx context.Context
	wg  sync.WaitGroup

	// mu protects the baton, the queue, and the task list.
	mu     sync.Mutex
	holder *Task
	queue  []*Task
	tasks  []*Task
}

func New(opts Options) *Scheduler {
	s := &Scheduler{
		space:  opts.Space,
		subs:   opts.Subs,
		kernel: opts.Kernel,
		output: opts.Output,
		logger: opts.Logger,
	}
	if s.output == nil {
		s.output = os.Stdout
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.subs == nil {
		s.subs = subs.NewManager(&subs.Options{Logger: s.logger})
	}
	max := opts.MaxTimers
	if max <= 0 {
		max = DefaultMaxTimers
	}
	s.timers = timers.NewTimers(max, s.logger.Named("timers"))
	return s
}

// Start starts the scheduler's timer loop and publishes the kernel
// tuples.  Tasks live until they end or the context is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.ctx != nil {
		s.mu.Unlock()
		return AlreadyStarted
	}
	s.ctx = ctx
	s.mu.Unlock()

	go func() {
		if err := s.timers.Run(ctx); err != nil {
			s.logger.Error("timers", zap.Error(err))
		}
	}()
	if !s.timers.Wait(5 * time.Second) {
		return errors.New("timers didn't start")
	}

	return PublishKernel(s.space, s.kernel)
}

// PublishKernel writes the kernel tuples "kernel.name" and
// "kernel.id" for the kernel's own owner.
func PublishKernel(space core.Space, k core.Kernel) error {
	if _, err := space.Set(k.ID, "kernel.name", core.String(k.Name)); err != nil {
		return err
	}
	if _, err := space.Set(k.ID, "kernel.id", core.Int(k.ID)); err != nil {
		return err
	}
	return nil
}

// Spawn starts a task for the program.
func (s *Scheduler) Spawn(name string, interp core.Interpreter, prog core.Program) (*Task, error) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if ctx == nil {
		return nil, NotStarted
	}

	t := newTask(s, uuid.NewString(), name, interp, prog)
	t.ctx, t.cancel = context.WithCancel(ctx)

	s.mu.Lock()
	s.tasks = append(s.tasks, t)
	s.mu.Unlock()

	metrics.TaskSpawned()
	s.wg.Add(1)
	go t.run()

	return t, nil
}

// Wait waits for every task to end or for the context to be done.
// The result joins the errors of all failed tasks.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
	}

	var errs []error
	for _, t := range s.Tasks() {
		if err := t.Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tasks returns all tasks in the order they were spawned.
func (s *Scheduler) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := make([]*Task, len(s.tasks))
	copy(acc, s.tasks)
	return acc
}

// Statuses summarizes all tasks.
func (s *Scheduler) Statuses() []Status {
	ts := s.Tasks()
	acc := make([]Status, len(ts))
	for i, t := range ts {
		acc[i] = t.Status()
	}
	return acc
}

// makeReady gives the baton to the task if it's free and no one is
// waiting.  Otherwise the task joins the queue.
func (s *Scheduler) makeReady(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.gone {
		return
	}
	if s.holder == nil && len(s.queue) == 0 {
		s.holder = t
		t.wake <- struct{}{}
		return
	}
	s.queue = append(s.queue, t)
}

// waitBaton waits for the task's turn.  makeReady must have been
// called for the task.
func (s *Scheduler) waitBaton(ctx context.Context, t *Task) error {
	select {
	case <-t.wake:
		return nil
	case <-ctx.Done():
		s.abandon(t)
		return ctx.Err()
	}
}

// release gives up the baton if the task holds it.
func (s *Scheduler) release(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.holder == t {
		s.pass()
	}
}

// abandon takes the task out of the game for good: if it holds the
// baton, the baton moves on; if it's queued, it's removed.
func (s *Scheduler) abandon(t *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.gone = true
	if s.holder == t {
		s.pass()
		return
	}
	for i, x := range s.queue {
		if x == t {
			copy(s.queue[i:], s.queue[i+1:])
			s.queue[len(s.queue)-1] = nil
			s.queue = s.queue[:len(s.queue)-1]
			return
		}
	}
}

// pass hands the baton to the next queued task.  Must be called with
// mu held.
func (s *Scheduler) pass() {
	if len(s.queue) == 0 {
		s.holder = nil
		return
	}
	next := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	s.holder = next
	next.wake <- struct{}{}
}
