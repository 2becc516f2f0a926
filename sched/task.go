package sched

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"
	"github.com/Comcast/tuplescript/metrics"
	"github.com/Comcast/tuplescript/subs"
	"github.com/Comcast/tuplescript/timers"

	"github.com/looplab/fsm"
	"go.uber.org/zap"
)

// Task states.
const (
	StateReady               = "ready"
	StateRunning             = "running"
	StateBlockedTimer        = "blocked_timer"
	StateBlockedSubscription = "blocked_subscription"
	StateCompleted           = "completed"
	StateFailed              = "failed"
)

// Task lifecycle events.
const (
	EventRun      = "run"
	EventSleep    = "sleep"
	EventAwait    = "await"
	EventResume   = "resume"
	EventComplete = "complete"
	EventFail     = "fail"
)

var lifecycle = fsm.Events{
	{Name: EventRun, Src: []string{StateReady}, Dst: StateRunning},
	{Name: EventSleep, Src: []string{StateRunning}, Dst: StateBlockedTimer},
	{Name: EventAwait, Src: []string{StateRunning}, Dst: StateBlockedSubscription},
	{Name: EventResume, Src: []string{StateBlockedTimer, StateBlockedSubscription}, Dst: StateRunning},
	{Name: EventComplete, Src: []string{StateRunning}, Dst: StateCompleted},
	{Name: EventFail, Src: []string{StateReady, StateRunning, StateBlockedTimer, StateBlockedSubscription}, Dst: StateFailed},
}

// IsTerminal reports whether the state is final.
func IsTerminal(state string) bool {
	return state == StateCompleted || state == StateFailed
}

// Task is one script being executed.  A Task is also the core.Host
// that its interpreter sees.
type Task struct {
	ID   string
	Name string

	s       *Scheduler
	interp  core.Interpreter
	prog    core.Program
	machine *fsm.FSM
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// wake receives the baton.
	wake chan struct{}

	// gone is set (with the scheduler's lock held) once the task
	// will never take the baton again.
	gone bool

	sync.Mutex
	err     error
	started time.Time
	ended   time.Time
	timer   string
	sleeps  int

	done chan struct{}
}

// Status is a summary of a task.
type Status struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	State   string    `json:"state"`
	Err     string    `json:"err,omitempty"`
	Started time.Time `json:"started,omitempty"`
	Ended   time.Time `json:"ended,omitempty"`
}

func newTask(s *Scheduler, id, name string, interp core.Interpreter, prog core.Program) *Task {
	t := &Task{
		ID:     id,
		Name:   name,
		s:      s,
		interp: interp,
		prog:   prog,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("task", name), zap.String("tid", id)),
	}
	t.machine = fsm.NewFSM(
		StateReady,
		lifecycle,
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				t.logger.Debug("transition",
					zap.String("event", e.Event),
					zap.String("from", e.Src),
					zap.String("to", e.Dst))
				metrics.TaskEntered(e.Dst, IsTerminal(e.Dst))
			},
		},
	)
	return t
}

// State returns the task's current lifecycle state.
func (t *Task) State() string {
	return t.machine.Current()
}

// Err returns the error that failed the task, if any.  A task that
// executed "exit" has no error.
func (t *Task) Err() error {
	t.Lock()
	defer t.Unlock()
	return t.err
}

// Done is closed when the task has reached a terminal state and
// released its resources.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel asks the task to stop.  The task fails with
// context.Canceled at its next suspension point (or right away if it's
// suspended).
func (t *Task) Cancel() {
	t.cancel()
}

func (t *Task) Status() Status {
	st := Status{
		ID:    t.ID,
		Name:  t.Name,
		State: t.State(),
	}
	t.Lock()
	if t.err != nil {
		st.Err = t.err.Error()
	}
	st.Started, st.Ended = t.started, t.ended
	t.Unlock()
	return st
}

func (t *Task) transition(event string) {
	// The task's context might be done, but the transition must
	// happen anyway.
	if err := t.machine.Event(context.Background(), event); err != nil {
		// Only a bug could get us here.
		t.logger.Error("transition", zap.String("event", event), zap.Error(err))
	}
}

// run is the task's goroutine.
func (t *Task) run() {
	defer t.finish()

	t.s.makeReady(t)
	if err := t.s.waitBaton(t.ctx, t); err != nil {
		t.setErr(err)
		return
	}

	t.Lock()
	t.started = time.Now()
	t.Unlock()

	t.transition(EventRun)
	t.logger.Info("started")

	err := t.interp.Exec(t.ctx, t, t.prog)
	if errors.Is(err, core.Exit) {
		err = nil
	}
	t.setErr(err)
}

func (t *Task) setErr(err error) {
	t.Lock()
	t.err = err
	t.Unlock()
}

// finish releases everything the task holds and moves it to its
// terminal state.
func (t *Task) finish() {
	if r := recover(); r != nil {
		t.logger.Error("panic", zap.Any("recovered", r))
		t.setErr(fmt.Errorf("panic: %v", r))
	}

	released := t.s.subs.ReleaseHolder(t.ID)

	t.Lock()
	timer := t.timer
	t.timer = ""
	t.ended = time.Now()
	err := t.err
	t.Unlock()

	if timer != "" {
		t.s.timers.Rem(timer)
	}

	t.s.abandon(t)

	if err == nil {
		t.transition(EventComplete)
		t.logger.Info("completed", zap.Int("released", released))
	} else {
		t.transition(EventFail)
		if errors.Is(err, context.Canceled) {
			t.logger.Info("cancelled", zap.Int("released", released))
		} else {
			t.logger.Error("failed", zap.Error(err), zap.Int("released", released))
		}
	}

	t.cancel()
	close(t.done)
	t.s.wg.Done()
}

// core.Host implementation.

func (t *Task) Space() core.Space {
	return t.s.space
}

func (t *Task) Kernel() core.Kernel {
	return t.s.kernel
}

func (t *Task) Output() io.Writer {
	return t.s.output
}

func (t *Task) Logger() *zap.Logger {
	return t.logger
}

// Sleep suspends the task for at least the given duration.  Other
// tasks run in the meantime.  A non-positive duration just yields.
func (t *Task) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		t.s.release(t)
		t.s.makeReady(t)
		return t.s.waitBaton(ctx, t)
	}

	t.Lock()
	t.sleeps++
	id := t.ID + "/sleep/" + strconv.Itoa(t.sleeps)
	t.timer = id
	t.Unlock()

	t.transition(EventSleep)

	err := t.s.timers.Add(&timers.Timer{
		ID: id,
		At: time.Now().Add(d),
		F: func(context.Context, *timers.Timer) {
			t.Lock()
			if t.timer == id {
				t.timer = ""
			}
			t.Unlock()
			t.s.makeReady(t)
		},
	})
	if err != nil {
		return err
	}

	t.s.release(t)

	if err := t.s.waitBaton(ctx, t); err != nil {
		return err
	}
	t.transition(EventResume)
	return nil
}

func (t *Task) Subscribe(p match.Pattern) (core.SubID, error) {
	sub := t.s.subs.Subscribe(t.ID, p)
	return sub.ID, nil
}

// own checks that the subscription belongs to this task.
func (t *Task) own(id core.SubID) error {
	holder, err := t.s.subs.Holder(id)
	if err != nil {
		return err
	}
	if holder != t.ID {
		return subs.ErrUnsubscribed
	}
	return nil
}

func (t *Task) Poll(id core.SubID) (core.Event, bool, error) {
	if err := t.own(id); err != nil {
		return core.Event{}, false, err
	}
	return t.s.subs.Poll(id)
}

// Await returns the next event of the subscription.  If none is
// pending, the task is suspended until one arrives or the timeout
// expires.
func (t *Task) Await(ctx context.Context, id core.SubID, timeout time.Duration) (core.Event, error) {
	if err := t.own(id); err != nil {
		return core.Event{}, err
	}
	if ev, ok, err := t.s.subs.Poll(id); ok || err != nil {
		return ev, err
	}

	t.transition(EventAwait)
	t.s.release(t)

	ev, err := t.s.subs.Await(ctx, id, timeout)
	if ctx.Err() != nil {
		return core.Event{}, ctx.Err()
	}

	t.s.makeReady(t)
	if err := t.s.waitBaton(ctx, t); err != nil {
		return core.Event{}, err
	}
	t.transition(EventResume)

	return ev, err
}

func (t *Task) Unsubscribe(id core.SubID) error {
	if err := t.own(id); err != nil {
		if errors.Is(err, subs.ErrUnsubscribed) {
			return nil
		}
		return err
	}
	return t.s.subs.Unsubscribe(id)
}
