package sched

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"
	"github.com/Comcast/tuplescript/subs"
	"github.com/Comcast/tuplescript/tuples"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// program is a Go function posing as a compiled script.
type program struct {
	name string
	f    func(ctx context.Context, h core.Host) error
}

func (p *program) Name() string { return p.name }

type funcInterpreter struct{}

func (funcInterpreter) Compile(ctx context.Context, name string, src []byte) (core.Program, error) {
	return nil, core.Errorf(core.ParseError, "can't compile text")
}

func (funcInterpreter) Exec(ctx context.Context, h core.Host, p core.Program) error {
	return p.(*program).f(ctx, h)
}

type fixture struct {
	store *tuples.Store
	subs  *subs.Manager
	sched *Scheduler
	out   *bytes.Buffer
}

func newFixture(t *testing.T) *fixture {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		store: tuples.NewStore(nil),
		subs:  subs.NewManager(nil),
		out:   &bytes.Buffer{},
	}
	f.store.AddListener(f.subs)
	f.sched = New(Options{
		Space:  f.store,
		Subs:   f.subs,
		Kernel: core.Kernel{Name: "k1", ID: 100},
		Output: f.out,
	})
	require.NoError(t, f.sched.Start(ctx))
	return f
}

func (f *fixture) spawn(t *testing.T, name string, fn func(ctx context.Context, h core.Host) error) *Task {
	task, err := f.sched.Spawn(name, funcInterpreter{}, &program{name: name, f: fn})
	require.NoError(t, err)
	return task
}

func (f *fixture) wait(t *testing.T) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := f.sched.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return err
}

func mustPattern(t *testing.T, s string) match.Pattern {
	p, err := match.ParsePattern(s)
	require.NoError(t, err)
	return p
}

func TestKernelTuples(t *testing.T) {
	f := newFixture(t)
	got, err := f.store.Get(100, "kernel.name")
	require.NoError(t, err)
	assert.Equal(t, core.String("k1"), got.Value)
	got, err = f.store.Get(100, "kernel.id")
	require.NoError(t, err)
	assert.Equal(t, core.Int(100), got.Value)
}

func TestNotStarted(t *testing.T) {
	s := New(Options{Space: tuples.NewStore(nil)})
	_, err := s.Spawn("x", funcInterpreter{}, &program{})
	assert.ErrorIs(t, err, NotStarted)
}

func TestCompleted(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a", func(ctx context.Context, h core.Host) error {
		_, err := h.Space().Set(h.Kernel().ID, "x", core.Int(1))
		return err
	})
	b := f.spawn(t, "b", func(ctx context.Context, h core.Host) error {
		return core.Exit
	})
	require.NoError(t, f.wait(t))
	assert.Equal(t, StateCompleted, a.State())
	assert.Equal(t, StateCompleted, b.State())
	assert.NoError(t, b.Err())
}

func TestFailed(t *testing.T) {
	f := newFixture(t)
	a := f.spawn(t, "a", func(ctx context.Context, h core.Host) error {
		_, err := h.Space().Get(1, "missing")
		return err
	})
	b := f.spawn(t, "b", func(ctx context.Context, h core.Host) error {
		_, err := h.Space().Set(1, "ok", core.True)
		return err
	})
	err := f.wait(t)
	assert.ErrorIs(t, err, core.ErrTupleNotFound)
	assert.Equal(t, StateFailed, a.State())
	assert.ErrorIs(t, a.Err(), core.ErrTupleNotFound)

	// Other tasks don't care.
	assert.Equal(t, StateCompleted, b.State())
}

// TestOneAtATime checks that no two tasks execute between suspension
// points at the same time.
func TestOneAtATime(t *testing.T) {
	f := newFixture(t)

	var inside, peak int32
	body := func(ctx context.Context, h core.Host) error {
		for i := 0; i < 50; i++ {
			n := atomic.AddInt32(&inside, 1)
			if n > atomic.LoadInt32(&peak) {
				atomic.StoreInt32(&peak, n)
			}
			time.Sleep(50 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
			if err := h.Sleep(ctx, 0); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < 5; i++ {
		f.spawn(t, "t", body)
	}
	require.NoError(t, f.wait(t))
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestSleepDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)

	const nap = 150 * time.Millisecond
	var slept time.Duration

	f.spawn(t, "sleeper", func(ctx context.Context, h core.Host) error {
		then := time.Now()
		if err := h.Sleep(ctx, nap); err != nil {
			return err
		}
		slept = time.Since(then)
		_, err := h.Space().Set(1, "sleeper", core.True)
		return err
	})
	f.spawn(t, "worker", func(ctx context.Context, h core.Host) error {
		for i := 0; i < 10; i++ {
			if _, err := h.Space().Set(1, "worker", core.Int(i)); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, f.wait(t))

	assert.GreaterOrEqual(t, slept, nap)

	worker, _ := f.store.Lookup(1, "worker")
	sleeper, _ := f.store.Lookup(1, "sleeper")
	assert.Less(t, worker.Seq, sleeper.Seq)
	assert.Equal(t, core.Int(9), worker.Value)
}

func TestSleepThreeSeconds(t *testing.T) {
	if testing.Short() {
		t.Skip("slow")
	}
	f := newFixture(t)

	var slept time.Duration
	var otherDone time.Duration
	start := time.Now()
	f.spawn(t, "sleeper", func(ctx context.Context, h core.Host) error {
		if err := h.Sleep(ctx, 3*time.Second); err != nil {
			return err
		}
		slept = time.Since(start)
		return nil
	})
	f.spawn(t, "other", func(ctx context.Context, h core.Host) error {
		otherDone = time.Since(start)
		return nil
	})
	require.NoError(t, f.wait(t))
	assert.GreaterOrEqual(t, slept, 3*time.Second)
	assert.Less(t, otherDone, time.Second)
}

// TestOdometry is the component request scenario: a controller waits
// for requests to change a component's state and acknowledges them.
func TestOdometry(t *testing.T) {
	f := newFixture(t)

	subscribed := make(chan struct{})
	controller := f.spawn(t, "controller", func(ctx context.Context, h core.Host) error {
		id, err := h.Subscribe(mustPattern(t, "-1:components.*.reqState"))
		if err != nil {
			return err
		}
		close(subscribed)
		for {
			ev, err := h.Await(ctx, id, time.Second)
			if err != nil {
				return err
			}
			segs, _ := match.SplitKey(ev.Tuple.Key)
			if _, err = h.Space().Set(ev.Tuple.Owner, "components."+segs[1]+".state", ev.Tuple.Value); err != nil {
				return err
			}
			if segs[1] == "odometry" && core.Equal(ev.Tuple.Value, core.Intern("off")) {
				return core.Exit
			}
		}
	})

	<-subscribed
	// An external component, not a task.
	_, err := f.store.Set(101, "components.odometry.reqState", core.Intern("on"))
	require.NoError(t, err)
	_, err = f.store.Set(101, "components.laser.reqState", core.Intern("on"))
	require.NoError(t, err)
	_, err = f.store.Set(101, "components.odometry.reqState", core.Intern("off"))
	require.NoError(t, err)

	require.NoError(t, f.wait(t))
	assert.Equal(t, StateCompleted, controller.State())

	got, err := f.store.Get(101, "components.odometry.state")
	require.NoError(t, err)
	assert.Equal(t, core.Intern("off"), got.Value)
	got, err = f.store.Get(101, "components.laser.state")
	require.NoError(t, err)
	assert.Equal(t, core.Intern("on"), got.Value)

	// Exit released the subscription.
	assert.Equal(t, 0, f.subs.Len())
}

func TestAwaitTimeout(t *testing.T) {
	f := newFixture(t)
	var got error
	f.spawn(t, "a", func(ctx context.Context, h core.Host) error {
		id, err := h.Subscribe(mustPattern(t, "1:never"))
		if err != nil {
			return err
		}
		_, got = h.Await(ctx, id, 20*time.Millisecond)
		return nil
	})
	require.NoError(t, f.wait(t))
	assert.ErrorIs(t, got, core.Timeout)
	assert.Equal(t, 0, f.subs.Len())
}

func TestCancelCleansUp(t *testing.T) {
	f := newFixture(t)

	var blocked sync.WaitGroup
	blocked.Add(2)
	awaiter := f.spawn(t, "awaiter", func(ctx context.Context, h core.Host) error {
		id, err := h.Subscribe(mustPattern(t, "1:never"))
		if err != nil {
			return err
		}
		blocked.Done()
		_, err = h.Await(ctx, id, 0)
		return err
	})
	sleeper := f.spawn(t, "sleeper", func(ctx context.Context, h core.Host) error {
		if _, err := h.Subscribe(mustPattern(t, "1:never")); err != nil {
			return err
		}
		blocked.Done()
		return h.Sleep(ctx, time.Hour)
	})

	blocked.Wait()
	// Let them actually block.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateBlockedSubscription, awaiter.State())
	assert.Equal(t, StateBlockedTimer, sleeper.State())

	awaiter.Cancel()
	sleeper.Cancel()
	err := f.wait(t)
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, StateFailed, awaiter.State())
	assert.Equal(t, StateFailed, sleeper.State())
	assert.Equal(t, 0, f.subs.Len())
	assert.Equal(t, 0, f.sched.timers.Pending())

	// The baton is free.
	late := f.spawn(t, "late", func(ctx context.Context, h core.Host) error {
		return nil
	})
	select {
	case <-late.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("late task didn't run")
	}
	assert.Equal(t, StateCompleted, late.State())
}

func TestStatuses(t *testing.T) {
	f := newFixture(t)
	f.spawn(t, "a", func(ctx context.Context, h core.Host) error {
		return core.Errorf(core.TypeMismatch, "nope")
	})
	f.wait(t)
	st := f.sched.Statuses()
	require.Len(t, st, 1)
	assert.Equal(t, "a", st[0].Name)
	assert.Equal(t, StateFailed, st[0].State)
	assert.Contains(t, st[0].Err, "TypeMismatch")
	assert.False(t, st[0].Ended.Before(st[0].Started))
}
