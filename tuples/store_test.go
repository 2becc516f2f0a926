package tuples

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pattern(t *testing.T, s string) match.Pattern {
	p, err := match.ParsePattern(s)
	require.NoError(t, err)
	return p
}

func TestSetGet(t *testing.T) {
	s := NewStore(nil)

	_, err := s.Set(100, "components.odometry.reqState", core.Intern("on"))
	require.NoError(t, err)

	got, err := s.Get(100, "components/odometry/reqState")
	require.NoError(t, err)
	assert.Equal(t, core.Intern("on"), got.Value)
	assert.Equal(t, "components.odometry.reqState", got.Key)
	assert.Equal(t, "text/x-atom", got.Mimetype)

	_, err = s.Set(100, "components.odometry.reqState", core.Intern("off"))
	require.NoError(t, err)
	got, err = s.Get(100, "components.odometry.reqState")
	require.NoError(t, err)
	assert.Equal(t, core.Intern("off"), got.Value)

	_, err = s.Get(100, "nope")
	assert.ErrorIs(t, err, core.ErrTupleNotFound)
}

func TestInvalidKeys(t *testing.T) {
	s := NewStore(nil)
	for _, k := range []string{"", "a..b", "a.b.c.d.e.f.g.h"} {
		_, err := s.Set(1, k, core.Int(1))
		assert.ErrorIs(t, err, core.ErrInvalidKey, k)
	}
	_, err := s.Set(-1, "x", core.Int(1))
	assert.ErrorIs(t, err, core.ErrInvalidKey)
}

func TestMetaChain(t *testing.T) {
	s := NewStore(nil)

	_, err := s.SetMeta(1, "a", core.Ref{Owner: 2, Key: "b"})
	require.NoError(t, err)
	_, err = s.SetMeta(2, "b", core.Ref{Owner: 3, Key: "c"})
	require.NoError(t, err)
	_, err = s.Set(3, "c", core.Int(42))
	require.NoError(t, err)

	got, err := s.Get(1, "a")
	require.NoError(t, err)
	assert.Equal(t, core.Int(42), got.Value)
	assert.Equal(t, core.Ref{Owner: 3, Key: "c"}, got.Ref())

	// Rebinding an intermediate link redirects the chain.
	_, err = s.Set(4, "d", core.String("elsewhere"))
	require.NoError(t, err)
	_, err = s.SetMeta(2, "b", core.Ref{Owner: 4, Key: "d"})
	require.NoError(t, err)
	got, err = s.Get(1, "a")
	require.NoError(t, err)
	assert.Equal(t, core.String("elsewhere"), got.Value)

	// Lookup doesn't resolve.
	m, have := s.Lookup(1, "a")
	require.True(t, have)
	assert.True(t, m.IsMeta)
	assert.Equal(t, "1:a -> 2:b", m.String())
}

func TestMetaCycle(t *testing.T) {
	s := NewStore(nil)
	_, err := s.SetMeta(1, "a", core.Ref{Owner: 2, Key: "b"})
	require.NoError(t, err)
	_, err = s.SetMeta(2, "b", core.Ref{Owner: 1, Key: "a"})
	require.NoError(t, err)

	_, err = s.Get(1, "a")
	assert.ErrorIs(t, err, core.ErrCyclicMetaLink)

	_, err = s.SetMeta(5, "self", core.Ref{Owner: 5, Key: "self"})
	require.NoError(t, err)
	_, err = s.Get(5, "self")
	assert.ErrorIs(t, err, core.ErrCyclicMetaLink)
}

func TestMetaDepth(t *testing.T) {
	s := NewStore(&Options{MaxMetaDepth: 4})
	for i := 0; i < 6; i++ {
		_, err := s.SetMeta(i, "x", core.Ref{Owner: i + 1, Key: "x"})
		require.NoError(t, err)
	}
	_, err := s.Set(6, "x", core.True)
	require.NoError(t, err)

	_, err = s.Get(0, "x")
	assert.ErrorIs(t, err, core.ErrCyclicMetaLink)

	got, err := s.Get(3, "x")
	require.NoError(t, err)
	assert.Equal(t, core.True, got.Value)
}

func TestUnboundMeta(t *testing.T) {
	s := NewStore(nil)
	_, err := s.DeclareMeta(103, "mi-odometry")
	require.NoError(t, err)

	_, err = s.Get(103, "mi-odometry")
	assert.ErrorIs(t, err, core.ErrTupleNotFound)

	// Declaring again leaves an existing binding alone.
	_, err = s.Set(100, "pos", core.Int(7))
	require.NoError(t, err)
	_, err = s.SetMeta(103, "mi-odometry", core.Ref{Owner: 100, Key: "pos"})
	require.NoError(t, err)
	seq := s.Seq()
	_, err = s.DeclareMeta(103, "mi-odometry")
	require.NoError(t, err)
	assert.Equal(t, seq, s.Seq())

	got, err := s.Get(103, "mi-odometry")
	require.NoError(t, err)
	assert.Equal(t, core.Int(7), got.Value)

	// Dangling target.
	_, err = s.SetMeta(103, "mi-odometry", core.Ref{Owner: 100, Key: "gone"})
	require.NoError(t, err)
	_, err = s.Get(103, "mi-odometry")
	assert.ErrorIs(t, err, core.ErrTupleNotFound)
}

func TestAppend(t *testing.T) {
	s := NewStore(nil)

	_, err := s.Append(1, "log", core.String("x"))
	assert.ErrorIs(t, err, core.ErrTupleNotFound)

	_, err = s.Set(1, "log", core.String("a"))
	require.NoError(t, err)
	got, err := s.Append(1, "log", core.Int(1))
	require.NoError(t, err)
	assert.Equal(t, core.String("a1"), got.Value)

	_, err = s.Set(1, "xs", core.List{})
	require.NoError(t, err)
	got, err = s.Append(1, "xs", core.Intern("y"))
	require.NoError(t, err)
	assert.True(t, core.Equal(core.List{core.Intern("y")}, got.Value))

	_, err = s.Set(1, "n", core.Int(1))
	require.NoError(t, err)
	_, err = s.Append(1, "n", core.Int(1))
	assert.ErrorIs(t, err, core.ErrTypeMismatch)
}

func TestDelete(t *testing.T) {
	s := NewStore(nil)
	var evs []core.Event
	s.AddListener(ListenerFunc(func(ev core.Event) {
		evs = append(evs, ev)
	}))

	deleted, err := s.Delete(1, "x")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Set(1, "x", core.Int(1))
	require.NoError(t, err)
	deleted, err = s.Delete(1, "x")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Get(1, "x")
	assert.ErrorIs(t, err, core.ErrTupleNotFound)

	require.Len(t, evs, 2)
	assert.Equal(t, core.EventDelete, evs[1].Kind)
	assert.Equal(t, core.Int(1), evs[1].Tuple.Value)
	assert.Less(t, evs[0].Seq, evs[1].Seq)
}

func TestSnapshot(t *testing.T) {
	s := NewStore(nil)
	for _, name := range []string{"odometry", "laser", "camera"} {
		_, err := s.Set(100, "components."+name+".reqState", core.Intern("off"))
		require.NoError(t, err)
	}
	_, err := s.Set(101, "components.gripper.reqState", core.Intern("off"))
	require.NoError(t, err)
	_, err = s.Set(100, "components.odometry.state", core.Intern("on"))
	require.NoError(t, err)

	v := s.Snapshot(pattern(t, "-1:components.*.reqState"))
	require.Equal(t, 4, v.Len())
	var got []string
	for _, tup := range v.Tuples() {
		got = append(got, tup.Ref().String())
	}
	assert.Equal(t, []string{
		"100:components.camera.reqState",
		"100:components.laser.reqState",
		"100:components.odometry.reqState",
		"101:components.gripper.reqState",
	}, got)

	// Later writes don't change the view.
	_, err = s.Set(100, "components.camera.reqState", core.Intern("on"))
	require.NoError(t, err)
	_, err = s.Set(102, "components.x.reqState", core.Intern("on"))
	require.NoError(t, err)
	assert.Equal(t, 4, v.Len())
	assert.Equal(t, core.Intern("off"), v.Tuple(0).Value)

	// Mutating a returned copy doesn't change the view either.
	v.Tuple(0).Value = core.Int(0)
	assert.Equal(t, core.Intern("off"), v.Tuple(0).Value)

	lit := s.Snapshot(pattern(t, "100:components.camera.reqState"))
	require.Equal(t, 1, lit.Len())
	assert.Equal(t, core.Intern("on"), lit.Tuple(0).Value)

	assert.Equal(t, 0, s.Snapshot(pattern(t, "7:nothing")).Len())
}

func TestSnapshotVariables(t *testing.T) {
	s := NewStore(nil)
	for _, key := range []string{"a.link.a", "a.link.b", "b.link.b"} {
		_, err := s.Set(1, key, core.Int(1))
		require.NoError(t, err)
	}

	v := s.Snapshot(pattern(t, "1:?x.link.?x"))
	require.Equal(t, 2, v.Len())
	assert.Equal(t, "a.link.a", v.Tuple(0).Key)
	assert.Equal(t, "b.link.b", v.Tuple(1).Key)

	assert.Equal(t, 3, s.Snapshot(pattern(t, "1:?x.link.?y")).Len())
}

func TestStaleWrite(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	s := NewStore(nil)

	_, err := s.SetAt(1, "x", core.Int(2), t0.Add(time.Second))
	require.NoError(t, err)
	got, err := s.SetAt(1, "x", core.Int(1), t0)
	require.NoError(t, err)
	assert.Equal(t, core.Int(2), got.Value)

	// Equal timestamps: the later arrival wins.
	_, err = s.SetAt(1, "x", core.Int(3), t0.Add(time.Second))
	require.NoError(t, err)
	got, err = s.Get(1, "x")
	require.NoError(t, err)
	assert.Equal(t, core.Int(3), got.Value)
}

func TestClockSteppingBack(t *testing.T) {
	t0 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	now := t0
	s := NewStore(&Options{
		Now: func() time.Time { return now },
	})
	a, err := s.Set(1, "x", core.Int(1))
	require.NoError(t, err)
	now = t0.Add(-time.Hour)
	b, err := s.Set(1, "x", core.Int(2))
	require.NoError(t, err)
	assert.False(t, b.Timestamp.Before(a.Timestamp))
	assert.Less(t, a.Seq, b.Seq)
}

func TestRestore(t *testing.T) {
	s := NewStore(nil)
	heard := 0
	s.AddListener(ListenerFunc(func(core.Event) { heard++ }))

	err := s.Restore([]*core.Tuple{
		{Owner: 1, Key: "a", Value: core.Int(1), Seq: 10},
		{Owner: 1, Key: "m", IsMeta: true, Meta: &core.Ref{Owner: 1, Key: "a"}, Seq: 11},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, heard)
	assert.Equal(t, uint64(11), s.Seq())

	got, err := s.Get(1, "m")
	require.NoError(t, err)
	assert.Equal(t, core.Int(1), got.Value)

	t2, err := s.Set(1, "b", core.Int(2))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), t2.Seq)
	assert.Len(t, s.All(), 3)
}

// TestListenerOrder checks that concurrent writers produce one total
// order that every listener sees.
func TestListenerOrder(t *testing.T) {
	s := NewStore(&Options{Shards: 4})

	var a, b []uint64
	s.AddListener(ListenerFunc(func(ev core.Event) { a = append(a, ev.Seq) }))
	s.AddListener(ListenerFunc(func(ev core.Event) { b = append(b, ev.Seq) }))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if _, err := s.Set(w, fmt.Sprintf("k%d", i%10), core.Int(i)); err != nil {
					t.Error(err)
					return
				}
				if _, err := s.Get(w, fmt.Sprintf("k%d", i%10)); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	require.Len(t, a, 800)
	assert.Equal(t, a, b)
	for i := 1; i < len(a); i++ {
		require.Equal(t, a[i-1]+1, a[i])
	}
}

func TestReadAfterWrite(t *testing.T) {
	s := NewStore(nil)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			key := fmt.Sprintf("w%d.counter", w)
			for i := 0; i < 200; i++ {
				if _, err := s.Set(w, key, core.Int(i)); err != nil {
					t.Error(err)
					return
				}
				got, err := s.Get(w, key)
				if err != nil {
					t.Error(err)
					return
				}
				if got.Value != core.Int(i) {
					t.Errorf("%s: wrote %d, read %s", key, i, got.Value)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}
