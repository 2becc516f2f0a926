package sio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/storage"
	"github.com/Comcast/tuplescript/tuples"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	filename := filepath.Join(dir, "state.json")
	ctx := context.Background()

	var _ storage.Storage = &JSONStore{}

	store := tuples.NewStore(nil)
	_, err := store.Set(101, "components.odometry.state", core.Intern("off"))
	require.NoError(t, err)
	_, err = store.Set(1, "list", core.List{core.Int(1), core.Float(1.5), core.String("x"), core.True})
	require.NoError(t, err)
	_, err = store.SetMeta(102, "mi-odometry", core.Ref{Owner: 101, Key: "components.odometry.state"})
	require.NoError(t, err)
	_, err = store.DeclareMeta(102, "mi-laser")
	require.NoError(t, err)

	out := NewJSONStore("", filename)
	require.NoError(t, out.Open(ctx))
	j := storage.NewJournal(out, nil, 0)
	for _, x := range store.All() {
		j.Changed(core.Event{Kind: core.EventSet, Tuple: x, Seq: x.Seq})
	}
	require.NoError(t, j.Flush(ctx))
	require.NoError(t, out.Close(ctx))

	in := NewJSONStore(filename, "")
	restored := tuples.NewStore(nil)
	n, err := storage.Restore(ctx, in, restored)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	want := store.All()
	got := restored.All()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].String(), got[i].String())
		assert.Equal(t, want[i].Seq, got[i].Seq)
	}

	v, err := restored.Get(102, "mi-odometry")
	require.NoError(t, err)
	assert.True(t, core.Eq(core.Intern("off"), v.Value))
}

func TestJSONStoreMissing(t *testing.T) {
	s := NewJSONStore(filepath.Join(t.TempDir(), "nope.json"), "")
	ts, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ts)
}

func TestJSONStoreBad(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"likes":"tacos"`), 0644))
	_, err := NewJSONStore(filename, "").Load(context.Background())
	assert.Error(t, err)
}

func TestShellExpand(t *testing.T) {
	got, err := ShellExpand(context.Background(), `{"n":<<echo -n 42>>}`)
	require.NoError(t, err)
	assert.Equal(t, `{"n":42}`, got)
}

func TestShellExpandNewline(t *testing.T) {
	got, err := ShellExpand(context.Background(), `{"a":<<echo 1>>,"b":<<echo 2>>}`)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1,"b":2}`, got)

	_, err = ShellExpand(context.Background(), `<<exit 3>>`)
	assert.Error(t, err)
}
