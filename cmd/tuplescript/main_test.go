package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/sio"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with the given arguments and stdin.
func execute(t *testing.T, stdin string, args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func write(t *testing.T, dir, name, src string) string {
	filename := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(filename, []byte(src), 0644))
	return filename
}

func readState(t *testing.T, filename string) map[core.Ref]*core.Tuple {
	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	ts, err := sio.ReadTuples(f)
	require.NoError(t, err)
	acc := make(map[core.Ref]*core.Tuple, len(ts))
	for _, x := range ts {
		acc[x.Ref()] = x
	}
	return acc
}

const configure = `
set 100:x 1
set_meta 102:mi-x 100:x
echo "configured" newline
`

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"run", "check", "dump", "graph", "doc"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitUsage, exitCode(errors.New("other")))
	assert.Equal(t, ExitParse, exitCode(exitError(ExitParse, "parse", core.ErrParse)))

	wrapped := exitError(ExitRuntime, "task failed", core.ErrTupleNotFound)
	assert.True(t, errors.Is(wrapped, core.ErrTupleNotFound))
	assert.Equal(t, "task failed: TupleNotFound", wrapped.Error())
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	script := write(t, dir, "configure.ts", configure)
	state := filepath.Join(dir, "state.json")

	out, _, err := execute(t, "", "run", "--kernel-name", "k1", "--state-out", state, script)
	require.NoError(t, err)
	assert.Equal(t, "configured\n", out)

	ts := readState(t, state)
	x, have := ts[core.Ref{Owner: 100, Key: "x"}]
	require.True(t, have)
	assert.True(t, core.Equal(core.Int(1), x.Value))

	mi, have := ts[core.Ref{Owner: 102, Key: "mi-x"}]
	require.True(t, have)
	assert.True(t, mi.IsMeta)
	assert.Equal(t, &core.Ref{Owner: 100, Key: "x"}, mi.Meta)

	name, have := ts[core.Ref{Owner: 100, Key: "kernel.name"}]
	require.True(t, have)
	assert.Equal(t, "k1", name.Value.String())

	// The state comes back.
	next := filepath.Join(dir, "next.json")
	_, _, err = execute(t, "", "run", "--state-in", state, "--state-out", next,
		write(t, dir, "more.ts", `set 100:y get 100:x`))
	require.NoError(t, err)
	y, have := readState(t, next)[core.Ref{Owner: 100, Key: "y"}]
	require.True(t, have)
	assert.True(t, core.Equal(core.Int(1), y.Value))
}

func TestRunBolt(t *testing.T) {
	dir := t.TempDir()
	db := "bolt:" + filepath.Join(dir, "tuples.db")

	_, _, err := execute(t, "", "run", "--storage", db, write(t, dir, "configure.ts", configure))
	require.NoError(t, err)

	out, _, err := execute(t, "", "dump", "--storage", db, "--owner", "102")
	require.NoError(t, err)
	ts, err := sio.ReadTuples(strings.NewReader(out))
	require.NoError(t, err)
	require.Len(t, ts, 1)
	assert.Equal(t, "mi-x", ts[0].Key)
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()

	_, _, err := execute(t, "", "run", write(t, dir, "bad.ts", `defun f(x) {`))
	assert.Equal(t, ExitParse, exitCode(err))
	assert.True(t, errors.Is(err, core.ErrParse))

	_, _, err = execute(t, "", "run", write(t, dir, "missing.ts", `get 100:missing`))
	assert.Equal(t, ExitRuntime, exitCode(err))
	assert.True(t, errors.Is(err, core.ErrTupleNotFound))

	_, _, err = execute(t, "", "run", write(t, dir, "notes.txt", `hello`))
	assert.Equal(t, ExitUsage, exitCode(err))

	_, _, err = execute(t, "", "run", "--queue", "-1", write(t, dir, "ok.ts", `set 100:x 1`))
	assert.Equal(t, ExitUsage, exitCode(err))

	// A parse error in one file means no file runs.
	state := filepath.Join(dir, "state.json")
	_, _, err = execute(t, "", "run", "--state-out", state,
		write(t, dir, "good.ts", `set 100:x 1`), filepath.Join(dir, "bad.ts"))
	assert.Equal(t, ExitParse, exitCode(err))
	_, err = os.Stat(state)
	assert.True(t, os.IsNotExist(err))
}

func TestRunStdio(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.json")

	in := `{"id":1,"op":"set","owner":101,"key":"odometry","value":{"atom":"on"}}
{"id":2,"op":"get","owner":101,"key":"odometry"}
`
	out, _, err := execute(t, in, "run", "--stdio", "--state-out", state)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	var r struct {
		ID     int             `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &r))
	assert.Equal(t, 2, r.ID)
	assert.Contains(t, string(r.Result), `"atom":"on"`)

	_, have := readState(t, state)[core.Ref{Owner: 101, Key: "odometry"}]
	assert.True(t, have)
}

func TestCheck(t *testing.T) {
	dir := t.TempDir()
	out, _, err := execute(t, "", "check", write(t, dir, "configure.ts", configure))
	require.NoError(t, err)

	var got []struct {
		Name        string   `json:"name"`
		Writes      []string `json:"writes"`
		Metas       []string `json:"metas"`
		MetaTargets []string `json:"metaTargets"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"100:x"}, got[0].Writes)
	assert.Equal(t, []string{"102:mi-x"}, got[0].Metas)
	assert.Equal(t, []string{"100:x"}, got[0].MetaTargets)

	_, _, err = execute(t, "", "check", write(t, dir, "bad.ts", `defun f(x) {`))
	assert.Equal(t, ExitParse, exitCode(err))
}

func TestGraph(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, "state.json")
	_, _, err := execute(t, "", "run", "--state-out", state, write(t, dir, "configure.ts", configure))
	require.NoError(t, err)

	out, _, err := execute(t, "", "graph", "--state", state, "--format", "mermaid")
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "-.->")

	out, _, err = execute(t, "", "graph", "--state", state, "--highlight", "102:mi-x")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "digraph G {"))
	assert.Contains(t, out, `filled,bold`)

	_, _, err = execute(t, "", "graph", "--state", state, "--format", "svg")
	assert.Equal(t, ExitUsage, exitCode(err))

	_, _, err = execute(t, "", "graph")
	assert.Equal(t, ExitUsage, exitCode(err))
}

func TestDoc(t *testing.T) {
	out, _, err := execute(t, "", "doc", "--css", "doc.css")
	require.NoError(t, err)
	assert.Contains(t, out, "<!DOCTYPE html>")
	assert.Contains(t, out, `href="doc.css"`)
	assert.Contains(t, out, "set_meta")
}
