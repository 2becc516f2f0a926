package goja

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/util/testutil"
)

type host = testutil.Host

func newHost() *host {
	return testutil.NewHost()
}

func run(t *testing.T, i *Interpreter, h *host, code string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	p, err := i.Compile(ctx, "test.js", []byte(code))
	if err != nil {
		t.Fatal(err)
	}
	return i.Exec(ctx, h, p)
}

func get(t *testing.T, h *host, owner int, key string) core.Value {
	return h.Get(t, owner, key)
}

func TestStore(t *testing.T) {
	h := newHost()
	err := run(t, NewInterpreter(), h, `
_.set(1, "x", 40);
_.set(1, "y", _.get(1, "x") + 2);
_.set(1, "atom", {atom: "on"});
_.set(1, "list", [1, "two", 3.5]);
_.setMeta(2, "alias", 1, "y");
_.set(1, "viaAlias", _.get(2, "alias"));
_.set(1, "n", _.view(-1, "*").length);
_.set(1, "s", "a");
_.append(1, "s", "b");
_.set(1, "gone", 0);
_.set(1, "deleted", _.del(1, "gone"));
_.set(1, "me", _.kernel.name);
`)
	if err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		key  string
		want core.Value
	}{
		{"y", core.Int(42)},
		{"atom", core.Intern("on")},
		{"list", core.List{core.Int(1), core.String("two"), core.Float(3.5)}},
		{"viaAlias", core.Int(42)},
		{"s", core.String("ab")},
		{"deleted", core.True},
		{"me", core.String("k1")},
	} {
		if got := get(t, h, 1, tc.key); !core.Equal(got, tc.want) {
			t.Fatalf("%s: %s != %s", tc.key, got.Repr(), tc.want.Repr())
		}
	}

	// x, y, atom, list, and alias existed at the time.
	if got := get(t, h, 1, "n"); !core.Eq(got, core.Int(5)) {
		t.Fatal(got)
	}
}

func TestView(t *testing.T) {
	h := newHost()
	h.Store.Set(101, "components.odometry.state", core.Intern("on"))
	h.Store.Set(102, "components.laser.state", core.Intern("off"))
	err := run(t, NewInterpreter(), h, `
var acc = [];
var v = _.view(-1, "components.*.state");
for (var i = 0; i < v.length; i++) {
    acc.push(v[i].owner + ":" + v[i].key + "=" + v[i].value.atom);
}
_.set(1, "r", acc.join(","));
`)
	if err != nil {
		t.Fatal(err)
	}
	want := "101:components.odometry.state=on,102:components.laser.state=off"
	if got := get(t, h, 1, "r"); got.String() != want {
		t.Fatal(got)
	}
}

func TestEcho(t *testing.T) {
	h := newHost()
	if err := run(t, NewInterpreter(), h, `_.echo("n=", 3, " ", {atom: "x"}, "\n");`); err != nil {
		t.Fatal(err)
	}
	if got := h.Out.String(); got != "n=3 x\n" {
		t.Fatalf("%q", got)
	}
}

func TestExit(t *testing.T) {
	h := newHost()
	err := run(t, NewInterpreter(), h, `
_.set(1, "before", true);
try { _.exit(); } catch (e) {}
_.set(1, "after", true);
`)
	if !errors.Is(err, core.Exit) {
		t.Fatal(err)
	}
	if _, have := h.Store.Lookup(1, "after"); have {
		t.Fatal("ran after exit")
	}
}

func TestHostErrors(t *testing.T) {
	h := newHost()
	err := run(t, NewInterpreter(), h, `_.get(1, "missing");`)
	if !errors.Is(err, core.ErrTupleNotFound) {
		t.Fatal(err)
	}

	// Scripts can catch them.
	err = run(t, NewInterpreter(), h, `
try {
    _.set(-5, "x", 1);
} catch (e) {
    _.set(1, "caught", e.kind);
}
`)
	if err != nil {
		t.Fatal(err)
	}
	if got := get(t, h, 1, "caught"); got.String() != string(core.InvalidKey) {
		t.Fatal(got)
	}
}

func TestScriptError(t *testing.T) {
	h := newHost()
	if err := run(t, NewInterpreter(), h, `likes + tacos;`); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestParseError(t *testing.T) {
	_, err := NewInterpreter().Compile(context.Background(), "bad.js", []byte(`function (`))
	if !errors.Is(err, core.ErrParse) {
		t.Fatal(err)
	}
}

func TestCancel(t *testing.T) {
	h := newHost()
	i := NewInterpreter()
	p, err := i.Compile(context.Background(), "loop.js", []byte(`for (;;) { _.sleep(0.01); }`))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err = i.Exec(ctx, h, p); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal(err)
	}

	// A busy loop is interrupted too.
	p, err = i.Compile(context.Background(), "busy.js", []byte(`for (;;) {}`))
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err = i.Exec(ctx, h, p); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal(err)
	}
}

func TestSubscriptions(t *testing.T) {
	h := newHost()
	err := run(t, NewInterpreter(), h, `
var s = _.subscribe(1, "x");
_.set(1, "x", 1);
_.set(1, "x", 2);
var a = _.poll(s);
var b = _.await(s, 1);
var c = _.await(s, 0.01);
_.unsubscribe(s);
var d = _.poll(s);
_.set(2, "r", [a.value, b.value, c, d]);
`)
	if err != nil {
		t.Fatal(err)
	}
	want := core.List{core.Int(1), core.Int(2), core.String("timeout"), core.String("unsubscribed")}
	if got := get(t, h, 2, "r"); !core.Equal(got, want) {
		t.Fatal(got.Repr())
	}
}

func TestCronNext(t *testing.T) {
	h := newHost()
	if err := run(t, NewInterpreter(), h, `_.set(1, "r", _.cronNext("* * * * * * *"));`); err != nil {
		t.Fatal(err)
	}
	f, err := core.AsFloat(get(t, h, 1, "r"))
	if err != nil {
		t.Fatal(err)
	}
	if f <= 0 || 1 < f {
		t.Fatal(f)
	}

	if err := run(t, NewInterpreter(), h, `_.cronNext("bad");`); err == nil {
		t.Fatal("didn't protest")
	}
}

func TestRequire(t *testing.T) {
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{
		"foo": `
function foo() {
  var acc = [];
  for (var i = 0; i < 10; i++) {
      acc.push(i);
  }
  return "chips";
}
`,
		"bar": `
function bar() { return "queso"; }
`,
	})

	h := newHost()
	err := run(t, i, h, `
require("foo");
require("bar");
_.set(1, "likes", foo() + " and " + bar());
`)
	if err != nil {
		t.Fatal(err)
	}
	if got := get(t, h, 1, "likes"); got.String() != "chips and queso" {
		t.Fatal(got)
	}
}

func TestRequireMissing(t *testing.T) {
	i := NewInterpreter()
	i.LibraryProvider = MakeMapLibraryProvider(map[string]string{})
	_, err := i.Compile(context.Background(), "x.js", []byte(`require("nope");`))
	if err == nil || !strings.Contains(err.Error(), "nope") {
		t.Fatal(err)
	}
}

func TestInlineRequires(t *testing.T) {
	provider := func(ctx context.Context, name string) (string, error) {
		return "var " + name + " = 1;", nil
	}
	got, err := InlineRequires(context.Background(), `var x = 0; require("a"); x++;`, provider)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "require") || !strings.Contains(got, "var a = 1;") || !strings.Contains(got, "x++") {
		t.Fatal(got)
	}
}
