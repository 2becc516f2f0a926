// Package goja runs coordination scripts written in ECMAScript
// against the same host surface that tuplescript programs see.
//
// A script is the body of a function.  Everything the host offers is
// at "_":
//
//	var h = _.subscribe(-1, "components.*.reqState");
//	for (;;) {
//	    var e = _.await(h, 10);
//	    if (e === "timeout") break;
//	    _.set(e.owner, e.key.replace("reqState", "state"), e.value);
//	}
package goja

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"
	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted by something other than its context.
	Interrupted = errors.New(InterruptedMessage)

	exitMessage = "exit"
)

// Interpreter implements core.Interpreter using Goja, which is a Go
// implementation of ECMAScript 5.1+.
//
// See https://github.com/dop251/goja.
type Interpreter struct {
	// LibraryProvider resolves the names given to top-level
	// require() calls.  If nil, DefaultLibraryProvider is used.
	LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// Program is a compiled script.
type Program struct {
	name string
	p    *goja.Program
}

func (p *Program) Name() string {
	return p.name
}

// ProvideLibrary resolves the library name into source code.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider makes a provider for names that are URLs
// with protocols "file", "http", and "https".  File names are
// relative to dir.  There currently is no additional control when
// using HTTP/HTTPS.
func MakeFileLibraryProvider(dir string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			filename := filepath.Clean(parts[1])
			if strings.HasPrefix(filename, "..") {
				return "", fmt.Errorf("library '%s' is outside of %s", name, dir)
			}
			bs, err := os.ReadFile(filepath.Join(dir, filename))
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequestWithContext(ctx, "GET", name, nil)
			if err != nil {
				return "", err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s %d", resp.Status, resp.StatusCode)
			}
			bs, err := io.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// Compile inlines top-level require() calls and then calls
// goja.Compile.
//
// This method can block if the interpreter's library provider blocks
// in order to obtain external libraries.
func (i *Interpreter) Compile(ctx context.Context, name string, src []byte) (core.Program, error) {
	code, err := InlineRequires(ctx, string(src), i.ProvideLibrary)
	if err != nil {
		return nil, core.WrapError(core.ParseError, err)
	}
	p, err := goja.Compile(name, wrapSrc(code), true)
	if err != nil {
		return nil, core.WrapError(core.ParseError, err)
	}
	return &Program{name: name, p: p}, nil
}

// Exec implements the Interpreter method of the same name.
//
// The following properties are available from the runtime at _:
//
//	kernel: {name, id} of the process.
//	set(o, k, v), get(o, k), setMeta(o, k, to, tk), declareMeta(o, k),
//	append(o, k, v), del(o, k), view(o, pattern): the store.
//	subscribe(o, pattern), poll(h), await(h, secs), unsubscribe(h).
//	sleep(secs), exit().
//	echo(x, ...), log(x), gensym(), esc(s), cronNext(expr).
//
// Tuples are objects with properties owner, key, value, meta, ref,
// mimetype, ts, and seq.  Atoms are {atom: NAME}.  A host error
// is thrown as {kind, message}.
func (i *Interpreter) Exec(ctx context.Context, h core.Host, p core.Program) error {
	prog, is := p.(*Program)
	if !is {
		return fmt.Errorf("Goja bad compilation: %T %#v", p, p)
	}

	o := goja.New()
	x := &runtime{
		ctx:    ctx,
		o:      o,
		h:      h,
		logger: h.Logger(),
	}
	o.Set("_", x.env())

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If Exec calls cancel() after RunProgram returns,
		// we'll never see this InterruptedMessage, which is
		// actually the behavior we want.
		o.Interrupt(InterruptedMessage)
	}()

	_, err := o.RunProgram(prog.p)
	cancel()

	if err == nil {
		return nil
	}
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if s, is := ie.Value().(string); is && s == exitMessage {
			return core.Exit
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return Interrupted
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		if m, is := ex.Value().Export().(map[string]interface{}); is {
			if kind, is := m["kind"].(string); is && kind != "" {
				msg, _ := m["message"].(string)
				return &core.Error{Kind: core.ErrorKind(kind), Msg: msg, Err: err}
			}
		}
	}
	return err
}

// runtime is the state behind "_".
type runtime struct {
	ctx    context.Context
	o      *goja.Runtime
	h      core.Host
	logger *zap.Logger
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

// fail throws a host error as {kind, message}.
func (x *runtime) fail(err error) {
	kind, ok := core.KindOf(err)
	if !ok {
		kind = "Error"
	}
	msg := err.Error()
	var ce *core.Error
	if errors.As(err, &ce) {
		msg = ce.Msg
	}
	protest(x.o, map[string]interface{}{
		"kind":    string(kind),
		"message": msg,
	})
}

func (x *runtime) value(v goja.Value) core.Value {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return core.NilValue
	}
	y, err := canonicalize(v.Export())
	if err != nil {
		x.fail(core.WrapError(core.TypeMismatch, err))
	}
	cv, err := core.FromJSON(y)
	if err != nil {
		x.fail(core.WrapError(core.TypeMismatch, err))
	}
	return cv
}

func (x *runtime) pattern(owner int, key string) match.Pattern {
	p, err := match.NewPattern(owner, key)
	if err != nil {
		x.fail(core.Errorf(core.InvalidKey, "%d:%s: %s", owner, key, err))
	}
	return p
}

// tupleJS renders a tuple as a plain object.
func tupleJS(t *core.Tuple) map[string]interface{} {
	m := map[string]interface{}{
		"owner":    t.Owner,
		"key":      t.Key,
		"meta":     t.IsMeta,
		"mimetype": t.Mimetype,
		"ts":       core.Timestamp(t.Timestamp),
		"seq":      t.Seq,
	}
	if t.IsMeta {
		if t.Meta != nil {
			m["ref"] = map[string]interface{}{"owner": t.Meta.Owner, "key": t.Meta.Key}
		}
	} else {
		m["value"] = core.ToJSON(t.Payload())
	}
	return m
}

// event renders a subscription event: a tuple object, or "overflow"
// for an overflow marker.  A delete has a null value and deleted
// set.
func (x *runtime) event(ev core.Event) interface{} {
	if ev.Kind == core.EventOverflow {
		x.logger.Warn("subscription overflow", zap.Int("dropped", ev.Dropped))
		return "overflow"
	}
	m := tupleJS(ev.Tuple)
	if ev.Kind == core.EventDelete {
		m["value"] = nil
		m["deleted"] = true
	}
	return m
}

func (x *runtime) env() map[string]interface{} {
	space := x.h.Space()
	k := x.h.Kernel()

	return map[string]interface{}{
		"kernel": map[string]interface{}{
			"name": k.Name,
			"id":   k.ID,
		},

		"set": func(owner int, key string, v goja.Value) interface{} {
			t, err := space.Set(owner, key, x.value(v))
			if err != nil {
				x.fail(err)
			}
			return tupleJS(t)
		},

		"get": func(owner int, key string) interface{} {
			t, err := space.Get(owner, key)
			if err != nil {
				x.fail(err)
			}
			return core.ToJSON(t.Payload())
		},

		"setMeta": func(owner int, key string, towner int, tkey string) interface{} {
			t, err := space.SetMeta(owner, key, core.Ref{Owner: towner, Key: tkey})
			if err != nil {
				x.fail(err)
			}
			return tupleJS(t)
		},

		"declareMeta": func(owner int, key string) interface{} {
			t, err := space.DeclareMeta(owner, key)
			if err != nil {
				x.fail(err)
			}
			return tupleJS(t)
		},

		"append": func(owner int, key string, v goja.Value) interface{} {
			t, err := space.Append(owner, key, x.value(v))
			if err != nil {
				x.fail(err)
			}
			return tupleJS(t)
		},

		"del": func(owner int, key string) bool {
			deleted, err := space.Delete(owner, key)
			if err != nil {
				x.fail(err)
			}
			return deleted
		},

		"view": func(owner int, pattern string) interface{} {
			v := space.Snapshot(x.pattern(owner, pattern))
			acc := make([]interface{}, v.Len())
			for i := range acc {
				acc[i] = tupleJS(v.Tuple(i))
			}
			return acc
		},

		"subscribe": func(owner int, pattern string) int64 {
			id, err := x.h.Subscribe(x.pattern(owner, pattern))
			if err != nil {
				x.fail(err)
			}
			return int64(id)
		},

		"poll": func(id int64) interface{} {
			ev, ok, err := x.h.Poll(core.SubID(id))
			if err != nil {
				if errors.Is(err, core.Unsubscribed) {
					return "unsubscribed"
				}
				x.fail(err)
			}
			if !ok {
				return nil
			}
			return x.event(ev)
		},

		"await": func(id int64, secs float64) interface{} {
			ev, err := x.h.Await(x.ctx, core.SubID(id), core.Seconds(secs))
			switch {
			case errors.Is(err, core.Timeout):
				return "timeout"
			case errors.Is(err, core.Unsubscribed):
				return "unsubscribed"
			case err != nil:
				x.fail(err)
			}
			return x.event(ev)
		},

		"unsubscribe": func(id int64) {
			if err := x.h.Unsubscribe(core.SubID(id)); err != nil {
				x.fail(err)
			}
		},

		"sleep": func(secs float64) {
			if err := x.h.Sleep(x.ctx, core.Seconds(secs)); err != nil {
				x.fail(err)
			}
		},

		"exit": func() {
			x.o.Interrupt(exitMessage)
		},

		"echo": func(args ...goja.Value) {
			var s strings.Builder
			for _, a := range args {
				s.WriteString(x.value(a).String())
			}
			if _, err := io.WriteString(x.h.Output(), s.String()); err != nil {
				x.fail(err)
			}
		},

		"log": func(v goja.Value) interface{} {
			js, err := json.Marshal(v.Export())
			if err != nil {
				x.logger.Info("goja.log", zap.String("unmarshalable", err.Error()))
			} else {
				x.logger.Info("goja.log", zap.ByteString("x", js))
			}
			return v
		},

		"gensym": func() interface{} {
			return core.Gensym(32)
		},

		"esc": func(s string) interface{} {
			return url.QueryEscape(s)
		},

		// cronNext returns the number of seconds until the
		// next time given by the cron expression.
		"cronNext": func(expr string) interface{} {
			c, err := cronexpr.Parse(expr)
			if err != nil {
				x.fail(core.Errorf(core.TypeMismatch, "cron expression %q: %s", expr, err))
			}
			now := time.Now()
			next := c.Next(now)
			if next.IsZero() {
				return nil
			}
			return next.Sub(now).Seconds()
		},
	}
}

// canonicalize is an abomination
func canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}
