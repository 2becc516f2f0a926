package tuplescript

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/match"

	"github.com/gorhill/cronexpr"
	"go.uber.org/zap"
)

type argKind int

const (
	argExpr argKind = iota
	argAddr
)

// builtin is an operator with a fixed number of arguments or, if
// variadic, with one argument or any number of arguments in a group.
type builtin struct {
	Name     string
	Aliases  []string
	Usage    string
	Doc      string
	Category string

	args     []argKind
	variadic bool
	fn       func(ev *evaluator, e *env, n *opNode) (core.Value, error)
}

func (b *builtin) arity() int {
	if b.variadic {
		return 1
	}
	return len(b.args)
}

var (
	builtins = make(map[string]*builtin, 64)

	atomOK           = core.Intern("ok")
	atomError        = core.Intern("error")
	atomTimeout      = core.Intern("timeout")
	atomOverflow     = core.Intern("overflow")
	atomUnsubscribed = core.Intern("unsubscribed")
)

func define(b *builtin) {
	builtins[b.Name] = b
	for _, a := range b.Aliases {
		builtins[a] = b
	}
}

func exprs(n int) []argKind {
	return make([]argKind, n)
}

// args evaluates all of an op's arguments, which must be expressions.
func (ev *evaluator) args(e *env, n *opNode) ([]core.Value, error) {
	acc := make([]core.Value, len(n.args))
	for i, a := range n.args {
		v, err := ev.eval(e, a)
		if err != nil {
			return nil, err
		}
		acc[i] = v
	}
	return acc, nil
}

func init() {
	for _, b := range []*builtin{
		// I/O

		{
			Name:     "echo",
			Usage:    "echo x | echo (x y ...)",
			Doc:      "Writes the text of each argument, without separators, to the task's output.",
			Category: "io",
			variadic: true,
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				var s strings.Builder
				for _, v := range vs {
					s.WriteString(v.String())
				}
				if _, err := ev.out.Write([]byte(s.String())); err != nil {
					return nil, err
				}
				return core.NilValue, nil
			},
		},
		{
			Name:     "newline",
			Usage:    "newline",
			Doc:      "Writes a newline to the task's output.",
			Category: "io",
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				_, err := ev.out.Write([]byte{'\n'})
				return core.NilValue, err
			},
		},
		{
			Name:     "str",
			Usage:    "str x | str (x y ...)",
			Doc:      "The text of a value, or the concatenated texts of several values.",
			Category: "io",
			variadic: true,
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				var s strings.Builder
				for _, v := range vs {
					s.WriteString(v.String())
				}
				return core.String(s.String()), nil
			},
		},

		// Arithmetic

		{
			Name:     "sum",
			Aliases:  []string{"plus", "+"},
			Usage:    "sum (x y ...)",
			Doc:      "Adds numbers.  The result is an integer if all arguments are integers.",
			Category: "arithmetic",
			variadic: true,
			fn:       arith(0, func(a, b int64) int64 { return a + b }, func(a, b float64) float64 { return a + b }),
		},
		{
			Name:     "prod",
			Aliases:  []string{"*"},
			Usage:    "prod (x y ...)",
			Doc:      "Multiplies numbers.  The result is an integer if all arguments are integers.",
			Category: "arithmetic",
			variadic: true,
			fn:       arith(1, func(a, b int64) int64 { return a * b }, func(a, b float64) float64 { return a * b }),
		},
		{
			Name:     "minus",
			Aliases:  []string{"-"},
			Usage:    "minus x | minus (x y ...)",
			Doc:      "Negates one number or subtracts the rest of the arguments from the first.",
			Category: "arithmetic",
			variadic: true,
			fn:       minus,
		},
		{
			Name:     "div",
			Usage:    "div x y",
			Doc:      "Divides.  Integer division if both are integers.  Division by zero is a TypeMismatch.",
			Category: "arithmetic",
			args:     exprs(2),
			fn:       div,
		},
		{
			Name:     "mod",
			Usage:    "mod x y",
			Doc:      "Integer remainder.",
			Category: "arithmetic",
			args:     exprs(2),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				a, err := core.AsInt(vs[0])
				if err != nil {
					return nil, err
				}
				b, err := core.AsInt(vs[1])
				if err != nil {
					return nil, err
				}
				if b == 0 {
					return nil, core.Errorf(core.TypeMismatch, "mod by zero")
				}
				return core.Int(a % b), nil
			},
		},

		// Comparison and logic

		{
			Name:     "eq",
			Aliases:  []string{"="},
			Usage:    "eq x y | eq(x, y)",
			Doc:      "True if both values have the same type and the same primitive value.  1 and 1.0 are not eq.",
			Category: "logic",
			args:     exprs(2),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				return core.Bool(core.Eq(vs[0], vs[1])), nil
			},
		},
		{
			Name:     "equal",
			Usage:    "equal x y",
			Doc:      "Structural equality.  An atom equals a string with its name, and numbers compare by value.",
			Category: "logic",
			args:     exprs(2),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				return core.Bool(core.Equal(vs[0], vs[1])), nil
			},
		},
		{
			Name:     "not",
			Usage:    "not b",
			Doc:      "Boolean negation.",
			Category: "logic",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				b, err := core.Truthy(vs[0])
				if err != nil {
					return nil, err
				}
				return core.Bool(!b), nil
			},
		},
		{
			Name:     "and",
			Usage:    "and (b1 b2 ...)",
			Doc:      "True if every argument is true.  Stops at the first false argument.",
			Category: "logic",
			variadic: true,
			fn:       logic(false),
		},
		{
			Name:     "or",
			Usage:    "or (b1 b2 ...)",
			Doc:      "True if any argument is true.  Stops at the first true argument.",
			Category: "logic",
			variadic: true,
			fn:       logic(true),
		},
		{
			Name:     "lt",
			Usage:    "lt x y",
			Doc:      "Less than for numbers or for strings.",
			Category: "logic",
			args:     exprs(2),
			fn:       compare(func(c int) bool { return c < 0 }),
		},
		{
			Name:     "gt",
			Usage:    "gt x y",
			Doc:      "Greater than for numbers or for strings.",
			Category: "logic",
			args:     exprs(2),
			fn:       compare(func(c int) bool { return 0 < c }),
		},

		// Lists

		{
			Name:     "list",
			Usage:    "list (x y ...)",
			Doc:      "Makes a list.  \"[x y ...]\" does the same.",
			Category: "lists",
			variadic: true,
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				return core.List(vs), nil
			},
		},
		{
			Name:     "cons",
			Usage:    "cons x l",
			Doc:      "A new list with x in front of the elements of l.",
			Category: "lists",
			args:     exprs(2),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				l, err := asList(vs[1])
				if err != nil {
					return nil, err
				}
				acc := make(core.List, 0, len(l)+1)
				acc = append(acc, vs[0])
				return append(acc, l...), nil
			},
		},
		{
			Name:     "first",
			Usage:    "first l",
			Doc:      "The first element of a list or nil if the list is empty.",
			Category: "lists",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				l, err := asList(vs[0])
				if err != nil {
					return nil, err
				}
				if len(l) == 0 {
					return core.NilValue, nil
				}
				return l[0], nil
			},
		},
		{
			Name:     "rest",
			Usage:    "rest l",
			Doc:      "All but the first element of a list.",
			Category: "lists",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				l, err := asList(vs[0])
				if err != nil {
					return nil, err
				}
				if len(l) == 0 {
					return core.List{}, nil
				}
				return l[1:], nil
			},
		},
		{
			Name:     "len",
			Usage:    "len x",
			Doc:      "The length of a list, a string, or a view.",
			Category: "lists",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				switch x := vs[0].(type) {
				case core.List:
					return core.Int(len(x)), nil
				case core.String:
					return core.Int(len(x)), nil
				case *core.View:
					return core.Int(x.Len()), nil
				}
				return nil, core.Errorf(core.TypeMismatch, "len of a %s", vs[0].Kind())
			},
		},

		// Tuples

		{
			Name:     "set",
			Usage:    "set owner:key x",
			Doc:      "Writes a value.  Returns the value.",
			Category: "tuples",
			args:     []argKind{argAddr, argExpr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				owner, key, err := ev.addr(e, n.args[0].(*address))
				if err != nil {
					return nil, err
				}
				v, err := ev.eval(e, n.args[1])
				if err != nil {
					return nil, err
				}
				if _, err = ev.space.Set(owner, key, storable(v)); err != nil {
					return nil, err
				}
				return v, nil
			},
		},
		{
			Name:     "set_meta",
			Usage:    "set_meta owner:key targetOwner:targetKey",
			Doc:      "Makes owner:key a meta tuple that refers to the target.",
			Category: "tuples",
			args:     []argKind{argAddr, argAddr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				owner, key, err := ev.addr(e, n.args[0].(*address))
				if err != nil {
					return nil, err
				}
				towner, tkey, err := ev.addr(e, n.args[1].(*address))
				if err != nil {
					return nil, err
				}
				_, err = ev.space.SetMeta(owner, key, core.Ref{Owner: towner, Key: tkey})
				return core.NilValue, err
			},
		},
		{
			Name:     "declare_meta",
			Usage:    "declare_meta owner:key",
			Doc:      "Makes owner:key an unbound meta tuple unless it's already a meta tuple.",
			Category: "tuples",
			args:     []argKind{argAddr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				owner, key, err := ev.addr(e, n.args[0].(*address))
				if err != nil {
					return nil, err
				}
				_, err = ev.space.DeclareMeta(owner, key)
				return core.NilValue, err
			},
		},
		{
			Name:     "append",
			Usage:    "append owner:key x",
			Doc:      "Appends the text of x to a string tuple or x itself to a list tuple.",
			Category: "tuples",
			args:     []argKind{argAddr, argExpr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				owner, key, err := ev.addr(e, n.args[0].(*address))
				if err != nil {
					return nil, err
				}
				v, err := ev.eval(e, n.args[1])
				if err != nil {
					return nil, err
				}
				t, err := ev.space.Append(owner, key, storable(v))
				if err != nil {
					return nil, err
				}
				return t.Value, nil
			},
		},
		{
			Name:     "delete",
			Usage:    "delete owner:key",
			Doc:      "Removes a tuple.  Returns true if there was one.",
			Category: "tuples",
			args:     []argKind{argAddr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				owner, key, err := ev.addr(e, n.args[0].(*address))
				if err != nil {
					return nil, err
				}
				deleted, err := ev.space.Delete(owner, key)
				if err != nil {
					return nil, err
				}
				return core.Bool(deleted), nil
			},
		},
		{
			Name:     "get",
			Usage:    "get owner:key | %owner:key",
			Doc:      "The value of a tuple after resolving meta tuples.",
			Category: "tuples",
			args:     []argKind{argAddr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				return ev.get(e, n.args[0].(*address))
			},
		},

		// Tuple accessors

		accessor(".owner", "The owner of a tuple.", func(ev *evaluator, t *core.Tuple) (core.Value, error) {
			return core.Int(t.Owner), nil
		}),
		accessor(".key", "The key of a tuple.", func(ev *evaluator, t *core.Tuple) (core.Value, error) {
			return core.String(t.Key), nil
		}),
		accessor(".data", "The value of a tuple.  A meta tuple is resolved.", func(ev *evaluator, t *core.Tuple) (core.Value, error) {
			if !t.IsMeta {
				return t.Payload(), nil
			}
			// Follow the ref the tuple had when it was captured.
			if t.Meta == nil {
				return nil, core.Errorf(core.TupleNotFound, "%s is an unbound meta tuple", t.Ref())
			}
			r, err := ev.space.Resolve(*t.Meta)
			if err != nil {
				return nil, err
			}
			return r.Payload(), nil
		}),
		accessor(".mimetype", "The mimetype of a tuple.", func(ev *evaluator, t *core.Tuple) (core.Value, error) {
			return core.String(t.Mimetype), nil
		}),
		accessor(".time", "When the tuple was written (Unix seconds).", func(ev *evaluator, t *core.Tuple) (core.Value, error) {
			return unixSeconds(t.Timestamp), nil
		}),

		// Subscriptions

		{
			Name:     "subscribe",
			Usage:    "subscribe owner:pattern",
			Doc:      "Starts a subscription.  Owner -1 matches every owner, \"*\" matches any key segment, and \"?x\" segments are variables: each matches any one segment, but a repeated variable must match the same segment every time.",
			Category: "subscriptions",
			args:     []argKind{argAddr},
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				p, err := ev.pattern(e, n.args[0].(*address))
				if err != nil {
					return nil, err
				}
				id, err := ev.host.Subscribe(p)
				if err != nil {
					return nil, err
				}
				return &core.Opaque{Tag: "subscription " + p.String(), X: id}, nil
			},
		},
		{
			Name:     "unsubscribe",
			Usage:    "unsubscribe h",
			Doc:      "Ends a subscription.",
			Category: "subscriptions",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				id, err := ev.handle(e, n.args[0])
				if err != nil {
					return nil, err
				}
				return core.NilValue, ev.host.Unsubscribe(id)
			},
		},
		{
			Name:     "poll",
			Usage:    "poll h",
			Doc:      "The next event of a subscription as a tuple, 'overflow if events were dropped, or nil.",
			Category: "subscriptions",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				id, err := ev.handle(e, n.args[0])
				if err != nil {
					return nil, err
				}
				x, ok, err := ev.host.Poll(id)
				if err != nil {
					if err == core.Unsubscribed {
						return atomUnsubscribed, nil
					}
					return nil, err
				}
				if !ok {
					return core.NilValue, nil
				}
				return ev.event(x), nil
			},
		},
		{
			Name:     "await",
			Usage:    "await h seconds",
			Doc:      "Waits for the next event of a subscription.  Returns the tuple, 'overflow, or 'timeout.  A non-positive timeout waits forever.",
			Category: "subscriptions",
			args:     exprs(2),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				id, err := ev.handle(e, n.args[0])
				if err != nil {
					return nil, err
				}
				secs, err := ev.eval(e, n.args[1])
				if err != nil {
					return nil, err
				}
				f, err := core.AsFloat(secs)
				if err != nil {
					return nil, err
				}
				x, err := ev.host.Await(ev.ctx, id, core.Seconds(f))
				switch {
				case err == core.Timeout:
					return atomTimeout, nil
				case err == core.Unsubscribed:
					return atomUnsubscribed, nil
				case err != nil:
					return nil, err
				}
				return ev.event(x), nil
			},
		},

		// Time and control

		{
			Name:     "sleep",
			Usage:    "sleep seconds",
			Doc:      "Suspends the task.  Fractional seconds are fine.  Other tasks keep running.",
			Category: "control",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				f, err := core.AsFloat(vs[0])
				if err != nil {
					return nil, err
				}
				return core.NilValue, ev.host.Sleep(ev.ctx, core.Seconds(f))
			},
		},
		{
			Name:     "exit",
			Usage:    "exit",
			Doc:      "Ends the task, which releases its subscriptions.",
			Category: "control",
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				return nil, core.Exit
			},
		},
		{
			Name:     "now",
			Usage:    "now",
			Doc:      "The current time in Unix seconds.",
			Category: "control",
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				return unixSeconds(time.Now()), nil
			},
		},
		{
			Name:     "cron_next",
			Usage:    "cron_next \"expr\"",
			Doc:      "Seconds until the next time given by the cron expression.  Handy with sleep.",
			Category: "control",
			args:     exprs(1),
			fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
				vs, err := ev.args(e, n)
				if err != nil {
					return nil, err
				}
				s, is := vs[0].(core.String)
				if !is {
					return nil, core.Errorf(core.TypeMismatch, "cron expression is a %s", vs[0].Kind())
				}
				x, err := cronexpr.Parse(string(s))
				if err != nil {
					return nil, core.Errorf(core.TypeMismatch, "cron expression %q: %s", s, err)
				}
				now := time.Now()
				next := x.Next(now)
				if next.IsZero() {
					return core.NilValue, nil
				}
				return core.Float(next.Sub(now).Seconds()), nil
			},
		},
	} {
		define(b)
	}
}

func accessor(name, doc string, f func(ev *evaluator, t *core.Tuple) (core.Value, error)) *builtin {
	return &builtin{
		Name:     name,
		Usage:    name + " t",
		Doc:      doc,
		Category: "tuples",
		args:     exprs(1),
		fn: func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
			vs, err := ev.args(e, n)
			if err != nil {
				return nil, err
			}
			t, is := vs[0].(*core.TupleValue)
			if !is || t.T == nil {
				return nil, core.Errorf(core.TypeMismatch, "%s of a %s", name, vs[0].Kind())
			}
			return f(ev, t.T)
		},
	}
}

func arith(unit int64, fi func(a, b int64) int64, ff func(a, b float64) float64) func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
	return func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
		vs, err := ev.args(e, n)
		if err != nil {
			return nil, err
		}
		var (
			ai      = unit
			af      = float64(unit)
			isFloat = false
		)
		for _, v := range vs {
			switch x := v.(type) {
			case core.Int:
				ai = fi(ai, int64(x))
				af = ff(af, float64(x))
			case core.Float:
				isFloat = true
				af = ff(af, float64(x))
			default:
				return nil, core.Errorf(core.TypeMismatch, "%s (%s) is not a number", v.Kind(), v.Repr())
			}
		}
		if isFloat {
			return core.Float(af), nil
		}
		return core.Int(ai), nil
	}
}

func minus(ev *evaluator, e *env, n *opNode) (core.Value, error) {
	vs, err := ev.args(e, n)
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, core.Errorf(core.TypeMismatch, "minus needs an argument")
	}
	var (
		ai      int64
		af      float64
		isFloat bool
	)
	for i, v := range vs {
		var (
			x int64
			y float64
		)
		switch n := v.(type) {
		case core.Int:
			x, y = int64(n), float64(n)
		case core.Float:
			isFloat = true
			y = float64(n)
		default:
			return nil, core.Errorf(core.TypeMismatch, "%s (%s) is not a number", v.Kind(), v.Repr())
		}
		if i == 0 && 1 < len(vs) {
			ai, af = x, y
			continue
		}
		ai -= x
		af -= y
	}
	if isFloat {
		return core.Float(af), nil
	}
	return core.Int(ai), nil
}

func div(ev *evaluator, e *env, n *opNode) (core.Value, error) {
	vs, err := ev.args(e, n)
	if err != nil {
		return nil, err
	}
	a, err := core.AsFloat(vs[0])
	if err != nil {
		return nil, err
	}
	b, err := core.AsFloat(vs[1])
	if err != nil {
		return nil, err
	}
	if b == 0 {
		return nil, core.Errorf(core.TypeMismatch, "division by zero")
	}
	x, isInt := vs[0].(core.Int)
	y, isInt2 := vs[1].(core.Int)
	if isInt && isInt2 {
		return x / y, nil
	}
	return core.Float(a / b), nil
}

func logic(stopOn bool) func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
	return func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
		for _, a := range n.args {
			v, err := ev.eval(e, a)
			if err != nil {
				return nil, err
			}
			b, err := core.Truthy(v)
			if err != nil {
				return nil, err
			}
			if b == stopOn {
				return core.Bool(stopOn), nil
			}
		}
		return core.Bool(!stopOn), nil
	}
}

func compare(f func(c int) bool) func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
	return func(ev *evaluator, e *env, n *opNode) (core.Value, error) {
		vs, err := ev.args(e, n)
		if err != nil {
			return nil, err
		}
		if s, is := vs[0].(core.String); is {
			t, is := vs[1].(core.String)
			if !is {
				return nil, core.Errorf(core.TypeMismatch, "can't compare a string with a %s", vs[1].Kind())
			}
			return core.Bool(f(strings.Compare(string(s), string(t)))), nil
		}
		a, err := core.AsFloat(vs[0])
		if err != nil {
			return nil, err
		}
		b, err := core.AsFloat(vs[1])
		if err != nil {
			return nil, err
		}
		c := 0
		switch {
		case a < b:
			c = -1
		case b < a:
			c = 1
		}
		return core.Bool(f(c)), nil
	}
}

func asList(v core.Value) (core.List, error) {
	switch x := v.(type) {
	case core.List:
		return x, nil
	case core.Nil:
		return nil, nil
	}
	return nil, core.Errorf(core.TypeMismatch, "%s (%s) is not a list", v.Kind(), v.Repr())
}

// storable converts values that can't live in the store.  A tuple
// becomes its payload, and a view becomes a list of tuple payloads.
func storable(v core.Value) core.Value {
	switch x := v.(type) {
	case *core.TupleValue:
		if x.T == nil {
			return core.NilValue
		}
		return x.T.Payload()
	case *core.View:
		acc := make(core.List, x.Len())
		for i := range acc {
			acc[i] = x.Tuple(i).Payload()
		}
		return acc
	}
	return v
}

func unixSeconds(t time.Time) core.Value {
	ns := t.UnixNano()
	return core.Float(math.Round(float64(ns)/1e3) / 1e6)
}

// BuiltinDoc describes a builtin or a special form for documentation.
type BuiltinDoc struct {
	Name     string   `json:"name"`
	Aliases  []string `json:"aliases,omitempty"`
	Usage    string   `json:"usage"`
	Doc      string   `json:"doc"`
	Category string   `json:"category"`
}

// Builtins returns documentation for all special forms and builtins
// ordered by category and name.
func Builtins() []BuiltinDoc {
	acc := make([]BuiltinDoc, 0, len(builtins)+len(forms))
	acc = append(acc, forms...)
	seen := make(map[*builtin]bool, len(builtins))
	for _, b := range builtins {
		if seen[b] {
			continue
		}
		seen[b] = true
		acc = append(acc, BuiltinDoc{
			Name:     b.Name,
			Aliases:  b.Aliases,
			Usage:    b.Usage,
			Doc:      b.Doc,
			Category: b.Category,
		})
	}
	sort.SliceStable(acc, func(i, j int) bool {
		if acc[i].Category != acc[j].Category {
			return acc[i].Category < acc[j].Category
		}
		return acc[i].Name < acc[j].Name
	})
	return acc
}

// forms are the constructs the parser handles itself.
var forms = []BuiltinDoc{
	{Name: "let", Usage: "let name x", Doc: "Assigns to the innermost variable with that name or else to a global.", Category: "bindings"},
	{Name: "local", Usage: "local name x", Doc: "Binds a variable in the current frame.", Category: "bindings"},
	{Name: "defun", Usage: "defun name(params) { body }", Doc: "Defines a recursive, lexically scoped function.  A call's value is the value of the body's last expression.", Category: "bindings"},
	{Name: "lambda", Usage: "lambda (params) { body }", Doc: "A function value.", Category: "bindings"},
	{Name: "call", Usage: "call f (args)", Doc: "Applies a function value.", Category: "bindings"},
	{Name: "if", Usage: "if b { ... } else { ... }", Doc: "The condition must be a boolean.  \"else if\" chains are fine.", Category: "control"},
	{Name: "for", Usage: "for x in seq { ... }", Doc: "Iterates over a list or a view.  A view (@pattern) is captured once when the loop starts.", Category: "control"},
	{Name: "continue", Usage: "continue n", Doc: "Leaves the n-th enclosing block (0 is the innermost).  In a loop body, that means the next iteration.", Category: "control"},
	{Name: "again", Usage: "again n", Doc: "Restarts the n-th enclosing block (0 is the innermost).", Category: "control"},
	{Name: "try", Usage: "try { ... }", Doc: "Returns ('ok value) or ('error 'Kind \"message\") instead of failing the task.", Category: "control"},
	{Name: "$", Usage: "$key | $owner:key", Doc: "The resolved value of a tuple as text.  Without an owner, the task's own owner (the kernel id) is used, except that $kernel.name and $kernel.id come from the read-only kernel record.", Category: "tuples"},
	{Name: "@", Usage: "@owner:pattern", Doc: "A view: the matching tuples ordered by owner and key at this moment.", Category: "tuples"},
}

// pattern evaluates an address as a pattern.
func (ev *evaluator) pattern(e *env, a *address) (match.Pattern, error) {
	owner, key, err := ev.addr(e, a)
	if err != nil {
		return match.Pattern{}, err
	}
	p, err := match.NewPattern(owner, key)
	if err != nil {
		return match.Pattern{}, core.Errorf(core.InvalidKey, "%d:%s: %s", owner, key, err)
	}
	return p, nil
}

func (ev *evaluator) handle(e *env, n node) (core.SubID, error) {
	v, err := ev.eval(e, n)
	if err != nil {
		return 0, err
	}
	if o, is := v.(*core.Opaque); is {
		if id, is := o.X.(core.SubID); is {
			return id, nil
		}
	}
	return 0, core.Errorf(core.TypeMismatch, "%s is not a subscription", v.Repr())
}

// event converts a subscription event into a script value.
func (ev *evaluator) event(x core.Event) core.Value {
	if x.Kind == core.EventOverflow {
		ev.logger.Warn("subscription overflow", zap.Int("dropped", x.Dropped))
		return atomOverflow
	}
	t := x.Tuple
	if x.Kind == core.EventDelete {
		t = t.Copy()
		t.IsMeta, t.Meta = false, nil
		t.Value = core.NilValue
	}
	return &core.TupleValue{T: t}
}

// get evaluates an address and returns the resolved value.
func (ev *evaluator) get(e *env, a *address) (core.Value, error) {
	owner, key, err := ev.addr(e, a)
	if err != nil {
		return nil, err
	}
	t, err := ev.space.Get(owner, key)
	if err != nil {
		return nil, err
	}
	return t.Payload(), nil
}
