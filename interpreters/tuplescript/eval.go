package tuplescript

import (
	"context"
	"errors"
	"io"

	"github.com/Comcast/tuplescript/core"

	"go.uber.org/zap"
)

// DefaultMaxCallDepth bounds the nesting of function calls.
const DefaultMaxCallDepth = 10000

// jump is "continue n" or "again n" on its way out to its block.
type jump struct {
	again  bool
	levels int
	p      core.Pos
}

func (j *jump) Error() string {
	if j.again {
		return "again outside of a block"
	}
	return "continue outside of a block"
}

func (j *jump) badJump() error {
	return core.Errorf(core.BadJump, "%s", j.Error()).At(j.p)
}

type evaluator struct {
	ctx    context.Context
	host   core.Host
	space  core.Space
	out    io.Writer
	logger *zap.Logger

	// self is the task's own owner.
	self int

	// kernel is the read-only kernel record bound as "kernel" in
	// the top-level environment.
	kernel *core.Opaque

	depth    int
	maxDepth int
}

// eval evaluates a node.  Errors that don't know where they
// happened learn it here.
func (ev *evaluator) eval(e *env, n node) (core.Value, error) {
	v, err := ev.eval1(e, n)
	if err != nil {
		return nil, core.WithPos(err, n.pos())
	}
	if v == nil {
		v = core.NilValue
	}
	return v, nil
}

func (ev *evaluator) eval1(e *env, n node) (core.Value, error) {
	switch x := n.(type) {
	case *literal:
		return x.v, nil

	case *listLit:
		acc := make(core.List, len(x.elems))
		for i, y := range x.elems {
			v, err := ev.eval(e, y)
			if err != nil {
				return nil, err
			}
			acc[i] = v
		}
		return acc, nil

	case *varRef:
		if v, have := e.lookup(x.name); have {
			return v, nil
		}
		if c, have := e.lookupFunc(x.name); have {
			return c.val, nil
		}
		return nil, core.Errorf(core.UndefinedVariable, "%s", x.name)

	case *funcRef:
		if c, have := e.lookupFunc(x.name); have {
			return c.val, nil
		}
		if v, have := e.lookup(x.name); have {
			return v, nil
		}
		return nil, core.Errorf(core.UndefinedFunction, "%s", x.name)

	case *block:
		return ev.block(e, x)

	case *assign:
		v, err := ev.eval(e, x.x)
		if err != nil {
			return nil, err
		}
		if x.local {
			err = e.bind(x.name, v)
		} else {
			err = e.set(x.name, v)
		}
		if err != nil {
			return nil, err
		}
		return v, nil

	case *defun:
		c := newClosure(x.name, x.params, x.body, e)
		e.defineFunc(x.name, c)
		return c.val, nil

	case *lambda:
		return newClosure("", x.params, x.body, e).val, nil

	case *callNamed:
		c, have := e.lookupFunc(x.name)
		if !have {
			v, isVar := e.lookup(x.name)
			if c, have = asClosure(v); !isVar || !have {
				return nil, core.Errorf(core.UndefinedFunction, "%s", x.name)
			}
		}
		args, err := ev.values(e, x.args)
		if err != nil {
			return nil, err
		}
		return ev.apply(c, args)

	case *callValue:
		f, err := ev.eval(e, x.f)
		if err != nil {
			return nil, err
		}
		c, is := asClosure(f)
		if !is {
			return nil, core.Errorf(core.TypeMismatch, "can't call %s", f.Repr())
		}
		args, err := ev.values(e, x.args)
		if err != nil {
			return nil, err
		}
		return ev.apply(c, args)

	case *ifNode:
		v, err := ev.eval(e, x.cond)
		if err != nil {
			return nil, err
		}
		b, err := core.Truthy(v)
		if err != nil {
			return nil, core.Errorf(core.TypeMismatch, "if condition is a %s (%s), not a bool", v.Kind(), v.Repr()).At(x.cond.pos())
		}
		if b {
			return ev.block(e, x.then)
		}
		if x.els != nil {
			return ev.eval(e, x.els)
		}
		return core.NilValue, nil

	case *forNode:
		return ev.loop(e, x)

	case *jumpNode:
		v, err := ev.eval(e, x.levels)
		if err != nil {
			return nil, err
		}
		levels, err := core.AsInt(v)
		if err != nil {
			return nil, err
		}
		if levels < 0 {
			return nil, core.Errorf(core.BadJump, "negative block level %d", levels)
		}
		return nil, &jump{again: x.again, levels: int(levels), p: x.pos()}

	case *tryNode:
		return ev.try(e, x)

	case *opNode:
		return x.op.fn(ev, e, x)

	case *interp:
		if v, have := ev.kernelField(x.addr); have {
			return core.String(v.String()), nil
		}
		v, err := ev.get(e, x.addr)
		if err != nil {
			return nil, err
		}
		return core.String(v.String()), nil

	case *remote:
		if v, have := ev.kernelField(x.addr); have {
			return v, nil
		}
		return ev.get(e, x.addr)

	case *viewNode:
		p, err := ev.pattern(e, x.addr)
		if err != nil {
			return nil, err
		}
		return ev.space.Snapshot(p), nil

	case *address:
		return nil, core.Errorf(core.TypeMismatch, "an address isn't a value")
	}

	return nil, core.Errorf(core.TypeMismatch, "can't evaluate %T", n)
}

func (ev *evaluator) values(e *env, ns []node) ([]core.Value, error) {
	acc := make([]core.Value, len(ns))
	for i, n := range ns {
		v, err := ev.eval(e, n)
		if err != nil {
			return nil, err
		}
		acc[i] = v
	}
	return acc, nil
}

// block evaluates a block's expressions in order and returns the
// value of the last one.  The block is the target of jumps that
// have no levels left to climb.
func (ev *evaluator) block(e *env, b *block) (core.Value, error) {
restart:
	var v core.Value = core.NilValue
	for _, n := range b.body {
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
		x, err := ev.eval(e, n)
		if err != nil {
			j, is := err.(*jump)
			if !is {
				return nil, err
			}
			if 0 < j.levels {
				return nil, &jump{again: j.again, levels: j.levels - 1, p: j.p}
			}
			if j.again {
				goto restart
			}
			return core.NilValue, nil
		}
		v = x
	}
	return v, nil
}

func (ev *evaluator) apply(c *closure, args []core.Value) (core.Value, error) {
	if len(args) != len(c.params) {
		return nil, core.Errorf(core.TypeMismatch, "%s takes %d arguments, not %d", c.val.Tag, len(c.params), len(args))
	}
	if ev.maxDepth <= ev.depth {
		return nil, core.Errorf(core.RecursionLimit, "more than %d nested calls", ev.maxDepth)
	}
	ev.depth++
	defer func() { ev.depth-- }()

	fe := newEnv(c.env)
	for i, name := range c.params {
		fe.vars[name] = args[i]
	}
	v, err := ev.block(fe, c.body)
	if j, is := err.(*jump); is {
		return nil, j.badJump()
	}
	return v, err
}

// loop runs a "for".  A view is already a snapshot, so later
// changes to the store don't affect the iteration.
func (ev *evaluator) loop(e *env, x *forNode) (core.Value, error) {
	seq, err := ev.eval(e, x.seq)
	if err != nil {
		return nil, err
	}

	var (
		n    int
		elem func(i int) core.Value
	)
	switch s := seq.(type) {
	case core.List:
		n, elem = len(s), func(i int) core.Value { return s[i] }
	case *core.View:
		n, elem = s.Len(), func(i int) core.Value { return &core.TupleValue{T: s.Tuple(i)} }
	case core.Nil:
	default:
		return nil, core.Errorf(core.TypeMismatch, "can't iterate over a %s", seq.Kind()).At(x.seq.pos())
	}

	for i := 0; i < n; i++ {
		if err := e.bind(x.name, elem(i)); err != nil {
			return nil, err
		}
		if _, err := ev.block(e, x.body); err != nil {
			return nil, err
		}
	}
	return core.NilValue, nil
}

var (
	atomErrorKind = core.Intern("Error")
)

// try turns errors into values.  Exit, cancellation, and jumps
// still propagate.
func (ev *evaluator) try(e *env, x *tryNode) (core.Value, error) {
	v, err := ev.block(e, x.body)
	if err == nil {
		return core.List{atomOK, v}, nil
	}
	if _, is := err.(*jump); is {
		return nil, err
	}
	if errors.Is(err, core.Exit) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil, err
	}

	kind, msg := atomErrorKind, err.Error()
	var ce *core.Error
	if errors.As(err, &ce) {
		kind, msg = core.Intern(string(ce.Kind)), ce.Msg
	}
	ev.logger.Debug("try caught", zap.Error(err))
	return core.List{atomError, kind, core.String(msg)}, nil
}

func kernelRecord(k core.Kernel) *core.Opaque {
	return &core.Opaque{Tag: "kernel " + k.Name, X: k}
}

// kernelField answers an owner-less "kernel.name" or "kernel.id"
// from the kernel record.
func (ev *evaluator) kernelField(a *address) (core.Value, bool) {
	if a.owner != nil || a.keyExpr != nil || ev.kernel == nil {
		return nil, false
	}
	k := ev.kernel.X.(core.Kernel)
	switch a.key {
	case "kernel.name":
		return core.String(k.Name), true
	case "kernel.id":
		return core.Int(k.ID), true
	}
	return nil, false
}

// addr evaluates an address.
func (ev *evaluator) addr(e *env, a *address) (int, string, error) {
	owner := ev.self
	if a.owner != nil {
		v, err := ev.eval(e, a.owner)
		if err != nil {
			return 0, "", err
		}
		n, err := core.AsInt(v)
		if err != nil {
			return 0, "", core.Errorf(core.TypeMismatch, "owner %s is not an integer", v.Repr())
		}
		owner = int(n)
	}
	key := a.key
	if a.keyExpr != nil {
		v, err := ev.eval(e, a.keyExpr)
		if err != nil {
			return 0, "", err
		}
		key = v.String()
	}
	return owner, key, nil
}
