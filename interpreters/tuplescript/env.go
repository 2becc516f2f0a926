package tuplescript

import (
	"github.com/Comcast/tuplescript/core"
)

// env is a frame of variable and function bindings.
type env struct {
	parent *env
	vars   map[string]core.Value
	funcs  map[string]*closure

	// fixed names can't be rebound in this frame.
	fixed map[string]bool
}

func newEnv(parent *env) *env {
	return &env{
		parent: parent,
		vars:   make(map[string]core.Value, 4),
	}
}

func (e *env) lookup(name string) (core.Value, bool) {
	for ; e != nil; e = e.parent {
		if v, have := e.vars[name]; have {
			return v, true
		}
	}
	return nil, false
}

// set assigns to the innermost frame that binds name or, failing
// that, to the root frame.
func (e *env) set(name string, v core.Value) error {
	root := e
	for f := e; f != nil; f = f.parent {
		if _, have := f.vars[name]; have {
			return f.bind(name, v)
		}
		root = f
	}
	return root.bind(name, v)
}

// bind binds name in this frame.
func (e *env) bind(name string, v core.Value) error {
	if e.fixed[name] {
		return core.Errorf(core.TypeMismatch, "%s is read-only", name)
	}
	e.vars[name] = v
	return nil
}

// define binds name in this frame for good.
func (e *env) define(name string, v core.Value) {
	e.vars[name] = v
	if e.fixed == nil {
		e.fixed = make(map[string]bool, 1)
	}
	e.fixed[name] = true
}

func (e *env) lookupFunc(name string) (*closure, bool) {
	for ; e != nil; e = e.parent {
		if c, have := e.funcs[name]; have {
			return c, true
		}
	}
	return nil, false
}

func (e *env) defineFunc(name string, c *closure) {
	if e.funcs == nil {
		e.funcs = make(map[string]*closure, 4)
	}
	e.funcs[name] = c
}

// closure is a function value with its definition-time environment.
type closure struct {
	name   string
	params []string
	body   *block
	env    *env

	// val is the closure as a script value.  It's made once so
	// that eq on function values is identity.
	val *core.Opaque
}

func newClosure(name string, params []string, body *block, e *env) *closure {
	c := &closure{
		name:   name,
		params: params,
		body:   body,
		env:    e,
	}
	tag := "function"
	if name != "" {
		tag += " " + name
	}
	c.val = &core.Opaque{Tag: tag, X: c}
	return c
}

func asClosure(v core.Value) (*closure, bool) {
	if o, is := v.(*core.Opaque); is {
		c, is := o.X.(*closure)
		return c, is
	}
	return nil, false
}
