// Package tuplescript is the interpreter for the tuplescript
// language: small prefix-notation scripts that read, write, and
// watch tuples.
//
// A script is a sequence of expressions.  Operators take a fixed
// number of arguments, so no separators are needed:
//
//	defun fac(x) {
//	      if eq(x, 1) {1}
//	      else { prod(x, fac minus(x, 1)) }
//	}
//	echo ("fac 5 = " fac 5) newline
//
//	set 100:components.odometry.reqState 'on
//	set_meta 102:mi-odometry 101:odometry
//
// See Builtins for the operators.
package tuplescript

import (
	"context"

	"github.com/Comcast/tuplescript/core"
)

// Program is a parsed script.
type Program struct {
	name string
	body []node

	// Refs are the tuple addresses the script mentions.
	Refs []Ref

	// Functions are the names of the functions the script
	// defines.
	Functions []string
}

func (p *Program) Name() string {
	return p.name
}

// Interpreter implements core.Interpreter.
type Interpreter struct {
	// MaxCallDepth bounds function call nesting.  Zero means
	// DefaultMaxCallDepth.
	MaxCallDepth int
}

func NewInterpreter() *Interpreter {
	return &Interpreter{
		MaxCallDepth: DefaultMaxCallDepth,
	}
}

func (i *Interpreter) Compile(ctx context.Context, name string, src []byte) (core.Program, error) {
	return Parse(name, src)
}

// Exec runs the program's expressions in order and discards their
// values.
func (i *Interpreter) Exec(ctx context.Context, h core.Host, p core.Program) error {
	prog, is := p.(*Program)
	if !is {
		return core.Errorf(core.TypeMismatch, "not a tuplescript program: %T", p)
	}

	k := h.Kernel()
	ev := &evaluator{
		ctx:      ctx,
		host:     h,
		space:    h.Space(),
		out:      h.Output(),
		logger:   h.Logger(),
		self:     k.ID,
		maxDepth: i.MaxCallDepth,
	}
	if ev.maxDepth <= 0 {
		ev.maxDepth = DefaultMaxCallDepth
	}

	global := newEnv(nil)
	ev.kernel = kernelRecord(k)
	global.define("kernel", ev.kernel)
	for _, n := range prog.body {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := ev.eval(global, n); err != nil {
			if j, is := err.(*jump); is {
				return j.badJump()
			}
			return err
		}
	}
	return nil
}
