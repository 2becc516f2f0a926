// Package noop provides an interpreter whose programs do nothing.
//
// It's useful for exercising the scheduler and couplings without a
// script.
package noop

import (
	"context"

	"github.com/Comcast/tuplescript/core"
)

// Interpreter is a core.Interpreter which accepts any source and
// runs nothing.
type Interpreter struct {
	// Silent, if false, will log a warning when a program runs.
	Silent bool
}

type Program struct {
	name string
}

func (p *Program) Name() string {
	return p.name
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Compile(ctx context.Context, name string, src []byte) (core.Program, error) {
	return &Program{name: name}, nil
}

func (i *Interpreter) Exec(ctx context.Context, h core.Host, p core.Program) error {
	if !i.Silent {
		h.Logger().Warn("using noop interpreter")
	}
	return ctx.Err()
}
