package main

import (
	"context"
	"errors"

	"github.com/Comcast/tuplescript/config"
	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/interpreters"
	"github.com/Comcast/tuplescript/interpreters/goja"
	"github.com/Comcast/tuplescript/interpreters/tuplescript"
	"github.com/Comcast/tuplescript/tools"
)

type task struct {
	name   string
	interp core.Interpreter
	prog   core.Program
}

// standardInterpreters configures the standard interpreters.
func standardInterpreters(cfg config.Config) core.InterpretersMap {
	interps := interpreters.Standard()
	for _, i := range interps {
		switch x := i.(type) {
		case *tuplescript.Interpreter:
			if 0 < cfg.Scripts.MaxCallDepth {
				x.MaxCallDepth = cfg.Scripts.MaxCallDepth
			}
		case *goja.Interpreter:
			x.LibraryProvider = goja.MakeFileLibraryProvider(cfg.Scripts.Libraries)
		}
	}
	return interps
}

// compile reads a script, with its %inline directives expanded, and
// compiles it with the interpreter for its extension.
func compile(ctx context.Context, interps core.InterpretersMap, filename string) (*task, error) {
	interp, err := interps.Find(filename)
	if err != nil {
		return nil, exitError(ExitUsage, filename, err)
	}
	src, err := tools.ReadFileWithInlines(filename)
	if err != nil {
		return nil, exitError(ExitUsage, "read script", err)
	}
	prog, err := interp.Compile(ctx, filename, src)
	if err != nil {
		if errors.Is(err, core.ErrParse) {
			return nil, exitError(ExitParse, "parse "+filename, err)
		}
		return nil, exitError(ExitUsage, "compile "+filename, err)
	}
	return &task{
		name:   filename,
		interp: interp,
		prog:   prog,
	}, nil
}

func compileAll(ctx context.Context, cfg config.Config, files []string) ([]*task, error) {
	interps := standardInterpreters(cfg)
	acc := make([]*task, 0, len(files))
	for _, filename := range files {
		t, err := compile(ctx, interps, filename)
		if err != nil {
			return nil, err
		}
		acc = append(acc, t)
	}
	return acc, nil
}
