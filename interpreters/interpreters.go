// Package interpreters assembles the standard interpreters.
package interpreters

import (
	"github.com/Comcast/tuplescript/core"
	"github.com/Comcast/tuplescript/interpreters/goja"
	"github.com/Comcast/tuplescript/interpreters/noop"
	"github.com/Comcast/tuplescript/interpreters/tuplescript"
)

// Standard maps script file extensions to interpreters.
func Standard() core.InterpretersMap {
	is := core.NewInterpretersMap()

	ts := tuplescript.NewInterpreter()
	is["ts"] = ts
	is["tuplescript"] = ts

	js := goja.NewInterpreter()
	is["js"] = js
	is["goja"] = js

	is["noop"] = noop.NewInterpreter()

	return is
}
