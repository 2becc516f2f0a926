package tuplescript

import (
	"github.com/Comcast/tuplescript/core"
)

// node is an expression.  Everything in a script is an expression,
// including definitions and control structures.
type node interface {
	pos() core.Pos
}

type at struct {
	p core.Pos
}

func (a at) pos() core.Pos { return a.p }

type literal struct {
	at
	v core.Value
}

// listLit is "[ x y ... ]".
type listLit struct {
	at
	elems []node
}

type varRef struct {
	at
	name string
}

// funcRef names a function as a value (the first argument of
// "call").
type funcRef struct {
	at
	name string
}

type block struct {
	at
	body []node
}

type assign struct {
	at
	name  string
	local bool
	x     node
}

type defun struct {
	at
	name   string
	params []string
	body   *block
}

type lambda struct {
	at
	params []string
	body   *block
}

// callNamed calls a user function by name.
type callNamed struct {
	at
	name string
	args []node
}

// callValue is "call f (args)".
type callValue struct {
	at
	f    node
	args []node
}

type ifNode struct {
	at
	cond node
	then *block

	// els is nil, a *block, or an *ifNode.
	els node
}

type forNode struct {
	at
	name string
	seq  node
	body *block
}

// jumpNode is "continue n" or "again n".
type jumpNode struct {
	at
	again  bool
	levels node
}

type tryNode struct {
	at
	body *block
}

// address is "owner:key".  A nil owner means the task's own owner (the
// kernel id).  The key is either literal text or an expression whose
// rendering is the key.
type address struct {
	at
	owner   node
	key     string
	keyExpr node
}

// opNode applies a builtin.
type opNode struct {
	at
	op   *builtin
	args []node
}

// interp is "$address": the resolved value as text.
type interp struct {
	at
	addr *address
}

// remote is "%address": the resolved value.
type remote struct {
	at
	addr *address
}

// viewNode is "@pattern".
type viewNode struct {
	at
	addr *address
}
