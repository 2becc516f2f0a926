package tuplescript

import (
	"strconv"

	"github.com/Comcast/tuplescript/core"
)

var keywords = map[string]bool{
	"let":      true,
	"local":    true,
	"defun":    true,
	"lambda":   true,
	"call":     true,
	"if":       true,
	"else":     true,
	"for":      true,
	"in":       true,
	"continue": true,
	"again":    true,
	"try":      true,
	"true":     true,
	"false":    true,
	"nil":      true,
}

// Ref is a tuple address that appears in a script.
type Ref struct {
	// Op is the builtin or the prefix ("$", "%", "@") that uses
	// the address.
	Op string `json:"op"`

	// Owner is the owner as written: a number, a variable name,
	// "self" for the task's own owner, or "?" for an expression.
	Owner string `json:"owner"`

	// Key is the key as written or "?" for an expression.
	Key string `json:"key"`

	Pos core.Pos `json:"pos"`
}

// scope is what the parser knows about the names bound in a
// function body (or at the top level).
type scope struct {
	funcs map[string]int
	vars  map[string]bool
}

type parser struct {
	filename string
	toks     []token
	i        int
	scopes   []*scope

	refs  []Ref
	funcs []string
}

// Parse compiles source text into a Program.
func Parse(filename string, src []byte) (*Program, error) {
	toks, err := lex(filename, src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		filename: filename,
		toks:     toks,
	}
	p.push()

	var body []node
	for p.peek().Kind != tokEOF {
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		body = append(body, n)
	}

	return &Program{
		name:      filename,
		body:      body,
		Refs:      p.refs,
		Functions: p.funcs,
	}, nil
}

func (p *parser) push() {
	p.scopes = append(p.scopes, &scope{
		funcs: make(map[string]int),
		vars:  make(map[string]bool),
	})
}

func (p *parser) pop() {
	p.scopes = p.scopes[:len(p.scopes)-1]
}

func (p *parser) top() *scope {
	return p.scopes[len(p.scopes)-1]
}

// function returns the arity of the function with the given name if
// it's visible.  A variable in an inner scope hides it.
func (p *parser) function(name string) (int, bool) {
	for i := len(p.scopes) - 1; 0 <= i; i-- {
		s := p.scopes[i]
		if s.vars[name] {
			return 0, false
		}
		if n, have := s.funcs[name]; have {
			return n, true
		}
	}
	return 0, false
}

func (p *parser) variable(name string) bool {
	for i := len(p.scopes) - 1; 0 <= i; i-- {
		s := p.scopes[i]
		if s.vars[name] {
			return true
		}
		if _, have := s.funcs[name]; have {
			return false
		}
	}
	return false
}

func (p *parser) peek() token {
	return p.toks[p.i]
}

func (p *parser) peekAt(k int) token {
	if j := p.i + k; j < len(p.toks) {
		return p.toks[j]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.Kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...interface{}) error {
	return core.Errorf(core.ParseError, format, args...).At(t.Pos)
}

func (p *parser) expect(punct string) (token, error) {
	t := p.next()
	if !t.is(punct) {
		return t, p.errorf(t, "expected '%s' but got %s", punct, t)
	}
	return t, nil
}

func (p *parser) word() (token, error) {
	t := p.next()
	if t.Kind != tokWord {
		return t, p.errorf(t, "expected a name but got %s", t)
	}
	return t, nil
}

func (p *parser) name() (token, error) {
	t, err := p.word()
	if err != nil {
		return t, err
	}
	if keywords[t.Text] || builtins[t.Text] != nil || isNumeric(t.Text) {
		return t, p.errorf(t, "%s can't be a name", t)
	}
	return t, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if c == '-' || c == '.' {
		if len(s) == 1 {
			return false
		}
		c = s[1]
	}
	return '0' <= c && c <= '9'
}

func number(s string) core.Value {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return core.Int(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return core.Float(f)
	}
	return core.String(s)
}

// expr parses one expression.
func (p *parser) expr() (node, error) {
	t := p.next()
	here := at{t.Pos}

	switch t.Kind {
	case tokEOF:
		return nil, p.errorf(t, "unexpected end of input")
	case tokString:
		return &literal{here, core.String(t.Text)}, nil
	case tokPunct:
		switch t.Text {
		case "{":
			return p.blockRest(t)
		case "[":
			var elems []node
			for !p.peek().is("]") {
				if p.peek().Kind == tokEOF {
					return nil, p.errorf(p.peek(), "unterminated list")
				}
				x, err := p.expr()
				if err != nil {
					return nil, err
				}
				elems = append(elems, x)
			}
			p.next()
			return &listLit{here, elems}, nil
		case "(":
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if c := p.next(); !c.is(")") {
				return nil, p.errorf(c, "a group here must hold one expression")
			}
			return x, nil
		case "'":
			w, err := p.word()
			if err != nil {
				return nil, err
			}
			return &literal{here, core.Intern(w.Text)}, nil
		case "$":
			a, err := p.interpAddress(t)
			if err != nil {
				return nil, err
			}
			p.ref("$", a)
			return &interp{here, a}, nil
		case "%":
			a, err := p.address()
			if err != nil {
				return nil, err
			}
			p.ref("%", a)
			return &remote{here, a}, nil
		case "@":
			a, err := p.address()
			if err != nil {
				return nil, err
			}
			p.ref("@", a)
			return &viewNode{here, a}, nil
		case "+", "=":
			return p.op(t, builtins[t.Text])
		}
		return nil, p.errorf(t, "unexpected %s", t)
	}

	if keywords[t.Text] {
		return p.form(t)
	}
	if b, is := builtins[t.Text]; is {
		return p.op(t, b)
	}
	if isNumeric(t.Text) {
		return &literal{here, number(t.Text)}, nil
	}

	if n, is := p.function(t.Text); is {
		args, err := p.callArgs(t, n)
		if err != nil {
			return nil, err
		}
		return &callNamed{here, t.Text, args}, nil
	}
	if !p.variable(t.Text) && p.peek().is("(") {
		// Maybe a function defined later.
		args, err := p.group(nil)
		if err != nil {
			return nil, err
		}
		return &callNamed{here, t.Text, args}, nil
	}
	return &varRef{here, t.Text}, nil
}

// callArgs parses the arguments of a call of a user function with
// the given arity.
func (p *parser) callArgs(t token, arity int) ([]node, error) {
	if p.peek().is("(") && (0 < arity || p.peekAt(1).is(")")) {
		args, err := p.group(nil)
		if err != nil {
			return nil, err
		}
		if len(args) != arity {
			return nil, p.errorf(t, "%s takes %d arguments, not %d", t.Text, arity, len(args))
		}
		return args, nil
	}
	args := make([]node, arity)
	for i := range args {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		args[i] = x
	}
	return args, nil
}

// group parses "( ... )" after the "(" has been peeked.  Arguments
// are parsed according to kinds; arguments beyond kinds are
// expressions.
func (p *parser) group(kinds []argKind) ([]node, error) {
	p.next()
	var args []node
	for !p.peek().is(")") {
		if p.peek().Kind == tokEOF {
			return nil, p.errorf(p.peek(), "unterminated argument group")
		}
		kind := argExpr
		if len(args) < len(kinds) {
			kind = kinds[len(args)]
		}
		x, err := p.arg(kind)
		if err != nil {
			return nil, err
		}
		args = append(args, x)
	}
	p.next()
	return args, nil
}

func (p *parser) arg(kind argKind) (node, error) {
	if kind == argAddr {
		return p.address()
	}
	return p.expr()
}

// op parses the arguments of a builtin.
func (p *parser) op(t token, b *builtin) (node, error) {
	n := &opNode{at: at{t.Pos}, op: b}

	grouped := p.peek().is("(") && (b.variadic || 0 < len(b.args) || p.peekAt(1).is(")"))
	if grouped {
		args, err := p.group(b.args)
		if err != nil {
			return nil, err
		}
		if !b.variadic && len(args) != len(b.args) {
			return nil, p.errorf(t, "%s takes %d arguments, not %d", b.Name, len(b.args), len(args))
		}
		n.args = args
	} else {
		kinds := b.args
		if b.variadic {
			kinds = exprs(1)
		}
		for _, kind := range kinds {
			x, err := p.arg(kind)
			if err != nil {
				return nil, err
			}
			n.args = append(n.args, x)
		}
	}

	addrs := 0
	for _, x := range n.args {
		if a, is := x.(*address); is {
			op := b.Name
			if 0 < addrs {
				op = RefTarget
			}
			p.ref(op, a)
			addrs++
		}
	}
	return n, nil
}

// address parses "owner:key".
func (p *parser) address() (*address, error) {
	here := at{p.peek().Pos}
	owner, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err = p.expect(":"); err != nil {
		return nil, err
	}
	a := &address{at: here, owner: owner}
	return a, p.key(a)
}

func (p *parser) key(a *address) error {
	t := p.next()
	switch {
	case t.Kind == tokWord:
		a.key = t.Text
	case t.Kind == tokString:
		a.key = t.Text
	case t.is("("):
		x, err := p.expr()
		if err != nil {
			return err
		}
		if _, err = p.expect(")"); err != nil {
			return err
		}
		a.keyExpr = x
	default:
		return p.errorf(t, "expected a key but got %s", t)
	}
	return nil
}

// interpAddress parses what follows "$": either a full address or
// just a key for the task's own owner.
func (p *parser) interpAddress(dollar token) (*address, error) {
	if t := p.peek(); t.Kind == tokWord && !p.peekAt(1).is(":") {
		p.next()
		return &address{at: at{t.Pos}, key: t.Text}, nil
	}
	return p.address()
}

// RefTarget is the Ref.Op for the target address of set_meta.
const RefTarget = "target"

func (p *parser) ref(op string, a *address) {
	r := Ref{
		Op:    op,
		Owner: "?",
		Key:   a.key,
		Pos:   a.pos(),
	}
	switch x := a.owner.(type) {
	case nil:
		r.Owner = "self"
	case *literal:
		r.Owner = x.v.String()
	case *varRef:
		r.Owner = x.name
	}
	if a.keyExpr != nil {
		r.Key = "?"
	}
	p.refs = append(p.refs, r)
}

// blockRest parses a block after its "{".
func (p *parser) blockRest(open token) (*block, error) {
	b := &block{at: at{open.Pos}}
	for !p.peek().is("}") {
		if p.peek().Kind == tokEOF {
			return nil, p.errorf(open, "unterminated block")
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		b.body = append(b.body, x)
	}
	p.next()
	return b, nil
}

func (p *parser) block() (*block, error) {
	open, err := p.expect("{")
	if err != nil {
		return nil, err
	}
	return p.blockRest(open)
}

func (p *parser) params() ([]string, error) {
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	var acc []string
	for !p.peek().is(")") {
		t, err := p.name()
		if err != nil {
			return nil, err
		}
		acc = append(acc, t.Text)
	}
	p.next()
	return acc, nil
}

// funcBody parses the parameters and body of a function in a new
// scope.
func (p *parser) funcBody(name string) ([]string, *block, error) {
	params, err := p.params()
	if err != nil {
		return nil, nil, err
	}
	if name != "" {
		p.top().funcs[name] = len(params)
		delete(p.top().vars, name)
	}
	p.push()
	defer p.pop()
	for _, x := range params {
		p.top().vars[x] = true
	}
	body, err := p.block()
	return params, body, err
}

// form parses a construct that starts with a keyword.
func (p *parser) form(t token) (node, error) {
	here := at{t.Pos}

	switch t.Text {
	case "true":
		return &literal{here, core.True}, nil
	case "false":
		return &literal{here, core.False}, nil
	case "nil":
		return &literal{here, core.NilValue}, nil

	case "let", "local":
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if t.Text == "local" || !p.variable(name.Text) {
			p.top().vars[name.Text] = true
		}
		return &assign{here, name.Text, t.Text == "local", x}, nil

	case "defun":
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		params, body, err := p.funcBody(name.Text)
		if err != nil {
			return nil, err
		}
		p.funcs = append(p.funcs, name.Text)
		return &defun{here, name.Text, params, body}, nil

	case "lambda":
		params, body, err := p.funcBody("")
		if err != nil {
			return nil, err
		}
		return &lambda{here, params, body}, nil

	case "call":
		var f node
		if w := p.peek(); w.Kind == tokWord && !keywords[w.Text] && builtins[w.Text] == nil && !isNumeric(w.Text) {
			p.next()
			f = &funcRef{at{w.Pos}, w.Text}
		} else {
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			f = x
		}
		var args []node
		if p.peek().is("(") {
			var err error
			if args, err = p.group(nil); err != nil {
				return nil, err
			}
		}
		return &callValue{here, f, args}, nil

	case "if":
		return p.ifRest(t)

	case "for":
		name, err := p.name()
		if err != nil {
			return nil, err
		}
		if in := p.next(); in.Kind != tokWord || in.Text != "in" {
			return nil, p.errorf(in, "expected 'in' but got %s", in)
		}
		seq, err := p.expr()
		if err != nil {
			return nil, err
		}
		p.top().vars[name.Text] = true
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &forNode{here, name.Text, seq, body}, nil

	case "continue", "again":
		levels, err := p.expr()
		if err != nil {
			return nil, err
		}
		return &jumpNode{here, t.Text == "again", levels}, nil

	case "try":
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &tryNode{here, body}, nil
	}

	return nil, p.errorf(t, "unexpected %s", t)
}

func (p *parser) ifRest(t token) (node, error) {
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	then, err := p.block()
	if err != nil {
		return nil, err
	}
	n := &ifNode{at: at{t.Pos}, cond: cond, then: then}

	if e := p.peek(); e.Kind == tokWord && e.Text == "else" {
		p.next()
		if i := p.peek(); i.Kind == tokWord && i.Text == "if" {
			p.next()
			if n.els, err = p.ifRest(i); err != nil {
				return nil, err
			}
		} else if n.els, err = p.block(); err != nil {
			return nil, err
		}
	}
	return n, nil
}
