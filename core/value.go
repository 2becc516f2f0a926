/* Copyright 2018 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"strconv"
	"strings"
	"sync"
)

// Kind is the tag of a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindString
	KindAtom
	KindList
	KindTuple
	KindView
	KindOpaque
)

var kindNames = []string{"nil", "bool", "number", "string", "atom", "list", "tuple", "view", "opaque"}

func (k Kind) String() string {
	if 0 <= int(k) && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is what scripts compute with and what tuples hold.
//
// The set of implementations is closed: Nil, Bool, Int, Float,
// String, Atom, List, *TupleValue, *View, and *Opaque.
type Value interface {
	Kind() Kind

	// String gives the text a script sees when it echoes the
	// value or interpolates it.
	String() string

	// Repr is String except that strings are quoted.  Lists use
	// Repr for their elements.
	Repr() string

	value()
}

type Nil struct{}

type Bool bool

type Int int64

type Float float64

type String string

// List is a sequence of values.  Lists are never modified in place.
type List []Value

var (
	NilValue = Nil{}
	True     = Bool(true)
	False    = Bool(false)
)

func (Nil) Kind() Kind { return KindNil }
func (Nil) String() string { return "nil" }
func (v Nil) Repr() string { return v.String() }
func (Nil) value() {}
func (Bool) Kind() Kind { return KindBool }
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}
func (b Bool) Repr() string { return b.String() }
func (Bool) value() {}
func (Int) Kind() Kind { return KindNumber }
func (n Int) String() string { return strconv.FormatInt(int64(n), 10) }
func (n Int) Repr() string { return n.String() }
func (Int) value() {}
func (Float) Kind() Kind { return KindNumber }
func (f Float) String() string { return strconv.FormatFloat(float64(f), 'f', -1, 64) }
func (f Float) Repr() string { return f.String() }
func (Float) value() {}
func (String) Kind() Kind { return KindString }
func (s String) String() string { return string(s) }
func (s String) Repr() string { return strconv.Quote(string(s)) }
func (String) value() {}
func (List) Kind() Kind { return KindList }
func (List) value() {}

func (l List) String() string {
	parts := make([]string, len(l))
	for i, v := range l {
		parts[i] = v.Repr()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func (l List) Repr() string { return l.String() }

// Atom is an interned symbol.  Two atoms with the same name are the
// same atom, and atoms compare by identity (==).
type Atom struct {
	name *string
}

var atoms = struct {
	sync.Mutex
	table map[string]*string
}{
	table: make(map[string]*string, 64),
}

// Intern returns the unique Atom with the given name.
func Intern(name string) Atom {
	atoms.Lock()
	p, have := atoms.table[name]
	if !have {
		p = &name
		atoms.table[name] = p
	}
	atoms.Unlock()
	return Atom{name: p}
}

func (a Atom) Name() string {
	if a.name == nil {
		return ""
	}
	return *a.name
}

func (Atom) Kind() Kind { return KindAtom }
func (a Atom) String() string { return a.Name() }
func (a Atom) Repr() string { return "'" + a.Name() }
func (Atom) value() {}

// TupleValue is a tuple as seen by a script: an element of a view or
// an event delivered by a subscription.
type TupleValue struct {
	T *Tuple
}

func (*TupleValue) Kind() Kind { return KindTuple }
func (*TupleValue) value() {}

func (t *TupleValue) String() string {
	if t.T == nil {
		return "nil"
	}
	return t.T.String()
}

func (t *TupleValue) Repr() string { return t.String() }

// Opaque holds interpreter-private things like closures and
// subscription handles.
type Opaque struct {
	Tag string
	X   interface{}
}

func (*Opaque) Kind() Kind { return KindOpaque }
func (o *Opaque) String() string { return "<" + o.Tag + ">" }
func (o *Opaque) Repr() string { return o.String() }
func (*Opaque) value() {}

// Truthy reports the Boolean value of v.  Anything that isn't a Bool
// is a TypeMismatch.
func Truthy(v Value) (bool, error) {
	b, is := v.(Bool)
	if !is {
		return false, Errorf(TypeMismatch, "condition is a %s (%s), not a bool", v.Kind(), v.Repr())
	}
	return bool(b), nil
}

// Eq is the primitive equality of "eq": same tag and same primitive
// value.  Int and Float are different tags for Eq.
func Eq(a, b Value) bool {
	switch x := a.(type) {
	case Nil:
		_, is := b.(Nil)
		return is
	case Bool:
		y, is := b.(Bool)
		return is && x == y
	case Int:
		y, is := b.(Int)
		return is && x == y
	case Float:
		y, is := b.(Float)
		return is && x == y
	case String:
		y, is := b.(String)
		return is && x == y
	case Atom:
		y, is := b.(Atom)
		return is && x == y
	case *Opaque:
		y, is := b.(*Opaque)
		return is && x == y
	case *TupleValue:
		y, is := b.(*TupleValue)
		return is && x.T == y.T
	}
	return false
}

// Equal is structural equality.  An atom equals a string with the
// same name, and an Int equals a Float with the same numeric value.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Atom:
		switch y := b.(type) {
		case Atom:
			return x == y
		case String:
			return x.Name() == string(y)
		}
		return false
	case String:
		switch y := b.(type) {
		case Atom:
			return string(x) == y.Name()
		case String:
			return x == y
		}
		return false
	case Int:
		switch y := b.(type) {
		case Int:
			return x == y
		case Float:
			return Float(x) == y
		}
		return false
	case Float:
		switch y := b.(type) {
		case Int:
			return x == Float(y)
		case Float:
			return x == y
		}
		return false
	case List:
		y, is := b.(List)
		if !is || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *TupleValue:
		y, is := b.(*TupleValue)
		if !is || x.T == nil || y.T == nil {
			return is && x.T == y.T
		}
		return x.T.Owner == y.T.Owner && x.T.Key == y.T.Key && Equal(x.T.Payload(), y.T.Payload())
	}
	return Eq(a, b)
}

// AsFloat returns the numeric value of an Int or Float.
func AsFloat(v Value) (float64, error) {
	switch x := v.(type) {
	case Int:
		return float64(x), nil
	case Float:
		return float64(x), nil
	}
	return 0, Errorf(TypeMismatch, "%s (%s) is not a number", v.Kind(), v.Repr())
}

// AsInt returns an Int's value.  A Float with an integral value is
// accepted.
func AsInt(v Value) (int64, error) {
	switch x := v.(type) {
	case Int:
		return int64(x), nil
	case Float:
		if float64(int64(x)) == float64(x) {
			return int64(x), nil
		}
	}
	return 0, Errorf(TypeMismatch, "%s (%s) is not an integer", v.Kind(), v.Repr())
}

// Mimetype gives the mimetype recorded for a tuple holding v.
func Mimetype(v Value) string {
	switch v.(type) {
	case String:
		return "text/plain"
	case Atom:
		return "text/x-atom"
	case nil, Nil:
		return ""
	}
	return "application/json"
}
