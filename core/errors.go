package core

// The errors of kind ParseError through SubscriptionOverflow are
// user errors (problems with scripts or with what they ask of the
// store), not internal errors.

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrorKind classifies an Error.
type ErrorKind string

const (
	// ParseError occurs when script text is malformed.  A script
	// with a ParseError never starts.
	ParseError ErrorKind = "ParseError"

	UndefinedVariable ErrorKind = "UndefinedVariable"
	UndefinedFunction ErrorKind = "UndefinedFunction"

	// TupleNotFound occurs when a read (possibly through meta
	// tuples) ends at a coordinate that was never set.
	TupleNotFound ErrorKind = "TupleNotFound"

	// CyclicMetaLink occurs when meta resolution revisits a
	// coordinate or exceeds the maximum depth.
	CyclicMetaLink ErrorKind = "CyclicMetaLink"

	// TypeMismatch occurs when an operator is applied to values
	// with incompatible tags.
	TypeMismatch ErrorKind = "TypeMismatch"

	// SubscriptionOverflow reports that a subscription queue
	// evicted events.  It's delivered in-band and isn't fatal.
	SubscriptionOverflow ErrorKind = "SubscriptionOverflow"

	// InvalidKey occurs for malformed tuple addresses.
	InvalidKey ErrorKind = "InvalidKey"

	// BadJump occurs when "continue" or "again" refers to a block
	// that doesn't exist.
	BadJump ErrorKind = "BadJump"

	// RecursionLimit occurs when function calls nest too deeply.
	RecursionLimit ErrorKind = "RecursionLimit"
)

// Pos is a location in a script.
type Pos struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Col  int    `json:"col,omitempty"`
}

func (p Pos) IsZero() bool {
	return p.Line == 0 && p.File == ""
}

func (p Pos) String() string {
	s := p.File
	if s == "" {
		s = "-"
	}
	if 0 < p.Line {
		s += ":" + strconv.Itoa(p.Line)
		if 0 < p.Col {
			s += ":" + strconv.Itoa(p.Col)
		}
	}
	return s
}

// Error is a classified error with an optional position.
type Error struct {
	Kind ErrorKind `json:"kind"`
	Pos  Pos       `json:"pos,omitempty"`
	Msg  string    `json:"msg,omitempty"`
	Err  error     `json:"-"`
}

// Errorf makes an Error of the given kind.
func Errorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{
		Kind: kind,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// WrapError makes an Error of the given kind that wraps err.
func WrapError(kind ErrorKind, err error) *Error {
	return &Error{
		Kind: kind,
		Msg:  err.Error(),
		Err:  err,
	}
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if !e.Pos.IsZero() {
		s = e.Pos.String() + ": " + s
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrTupleNotFound) (etc.) work for any
// Error of the same kind.
func (e *Error) Is(target error) bool {
	t, is := target.(*Error)
	if !is {
		return false
	}
	return t.Msg == "" && t.Pos.IsZero() && t.Kind == e.Kind
}

// At returns the error with its position set if it doesn't have one
// already.
func (e *Error) At(p Pos) *Error {
	if !e.Pos.IsZero() {
		return e
	}
	acc := *e
	acc.Pos = p
	return &acc
}

// WithPos gives the *Error in err's chain the position p if it doesn't
// have one.  Wrappers around that *Error are kept.
func WithPos(err error, p Pos) error {
	var ce *Error
	if !errors.As(err, &ce) || !ce.Pos.IsZero() {
		return err
	}
	if e, is := err.(*Error); is {
		return e.At(p)
	}
	return &positioned{err: err, at: ce.At(p)}
}

// positioned is a wrapped *Error that learned where it happened.
type positioned struct {
	err error
	at  *Error
}

func (e *positioned) Error() string {
	return e.at.Pos.String() + ": " + e.err.Error()
}

func (e *positioned) Unwrap() error {
	return e.err
}

// As finds the positioned *Error before the bare one further down
// the chain.
func (e *positioned) As(target interface{}) bool {
	if t, is := target.(**Error); is {
		*t = e.at
		return true
	}
	return false
}

var (
	ErrParse                = &Error{Kind: ParseError}
	ErrUndefinedVariable    = &Error{Kind: UndefinedVariable}
	ErrUndefinedFunction    = &Error{Kind: UndefinedFunction}
	ErrTupleNotFound        = &Error{Kind: TupleNotFound}
	ErrCyclicMetaLink       = &Error{Kind: CyclicMetaLink}
	ErrTypeMismatch         = &Error{Kind: TypeMismatch}
	ErrSubscriptionOverflow = &Error{Kind: SubscriptionOverflow}
	ErrInvalidKey           = &Error{Kind: InvalidKey}
	ErrBadJump              = &Error{Kind: BadJump}
	ErrRecursionLimit       = &Error{Kind: RecursionLimit}
)

// KindOf returns the kind of the first Error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

var (
	// Exit is returned by an interpreter when a script
	// executes "exit".  It's not a failure.
	Exit = errors.New("exit")

	// Timeout is returned by Host.Await when no event arrived in
	// time.
	Timeout = errors.New("timeout")

	// Unsubscribed is returned by Host.Await and Host.Poll when
	// the subscription is gone.
	Unsubscribed = errors.New("unsubscribed")

	// InterpreterNotFound occurs when no interpreter is
	// registered for a script.
	InterpreterNotFound = errors.New("interpreter not found")
)
