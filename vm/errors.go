package vm

import (
	"fmt"

	"golang.org/x/xerrors"
)

// ErrorKind is the engine's error taxonomy. The short names are user-visible
// and stable.
type ErrorKind string

const (
	InvalidPointer              ErrorKind = "InvalidPointer"
	InvalidOffset               ErrorKind = "InvalidOffset"
	StackTooShort               ErrorKind = "StackTooShort"
	StackPopInvalidatesVariable ErrorKind = "StackPopInvalidatesVariable"
	MissingNullTerminator       ErrorKind = "MissingNullTerminator"
	InvalidEnvironmentCall      ErrorKind = "InvalidEnvironmentCall"
	InvalidFunctionHeader       ErrorKind = "InvalidFunctionHeader"
	CallstackEmpty              ErrorKind = "CallstackEmpty"
	WriteFailed                 ErrorKind = "WriteFailed"
)

// Error is the engine's error value: a short machine-matchable Kind, a
// human-readable Message, and, once it crosses the RunProgram boundary, the
// symbolic call stack active at the point of failure.
//
// Error wraps an xerrors.Frame so %+v printing includes the Go call site that
// raised it, without the engine needing to thread that information through
// every return by hand.
type Error struct {
	Kind       ErrorKind
	Message    string
	StackTrace []CallFrame

	frame xerrors.Frame
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		frame:   xerrors.Caller(1),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Format implements fmt.Formatter so %+v prints the captured frame, matching
// the xerrors convention used throughout this package.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// FormatError implements xerrors.Formatter.
func (e *Error) FormatError(p xerrors.Printer) error {
	p.Print(e.Error())
	e.frame.Format(p)
	return nil
}

// withStackTrace returns a copy of e decorated with the given call stack.
// Called exactly once, at the outermost RunProgram boundary, so a failure at
// call depth d surfaces with all d frames.
func (e *Error) withStackTrace(trace []CallFrame) *Error {
	cp := *e
	cp.StackTrace = trace
	return &cp
}

func errInvalidPointer(ptr VarPointer) *Error {
	return newError(InvalidPointer, "the pointer %s is invalid", ptr)
}

func errInvalidOffset(v Var, ptr VarPointer) *Error {
	start, end := ptr.WithOffset(0), ptr.WithOffset(v.Len)
	return newError(InvalidOffset,
		"the pointer %s is invalid; the nearest object is in the range %s..%s", ptr, start, end)
}

// String renders a pointer as a hex index followed by an 8-digit hex offset.
func (p VarPointer) String() string {
	return fmt.Sprintf("0x%x%08x", p.idx, p.offset)
}
