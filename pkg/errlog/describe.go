package errlog

import (
	"errors"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

const (
	// KindGeneric is reported for errors with no exported named type in their chain.
	KindGeneric = "error"
	// KindPanic is reported for panics with a non-error value.
	KindPanic = "panic"
	// KindHTTPError is reported for error responses that carried no Go error.
	KindHTTPError = "HTTPError"
)

// Kinder lets an error name its own kind in the log.
type Kinder interface {
	Kind() string
}

// StackTracer lets an error carry the trace of where it was raised.
type StackTracer interface {
	StackTrace() string
}

// Description is the uniform view of an error used to fill a Record.
type Description struct {
	Kind       string
	Message    string
	StackTrace string
}

// Describe reads kind, message and trace from err.
func Describe(err error) Description {
	if err == nil {
		return Description{Kind: KindGeneric}
	}

	d := Description{
		Kind:    kindOf(err),
		Message: err.Error(),
	}

	var st StackTracer
	if errors.As(err, &st) {
		d.StackTrace = st.StackTrace()
	}
	return d
}

func kindOf(err error) string {
	var k Kinder
	if errors.As(err, &k) {
		if kind := k.Kind(); kind != "" {
			return kind
		}
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		if name := exportedTypeName(e); name != "" {
			return name
		}
	}
	return KindGeneric
}

func exportedTypeName(v any) string {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return ""
	}
	name := t.Name()
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError || !unicode.IsUpper(r) {
		return ""
	}
	return name
}

// PanicError carries a recovered panic value together with the goroutine
// stack captured in the deferred recover.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError wraps a value returned by recover().
func NewPanicError(v any, stack []byte) *PanicError {
	return &PanicError{Value: v, Stack: stack}
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

func (e *PanicError) Kind() string {
	if err, ok := e.Value.(error); ok {
		return kindOf(err)
	}
	return KindPanic
}

func (e *PanicError) StackTrace() string {
	return string(e.Stack)
}

// StatusError stands in for an error response that carried no Go error.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

func (e *StatusError) Kind() string {
	return KindHTTPError
}
