// Package errcode defines the closed set of failure codes ledgergate reports
// to callers, and the error type that carries them.
package errcode

import (
	"errors"
	"fmt"
	"strings"
)

// Code identifies a failure class. Its string form is part of the RPC
// contract: error responses always start with "<Code>: ".
type Code string

const (
	MalformedRequest Code = "MalformedRequest"

	InvalidDecimalFormat Code = "InvalidDecimalFormat"
	IntegerOverflow      Code = "IntegerOverflow"
	LengthMismatch       Code = "LengthMismatch"
	UnknownSchema        Code = "UnknownSchema"
	MissingField         Code = "MissingField"
	TypeMismatch         Code = "TypeMismatch"

	KeyFormatError         Code = "KeyFormatError"
	UserSignatureInvalid   Code = "UserSignatureInvalid"
	AuthSignatureInvalid   Code = "AuthSignatureInvalid"
	SenderSignatureInvalid Code = "SenderSignatureInvalid"
	AppSignatureInvalid    Code = "AppSignatureInvalid"

	KeyLocked   Code = "KeyLocked"
	KeyNotFound Code = "KeyNotFound"

	LedgerRejected    Code = "LedgerRejected"
	AllowListRejected Code = "AllowListRejected"
	DuplicateRequest  Code = "DuplicateRequest"

	Internal Code = "Internal"
)

var known = map[Code]struct{}{
	MalformedRequest: {}, InvalidDecimalFormat: {}, IntegerOverflow: {},
	LengthMismatch: {}, UnknownSchema: {}, MissingField: {}, TypeMismatch: {},
	KeyFormatError: {}, UserSignatureInvalid: {}, AuthSignatureInvalid: {},
	SenderSignatureInvalid: {}, AppSignatureInvalid: {}, KeyLocked: {},
	KeyNotFound: {}, LedgerRejected: {}, AllowListRejected: {},
	DuplicateRequest: {}, Internal: {},
}

// Valid reports whether c is one of the codes above.
func (c Code) Valid() bool {
	_, ok := known[c]
	return ok
}

// Error is a coded error. Sentinels are created with New and wrapped by
// callers with fmt.Errorf("...: %w", err).
type Error struct {
	Code Code
	Msg  string
	Err  error
}

// New returns a sentinel error for code.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Errorf returns a coded error with a formatted message. A %w verb in format
// becomes the cause.
func Errorf(code Code, format string, args ...any) *Error {
	wrapped := fmt.Errorf(format, args...)
	return &Error{Code: code, Msg: wrapped.Error(), Err: errors.Unwrap(wrapped)}
}

// Wrap tags err with code. The message of err is kept as is.
func Wrap(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: err.Error(), Err: err}
}

// Nest tags err with code and keeps the code of err as the first token of
// the detail. Message then renders "<code>: <inner code>: <detail>".
func Nest(code Code, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Msg: Message(err), Err: err}
}

func (e *Error) Error() string {
	return e.Msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the outermost code found in err's chain, or Internal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}

// Reason returns the most specific code in err. It follows causes and, for
// errors rebuilt by Parse, the inner code token a Nest left in the detail.
func Reason(err error) Code {
	code := Internal
	for {
		var e *Error
		if !errors.As(err, &e) {
			return code
		}
		code = e.Code
		if e.Err != nil {
			err = e.Err
			continue
		}
		prefix, _, ok := strings.Cut(e.Msg, ": ")
		if !ok || !Code(prefix).Valid() {
			return code
		}
		err = Parse(e.Msg)
	}
}

// Message renders err as the single client-facing string "<Code>: <detail>".
// Errors without a code are reported as Internal with their text hidden.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return string(Internal) + ": internal error"
	}

	return string(e.Code) + ": " + err.Error()
}

// Parse is the inverse of Message. A string without a known code prefix
// becomes an Internal error carrying the whole text.
func Parse(msg string) *Error {
	prefix, detail, ok := strings.Cut(msg, ": ")
	if ok && Code(prefix).Valid() {
		return &Error{Code: Code(prefix), Msg: detail}
	}
	return &Error{Code: Internal, Msg: msg}
}
