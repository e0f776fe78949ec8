// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package status defines the error kinds returned by the evaluator, the execution service and the caches.
//
// Errors carry a google.golang.org/grpc/codes.Code and a stack trace (from github.com/pkg/errors).
// The code survives any number of errors.WithMessagef wrappings, so callers can always recover it with Code.
package status

import (
	"fmt"

	"github.com/pkg/errors"
	"google.golang.org/grpc/codes"
)

// Error is an error tagged with a status code.
type Error struct {
	code  codes.Code
	cause error
}

// New returns an Error with the given code and message, with a stack trace attached.
func New(code codes.Code, msg string) error {
	return &Error{code: code, cause: errors.New(msg)}
}

// Errorf returns an Error with the given code and formatted message, with a stack trace attached.
func Errorf(code codes.Code, format string, args ...any) error {
	return &Error{code: code, cause: errors.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.code, e.cause.Error())
}

// Unwrap returns the underlying error, with the stack trace.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the status code of the error.
func (e *Error) Code() codes.Code { return e.code }

// Format implements fmt.Formatter, so "%+v" prints the stack trace.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		_, _ = fmt.Fprintf(s, "%s: %+v", e.code, e.cause)
		return
	}
	_, _ = fmt.Fprint(s, e.Error())
}

// Code returns the code of the first status Error found in err's chain.
// It returns codes.OK for a nil error and codes.Unknown for errors without a status.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	var statusErr *Error
	if errors.As(err, &statusErr) {
		return statusErr.code
	}
	return codes.Unknown
}

// Is reports whether err carries the given status code.
func Is(err error, code codes.Code) bool {
	return err != nil && Code(err) == code
}

// InvalidArgumentf returns a codes.InvalidArgument error: caller-supplied shapes, types or counts
// violate a precondition.
func InvalidArgumentf(format string, args ...any) error {
	return Errorf(codes.InvalidArgument, format, args...)
}

// Unimplementedf returns a codes.Unimplemented error: a well-formed but unsupported operation.
func Unimplementedf(format string, args ...any) error {
	return Errorf(codes.Unimplemented, format, args...)
}

// ResourceExhaustedf returns a codes.ResourceExhausted error.
func ResourceExhaustedf(format string, args ...any) error {
	return Errorf(codes.ResourceExhausted, format, args...)
}

// FailedPreconditionf returns a codes.FailedPrecondition error.
func FailedPreconditionf(format string, args ...any) error {
	return Errorf(codes.FailedPrecondition, format, args...)
}

// Internalf returns a codes.Internal error: an invariant violation implying a bug or inconsistent state.
func Internalf(format string, args ...any) error {
	return Errorf(codes.Internal, format, args...)
}

// OutOfRangef returns a codes.OutOfRange error.
func OutOfRangef(format string, args ...any) error {
	return Errorf(codes.OutOfRange, format, args...)
}

// NotFoundf returns a codes.NotFound error, used for unknown handles.
func NotFoundf(format string, args ...any) error {
	return Errorf(codes.NotFound, format, args...)
}
