// Copyright 2024 The Raya Authors
// This file is part of Raya.
//
// Raya is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Raya is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Raya. If not, see <http://www.gnu.org/licenses/>.

// Package rerrors defines the closed set of error kinds the Raya core
// surfaces, per the core's error handling design. Every runtime-level error
// carries one of these kinds, discoverable with Kind(err) rather than by
// string matching.
package rerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a runtime error into one of the categories the core must
// surface. It never grows an "Other" catch-all: new failure modes get a new
// Kind, not a fallback.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindStackOverflow
	KindStackUnderflow
	KindTypeError
	KindRuntimeError
	KindUnresolvedSymbol
	KindUnhandledThrow
	KindPermissionDenied
	KindReadonlyAssignment
	KindConstReassignment
	KindNotCallable
	KindArgumentCountMismatch
	KindIoError
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindStackOverflow:
		return "StackOverflow"
	case KindStackUnderflow:
		return "StackUnderflow"
	case KindTypeError:
		return "TypeError"
	case KindRuntimeError:
		return "RuntimeError"
	case KindUnresolvedSymbol:
		return "UnresolvedSymbol"
	case KindUnhandledThrow:
		return "UnhandledThrow"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindReadonlyAssignment:
		return "ReadonlyAssignment"
	case KindConstReassignment:
		return "ConstReassignment"
	case KindNotCallable:
		return "NotCallable"
	case KindArgumentCountMismatch:
		return "ArgumentCountMismatch"
	case KindIoError:
		return "IoError"
	case KindNotImplemented:
		return "NotImplemented"
	default:
		return "Unknown"
	}
}

// Error is a Raya runtime error: a Kind plus a human-readable message and an
// optional wrapped cause.
type Error struct {
	K       Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.K, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.K, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error of the given kind.
func New(k Kind, format string, args ...any) *Error {
	return &Error{K: k, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error of the given kind wrapping cause.
func Wrap(k Kind, cause error, format string, args ...any) *Error {
	return &Error{K: k, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the Kind carried by err, or KindUnknown if err does not
// carry a Raya error kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.K
	}
	return KindUnknown
}

// Convenience constructors for the common Kinds, so call
// sites read like ErrStackOverflow-style sentinels while still letting
// every instance carry a specific message.

func StackOverflow(msg string, args ...any) *Error {
	return New(KindStackOverflow, msg, args...)
}

func StackUnderflow(msg string, args ...any) *Error {
	return New(KindStackUnderflow, msg, args...)
}

func TypeError(msg string, args ...any) *Error {
	return New(KindTypeError, msg, args...)
}

func RuntimeError(msg string, args ...any) *Error {
	return New(KindRuntimeError, msg, args...)
}

func UnresolvedSymbol(msg string, args ...any) *Error {
	return New(KindUnresolvedSymbol, msg, args...)
}

func PermissionDenied(msg string, args ...any) *Error {
	return New(KindPermissionDenied, msg, args...)
}

func ReadonlyAssignment(msg string, args ...any) *Error {
	return New(KindReadonlyAssignment, msg, args...)
}

func NotCallable(msg string, args ...any) *Error {
	return New(KindNotCallable, msg, args...)
}

func ArgumentCountMismatch(msg string, args ...any) *Error {
	return New(KindArgumentCountMismatch, msg, args...)
}

func IoError(msg string, args ...any) *Error {
	return New(KindIoError, msg, args...)
}

// ErrNotImplemented is returned by reflective operations the core
// deliberately leaves unimplemented (invoke/invokeAsync/invokeStatic — see
// spec Open Questions). Rejecting with a clear error is the documented
// alternative to misbehaving.
var ErrNotImplemented = New(KindNotImplemented, "operation not implemented")
