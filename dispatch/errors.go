//
//
// Tencent is pleased to support the open source community by making tRPC available.
//
// Copyright (C) 2023 THL A29 Limited, a Tencent company.
// All rights reserved.
//
// If you have downloaded a copy of the tRPC source code from Tencent,
// please note that tRPC source code is licensed under the  Apache 2.0 License,
// A copy of the Apache 2.0 License is included in this file.
//
//

package dispatch

import "github.com/pkg/errors"

// Kind names the error kinds a Selector or Timer can surface to a foreign
// caller.
type Kind int

// Error kinds.
const (
	// Capacity means the listener table is full; addListener fails.
	Capacity Kind = iota
	// AlreadyShutDown means post/add was called on a shut-down Selector or
	// stopped Timer.
	AlreadyShutDown
	// WrongThread means shutdown was called from the worker thread itself.
	WrongThread
	// System wraps an underlying poll/read/write/pipe/thread-creation failure.
	System
	// NotFound names the outcome of a removeListener/removeTimedEvent that
	// matched nothing. No operation returns it: such a removal is a silent
	// success.
	NotFound
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Capacity:
		return "CAPACITY"
	case AlreadyShutDown:
		return "ALREADY_SHUT_DOWN"
	case WrongThread:
		return "WRONG_THREAD"
	case System:
		return "SYSTEM"
	case NotFound:
		return "NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Error is returned by Selector and Timer operations that fail.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Op + ": " + e.Kind.String()
}

// Unwrap allows errors.Is/errors.As to see through to the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds an *Error, wrapping cause (if non-nil) with op via
// github.com/pkg/errors for a useful stack-annotated message.
func NewError(kind Kind, op string, cause error) error {
	if cause != nil {
		cause = errors.Wrap(cause, op)
	}
	return &Error{Kind: kind, Op: op, Err: cause}
}

// Is reports whether err is a dispatch *Error of the given kind.
func Is(err error, kind Kind) bool {
	var de *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			de = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return de != nil && de.Kind == kind
}
