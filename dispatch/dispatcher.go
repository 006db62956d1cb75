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

// Package dispatch defines the EventDispatcher contract: post a message,
// register or unregister handlers for it, and identify the owning thread.
// It is implemented concretely by package selector.
package dispatch

import "github.com/loopkit/evcore/message"

// Invocation is bound to a (kind, receiver) pair in a Registry and called
// with the Message that matched it. The dispatcher releases its own
// reference to msg after the Invocations for it return; Invocation must
// Retain msg if it needs to keep it beyond the call.
type Invocation func(msg *message.Message)

// ThreadID identifies the worker goroutine that owns an EventDispatcher.
// It supports identity comparison only, never dereferencing.
type ThreadID uint64

// EventDispatcher is the abstract post-message-and-dispatch contract
// implemented by Selector.
type EventDispatcher interface {
	// PostMessage may be called from any thread; msg is delivered on the
	// owning thread, in FIFO order relative to other PostMessage calls
	// made by the same caller goroutine.
	PostMessage(msg *message.Message) error

	// RegisterHandler binds (kind, receiver) to invocation. Must be called
	// from the owning thread, or before the loop starts. Multiple
	// receivers per kind are permitted.
	RegisterHandler(kind uint32, receiver interface{}, invocation Invocation) error

	// UnregisterHandler removes the (kind, receiver) binding, if any.
	UnregisterHandler(kind uint32, receiver interface{})

	// UnregisterAll removes every binding for receiver, regardless of kind.
	UnregisterAll(receiver interface{})

	// OwnerThread identifies the dispatcher's worker goroutine.
	OwnerThread() ThreadID
}
