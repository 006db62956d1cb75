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

// Package message provides the immutable, reference-counted value posted
// through an EventDispatcher and armed on a Timer node.
package message

import "go.uber.org/atomic"

// InvalidKind matches any kind when used as a removal filter by Timer.RemoveTimedEvent.
const InvalidKind uint32 = 0xffffffff

// Message is an immutable, reference-counted value carrying a numeric
// kind-identifier and an opaque payload. A Message starts life with a
// refcount of one, owned by its creator; Retain and Release adjust it
// as the Message is shared between a producer, a dispatcher's queue,
// and (for timed events) a Timer node.
type Message struct {
	kind    uint32
	payload interface{}
	refs    atomic.Int32
}

// New creates a Message with an initial refcount of one.
func New(kind uint32, payload interface{}) *Message {
	m := &Message{kind: kind, payload: payload}
	m.refs.Store(1)
	return m
}

// Kind returns the message's kind identifier.
func (m *Message) Kind() uint32 {
	return m.kind
}

// Payload returns the message's opaque payload.
func (m *Message) Payload() interface{} {
	return m.payload
}

// Retain increments the refcount and returns m, for chaining at the call site
// that takes ownership of the new reference (queue enqueue, timer node arm).
func (m *Message) Retain() *Message {
	m.refs.Inc()
	return m
}

// Release decrements the refcount. The caller must call Release exactly once
// per Retain (or per the initial New), per invariant I4. Release on the last
// reference drops the payload so it can be garbage collected promptly.
func (m *Message) Release() {
	if m.refs.Dec() == 0 {
		m.payload = nil
	}
}

// RefCount returns the current refcount, for tests and diagnostics only.
func (m *Message) RefCount() int32 {
	return m.refs.Load()
}
