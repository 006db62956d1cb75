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

import (
	"github.com/loopkit/evcore/internal/locker"
)

// bindingKey identifies a Registry entry. receiver is compared by
// identity; the core never dereferences it.
type bindingKey struct {
	kind     uint32
	receiver interface{}
}

// Registry maps (kind, receiver) to an Invocation. It is guarded by a
// spinlock rather than a mutex, since lookups happen once per drained
// message on the dispatcher's own hot loop.
type Registry struct {
	mu       locker.Locker
	bindings map[bindingKey]Invocation
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[bindingKey]Invocation)}
}

// Register binds (kind, receiver) to invocation, replacing any existing
// binding for the same pair.
func (r *Registry) Register(kind uint32, receiver interface{}, invocation Invocation) {
	r.mu.Lock()
	r.bindings[bindingKey{kind, receiver}] = invocation
	r.mu.Unlock()
}

// Unregister removes the (kind, receiver) binding, if any.
func (r *Registry) Unregister(kind uint32, receiver interface{}) {
	r.mu.Lock()
	delete(r.bindings, bindingKey{kind, receiver})
	r.mu.Unlock()
}

// UnregisterAll removes every binding for receiver, regardless of kind.
func (r *Registry) UnregisterAll(receiver interface{}) {
	r.mu.Lock()
	for key := range r.bindings {
		if key.receiver == receiver {
			delete(r.bindings, key)
		}
	}
	r.mu.Unlock()
}

// Lookup returns the invocation bound to (kind, receiver), and whether one
// was found.
func (r *Registry) Lookup(kind uint32, receiver interface{}) (Invocation, bool) {
	r.mu.Lock()
	invocation, ok := r.bindings[bindingKey{kind, receiver}]
	r.mu.Unlock()
	return invocation, ok
}

// LookupByKind returns every invocation registered for kind, across all
// receivers. A posted Message carries no target receiver of its own;
// delivery therefore fans a message out to every receiver currently bound
// to its kind, the same way a readiness event on one fd fans out to every
// matching ListenerEntry.
func (r *Registry) LookupByKind(kind uint32) []Invocation {
	r.mu.Lock()
	invocations := make([]Invocation, 0, len(r.bindings))
	for key, invocation := range r.bindings {
		if key.kind == kind {
			invocations = append(invocations, invocation)
		}
	}
	r.mu.Unlock()
	return invocations
}
