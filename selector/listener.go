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

package selector

import (
	"go.uber.org/atomic"
	"golang.org/x/sys/unix"
)

// EventMask is a bitset of readiness classes a ListenerEntry can register
// for. Error, Hangup and Invalid are always reported to a matching
// listener regardless of whether they were requested.
type EventMask uint32

// Readiness classes.
const (
	Readable EventMask = 1 << iota
	Writable
	Priority
	Error
	Hangup
	Invalid
)

// alwaysReported is OR'd into every comparison against a registered mask;
// these bits are delivered even when the listener did not ask for them.
const alwaysReported = Error | Hangup | Invalid

// String renders the set bits of m for logging.
func (m EventMask) String() string {
	names := []struct {
		bit  EventMask
		name string
	}{
		{Readable, "READABLE"}, {Writable, "WRITABLE"}, {Priority, "PRIORITY"},
		{Error, "ERROR"}, {Hangup, "HANGUP"}, {Invalid, "INVALID"},
	}
	s := ""
	for _, n := range names {
		if m&n.bit != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// maskToPoll converts the subset of m the kernel can be asked to watch for
// (Readable/Writable/Priority) into a poll(2) events bitmask. Error/Hangup/
// Invalid are never requested; the kernel reports them unconditionally.
func maskToPoll(m EventMask) int16 {
	var ev int16
	if m&Readable != 0 {
		ev |= unix.POLLIN
	}
	if m&Writable != 0 {
		ev |= unix.POLLOUT
	}
	if m&Priority != 0 {
		ev |= unix.POLLPRI
	}
	return ev
}

// pollToMask converts poll(2) revents into an EventMask.
func pollToMask(revents int16) EventMask {
	var m EventMask
	if revents&unix.POLLIN != 0 {
		m |= Readable
	}
	if revents&unix.POLLOUT != 0 {
		m |= Writable
	}
	if revents&unix.POLLPRI != 0 {
		m |= Priority
	}
	if revents&unix.POLLERR != 0 {
		m |= Error
	}
	if revents&(unix.POLLHUP|unix.POLLRDHUP) != 0 {
		m |= Hangup
	}
	if revents&unix.POLLNVAL != 0 {
		m |= Invalid
	}
	return m
}

// Listener is the capability a caller registers with a Selector.
// ProcessFileEvents is invoked on the Selector's worker goroutine with the
// descriptor, the events poll(2) reported for it (every matching entry on
// the same fd receives the same bits, which can include bits only another
// entry on that fd registered for) and the cookie chosen at registration.
// A Listener must not call Shutdown on the Selector that owns it from
// within ProcessFileEvents; AddListener/RemoveListener are permitted and
// take effect no later than the next rebuild.
type Listener interface {
	ProcessFileEvents(fd int, events EventMask, cookie uintptr)
}

// ListenerEntry is a single (fd, mask, listener, cookie) registration.
// Equality for lookup/removal purposes follows the wildcard rule: an fd
// match AND (a listener match OR either side is the nil wildcard
// sentinel).
type ListenerEntry struct {
	fd       int
	mask     EventMask
	listener Listener
	cookie   uintptr
	removed  atomic.Bool
}

// matches implements the ListenerEntry equality rule, with listener == nil
// acting as the wildcard sentinel on either side of the comparison.
func (e *ListenerEntry) matches(fd int, listener Listener) bool {
	if e.fd != fd {
		return false
	}
	return listener == nil || e.listener == nil || e.listener == listener
}
