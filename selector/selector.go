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

// Package selector implements the Selector: an owned worker goroutine
// that multiplexes descriptor readiness against a listener table and
// drains a FIFO queue of posted messages, concretely implementing
// dispatch.EventDispatcher.
package selector

import (
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/loopkit/evcore/dispatch"
	"github.com/loopkit/evcore/internal/goid"
	"github.com/loopkit/evcore/internal/wake"
	"github.com/loopkit/evcore/log"
	"github.com/loopkit/evcore/message"
	"github.com/loopkit/evcore/metrics"
)

// Selector owns exactly one worker goroutine, a listener table, a wake
// channel, and a handler registry, and concretely implements
// dispatch.EventDispatcher.
type Selector struct {
	name            string
	maxPollFds      int
	ignoreTaskError bool

	wakeCh *wake.Chan

	tableMu   sync.Mutex
	cond      *sync.Cond
	listeners []*ListenerEntry
	dirty     bool
	pollfds   []unix.PollFd

	registry *dispatch.Registry

	queueMu sync.Mutex
	queue   []*message.Message

	workerID atomic.Uint64
	cl       closer
	ready    chan struct{}
	done     chan struct{}
}

// New constructs a Selector and starts its worker goroutine. It fails only
// if the wake channel cannot be created.
func New(opts ...Option) (*Selector, error) {
	cfg := config{name: "selector", maxPollFds: kMaxPollFds}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxPollFds < 2 {
		cfg.maxPollFds = kMaxPollFds
	}

	w, err := wake.New()
	if err != nil {
		return nil, dispatch.NewError(dispatch.System, "selector.New", err)
	}

	s := &Selector{
		name:            cfg.name,
		maxPollFds:      cfg.maxPollFds,
		ignoreTaskError: cfg.ignoreTaskError,
		wakeCh:          w,
		registry:        dispatch.NewRegistry(),
		pollfds:         []unix.PollFd{{Fd: int32(w.ReadFD()), Events: unix.POLLIN}},
		ready:           make(chan struct{}),
		done:            make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.tableMu)

	go s.threadMain()
	<-s.ready
	return s, nil
}

// OwnerThread returns the identity of the Selector's worker goroutine.
func (s *Selector) OwnerThread() dispatch.ThreadID {
	return dispatch.ThreadID(s.workerID.Load())
}

func (s *Selector) onWorker() bool {
	return goid.Get() == s.workerID.Load()
}

// Shutdown requests the worker to exit, wakes it, and joins it. It is
// idempotent: a second call returns nil without side effects. Calling
// Shutdown from the Selector's own worker goroutine is an error.
func (s *Selector) Shutdown() error {
	if s.onWorker() {
		return dispatch.NewError(dispatch.WrongThread, "Shutdown", nil)
	}
	if !s.cl.beginShutdown() {
		return nil
	}
	s.cl.close()
	_ = s.wakeCh.Write()
	<-s.done
	return nil
}

// AddListener registers a ListenerEntry. It may be called from any
// goroutine, including the worker's own (from within a Listener callback).
// When called from a foreign goroutine, it returns only after the worker
// has absorbed the change, so that on return, readiness on fd is
// guaranteed to be delivered to listener.
func (s *Selector) AddListener(fd int, mask EventMask, listener Listener, cookie uintptr) error {
	if !s.cl.begin() {
		return dispatch.NewError(dispatch.AlreadyShutDown, "AddListener", nil)
	}
	defer s.cl.end()

	s.tableMu.Lock()
	if !s.hasFDLocked(fd) && s.distinctFDsLocked()+1 > s.maxPollFds-1 {
		s.tableMu.Unlock()
		metrics.Add(metrics.ListenersRejectedCapacity, 1)
		return dispatch.NewError(dispatch.Capacity, "AddListener", nil)
	}
	s.listeners = append(s.listeners, &ListenerEntry{fd: fd, mask: mask, listener: listener, cookie: cookie})
	s.dirty = true
	onWorker := s.onWorker()
	s.tableMu.Unlock()

	metrics.Add(metrics.ListenersAdded, 1)

	if onWorker {
		// Already running on the worker goroutine: the rebuild this entry
		// needs happens at the top of the worker's own next iteration.
		// Waiting on the condition variable here would deadlock, since
		// nothing else will ever perform that rebuild.
		return nil
	}
	if err := s.wakeCh.Write(); err != nil {
		return dispatch.NewError(dispatch.System, "AddListener", err)
	}
	s.waitForRebuild()
	return nil
}

// RemoveListener removes every ListenerEntry matching (fd, listener) per
// the wildcard equality rule. A foreign caller blocks until the worker has
// absorbed the removal, except for one invocation already executing on
// the worker thread at the moment of the call, which completes before the
// removal takes effect. A removal that matches nothing is a silent
// success.
func (s *Selector) RemoveListener(fd int, listener Listener) error {
	s.tableMu.Lock()
	removedAny := s.removeListenerLocked(fd, listener)
	if removedAny {
		s.dirty = true
	}
	onWorker := s.onWorker()
	s.tableMu.Unlock()

	if !removedAny {
		return nil
	}
	metrics.Add(metrics.ListenersRemoved, 1)

	if onWorker {
		return nil
	}
	select {
	case <-s.done:
		// The worker has exited and closed the wake channel; there is no
		// poll set left to rebuild.
		return nil
	default:
	}
	if err := s.wakeCh.Write(); err != nil {
		return dispatch.NewError(dispatch.System, "RemoveListener", err)
	}
	s.waitForRebuild()
	return nil
}

// removeListenerLocked removes every matching entry, tombstoning it first
// so a callListeners pass already holding a snapshot of it skips the
// invocation. Caller holds tableMu.
func (s *Selector) removeListenerLocked(fd int, listener Listener) bool {
	kept := s.listeners[:0:0]
	removedAny := false
	for _, e := range s.listeners {
		if e.matches(fd, listener) {
			e.removed.Store(true)
			removedAny = true
			continue
		}
		kept = append(kept, e)
	}
	s.listeners = kept
	return removedAny
}

func (s *Selector) hasFDLocked(fd int) bool {
	for _, e := range s.listeners {
		if e.fd == fd {
			return true
		}
	}
	return false
}

func (s *Selector) distinctFDsLocked() int {
	seen := make(map[int]struct{}, len(s.listeners))
	for _, e := range s.listeners {
		seen[e.fd] = struct{}{}
	}
	return len(seen)
}

// waitForRebuild blocks until the worker clears the dirty flag, which it
// does immediately after rebuilding its poll set and before its next wait.
func (s *Selector) waitForRebuild() {
	s.tableMu.Lock()
	for s.dirty {
		s.cond.Wait()
	}
	s.tableMu.Unlock()
}

// PostMessage enqueues msg and wakes the worker. Enqueue happens under
// queueMu before the wake write, guaranteeing the worker never observes
// the wake without also observing the enqueue.
func (s *Selector) PostMessage(msg *message.Message) error {
	if !s.cl.begin() {
		return dispatch.NewError(dispatch.AlreadyShutDown, "PostMessage", nil)
	}
	defer s.cl.end()
	msg.Retain()
	s.queueMu.Lock()
	s.queue = append(s.queue, msg)
	s.queueMu.Unlock()
	metrics.Add(metrics.MessagesPosted, 1)
	if err := s.wakeCh.Write(); err != nil {
		return dispatch.NewError(dispatch.System, "PostMessage", err)
	}
	return nil
}

// RegisterHandler binds (kind, receiver) to invocation. It may be called
// from any goroutine; the underlying registry is itself safe for
// concurrent mutation.
func (s *Selector) RegisterHandler(kind uint32, receiver interface{}, invocation dispatch.Invocation) error {
	if !s.cl.begin() {
		return dispatch.NewError(dispatch.AlreadyShutDown, "RegisterHandler", nil)
	}
	defer s.cl.end()
	s.registry.Register(kind, receiver, invocation)
	return nil
}

// UnregisterHandler removes the (kind, receiver) binding, if any.
func (s *Selector) UnregisterHandler(kind uint32, receiver interface{}) {
	s.registry.Unregister(kind, receiver)
}

// UnregisterAll removes every binding for receiver, regardless of kind.
func (s *Selector) UnregisterAll(receiver interface{}) {
	s.registry.UnregisterAll(receiver)
}

// threadMain is the Selector's main loop.
func (s *Selector) threadMain() {
	s.workerID.Store(goid.Get())
	close(s.ready)
	defer s.finish()

	for {
		s.tableMu.Lock()
		if s.dirty {
			s.rebuildLocked()
			s.dirty = false
			s.cond.Broadcast()
		}
		pollfds := s.pollfds
		s.tableMu.Unlock()

		n, err := unix.Poll(pollfds, -1)
		metrics.Add(metrics.PollWaitCalls, 1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Errorf("selector %s: poll: %v", s.name, err)
			return
		}
		metrics.Add(metrics.PollWaitEvents, uint64(n))

		if pollfds[0].Revents != 0 {
			s.wakeCh.Drain()
		}
		for _, pfd := range pollfds[1:] {
			if pfd.Revents == 0 {
				continue
			}
			s.callListeners(int(pfd.Fd), pollToMask(pfd.Revents))
		}

		s.drainMessages()

		if s.cl.closed() {
			return
		}
	}
}

// rebuildLocked rebuilds the compact poll(2) array from the listener
// table, unioning the mask of every entry sharing an fd. Caller holds
// tableMu.
func (s *Selector) rebuildLocked() {
	order := make([]int, 0, len(s.listeners))
	masks := make(map[int]EventMask, len(s.listeners))
	for _, e := range s.listeners {
		if _, ok := masks[e.fd]; !ok {
			order = append(order, e.fd)
		}
		masks[e.fd] |= e.mask
	}
	pollfds := make([]unix.PollFd, 1+len(order))
	pollfds[0] = unix.PollFd{Fd: int32(s.wakeCh.ReadFD()), Events: unix.POLLIN}
	for i, fd := range order {
		pollfds[i+1] = unix.PollFd{Fd: int32(fd), Events: maskToPoll(masks[fd])}
	}
	s.pollfds = pollfds
	metrics.Add(metrics.ListenerRebuilds, 1)
}

// callListeners invokes every ListenerEntry matching fd whose registered
// mask intersects revents, or that is always reported (Error/Hangup/
// Invalid). The snapshot is taken under tableMu, then invoked with the
// lock released so a callback may itself call AddListener/RemoveListener
// without deadlocking. Invocation order is registration order; an entry
// removed during this same pass (removed.Load()) is skipped.
func (s *Selector) callListeners(fd int, revents EventMask) {
	s.tableMu.Lock()
	var matches []*ListenerEntry
	for _, e := range s.listeners {
		if e.fd != fd {
			continue
		}
		if e.mask&revents != 0 || revents&alwaysReported != 0 {
			matches = append(matches, e)
		}
	}
	s.tableMu.Unlock()

	for _, e := range matches {
		if e.removed.Load() {
			continue
		}
		s.invoke(e, fd, revents)
	}
}

func (s *Selector) invoke(e *ListenerEntry, fd int, revents EventMask) {
	if !s.ignoreTaskError {
		e.listener.ProcessFileEvents(fd, revents, e.cookie)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("selector %s: listener panic on fd %d: %v", s.name, fd, r)
		}
	}()
	e.listener.ProcessFileEvents(fd, revents, e.cookie)
}

// drainMessages pops the message queue FIFO until empty, dispatching each
// message to every handler registered for its kind.
func (s *Selector) drainMessages() {
	for {
		s.queueMu.Lock()
		if len(s.queue) == 0 {
			s.queueMu.Unlock()
			return
		}
		msg := s.queue[0]
		s.queue = s.queue[1:]
		s.queueMu.Unlock()
		s.dispatchMessage(msg)
	}
}

func (s *Selector) dispatchMessage(msg *message.Message) {
	defer msg.Release()
	invocations := s.registry.LookupByKind(msg.Kind())
	if len(invocations) == 0 {
		metrics.Add(metrics.MessagesDroppedNoHandler, 1)
		return
	}
	for _, invocation := range invocations {
		invocation(msg)
	}
	metrics.Add(metrics.MessagesDispatched, 1)
}

// finish releases every message still queued at shutdown, closes the wake
// channel, and unblocks Shutdown.
func (s *Selector) finish() {
	s.queueMu.Lock()
	remaining := s.queue
	s.queue = nil
	s.queueMu.Unlock()
	for _, msg := range remaining {
		msg.Release()
	}

	s.tableMu.Lock()
	s.dirty = false
	s.cond.Broadcast()
	s.tableMu.Unlock()

	if err := s.wakeCh.Close(); err != nil {
		log.Errorf("selector %s: close wake channel: %v", s.name, err)
	}
	close(s.done)
}
