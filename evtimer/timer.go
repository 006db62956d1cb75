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

// Package evtimer implements the Timer service: an independently-running
// tick thread that fires one-shot and periodic messages or callbacks,
// posting messages into an EventDispatcher or invoking a TimerListener
// directly on the tick thread.
package evtimer

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/loopkit/evcore/dispatch"
	"github.com/loopkit/evcore/internal/timer"
	"github.com/loopkit/evcore/log"
	"github.com/loopkit/evcore/message"
	"github.com/loopkit/evcore/metrics"
)

// Timer owns a tick thread, a node list ordered by insertion, and a
// monotonic tick counter. At most one tick thread runs per Timer at a
// time.
type Timer struct {
	name      string
	tickMs    uint32
	stoppable bool

	mu      sync.Mutex
	nodes   []*TimerNode
	ticks   uint32
	running bool
	quit    chan struct{}
	done    chan struct{}
}

// New creates a Timer with the given tick resolution and starts its tick
// thread immediately. If stoppable is false, Stop is a no-op.
func New(tickMs uint32, stoppable bool, opts ...Option) (*Timer, error) {
	if tickMs == 0 {
		return nil, dispatch.NewError(dispatch.System, "evtimer.New", errors.New("tickMs must be greater than zero"))
	}
	cfg := config{name: "evtimer"}
	for _, opt := range opts {
		opt(&cfg)
	}
	t := &Timer{name: cfg.name, tickMs: tickMs, stoppable: stoppable}
	t.startLocked()
	return t, nil
}

// TickTime returns the Timer's tick resolution.
func (t *Timer) TickTime() time.Duration {
	return time.Duration(t.tickMs) * time.Millisecond
}

// Start restarts a stopped tick thread, resetting the tick counter to
// zero. It is a no-op if the Timer is already running.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.startLocked()
}

func (t *Timer) startLocked() {
	t.ticks = 0
	t.running = true
	t.quit = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(t.quit, t.done)
}

// Stop stops a running tick thread and discards every pending node
// without firing it, releasing each discarded message exactly once. It is
// a no-op if stoppable is false, or if the Timer is already stopped.
func (t *Timer) Stop() {
	if !t.stoppable {
		return
	}
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	quit, done := t.quit, t.done
	discarded := t.nodes
	t.nodes = nil
	t.mu.Unlock()

	close(quit)
	<-done

	for _, n := range discarded {
		releaseNode(n)
	}
	metrics.Add(metrics.TimerNodesDiscardedOnStop, uint64(len(discarded)))
}

// SendTimedEvent arms a one-shot node that posts msg to dispatcher at
// fireTick = currentTick + ceil(delayMs / tickMs).
func (t *Timer) SendTimedEvent(msg *message.Message, dispatcher dispatch.EventDispatcher, delayMs uint32) error {
	return t.arm(&TimerNode{msg: msg.Retain(), dispatcher: dispatcher}, delayMs)
}

// SendPeriodicEvent arms a periodic node that posts msg to dispatcher every
// periodMs, drift-corrected via carryMs.
func (t *Timer) SendPeriodicEvent(msg *message.Message, dispatcher dispatch.EventDispatcher, periodMs uint32) error {
	return t.arm(&TimerNode{msg: msg.Retain(), dispatcher: dispatcher, periodMs: periodMs}, periodMs)
}

// AddTimer arms a one-shot node that calls listener.OnTimeout(cookie) on
// the tick thread at fireTick = currentTick + ceil(delayMs / tickMs).
func (t *Timer) AddTimer(listener TimerListener, delayMs uint32, cookie uintptr) error {
	return t.arm(&TimerNode{listener: listener, cookie: cookie}, delayMs)
}

// AddPeriodicTimer arms a periodic node that calls listener.OnTimeout
// every periodMs, drift-corrected via carryMs.
func (t *Timer) AddPeriodicTimer(listener TimerListener, periodMs uint32, cookie uintptr) error {
	return t.arm(&TimerNode{listener: listener, cookie: cookie, periodMs: periodMs}, periodMs)
}

func (t *Timer) arm(n *TimerNode, delayOrPeriodMs uint32) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		releaseNode(n)
		return dispatch.NewError(dispatch.AlreadyShutDown, "evtimer.arm", nil)
	}
	n.fireTick = t.ticks + ceilDivTicks(delayOrPeriodMs, t.tickMs)
	t.nodes = append(t.nodes, n)
	t.mu.Unlock()
	metrics.Add(metrics.TimerNodesAdded, 1)
	return nil
}

// RemoveTimedEvent removes every node whose message kind matches kind
// (message.InvalidKind matches any kind) and whose dispatcher matches
// dispatcher. A removal that matches nothing is a silent success.
func (t *Timer) RemoveTimedEvent(kind uint32, dispatcher dispatch.EventDispatcher) {
	t.removeMatching(func(n *TimerNode) bool {
		return n.msg != nil && n.dispatcher == dispatcher && (kind == message.InvalidKind || n.msg.Kind() == kind)
	})
}

// RemoveTimedEventByMessage removes every node whose armed message is msg,
// compared by identity.
func (t *Timer) RemoveTimedEventByMessage(msg *message.Message) {
	t.removeMatching(func(n *TimerNode) bool {
		return n.msg == msg
	})
}

// RemoveAgentsByReceiver removes every callback-style node whose listener
// is receiver, and, if dispatcher is non-nil, whose dispatcher also
// matches. Message-based nodes have no receiver of their own: the
// invocation they target lives in the dispatcher's handler registry, not
// on the TimerNode, so this applies only to AddTimer/AddPeriodicTimer
// nodes; removing a message-bound node by its handler's receiver is done
// via RemoveTimedEvent(kind, dispatcher) instead.
func (t *Timer) RemoveAgentsByReceiver(receiver TimerListener, dispatcher dispatch.EventDispatcher) {
	t.removeMatching(func(n *TimerNode) bool {
		return n.listener != nil && n.listener == receiver && (dispatcher == nil || n.dispatcher == dispatcher)
	})
}

func (t *Timer) removeMatching(match func(*TimerNode) bool) {
	t.mu.Lock()
	kept := t.nodes[:0:0]
	var removed []*TimerNode
	for _, n := range t.nodes {
		if match(n) {
			removed = append(removed, n)
			continue
		}
		kept = append(kept, n)
	}
	t.nodes = kept
	t.mu.Unlock()

	for _, n := range removed {
		releaseNode(n)
	}
	if len(removed) > 0 {
		metrics.Add(metrics.TimerNodesRemoved, uint64(len(removed)))
	}
}

func releaseNode(n *TimerNode) {
	if n.msg != nil {
		n.msg.Release()
	}
}

// run is the tick thread: sleep for tickMs using internal/timer's
// monotonic-deadline wrapper, then advance the tick counter and fire
// every expired node.
func (t *Timer) run(quit, done chan struct{}) {
	defer close(done)

	interval := time.Duration(t.tickMs) * time.Millisecond
	sleeper := timer.New(time.Now().Add(interval))
	sleeper.Start()
	for {
		select {
		case <-quit:
			sleeper.Stop()
			return
		case <-sleeper.Wait():
		}
		t.tick()
		sleeper.Reset(time.Now().Add(interval))
		sleeper.Start()
	}
}

func (t *Timer) tick() {
	t.mu.Lock()
	t.ticks++
	ticks := t.ticks
	kept := t.nodes[:0:0]
	var fired []*TimerNode
	for _, n := range t.nodes {
		if !tickLE(n.fireTick, ticks) {
			kept = append(kept, n)
			continue
		}
		fired = append(fired, n)
		if n.periodMs > 0 {
			n.rearm(t.tickMs)
			kept = append(kept, n)
		}
	}
	t.nodes = kept
	t.mu.Unlock()

	metrics.Add(metrics.TimerTicks, 1)
	for _, n := range fired {
		t.fire(n)
	}
}

func (t *Timer) fire(n *TimerNode) {
	metrics.Add(metrics.TimerNodesFired, 1)
	oneShot := n.periodMs == 0
	if n.msg != nil {
		if err := n.dispatcher.PostMessage(n.msg); err != nil {
			log.Debugf("evtimer %s: post on fire: %v", t.name, err)
		}
		if oneShot {
			n.msg.Release()
		}
		return
	}
	n.listener.OnTimeout(n.cookie)
}
