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

// Package metrics provides runtime monitoring data for the Selector and
// Timer, useful for diagnosing wake-up storms, listener-table pressure,
// and timer drift in long-running processes.
package metrics

import (
	"time"

	"go.uber.org/atomic"

	"github.com/loopkit/evcore/internal/safejob"
	"github.com/loopkit/evcore/log"
)

// All metrics definitions.
const (
	// The following constants are Selector/poll metrics.

	PollWaitCalls = iota
	PollWaitEvents
	WakeWrites
	WakeReads
	ListenersAdded
	ListenersRemoved
	ListenersRejectedCapacity
	ListenerRebuilds

	// The following constants are EventDispatcher/message metrics.

	MessagesPosted
	MessagesDispatched
	MessagesDroppedNoHandler

	// The following constants are Timer metrics.

	TimerNodesAdded
	TimerNodesFired
	TimerNodesRemoved
	TimerNodesDiscardedOnStop
	TimerTicks

	// Keep it last.

	Max
)

var counters [Max]atomic.Uint64

// Add adds delta to the counter named name.
func Add(name int, delta uint64) {
	if name < 0 || name >= Max {
		return
	}
	counters[name].Add(delta)
}

// Get returns the counter named name.
func Get(name int) uint64 {
	if name < 0 || name >= Max {
		return 0
	}
	return counters[name].Load()
}

// GetAll returns every counter.
func GetAll() [Max]uint64 {
	var m [Max]uint64
	for i := range counters {
		m[i] = counters[i].Load()
	}
	return m
}

var periodJob safejob.ExclusiveUnblockJob

// ShowMetricsOfPeriod blocks for d, then logs the delta of every counter
// observed over that period. A call made while a prior one is still
// sleeping out its period returns immediately instead of queuing up
// behind it, so an operator mashing this on a debug endpoint can't pile
// up overlapping windows that would each double-count the same deltas.
func ShowMetricsOfPeriod(d time.Duration) {
	if !periodJob.Begin() {
		return
	}
	defer periodJob.End()

	old := GetAll()
	<-time.After(d)
	latest := GetAll()
	var delta [Max]uint64
	for i := range counters {
		delta[i] = latest[i] - old[i]
	}
	showAll(delta)
}

// ShowMetrics logs the current value of every counter.
func ShowMetrics() {
	showAll(GetAll())
}

func showAll(m [Max]uint64) {
	log.Debug("######### evcore metrics (", time.Now().Format("2006-01-02 15:04:05"), ") ###########")
	log.Debugf("%-45s: %d", "# poll - number of wait returns", m[PollWaitCalls])
	log.Debugf("%-45s: %d", "# poll - number of ready events", m[PollWaitEvents])
	log.Debugf("%-45s: %d", "# wake - bytes written", m[WakeWrites])
	log.Debugf("%-45s: %d", "# wake - bytes drained", m[WakeReads])
	log.Debugf("%-45s: %d", "# listeners - added", m[ListenersAdded])
	log.Debugf("%-45s: %d", "# listeners - removed", m[ListenersRemoved])
	log.Debugf("%-45s: %d", "# listeners - rejected (capacity)", m[ListenersRejectedCapacity])
	log.Debugf("%-45s: %d", "# listeners - table rebuilds", m[ListenerRebuilds])
	log.Debugf("%-45s: %d", "# messages - posted", m[MessagesPosted])
	log.Debugf("%-45s: %d", "# messages - dispatched", m[MessagesDispatched])
	log.Debugf("%-45s: %d", "# messages - dropped (no handler)", m[MessagesDroppedNoHandler])
	log.Debugf("%-45s: %d", "# timer - nodes added", m[TimerNodesAdded])
	log.Debugf("%-45s: %d", "# timer - nodes fired", m[TimerNodesFired])
	log.Debugf("%-45s: %d", "# timer - nodes removed", m[TimerNodesRemoved])
	log.Debugf("%-45s: %d", "# timer - nodes discarded on stop", m[TimerNodesDiscardedOnStop])
	log.Debugf("%-45s: %d", "# timer - ticks elapsed", m[TimerTicks])
}
