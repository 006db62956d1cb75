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

package evtimer

import (
	"github.com/loopkit/evcore/dispatch"
	"github.com/loopkit/evcore/message"
)

// TimerListener is invoked directly on the Timer's tick thread by a
// callback-style TimerNode. Callbacks run with the Timer's lock released;
// a TimerListener must not block on anything that itself waits for this
// Timer.
type TimerListener interface {
	OnTimeout(cookie uintptr)
}

// TimerNode is a single scheduled unit: either a message bound for a
// dispatcher, or a direct callback on a TimerListener, never both.
// periodMs == 0 means one-shot.
type TimerNode struct {
	msg        *message.Message
	dispatcher dispatch.EventDispatcher
	listener   TimerListener
	cookie     uintptr

	fireTick uint32
	periodMs uint32
	carryMs  uint32
}

// rearm computes this node's next fireTick after firing at ticks, using a
// drift-correcting formula: the remainder of periodMs that didn't divide
// evenly into whole ticks accumulates in carryMs and bumps the next
// interval by one extra tick once it reaches a full tickMs.
func (n *TimerNode) rearm(tickMs uint32) {
	whole := n.periodMs / tickMs
	carry := n.carryMs + n.periodMs%tickMs
	var extra uint32
	if carry >= tickMs {
		extra = 1
		carry -= tickMs
	}
	n.fireTick = n.fireTick + whole + extra
	n.carryMs = carry
}

// tickLE reports whether a is not later than b, using a modular
// wraparound-tolerant comparison for the 32-bit tick counter.
func tickLE(a, b uint32) bool {
	return int32(a-b) <= 0
}

// ceilDivTicks returns ceil(ms / tickMs), the number of ticks needed to
// cover at least ms milliseconds.
func ceilDivTicks(ms, tickMs uint32) uint32 {
	return (ms + tickMs - 1) / tickMs
}
