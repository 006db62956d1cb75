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

// Package wake provides the unidirectional byte pipe a Selector uses to
// preempt its poll-style wait from any thread.
package wake

import (
	"os"

	"go.uber.org/atomic"
	"golang.org/x/sys/unix"

	"github.com/loopkit/evcore/metrics"
)

// Chan is a wake channel: writers append one byte per wake request, the
// Selector worker drains all available bytes on each return from its wait.
// Multiple coalesced wakes are acceptable, so a Write that observes a
// pending, undrained byte is free to skip the syscall (invariant I2).
type Chan struct {
	r, w    int
	pending atomic.Bool
}

// New creates a wake channel. Both ends are close-on-exec; the read end is
// non-blocking so Drain never stalls the worker.
func New() (*Chan, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		return nil, os.NewSyscallError("pipe2", err)
	}
	return &Chan{r: fds[0], w: fds[1]}, nil
}

// ReadFD returns the descriptor the Selector should add to its poll set at
// index 0.
func (c *Chan) ReadFD() int {
	return c.r
}

// Write requests a wake-up. It is safe to call from any thread, coalesces
// with any wake not yet drained, retries on EINTR, and tolerates EAGAIN
// (the pipe buffer already holds an undrained byte).
func (c *Chan) Write() error {
	if !c.pending.CAS(false, true) {
		return nil
	}
	buf := [1]byte{1}
	for {
		_, err := unix.Write(c.w, buf[:])
		switch err {
		case nil:
			metrics.Add(metrics.WakeWrites, 1)
			return nil
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			return nil
		default:
			return os.NewSyscallError("write", err)
		}
	}
}

// Drain reads and discards every byte currently buffered on the read end,
// then clears the pending flag so a subsequent Write issues a fresh byte.
// The flag must be cleared after the drain loop, not before: clearing it
// first would let a Write landing mid-drain win its CAS and write a byte
// that this Drain then consumes, leaving pending true with nothing left in
// the pipe. Every later Write then coalesces away, and the worker's
// following unix.Poll blocks forever.
func (c *Chan) Drain() {
	buf := make([]byte, 64)
	for {
		n, err := unix.Read(c.r, buf)
		if n > 0 {
			metrics.Add(metrics.WakeReads, uint64(n))
		}
		if err == unix.EINTR {
			continue
		}
		if n < len(buf) {
			break
		}
	}
	c.pending.Store(false)
}

// Close closes both ends of the channel.
func (c *Chan) Close() error {
	err1 := unix.Close(c.r)
	err2 := unix.Close(c.w)
	if err1 != nil {
		return os.NewSyscallError("close", err1)
	}
	if err2 != nil {
		return os.NewSyscallError("close", err2)
	}
	return nil
}
