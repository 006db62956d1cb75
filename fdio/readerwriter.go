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

// Package fdio provides a descriptor-reader convenience layer: a thin
// wrapper that forwards Read/Write/Close to a raw descriptor and binds
// itself to a selector.Selector, using golang.org/x/sys/unix for the
// underlying syscalls.
package fdio

import (
	"golang.org/x/sys/unix"

	"github.com/loopkit/evcore/internal/safejob"
	"github.com/loopkit/evcore/selector"
)

// ReaderWriter wraps a raw, already-open descriptor and optionally binds
// it to a selector.Selector so readiness on the descriptor is delivered to
// a selector.Listener.
type ReaderWriter struct {
	fd  int
	sel *selector.Selector
	l   selector.Listener

	closeOnce safejob.OnceJob
}

// New wraps fd. The caller retains ownership of fd; Close closes it.
func New(fd int) *ReaderWriter {
	return &ReaderWriter{fd: fd}
}

// FD returns the wrapped descriptor.
func (rw *ReaderWriter) FD() int {
	return rw.fd
}

// SetSelector binds rw's descriptor to sel for READABLE events, matching
// FdReaderWriter's default-mask setSelector overload.
func (rw *ReaderWriter) SetSelector(listener selector.Listener, sel *selector.Selector) error {
	return rw.SetSelectorMask(listener, sel, selector.Readable)
}

// SetSelectorMask binds rw's descriptor to sel for the given event mask,
// first removing any previous binding, matching FdReaderWriter's explicit
// event-mask setSelector overload.
func (rw *ReaderWriter) SetSelectorMask(listener selector.Listener, sel *selector.Selector, mask selector.EventMask) error {
	if rw.fd == -1 {
		return nil
	}
	if rw.sel != nil {
		_ = rw.sel.RemoveListener(rw.fd, rw.l)
	}
	rw.sel, rw.l = sel, listener
	if rw.sel == nil {
		return nil
	}
	return rw.sel.AddListener(rw.fd, mask, listener, 0)
}

// Read reads up to len(p) bytes from the descriptor.
func (rw *ReaderWriter) Read(p []byte) (int, error) {
	n, err := unix.Read(rw.fd, p)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Write writes p to the descriptor.
func (rw *ReaderWriter) Write(p []byte) (int, error) {
	n, err := unix.Write(rw.fd, p)
	if err != nil {
		return n, err
	}
	return n, nil
}

// Close removes any selector binding and closes the descriptor. It is safe
// to call more than once; only the first call has any effect.
func (rw *ReaderWriter) Close() error {
	if !rw.closeOnce.Begin() {
		return nil
	}
	if rw.sel != nil {
		_ = rw.sel.RemoveListener(rw.fd, rw.l)
		rw.sel, rw.l = nil, nil
	}
	if rw.fd == -1 {
		return nil
	}
	err := unix.Close(rw.fd)
	rw.fd = -1
	return err
}
