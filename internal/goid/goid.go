// Package goid provides the running goroutine's numeric identity.
//
// Selector.Shutdown must reject a call made from its own worker goroutine,
// which requires comparing goroutine identity rather than a boolean
// "currently dispatching" flag: a foreign goroutine calling Shutdown while
// the worker happens to be mid-callback is the normal case and must
// succeed. This package parses the minimal runtime.Stack header to get at
// that identity, since the standard library exposes no direct accessor.
package goid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Get returns the id of the calling goroutine.
func Get() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]
	// Format is "goroutine 123 [running]:\n...".
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	buf = buf[len(prefix):]
	i := bytes.IndexByte(buf, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(buf[:i]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
