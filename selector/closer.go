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

import "github.com/loopkit/evcore/internal/safejob"

// closer guards Selector's accept-new-work surface (PostMessage,
// AddListener, RegisterHandler) against calls made during or after
// Shutdown. A single ConcurrentJob tracks in-flight foreign calls that
// must stop once shutdown begins, plus a OnceJob to make the Shutdown
// call itself idempotent.
type closer struct {
	job          safejob.ConcurrentJob
	shutdownOnce safejob.OnceJob
}

// begin must be paired with end; it reports false once close has run.
func (c *closer) begin() bool {
	return c.job.Begin()
}

func (c *closer) end() {
	c.job.End()
}

func (c *closer) closed() bool {
	return c.job.Closed()
}

// beginShutdown reports whether this call is the one that gets to run the
// shutdown sequence; concurrent or later callers get false.
func (c *closer) beginShutdown() bool {
	return c.shutdownOnce.Begin()
}

// close blocks until every in-flight begin/end pair has completed, then
// permanently rejects future begin calls.
func (c *closer) close() {
	c.job.Close()
}
