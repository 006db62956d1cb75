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

// kMaxPollFds is the default listener-table capacity: a compact poll(2)
// array capped at 64 entries, index 0 reserved for the wake channel's read
// end.
const kMaxPollFds = 64

type config struct {
	name            string
	maxPollFds      int
	ignoreTaskError bool
}

// Option configures a Selector at construction time using the functional
// options pattern.
type Option func(*config)

// WithName sets the Selector's name, used in log messages only.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithMaxPollFds overrides the default poll-array size of 64. Slot 0 holds
// the wake channel, so at most n-1 distinct descriptors can be registered;
// values below 2 fall back to the default.
func WithMaxPollFds(n int) Option {
	return func(c *config) { c.maxPollFds = n }
}

// WithIgnoreTaskError controls what happens when a Listener panics while
// processing a readiness event: if true, the Selector recovers, logs, and
// keeps running; if false (the default), the panic is not recovered and
// terminates the process.
func WithIgnoreTaskError(ignore bool) Option {
	return func(c *config) { c.ignoreTaskError = ignore }
}
