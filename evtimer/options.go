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

type config struct {
	name string
}

// Option configures a Timer at construction time.
type Option func(*config)

// WithName sets the Timer's name, used in log messages only.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}
