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

package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopkit/evcore/message"
)

func TestNewHasRefCountOne(t *testing.T) {
	m := message.New(1, "payload")
	assert.EqualValues(t, 1, m.RefCount())
	assert.EqualValues(t, 1, m.Kind())
	assert.Equal(t, "payload", m.Payload())
}

func TestRetainReleaseBalanced(t *testing.T) {
	m := message.New(2, nil)
	m.Retain()
	m.Retain()
	assert.EqualValues(t, 3, m.RefCount())
	m.Release()
	m.Release()
	m.Release()
	assert.EqualValues(t, 0, m.RefCount())
}

func TestReleaseDropsPayloadAtZero(t *testing.T) {
	m := message.New(3, []byte("data"))
	m.Release()
	assert.Nil(t, m.Payload())
}
