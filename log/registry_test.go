package log_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/loopkit/evcore/log"
)

func TestRegistrySetAndGet(t *testing.T) {
	log.SetLevel("selector.go", 2)
	log.SetCategories("selector.go", 0x1)
	assert.Equal(t, 2, log.Level("selector.go"))
	assert.EqualValues(t, 0x1, log.Categories("selector.go"))
}

func TestRegistryUnknownFile(t *testing.T) {
	assert.Equal(t, -1, log.Level("never-registered.go"))
	assert.EqualValues(t, 0, log.Categories("never-registered.go"))
}

func TestRegistryAllWildcard(t *testing.T) {
	log.SetLevel("a.go", 1)
	log.SetLevel("b.go", 1)
	log.SetLevel("all", 5)
	assert.Equal(t, 5, log.Level("a.go"))
	assert.Equal(t, 5, log.Level("b.go"))
	log.Flush()
}
