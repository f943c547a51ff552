package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewWithoutRedisIsNoop(t *testing.T) {
	assert.Nil(t, NewRedisClient("", ""))

	l := New(nil, 30*time.Second)
	assert.IsType(t, Noop{}, l)

	release := l.Acquire(context.Background(), "invoice:1")
	assert.NotPanics(t, release)
}
