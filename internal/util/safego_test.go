package util

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"context-injector/internal/infrastructure/logger"
)

func TestSafeGoNormalExecution(t *testing.T) {
	var done sync.WaitGroup
	done.Add(1)
	executed := false

	SafeGo(logger.NewNopLogger(), "test", func() {
		executed = true
		done.Done()
	})

	done.Wait()
	assert.True(t, executed)
}

func TestSafeGoPanicRecovery(t *testing.T) {
	recovered := make(chan bool, 1)

	SafeGo(logger.NewNopLogger(), "test", func() {
		defer func() { recovered <- true }()
		panic("test panic")
	})

	select {
	case <-recovered:
	case <-time.After(2 * time.Second):
		t.Fatal("SafeGo goroutine did not recover from panic within timeout")
	}
}

func TestSafeCall(t *testing.T) {
	assert.NoError(t, SafeCall(func() error { return nil }))

	sentinel := errors.New("boom")
	assert.ErrorIs(t, SafeCall(func() error { return sentinel }), sentinel)

	err := SafeCall(func() error { panic("host script threw") })
	assert.ErrorContains(t, err, "host script threw")
}
