// Package util holds small helpers shared by the engine packages.
package util

import (
	"fmt"
	"runtime/debug"

	"context-injector/internal/application/port/output"
)

// SafeGo launches fn in a goroutine with deferred panic recovery. A panic is
// logged with its stack and swallowed so the host page keeps working.
func SafeGo(log output.LoggerPort, name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("panic in background goroutine", "goroutine", name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			}
		}()
		fn()
	}()
}

// SafeCall runs fn on the calling goroutine and converts a panic into an error.
func SafeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return fn()
}
