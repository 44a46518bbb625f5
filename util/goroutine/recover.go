// Package goroutine provides helpers for long-lived background goroutines.
package goroutine

import (
	"fmt"
	"os"
	"runtime"

	"go.uber.org/zap"
)

const stackBufferSize = 4096

// Recover logs a recovered panic with its stack trace. Meant to be deferred
// at the top of a background goroutine; with a nil logger it falls back to
// stderr so the panic is never lost.
func Recover(name string, logger *zap.SugaredLogger) {
	r := recover()
	if r == nil {
		return
	}
	buf := make([]byte, stackBufferSize)
	n := runtime.Stack(buf, false)

	if logger != nil {
		logger.Errorw("Goroutine panic recovered",
			"goroutine", name, "panic", r, "stack", string(buf[:n]))
		return
	}
	fmt.Fprintf(os.Stderr, "panic in goroutine %s: %v\n%s\n", name, r, buf[:n])
}

// Go runs fn in a goroutine guarded by Recover.
func Go(name string, logger *zap.SugaredLogger, fn func()) {
	go func() {
		defer Recover(name, logger)
		fn()
	}()
}
