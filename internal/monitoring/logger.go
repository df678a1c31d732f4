// Package monitoring holds the diagnostic loggers shared by the merge
// pipeline, the benchmark harness and the gRPC service.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

var debug atomic.Bool

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetDebug toggles Debugf output.
func SetDebug(on bool) {
	debug.Store(on)
}

// DebugEnabled reports whether Debugf writes anything.
func DebugEnabled() bool {
	return debug.Load()
}

// Debugf logs through Logf with a [debug] prefix when debug output is on.
func Debugf(format string, v ...interface{}) {
	if !debug.Load() {
		return
	}
	Logf("[debug] "+format, v...)
}
