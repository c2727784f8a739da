// Copyright (c) Peter Newcomb. All rights reserved.
// Licensed under the MIT License.

// Package qlog provides the queue package's structured logging accessor,
// following the zap.L()-style package-level logger used throughout
// otpsg's instrumentation wrappers.
package qlog

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var current atomic.Pointer[zap.Logger]

func init() {
	current.Store(zap.NewNop())
}

// SetLogger installs l as the package-level logger used by lockfreequeue's
// debug-level structural log lines. Passing nil restores the no-op
// default. Safe to call concurrently with logging.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	current.Store(l)
}

// L returns the currently installed logger, defaulting to a no-op logger
// so that importing lockfreequeue never produces log output unless a
// caller opts in via SetLogger.
func L() *zap.Logger {
	return current.Load()
}
