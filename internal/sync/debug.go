// Copyright (C) 2015 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at http://mozilla.org/MPL/2.0/.

package sync

import (
	"fmt"
	"log/slog"
	"time"
)

// debug switches NewMutex/NewRWMutex/NewWaitGroup to return wrappers that
// track hold times and log the ones exceeding threshold. Off by default.
var debug = false

// threshold is the hold/wait duration above which an instrumented wrapper
// logs a warning through l.
var threshold = 100 * time.Millisecond

// debugLogger is the narrow surface the instrumented wrappers log through,
// small enough that tests can swap it for one that records messages instead
// of writing them out.
type debugLogger interface {
	Debugf(format string, args ...interface{})
}

type slogDebugLogger struct{ *slog.Logger }

func (s slogDebugLogger) Debugf(format string, args ...interface{}) {
	s.Logger.Debug(fmt.Sprintf(format, args...))
}

var l debugLogger = slogDebugLogger{slog.Default()}
