// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package suturewrap gives a plain context-aware goroutine a Serve/Stop
// lifecycle, for the odd background loop that doesn't otherwise need the
// full suture.Service contract (a suture.Supervisor entry and restart
// policy) but still wants to be stopped deterministically on shutdown.
package suturewrap

import (
	"context"
	"fmt"
	"sync"
)

// Service runs fn until Stop is called.
type Service struct {
	fn   func(ctx context.Context)
	name string

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

// AsService wraps fn, which must return once ctx is done.
func AsService(fn func(ctx context.Context), name string) *Service {
	return &Service{fn: fn, name: name}
}

// Serve runs fn and blocks until Stop is called or fn returns on its own.
func (s *Service) Serve() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	s.fn(ctx)
}

// Stop cancels the running fn. Calling Stop a second time panics: a
// suturewrap.Service has no restart semantics, so a caller stopping it
// twice has a lifecycle bug worth surfacing immediately rather than
// silently ignoring.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		panic(fmt.Sprintf("suturewrap: service %q stopped twice", s.name))
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}
