// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package telemetry

import (
	"sync"
	"testing"

	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
)

func TestPushAndNearest(t *testing.T) {
	r := NewRegistry()
	key := Key{MetricID: 1, DeviceID: devicemap.ID(1)}
	r.Push(key, 100, 50.0)
	r.Push(key, 200, 60.0)

	got, ok := r.Nearest(key, 150)
	if !ok || got.Value != 50.0 {
		t.Fatalf("Nearest(150) = (%+v, %v), want value 50.0 (tie breaks earlier)", got, ok)
	}
}

func TestNearestUnknownKeyIsAbsent(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Nearest(Key{MetricID: 99}, 1000); ok {
		t.Fatalf("Nearest on a never-pushed key should report absent")
	}
}

func TestKeysReflectsAllPushedRings(t *testing.T) {
	r := NewRegistry()
	r.Push(Key{MetricID: 1, DeviceID: devicemap.ID(1)}, 100, 1)
	r.Push(Key{MetricID: 2, DeviceID: devicemap.ID(1)}, 100, 2)

	keys := r.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys() = %v, want 2 entries", keys)
	}
}

// RingFor is called concurrently by one goroutine per device/metric pair in
// production; creating the same key from many goroutines must not race or
// produce two distinct rings for it.
func TestRingForConcurrentCreationIsSafe(t *testing.T) {
	r := NewRegistry()
	key := Key{MetricID: 7, DeviceID: devicemap.ID(2)}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := r.RingFor(key)
			h.Push(Sample{Timestamp: 1, Value: 1})
		}()
	}
	wg.Wait()

	if len(r.Keys()) != 1 {
		t.Fatalf("concurrent RingFor(key) for the same key should create exactly one ring, got %d", len(r.Keys()))
	}
}
