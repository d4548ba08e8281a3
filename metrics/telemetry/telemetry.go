// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package telemetry holds the per-device, per-metric timestamped sample
// rings fed by GPU/CPU vendor telemetry adapters. Vendor adapter
// implementations themselves are out of scope for this module (spec.md
// §9); this package only defines the ring shape they publish into and the
// registry the query engine and frame-event query read from.
package telemetry

import (
	"sync"

	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/ring"
)

// Sample is one polled telemetry reading: a timestamp (QPC-comparable, used
// for nearest() lookups against cpu_start_qpc) and the raw polled value.
// Polled values are carried as float64 regardless of the metric's declared
// introspection type; the query layer narrows on output.
type Sample struct {
	Timestamp uint64
	Value     float64
}

func sampleTimestamp(s Sample) uint64 { return s.Timestamp }

// Key identifies one telemetry ring: a metric, the device it was polled
// from, and an array index for metrics that report a vector (e.g. one
// entry per CPU core).
type Key struct {
	MetricID   uint32
	DeviceID   devicemap.ID
	ArrayIndex uint32
}

const defaultCapacity = 2048

// Registry owns one ring.History per (metric, device, array index). It is
// safe for concurrent use: the collector calls Push from one goroutine per
// key while queries call Nearest/ForEachInTimestampRange from poll threads.
// Only the map of rings itself needs a lock; each ring.History guards its
// own reads and writes.
type Registry struct {
	mu    sync.Mutex
	rings map[Key]*ring.History[Sample]
}

// NewRegistry returns an empty telemetry registry.
func NewRegistry() *Registry {
	return &Registry{rings: make(map[Key]*ring.History[Sample])}
}

// RingFor returns the ring for key, creating it with the default capacity
// on first use.
func (r *Registry) RingFor(key Key) *ring.History[Sample] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.rings[key]; ok {
		return h
	}
	h := ring.NewHistory[Sample](defaultCapacity, sampleTimestamp)
	r.rings[key] = h
	return h
}

// Push records one telemetry sample for key.
func (r *Registry) Push(key Key, timestamp uint64, value float64) {
	r.RingFor(key).Push(Sample{Timestamp: timestamp, Value: value})
}

// Nearest resolves the sample closest to ts for key, as used by the
// frame-event query to pair per-frame telemetry with cpu_start_qpc.
func (r *Registry) Nearest(key Key, ts uint64) (Sample, bool) {
	r.mu.Lock()
	h, ok := r.rings[key]
	r.mu.Unlock()
	if !ok {
		return Sample{}, false
	}
	return h.Nearest(ts)
}

// Keys returns every registered telemetry key, for introspection and for
// the usage-gated collection aggregator to check against.
func (r *Registry) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Key, 0, len(r.rings))
	for k := range r.rings {
		out = append(out, k)
	}
	return out
}
