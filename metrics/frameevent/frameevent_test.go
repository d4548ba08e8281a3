// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package frameevent

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/option"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
)

func readFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Encode draws its record buffer from the shared buffers pool; a Released
// buffer comes back zeroed on the next Encode rather than leaking the
// previous record's bytes into it.
func TestEncodeReusesReleasedBufferZeroed(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{FrameFields: []uint32{introspect.MetricMsBetweenPresents}}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	enc := NewEncoder(layout, catalog, telemetry.NewRegistry())

	first := enc.Encode(frame.Metrics{MsBetweenPresents: 99.0})
	enc.Release(first)

	second := enc.Encode(frame.Metrics{})
	defer enc.Release(second)
	if got := readFloat64(second[0:8]); got != 0 {
		t.Fatalf("reused buffer not zeroed: ms_between_presents = %v, want 0", got)
	}
}

// Two float64 frame fields pack to 16 bytes total with no padding needed,
// since 16 is already a multiple of recordAlignment.
func TestLayoutResolveOffsetsAndSize(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{FrameFields: []uint32{introspect.MetricMsBetweenPresents, introspect.MetricMsInPresentAPI}}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if layout.Size() != 16 {
		t.Fatalf("Size() = %d, want 16", layout.Size())
	}
}

// A single 4-byte field pads the record up to the 16-byte alignment.
func TestLayoutResolvePadsToAlignment(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{FrameFields: []uint32{introspect.MetricIsDroppedFrame}}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if layout.Size() != recordAlignment {
		t.Fatalf("Size() = %d, want %d (padded)", layout.Size(), recordAlignment)
	}
}

func TestEncodeWritesFrameFieldValue(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{FrameFields: []uint32{introspect.MetricMsBetweenPresents}}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	enc := NewEncoder(layout, catalog, telemetry.NewRegistry())

	m := frame.Metrics{MsBetweenPresents: 12.5}
	buf := enc.Encode(m)
	defer enc.Release(buf)
	if len(buf) != int(layout.Size()) {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), layout.Size())
	}
	if got := readFloat64(buf[0:8]); got != 12.5 {
		t.Fatalf("decoded ms_between_presents = %v, want 12.5", got)
	}
}

// A dropped-frame-only metric encodes as quiet-NaN when the frame was
// dropped, even if the underlying field happens to be nonzero.
func TestEncodeWritesNaNForDisplayOnlyFieldOnDroppedFrame(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{FrameFields: []uint32{introspect.MetricMsDisplayedTime}}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	enc := NewEncoder(layout, catalog, telemetry.NewRegistry())

	m := frame.Metrics{MsDisplayedTime: 42, IsDroppedFrame: true}
	buf := enc.Encode(m)
	defer enc.Release(buf)
	got := readFloat64(buf[0:8])
	if !math.IsNaN(got) {
		t.Fatalf("decoded ms_displayed_time = %v, want NaN for a dropped frame", got)
	}
}

// Optional metrics (Option[float64]) encode NaN when absent, and the real
// value when present.
func TestEncodeOptionalFieldAbsentAndPresent(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{FrameFields: []uint32{introspect.MetricMsPcLatency}}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	enc := NewEncoder(layout, catalog, telemetry.NewRegistry())

	absent := enc.Encode(frame.Metrics{MsPcLatency: option.None[float64]()})
	if v := readFloat64(absent[0:8]); !math.IsNaN(v) {
		t.Fatalf("absent ms_pc_latency should encode as NaN, got %v", v)
	}
	enc.Release(absent)

	present := enc.Encode(frame.Metrics{MsPcLatency: option.Some(7.5)})
	defer enc.Release(present)
	if v := readFloat64(present[0:8]); v != 7.5 {
		t.Fatalf("present ms_pc_latency = %v, want 7.5", v)
	}
}

// Device-indexed fields resolve by nearest(cpu_start_qpc) against the
// matching telemetry ring.
func TestEncodeDeviceFieldResolvesNearestTelemetry(t *testing.T) {
	catalog := introspect.NewCatalog()
	tele := telemetry.NewRegistry()
	device := devicemap.ID(3)
	key := telemetry.Key{MetricID: introspect.MetricGPUUtilizationPercent, DeviceID: device}
	tele.Push(key, 900, 55.0)
	tele.Push(key, 1100, 65.0)

	layout := &Layout{
		DeviceFields: []DeviceElement{{MetricID: introspect.MetricGPUUtilizationPercent, DeviceID: device}},
	}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	enc := NewEncoder(layout, catalog, tele)

	m := frame.Metrics{CPUStartQpc: 950}
	buf := enc.Encode(m)
	defer enc.Release(buf)
	if got := readFloat64(buf[0:8]); got != 55.0 {
		t.Fatalf("device field = %v, want 55.0 (nearest to 950)", got)
	}
}

func TestEncodeStaticFieldIsBakedIn(t *testing.T) {
	catalog := introspect.NewCatalog()
	layout := &Layout{
		StaticFields: []StaticElement{{MetricID: introspect.MetricGPUPowerWatts, DeviceID: devicemap.ID(1), Value: 250.0}},
	}
	if err := layout.Resolve(catalog); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	enc := NewEncoder(layout, catalog, telemetry.NewRegistry())

	buf := enc.Encode(frame.Metrics{})
	defer enc.Release(buf)
	if got := readFloat64(buf[0:8]); got != 250.0 {
		t.Fatalf("static field = %v, want 250.0", got)
	}
}
