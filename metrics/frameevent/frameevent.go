// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package frameevent implements the non-aggregating, one-blob-per-present
// query of spec.md §4.6. Unlike the dynamic query engine it never
// aggregates across a window: each consumed present produces exactly one
// fixed-layout record.
package frameevent

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/GameTechDev/pmmetricscore/buffers"
	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/option"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
)

const recordAlignment = 16

// requiresDisplay lists the per-present metrics that are only meaningful
// for a displayed frame; they are emitted as quiet-NaN for dropped frames
// (spec.md §4.6 "Dropped-frame policy").
func requiresDisplay(metricID uint32) bool {
	switch metricID {
	case introspect.MetricMsDisplayedTime, introspect.MetricMsDisplayLatency,
		introspect.MetricMsUntilDisplayed, introspect.MetricMsBetweenDisplayChange:
		return true
	default:
		return false
	}
}

// DeviceElement is a device-indexed telemetry field requested in the
// record, resolved by nearest(cpu_start_qpc) against the matching
// telemetry ring at write time.
type DeviceElement struct {
	MetricID   uint32
	DeviceID   devicemap.ID
	ArrayIndex uint32
}

// StaticElement is a per-device metric resolved once, at registration, and
// baked into every record unchanged (spec.md "static per-device metrics
// ... resolved once").
type StaticElement struct {
	MetricID uint32
	DeviceID devicemap.ID
	Value    float64
}

// Layout is the fixed, 16-byte-aligned binary layout resolved at
// registration for one frame-event query.
type Layout struct {
	FrameFields  []uint32 // per-present metric IDs, in request order
	DeviceFields []DeviceElement
	StaticFields []StaticElement

	frameOffsets  []uint32
	deviceOffsets []uint32
	staticOffsets []uint32
	totalSize     uint32
}

func alignUp(n, align uint32) uint32 {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

// Resolve assigns byte offsets to every field and pads the record to
// recordAlignment, matching the registration-time layout that Query
// re-derives identically on re-registration (spec.md §8 round-trip law).
func (l *Layout) Resolve(catalog *introspect.Catalog) error {
	var offset uint32

	l.frameOffsets = make([]uint32, len(l.FrameFields))
	for i, id := range l.FrameFields {
		info, ok := catalog.ByID(id)
		if !ok {
			return fmt.Errorf("frameevent: unknown frame metric id %d", id)
		}
		l.frameOffsets[i] = offset
		offset += info.Type.Size()
	}

	l.deviceOffsets = make([]uint32, len(l.DeviceFields))
	for i, f := range l.DeviceFields {
		info, ok := catalog.ByID(f.MetricID)
		if !ok {
			return fmt.Errorf("frameevent: unknown device metric id %d", f.MetricID)
		}
		l.deviceOffsets[i] = offset
		offset += info.Type.Size()
	}

	l.staticOffsets = make([]uint32, len(l.StaticFields))
	for i := range l.StaticFields {
		l.staticOffsets[i] = offset
		offset += 8
	}

	l.totalSize = alignUp(offset, recordAlignment)
	return nil
}

// Size returns the resolved, alignment-padded record size in bytes.
func (l *Layout) Size() uint32 { return l.totalSize }

// Encoder writes records for a resolved Layout against a metrics record and
// a telemetry registry.
type Encoder struct {
	layout  *Layout
	catalog *introspect.Catalog
	tele    *telemetry.Registry
}

// NewEncoder returns an Encoder for layout (already Resolve'd).
func NewEncoder(layout *Layout, catalog *introspect.Catalog, tele *telemetry.Registry) *Encoder {
	return &Encoder{layout: layout, catalog: catalog, tele: tele}
}

// Encode writes one record for m into a zero-padded buffer of
// Layout.Size() bytes, drawn from the package's shared buffer pool.
// Callers that are done with the record (after copying or writing it out)
// should return it with Release.
func (e *Encoder) Encode(m frame.Metrics) []byte {
	buf := buffers.Get(int(e.layout.totalSize))
	for i := range buf {
		buf[i] = 0
	}

	for i, id := range e.layout.FrameFields {
		off := e.layout.frameOffsets[i]
		info, _ := e.catalog.ByID(id)
		writeFrameField(buf[off:], info, m, id)
	}

	for i, f := range e.layout.DeviceFields {
		off := e.layout.deviceOffsets[i]
		info, _ := e.catalog.ByID(f.MetricID)
		key := telemetry.Key{MetricID: f.MetricID, DeviceID: f.DeviceID, ArrayIndex: f.ArrayIndex}
		sample, ok := e.tele.Nearest(key, m.CPUStartQpc)
		if ok {
			writeTyped(buf[off:], info.Type, sample.Value)
		} else {
			writeAbsent(buf[off:], info.Type)
		}
	}

	for i, f := range e.layout.StaticFields {
		off := e.layout.staticOffsets[i]
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(f.Value))
	}

	return buf
}

// Release returns a record buffer previously returned by Encode to the
// pool. Callers must not use buf after calling Release.
func (e *Encoder) Release(buf []byte) {
	buffers.Put(buf)
}

func writeFrameField(dst []byte, info introspect.MetricInfo, m frame.Metrics, id uint32) {
	if requiresDisplay(id) && m.IsDroppedFrame {
		writeAbsent(dst, info.Type)
		return
	}
	if v, ok := FrameFieldValue(id, m); ok {
		writeTyped(dst, info.Type, v)
	} else {
		writeAbsent(dst, info.Type)
	}
}

// FrameFieldValue resolves the scalar value of a per-present (KindFrame)
// metric directly from a computed frame.Metrics record, without regard to
// the dropped-frame display gating frameevent applies on top (that gating
// is query-surface specific; query/ consumes the raw value instead). It
// reports false for a metric this function does not recognize, or for an
// optional field currently absent.
func FrameFieldValue(id uint32, m frame.Metrics) (float64, bool) {
	switch id {
	case introspect.MetricMsBetweenPresents:
		return m.MsBetweenPresents, true
	case introspect.MetricMsInPresentAPI:
		return m.MsInPresentAPI, true
	case introspect.MetricMsUntilRenderComplete:
		return m.MsUntilRenderComplete, true
	case introspect.MetricMsUntilRenderStart:
		return m.MsUntilRenderStart, true
	case introspect.MetricCPUStartQpc:
		return float64(m.CPUStartQpc), true
	case introspect.MetricCPUStartMs:
		return m.CPUStartMs, true
	case introspect.MetricMsCPUBusy:
		return m.MsCPUBusy, true
	case introspect.MetricMsCPUWait:
		return m.MsCPUWait, true
	case introspect.MetricMsGPULatency:
		return m.MsGPULatency, true
	case introspect.MetricMsGPUBusy:
		return m.MsGPUBusy, true
	case introspect.MetricMsGPUWait:
		return m.MsGPUWait, true
	case introspect.MetricMsVideoBusy:
		return m.MsVideoBusy, true
	case introspect.MetricMsUntilDisplayed:
		return m.MsUntilDisplayed, true
	case introspect.MetricMsBetweenDisplayChange:
		return m.MsBetweenDisplayChange, true
	case introspect.MetricMsDisplayedTime:
		return m.MsDisplayedTime, true
	case introspect.MetricMsDisplayLatency:
		return m.MsDisplayLatency, true
	case introspect.MetricScreenTimeQpc:
		return float64(m.ScreenTimeQpc), true
	case introspect.MetricFpsPresent:
		return m.FpsPresent, true
	case introspect.MetricFpsDisplay:
		return m.FpsDisplay, true
	case introspect.MetricFpsApplication:
		return m.FpsApplication, true
	case introspect.MetricFrameType:
		return float64(m.FrameType), true
	case introspect.MetricIsDroppedFrame:
		return boolToFloat(m.IsDroppedFrame), true
	case introspect.MetricSwapChainAddress:
		return float64(m.SwapChainAddress), true
	default:
		return optionalFrameFieldValue(id, m)
	}
}

func optionalFrameFieldValue(id uint32, m frame.Metrics) (float64, bool) {
	var opt option.Option[float64]
	switch id {
	case introspect.MetricMsClickToPhotonLatency:
		opt = m.MsClickToPhotonLatency
	case introspect.MetricMsAllInputPhotonLatency:
		opt = m.MsAllInputPhotonLatency
	case introspect.MetricMsInstrumentedInputTime:
		opt = m.MsInstrumentedInputTime
	case introspect.MetricMsPcLatency:
		opt = m.MsPcLatency
	case introspect.MetricMsAnimationError:
		opt = m.MsAnimationError
	case introspect.MetricMsAnimationTime:
		opt = m.MsAnimationTime
	case introspect.MetricMsInstrumentedLatency:
		opt = m.MsInstrumentedLatency
	case introspect.MetricMsInstrumentedRenderLatency:
		opt = m.MsInstrumentedRenderLatency
	case introspect.MetricMsInstrumentedSleep:
		opt = m.MsInstrumentedSleep
	case introspect.MetricMsInstrumentedGpuLatency:
		opt = m.MsInstrumentedGpuLatency
	case introspect.MetricMsBetweenSimStarts:
		opt = m.MsBetweenSimStarts
	case introspect.MetricMsFlipDelay:
		opt = m.MsFlipDelay
	default:
		return 0, false
	}
	return opt.Get()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func writeTyped(dst []byte, typ introspect.DataType, v float64) {
	switch typ {
	case introspect.TypeFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
	case introspect.TypeUint64:
		binary.LittleEndian.PutUint64(dst, uint64(v))
	case introspect.TypeUint32, introspect.TypeEnum:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case introspect.TypeInt32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	case introspect.TypeBool:
		if v != 0 {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	}
}

func writeAbsent(dst []byte, typ introspect.DataType) {
	switch typ {
	case introspect.TypeFloat64:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(math.NaN()))
	default:
		// Non-float absent values have no NaN analogue; zero them instead,
		// matching the zeroed-output convention used elsewhere for
		// declared-type sentinels (spec.md §4.5 "Percentile definition").
		for i := range dst {
			dst[i] = 0
		}
	}
}
