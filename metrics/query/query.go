// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package query implements the dynamic query engine of spec.md §4.5: a
// client registers an ordered list of (metric, stat, device, array index)
// elements against a time window, and polls a fixed-layout blob back.
package query

import (
	"fmt"
	"sync"

	"github.com/greatroar/blobloom"

	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
)

// Element is one requested (metric, stat, device, array index) tuple.
type Element struct {
	MetricID   uint32
	Stat       Stat
	DeviceID   devicemap.ID
	ArrayIndex uint32
}

// Binding is one registered query element resolved against the
// introspection catalog, with its blob offset/size fixed at registration.
type Binding struct {
	Element Element
	Offset  uint32
	Size    uint32
	Type    introspect.DataType
}

// Query is one client's registered dynamic query.
type Query struct {
	Elements       []Element
	WindowSizeMs   float64
	MetricOffsetMs float64

	bindings  []Binding
	blobSize  uint32
}

// Bindings returns the resolved, offset-assigned bindings for this query.
func (q *Query) Bindings() []Binding { return q.bindings }

// BlobSize returns the total size in bytes of one poll's output blob.
func (q *Query) BlobSize() uint32 { return q.blobSize }

// Source supplies the per-metric sample history a poll draws from. Frame
// metrics and polled telemetry metrics both implement it by wrapping a
// ring.History-backed source; the query engine only needs SamplesInWindow
// and Nearest.
type Source interface {
	// SamplesInWindow returns the value of every sample in [lo, hi] for the
	// given metric/device/array tuple; Nearest returns the single
	// nearest-to-ts value for point stats.
	SamplesInWindow(metricID uint32, deviceID devicemap.ID, arrayIndex uint32, lo, hi uint64) []float64
	Nearest(metricID uint32, deviceID devicemap.ID, arrayIndex uint32, ts uint64) (float64, bool)
}

// Engine owns the registered query set and the usage aggregator that gates
// telemetry collection: producers only poll a device metric if at least
// one registered query declared interest in it.
type Engine struct {
	catalog *introspect.Catalog
	source  Source

	mu       sync.Mutex
	queries  map[uint64]*Query
	nextID   uint64
	usage    *blobloom.Filter      // fast-path "is this key possibly in use" check
	usageSet map[telemetry.Key]int // exact registration counts, for deregistration
	reported map[telemetry.Key]struct{} // keys a client declared via ReportUse, standing until the process untracks
}

// NewEngine returns a query engine reading from source and validating
// elements against catalog.
func NewEngine(catalog *introspect.Catalog, source Source) *Engine {
	return &Engine{
		catalog: catalog,
		source:  source,
		queries: make(map[uint64]*Query),
		usage: blobloom.NewOptimized(blobloom.Config{
			Capacity: 4096,
			FPRate:   0.01,
		}),
		usageSet: make(map[telemetry.Key]int),
		reported: make(map[telemetry.Key]struct{}),
	}
}

// Register validates elements, assigns blob offsets in order, and publishes
// the query's device-metric usage to the aggregator. Returns the query
// handle ID and the resolved Query.
func (e *Engine) Register(elements []Element, windowSizeMs, metricOffsetMs float64) (uint64, *Query, error) {
	q := &Query{Elements: elements, WindowSizeMs: windowSizeMs, MetricOffsetMs: metricOffsetMs}

	var offset uint32
	for _, el := range elements {
		info, ok := e.catalog.ByID(el.MetricID)
		if !ok {
			return 0, nil, fmt.Errorf("query: unknown metric id %d", el.MetricID)
		}
		typ := info.Type
		if el.Stat == StatAvg || el.Stat == StatNonZeroAvg {
			typ = introspect.TypeFloat64
		}
		size := typ.Size()
		q.bindings = append(q.bindings, Binding{Element: el, Offset: offset, Size: size, Type: typ})
		offset += size
	}
	q.blobSize = offset

	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.queries[id] = q

	for _, el := range elements {
		key := telemetry.Key{MetricID: el.MetricID, DeviceID: el.DeviceID, ArrayIndex: el.ArrayIndex}
		e.usageSet[key]++
		e.usage.Add(usageHash(key))
	}

	return id, q, nil
}

// Deregister removes a query and, once its usage count for a key drops to
// zero, lets the bloom filter's false-positive-only nature stand (the
// filter is never shrunk; exactness is kept in usageSet for IsInUse).
func (e *Engine) Deregister(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queries[id]
	if !ok {
		return
	}
	delete(e.queries, id)
	for _, el := range q.Elements {
		key := telemetry.Key{MetricID: el.MetricID, DeviceID: el.DeviceID, ArrayIndex: el.ArrayIndex}
		if e.usageSet[key] > 0 {
			e.usageSet[key]--
		}
	}
}

// ReportUse marks key as in use by a client's control-RPC ReportMetricUse
// call (spec.md §6), independent of any dynamic query registration: a
// client reading the shared-memory telemetry rings directly still needs
// producers to actually poll the device for that metric. The mark is
// standing until ClearReported drops it.
func (e *Engine) ReportUse(key telemetry.Key) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reported[key] = struct{}{}
	e.usage.Add(usageHash(key))
}

// ClearReported drops every key reported via ReportUse, for when a tracked
// process stops: its prior ReportMetricUse calls should not keep gating
// telemetry collection for the next process that reuses the pid.
func (e *Engine) ClearReported() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reported = make(map[telemetry.Key]struct{})
}

// IsInUse reports whether any currently registered query or ReportUse call
// references key. Producers call this to decide whether to poll a device
// metric at all.
func (e *Engine) IsInUse(key telemetry.Key) bool {
	if !e.usage.Has(usageHash(key)) {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.usageSet[key] > 0 {
		return true
	}
	_, ok := e.reported[key]
	return ok
}

func usageHash(k telemetry.Key) uint64 {
	h := uint64(k.MetricID)
	h = h*1099511628211 ^ uint64(k.DeviceID)
	h = h*1099511628211 ^ uint64(k.ArrayIndex)
	return h
}

// Poll evaluates q at time now and writes one blob in the shape
// Register fixed. lo/hi are [now-offset-size, now-offset] in ticks.
func (e *Engine) Poll(q *Query, now uint64) []byte {
	blob := make([]byte, q.blobSize)

	offsetTicks := uint64(q.MetricOffsetMs)
	sizeTicks := uint64(q.WindowSizeMs)
	hi := saturatingSub(now, offsetTicks)
	lo := saturatingSub(hi, sizeTicks)

	for _, b := range q.bindings {
		var value float64
		var present bool

		if b.Element.Stat.isPointStat() {
			target := pointTarget(b.Element.Stat, lo, hi)
			value, present = e.source.Nearest(b.Element.MetricID, b.Element.DeviceID, b.Element.ArrayIndex, target)
		} else {
			samples := e.source.SamplesInWindow(b.Element.MetricID, b.Element.DeviceID, b.Element.ArrayIndex, lo, hi)
			value, present = Aggregate(b.Element.Stat, samples)
		}

		writeValue(blob[b.Offset:b.Offset+b.Size], b.Type, value, present)
	}

	return blob
}

func pointTarget(stat Stat, lo, hi uint64) uint64 {
	switch stat {
	case StatOldestPoint:
		return lo
	case StatNewestPoint:
		return hi
	default: // StatMidPoint
		return lo + (hi-lo)/2
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

func writeValue(dst []byte, typ introspect.DataType, value float64, present bool) {
	switch typ {
	case introspect.TypeFloat64:
		v := 0.0
		if present {
			v = value
		}
		putFloat64(dst, v)
	case introspect.TypeUint64:
		v := uint64(0)
		if present {
			v = uint64(value)
		}
		putUint64(dst, v)
	case introspect.TypeUint32, introspect.TypeEnum:
		v := uint32(0)
		if present {
			v = uint32(value)
		}
		putUint32(dst, v)
	case introspect.TypeInt32:
		v := int32(0)
		if present {
			v = int32(value)
		}
		putUint32(dst, uint32(v))
	case introspect.TypeBool:
		if present && value != 0 {
			dst[0] = 1
		} else {
			dst[0] = 0
		}
	}
}
