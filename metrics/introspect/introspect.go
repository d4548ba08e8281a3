// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package introspect is the read-only metric/device/stat/enum catalog
// clients use to validate a dynamic or frame-event query and resolve the
// byte layout of its output blob before registering it (spec.md §6
// "Introspection").
package introspect

// DataType describes the wire shape of one metric's value.
type DataType uint8

const (
	TypeFloat64 DataType = iota
	TypeUint64
	TypeUint32
	TypeInt32
	TypeBool
	TypeEnum
)

func (t DataType) Size() uint32 {
	switch t {
	case TypeFloat64, TypeUint64:
		return 8
	case TypeUint32, TypeInt32, TypeEnum:
		return 4
	case TypeBool:
		return 1
	default:
		return 8
	}
}

// Kind distinguishes metrics computed per frame (the calculator's output)
// from metrics polled directly from a telemetry source.
type Kind uint8

const (
	KindFrame Kind = iota
	KindPolled
)

// MetricInfo is one entry in the introspection tree: everything a client
// needs to validate a reference to this metric and interpret its bytes.
type MetricInfo struct {
	ID           uint32
	Name         string
	Kind         Kind
	Type         DataType
	EnumID       uint32 // nonzero when Type == TypeEnum
	IsArray      bool   // true for per-core/per-engine vector metrics
	PerDevice    bool   // true when this metric is meaningful per device
	Aliases      []string
}

// EnumValue is one named value of an enum dictionary entry.
type EnumValue struct {
	Value int32
	Name  string
}

// Catalog is the full read-only introspection tree for one service
// instance. It is built once at startup from the fixed metric/enum tables
// below and never mutated afterward, so it needs no synchronization.
type Catalog struct {
	metrics    []MetricInfo
	byID       map[uint32]*MetricInfo
	byName     map[string]*MetricInfo
	enums      map[uint32][]EnumValue
}

// NewCatalog builds the catalog from the static metric/enum tables
// declared in this package.
func NewCatalog() *Catalog {
	c := &Catalog{
		byID:   make(map[uint32]*MetricInfo),
		byName: make(map[string]*MetricInfo),
		enums:  builtinEnums(),
	}
	c.metrics = append(c.metrics, builtinMetrics()...)
	for i := range c.metrics {
		m := &c.metrics[i]
		c.byID[m.ID] = m
		c.byName[m.Name] = m
		for _, alias := range m.Aliases {
			c.byName[alias] = m
		}
	}
	return c
}

// ByID resolves a metric by its stable numeric ID.
func (c *Catalog) ByID(id uint32) (MetricInfo, bool) {
	m, ok := c.byID[id]
	if !ok {
		return MetricInfo{}, false
	}
	return *m, true
}

// ByName resolves a metric by name or alias.
func (c *Catalog) ByName(name string) (MetricInfo, bool) {
	m, ok := c.byName[name]
	if !ok {
		return MetricInfo{}, false
	}
	return *m, true
}

// Metrics returns every registered metric, in catalog order.
func (c *Catalog) Metrics() []MetricInfo {
	return c.metrics
}

// Enum returns the named-value dictionary for an enum ID.
func (c *Catalog) Enum(enumID uint32) ([]EnumValue, bool) {
	v, ok := c.enums[enumID]
	return v, ok
}

// Frame-metrics IDs, stable across the life of the wire protocol; new
// metrics are appended here, never renumbered (spec.md §9 "Version
// migration").
const (
	MetricMsBetweenPresents uint32 = iota + 1
	MetricMsInPresentAPI
	MetricMsUntilRenderComplete
	MetricMsUntilRenderStart
	MetricCPUStartQpc
	MetricCPUStartMs
	MetricMsCPUBusy
	MetricMsCPUWait
	MetricMsGPULatency
	MetricMsGPUBusy
	MetricMsGPUWait
	MetricMsVideoBusy
	MetricMsUntilDisplayed
	MetricMsBetweenDisplayChange
	MetricMsDisplayedTime
	MetricMsDisplayLatency
	MetricScreenTimeQpc
	MetricMsClickToPhotonLatency
	MetricMsAllInputPhotonLatency
	MetricMsInstrumentedInputTime
	MetricMsPcLatency
	MetricMsAnimationError
	MetricMsAnimationTime
	MetricMsInstrumentedLatency
	MetricMsInstrumentedRenderLatency
	MetricMsInstrumentedSleep
	MetricMsInstrumentedGpuLatency
	MetricMsBetweenSimStarts
	MetricMsFlipDelay
	MetricFpsPresent
	MetricFpsDisplay
	MetricFpsApplication
	MetricFrameType
	MetricIsDroppedFrame
	MetricSwapChainAddress
)

// Polled (telemetry) metric IDs live in a disjoint numeric range so frame
// and polled metrics never collide in a query element.
const (
	MetricGPUUtilizationPercent uint32 = 1 << 16 + iota
	MetricGPUPowerWatts
	MetricGPUTemperatureC
	MetricVRAMUsedBytes
	MetricCPUUtilizationPercent
	MetricSystemMemoryUsedBytes
)

func builtinMetrics() []MetricInfo {
	return []MetricInfo{
		{ID: MetricMsBetweenPresents, Name: "ms_between_presents", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsInPresentAPI, Name: "ms_in_present_api", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsUntilRenderComplete, Name: "ms_until_render_complete", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsUntilRenderStart, Name: "ms_until_render_start", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricCPUStartQpc, Name: "cpu_start_qpc", Kind: KindFrame, Type: TypeUint64},
		{ID: MetricCPUStartMs, Name: "cpu_start_ms", Kind: KindFrame, Type: TypeFloat64},
		// PM_METRIC_BETWEEN_APP_START is a documented alias inherited from
		// the source catalog; it resolves to ms_cpu_busy rather than being
		// re-derived (spec.md §9 open question 1).
		{ID: MetricMsCPUBusy, Name: "ms_cpu_busy", Kind: KindFrame, Type: TypeFloat64, Aliases: []string{"ms_between_app_start"}},
		{ID: MetricMsCPUWait, Name: "ms_cpu_wait", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsGPULatency, Name: "ms_gpu_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsGPUBusy, Name: "ms_gpu_busy", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsGPUWait, Name: "ms_gpu_wait", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsVideoBusy, Name: "ms_video_busy", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsUntilDisplayed, Name: "ms_until_displayed", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsBetweenDisplayChange, Name: "ms_between_display_change", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsDisplayedTime, Name: "ms_displayed_time", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsDisplayLatency, Name: "ms_display_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricScreenTimeQpc, Name: "screen_time_qpc", Kind: KindFrame, Type: TypeUint64},
		{ID: MetricMsClickToPhotonLatency, Name: "ms_click_to_photon_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsAllInputPhotonLatency, Name: "ms_all_input_photon_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsInstrumentedInputTime, Name: "ms_instrumented_input_time", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsPcLatency, Name: "ms_pc_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsAnimationError, Name: "ms_animation_error", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsAnimationTime, Name: "ms_animation_time", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsInstrumentedLatency, Name: "ms_instrumented_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsInstrumentedRenderLatency, Name: "ms_instrumented_render_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsInstrumentedSleep, Name: "ms_instrumented_sleep", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsInstrumentedGpuLatency, Name: "ms_instrumented_gpu_latency", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsBetweenSimStarts, Name: "ms_between_sim_starts", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricMsFlipDelay, Name: "ms_flip_delay", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricFpsPresent, Name: "fps_present", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricFpsDisplay, Name: "fps_display", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricFpsApplication, Name: "fps_application", Kind: KindFrame, Type: TypeFloat64},
		{ID: MetricFrameType, Name: "frame_type", Kind: KindFrame, Type: TypeEnum, EnumID: EnumFrameType},
		{ID: MetricIsDroppedFrame, Name: "is_dropped_frame", Kind: KindFrame, Type: TypeBool},
		{ID: MetricSwapChainAddress, Name: "swap_chain_address", Kind: KindFrame, Type: TypeUint64},

		{ID: MetricGPUUtilizationPercent, Name: "gpu_utilization_percent", Kind: KindPolled, Type: TypeFloat64, PerDevice: true},
		{ID: MetricGPUPowerWatts, Name: "gpu_power_watts", Kind: KindPolled, Type: TypeFloat64, PerDevice: true},
		{ID: MetricGPUTemperatureC, Name: "gpu_temperature_c", Kind: KindPolled, Type: TypeFloat64, PerDevice: true},
		{ID: MetricVRAMUsedBytes, Name: "vram_used_bytes", Kind: KindPolled, Type: TypeUint64, PerDevice: true},
		{ID: MetricCPUUtilizationPercent, Name: "cpu_utilization_percent", Kind: KindPolled, Type: TypeFloat64, IsArray: true, PerDevice: true},
		{ID: MetricSystemMemoryUsedBytes, Name: "system_memory_used_bytes", Kind: KindPolled, Type: TypeUint64, PerDevice: true},
	}
}

const (
	EnumFrameType uint32 = iota + 1
	EnumPresentResult
	EnumInputDeviceKind
)

func builtinEnums() map[uint32][]EnumValue {
	return map[uint32][]EnumValue{
		EnumFrameType: {
			{0, "NotSet"}, {1, "Application"}, {2, "Repeated"}, {3, "Intel"}, {4, "AMD"}, {5, "NVIDIA"},
		},
		EnumPresentResult: {
			{0, "Unknown"}, {1, "Presented"}, {2, "Discarded"}, {3, "Error"},
		},
		EnumInputDeviceKind: {
			{0, "None"}, {1, "Keyboard"}, {2, "Mouse"}, {3, "Gamepad"},
		},
	}
}
