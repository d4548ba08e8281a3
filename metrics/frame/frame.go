// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package frame defines the present-event snapshot that flows through the
// sequencer and calculator, along with the enums that classify it.
package frame

// Type classifies one displayed instance of a present.
type Type uint8

const (
	TypeNotSet Type = iota
	TypeApplication
	TypeRepeated
	TypeIntel
	TypeAMD
	TypeNVIDIA
)

func (t Type) String() string {
	switch t {
	case TypeApplication:
		return "Application"
	case TypeRepeated:
		return "Repeated"
	case TypeIntel:
		return "Intel"
	case TypeAMD:
		return "AMD"
	case TypeNVIDIA:
		return "NVIDIA"
	default:
		return "NotSet"
	}
}

// Result is the final disposition of a present call.
type Result uint8

const (
	ResultUnknown Result = iota
	ResultPresented
	ResultDiscarded
	ResultError
)

// InputDeviceKind classifies the device an instrumented input sample came from.
type InputDeviceKind uint8

const (
	InputDeviceNone InputDeviceKind = iota
	InputDeviceKeyboard
	InputDeviceMouse
	InputDeviceGamepad
)

// InputSample pairs an instrumented input timestamp with its device kind.
type InputSample struct {
	Time uint64
	Kind InputDeviceKind
}

// Display is one displayed instance of a present: a vsync the present's
// image was shown at, along with the frame type that produced it.
type Display struct {
	FrameType Type
	ScreenTime uint64
}

// Data is a value-copyable, fully owned snapshot of one present event. All
// timestamp fields are ticks from a monotonic performance counter; zero means
// "unknown/absent" everywhere.
//
// Data is immutable once constructed from the event source. The only
// exception is the sequencer's collapsed-frame correction, which may adjust
// FlipDelay and Displayed[0].ScreenTime in place (see metrics/sequencer).
type Data struct {
	// Identity
	ProcessID        uint32
	SwapChainAddress uint64
	FrameID          uint32
	AppFrameID       uint32

	// Timing
	PresentStartTime uint64
	TimeInPresent    uint64
	ReadyTime        uint64
	GPUStartTime     uint64
	GPUDuration      uint64
	GPUVideoDuration uint64
	InputTime        uint64
	MouseClickTime   uint64

	// App-propagated (set by an upstream frame-generation layer, e.g. a
	// frame-generation/interpolation shim, reporting true source-frame timing)
	AppPropagatedPresentStartTime uint64
	AppPropagatedTimeInPresent    uint64
	AppPropagatedGPUStartTime     uint64
	AppPropagatedReadyTime        uint64
	AppPropagatedGPUDuration      uint64
	AppPropagatedGPUVideoDuration uint64

	// Instrumented (set when the application exposes its own sim/sleep/render markers)
	AppSimStartTime          uint64
	AppSleepStartTime        uint64
	AppSleepEndTime          uint64
	AppRenderSubmitStartTime uint64
	AppRenderSubmitEndTime   uint64
	AppPresentStartTime      uint64
	AppPresentEndTime        uint64
	AppInputSample           InputSample

	// PC-latency (set when platform latency instrumentation is present)
	PclSimStartTime  uint64
	PclInputPingTime uint64

	// Display sequence. May be empty (dropped present) or carry multiple
	// entries (compositor shows the same present across several vsyncs, or
	// synthesizes extra frames from it).
	Displayed []Display

	FinalState Result

	// Vendor-specific / passthrough metadata
	FlipDelay       uint64
	FlipToken       uint32
	Runtime         uint32
	SyncInterval    int32
	PresentMode     uint32
	PresentFlags    uint32
	SupportsTearing bool
}

// IsDisplayed reports whether this present reached the screen at least once.
func (d *Data) IsDisplayed() bool {
	return d.FinalState == ResultPresented && len(d.Displayed) > 0
}

// Clone returns a deep copy, since Displayed is a slice and the sequencer's
// collapsed-frame correction mutates a present's first displayed entry.
func (d Data) Clone() Data {
	if d.Displayed != nil {
		cp := make([]Display, len(d.Displayed))
		copy(cp, d.Displayed)
		d.Displayed = cp
	}
	return d
}
