// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package frame

import "github.com/GameTechDev/pmmetricscore/metrics/option"

// Metrics is the fixed-layout output record produced by the calculator for
// one displayed instance (or non-displayed instance) of a present. Fields
// marked Option are absent when the source data needed to compute them was
// not available for this frame; in blob form an absent float is serialized
// as quiet-NaN (see metrics/frameevent).
type Metrics struct {
	// Per-present timing (always computed)
	TimeInSeconds          uint64
	MsBetweenPresents      float64
	MsInPresentAPI         float64
	MsUntilRenderComplete  float64
	MsUntilRenderStart     float64

	// CPU (app frames only)
	CPUStartQpc uint64
	CPUStartMs  float64
	MsCPUBusy   float64
	MsCPUWait   float64

	// GPU (app frames only)
	MsGPULatency float64
	MsGPUBusy    float64
	MsGPUWait    float64
	MsVideoBusy  float64

	// Display (displayed frames only)
	MsUntilDisplayed        float64
	MsBetweenDisplayChange  float64
	MsDisplayedTime         float64
	MsDisplayLatency        float64
	ScreenTimeQpc           uint64

	// Optional input-to-photon latency (app+displayed only)
	MsClickToPhotonLatency   option.Option[float64]
	MsAllInputPhotonLatency  option.Option[float64]
	MsInstrumentedInputTime  option.Option[float64]
	MsPcLatency              option.Option[float64]

	// Optional animation metrics (app+displayed only)
	MsAnimationError option.Option[float64]
	MsAnimationTime  option.Option[float64]

	// Optional instrumented metrics
	MsInstrumentedLatency       option.Option[float64]
	MsInstrumentedRenderLatency option.Option[float64]
	MsInstrumentedSleep         option.Option[float64]
	MsInstrumentedGpuLatency    option.Option[float64]
	MsBetweenSimStarts          option.Option[float64]

	// Vendor
	MsFlipDelay option.Option[float64]

	// Derived FPS
	FpsPresent     float64
	FpsDisplay     float64
	FpsApplication float64

	// Classification
	FrameType     Type
	IsDroppedFrame bool

	// Passthroughs
	SwapChainAddress uint64
	PresentFlags     uint32
	SyncInterval     int32
	Runtime          uint32
	PresentMode      uint32
	AllowsTearing    bool
}
