// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package calc

import (
	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/option"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

// computeInstrumentedMetrics fills the instrumented-timestamp family and
// ms_between_sim_starts.
func computeInstrumentedMetrics(
	tb timebase.Base,
	state *carrystate.State,
	present *frame.Data,
	isDisplayed, isAppFrame bool,
	screenTime uint64,
	out *frame.Metrics,
) {
	out.MsInstrumentedLatency = option.None[float64]()
	out.MsInstrumentedRenderLatency = option.None[float64]()
	out.MsInstrumentedSleep = option.None[float64]()
	out.MsInstrumentedGpuLatency = option.None[float64]()
	out.MsBetweenSimStarts = option.None[float64]()

	instrumentedStart := firstNonZero(present.AppSleepEndTime, present.AppSimStartTime)

	if isDisplayed && isAppFrame {
		if instrumentedStart != 0 {
			out.MsInstrumentedLatency = option.Some(tb.DeltaUnsignedMs(instrumentedStart, screenTime))
		}
		if present.AppRenderSubmitStartTime != 0 {
			out.MsInstrumentedRenderLatency = option.Some(tb.DeltaUnsignedMs(present.AppRenderSubmitStartTime, screenTime))
		}
	}

	if isAppFrame {
		if present.AppSleepStartTime != 0 && present.AppSleepEndTime != 0 {
			out.MsInstrumentedSleep = option.Some(tb.DeltaUnsignedMs(present.AppSleepStartTime, present.AppSleepEndTime))
		}
		if instrumentedStart != 0 && present.GPUStartTime != 0 {
			out.MsInstrumentedGpuLatency = option.Some(tb.DeltaUnsignedMs(instrumentedStart, present.GPUStartTime))
		}

		currentSimStart := firstNonZero(present.PclSimStartTime, present.AppSimStartTime)
		if state.LastSimStartTime != 0 && currentSimStart != 0 && currentSimStart > state.LastSimStartTime {
			out.MsBetweenSimStarts = option.Some(tb.DeltaUnsignedMs(state.LastSimStartTime, currentSimStart))
		}
	}
}
