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

// computeDisplayMetrics fills the display-latency family. screenTime and
// nextScreenTime are resolved by the caller per the display-indexing rules
// in metrics/sequencer; isV2 controls whether ms_displayed_time is computed
// (V1 forces it to zero, spec.md §4.2).
func computeDisplayMetrics(
	tb timebase.Base,
	present *frame.Data,
	state *carrystate.State,
	isDisplayed bool,
	screenTime, nextScreenTime uint64,
	isV2 bool,
	out *frame.Metrics,
) {
	out.IsDroppedFrame = !isDisplayed
	if !isDisplayed {
		return
	}

	out.ScreenTimeQpc = screenTime
	out.MsUntilDisplayed = tb.DeltaUnsignedMs(present.PresentStartTime, screenTime)
	out.MsBetweenDisplayChange = tb.DeltaUnsignedMs(state.LastDisplayedScreenTime, screenTime)

	if isV2 {
		out.MsDisplayedTime = tb.DeltaUnsignedMs(screenTime, nextScreenTime)
	} else {
		out.MsDisplayedTime = 0
	}

	cpuStart := carrystate.ResolveCPUStart(state, present)
	out.MsDisplayLatency = tb.DeltaUnsignedMs(cpuStart, screenTime)

	if present.FlipDelay != 0 {
		out.MsFlipDelay = option.Some(tb.DurationMs(present.FlipDelay))
	} else {
		out.MsFlipDelay = option.None[float64]()
	}
}
