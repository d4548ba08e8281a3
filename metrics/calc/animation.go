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

// computeAnimationMetrics fills ms_animation_error and ms_animation_time,
// emitted only for displayed app frames.
func computeAnimationMetrics(
	tb timebase.Base,
	state *carrystate.State,
	present *frame.Data,
	isDisplayed, isAppFrame bool,
	screenTime uint64,
	out *frame.Metrics,
) {
	out.MsAnimationError = option.None[float64]()
	out.MsAnimationTime = option.None[float64]()

	if !isDisplayed || !isAppFrame {
		return
	}

	currentSimStart := carrystate.ResolveAnimationSimStart(state, present, state.AnimationErrorSource)

	simElapsed := tb.DeltaUnsignedMs(state.LastDisplayedSimStartTime, currentSimStart)
	displayElapsed := tb.DeltaUnsignedMs(state.LastDisplayedAppScreenTime, screenTime)
	if simElapsed != 0 && displayElapsed != 0 && currentSimStart > state.LastDisplayedSimStartTime {
		out.MsAnimationError = option.Some(simElapsed - displayElapsed)
	}

	// Seed-frame special case: the source is still CpuStart (meaning no
	// app/PCL sim-start has ever been seen) but this present carries one —
	// update_after_present is what flips the source, so this particular
	// frame reports absent rather than a time computed against a stale
	// CpuStart-derived baseline.
	if state.AnimationErrorSource == carrystate.AnimationSourceCpuStart &&
		(present.AppSimStartTime != 0 || present.PclSimStartTime != 0) {
		return
	}

	firstSimStart := state.FirstAppSimStartTime
	if firstSimStart == 0 {
		firstSimStart = tb.SessionStartTicks
	}
	out.MsAnimationTime = option.Some(tb.DeltaUnsignedMs(firstSimStart, currentSimStart))
}
