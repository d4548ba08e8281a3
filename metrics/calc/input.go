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

// inputTrack computes one of the three structurally identical
// input-to-photon latency tracks (spec.md §4.3 "Input-to-photon latency").
// inputTime is the track's value on this present (0 if absent); stashed is
// the carry's corresponding last_received_not_displayed_* value.
//
// Returns the metric value and, when the stash should be written or
// cleared, the new stash value plus whether a reset should be signaled.
func inputTrack(tb timebase.Base, inputTime, stashed, screenTime uint64, isDisplayed bool) (metric option.Option[float64], newStash option.Option[uint64], resetSignaled bool) {
	if inputTime != 0 {
		if isDisplayed {
			return option.Some(tb.DeltaUnsignedMs(inputTime, screenTime)), option.None[uint64](), true
		}
		return option.None[float64](), option.Some(inputTime), false
	}
	if isDisplayed && stashed != 0 {
		return option.Some(tb.DeltaUnsignedMs(stashed, screenTime)), option.None[uint64](), true
	}
	return option.None[float64](), option.None[uint64](), false
}

// computeInputLatencyMetrics fills the three input-to-photon latency
// fields and accumulates the state deltas needed to advance the carry's
// dropped-frame input caches. Only app frames participate.
func computeInputLatencyMetrics(
	tb timebase.Base,
	state *carrystate.State,
	present *frame.Data,
	isDisplayed, isAppFrame bool,
	screenTime uint64,
	out *frame.Metrics,
	deltas *carrystate.Deltas,
) {
	out.MsAllInputPhotonLatency = option.None[float64]()
	out.MsClickToPhotonLatency = option.None[float64]()
	out.MsInstrumentedInputTime = option.None[float64]()

	if !isAppFrame {
		return
	}

	var reset bool

	m, stash, r := inputTrack(tb, present.InputTime, state.LastReceivedNotDisplayedAllInputTime, screenTime, isDisplayed)
	out.MsAllInputPhotonLatency = m
	if v, ok := stash.Get(); ok {
		deltas.LastReceivedNotDisplayedAllInputTime = option.Some(v)
	}
	reset = reset || r

	m, stash, r = inputTrack(tb, present.MouseClickTime, state.LastReceivedNotDisplayedMouseClickTime, screenTime, isDisplayed)
	out.MsClickToPhotonLatency = m
	if v, ok := stash.Get(); ok {
		deltas.LastReceivedNotDisplayedMouseClickTime = option.Some(v)
	}
	reset = reset || r

	m, stash, r = inputTrack(tb, present.AppInputSample.Time, state.LastReceivedNotDisplayedAppProviderInputTime, screenTime, isDisplayed)
	out.MsInstrumentedInputTime = m
	if v, ok := stash.Get(); ok {
		deltas.LastReceivedNotDisplayedAppProviderInputTime = option.Some(v)
	}
	reset = reset || r

	if reset {
		deltas.ShouldResetInputTimes = true
	}
}
