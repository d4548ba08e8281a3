// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package calc

import (
	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

// Computed pairs one frame.Metrics record with the carry-state Deltas it
// implies. ComputeMetricsForPresent is pure: callers fold the Deltas into
// carrystate.State via carrystate.ApplyDeltas, and separately call
// carrystate.UpdateAfterPresent once all records for a present have been
// produced (spec.md §4.3).
type Computed struct {
	Metrics frame.Metrics
	Deltas  carrystate.Deltas
}

// appFrameIndex returns the index of the first displayed entry whose frame
// type is NotSet or Application (the "app index"), or -1 if no such entry
// exists. The app-frame output carries animation/input/instrumented
// metrics; synthesized-frame outputs (repeats, vendor frame generation)
// omit them.
func appFrameIndex(displayed []frame.Display) int {
	for i, d := range displayed {
		if d.FrameType == frame.TypeNotSet || d.FrameType == frame.TypeApplication {
			return i
		}
	}
	return -1
}

// ComputeMetricsForPresent implements the calculator contract of spec.md
// §4.3. present has already had the sequencer's collapsed-frame correction
// applied (see metrics/sequencer) and is fully resolved: for V2, the
// sequencer only calls this once nextDisplayed is known (or once it is
// certain none will follow); for V1, nextDisplayed is always nil and a
// single record is produced with ms_displayed_time forced to zero.
func ComputeMetricsForPresent(
	tb timebase.Base,
	present frame.Data,
	nextDisplayed *frame.Data,
	state *carrystate.State,
	isV2 bool,
) []Computed {
	if !present.IsDisplayed() {
		return []Computed{computeOne(tb, present, 0, 0, false, true, frame.TypeNotSet, state, isV2)}
	}

	if !isV2 {
		screenTime := present.Displayed[0].ScreenTime
		return []Computed{computeOne(tb, present, screenTime, screenTime, true, true, present.Displayed[0].FrameType, state, false)}
	}

	n := len(present.Displayed)
	appIdx := appFrameIndex(present.Displayed)

	results := make([]Computed, 0, n)
	for i := 0; i < n; i++ {
		screenTime := present.Displayed[i].ScreenTime
		var nextScreenTime uint64
		switch {
		case i+1 < n:
			nextScreenTime = present.Displayed[i+1].ScreenTime
		case nextDisplayed != nil && len(nextDisplayed.Displayed) > 0:
			nextScreenTime = nextDisplayed.Displayed[0].ScreenTime
		default:
			// No next screen time available for this entry; stop here
			// rather than emit a record with an undefined display duration.
			break
		}
		if nextScreenTime == 0 {
			break
		}
		isAppFrame := i == appIdx
		results = append(results, computeOne(tb, present, screenTime, nextScreenTime, true, isAppFrame, present.Displayed[i].FrameType, state, true))
	}
	return results
}

func computeOne(
	tb timebase.Base,
	present frame.Data,
	screenTime, nextScreenTime uint64,
	isDisplayed, isAppFrame bool,
	frameType frame.Type,
	state *carrystate.State,
	isV2 bool,
) Computed {
	var result Computed
	m := &result.Metrics
	d := &result.Deltas

	m.FrameType = frameType

	computeBasePresentMetrics(tb, &present, state, m)
	computeDisplayMetrics(tb, &present, state, isDisplayed, screenTime, nextScreenTime, isV2, m)
	computeCpuGpuMetrics(tb, state, &present, isAppFrame, m)
	computeAnimationMetrics(tb, state, &present, isDisplayed, isAppFrame, screenTime, m)
	computeInputLatencyMetrics(tb, state, &present, isDisplayed, isAppFrame, screenTime, m, d)
	m.MsPcLatency = computePcLatency(tb, state, &present, isDisplayed, screenTime, d)
	computeInstrumentedMetrics(tb, state, &present, isDisplayed, isAppFrame, screenTime, m)

	m.CPUStartQpc = carrystate.ResolveCPUStart(state, &present)
	if tb.SessionStartTicks != 0 && m.CPUStartQpc != 0 {
		m.CPUStartMs = tb.DeltaSignedMs(tb.SessionStartTicks, m.CPUStartQpc)
	}

	m.FpsPresent = fpsFromMs(m.MsBetweenPresents)
	m.FpsDisplay = fpsFromMs(m.MsBetweenDisplayChange)
	m.FpsApplication = fpsFromMs(m.MsCPUBusy)

	return result
}
