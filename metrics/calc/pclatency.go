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

const pcLatencyEmaAlpha = 0.1

// calculateEma computes a one-pole exponential moving average; when prev is
// zero (no history yet), the sample becomes the seed value outright.
func calculateEma(prev, sample, alpha float64) float64 {
	if prev == 0 {
		return sample
	}
	return prev + alpha*(sample-prev)
}

// computePcLatency implements spec.md §4.3 "PC latency", the only
// calculator function that both produces a metric value and writes several
// carry-state deltas at once.
func computePcLatency(
	tb timebase.Base,
	state *carrystate.State,
	present *frame.Data,
	isDisplayed bool,
	screenTime uint64,
	deltas *carrystate.Deltas,
) option.Option[float64] {
	if !isDisplayed {
		if present.PclSimStartTime != 0 {
			if present.PclInputPingTime != 0 {
				deltas.NewAccumulatedInputToFrameStart = option.Some(
					tb.DeltaUnsignedMs(present.PclInputPingTime, present.PclSimStartTime))
			} else if state.AccumulatedInputToFrameStartTime != 0 {
				deltas.NewAccumulatedInputToFrameStart = option.Some(
					state.AccumulatedInputToFrameStartTime +
						tb.DeltaUnsignedMs(state.LastReceivedNotDisplayedPclSimStart, present.PclSimStartTime))
			}
			deltas.NewLastReceivedPclSimStart = option.Some(present.PclSimStartTime)
		}
		return option.None[float64]()
	}

	if present.PclSimStartTime != 0 {
		if present.PclInputPingTime != 0 {
			deltas.NewInputToFrameStartEma = option.Some(calculateEma(
				state.InputToFrameStartEma,
				tb.DeltaUnsignedMs(present.PclInputPingTime, present.PclSimStartTime),
				pcLatencyEmaAlpha))
			deltas.NewAccumulatedInputToFrameStart = option.Some(0.0)
			deltas.NewLastReceivedPclSimStart = option.Some(uint64(0))
		} else if state.AccumulatedInputToFrameStartTime != 0 {
			accumulated := state.AccumulatedInputToFrameStartTime +
				tb.DeltaUnsignedMs(state.LastReceivedNotDisplayedPclSimStart, present.PclSimStartTime)
			deltas.NewInputToFrameStartEma = option.Some(calculateEma(
				state.InputToFrameStartEma, accumulated, pcLatencyEmaAlpha))
			deltas.NewAccumulatedInputToFrameStart = option.Some(0.0)
			deltas.NewLastReceivedPclSimStart = option.Some(uint64(0))
		}
	}

	simStart := present.PclSimStartTime
	if simStart == 0 {
		simStart = state.LastSimStartTime
	}
	ema := state.InputToFrameStartEma
	if v, ok := deltas.NewInputToFrameStartEma.Get(); ok {
		ema = v
	}
	if ema != 0 && simStart != 0 {
		return option.Some(ema + tb.DeltaSignedMs(simStart, screenTime))
	}
	return option.None[float64]()
}
