// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package carrystate holds the per-swap-chain running state consumed and
// advanced by the metrics calculator (metrics/calc). State itself is never
// mutated by the pure calculator functions; callers apply a Deltas
// patch via ApplyDeltas, then call UpdateAfterPresent once the present has
// been fully processed.
package carrystate

import (
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/option"
)

// AnimationErrorSource names which timestamp kind backs animation-error and
// animation-time calculations for a swap chain. It only ever upgrades,
// never downgrades, across the lifetime of a swap chain (see UpdateAfterPresent).
type AnimationErrorSource uint8

const (
	AnimationSourceCpuStart AnimationErrorSource = iota
	AnimationSourceAppProvider
	AnimationSourcePCLatency
)

// State is the per-swap-chain carry-state described in spec.md §3.3.
type State struct {
	LastPresent    option.Option[frame.Data]
	LastAppPresent option.Option[frame.Data]

	LastSimStartTime         uint64
	LastDisplayedSimStartTime uint64
	LastDisplayedAppScreenTime uint64
	FirstAppSimStartTime      uint64

	LastReceivedNotDisplayedAllInputTime        uint64
	LastReceivedNotDisplayedMouseClickTime      uint64
	LastReceivedNotDisplayedAppProviderInputTime uint64
	LastReceivedNotDisplayedPclSimStart         uint64
	LastReceivedNotDisplayedPclInputTime        uint64

	AnimationErrorSource AnimationErrorSource

	AccumulatedInputToFrameStartTime float64
	InputToFrameStartEma             float64

	LastDisplayedFlipDelay   uint64
	LastDisplayedScreenTime  uint64
}

// Deltas is the patch of carry-state changes computed alongside a
// frame.Metrics record. The calculator never mutates State directly; the
// caller applies a Deltas value via ApplyDeltas.
type Deltas struct {
	NewInputToFrameStartEma         option.Option[float64]
	NewAccumulatedInputToFrameStart option.Option[float64]
	NewLastReceivedPclSimStart      option.Option[uint64]
	NewLastReceivedPclInputTime     option.Option[uint64]

	LastReceivedNotDisplayedAllInputTime         option.Option[uint64]
	LastReceivedNotDisplayedMouseClickTime       option.Option[uint64]
	LastReceivedNotDisplayedAppProviderInputTime option.Option[uint64]

	// ShouldResetInputTimes clears all five LastReceivedNotDisplayed* fields
	// together; set by any of the three input-to-photon tracks (all-input,
	// mouse-click, instrumented) when their stashed value is consumed.
	ShouldResetInputTimes bool
}

// ApplyDeltas mutates state in place according to d. This is the only place
// State is ever written from a Deltas value.
func ApplyDeltas(state *State, d Deltas) {
	if d.ShouldResetInputTimes {
		state.LastReceivedNotDisplayedAllInputTime = 0
		state.LastReceivedNotDisplayedMouseClickTime = 0
		state.LastReceivedNotDisplayedAppProviderInputTime = 0
		state.LastReceivedNotDisplayedPclSimStart = 0
		state.LastReceivedNotDisplayedPclInputTime = 0
	}

	if v, ok := d.LastReceivedNotDisplayedAllInputTime.Get(); ok {
		state.LastReceivedNotDisplayedAllInputTime = v
	}
	if v, ok := d.LastReceivedNotDisplayedMouseClickTime.Get(); ok {
		state.LastReceivedNotDisplayedMouseClickTime = v
	}
	if v, ok := d.LastReceivedNotDisplayedAppProviderInputTime.Get(); ok {
		state.LastReceivedNotDisplayedAppProviderInputTime = v
	}
	if v, ok := d.NewLastReceivedPclSimStart.Get(); ok {
		state.LastReceivedNotDisplayedPclSimStart = v
	}
	if v, ok := d.NewLastReceivedPclInputTime.Get(); ok {
		state.LastReceivedNotDisplayedPclInputTime = v
	}
	if v, ok := d.NewAccumulatedInputToFrameStart.Get(); ok {
		state.AccumulatedInputToFrameStartTime = v
	}
	if v, ok := d.NewInputToFrameStartEma.Get(); ok {
		state.InputToFrameStartEma = v
	}
}

// ResolveCPUStart implements spec.md §4.3.a: the CPU-start resolution used
// by both the display-latency metric and as a CpuStart animation source.
func ResolveCPUStart(state *State, present *frame.Data) uint64 {
	if lap, ok := state.LastAppPresent.Get(); ok {
		if lap.AppPropagatedPresentStartTime != 0 {
			return lap.AppPropagatedPresentStartTime + lap.AppPropagatedTimeInPresent
		}
		return lap.PresentStartTime + lap.TimeInPresent
	}
	if lp, ok := state.LastPresent.Get(); ok {
		return lp.PresentStartTime + lp.TimeInPresent
	}
	return 0
}

// ResolveAnimationSimStart returns the sim-start timestamp for the
// configured animation-error source.
func ResolveAnimationSimStart(state *State, present *frame.Data, source AnimationErrorSource) uint64 {
	switch source {
	case AnimationSourceAppProvider:
		return present.AppSimStartTime
	case AnimationSourcePCLatency:
		return present.PclSimStartTime
	default:
		return ResolveCPUStart(state, present)
	}
}

// isAppFrameType reports whether a displayed frame type counts as "the
// application's own frame" for state-advancement purposes (NotSet is
// treated as an app frame, matching undisplayed presents with no type).
func isAppFrameType(t frame.Type) bool {
	return t == frame.TypeApplication || t == frame.TypeNotSet
}

// UpdateAfterPresent advances the rest of the carry-state once the
// calculator's deltas have been applied, per spec.md §4.3.b. present is the
// present that was just fully processed, lastDisplayedType is the frame
// type of its final displayed entry (ignored when the present was not
// displayed).
func UpdateAfterPresent(state *State, present frame.Data, lastDisplayedType frame.Type) {
	if present.IsDisplayed() {
		if isAppFrameType(lastDisplayedType) {
			switch state.AnimationErrorSource {
			case AnimationSourceCpuStart:
				switch {
				case present.AppSimStartTime != 0:
					state.AnimationErrorSource = AnimationSourceAppProvider
				case present.PclSimStartTime != 0:
					state.AnimationErrorSource = AnimationSourcePCLatency
				}
			}
			switch state.AnimationErrorSource {
			case AnimationSourceAppProvider:
				if present.AppSimStartTime != 0 {
					state.LastDisplayedSimStartTime = present.AppSimStartTime
					if state.FirstAppSimStartTime == 0 {
						state.FirstAppSimStartTime = present.AppSimStartTime
					}
					state.LastDisplayedAppScreenTime = lastDisplayedScreenTime(present)
				}
			case AnimationSourcePCLatency:
				if present.PclSimStartTime != 0 {
					state.LastDisplayedSimStartTime = present.PclSimStartTime
					if state.FirstAppSimStartTime == 0 {
						state.FirstAppSimStartTime = present.PclSimStartTime
					}
					state.LastDisplayedAppScreenTime = lastDisplayedScreenTime(present)
				}
			case AnimationSourceCpuStart:
				// Uninstrumented app: still advance from the CPU-start of the
				// previous app present, unconditionally, so animation error has
				// a baseline even without AppSimStartTime/PclSimStartTime.
				state.LastDisplayedSimStartTime = ResolveCPUStart(state, &present)
				state.LastDisplayedAppScreenTime = lastDisplayedScreenTime(present)
			}
		}

		last := present.Displayed[len(present.Displayed)-1]
		state.LastDisplayedScreenTime = last.ScreenTime
		state.LastDisplayedFlipDelay = present.FlipDelay
	} else {
		state.LastDisplayedScreenTime = 0
		state.LastDisplayedFlipDelay = 0
	}

	if !present.IsDisplayed() || isAppFrameType(lastDisplayedType) {
		state.LastAppPresent = option.Some(present)
	}

	if present.PclSimStartTime != 0 {
		state.LastSimStartTime = present.PclSimStartTime
	} else if present.AppSimStartTime != 0 {
		state.LastSimStartTime = present.AppSimStartTime
	}

	state.LastPresent = option.Some(present)
}

func lastDisplayedScreenTime(present frame.Data) uint64 {
	if len(present.Displayed) == 0 {
		return 0
	}
	return present.Displayed[len(present.Displayed)-1].ScreenTime
}
