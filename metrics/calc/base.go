// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package calc holds the pure per-category metric calculators that together
// implement spec.md §4.3. Every function here is side-effect free: it reads
// a present and the current carry-state and either writes directly into the
// frame.Metrics being assembled, or — where a field feeds back into the
// carry-state — returns a Deltas fragment for the caller to fold in.
package calc

import (
	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

// computeBasePresentMetrics fills the per-present timing fields that are
// always computed regardless of display state.
func computeBasePresentMetrics(tb timebase.Base, present *frame.Data, state *carrystate.State, out *frame.Metrics) {
	out.TimeInSeconds = present.PresentStartTime

	if lp, ok := state.LastPresent.Get(); ok {
		out.MsBetweenPresents = tb.DeltaUnsignedMs(lp.PresentStartTime, present.PresentStartTime)
	} else {
		out.MsBetweenPresents = 0
	}

	out.MsInPresentAPI = tb.DurationMs(present.TimeInPresent)
	out.MsUntilRenderStart = tb.DeltaSignedMs(present.PresentStartTime, present.GPUStartTime)
	out.MsUntilRenderComplete = tb.DeltaSignedMs(present.PresentStartTime, present.ReadyTime)

	out.SwapChainAddress = present.SwapChainAddress
	out.Runtime = present.Runtime
	out.SyncInterval = present.SyncInterval
	out.PresentFlags = present.PresentFlags
	out.AllowsTearing = present.SupportsTearing
	out.PresentMode = present.PresentMode
}

func fpsFromMs(ms float64) float64 {
	if ms > 0 {
		return 1000 / ms
	}
	return 0
}
