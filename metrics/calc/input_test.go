// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package calc

import (
	"testing"

	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
)

// When a present displays more than once and a vendor-synthesized entry
// follows the app's own frame (spec.md §4.2 "Display indexing"), the
// input-to-photon metrics for the app-frame record must use the app
// frame's own screen time, not the trailing synthesized entry's.
func TestInputLatencyUsesAppFrameScreenTimeNotLastDisplayedEntry(t *testing.T) {
	p := frame.Data{
		PresentStartTime: 1000,
		InputTime:        1000,
		Displayed: []frame.Display{
			{FrameType: frame.TypeApplication, ScreenTime: 1200},
			{FrameType: frame.TypeRepeated, ScreenTime: 1400},
		},
		FinalState: frame.ResultPresented,
	}

	var state carrystate.State
	results := ComputeMetricsForPresent(tb(), p, nil, &state, true)
	if len(results) == 0 {
		t.Fatalf("expected at least 1 record")
	}

	appRecord := results[0]
	if appRecord.Metrics.FrameType != frame.TypeApplication {
		t.Fatalf("results[0].FrameType = %v, want Application", appRecord.Metrics.FrameType)
	}

	got, ok := appRecord.Metrics.MsAllInputPhotonLatency.Get()
	if !ok {
		t.Fatalf("ms_all_input_photon_latency should be present")
	}
	if !almostEqual(got, 0.02) {
		t.Errorf("ms_all_input_photon_latency = %v, want 0.02 (computed against the app frame's own screen time 1200, not the trailing entry's 1400)", got)
	}
}
