// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package calc

import (
	"testing"

	"github.com/d4l3k/messagediff"

	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
)

// Invariant 2 (spec.md §8): ComputeMetricsForPresent is pure, so calling it
// again with the same (present, nextDisplayed, state) yields the same
// metrics and deltas, and reapplying an already-applied Deltas value to its
// resulting state is a no-op.
func TestComputeMetricsForPresentIsIdempotentOnUnchangedState(t *testing.T) {
	p := frame.Data{
		PresentStartTime: 1000,
		TimeInPresent:    50,
		InputTime:        900,
		Displayed:        []frame.Display{{FrameType: frame.TypeApplication, ScreenTime: 1200}},
		FinalState:       frame.ResultPresented,
	}
	next := frame.Data{
		Displayed: []frame.Display{{FrameType: frame.TypeApplication, ScreenTime: 1400}},
	}

	var state carrystate.State
	r1 := ComputeMetricsForPresent(tb(), p, &next, &state, true)
	r2 := ComputeMetricsForPresent(tb(), p, &next, &state, true)

	if len(r1) != len(r2) {
		t.Fatalf("record count differs across repeated calls: %d vs %d", len(r1), len(r2))
	}
	for i := range r1 {
		if diff, equal := messagediff.PrettyDiff(r1[i].Metrics, r2[i].Metrics); !equal {
			t.Errorf("record %d: metrics differ across repeated calls with unchanged state:\n%s", i, diff)
		}
		if diff, equal := messagediff.PrettyDiff(r1[i].Deltas, r2[i].Deltas); !equal {
			t.Errorf("record %d: deltas differ across repeated calls with unchanged state:\n%s", i, diff)
		}
	}

	// Reapplying the same Deltas value a second time must be a no-op: the
	// resulting carry-state after one apply equals the state after two.
	once := state
	carrystate.ApplyDeltas(&once, r1[0].Deltas)

	twice := once
	carrystate.ApplyDeltas(&twice, r1[0].Deltas)

	if diff, equal := messagediff.PrettyDiff(once, twice); !equal {
		t.Errorf("ApplyDeltas is not idempotent: state differs after reapplying the same deltas:\n%s", diff)
	}
}
