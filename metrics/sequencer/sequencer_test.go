// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package sequencer

import (
	"testing"

	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
)

func displayed(screenTime uint64) frame.Data {
	return frame.Data{
		PresentStartTime: screenTime - 100,
		Displayed:        []frame.Display{{FrameType: frame.TypeApplication, ScreenTime: screenTime}},
		FinalState:       frame.ResultPresented,
	}
}

func notDisplayed(start uint64) frame.Data {
	return frame.Data{PresentStartTime: start, FinalState: frame.ResultDiscarded}
}

// Invariant 1 (spec.md §8): the very first present only seeds carry-state
// and is never itself released.
func TestFirstPresentSeedsOnly(t *testing.T) {
	var state carrystate.State
	s := New(&state, true)
	out := s.Enqueue(displayed(1000))
	if len(out) != 0 {
		t.Fatalf("first present should produce no ready items, got %d", len(out))
	}
	if state.LastPresent.IsNone() {
		t.Fatalf("carry-state should be seeded from the first present")
	}
}

// V2: a displayed present is held until the next displayed present arrives,
// then released with that successor attached as NextDisplayed.
func TestV2HoldsDisplayedUntilNext(t *testing.T) {
	var state carrystate.State
	s := New(&state, true)
	s.Enqueue(displayed(1000)) // seed

	out := s.Enqueue(displayed(1200))
	if len(out) != 0 {
		t.Fatalf("first real displayed present should be held, got %d ready", len(out))
	}

	out = s.Enqueue(displayed(1400))
	if len(out) != 1 {
		t.Fatalf("expected 1 ready item on second displayed present, got %d", len(out))
	}
	if out[0].Present.Displayed[0].ScreenTime != 1200 {
		t.Errorf("released present has screen time %d, want 1200", out[0].Present.Displayed[0].ScreenTime)
	}
	if out[0].NextDisplayed == nil || out[0].NextDisplayed.Displayed[0].ScreenTime != 1400 {
		t.Errorf("NextDisplayed not set to the present with screen time 1400")
	}
}

// V2: non-displayed presents queued behind a waiting displayed present are
// released, in order, right after it.
func TestV2BlockedPresentsReleaseInOrder(t *testing.T) {
	var state carrystate.State
	s := New(&state, true)
	s.Enqueue(displayed(1000)) // seed
	s.Enqueue(displayed(1200)) // becomes waitingDisplayed

	if out := s.Enqueue(notDisplayed(1250)); len(out) != 0 {
		t.Fatalf("non-displayed present behind a waiting displayed present should block, got %d ready", len(out))
	}
	if out := s.Enqueue(notDisplayed(1300)); len(out) != 0 {
		t.Fatalf("second blocked present should also block, got %d ready", len(out))
	}

	out := s.Enqueue(displayed(1400))
	if len(out) != 3 {
		t.Fatalf("expected 3 ready items (released + 2 blocked), got %d", len(out))
	}
	if out[0].Present.Displayed[0].ScreenTime != 1200 {
		t.Errorf("item 0 should be the released displayed present")
	}
	if out[1].Present.PresentStartTime != 1250 || out[2].Present.PresentStartTime != 1300 {
		t.Errorf("blocked items did not preserve order: %+v", out)
	}
}

// V2: a non-displayed present with nothing waiting releases immediately.
func TestV2NonDisplayedReleasesImmediatelyWhenIdle(t *testing.T) {
	var state carrystate.State
	s := New(&state, true)
	s.Enqueue(displayed(1000)) // seed

	out := s.Enqueue(notDisplayed(1050))
	if len(out) != 1 {
		t.Fatalf("expected immediate release, got %d ready", len(out))
	}
	if out[0].NextDisplayed != nil {
		t.Errorf("a non-displayed present never carries NextDisplayed")
	}
}

// V1 releases every present immediately, with no NextDisplayed.
func TestV1ReleasesImmediately(t *testing.T) {
	var state carrystate.State
	s := New(&state, false)
	s.Enqueue(displayed(1000)) // seed

	out := s.Enqueue(displayed(1200))
	if len(out) != 1 {
		t.Fatalf("V1 should release immediately, got %d ready", len(out))
	}
	if out[0].NextDisplayed != nil {
		t.Errorf("V1 never attaches NextDisplayed")
	}
}

// Flush releases a still-waiting displayed present and anything blocked
// behind it, with no NextDisplayed, when a swap chain is pruned.
func TestFlushReleasesWaitingAndBlocked(t *testing.T) {
	var state carrystate.State
	s := New(&state, true)
	s.Enqueue(displayed(1000)) // seed
	s.Enqueue(displayed(1200)) // waiting
	s.Enqueue(notDisplayed(1250))

	out := s.Flush()
	if len(out) != 2 {
		t.Fatalf("expected 2 items from flush, got %d", len(out))
	}
	if out[0].NextDisplayed != nil {
		t.Errorf("flushed waiting item should have no NextDisplayed")
	}
	if second := s.Flush(); len(second) != 0 {
		t.Errorf("flush should be empty after draining, got %d", len(second))
	}
}

// A Repeated entry immediately adjacent to an Application entry is removed
// from Displayed before the present is buffered or released.
func TestSanitizeDisplayedRepeatsAdjacentToApplication(t *testing.T) {
	p := frame.Data{
		PresentStartTime: 900,
		FinalState:       frame.ResultPresented,
		Displayed: []frame.Display{
			{FrameType: frame.TypeApplication, ScreenTime: 1000},
			{FrameType: frame.TypeRepeated, ScreenTime: 1016},
		},
	}
	var state carrystate.State
	s := New(&state, true)
	s.Enqueue(p) // seeds; sanitization still runs on the seed present

	if len(state.LastPresent.OrElse(frame.Data{}).Displayed) != 1 {
		t.Fatalf("expected the adjacent Repeated entry to be stripped")
	}
}
