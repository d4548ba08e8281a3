// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package sequencer implements the unified swap-chain sequencer of spec.md
// §4.2: it buffers presents for one swap chain just long enough to resolve
// the "next displayed" present a display-time metric needs, then hands
// ready items to the calculator. It owns no metric math itself.
package sequencer

import (
	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
)

// ReadyItem is one present released by the sequencer, paired with the next
// displayed present when known (V2 only).
type ReadyItem struct {
	Present       frame.Data
	NextDisplayed *frame.Data
}

// Sequencer holds the per-swap-chain buffering state: at most one "waiting
// displayed" present plus a block of non-displayed presents queued behind
// it (V2 only). Carry-state is owned by the caller (metrics/source) and
// referenced here only to read the previous display for collapsed-frame
// correction and to seed it on the first present.
type Sequencer struct {
	isV2   bool
	state  *carrystate.State
	seeded bool

	waitingDisplayed *frame.Data
	blocked          []frame.Data
}

// New returns a sequencer for one swap chain. state must outlive the
// sequencer and is shared with the calculator for the same swap chain.
func New(state *carrystate.State, isV2 bool) *Sequencer {
	return &Sequencer{isV2: isV2, state: state}
}

// Enqueue feeds one newly observed present (monotonic by PresentStartTime)
// into the sequencer and returns zero or more ready items in order.
func (s *Sequencer) Enqueue(present frame.Data) []ReadyItem {
	present = present.Clone()
	sanitizeDisplayedRepeats(&present)

	if !s.seeded {
		s.seeded = true
		seedType := frame.TypeNotSet
		if present.IsDisplayed() {
			seedType = present.Displayed[len(present.Displayed)-1].FrameType
		}
		carrystate.UpdateAfterPresent(s.state, present, seedType)
		return nil
	}

	if !s.isV2 {
		applyCollapsedCorrectionV1(&present, s.state)
		return []ReadyItem{{Present: present}}
	}

	isDisplayed := present.IsDisplayed()

	switch {
	case isDisplayed && s.waitingDisplayed == nil:
		s.waitingDisplayed = &present
		return nil

	case isDisplayed && s.waitingDisplayed != nil:
		released := *s.waitingDisplayed
		applyCollapsedCorrectionV2(&released, &present)

		out := make([]ReadyItem, 0, 1+len(s.blocked))
		out = append(out, ReadyItem{Present: released, NextDisplayed: &present})
		for _, b := range s.blocked {
			out = append(out, ReadyItem{Present: b})
		}
		s.blocked = nil
		s.waitingDisplayed = &present
		return out

	case !isDisplayed && s.waitingDisplayed != nil:
		s.blocked = append(s.blocked, present)
		return nil

	default: // not displayed, nothing waiting
		return []ReadyItem{{Present: present}}
	}
}

// Flush releases any present still buffered in waitingDisplayed (with no
// next_displayed, since none ever arrived) followed by anything blocked
// behind it. Callers invoke this when a swap chain is pruned for
// inactivity so the blocked presents are still computed. The flushed
// displayed present carries no next_displayed, so the calculator produces
// no record for its last display entry.
func (s *Sequencer) Flush() []ReadyItem {
	if s.waitingDisplayed == nil {
		return nil
	}
	out := make([]ReadyItem, 0, 1+len(s.blocked))
	out = append(out, ReadyItem{Present: *s.waitingDisplayed})
	for _, b := range s.blocked {
		out = append(out, ReadyItem{Present: b})
	}
	s.waitingDisplayed = nil
	s.blocked = nil
	return out
}

// sanitizeDisplayedRepeats removes any Repeated entry immediately adjacent
// to an Application entry (on either side); a Repeated entry sandwiched
// between two Application entries is removed by the same rule applied
// twice over. Runs for both V1 and V2.
func sanitizeDisplayedRepeats(present *frame.Data) {
	d := present.Displayed
	if len(d) < 2 {
		return
	}
	remove := make([]bool, len(d))
	for i, e := range d {
		if e.FrameType != frame.TypeRepeated {
			continue
		}
		if (i > 0 && d[i-1].FrameType == frame.TypeApplication) ||
			(i+1 < len(d) && d[i+1].FrameType == frame.TypeApplication) {
			remove[i] = true
		}
	}
	kept := d[:0:0]
	for i, e := range d {
		if !remove[i] {
			kept = append(kept, e)
		}
	}
	present.Displayed = kept
}

// applyCollapsedCorrectionV2 implements the vendor-specific collapsed/runt
// correction for the look-ahead path: if released carries a nonzero
// flip_delay and its screen time exceeds the successor's first screen
// time, the successor's flip_delay absorbs the difference and its first
// screen time is pinned to released's.
func applyCollapsedCorrectionV2(released, next *frame.Data) {
	if released.FlipDelay == 0 || len(released.Displayed) == 0 || len(next.Displayed) == 0 {
		return
	}
	screenTime := released.Displayed[len(released.Displayed)-1].ScreenTime
	nextScreenTime := next.Displayed[0].ScreenTime
	if screenTime > nextScreenTime {
		diff := screenTime - nextScreenTime
		next.FlipDelay += diff
		next.Displayed[0].ScreenTime = screenTime
	}
}

// applyCollapsedCorrectionV1 implements the symmetric V1 rule: correct the
// current present against the carry's last displayed screen time/flip
// delay, since V1 has no look-ahead to correct a successor with.
func applyCollapsedCorrectionV1(present *frame.Data, state *carrystate.State) {
	if !present.IsDisplayed() {
		return
	}
	if state.LastDisplayedFlipDelay == 0 {
		return
	}
	screenTime := present.Displayed[0].ScreenTime
	if state.LastDisplayedScreenTime > screenTime {
		diff := state.LastDisplayedScreenTime - screenTime
		present.FlipDelay += diff
		present.Displayed[0].ScreenTime = state.LastDisplayedScreenTime
	}
}
