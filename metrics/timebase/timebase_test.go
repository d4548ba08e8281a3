// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package timebase

import "testing"

func testBase() Base {
	return Base{FrequencyTicksPerSec: 10_000_000}
}

func TestTicksToMs(t *testing.T) {
	b := testBase()
	if got := b.TicksToMs(50); got != 0.005 {
		t.Fatalf("TicksToMs(50) = %v, want 0.005", got)
	}
}

func TestDeltaUnsignedMsZeroCases(t *testing.T) {
	b := testBase()
	cases := []struct {
		a, bEnd uint64
	}{
		{0, 100},
		{100, 0},
		{100, 100},
		{200, 100},
	}
	for _, c := range cases {
		if got := b.DeltaUnsignedMs(c.a, c.bEnd); got != 0 {
			t.Errorf("DeltaUnsignedMs(%d, %d) = %v, want 0", c.a, c.bEnd, got)
		}
	}
}

func TestDeltaUnsignedMsPositive(t *testing.T) {
	b := testBase()
	if got := b.DeltaUnsignedMs(1000, 1200); got != 0.020 {
		t.Fatalf("DeltaUnsignedMs(1000, 1200) = %v, want 0.020", got)
	}
}

func TestDeltaSignedMsSign(t *testing.T) {
	b := testBase()
	if got := b.DeltaSignedMs(1000, 1200); got <= 0 {
		t.Fatalf("expected positive delta, got %v", got)
	}
	if got := b.DeltaSignedMs(1200, 1000); got >= 0 {
		t.Fatalf("expected negative delta, got %v", got)
	}
	if got := b.DeltaSignedMs(1000, 1000); got != 0 {
		t.Fatalf("expected zero delta for equal ticks, got %v", got)
	}
	if got := b.DeltaSignedMs(0, 1000); got != 0 {
		t.Fatalf("expected zero delta for zero endpoint, got %v", got)
	}
}

func TestZeroFrequencyNeverDivides(t *testing.T) {
	var b Base
	if got := b.TicksToMs(100); got != 0 {
		t.Fatalf("TicksToMs with zero frequency = %v, want 0", got)
	}
}
