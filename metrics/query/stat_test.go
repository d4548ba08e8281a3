// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package query

import "testing"

// Invariant 4 (spec.md §8): percentile nearest-rank on a known distribution.
func TestPercentileNearestRankKnownDistribution(t *testing.T) {
	samples := []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

	cases := []struct {
		p    float64
		want float64
	}{
		{0.0, 10},
		{1.0, 100},
		{0.5, 60}, // idx = round(0.5*9) = 5 (0-indexed) -> samples[5]=60
	}
	for _, c := range cases {
		got, ok := PercentileNearestRank(samples, c.p)
		if !ok {
			t.Fatalf("PercentileNearestRank(_, %v) reported absent", c.p)
		}
		if got != c.want {
			t.Errorf("PercentileNearestRank(_, %v) = %v, want %v", c.p, got, c.want)
		}
	}
}

func TestPercentileNearestRankClampsOutOfRange(t *testing.T) {
	samples := []float64{1, 2, 3}
	if got, _ := PercentileNearestRank(samples, -1); got != 1 {
		t.Errorf("p<0 should clamp to 0th percentile, got %v", got)
	}
	if got, _ := PercentileNearestRank(samples, 2); got != 3 {
		t.Errorf("p>1 should clamp to 100th percentile, got %v", got)
	}
}

func TestPercentileNearestRankEmptyIsAbsent(t *testing.T) {
	if _, ok := PercentileNearestRank(nil, 0.5); ok {
		t.Fatalf("empty sample set should report absent")
	}
}

// Empty-window contract: every stat kind yields (0, false) for no samples.
func TestAggregateEmptyWindowAlwaysAbsent(t *testing.T) {
	stats := []Stat{
		StatAvg, StatNonZeroAvg, StatPercentile01, StatPercentile95,
		StatPercentile99, StatMin, StatMax,
	}
	for _, s := range stats {
		if v, ok := Aggregate(s, nil); ok || v != 0 {
			t.Errorf("Aggregate(%v, nil) = (%v, %v), want (0, false)", s, v, ok)
		}
	}
}

func TestAggregateNonZeroAvgSkipsZeroes(t *testing.T) {
	samples := []float64{0, 10, 0, 20, 0}
	got, ok := Aggregate(StatNonZeroAvg, samples)
	if !ok {
		t.Fatalf("non-zero average should be present when some samples are non-zero")
	}
	if got != 15 {
		t.Errorf("NonZeroAvg = %v, want 15", got)
	}
}

func TestAggregateNonZeroAvgAllZeroIsAbsent(t *testing.T) {
	if _, ok := Aggregate(StatNonZeroAvg, []float64{0, 0, 0}); ok {
		t.Errorf("all-zero window should yield absent non-zero average")
	}
}

func TestAggregateMinMax(t *testing.T) {
	samples := []float64{5, -3, 8, 1}
	if got, _ := Aggregate(StatMin, samples); got != -3 {
		t.Errorf("Min = %v, want -3", got)
	}
	if got, _ := Aggregate(StatMax, samples); got != 8 {
		t.Errorf("Max = %v, want 8", got)
	}
}
