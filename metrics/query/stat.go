// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package query

import "sort"

// Stat identifies one of the window-aggregation functions a dynamic query
// element can request (spec.md §4.5).
type Stat uint8

const (
	StatAvg Stat = iota
	StatNonZeroAvg
	StatPercentile01
	StatPercentile05
	StatPercentile10
	StatPercentile90
	StatPercentile95
	StatPercentile99
	StatMin
	StatMax
	StatOldestPoint
	StatNewestPoint
	StatMidPoint
)

func (s Stat) percentile() (p float64, isPercentile bool) {
	switch s {
	case StatPercentile01:
		return 0.01, true
	case StatPercentile05:
		return 0.05, true
	case StatPercentile10:
		return 0.10, true
	case StatPercentile90:
		return 0.90, true
	case StatPercentile95:
		return 0.95, true
	case StatPercentile99:
		return 0.99, true
	default:
		return 0, false
	}
}

// isPointStat reports whether s is resolved by nearest-sample lookup
// instead of a full-window traversal.
func (s Stat) isPointStat() bool {
	return s == StatOldestPoint || s == StatNewestPoint || s == StatMidPoint
}

// PercentileNearestRank implements spec.md §8 invariant 4: nearest-rank on
// sorted samples, index round(clamp(p,0,1)*(n-1)). samples need not be
// pre-sorted; this sorts a copy. Returns (0, false) for an empty slice.
func PercentileNearestRank(samples []float64, p float64) (float64, bool) {
	n := len(samples)
	if n == 0 {
		return 0, false
	}
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	idx := int(p*float64(n-1) + 0.5)
	if idx < 0 {
		idx = 0
	}
	if idx >= n {
		idx = n - 1
	}
	return sorted[idx], true
}

// Aggregate computes stat over samples, returning (value, present). An
// empty window yields (0, false) for every stat kind (the caller writes
// the declared-type zero value in that case, per spec.md §4.5).
func Aggregate(stat Stat, samples []float64) (float64, bool) {
	if len(samples) == 0 {
		return 0, false
	}

	if p, ok := stat.percentile(); ok {
		return PercentileNearestRank(samples, p)
	}

	switch stat {
	case StatAvg:
		var sum float64
		for _, s := range samples {
			sum += s
		}
		return sum / float64(len(samples)), true

	case StatNonZeroAvg:
		var sum float64
		var n int
		for _, s := range samples {
			if s != 0 {
				sum += s
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true

	case StatMin:
		m := samples[0]
		for _, s := range samples[1:] {
			if s < m {
				m = s
			}
		}
		return m, true

	case StatMax:
		m := samples[0]
		for _, s := range samples[1:] {
			if s > m {
				m = s
			}
		}
		return m, true

	default:
		return 0, false
	}
}
