// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package source implements the per-process frame-metrics aggregator of
// spec.md §4.4: it owns one sequencer and carry-state per swap chain,
// drains new presents from the shared ring, and merges each swap chain's
// bounded output queue into a single ordered stream on demand.
package source

import (
	"container/list"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/GameTechDev/pmmetricscore/carrystate"
	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/calc"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/frameevent"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/ring"
	"github.com/GameTechDev/pmmetricscore/metrics/sequencer"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

// historyCapacity bounds the merged frame-metrics ring the dynamic query
// engine reads from (metrics/query.Source); independent of the
// per-swap-chain Consume queues below.
const historyCapacity = 16384

func metricsTimestamp(m frame.Metrics) uint64 { return m.CPUStartQpc }

// defaultQueueCapacity is the per-swap-chain bounded metrics buffer size
// (spec.md §4.4, §5 "Resource limits").
const defaultQueueCapacity = 4096

// inactivityPrune is how long a swap chain may go without a new present
// before its state is pruned (spec.md §3.3 lifecycle).
const inactivityPrune = 4 * time.Second

// PresentsRing is the minimal read side of the shared-memory presents ring
// this source drains from.
type PresentsRing interface {
	SerialRange() (first, last uint64)
	At(serial uint64) (frame.Data, bool)
	MarkNextRead(serial uint64)
}

type swapChainState struct {
	carry     carrystate.State
	seq       *sequencer.Sequencer
	queue     *list.List // of frame.Metrics, oldest at Front
}

// Source is one process's frame-metrics aggregator.
type Source struct {
	tb      timebase.Base
	isV2    bool
	ring    PresentsRing
	cursor  uint64

	chains *xsync.MapOf[uint64, *swapChainState]
	seen   *lru.LRU[uint64, struct{}] // tracks recently-active swap chains for pruning

	history *ring.History[frame.Metrics] // merged feed for the dynamic query engine
	tele    *telemetry.Registry
	catalog *introspect.Catalog
}

// New returns a Source reading from ring with time base tb. isV2 selects
// the metrics version threaded through the sequencer and calculator.
// tele is the telemetry registry polled vendor adapters publish into; it
// backs KindPolled metrics for the query engine (metrics/query.Source).
func New(tb timebase.Base, presentsRing PresentsRing, isV2 bool, tele *telemetry.Registry, catalog *introspect.Catalog) *Source {
	s := &Source{
		tb:      tb,
		isV2:    isV2,
		ring:    presentsRing,
		chains:  xsync.NewMapOf[uint64, *swapChainState](),
		history: ring.NewHistory[frame.Metrics](historyCapacity, metricsTimestamp),
		tele:    tele,
		catalog: catalog,
	}
	s.seen = lru.NewLRU[uint64, struct{}](0, s.onEvict, inactivityPrune)
	return s
}

func (s *Source) onEvict(swapChainAddress uint64, _ struct{}) {
	if st, ok := s.chains.LoadAndDelete(swapChainAddress); ok {
		for _, item := range st.seq.Flush() {
			s.processReady(st, item)
		}
	}
}

func (s *Source) chainFor(addr uint64) *swapChainState {
	st, _ := s.chains.LoadOrCompute(addr, func() *swapChainState {
		st := &swapChainState{queue: list.New()}
		st.seq = sequencer.New(&st.carry, s.isV2)
		return st
	})
	s.seen.Add(addr, struct{}{})
	return st
}

// Pump drains any new presents from the ring, feeds them through each
// swap chain's sequencer and calculator, and advances the read cursor
// (spec.md §4.4 steps 1-3).
func (s *Source) Pump() {
	_, last := s.ring.SerialRange()
	for serial := s.cursor; serial < last; serial++ {
		present, ok := s.ring.At(serial)
		if !ok {
			continue // overwritten before we got to it
		}
		st := s.chainFor(present.SwapChainAddress)
		for _, item := range st.seq.Enqueue(present) {
			s.processReady(st, item)
		}
	}
	if last > s.cursor {
		s.cursor = last
		s.ring.MarkNextRead(s.cursor - 1)
	}
}

func (s *Source) processReady(st *swapChainState, item sequencer.ReadyItem) {
	computed := calc.ComputeMetricsForPresent(s.tb, item.Present, item.NextDisplayed, &st.carry, s.isV2)
	for _, c := range computed {
		carrystate.ApplyDeltas(&st.carry, c.Deltas)
		pushBounded(st.queue, c.Metrics, defaultQueueCapacity)
		s.history.Push(c.Metrics)
	}
	lastType := frame.TypeNotSet
	if item.Present.IsDisplayed() {
		lastType = item.Present.Displayed[len(item.Present.Displayed)-1].FrameType
	}
	carrystate.UpdateAfterPresent(&st.carry, item.Present, lastType)
}

func pushBounded(q *list.List, m frame.Metrics, capacity int) {
	q.PushBack(m)
	for q.Len() > capacity {
		q.Remove(q.Front())
	}
}

// Consume returns up to maxFrames metric records merged across swap
// chains by TimeInSeconds (ties broken by swap-chain address), each popped
// from its source queue. A record is returned from Consume at most once
// (spec.md §4.4 invariant).
func (s *Source) Consume(maxFrames int) []frame.Metrics {
	var out []frame.Metrics
	for len(out) < maxFrames {
		var (
			bestAddr  uint64
			bestChain *swapChainState
			bestTime  uint64
			bestFound bool
		)
		s.chains.Range(func(addr uint64, st *swapChainState) bool {
			if st.queue.Len() == 0 {
				return true
			}
			headTime := st.queue.Front().Value.(frame.Metrics).TimeInSeconds
			if !bestFound || headTime < bestTime || (headTime == bestTime && addr < bestAddr) {
				bestFound = true
				bestAddr = addr
				bestChain = st
				bestTime = headTime
			}
			return true
		})
		if !bestFound {
			break
		}
		front := bestChain.queue.Remove(bestChain.queue.Front()).(frame.Metrics)
		out = append(out, front)
	}
	return out
}

// SamplesInWindow and Nearest make Source satisfy metrics/query.Source: the
// dynamic query engine's window/point reads over computed frame metrics and
// polled device telemetry, keyed by metric kind (spec.md §4.5). KindFrame
// metrics read from the merged history ring fed by processReady; KindPolled
// metrics read straight from the telemetry registry, bypassing the frame
// ring entirely since they are not produced per-present.

// SamplesInWindow returns every sample for metricID within [lo, hi], across
// swap chains, in the order the records were pushed (for frame metrics,
// the order processReady computed them, which is not sorted by timestamp
// across swap chains).
func (s *Source) SamplesInWindow(metricID uint32, deviceID devicemap.ID, arrayIndex uint32, lo, hi uint64) []float64 {
	info, ok := s.catalog.ByID(metricID)
	if !ok {
		return nil
	}
	if info.Kind == introspect.KindPolled {
		key := telemetry.Key{MetricID: metricID, DeviceID: deviceID, ArrayIndex: arrayIndex}
		var out []float64
		s.tele.RingFor(key).ForEachInTimestampRange(lo, hi, func(sample telemetry.Sample) {
			out = append(out, sample.Value)
		})
		return out
	}
	var out []float64
	s.history.ForEachInTimestampRange(lo, hi, func(m frame.Metrics) {
		if v, ok := frameevent.FrameFieldValue(metricID, m); ok {
			out = append(out, v)
		}
	})
	return out
}

// Nearest resolves the sample closest to ts for metricID, used by the point
// stats (oldest/newest sample in window).
func (s *Source) Nearest(metricID uint32, deviceID devicemap.ID, arrayIndex uint32, ts uint64) (float64, bool) {
	info, ok := s.catalog.ByID(metricID)
	if !ok {
		return 0, false
	}
	if info.Kind == introspect.KindPolled {
		key := telemetry.Key{MetricID: metricID, DeviceID: deviceID, ArrayIndex: arrayIndex}
		sample, ok := s.tele.Nearest(key, ts)
		return sample.Value, ok
	}
	m, ok := s.history.Nearest(ts)
	if !ok {
		return 0, false
	}
	return frameevent.FrameFieldValue(metricID, m)
}
