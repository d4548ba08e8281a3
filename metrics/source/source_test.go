// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

package source

import (
	"testing"

	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

// fakeRing is a fixed, preloaded PresentsRing for exercising Pump without a
// real shared-memory transport.
type fakeRing struct {
	presents []frame.Data
	nextRead uint64
}

func (r *fakeRing) SerialRange() (uint64, uint64) { return 0, uint64(len(r.presents)) }

func (r *fakeRing) At(serial uint64) (frame.Data, bool) {
	if serial >= uint64(len(r.presents)) {
		return frame.Data{}, false
	}
	return r.presents[serial], true
}

func (r *fakeRing) MarkNextRead(serial uint64) { r.nextRead = serial }

func tb() timebase.Base { return timebase.Base{FrequencyTicksPerSec: 1000} }

func displayedPresent(addr, start, screen uint64) frame.Data {
	return frame.Data{
		SwapChainAddress: addr,
		PresentStartTime: start,
		Displayed:        []frame.Display{{FrameType: frame.TypeApplication, ScreenTime: screen}},
		FinalState:       frame.ResultPresented,
	}
}

// The first present of a swap chain only seeds its carry-state; of the two
// displayed presents after it, only the first yields a metrics record,
// since the calculator needs the second to resolve the first's display
// range (see metrics/calc, metrics/sequencer).
func TestPumpProducesMetricsOnceNextDisplayedArrives(t *testing.T) {
	r := &fakeRing{presents: []frame.Data{
		displayedPresent(1, 1000, 1200),
		displayedPresent(1, 1100, 1400),
		displayedPresent(1, 1200, 1600),
	}}
	s := New(tb(), r, true, telemetry.NewRegistry(), introspect.NewCatalog())
	s.Pump()

	out := s.Consume(10)
	if len(out) != 1 {
		t.Fatalf("Consume after 3 presents = %d records, want 1", len(out))
	}
}

// Consume merges across swap chains in TimeInSeconds order.
func TestConsumeOrdersAcrossSwapChains(t *testing.T) {
	r := &fakeRing{presents: []frame.Data{
		displayedPresent(1, 1000, 1200),
		displayedPresent(2, 1050, 1250),
		displayedPresent(1, 1300, 1500),
		displayedPresent(2, 1350, 1550),
		displayedPresent(1, 1600, 1800),
		displayedPresent(2, 1650, 1850),
	}}
	s := New(tb(), r, true, telemetry.NewRegistry(), introspect.NewCatalog())
	s.Pump()

	out := s.Consume(10)
	if len(out) != 2 {
		t.Fatalf("Consume = %d records, want 2", len(out))
	}
	if out[0].SwapChainAddress != 1 || out[1].SwapChainAddress != 2 {
		t.Fatalf("Consume order = %+v, want swap chain 1 before swap chain 2 by TimeInSeconds", out)
	}
}

// SamplesInWindow over a KindFrame metric reads from the merged history
// ring populated as presents are processed. The resolved present is the
// one at 1300; its cpu_start_qpc is the start of the seeding present at
// 1000 before it.
func TestSamplesInWindowReadsFrameMetricHistory(t *testing.T) {
	r := &fakeRing{presents: []frame.Data{
		displayedPresent(1, 1000, 1200),
		displayedPresent(1, 1300, 1500),
		displayedPresent(1, 1600, 1800),
	}}
	s := New(tb(), r, true, telemetry.NewRegistry(), introspect.NewCatalog())
	s.Pump()

	samples := s.SamplesInWindow(introspect.MetricCPUStartQpc, devicemap.Universal, 0, 0, ^uint64(0))
	if len(samples) != 1 {
		t.Fatalf("SamplesInWindow = %v, want 1 sample (one resolved present)", samples)
	}
	if samples[0] != 1000 {
		t.Fatalf("SamplesInWindow[0] = %v, want 1000 (cpu_start_qpc of the resolved present)", samples[0])
	}
}

// SamplesInWindow over a KindPolled metric reads straight from the
// telemetry registry, independent of whether any present has been pumped.
func TestSamplesInWindowReadsPolledTelemetry(t *testing.T) {
	tele := telemetry.NewRegistry()
	device := devicemap.ID(1)
	key := telemetry.Key{MetricID: introspect.MetricGPUUtilizationPercent, DeviceID: device}
	tele.Push(key, 100, 42.0)
	tele.Push(key, 200, 55.0)

	s := New(tb(), &fakeRing{}, true, tele, introspect.NewCatalog())
	samples := s.SamplesInWindow(introspect.MetricGPUUtilizationPercent, device, 0, 0, 1000)
	if len(samples) != 2 {
		t.Fatalf("SamplesInWindow = %v, want 2 polled samples", samples)
	}
}
