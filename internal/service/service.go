// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Package service wires the metrics pipeline into two always-running
// workers (output/sequencing and control RPC), supervised by a
// suture.Supervisor so a panic in one worker restarts it instead of taking
// the whole process down. No consumer/ingest worker is supervised here; the
// event-tracing producer that fills the presents rings is not part of this
// module. The supervisor plays the same role the
// original's hand-rolled thread supervision plays, grounded on the
// teacher's cmd/syncthing/main.go supervisor-wiring pattern.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v4/process"
	"github.com/thejerf/suture/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/GameTechDev/pmmetricscore/internal/control"
	"github.com/GameTechDev/pmmetricscore/internal/devicemap"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/query"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
)

// pumpPeriod is the output thread's sleep between passes (spec.md §5
// "sleeps 100 ms between passes").
const pumpPeriod = 100 * time.Millisecond

// Trackable is the ingest/output and dynamic-query side of one tracked
// process: metrics/source.Source both pumps its swap chains and answers
// window/point reads over its own frame-metric history and polled
// telemetry (query.Source), exactly the shape a single shared-memory
// session (spec.md §6) exposes to one client.
type Trackable interface {
	Pump()
	query.Source
}

// trackedProcess is one process under tracking, from StartTracking to
// StopTracking/StopPlayback. Its query engine is scoped to this process
// alone: a dynamic query addresses a device metric within one client's
// shared-memory session, never across processes.
type trackedProcess struct {
	pid             uint32
	isPlayback      bool
	isBackpressured bool
	source          Trackable
	engine          *query.Engine
}

// Tracker owns every tracked process's pump loop and per-process
// dynamic-query engine, implementing control.Tracker for the control RPC
// surface to drive.
type Tracker struct {
	newSource func(pid uint32) Trackable
	catalog   *introspect.Catalog
	tele      *telemetry.Registry

	telemetryPeriod time.Duration
	etwFlushPeriod  time.Duration
	etwFlushEnabled bool

	mu       sync.Mutex
	tracked  map[uint32]*trackedProcess
	reported []telemetry.Key // ReportMetricUse calls, replayed onto every engine
}

// NewTracker returns a Tracker with no processes tracked yet. newSource
// constructs a fresh metrics/source.Source for a pid when StartTracking is
// called (kept as a func injection so tests can substitute a fake).
func NewTracker(newSource func(pid uint32) Trackable, catalog *introspect.Catalog, tele *telemetry.Registry) *Tracker {
	return &Tracker{
		newSource:       newSource,
		catalog:         catalog,
		tele:            tele,
		telemetryPeriod: 16 * time.Millisecond,
		tracked:         make(map[uint32]*trackedProcess),
	}
}

func (t *Tracker) StartTracking(pid uint32, isPlayback, isBackpressured bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tracked[pid]; ok {
		return control.ErrAlreadyTrackingProcess
	}
	src := t.newSource(pid)
	engine := query.NewEngine(t.catalog, src)
	for _, key := range t.reported {
		engine.ReportUse(key)
	}
	t.tracked[pid] = &trackedProcess{
		pid:             pid,
		isPlayback:      isPlayback,
		isBackpressured: isBackpressured,
		source:          src,
		engine:          engine,
	}
	return nil
}

func (t *Tracker) StopTracking(pid uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tracked[pid]; !ok {
		return control.ErrInvalidPid
	}
	delete(t.tracked, pid)
	return nil
}

// StopPlayback stops a playback-mode tracked process, the same as
// StopTracking except it only accepts pids opened with isPlayback=true.
func (t *Tracker) StopPlayback(pid uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	tp, ok := t.tracked[pid]
	if !ok || !tp.isPlayback {
		return control.ErrInvalidPid
	}
	delete(t.tracked, pid)
	return nil
}

func (t *Tracker) SetTelemetryPeriodMs(ms uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.telemetryPeriod = time.Duration(ms) * time.Millisecond
}

func (t *Tracker) SetEtwFlushPeriodMs(ms uint32, enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.etwFlushPeriod = time.Duration(ms) * time.Millisecond
	t.etwFlushEnabled = enabled
}

// ReportMetricUse forwards a client's declared (metric, device, array)
// interest to every currently tracked process's query engine, and to every
// process tracked afterward: the control RPC carries no pid (spec.md §6),
// so a declared key gates telemetry collection wherever it applies.
func (t *Tracker) ReportMetricUse(metricID, deviceID, arrayIndex uint32) {
	key := telemetry.Key{
		MetricID:   metricID,
		DeviceID:   devicemap.ID(deviceID),
		ArrayIndex: arrayIndex,
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reported = append(t.reported, key)
	for _, tp := range t.tracked {
		tp.engine.ReportUse(key)
	}
}

// snapshot returns the currently tracked sources, for the output pump pass.
func (t *Tracker) snapshot() []Trackable {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Trackable, 0, len(t.tracked))
	for _, tp := range t.tracked {
		out = append(out, tp.source)
	}
	return out
}

// pruneTerminated drops tracked processes whose OS process has exited. A
// process is removed, together with its source and query engine, on the
// first pass in which PidExists reports it gone; removal is not deferred
// until a later present is observed, and presents or metric records still
// queued in its source at that point are not drained.
func (t *Tracker) pruneTerminated() {
	t.mu.Lock()
	pids := make([]uint32, 0, len(t.tracked))
	for pid := range t.tracked {
		pids = append(pids, pid)
	}
	t.mu.Unlock()

	for _, pid := range pids {
		running, err := process.PidExists(int32(pid))
		if err != nil || running {
			continue
		}
		t.mu.Lock()
		delete(t.tracked, pid)
		t.mu.Unlock()
	}
}

var (
	pumpDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pmmetricscore",
		Subsystem: "output",
		Name:      "pump_pass_seconds",
		Help:      "Wall-clock time to pump every tracked process once.",
		Buckets:   prometheus.DefBuckets,
	})
	trackedProcesses = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pmmetricscore",
		Subsystem: "output",
		Name:      "tracked_processes",
		Help:      "Number of processes currently under tracking.",
	})
	pumpPanics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "pmmetricscore",
		Subsystem: "output",
		Name:      "pump_panics_total",
		Help:      "Panics recovered from while pumping a tracked process.",
	})
)

// OutputWorker pumps every tracked source once per pumpPeriod, satisfying
// suture.Service. Self-metrics are published through the default
// prometheus registry, the same ambient observability surface the teacher
// exposes over its GUI's /rest/system/status.
type OutputWorker struct {
	tracker      *Tracker
	logger       *slog.Logger
	errorLimiter *rate.Limiter
}

// NewOutputWorker returns a worker pumping tracker on a 100ms cadence.
func NewOutputWorker(tracker *Tracker, logger *slog.Logger) *OutputWorker {
	return &OutputWorker{
		tracker:      tracker,
		logger:       logger,
		errorLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Serve runs the output pass every pumpPeriod, pumping every tracked
// source concurrently so one tracked process with a large backlog does not
// hold up pumping of the other processes within a pass.
func (w *OutputWorker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(pumpPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			start := time.Now()
			w.tracker.pruneTerminated()
			sources := w.tracker.snapshot()
			trackedProcesses.Set(float64(len(sources)))
			var g errgroup.Group
			for _, src := range sources {
				src := src
				g.Go(func() error {
					w.pumpOne(src)
					return nil
				})
			}
			g.Wait()
			pumpDuration.Observe(time.Since(start).Seconds())
		}
	}
}

// pumpOne pumps a single tracked source, recovering from a panic in the
// sequencer/calculator pure core rather than taking down the whole output
// pass: spec.md §7 requires transient producer errors to be logged and
// never abort tracking of the other swap chains.
func (w *OutputWorker) pumpOne(src Trackable) {
	defer func() {
		if r := recover(); r != nil {
			pumpPanics.Inc()
			if w.errorLimiter.Allow() {
				w.logger.Warn("recovered from panic pumping tracked process", "panic", r)
			}
		}
	}()
	src.Pump()
}

// NewSupervisor returns a suture.Supervisor running the output worker and
// the control RPC service side by side (spec.md §5's "two long-lived
// worker threads plus client-driven poll threads" — client polls happen
// out-of-band against the query engine/rings and are not supervised here).
func NewSupervisor(output *OutputWorker, ctrl *control.Service) *suture.Supervisor {
	sup := suture.NewSimple("pmmetricscore")
	sup.Add(output)
	sup.Add(ctrl)
	return sup
}
