// Copyright (C) 2025 The PresentMon Metrics Core Authors.
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this file,
// You can obtain one at https://mozilla.org/MPL/2.0/.

// Command pmmetricsd runs the frame-metrics service: the shared-memory
// ingest/output pipeline of spec.md §4-5 and the control RPC surface of
// §6, supervised together so a panic in either restarts it rather than
// taking the whole process down.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/willabides/kongplete"

	_ "github.com/GameTechDev/pmmetricscore/lib/automaxprocs"

	"github.com/GameTechDev/pmmetricscore/internal/control"
	"github.com/GameTechDev/pmmetricscore/internal/etlarchive"
	"github.com/GameTechDev/pmmetricscore/internal/eventbridge"
	"github.com/GameTechDev/pmmetricscore/internal/service"
	"github.com/GameTechDev/pmmetricscore/internal/slogutil"
	"github.com/GameTechDev/pmmetricscore/lib/suturewrap"
	"github.com/GameTechDev/pmmetricscore/metrics/frame"
	"github.com/GameTechDev/pmmetricscore/metrics/introspect"
	"github.com/GameTechDev/pmmetricscore/metrics/ring"
	"github.com/GameTechDev/pmmetricscore/metrics/source"
	"github.com/GameTechDev/pmmetricscore/metrics/telemetry"
	"github.com/GameTechDev/pmmetricscore/metrics/timebase"
)

// presentsRingCapacity bounds the per-process shared presents ring this
// service drains swap-chain events from (spec.md §3.5).
const presentsRingCapacity = 65536

// serveCmd runs the service; it is the implied default command so plain
// invocation ("pmmetricsd --socket=...") works without naming a subcommand,
// the way the teacher's own cmd/syncthing binary runs with no subcommand
// by default and reserves subcommands (cli, generate-manifest) for
// auxiliary actions.
type serveCmd struct {
	SocketPath   string `name:"socket" default:"/tmp/pmmetricscore.sock" help:"Unix socket path the control RPC surface listens on."`
	CaptureDir   string `name:"capture-dir" default:"./captures" help:"Directory ETL capture artifacts are written to (StartEtlLogging/FinishEtlLogging)."`
	APIKey       string `name:"api-key" default:"" help:"If set, every control RPC request must carry a matching X-Api-Key header."`
	AMQPURL      string `name:"amqp-url" default:"" help:"If set, session lifecycle events are also published to this AMQP broker."`
	AMQPExchange string `name:"amqp-exchange" default:"pmmetricscore.events" help:"AMQP exchange name for session lifecycle events."`
	MetricsAddr  string `name:"metrics-addr" default:"127.0.0.1:9090" help:"Listen address for the Prometheus /metrics self-observability endpoint."`
	LogLevel     string `name:"log-level" default:"INFO" enum:"DEBUG,INFO,WARN,ERROR" help:"Default structured-log level."`
	V2Metrics    bool   `name:"v2-metrics" default:"true" help:"Compute the v2 metric set (vs. the legacy v1 set) for newly tracked processes."`
}

func (c *serveCmd) Run() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slogutil.SetDefaultLevel(level)
	logger := slog.Default()

	if err := c.run(logger); err != nil {
		logger.Error("pmmetricsd exited with error", "err", err)
		return err
	}
	return nil
}

func (c *serveCmd) run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(c.CaptureDir, 0o755); err != nil {
		return fmt.Errorf("create capture dir: %w", err)
	}
	archive, err := etlarchive.Open(ctx, c.CaptureDir)
	if err != nil {
		return fmt.Errorf("open etl archive: %w", err)
	}
	defer archive.Close()

	bus := eventbridge.New()
	if c.AMQPURL != "" {
		ch, err := dialAMQPChannel(c.AMQPURL)
		if err != nil {
			logger.Warn("amqp dial failed, session events will not be bridged", "err", err)
		} else {
			bus.AttachAMQP(ch, c.AMQPExchange)
		}
	}

	catalog := introspect.NewCatalog()
	tele := telemetry.NewRegistry()

	newSource := func(pid uint32) service.Trackable {
		tb := timebase.Base{FrequencyTicksPerSec: qpcFrequency(), SessionStartTicks: 0}
		presentsRing := ring.NewHistory[frame.Data](presentsRingCapacity, func(d frame.Data) uint64 { return d.PresentStartTime })
		return source.New(tb, presentsRing, c.V2Metrics, tele, catalog)
	}
	tracker := service.NewTracker(newSource, catalog, tele)

	ctrlSvc := control.New(c.SocketPath, tracker, archive, bus, logger)
	if err := ctrlSvc.SetAPIKey(c.APIKey); err != nil {
		return fmt.Errorf("hash api key: %w", err)
	}

	outputWorker := service.NewOutputWorker(tracker, logger)
	supervisor := service.NewSupervisor(outputWorker, ctrlSvc)

	// The metrics HTTP listener doesn't need a full suture.Service restart
	// policy, just a deterministic stop tied to this function returning, so
	// it's wrapped with suturewrap rather than added to the supervisor.
	metricsService := suturewrap.AsService(func(ctx context.Context) {
		srv := &http.Server{Addr: c.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics listener stopped", "err", err)
			}
		}()
		<-ctx.Done()
		srv.Close()
	}, "metrics-http")
	go metricsService.Serve()
	defer metricsService.Stop()

	logger.Info("pmmetricsd starting", "socket", c.SocketPath, "capture_dir", c.CaptureDir, "metrics_addr", c.MetricsAddr)
	if err := supervisor.Serve(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// qpcFrequency reads the monotonic performance-counter frequency this
// service's time base converts ticks against. spec.md does not prescribe
// the OS present-capture interface (§9 Non-goals), so the actual frequency
// query is the one piece left for a platform-specific producer to wire in;
// a fixed nominal frequency keeps the service runnable end-to-end without
// one.
func qpcFrequency() uint64 {
	const nominalQpcHz = 10_000_000
	return nominalQpcHz
}

var cli struct {
	Serve              serveCmd                    `cmd:"" default:"1" help:"Run the metrics service (default)."`
	InstallCompletions kongplete.InstallCompletions `cmd:"" help:"Install shell completions."`
}

func main() {
	parser := kong.Must(&cli,
		kong.Name("pmmetricsd"),
		kong.Description("PresentMon metrics core: frame-telemetry ingest, sequencing, and dynamic query service."),
		kong.UsageOnError(),
	)
	kongplete.Complete(parser)

	kctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	kctx.FatalIfErrorf(kctx.Run())
}
