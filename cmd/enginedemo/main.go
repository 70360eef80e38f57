// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Command enginedemo wires the cache registry, plugin host, and render
// pipeline into a single running process: load configuration, expose
// /metrics, and accept renders until asked to shut down.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veditcore/engine/internal/cache"
	"github.com/veditcore/engine/internal/engineconfig"
	"github.com/veditcore/engine/internal/eventbus"
	xglog "github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/pipeline"
	"github.com/veditcore/engine/internal/pipeline/admission"
	"github.com/veditcore/engine/internal/pipeline/ffmpeg"
	"github.com/veditcore/engine/internal/pipeline/ledger"
	"github.com/veditcore/engine/internal/pipeline/stages"
	"github.com/veditcore/engine/internal/pluginhost"
)

var (
	version = "v0.1.0"
	commit  = "none"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("enginedemo %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	xglog.Configure(xglog.Config{Level: "info", Service: "enginedemo", Version: version})
	logger := xglog.WithComponent("main")

	loader := engineconfig.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	xglog.Configure(xglog.Config{Level: cfg.LogLevel, Service: "enginedemo", Version: version})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	caches := cache.NewManager()

	ledgerStore, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.LedgerPath).Msg("failed to open render ledger")
	}
	defer func() {
		if err := ledgerStore.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close render ledger cleanly")
		}
	}()

	bus := eventbus.NewMemoryBus()

	mgr := pipeline.NewManager(pipeline.Config{
		Admission: admission.NewQueue(admission.Config{
			MaxConcurrentJobs: int64(cfg.MaxConcurrentJobs),
			MaxQueueSize:      50,
			MaxWaitTime:       cfg.JobTimeout,
		}),
		Stages: stages.Dependencies{
			Prober:        ffmpeg.Prober{BinPath: cfg.FFprobePath},
			Runner:        ffmpeg.NewRunner(cfg.FFmpegPath, 10*time.Second),
			EngineVersion: version,
		},
		Bus:    bus,
		Ledger: ledgerStore,
	})
	defer func() {
		if err := mgr.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close render pipeline manager cleanly")
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, s := range mgr.DetectTimeouts(cfg.JobTimeout) {
					logger.Warn().Str("job_id", s.JobID).Dur("age", s.Age).Str("stage", s.Stage).Msg("render job exceeded job timeout")
				}
			}
		}
	}()

	host := pluginhost.New(
		pluginhost.Version{Major: 0, Minor: 1, Patch: 0},
		pluginhost.NewRegistry(),
		hostServices{caches: caches},
	)
	_ = host // the host accepts plugin registrations at composition time; none are built in yet.

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := ":9090"
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server did not shut down cleanly")
	}

	for _, job := range mgr.ListActive() {
		if err := mgr.Cancel(job.JobID); err != nil {
			logger.Warn().Err(err).Str("job_id", job.JobID).Msg("failed to cancel in-flight render during shutdown")
		}
	}
}

// hostServices is the minimal ServiceLocator composed at startup; plugins
// reach the cache registry through it without importing cmd/enginedemo.
type hostServices struct {
	caches *cache.Manager
}

func (s hostServices) Lookup(name string) (any, bool) {
	if name == "cache" {
		return s.caches, true
	}
	return nil, false
}
