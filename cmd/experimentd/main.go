// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Command experimentd wires the evaluation core's components into a single
// running process: a State Manager fed by a Change-Log Poller, an
// Evaluation API surface, and an optional Subscriber Fan-out Hub. It is a
// reference entrypoint, not a deployment artifact — integrators swap
// memstore.Store for their own changelog.Store/state.LayerStore/
// state.ExperimentStore implementations and front eval.API with whatever
// RPC framing they run (out of scope here, per spec.md §1).
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fluxgate/experiment/changelog"
	"github.com/fluxgate/experiment/config"
	"github.com/fluxgate/experiment/eval"
	"github.com/fluxgate/experiment/internal/logging"
	"github.com/fluxgate/experiment/internal/metrics"
	"github.com/fluxgate/experiment/memstore"
	"github.com/fluxgate/experiment/state"
	"github.com/fluxgate/experiment/subscribe"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	flag.Parse()

	zapLogger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer zapLogger.Sync() //nolint:errcheck
	log := logging.New(zapLogger)

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "fluxgate")

	store := memstore.New()
	hub := subscribe.New(subscribe.Config{MaxSubscribers: cfg.MaxSubscribers, QueueDepth: cfg.SubscriberQueueDepth}, log, m)
	manager := state.NewManager(store, store, nil, state.Config{HashSlots: cfg.HashSlots}, log, m, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := manager.Start(ctx); err != nil {
		log.Error("initial snapshot load failed", zap.Error(err))
		os.Exit(1)
	}

	poller := changelog.New(store, manager, changelog.Config{PollInterval: cfg.PollInterval, BatchSize: cfg.PollBatch}, log, m)

	api := eval.New(manager, m)
	_ = api // handed to whatever RPC framing the deployment fronts this with

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	log.Info("experimentd started", zap.Int64("initial_version", manager.Current().Version()))
	if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("poller exited unexpectedly", zap.Error(err))
		os.Exit(1)
	}
	log.Info("experimentd shut down")
}
