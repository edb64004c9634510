// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package changelog

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/fluxgate/experiment/internal/logging"
	"github.com/fluxgate/experiment/internal/metrics"
)

// Config holds the Poller's tunable knobs (§6 "Configuration knobs").
type Config struct {
	// PollInterval is how often Fetch is called. Default 1s.
	PollInterval time.Duration
	// BatchSize is the row limit passed to Fetch. Default 1000.
	BatchSize int
}

// DefaultConfig returns the §6-documented defaults.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second, BatchSize: 1000}
}

// Poller tails Store and delivers ordered Entries to Handler (§4.6). It is
// the only long-running, I/O-suspending loop on the config-ingestion side
// of the system (§5); the evaluation path never touches it.
type Poller struct {
	store   Store
	handler Handler
	cfg     Config
	log     logging.Logger
	metrics *metrics.Metrics

	lastID int64
}

// New constructs a Poller. Run must be called to start tailing; lastID is
// seeded from store.MaxID on the first call to Run (§4.6 "On start, query
// max(id)").
func New(store Store, handler Handler, cfg Config, log logging.Logger, m *metrics.Metrics) *Poller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1000
	}
	if log == nil {
		log = logging.NewNoOp()
	}
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &Poller{store: store, handler: handler, cfg: cfg, log: log, metrics: m}
}

// LastID returns the highest change-log id applied so far. Safe to call
// concurrently with Run only for observation; it is not synchronized
// against an in-flight Fetch/Handle cycle and is intended for tests and
// metrics, not for correctness-sensitive coordination.
func (p *Poller) LastID() int64 { return p.lastID }

// Run seeds last_id from the store and then ticks every PollInterval,
// fetching and applying new rows in order until ctx is cancelled. Run
// finishes the iteration in flight before returning on cancellation (§5
// "finishing the current iteration").
func (p *Poller) Run(ctx context.Context) error {
	maxID, err := p.fetchMaxIDWithRetry(ctx)
	if err != nil {
		return errors.Wrap(err, "changelog: seed last_id")
	}
	p.lastID = maxID
	p.log.Info("poller started", zap.Int64("last_id", p.lastID))

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

// tick fetches one batch and applies it in order. A transient fetch error
// is logged and the tick simply ends without advancing last_id (§4.6 "On
// transient fetch errors, log and continue; never regress last_id").
func (p *Poller) tick(ctx context.Context) {
	entries, err := p.store.Fetch(ctx, p.lastID, p.cfg.BatchSize)
	if err != nil {
		p.metrics.PollErrors.Inc()
		p.log.Warn("change-log fetch failed, will retry next tick", zap.Error(err))
		return
	}
	p.metrics.PollBatchSize.Observe(float64(len(entries)))

	for _, entry := range entries {
		if err := p.handler.Handle(ctx, entry); err != nil {
			p.log.Warn("entry handling failed, deferring without advancing last_id",
				zap.Int64("id", entry.ID), zap.String("entity_type", string(entry.EntityType)),
				zap.String("entity_id", entry.EntityID), zap.Error(err))
			return
		}
		p.lastID = entry.ID
		p.metrics.LastAppliedID.Set(float64(p.lastID))
	}
}

// fetchMaxIDWithRetry retries the initial MaxID call with exponential
// backoff, since a transient failure here would otherwise leave last_id
// unseeded and risk reprocessing the entire log.
func (p *Poller) fetchMaxIDWithRetry(ctx context.Context) (int64, error) {
	var maxID int64
	op := func() error {
		id, err := p.store.MaxID(ctx)
		if err != nil {
			return err
		}
		maxID = id
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return 0, err
	}
	return maxID, nil
}
