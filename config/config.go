// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config holds the evaluation core's runtime knobs (§6
// "Configuration knobs"). There is no flag/viper layer here, matching the
// teacher's own config-free library shape; FromEnv reads plain environment
// variables the way a deployment's entrypoint would set them.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the full set of operator-tunable knobs (§6).
type Config struct {
	// PollInterval is how often the Poller checks the change log for new
	// rows (default 1s).
	PollInterval time.Duration
	// PollBatch bounds how many change-log rows are fetched per poll
	// iteration (default 1000).
	PollBatch int
	// MaxSubscribers bounds how many downstream evaluators the fan-out Hub
	// admits concurrently.
	MaxSubscribers int
	// SubscriberQueueDepth bounds the per-subscriber outbound queue.
	SubscriberQueueDepth int
	// HashSlots is the bucket-space cardinality (fixed at 10000 unless
	// explicitly rebuilt, §6). Threaded into state.Config.HashSlots by
	// cmd/experimentd, which catalog.Build bakes into every Snapshot it
	// produces — it governs both range-bounds validation and
	// hashing.Bucket's modulus, not just a parsed-and-ignored value.
	HashSlots uint32
}

// Default returns the documented defaults (§6).
func Default() Config {
	return Config{
		PollInterval:         time.Second,
		PollBatch:            1000,
		MaxSubscribers:       256,
		SubscriberQueueDepth: 1024,
		HashSlots:            10000,
	}
}

// Environment variable names FromEnv reads, prefixed to avoid collisions
// with a host process's own environment.
const (
	envPollInterval         = "FLUXGATE_POLL_INTERVAL"
	envPollBatch            = "FLUXGATE_POLL_BATCH"
	envMaxSubscribers       = "FLUXGATE_MAX_SUBSCRIBERS"
	envSubscriberQueueDepth = "FLUXGATE_SUBSCRIBER_QUEUE_DEPTH"
	envHashSlots            = "FLUXGATE_HASH_SLOTS"
)

// FromEnv returns Default() with any set environment variables overlaid.
// A malformed value is reported as an error rather than silently ignored,
// so a typo in a deployment manifest fails fast at startup.
func FromEnv() (Config, error) {
	cfg := Default()

	if v, ok := os.LookupEnv(envPollInterval); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, &ParseError{Var: envPollInterval, Value: v, Err: err}
		}
		cfg.PollInterval = d
	}
	if v, ok := os.LookupEnv(envPollBatch); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, &ParseError{Var: envPollBatch, Value: v, Err: err}
		}
		cfg.PollBatch = n
	}
	if v, ok := os.LookupEnv(envMaxSubscribers); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, &ParseError{Var: envMaxSubscribers, Value: v, Err: err}
		}
		cfg.MaxSubscribers = n
	}
	if v, ok := os.LookupEnv(envSubscriberQueueDepth); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, &ParseError{Var: envSubscriberQueueDepth, Value: v, Err: err}
		}
		cfg.SubscriberQueueDepth = n
	}
	if v, ok := os.LookupEnv(envHashSlots); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return Config{}, &ParseError{Var: envHashSlots, Value: v, Err: err}
		}
		cfg.HashSlots = uint32(n)
	}
	return cfg, nil
}

// ParseError reports a malformed environment variable encountered by
// FromEnv.
type ParseError struct {
	Var   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return "config: invalid " + e.Var + "=" + e.Value + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }
