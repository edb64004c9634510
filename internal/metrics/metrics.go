// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics wraps the prometheus counters and gauges emitted by the
// evaluation core, one field per entry in the error taxonomy (§7) plus the
// ordering/latency signals called out in §5 and §8.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter and gauge the evaluation core registers. A
// single instance is shared by the Merger, Evaluation API, Poller, and State
// Manager; all fields are safe for concurrent use (prometheus primitives are
// inherently so).
type Metrics struct {
	reg prometheus.Registerer

	// Merger / Evaluation API (§4.4, §4.5, §7)
	RuleEvalErrors   *prometheus.CounterVec // by kind: missing_field, unknown_field_type, type_mismatch, bad_operator, empty_children
	MissingKeySkips  *prometheus.CounterVec // by layer_id
	RangeMissSkips   *prometheus.CounterVec // by layer_id
	RequestsInvalid  prometheus.Counter
	EvaluationErrors prometheus.Counter
	EvaluationLatency prometheus.Histogram

	// Catalog / State Manager (§4.3, §4.7, §7)
	LoadErrors      *prometheus.CounterVec // by entity_type
	SnapshotVersion prometheus.Gauge
	SnapshotSwaps   prometheus.Counter

	// Change-Log Poller (§4.6, §7)
	PollErrors     prometheus.Counter
	PollBatchSize  prometheus.Histogram
	LastAppliedID  prometheus.Gauge
	ReloadTimeouts prometheus.Counter

	// Subscriber Fan-out (§4.8, §7)
	SubscriberOverflows prometheus.Counter
	SubscriberCount     prometheus.Gauge
}

// New constructs and registers a Metrics instance against reg. A collector
// whose name is already registered on reg is tolerated: the new collector is
// left unregistered. Any other registration failure panics.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		reg: reg,
		RuleEvalErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "rule_eval_errors_total",
			Help: "Count of rule evaluations that returned Error, by kind.",
		}, []string{"kind"}),
		MissingKeySkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "layer_missing_key_skips_total",
			Help: "Count of layers skipped because the request lacked the layer's hash key.",
		}, []string{"layer_id"}),
		RangeMissSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "layer_range_miss_skips_total",
			Help: "Count of layers skipped because the bucket fell outside every range.",
		}, []string{"layer_id"}),
		RequestsInvalid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "requests_invalid_total",
			Help: "Count of evaluation requests rejected as RequestInvalid.",
		}),
		EvaluationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "evaluation_errors_total",
			Help: "Count of service-level evaluation failures (snapshot corruption etc).",
		}),
		EvaluationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "evaluation_latency_seconds",
			Help:    "Latency of a single evaluate() call across all requested services.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "load_errors_total",
			Help: "Count of layers/experiments rejected while building a Snapshot.",
		}, []string{"entity_type"}),
		SnapshotVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "snapshot_version",
			Help: "Version of the currently published Snapshot.",
		}),
		SnapshotSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "snapshot_swaps_total",
			Help: "Count of atomic Snapshot publications.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "poll_errors_total",
			Help: "Count of transient change-log fetch failures.",
		}),
		PollBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "poll_batch_size",
			Help:    "Number of change-log rows delivered per poll iteration.",
			Buckets: prometheus.LinearBuckets(0, 100, 11),
		}),
		LastAppliedID: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "last_applied_change_id",
			Help: "Highest change-log id successfully applied.",
		}),
		ReloadTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "entity_reload_timeouts_total",
			Help: "Count of authoritative-store reloads that exceeded their deadline.",
		}),
		SubscriberOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "subscriber_overflows_total",
			Help: "Count of subscribers marked stale due to a full queue.",
		}),
		SubscriberCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "subscribers",
			Help: "Number of currently registered subscribers.",
		}),
	}
	for _, c := range []prometheus.Collector{
		m.RuleEvalErrors, m.MissingKeySkips, m.RangeMissSkips, m.RequestsInvalid,
		m.EvaluationErrors, m.EvaluationLatency, m.LoadErrors, m.SnapshotVersion,
		m.SnapshotSwaps, m.PollErrors, m.PollBatchSize, m.LastAppliedID,
		m.ReloadTimeouts, m.SubscriberOverflows, m.SubscriberCount,
	} {
		if err := reg.Register(c); err != nil {
			if _, dup := err.(prometheus.AlreadyRegisteredError); !dup {
				panic(err)
			}
		}
	}
	return m
}

// NewNoOp returns a Metrics instance registered against a private registry,
// for tests and callers that don't want to share the default registry.
func NewNoOp() *Metrics {
	return New(prometheus.NewRegistry(), "fluxgate_test")
}
