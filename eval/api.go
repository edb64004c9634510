// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package eval implements C5: the Evaluation API. It validates a request,
// acquires a reference to the current Snapshot in O(1), dispatches to the
// Merger, and formats the response (§4.5). Nothing in this package blocks
// or performs I/O; the entire path from Snapshot acquisition to response
// formation is synchronous and allocation-light (§5).
package eval

import (
	"time"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/internal/metrics"
	"github.com/fluxgate/experiment/merge"
	"github.com/fluxgate/experiment/rules"
)

// SnapshotSource returns the currently published Snapshot. It is satisfied
// by *state.Manager; kept as an interface here so the Evaluation API has no
// import-time dependency on the State Manager's change-log plumbing.
type SnapshotSource interface {
	Current() *catalog.Snapshot
}

// Request mirrors the wire shape in §6: services, keys, context.
type Request struct {
	Services []string
	Keys     map[string]string
	Context  map[string]any
}

// Response mirrors §6's evaluation response: one result per requested
// service.
type Response struct {
	Results map[string]merge.ServiceResult `json:"results"`
}

// ErrorCode enumerates the RequestInvalid reasons surfaced to the caller
// (§7).
type ErrorCode string

const (
	ErrMissingServices ErrorCode = "missing_services"
	ErrMissingKeys     ErrorCode = "missing_keys"
)

// RequestInvalidError is returned when the request itself is malformed —
// never when a rule fails to match, which is NoMatch, not an error (§7).
type RequestInvalidError struct {
	Code ErrorCode
}

func (e *RequestInvalidError) Error() string {
	return "eval: request invalid: " + string(e.Code)
}

// API is the Evaluation API (§4.5).
type API struct {
	snapshots SnapshotSource
	metrics   *metrics.Metrics
}

// New constructs an API reading snapshots from src.
func New(src SnapshotSource, m *metrics.Metrics) *API {
	if m == nil {
		m = metrics.NewNoOp()
	}
	return &API{snapshots: src, metrics: m}
}

// Evaluate validates req, merges it against the current Snapshot, and
// returns the formatted Response. The Snapshot reference is acquired once,
// at the top of this call, and held for the full request: intervening
// config changes never affect the result of a single Evaluate call (§4.4
// Determinism, §8 P6 Snapshot isolation).
func (a *API) Evaluate(req *Request) (*Response, error) {
	if err := validate(req); err != nil {
		a.metrics.RequestsInvalid.Inc()
		return nil, err
	}

	start := time.Now()
	defer func() { a.metrics.EvaluationLatency.Observe(time.Since(start).Seconds()) }()

	snap := a.snapshots.Current()
	mergeReq := &merge.Request{
		Services: req.Services,
		Keys:     req.Keys,
		Context:  rules.Context(req.Context),
	}
	results := merge.Merge(mergeReq, snap, a.metrics)
	return &Response{Results: results}, nil
}

// validate enforces §4.5's precondition: non-empty services, at least one
// key.
func validate(req *Request) error {
	if req == nil || len(req.Services) == 0 {
		return &RequestInvalidError{Code: ErrMissingServices}
	}
	if len(req.Keys) == 0 {
		return &RequestInvalidError{Code: ErrMissingKeys}
	}
	return nil
}
