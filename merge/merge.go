// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package merge implements C4: given a request and a Snapshot, produce the
// per-service parameter bundle by walking each service's priority-sorted
// layer list, bucketing the caller into a variant, gating on the
// experiment's rule, and deep-merging the matched variants' params (§4.4).
package merge

import (
	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/hashing"
	"github.com/fluxgate/experiment/internal/metrics"
	"github.com/fluxgate/experiment/rules"
)

// Request is the evaluation input (§3 Request, §6 evaluation request).
type Request struct {
	Services []string
	Keys     map[string]string
	Context  rules.Context
}

// ServiceResult is the output for a single requested service (§3 Response,
// §6 evaluation response).
type ServiceResult struct {
	Params        map[string]any `json:"parameters"`
	MatchedLayers []string       `json:"matched_layers"`
	VIDs          []int64        `json:"vids"`
}

// Merge evaluates req against snap and returns one ServiceResult per entry
// in req.Services (§4.4). Merge never blocks and never allocates more than
// its output requires; it is the hot path described in §5 as never
// suspending.
func Merge(req *Request, snap *catalog.Snapshot, m *metrics.Metrics) map[string]ServiceResult {
	out := make(map[string]ServiceResult, len(req.Services))
	for _, svc := range req.Services {
		out[svc] = mergeService(req, svc, snap, m)
	}
	return out
}

func mergeService(req *Request, service string, snap *catalog.Snapshot, m *metrics.Metrics) ServiceResult {
	layers := snap.LayersFor(service)
	result := ServiceResult{
		Params:        map[string]any{},
		MatchedLayers: make([]string, 0, len(layers)),
		VIDs:          make([]int64, 0, len(layers)),
	}

	for _, layer := range layers {
		// Step a: disabled layers never participate.
		if !layer.Enabled {
			continue
		}

		// Step b: missing identifying key is a silent skip, not an error.
		key, ok := req.Keys[layer.HashKey]
		if !ok || key == "" {
			if m != nil {
				m.MissingKeySkips.WithLabelValues(layer.LayerID).Inc()
			}
			continue
		}

		// Step c/d: bucket the key and find the unique containing range.
		bucket := hashing.Bucket(key, layer.EffectiveSalt(), snap.HashSlots())
		rng, found := findRange(layer.Ranges, bucket)
		if !found {
			if m != nil {
				m.RangeMissSkips.WithLabelValues(layer.LayerID).Inc()
			}
			continue
		}

		// Step e: resolve the vid and gate on the experiment's rule.
		eid, variantParams, ok := snap.ExperimentOf(rng.VID)
		if !ok {
			// The vid never resolved — either the owning experiment was
			// rejected at load time (§3 I3) or the data is stale between
			// layer and experiment reloads; either way this is a silent
			// skip, identical in effect to a range miss.
			continue
		}

		if !ruleMatches(eid, snap, req.Context, m) {
			continue
		}

		// Step f: priority-biased deep merge; higher-priority layers are
		// visited first here and therefore win ties (§4.4 deep merge
		// semantics).
		result.Params = DeepMerge(result.Params, variantParams)

		// Step g.
		result.MatchedLayers = append(result.MatchedLayers, layer.LayerID)
		result.VIDs = append(result.VIDs, rng.VID)
	}

	return result
}

// ruleMatches evaluates the rule of experiment eid. An experiment with no
// rule (nil) always matches, per §3's "empty rule" scenario. Any
// RuleEvalError is treated as NoMatch and counted (§4.2, §7).
func ruleMatches(eid int64, snap *catalog.Snapshot, ctx rules.Context, m *metrics.Metrics) bool {
	exp, ok := snap.Experiment(eid)
	if !ok || exp.Rule == nil {
		return true
	}

	res, ek := rules.Evaluate(exp.Rule, ctx, snap.FieldTypes())
	switch res {
	case rules.Match:
		return true
	case rules.ErrorResult:
		if m != nil {
			m.RuleEvalErrors.WithLabelValues(string(ek)).Inc()
		}
		return false
	default:
		return false
	}
}

// findRange returns the unique range containing bucket, if any. Ranges are
// non-overlapping by construction (validated at Snapshot build time), so at
// most one can match.
func findRange(ranges []catalog.Range, bucket uint32) (catalog.Range, bool) {
	for _, r := range ranges {
		if bucket >= r.Start && bucket < r.End {
			return r, true
		}
	}
	return catalog.Range{}, false
}
