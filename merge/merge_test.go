// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package merge

import (
	"testing"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/internal/metrics"
	"github.com/fluxgate/experiment/rules"
	"github.com/stretchr/testify/require"
)

func TestDeepMergeScenario2PriorityMerge(t *testing.T) {
	a := map[string]any{ // winner: layer A, priority 200
		"timeout": 100,
		"cfg":     map[string]any{"x": 1, "y": 2},
	}
	b := map[string]any{ // loser: layer B, priority 100
		"timeout": 200,
		"cfg":     map[string]any{"x": 10, "z": 3},
		"extra":   "v",
	}
	got := DeepMerge(a, b)
	require.Equal(t, map[string]any{
		"timeout": 100,
		"cfg":     map[string]any{"x": 1, "y": 2, "z": 3},
		"extra":   "v",
	}, got)
}

func TestDeepMergeTypeMismatchWinnerWhole(t *testing.T) {
	a := map[string]any{"cfg": "scalar-now"}
	b := map[string]any{"cfg": map[string]any{"x": 1}}
	got := DeepMerge(a, b)
	require.Equal(t, "scalar-now", got["cfg"])
}

func TestDeepMergeArraysAreOpaque(t *testing.T) {
	a := map[string]any{"list": []any{1, 2}}
	b := map[string]any{"list": []any{3, 4, 5}}
	got := DeepMerge(a, b)
	require.Equal(t, []any{1, 2}, got["list"])
}

func TestDeepMergeDoesNotMutateInputs(t *testing.T) {
	a := map[string]any{"cfg": map[string]any{"x": 1}}
	b := map[string]any{"cfg": map[string]any{"y": 2}}
	_ = DeepMerge(a, b)
	require.Equal(t, map[string]any{"x": 1}, a["cfg"])
	require.Equal(t, map[string]any{"y": 2}, b["cfg"])
}

func twoLayerSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	layers := []*catalog.Layer{
		{
			LayerID: "A", Version: "v1", Priority: 200, HashKey: "user_id", Salt: "sA",
			Enabled: true, Services: []string{"svc"},
			Ranges: []catalog.Range{{Start: 0, End: 10000, VID: 1}},
		},
		{
			LayerID: "B", Version: "v1", Priority: 100, HashKey: "user_id", Salt: "sB",
			Enabled: true, Services: []string{"svc"},
			Ranges: []catalog.Range{{Start: 0, End: 10000, VID: 2}},
		},
	}
	experiments := []*catalog.Experiment{
		{EID: 1, Service: "svc", Variants: []catalog.Variant{{VID: 1, Params: map[string]any{
			"timeout": 100, "cfg": map[string]any{"x": 1, "y": 2},
		}}}},
		{EID: 2, Service: "svc", Variants: []catalog.Variant{{VID: 2, Params: map[string]any{
			"timeout": 200, "cfg": map[string]any{"x": 10, "z": 3}, "extra": "v",
		}}}},
	}
	res := catalog.Build(layers, experiments, catalog.FieldTypes{}, 1, 0)
	require.False(t, res.Errs.Errored())
	return res.Snapshot
}

func TestMergeScenario2EndToEnd(t *testing.T) {
	snap := twoLayerSnapshot(t)
	req := &Request{
		Services: []string{"svc"},
		Keys:     map[string]string{"user_id": "u-42"},
		Context:  rules.Context{},
	}
	out := Merge(req, snap, metrics.NewNoOp())
	result := out["svc"]
	require.Equal(t, []string{"A", "B"}, result.MatchedLayers)
	require.Equal(t, []int64{1, 2}, result.VIDs)
	require.Equal(t, map[string]any{
		"timeout": 100,
		"cfg":     map[string]any{"x": 1, "y": 2, "z": 3},
		"extra":   "v",
	}, result.Params)
}

func TestMergeDeterministic(t *testing.T) {
	snap := twoLayerSnapshot(t)
	req := &Request{Services: []string{"svc"}, Keys: map[string]string{"user_id": "u-42"}}
	first := Merge(req, snap, metrics.NewNoOp())
	second := Merge(req, snap, metrics.NewNoOp())
	require.Equal(t, first, second, "P1: evaluate(r, s) == evaluate(r, s)")
}

func TestMergeSkipsOnMissingKey(t *testing.T) {
	snap := twoLayerSnapshot(t)
	req := &Request{Services: []string{"svc"}, Keys: map[string]string{}}
	out := Merge(req, snap, metrics.NewNoOp())
	require.Empty(t, out["svc"].MatchedLayers)
	require.Empty(t, out["svc"].Params)
}

func TestMergeSkipsDisabledLayer(t *testing.T) {
	layers := []*catalog.Layer{{
		LayerID: "A", Priority: 200, HashKey: "user_id", Salt: "s",
		Enabled: false, Services: []string{"svc"},
		Ranges: []catalog.Range{{Start: 0, End: 10000, VID: 1}},
	}}
	experiments := []*catalog.Experiment{{EID: 1, Service: "svc", Variants: []catalog.Variant{
		{VID: 1, Params: map[string]any{"x": 1}},
	}}}
	res := catalog.Build(layers, experiments, catalog.FieldTypes{}, 1, 0)
	out := Merge(&Request{Services: []string{"svc"}, Keys: map[string]string{"user_id": "u"}}, res.Snapshot, metrics.NewNoOp())
	require.Empty(t, out["svc"].MatchedLayers)
}

func TestMergeRuleGatesVariant(t *testing.T) {
	layers := []*catalog.Layer{{
		LayerID: "A", Priority: 100, HashKey: "user_id", Salt: "s", Enabled: true,
		Services: []string{"svc"},
		Ranges:   []catalog.Range{{Start: 0, End: 10000, VID: 1}},
	}}
	fts := catalog.FieldTypes{"country": rules.FieldString}
	experiments := []*catalog.Experiment{{
		EID: 1, Service: "svc",
		Rule: rules.Field("country", rules.OpEq, "US"),
		Variants: []catalog.Variant{{VID: 1, Params: map[string]any{"x": 1}}},
	}}
	res := catalog.Build(layers, experiments, fts, 1, 0)
	require.False(t, res.Errs.Errored())

	matching := &Request{Services: []string{"svc"}, Keys: map[string]string{"user_id": "u"}, Context: rules.Context{"country": "US"}}
	out := Merge(matching, res.Snapshot, metrics.NewNoOp())
	require.Equal(t, []string{"A"}, out["svc"].MatchedLayers)

	nonMatching := &Request{Services: []string{"svc"}, Keys: map[string]string{"user_id": "u"}, Context: rules.Context{"country": "CA"}}
	out = Merge(nonMatching, res.Snapshot, metrics.NewNoOp())
	require.Empty(t, out["svc"].MatchedLayers)
}

// P5 Merge monotonicity: adding a lower-priority matching layer never
// changes keys already set by higher-priority matching layers.
func TestMergeMonotonicity(t *testing.T) {
	highOnly := []*catalog.Layer{{
		LayerID: "A", Priority: 200, HashKey: "user_id", Salt: "sA", Enabled: true,
		Services: []string{"svc"}, Ranges: []catalog.Range{{Start: 0, End: 10000, VID: 1}},
	}}
	highAndLow := append(highOnly, &catalog.Layer{
		LayerID: "B", Priority: 100, HashKey: "user_id", Salt: "sB", Enabled: true,
		Services: []string{"svc"}, Ranges: []catalog.Range{{Start: 0, End: 10000, VID: 2}},
	})
	experiments := []*catalog.Experiment{
		{EID: 1, Service: "svc", Variants: []catalog.Variant{{VID: 1, Params: map[string]any{"timeout": 100}}}},
		{EID: 2, Service: "svc", Variants: []catalog.Variant{{VID: 2, Params: map[string]any{"timeout": 200, "extra": "v"}}}},
	}

	req := &Request{Services: []string{"svc"}, Keys: map[string]string{"user_id": "u"}}

	resHigh := catalog.Build(highOnly, experiments[:1], catalog.FieldTypes{}, 1, 0)
	resBoth := catalog.Build(highAndLow, experiments, catalog.FieldTypes{}, 2, 0)

	onlyHigh := Merge(req, resHigh.Snapshot, metrics.NewNoOp())["svc"]
	both := Merge(req, resBoth.Snapshot, metrics.NewNoOp())["svc"]

	require.Equal(t, onlyHigh.Params["timeout"], both.Params["timeout"], "higher-priority key must be unchanged by a lower-priority layer joining")
}
