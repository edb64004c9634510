// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package eval

import (
	"testing"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/internal/metrics"
	"github.com/stretchr/testify/require"
)

type fixedSource struct{ snap *catalog.Snapshot }

func (f fixedSource) Current() *catalog.Snapshot { return f.snap }

func buildSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	layers := []*catalog.Layer{{
		LayerID: "L1", Priority: 100, HashKey: "user_id", Salt: "s", Enabled: true,
		Services: []string{"r"},
		Ranges:   []catalog.Range{{Start: 0, End: 5000, VID: 1001}, {Start: 5000, End: 10000, VID: 1002}},
	}}
	experiments := []*catalog.Experiment{{
		EID: 100, Service: "r",
		Variants: []catalog.Variant{
			{VID: 1001, Params: map[string]any{"algo": "baseline"}},
			{VID: 1002, Params: map[string]any{"algo": "new"}},
		},
	}}
	res := catalog.Build(layers, experiments, catalog.FieldTypes{}, 1, 0)
	require.False(t, res.Errs.Errored())
	return res.Snapshot
}

func TestEvaluateRejectsEmptyServices(t *testing.T) {
	api := New(fixedSource{buildSnapshot(t)}, metrics.NewNoOp())
	_, err := api.Evaluate(&Request{Keys: map[string]string{"user_id": "u"}})
	require.Error(t, err)
	var ri *RequestInvalidError
	require.ErrorAs(t, err, &ri)
	require.Equal(t, ErrMissingServices, ri.Code)
}

func TestEvaluateRejectsEmptyKeys(t *testing.T) {
	api := New(fixedSource{buildSnapshot(t)}, metrics.NewNoOp())
	_, err := api.Evaluate(&Request{Services: []string{"r"}})
	require.Error(t, err)
}

func TestEvaluateScenario1SingleLayer(t *testing.T) {
	api := New(fixedSource{buildSnapshot(t)}, metrics.NewNoOp())
	resp, err := api.Evaluate(&Request{
		Services: []string{"r"},
		Keys:     map[string]string{"user_id": "u"},
		Context:  map[string]any{},
	})
	require.NoError(t, err)
	result := resp.Results["r"]
	require.Len(t, result.MatchedLayers, 1)
	require.Equal(t, "L1", result.MatchedLayers[0])
	require.Len(t, result.VIDs, 1)
	require.Contains(t, []int64{1001, 1002}, result.VIDs[0])

	// Repeated calls are deterministic (P1).
	resp2, err := api.Evaluate(&Request{
		Services: []string{"r"},
		Keys:     map[string]string{"user_id": "u"},
		Context:  map[string]any{},
	})
	require.NoError(t, err)
	require.Equal(t, resp, resp2)
}
