// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package subscribe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/state"
)

func buildTestSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	layer := &catalog.Layer{
		LayerID: "L1", Version: "v1", Priority: 1, HashKey: "user_id", Enabled: true,
		Ranges:   []catalog.Range{{Start: 0, End: 10000, VID: 1}},
		Services: []string{"checkout"},
	}
	exp := &catalog.Experiment{
		EID: 1, Service: "checkout",
		Variants: []catalog.Variant{{VID: 1, Params: map[string]any{"on": true}}},
	}
	result := catalog.Build([]*catalog.Layer{layer}, []*catalog.Experiment{exp}, catalog.FieldTypes{}, 1, 0)
	require.Zero(t, result.Errs.Len())
	return result.Snapshot
}

func TestRegisterSendsFullReloadScopedToServices(t *testing.T) {
	h := New(DefaultConfig(), nil, nil)
	snap := buildTestSnapshot(t)

	sub, err := h.Register(SubscribeRequest{ID: "s1", Services: []string{"checkout"}}, snap)
	require.NoError(t, err)

	msg := <-sub.Queue()
	reload, ok := msg.(FullReload)
	require.True(t, ok)
	require.Len(t, reload.Layers, 1)
	require.Equal(t, "L1", reload.Layers[0].LayerID)
	require.Len(t, reload.Experiments, 1)
}

func TestRegisterRejectsPastMaxSubscribers(t *testing.T) {
	h := New(Config{MaxSubscribers: 1, QueueDepth: 8}, nil, nil)
	snap := buildTestSnapshot(t)

	_, err := h.Register(SubscribeRequest{ID: "s1"}, snap)
	require.NoError(t, err)

	_, err = h.Register(SubscribeRequest{ID: "s2"}, snap)
	require.ErrorIs(t, err, ErrTooManySubscribers)
}

func TestPublishFiltersByService(t *testing.T) {
	h := New(DefaultConfig(), nil, nil)
	snap := buildTestSnapshot(t)

	checkoutSub, err := h.Register(SubscribeRequest{ID: "checkout-sub", Services: []string{"checkout"}}, snap)
	require.NoError(t, err)
	<-checkoutSub.Queue() // drain FullReload

	billingSub, err := h.Register(SubscribeRequest{ID: "billing-sub", Services: []string{"billing"}}, snap)
	require.NoError(t, err)
	<-billingSub.Queue()

	layer := &catalog.Layer{LayerID: "L1", Services: []string{"checkout"}}
	h.Publish(state.ConfigChange{Kind: state.LayerUpdated, Version: 2, Payload: layer})

	msg := <-checkoutSub.Queue()
	cc, ok := msg.(ConfigChangeMsg)
	require.True(t, ok)
	require.Equal(t, state.LayerUpdated, cc.Kind)

	select {
	case <-billingSub.Queue():
		t.Fatal("billing subscriber should not have received a checkout-only change")
	default:
	}
}

func TestPublishMarksSubscriberStaleOnOverflow(t *testing.T) {
	h := New(Config{MaxSubscribers: 8, QueueDepth: 1}, nil, nil)
	snap := buildTestSnapshot(t)

	sub, err := h.Register(SubscribeRequest{ID: "s1"}, snap)
	require.NoError(t, err)
	<-sub.Queue() // drain FullReload, queue now empty with capacity 1

	layer := &catalog.Layer{LayerID: "L1"}
	h.Publish(state.ConfigChange{Kind: state.LayerUpdated, Payload: layer}) // fills the queue
	h.Publish(state.ConfigChange{Kind: state.LayerUpdated, Payload: layer}) // overflows

	require.True(t, sub.Stale())
}

func TestUnregisterRemovesSubscriber(t *testing.T) {
	h := New(DefaultConfig(), nil, nil)
	snap := buildTestSnapshot(t)

	_, err := h.Register(SubscribeRequest{ID: "s1"}, snap)
	require.NoError(t, err)
	require.Equal(t, 1, h.SubscriberCount())

	h.Unregister("s1")
	require.Equal(t, 0, h.SubscriberCount())
}
