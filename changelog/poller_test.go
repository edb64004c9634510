// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package changelog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/fluxgate/experiment/changelog/changelogmock"
	"github.com/fluxgate/experiment/internal/logging"
	"github.com/fluxgate/experiment/internal/metrics"
)

func TestPollerSeedsLastIDFromMaxID(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := changelogmock.NewMockStore(ctrl)
	handler := changelogmock.NewMockHandler(ctrl)

	store.EXPECT().MaxID(gomock.Any()).Return(int64(42), nil)
	store.EXPECT().Fetch(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	p := New(store, handler, Config{PollInterval: 10 * time.Millisecond, BatchSize: 10}, logging.NewNoOp(), metrics.NewNoOp())

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	require.Equal(t, int64(42), p.LastID())
}

func TestPollerAppliesEntriesInOrderAndAdvancesLastID(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := changelogmock.NewMockStore(ctrl)
	handler := changelogmock.NewMockHandler(ctrl)

	store.EXPECT().MaxID(gomock.Any()).Return(int64(0), nil)
	entries := []Entry{
		{ID: 1, EntityType: EntityLayer, EntityID: "L1", Operation: OpCreate},
		{ID: 2, EntityType: EntityLayer, EntityID: "L1", Operation: OpUpdate},
	}
	store.EXPECT().Fetch(gomock.Any(), int64(0), 10).Return(entries, nil)
	store.EXPECT().Fetch(gomock.Any(), int64(2), 10).Return(nil, nil).AnyTimes()

	handler.EXPECT().Handle(gomock.Any(), entries[0]).Return(nil)
	handler.EXPECT().Handle(gomock.Any(), entries[1]).Return(nil)

	p := New(store, handler, Config{PollInterval: 5 * time.Millisecond, BatchSize: 10}, logging.NewNoOp(), metrics.NewNoOp())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	require.Equal(t, int64(2), p.LastID())
}

func TestPollerDoesNotAdvanceLastIDPastFailingEntry(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := changelogmock.NewMockStore(ctrl)
	handler := changelogmock.NewMockHandler(ctrl)

	store.EXPECT().MaxID(gomock.Any()).Return(int64(0), nil)
	entries := []Entry{
		{ID: 1, EntityType: EntityLayer, EntityID: "L1", Operation: OpCreate},
		{ID: 2, EntityType: EntityLayer, EntityID: "L2", Operation: OpCreate},
	}
	store.EXPECT().Fetch(gomock.Any(), int64(0), 10).Return(entries, nil).AnyTimes()
	// Once entry 1 is applied, later ticks fetch after id 1 and see entry 2 again.
	store.EXPECT().Fetch(gomock.Any(), int64(1), 10).Return(entries[1:], nil).AnyTimes()

	handler.EXPECT().Handle(gomock.Any(), entries[0]).Return(nil).AnyTimes()
	handler.EXPECT().Handle(gomock.Any(), entries[1]).Return(errors.New("transient store failure")).AnyTimes()

	p := New(store, handler, Config{PollInterval: 5 * time.Millisecond, BatchSize: 10}, logging.NewNoOp(), metrics.NewNoOp())

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Millisecond)
	defer cancel()
	_ = p.Run(ctx)

	require.Equal(t, int64(1), p.LastID(), "last_id must never advance past a failing entry")
}
