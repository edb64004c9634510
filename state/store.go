// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state implements C7: the State Manager. It holds the current
// Snapshot behind an atomic pointer, applies change-log entries by
// reloading the named entity from the authoritative store, and publishes
// the resulting Snapshot via atomic swap (§4.7).
package state

import (
	"context"
	"errors"

	"github.com/fluxgate/experiment/catalog"
)

// ErrNotFound is returned by LayerStore/ExperimentStore when the requested
// entity no longer exists (§6 "get_layer(id) → Layer | NotFound").
var ErrNotFound = errors.New("state: entity not found")

// LayerStore is the read interface onto layer storage (§6). The core never
// writes through it; external writers own the data.
type LayerStore interface {
	GetLayer(ctx context.Context, id string) (*catalog.Layer, error)
	ListLayers(ctx context.Context) ([]*catalog.Layer, error)
}

// ExperimentStore is the read interface onto experiment storage (§6),
// analogous to LayerStore.
type ExperimentStore interface {
	GetExperiment(ctx context.Context, eid int64) (*catalog.Experiment, error)
	ListExperiments(ctx context.Context) ([]*catalog.Experiment, error)
}
