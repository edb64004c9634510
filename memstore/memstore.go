// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package memstore is a reference in-memory implementation of the
// authoritative store interfaces (changelog.Store, state.LayerStore,
// state.ExperimentStore). Persistent storage schema is explicitly out of
// scope (spec.md §1); this package exists so cmd/experimentd has a concrete
// store to run against without any external database, the same role the teacher's in-memory test doubles
// play for its own VM/chain interfaces.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/changelog"
	"github.com/fluxgate/experiment/state"
)

// Store is a single in-memory authoritative store backing both the catalog
// entity tables and the change log. A real deployment would split these
// across whatever database it already runs; callers only ever see them
// through the narrow changelog.Store / state.LayerStore /
// state.ExperimentStore interfaces.
type Store struct {
	mu sync.Mutex

	layers      map[string]*catalog.Layer
	experiments map[int64]*catalog.Experiment
	log         []changelog.Entry
	nextLogID   int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		layers:      map[string]*catalog.Layer{},
		experiments: map[int64]*catalog.Experiment{},
	}
}

var _ changelog.Store = (*Store)(nil)
var _ state.LayerStore = (*Store)(nil)
var _ state.ExperimentStore = (*Store)(nil)

// PutLayer upserts a layer and appends a change-log entry for it.
func (s *Store) PutLayer(layer *catalog.Layer, op changelog.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op != changelog.OpDelete {
		s.layers[layer.LayerID] = layer
	} else {
		delete(s.layers, layer.LayerID)
	}
	s.appendLocked(changelog.EntityLayer, layer.LayerID, op)
}

// PutExperiment upserts an experiment and appends a change-log entry for it.
func (s *Store) PutExperiment(exp *catalog.Experiment, op changelog.Operation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if op != changelog.OpDelete {
		s.experiments[exp.EID] = exp
	} else {
		delete(s.experiments, exp.EID)
	}
	s.appendLocked(changelog.EntityExperiment, strconv.FormatInt(exp.EID, 10), op)
}

func (s *Store) appendLocked(entityType changelog.EntityType, entityID string, op changelog.Operation) {
	s.nextLogID++
	s.log = append(s.log, changelog.Entry{ID: s.nextLogID, EntityType: entityType, EntityID: entityID, Operation: op})
}

// GetLayer implements state.LayerStore.
func (s *Store) GetLayer(_ context.Context, id string) (*catalog.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[id]
	if !ok {
		return nil, state.ErrNotFound
	}
	return l, nil
}

// ListLayers implements state.LayerStore.
func (s *Store) ListLayers(_ context.Context) ([]*catalog.Layer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*catalog.Layer, 0, len(s.layers))
	for _, l := range s.layers {
		out = append(out, l)
	}
	return out, nil
}

// GetExperiment implements state.ExperimentStore.
func (s *Store) GetExperiment(_ context.Context, eid int64) (*catalog.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.experiments[eid]
	if !ok {
		return nil, state.ErrNotFound
	}
	return e, nil
}

// ListExperiments implements state.ExperimentStore.
func (s *Store) ListExperiments(_ context.Context) ([]*catalog.Experiment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*catalog.Experiment, 0, len(s.experiments))
	for _, e := range s.experiments {
		out = append(out, e)
	}
	return out, nil
}

// MaxID implements changelog.Store.
func (s *Store) MaxID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLogID, nil
}

// Fetch implements changelog.Store.
func (s *Store) Fetch(_ context.Context, afterID int64, limit int) ([]changelog.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := sort.Search(len(s.log), func(i int) bool { return s.log[i].ID > afterID })
	rest := s.log[idx:]
	if len(rest) > limit {
		rest = rest[:limit]
	}
	out := make([]changelog.Entry, len(rest))
	copy(out, rest)
	return out, nil
}
