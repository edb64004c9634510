// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package catalog

// Snapshot is the immutable tuple described in §3: layers_by_id,
// experiments_by_eid, variant_index, layers_by_service, field_types,
// version. Once returned by Build or one of the incremental derivations
// (ApplyLayer, RemoveLayer, ApplyExperiment, RemoveExperiment,
// WithFieldTypes) it is never mutated; every read method returns data (or references to data) that is
// safe to share across goroutines without locking.
type Snapshot struct {
	version int64

	layersByID      map[string]*Layer
	experimentsByID map[int64]*Experiment
	variantIndex    map[int64]variantEntry
	layersByService map[string][]*Layer
	fieldTypes      FieldTypes
	slots           uint32
}

// Version returns the Snapshot's monotonically non-decreasing version (§3).
func (s *Snapshot) Version() int64 { return s.version }

// LayersFor returns the layers scoped to service, already sorted by
// priority descending, then layer_id ascending (§4.3), so the Merger never
// sorts on the request path. The returned slice must not be mutated by
// callers.
func (s *Snapshot) LayersFor(service string) []*Layer {
	return s.layersByService[service]
}

// Layer looks up a layer by id.
func (s *Snapshot) Layer(layerID string) (*Layer, bool) {
	l, ok := s.layersByID[layerID]
	return l, ok
}

// Experiment looks up an experiment by eid.
func (s *Snapshot) Experiment(eid int64) (*Experiment, bool) {
	e, ok := s.experimentsByID[eid]
	return e, ok
}

// ExperimentOf resolves a vid to its owning experiment id and variant
// params (§4.3 experiment_of).
func (s *Snapshot) ExperimentOf(vid int64) (eid int64, params map[string]any, ok bool) {
	v, ok := s.variantIndex[vid]
	if !ok {
		return 0, nil, false
	}
	return v.EID, v.Params, true
}

// FieldTypes returns the declared field→type mapping (§4.3 field_types).
func (s *Snapshot) FieldTypes() FieldTypes {
	return s.fieldTypes
}

// HashSlots returns the hash_slots value this Snapshot was built against
// (§6 "hash_slots"). Every Bucket call made against ranges in this Snapshot
// must use this value, never hashing.DefaultSlots directly, so a configured
// hash_slots actually governs bucket assignment and range validation.
func (s *Snapshot) HashSlots() uint32 { return s.slots }

// Services returns every service with at least one layer, for admin
// inspection and testing.
func (s *Snapshot) Services() []string {
	out := make([]string, 0, len(s.layersByService))
	for svc := range s.layersByService {
		out = append(out, svc)
	}
	return out
}
