// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package catalog

// These functions let the State Manager (C7) derive a new Snapshot from a
// prior one plus a single changed entity, instead of reloading every layer
// and experiment from the authoritative store on every change-log entry
// (§4.7 "Construct a new Snapshot derived from the prior one by
// substituting/removing the entity"). The derived indices (variant_index,
// layers_by_service) are recomputed from the resulting entity maps rather
// than patched in place — simpler to reason about and still O(layers +
// experiments) instead of O(store size), since only the entity maps, not a
// store round-trip, feed the rebuild.

// snapshotToSlices flattens a Snapshot's entity maps back into the slice
// form Build expects.
func snapshotToSlices(s *Snapshot) (layers []*Layer, experiments []*Experiment) {
	layers = make([]*Layer, 0, len(s.layersByID))
	for _, l := range s.layersByID {
		layers = append(layers, l)
	}
	experiments = make([]*Experiment, 0, len(s.experimentsByID))
	for _, e := range s.experimentsByID {
		experiments = append(experiments, e)
	}
	return layers, experiments
}

// ApplyLayer returns a new Snapshot with layer upserted (create or update).
func ApplyLayer(prior *Snapshot, layer *Layer, version int64) *BuildResult {
	layers, experiments := snapshotToSlices(prior)
	layers = upsertLayer(layers, layer)
	return Build(layers, experiments, prior.fieldTypes, version, prior.slots)
}

// RemoveLayer returns a new Snapshot with layerID deleted.
func RemoveLayer(prior *Snapshot, layerID string, version int64) *BuildResult {
	layers, experiments := snapshotToSlices(prior)
	layers = removeLayer(layers, layerID)
	return Build(layers, experiments, prior.fieldTypes, version, prior.slots)
}

// ApplyExperiment returns a new Snapshot with experiment upserted.
func ApplyExperiment(prior *Snapshot, experiment *Experiment, version int64) *BuildResult {
	layers, experiments := snapshotToSlices(prior)
	experiments = upsertExperiment(experiments, experiment)
	return Build(layers, experiments, prior.fieldTypes, version, prior.slots)
}

// RemoveExperiment returns a new Snapshot with eid deleted.
func RemoveExperiment(prior *Snapshot, eid int64, version int64) *BuildResult {
	layers, experiments := snapshotToSlices(prior)
	experiments = removeExperiment(experiments, eid)
	return Build(layers, experiments, prior.fieldTypes, version, prior.slots)
}

// WithFieldTypes returns a new Snapshot rebuilt against updated field types.
// An experiment whose rule is invalidated by the change is rejected at
// rebuild time and is absent from the new Snapshot; its prior version is not
// kept. The layers whose ranges name its vids are not rejected: they stay in
// the Snapshot, but those vids no longer resolve.
func WithFieldTypes(prior *Snapshot, fieldTypes FieldTypes, version int64) *BuildResult {
	layers, experiments := snapshotToSlices(prior)
	return Build(layers, experiments, fieldTypes, version, prior.slots)
}

func upsertLayer(layers []*Layer, layer *Layer) []*Layer {
	for i, l := range layers {
		if l.LayerID == layer.LayerID {
			layers[i] = layer
			return layers
		}
	}
	return append(layers, layer)
}

func removeLayer(layers []*Layer, layerID string) []*Layer {
	out := layers[:0]
	for _, l := range layers {
		if l.LayerID != layerID {
			out = append(out, l)
		}
	}
	return out
}

func upsertExperiment(experiments []*Experiment, experiment *Experiment) []*Experiment {
	for i, e := range experiments {
		if e.EID == experiment.EID {
			experiments[i] = experiment
			return experiments
		}
	}
	return append(experiments, experiment)
}

func removeExperiment(experiments []*Experiment, eid int64) []*Experiment {
	out := experiments[:0]
	for _, e := range experiments {
		if e.EID != eid {
			out = append(out, e)
		}
	}
	return out
}
