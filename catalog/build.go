// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package catalog

import (
	"fmt"
	"sort"

	"github.com/fluxgate/experiment/hashing"
	"github.com/fluxgate/experiment/internal/multierr"
	"github.com/fluxgate/experiment/rules"
)

// LoadErrorKind classifies why an entity was rejected during a Snapshot
// build, for the §7 LoadError counter.
type LoadErrorKind string

const (
	LoadErrorLayer      LoadErrorKind = "layer"
	LoadErrorExperiment LoadErrorKind = "experiment"
)

// LoadError is returned (accumulated, never fatal) when a layer or
// experiment fails validation during a Snapshot build (§3 I3, §7).
type LoadError struct {
	Kind     LoadErrorKind
	EntityID string
	Err      error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("catalog: rejected %s %q: %v", e.Kind, e.EntityID, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// BuildResult is the output of Build: the new Snapshot plus every LoadError
// encountered along the way. A non-empty Errs never means the build failed
// — it means some subset of entities were omitted (§7 propagation policy:
// "reload-path errors never block other entities' reloads").
type BuildResult struct {
	Snapshot *Snapshot
	Errs     *multierr.Errs
}

// Build constructs a fresh Snapshot from the full set of layers and
// experiments known to the authoritative store (§4.7 "Startup"). Invalid
// entities are logged (by the caller, using BuildResult.Errs) and omitted;
// the rest of the Snapshot still builds (§7).
//
// slots is the hash_slots value (§6) to validate ranges against and to bake
// into the returned Snapshot for the Merger's Bucket calls; zero means
// hashing.DefaultSlots.
func Build(layers []*Layer, experiments []*Experiment, fieldTypes FieldTypes, version int64, slots uint32) *BuildResult {
	if slots == 0 {
		slots = hashing.DefaultSlots
	}
	errs := &multierr.Errs{}

	variantIndex, validExperiments := indexExperiments(experiments, fieldTypes, errs)
	validLayers := validateLayers(layers, variantIndex, errs, slots)

	layersByID := make(map[string]*Layer, len(validLayers))
	for _, l := range validLayers {
		layersByID[l.LayerID] = l
	}
	experimentsByID := make(map[int64]*Experiment, len(validExperiments))
	for _, e := range validExperiments {
		experimentsByID[e.EID] = e
	}

	return &BuildResult{
		Snapshot: &Snapshot{
			version:         version,
			layersByID:      layersByID,
			experimentsByID: experimentsByID,
			variantIndex:    variantIndex,
			layersByService: layersByService(validLayers),
			fieldTypes:      fieldTypes,
			slots:           slots,
		},
		Errs: errs,
	}
}

// indexExperiments validates each experiment's rule against fieldTypes and
// builds the vid→(eid,params) reverse index (§3 variant_index, §4.2). An
// experiment whose rule fails Validate is entirely omitted: every vid it
// would have contributed becomes an ordinary "range miss" at merge time
// (§4.4 step e), never a crash.
func indexExperiments(experiments []*Experiment, fieldTypes FieldTypes, errs *multierr.Errs) (map[int64]variantEntry, []*Experiment) {
	index := make(map[int64]variantEntry)
	valid := make([]*Experiment, 0, len(experiments))

	for _, e := range experiments {
		if len(e.Variants) == 0 {
			errs.Add(&LoadError{Kind: LoadErrorExperiment, EntityID: fmt.Sprint(e.EID), Err: fmt.Errorf("experiment has no variants")})
			continue
		}
		if e.Rule != nil {
			if err := rules.Validate(e.Rule, fieldTypes); err != nil {
				errs.Add(&LoadError{Kind: LoadErrorExperiment, EntityID: fmt.Sprint(e.EID), Err: err})
				continue
			}
		}

		vidSeen := make(map[int64]bool, len(e.Variants))
		ok := true
		for _, v := range e.Variants {
			if vidSeen[v.VID] {
				errs.Add(&LoadError{Kind: LoadErrorExperiment, EntityID: fmt.Sprint(e.EID), Err: fmt.Errorf("duplicate vid %d within experiment", v.VID)})
				ok = false
				break
			}
			vidSeen[v.VID] = true
		}
		if !ok {
			continue
		}

		for _, v := range e.Variants {
			if existing, dup := index[v.VID]; dup {
				errs.Add(&LoadError{Kind: LoadErrorExperiment, EntityID: fmt.Sprint(e.EID), Err: fmt.Errorf("vid %d already owned by experiment %d", v.VID, existing.EID)})
				continue
			}
			index[v.VID] = variantEntry{EID: e.EID, Params: v.Params}
		}
		valid = append(valid, e)
	}
	return index, valid
}

// validateLayers rejects layers with malformed range lists (overlap,
// out-of-bounds, the legacy single-bucket shape) or whose ranges claim a vid
// another, earlier layer already owns (§3 I2).
func validateLayers(layers []*Layer, variantIndex map[int64]variantEntry, errs *multierr.Errs, slots uint32) []*Layer {
	valid := make([]*Layer, 0, len(layers))
	claimedVIDs := make(map[int64]string, len(variantIndex))

	for _, l := range layers {
		if err := validateRanges(l.Ranges, slots); err != nil {
			errs.Add(&LoadError{Kind: LoadErrorLayer, EntityID: l.LayerID, Err: err})
			continue
		}

		conflict := false
		for _, r := range l.Ranges {
			if owner, ok := claimedVIDs[r.VID]; ok && owner != l.LayerID {
				errs.Add(&LoadError{Kind: LoadErrorLayer, EntityID: l.LayerID, Err: fmt.Errorf("vid %d already claimed by layer %q (I2 violation)", r.VID, owner)})
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		for _, r := range l.Ranges {
			claimedVIDs[r.VID] = l.LayerID
		}
		valid = append(valid, l)
	}
	return valid
}

// validateRanges checks bounds, ordering, and non-overlap (§3 Layer.ranges),
// and rejects the legacy "buckets map" shape flattened into one range per
// bucket (§9 open question; this spec adopts the ranges/experiments form
// only).
func validateRanges(ranges []Range, slots uint32) error {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	unitWidth := 0
	var prevEnd uint32
	for i, r := range sorted {
		if r.Start >= r.End {
			return fmt.Errorf("range [%d,%d) is empty or inverted", r.Start, r.End)
		}
		if r.End > slots {
			return fmt.Errorf("range end %d exceeds hash_slots (%d)", r.End, slots)
		}
		if i > 0 && r.Start < prevEnd {
			return fmt.Errorf("range [%d,%d) overlaps preceding range ending at %d", r.Start, r.End, prevEnd)
		}
		if r.End-r.Start == 1 {
			unitWidth++
		}
		prevEnd = r.End
	}
	if uint32(len(sorted)) >= slots/2 && unitWidth == len(sorted) {
		return fmt.Errorf("ranges look like a flattened legacy buckets map (%d single-width ranges); the ranges/experiments form is required", len(sorted))
	}
	return nil
}

// layersByService groups layers by their scoped services, sorted by
// priority descending then layer_id ascending (§3 Layer.priority, §4.3).
func layersByService(layers []*Layer) map[string][]*Layer {
	bySvc := make(map[string][]*Layer)
	for _, l := range layers {
		if !l.Enabled {
			// Disabled layers are still indexed so LayersFor reflects the
			// full catalog; the Merger itself skips them per §4.4 step a.
		}
		for _, svc := range l.Services {
			bySvc[svc] = append(bySvc[svc], l)
		}
	}
	for _, ls := range bySvc {
		sort.Slice(ls, func(i, j int) bool {
			if ls[i].Priority != ls[j].Priority {
				return ls[i].Priority > ls[j].Priority
			}
			return ls[i].LayerID < ls[j].LayerID
		})
	}
	return bySvc
}
