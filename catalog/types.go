// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package catalog implements C3: the immutable Snapshot of layers,
// experiments, and field types that the Merger reads on every request
// (§3, §4.3). A Snapshot is built once per config change and swapped in by
// the State Manager (C7); nothing in this package mutates a published
// Snapshot.
package catalog

import "github.com/fluxgate/experiment/rules"

// Range binds a contiguous, half-open bucket interval [Start, End) to a
// variant id (§3 Range).
type Range struct {
	Start uint32
	End   uint32
	VID   int64
}

// Layer is an independent experimentation stratum (§3 Layer).
type Layer struct {
	LayerID  string
	Version  string
	Priority int32
	HashKey  string
	Salt     string
	Enabled  bool
	Ranges   []Range
	// Services is the scope restriction; a layer with a single `service` in
	// the wire format normalizes to a one-element slice here.
	Services []string
}

// EffectiveSalt returns Salt if set, else the layer's default salt
// `{layer_id}_{version}` (§3 Layer.salt).
func (l *Layer) EffectiveSalt() string {
	if l.Salt != "" {
		return l.Salt
	}
	return l.LayerID + "_" + l.Version
}

// Variant is one arm of an Experiment, carrying its parameter bundle (§3
// Experiment.variants).
type Variant struct {
	VID    int64
	Params map[string]any
}

// Experiment is the set of variants under a common service and rule (§3
// Experiment).
type Experiment struct {
	EID      int64
	Service  string
	Rule     *rules.Node // nil means "always match"
	Variants []Variant
}

// FieldTypes is an alias so callers of this package don't need to import
// rules directly just to build a catalog.
type FieldTypes = rules.FieldTypes

// variantEntry is the value half of Snapshot.variantIndex (§3 variant_index).
type variantEntry struct {
	EID    int64
	Params map[string]any
}
