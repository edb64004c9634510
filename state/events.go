// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import "time"

// ConfigChangeKind enumerates the event kinds emitted to subscribers on
// every applied change (§4.7).
type ConfigChangeKind string

const (
	LayerCreated      ConfigChangeKind = "LayerCreated"
	LayerUpdated      ConfigChangeKind = "LayerUpdated"
	LayerDeleted      ConfigChangeKind = "LayerDeleted"
	ExperimentCreated ConfigChangeKind = "ExperimentCreated"
	ExperimentUpdated ConfigChangeKind = "ExperimentUpdated"
	ExperimentDeleted ConfigChangeKind = "ExperimentDeleted"
)

// ConfigChange is the event published to local subscribers after every
// applied change-log entry (§4.7, §6).
type ConfigChange struct {
	Kind      ConfigChangeKind
	Version   int64
	Timestamp time.Time
	EntityID  string
	// Payload carries the reloaded entity (a *catalog.Layer or
	// *catalog.Experiment) for Created/Updated kinds; nil for Deleted.
	Payload any
}
