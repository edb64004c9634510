// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package admin exposes a read-only view of the evaluation core's current
// state for an external admin surface to poll, grounded on the pure
// read-only health-report shape the teacher exposes internally (no HTTP
// transport owned here, same as that package).
package admin

import (
	"github.com/fluxgate/experiment/state"
	"github.com/fluxgate/experiment/subscribe"
)

// Status is a snapshot of the core's operational state at the moment it
// was read. It is a plain value — take one with Snapshot, render it
// however the surrounding process likes.
type Status struct {
	// Version is the currently published catalog Snapshot's version.
	Version int64 `json:"version"`
	// ServiceLayerCounts maps each known service to how many layers are
	// scoped to it.
	ServiceLayerCounts map[string]int `json:"service_layer_counts"`
	// Subscribers is the number of currently registered fan-out
	// subscribers, zero if no Hub is wired.
	Subscribers int `json:"subscribers"`
}

// Source is the narrow read surface admin needs from the running core.
type Source struct {
	Manager *state.Manager
	Hub     *subscribe.Hub // nil if fan-out isn't wired for this deployment
}

// Snapshot reads current state off the running core. It never blocks: the
// Manager's Current Snapshot read is a single atomic load, and the Hub's
// subscriber count is a brief read lock.
func Snapshot(src Source) Status {
	snap := src.Manager.Current()
	status := Status{
		Version:            snap.Version(),
		ServiceLayerCounts: map[string]int{},
	}
	for _, svc := range snap.Services() {
		status.ServiceLayerCounts[svc] = len(snap.LayersFor(svc))
	}
	if src.Hub != nil {
		status.Subscribers = src.Hub.SubscriberCount()
	}
	return status
}
