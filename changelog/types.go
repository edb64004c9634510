// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package changelog implements C6: tailing the append-only change log and
// delivering ordered entity events to the State Manager (§4.6). The log is
// the authoritative ordering; rows carry only identity, never new content,
// so a delivered create or update Entry triggers a fresh reload of the
// entity it names; a delete Entry needs no reload (§4.6).
package changelog

import "time"

// EntityType identifies which kind of entity an Entry mutates (§6).
type EntityType string

const (
	EntityLayer      EntityType = "layer"
	EntityExperiment EntityType = "experiment"
)

// Operation identifies the kind of mutation an Entry records (§6).
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entry is one row of the change-log table (§6).
type Entry struct {
	ID         int64
	EntityType EntityType
	EntityID   string
	Operation  Operation
	CreatedAt  time.Time
}
