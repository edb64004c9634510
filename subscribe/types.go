// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

// Package subscribe implements C8: pushing incremental catalog changes to
// downstream evaluators over a bidirectional stream abstraction (§4.8, §6).
// The transport itself (gRPC, a raw socket, anything else) is out of scope;
// this package owns registration, per-subscriber bounded queues, and the
// filter/overflow/staleness rules, and hands transports plain Go message
// structs (with protobuf timestamps) to frame and send however they like.
package subscribe

import (
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/fluxgate/experiment/catalog"
	"github.com/fluxgate/experiment/state"
)

// SubscribeRequest is the client->server registration message (§4.8, §6
// "Subscribe{id, services, known_version}").
type SubscribeRequest struct {
	ID           string
	Services     []string
	KnownVersion int64
}

// FullReload is sent once, immediately after registration, carrying the
// subset of the current Snapshot scoped to the subscriber's services (§4.8,
// §6 "FullReload{version, layers[], experiments[]}").
type FullReload struct {
	Version     int64
	Timestamp   *timestamppb.Timestamp
	Layers      []*catalog.Layer
	Experiments []*catalog.Experiment
}

// ConfigChangeMsg is the wire form of a state.ConfigChange, sent after the
// initial FullReload for every subsequent applied change (§4.8, §6
// "ConfigChange{kind, version, entity}").
type ConfigChangeMsg struct {
	Kind       state.ConfigChangeKind
	Version    int64
	Timestamp  *timestamppb.Timestamp
	EntityID   string
	Layer      *catalog.Layer      // set for layer Created/Updated
	Experiment *catalog.Experiment // set for experiment Created/Updated
}

// Ack is the periodic client->server liveness/progress message (§6 "Client
// sends periodic Ack{applied_version}").
type Ack struct {
	SubscriberID   string
	AppliedVersion int64
}

func newConfigChangeMsg(c state.ConfigChange) ConfigChangeMsg {
	msg := ConfigChangeMsg{
		Kind:      c.Kind,
		Version:   c.Version,
		Timestamp: timestamppb.New(c.Timestamp),
		EntityID:  c.EntityID,
	}
	switch p := c.Payload.(type) {
	case *catalog.Layer:
		msg.Layer = p
	case *catalog.Experiment:
		msg.Experiment = p
	}
	return msg
}
