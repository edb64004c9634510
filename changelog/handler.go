// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package changelog

import "context"

// Handler applies one change-log Entry (§4.7). It is implemented by
// state.Manager; Poller depends only on this narrow interface so it never
// needs to know about Snapshots, swaps, or subscribers.
//
// Handle's error return controls last_id advancement: a nil error means the
// entry was consumed (even if the entity itself was rejected as invalid —
// that's a LoadError, not a Handle failure) and last_id may advance past
// it. A non-nil error means a transient StorageError occurred reloading the
// entity; last_id must not advance past this entry, and on its next tick
// Poller fetches again after the last successfully handled id, so this entry
// is the first one retried (§4.6, §4.7, §7).
type Handler interface {
	Handle(ctx context.Context, entry Entry) error
}
