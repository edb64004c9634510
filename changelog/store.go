// Copyright (c) 2026 Fluxgate Authors. All rights reserved.
// See the file LICENSE for licensing terms.

package changelog

import "context"

// Store is the read interface onto the authoritative change-log table
// (§6). A push-based implementation (e.g. backed by a LISTEN/NOTIFY-style
// trigger) can satisfy Store too — Fetch is simply called less often, or
// driven by a notification channel instead of a ticker — without any
// change to Poller's callers (§9 "Polling vs. push-based change log
// notification").
type Store interface {
	// MaxID returns the highest id currently in the log, used once at
	// startup to seed last_id (§4.6).
	MaxID(ctx context.Context) (int64, error)

	// Fetch returns up to limit rows with id > afterID, ordered by id
	// ascending (§4.6).
	Fetch(ctx context.Context, afterID int64, limit int) ([]Entry, error)
}
