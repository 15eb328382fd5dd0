// Package storage defines the room store and change feed contracts.
//
// The store offers optimistic conditional writes keyed on the room's turn
// owner and dice sub-state. That conditional write is the only concurrency
// control in the system: a human request, a bot step, and a timeout sweep
// may all race on the same room, and exactly one write for a given
// (room, turn, dice state) wins. Losers receive a stale-write error and
// decide for themselves whether to surface or abandon it.
package storage

import (
	"context"

	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
)

// Precondition is the exact state a writer read before computing its
// transition. A commit succeeds only if the stored room still matches.
type Precondition struct {
	Turn      string
	DiceState room.DiceState
}

// PreconditionOf extracts the write precondition from a snapshot.
func PreconditionOf(snap room.Snapshot) Precondition {
	return Precondition{Turn: snap.Turn, DiceState: snap.DiceState}
}

// Change is one committed room update delivered on the feed.
type Change struct {
	Old room.Snapshot
	New room.Snapshot
}

// Store persists room snapshots.
type Store interface {
	// Get returns the current snapshot of a room, or a room-not-found
	// error.
	Get(ctx context.Context, roomID string) (room.Snapshot, error)
	// Create stores a new room. Fails with an already-exists error if the
	// id is taken.
	Create(ctx context.Context, snap room.Snapshot) error
	// ConditionalUpdate commits next only if the stored room still
	// matches the precondition, returning the committed snapshot. On a
	// mismatch it fails with a stale-write error and leaves the room
	// untouched.
	ConditionalUpdate(ctx context.Context, roomID string, pre Precondition, next room.Snapshot) (room.Snapshot, error)
	// Delete removes a room.
	Delete(ctx context.Context, roomID string) error
}

// Feed delivers committed room changes, at least once. Consumers must be
// idempotent.
type Feed interface {
	// Subscribe returns a channel of committed changes. The channel
	// closes when ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan Change, error)
}
