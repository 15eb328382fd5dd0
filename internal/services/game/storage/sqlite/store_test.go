package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

var testTime = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "rooms.db"), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testRoom(t *testing.T, id string) room.Snapshot {
	t.Helper()
	snap, err := room.New(id, room.ModeFriends, 2, testTime)
	if err != nil {
		t.Fatalf("room.New() error = %v", err)
	}
	for _, p := range []string{"ana", "bo"} {
		snap, err = snap.Join(p, testTime)
		if err != nil {
			t.Fatalf("Join(%q) error = %v", p, err)
		}
	}
	snap, err = snap.Start(testTime)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return snap
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  ", 0); err == nil {
		t.Fatal("Open() error = nil, want non-nil")
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	snap := testRoom(t, "r1")
	snap.TimeoutMisses["ana"] = 2
	snap.Disconnected["bo"] = true

	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Create(ctx, snap); apperrors.CodeOf(err) != apperrors.CodeAlreadyExists {
		t.Fatalf("second Create() code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeAlreadyExists)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Turn != "ana" || got.GameState != room.StatePlaying || got.Mode != room.ModeFriends {
		t.Fatalf("Get() = turn %q state %v mode %v", got.Turn, got.GameState, got.Mode)
	}
	if got.SeatColors["bo"] != board.Blue {
		t.Fatalf("SeatColors[bo] = %v, want %v", got.SeatColors["bo"], board.Blue)
	}
	if got.TimeoutMisses["ana"] != 2 || !got.Disconnected["bo"] {
		t.Fatalf("bookkeeping lost: misses=%v disconnected=%v", got.TimeoutMisses, got.Disconnected)
	}
	if !got.UpdatedAt.Equal(testTime) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, testTime)
	}
}

func TestGetMissingRoom(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Get(context.Background(), "ghost"); apperrors.CodeOf(err) != apperrors.CodeRoomNotFound {
		t.Fatalf("Get() code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeRoomNotFound)
	}
}

func TestConditionalUpdateEnforcesPrecondition(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	snap := testRoom(t, "r1")
	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rolled, err := snap.Roll("ana", 5, testTime)
	if err != nil {
		t.Fatalf("Roll() error = %v", err)
	}
	pre := storage.PreconditionOf(snap)
	if _, err := store.ConditionalUpdate(ctx, "r1", pre, rolled); err != nil {
		t.Fatalf("ConditionalUpdate() error = %v", err)
	}
	if _, err := store.ConditionalUpdate(ctx, "r1", pre, rolled); apperrors.CodeOf(err) != apperrors.CodeStaleWrite {
		t.Fatalf("stale update code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeStaleWrite)
	}
	if _, err := store.ConditionalUpdate(ctx, "ghost", pre, rolled); apperrors.CodeOf(err) != apperrors.CodeRoomNotFound {
		t.Fatalf("missing room code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeRoomNotFound)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.DiceState != room.DiceRolling || got.DiceResult != 5 {
		t.Fatalf("stored state = %v/%d, want %v/5", got.DiceState, got.DiceResult, room.DiceRolling)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	snap := testRoom(t, "r1")
	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := store.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, "r1"); apperrors.CodeOf(err) != apperrors.CodeRoomNotFound {
		t.Fatalf("second Delete() code = %v, want %v", apperrors.CodeOf(err), apperrors.CodeRoomNotFound)
	}
}

func TestFeedDeliversChangesInCommitOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := openTestStore(t)
	snap := testRoom(t, "r1")
	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	feed, err := store.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	rolled, err := snap.Roll("ana", 6, testTime)
	if err != nil {
		t.Fatalf("Roll() error = %v", err)
	}
	if _, err := store.ConditionalUpdate(ctx, "r1", storage.PreconditionOf(snap), rolled); err != nil {
		t.Fatalf("ConditionalUpdate(roll) error = %v", err)
	}
	resolved, err := rolled.ResolveRoll("ana", testTime)
	if err != nil {
		t.Fatalf("ResolveRoll() error = %v", err)
	}
	if _, err := store.ConditionalUpdate(ctx, "r1", storage.PreconditionOf(rolled), resolved); err != nil {
		t.Fatalf("ConditionalUpdate(resolve) error = %v", err)
	}

	wantStates := []room.DiceState{room.DiceRolling, room.DiceComplete}
	for i, want := range wantStates {
		select {
		case change := <-feed:
			if change.New.DiceState != want {
				t.Fatalf("change %d state = %v, want %v", i, change.New.DiceState, want)
			}
			if change.New.RoomID != "r1" {
				t.Fatalf("change %d room = %q, want r1", i, change.New.RoomID)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("change %d not delivered", i)
		}
	}
}

func TestFeedStartsAtSubscriptionTime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store := openTestStore(t)
	snap := testRoom(t, "r1")
	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Commit a change before subscribing; it must not be replayed.
	rolled, err := snap.Roll("ana", 2, testTime)
	if err != nil {
		t.Fatalf("Roll() error = %v", err)
	}
	if _, err := store.ConditionalUpdate(ctx, "r1", storage.PreconditionOf(snap), rolled); err != nil {
		t.Fatalf("ConditionalUpdate() error = %v", err)
	}

	feed, err := store.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	select {
	case change := <-feed:
		t.Fatalf("unexpected replayed change: %v", change.New.DiceState)
	case <-time.After(100 * time.Millisecond):
	}
}
