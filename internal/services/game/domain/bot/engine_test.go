package bot

import (
	"context"
	"io"
	"log"
	"math/rand"
	"testing"
	"time"

	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/dice"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/rules"
	"github.com/corvid-games/tokenrace/internal/services/game/storage/memory"
)

var testTime = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func TestIsBot(t *testing.T) {
	if !IsBot("bot:ember") {
		t.Errorf("IsBot(bot:ember) = false, want true")
	}
	if IsBot("ana") {
		t.Errorf("IsBot(ana) = true, want false")
	}
}

func TestPickIdentitiesDistinct(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ids := PickIdentities(rng, 3)
	if len(ids) != 3 {
		t.Fatalf("len(ids) = %d, want 3", len(ids))
	}
	seen := map[string]bool{}
	for _, id := range ids {
		if !IsBot(id) {
			t.Errorf("identity %q is not synthetic", id)
		}
		if seen[id] {
			t.Errorf("identity %q drawn twice", id)
		}
		seen[id] = true
	}
	if got := PickIdentities(rng, 100); len(got) != len(Catalog()) {
		t.Errorf("len(PickIdentities(100)) = %d, want %d", len(got), len(Catalog()))
	}
}

func testEngine(t *testing.T, store *memory.Store, roller dice.Roller) *Engine {
	t.Helper()
	return NewEngine(store, roller, Delays{}, 1, log.New(io.Discard, "", 0))
}

func playingRoom(t *testing.T, players ...string) room.Snapshot {
	t.Helper()
	snap, err := room.New("r1", room.ModeFriends, len(players), testTime)
	if err != nil {
		t.Fatalf("room.New() error = %v", err)
	}
	for _, p := range players {
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

func TestChooseMovePrefersCapture(t *testing.T) {
	snap := playingRoom(t, "bot:ember", "bo", "cy", "dev")
	// Token 0 captures blue on cell 4; token 1 merely advances further.
	snap.Positions[board.Red] = rules.Tokens{2, 30, 0, 0}
	snap.Positions[board.Blue] = rules.Tokens{44, 0, 0, 0}

	e := testEngine(t, memory.New(), dice.Fixed(3))
	token, ok := e.ChooseMove(snap, "bot:ember", 3)
	if !ok || token != 0 {
		t.Fatalf("ChooseMove() = %d, %v, want 0, true", token, ok)
	}
}

func TestChooseMovePrefersExactFinish(t *testing.T) {
	snap := playingRoom(t, "bot:ember", "bo", "cy", "dev")
	snap.Positions[board.Red] = rules.Tokens{54, 10, 0, 0}

	e := testEngine(t, memory.New(), dice.Fixed(3))
	token, ok := e.ChooseMove(snap, "bot:ember", 3)
	if !ok || token != 0 {
		t.Fatalf("ChooseMove() = %d, %v, want 0, true", token, ok)
	}
}

func TestChooseMovePrefersHomeExitOnSix(t *testing.T) {
	snap := playingRoom(t, "bot:ember", "bo", "cy", "dev")
	snap.Positions[board.Red] = rules.Tokens{0, 10, 0, 0}

	e := testEngine(t, memory.New(), dice.Fixed(6))
	token, ok := e.ChooseMove(snap, "bot:ember", 6)
	if !ok || token != 0 {
		t.Fatalf("ChooseMove() = %d, %v, want 0, true", token, ok)
	}
}

func TestChooseMovePrefersSafeCoordinate(t *testing.T) {
	snap := playingRoom(t, "bot:ember", "bo", "cy", "dev")
	// Token 0 lands the safe cell 8; token 1 advances further but exposed.
	snap.Positions[board.Red] = rules.Tokens{6, 20, 0, 0}

	e := testEngine(t, memory.New(), dice.Fixed(3))
	token, ok := e.ChooseMove(snap, "bot:ember", 3)
	if !ok || token != 0 {
		t.Fatalf("ChooseMove() = %d, %v, want 0, true", token, ok)
	}
}

func TestChooseMoveFallsBackToGreatestIndex(t *testing.T) {
	snap := playingRoom(t, "bot:ember", "bo", "cy", "dev")
	snap.Positions[board.Red] = rules.Tokens{5, 20, 0, 0}

	e := testEngine(t, memory.New(), dice.Fixed(3))
	token, ok := e.ChooseMove(snap, "bot:ember", 3)
	if !ok || token != 1 {
		t.Fatalf("ChooseMove() = %d, %v, want 1, true", token, ok)
	}
}

func TestChooseMoveNoLegalMove(t *testing.T) {
	snap := playingRoom(t, "bot:ember", "bo", "cy", "dev")
	// All tokens home, die is not a six.
	e := testEngine(t, memory.New(), dice.Fixed(3))
	if _, ok := e.ChooseMove(snap, "bot:ember", 3); ok {
		t.Fatalf("ChooseMove() ok = true, want false")
	}
}

// Walks one full bot turn through the three sub-states, checking each Step
// commits exactly one transition.
func TestStepAdvancesOneSubStatePerInvocation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	snap := playingRoom(t, "bot:ember", "bo")
	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	e := testEngine(t, store, dice.Fixed(6))

	if err := e.Step(ctx, "r1", "bot:ember", room.DiceWaiting); err != nil {
		t.Fatalf("Step(waiting) error = %v", err)
	}
	got, _ := store.Get(ctx, "r1")
	if got.DiceState != room.DiceRolling || got.DiceResult != 6 {
		t.Fatalf("after roll: state=%v result=%d, want %v/6", got.DiceState, got.DiceResult, room.DiceRolling)
	}

	if err := e.Step(ctx, "r1", "bot:ember", room.DiceRolling); err != nil {
		t.Fatalf("Step(rolling) error = %v", err)
	}
	got, _ = store.Get(ctx, "r1")
	if got.DiceState != room.DiceComplete || got.PendingSteps["bot:ember"] != 6 {
		t.Fatalf("after resolve: state=%v pending=%v", got.DiceState, got.PendingSteps)
	}

	if err := e.Step(ctx, "r1", "bot:ember", room.DiceComplete); err != nil {
		t.Fatalf("Step(complete) error = %v", err)
	}
	got, _ = store.Get(ctx, "r1")
	if got.Positions[board.Red][0] != 1 {
		t.Fatalf("token index = %d, want 1", got.Positions[board.Red][0])
	}
	if got.Turn != "bot:ember" || got.DiceState != room.DiceWaiting {
		t.Fatalf("after six: turn=%q state=%v, want bot:ember/%v", got.Turn, got.DiceState, room.DiceWaiting)
	}
}

// A Step invoked for a sub-state the room has already left must change
// nothing, which makes at-least-once feed delivery safe.
func TestStepAbandonsStaleExpectation(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	snap := playingRoom(t, "bot:ember", "bo")
	if err := store.Create(ctx, snap); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	e := testEngine(t, store, dice.Fixed(6))

	if err := e.Step(ctx, "r1", "bot:ember", room.DiceWaiting); err != nil {
		t.Fatalf("Step(waiting) error = %v", err)
	}
	before, _ := store.Get(ctx, "r1")

	// Re-delivery of the event that triggered the first step.
	if err := e.Step(ctx, "r1", "bot:ember", room.DiceWaiting); err != nil {
		t.Fatalf("stale Step() error = %v", err)
	}
	after, _ := store.Get(ctx, "r1")
	if after.DiceState != before.DiceState || after.DiceResult != before.DiceResult {
		t.Fatalf("stale step mutated the room: %v/%d -> %v/%d",
			before.DiceState, before.DiceResult, after.DiceState, after.DiceResult)
	}

	// Wrong expected owner is abandoned too.
	if err := e.Step(ctx, "r1", "bo", room.DiceRolling); err != nil {
		t.Fatalf("wrong-owner Step() error = %v", err)
	}
	after, _ = store.Get(ctx, "r1")
	if after.DiceState != room.DiceRolling {
		t.Fatalf("wrong-owner step mutated the room: state=%v", after.DiceState)
	}
}

func TestStepMissingRoomIsNoError(t *testing.T) {
	e := testEngine(t, memory.New(), dice.Fixed(1))
	if err := e.Step(context.Background(), "ghost", "bot:ember", room.DiceWaiting); err != nil {
		t.Fatalf("Step() on a missing room error = %v", err)
	}
}
