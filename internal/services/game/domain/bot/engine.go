package bot

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/board"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/dice"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/rules"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

// Delays paces the engine so bot turns read like a human playing. Each
// delay is jittered by up to ±25%.
type Delays struct {
	// Roll precedes drawing a die in the waiting sub-state.
	Roll time.Duration
	// Resolve precedes settling a drawn die in the rolling sub-state.
	Resolve time.Duration
	// Move precedes playing the banked die in the complete sub-state.
	Move time.Duration
}

// DefaultDelays are the production pacing values.
func DefaultDelays() Delays {
	return Delays{
		Roll:    800 * time.Millisecond,
		Resolve: 1200 * time.Millisecond,
		Move:    600 * time.Millisecond,
	}
}

// Engine advances a room by one dice sub-state per invocation on behalf of
// a synthetic player or a disconnected human.
//
// The engine never trusts the snapshot it was invoked for: after its pacing
// delay it re-reads the room and silently abandons the step if the turn or
// sub-state moved on. The store's conditional write catches the remaining
// race window.
type Engine struct {
	store  storage.Store
	roller dice.Roller
	delays Delays
	logger *log.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewEngine returns an engine committing through the given store.
func NewEngine(store storage.Store, roller dice.Roller, delays Delays, seed int64, logger *log.Logger) *Engine {
	return &Engine{
		store:  store,
		roller: roller,
		delays: delays,
		logger: logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Step performs one sub-state action for the expected turn owner.
//
// expectTurn and expectState are the values the caller observed; if the
// freshest snapshot no longer matches them the step is a no-op. Returning
// nil covers both the committed and the abandoned outcome, so re-invoking
// Step on an unchanged room is safe.
func (e *Engine) Step(ctx context.Context, roomID, expectTurn string, expectState room.DiceState) error {
	if err := e.pause(ctx, e.delayFor(expectState)); err != nil {
		return err
	}

	snap, err := e.store.Get(ctx, roomID)
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeRoomNotFound {
			return nil
		}
		return err
	}
	if snap.GameState != room.StatePlaying || snap.Turn != expectTurn || snap.DiceState != expectState {
		return nil
	}

	now := time.Now()
	var next room.Snapshot
	switch snap.DiceState {
	case room.DiceWaiting:
		next, err = snap.Roll(snap.Turn, e.roller.Roll(), now)
	case room.DiceRolling:
		next, err = snap.ResolveRoll(snap.Turn, now)
	case room.DiceComplete:
		next, err = e.move(snap, now)
	default:
		return nil
	}
	if err != nil {
		return err
	}

	_, err = e.store.ConditionalUpdate(ctx, roomID, storage.PreconditionOf(snap), next)
	if apperrors.CodeOf(err) == apperrors.CodeStaleWrite {
		// Another writer won the race; the next feed event re-invokes us
		// if the seat still needs play.
		return nil
	}
	if err != nil {
		e.logger.Printf("bot step for room %s failed: %v", roomID, err)
		return err
	}
	return nil
}

// move plays the banked die on the best token per the move priority.
func (e *Engine) move(snap room.Snapshot, now time.Time) (room.Snapshot, error) {
	die := snap.PendingSteps[snap.Turn]
	token, ok := e.ChooseMove(snap, snap.Turn, die)
	if !ok {
		// A banked die always has a legal move, but passing mirrors the
		// human no-move path if that ever breaks.
		return snap.Pass(snap.Turn, now)
	}
	return snap.Move(snap.Turn, token, now)
}

// Move priority ranks, highest first.
const (
	rankCapture = 4
	rankFinish  = 3
	rankExit    = 2
	rankSafe    = 1
	rankAdvance = 0
)

// ChooseMove picks the best legal token for the die value. Priority, first
// match wins: capture an opponent, land exactly on the final index, exit
// the home yard, land on a safe coordinate, else the greatest resulting
// index. Ties break by a small random jitter.
func (e *Engine) ChooseMove(snap room.Snapshot, player string, die int) (int, bool) {
	color, ok := snap.ColorOf(player)
	if !ok {
		return 0, false
	}
	layout := snap.Layout()
	tokens := snap.Positions[color]

	best := -1
	bestScore := 0.0
	for _, token := range snap.LegalMoves(player, die) {
		result, err := rules.ResolveMove(layout, snap.Positions, color, token, die, snap.Mode.Team())
		if err != nil {
			continue
		}
		rank := rankAdvance
		switch {
		case len(result.Captures) > 0:
			rank = rankCapture
		case result.ExactFinish:
			rank = rankFinish
		case tokens[token] == 0:
			rank = rankExit
		case onSafeCoord(layout, color, result.NewIndex):
			rank = rankSafe
		}
		score := float64(rank)*1000 + float64(result.NewIndex) + e.jitterValue()
		if best == -1 || score > bestScore {
			best = token
			bestScore = score
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

func onSafeCoord(layout board.Layout, color board.Color, index int) bool {
	coord, err := layout.CoordOf(color, index)
	if err != nil {
		return false
	}
	return coord.OnRing && layout.Safe(coord.Cell)
}

// pause sleeps for the jittered delay, honoring cancellation.
func (e *Engine) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(e.jitterDuration(d))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Engine) delayFor(state room.DiceState) time.Duration {
	switch state {
	case room.DiceWaiting:
		return e.delays.Roll
	case room.DiceRolling:
		return e.delays.Resolve
	case room.DiceComplete:
		return e.delays.Move
	}
	return 0
}

// jitterDuration spreads a delay across ±25% of its nominal value.
func (e *Engine) jitterDuration(d time.Duration) time.Duration {
	e.mu.Lock()
	f := 0.75 + e.rng.Float64()*0.5
	e.mu.Unlock()
	return time.Duration(float64(d) * f)
}

// jitterValue breaks scoring ties without disturbing the rank ordering.
func (e *Engine) jitterValue() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rng.Float64() * 0.5
}
