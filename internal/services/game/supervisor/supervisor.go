// Package supervisor keeps every room progressing regardless of who holds
// the turn.
//
// A single Manager consumes the store's change feed. For each committed
// change it re-arms the room's turn timer, invokes the bot engine when the
// turn owner is synthetic or disconnected, and runs post-game settlement
// exactly once when a room finishes. Timers and reentrancy guards live in
// process-wide maps whose lifecycle is tied to the room's playing state;
// finishing a room tears all of them down deterministically.
package supervisor

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/bot"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

// Config holds the supervisor's wall-clock windows.
type Config struct {
	// TurnTimeout bounds how long a connected human may sit on the turn.
	TurnTimeout time.Duration
	// GraceWindow bounds how long a disconnected human may stay absent
	// before forfeiting.
	GraceWindow time.Duration
}

// DefaultConfig returns the production windows.
func DefaultConfig() Config {
	return Config{
		TurnTimeout: 20 * time.Second,
		GraceWindow: 30 * time.Second,
	}
}

// Settlement receives a finished room exactly once, after the processed
// flag is claimed. Implementations credit rewards and stats from the
// winners list.
type Settlement interface {
	Settle(ctx context.Context, snap room.Snapshot) error
}

// SettlementFunc adapts a function to the Settlement interface.
type SettlementFunc func(ctx context.Context, snap room.Snapshot) error

// Settle implements Settlement.
func (f SettlementFunc) Settle(ctx context.Context, snap room.Snapshot) error {
	return f(ctx, snap)
}

// Manager supervises all rooms visible on one change feed.
type Manager struct {
	store  storage.Store
	engine *bot.Engine
	settle Settlement
	cfg    Config
	logger *log.Logger

	mu sync.Mutex
	// baseCtx backs timer callbacks. Timers outlive the request that
	// armed them, so callbacks must not run on a caller's context; Run
	// swaps in the feed context so shutdown still cancels fired work.
	baseCtx context.Context
	timers  map[string]*turnTimer
	graces  map[string]*time.Timer
	// inflight guards one bot step per (room, turn, dice state).
	inflight map[string]bool
	// settled absorbs redelivered finish events for rooms this instance
	// already claimed.
	settled map[string]bool
	rng     *rand.Rand
}

type turnTimer struct {
	turn  string
	timer *time.Timer
}

// NewManager wires a supervisor over a store. Run must be called with the
// feed to supervise.
func NewManager(store storage.Store, engine *bot.Engine, settle Settlement, cfg Config, seed int64, logger *log.Logger) *Manager {
	return &Manager{
		store:    store,
		engine:   engine,
		settle:   settle,
		cfg:      cfg,
		logger:   logger,
		baseCtx:  context.Background(),
		timers:   map[string]*turnTimer{},
		graces:   map[string]*time.Timer{},
		inflight: map[string]bool{},
		settled:  map[string]bool{},
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// Run consumes the feed until ctx is cancelled. It returns after tearing
// down every timer it armed.
func (m *Manager) Run(ctx context.Context, feed storage.Feed) error {
	changes, err := feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.baseCtx = ctx
	m.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			m.teardownAll()
			return ctx.Err()
		case change, ok := <-changes:
			if !ok {
				m.teardownAll()
				return nil
			}
			m.handle(ctx, change)
		}
	}
}

// handle reacts to one committed room change.
func (m *Manager) handle(ctx context.Context, change storage.Change) {
	snap := change.New
	switch snap.GameState {
	case room.StateFinished:
		m.teardownRoom(snap.RoomID)
		m.runSettlement(ctx, snap)
		return
	case room.StatePlaying:
	default:
		return
	}

	m.armTurnTimer(snap)
	if m.needsBot(snap) {
		m.invokeBot(ctx, snap)
	}
}

// timerCtx returns the context timer callbacks run on.
func (m *Manager) timerCtx() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baseCtx
}

// needsBot reports whether the current turn owner cannot act for
// themselves.
func (m *Manager) needsBot(snap room.Snapshot) bool {
	if snap.Turn == "" {
		return false
	}
	return bot.IsBot(snap.Turn) || snap.Disconnected[snap.Turn]
}

// invokeBot schedules one engine step under the per-(room, turn, state)
// reentrancy guard, so at-least-once feed delivery cannot double-play a
// sub-state.
func (m *Manager) invokeBot(ctx context.Context, snap room.Snapshot) {
	key := snap.RoomID + "|" + snap.Turn + "|" + string(snap.DiceState)
	m.mu.Lock()
	if m.inflight[key] {
		m.mu.Unlock()
		return
	}
	m.inflight[key] = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			delete(m.inflight, key)
			m.mu.Unlock()
		}()
		if err := m.engine.Step(ctx, snap.RoomID, snap.Turn, snap.DiceState); err != nil && ctx.Err() == nil {
			m.logger.Printf("bot step failed for room %s: %v", snap.RoomID, err)
		}
	}()
}

// armTurnTimer starts or replaces the room's turn timer for the current
// owner.
func (m *Manager) armTurnTimer(snap room.Snapshot) {
	roomID, turn := snap.RoomID, snap.Turn
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.timers[roomID]; ok {
		existing.timer.Stop()
	}
	if turn == "" {
		delete(m.timers, roomID)
		return
	}
	m.timers[roomID] = &turnTimer{
		turn: turn,
		timer: time.AfterFunc(m.cfg.TurnTimeout, func() {
			m.onTurnTimeout(m.timerCtx(), roomID, turn)
		}),
	}
}

// onTurnTimeout fires when a turn owner sat on the turn for the whole
// window. Bots and disconnected humans take no penalty; the engine plays
// for them and this fire is a safety net that re-invokes it.
func (m *Manager) onTurnTimeout(ctx context.Context, roomID, turn string) {
	snap, err := m.store.Get(ctx, roomID)
	if err != nil {
		return
	}
	if snap.GameState != room.StatePlaying {
		return
	}
	if snap.Turn != turn {
		// The feed event that moved the turn may have been dropped, in
		// which case nothing else will arm a timer for the new owner.
		m.armTurnTimer(snap)
		if m.needsBot(snap) {
			m.invokeBot(ctx, snap)
		}
		return
	}
	if bot.IsBot(turn) || snap.Disconnected[turn] {
		m.invokeBot(ctx, snap)
		return
	}

	next, err := m.penalize(snap, turn)
	if err != nil {
		m.logger.Printf("timeout penalty for room %s failed: %v", roomID, err)
		return
	}
	if _, err := m.store.ConditionalUpdate(ctx, roomID, storage.PreconditionOf(snap), next); err != nil {
		// The owner acted while the penalty was being computed.
		if apperrors.CodeOf(err) != apperrors.CodeStaleWrite {
			m.logger.Printf("timeout commit for room %s failed: %v", roomID, err)
		}
	}
}

// penalize computes the full timeout transition: record the miss, then
// finish the turn on the owner's behalf. A banked die is spent on a
// uniformly random legal move, never the heuristic, and no bonus is
// retained. The sixth miss kicks the player instead.
func (m *Manager) penalize(snap room.Snapshot, turn string) (room.Snapshot, error) {
	now := time.Now()
	next, err := snap.RecordTimeoutMiss(turn, now)
	if err != nil {
		return room.Snapshot{}, err
	}
	if next.Escaped[turn] || next.GameState != room.StatePlaying {
		return next, nil
	}

	if next.DiceState == room.DiceRolling {
		next, err = next.ResolveRoll(turn, now)
		if err != nil {
			return room.Snapshot{}, err
		}
	}
	if next.Turn != turn {
		return next, nil
	}
	if next.DiceState == room.DiceComplete {
		die := next.PendingSteps[turn]
		legal := next.LegalMoves(turn, die)
		if len(legal) > 0 {
			m.mu.Lock()
			token := legal[m.rng.Intn(len(legal))]
			m.mu.Unlock()
			next, err = next.Move(turn, token, now)
			if err != nil {
				return room.Snapshot{}, err
			}
		}
	}
	if next.GameState == room.StatePlaying && next.Turn == turn {
		next, err = next.Pass(turn, now)
		if err != nil {
			return room.Snapshot{}, err
		}
	}
	return next, nil
}

// runSettlement claims the processed flag and invokes the settlement
// collaborator once. The flag is checked against the freshest snapshot and
// a local guard absorbs redelivered finish events, since marking a room
// processed moves neither the turn nor the dice state the write
// precondition covers.
func (m *Manager) runSettlement(ctx context.Context, snap room.Snapshot) {
	if m.settle == nil {
		return
	}
	m.mu.Lock()
	if m.settled[snap.RoomID] {
		m.mu.Unlock()
		return
	}
	m.settled[snap.RoomID] = true
	m.mu.Unlock()

	fresh, err := m.store.Get(ctx, snap.RoomID)
	if err != nil || fresh.Processed {
		return
	}
	next, err := fresh.MarkProcessed(time.Now())
	if err != nil {
		return
	}
	claimed, err := m.store.ConditionalUpdate(ctx, snap.RoomID, storage.PreconditionOf(fresh), next)
	if err != nil {
		return
	}
	if err := m.settle.Settle(ctx, claimed); err != nil {
		m.logger.Printf("settlement for room %s failed: %v", snap.RoomID, err)
	}
}

// teardownRoom releases the room's timers and guards.
func (m *Manager) teardownRoom(roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tt, ok := m.timers[roomID]; ok {
		tt.timer.Stop()
		delete(m.timers, roomID)
	}
	prefix := roomID + "|"
	for key, timer := range m.graces {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			timer.Stop()
			delete(m.graces, key)
		}
	}
	for key := range m.inflight {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(m.inflight, key)
		}
	}
}

func (m *Manager) teardownAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for roomID, tt := range m.timers {
		tt.timer.Stop()
		delete(m.timers, roomID)
	}
	for key, timer := range m.graces {
		timer.Stop()
		delete(m.graces, key)
	}
}
