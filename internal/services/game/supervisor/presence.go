package supervisor

import (
	"context"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

// commitRetries bounds how often a presence write re-reads after losing a
// conditional-write race. Presence changes commute with gameplay writes,
// so a retry on the fresh snapshot is safe.
const commitRetries = 3

// OnDisconnect marks a seated human absent and arms the grace timer. The
// supervisor plays their turns through the bot engine until they return or
// the window expires.
func (m *Manager) OnDisconnect(ctx context.Context, roomID, player string) error {
	if _, err := m.commit(ctx, roomID, func(s room.Snapshot) (room.Snapshot, error) {
		return s.Disconnect(player, time.Now())
	}); err != nil {
		return err
	}
	// The feed event for this write re-invokes the bot if the absent
	// player held the turn.
	m.armGraceTimer(roomID, player)
	return nil
}

// OnReconnect clears a player's absence and cancels the grace timer. A
// player who already escaped is rejected.
func (m *Manager) OnReconnect(ctx context.Context, roomID, player string) error {
	if _, err := m.commit(ctx, roomID, func(s room.Snapshot) (room.Snapshot, error) {
		return s.Reconnect(player, time.Now())
	}); err != nil {
		return err
	}
	m.cancelGraceTimer(roomID, player)
	return nil
}

// armGraceTimer replaces any pending forfeit timer for the player. The
// callback runs on the manager's base context; the request context that
// reported the disconnect is long gone by the time the window expires.
func (m *Manager) armGraceTimer(roomID, player string) {
	key := roomID + "|" + player
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.graces[key]; ok {
		existing.Stop()
	}
	m.graces[key] = time.AfterFunc(m.cfg.GraceWindow, func() {
		m.onGraceExpired(m.timerCtx(), roomID, player)
	})
}

func (m *Manager) cancelGraceTimer(roomID, player string) {
	key := roomID + "|" + player
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.graces[key]; ok {
		existing.Stop()
		delete(m.graces, key)
	}
}

// onGraceExpired converts an unresolved absence into a permanent forfeit.
func (m *Manager) onGraceExpired(ctx context.Context, roomID, player string) {
	m.cancelGraceTimer(roomID, player)

	snap, err := m.store.Get(ctx, roomID)
	if err != nil {
		return
	}
	if snap.GameState != room.StatePlaying || !snap.Disconnected[player] {
		return
	}
	if _, err := m.commit(ctx, roomID, func(s room.Snapshot) (room.Snapshot, error) {
		if !s.Disconnected[player] {
			return room.Snapshot{}, apperrors.New(apperrors.CodeInvalidGameState, "player reconnected")
		}
		return s.Escape(player, time.Now())
	}); err != nil && apperrors.CodeOf(err) != apperrors.CodeInvalidGameState {
		m.logger.Printf("grace forfeit for %s in room %s failed: %v", player, roomID, err)
	}
}

// commit runs a transition against the freshest snapshot and writes it
// conditionally, re-reading on a lost race.
func (m *Manager) commit(ctx context.Context, roomID string, fn func(room.Snapshot) (room.Snapshot, error)) (room.Snapshot, error) {
	var lastErr error
	for attempt := 0; attempt < commitRetries; attempt++ {
		snap, err := m.store.Get(ctx, roomID)
		if err != nil {
			return room.Snapshot{}, err
		}
		next, err := fn(snap)
		if err != nil {
			return room.Snapshot{}, err
		}
		committed, err := m.store.ConditionalUpdate(ctx, roomID, storage.PreconditionOf(snap), next)
		if err == nil {
			return committed, nil
		}
		if apperrors.CodeOf(err) != apperrors.CodeStaleWrite {
			return room.Snapshot{}, err
		}
		lastErr = err
	}
	return room.Snapshot{}, lastErr
}
