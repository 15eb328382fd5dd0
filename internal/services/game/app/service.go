// Package app exposes the human-facing room operations. Each operation
// reads the freshest snapshot, applies a pure transition, and commits it
// with the snapshot it read as the write precondition. A lost race surfaces
// as a retryable conflict; the caller re-reads and tries again.
package app

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/bot"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/dice"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

// Presence receives connect and disconnect signals for seated humans.
// The supervisor's disconnect tracker implements it.
type Presence interface {
	OnDisconnect(ctx context.Context, roomID, player string) error
	OnReconnect(ctx context.Context, roomID, player string) error
}

// Service carries the human path of every room operation.
type Service struct {
	store    storage.Store
	roller   dice.Roller
	presence Presence
	logger   *log.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService wires the human path over a store.
func NewService(store storage.Store, roller dice.Roller, presence Presence, seed int64, logger *log.Logger) *Service {
	return &Service{
		store:    store,
		roller:   roller,
		presence: presence,
		logger:   logger,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// CreateRoom registers a room with the host seated. Solo rooms fill the
// remaining seats from the bot catalog and start immediately; other modes
// wait for players and an explicit start.
func (s *Service) CreateRoom(ctx context.Context, mode room.Mode, seatCount int, host string) (room.Snapshot, error) {
	now := time.Now()
	snap, err := room.New(uuid.NewString(), mode, seatCount, now)
	if err != nil {
		return room.Snapshot{}, err
	}
	snap, err = snap.Join(host, now)
	if err != nil {
		return room.Snapshot{}, err
	}

	if mode != room.ModeSolo {
		if err := s.store.Create(ctx, snap); err != nil {
			return room.Snapshot{}, err
		}
		return snap, nil
	}

	s.mu.Lock()
	fillers := bot.PickIdentities(s.rng, seatCount-1)
	s.mu.Unlock()
	for _, id := range fillers {
		snap, err = snap.Join(id, now)
		if err != nil {
			return room.Snapshot{}, err
		}
	}
	if err := s.store.Create(ctx, snap); err != nil {
		return room.Snapshot{}, err
	}
	// Starting through a conditional write puts the playing transition on
	// the change feed, which arms the supervisor.
	started, err := snap.Start(now)
	if err != nil {
		return room.Snapshot{}, err
	}
	return s.store.ConditionalUpdate(ctx, snap.RoomID, storage.PreconditionOf(snap), started)
}

// JoinRoom seats a player in a waiting room.
func (s *Service) JoinRoom(ctx context.Context, roomID, player string) (room.Snapshot, error) {
	return s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
		return snap.Join(player, time.Now())
	})
}

// StartRoom moves a fully seated room into play. Only a seated player may
// start it.
func (s *Service) StartRoom(ctx context.Context, roomID, player string) (room.Snapshot, error) {
	return s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
		if _, ok := snap.ColorOf(player); !ok {
			return room.Snapshot{}, apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
		}
		return snap.Start(time.Now())
	})
}

// GetRoom returns the current snapshot.
func (s *Service) GetRoom(ctx context.Context, roomID string) (room.Snapshot, error) {
	return s.store.Get(ctx, roomID)
}

// Roll draws a die for the turn owner.
func (s *Service) Roll(ctx context.Context, roomID, player string) (room.Snapshot, error) {
	return s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
		return snap.Roll(player, s.roller.Roll(), time.Now())
	})
}

// CompleteRoll settles the drawn die: it banks the value when a legal move
// exists, otherwise passes the turn.
func (s *Service) CompleteRoll(ctx context.Context, roomID, player string) (room.Snapshot, error) {
	return s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
		return snap.ResolveRoll(player, time.Now())
	})
}

// Move plays the banked die on one of the owner's tokens.
func (s *Service) Move(ctx context.Context, roomID, player string, token int) (room.Snapshot, error) {
	return s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
		return snap.Move(player, token, time.Now())
	})
}

// LeaveRoom removes a player for good. During play it is a forfeit; the
// room is deleted once no humans remain in it. On a finished room the
// departure is recorded so the other humans can still fetch the result,
// and the last one out deletes the room.
func (s *Service) LeaveRoom(ctx context.Context, roomID, player string) error {
	current, err := s.store.Get(ctx, roomID)
	if err != nil {
		return err
	}
	if _, ok := current.ColorOf(player); !ok {
		return apperrors.New(apperrors.CodePlayerNotSeated, "player holds no seat in this room")
	}
	if current.GameState == room.StateFinished {
		snap, err := s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
			return snap.Depart(player, time.Now())
		})
		if err != nil {
			return err
		}
		if s.humansPresent(snap) == 0 {
			return s.store.Delete(ctx, roomID)
		}
		return nil
	}

	snap, err := s.transition(ctx, roomID, func(snap room.Snapshot) (room.Snapshot, error) {
		return snap.Escape(player, time.Now())
	})
	if err != nil {
		return err
	}
	if s.humansRemaining(snap) == 0 {
		if err := s.store.Delete(ctx, roomID); err != nil {
			s.logger.Printf("delete abandoned room %s: %v", roomID, err)
		}
	}
	return nil
}

// Disconnect reports a seated human as absent.
func (s *Service) Disconnect(ctx context.Context, roomID, player string) error {
	return s.presence.OnDisconnect(ctx, roomID, player)
}

// Reconnect reports an absent human as back.
func (s *Service) Reconnect(ctx context.Context, roomID, player string) error {
	return s.presence.OnReconnect(ctx, roomID, player)
}

// humansPresent counts seated humans who have neither departed the
// finished room nor escaped during play.
func (s *Service) humansPresent(snap room.Snapshot) int {
	count := 0
	for player := range snap.SeatColors {
		if bot.IsBot(player) {
			continue
		}
		if snap.Departed[player] || snap.Escaped[player] || snap.Kicked[player] {
			continue
		}
		count++
	}
	return count
}

// humansRemaining counts seated humans who have not escaped.
func (s *Service) humansRemaining(snap room.Snapshot) int {
	count := 0
	for player := range snap.SeatColors {
		if bot.IsBot(player) {
			continue
		}
		if snap.Escaped[player] || snap.Kicked[player] {
			continue
		}
		count++
	}
	return count
}

// transition applies one pure transition against the freshest snapshot and
// commits it conditionally. Conflicts surface to the caller as retryable.
func (s *Service) transition(ctx context.Context, roomID string, fn func(room.Snapshot) (room.Snapshot, error)) (room.Snapshot, error) {
	snap, err := s.store.Get(ctx, roomID)
	if err != nil {
		return room.Snapshot{}, err
	}
	next, err := fn(snap)
	if err != nil {
		return room.Snapshot{}, err
	}
	return s.store.ConditionalUpdate(ctx, roomID, storage.PreconditionOf(snap), next)
}
