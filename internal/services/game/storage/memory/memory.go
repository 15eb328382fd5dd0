// Package memory provides an in-memory room store with a change feed.
//
// It backs tests and single-process runs; the sqlite store is the durable
// implementation of the same contract.
package memory

import (
	"context"
	"sync"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

// Store keeps room snapshots in a map guarded by a mutex. The mutex makes
// ConditionalUpdate's compare and swap atomic. Cancelled contexts are
// rejected up front, matching the durable store.
type Store struct {
	mu     sync.Mutex
	rooms  map[string]room.Snapshot
	subs   map[int]chan storage.Change
	nextID int
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		rooms: map[string]room.Snapshot{},
		subs:  map[int]chan storage.Change{},
	}
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, roomID string) (room.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return room.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.rooms[roomID]
	if !ok {
		return room.Snapshot{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}
	return snap.Clone(), nil
}

// Create implements storage.Store.
func (s *Store) Create(ctx context.Context, snap room.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[snap.RoomID]; ok {
		return apperrors.New(apperrors.CodeAlreadyExists, "room already exists")
	}
	s.rooms[snap.RoomID] = snap.Clone()
	return nil
}

// ConditionalUpdate implements storage.Store. The compare and the swap
// happen under one lock, so at most one writer per precondition wins.
func (s *Store) ConditionalUpdate(ctx context.Context, roomID string, pre storage.Precondition, next room.Snapshot) (room.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return room.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.rooms[roomID]
	if !ok {
		return room.Snapshot{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}
	if old.Turn != pre.Turn || old.DiceState != pre.DiceState {
		return room.Snapshot{}, apperrors.New(apperrors.CodeStaleWrite, "room changed since it was read")
	}
	s.rooms[roomID] = next.Clone()
	s.publish(storage.Change{Old: old.Clone(), New: next.Clone()})
	return next.Clone(), nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}
	delete(s.rooms, roomID)
	return nil
}

// Subscribe implements storage.Feed.
func (s *Store) Subscribe(ctx context.Context) (<-chan storage.Change, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan storage.Change, 64)
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

// publish delivers a change to every subscriber. Slow subscribers drop
// changes rather than block the writer; the feed is at-least-once only for
// consumers that keep up, which the supervisor compensates for by
// re-reading the freshest snapshot on every event.
func (s *Store) publish(change storage.Change) {
	for _, ch := range s.subs {
		select {
		case ch <- change:
		default:
		}
	}
}
