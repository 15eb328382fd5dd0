// Package sqlite provides the SQLite-backed room store.
//
// The conditional update runs as a single UPDATE whose WHERE clause carries
// the writer's precondition, so the compare and the swap are one atomic
// statement. Every committed update also appends an outbox row to
// room_changes inside the same transaction; the change feed tails that
// table with a watermark.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/corvid-games/tokenrace/internal/platform/errors"
	sqlitemigrate "github.com/corvid-games/tokenrace/internal/platform/storage/sqlitemigrate"
	"github.com/corvid-games/tokenrace/internal/services/game/domain/room"
	"github.com/corvid-games/tokenrace/internal/services/game/storage"
	"github.com/corvid-games/tokenrace/internal/services/game/storage/sqlite/migrations"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// defaultPollInterval paces the change-feed tail when no interval is
// configured.
const defaultPollInterval = 250 * time.Millisecond

// Store persists room snapshots in SQLite.
type Store struct {
	sqlDB        *sql.DB
	pollInterval time.Duration
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens a SQLite room store and applies embedded migrations. A zero
// pollInterval uses the default feed pacing.
func Open(path string, pollInterval time.Duration) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB, pollInterval: pollInterval}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get implements storage.Store.
func (s *Store) Get(ctx context.Context, roomID string) (room.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return room.Snapshot{}, err
	}
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return room.Snapshot{}, apperrors.New(apperrors.CodeRoomNotFound, "room id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT snapshot_json FROM rooms WHERE room_id = ?`, roomID)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Snapshot{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
		}
		return room.Snapshot{}, fmt.Errorf("get room: %w", err)
	}
	return decodeSnapshot(raw)
}

// Create implements storage.Store.
func (s *Store) Create(ctx context.Context, snap room.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO rooms (room_id, turn, dice_state, snapshot_json, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snap.RoomID,
		snap.Turn,
		string(snap.DiceState),
		raw,
		toMillis(snap.UpdatedAt),
	)
	if err != nil {
		if isRoomUniqueViolation(err) {
			return apperrors.New(apperrors.CodeAlreadyExists, "room already exists")
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// ConditionalUpdate implements storage.Store. The precondition rides in the
// UPDATE's WHERE clause; zero affected rows means the writer lost the race
// or the room is gone.
func (s *Store) ConditionalUpdate(ctx context.Context, roomID string, pre storage.Precondition, next room.Snapshot) (room.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return room.Snapshot{}, err
	}
	raw, err := encodeSnapshot(next)
	if err != nil {
		return room.Snapshot{}, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("begin conditional update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldRaw string
	row := tx.QueryRowContext(ctx,
		`SELECT snapshot_json FROM rooms WHERE room_id = ?`, roomID)
	if err := row.Scan(&oldRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return room.Snapshot{}, apperrors.New(apperrors.CodeRoomNotFound, "room not found")
		}
		return room.Snapshot{}, fmt.Errorf("read room for update: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE rooms
		    SET turn = ?, dice_state = ?, snapshot_json = ?, updated_at = ?
		  WHERE room_id = ? AND turn = ? AND dice_state = ?`,
		next.Turn,
		string(next.DiceState),
		raw,
		toMillis(next.UpdatedAt),
		roomID,
		pre.Turn,
		string(pre.DiceState),
	)
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("conditional update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return room.Snapshot{}, fmt.Errorf("conditional update rows: %w", err)
	}
	if affected == 0 {
		return room.Snapshot{}, apperrors.New(apperrors.CodeStaleWrite, "room changed since it was read")
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO room_changes (room_id, old_snapshot_json, new_snapshot_json, created_at)
		 VALUES (?, ?, ?, ?)`,
		roomID,
		oldRaw,
		raw,
		toMillis(time.Now()),
	); err != nil {
		return room.Snapshot{}, fmt.Errorf("append room change: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return room.Snapshot{}, fmt.Errorf("commit conditional update: %w", err)
	}
	return next.Clone(), nil
}

// Delete implements storage.Store.
func (s *Store) Delete(ctx context.Context, roomID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = ?`, roomID)
	if err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete room rows: %w", err)
	}
	if affected == 0 {
		return apperrors.New(apperrors.CodeRoomNotFound, "room not found")
	}
	return nil
}

func encodeSnapshot(snap room.Snapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode room snapshot: %w", err)
	}
	return string(raw), nil
}

func decodeSnapshot(raw string) (room.Snapshot, error) {
	var snap room.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return room.Snapshot{}, fmt.Errorf("decode room snapshot: %w", err)
	}
	return snap, nil
}

func isRoomUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint failed") &&
		strings.Contains(message, "rooms.room_id")
}

var _ storage.Store = (*Store)(nil)
