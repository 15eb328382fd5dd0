package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/corvid-games/tokenrace/internal/services/game/storage"
)

// Subscribe implements storage.Feed by tailing the room_changes outbox.
//
// A subscriber starts at the current high-water mark and polls for rows
// past it, so it sees every change committed after subscription at least
// once. Rows are delivered in commit order.
func (s *Store) Subscribe(ctx context.Context) (<-chan storage.Change, error) {
	watermark, err := s.currentWatermark(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan storage.Change, 64)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			next, changes, err := s.changesSince(ctx, watermark)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				continue
			}
			for _, change := range changes {
				select {
				case <-ctx.Done():
					return
				case ch <- change:
				}
			}
			watermark = next
		}
	}()
	return ch, nil
}

func (s *Store) currentWatermark(ctx context.Context) (int64, error) {
	row := s.sqlDB.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM room_changes`)
	var watermark int64
	if err := row.Scan(&watermark); err != nil {
		return 0, fmt.Errorf("read change watermark: %w", err)
	}
	return watermark, nil
}

func (s *Store) changesSince(ctx context.Context, watermark int64) (int64, []storage.Change, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT seq, old_snapshot_json, new_snapshot_json
		   FROM room_changes
		  WHERE seq > ?
		  ORDER BY seq ASC`,
		watermark,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return watermark, nil, nil
		}
		return watermark, nil, fmt.Errorf("read room changes: %w", err)
	}
	defer rows.Close()

	next := watermark
	var changes []storage.Change
	for rows.Next() {
		var seq int64
		var oldRaw, newRaw string
		if err := rows.Scan(&seq, &oldRaw, &newRaw); err != nil {
			return watermark, nil, fmt.Errorf("read room changes: %w", err)
		}
		oldSnap, err := decodeSnapshot(oldRaw)
		if err != nil {
			return watermark, nil, err
		}
		newSnap, err := decodeSnapshot(newRaw)
		if err != nil {
			return watermark, nil, err
		}
		changes = append(changes, storage.Change{Old: oldSnap, New: newSnap})
		next = seq
	}
	if err := rows.Err(); err != nil {
		return watermark, nil, fmt.Errorf("read room changes: %w", err)
	}
	return next, changes, nil
}

var _ storage.Feed = (*Store)(nil)
