package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/store"
)

// EnsureStats creates the singleton stats row if it does not exist.
func (s *Store) EnsureStats(ctx context.Context, now time.Time) error {
	ts := formatTime(now)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO catalog_stats (id, last_active_at, created_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO NOTHING`, ts, ts)
	if err != nil {
		return fmt.Errorf("ensure stats: %w", err)
	}
	return nil
}

// GetStats returns the stats row, or store.ErrNotFound before EnsureStats.
func (s *Store) GetStats(ctx context.Context) (*domain.CatalogStats, error) {
	var (
		st                  domain.CatalogStats
		lastActive, created string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT total_seen, total_favorites, total_time_spent_ms, last_active_at, created_at
		FROM catalog_stats WHERE id = 1`).
		Scan(&st.TotalSeen, &st.TotalFavorites, &st.TotalTimeSpentMs, &lastActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stats: %w", err)
	}
	if st.LastActiveAt, err = parseTime(lastActive); err != nil {
		return nil, fmt.Errorf("parse last_active_at: %w", err)
	}
	if st.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &st, nil
}

// SetSeenCount overwrites the seen counter.
func (s *Store) SetSeenCount(ctx context.Context, seen int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE catalog_stats SET total_seen = ? WHERE id = 1`, seen); err != nil {
		return fmt.Errorf("set seen count: %w", err)
	}
	return nil
}

// SetCounts overwrites both derived counters.
func (s *Store) SetCounts(ctx context.Context, seen, favorites int) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE catalog_stats SET total_seen = ?, total_favorites = ? WHERE id = 1`,
		seen, favorites); err != nil {
		return fmt.Errorf("set counts: %w", err)
	}
	return nil
}

// AddTimeSpent adds deltaMs to the cumulative time and stamps last activity.
func (s *Store) AddTimeSpent(ctx context.Context, deltaMs int64, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE catalog_stats
		SET total_time_spent_ms = total_time_spent_ms + ?, last_active_at = ?
		WHERE id = 1`, deltaMs, formatTime(now)); err != nil {
		return fmt.Errorf("add time spent: %w", err)
	}
	return nil
}
