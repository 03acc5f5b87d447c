package sqlite

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pokepi/pokepi-server/internal/domain"
)

// ToggleFavorite flips the mark for (userID, pokemonID) in one transaction
// and returns the new state.
func (s *Store) ToggleFavorite(ctx context.Context, userID string, pokemonID int, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_favorites WHERE user_id = ? AND pokemon_id = ?`, userID, pokemonID)
	if err != nil {
		return false, fmt.Errorf("delete favorite: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	if removed == 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_favorites (user_id, pokemon_id, added_at) VALUES (?, ?, ?)`,
			userID, pokemonID, formatTime(now)); err != nil {
			return false, fmt.Errorf("insert favorite: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return removed == 0, nil
}

// IsFavorite reports whether the user has marked the item.
func (s *Store) IsFavorite(ctx context.Context, userID string, pokemonID int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM user_favorites WHERE user_id = ? AND pokemon_id = ?)`,
		userID, pokemonID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("is favorite: %w", err)
	}
	return exists, nil
}

// CountFavorites counts the user's marks.
func (s *Store) CountFavorites(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_favorites WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count favorites: %w", err)
	}
	return n, nil
}

// CountCachedFavorites counts the user's marks whose item is in the cache.
func (s *Store) CountCachedFavorites(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM user_favorites f
		JOIN pokemon p ON p.id = f.pokemon_id
		WHERE f.user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count cached favorites: %w", err)
	}
	return n, nil
}

// ListFavorites returns the user's favorite items that are present in the
// cache, most recently added first.
func (s *Store) ListFavorites(ctx context.Context, userID string, limit, offset int) ([]domain.Pokemon, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.height, p.weight, p.base_experience, p.sprites, p.abilities,
			p.stats, p.types, p.view_count, p.first_seen_at
		FROM user_favorites f
		JOIN pokemon p ON p.id = f.pokemon_id
		WHERE f.user_id = ?
		ORDER BY f.added_at DESC, p.id ASC
		LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	items, err := scanPokemonRows(rows)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].IsFavorite = true
	}
	return items, nil
}

// FavoriteSet returns which of ids the user has marked.
func (s *Store) FavoriteSet(ctx context.Context, userID string, ids []int) (map[int]bool, error) {
	out := make(map[int]bool, len(ids))
	if len(ids) == 0 || userID == "" {
		return out, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT pokemon_id FROM user_favorites WHERE user_id = ? AND pokemon_id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("favorite set: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}
