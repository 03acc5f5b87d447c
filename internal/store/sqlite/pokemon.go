package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/store"
)

const pokemonColumns = `id, name, height, weight, base_experience, sprites, abilities, stats, types,
	view_count, first_seen_at`

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanPokemon(sc scanner) (*domain.Pokemon, error) {
	var (
		p         domain.Pokemon
		baseExp   sql.NullInt64
		sprites   string
		abilities string
		stats     string
		types     string
		firstSeen string
	)
	err := sc.Scan(&p.ID, &p.Name, &p.Height, &p.Weight, &baseExp,
		&sprites, &abilities, &stats, &types, &p.ViewCount, &firstSeen)
	if err != nil {
		return nil, err
	}

	if baseExp.Valid {
		v := int(baseExp.Int64)
		p.BaseExperience = &v
	}
	for _, col := range []struct {
		raw  string
		dest any
	}{
		{sprites, &p.Sprites},
		{abilities, &p.Abilities},
		{stats, &p.Stats},
		{types, &p.Types},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dest); err != nil {
			return nil, fmt.Errorf("decode pokemon %d: %w", p.ID, err)
		}
	}
	if p.FirstSeenAt, err = parseTime(firstSeen); err != nil {
		return nil, fmt.Errorf("decode pokemon %d first_seen_at: %w", p.ID, err)
	}
	return &p, nil
}

func scanPokemonRows(rows *sql.Rows) ([]domain.Pokemon, error) {
	defer rows.Close()

	var out []domain.Pokemon
	for rows.Next() {
		p, err := scanPokemon(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPokemon returns the cached item, or store.ErrNotFound.
func (s *Store) GetPokemon(ctx context.Context, id int) (*domain.Pokemon, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+pokemonColumns+` FROM pokemon WHERE id = ?`, id)
	p, err := scanPokemon(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pokemon %d: %w", id, err)
	}
	return p, nil
}

// ListPokemon returns the feed window ordered by id.
func (s *Store) ListPokemon(ctx context.Context, limit, offset int) ([]domain.Pokemon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pokemonColumns+` FROM pokemon ORDER BY id ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pokemon: %w", err)
	}
	return scanPokemonRows(rows)
}

// CountPokemon returns the number of cached items.
func (s *Store) CountPokemon(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pokemon`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pokemon: %w", err)
	}
	return n, nil
}

// SearchByName returns items whose name contains q (ASCII case-insensitive),
// ordered by id.
func (s *Store) SearchByName(ctx context.Context, q string, limit, offset int) ([]domain.Pokemon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pokemonColumns+` FROM pokemon WHERE name LIKE ? ESCAPE '\' ORDER BY id ASC LIMIT ? OFFSET ?`,
		likePattern(q), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search pokemon by name: %w", err)
	}
	return scanPokemonRows(rows)
}

// CountByName counts the SearchByName match set.
func (s *Store) CountByName(ctx context.Context, q string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pokemon WHERE name LIKE ? ESCAPE '\'`, likePattern(q)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pokemon by name: %w", err)
	}
	return n, nil
}

// SearchByType returns items whose serialized type list contains q,
// ordered by id.
func (s *Store) SearchByType(ctx context.Context, q string, limit, offset int) ([]domain.Pokemon, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pokemonColumns+` FROM pokemon WHERE type_names LIKE ? ESCAPE '\' ORDER BY id ASC LIMIT ? OFFSET ?`,
		likePattern(q), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("search pokemon by type: %w", err)
	}
	return scanPokemonRows(rows)
}

// CountByType counts the SearchByType match set.
func (s *Store) CountByType(ctx context.Context, q string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pokemon WHERE type_names LIKE ? ESCAPE '\'`, likePattern(q)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pokemon by type: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertPokemon(ctx context.Context, ex execer, p *domain.Pokemon) error {
	sprites, err := json.Marshal(p.Sprites)
	if err != nil {
		return fmt.Errorf("encode sprites: %w", err)
	}
	abilities, err := json.Marshal(nonNil(p.Abilities))
	if err != nil {
		return fmt.Errorf("encode abilities: %w", err)
	}
	stats, err := json.Marshal(nonNil(p.Stats))
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	types, err := json.Marshal(nonNil(p.Types))
	if err != nil {
		return fmt.Errorf("encode types: %w", err)
	}

	var baseExp sql.NullInt64
	if p.BaseExperience != nil {
		baseExp = sql.NullInt64{Int64: int64(*p.BaseExperience), Valid: true}
	}

	_, err = ex.ExecContext(ctx, `
		INSERT INTO pokemon (`+pokemonColumns+`, type_names)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			height = excluded.height,
			weight = excluded.weight,
			base_experience = excluded.base_experience,
			sprites = excluded.sprites,
			abilities = excluded.abilities,
			stats = excluded.stats,
			types = excluded.types,
			type_names = excluded.type_names,
			view_count = excluded.view_count,
			first_seen_at = excluded.first_seen_at`,
		p.ID, p.Name, p.Height, p.Weight, baseExp,
		string(sprites), string(abilities), string(stats), string(types),
		p.ViewCount, formatTime(p.FirstSeenAt), strings.Join(p.TypeNames(), ","),
	)
	if err != nil {
		return fmt.Errorf("upsert pokemon %d: %w", p.ID, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// UpsertPokemon writes p with replace semantics, including the local fields.
// Callers that must keep local state use UpsertPreservingLocal.
func (s *Store) UpsertPokemon(ctx context.Context, p *domain.Pokemon) error {
	return upsertPokemon(ctx, s.db, p)
}

// UpsertPokemonBatch writes each item on its own. A failed row does not roll
// back the others; all row errors are joined.
func (s *Store) UpsertPokemonBatch(ctx context.Context, items []domain.Pokemon) error {
	var errs []error
	for i := range items {
		if err := upsertPokemon(ctx, s.db, &items[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// UpsertPreservingLocal reads the cached row and writes p with the cached
// view count and first-seen time in one transaction. It returns what was
// stored.
func (s *Store) UpsertPreservingLocal(ctx context.Context, p *domain.Pokemon) (*domain.Pokemon, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	existing, err := scanPokemon(tx.QueryRowContext(ctx,
		`SELECT `+pokemonColumns+` FROM pokemon WHERE id = ?`, p.ID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("read pokemon %d: %w", p.ID, err)
	}

	merged := p.PreserveLocal(existing)
	if err := upsertPokemon(ctx, tx, &merged); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &merged, nil
}

// IncrementViewCount bumps the view counter and returns the new value.
func (s *Store) IncrementViewCount(ctx context.Context, id int) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`UPDATE pokemon SET view_count = view_count + 1 WHERE id = ? RETURNING view_count`, id).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment view count %d: %w", id, err)
	}
	return n, nil
}

// ClearPokemon deletes every cached item. Favorites are kept.
func (s *Store) ClearPokemon(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pokemon`); err != nil {
		return fmt.Errorf("clear pokemon: %w", err)
	}
	return nil
}

// DistinctTypeNames returns every type name present in the cache, sorted.
func (s *Store) DistinctTypeNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT type_names FROM pokemon WHERE type_names != ''`)
	if err != nil {
		return nil, fmt.Errorf("distinct type names: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	for rows.Next() {
		var joined string
		if err := rows.Scan(&joined); err != nil {
			return nil, err
		}
		for name := range strings.SplitSeq(joined, ",") {
			seen[name] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
