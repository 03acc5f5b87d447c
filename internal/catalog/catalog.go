// Package catalog is the cache-first sync engine. It serves catalog pages
// from the local store, refreshes them from the remote source in the
// background and merges the results without touching locally-owned fields.
//
// Foreground work runs on the caller's context. Background refreshes and
// notifications run on a Supervisor owned by the Repository, so Close
// cancels and drains them.
package catalog

import (
	"context"
	"time"

	"github.com/pokepi/pokepi-server/internal/domain"
)

// RemoteSource is the remote catalog API.
type RemoteSource interface {
	ListPokemon(ctx context.Context, limit, offset int) (*domain.ListPage, error)
	GetPokemon(ctx context.Context, id int) (*domain.Pokemon, error)
	GetType(ctx context.Context, name string) (*domain.TypeCategory, error)
	ListTypes(ctx context.Context) (*domain.ListPage, error)
}

// ItemStore is the cached item half of the local store.
type ItemStore interface {
	GetPokemon(ctx context.Context, id int) (*domain.Pokemon, error)
	ListPokemon(ctx context.Context, limit, offset int) ([]domain.Pokemon, error)
	CountPokemon(ctx context.Context) (int, error)
	SearchByName(ctx context.Context, q string, limit, offset int) ([]domain.Pokemon, error)
	CountByName(ctx context.Context, q string) (int, error)
	SearchByType(ctx context.Context, q string, limit, offset int) ([]domain.Pokemon, error)
	CountByType(ctx context.Context, q string) (int, error)
	DistinctTypeNames(ctx context.Context) ([]string, error)

	UpsertPokemon(ctx context.Context, p *domain.Pokemon) error
	UpsertPokemonBatch(ctx context.Context, items []domain.Pokemon) error
	UpsertPreservingLocal(ctx context.Context, p *domain.Pokemon) (*domain.Pokemon, error)
	IncrementViewCount(ctx context.Context, id int) (int, error)
	ClearPokemon(ctx context.Context) error
}

// FavoriteStore holds the per-user favorite marks.
type FavoriteStore interface {
	ToggleFavorite(ctx context.Context, userID string, pokemonID int, now time.Time) (bool, error)
	IsFavorite(ctx context.Context, userID string, pokemonID int) (bool, error)
	CountFavorites(ctx context.Context, userID string) (int, error)
	CountCachedFavorites(ctx context.Context, userID string) (int, error)
	ListFavorites(ctx context.Context, userID string, limit, offset int) ([]domain.Pokemon, error)
	FavoriteSet(ctx context.Context, userID string, ids []int) (map[int]bool, error)
}

// StatsStore holds the aggregate stats row.
type StatsStore interface {
	EnsureStats(ctx context.Context, now time.Time) error
	GetStats(ctx context.Context) (*domain.CatalogStats, error)
	SetSeenCount(ctx context.Context, seen int) error
	SetCounts(ctx context.Context, seen, favorites int) error
	AddTimeSpent(ctx context.Context, deltaMs int64, now time.Time) error
}

// LocalStore is everything the engine needs from local persistence.
type LocalStore interface {
	ItemStore
	FavoriteStore
	StatsStore
}

// Notifier receives the favorite-added side channel. Calls are best effort.
type Notifier interface {
	FavoriteAdded(ctx context.Context, userID string, item domain.Pokemon) error
}

// pause waits d or until ctx is done.
func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
