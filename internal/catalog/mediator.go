package catalog

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
)

// LoadType says which edge of the feed a mediator load extends.
type LoadType int

const (
	LoadRefresh LoadType = iota
	LoadPrepend
	LoadAppend
)

func (t LoadType) String() string {
	switch t {
	case LoadRefresh:
		return "refresh"
	case LoadPrepend:
		return "prepend"
	case LoadAppend:
		return "append"
	default:
		return fmt.Sprintf("LoadType(%d)", int(t))
	}
}

// FeedState is what the feed has loaded so far.
type FeedState struct {
	PageSize int
	// LastItemID is the key of the last loaded item, 0 if none. Appends
	// continue from it as a listing offset.
	LastItemID int
}

// MediatorResult reports a successful mediator load.
type MediatorResult struct {
	EndOfPaginationReached bool
}

// FeedMediator populates the unfiltered feed from the remote listing.
type FeedMediator struct {
	remote RemoteSource
	store  ItemStore
	sup    *Supervisor
	cfg    config.SyncConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewFeedMediator creates a mediator.
func NewFeedMediator(remote RemoteSource, store ItemStore, sup *Supervisor, cfg config.SyncConfig, logger *slog.Logger) *FeedMediator {
	return &FeedMediator{
		remote: remote,
		store:  store,
		sup:    sup,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Load extends the feed. A warm refresh returns at once and re-syncs the
// first page in the background; a cold refresh or an append fetches the page
// synchronously. Prepend is never supported.
func (m *FeedMediator) Load(ctx context.Context, loadType LoadType, state FeedState) (MediatorResult, error) {
	pageSize := state.PageSize
	if pageSize <= 0 {
		pageSize = m.cfg.PageSize
	}

	var offset int
	switch loadType {
	case LoadPrepend:
		return MediatorResult{EndOfPaginationReached: true}, nil
	case LoadAppend:
		offset = state.LastItemID
	case LoadRefresh:
		offset = 0
	default:
		return MediatorResult{}, domainerrors.Validation("unknown load type " + loadType.String())
	}

	localCount, err := m.store.CountPokemon(ctx)
	if err != nil {
		return MediatorResult{}, domainerrors.Persistence(err, "count local items")
	}

	if loadType == LoadRefresh && localCount > 0 {
		m.sup.Go("feed refresh", func(ctx context.Context) error {
			return m.refreshInBackground(ctx, offset, pageSize)
		})
		return MediatorResult{EndOfPaginationReached: false}, nil
	}

	listing, err := m.remote.ListPokemon(ctx, pageSize, offset)
	if err != nil {
		if ctx.Err() != nil {
			return MediatorResult{}, ctx.Err()
		}
		return m.listingFailed(ctx, loadType, err)
	}

	items, lastErr := m.fetchPage(ctx, listing.Results)
	if len(listing.Results) > 0 && len(items) == 0 {
		if ctx.Err() != nil {
			return MediatorResult{}, ctx.Err()
		}
		return MediatorResult{}, domainerrors.Wrap(lastErr, domainerrors.CodePartialFetch,
			fmt.Sprintf("every item of the feed page at offset %d failed to load", offset))
	}

	// Only a cold start may clear the cache.
	if loadType == LoadRefresh {
		count, err := m.store.CountPokemon(ctx)
		if err != nil {
			return MediatorResult{}, domainerrors.Persistence(err, "count local items")
		}
		if count == 0 {
			if err := m.store.ClearPokemon(ctx); err != nil {
				return MediatorResult{}, domainerrors.Persistence(err, "clear local items")
			}
		}
	}

	if err := m.store.UpsertPokemonBatch(ctx, items); err != nil {
		return MediatorResult{}, domainerrors.Persistence(err, "insert feed page")
	}

	m.logger.Debug("feed page synced",
		"load_type", loadType,
		"offset", offset,
		"listed", len(listing.Results),
		"stored", len(items),
	)
	return MediatorResult{EndOfPaginationReached: listing.Next == nil}, nil
}

func (m *FeedMediator) listingFailed(ctx context.Context, loadType LoadType, cause error) (MediatorResult, error) {
	if loadType == LoadRefresh {
		count, err := m.store.CountPokemon(ctx)
		if err == nil && count > 0 {
			m.logger.Warn("feed listing failed, serving cache", "error", cause)
			return MediatorResult{EndOfPaginationReached: false}, nil
		}
	}
	return MediatorResult{}, domainerrors.Network(cause, "list feed page")
}

// fetchPage resolves listing entries in parallel. Cached rows are used as is;
// the rest are fetched. A failed fetch falls back to the cached row, if any.
// The last per-item error is returned alongside whatever resolved.
func (m *FeedMediator) fetchPage(ctx context.Context, refs []domain.NamedResource) ([]domain.Pokemon, error) {
	var (
		p       = pool.New().WithContext(ctx).WithMaxGoroutines(m.bulkConcurrency())
		mu      sync.Mutex
		items   = make([]domain.Pokemon, 0, len(refs))
		lastErr error
		now     = m.now()
	)

	for _, ref := range refs {
		p.Go(func(ctx context.Context) error {
			item, err := m.resolve(ctx, ref, now)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				lastErr = err
				return nil
			}
			items = append(items, *item)
			return nil
		})
	}

	// Per-item failures are absorbed above.
	_ = p.Wait()

	slices.SortFunc(items, func(a, b domain.Pokemon) int { return cmp.Compare(a.ID, b.ID) })
	return items, lastErr
}

func (m *FeedMediator) resolve(ctx context.Context, ref domain.NamedResource, now time.Time) (*domain.Pokemon, error) {
	id, err := ref.ID()
	if err != nil {
		m.logger.Debug("skipping unparseable entry", "name", ref.Name, "error", err)
		return nil, err
	}

	if existing, err := m.store.GetPokemon(ctx, id); err == nil {
		return existing, nil
	}

	fresh, err := m.remote.GetPokemon(ctx, id)
	if err != nil {
		m.logger.Debug("detail fetch failed, falling back to cache", "id", id, "error", err)
		if cached, cacheErr := m.store.GetPokemon(ctx, id); cacheErr == nil {
			return cached, nil
		}
		return nil, err
	}
	fresh.FirstSeenAt = now
	return fresh, nil
}

// refreshInBackground re-fetches one listing page and merges every item,
// keeping view counts, first-seen times and favorites.
func (m *FeedMediator) refreshInBackground(ctx context.Context, offset, pageSize int) error {
	listing, err := m.remote.ListPokemon(ctx, pageSize, offset)
	if err != nil {
		return err
	}

	p := pool.New().WithContext(ctx).WithMaxGoroutines(m.bulkConcurrency())
	for _, ref := range listing.Results {
		p.Go(func(ctx context.Context) error {
			id, err := ref.ID()
			if err != nil {
				return nil
			}
			fresh, err := m.remote.GetPokemon(ctx, id)
			if err != nil {
				m.logger.Debug("background detail fetch failed", "id", id, "error", err)
				return nil
			}
			fresh.FirstSeenAt = m.now()
			if _, err := m.store.UpsertPreservingLocal(ctx, fresh); err != nil {
				m.logger.Debug("background merge failed", "id", id, "error", err)
			}
			return nil
		})
	}
	return p.Wait()
}

func (m *FeedMediator) bulkConcurrency() int {
	if m.cfg.BulkConcurrency > 0 {
		return m.cfg.BulkConcurrency
	}
	return 1
}
