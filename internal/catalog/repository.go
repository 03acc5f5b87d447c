package catalog

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/store"
)

// SearchBy selects the paging source of a search.
type SearchBy string

const (
	SearchByName SearchBy = "name"
	SearchByType SearchBy = "type"
)

// Repository is the entry point of the sync engine.
type Repository struct {
	remote   RemoteSource
	store    LocalStore
	notifier Notifier
	sup      *Supervisor
	mediator *FeedMediator
	cfg      config.SyncConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewRepository creates a repository with its own supervisor. notifier may
// be nil.
func NewRepository(remote RemoteSource, local LocalStore, notifier Notifier, cfg config.SyncConfig, logger *slog.Logger) *Repository {
	sup := NewSupervisor(logger)
	return &Repository{
		remote:   remote,
		store:    local,
		notifier: notifier,
		sup:      sup,
		mediator: NewFeedMediator(remote, local, sup, cfg, logger),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Close cancels outstanding background work and waits for it.
func (r *Repository) Close() {
	r.sup.Close()
}

// PageSize returns the configured page size.
func (r *Repository) PageSize() int {
	return r.cfg.PageSize
}

func (r *Repository) source(f filter) cacheFirstSource {
	return cacheFirstSource{
		filter: f,
		remote: r.remote,
		store:  r.store,
		sup:    r.sup,
		cfg:    r.cfg,
		logger: r.logger,
	}
}

// NameSearch returns the paging source for a name query.
func (r *Repository) NameSearch(query string) *NameSearchSource {
	return &NameSearchSource{r.source(nameFilter{query: query, listingLimit: r.listingLimit()})}
}

// TypeSearch returns the paging source for a type name.
func (r *Repository) TypeSearch(typeName string) *TypeSearchSource {
	return &TypeSearchSource{r.source(typeFilter{typeName: strings.ToLower(typeName)})}
}

func (r *Repository) listingLimit() int {
	if r.cfg.SearchListingLimit > 0 {
		return r.cfg.SearchListingLimit
	}
	return 1500
}

// Search pages the catalog filtered by name or type. Favorite flags are set
// for userID, if any.
func (r *Repository) Search(ctx context.Context, userID, query string, by SearchBy, page int) (domain.Page[domain.Pokemon], error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.Page[domain.Pokemon]{}, domainerrors.Validation("search query is required")
	}

	var (
		result domain.Page[domain.Pokemon]
		err    error
	)
	switch by {
	case SearchByName, "":
		result, err = r.NameSearch(query).Load(ctx, page)
	case SearchByType:
		result, err = r.TypeSearch(query).Load(ctx, page)
	default:
		return domain.Page[domain.Pokemon]{}, domainerrors.Validation("search by must be name or type")
	}
	if err != nil {
		return domain.Page[domain.Pokemon]{}, err
	}
	return r.markFavorites(ctx, userID, result)
}

// FeedPage returns page (zero-based) of the unfiltered feed. Page 0 runs a
// mediator refresh. A later page that is not fully cached but starts no
// further than the end of the cache appends one listing page, continuing
// after the last cached item. Pages further out are empty, so the feed grows
// by at most one page per request.
func (r *Repository) FeedPage(ctx context.Context, userID string, page int) (domain.Page[domain.Pokemon], error) {
	if page < 0 {
		return domain.Page[domain.Pokemon]{}, domainerrors.Validation("page must not be negative")
	}
	size := r.cfg.PageSize

	endReached := false
	if page == 0 {
		res, err := r.mediator.Load(ctx, LoadRefresh, FeedState{PageSize: size})
		if err != nil {
			return domain.Page[domain.Pokemon]{}, err
		}
		endReached = res.EndOfPaginationReached
	}

	total, err := r.store.CountPokemon(ctx)
	if err != nil {
		return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "count local items")
	}

	if start, _, _, _ := domain.Window(page, size, total); page > 0 && start <= total && total-start < size {
		last, err := r.lastCachedID(ctx, total)
		if err != nil {
			return domain.Page[domain.Pokemon]{}, err
		}
		res, err := r.mediator.Load(ctx, LoadAppend, FeedState{PageSize: size, LastItemID: last})
		switch {
		case err == nil:
			endReached = res.EndOfPaginationReached
			if total, err = r.store.CountPokemon(ctx); err != nil {
				return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "count local items")
			}
		case total > start:
			// Serve the partial window that is cached.
			r.logger.Warn("feed append failed, serving cache", "page", page, "error", err)
		default:
			return domain.Page[domain.Pokemon]{}, err
		}
	}

	start, end, prev, next := domain.Window(page, size, total)
	result := domain.Page[domain.Pokemon]{Items: []domain.Pokemon{}, PrevKey: prev}
	if start < end {
		items, err := r.store.ListPokemon(ctx, end-start, start)
		if err != nil {
			return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "list local items")
		}
		result.Items = items
	}

	switch {
	case next != nil:
		result.NextKey = next
	case len(result.Items) > 0 && !endReached:
		// The cache ends here; the next page appends.
		n := page + 1
		result.NextKey = &n
	}

	return r.markFavorites(ctx, userID, result)
}

func (r *Repository) lastCachedID(ctx context.Context, total int) (int, error) {
	if total == 0 {
		return 0, nil
	}
	last, err := r.store.ListPokemon(ctx, 1, total-1)
	if err != nil {
		return 0, domainerrors.Persistence(err, "read last local item")
	}
	if len(last) == 0 {
		return 0, nil
	}
	return last[0].ID, nil
}

// GetItemDetails returns one item and counts the view. A cached item is
// served without a remote call; otherwise it is fetched and cached with a
// view count of one.
func (r *Repository) GetItemDetails(ctx context.Context, id int, userID string) (*domain.Pokemon, error) {
	if id <= 0 {
		return nil, domainerrors.Validation("item id must be positive")
	}

	cached, err := r.store.GetPokemon(ctx, id)
	switch {
	case err == nil:
		views, err := r.store.IncrementViewCount(ctx, id)
		if err != nil {
			return nil, domainerrors.Persistence(err, "increment view count")
		}
		cached.ViewCount = views
		r.recomputeStats(ctx, userID)
		return r.withFavorite(ctx, userID, cached)
	case !domainerrors.Is(err, store.ErrNotFound):
		return nil, domainerrors.Persistence(err, "read local item")
	}

	fresh, err := r.remote.GetPokemon(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if pokeapi.IsNotFound(err) {
			return nil, domainerrors.NotFoundf("item %d not found", id)
		}
		return nil, domainerrors.Network(err, "fetch item details")
	}

	fresh.ViewCount = 1
	fresh.FirstSeenAt = r.now()
	if err := r.store.UpsertPokemon(ctx, fresh); err != nil {
		return nil, domainerrors.Persistence(err, "store item")
	}
	r.recomputeStats(ctx, userID)
	return r.withFavorite(ctx, userID, fresh)
}

// ToggleFavorite flips the user's favorite mark on the item and returns the
// new state. Turning a mark on notifies the favorite-added side channel in
// the background.
func (r *Repository) ToggleFavorite(ctx context.Context, id int, userID string) (bool, error) {
	if userID == "" {
		return false, domainerrors.Unauthorized("a session is required to manage favorites")
	}
	if id <= 0 {
		return false, domainerrors.Validation("item id must be positive")
	}

	on, err := r.store.ToggleFavorite(ctx, userID, id, r.now())
	if err != nil {
		return false, domainerrors.Persistence(err, "toggle favorite")
	}
	r.recomputeStats(ctx, userID)

	if on && r.notifier != nil {
		r.notifyFavoriteAdded(userID, id)
	}
	return on, nil
}

func (r *Repository) notifyFavoriteAdded(userID string, id int) {
	r.sup.Go("favorite added notification", func(ctx context.Context) error {
		item, err := r.store.GetPokemon(ctx, id)
		if err != nil {
			// Favorites may reference items that are not cached.
			item = &domain.Pokemon{ID: id}
		}
		item.IsFavorite = true
		return r.notifier.FavoriteAdded(ctx, userID, *item)
	})
}

// IsFavorite reports whether the user has marked the item.
func (r *Repository) IsFavorite(ctx context.Context, id int, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	ok, err := r.store.IsFavorite(ctx, userID, id)
	if err != nil {
		return false, domainerrors.Persistence(err, "read favorite")
	}
	return ok, nil
}

// FavoritesPage pages the user's cached favorites, newest mark first.
func (r *Repository) FavoritesPage(ctx context.Context, userID string, page int) (domain.Page[domain.Pokemon], error) {
	if userID == "" {
		return domain.Page[domain.Pokemon]{}, domainerrors.Unauthorized("a session is required to list favorites")
	}
	if page < 0 {
		return domain.Page[domain.Pokemon]{}, domainerrors.Validation("page must not be negative")
	}

	// Marks on items that are not cached are not listed, so they must not
	// count toward the window either.
	total, err := r.store.CountCachedFavorites(ctx, userID)
	if err != nil {
		return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "count favorites")
	}

	start, end, prev, next := domain.Window(page, r.cfg.PageSize, total)
	result := domain.Page[domain.Pokemon]{Items: []domain.Pokemon{}, PrevKey: prev, NextKey: next}
	if start >= end {
		return result, nil
	}
	items, err := r.store.ListFavorites(ctx, userID, end-start, start)
	if err != nil {
		return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "list favorites")
	}
	result.Items = items
	return result, nil
}

// InitializeStats creates the stats row if needed and recomputes the seen
// count from the cache.
func (r *Repository) InitializeStats(ctx context.Context) error {
	if err := r.store.EnsureStats(ctx, r.now()); err != nil {
		return domainerrors.Persistence(err, "initialize stats")
	}
	seen, err := r.store.CountPokemon(ctx)
	if err != nil {
		return domainerrors.Persistence(err, "count local items")
	}
	if err := r.store.SetSeenCount(ctx, seen); err != nil {
		return domainerrors.Persistence(err, "update stats")
	}
	return nil
}

// Stats returns the aggregate stats, creating the row on first use.
func (r *Repository) Stats(ctx context.Context) (*domain.CatalogStats, error) {
	st, err := r.store.GetStats(ctx)
	if domainerrors.Is(err, store.ErrNotFound) {
		if err := r.InitializeStats(ctx); err != nil {
			return nil, err
		}
		st, err = r.store.GetStats(ctx)
	}
	if err != nil {
		return nil, domainerrors.Persistence(err, "read stats")
	}
	return st, nil
}

// AddTimeSpent adds deltaMs of browsing time.
func (r *Repository) AddTimeSpent(ctx context.Context, deltaMs int64) error {
	if deltaMs < 0 {
		return domainerrors.Validation("time spent must not be negative")
	}
	now := r.now()
	if err := r.store.EnsureStats(ctx, now); err != nil {
		return domainerrors.Persistence(err, "initialize stats")
	}
	if err := r.store.AddTimeSpent(ctx, deltaMs, now); err != nil {
		return domainerrors.Persistence(err, "add time spent")
	}
	return nil
}

// AllTypes returns the canonical type names offered by the remote source,
// or the ones present in the cache when the remote source is unavailable.
func (r *Repository) AllTypes(ctx context.Context) ([]string, error) {
	listing, err := r.remote.ListTypes(ctx)
	if err == nil {
		names := make([]string, 0, len(listing.Results))
		for _, ref := range listing.Results {
			if domain.IsKnownType(ref.Name) {
				names = append(names, ref.Name)
			}
		}
		if len(names) > 0 {
			slices.Sort(names)
			return slices.Compact(names), nil
		}
	} else {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.logger.Warn("type listing failed, using cached types", "error", err)
	}

	local, err := r.store.DistinctTypeNames(ctx)
	if err != nil {
		return nil, domainerrors.Persistence(err, "list cached types")
	}
	names := make([]string, 0, len(local))
	for _, name := range local {
		if domain.IsKnownType(name) {
			names = append(names, name)
		}
	}
	return names, nil
}

// recomputeStats rewrites the derived counters. Failures are logged; the
// counters are not authoritative.
func (r *Repository) recomputeStats(ctx context.Context, userID string) {
	if err := r.store.EnsureStats(ctx, r.now()); err != nil {
		r.logger.Warn("failed to initialize stats", "error", err)
		return
	}
	seen, err := r.store.CountPokemon(ctx)
	if err != nil {
		r.logger.Warn("failed to count items for stats", "error", err)
		return
	}
	if userID == "" {
		err = r.store.SetSeenCount(ctx, seen)
	} else {
		var favorites int
		favorites, err = r.store.CountFavorites(ctx, userID)
		if err == nil {
			err = r.store.SetCounts(ctx, seen, favorites)
		}
	}
	if err != nil {
		r.logger.Warn("failed to update stats", "error", err)
	}
}

func (r *Repository) withFavorite(ctx context.Context, userID string, item *domain.Pokemon) (*domain.Pokemon, error) {
	fav, err := r.IsFavorite(ctx, item.ID, userID)
	if err != nil {
		return nil, err
	}
	item.IsFavorite = fav
	return item, nil
}

func (r *Repository) markFavorites(ctx context.Context, userID string, page domain.Page[domain.Pokemon]) (domain.Page[domain.Pokemon], error) {
	if userID == "" || len(page.Items) == 0 {
		return page, nil
	}
	ids := make([]int, len(page.Items))
	for i, item := range page.Items {
		ids[i] = item.ID
	}
	set, err := r.store.FavoriteSet(ctx, userID, ids)
	if err != nil {
		return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "read favorites")
	}
	for i := range page.Items {
		page.Items[i].IsFavorite = set[page.Items[i].ID]
	}
	return page, nil
}
