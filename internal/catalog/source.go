package catalog

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/domain"
	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/store"
)

// filter narrows the catalog for one paging source, locally and remotely.
type filter interface {
	describe() string
	countLocal(ctx context.Context, s ItemStore) (int, error)
	searchLocal(ctx context.Context, s ItemStore, limit, offset int) ([]domain.Pokemon, error)
	remoteMatches(ctx context.Context, r RemoteSource) ([]domain.NamedResource, error)
}

// cacheFirstSource pages a filtered view of the catalog.
//
// With local matches it answers from the store at once and schedules one
// background refresh of the whole filter. Without them it blocks on the
// remote source. If the remote listing fails it falls back to the store.
type cacheFirstSource struct {
	filter filter
	remote RemoteSource
	store  ItemStore
	sup    *Supervisor
	cfg    config.SyncConfig
	logger *slog.Logger
}

// Load returns page (zero-based) of the filtered catalog.
func (s *cacheFirstSource) Load(ctx context.Context, page int) (domain.Page[domain.Pokemon], error) {
	if page < 0 {
		return domain.Page[domain.Pokemon]{}, domainerrors.Validation("page must not be negative")
	}

	total, err := s.filter.countLocal(ctx, s.store)
	if err != nil {
		return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "count local matches")
	}

	if total > 0 {
		result, err := s.localWindow(ctx, page, total)
		if err != nil {
			return domain.Page[domain.Pokemon]{}, err
		}
		s.scheduleRefresh()
		return result, nil
	}

	matches, err := s.filter.remoteMatches(ctx, s.remote)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Page[domain.Pokemon]{}, ctx.Err()
		}
		s.logger.Warn("remote listing failed, serving local matches",
			"filter", s.filter.describe(),
			"error", err,
		)
		// Matches may have landed since the count above.
		total, err := s.filter.countLocal(ctx, s.store)
		if err != nil {
			return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "count local matches")
		}
		return s.localWindow(ctx, page, total)
	}

	return s.remoteWindow(ctx, page, matches)
}

func (s *cacheFirstSource) localWindow(ctx context.Context, page, total int) (domain.Page[domain.Pokemon], error) {
	start, end, prev, next := domain.Window(page, s.cfg.PageSize, total)
	result := domain.Page[domain.Pokemon]{PrevKey: prev, NextKey: next, Items: []domain.Pokemon{}}
	if start >= end {
		return result, nil
	}

	items, err := s.filter.searchLocal(ctx, s.store, end-start, start)
	if err != nil {
		return domain.Page[domain.Pokemon]{}, domainerrors.Persistence(err, "search local matches")
	}
	result.Items = items
	return result, nil
}

// remoteWindow resolves one window of remote matches, using cached copies
// where present and fetching the rest. Items that fail are skipped; a window
// where every item failed is a partial fetch error.
func (s *cacheFirstSource) remoteWindow(ctx context.Context, page int, matches []domain.NamedResource) (domain.Page[domain.Pokemon], error) {
	start, end, prev, next := domain.Window(page, s.cfg.PageSize, len(matches))
	result := domain.Page[domain.Pokemon]{PrevKey: prev, NextKey: next, Items: []domain.Pokemon{}}
	if start >= end {
		return result, nil
	}

	var (
		fetched int
		lastErr error
	)
	for _, ref := range matches[start:end] {
		id, err := ref.ID()
		if err != nil {
			s.logger.Debug("skipping unparseable entry", "name", ref.Name, "error", err)
			lastErr = err
			continue
		}

		if cached, err := s.store.GetPokemon(ctx, id); err == nil {
			result.Items = append(result.Items, *cached)
			continue
		} else if !domainerrors.Is(err, store.ErrNotFound) {
			s.logger.Debug("skipping entry, cache read failed", "id", id, "error", err)
			lastErr = err
			continue
		}

		if fetched > 0 {
			if err := pause(ctx, s.cfg.ForegroundDelay); err != nil {
				return domain.Page[domain.Pokemon]{}, err
			}
		}
		fetched++

		item, err := s.fetchAndMerge(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Page[domain.Pokemon]{}, ctx.Err()
			}
			s.logger.Debug("skipping entry, fetch failed", "id", id, "error", err)
			lastErr = err
			continue
		}
		result.Items = append(result.Items, *item)
	}

	if len(result.Items) == 0 {
		return domain.Page[domain.Pokemon]{}, domainerrors.Wrap(lastErr, domainerrors.CodePartialFetch,
			"every item of "+s.filter.describe()+" page "+strconv.Itoa(page)+" failed to load")
	}
	if len(result.Items) < end-start {
		s.logger.Info("partial page",
			"filter", s.filter.describe(),
			"page", page,
			"wanted", end-start,
			"got", len(result.Items),
		)
	}
	return result, nil
}

// fetchAndMerge fetches id remotely and merges it into the store, keeping
// whatever locally-owned fields the cached row already has.
func (s *cacheFirstSource) fetchAndMerge(ctx context.Context, id int) (*domain.Pokemon, error) {
	fresh, err := s.remote.GetPokemon(ctx, id)
	if err != nil {
		return nil, err
	}
	// Kept only when the item is new.
	fresh.FirstSeenAt = time.Now()
	return s.store.UpsertPreservingLocal(ctx, fresh)
}

func (s *cacheFirstSource) scheduleRefresh() {
	desc := s.filter.describe()
	s.sup.Go("refresh "+desc, func(ctx context.Context) error {
		return s.refresh(ctx)
	})
}

// refresh re-fetches every remote match of the filter and merges it.
func (s *cacheFirstSource) refresh(ctx context.Context) error {
	matches, err := s.filter.remoteMatches(ctx, s.remote)
	if err != nil {
		return err
	}

	merged := 0
	for i, ref := range matches {
		if i > 0 {
			if err := pause(ctx, s.cfg.BackgroundDelay); err != nil {
				return err
			}
		}
		id, err := ref.ID()
		if err != nil {
			continue
		}
		if _, err := s.fetchAndMerge(ctx, id); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("background merge skipped", "id", id, "error", err)
			continue
		}
		merged++
	}

	s.logger.Debug("background refresh finished",
		"filter", s.filter.describe(),
		"matches", len(matches),
		"merged", merged,
	)
	return nil
}

// NameSearchSource pages items whose name contains a query.
type NameSearchSource struct {
	cacheFirstSource
}

type nameFilter struct {
	query        string
	listingLimit int
}

func (f nameFilter) describe() string { return "name:" + f.query }

func (f nameFilter) countLocal(ctx context.Context, s ItemStore) (int, error) {
	return s.CountByName(ctx, f.query)
}

func (f nameFilter) searchLocal(ctx context.Context, s ItemStore, limit, offset int) ([]domain.Pokemon, error) {
	return s.SearchByName(ctx, f.query, limit, offset)
}

// remoteMatches lists the whole catalog and filters it by name. Upstream has
// no name search endpoint.
func (f nameFilter) remoteMatches(ctx context.Context, r RemoteSource) ([]domain.NamedResource, error) {
	listing, err := r.ListPokemon(ctx, f.listingLimit, 0)
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(f.query)
	out := make([]domain.NamedResource, 0)
	for _, ref := range listing.Results {
		if strings.Contains(strings.ToLower(ref.Name), q) {
			out = append(out, ref)
		}
	}
	return out, nil
}

// TypeSearchSource pages items whose type list contains a type name.
type TypeSearchSource struct {
	cacheFirstSource
}

type typeFilter struct {
	typeName string
}

func (f typeFilter) describe() string { return "type:" + f.typeName }

func (f typeFilter) countLocal(ctx context.Context, s ItemStore) (int, error) {
	return s.CountByType(ctx, f.typeName)
}

func (f typeFilter) searchLocal(ctx context.Context, s ItemStore, limit, offset int) ([]domain.Pokemon, error) {
	return s.SearchByType(ctx, f.typeName, limit, offset)
}

func (f typeFilter) remoteMatches(ctx context.Context, r RemoteSource) ([]domain.NamedResource, error) {
	cat, err := r.GetType(ctx, f.typeName)
	if err != nil {
		return nil, err
	}
	out := make([]domain.NamedResource, 0, len(cat.Members))
	for _, m := range cat.Members {
		out = append(out, m.Pokemon)
	}
	return out, nil
}
