package catalog

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/store/sqlite"
)

func newTestMediator(t *testing.T, remote RemoteSource) (*FeedMediator, *Supervisor, *sqlite.Store) {
	t.Helper()
	s := newTestStore(t)
	sup := NewSupervisor(slog.New(slog.DiscardHandler))
	t.Cleanup(sup.Close)
	return NewFeedMediator(remote, s, sup, testSyncConfig(), slog.New(slog.DiscardHandler)), sup, s
}

func TestFeedMediator_Prepend(t *testing.T) {
	remote := newFakeRemote(catalogOf(5)...)
	m, _, _ := newTestMediator(t, remote)

	res, err := m.Load(context.Background(), LoadPrepend, FeedState{PageSize: 20})
	require.NoError(t, err)
	assert.True(t, res.EndOfPaginationReached)

	list, detail, _ := remote.calls()
	assert.Zero(t, list)
	assert.Zero(t, detail)
}

func TestFeedMediator_ColdRefresh(t *testing.T) {
	tests := []struct {
		name        string
		catalogSize int
		failing     []int
		wantDetail  int
		wantStored  int
		wantEnd     bool
	}{
		{name: "more pages upstream", catalogSize: 50, wantDetail: 20, wantStored: 20, wantEnd: false},
		{name: "single short page", catalogSize: 12, wantDetail: 12, wantStored: 12, wantEnd: true},
		{name: "per-item failures are skipped", catalogSize: 50, failing: []int{3, 17}, wantDetail: 20, wantStored: 18, wantEnd: false},
		{name: "empty upstream", catalogSize: 0, wantDetail: 0, wantStored: 0, wantEnd: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote(catalogOf(tt.catalogSize)...)
			for _, id := range tt.failing {
				remote.failDetails[id] = true
			}
			m, _, s := newTestMediator(t, remote)

			res, err := m.Load(context.Background(), LoadRefresh, FeedState{PageSize: 20})
			require.NoError(t, err)
			assert.Equal(t, tt.wantEnd, res.EndOfPaginationReached)

			_, detail, _ := remote.calls()
			assert.Equal(t, tt.wantDetail, detail)

			n, err := s.CountPokemon(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantStored, n)
		})
	}
}

func TestFeedMediator_ColdRefreshStampsFirstSeen(t *testing.T) {
	remote := newFakeRemote(catalogOf(3)...)
	m, _, s := newTestMediator(t, remote)

	_, err := m.Load(context.Background(), LoadRefresh, FeedState{PageSize: 20})
	require.NoError(t, err)

	p, err := s.GetPokemon(context.Background(), 2)
	require.NoError(t, err)
	assert.False(t, p.FirstSeenAt.IsZero())
	assert.Zero(t, p.ViewCount)
}

func TestFeedMediator_WarmRefreshReturnsAtOnce(t *testing.T) {
	remote := newFakeRemote(catalogOf(30)...)
	remote.gate = make(chan struct{})
	m, sup, s := newTestMediator(t, remote)
	ctx := context.Background()

	firstSeen := time.Date(2023, 7, 14, 9, 30, 0, 0, time.UTC)
	stale := pokemon(1, "stale", "normal")
	stale.ViewCount = 3
	stale.FirstSeenAt = firstSeen
	seed(t, s, stale)

	res, err := m.Load(ctx, LoadRefresh, FeedState{PageSize: 20})
	require.NoError(t, err)
	assert.False(t, res.EndOfPaginationReached)

	// Nothing synced yet: the listing is still gated.
	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	close(remote.gate)
	sup.Wait()

	n, err = s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	p, err := s.GetPokemon(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "item-1", p.Name)
	assert.Equal(t, 3, p.ViewCount)
	assert.True(t, firstSeen.Equal(p.FirstSeenAt))
}

func TestFeedMediator_AppendContinuesFromLastItem(t *testing.T) {
	remote := newFakeRemote(catalogOf(45)...)
	m, _, s := newTestMediator(t, remote)
	ctx := context.Background()

	_, err := m.Load(ctx, LoadRefresh, FeedState{PageSize: 20})
	require.NoError(t, err)

	res, err := m.Load(ctx, LoadAppend, FeedState{PageSize: 20, LastItemID: 20})
	require.NoError(t, err)
	assert.False(t, res.EndOfPaginationReached)

	res, err = m.Load(ctx, LoadAppend, FeedState{PageSize: 20, LastItemID: 40})
	require.NoError(t, err)
	assert.True(t, res.EndOfPaginationReached)

	assert.Equal(t, []int{0, 20, 40}, remote.listOffsets)

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 45, n)
}

func TestFeedMediator_AppendIsIdempotent(t *testing.T) {
	remote := newFakeRemote(catalogOf(10)...)
	m, _, s := newTestMediator(t, remote)
	ctx := context.Background()

	_, err := m.Load(ctx, LoadAppend, FeedState{PageSize: 5, LastItemID: 0})
	require.NoError(t, err)
	views, err := s.IncrementViewCount(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, 1, views)

	_, err = m.Load(ctx, LoadAppend, FeedState{PageSize: 5, LastItemID: 0})
	require.NoError(t, err)

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Cached rows are reused, so the view count survives the second pass.
	p, err := s.GetPokemon(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, p.ViewCount)

	_, detail, _ := remote.calls()
	assert.Equal(t, 5, detail)
}

func TestFeedMediator_FetchFailureKeepsCachedRows(t *testing.T) {
	remote := newFakeRemote(catalogOf(5)...)
	m, _, s := newTestMediator(t, remote)
	ctx := context.Background()

	seed(t, s, pokemon(2, "cached-two", "normal"))
	remote.failDetails[4] = true

	_, err := m.Load(ctx, LoadAppend, FeedState{PageSize: 5})
	require.NoError(t, err)

	items, err := s.ListPokemon(ctx, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 5}, itemIDs(items))
	assert.Equal(t, "cached-two", items[1].Name)
}

func TestFeedMediator_EveryFetchFailing(t *testing.T) {
	remote := newFakeRemote(catalogOf(10)...)
	for id := 6; id <= 10; id++ {
		remote.failDetails[id] = true
	}
	m, _, s := newTestMediator(t, remote)
	ctx := context.Background()
	seed(t, s, catalogOf(5)...)

	_, err := m.Load(ctx, LoadAppend, FeedState{PageSize: 5, LastItemID: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrPartialFetch)

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// A failed fetch that falls back to a cached row still counts as loaded.
	seed(t, s, pokemon(8, "cached-eight", "normal"))
	_, err = m.Load(ctx, LoadAppend, FeedState{PageSize: 5, LastItemID: 5})
	require.NoError(t, err)
}

func TestFeedMediator_ListingFailure(t *testing.T) {
	t.Run("cold refresh is an error", func(t *testing.T) {
		remote := newFakeRemote(catalogOf(5)...)
		remote.failList = true
		m, _, _ := newTestMediator(t, remote)

		_, err := m.Load(context.Background(), LoadRefresh, FeedState{PageSize: 20})
		require.Error(t, err)
		assert.ErrorIs(t, err, domainerrors.ErrNetworkFailure)
	})

	t.Run("append is an error", func(t *testing.T) {
		remote := newFakeRemote(catalogOf(5)...)
		remote.failList = true
		m, _, s := newTestMediator(t, remote)
		seed(t, s, pokemon(1, "one", "normal"))

		_, err := m.Load(context.Background(), LoadAppend, FeedState{PageSize: 20, LastItemID: 1})
		assert.ErrorIs(t, err, domainerrors.ErrNetworkFailure)
	})

	t.Run("warm refresh succeeds", func(t *testing.T) {
		remote := newFakeRemote(catalogOf(5)...)
		remote.failList = true
		m, sup, s := newTestMediator(t, remote)
		seed(t, s, pokemon(1, "one", "normal"))

		res, err := m.Load(context.Background(), LoadRefresh, FeedState{PageSize: 20})
		require.NoError(t, err)
		assert.False(t, res.EndOfPaginationReached)
		sup.Wait()
	})
}

func TestLoadType_String(t *testing.T) {
	assert.Equal(t, "refresh", LoadRefresh.String())
	assert.Equal(t, "prepend", LoadPrepend.String())
	assert.Equal(t, "append", LoadAppend.String())
	assert.Equal(t, "LoadType(9)", LoadType(9).String())
}
