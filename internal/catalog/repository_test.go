package catalog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
)

// stepClock returns a time one second later on every call.
func stepClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func TestFeedPage_ColdStart(t *testing.T) {
	tests := []struct {
		name        string
		catalogSize int
		failing     []int
		wantItems   int
		wantMore    bool
	}{
		{name: "more than a page upstream", catalogSize: 50, wantItems: 20, wantMore: true},
		{name: "partial failures", catalogSize: 50, failing: []int{2, 9, 11}, wantItems: 17, wantMore: true},
		{name: "less than a page upstream", catalogSize: 12, wantItems: 12, wantMore: false},
		{name: "exactly a page upstream", catalogSize: 20, wantItems: 20, wantMore: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := newFakeRemote(catalogOf(tt.catalogSize)...)
			for _, id := range tt.failing {
				remote.failDetails[id] = true
			}
			repo, _ := newTestRepository(t, remote, nil)

			page, err := repo.FeedPage(context.Background(), "", 0)
			require.NoError(t, err)
			require.NotNil(t, page.Items)
			assert.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, tt.wantMore, page.HasMore())
			assert.Nil(t, page.PrevKey)

			_, detail, _ := remote.calls()
			assert.Equal(t, min(20, tt.catalogSize), detail)
		})
	}
}

func TestFeedPage_WarmServesCache(t *testing.T) {
	remote := newFakeRemote(catalogOf(30)...)
	remote.gate = make(chan struct{})
	repo, s := newTestRepository(t, remote, nil)
	seed(t, s, catalogOf(25)...)

	page, err := repo.FeedPage(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Equal(t, intRange(1, 20), itemIDs(page.Items))
	require.NotNil(t, page.NextKey)
	assert.Equal(t, 1, *page.NextKey)

	close(remote.gate)
	repo.sup.Wait()
}

func TestFeedPage_AppendsPastCache(t *testing.T) {
	remote := newFakeRemote(catalogOf(45)...)
	repo, _ := newTestRepository(t, remote, nil)
	ctx := context.Background()

	first, err := repo.FeedPage(ctx, "", 0)
	require.NoError(t, err)
	require.True(t, first.HasMore())

	second, err := repo.FeedPage(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, intRange(21, 40), itemIDs(second.Items))
	require.NotNil(t, second.NextKey)
	assert.Equal(t, 2, *second.NextKey)
	require.NotNil(t, second.PrevKey)
	assert.Equal(t, 0, *second.PrevKey)

	third, err := repo.FeedPage(ctx, "", 2)
	require.NoError(t, err)
	assert.Equal(t, intRange(41, 45), itemIDs(third.Items))
	assert.False(t, third.HasMore())

	assert.Equal(t, []int{0, 20, 40}, remote.listOffsets)
}

func TestFeedPage_DeepPageAppendsAtMostOnce(t *testing.T) {
	remote := newFakeRemote(catalogOf(300)...)
	repo, s := newTestRepository(t, remote, nil)
	ctx := context.Background()

	_, err := repo.FeedPage(ctx, "", 0)
	require.NoError(t, err)
	list, detail, _ := remote.calls()

	deep, err := repo.FeedPage(ctx, "", 1000)
	require.NoError(t, err)
	assert.Empty(t, deep.Items)
	assert.Nil(t, deep.NextKey)

	afterList, afterDetail, _ := remote.calls()
	assert.Equal(t, list, afterList, "a page past the cache edge must not list")
	assert.Equal(t, detail, afterDetail)

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	// The edge page still grows the feed by exactly one listing page.
	next, err := repo.FeedPage(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, intRange(21, 40), itemIDs(next.Items))
	afterList, afterDetail, _ = remote.calls()
	assert.Equal(t, list+1, afterList)
	assert.Equal(t, detail+20, afterDetail)

	far, err := repo.FeedPage(ctx, "", 461168601842738791)
	require.NoError(t, err)
	assert.Empty(t, far.Items)
	assert.Nil(t, far.NextKey)
}

func TestFeedPage_EveryDetailFetchFailing(t *testing.T) {
	remote := newFakeRemote(catalogOf(50)...)
	for id := 1; id <= 20; id++ {
		remote.failDetails[id] = true
	}
	repo, s := newTestRepository(t, remote, nil)
	ctx := context.Background()

	page, err := repo.FeedPage(ctx, "", 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrPartialFetch)
	assert.ErrorIs(t, err, pokeapi.ErrServer)
	assert.Empty(t, page.Items)

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFeedPage_MarksFavorites(t *testing.T) {
	remote := newFakeRemote(catalogOf(5)...)
	repo, _ := newTestRepository(t, remote, nil)
	ctx := context.Background()

	_, err := repo.FeedPage(ctx, "ash", 0)
	require.NoError(t, err)
	_, err = repo.ToggleFavorite(ctx, 3, "ash")
	require.NoError(t, err)

	page, err := repo.FeedPage(ctx, "ash", 0)
	require.NoError(t, err)
	for _, p := range page.Items {
		assert.Equal(t, p.ID == 3, p.IsFavorite, "item %d", p.ID)
	}

	// Marks are per user.
	page, err = repo.FeedPage(ctx, "misty", 0)
	require.NoError(t, err)
	for _, p := range page.Items {
		assert.False(t, p.IsFavorite)
	}
	repo.sup.Wait()
}

func TestFeedPage_ColdListingFailure(t *testing.T) {
	remote := newFakeRemote()
	remote.failList = true
	repo, _ := newTestRepository(t, remote, nil)

	_, err := repo.FeedPage(context.Background(), "", 0)
	assert.ErrorIs(t, err, domainerrors.ErrNetworkFailure)
}

func TestGetItemDetails(t *testing.T) {
	remote := newFakeRemote(pokemon(25, "pikachu", "electric"))
	repo, s := newTestRepository(t, remote, nil)
	ctx := context.Background()

	first, err := repo.GetItemDetails(ctx, 25, "")
	require.NoError(t, err)
	assert.Equal(t, "pikachu", first.Name)
	assert.Equal(t, 1, first.ViewCount)
	assert.False(t, first.FirstSeenAt.IsZero())

	second, err := repo.GetItemDetails(ctx, 25, "")
	require.NoError(t, err)
	assert.Equal(t, 2, second.ViewCount)
	assert.True(t, first.FirstSeenAt.Equal(second.FirstSeenAt))

	_, detail, _ := remote.calls()
	assert.Equal(t, 1, detail, "cached item is served locally")

	stored, err := s.GetPokemon(ctx, 25)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.ViewCount)

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalSeen)
}

func TestGetItemDetails_Errors(t *testing.T) {
	remote := newFakeRemote(pokemon(1, "bulbasaur", "grass"))
	remote.failDetails[2] = true
	repo, _ := newTestRepository(t, remote, nil)
	ctx := context.Background()

	_, err := repo.GetItemDetails(ctx, 999, "")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = repo.GetItemDetails(ctx, 2, "")
	assert.ErrorIs(t, err, domainerrors.ErrNetworkFailure)

	_, err = repo.GetItemDetails(ctx, 0, "")
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestToggleFavorite_IsItsOwnInverse(t *testing.T) {
	remote := newFakeRemote()
	repo, s := newTestRepository(t, remote, nil)
	ctx := context.Background()
	seed(t, s, pokemon(1, "bulbasaur", "grass"), pokemon(4, "charmander", "fire"))

	// Another mark makes the count non-trivial.
	_, err := repo.ToggleFavorite(ctx, 1, "ash")
	require.NoError(t, err)

	before, err := repo.Stats(ctx)
	require.NoError(t, err)
	wasFav, err := repo.IsFavorite(ctx, 4, "ash")
	require.NoError(t, err)

	on, err := repo.ToggleFavorite(ctx, 4, "ash")
	require.NoError(t, err)
	assert.Equal(t, !wasFav, on)

	mid, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalFavorites+1, mid.TotalFavorites)
	assert.Equal(t, 2, mid.TotalSeen)

	off, err := repo.ToggleFavorite(ctx, 4, "ash")
	require.NoError(t, err)
	assert.Equal(t, wasFav, off)

	after, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.TotalFavorites, after.TotalFavorites)

	isFav, err := repo.IsFavorite(ctx, 4, "ash")
	require.NoError(t, err)
	assert.Equal(t, wasFav, isFav)
}

func TestToggleFavorite_NotifiesOnlyWhenAdded(t *testing.T) {
	notifier := &fakeNotifier{err: assert.AnError}
	repo, s := newTestRepository(t, newFakeRemote(), notifier)
	ctx := context.Background()
	seed(t, s, pokemon(6, "charizard", "fire", "flying"))

	on, err := repo.ToggleFavorite(ctx, 6, "ash")
	require.NoError(t, err, "notification failures are not surfaced")
	require.True(t, on)
	repo.sup.Wait()
	require.Equal(t, 1, notifier.count())
	assert.Equal(t, "charizard", notifier.calls[0].Name)
	assert.True(t, notifier.calls[0].IsFavorite)

	_, err = repo.ToggleFavorite(ctx, 6, "ash")
	require.NoError(t, err)
	repo.sup.Wait()
	assert.Equal(t, 1, notifier.count())
}

func TestToggleFavorite_ConcurrentPairs(t *testing.T) {
	repo, s := newTestRepository(t, newFakeRemote(), nil)
	ctx := context.Background()
	seed(t, s, catalogOf(10)...)

	var wg sync.WaitGroup
	for id := 1; id <= 10; id++ {
		for _, user := range []string{"ash", "misty"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.ToggleFavorite(ctx, id, user)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for _, user := range []string{"ash", "misty"} {
		n, err := s.CountFavorites(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, 10, n)
	}
}

func TestToggleFavorite_RequiresSession(t *testing.T) {
	repo, _ := newTestRepository(t, newFakeRemote(), nil)
	_, err := repo.ToggleFavorite(context.Background(), 1, "")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestFavoritesPage(t *testing.T) {
	repo, s := newTestRepository(t, newFakeRemote(), nil)
	repo.now = stepClock()
	ctx := context.Background()
	seed(t, s, catalogOf(25)...)

	for id := 1; id <= 22; id++ {
		_, err := repo.ToggleFavorite(ctx, id, "ash")
		require.NoError(t, err)
	}

	first, err := repo.FavoritesPage(ctx, "ash", 0)
	require.NoError(t, err)
	require.Len(t, first.Items, 20)
	assert.Equal(t, 22, first.Items[0].ID, "newest mark first")
	assert.True(t, first.Items[0].IsFavorite)
	assert.True(t, first.HasMore())

	second, err := repo.FavoritesPage(ctx, "ash", 1)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, itemIDs(second.Items))
	assert.False(t, second.HasMore())

	empty, err := repo.FavoritesPage(ctx, "misty", 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.Nil(t, empty.NextKey)

	_, err = repo.FavoritesPage(ctx, "", 0)
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestFavoritesPage_SkipsUncachedMarks(t *testing.T) {
	repo, s := newTestRepository(t, newFakeRemote(), nil)
	repo.now = stepClock()
	ctx := context.Background()
	seed(t, s, catalogOf(5)...)

	for id := 101; id <= 120; id++ {
		_, err := repo.ToggleFavorite(ctx, id, "ash")
		require.NoError(t, err)
	}
	for id := 1; id <= 5; id++ {
		_, err := repo.ToggleFavorite(ctx, id, "ash")
		require.NoError(t, err)
	}

	first, err := repo.FavoritesPage(ctx, "ash", 0)
	require.NoError(t, err)
	assert.Equal(t, []int{5, 4, 3, 2, 1}, itemIDs(first.Items))
	assert.Nil(t, first.NextKey)

	// Uncached marks still count toward the stats.
	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, st.TotalFavorites)
}

func TestSearch_Dispatch(t *testing.T) {
	repo, s := newTestRepository(t, newFakeRemote(), nil)
	ctx := context.Background()
	seed(t, s,
		pokemon(4, "charmander", "fire"),
		pokemon(7, "squirtle", "water"),
	)
	_, err := repo.ToggleFavorite(ctx, 7, "ash")
	require.NoError(t, err)

	byName, err := repo.Search(ctx, "ash", "squirt", SearchByName, 0)
	require.NoError(t, err)
	require.Len(t, byName.Items, 1)
	assert.True(t, byName.Items[0].IsFavorite)

	byType, err := repo.Search(ctx, "ash", "FIRE", SearchByType, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{4}, itemIDs(byType.Items))

	_, err = repo.Search(ctx, "ash", "  ", SearchByName, 0)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = repo.Search(ctx, "ash", "x", SearchBy("ability"), 0)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
	repo.sup.Wait()
}

func TestAllTypes(t *testing.T) {
	t.Run("remote", func(t *testing.T) {
		repo, _ := newTestRepository(t, newFakeRemote(), nil)
		types, err := repo.AllTypes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"fire", "grass", "normal", "water"}, types)
	})

	t.Run("falls back to cache", func(t *testing.T) {
		remote := newFakeRemote()
		remote.failTypes = true
		repo, s := newTestRepository(t, remote, nil)
		seed(t, s,
			pokemon(6, "charizard", "fire", "flying"),
			pokemon(1, "bulbasaur", "grass", "poison"),
		)

		types, err := repo.AllTypes(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{"fire", "flying", "grass", "poison"}, types)
	})
}

func TestStats_TimeSpent(t *testing.T) {
	repo, _ := newTestRepository(t, newFakeRemote(), nil)
	ctx := context.Background()

	require.NoError(t, repo.InitializeStats(ctx))
	require.NoError(t, repo.AddTimeSpent(ctx, 1500))
	require.NoError(t, repo.AddTimeSpent(ctx, 2500))

	st, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4000), st.TotalTimeSpentMs)
	assert.False(t, st.LastActiveAt.Before(st.CreatedAt))

	err = repo.AddTimeSpent(ctx, -1)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func TestClose_CancelsBackgroundRefresh(t *testing.T) {
	remote := newFakeRemote(charFamily()...)
	remote.gate = make(chan struct{}) // never opened
	repo, s := newTestRepository(t, remote, nil)
	seed(t, s, pokemon(4, "charmander", "fire"))

	_, err := repo.NameSearch("char").Load(context.Background(), 0)
	require.NoError(t, err)

	closed := make(chan struct{})
	go func() {
		repo.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close did not cancel the background refresh")
	}

	assert.False(t, repo.sup.Go("late", func(context.Context) error { return nil }))
}
