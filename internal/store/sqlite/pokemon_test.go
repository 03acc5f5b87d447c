package sqlite

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pokepi/pokepi-server/internal/domain"
	"github.com/pokepi/pokepi-server/internal/store"
)

func ids(items []domain.Pokemon) []int {
	out := make([]int, 0, len(items))
	for _, p := range items {
		out = append(out, p.ID)
	}
	return out
}

func TestGetPokemon_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := testPokemon(1, "bulbasaur", "grass", "poison")
	in.ViewCount = 3
	require.NoError(t, s.UpsertPokemon(ctx, in))

	got, err := s.GetPokemon(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestGetPokemon_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetPokemon(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpsertPokemon_ReplaceKeepsOneRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := testPokemon(7, "squirtle", "water")
	first.ViewCount = 5
	require.NoError(t, s.UpsertPokemon(ctx, first))

	second := testPokemon(7, "squirtle", "water")
	second.Height = 99
	require.NoError(t, s.UpsertPokemon(ctx, second))

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetPokemon(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 99, got.Height)
	// Plain upsert replaces local fields too.
	assert.Equal(t, 0, got.ViewCount)
}

func TestUpsertPreservingLocal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cached := testPokemon(4, "charmander", "fire")
	cached.ViewCount = 12
	cached.FirstSeenAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertPokemon(ctx, cached))

	fresh := testPokemon(4, "charmander", "fire")
	fresh.Weight = 85
	fresh.ViewCount = 0
	fresh.FirstSeenAt = time.Now()

	stored, err := s.UpsertPreservingLocal(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, 85, stored.Weight)
	assert.Equal(t, 12, stored.ViewCount)
	assert.True(t, cached.FirstSeenAt.Equal(stored.FirstSeenAt))

	got, err := s.GetPokemon(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 85, got.Weight)
	assert.Equal(t, 12, got.ViewCount)
	assert.True(t, cached.FirstSeenAt.Equal(got.FirstSeenAt))
}

func TestUpsertPreservingLocal_NewRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	fresh := testPokemon(25, "pikachu", "electric")
	stored, err := s.UpsertPreservingLocal(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, *fresh, *stored)
}

func TestUpsertPreservingLocal_Concurrent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.UpsertPreservingLocal(ctx, testPokemon(i%5+1, "mon", "normal"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestUpsertPokemonBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	items := []domain.Pokemon{
		*testPokemon(1, "bulbasaur", "grass"),
		*testPokemon(2, "ivysaur", "grass"),
		*testPokemon(1, "bulbasaur", "grass"),
	}
	require.NoError(t, s.UpsertPokemonBatch(ctx, items))

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListPokemon_OrderedByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []int{3, 1, 2} {
		require.NoError(t, s.UpsertPokemon(ctx, testPokemon(id, "mon", "normal")))
	}

	items, err := s.ListPokemon(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 1, items[0].ID)
	assert.Equal(t, 2, items[1].ID)

	items, err = s.ListPokemon(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 3, items[0].ID)
}

func TestSearchByName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []struct {
		id   int
		name string
	}{
		{4, "charmander"}, {5, "charmeleon"}, {6, "charizard"}, {1, "bulbasaur"}, {2, "mr_mime"},
	} {
		require.NoError(t, s.UpsertPokemon(ctx, testPokemon(p.id, p.name, "fire")))
	}

	items, err := s.SearchByName(ctx, "CHAR", 20, 0)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []int{4, 5, 6}, ids(items))

	n, err := s.CountByName(ctx, "char")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err = s.SearchByName(ctx, "char", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{6}, ids(items))

	// Wildcards are literal.
	n, err = s.CountByName(ctx, "_")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSearchByType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(1, "bulbasaur", "grass", "poison")))
	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(4, "charmander", "fire")))
	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(6, "charizard", "fire", "flying")))

	items, err := s.SearchByType(ctx, "fire", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 6}, ids(items))

	n, err := s.CountByType(ctx, "poison")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The type URL is not part of the searchable list.
	n, err = s.CountByType(ctx, "pokeapi")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIncrementViewCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(1, "bulbasaur", "grass")))

	n, err := s.IncrementViewCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.IncrementViewCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = s.IncrementViewCount(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearPokemon_KeepsFavorites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(1, "bulbasaur", "grass")))
	_, err := s.ToggleFavorite(ctx, "ash", 1, time.Now())
	require.NoError(t, err)

	require.NoError(t, s.ClearPokemon(ctx))

	n, err := s.CountPokemon(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	fav, err := s.IsFavorite(ctx, "ash", 1)
	require.NoError(t, err)
	assert.True(t, fav)
}

func TestDistinctTypeNames(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(1, "bulbasaur", "grass", "poison")))
	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(6, "charizard", "fire", "flying")))
	require.NoError(t, s.UpsertPokemon(ctx, testPokemon(4, "charmander", "fire")))

	names, err := s.DistinctTypeNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fire", "flying", "grass", "poison"}, names)
}
