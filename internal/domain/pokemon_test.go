package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedResource_ID(t *testing.T) {
	tests := []struct {
		url     string
		want    int
		wantErr bool
	}{
		{"https://pokeapi.co/api/v2/pokemon/25/", 25, false},
		{"https://pokeapi.co/api/v2/pokemon/1", 1, false},
		{"https://pokeapi.co/api/v2/type/10/", 10, false},
		{"https://pokeapi.co/api/v2/pokemon/pikachu/", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := NamedResource{Name: "x", URL: tt.url}.ID()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPokemon_PreserveLocal(t *testing.T) {
	firstSeen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	existing := &Pokemon{ID: 4, Name: "charmander", Height: 6, ViewCount: 9, FirstSeenAt: firstSeen, IsFavorite: true}
	fresh := Pokemon{ID: 4, Name: "charmander", Height: 7, ViewCount: 0, FirstSeenAt: time.Now()}

	merged := fresh.PreserveLocal(existing)

	assert.Equal(t, 7, merged.Height)
	assert.Equal(t, 9, merged.ViewCount)
	assert.Equal(t, firstSeen, merged.FirstSeenAt)
	assert.True(t, merged.IsFavorite)

	assert.Equal(t, fresh, fresh.PreserveLocal(nil))
}

func TestPokemon_DecodeUpstreamDetail(t *testing.T) {
	body := `{
		"id": 6, "name": "charizard", "height": 17, "weight": 905, "base_experience": 267,
		"sprites": {"front_default": "f.png", "front_shiny": null, "back_default": "b.png",
			"other": {"official-artwork": {"front_default": "art.png"}, "dream_world": {"front_default": null}}},
		"abilities": [{"ability": {"name": "blaze", "url": "u"}, "is_hidden": false, "slot": 1}],
		"stats": [{"base_stat": 78, "effort": 0, "stat": {"name": "hp", "url": "u"}}],
		"types": [{"slot": 2, "type": {"name": "flying", "url": "u"}}, {"slot": 1, "type": {"name": "fire", "url": "u"}}]
	}`

	var p Pokemon
	require.NoError(t, json.Unmarshal([]byte(body), &p))

	assert.Equal(t, 6, p.ID)
	require.NotNil(t, p.BaseExperience)
	assert.Equal(t, 267, *p.BaseExperience)
	assert.Equal(t, "art.png", p.ArtworkURL())
	assert.Equal(t, []string{"fire", "flying"}, p.TypeNames())
	assert.Equal(t, "blaze", p.Abilities[0].Ability.Name)
	assert.Equal(t, 78, p.Stats[0].BaseStat)
	assert.Zero(t, p.ViewCount)
}

func TestPokemon_ArtworkFallback(t *testing.T) {
	front := "front.png"
	p := Pokemon{Sprites: Sprites{FrontDefault: &front}}
	assert.Equal(t, "front.png", p.ArtworkURL())
	assert.Empty(t, (&Pokemon{}).ArtworkURL())
}

func TestIsKnownType(t *testing.T) {
	assert.Len(t, KnownTypes, 18)
	assert.True(t, IsKnownType("fire"))
	assert.True(t, IsKnownType("water"))
	assert.False(t, IsKnownType("shadow"))
	assert.False(t, IsKnownType("unknown"))
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name               string
		page, size, total  int
		wantStart, wantEnd int
		wantPrev, wantNext *int
	}{
		{"first of many", 0, 20, 45, 0, 20, nil, ptr(1)},
		{"last partial", 2, 20, 45, 40, 45, ptr(1), nil},
		{"exact end", 1, 20, 40, 20, 40, ptr(0), nil},
		{"past end", 5, 20, 45, 100, 100, ptr(4), nil},
		{"empty set", 0, 20, 0, 0, 0, nil, nil},
		{"small set", 0, 20, 5, 0, 5, nil, nil},
		{"offset overflows", 461168601842738791, 20, 45, math.MaxInt, math.MaxInt, ptr(461168601842738790), nil},
		{"largest page", math.MaxInt, 1, 45, math.MaxInt, math.MaxInt, ptr(math.MaxInt - 1), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, prev, next := Window(tt.page, tt.size, tt.total)
			assert.Equal(t, tt.wantStart, start)
			assert.Equal(t, tt.wantEnd, end)
			assert.Equal(t, tt.wantPrev, prev)
			assert.Equal(t, tt.wantNext, next)
		})
	}
}

func ptr(n int) *int { return &n }
