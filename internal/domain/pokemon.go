// Package domain contains the core entities of the PokePI catalog: the cached
// Pokémon records, per-user favorites, aggregate stats and the upstream
// listing shapes they are synced from.
package domain

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Pokemon is a catalog item. The descriptive fields mirror the upstream detail
// record; ViewCount, FirstSeenAt and IsFavorite are owned locally and survive
// every remote refresh.
type Pokemon struct {
	ID             int           `json:"id"`
	Name           string        `json:"name"`
	Height         int           `json:"height"`
	Weight         int           `json:"weight"`
	BaseExperience *int          `json:"base_experience"`
	Sprites        Sprites       `json:"sprites"`
	Abilities      []AbilitySlot `json:"abilities"`
	Stats          []StatValue   `json:"stats"`
	Types          []TypeSlot    `json:"types"`
	ViewCount      int           `json:"view_count"`
	FirstSeenAt    time.Time     `json:"first_seen_at"`

	// IsFavorite is filled from the favorites join table for the requesting
	// user. It is never persisted with the item.
	IsFavorite bool `json:"is_favorite"`
}

// Sprites holds the media references of a Pokémon.
type Sprites struct {
	FrontDefault *string       `json:"front_default"`
	FrontShiny   *string       `json:"front_shiny"`
	BackDefault  *string       `json:"back_default"`
	Other        *SpritesOther `json:"other,omitempty"`
}

// SpritesOther holds the alternate artwork sets.
type SpritesOther struct {
	OfficialArtwork *Artwork `json:"official-artwork,omitempty"`
	DreamWorld      *Artwork `json:"dream_world,omitempty"`
}

// Artwork is a single alternate image.
type Artwork struct {
	FrontDefault *string `json:"front_default"`
}

// AbilitySlot is one entry of the abilities sublist.
type AbilitySlot struct {
	Ability  NamedResource `json:"ability"`
	IsHidden bool          `json:"is_hidden"`
	Slot     int           `json:"slot"`
}

// StatValue is one entry of the base stats sublist.
type StatValue struct {
	BaseStat int           `json:"base_stat"`
	Effort   int           `json:"effort"`
	Stat     NamedResource `json:"stat"`
}

// TypeSlot is one entry of the types sublist.
type TypeSlot struct {
	Slot int           `json:"slot"`
	Type NamedResource `json:"type"`
}

// TypeNames returns the item's type names in slot order.
func (p *Pokemon) TypeNames() []string {
	slots := slices.Clone(p.Types)
	slices.SortFunc(slots, func(a, b TypeSlot) int { return a.Slot - b.Slot })

	names := make([]string, 0, len(slots))
	for _, t := range slots {
		names = append(names, t.Type.Name)
	}
	return names
}

// ArtworkURL returns the best available image, preferring official artwork.
func (p *Pokemon) ArtworkURL() string {
	if o := p.Sprites.Other; o != nil && o.OfficialArtwork != nil && o.OfficialArtwork.FrontDefault != nil {
		return *o.OfficialArtwork.FrontDefault
	}
	if p.Sprites.FrontDefault != nil {
		return *p.Sprites.FrontDefault
	}
	return ""
}

// PreserveLocal returns p with the locally-owned fields copied from existing.
// A nil existing returns p unchanged.
func (p Pokemon) PreserveLocal(existing *Pokemon) Pokemon {
	if existing == nil {
		return p
	}
	p.ViewCount = existing.ViewCount
	p.FirstSeenAt = existing.FirstSeenAt
	p.IsFavorite = existing.IsFavorite
	return p
}

// NamedResource is the {name, url} reference used throughout the upstream API.
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID parses the integer key from the trailing path segment of the URL,
// e.g. ".../pokemon/25/" yields 25.
func (r NamedResource) ID() (int, error) {
	trimmed := strings.TrimRight(r.URL, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return 0, fmt.Errorf("no id segment in %q", r.URL)
	}
	n, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil {
		return 0, fmt.Errorf("parse id from %q: %w", r.URL, err)
	}
	return n, nil
}

// ListPage is one page of the upstream catalog listing.
type ListPage struct {
	Count    int             `json:"count"`
	Next     *string         `json:"next"`
	Previous *string         `json:"previous"`
	Results  []NamedResource `json:"results"`
}

// TypeMember is one Pokémon reference inside a type category.
type TypeMember struct {
	Pokemon NamedResource `json:"pokemon"`
	Slot    int           `json:"slot"`
}

// TypeCategory is an upstream type with its member list.
type TypeCategory struct {
	ID      int          `json:"id"`
	Name    string       `json:"name"`
	Members []TypeMember `json:"pokemon"`
}

// KnownTypes are the eighteen canonical types, sorted.
var KnownTypes = []string{
	"bug", "dark", "dragon", "electric", "fairy", "fighting",
	"fire", "flying", "ghost", "grass", "ground", "ice",
	"normal", "poison", "psychic", "rock", "steel", "water",
}

// IsKnownType reports whether name is one of KnownTypes.
func IsKnownType(name string) bool {
	_, found := slices.BinarySearch(KnownTypes, name)
	return found
}
