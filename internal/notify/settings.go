// Package notify produces user-facing notifications: the favorite-added
// message fired after a toggle, and the periodic featured item. Delivery goes
// through the event stream; navigation targets go through the intent queue.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/pokepi/pokepi-server/internal/store"
)

// Settings are the notification preferences. Every flag defaults to true.
type Settings struct {
	NotificationsEnabled   bool `json:"notifications_enabled"`
	ItemOfTheDayEnabled    bool `json:"item_of_the_day_enabled"`
	FavoriteUpdatesEnabled bool `json:"favorite_updates_enabled"`
	AppUpdatesEnabled      bool `json:"app_updates_enabled"`
}

// DefaultSettings returns the preferences used before anything is saved.
func DefaultSettings() Settings {
	return Settings{
		NotificationsEnabled:   true,
		ItemOfTheDayEnabled:    true,
		FavoriteUpdatesEnabled: true,
		AppUpdatesEnabled:      true,
	}
}

// SettingsUpdate changes the flags that are non-nil.
type SettingsUpdate struct {
	NotificationsEnabled   *bool `json:"notifications_enabled,omitempty"`
	ItemOfTheDayEnabled    *bool `json:"item_of_the_day_enabled,omitempty"`
	FavoriteUpdatesEnabled *bool `json:"favorite_updates_enabled,omitempty"`
	AppUpdatesEnabled      *bool `json:"app_updates_enabled,omitempty"`
}

func (u SettingsUpdate) apply(s Settings) Settings {
	if u.NotificationsEnabled != nil {
		s.NotificationsEnabled = *u.NotificationsEnabled
	}
	if u.ItemOfTheDayEnabled != nil {
		s.ItemOfTheDayEnabled = *u.ItemOfTheDayEnabled
	}
	if u.FavoriteUpdatesEnabled != nil {
		s.FavoriteUpdatesEnabled = *u.FavoriteUpdatesEnabled
	}
	if u.AppUpdatesEnabled != nil {
		s.AppUpdatesEnabled = *u.AppUpdatesEnabled
	}
	return s
}

// AllowsFavoriteUpdates reports whether favorite-added messages are wanted.
func (s Settings) AllowsFavoriteUpdates() bool {
	return s.NotificationsEnabled && s.FavoriteUpdatesEnabled
}

// AllowsItemOfTheDay reports whether the featured item is wanted.
func (s Settings) AllowsItemOfTheDay() bool {
	return s.NotificationsEnabled && s.ItemOfTheDayEnabled
}

// SettingsStore persists Settings per user in the key-value store. The empty
// user holds the installation-wide preferences.
type SettingsStore struct {
	kv *store.Store
}

// NewSettingsStore creates a SettingsStore over kv.
func NewSettingsStore(kv *store.Store) *SettingsStore {
	return &SettingsStore{kv: kv}
}

func settingsKey(userID string) string {
	if userID == "" {
		return "settings:notifications"
	}
	return store.Key("settings", "notifications", userID)
}

// Get returns userID's settings, or the defaults when none are saved.
func (s *SettingsStore) Get(ctx context.Context, userID string) (Settings, error) {
	var out Settings
	err := s.kv.Get(ctx, settingsKey(userID), &out)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read notification settings: %w", err)
	}
	return out, nil
}

// Update applies u to userID's settings and returns the result.
func (s *SettingsStore) Update(ctx context.Context, userID string, u SettingsUpdate) (Settings, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return Settings{}, err
	}
	next := u.apply(current)
	if err := s.kv.Set(ctx, settingsKey(userID), next); err != nil {
		return Settings{}, fmt.Errorf("save notification settings: %w", err)
	}
	return next, nil
}
