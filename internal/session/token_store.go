// Package session keeps the signed-in identity: the bearer token and username
// of the current session, the local accounts that can produce one, and the
// installation ID. Everything is persisted in the key-value store so changes
// can be observed with Watch.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/pokepi/pokepi-server/internal/store"
)

const (
	sessionPrefix  = "session:"
	accessTokenKey = sessionPrefix + "access_token"
	userLoginKey   = sessionPrefix + "user_login"
	installIDKey   = "install:id"
)

// Snapshot is the session state delivered to Watch callbacks.
type Snapshot struct {
	AccessToken string
	UserLogin   string
}

// SignedIn reports whether both halves of the session are present.
func (s Snapshot) SignedIn() bool {
	return s.AccessToken != "" && s.UserLogin != ""
}

// TokenStore persists the current bearer token and username.
type TokenStore struct {
	kv     *store.Store
	logger *slog.Logger
}

// NewTokenStore creates a TokenStore over kv.
func NewTokenStore(kv *store.Store, logger *slog.Logger) *TokenStore {
	return &TokenStore{kv: kv, logger: logger}
}

// SaveAccessToken stores the bearer token.
func (t *TokenStore) SaveAccessToken(ctx context.Context, token string) error {
	if err := t.kv.Set(ctx, accessTokenKey, token); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

// AccessToken returns the stored token, or "" when there is none.
func (t *TokenStore) AccessToken(ctx context.Context) (string, error) {
	return t.getString(ctx, accessTokenKey)
}

// SaveUserLogin stores the username of the signed-in user.
func (t *TokenStore) SaveUserLogin(ctx context.Context, login string) error {
	if err := t.kv.Set(ctx, userLoginKey, login); err != nil {
		return fmt.Errorf("save user login: %w", err)
	}
	return nil
}

// UserLogin returns the stored username, or "" when there is none.
func (t *TokenStore) UserLogin(ctx context.Context) (string, error) {
	return t.getString(ctx, userLoginKey)
}

// Snapshot reads both session values.
func (t *TokenStore) Snapshot(ctx context.Context) (Snapshot, error) {
	token, err := t.AccessToken(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	login, err := t.UserLogin(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{AccessToken: token, UserLogin: login}, nil
}

// CurrentUser returns the signed-in username. The second result is false when
// no session exists or the store could not be read.
func (t *TokenStore) CurrentUser(ctx context.Context) (string, bool) {
	snap, err := t.Snapshot(ctx)
	if err != nil {
		t.logger.Warn("failed to read session", "error", err)
		return "", false
	}
	if !snap.SignedIn() {
		return "", false
	}
	return snap.UserLogin, true
}

// Clear removes the token and username. Keys are deleted one by one so that
// watchers observe the sign-out.
func (t *TokenStore) Clear(ctx context.Context) error {
	for _, key := range []string{accessTokenKey, userLoginKey} {
		if err := t.kv.Delete(ctx, key); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
	}
	return nil
}

// Watch calls fn with the current snapshot, then again after every change to
// the session, until ctx is done. It blocks.
//
// The snapshot is read only once the subscription is live, so a change that
// lands in between is either part of it or delivered after it.
func (t *TokenStore) Watch(ctx context.Context, fn func(Snapshot)) error {
	var snap Snapshot
	ready := func() error {
		var err error
		if snap, err = t.Snapshot(ctx); err != nil {
			return err
		}
		fn(snap)
		return nil
	}

	return t.kv.WatchReady(ctx, ready, func(c store.Change) {
		var value string
		if !c.Deleted {
			if err := json.Unmarshal(c.Value, &value); err != nil {
				t.logger.Warn("ignoring malformed session value", "key", c.Key, "error", err)
				return
			}
		}
		next := snap
		switch c.Key {
		case accessTokenKey:
			next.AccessToken = value
		case userLoginKey:
			next.UserLogin = value
		default:
			return
		}
		// Writes already reflected in the snapshot may still arrive.
		if next == snap {
			return
		}
		snap = next
		fn(snap)
	}, sessionPrefix)
}

// InstallationID returns the installation's stable identifier, creating it on
// first use.
func (t *TokenStore) InstallationID(ctx context.Context) (string, error) {
	existing, err := t.getString(ctx, installIDKey)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	fresh := uuid.NewString()
	err = t.kv.Create(ctx, installIDKey, fresh)
	if errors.Is(err, store.ErrAlreadyExists) {
		// Lost the race to another caller; theirs wins.
		return t.getString(ctx, installIDKey)
	}
	if err != nil {
		return "", fmt.Errorf("save installation id: %w", err)
	}
	return fresh, nil
}

func (t *TokenStore) getString(ctx context.Context, key string) (string, error) {
	var v string
	err := t.kv.Get(ctx, key, &v)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}
