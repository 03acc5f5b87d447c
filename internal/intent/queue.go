// Package intent holds pending navigation intents: small records produced by
// notifications ("open favorites at item 25") that a client drains on its next
// visit. The queue is an explicit dependency rather than process-wide state.
package intent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pokepi/pokepi-server/internal/id"
	"github.com/pokepi/pokepi-server/internal/store"
)

// Kind names the screen an intent points at.
type Kind string

const (
	// KindFavorites opens the favorites list scrolled to ItemID.
	KindFavorites Kind = "favorites"
	// KindDetail opens the detail view of ItemID.
	KindDetail Kind = "detail"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindFavorites || k == KindDetail
}

// Intent is one pending navigation request.
type Intent struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	Kind      Kind      `json:"kind"`
	ItemID    int       `json:"item_id"`
}

// MaxPending bounds the intents kept per user; the oldest are discarded.
const MaxPending = 20

// Queue stores intents per user in the key-value store.
type Queue struct {
	kv     *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewQueue creates a Queue over kv.
func NewQueue(kv *store.Store, logger *slog.Logger) *Queue {
	return &Queue{kv: kv, logger: logger, now: time.Now}
}

func userPrefix(userID string) string {
	return store.Key("intent", userID) + ":"
}

// Enqueue records an intent for userID.
func (q *Queue) Enqueue(ctx context.Context, userID string, kind Kind, itemID int) (*Intent, error) {
	if userID == "" {
		return nil, errors.New("intent requires a user")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown intent kind %q", kind)
	}

	intentID, err := id.Generate(id.PrefixIntent)
	if err != nil {
		return nil, err
	}
	in := &Intent{
		ID:        intentID,
		UserID:    userID,
		Kind:      kind,
		ItemID:    itemID,
		CreatedAt: q.now(),
	}

	// Timestamp first in the key keeps iteration in enqueue order.
	key := userPrefix(userID) + sortableTime(in.CreatedAt) + ":" + intentID
	if err := q.kv.Set(ctx, key, in); err != nil {
		return nil, fmt.Errorf("enqueue intent: %w", err)
	}

	if err := q.trim(ctx, userID); err != nil {
		q.logger.Warn("failed to trim intent queue", "user_id", userID, "error", err)
	}
	return in, nil
}

// Pending returns userID's intents, oldest first, without removing them.
func (q *Queue) Pending(ctx context.Context, userID string) ([]Intent, error) {
	out, _, err := q.load(ctx, userID)
	return out, err
}

// Drain returns userID's intents, oldest first, and removes them.
func (q *Queue) Drain(ctx context.Context, userID string) ([]Intent, error) {
	out, keys, err := q.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if err := q.kv.Delete(ctx, k); err != nil {
			return nil, fmt.Errorf("remove intent: %w", err)
		}
	}
	return out, nil
}

func (q *Queue) load(ctx context.Context, userID string) ([]Intent, []string, error) {
	if userID == "" {
		return nil, nil, nil
	}
	keys, err := q.kv.Keys(ctx, userPrefix(userID))
	if err != nil {
		return nil, nil, fmt.Errorf("list intents: %w", err)
	}

	out := make([]Intent, 0, len(keys))
	found := make([]string, 0, len(keys))
	for _, k := range keys {
		var in Intent
		err := q.kv.Get(ctx, k, &in)
		if errors.Is(err, store.ErrNotFound) {
			// Drained concurrently.
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read intent: %w", err)
		}
		in.UserID = userID
		out = append(out, in)
		found = append(found, k)
	}
	return out, found, nil
}

func (q *Queue) trim(ctx context.Context, userID string) error {
	keys, err := q.kv.Keys(ctx, userPrefix(userID))
	if err != nil {
		return err
	}
	if len(keys) <= MaxPending {
		return nil
	}
	slices.Sort(keys)
	for _, k := range keys[:len(keys)-MaxPending] {
		if err := q.kv.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// sortableTime zero-pads so byte order matches numeric order.
func sortableTime(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}
