// Package store is the key-value store for small, observable records: the
// bearer token and username, local accounts and notification settings.
// Catalog data lives in the sqlite subpackage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/pb"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Store wraps a Badger database instance.
type Store struct {
	db     *badger.DB
	logger *slog.Logger
}

// New opens a Badger database at path.
func New(path string, logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil            // Badger's own logger is too chatty
	opts.SyncWrites = true       // Session writes must survive a crash
	opts.CompactL0OnClose = true // Compact L0 tables on close for faster startup
	return open(opts, logger)
}

// NewInMemory opens a volatile store. Used by tests.
func NewInMemory(logger *slog.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	return open(opts, logger)
}

func open(opts badger.Options, logger *slog.Logger) (*Store, error) {
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	if logger != nil {
		logger.Info("Badger database opened", "path", opts.Dir, "in_memory", opts.InMemory)
	}
	return &Store{db: db, logger: logger}, nil
}

// Close gracefully closes the database connection.
func (s *Store) Close() error {
	if s.logger != nil {
		s.logger.Info("Closing key-value store")
	}
	return s.db.Close()
}

// Get decodes the JSON value stored under key into dest.
func (s *Store) Get(ctx context.Context, key string, dest any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dest)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return NotFound(key)
	}
	return err
}

// Set stores value under key as JSON.
func (s *Store) Set(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Create stores value under key only if the key is absent.
func (s *Store) Create(ctx context.Context, key string, value any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err == nil {
			return Exists(key)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set([]byte(key), data)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DeletePrefix removes every key starting with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(prefix))
}

// Keys returns every key starting with prefix, in byte order.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

// Change is one committed write observed by Watch. Deleted is true when the
// key was removed; Value is then nil.
type Change struct {
	Key     string
	Value   []byte
	Deleted bool
}

// watchMarker tags the keys WatchReady writes to detect a live subscription.
const watchMarker = "\x00watch:"

// markerInterval spaces the marker writes of WatchReady.
const markerInterval = 25 * time.Millisecond

// Watch calls fn for every write to a key under one of prefixes until ctx is
// done. It blocks; run it in its own goroutine. Writes committed before the
// subscription is live are not observed; use WatchReady to know when it is.
func (s *Store) Watch(ctx context.Context, fn func(Change), prefixes ...string) error {
	return s.WatchReady(ctx, nil, fn, prefixes...)
}

// WatchReady is Watch with a readiness callback. Once the subscription is
// live, ready runs on the delivery goroutine: every write committed after
// that point reaches fn, and fn never runs before ready has returned.
// Changes seen before then are dropped, so ready should read whatever state
// the caller tracks. An error from ready ends the watch and is returned.
func (s *Store) WatchReady(ctx context.Context, ready func() error, fn func(Change), prefixes ...string) error {
	if len(prefixes) == 0 {
		return errors.New("watch: at least one prefix is required")
	}
	matches := make([]pb.Match, 0, len(prefixes))
	for _, p := range prefixes {
		matches = append(matches, pb.Match{Prefix: []byte(p)})
	}

	var (
		marker string
		live   = make(chan struct{})
	)
	if ready == nil {
		close(live)
	} else {
		token, err := gonanoid.New()
		if err != nil {
			return fmt.Errorf("watch marker: %w", err)
		}
		marker = prefixes[0] + watchMarker + token
		go s.announce(ctx, marker, live)
	}

	err := s.db.Subscribe(ctx, func(kvs *badger.KVList) error {
		for _, kv := range kvs.GetKv() {
			key := string(kv.GetKey())
			if strings.Contains(key, watchMarker) {
				if key == marker && !isClosed(live) {
					close(live)
					if err := ready(); err != nil {
						return err
					}
				}
				continue
			}
			if !isClosed(live) {
				continue
			}
			fn(Change{
				Key:     key,
				Value:   kv.GetValue(),
				Deleted: len(kv.GetValue()) == 0,
			})
		}
		return nil
	}, matches)
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// announce writes marker until the subscription reports it live, then
// removes it.
func (s *Store) announce(ctx context.Context, marker string, live <-chan struct{}) {
	defer func() {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(marker))
		})
		if err != nil && s.logger != nil {
			s.logger.Debug("failed to remove watch marker", "key", marker, "error", err)
		}
	}()

	ticker := time.NewTicker(markerInterval)
	defer ticker.Stop()
	for {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(marker), []byte{1})
		})
		if err != nil && s.logger != nil {
			s.logger.Debug("failed to write watch marker", "key", marker, "error", err)
		}
		select {
		case <-live:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Key joins key parts with ':'.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}
