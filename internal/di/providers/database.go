package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/logger"
	"github.com/pokepi/pokepi-server/internal/sse"
	"github.com/pokepi/pokepi-server/internal/store"
	"github.com/pokepi/pokepi-server/internal/store/sqlite"
)

// SSEManagerHandle wraps the SSE manager with its context for lifecycle management.
type SSEManagerHandle struct {
	*sse.Manager
	cancel context.CancelFunc
}

// Shutdown implements do.Shutdownable.
func (h *SSEManagerHandle) Shutdown() error {
	h.cancel()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Manager.Shutdown(ctx)
}

// ProvideSSEManager provides the server-sent events manager.
func ProvideSSEManager(i do.Injector) (*SSEManagerHandle, error) {
	log := do.MustInvoke[*logger.Logger](i)

	manager := sse.NewManager(log.Component("sse"))

	// Start in background
	ctx, cancel := context.WithCancel(context.Background())
	go manager.Start(ctx)

	log.Info("SSE manager started")

	return &SSEManagerHandle{
		Manager: manager,
		cancel:  cancel,
	}, nil
}

// CatalogStoreHandle wraps the SQLite catalog store with shutdown capability.
type CatalogStoreHandle struct {
	*sqlite.Store
}

// Shutdown implements do.Shutdownable.
func (h *CatalogStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideCatalogStore opens the SQLite catalog and applies migrations.
func ProvideCatalogStore(i do.Injector) (*CatalogStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	path := cfg.SQLitePath()
	db, err := sqlite.Open(path, log.Component("sqlite"))
	if err != nil {
		return nil, err
	}

	version, err := db.SchemaVersion(context.Background())
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("Catalog database initialized", "path", path, "schema_version", version)

	return &CatalogStoreHandle{Store: db}, nil
}

// KVStoreHandle wraps the Badger key-value store with shutdown capability.
type KVStoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *KVStoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideKVStore opens the Badger store holding the session, accounts,
// notification settings and intents.
func ProvideKVStore(i do.Injector) (*KVStoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	kv, err := store.New(cfg.KVPath(), log.Component("kv"))
	if err != nil {
		return nil, err
	}
	return &KVStoreHandle{Store: kv}, nil
}
