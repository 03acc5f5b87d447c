package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/pokepi/pokepi-server/internal/auth"
	"github.com/pokepi/pokepi-server/internal/catalog"
	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/logger"
	"github.com/pokepi/pokepi-server/internal/notify"
	"github.com/pokepi/pokepi-server/internal/pokeapi"
	"github.com/pokepi/pokepi-server/internal/session"
)

// PokeAPIClientHandle wraps the remote client with shutdown capability.
type PokeAPIClientHandle struct {
	*pokeapi.Client
}

// Shutdown implements do.Shutdownable.
func (h *PokeAPIClientHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvidePokeAPIClient provides the rate-limited PokeAPI client.
func ProvidePokeAPIClient(i do.Injector) (*PokeAPIClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client, err := pokeapi.New(cfg.PokeAPI, log.Component("pokeapi"))
	if err != nil {
		return nil, err
	}
	return &PokeAPIClientHandle{Client: client}, nil
}

// ProvideTokenStore provides the session token store.
func ProvideTokenStore(i do.Injector) (*session.TokenStore, error) {
	kv := do.MustInvoke[*KVStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return session.NewTokenStore(kv.Store, log.Component("session")), nil
}

// ProvideLocalAccounts provides the local account service.
func ProvideLocalAccounts(i do.Injector) (*session.LocalAccounts, error) {
	kv := do.MustInvoke[*KVStoreHandle](i)
	tokens := do.MustInvoke[*auth.TokenService](i)
	tokenStore := do.MustInvoke[*session.TokenStore](i)
	log := do.MustInvoke[*logger.Logger](i)

	return session.NewLocalAccounts(kv.Store, tokens, tokenStore, log.Component("accounts")), nil
}

// ProvideSettingsStore provides the notification settings store.
func ProvideSettingsStore(i do.Injector) (*notify.SettingsStore, error) {
	kv := do.MustInvoke[*KVStoreHandle](i)
	return notify.NewSettingsStore(kv.Store), nil
}

// ProvideIntentQueue provides the pending intent queue.
func ProvideIntentQueue(i do.Injector) (*intent.Queue, error) {
	kv := do.MustInvoke[*KVStoreHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return intent.NewQueue(kv.Store, log.Component("intents")), nil
}

// ProvideNotifier provides the favorite-added notifier.
func ProvideNotifier(i do.Injector) (*notify.Notifier, error) {
	settings := do.MustInvoke[*notify.SettingsStore](i)
	intents := do.MustInvoke[*intent.Queue](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	log := do.MustInvoke[*logger.Logger](i)

	return notify.NewNotifier(settings, intents, sseHandle.Manager, log.Component("notify")), nil
}

// RepositoryHandle wraps the catalog repository so background sync work is
// canceled on shutdown.
type RepositoryHandle struct {
	*catalog.Repository
}

// Shutdown implements do.Shutdownable.
func (h *RepositoryHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideRepository provides the cache-first catalog repository and
// initializes the stats row.
func ProvideRepository(i do.Injector) (*RepositoryHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	remote := do.MustInvoke[*PokeAPIClientHandle](i)
	db := do.MustInvoke[*CatalogStoreHandle](i)
	notifier := do.MustInvoke[*notify.Notifier](i)

	repo := catalog.NewRepository(remote.Client, db.Store, notifier, cfg.Sync, log.Component("catalog"))
	if err := repo.InitializeStats(context.Background()); err != nil {
		repo.Close()
		return nil, err
	}

	log.Info("Catalog repository ready",
		"page_size", cfg.Sync.PageSize,
		"bulk_concurrency", cfg.Sync.BulkConcurrency,
	)
	return &RepositoryHandle{Repository: repo}, nil
}
