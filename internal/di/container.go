// Package di provides dependency injection configuration for the PokePI server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/pokepi/pokepi-server/internal/auth"
	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/di/providers"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/logger"
	"github.com/pokepi/pokepi-server/internal/notify"
	"github.com/pokepi/pokepi-server/internal/session"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)
	do.Provide(injector, providers.ProvideAuthKey)

	// Storage layer
	do.Provide(injector, providers.ProvideSSEManager)
	do.Provide(injector, providers.ProvideCatalogStore)
	do.Provide(injector, providers.ProvideKVStore)

	// Remote source
	do.Provide(injector, providers.ProvidePokeAPIClient)

	// Auth layer
	do.Provide(injector, providers.ProvideTokenService)
	do.Provide(injector, providers.ProvideTokenStore)
	do.Provide(injector, providers.ProvideLocalAccounts)

	// Business services
	do.Provide(injector, providers.ProvideSettingsStore)
	do.Provide(injector, providers.ProvideIntentQueue)
	do.Provide(injector, providers.ProvideNotifier)
	do.Provide(injector, providers.ProvideRepository)

	// Workers
	do.Provide(injector, providers.ProvideFeaturedJob)
	do.Provide(injector, providers.ProvideSessionWatcher)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	_ = do.MustInvoke[*config.Config](injector)
	_ = do.MustInvoke[*logger.Logger](injector)
	_ = do.MustInvoke[providers.AuthKey](injector)
	_ = do.MustInvoke[*providers.SSEManagerHandle](injector)
	_ = do.MustInvoke[*providers.CatalogStoreHandle](injector)
	_ = do.MustInvoke[*providers.KVStoreHandle](injector)
	_ = do.MustInvoke[*providers.PokeAPIClientHandle](injector)
	_ = do.MustInvoke[*auth.TokenService](injector)
	_ = do.MustInvoke[*session.TokenStore](injector)
	_ = do.MustInvoke[*session.LocalAccounts](injector)

	// Business services
	_ = do.MustInvoke[*notify.SettingsStore](injector)
	_ = do.MustInvoke[*intent.Queue](injector)
	_ = do.MustInvoke[*notify.Notifier](injector)
	_ = do.MustInvoke[*providers.RepositoryHandle](injector)

	// Workers
	_ = do.MustInvoke[*providers.FeaturedJobHandle](injector)
	_ = do.MustInvoke[*providers.SessionWatcher](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
