package api

import (
	"github.com/pokepi/pokepi-server/internal/catalog"
	"github.com/pokepi/pokepi-server/internal/intent"
	"github.com/pokepi/pokepi-server/internal/notify"
	"github.com/pokepi/pokepi-server/internal/session"
)

// Services groups the services the handlers call.
type Services struct {
	Catalog  *catalog.Repository
	Accounts *session.LocalAccounts
	Session  *session.TokenStore
	Settings *notify.SettingsStore
	Intents  *intent.Queue
}
