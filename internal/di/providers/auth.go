package providers

import (
	"github.com/samber/do/v2"

	"github.com/pokepi/pokepi-server/internal/auth"
	"github.com/pokepi/pokepi-server/internal/config"
	"github.com/pokepi/pokepi-server/internal/logger"
)

// AuthKey wraps the authentication key bytes.
type AuthKey []byte

// ProvideAuthKey uses the configured access token key, or loads or generates
// one in the data directory.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key := cfg.Auth.AccessTokenKey
	if len(key) == 0 {
		var err error
		key, err = auth.LoadOrGenerateKey(cfg.Data.BasePath)
		if err != nil {
			return nil, err
		}
		cfg.Auth.AccessTokenKey = key
	}

	log.Info("Authentication key loaded",
		"access_token_duration", cfg.Auth.AccessTokenDuration,
	)

	return AuthKey(key), nil
}

// ProvideTokenService provides the PASETO token service.
func ProvideTokenService(i do.Injector) (*auth.TokenService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	authKey := do.MustInvoke[AuthKey](i)

	return auth.NewTokenService([]byte(authKey), cfg.Auth.AccessTokenDuration)
}
