package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pokepi/pokepi-server/internal/auth"
	domainerrors "github.com/pokepi/pokepi-server/internal/errors"
	"github.com/pokepi/pokepi-server/internal/store"
	"github.com/pokepi/pokepi-server/internal/validation"
)

const accountPrefix = "account:"

// Account is a locally registered user. The password is stored as an argon2id
// PHC string.
type Account struct {
	CreatedAt        time.Time `json:"created_at"`
	LastLoginAt      time.Time `json:"last_login_at,omitzero"`
	Username         string    `json:"username"`
	PasswordHash     string    `json:"password_hash"`
	BiometricEnabled bool      `json:"biometric_enabled"`
	LoggedIn         bool      `json:"logged_in"`
}

// Credentials is the input to Register and Login.
type Credentials struct {
	Username string `json:"username" validate:"required,notblank,max=64"`
	Password string `json:"password" validate:"required,min=4,max=1024"`
}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	ExpiresAt   time.Time `json:"expires_at"`
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
}

// LocalAccounts registers and authenticates local accounts and keeps the
// TokenStore in step with the signed-in account.
type LocalAccounts struct {
	kv        *store.Store
	tokens    *auth.TokenService
	session   *TokenStore
	validator *validation.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewLocalAccounts creates the local account service.
func NewLocalAccounts(kv *store.Store, tokens *auth.TokenService, session *TokenStore, logger *slog.Logger) *LocalAccounts {
	return &LocalAccounts{
		kv:        kv,
		tokens:    tokens,
		session:   session,
		validator: validation.New(),
		logger:    logger,
		now:       time.Now,
	}
}

func accountKey(username string) string {
	return store.Key("account", strings.ToLower(username))
}

// Register creates an account. Usernames are case-insensitive and must not be
// blank; passwords need at least auth.MinPasswordLength characters.
func (a *LocalAccounts) Register(ctx context.Context, creds Credentials) (*Account, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if err := a.validator.Validate(creds); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		return nil, domainerrors.Validation(err.Error())
	}

	acct := &Account{
		Username:     creds.Username,
		PasswordHash: hash,
		CreatedAt:    a.now(),
	}
	err = a.kv.Create(ctx, accountKey(creds.Username), acct)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil, domainerrors.AlreadyExists("username is already registered")
	}
	if err != nil {
		return nil, domainerrors.Persistence(err, "register account")
	}

	a.logger.Info("local account registered", "username", acct.Username)
	return acct, nil
}

// Login checks the credentials, marks the account as logged in, issues an
// access token and stores it as the current session.
func (a *LocalAccounts) Login(ctx context.Context, creds Credentials) (*LoginResult, error) {
	creds.Username = strings.TrimSpace(creds.Username)
	if creds.Username == "" || creds.Password == "" {
		return nil, domainerrors.InvalidCredentials("invalid username or password")
	}

	acct, err := a.get(ctx, creds.Username)
	if errors.Is(err, domainerrors.ErrNotFound) {
		// Hash anyway so unknown usernames cost the same as wrong passwords.
		_, _ = auth.HashPassword(creds.Password)
		return nil, domainerrors.InvalidCredentials("invalid username or password")
	}
	if err != nil {
		return nil, err
	}
	if !auth.VerifyPassword(acct.PasswordHash, creds.Password) {
		a.logger.Info("local login rejected", "username", acct.Username)
		return nil, domainerrors.InvalidCredentials("invalid username or password")
	}

	token, claims, err := a.tokens.Issue(acct.Username)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "issue access token")
	}

	acct.LoggedIn = true
	acct.LastLoginAt = a.now()
	if err := a.kv.Set(ctx, accountKey(acct.Username), acct); err != nil {
		return nil, domainerrors.Persistence(err, "update account")
	}
	if err := a.session.SaveAccessToken(ctx, token); err != nil {
		return nil, domainerrors.Persistence(err, "save session")
	}
	if err := a.session.SaveUserLogin(ctx, acct.Username); err != nil {
		return nil, domainerrors.Persistence(err, "save session")
	}

	a.logger.Info("local login succeeded", "username", acct.Username)
	return &LoginResult{
		AccessToken: token,
		Username:    acct.Username,
		ExpiresAt:   claims.Expiration,
	}, nil
}

// Authenticate verifies a bearer token and returns the username it was issued
// to. The account must still exist and be logged in.
func (a *LocalAccounts) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return "", domainerrors.Unauthorized("invalid or expired access token")
	}
	acct, err := a.get(ctx, claims.Username)
	if errors.Is(err, domainerrors.ErrNotFound) {
		return "", domainerrors.Unauthorized("account no longer exists")
	}
	if err != nil {
		return "", err
	}
	if !acct.LoggedIn {
		return "", domainerrors.Unauthorized("session has ended")
	}
	return acct.Username, nil
}

// Logout clears the logged-in flag and, when the current session belongs to
// username, the stored session.
func (a *LocalAccounts) Logout(ctx context.Context, username string) error {
	acct, err := a.get(ctx, username)
	if err != nil {
		return err
	}
	acct.LoggedIn = false
	if err := a.kv.Set(ctx, accountKey(acct.Username), acct); err != nil {
		return domainerrors.Persistence(err, "update account")
	}

	current, err := a.session.UserLogin(ctx)
	if err != nil {
		return domainerrors.Persistence(err, "read session")
	}
	if strings.EqualFold(current, acct.Username) {
		if err := a.session.Clear(ctx); err != nil {
			return domainerrors.Persistence(err, "clear session")
		}
	}
	a.logger.Info("local logout", "username", acct.Username)
	return nil
}

// Get returns the account registered as username.
func (a *LocalAccounts) Get(ctx context.Context, username string) (*Account, error) {
	return a.get(ctx, username)
}

// SetBiometricEnabled stores the account's biometric unlock preference.
func (a *LocalAccounts) SetBiometricEnabled(ctx context.Context, username string, enabled bool) error {
	acct, err := a.get(ctx, username)
	if err != nil {
		return err
	}
	acct.BiometricEnabled = enabled
	if err := a.kv.Set(ctx, accountKey(acct.Username), acct); err != nil {
		return domainerrors.Persistence(err, "update account")
	}
	return nil
}

// IsLocalAuthEnabled reports whether any local account has been registered.
func (a *LocalAccounts) IsLocalAuthEnabled(ctx context.Context) (bool, error) {
	keys, err := a.kv.Keys(ctx, accountPrefix)
	if err != nil {
		return false, domainerrors.Persistence(err, "list accounts")
	}
	return len(keys) > 0, nil
}

// Clear removes every local account and the current session.
func (a *LocalAccounts) Clear(ctx context.Context) error {
	if err := a.kv.DeletePrefix(ctx, accountPrefix); err != nil {
		return domainerrors.Persistence(err, "clear accounts")
	}
	if err := a.session.Clear(ctx); err != nil {
		return domainerrors.Persistence(err, "clear session")
	}
	return nil
}

func (a *LocalAccounts) get(ctx context.Context, username string) (*Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domainerrors.NotFoundf("account not found")
	}
	var acct Account
	err := a.kv.Get(ctx, accountKey(username), &acct)
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.NotFoundf("account %q not found", username)
	}
	if err != nil {
		return nil, domainerrors.Persistence(fmt.Errorf("read account: %w", err), "read account")
	}
	return &acct, nil
}
