package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/pokepi/pokepi-server/internal/session"
)

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getAuthStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/status",
		Summary:     "Get auth status",
		Description: "Reports whether local accounts exist and who holds the current session",
		Tags:        []string{"Auth"},
	}, s.handleAuthStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "register",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/register",
		Summary:     "Register",
		Description: "Creates a local account",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.rateLimitAuth},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/login",
		Summary:     "Login",
		Description: "Authenticates a local account and returns an access token",
		Tags:        []string{"Auth"},
		Middlewares: huma.Middlewares{s.rateLimitAuth},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/api/v1/auth/logout",
		Summary:     "Logout",
		Description: "Ends the current user's session",
		Tags:        []string{"Auth"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLogout)

	huma.Register(s.api, huma.Operation{
		OperationID: "getCurrentUser",
		Method:      http.MethodGet,
		Path:        "/api/v1/auth/me",
		Summary:     "Get current user",
		Description: "Returns the authenticated account",
		Tags:        []string{"Auth"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetCurrentUser)

	huma.Register(s.api, huma.Operation{
		OperationID: "setBiometric",
		Method:      http.MethodPut,
		Path:        "/api/v1/auth/biometric",
		Summary:     "Set biometric unlock",
		Description: "Stores the account's biometric unlock preference",
		Tags:        []string{"Auth"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSetBiometric)
}

// === DTOs ===

// AuthStatusResponse describes the installation's auth state.
type AuthStatusResponse struct {
	LocalAuthEnabled bool   `json:"local_auth_enabled" doc:"Whether any local account is registered"`
	SignedIn         bool   `json:"signed_in" doc:"Whether a session is stored"`
	Username         string `json:"username,omitempty" doc:"Username of the stored session"`
	InstallationID   string `json:"installation_id" doc:"Stable identifier of this installation"`
}

// AuthStatusOutput wraps the auth status for Huma.
type AuthStatusOutput struct {
	Body AuthStatusResponse
}

// CredentialsInput carries a username and password.
type CredentialsInput struct {
	Body session.Credentials
}

// AccountResponse is the public view of an account.
type AccountResponse struct {
	Username         string    `json:"username" doc:"Account username"`
	CreatedAt        time.Time `json:"created_at" doc:"Registration time"`
	LastLoginAt      time.Time `json:"last_login_at,omitzero" doc:"Last successful login"`
	BiometricEnabled bool      `json:"biometric_enabled" doc:"Biometric unlock preference"`
}

// AccountOutput wraps an account for Huma.
type AccountOutput struct {
	Body AccountResponse
}

// AuthResponse is returned by a successful login.
type AuthResponse struct {
	AccessToken string    `json:"access_token" doc:"PASETO bearer token"`
	TokenType   string    `json:"token_type" doc:"Always Bearer"`
	ExpiresAt   time.Time `json:"expires_at" doc:"Token expiry"`
	Username    string    `json:"username" doc:"Authenticated username"`
}

// AuthOutput wraps the login result for Huma.
type AuthOutput struct {
	Body AuthResponse
}

// BiometricInput toggles biometric unlock.
type BiometricInput struct {
	Body struct {
		Enabled bool `json:"enabled" doc:"Enable biometric unlock"`
	}
}

// === Handlers ===

func (s *Server) handleAuthStatus(ctx context.Context, _ *struct{}) (*AuthStatusOutput, error) {
	enabled, err := s.services.Accounts.IsLocalAuthEnabled(ctx)
	if err != nil {
		return nil, err
	}
	installID, err := s.services.Session.InstallationID(ctx)
	if err != nil {
		return nil, err
	}
	username, signedIn := s.services.Session.CurrentUser(ctx)
	return &AuthStatusOutput{Body: AuthStatusResponse{
		LocalAuthEnabled: enabled,
		SignedIn:         signedIn,
		Username:         username,
		InstallationID:   installID,
	}}, nil
}

func (s *Server) handleRegister(ctx context.Context, input *CredentialsInput) (*AccountOutput, error) {
	acct, err := s.services.Accounts.Register(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &AccountOutput{Body: toAccountResponse(acct)}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *CredentialsInput) (*AuthOutput, error) {
	res, err := s.services.Accounts.Login(ctx, input.Body)
	if err != nil {
		return nil, err
	}
	return &AuthOutput{Body: AuthResponse{
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.ExpiresAt,
		Username:    res.Username,
	}}, nil
}

func (s *Server) handleLogout(ctx context.Context, _ *struct{}) (*MessageOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Accounts.Logout(ctx, userID); err != nil {
		return nil, err
	}
	return &MessageOutput{Body: MessageResponse{Message: "Logged out"}}, nil
}

func (s *Server) handleGetCurrentUser(ctx context.Context, _ *struct{}) (*AccountOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	acct, err := s.services.Accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &AccountOutput{Body: toAccountResponse(acct)}, nil
}

func (s *Server) handleSetBiometric(ctx context.Context, input *BiometricInput) (*AccountOutput, error) {
	userID, err := GetUserID(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.services.Accounts.SetBiometricEnabled(ctx, userID, input.Body.Enabled); err != nil {
		return nil, err
	}
	return s.handleGetCurrentUser(ctx, nil)
}

func toAccountResponse(acct *session.Account) AccountResponse {
	return AccountResponse{
		Username:         acct.Username,
		CreatedAt:        acct.CreatedAt,
		LastLoginAt:      acct.LastLoginAt,
		BiometricEnabled: acct.BiometricEnabled,
	}
}
