package auth

import (
	"encoding/json"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"

	"github.com/pokepi/pokepi-server/internal/id"
)

const (
	tokenIssuer   = "pokepi-server"
	tokenAudience = "pokepi-client"
)

// TokenService issues and verifies v4.local access tokens.
type TokenService struct {
	key      paseto.V4SymmetricKey
	duration time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service for a 32-byte key.
func NewTokenService(key []byte, duration time.Duration) (*TokenService, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("token key must be %d bytes, got %d", KeySize, len(key))
	}
	if duration <= 0 {
		return nil, fmt.Errorf("token duration must be positive, got %s", duration)
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}
	return &TokenService{key: k, duration: duration, now: time.Now}, nil
}

// Issue returns a new access token for username.
func (s *TokenService) Issue(username string) (string, *AccessClaims, error) {
	now := s.now()
	tokenID, err := id.Generate(id.PrefixToken)
	if err != nil {
		return "", nil, fmt.Errorf("generate token ID: %w", err)
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(username)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(now.Add(s.duration))
	token.SetJti(tokenID)
	token.SetString("username", username)

	claims := &AccessClaims{
		Username:   username,
		Issuer:     tokenIssuer,
		Subject:    username,
		Audience:   tokenAudience,
		Expiration: now.Add(s.duration),
		NotBefore:  now,
		IssuedAt:   now,
		TokenID:    tokenID,
	}
	return token.V4Encrypt(s.key, nil), claims, nil
}

// Verify decrypts token and checks issuer, audience and validity window.
func (s *TokenService) Verify(token string) (*AccessClaims, error) {
	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))
	parser.AddRule(paseto.ValidAt(s.now()))

	parsed, err := parser.ParseV4Local(s.key, token, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var claims AccessClaims
	if err := json.Unmarshal(parsed.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("parse claims: %w", err)
	}
	if claims.Username == "" {
		return nil, fmt.Errorf("invalid token: missing username")
	}
	return &claims, nil
}

// Duration returns the token lifetime.
func (s *TokenService) Duration() time.Duration {
	return s.duration
}
