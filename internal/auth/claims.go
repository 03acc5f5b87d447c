package auth

import "time"

// AccessClaims are the claims carried by a v4.local access token. The token
// is encrypted, so clients cannot read them.
type AccessClaims struct {
	Username string `json:"username"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}
