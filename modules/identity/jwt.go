package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/go-monolith/mono/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
)

// Claims are the credential claims the resolver consumes.
type Claims struct {
	UserID string `json:"id,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// PrincipalID returns the principal identifier carried by the token.
func (c *Claims) PrincipalID() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// TokenVerifier checks token signatures and expiry. It verifies either
// HS256 tokens against a shared secret or tokens signed by keys from a JWKS endpoint.
type TokenVerifier struct {
	secret []byte
	issuer string
	jwks   *keyfunc.JWKS
}

// NewHMACVerifier creates a verifier for HS256 tokens.
func NewHMACVerifier(secret, issuer string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}
}

// NewJWKSVerifier creates a verifier that fetches and caches signing keys from jwksURL.
// Background refresh failures are logged; the last good key set stays in use.
func NewJWKSVerifier(ctx context.Context, jwksURL, issuer string, logger types.Logger) (*TokenVerifier, error) {
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Ctx:                 ctx,
		RefreshInterval:     5 * time.Minute,
		RefreshRateLimit:    time.Minute,
		RefreshUnknownKID:   true,
		RefreshErrorHandler: refreshErrorHandler(jwksURL, logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	return &TokenVerifier{jwks: jwks, issuer: issuer}, nil
}

func refreshErrorHandler(jwksURL string, logger types.Logger) func(error) {
	return func(err error) {
		logger.Warn("JWKS refresh failed", "url", jwksURL, "error", err)
	}
}

// Verify validates the token and returns its claims.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, v.keyFunc, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.PrincipalID() == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (v *TokenVerifier) keyFunc(token *jwt.Token) (any, error) {
	if v.jwks != nil {
		return v.jwks.Keyfunc(token)
	}
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, ErrInvalidToken
	}
	return v.secret, nil
}

// Close stops the JWKS background refresh, if any.
func (v *TokenVerifier) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}
