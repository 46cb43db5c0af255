// AngelaMos | 2026
// jwt.go

package auth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"github.com/carterperez-dev/templates/billing-entitlements/internal/config"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/core"
	"github.com/carterperez-dev/templates/billing-entitlements/internal/middleware"
)

const defaultRole = "user"

// Verifier checks ES256 access tokens minted by the identity service. It only
// holds the public key.
type Verifier struct {
	publicKey jwk.Key
	config    config.JWTConfig
}

func NewVerifier(cfg config.JWTConfig) (*Verifier, error) {
	publicKeyPEM, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}

	publicKey, err := jwk.ParseKey(publicKeyPEM, jwk.WithPEM(true))
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}

	return NewVerifierFromKey(publicKey, cfg)
}

func NewVerifierFromKey(publicKey jwk.Key, cfg config.JWTConfig) (*Verifier, error) {
	if setErr := publicKey.Set(jwk.AlgorithmKey, jwa.ES256()); setErr != nil {
		return nil, fmt.Errorf("set algorithm: %w", setErr)
	}

	return &Verifier{
		publicKey: publicKey,
		config:    cfg,
	}, nil
}

func (v *Verifier) VerifyAccessToken(
	ctx context.Context,
	tokenString string,
) (*middleware.AccessTokenClaims, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.ES256(), v.publicKey),
		jwt.WithValidate(true),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}
	if v.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.config.Audience))
	}

	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		if isTokenExpiredError(err) {
			return nil, fmt.Errorf("verify token: %w", core.ErrTokenExpired)
		}
		return nil, fmt.Errorf("verify token: %w", core.ErrTokenInvalid)
	}

	var tokenType string
	if err := token.Get("type", &tokenType); err != nil ||
		tokenType != "access" {
		return nil, fmt.Errorf(
			"verify token: invalid token type: %w",
			core.ErrTokenInvalid,
		)
	}

	subject, ok := token.Subject()
	if !ok || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf(
			"verify token: missing subject: %w",
			core.ErrTokenInvalid,
		)
	}

	role := defaultRole
	var roleStr string
	if err := token.Get("role", &roleStr); err == nil && roleStr != "" {
		role = roleStr
	}

	var email string
	//nolint:errcheck // email is optional
	_ = token.Get("email", &email)

	return &middleware.AccessTokenClaims{
		UserID: subject,
		Email:  email,
		Role:   role,
	}, nil
}

func isTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "exp") &&
		strings.Contains(errStr, "not satisfied")
}
