package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcoot/typeroom/internal/dependencies/clock"
	"github.com/mcoot/typeroom/internal/model"
)

// DevJWTSecret is the shared secret used when none is configured. Never use it in production.
const DevJWTSecret = "typeroom-dev-secret-change-me"

// Errors
var (
	ErrUnverifiedIdentity = errors.New("identity could not be verified")
	ErrMissingToken       = fmt.Errorf("%w: missing token", ErrUnverifiedIdentity)
	ErrTokenExpired       = fmt.Errorf("%w: token expired", ErrUnverifiedIdentity)
	ErrNoSecret           = errors.New("auth secret is not configured")
)

// Verifier turns an identity token issued by the external provider into a trusted identity
type Verifier interface {
	Verify(ctx context.Context, token string) (model.Identity, error)
}

// Config holds configuration for token verification
type Config struct {
	// JWTSecret is the HS256 key shared with the identity provider
	JWTSecret string `mapstructure:"jwt_secret"`

	// Issuer, if set, must match the token's iss claim
	Issuer string `mapstructure:"issuer"`

	// TokenTTL is the lifetime of tokens minted by Issue
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// DefaultConfig returns default auth configuration
func DefaultConfig() Config {
	return Config{
		Issuer:   "typeroom",
		TokenTTL: 24 * time.Hour,
	}
}

// Claims are the identity claims carried in a token
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies and issues HS256 identity tokens
type JWTVerifier struct {
	secret []byte
	cfg    Config
	clock  clock.Clock
}

// Ensure JWTVerifier implements Verifier
var _ Verifier = (*JWTVerifier)(nil)

// NewJWTVerifier creates a verifier for the configured shared secret
func NewJWTVerifier(cfg Config, clk clock.Clock) (*JWTVerifier, error) {
	if cfg.JWTSecret == "" {
		return nil, ErrNoSecret
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultConfig().TokenTTL
	}
	return &JWTVerifier{
		secret: []byte(cfg.JWTSecret),
		cfg:    cfg,
		clock:  clk,
	}, nil
}

// Verify checks the token signature and expiry and returns the identity it asserts
func (v *JWTVerifier) Verify(_ context.Context, token string) (model.Identity, error) {
	if token == "" {
		return model.Identity{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return model.Identity{}, ErrTokenExpired
		}
		return model.Identity{}, fmt.Errorf("%w: %w", ErrUnverifiedIdentity, err)
	}

	if claims.Subject == "" {
		return model.Identity{}, fmt.Errorf("%w: token has no subject", ErrUnverifiedIdentity)
	}

	return model.Identity{
		ID:    model.UserID(claims.Subject),
		Name:  claims.Name,
		Email: claims.Email,
	}, nil
}

// Issue mints a token for the identity, signed with the shared secret
func (v *JWTVerifier) Issue(id model.Identity) (string, error) {
	now := v.clock.Now()
	claims := Claims{
		Name:  id.Name,
		Email: id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			Issuer:    v.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.cfg.TokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
