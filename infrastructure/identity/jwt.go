// Package identity provides the identity providers that resolve callers
// into actors.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/felixgeelhaar/mutaflow/domain/identity"
)

// ErrWeakSecret is returned when the signing secret is too short.
var ErrWeakSecret = errors.New("identity: jwt secret must be at least 32 bytes")

// Claims are the JWT claims carried by mutaflow bearer tokens.
type Claims struct {
	jwt.RegisteredClaims
	Role  identity.Role `json:"role"`
	Scope string        `json:"scope,omitempty"`
}

// JWTConfig configures the JWT provider.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// JWTProvider validates and issues HS256 bearer tokens.
type JWTProvider struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTProvider creates a provider from cfg.
func NewJWTProvider(cfg JWTConfig) (*JWTProvider, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrWeakSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &JWTProvider{
		secret:   append([]byte(nil), cfg.Secret...),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// Authenticate parses token and returns the actor it names.
func (p *JWTProvider) Authenticate(_ context.Context, token string) (identity.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return identity.Actor{}, identity.ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	if p.audience != "" {
		opts = append(opts, jwt.WithAudience(p.audience))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return identity.Actor{}, fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, err)
	}
	if !parsed.Valid {
		return identity.Actor{}, identity.ErrInvalidCredentials
	}
	if claims.Subject == "" {
		return identity.Actor{}, fmt.Errorf("%w: token subject is required", identity.ErrInvalidCredentials)
	}

	role, err := identity.ParseRole(string(claims.Role))
	if err != nil {
		return identity.Actor{}, fmt.Errorf("%w: %w", identity.ErrInvalidCredentials, err)
	}

	return identity.Actor{
		ID:    claims.Subject,
		Role:  role,
		Scope: strings.TrimSpace(claims.Scope),
	}, nil
}

// Issue signs a token for actor. A non-positive ttl uses the provider default.
func (p *JWTProvider) Issue(actor identity.Actor, ttl time.Duration) (string, error) {
	if actor.ID == "" {
		return "", fmt.Errorf("%w: actor id is required", identity.ErrInvalidCredentials)
	}
	if _, err := identity.ParseRole(string(actor.Role)); err != nil {
		return "", err
	}
	if ttl <= 0 {
		ttl = p.ttl
	}

	now := p.now().UTC()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role:  actor.Role,
		Scope: actor.Scope,
	}
	if p.audience != "" {
		claims.Audience = jwt.ClaimStrings{p.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

var _ identity.Provider = (*JWTProvider)(nil)
