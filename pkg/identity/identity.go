// Package identity establishes who the caller is. Sign-in hands the
// storefront a signed token from the identity provider; the principal in
// that token is what the backend authorizes against.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/lensshop/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredential = errors.New("invalid identity credential")
	ErrAnonymous         = errors.New("anonymous caller")
)

var signingMethod = jwt.SigningMethodHS256

type Identity struct {
	Principal string
	Token     string
}

func (i Identity) Anonymous() bool {
	return strings.TrimSpace(i.Principal) == ""
}

// Provider turns a sign-in credential into an Identity.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (Identity, error)
}

type JWTProvider struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTProvider(cfg config.IdentityConfig) (*JWTProvider, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("identity secret is required")
	}
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("identity issuer is required")
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTProvider{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Mint issues a token for principal. The development backend and tests use
// it; in production tokens come from the external provider.
func (p *JWTProvider) Mint(principal string) (string, error) {
	if strings.TrimSpace(principal) == "" {
		return "", ErrAnonymous
	}
	now := p.now()
	claims := jwt.RegisteredClaims{
		Subject:   principal,
		Issuer:    p.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, nil
}

func (p *JWTProvider) Authenticate(_ context.Context, credential string) (Identity, error) {
	token := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if token == "" {
		return Identity{}, ErrInvalidCredential
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Identity{}, ErrAnonymous
	}
	return Identity{Principal: claims.Subject, Token: token}, nil
}

type ctxKey struct{}

func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok && !id.Anonymous()
}
