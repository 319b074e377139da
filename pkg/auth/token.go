package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

type Settings struct {
	// Secret signs and verifies HS256 tokens
	Secret string `mapstructure:"secret" validate:"omitempty,min=16"`
	// Issuer is written to and required from every token (default: waste-atlas)
	Issuer string `mapstructure:"issuer"`
	// TokenTTL is the lifetime of issued tokens (default: 12h)
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

func DefaultSettings() Settings {
	return Settings{
		Issuer:   "waste-atlas",
		TokenTTL: 12 * time.Hour,
	}
}

type claims struct {
	Role     string `json:"role"`
	ClientID string `json:"client_id,omitempty"`
	jwt.RegisteredClaims
}

type TokenVerifier struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenVerifier(settings Settings) (*TokenVerifier, error) {
	if settings.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	ttl := settings.TokenTTL
	if ttl <= 0 {
		ttl = DefaultSettings().TokenTTL
	}
	return &TokenVerifier{
		secret: []byte(settings.Secret),
		issuer: settings.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for the principal.
func (v *TokenVerifier) Issue(p Principal) (string, error) {
	if err := validatePrincipal(p); err != nil {
		return "", err
	}

	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role:     string(p.Role),
		ClientID: p.ClientID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
	})

	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (v *TokenVerifier) Verify(tokenString string) (Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	_, err := jwt.ParseWithClaims(tokenString, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	role, err := ParseRole(c.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	p := Principal{Subject: c.Subject, Role: role, ClientID: c.ClientID}
	if err := validatePrincipal(p); err != nil {
		return Principal{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return p, nil
}

func validatePrincipal(p Principal) error {
	if p.Subject == "" {
		return fmt.Errorf("subject is required")
	}
	if _, ok := roleCapabilities[p.Role]; !ok {
		return fmt.Errorf("unknown role: %q", p.Role)
	}
	if p.Role != RoleAdmin && p.ClientID == "" {
		return fmt.Errorf("role %s requires a client id", p.Role)
	}
	return nil
}
