package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestPrincipal_Can(t *testing.T) {
	tests := []struct {
		role Role
		cap  Capability
		want bool
	}{
		{RoleAdmin, CapAuditsRun, true},
		{RoleAuditor, CapInventorySweep, true},
		{RoleAnalyst, CapFindingsResolve, true},
		{RoleAnalyst, CapAuditsRun, false},
		{RoleViewer, CapFindingsRead, true},
		{RoleViewer, CapFindingsResolve, false},
		{Role("root"), CapFindingsRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+" "+string(tt.cap), func(t *testing.T) {
			assert.Equal(t, tt.want, Principal{Role: tt.role}.Can(tt.cap))
		})
	}
}

func TestPrincipal_CanAccessClient(t *testing.T) {
	assert.True(t, Principal{Role: RoleAdmin}.CanAccessClient("acme"))
	assert.True(t, Principal{Role: RoleViewer, ClientID: "acme"}.CanAccessClient("acme"))
	assert.False(t, Principal{Role: RoleViewer, ClientID: "acme"}.CanAccessClient("globex"))
	assert.False(t, Principal{Role: RoleAuditor}.CanAccessClient(""))
}

func TestParseRole(t *testing.T) {
	role, err := ParseRole(" Auditor ")
	require.NoError(t, err)
	assert.Equal(t, RoleAuditor, role)

	_, err = ParseRole("owner")
	assert.Error(t, err)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFrom(context.Background())
	assert.False(t, ok)

	p := Principal{Subject: "alice", Role: RoleViewer, ClientID: "acme"}
	got, ok := PrincipalFrom(WithPrincipal(context.Background(), p))
	require.True(t, ok)
	assert.Equal(t, p, got)
}

func TestTokenVerifier(t *testing.T) {
	_, err := NewTokenVerifier(Settings{})
	assert.Error(t, err)

	settings := DefaultSettings()
	settings.Secret = secret
	v, err := NewTokenVerifier(settings)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		p := Principal{Subject: "alice", Role: RoleAnalyst, ClientID: "acme"}
		token, err := v.Issue(p)
		require.NoError(t, err)

		got, err := v.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	})

	t.Run("non admin without client", func(t *testing.T) {
		_, err := v.Issue(Principal{Subject: "bob", Role: RoleViewer})
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.Issue(Principal{Subject: "root", Role: RoleAdmin})
		require.NoError(t, err)

		later := *v
		later.now = func() time.Time { return time.Now().Add(13 * time.Hour) }
		_, err = later.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewTokenVerifier(Settings{Secret: "another-secret-of-32-characters!", Issuer: "waste-atlas"})
		require.NoError(t, err)
		token, err := other.Issue(Principal{Subject: "root", Role: RoleAdmin})
		require.NoError(t, err)

		_, err = v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unexpected signing method", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims{
			Role: string(RoleAdmin),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "root",
				Issuer:    "waste-atlas",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = v.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
			Role: "owner",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "root",
				Issuer:    "waste-atlas",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		signed, err := token.SignedString([]byte(secret))
		require.NoError(t, err)

		_, err = v.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
