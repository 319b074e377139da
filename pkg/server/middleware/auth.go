package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/de-tools/waste-atlas/pkg/auth"
	"github.com/de-tools/waste-atlas/pkg/models/api"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Verifier turns a bearer token into a principal.
type Verifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticate rejects requests without a valid bearer token and stores the
// principal in the request context.
func Authenticate(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token := extractToken(req)
			if token == "" {
				writeError(w, req, http.StatusUnauthorized, "missing bearer token")
				return
			}

			principal, err := verifier.Verify(token)
			if err != nil {
				zerolog.Ctx(req.Context()).Debug().Err(err).Msg("token rejected")
				writeError(w, req, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			logger := zerolog.Ctx(req.Context()).With().
				Str("subject", principal.Subject).
				Str("role", string(principal.Role)).
				Logger()
			ctx := logger.WithContext(auth.WithPrincipal(req.Context(), principal))

			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

// Require lets the request through only when the principal holds capability.
func Require(capability auth.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			principal, ok := auth.PrincipalFrom(req.Context())
			if !ok {
				writeError(w, req, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !principal.Can(capability) {
				writeError(w, req, http.StatusForbidden, "missing capability "+string(capability))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// ClientScope rejects principals bound to a client other than the one named
// by the {client} route parameter.
func ClientScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		principal, ok := auth.PrincipalFrom(req.Context())
		if !ok {
			writeError(w, req, http.StatusUnauthorized, "unauthenticated")
			return
		}
		if !principal.CanAccessClient(chi.URLParam(req, "client")) {
			writeError(w, req, http.StatusForbidden, "client is outside the caller's scope")
			return
		}
		next.ServeHTTP(w, req)
	})
}

func extractToken(req *http.Request) string {
	header := req.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, req *http.Request, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(api.Error{Error: msg}); err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Msg("failed to encode error response")
	}
}
