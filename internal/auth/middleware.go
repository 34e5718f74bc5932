package auth

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/go-chi/jwtauth/v5"
)

type ctxKey struct{}

// IdentityProvider resolves a bearer token against a remote identity service.
type IdentityProvider interface {
	GetIdentity(ctx context.Context, token string) (accounts.Identity, error)
}

func WithIdentity(ctx context.Context, identity accounts.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (accounts.Identity, bool) {
	identity, ok := ctx.Value(ctxKey{}).(accounts.Identity)

	return identity, ok
}

func unauthorized(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

// TokenIdentity builds the identity from a token already checked by
// jwtauth.Verifier and jwtauth.Authenticator.
func TokenIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if err != nil || token == nil || token.Subject() == "" {
			unauthorized(w)

			return
		}

		isAdmin, _ := claims["is_admin"].(bool)

		identity := accounts.Identity{UserID: token.Subject(), IsAdmin: isAdmin}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

// ProviderIdentity resolves the bearer token with idp on every request.
func ProviderIdentity(idp IdentityProvider, logger *slog.Logger) func(http.Handler) http.Handler {
	log := logger.With(slog.String("module", "auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwtauth.TokenFromHeader(r)
			if token == "" {
				unauthorized(w)

				return
			}

			identity, err := idp.GetIdentity(r.Context(), token)
			if err != nil {
				log.Warn("idp.GetIdentity", slog.Any("error", err))
				unauthorized(w)

				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequireAdmin rejects callers without the reviewer capability.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			unauthorized(w)

			return
		}

		if !identity.IsAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)

			return
		}

		next.ServeHTTP(w, r)
	})
}
