package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityEcho(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFromContext(r.Context())
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)

		return
	}

	if identity.IsAdmin {
		w.Header().Set("X-Admin", "true")
	}

	w.Write([]byte(identity.UserID)) //nolint:errcheck
}

func newTokenRouter(a *JWTAuth) chi.Router {
	ja := a.Verifier()

	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(ja), jwtauth.Authenticator(ja), TokenIdentity)
	r.Get("/me", identityEcho)
	r.With(RequireAdmin).Get("/admin", identityEcho)

	return r
}

func serve(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func TestCreateJWTString(t *testing.T) {
	a := NewJWTAuth([]byte("secret"))

	_, err := a.CreateJWTString(accounts.Identity{})
	require.ErrorIs(t, err, ErrSubjectEmpty)

	token, err := a.CreateJWTString(accounts.Identity{UserID: "user-1", IsAdmin: true})
	require.NoError(t, err)

	parsed, err := jwtauth.VerifyToken(a.Verifier(), token)
	require.NoError(t, err)

	assert.Equal(t, "user-1", parsed.Subject())
	assert.Equal(t, "fundledger", parsed.Issuer())

	isAdmin, ok := parsed.Get("is_admin")
	require.True(t, ok)
	assert.Equal(t, true, isAdmin)
}

func TestTokenIdentity(t *testing.T) {
	a := NewJWTAuth([]byte("secret"))
	r := newTokenRouter(a)

	userToken, err := a.CreateJWTString(accounts.Identity{UserID: "user-1"})
	require.NoError(t, err)

	adminToken, err := a.CreateJWTString(accounts.Identity{UserID: "admin-1", IsAdmin: true})
	require.NoError(t, err)

	forged, err := NewJWTAuth([]byte("other")).CreateJWTString(accounts.Identity{UserID: "admin-1", IsAdmin: true})
	require.NoError(t, err)

	expired, err := NewJWTAuth([]byte("secret"),
		WithClock(func() time.Time { return time.Now().Add(-48 * time.Hour) }),
	).CreateJWTString(accounts.Identity{UserID: "user-1"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		path  string
		token string
		code  int
		body  string
	}{
		{name: "user", path: "/me", token: userToken, code: http.StatusOK, body: "user-1"},
		{name: "no token", path: "/me", code: http.StatusUnauthorized},
		{name: "forged", path: "/me", token: forged, code: http.StatusUnauthorized},
		{name: "expired", path: "/me", token: expired, code: http.StatusUnauthorized},
		{name: "user on admin route", path: "/admin", token: userToken, code: http.StatusForbidden},
		{name: "admin", path: "/admin", token: adminToken, code: http.StatusOK, body: "admin-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(r, tt.path, tt.token)

			assert.Equal(t, tt.code, rec.Code)

			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

type stubProvider struct {
	identities map[string]accounts.Identity
}

func (p stubProvider) GetIdentity(_ context.Context, token string) (accounts.Identity, error) {
	identity, ok := p.identities[token]
	if !ok {
		return accounts.Identity{}, errors.New("unknown token")
	}

	return identity, nil
}

func TestProviderIdentity(t *testing.T) {
	idp := stubProvider{identities: map[string]accounts.Identity{
		"t-admin": {UserID: "admin-1", IsAdmin: true},
	}}

	r := chi.NewRouter()
	r.Use(ProviderIdentity(idp, slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.Get("/me", identityEcho)

	rec := serve(r, "/me", "t-admin")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin-1", rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get("X-Admin"))

	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "t-unknown").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "/me", "").Code)
}
