package idpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/user" || r.Header.Get("apikey") != "anon-key" {
			w.WriteHeader(http.StatusNotFound)

			return
		}

		w.Header().Set("Content-Type", "application/json")

		switch r.Header.Get("Authorization") {
		case "Bearer user-token":
			w.Write([]byte(`{"id":"user-1","email":"u@example.com","app_metadata":{}}`)) //nolint:errcheck
		case "Bearer admin-token":
			w.Write([]byte(`{"id":"admin-1","app_metadata":{"role":"admin"}}`)) //nolint:errcheck
		case "Bearer flag-token":
			w.Write([]byte(`{"id":"admin-2","app_metadata":{"is_admin":true}}`)) //nolint:errcheck
		case "Bearer empty-token":
			w.Write([]byte(`{"id":""}`)) //nolint:errcheck
		case "Bearer busy-token":
			w.WriteHeader(http.StatusTooManyRequests)
		case "Bearer broken-token":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"invalid JWT"}`)) //nolint:errcheck
		}
	}))

	t.Cleanup(srv.Close)

	return srv
}

func TestGetIdentity(t *testing.T) {
	srv := newTestServer(t)

	client := New(
		WithAPIKey("anon-key"),
		WithClient(httpclient.New(
			httpclient.WithBaseURL(srv.URL),
			httpclient.WithRetryCount(1),
			httpclient.WithRetryWaitTime(time.Millisecond),
		)),
	)

	tests := []struct {
		token   string
		want    accounts.Identity
		wantErr error
	}{
		{token: "user-token", want: accounts.Identity{UserID: "user-1"}},
		{token: "admin-token", want: accounts.Identity{UserID: "admin-1", IsAdmin: true}},
		{token: "flag-token", want: accounts.Identity{UserID: "admin-2", IsAdmin: true}},
		{token: "expired-token", wantErr: ErrTokenInvalid},
		{token: "empty-token", wantErr: ErrTokenInvalid},
		{token: "busy-token", wantErr: ErrTooManyRequests},
		{token: "broken-token", wantErr: ErrSomethingWentWrong},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := client.GetIdentity(context.Background(), tt.token)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetIdentityMissingAPIKey(t *testing.T) {
	srv := newTestServer(t)

	client := New(WithClient(httpclient.New(httpclient.WithBaseURL(srv.URL), httpclient.WithRetryCount(0))))

	_, err := client.GetIdentity(context.Background(), "user-token")
	require.ErrorIs(t, err, ErrUnexpectedStatus)
}
