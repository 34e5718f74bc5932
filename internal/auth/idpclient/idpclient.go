// Package idpclient asks a remote identity provider who a bearer token
// belongs to.
package idpclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andymarkow/fundledger/internal/domain/accounts"
	"github.com/andymarkow/fundledger/internal/httpclient"
	"github.com/go-resty/resty/v2"
)

var (
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTooManyRequests    = errors.New("too many requests")
	ErrSomethingWentWrong = errors.New("something went wrong")
	ErrUnexpectedStatus   = errors.New("unexpected status")
)

const roleAdmin = "admin"

// UserModel is the subset of the provider's user record the ledger needs.
type UserModel struct {
	ID          string `json:"id"`
	AppMetadata struct {
		Role    string `json:"role"`
		IsAdmin bool   `json:"is_admin"`
	} `json:"app_metadata"`
}

type IDPClient struct {
	log    *slog.Logger
	client *resty.Client
	apiKey string
}

func New(opts ...Option) *IDPClient {
	c := &IDPClient{
		log:    slog.Default(),
		client: httpclient.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With(slog.String("module", "idpclient"))

	return c
}

type Option func(c *IDPClient)

func WithLogger(logger *slog.Logger) Option {
	return func(c *IDPClient) {
		c.log = logger
	}
}

func WithClient(client *resty.Client) Option {
	return func(c *IDPClient) {
		c.client = client
	}
}

func WithAPIKey(apiKey string) Option {
	return func(c *IDPClient) {
		c.apiKey = apiKey
	}
}

// GetIdentity returns the identity the provider associates with token.
func (c *IDPClient) GetIdentity(ctx context.Context, token string) (accounts.Identity, error) {
	user := new(UserModel)

	req := c.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(user)

	if c.apiKey != "" {
		req.SetHeader("apikey", c.apiKey)
	}

	resp, err := req.Get("/auth/v1/user")
	if err != nil {
		return accounts.Identity{}, fmt.Errorf("client.R: %w", err)
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusOK:
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return accounts.Identity{}, ErrTokenInvalid
	case code == http.StatusTooManyRequests:
		return accounts.Identity{}, ErrTooManyRequests
	case code >= http.StatusInternalServerError:
		return accounts.Identity{}, ErrSomethingWentWrong
	default:
		return accounts.Identity{}, fmt.Errorf("%w: %d", ErrUnexpectedStatus, code)
	}

	if err := accounts.ValidateUserID(user.ID); err != nil {
		return accounts.Identity{}, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	identity := accounts.Identity{
		UserID:  user.ID,
		IsAdmin: user.AppMetadata.IsAdmin || strings.EqualFold(user.AppMetadata.Role, roleAdmin),
	}

	c.log.Debug("Identity resolved",
		slog.String("user_id", identity.UserID),
		slog.Bool("is_admin", identity.IsAdmin),
	)

	return identity, nil
}
