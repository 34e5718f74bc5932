package router

import (
	"log/slog"
	"net/http"

	"github.com/andymarkow/fundledger/internal/auth"
	"github.com/andymarkow/fundledger/internal/ledger"
	"github.com/andymarkow/fundledger/internal/metrics"
	"github.com/andymarkow/fundledger/internal/server/handlers"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth/v5"
)

type Options struct {
	log         *slog.Logger
	secret      []byte
	idp         auth.IdentityProvider
	metrics     *metrics.Metrics
	corsOrigins []string
	logRequests bool
}

func NewRouter(led *ledger.Ledger, pinger handlers.Pinger, opts ...Option) chi.Router {
	r := chi.NewRouter()

	rOpts := Options{
		log:         slog.Default(),
		secret:      []byte(""),
		corsOrigins: []string{"*"},
		logRequests: true,
	}

	for _, opt := range opts {
		opt(&rOpts)
	}

	r.Use(
		middleware.Recoverer,
		middleware.StripSlashes,
		middleware.RequestID,
		cors.Handler(cors.Options{
			AllowedOrigins: rOpts.corsOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}),
		rOpts.metrics.InstrumentHandler,
	)

	if rOpts.logRequests {
		r.Use(middleware.Logger)
	}

	h := handlers.NewHandlers(led, pinger, handlers.WithLogger(rOpts.log))

	r.Get("/ping", h.Ping)

	if rOpts.metrics != nil {
		r.Method(http.MethodGet, "/metrics", rOpts.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		if rOpts.idp != nil {
			r.Use(auth.ProviderIdentity(rOpts.idp, rOpts.log))
		} else {
			tokenAuth := auth.NewJWTAuth(rOpts.secret).Verifier()

			r.Use(
				jwtauth.Verifier(tokenAuth),
				jwtauth.Authenticator(tokenAuth),
				auth.TokenIdentity,
			)
		}

		r.Use(h.EnsureAccount)

		r.Get("/api/account", h.GetAccountSummary)
		r.Get("/api/account/{kind}", h.ListRecent)
		r.Post("/api/deposits", h.SubmitDeposit)
		r.Post("/api/withdrawals", h.SubmitWithdrawal)
		r.Get("/api/packages", h.ListPackages)
		r.Post("/api/investments", h.Purchase)

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/pending", h.ListPending)
			r.Post("/deposits/{id}/review", h.ReviewDeposit)
			r.Post("/withdrawals/{id}/review", h.ReviewWithdrawal)
			r.Post("/packages", h.CreatePackage)
			r.Put("/packages/{id}/active", h.SetPackageActive)
			r.Put("/accounts/{user_id}/active", h.SetAccountActive)
			r.Put("/{kind}/{id}/notes", h.UpdateNotes)
		})
	})

	return r
}

type Option func(r *Options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.log = logger
	}
}

// WithSecret sets the HS256 secret used to verify identity tokens locally.
func WithSecret(secret []byte) Option {
	return func(o *Options) {
		o.secret = secret
	}
}

// WithIdentityProvider resolves tokens remotely instead of verifying them
// locally.
func WithIdentityProvider(idp auth.IdentityProvider) Option {
	return func(o *Options) {
		o.idp = idp
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Options) {
		o.metrics = m
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(o *Options) {
		o.corsOrigins = origins
	}
}

func WithRequestLogging(enabled bool) Option {
	return func(o *Options) {
		o.logRequests = enabled
	}
}
