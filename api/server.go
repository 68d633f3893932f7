/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:        Request logging
  2. Recoverer:     Panic recovery (500 instead of crash)
  3. RequestID:     Unique ID per request for tracing
  4. CORS:          Cross-origin requests for the back-office frontend
  5. Authenticate:  Bearer token, on every route except signup/signin/health
  6. RateLimit:     Deposit and transfer creation, when a limiter is configured

ROUTE GROUPS:
  /health                 Liveness
  /api/security/*         Signup, signin, profile, token refresh
  /api/accounts/*         Accounts and per-account history
  /api/deposits/*         Deposits
  /api/transfers/*        Transfers
  /api/transactions       Combined history

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Authentication and rate limiting
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures the cross-cutting middleware.
type RouterOptions struct {
	Origins []string
	Tokens  TokenVerifier
	// Limiter is optional. Without it money movements are not rate limited.
	Limiter Limiter
	Logger  *slog.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	if opts.Tokens == nil {
		opts.Tokens = h.Tokens
	}
	if opts.Logger == nil {
		opts.Logger = h.log
	}
	if len(opts.Origins) == 0 {
		opts.Origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.Origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)

	limit := func(scope string) func(http.Handler) http.Handler {
		return RateLimit(opts.Limiter, scope, opts.Logger)
	}

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/security/signup", h.Signup)
		r.Post("/security/signin", h.Signin)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.Tokens))

			// Security routes
			r.Route("/security", func(r chi.Router) {
				r.Get("/user", h.GetProfile)
				r.Put("/user", h.UpdateProfile)
				r.Post("/refresh", h.Refresh)
			})

			// Account routes
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", h.ListAccounts)
				r.Post("/", h.OpenAccount)
				r.Get("/balance", h.TotalBalance)
				r.Get("/{id}", h.GetAccount)
				r.Delete("/{id}", h.CloseAccount)
				r.Get("/{id}/balance", h.GetAccountBalance)
				r.Get("/{id}/exists", h.AccountExists)
				r.Patch("/{id}/state", h.SetAccountState)
				r.Patch("/{id}/type", h.ChangeAccountType)
				r.Get("/{id}/deposits", h.ListDeposits)
				r.Get("/{id}/transfers", h.ListTransfers)
				r.Get("/{id}/transactions", h.ListTransactions)
			})

			// Deposit routes
			r.Route("/deposits", func(r chi.Router) {
				r.Get("/", h.ListDeposits)
				r.With(limit("deposits")).Post("/", h.CreateDeposit)
				r.Delete("/{id}", h.DeleteDeposit)
			})

			// Transfer routes
			r.Route("/transfers", func(r chi.Router) {
				r.Get("/", h.ListTransfers)
				r.With(limit("transfers")).Post("/", h.CreateTransfer)
				r.Delete("/{id}", h.DeleteTransfer)
			})

			r.Get("/transactions", h.ListTransactions)
		})
	})

	return r
}

// Health reports liveness and the ledger clock.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   h.Ledger.Now().Format(time.RFC3339),
	})
}
