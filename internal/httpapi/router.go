package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"wallet-core/internal/ledger"
)

// RouterConfig carries the injected edge dependencies.
type RouterConfig struct {
	// Admin gates direct mutations, intent review and archiving.
	Admin AuthorizationPolicy
	// Metrics, if set, is mounted at /metrics.
	Metrics http.Handler
	// MaxInflight bounds concurrently served requests; excess requests
	// fail fast instead of queueing while the store is saturated.
	MaxInflight int
}

func Router(h *Handlers, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationMiddleware)

	r.Get("/healthz", h.Healthz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/wallets", h.CreateWallet)
		r.Get("/wallets/{id}", h.GetWallet)
		r.Get("/wallets/{id}/transactions", h.ListWalletTransactions)
		r.Get("/wallets/{id}/audit", h.AuditWallet)

		r.Post("/intents", h.RecordIntent)

		r.Get("/owners/{ownerID}/notifications", h.ListNotifications)
		r.Post("/notifications/{id}/resolve", h.ResolveNotification)

		admin := cfg.Admin
		if admin == nil {
			admin = AllowAll{}
		}
		r.Group(func(r chi.Router) {
			r.Use(requireAuthz(admin))
			r.Post("/mutations", h.ApplyMutation)
			r.Post("/intents/{id}/confirm", h.ConfirmIntent)
			r.Post("/intents/{id}/reject", h.RejectIntent)
			r.Post("/wallets/{id}/archive", h.ArchiveWallet)
		})
	})

	max := cfg.MaxInflight
	if max <= 0 {
		max = 64
	}
	return withConcurrencyLimit(r, max)
}

// correlationMiddleware threads the caller's correlation id (or a fresh one)
// through the context so every event written during the request carries it.
func correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		corr := r.Header.Get("X-Correlation-Id")
		if corr == "" {
			corr = uuid.NewString()
		}
		w.Header().Set("X-Correlation-Id", corr)
		next.ServeHTTP(w, r.WithContext(ledger.WithCorrelationID(r.Context(), corr)))
	})
}

// withConcurrencyLimit is backpressure at the edge: prevents unbounded
// goroutine/pool queueing when the database is saturated.
func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			// Fast fail instead of queueing forever.
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"server busy","reason":"busy"}`))
		}
	})
}
