package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// BasePath is where the study operations are mounted
const BasePath = "/functions/v1"

// NewRouter wires global middleware, the health check and the operations.
// timeout must cover a full walk of the longest fallback chain.
func NewRouter(mw *Middleware, functions *FunctionsHandler, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(timeout))
	r.Use(mw.CORSMiddleware)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Route(BasePath, func(r chi.Router) {
		r.Use(mw.AuthMiddleware)
		r.Use(mw.RateLimitMiddleware)

		functions.Routes(r)
	})

	return r
}
