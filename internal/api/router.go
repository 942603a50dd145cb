package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GaloyMoney/dealer-sub001/internal/metrics"
)

// NewRouter mounts the dealer endpoints. hub may be nil.
func NewRouter(svc *Service, hub *WSHub) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metrics.Middleware)

	r.Use(readOnlyCORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"dealer"}`))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if hub != nil {
			r.Get("/ws", hub.HandleWS)
		}

		// A cycle polls orders and may outlast the read endpoints' timeout.
		r.Post("/cycle", svc.RunCycle)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Get("/status", svc.GetStatus)
			r.Get("/quote", svc.GetQuote)

			r.Get("/transfers", svc.ListTransfers)
			r.Get("/transfers/pending", svc.ListPendingTransfers)
			r.Get("/transfers/events", svc.ListTransferEvents)
			r.Post("/transfers/{address}/complete", svc.CompleteTransfer)

			r.Get("/orders", svc.ListOrders)
			r.Get("/funding-rates", svc.ListFundingRates)
		})
	})

	return r
}

// readOnlyCORS opens reads to any origin. Requests that change state are
// refused when they come from another origin, and preflights for them get
// no CORS grant.
func readOnlyCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case http.MethodOptions:
			if m := r.Header.Get("Access-Control-Request-Method"); m == http.MethodGet || m == http.MethodHead {
				w.Header().Set("Access-Control-Allow-Origin", "*")
				w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			}
			w.WriteHeader(http.StatusNoContent)
			return
		default:
			if origin := r.Header.Get("Origin"); origin != "" && !sameOrigin(origin, r.Host) {
				writeError(w, "cross-origin requests may not change state", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func sameOrigin(origin, host string) bool {
	u, err := url.Parse(origin)
	return err == nil && u.Host != "" && u.Host == host
}
