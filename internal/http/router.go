// Package http exposes the device commands: cart editing, checkout and
// queue management.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Handlers struct {
	Cart   *CartHandler
	Orders *OrdersHandler
	Queue  *QueueHandler
}

func NewRouter(h Handlers, log *slog.Logger, requestTimeout time.Duration) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart.GetCart)
			r.Delete("/", h.Cart.ClearCart)
			r.Post("/items", h.Cart.AddItem)
			r.Put("/items/{item_id}", h.Cart.UpdateQuantity)
			r.Delete("/items/{item_id}", h.Cart.RemoveItem)
			r.Put("/items/{item_id}/discount", h.Cart.SetItemDiscount)
			r.Put("/discount", h.Cart.ApplyDiscount)
			r.Delete("/discount", h.Cart.RemoveDiscount)
		})

		r.Post("/orders", h.Orders.PlaceOrder)
		r.Post("/orders/quote", h.Orders.Quote)
		r.Get("/settings", h.Orders.GetSettings)
		r.Put("/settings", h.Orders.UpdateSettings)

		r.Route("/queue", func(r chi.Router) {
			r.Get("/", h.Queue.GetQueue)
			r.Delete("/", h.Queue.Clear)
			r.Get("/stats", h.Queue.GetStats)
			r.Post("/sync", h.Queue.SyncAll)
			r.Post("/{key}/sync", h.Queue.SyncOne)
			r.Post("/{key}/retry", h.Queue.Retry)
			r.Delete("/{key}", h.Queue.Remove)
		})
	})

	return r
}

// RequestLogger logs one line per request with the chi request id.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
