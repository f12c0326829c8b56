package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/mkazakov/servimarket-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса servimarket.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/dev-login", h.DevLogin)

		// Платёжная система доставляет webhook обоими методами.
		r.Get("/payments/mercadopago/webhook", h.PaymentWebhook)
		r.Post("/payments/mercadopago/webhook", h.PaymentWebhook)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{id}", h.GetOrder)
			r.Get("/orders/{id}/invoice", h.GetOrderInvoice)

			r.Get("/transactions", h.ListTransactions)

			r.Post("/payments/mercadopago/preference", h.CreateCheckoutSession)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
