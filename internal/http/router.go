package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter wires the API surface. All routes sit under /api/v1 behind
// the shared middleware stack.
func NewRouter(
	carts *CartHandler,
	checkouts *CheckoutHandler,
	orders *OrdersHandler,
	webhooks *WebhookHandler,
	requestTimeout time.Duration,
) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(MockAuthMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{line_id}", carts.UpdateQuantity)
			r.Delete("/items/{line_id}", carts.RemoveItem)
			r.Post("/coupon", carts.ApplyCoupon)
		})

		r.Route("/addresses", func(r chi.Router) {
			r.Get("/", checkouts.ListAddresses)
			r.Post("/", checkouts.AddAddress)
			r.Put("/{address_id}", checkouts.UpdateAddress)
			r.Delete("/{address_id}", checkouts.DeleteAddress)
			r.Post("/{address_id}/default", checkouts.SetDefaultAddress)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", checkouts.Start)
			r.Route("/{token}", func(r chi.Router) {
				r.Get("/", checkouts.Get)
				r.Put("/address", checkouts.SelectAddress)
				r.Put("/payment", checkouts.SelectPayment)
				r.Put("/comment", checkouts.SetComment)
				r.Post("/next", checkouts.Next)
				r.Post("/back", checkouts.Back)
				r.Post("/submit", checkouts.Submit)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.List)
			r.Route("/{order_id}", func(r chi.Router) {
				r.Get("/", orders.Get)
				r.Post("/cancel", orders.Cancel)
				r.Post("/refund", orders.RequestRefund)
				r.Get("/invoice", orders.Invoice)
				r.Post("/reorder", orders.Reorder)
			})
		})

		r.Post("/webhooks/payment", webhooks.PaymentResult)
	})

	return r
}
