// Package httpapi реализует HTTP API витрины поверх chi.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

func NewRouter(handler *Handler, logger *log.Entry) http.Handler {
	if logger == nil {
		logger = handler.logger
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(AttachSession)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", handler.ListProducts)
		r.Get("/products/{id}", handler.GetProduct)
		r.Get("/products/{id}/stock", handler.ProductStock)
		r.Get("/products/{id}/{item}", handler.GetProduct)
		r.Get("/categories", handler.ListCategories)
		r.Get("/stock/{id}/{size}", handler.Stock)

		r.Get("/cart", handler.GetCart)
		r.Delete("/cart", handler.ClearCart)
		r.Post("/cart/items", handler.AddItem)
		r.Put("/cart/items/{id}/{size}", handler.SetQuantity)
		r.Delete("/cart/items/{id}/{size}", handler.RemoveItem)

		r.Post("/checkout", handler.Checkout)

		r.Get("/orders", handler.ListOrders)
		r.Get("/orders/total", handler.TotalSpent)
		r.Get("/orders/{id}", handler.GetOrder)

		r.Post("/session/login", handler.Login)
		r.Post("/session/logout", handler.Logout)

		r.Get("/profile", handler.GetProfile)
		r.Put("/profile", handler.UpdateProfile)
		r.Post("/profile/complete", handler.CompleteRegistration)

		r.Get("/support/inbox", handler.SupportInbox)
		r.Post("/support/messages/{id}/read", handler.SupportMarkRead)
		r.Post("/support/messages/{id}/reply", handler.SupportReply)

		r.Get("/state/events", handler.StateEvents)
	})
	return r
}
