package router

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-lab/canteen/internal/api/handler"
	m "github.com/oapi-lab/canteen/internal/api/middleware"
	"github.com/rs/zerolog"
)

type Handlers struct {
	Cart    *handler.CartHandler
	Order   *handler.OrderHandler
	Payment *handler.PaymentHandler
	Webhook *handler.WebhookHandler
	Menu    *handler.MenuHandler
}

func SetupRouter(h Handlers, logger *zerolog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// 全局中間件
	r.Use(m.RequestIdMiddleware)
	r.Use(middleware.RealIP)
	r.Use(m.ActorMiddleware)
	r.Use(m.LoggerMiddleware(logger))

	// provider 回呼，不經過身份檢查
	r.Route("/payments/webhook", func(r chi.Router) {
		r.Post("/orange", h.Webhook.OrangeWebhook)
		r.Post("/mtn", h.Webhook.MTNWebhook)
	})

	// API 路由
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/menu", h.Menu.ListAvailableItems)
		r.Get("/payment-methods", h.Menu.ListPaymentMethods)

		r.Group(func(r chi.Router) {
			r.Use(m.RequireActor)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", h.Cart.GetCart)
				r.Post("/items", h.Cart.AddItem)
				r.Patch("/items/{menuItemID}", h.Cart.AdjustItem)
				r.Delete("/items/{menuItemID}", h.Cart.RemoveItem)
				r.Delete("/", h.Cart.ClearCart)
			})

			r.Route("/orders", func(r chi.Router) {
				r.Post("/checkout", h.Cart.Checkout)
				r.Get("/", h.Order.ListMyOrders)
				r.Get("/by-status", h.Order.ListByStatus)
				r.Get("/all", h.Order.ListAll)
				r.Get("/stats", h.Order.MyStats)
				r.Route("/{orderNumber}", func(r chi.Router) {
					r.Get("/", h.Order.GetOrder)
					r.Get("/history", h.Order.GetStatusHistory)
					r.Post("/status", h.Order.UpdateStatus)
					r.Post("/cancel", h.Order.CancelOrder)
					r.Post("/assign", h.Order.AssignOrder)
					r.Post("/items", h.Order.AddItem)
					r.Delete("/items/{menuItemID}", h.Order.RemoveItem)
					r.Get("/payments", h.Payment.GetOrderPayments)
				})
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/", h.Payment.CreatePayment)
				r.Route("/{paymentID}", func(r chi.Router) {
					r.Get("/", h.Payment.GetPayment)
					r.Post("/check", h.Payment.CheckStatus)
					r.Post("/complete", h.Payment.CompleteManual)
					r.Post("/cancel", h.Payment.CancelPayment)
					r.Post("/refunds", h.Payment.InitiateRefund)
					r.Get("/refunds", h.Payment.GetRefunds)
				})
			})
		})
	})

	return r
}
