package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/packpulse/packpulse/internal/payment"
)

// RegisterPaymentRoutes wires Stripe payment intent endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payment.Handler) {
	r.Post("/payments/intent", h.CreateIntent)
	r.Post("/payments/confirm", h.Confirm)
}
