package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/packpulse/packpulse/internal/ledger"
)

// RegisterCreditRoutes wires credit balance and history endpoints.
func RegisterCreditRoutes(r fiber.Router, h *ledger.Handler) {
	r.Get("/users/:userID/credits/balance", h.Balance)
	r.Get("/users/:userID/credits/history", h.History)
}
