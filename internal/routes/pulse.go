package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/packpulse/packpulse/internal/pulse"
)

// RegisterPulseRoutes wires daily pulse endpoints.
func RegisterPulseRoutes(r fiber.Router, h *pulse.Handler) {
	r.Get("/users/:userID/pulse", h.Status)
	r.Post("/users/:userID/pulse/claim", h.Claim)
}
