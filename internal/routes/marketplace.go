package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/packpulse/packpulse/internal/marketplace"
)

// RegisterMarketplaceRoutes wires pack listing and purchase endpoints.
func RegisterMarketplaceRoutes(r fiber.Router, h *marketplace.Handler) {
	r.Get("/marketplace/packs", h.Available)
	r.Post("/marketplace/packs/:packID/list", h.List)
	r.Post("/marketplace/packs/:packID/unlist", h.Unlist)
	r.Post("/marketplace/packs/:packID/purchase", h.Purchase)
}
