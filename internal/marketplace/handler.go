package marketplace

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/packpulse/packpulse/internal/ledger"
)

// Handler exposes marketplace endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a marketplace handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type packResponse struct {
	ID       int64      `json:"id"`
	OwnerID  int64      `json:"owner_id"`
	Name     string     `json:"name"`
	IsSealed bool       `json:"is_sealed"`
	IsListed bool       `json:"is_listed"`
	Price    *int64     `json:"price,omitempty"`
	ListedAt *time.Time `json:"listed_at,omitempty"`
}

// Available lists buyable packs.
func (h *Handler) Available(c *fiber.Ctx) error {
	packs, err := h.service.Available(c.UserContext(), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]packResponse, 0, len(packs))
	for _, p := range packs {
		out = append(out, toPackResponse(p))
	}
	return c.JSON(fiber.Map{"packs": out})
}

type listRequest struct {
	OwnerID int64 `json:"owner_id"`
	Price   int64 `json:"price"`
}

// List puts a pack up for sale.
func (h *Handler) List(c *fiber.Ctx) error {
	packID, err := ledger.ParseUserID(c.Params("packID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid pack id")
	}

	var req listRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := h.service.ListPack(c.UserContext(), packID, req.OwnerID, req.Price); err != nil {
		return mapListingError(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Pack has been listed successfully"})
}

// Unlist takes a pack off the marketplace.
func (h *Handler) Unlist(c *fiber.Ctx) error {
	packID, err := ledger.ParseUserID(c.Params("packID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid pack id")
	}

	var req listRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	if err := h.service.UnlistPack(c.UserContext(), packID, req.OwnerID); err != nil {
		return mapListingError(err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Pack has been unlisted"})
}

type purchaseRequest struct {
	BuyerID int64 `json:"buyer_id"`
}

// Purchase attempts to buy a pack.
func (h *Handler) Purchase(c *fiber.Ctx) error {
	packID, err := ledger.ParseUserID(c.Params("packID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid pack id")
	}

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	res, err := h.service.PurchasePack(c.UserContext(), packID, req.BuyerID)
	if err != nil {
		if errors.Is(err, ErrPackNotFound) {
			return fiber.NewError(http.StatusNotFound, "pack not found")
		}
		return fiber.NewError(http.StatusInternalServerError, res.Message)
	}

	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	return c.Status(status).JSON(fiber.Map{"success": res.Success, "message": res.Message})
}

func mapListingError(err error) error {
	switch {
	case errors.Is(err, ErrPackNotFound):
		return fiber.NewError(http.StatusNotFound, "pack not found")
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrNotSealed), errors.Is(err, ErrInvalidPrice):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyListed), errors.Is(err, ErrNotListed):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}

func toPackResponse(p Pack) packResponse {
	return packResponse{
		ID:       p.ID,
		OwnerID:  p.OwnerID,
		Name:     p.Name,
		IsSealed: p.IsSealed,
		IsListed: p.IsListed,
		Price:    p.Price,
		ListedAt: p.ListedAt,
	}
}
