package pulse

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/packpulse/packpulse/internal/ledger"
)

// Handler exposes daily pulse endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a pulse handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Status reports claim eligibility and balance. Safe to poll.
func (h *Handler) Status(c *fiber.Ctx) error {
	userID, err := ledger.ParseUserID(c.Params("userID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	status, err := h.service.Status(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"can_claim":      status.CanClaim,
		"next_claim":     formatNext(status.NextClaim),
		"amount":         status.Amount,
		"credit_balance": status.Balance,
	})
}

// Claim attempts the daily claim.
func (h *Handler) Claim(c *fiber.Ctx) error {
	userID, err := ledger.ParseUserID(c.Params("userID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	claimed, err := h.service.Claim(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, "failed to claim daily pulse")
	}

	if !claimed {
		next, err := h.service.NextClaimTime(c.UserContext(), userID)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
		return c.Status(http.StatusConflict).JSON(fiber.Map{
			"error":      "Cannot claim yet",
			"next_claim": formatNext(next),
		})
	}

	status, err := h.service.Status(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"status":      "success",
		"message":     "Daily pulse claimed successfully",
		"new_balance": status.Balance,
	})
}

func formatNext(next *time.Time) any {
	if next == nil {
		return nil
	}
	return next.UTC().Format(time.RFC3339)
}
