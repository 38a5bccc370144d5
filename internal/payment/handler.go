package payment

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type cartItemRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

type createIntentRequest struct {
	Items          []cartItemRequest `json:"items"`
	IdempotencyKey string            `json:"idempotency_key"`
}

type intentResponse struct {
	ID             string `json:"id"`
	ClientSecret   string `json:"client_secret"`
	Status         string `json:"status"`
	Amount         int64  `json:"amount"`
	RequiresAction bool   `json:"requires_action"`
}

// CreateIntent opens (or replays) a payment intent for a cart.
func (h *Handler) CreateIntent(c *fiber.Ctx) error {
	var req createIntentRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}

	items := make([]CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, CartItem{ID: item.ID, Quantity: item.Quantity, UnitPrice: item.Price})
	}
	cart, err := NewCart(items)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	intent, err := h.service.CreateIntent(c.UserContext(), cart, req.IdempotencyKey)
	switch {
	case errors.Is(err, ErrAmountBelowMinimum):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusBadGateway, "payment provider unavailable")
	}

	return c.Status(http.StatusCreated).JSON(toIntentResponse(intent))
}

type confirmRequest struct {
	PaymentIntentID string `json:"payment_intent_id"`
	UserID          int64  `json:"user_id"`
	Amount          int64  `json:"amount"`
}

// Confirm settles a succeeded intent into user credits.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid request body")
	}
	if req.PaymentIntentID == "" || req.UserID <= 0 || req.Amount <= 0 {
		return fiber.NewError(http.StatusBadRequest, "payment_intent_id, user_id and amount are required")
	}

	status, err := h.service.Confirm(c.UserContext(), req.PaymentIntentID, req.UserID, req.Amount)
	switch {
	case errors.Is(err, ErrConfirmationInProgress):
		return fiber.NewError(http.StatusConflict, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, "failed to confirm payment")
	}

	return c.JSON(fiber.Map{
		"payment_intent_id": req.PaymentIntentID,
		"status":            string(status),
		"credited":          status == StatusCompleted,
	})
}

// Webhook receives Stripe event deliveries.
func (h *Handler) Webhook(c *fiber.Ctx) error {
	sig := c.Get("Stripe-Signature")
	if sig == "" {
		return fiber.NewError(http.StatusBadRequest, "missing Stripe-Signature header")
	}

	err := h.service.HandleWebhook(c.UserContext(), c.Body(), sig)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case err != nil:
		return fiber.NewError(http.StatusInternalServerError, "failed to process webhook")
	}

	return c.JSON(fiber.Map{"received": true})
}

func toIntentResponse(intent Intent) intentResponse {
	return intentResponse{
		ID:             intent.ID,
		ClientSecret:   intent.ClientSecret,
		Status:         string(intent.Status),
		Amount:         intent.Amount,
		RequiresAction: intent.Status == StatusRequiresAction,
	}
}
