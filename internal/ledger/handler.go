package ledger

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes read-only credit ledger endpoints.
type Handler struct {
	processor *Processor
}

// NewHandler constructs a ledger handler.
func NewHandler(processor *Processor) *Handler {
	return &Handler{processor: processor}
}

type transactionResponse struct {
	ID             int64     `json:"id"`
	Amount         int64     `json:"amount"`
	Kind           string    `json:"kind"`
	RunningBalance int64     `json:"running_balance"`
	Description    string    `json:"description,omitempty"`
	Reference      string    `json:"reference,omitempty"`
	PackID         *int64    `json:"pack_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Balance returns the user's current credit balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	userID, err := ParseUserID(c.Params("userID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	balance, err := h.processor.Balance(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
}

// History returns the user's transactions newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	userID, err := ParseUserID(c.Params("userID"))
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid user id")
	}

	limit := c.QueryInt("limit", 10)
	offset := c.QueryInt("offset", 0)

	history, err := h.processor.History(c.UserContext(), userID, limit, offset)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]transactionResponse, 0, len(history))
	for _, t := range history {
		out = append(out, transactionResponse{
			ID:             t.ID,
			Amount:         t.Amount,
			Kind:           string(t.Kind),
			RunningBalance: t.RunningBalance,
			Description:    t.Description,
			Reference:      t.Reference,
			PackID:         t.PackID,
			CreatedAt:      t.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{"user_id": userID, "transactions": out})
}

// ParseUserID parses a numeric user id from a path parameter.
func ParseUserID(raw string) (int64, error) {
	return strconv.ParseInt(raw, 10, 64)
}
