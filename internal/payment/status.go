package payment

// Status is the lifecycle state of a payment intent.
type Status string

const (
	StatusPending        Status = "pending"
	StatusProcessing     Status = "processing"
	StatusRequiresAction Status = "requires_action"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
)

// IsFinal reports whether the status can no longer change.
func (s Status) IsFinal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// StatusFromStripe maps a Stripe payment intent status onto ours.
func StatusFromStripe(raw string) Status {
	switch raw {
	case "succeeded":
		return StatusCompleted
	case "processing":
		return StatusProcessing
	case "requires_action", "requires_confirmation":
		return StatusRequiresAction
	case "canceled":
		return StatusFailed
	default:
		// requires_payment_method and everything unrecognised.
		return StatusPending
	}
}
