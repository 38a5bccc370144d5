package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// StripeGateway talks to Stripe's payment intent API.
type StripeGateway struct {
	client   *client.API
	currency string
}

// NewStripeGateway builds a gateway with its own HTTP client so slow Stripe
// calls cannot hold a request open indefinitely.
func NewStripeGateway(secretKey, currency string, timeout time.Duration) *StripeGateway {
	backendCfg := &stripe.BackendConfig{HTTPClient: &http.Client{Timeout: timeout}}
	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})
	return &StripeGateway{client: api, currency: currency}
}

// CreateIntent opens a payment intent. The idempotency key is forwarded to
// Stripe so a retried request returns the original intent instead of opening
// a second one.
func (g *StripeGateway) CreateIntent(ctx context.Context, input CreateIntentInput) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(input.Amount),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if input.IdempotencyKey != "" {
		params.SetIdempotencyKey(input.IdempotencyKey)
	}
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, wrapStripeErr("create payment intent", err)
	}
	return intentFromStripe(pi), nil
}

// GetIntent fetches the current state of a payment intent.
func (g *StripeGateway) GetIntent(ctx context.Context, id string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(id, params)
	if err != nil {
		return Intent{}, wrapStripeErr("get payment intent", err)
	}
	return intentFromStripe(pi), nil
}

func intentFromStripe(pi *stripe.PaymentIntent) Intent {
	intent := Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       StatusFromStripe(string(pi.Status)),
		Amount:       pi.Amount,
	}
	if pi.LastPaymentError != nil {
		intent.LastError = pi.LastPaymentError.Msg
	}
	return intent
}

func wrapStripeErr(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("%s: %s (%s): %w", op, stripeErr.Type, stripeErr.Code, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
