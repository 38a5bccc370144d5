package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v76"
)

// signPayload produces a Stripe-Signature header value for the payload, the
// same scheme Stripe uses: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(t *testing.T, payload []byte, secret string, at time.Time) string {
	t.Helper()
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func succeededEvent(eventID, intentID string, userID, amount int64) []byte {
	return []byte(fmt.Sprintf(`{
		"id": %q,
		"api_version": %q,
		"type": "payment_intent.succeeded",
		"data": {
			"object": {
				"id": %q,
				"metadata": {"userId": "%d", "amount": "%d"}
			}
		}
	}`, eventID, stripe.APIVersion, intentID, userID, amount))
}

func TestWebhookCreditsUser(t *testing.T) {
	gateway := NewStaticGateway(StatusCompleted)
	svc, store, _ := newTestService(t, gateway)
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, testCart(t), "key-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := succeededEvent("evt_1", intent.ID, 7, 500)
	sig := signPayload(t, payload, testWebhookSecret, time.Now())

	if err := svc.HandleWebhook(ctx, payload, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}

	balance, _ := store.Balance(ctx, 7)
	if balance != 500 {
		t.Fatalf("balance = %d, want 500", balance)
	}
}

func TestWebhookDuplicateDeliveryIgnored(t *testing.T) {
	gateway := NewStaticGateway(StatusCompleted)
	svc, store, _ := newTestService(t, gateway)
	ctx := context.Background()

	intent, err := svc.CreateIntent(ctx, testCart(t), "key-1")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := succeededEvent("evt_1", intent.ID, 7, 500)
	for i := 0; i < 3; i++ {
		sig := signPayload(t, payload, testWebhookSecret, time.Now())
		if err := svc.HandleWebhook(ctx, payload, sig); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}

	balance, _ := store.Balance(ctx, 7)
	if balance != 500 {
		t.Fatalf("balance = %d after redeliveries, want 500", balance)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	svc, _, _ := newTestService(t, NewStaticGateway(StatusCompleted))

	payload := succeededEvent("evt_1", "pi_123", 7, 500)

	err := svc.HandleWebhook(context.Background(), payload, signPayload(t, payload, "whsec_wrong", time.Now()))
	if !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("wrong secret: got %v, want ErrInvalidSignature", err)
	}

	// A stale timestamp outside the tolerance window is also rejected.
	stale := signPayload(t, payload, testWebhookSecret, time.Now().Add(-time.Hour))
	if err := svc.HandleWebhook(context.Background(), payload, stale); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("stale signature: got %v, want ErrInvalidSignature", err)
	}
}

func TestWebhookIgnoresOtherEventTypes(t *testing.T) {
	gateway := NewStaticGateway(StatusCompleted)
	svc, store, _ := newTestService(t, gateway)

	payload := []byte(`{
		"id": "evt_2",
		"api_version": "` + stripe.APIVersion + `",
		"type": "payment_intent.created",
		"data": {"object": {"id": "pi_123", "metadata": {"userId": "7", "amount": "500"}}}
	}`)
	sig := signPayload(t, payload, testWebhookSecret, time.Now())

	if err := svc.HandleWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	balance, _ := store.Balance(context.Background(), 7)
	if balance != 0 {
		t.Fatalf("balance = %d, want 0 for ignored event", balance)
	}
}

func TestWebhookIgnoresMissingMetadata(t *testing.T) {
	gateway := NewStaticGateway(StatusCompleted)
	svc, store, _ := newTestService(t, gateway)

	payload := []byte(`{
		"id": "evt_3",
		"api_version": "` + stripe.APIVersion + `",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_123", "metadata": {}}}
	}`)
	sig := signPayload(t, payload, testWebhookSecret, time.Now())

	// Acknowledged without action so Stripe stops retrying.
	if err := svc.HandleWebhook(context.Background(), payload, sig); err != nil {
		t.Fatalf("handle webhook: %v", err)
	}
	balance, _ := store.Balance(context.Background(), 7)
	if balance != 0 {
		t.Fatalf("balance = %d, want 0", balance)
	}
}
