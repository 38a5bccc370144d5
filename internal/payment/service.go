package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/packpulse/packpulse/internal/ledger"
	"github.com/packpulse/packpulse/internal/metrics"
)

const (
	idempotencyKeyPrefix = "stripe:idempotency:"
	confirmKeyPrefix     = "stripe:confirm:"
	confirmLockPrefix    = "stripe:confirm_lock:"
	webhookKeyPrefix     = "stripe:webhook:"

	// confirmLockTTL bounds how long a crashed confirmation can block others.
	confirmLockTTL = 10 * time.Second

	creditDescription = "Credit purchase"

	eventIntentSucceeded = "payment_intent.succeeded"
)

var (
	// ErrAmountBelowMinimum rejects carts under the processor's floor.
	ErrAmountBelowMinimum = errors.New("amount below minimum charge")
	// ErrConfirmationInProgress means another request holds the confirm lock.
	ErrConfirmationInProgress = errors.New("confirmation already in progress")
	// ErrInvalidSignature rejects webhook deliveries we cannot authenticate.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// CreditProcessor grants credits once a payment settles.
type CreditProcessor interface {
	Apply(ctx context.Context, in ledger.AppendInput) (ledger.Transaction, error)
}

// Config carries the payment knobs the service needs.
type Config struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
	MinimumAmount    int64
	CacheTTL         time.Duration
	WebhookDedupTTL  time.Duration
}

// Service coordinates intent creation, confirmation and webhook handling.
// The Redis cache is an accelerator for idempotency; the ledger's unique
// reference constraint is the durable guarantee, so a nil cache only costs
// extra round-trips to the gateway.
type Service struct {
	gateway   Gateway
	processor CreditProcessor
	cache     *redis.Client
	cfg       Config
	logger    *slog.Logger
}

// NewService wires the payment service.
func NewService(gateway Gateway, processor CreditProcessor, cache *redis.Client, cfg Config, logger *slog.Logger) *Service {
	return &Service{gateway: gateway, processor: processor, cache: cache, cfg: cfg, logger: logger}
}

// CreateIntent opens (or replays) a payment intent for the cart. The same
// idempotency key always yields the same intent: first from the local cache,
// otherwise via Stripe's own idempotency layer.
func (s *Service) CreateIntent(ctx context.Context, cart Cart, idempotencyKey string) (Intent, error) {
	if idempotencyKey == "" {
		idempotencyKey = uuid.NewString()
	}

	if intent, ok := s.cachedIntent(ctx, idempotencyKey); ok {
		return intent, nil
	}

	total := cart.Total()
	if total < s.cfg.MinimumAmount {
		return Intent{}, fmt.Errorf("%w: got %d, need %d", ErrAmountBelowMinimum, total, s.cfg.MinimumAmount)
	}

	metadata := map[string]string{"items": strconv.Itoa(len(cart.Items()))}
	if items := cart.Items(); len(items) == 1 {
		metadata["item_id"] = items[0].ID
		metadata["quantity"] = strconv.Itoa(items[0].Quantity)
	}

	intent, err := s.gateway.CreateIntent(ctx, CreateIntentInput{
		Amount:         total,
		IdempotencyKey: idempotencyKey,
		Metadata:       metadata,
	})
	if err != nil {
		return Intent{}, err
	}

	s.storeIntent(ctx, idempotencyKey, intent)
	return intent, nil
}

// Confirm checks the intent with the gateway and credits the user exactly
// once when it has succeeded. Safe to call repeatedly and concurrently.
func (s *Service) Confirm(ctx context.Context, intentID string, userID, amount int64) (Status, error) {
	if s.confirmed(ctx, intentID) {
		return StatusCompleted, nil
	}

	unlock, ok := s.lockConfirm(ctx, intentID)
	if !ok {
		return "", ErrConfirmationInProgress
	}
	defer unlock()

	// A concurrent confirmation may have finished while we waited for the lock.
	if s.confirmed(ctx, intentID) {
		return StatusCompleted, nil
	}

	intent, err := s.gateway.GetIntent(ctx, intentID)
	if err != nil {
		return "", err
	}
	if intent.Status != StatusCompleted {
		return intent.Status, nil
	}

	_, err = s.processor.Apply(ctx, ledger.AppendInput{
		UserID:      userID,
		Amount:      amount,
		Kind:        ledger.KindCredit,
		Description: creditDescription,
		Reference:   intentID,
	})
	switch {
	case errors.Is(err, ledger.ErrDuplicateReference):
		// Credited by an earlier confirmation the cache forgot about.
		s.logger.Info("intent already credited", slog.String("intent_id", intentID))
	case err != nil:
		return "", fmt.Errorf("credit user %d for intent %s: %w", userID, intentID, err)
	}

	s.markConfirmed(ctx, intentID)
	return StatusCompleted, nil
}

// HandleWebhook verifies a Stripe delivery and confirms succeeded intents.
// Deliveries we have already seen, don't care about, or cannot attribute to
// a user are acknowledged without action so Stripe does not retry forever.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	if s.cfg.WebhookSecret == "" {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithTolerance(payload, sigHeader, s.cfg.WebhookSecret, s.cfg.WebhookTolerance)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if string(event.Type) != eventIntentSucceeded {
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		return nil
	}

	if s.seenWebhook(ctx, event.ID) {
		metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
		return nil
	}

	var intent struct {
		ID       string            `json:"id"`
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		return fmt.Errorf("decode event %s: %w", event.ID, err)
	}

	userID, amount, err := creditTarget(intent.Metadata)
	if err != nil {
		// Not our intent to credit (e.g. created outside this service).
		s.logger.Warn("webhook without credit metadata",
			slog.String("event_id", event.ID),
			slog.String("intent_id", intent.ID),
			slog.String("reason", err.Error()))
		metrics.WebhookEvents.WithLabelValues("ignored").Inc()
		return nil
	}

	if _, err := s.Confirm(ctx, intent.ID, userID, amount); err != nil {
		if errors.Is(err, ErrConfirmationInProgress) {
			// The synchronous confirm path is already on it.
			metrics.WebhookEvents.WithLabelValues("duplicate").Inc()
			return nil
		}
		metrics.WebhookEvents.WithLabelValues("error").Inc()
		return err
	}

	s.rememberWebhook(ctx, event.ID)
	metrics.WebhookEvents.WithLabelValues("processed").Inc()
	return nil
}

func creditTarget(metadata map[string]string) (int64, int64, error) {
	rawUser, ok := metadata["userId"]
	if !ok {
		return 0, 0, errors.New("missing userId")
	}
	userID, err := strconv.ParseInt(rawUser, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad userId %q", rawUser)
	}
	rawAmount, ok := metadata["amount"]
	if !ok {
		return 0, 0, errors.New("missing amount")
	}
	amount, err := strconv.ParseInt(rawAmount, 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, fmt.Errorf("bad amount %q", rawAmount)
	}
	return userID, amount, nil
}

func (s *Service) cachedIntent(ctx context.Context, key string) (Intent, bool) {
	if s.cache == nil {
		return Intent{}, false
	}
	raw, err := s.cache.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("intent cache read failed", slog.String("error", err.Error()))
		}
		return Intent{}, false
	}
	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		return Intent{}, false
	}
	return intent, true
}

func (s *Service) storeIntent(ctx context.Context, key string, intent Intent) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(intent)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, idempotencyKeyPrefix+key, raw, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn("intent cache write failed", slog.String("error", err.Error()))
	}
}

func (s *Service) confirmed(ctx context.Context, intentID string) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Exists(ctx, confirmKeyPrefix+intentID).Result()
	return err == nil && ok == 1
}

func (s *Service) markConfirmed(ctx context.Context, intentID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, confirmKeyPrefix+intentID, "1", s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Warn("confirm marker write failed", slog.String("error", err.Error()))
	}
}

// lockConfirm takes a short per-intent lock. Without a cache there is no
// lock, which is fine: the ledger's reference constraint still prevents a
// double credit.
func (s *Service) lockConfirm(ctx context.Context, intentID string) (func(), bool) {
	if s.cache == nil {
		return func() {}, true
	}
	key := confirmLockPrefix + intentID
	ok, err := s.cache.SetNX(ctx, key, "1", confirmLockTTL).Result()
	if err != nil {
		s.logger.Warn("confirm lock failed", slog.String("error", err.Error()))
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}
	return func() {
		if err := s.cache.Del(context.WithoutCancel(ctx), key).Err(); err != nil {
			s.logger.Warn("confirm unlock failed", slog.String("error", err.Error()))
		}
	}, true
}

func (s *Service) seenWebhook(ctx context.Context, eventID string) bool {
	if s.cache == nil {
		return false
	}
	ok, err := s.cache.Exists(ctx, webhookKeyPrefix+eventID).Result()
	return err == nil && ok == 1
}

func (s *Service) rememberWebhook(ctx context.Context, eventID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, webhookKeyPrefix+eventID, "1", s.cfg.WebhookDedupTTL).Err(); err != nil {
		s.logger.Warn("webhook dedup write failed", slog.String("error", err.Error()))
	}
}
