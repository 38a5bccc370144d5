package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Gateway represents a connector to an external card processor.
type Gateway interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (Intent, error)
	GetIntent(ctx context.Context, id string) (Intent, error)
}

// CreateIntentInput captures everything needed to open a payment intent.
type CreateIntentInput struct {
	Amount         int64
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is the processor's view of a payment in flight.
type Intent struct {
	ID           string
	ClientSecret string
	Status       Status
	Amount       int64
	LastError    string
}

// StaticGateway simulates a processor that approves everything. It records
// calls so tests can assert on idempotent short-circuits.
type StaticGateway struct {
	mu      sync.Mutex
	intents map[string]Intent

	// Status is assigned to every intent the gateway returns.
	Status Status

	CreateCalls int
	GetCalls    int
}

// NewStaticGateway builds a gateway whose intents report the given status.
func NewStaticGateway(status Status) *StaticGateway {
	return &StaticGateway{intents: make(map[string]Intent), Status: status}
}

// CreateIntent opens a synthetic intent.
func (g *StaticGateway) CreateIntent(_ context.Context, input CreateIntentInput) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CreateCalls++
	intent := Intent{
		ID:           "pi_" + uuid.NewString(),
		ClientSecret: "secret_" + uuid.NewString(),
		Status:       g.Status,
		Amount:       input.Amount,
	}
	g.intents[intent.ID] = intent
	return intent, nil
}

// GetIntent returns a previously created intent, refreshed to the gateway's
// current status.
func (g *StaticGateway) GetIntent(_ context.Context, id string) (Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.GetCalls++
	intent, ok := g.intents[id]
	if !ok {
		return Intent{}, fmt.Errorf("payment intent %s not found", id)
	}
	intent.Status = g.Status
	return intent, nil
}
