package payments

import (
	"context"
	"net/http"

	"github.com/shopspring/decimal"
)

// Status is the normalized checkout state every adapter reduces to,
// regardless of which gateway or transport produced it.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusPending   Status = "pending"
	StatusExpired   Status = "expired"
	StatusFailed    Status = "failed"
)

// GatewayEvent is the single shape all three entry points (webhook, verify,
// sweep) hand to the processor.
type GatewayEvent struct {
	Status Status

	// Amount is nil when the gateway did not report one; the processor only
	// runs the mismatch check when it is present.
	Amount *decimal.Decimal

	// PaymentID is the gateway's settled payment identifier, when known.
	PaymentID string
}

type CheckoutRequest struct {
	OrderNumber   string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	ItemName      string

	ReturnURL string
	CancelURL string
	NotifyURL string
}

type CheckoutSession struct {
	CheckoutID  string
	RedirectURL string
}

// Notification is a decoded inbound webhook. RequiresLookup means the body is
// not trusted for state and the receiver must re-query FetchStatus; it is set
// by adapters that carry no inbound signature.
type Notification struct {
	EventID     string
	OrderNumber string
	CheckoutID  string
	Event       GatewayEvent

	RequiresLookup bool
}

// Gateway is the uniform adapter contract. Implementations never invent a
// checkout ID and never return a fabricated status on error.
type Gateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	FetchStatus(ctx context.Context, checkoutID string) (GatewayEvent, error)
	DecodeNotification(header http.Header, body []byte) (Notification, error)
}

// Registry resolves a gateway by the name stored on the order.
type Registry struct {
	byName map[string]Gateway
}

func NewRegistry(gws ...Gateway) *Registry {
	m := make(map[string]Gateway, len(gws))
	for _, gw := range gws {
		m[gw.Name()] = gw
	}
	return &Registry{byName: m}
}

func (r *Registry) Get(name string) (Gateway, error) {
	gw, ok := r.byName[name]
	if !ok {
		return nil, ErrUnknownGateway
	}
	return gw, nil
}
