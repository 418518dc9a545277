package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
)

// Yoco is the hosted-checkout gateway: checkouts are created over a
// bearer-token API and webhooks carry no signature, so DecodeNotification
// marks the event RequiresLookup and authenticity is established by
// re-querying FetchStatus instead of trusting the body.
type Yoco struct {
	cfg    *config.Service
	client *http.Client
}

func NewYoco(cfg *config.Service, client *http.Client) *Yoco {
	return &Yoco{cfg: cfg, client: client}
}

func (y *Yoco) Name() string { return "yoco" }

type yocoCheckoutRequest struct {
	Amount     int64             `json:"amount"`
	Currency   string            `json:"currency"`
	SuccessURL string            `json:"successUrl"`
	CancelURL  string            `json:"cancelUrl"`
	FailureURL string            `json:"failureUrl"`
	Metadata   map[string]string `json:"metadata"`
}

type yocoCheckoutResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

func (y *Yoco) CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error) {
	creds := y.cfg.Settings().Yoco
	if creds.SecretKey == "" {
		return CheckoutSession{}, fmt.Errorf("yoco: credentials not configured: %w", ErrGatewayUnavailable)
	}

	payload, err := json.Marshal(yocoCheckoutRequest{
		Amount:     req.Amount.Shift(2).IntPart(), // minor units
		Currency:   req.Currency,
		SuccessURL: req.ReturnURL,
		CancelURL:  req.CancelURL,
		FailureURL: req.CancelURL,
		Metadata:   map[string]string{"orderNumber": req.OrderNumber},
	})
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("yoco: marshal checkout: %w", err)
	}

	u := strings.TrimRight(creds.APIBase, "/") + "/checkouts"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("yoco: build checkout request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.SecretKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := y.client.Do(httpReq)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("yoco: create checkout: %v: %w", err, ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return CheckoutSession{}, fmt.Errorf("yoco: create checkout: status %d: %w", resp.StatusCode, ErrGatewayUnavailable)
	}

	var body yocoCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return CheckoutSession{}, fmt.Errorf("yoco: decode checkout response: %v: %w", err, ErrGatewayUnavailable)
	}
	if body.ID == "" || body.RedirectURL == "" {
		return CheckoutSession{}, fmt.Errorf("yoco: checkout response missing id or redirect url: %w", ErrGatewayUnavailable)
	}

	return CheckoutSession{CheckoutID: body.ID, RedirectURL: body.RedirectURL}, nil
}

type yocoStatusResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Amount    *int64 `json:"amount"`
	PaymentID string `json:"paymentId"`
}

func (y *Yoco) FetchStatus(ctx context.Context, checkoutID string) (GatewayEvent, error) {
	creds := y.cfg.Settings().Yoco

	u := strings.TrimRight(creds.APIBase, "/") + "/checkouts/" + url.PathEscape(checkoutID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return GatewayEvent{}, fmt.Errorf("yoco: build status request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.SecretKey)

	resp, err := y.client.Do(httpReq)
	if err != nil {
		return GatewayEvent{}, fmt.Errorf("yoco: fetch status %s: %v: %w", checkoutID, err, ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GatewayEvent{}, fmt.Errorf("yoco: fetch status %s: status %d: %w", checkoutID, resp.StatusCode, ErrGatewayUnavailable)
	}

	var body yocoStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GatewayEvent{}, fmt.Errorf("yoco: decode status response: %v: %w", err, ErrGatewayUnavailable)
	}

	ev := GatewayEvent{
		Status:    mapYocoStatus(body.Status),
		PaymentID: body.PaymentID,
	}
	if body.Amount != nil {
		amt := decimal.New(*body.Amount, -2)
		ev.Amount = &amt
	}
	return ev, nil
}

type yocoWebhookEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Payload struct {
		ID       string `json:"id"`
		Amount   *int64 `json:"amount"`
		Metadata struct {
			OrderNumber string `json:"orderNumber"`
		} `json:"metadata"`
	} `json:"payload"`
}

// DecodeNotification decodes the JSON envelope. There is no inbound
// signature; the receiver must confirm state via FetchStatus before acting,
// so the decoded event is marked RequiresLookup.
func (y *Yoco) DecodeNotification(_ http.Header, body []byte) (Notification, error) {
	var env yocoWebhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Notification{}, fmt.Errorf("yoco: %v: %w", err, ErrBadPayload)
	}
	if env.Payload.ID == "" {
		return Notification{}, fmt.Errorf("yoco: missing checkout id: %w", ErrBadPayload)
	}

	var status Status
	switch env.Type {
	case "payment.succeeded":
		status = StatusCompleted
	case "payment.failed":
		status = StatusFailed
	case "checkout.expired":
		status = StatusExpired
	default:
		return Notification{}, fmt.Errorf("yoco: unknown event type %q: %w", env.Type, ErrBadPayload)
	}

	eventID := env.ID
	if eventID == "" {
		eventID = env.Type + ":" + env.Payload.ID
	}

	ev := GatewayEvent{Status: status}
	if env.Payload.Amount != nil {
		amt := decimal.New(*env.Payload.Amount, -2)
		ev.Amount = &amt
	}

	return Notification{
		EventID:        eventID,
		OrderNumber:    env.Payload.Metadata.OrderNumber,
		CheckoutID:     env.Payload.ID,
		Event:          ev,
		RequiresLookup: true,
	}, nil
}

func mapYocoStatus(s string) Status {
	switch strings.ToLower(s) {
	case "completed":
		return StatusCompleted
	case "expired":
		return StatusExpired
	case "failed":
		return StatusFailed
	default:
		return StatusPending
	}
}
