package payments

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
)

// PayFast is the redirect-form gateway: checkout is a signed hosted-page URL,
// notifications arrive as ITN form posts carrying their own MD5 signature, so
// the body is trusted once the signature checks out.
type PayFast struct {
	cfg    *config.Service
	client *http.Client
}

func NewPayFast(cfg *config.Service, client *http.Client) *PayFast {
	return &PayFast{cfg: cfg, client: client}
}

func (p *PayFast) Name() string { return "payfast" }

// CreateCheckout builds the signed process-page URL. PayFast has no create
// call; the m_payment_id we generate here is the checkout session identifier.
func (p *PayFast) CreateCheckout(_ context.Context, req CheckoutRequest) (CheckoutSession, error) {
	creds := p.cfg.Settings().PayFast
	if creds.MerchantID == "" || creds.MerchantKey == "" {
		return CheckoutSession{}, fmt.Errorf("payfast: credentials not configured: %w", ErrGatewayUnavailable)
	}

	checkoutID := "pf_" + uuid.NewString()

	// Field order matters: the signature is computed over the fields in the
	// order they appear on the form.
	fields := []kv{
		{"merchant_id", creds.MerchantID},
		{"merchant_key", creds.MerchantKey},
		{"return_url", req.ReturnURL},
		{"cancel_url", req.CancelURL},
		{"notify_url", req.NotifyURL},
		{"email_address", req.CustomerEmail},
		{"m_payment_id", checkoutID},
		{"amount", req.Amount.StringFixed(2)},
		{"item_name", req.ItemName},
		{"custom_str1", req.OrderNumber},
	}

	sig := payfastSignature(fields, creds.Passphrase)
	fields = append(fields, kv{"signature", sig})

	var q strings.Builder
	for i, f := range fields {
		if i > 0 {
			q.WriteByte('&')
		}
		q.WriteString(f.key)
		q.WriteByte('=')
		q.WriteString(url.QueryEscape(f.val))
	}

	return CheckoutSession{
		CheckoutID:  checkoutID,
		RedirectURL: creds.ProcessURL + "?" + q.String(),
	}, nil
}

type payfastQueryResponse struct {
	Status      string `json:"status"`
	AmountGross string `json:"amount_gross"`
	PFPaymentID string `json:"pf_payment_id"`
}

func (p *PayFast) FetchStatus(ctx context.Context, checkoutID string) (GatewayEvent, error) {
	creds := p.cfg.Settings().PayFast

	u := strings.TrimRight(creds.QueryURL, "/") + "/payments/query/" + url.PathEscape(checkoutID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return GatewayEvent{}, fmt.Errorf("payfast: build query request: %w", err)
	}

	ts := time.Now().Format(time.RFC3339)
	headerFields := []kv{
		{"merchant-id", creds.MerchantID},
		{"timestamp", ts},
		{"version", "v1"},
	}
	httpReq.Header.Set("merchant-id", creds.MerchantID)
	httpReq.Header.Set("timestamp", ts)
	httpReq.Header.Set("version", "v1")
	httpReq.Header.Set("signature", payfastSignature(headerFields, creds.Passphrase))

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return GatewayEvent{}, fmt.Errorf("payfast: query %s: %v: %w", checkoutID, err, ErrGatewayUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GatewayEvent{}, fmt.Errorf("payfast: query %s: status %d: %w", checkoutID, resp.StatusCode, ErrGatewayUnavailable)
	}

	var body payfastQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return GatewayEvent{}, fmt.Errorf("payfast: decode query response: %v: %w", err, ErrGatewayUnavailable)
	}

	ev := GatewayEvent{
		Status:    mapPayFastStatus(body.Status),
		PaymentID: body.PFPaymentID,
	}
	if body.AmountGross != "" {
		amt, err := decimal.NewFromString(body.AmountGross)
		if err != nil {
			return GatewayEvent{}, fmt.Errorf("payfast: bad amount_gross %q: %w", body.AmountGross, ErrBadPayload)
		}
		ev.Amount = &amt
	}
	return ev, nil
}

// DecodeNotification parses and authenticates an ITN post. The signature is
// recomputed over the fields in the order they were posted, excluding the
// signature field itself.
func (p *PayFast) DecodeNotification(_ http.Header, body []byte) (Notification, error) {
	creds := p.cfg.Settings().PayFast

	fields, err := parseOrderedForm(string(body))
	if err != nil {
		return Notification{}, fmt.Errorf("payfast: %v: %w", err, ErrBadPayload)
	}

	var posted string
	signed := make([]kv, 0, len(fields))
	byKey := make(map[string]string, len(fields))
	for _, f := range fields {
		byKey[f.key] = f.val
		if f.key == "signature" {
			posted = f.val
			continue
		}
		signed = append(signed, f)
	}
	if posted == "" {
		return Notification{}, fmt.Errorf("payfast: missing signature: %w", ErrBadSignature)
	}

	want := payfastSignature(signed, creds.Passphrase)
	if subtle.ConstantTimeCompare([]byte(posted), []byte(want)) != 1 {
		return Notification{}, ErrBadSignature
	}

	checkoutID := byKey["m_payment_id"]
	if checkoutID == "" {
		return Notification{}, fmt.Errorf("payfast: missing m_payment_id: %w", ErrBadPayload)
	}

	ev := GatewayEvent{
		Status:    mapPayFastStatus(byKey["payment_status"]),
		PaymentID: byKey["pf_payment_id"],
	}
	if raw := byKey["amount_gross"]; raw != "" {
		amt, err := decimal.NewFromString(raw)
		if err != nil {
			return Notification{}, fmt.Errorf("payfast: bad amount_gross %q: %w", raw, ErrBadPayload)
		}
		ev.Amount = &amt
	}

	eventID := byKey["pf_payment_id"]
	if eventID == "" {
		sum := md5.Sum(body)
		eventID = "itn_" + hex.EncodeToString(sum[:])
	}

	return Notification{
		EventID:     eventID,
		OrderNumber: byKey["custom_str1"],
		CheckoutID:  checkoutID,
		Event:       ev,
	}, nil
}

func mapPayFastStatus(s string) Status {
	switch strings.ToUpper(s) {
	case "COMPLETE":
		return StatusCompleted
	case "EXPIRED":
		return StatusExpired
	case "FAILED", "CANCELLED":
		return StatusFailed
	default:
		return StatusPending
	}
}

type kv struct {
	key string
	val string
}

// payfastSignature is the PayFast scheme: MD5 over the URL-encoded
// key=value pairs in order, with the passphrase appended last.
func payfastSignature(fields []kv, passphrase string) string {
	var b strings.Builder
	for i, f := range fields {
		if f.val == "" {
			continue
		}
		if i > 0 && b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.val))
	}
	if passphrase != "" {
		b.WriteString("&passphrase=")
		b.WriteString(url.QueryEscape(passphrase))
	}
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// parseOrderedForm decodes application/x-www-form-urlencoded content while
// preserving field order, which url.ParseQuery does not.
func parseOrderedForm(body string) ([]kv, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, fmt.Errorf("empty body")
	}
	parts := strings.Split(body, "&")
	out := make([]kv, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		key, rawVal, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return nil, fmt.Errorf("bad field name %q", key)
		}
		v, err := url.QueryUnescape(rawVal)
		if err != nil {
			return nil, fmt.Errorf("bad value for %q", strconv.Quote(k))
		}
		out = append(out, kv{key: k, val: v})
	}
	return out, nil
}
