package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
)

func payfastTestConfig(t *testing.T, queryURL string) *config.Service {
	t.Helper()
	cfg, err := config.NewService(config.WithLoader(func() (config.Settings, error) {
		return config.Settings{
			PayFast: config.PayFastConfig{
				MerchantID:  "10000100",
				MerchantKey: "46f0cd694581a",
				Passphrase:  "jt7NOE43FZPn",
				ProcessURL:  "https://sandbox.payfast.co.za/eng/process",
				QueryURL:    queryURL,
				Sandbox:     true,
			},
		}, nil
	}))
	require.NoError(t, err)
	return cfg
}

func signedITNBody(passphrase string, fields []kv) string {
	sig := payfastSignature(fields, passphrase)
	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(f.val))
	}
	b.WriteString("&signature=")
	b.WriteString(sig)
	return b.String()
}

func TestPayFastCreateCheckout(t *testing.T) {
	gw := NewPayFast(payfastTestConfig(t, "https://api.payfast.co.za"), http.DefaultClient)

	sess, err := gw.CreateCheckout(context.Background(), CheckoutRequest{
		OrderNumber:   "WL-20260901-AAAAAA",
		Amount:        mustDecimal("450.00"),
		Currency:      "ZAR",
		ItemName:      "Winter League registration",
		CustomerEmail: "parent@example.com",
		ReturnURL:     "https://winterleaguecricket.co.za/payment/return",
		CancelURL:     "https://winterleaguecricket.co.za/payment/cancel",
		NotifyURL:     "https://winterleaguecricket.co.za/webhooks/payfast",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sess.CheckoutID, "pf_"))
	assert.True(t, strings.HasPrefix(sess.RedirectURL, "https://sandbox.payfast.co.za/eng/process?"))

	u, err := url.Parse(sess.RedirectURL)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "10000100", q.Get("merchant_id"))
	assert.Equal(t, "450.00", q.Get("amount"))
	assert.Equal(t, "WL-20260901-AAAAAA", q.Get("custom_str1"))
	assert.Equal(t, sess.CheckoutID, q.Get("m_payment_id"))
	assert.NotEmpty(t, q.Get("signature"))
}

func TestPayFastCreateCheckout_MissingCredentials(t *testing.T) {
	cfg, err := config.NewService(config.WithLoader(func() (config.Settings, error) {
		return config.Settings{}, nil
	}))
	require.NoError(t, err)

	gw := NewPayFast(cfg, http.DefaultClient)
	_, err = gw.CreateCheckout(context.Background(), CheckoutRequest{})
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestPayFastDecodeNotification(t *testing.T) {
	gw := NewPayFast(payfastTestConfig(t, ""), nil)

	body := signedITNBody("jt7NOE43FZPn", []kv{
		{"m_payment_id", "pf_11111111-1111-1111-1111-111111111111"},
		{"pf_payment_id", "1089250"},
		{"payment_status", "COMPLETE"},
		{"amount_gross", "450.00"},
		{"custom_str1", "WL-20260901-AAAAAA"},
	})

	n, err := gw.DecodeNotification(http.Header{}, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, "1089250", n.EventID)
	assert.Equal(t, "WL-20260901-AAAAAA", n.OrderNumber)
	assert.Equal(t, "pf_11111111-1111-1111-1111-111111111111", n.CheckoutID)
	assert.False(t, n.RequiresLookup, "ITN payloads are signed, no re-query needed")
	assert.Equal(t, StatusCompleted, n.Event.Status)
	require.NotNil(t, n.Event.Amount)
	assert.Equal(t, "450.00", n.Event.Amount.StringFixed(2))
	assert.Equal(t, "1089250", n.Event.PaymentID)
}

func TestPayFastDecodeNotification_BadSignature(t *testing.T) {
	gw := NewPayFast(payfastTestConfig(t, ""), nil)

	// signed with the wrong passphrase
	body := signedITNBody("wrong-passphrase", []kv{
		{"m_payment_id", "pf_11111111-1111-1111-1111-111111111111"},
		{"payment_status", "COMPLETE"},
		{"amount_gross", "450.00"},
	})
	_, err := gw.DecodeNotification(http.Header{}, []byte(body))
	assert.ErrorIs(t, err, ErrBadSignature)

	// signature absent entirely
	_, err = gw.DecodeNotification(http.Header{}, []byte("m_payment_id=pf_x&payment_status=COMPLETE"))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestPayFastDecodeNotification_TamperedAmount(t *testing.T) {
	gw := NewPayFast(payfastTestConfig(t, ""), nil)

	body := signedITNBody("jt7NOE43FZPn", []kv{
		{"m_payment_id", "pf_11111111-1111-1111-1111-111111111111"},
		{"payment_status", "COMPLETE"},
		{"amount_gross", "450.00"},
	})
	tampered := strings.Replace(body, "450.00", "1.00", 1)

	_, err := gw.DecodeNotification(http.Header{}, []byte(tampered))
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestPayFastDecodeNotification_StatusMapping(t *testing.T) {
	gw := NewPayFast(payfastTestConfig(t, ""), nil)

	cases := map[string]Status{
		"COMPLETE":  StatusCompleted,
		"EXPIRED":   StatusExpired,
		"FAILED":    StatusFailed,
		"CANCELLED": StatusFailed,
		"PENDING":   StatusPending,
	}
	for raw, want := range cases {
		body := signedITNBody("jt7NOE43FZPn", []kv{
			{"m_payment_id", "pf_x"},
			{"payment_status", raw},
		})
		n, err := gw.DecodeNotification(http.Header{}, []byte(body))
		require.NoError(t, err, raw)
		assert.Equal(t, want, n.Event.Status, raw)
	}
}

func TestPayFastFetchStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/payments/query/pf_abc", r.URL.Path)
		assert.Equal(t, "10000100", r.Header.Get("merchant-id"))
		assert.NotEmpty(t, r.Header.Get("signature"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"COMPLETE","amount_gross":"450.00","pf_payment_id":"1089250"}`))
	}))
	defer srv.Close()

	gw := NewPayFast(payfastTestConfig(t, srv.URL), srv.Client())

	ev, err := gw.FetchStatus(context.Background(), "pf_abc")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, ev.Status)
	assert.Equal(t, "1089250", ev.PaymentID)
	require.NotNil(t, ev.Amount)
	assert.Equal(t, "450.00", ev.Amount.StringFixed(2))
}

func TestPayFastFetchStatus_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	gw := NewPayFast(payfastTestConfig(t, srv.URL), srv.Client())

	_, err := gw.FetchStatus(context.Background(), "pf_abc")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
