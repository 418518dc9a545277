package http

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/config"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/http/handlers"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/mailer"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/email"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/orders"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/payments"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/modules/teams"
	"github.com/winterleaguecricket-sa/winterleague-cricket-sub002/internal/worker"
)

func init() { gin.SetMode(gin.TestMode) }

const testPassphrase = "jt7NOE43FZPn"

// stubGateway lets handler tests script gateway behavior per checkout ID.
type stubGateway struct {
	results map[string]payments.GatewayEvent
	errs    map[string]error
}

func (s *stubGateway) Name() string { return "stub" }

func (s *stubGateway) CreateCheckout(_ context.Context, req payments.CheckoutRequest) (payments.CheckoutSession, error) {
	return payments.CheckoutSession{
		CheckoutID:  "ch_" + req.OrderNumber,
		RedirectURL: "https://pay.example.com/ch_" + req.OrderNumber,
	}, nil
}

func (s *stubGateway) FetchStatus(_ context.Context, checkoutID string) (payments.GatewayEvent, error) {
	if err, ok := s.errs[checkoutID]; ok {
		return payments.GatewayEvent{}, err
	}
	if ev, ok := s.results[checkoutID]; ok {
		return ev, nil
	}
	return payments.GatewayEvent{}, fmt.Errorf("unknown checkout %s", checkoutID)
}

func (s *stubGateway) DecodeNotification(nethttp.Header, []byte) (payments.Notification, error) {
	return payments.Notification{}, fmt.Errorf("not used")
}

type serverEnv struct {
	router    *gin.Engine
	db        *gorm.DB
	orders    *orders.Repo
	mock      *mailer.Mock
	stub      *stubGateway
	registry  *payments.Registry
	processor *payments.Processor
}

func newServerEnv(t *testing.T, cronSecret string) *serverEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&orders.Order{}, &orders.StatusHistoryEntry{},
		&teams.TeamPlayer{}, &teams.RevenueEntry{},
		&payments.GatewayNotification{},
	))

	cfg, err := config.NewService(config.WithLoader(func() (config.Settings, error) {
		return config.Settings{
			BaseURL:        "https://winterleaguecricket.co.za",
			DefaultGateway: "stub",
			CronSecret:     cronSecret,
			GatewayTimeout: 2 * time.Second,
			SweepInterval:  time.Minute,
			SweepWindow:    48 * time.Hour,
			PayFast: config.PayFastConfig{
				MerchantID:  "10000100",
				MerchantKey: "46f0cd694581a",
				Passphrase:  testPassphrase,
				ProcessURL:  "https://sandbox.payfast.co.za/eng/process",
				QueryURL:    "https://api.payfast.co.za",
			},
		}, nil
	}))
	require.NoError(t, err)

	log := slog.New(slog.DiscardHandler)
	orderRepo := orders.NewRepo(db)
	teamRepo := teams.NewRepo(db)
	mock := &mailer.Mock{}
	sender := email.Sender{FromName: "Winter League", FromAddress: "no-reply@winterleaguecricket.co.za"}
	cascade := payments.NewCascade(orderRepo, teamRepo, mock, sender, log)
	processor := payments.NewProcessor(orderRepo, cascade, log)

	stub := &stubGateway{results: map[string]payments.GatewayEvent{}, errs: map[string]error{}}
	registry := payments.NewRegistry(stub, payments.NewPayFast(cfg, nethttp.DefaultClient))

	svc := payments.NewService(orderRepo, registry, log)
	sweeper := worker.NewReconcileWorker(orderRepo, registry, processor, log,
		time.Minute, 48*time.Hour, 2*time.Second)

	router := NewRouter(RouterDeps{
		Logger:          log,
		Cfg:             cfg,
		Orders:          orderRepo,
		Service:         svc,
		Gateways:        registry,
		NotificationLog: payments.NewNotificationLog(db),
		Processor:       processor,
		Sweeper:         sweeper,
	})

	return &serverEnv{
		router:    router,
		db:        db,
		orders:    orderRepo,
		mock:      mock,
		stub:      stub,
		registry:  registry,
		processor: processor,
	}
}

func (e *serverEnv) createOrder(t *testing.T, number, gateway, amount string, checkoutID string) orders.Order {
	t.Helper()
	ctx := context.Background()
	o := orders.Order{
		OrderNumber:   number,
		Kind:          orders.KindRegistration,
		CustomerEmail: "parent@example.com",
		CustomerName:  "Thandi Nkosi",
		Amount:        decimal.RequireFromString(amount),
		Currency:      "ZAR",
		GatewayName:   gateway,
	}
	require.NoError(t, e.orders.Create(ctx, &o))
	if checkoutID != "" {
		require.NoError(t, e.orders.SetCheckoutRef(ctx, number, gateway, checkoutID))
	}
	return o
}

func (e *serverEnv) do(method, path, contentType, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signedITN builds a PayFast-shaped notification body with a valid signature.
func signedITN(pairs [][2]string) string {
	var sig strings.Builder
	var body strings.Builder
	for i, p := range pairs {
		if i > 0 {
			sig.WriteByte('&')
			body.WriteByte('&')
		}
		enc := p[0] + "=" + url.QueryEscape(p[1])
		sig.WriteString(enc)
		body.WriteString(enc)
	}
	sig.WriteString("&passphrase=" + url.QueryEscape(testPassphrase))
	sum := md5.Sum([]byte(sig.String()))
	body.WriteString("&signature=" + hex.EncodeToString(sum[:]))
	return body.String()
}

func TestHealthz(t *testing.T) {
	env := newServerEnv(t, "")
	w := env.do("GET", "/healthz", "", "", nil)
	assert.Equal(t, 200, w.Code)
}

func TestWebhookUnknownGateway(t *testing.T) {
	env := newServerEnv(t, "")
	w := env.do("POST", "/webhooks/stripe", "application/json", "{}", nil)
	assert.Equal(t, 404, w.Code)
}

func TestWebhookAcknowledgesGarbage(t *testing.T) {
	env := newServerEnv(t, "")

	// unsigned/unparseable bodies are logged and acknowledged, never retried
	w := env.do("POST", "/webhooks/payfast", "application/x-www-form-urlencoded", "", nil)
	assert.Equal(t, 200, w.Code)

	w = env.do("POST", "/webhooks/payfast", "application/x-www-form-urlencoded",
		"payment_status=COMPLETE&m_payment_id=pf_x", nil)
	assert.Equal(t, 200, w.Code)
}

func TestWebhookSignedITNMarksOrderPaid(t *testing.T) {
	env := newServerEnv(t, "")
	env.createOrder(t, "WL-20260901-AAAAAA", "payfast", "450.00", "pf_abc")

	body := signedITN([][2]string{
		{"m_payment_id", "pf_abc"},
		{"pf_payment_id", "1089250"},
		{"payment_status", "COMPLETE"},
		{"amount_gross", "450.00"},
		{"custom_str1", "WL-20260901-AAAAAA"},
	})

	w := env.do("POST", "/webhooks/payfast", "application/x-www-form-urlencoded", body, nil)
	assert.Equal(t, 200, w.Code)

	got, err := env.orders.FindByNumber(context.Background(), "WL-20260901-AAAAAA")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
	require.NotNil(t, got.GatewayPaymentID)
	assert.Equal(t, "1089250", *got.GatewayPaymentID)
	assert.Equal(t, 1, env.mock.SentCount())

	// redelivery of the same event is deduplicated before processing
	w = env.do("POST", "/webhooks/payfast", "application/x-www-form-urlencoded", body, nil)
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, 1, env.mock.SentCount(), "duplicate event runs no cascade")

	var events int64
	require.NoError(t, env.db.Model(&payments.GatewayNotification{}).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestWebhookTamperedITNDoesNotTouchOrder(t *testing.T) {
	env := newServerEnv(t, "")
	env.createOrder(t, "WL-20260901-BBBBBB", "payfast", "450.00", "pf_tam")

	body := signedITN([][2]string{
		{"m_payment_id", "pf_tam"},
		{"payment_status", "COMPLETE"},
		{"amount_gross", "450.00"},
		{"custom_str1", "WL-20260901-BBBBBB"},
	})
	tampered := strings.Replace(body, "COMPLETE", "FAILED", 1)

	w := env.do("POST", "/webhooks/payfast", "application/x-www-form-urlencoded", tampered, nil)
	assert.Equal(t, 200, w.Code)

	got, err := env.orders.FindByNumber(context.Background(), "WL-20260901-BBBBBB")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, got.PaymentStatus)
}

func TestVerifyPaidOrder(t *testing.T) {
	env := newServerEnv(t, "")
	env.createOrder(t, "WL-20260901-CCCCCC", "stub", "450.00", "ch_1")
	env.stub.results["ch_1"] = payments.GatewayEvent{Status: payments.StatusCompleted, Amount: amt("450.00")}

	w := env.do("POST", "/payments/verify", "application/json",
		`{"orderNumber":"WL-20260901-CCCCCC"}`, nil)
	require.Equal(t, 200, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "paid", resp.Status)
}

func TestVerifyGatewayDownReadsAsProcessing(t *testing.T) {
	env := newServerEnv(t, "")
	env.createOrder(t, "WL-20260901-DDDDDD", "stub", "450.00", "ch_2")
	env.stub.errs["ch_2"] = payments.ErrGatewayUnavailable

	w := env.do("POST", "/payments/verify", "application/json",
		`{"orderNumber":"WL-20260901-DDDDDD"}`, nil)
	require.Equal(t, 200, w.Code, "gateway trouble is never surfaced as a client error")

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "pending", resp.Status)
}

func TestVerifyConfirmsWhenGatewayReplyEatsTheTimeout(t *testing.T) {
	env := newServerEnv(t, "")
	env.createOrder(t, "WL-20260901-GGGGGG", "stub", "450.00", "ch_slow")
	env.stub.results["ch_slow"] = payments.GatewayEvent{Status: payments.StatusCompleted, Amount: amt("450.00")}

	// A reply landing right at the deadline leaves the call context spent;
	// the transition must still run on the request context.
	h := handlers.NewVerifyHandler(slog.New(slog.DiscardHandler),
		env.orders, env.registry, env.processor, time.Nanosecond)

	r := gin.New()
	r.POST("/payments/verify", h.Handle)

	req := httptest.NewRequest("POST", "/payments/verify",
		strings.NewReader(`{"orderNumber":"WL-20260901-GGGGGG"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, 200, w.Code, w.Body.String())

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "paid", resp.Status)

	got, err := env.orders.FindByNumber(context.Background(), "WL-20260901-GGGGGG")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
}

func TestVerifyUnknownOrder(t *testing.T) {
	env := newServerEnv(t, "")
	w := env.do("POST", "/payments/verify", "application/json",
		`{"orderNumber":"WL-20260901-ZZZZZZ"}`, nil)
	assert.Equal(t, 404, w.Code)
}

func TestCheckoutCreate(t *testing.T) {
	env := newServerEnv(t, "")

	w := env.do("POST", "/checkout", "application/json", `{
		"kind": "registration",
		"customerName": "Thandi Nkosi",
		"customerEmail": "parent@example.com",
		"amount": "450.00",
		"itemName": "U13 registration"
	}`, nil)
	require.Equal(t, 201, w.Code, w.Body.String())

	var resp struct {
		OrderNumber string `json:"orderNumber"`
		CheckoutID  string `json:"checkoutId"`
		RedirectURL string `json:"redirectUrl"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp.OrderNumber, "WL-"))
	assert.NotEmpty(t, resp.RedirectURL)

	got, err := env.orders.FindByNumber(context.Background(), resp.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPending, got.PaymentStatus)
	require.NotNil(t, got.GatewayCheckoutID)
	assert.Equal(t, resp.CheckoutID, *got.GatewayCheckoutID)
}

func TestCheckoutValidation(t *testing.T) {
	env := newServerEnv(t, "")

	w := env.do("POST", "/checkout", "application/json", `{
		"kind": "registration",
		"customerName": "T",
		"customerEmail": "not-an-email",
		"amount": "450.00"
	}`, nil)
	require.Equal(t, 400, w.Code)

	var resp struct {
		Fields map[string]string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.Fields, "customerName")
	assert.Contains(t, resp.Fields, "customerEmail")

	// non-positive amount
	w = env.do("POST", "/checkout", "application/json", `{
		"kind": "registration",
		"customerName": "Thandi Nkosi",
		"customerEmail": "parent@example.com",
		"amount": "-5"
	}`, nil)
	assert.Equal(t, 400, w.Code)
}

func TestCronReconcileAuth(t *testing.T) {
	// no secret configured: endpoint is disabled outright
	env := newServerEnv(t, "")
	w := env.do("POST", "/cron/reconcile", "", "", nil)
	assert.Equal(t, 403, w.Code)

	env = newServerEnv(t, "s3cret")

	w = env.do("POST", "/cron/reconcile", "", "", nil)
	assert.Equal(t, 401, w.Code)

	w = env.do("POST", "/cron/reconcile", "", "", map[string]string{"X-Cron-Secret": "wrong"})
	assert.Equal(t, 401, w.Code)

	w = env.do("POST", "/cron/reconcile", "", "", map[string]string{"X-Cron-Secret": "s3cret"})
	require.Equal(t, 200, w.Code)

	var sum worker.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Zero(t, sum.Checked)
}

func TestCronReconcileSettlesOrder(t *testing.T) {
	env := newServerEnv(t, "s3cret")
	env.createOrder(t, "WL-20260901-EEEEEE", "stub", "450.00", "ch_3")
	env.stub.results["ch_3"] = payments.GatewayEvent{Status: payments.StatusCompleted, Amount: amt("450.00")}

	w := env.do("POST", "/cron/reconcile", "", "", map[string]string{"X-Cron-Secret": "s3cret"})
	require.Equal(t, 200, w.Code)

	var sum worker.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sum))
	assert.Equal(t, 1, sum.Checked)
	assert.Equal(t, 1, sum.Confirmed)

	got, err := env.orders.FindByNumber(context.Background(), "WL-20260901-EEEEEE")
	require.NoError(t, err)
	assert.Equal(t, orders.PaymentPaid, got.PaymentStatus)
}

func amt(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
