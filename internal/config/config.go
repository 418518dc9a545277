package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// PayFastConfig holds the redirect-form gateway credentials.
type PayFastConfig struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	ProcessURL  string // hosted payment page
	QueryURL    string // transaction query API
	Sandbox     bool
}

// YocoConfig holds the hosted-checkout gateway credentials.
type YocoConfig struct {
	SecretKey string
	APIBase   string
}

type SMTPConfig struct {
	Host          string
	Port          string
	User          string
	Pass          string
	TLSMode       string // "", "tls", "starttls"
	SkipVerifyTLS bool
	FromName      string
	FromAddress   string
}

// Settings is one immutable snapshot of the environment.
type Settings struct {
	DBDSN      string
	ListenAddr string
	BaseURL    string

	DefaultGateway string
	PayFast        PayFastConfig
	Yoco           YocoConfig
	SMTP           SMTPConfig

	CronSecret     string
	SweepInterval  time.Duration
	SweepWindow    time.Duration
	GatewayTimeout time.Duration
}

// Service caches a Settings snapshot and re-reads the environment after TTL.
// The clock is injected so expiry is testable without real delays. There is
// deliberately no package-level instance: construct once in main and pass by
// reference.
type Service struct {
	mu       sync.RWMutex
	current  Settings
	loadedAt time.Time

	ttl  time.Duration
	now  func() time.Time
	load func() (Settings, error)
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Service) { s.ttl = ttl }
}

func WithLoader(load func() (Settings, error)) Option {
	return func(s *Service) { s.load = load }
}

func NewService(opts ...Option) (*Service, error) {
	s := &Service{
		ttl:  5 * time.Minute,
		now:  time.Now,
		load: LoadFromEnv,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Refresh(); err != nil {
		return nil, err
	}
	return s, nil
}

// Settings returns the cached snapshot, refreshing it first when the TTL has
// passed. A failed refresh keeps serving the previous snapshot.
func (s *Service) Settings() Settings {
	s.mu.RLock()
	fresh := s.now().Sub(s.loadedAt) < s.ttl
	cur := s.current
	s.mu.RUnlock()

	if fresh {
		return cur
	}
	_ = s.Refresh()

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Refresh re-reads the environment immediately.
func (s *Service) Refresh() error {
	loaded, err := s.load()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.current = loaded
	s.loadedAt = s.now()
	s.mu.Unlock()
	return nil
}

// Invalidate forces the next Settings call to reload.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

// LoadFromEnv builds a Settings snapshot from the process environment.
func LoadFromEnv() (Settings, error) {
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		return Settings{}, fmt.Errorf("config: DB_DSN is required")
	}

	set := Settings{
		DBDSN:          dsn,
		ListenAddr:     envOr("LISTEN_ADDR", ":8080"),
		BaseURL:        envOr("BASE_URL", "http://localhost:8080"),
		DefaultGateway: envOr("DEFAULT_GATEWAY", "payfast"),
		PayFast: PayFastConfig{
			MerchantID:  os.Getenv("PAYFAST_MERCHANT_ID"),
			MerchantKey: os.Getenv("PAYFAST_MERCHANT_KEY"),
			Passphrase:  os.Getenv("PAYFAST_PASSPHRASE"),
			ProcessURL:  envOr("PAYFAST_PROCESS_URL", "https://www.payfast.co.za/eng/process"),
			QueryURL:    envOr("PAYFAST_QUERY_URL", "https://api.payfast.co.za"),
			Sandbox:     envBool("PAYFAST_SANDBOX"),
		},
		Yoco: YocoConfig{
			SecretKey: os.Getenv("YOCO_SECRET_KEY"),
			APIBase:   envOr("YOCO_API_BASE", "https://payments.yoco.com/api"),
		},
		SMTP: SMTPConfig{
			Host:          os.Getenv("SMTP_HOST"),
			Port:          envOr("SMTP_PORT", "587"),
			User:          os.Getenv("SMTP_USER"),
			Pass:          os.Getenv("SMTP_PASS"),
			TLSMode:       os.Getenv("SMTP_TLS_MODE"),
			SkipVerifyTLS: envBool("SMTP_SKIP_VERIFY_TLS"),
			FromName:      envOr("EMAIL_FROM_NAME", "Winter League"),
			FromAddress:   envOr("EMAIL_FROM", "no-reply@winterleaguecricket.co.za"),
		},
		CronSecret:     os.Getenv("CRON_SECRET"),
		SweepInterval:  envDuration("SWEEP_INTERVAL", 10*time.Minute),
		SweepWindow:    envDuration("SWEEP_WINDOW", 48*time.Hour),
		GatewayTimeout: envDuration("GATEWAY_TIMEOUT", 15*time.Second),
	}
	return set, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
