package orders

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

const (
	KindShop         = "shop"
	KindRegistration = "registration"
)

type Order struct {
	ID          string `gorm:"type:char(36);primaryKey"`
	OrderNumber string `gorm:"type:varchar(32);not null;uniqueIndex:ux_orders_order_number"`
	Kind        string `gorm:"type:varchar(16);not null"`

	CustomerEmail string `gorm:"type:varchar(255);not null;index:ix_orders_customer_email"`
	CustomerName  string `gorm:"type:varchar(255);not null"`

	// Amount is frozen at creation; the processor only ever compares
	// against it, never rewrites it.
	Amount   decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Currency string          `gorm:"type:char(3);not null"`

	Status        string `gorm:"type:varchar(16);not null"`
	PaymentStatus string `gorm:"type:varchar(16);not null;index:ix_orders_payment_status"`

	GatewayName       string  `gorm:"type:varchar(32);not null"`
	GatewayCheckoutID *string `gorm:"type:varchar(128)"`
	GatewayPaymentID  *string `gorm:"type:varchar(128)"`

	// Originating registration form submission, when the order came out of
	// a registration flow. Acts as the revenue-entry idempotency reference.
	FormSubmissionID *string `gorm:"type:char(36)"`

	CreatedAt time.Time `gorm:"precision:3;not null"`
	UpdatedAt time.Time `gorm:"precision:3;not null"`
}

func (Order) TableName() string { return "orders" }

// StatusHistoryEntry rows are append-only; nothing updates or deletes them.
type StatusHistoryEntry struct {
	ID            string    `gorm:"type:char(36);primaryKey"`
	OrderID       string    `gorm:"type:char(36);not null;index:ix_order_status_history_order"`
	Status        string    `gorm:"type:varchar(16);not null"`
	PaymentStatus string    `gorm:"type:varchar(16);not null"`
	Note          string    `gorm:"type:varchar(255);not null"`
	CreatedAt     time.Time `gorm:"precision:3;not null"`
}

func (StatusHistoryEntry) TableName() string { return "order_status_history" }

// NewOrderNumber builds the externally visible, gateway-facing reference,
// e.g. WL-20260901-4F2A9C.
func NewOrderNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("WL-%s-%s", now.Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}
