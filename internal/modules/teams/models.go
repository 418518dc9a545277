package teams

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentPendingPayment = "pending_payment"
	PaymentPaid           = "paid"
)

type TeamPlayer struct {
	ID     string `gorm:"type:char(36);primaryKey"`
	TeamID string `gorm:"type:char(36);not null;index:ix_team_players_team"`

	FirstName string `gorm:"type:varchar(100);not null"`
	LastName  string `gorm:"type:varchar(100);not null"`

	// Registrations and payments are created by independent flows, so the
	// payment cascade matches on the parent's email rather than an order FK.
	// One order corresponds to one parent's registration batch; see DESIGN.md.
	ParentEmail string `gorm:"type:varchar(255);not null;index:ix_team_players_parent_email"`

	// The form submission that registered this player.
	FormSubmissionID string `gorm:"type:char(36);not null"`

	PaymentStatus string `gorm:"type:varchar(32);not null"`

	CreatedAt time.Time `gorm:"precision:3;not null"`
	UpdatedAt time.Time `gorm:"precision:3;not null"`
}

func (TeamPlayer) TableName() string { return "team_players" }

// RevenueEntry is one monetary event owed to a team, e.g. kit markup for a
// registered player. At most one entry exists per (team, reference).
type RevenueEntry struct {
	ID     string `gorm:"type:char(36);primaryKey"`
	TeamID string `gorm:"type:char(36);not null;uniqueIndex:ux_team_revenue_team_ref,priority:1"`

	// Reference is the originating form submission ID, acting as the
	// natural idempotency key.
	Reference string `gorm:"type:char(36);not null;uniqueIndex:ux_team_revenue_team_ref,priority:2"`

	Description string          `gorm:"type:varchar(255);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(10,2);not null"`
	Currency    string          `gorm:"type:char(3);not null"`

	PaymentStatus string `gorm:"type:varchar(32);not null"`

	CreatedAt time.Time `gorm:"precision:3;not null"`
	UpdatedAt time.Time `gorm:"precision:3;not null"`
}

func (RevenueEntry) TableName() string { return "team_revenue_entries" }
