package teams

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) DB() *gorm.DB { return r.db }

// MarkPlayersPaid flips every still-pending player registered under the given
// parent email to paid. The conditional WHERE makes replays no-ops. Returns
// how many rows changed.
func (r *Repo) MarkPlayersPaid(ctx context.Context, parentEmail string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&TeamPlayer{}).
		Where("parent_email = ? AND payment_status = ?", parentEmail, PaymentPendingPayment).
		Updates(map[string]any{
			"payment_status": PaymentPaid,
			"updated_at":     time.Now(),
		})
	return res.RowsAffected, res.Error
}

// MarkRevenuePaid flips pending revenue entries whose reference matches any of
// the given form submission IDs. Replays are no-ops for the same reason.
func (r *Repo) MarkRevenuePaid(ctx context.Context, references []string) (int64, error) {
	if len(references) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&RevenueEntry{}).
		Where("reference IN ? AND payment_status = ?", references, PaymentPendingPayment).
		Updates(map[string]any{
			"payment_status": PaymentPaid,
			"updated_at":     time.Now(),
		})
	return res.RowsAffected, res.Error
}

// SubmissionRefsForEmail collects the form submission IDs behind a parent's
// registrations, the join key from an order to its revenue entries.
func (r *Repo) SubmissionRefsForEmail(ctx context.Context, parentEmail string) ([]string, error) {
	var refs []string
	err := r.db.WithContext(ctx).Model(&TeamPlayer{}).
		Distinct("form_submission_id").
		Where("parent_email = ?", parentEmail).
		Pluck("form_submission_id", &refs).Error
	return refs, err
}

// EnsureRevenueEntry creates the entry unless one already exists for
// (team, reference). Count-then-create inside one transaction keeps it
// at-most-once under concurrent registration submissions; the unique index
// backs it up.
func (r *Repo) EnsureRevenueEntry(ctx context.Context, e RevenueEntry) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cnt int64
		if err := tx.Model(&RevenueEntry{}).
			Where("team_id = ? AND reference = ?", e.TeamID, e.Reference).
			Count(&cnt).Error; err != nil {
			return err
		}
		if cnt > 0 {
			return nil
		}

		now := time.Now()
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.PaymentStatus == "" {
			e.PaymentStatus = PaymentPendingPayment
		}
		e.CreatedAt = now
		e.UpdatedAt = now
		return tx.Create(&e).Error
	})
}

func (r *Repo) CreatePlayer(ctx context.Context, p *TeamPlayer) error {
	now := time.Now()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaymentStatus == "" {
		p.PaymentStatus = PaymentPendingPayment
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return r.db.WithContext(ctx).Create(p).Error
}
