package orders

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

// DB returns the underlying database connection for direct queries.
func (r *Repo) DB() *gorm.DB { return r.db }

// Create persists a new order with its opening history entry. The amount is
// frozen here; no later write path touches it.
func (r *Repo) Create(ctx context.Context, o *Order) error {
	now := time.Now()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = PaymentPending
	}
	o.CreatedAt = now
	o.UpdatedAt = now

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		return tx.Create(&StatusHistoryEntry{
			ID:            uuid.NewString(),
			OrderID:       o.ID,
			Status:        o.Status,
			PaymentStatus: o.PaymentStatus,
			Note:          "order created",
			CreatedAt:     now,
		}).Error
	})
	if isDup(err) {
		return ErrDuplicateOrder
	}
	return err
}

func (r *Repo) FindByNumber(ctx context.Context, orderNumber string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).First(&o, "order_number = ?", orderNumber).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

func (r *Repo) FindByID(ctx context.Context, id string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

// FindByCheckout resolves an order from a gateway notification that carries
// only the checkout session identifier.
func (r *Repo) FindByCheckout(ctx context.Context, gatewayName, checkoutID string) (Order, error) {
	var o Order
	err := r.db.WithContext(ctx).
		First(&o, "gateway_name = ? AND gateway_checkout_id = ?", gatewayName, checkoutID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Order{}, ErrOrderNotFound
	}
	return o, err
}

// FindPendingWithCheckout lists sweep candidates: payment still pending, a
// checkout reference present, created inside the rolling window. The window
// keeps long-expired orders from accumulating as polling targets forever.
func (r *Repo) FindPendingWithCheckout(ctx context.Context, window time.Duration) ([]Order, error) {
	cutoff := time.Now().Add(-window)
	var out []Order
	err := r.db.WithContext(ctx).
		Where("payment_status = ? AND gateway_checkout_id IS NOT NULL AND created_at > ?", PaymentPending, cutoff).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

// SetCheckoutRef stores the gateway session after checkout creation
// succeeded. Only fills an empty slot; never overwrites an existing ref.
func (r *Repo) SetCheckoutRef(ctx context.Context, orderNumber, gatewayName, checkoutID string) error {
	return r.db.WithContext(ctx).Model(&Order{}).
		Where("order_number = ? AND gateway_checkout_id IS NULL", orderNumber).
		Updates(map[string]any{
			"gateway_name":        gatewayName,
			"gateway_checkout_id": checkoutID,
			"updated_at":          time.Now(),
		}).Error
}

type TransitionInput struct {
	OrderNumber string
	// Guard: only rows whose current payment_status is NOT in this list are
	// updated. This conditional is the entire concurrency story: first
	// writer wins, every later writer sees applied=false.
	NotPaymentStatusIn []string

	ToStatus         string
	ToPaymentStatus  string
	GatewayPaymentID *string
	Note             string
}

// ConditionalTransition is the single write primitive of the payment event
// processor. The guarded UPDATE and the history append commit together;
// the returned bool reports whether this caller actually won the transition.
func (r *Repo) ConditionalTransition(ctx context.Context, in TransitionInput) (bool, error) {
	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var o Order
		if err := tx.Select("id").First(&o, "order_number = ?", in.OrderNumber).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrOrderNotFound
			}
			return err
		}

		now := time.Now()
		updates := map[string]any{
			"status":         in.ToStatus,
			"payment_status": in.ToPaymentStatus,
			"updated_at":     now,
		}
		if in.GatewayPaymentID != nil {
			updates["gateway_payment_id"] = *in.GatewayPaymentID
		}

		res := tx.Model(&Order{}).
			Where("id = ? AND payment_status NOT IN ?", o.ID, in.NotPaymentStatusIn).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil // somebody else got here first
		}

		applied = true
		return tx.Create(&StatusHistoryEntry{
			ID:            uuid.NewString(),
			OrderID:       o.ID,
			Status:        in.ToStatus,
			PaymentStatus: in.ToPaymentStatus,
			Note:          in.Note,
			CreatedAt:     now,
		}).Error
	})
	return applied, err
}

// AppendHistory records a note without changing order state. Used for audit
// flags such as the amount-mismatch marker.
func (r *Repo) AppendHistory(ctx context.Context, orderNumber, note string) error {
	var o Order
	if err := r.db.WithContext(ctx).Select("id", "status", "payment_status").
		First(&o, "order_number = ?", orderNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		return err
	}
	return r.db.WithContext(ctx).Create(&StatusHistoryEntry{
		ID:            uuid.NewString(),
		OrderID:       o.ID,
		Status:        o.Status,
		PaymentStatus: o.PaymentStatus,
		Note:          note,
		CreatedAt:     time.Now(),
	}).Error
}

// LatestHistoryNote returns the note of the most recent history entry, or
// "" when the order has none.
func (r *Repo) LatestHistoryNote(ctx context.Context, orderNumber string) (string, error) {
	var o Order
	if err := r.db.WithContext(ctx).Select("id").
		First(&o, "order_number = ?", orderNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrOrderNotFound
		}
		return "", err
	}

	var h StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Where("order_id = ?", o.ID).
		Order("created_at DESC").
		First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	return h.Note, err
}

func (r *Repo) History(ctx context.Context, orderID string) ([]StatusHistoryEntry, error) {
	var out []StatusHistoryEntry
	err := r.db.WithContext(ctx).
		Order("created_at ASC").
		Find(&out, "order_id = ?", orderID).Error
	return out, err
}

func isDup(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	// sqlite (tests) and drivers with gorm error translation enabled
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
