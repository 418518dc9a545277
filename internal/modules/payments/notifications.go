package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GatewayNotification is the audit/dedupe row for every authentic inbound
// webhook. Unique (gateway, event_id) makes redelivered events no-ops.
type GatewayNotification struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Gateway     string         `gorm:"type:varchar(32);not null;uniqueIndex:ux_gateway_notifications_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_gateway_notifications_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time  `gorm:"precision:3;not null"`
	ProcessedAt  *time.Time `gorm:"precision:3"`
	ProcessError *string    `gorm:"type:varchar(255)"`
}

func (GatewayNotification) TableName() string { return "gateway_notifications" }

type NotificationLog struct{ db *gorm.DB }

func NewNotificationLog(db *gorm.DB) *NotificationLog {
	return &NotificationLog{db: db}
}

// Record persists the raw event. duplicate=true means this event_id was
// already received and the caller should acknowledge without reprocessing.
func (l *NotificationLog) Record(ctx context.Context, gateway, eventID, eventType string, payload []byte) (id string, duplicate bool, err error) {
	stored, err := encodePayload(payload)
	if err != nil {
		return "", false, err
	}

	n := GatewayNotification{
		ID:          uuid.NewString(),
		Gateway:     gateway,
		EventID:     eventID,
		EventType:   eventType,
		PayloadJSON: stored,
		ReceivedAt:  time.Now(),
	}
	if err := l.db.WithContext(ctx).Create(&n).Error; err != nil {
		if isDupKey(err) {
			return "", true, nil
		}
		return "", false, err
	}
	return n.ID, false, nil
}

func (l *NotificationLog) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now()
	return l.db.WithContext(ctx).Model(&GatewayNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{"processed_at": &now, "process_error": nil}).Error
}

func (l *NotificationLog) MarkFailed(ctx context.Context, id, msg string) error {
	return l.db.WithContext(ctx).Model(&GatewayNotification{}).
		Where("id = ?", id).
		Updates(map[string]any{"process_error": truncate(msg, 250)}).Error
}

// encodePayload makes the body safe for the JSON column. PayFast posts
// urlencoded form bodies; MySQL validates JSON columns at insert time, so
// anything that is not already JSON gets wrapped.
func encodePayload(payload []byte) (datatypes.JSON, error) {
	if json.Valid(payload) {
		return datatypes.JSON(payload), nil
	}
	wrapped, err := json.Marshal(map[string]string{"raw": string(payload)})
	if err != nil {
		return nil, fmt.Errorf("encode notification payload: %w", err)
	}
	return datatypes.JSON(wrapped), nil
}

func isDupKey(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return true
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
