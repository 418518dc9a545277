package payments

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationLogRecord_Dedupes(t *testing.T) {
	env := newTestEnv(t)
	log := NewNotificationLog(env.db)
	ctx := context.Background()

	payload := []byte(`{"id":"evt_1","type":"payment.succeeded"}`)

	id, dup, err := log.Record(ctx, "yoco", "evt_1", "payment.succeeded", payload)
	require.NoError(t, err)
	assert.False(t, dup)
	assert.NotEmpty(t, id)

	// redelivery of the same event
	id2, dup, err := log.Record(ctx, "yoco", "evt_1", "payment.succeeded", payload)
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Empty(t, id2)

	// same event id on a different gateway is a distinct event
	_, dup, err = log.Record(ctx, "payfast", "evt_1", "COMPLETE", payload)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestNotificationLogRecord_StoresValidJSON(t *testing.T) {
	env := newTestEnv(t)
	log := NewNotificationLog(env.db)
	ctx := context.Background()

	// PayFast ITN bodies are urlencoded forms, not JSON; the column is JSON
	// and MySQL rejects invalid documents at insert time.
	itn := "m_payment_id=pf_abc&payment_status=COMPLETE&amount_gross=450.00&signature=deadbeef"
	id, dup, err := log.Record(ctx, "payfast", "1089250", "COMPLETE", []byte(itn))
	require.NoError(t, err)
	assert.False(t, dup)

	var n GatewayNotification
	require.NoError(t, env.db.First(&n, "id = ?", id).Error)
	require.True(t, json.Valid(n.PayloadJSON), "stored payload must be a valid JSON document")

	var wrapped map[string]string
	require.NoError(t, json.Unmarshal(n.PayloadJSON, &wrapped))
	assert.Equal(t, itn, wrapped["raw"])

	// JSON bodies go in untouched
	body := []byte(`{"id":"evt_9","type":"payment.succeeded"}`)
	id, _, err = log.Record(ctx, "yoco", "evt_9", "payment.succeeded", body)
	require.NoError(t, err)
	n = GatewayNotification{}
	require.NoError(t, env.db.First(&n, "id = ?", id).Error)
	assert.JSONEq(t, string(body), string(n.PayloadJSON))

	// empty bodies still satisfy the NOT NULL JSON column
	id, _, err = log.Record(ctx, "payfast", "evt_empty", "UNKNOWN", nil)
	require.NoError(t, err)
	n = GatewayNotification{}
	require.NoError(t, env.db.First(&n, "id = ?", id).Error)
	assert.True(t, json.Valid(n.PayloadJSON))
}

func TestNotificationLogMarkProcessed(t *testing.T) {
	env := newTestEnv(t)
	log := NewNotificationLog(env.db)
	ctx := context.Background()

	id, _, err := log.Record(ctx, "yoco", "evt_2", "payment.succeeded", []byte(`{}`))
	require.NoError(t, err)

	require.NoError(t, log.MarkProcessed(ctx, id))

	var n GatewayNotification
	require.NoError(t, env.db.First(&n, "id = ?", id).Error)
	assert.NotNil(t, n.ProcessedAt)
	assert.Nil(t, n.ProcessError)
}

func TestNotificationLogMarkFailed_TruncatesError(t *testing.T) {
	env := newTestEnv(t)
	log := NewNotificationLog(env.db)
	ctx := context.Background()

	id, _, err := log.Record(ctx, "payfast", "evt_3", "COMPLETE", []byte(`{}`))
	require.NoError(t, err)

	long := strings.Repeat("x", 400)
	require.NoError(t, log.MarkFailed(ctx, id, long))

	var n GatewayNotification
	require.NoError(t, env.db.First(&n, "id = ?", id).Error)
	require.NotNil(t, n.ProcessError)
	assert.Len(t, *n.ProcessError, 250)
	assert.Nil(t, n.ProcessedAt)
}
