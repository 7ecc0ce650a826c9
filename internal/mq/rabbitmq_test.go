package mq

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPublishingMapsAttributes(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := buildPublishing([]byte(`{}`), map[string]string{
		attrKind:        kindRecovery,
		attrContentType: "application/json",
		attrExpiresAt:   now.Add(90 * time.Second).Format(time.RFC3339),
	}, true, now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "90000", msg.Expiration)
	assert.Equal(t, kindRecovery, msg.Headers[attrKind])
	assert.NotContains(t, msg.Headers, attrContentType)
	assert.Len(t, msg.MessageId, 32)
}

func TestBuildPublishingDefaults(t *testing.T) {
	msg, err := buildPublishing([]byte("x"), nil, false, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", msg.ContentType)
	assert.Equal(t, amqp.Transient, msg.DeliveryMode)
	assert.Empty(t, msg.Expiration)
}

func TestBuildPublishingRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	_, err := buildPublishing(nil, map[string]string{attrExpiresAt: now.Add(-time.Minute).Format(time.RFC3339)}, false, now)
	assert.Error(t, err)

	_, err = buildPublishing(nil, map[string]string{attrExpiresAt: "tomorrow"}, false, now)
	assert.Error(t, err)
}

func TestDeliveryMessageRestoresContentType(t *testing.T) {
	msg := deliveryMessage(amqp.Delivery{
		MessageId:   "m-1",
		ContentType: "application/json",
		Headers:     amqp.Table{attrKind: kindRecovery, "attempt": int32(2)},
		Body:        []byte(`{"email":"ana@example.com","token":"t"}`),
	})
	assert.Equal(t, "m-1", msg.ID)
	assert.Equal(t, map[string]string{
		attrKind:        kindRecovery,
		attrContentType: "application/json",
		"attempt":       "2",
	}, msg.Attributes)

	decoded, err := DecodeRecovery(msg)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", decoded.Email)
}
