package amqp

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"

	"github.com/tinoosan/fintrack/internal/events"
)

func TestMessage_IDPerEvent(t *testing.T) {
	user, subject := uuid.New(), uuid.New()
	created := events.New(events.TransactionCreated, user, subject, nil)
	deleted := events.New(events.TransactionDeleted, user, subject, nil)

	a := message(created, []byte(`{}`))
	b := message(deleted, []byte(`{}`))
	require.Equal(t, created.ID.String(), a.MessageId)
	require.NotEqual(t, a.MessageId, b.MessageId)
	require.Equal(t, events.TransactionCreated, a.Type)
	require.Equal(t, uint8(amqp091.Persistent), a.DeliveryMode)
	require.Equal(t, "application/json", a.ContentType)
}
