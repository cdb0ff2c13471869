package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/atelier/production-backend/pkg/logger"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAck struct {
	acked    bool
	nacked   bool
	requeue  bool
	rejected bool
}

func (r *recordingAck) Ack(tag uint64, multiple bool) error {
	r.acked = true
	return nil
}

func (r *recordingAck) Nack(tag uint64, multiple bool, requeue bool) error {
	r.nacked = true
	r.requeue = requeue
	return nil
}

func (r *recordingAck) Reject(tag uint64, requeue bool) error {
	r.rejected = true
	r.requeue = requeue
	return nil
}

func newTestConsumer() *Consumer {
	return &Consumer{
		queue:    "production-service.intake",
		handlers: make(map[string]MessageHandler),
		logger:   logger.Nop(),
	}
}

func delivery(t *testing.T, ack *recordingAck, eventType string, data interface{}) amqp.Delivery {
	t.Helper()
	event, err := NewEvent(eventType, "intake-desk", "corr-1", data)
	require.NoError(t, err)
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return amqp.Delivery{Acknowledger: ack, Body: body}
}

func TestHandleMessage_AcksOnSuccess(t *testing.T) {
	c := newTestConsumer()
	var got IntakeUnitEvent
	var correlation string
	c.RegisterHandler(EventIntakeUnitReceived, func(ctx context.Context, e *Event) error {
		correlation = CorrelationID(ctx)
		return e.UnmarshalData(&got)
	})

	ack := &recordingAck{}
	c.handleMessage(context.Background(), delivery(t, ack, EventIntakeUnitReceived, IntakeUnitEvent{
		ExternalID: "ext-1",
		OrderType:  "CLIENT",
		ClientName: "Dupont",
	}))

	assert.True(t, ack.acked)
	assert.Equal(t, "ext-1", got.ExternalID)
	assert.Equal(t, "Dupont", got.ClientName)
	assert.Equal(t, "corr-1", correlation)
}

func TestHandleMessage_UnknownTypeIsAcked(t *testing.T) {
	c := newTestConsumer()
	ack := &recordingAck{}

	c.handleMessage(context.Background(), delivery(t, ack, "intake.something.else", map[string]string{}))

	assert.True(t, ack.acked)
}

func TestHandleMessage_MalformedBodyIsRejected(t *testing.T) {
	c := newTestConsumer()
	ack := &recordingAck{}

	c.handleMessage(context.Background(), amqp.Delivery{Acknowledger: ack, Body: []byte("{not json")})

	assert.True(t, ack.rejected)
	assert.False(t, ack.requeue)
}

func TestHandleMessage_FailureRequeuesOnceThenDeadLetters(t *testing.T) {
	c := newTestConsumer()
	c.RegisterHandler(EventIntakeBatchReceived, func(ctx context.Context, e *Event) error {
		return errors.New("database down")
	})

	first := &recordingAck{}
	c.handleMessage(context.Background(), delivery(t, first, EventIntakeBatchReceived, IntakeBatchEvent{ExternalID: "b-1"}))
	assert.True(t, first.nacked)
	assert.True(t, first.requeue)

	second := &recordingAck{}
	msg := delivery(t, second, EventIntakeBatchReceived, IntakeBatchEvent{ExternalID: "b-1"})
	msg.Redelivered = true
	c.handleMessage(context.Background(), msg)
	assert.True(t, second.rejected)
	assert.False(t, second.requeue)
}

func TestDeathCount(t *testing.T) {
	assert.Equal(t, 0, deathCount(amqp.Delivery{}))

	msg := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(2)}},
	}}
	assert.Equal(t, 2, deathCount(msg))
}

func TestDispose(t *testing.T) {
	failure := errors.New("boom")
	dead := amqp.Delivery{Headers: amqp.Table{
		"x-death": []interface{}{amqp.Table{"count": int64(MaxDeliveryAttempts)}},
	}}

	tests := []struct {
		name string
		msg  amqp.Delivery
		err  error
		want disposition
	}{
		{name: "success", msg: amqp.Delivery{Redelivered: true}, want: dispositionAck},
		{name: "first failure", msg: amqp.Delivery{}, err: failure, want: dispositionRequeue},
		{name: "redelivered failure", msg: amqp.Delivery{Redelivered: true}, err: failure, want: dispositionDeadLetter},
		{name: "exhausted dead letter rounds", msg: dead, err: failure, want: dispositionDeadLetter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dispose(tt.msg, tt.err))
		})
	}
}

func TestNewEvent(t *testing.T) {
	event, err := NewEvent(EventUnitShipped, "production-service", "corr-9", UnitShippedEvent{UnitID: "u-1"})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventUnitShipped, event.Type)
	assert.Equal(t, "corr-9", event.CorrelationID)

	var data UnitShippedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, "u-1", data.UnitID)

	other, err := NewEvent(EventUnitShipped, "production-service", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, event.ID, other.ID)
}
