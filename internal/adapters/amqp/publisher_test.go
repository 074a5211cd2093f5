package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masumi-agents/idea-evaluator/internal/observability/notify"
)

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	declared   []string
	declareErr error
	publishErr error
	msgs       []published
	closed     bool
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	f.declared = append(f.declared, name+":"+kind)
	return f.declareErr
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestNewPublisher_DeclaresTopicExchange(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultExchange + ":topic"}, ch.declared)
	assert.Equal(t, DefaultExchange, p.exchange)

	_, err = newPublisher(&fakeChannel{declareErr: errors.New("access refused")}, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declare exchange x")
}

func TestPublisher_SendJobEvent(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "events")
	require.NoError(t, err)

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	err = p.SendJobEvent(context.Background(), notify.JobEvent{
		Kind:       notify.EventJobCompleted,
		JobID:      "job-1",
		ResultHash: "abc",
		OccurredAt: at,
	})
	require.NoError(t, err)

	require.Len(t, ch.msgs, 1)
	got := ch.msgs[0]
	assert.Equal(t, "events", got.exchange)
	assert.Equal(t, "job.completed", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "job-1:completed", got.msg.MessageId)
	assert.Equal(t, at, got.msg.Timestamp)

	var decoded notify.JobEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, "job-1", decoded.JobID)
	assert.Equal(t, "abc", decoded.ResultHash)
}

func TestPublisher_PublishErrorAndClose(t *testing.T) {
	ch := &fakeChannel{}
	p, err := newPublisher(ch, "events")
	require.NoError(t, err)

	ch.publishErr = amqp.ErrClosed
	err = p.SendJobEvent(context.Background(), notify.JobEvent{Kind: notify.EventJobFailed})
	assert.ErrorIs(t, err, amqp.ErrClosed)

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}
