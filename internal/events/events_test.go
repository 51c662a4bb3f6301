package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitter_EmitDomainRunCompleted(t *testing.T) {
	e := NewEmitter("")
	e.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)) }

	event, err := e.EmitDomainRunCompleted(DomainRunCompleted{
		RunID:     "run-7",
		Domain:    "tapering",
		Stage:     "done",
		Persisted: 12,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, EventTypeDomainRunCompleted, event.EventType)
	assert.Equal(t, AggregateTypeDomainRun, event.AggregateType)
	assert.Equal(t, "run-7/tapering", event.AggregateID)
	assert.Equal(t, defaultSource, event.Source)
	assert.Equal(t, time.UTC, event.OccurredAt.Location())

	var payload DomainRunCompleted
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	assert.Equal(t, 12, payload.Persisted)
	assert.Equal(t, "done", payload.Stage)
}

func TestEmitter_Validation(t *testing.T) {
	e := NewEmitter("curator-test")

	_, err := e.EmitDomainRunCompleted(DomainRunCompleted{Domain: "tapering"})
	assert.Error(t, err)

	_, err = e.Emit("", "agg", nil)
	assert.ErrorContains(t, err, "event_type is required")

	_, err = e.Emit("x", "", nil)
	assert.ErrorContains(t, err, "aggregate_id is required")

	_, err = e.Emit("x", "agg", make(chan int))
	assert.ErrorContains(t, err, "marshal payload")
}

type recordingWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &recordingWriter{}
	p := newKafkaPublisher(w, "curator.runs", zerolog.Nop())

	event, err := NewEmitter("").EmitDomainRunCompleted(DomainRunCompleted{RunID: "r1", Domain: "deload_timing"})
	require.NoError(t, err)
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "r1/deload_timing", string(msg.Key))
	assert.Equal(t, event.OccurredAt, msg.Time)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, EventTypeDomainRunCompleted, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_PublishError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := newKafkaPublisher(w, "curator.runs", zerolog.Nop())

	err := p.Publish(context.Background(), Event{EventType: EventTypeDomainRunCompleted, AggregateID: "a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestNewKafkaPublisher_Validation(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{Topic: "t"}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}}, zerolog.Nop())
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, zerolog.Nop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
