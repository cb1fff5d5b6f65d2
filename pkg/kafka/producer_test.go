package kafka

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// --- Event ---

func TestNewEvent_Fields(t *testing.T) {
	type payload struct {
		UserID int64 `json:"user_id"`
	}

	event, err := NewEvent("auth.user_logged_in", "42", "user", "auth-service", payload{UserID: 42})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "auth.user_logged_in", event.EventType)
	assert.Equal(t, "42", event.AggregateID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got payload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, int64(42), got.UserID)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("x", "1", "user", "svc", make(chan int))
	require.Error(t, err)
}

func TestEvent_Chaining(t *testing.T) {
	event, err := NewEvent("x", "1", "user", "svc", nil)
	require.NoError(t, err)

	assert.Same(t, event, event.WithCorrelationID("corr-1").WithMetadata("ip", "10.0.0.1"))
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, "10.0.0.1", event.Metadata["ip"])
}

// --- Producer ---

func TestPublish_WritesKeyedMessageWithHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, []string{"localhost:9092"}, testLogger())

	event, err := NewEvent("auth.token_reuse_detected", "7", "user", "auth-service", map[string]int{"revoked": 3})
	require.NoError(t, err)
	event.WithCorrelationID("corr-9")

	require.NoError(t, p.Publish(context.Background(), "englearn.auth.token_reuse_detected", event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "englearn.auth.token_reuse_detected", msg.Topic)
	assert.Equal(t, []byte("7"), msg.Key)

	carrier := HeaderCarrier{headers: &msg.Headers}
	assert.Equal(t, "auth.token_reuse_detected", carrier.Get("event_type"))
	assert.Equal(t, "auth-service", carrier.Get("source"))
	assert.Equal(t, "corr-9", carrier.Get("correlation_id"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.EventID, decoded.EventID)
}

func TestPublish_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, testLogger())
	event, err := NewEvent("x", "1", "user", "svc", nil)
	require.NoError(t, err)
	require.NoError(t, p.Publish(ctx, "topic", event))

	carrier := HeaderCarrier{headers: &w.msgs[0].Headers}
	assert.Contains(t, carrier.Get("traceparent"), "4bf92f3577b34da6a3ce929d0e0e4736")
}

func TestPublish_WriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, nil, testLogger())
	event, err := NewEvent("x", "1", "user", "svc", nil)
	require.NoError(t, err)

	err = p.Publish(context.Background(), "topic", event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish event to topic")
}

func TestPing_NoBrokers(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{}, nil, testLogger())
	assert.Error(t, p.Ping(context.Background()))
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, nil, testLogger())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

// --- HeaderCarrier ---

func TestHeaderCarrier_SetGetKeys(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := HeaderCarrier{headers: &headers}

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Equal(t, "", c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "v3")
	assert.Equal(t, "v2", c.Get("existing"))
	assert.Equal(t, []string{"existing", "new"}, c.Keys())
}
