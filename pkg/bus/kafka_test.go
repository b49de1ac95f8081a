package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
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

func TestSendCommand(t *testing.T) {
	ctx := context.Background()

	t.Run("keyed by device", func(t *testing.T) {
		w := &fakeWriter{}
		b := &Bus{brokers: []string{"localhost:9092"}, commands: w}

		err := b.SendCommand(ctx, "ev-1", types.DeviceCommand{Type: types.CommandPauseCharging})
		require.NoError(t, err)
		require.Len(t, w.msgs, 1)
		assert.Equal(t, "ev-1", string(w.msgs[0].Key))

		var msg CommandMessage
		require.NoError(t, json.Unmarshal(w.msgs[0].Value, &msg))
		assert.Equal(t, "ev-1", msg.DeviceID)
		assert.Equal(t, types.CommandPauseCharging, msg.Command.Type)
		assert.NotEmpty(t, msg.ID)
	})

	t.Run("write failure", func(t *testing.T) {
		b := &Bus{brokers: []string{"localhost:9092"}, commands: &fakeWriter{err: errors.New("broker down")}}
		err := b.SendCommand(ctx, "ev-1", types.DeviceCommand{Type: types.CommandTurnOff})
		assert.ErrorIs(t, err, types.ErrUpstreamUnavailable)
	})

	t.Run("no brokers", func(t *testing.T) {
		b := &Bus{}
		assert.False(t, b.Enabled())
		assert.NoError(t, b.SendCommand(ctx, "ev-1", types.DeviceCommand{Type: types.CommandTurnOff}))
		assert.NoError(t, b.Notify(ctx, types.DomainEvent{Type: types.EventPlanCompleted}))
		assert.NoError(t, b.Close())
	})
}

func TestNotify(t *testing.T) {
	w := &fakeWriter{}
	b := &Bus{brokers: []string{"localhost:9092"}, events: w}

	err := b.Notify(context.Background(), types.DomainEvent{Type: types.EventPredictionProduced, DeviceID: "hvac-1"})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "hvac-1", string(w.msgs[0].Key))
	assert.Equal(t, "type", w.msgs[0].Headers[0].Key)

	var event types.DomainEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &event))
	assert.NotEmpty(t, event.ID)
	assert.False(t, event.Timestamp.IsZero())

	require.NoError(t, b.Close())
	assert.True(t, w.closed)
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		msg := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type sliceSink struct {
	mu      sync.Mutex
	samples []types.TelemetrySample
	// failures is how many inserts fail before the sink recovers
	failures int
	calls    int
}

func (s *sliceSink) InsertTelemetry(ctx context.Context, samples ...types.TelemetrySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures > 0 {
		s.failures--
		return errors.New("datastore unavailable")
	}
	s.samples = append(s.samples, samples...)
	return nil
}

func (r *fakeReader) committedLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.committed)
}

func (s *sliceSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.samples)
}

func TestTelemetryConsumer(t *testing.T) {
	good, err := json.Marshal(types.TelemetrySample{DeviceID: "plug-1", Timestamp: time.Now(), PowerConsumption: 12})
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: good, Offset: 1},
		{Value: []byte("not json"), Offset: 2},
		{Value: good, Offset: 3},
	}}
	sink := &sliceSink{}
	c := newTelemetryConsumer(reader, sink)
	c.flushInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Len(t, reader.committed, 3)
	assert.True(t, reader.closed)
}

func TestTelemetryConsumerSinkFailure(t *testing.T) {
	good, err := json.Marshal(types.TelemetrySample{DeviceID: "plug-1", Timestamp: time.Now(), PowerConsumption: 12})
	require.NoError(t, err)

	run := func(t *testing.T, c *TelemetryConsumer) (context.CancelFunc, chan error) {
		c.flushInterval = 5 * time.Millisecond
		c.retryDelay = time.Millisecond
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()
		return cancel, done
	}

	t.Run("retries until stored", func(t *testing.T) {
		reader := &fakeReader{msgs: []kafka.Message{{Value: good, Offset: 1}, {Value: good, Offset: 2}}}
		sink := &sliceSink{failures: 2}
		cancel, done := run(t, newTelemetryConsumer(reader, sink))

		require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, time.Millisecond)
		require.Eventually(t, func() bool { return reader.committedLen() == 2 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)
	})

	t.Run("drops when too much is pending", func(t *testing.T) {
		reader := &fakeReader{msgs: []kafka.Message{{Value: good, Offset: 1}, {Value: good, Offset: 2}}}
		sink := &sliceSink{failures: 100}
		c := newTelemetryConsumer(reader, sink)
		c.maxPending = 2
		cancel, done := run(t, c)

		// the consumer keeps running and moves past the dropped messages
		require.Eventually(t, func() bool { return reader.committedLen() == 2 }, time.Second, time.Millisecond)
		cancel()
		require.NoError(t, <-done)
		assert.Zero(t, sink.len())
	})
}
