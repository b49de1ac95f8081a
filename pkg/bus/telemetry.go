package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

const (
	maxTelemetryBatch = 500
	// maxPendingTelemetry is how many messages are held while the sink
	// fails before the oldest are dropped.
	maxPendingTelemetry = 10 * maxTelemetryBatch
	maxRetryDelay       = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// TelemetryConsumer appends telemetry from the bus to a sink. Offsets are
// committed only after the sink accepted the batch. A failing sink is
// retried with backoff while messages keep buffering, up to maxPending.
type TelemetryConsumer struct {
	reader messageReader
	sink   TelemetrySink
	// flushInterval bounds how long a partial batch waits.
	flushInterval time.Duration
	retryDelay    time.Duration
	maxPending    int
}

// TelemetryConsumer returns a consumer for the configured telemetry topic.
func (b *Bus) TelemetryConsumer(sink TelemetrySink) (*TelemetryConsumer, error) {
	if !b.Enabled() {
		return nil, errors.New("no kafka brokers configured")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  b.brokers,
		GroupID:  b.groupID,
		Topic:    b.telemetryTopic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newTelemetryConsumer(reader, sink), nil
}

func newTelemetryConsumer(reader messageReader, sink TelemetrySink) *TelemetryConsumer {
	return &TelemetryConsumer{
		reader:        reader,
		sink:          sink,
		flushInterval: time.Second,
		retryDelay:    time.Second,
		maxPending:    maxPendingTelemetry,
	}
}

// Run consumes until ctx is cancelled.
func (c *TelemetryConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to close telemetry reader", slog.Any("error", err))
		}
	}()

	var (
		batch    []types.TelemetrySample
		msgs     []kafka.Message
		failures int
		retryAt  time.Time
	)
	flush := func() {
		if len(msgs) == 0 {
			return
		}
		full := len(msgs) >= c.maxPending
		if !full && time.Now().Before(retryAt) {
			return
		}
		if len(batch) > 0 {
			if err := c.sink.InsertTelemetry(ctx, batch...); err != nil {
				failures++
				if !full {
					delay := min(c.retryDelay<<min(failures-1, 10), maxRetryDelay)
					retryAt = time.Now().Add(delay)
					log.Ctx(ctx).WarnContext(
						ctx,
						"failed to store telemetry, will retry",
						slog.Int("samples", len(batch)),
						slog.Duration("retryIn", delay),
						slog.Any("error", err),
					)
					return
				}
				log.Ctx(ctx).ErrorContext(ctx, "dropping telemetry after repeated failures", slog.Int("samples", len(batch)), slog.Any("error", err))
			}
		}
		failures, retryAt = 0, time.Time{}
		if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to commit telemetry offsets", slog.Any("error", err))
		}
		log.Ctx(ctx).DebugContext(ctx, "stored telemetry", slog.Int("samples", len(batch)))
		batch, msgs = batch[:0], msgs[:0]
	}

	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.flushInterval)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				// idle, flush what we have
				flush()
				continue
			}
			return fmt.Errorf("failed to fetch telemetry: %w", err)
		}
		msgs = append(msgs, msg)

		var sample types.TelemetrySample
		if err := json.Unmarshal(msg.Value, &sample); err != nil || sample.DeviceID == "" || sample.Timestamp.IsZero() {
			log.Ctx(ctx).WarnContext(ctx, "dropping bad telemetry message", slog.Int64("offset", msg.Offset), slog.Any("error", err))
		} else {
			batch = append(batch, sample)
		}
		if len(msgs)%maxTelemetryBatch == 0 || len(msgs) >= c.maxPending {
			flush()
		}
	}
}
