package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/levenlabs/go-lflag"
	"github.com/segmentio/kafka-go"

	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Bus implements Commander and Notifier. Without brokers it only logs, which
// is useful for dry runs and local development.
type Bus struct {
	brokers        []string
	commandTopic   string
	eventTopic     string
	telemetryTopic string
	groupID        string

	commands messageWriter
	events   messageWriter
}

// Configured sets up the bus based on flags.
func Configured() *Bus {
	brokers := lflag.String("kafka-brokers", "", "Comma-separated Kafka brokers, commands are only logged when empty")
	commandTopic := lflag.String("kafka-command-topic", "nexushome.commands", "Topic device commands are written to")
	eventTopic := lflag.String("kafka-event-topic", "nexushome.events", "Topic domain events are written to")
	telemetryTopic := lflag.String("kafka-telemetry-topic", "nexushome.telemetry", "Topic telemetry is consumed from")
	groupID := lflag.String("kafka-group-id", "nexushome", "Consumer group for telemetry ingestion")

	b := &Bus{}

	lflag.Do(func() {
		for _, broker := range strings.Split(*brokers, ",") {
			if broker = strings.TrimSpace(broker); broker != "" {
				b.brokers = append(b.brokers, broker)
			}
		}
		b.commandTopic = *commandTopic
		b.eventTopic = *eventTopic
		b.telemetryTopic = *telemetryTopic
		b.groupID = *groupID
		if len(b.brokers) > 0 {
			b.commands = b.writer(b.commandTopic)
			b.events = b.writer(b.eventTopic)
		}
	})

	return b
}

func (b *Bus) writer(topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(b.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

// Enabled reports whether brokers are configured.
func (b *Bus) Enabled() bool {
	return len(b.brokers) > 0
}

// SendCommand implements Commander. Messages are keyed by device so a
// device sees its commands in order.
func (b *Bus) SendCommand(ctx context.Context, deviceID string, cmd types.DeviceCommand) error {
	msg := CommandMessage{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		Command:  cmd,
		IssuedAt: time.Now().UTC(),
	}
	if b.commands == nil {
		log.Ctx(ctx).InfoContext(
			ctx,
			"command not sent, no brokers configured",
			slog.String("deviceID", deviceID),
			slog.String("command", string(cmd.Type)),
			slog.Any("parameters", cmd.Parameters),
		)
		return nil
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}
	err = b.commands.WriteMessages(ctx, kafka.Message{
		Key:   []byte(deviceID),
		Value: value,
		Time:  msg.IssuedAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(cmd.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write command for %s: %w", types.ErrUpstreamUnavailable, deviceID, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "command sent", slog.String("deviceID", deviceID), slog.String("command", string(cmd.Type)))
	return nil
}

// Notify implements Notifier.
func (b *Bus) Notify(ctx context.Context, event types.DomainEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if b.events == nil {
		log.Ctx(ctx).DebugContext(ctx, "event not published, no brokers configured", slog.String("type", string(event.Type)))
		return nil
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	key := event.DeviceID
	if key == "" {
		key = event.ID
	}
	err = b.events.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  event.Timestamp,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write %s event: %w", types.ErrUpstreamUnavailable, event.Type, err)
	}
	return nil
}

// Close closes the writers.
func (b *Bus) Close() error {
	var errs []error
	for _, w := range []messageWriter{b.commands, b.events} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
