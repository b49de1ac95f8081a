// Package bus carries device commands, domain events and telemetry over
// Kafka.
package bus

import (
	"context"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// Commander dispatches commands to devices. Delivery is at-least-once and
// a nil error only means the command was accepted by the transport.
type Commander interface {
	SendCommand(ctx context.Context, deviceID string, cmd types.DeviceCommand) error
}

// Notifier publishes domain events for downstream fan-out.
type Notifier interface {
	Notify(ctx context.Context, event types.DomainEvent) error
}

// CommandMessage is the wire format of a device command.
type CommandMessage struct {
	ID       string              `json:"id"`
	DeviceID string              `json:"deviceID"`
	Command  types.DeviceCommand `json:"command"`
	IssuedAt time.Time           `json:"issuedAt"`
}

// TelemetrySink stores telemetry read off the bus.
type TelemetrySink interface {
	InsertTelemetry(ctx context.Context, samples ...types.TelemetrySample) error
}
