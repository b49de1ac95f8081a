package types

import "time"

// DomainEventType names events the engine emits for downstream fan-out.
type DomainEventType string

const (
	EventPredictionProduced     DomainEventType = "prediction.produced"
	EventPlanCompleted          DomainEventType = "plan.completed"
	EventDemandResponseReported DomainEventType = "demandresponse.reported"
	EventAnomalyDetected        DomainEventType = "anomaly.detected"
)

// DomainEvent is published on the notification channel.
type DomainEvent struct {
	ID        string          `json:"id"`
	Type      DomainEventType `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"deviceID,omitempty"`
	Payload   any             `json:"payload,omitempty"`
}
