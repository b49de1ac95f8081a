package types

import "time"

// DemandResponseEventType is the grid event category sent by the utility.
type DemandResponseEventType string

const (
	DREventPeakShaving         DemandResponseEventType = "PeakShaving"
	DREventLoadReduction       DemandResponseEventType = "LoadReduction"
	DREventFrequencyRegulation DemandResponseEventType = "FrequencyRegulation"
	DREventEmergencyResponse   DemandResponseEventType = "EmergencyResponse"
)

// DemandResponseEvent is an external request to reduce load.
type DemandResponseEvent struct {
	EventID         string                  `json:"eventID"`
	EventType       DemandResponseEventType `json:"eventType"`
	StartTime       time.Time               `json:"startTime"`
	EndTime         time.Time               `json:"endTime"`
	TargetReduction float64                 `json:"targetReduction"` // W
	// IncentiveDollarsPerKWH overrides the policy rate when set.
	IncentiveDollarsPerKWH *float64 `json:"incentiveDollarsPerKWH,omitempty"`
}

// Duration returns the event duration, zero if the times are inverted.
func (e DemandResponseEvent) Duration() time.Duration {
	if e.EndTime.Before(e.StartTime) {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// DemandResponsePriority controls whether an action runs while the event is
// handled or is deferred to the scheduler.
type DemandResponsePriority string

const (
	DRPriorityImmediate DemandResponsePriority = "Immediate"
	DRPriorityScheduled DemandResponsePriority = "Scheduled"
)

// DemandResponseState is the orchestrator state for a single event.
type DemandResponseState string

const (
	DRStateReceived          DemandResponseState = "Received"
	DRStateClassified        DemandResponseState = "Classified"
	DRStateActionsGenerated  DemandResponseState = "ActionsGenerated"
	DRStateImmediateExecuted DemandResponseState = "ImmediateExecuted"
	DRStateScheduled         DemandResponseState = "Scheduled"
	DRStateReported          DemandResponseState = "Reported"
)

// DemandResponseAction is a single load reduction against a device.
type DemandResponseAction struct {
	DeviceID       string                 `json:"deviceID,omitempty"`
	Command        DeviceCommand          `json:"command"`
	PowerReduction float64                `json:"powerReduction"` // W
	Priority       DemandResponsePriority `json:"priority"`
	ScheduledAt    time.Time              `json:"scheduledAt,omitempty"`
	Executed       bool                   `json:"executed"`
	Error          string                 `json:"error,omitempty"`
}

// DemandResponseResult reports the outcome of handling an event.
type DemandResponseResult struct {
	EventID             string                  `json:"eventID"`
	EventType           DemandResponseEventType `json:"eventType"`
	State               DemandResponseState     `json:"state"`
	Transitions         []DemandResponseState   `json:"transitions"`
	Actions             []DemandResponseAction  `json:"actions"`
	TotalPowerReduction float64                 `json:"totalPowerReduction"` // W
	// DeliveredPowerReduction only counts actions that were sent or
	// scheduled without error. Incentives are paid on it.
	DeliveredPowerReduction float64   `json:"deliveredPowerReduction"` // W
	TargetReduction         float64   `json:"targetReduction"`         // W
	ReductionAchieved       bool      `json:"reductionAchieved"`
	IncentiveEarnings       float64   `json:"incentiveEarnings"` // dollars
	CompletedAt             time.Time `json:"completedAt"`
}
