package types

import (
	"fmt"
	"time"
)

// TimeWindow is a half-open interval [Start, End).
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate makes sure the window is non-empty.
func (w TimeWindow) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("%w: window start and end are required", ErrInvalidArgument)
	}
	if !w.End.After(w.Start) {
		return fmt.Errorf("%w: window end must be after start", ErrInvalidArgument)
	}
	return nil
}

// Contains reports whether t is inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Hours returns the start of every hour that overlaps the window.
func (w TimeWindow) Hours() []time.Time {
	var hours []time.Time
	for t := w.Start.Truncate(time.Hour); t.Before(w.End); t = t.Add(time.Hour) {
		hours = append(hours, t)
	}
	return hours
}

// StrategyType identifies one entry of the strategy catalogue.
type StrategyType string

const (
	StrategyLoadShifting        StrategyType = "loadShifting"
	StrategyPeakShaving         StrategyType = "peakShaving"
	StrategyBatteryOptimization StrategyType = "batteryOptimization"
	StrategyThermalOptimization StrategyType = "thermalOptimization"
	StrategyApplianceScheduling StrategyType = "applianceScheduling"
)

// OptimizationStrategy is a single ranked candidate.
type OptimizationStrategy struct {
	Name                     string            `json:"name"`
	Type                     StrategyType      `json:"type"`
	PotentialSavings         float64           `json:"potentialSavings"` // dollars
	SavingsKWH               float64           `json:"savingsKWH"`
	ComfortImpact            float64           `json:"comfortImpact"`            // 0-10
	ImplementationComplexity float64           `json:"implementationComplexity"` // 0-10
	AutoExecute              bool              `json:"autoExecute"`
	TargetDeviceID           string            `json:"targetDeviceID,omitempty"`
	Parameters               map[string]string `json:"parameters,omitempty"`
	Score                    float64           `json:"score"`
}

// OptimizationResult is the output of an optimization run.
type OptimizationResult struct {
	Window                   TimeWindow             `json:"window"`
	GeneratedAt              time.Time              `json:"generatedAt"`
	Strategies               []OptimizationStrategy `json:"strategies"`
	ImplementationPriority   []OptimizationStrategy `json:"implementationPriority"`
	TotalSavings             float64                `json:"totalSavings"`
	TotalSavingsKWH          float64                `json:"totalSavingsKWH"`
	ComfortScore             float64                `json:"comfortScore"`
	EnvironmentalImpactKgCO2 float64                `json:"environmentalImpactKgCO2"`
}

// CommandType is the verb of a device command.
type CommandType string

const (
	CommandDefer           CommandType = "defer"
	CommandResume          CommandType = "resume"
	CommandSetSetpoint     CommandType = "setSetpoint"
	CommandChargeBattery   CommandType = "chargeBattery"
	CommandDischargeBatt   CommandType = "dischargeBattery"
	CommandReducePower     CommandType = "reducePower"
	CommandTurnOff         CommandType = "turnOff"
	CommandPauseCharging   CommandType = "pauseCharging"
	CommandScheduleRun     CommandType = "scheduleRun"
	CommandLimitPeakDemand CommandType = "limitPeakDemand"
)

// DeviceCommand is sent to a device over the command channel.
type DeviceCommand struct {
	Type       CommandType       `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// ExecutionStatus is the state of a single OptimizationAction.
type ExecutionStatus string

const (
	ExecutionPending    ExecutionStatus = "Pending"
	ExecutionInProgress ExecutionStatus = "InProgress"
	ExecutionCompleted  ExecutionStatus = "Completed"
	ExecutionFailed     ExecutionStatus = "Failed"
	ExecutionCancelled  ExecutionStatus = "Cancelled"
)

// PlanStatus is the aggregate state of an OptimizationPlan.
type PlanStatus string

const (
	PlanPending            PlanStatus = "Pending"
	PlanInProgress         PlanStatus = "InProgress"
	PlanCompleted          PlanStatus = "Completed"
	PlanPartiallyCompleted PlanStatus = "PartiallyCompleted"
	PlanFailed             PlanStatus = "Failed"
)

// OptimizationAction is one ordered step of a plan.
type OptimizationAction struct {
	ID              string          `json:"id"`
	ExecutionOrder  int             `json:"executionOrder"`
	StrategyName    string          `json:"strategyName,omitempty"`
	DeviceID        string          `json:"deviceID"`
	Command         DeviceCommand   `json:"command"`
	ExecutionStatus ExecutionStatus `json:"executionStatus"`
	Error           string          `json:"error,omitempty"`
	StartedAt       time.Time       `json:"startedAt,omitempty"`
	CompletedAt     time.Time       `json:"completedAt,omitempty"`
}

// OptimizationPlan is an ordered set of actions built from ranked strategies.
type OptimizationPlan struct {
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"createdAt"`
	CompletedAt time.Time            `json:"completedAt,omitempty"`
	Status      PlanStatus           `json:"status"`
	Actions     []OptimizationAction `json:"actions"`
}

// AggregateStatus computes the plan status from its actions: Completed iff
// every action completed, PartiallyCompleted if at least one did, otherwise
// Failed.
func (p *OptimizationPlan) AggregateStatus() PlanStatus {
	if len(p.Actions) == 0 {
		return PlanCompleted
	}
	var completed int
	for _, a := range p.Actions {
		if a.ExecutionStatus == ExecutionCompleted {
			completed++
		}
	}
	switch {
	case completed == len(p.Actions):
		return PlanCompleted
	case completed > 0:
		return PlanPartiallyCompleted
	default:
		return PlanFailed
	}
}
