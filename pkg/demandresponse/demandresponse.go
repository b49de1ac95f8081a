// Package demandresponse handles utility demand response events: it
// classifies the event, generates load reductions against controllable
// devices, executes or schedules them and reports the outcome.
package demandresponse

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// thermalReductionPerC is the fraction of rated power saved per degree of
// setback.
const thermalReductionPerC = 0.1

// Scheduler defers actions to a later time.
type Scheduler interface {
	Schedule(ctx context.Context, at time.Time, action types.DemandResponseAction) error
}

// Snapshot is the home state an event is handled against.
type Snapshot struct {
	Devices []types.Device
	Battery *types.BatterySnapshot
	// DeviceKW is the current draw by device id, rated power is used when a
	// device is missing.
	DeviceKW map[string]float64
}

func (s Snapshot) drawW(d types.Device) float64 {
	if kw, ok := s.DeviceKW[d.ID]; ok && kw > 0 {
		return kw * 1000
	}
	return d.RatedPowerW
}

// Orchestrator handles demand response events.
type Orchestrator struct {
	commander bus.Commander
	scheduler Scheduler
	policy    types.Policy
}

// New returns an Orchestrator.
func New(commander bus.Commander, scheduler Scheduler, policy types.Policy) *Orchestrator {
	return &Orchestrator{commander: commander, scheduler: scheduler, policy: policy}
}

type generator func(o *Orchestrator, event types.DemandResponseEvent, snap Snapshot, now time.Time) []types.DemandResponseAction

var generators = map[types.DemandResponseEventType]generator{
	types.DREventPeakShaving:         (*Orchestrator).peakShaving,
	types.DREventLoadReduction:       (*Orchestrator).loadReduction,
	types.DREventFrequencyRegulation: (*Orchestrator).frequencyRegulation,
	types.DREventEmergencyResponse:   (*Orchestrator).emergencyResponse,
}

// Handle runs an event through Received, Classified, ActionsGenerated,
// ImmediateExecuted and/or Scheduled, and Reported. Immediate actions run
// sequentially and a failure never stops the rest.
func (o *Orchestrator) Handle(ctx context.Context, event types.DemandResponseEvent, snap Snapshot, now time.Time) (types.DemandResponseResult, error) {
	ctx = log.WithAttrs(ctx, slog.String("eventID", event.EventID), slog.String("eventType", string(event.EventType)))
	res := types.DemandResponseResult{
		EventID:         event.EventID,
		EventType:       event.EventType,
		TargetReduction: event.TargetReduction,
	}
	transition := func(s types.DemandResponseState) {
		res.State = s
		res.Transitions = append(res.Transitions, s)
		log.Ctx(ctx).DebugContext(ctx, "demand response transition", slog.String("state", string(s)))
	}
	transition(types.DRStateReceived)

	if err := validate(event); err != nil {
		return res, err
	}
	gen, ok := generators[event.EventType]
	if !ok {
		return res, fmt.Errorf("%w: unknown demand response event type %q", types.ErrInvalidArgument, event.EventType)
	}
	transition(types.DRStateClassified)

	res.Actions = gen(o, event, snap, now)
	transition(types.DRStateActionsGenerated)

	var immediate, scheduled int
	for i := range res.Actions {
		a := &res.Actions[i]
		res.TotalPowerReduction += a.PowerReduction
		if a.Priority == types.DRPriorityImmediate {
			immediate++
			if err := o.commander.SendCommand(ctx, a.DeviceID, a.Command); err != nil {
				log.Ctx(ctx).WarnContext(
					ctx,
					"demand response action failed",
					slog.String("deviceID", a.DeviceID),
					slog.String("command", string(a.Command.Type)),
					slog.Any("error", err),
				)
				a.Error = err.Error()
				continue
			}
			a.Executed = true
		}
	}
	if immediate > 0 {
		transition(types.DRStateImmediateExecuted)
	}
	for i := range res.Actions {
		a := &res.Actions[i]
		if a.Priority == types.DRPriorityImmediate {
			continue
		}
		scheduled++
		if o.scheduler == nil {
			a.Error = "no scheduler configured"
			continue
		}
		if err := o.scheduler.Schedule(ctx, a.ScheduledAt, *a); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "failed to schedule demand response action", slog.String("deviceID", a.DeviceID), slog.Any("error", err))
			a.Error = err.Error()
		}
	}
	if scheduled > 0 {
		transition(types.DRStateScheduled)
	}

	for _, a := range res.Actions {
		if a.Error == "" {
			res.DeliveredPowerReduction += a.PowerReduction
		}
	}
	res.ReductionAchieved = res.TotalPowerReduction >= event.TargetReduction
	if res.DeliveredPowerReduction >= event.TargetReduction || o.policy.IncentiveOnPartialReduction {
		rate := o.policy.IncentiveDollarsPerKWH
		if event.IncentiveDollarsPerKWH != nil {
			rate = *event.IncentiveDollarsPerKWH
		}
		res.IncentiveEarnings = rate * res.DeliveredPowerReduction / 1000 * event.Duration().Hours()
	}
	res.CompletedAt = now
	transition(types.DRStateReported)

	log.Ctx(ctx).InfoContext(
		ctx,
		"handled demand response event",
		slog.Float64("reductionW", res.TotalPowerReduction),
		slog.Float64("deliveredW", res.DeliveredPowerReduction),
		slog.Float64("targetW", event.TargetReduction),
		slog.Bool("achieved", res.ReductionAchieved),
		slog.Int("immediate", immediate),
		slog.Int("scheduled", scheduled),
	)
	return res, nil
}

func validate(event types.DemandResponseEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("%w: event id is required", types.ErrInvalidArgument)
	}
	if !event.EndTime.After(event.StartTime) {
		return fmt.Errorf("%w: event must end after it starts", types.ErrInvalidArgument)
	}
	if event.TargetReduction < 0 {
		return fmt.Errorf("%w: target reduction must not be negative", types.ErrInvalidArgument)
	}
	return nil
}

// priorityFor is Immediate once the event has started, otherwise the action
// is scheduled for the start.
func priorityFor(event types.DemandResponseEvent, now time.Time) (types.DemandResponsePriority, time.Time) {
	if !now.Before(event.StartTime) {
		return types.DRPriorityImmediate, now
	}
	return types.DRPriorityScheduled, event.StartTime
}

func shedable(d types.Device) bool {
	if !d.Controllable {
		return false
	}
	switch d.Type {
	case types.DeviceTypeBattery, types.DeviceTypeSolarInverter, types.DeviceTypeMeter:
		return false
	}
	return true
}

func isThermal(d types.Device) bool {
	return d.Type == types.DeviceTypeThermostat || d.Type == types.DeviceTypeHVAC
}

func until(event types.DemandResponseEvent) map[string]string {
	return map[string]string{"until": event.EndTime.UTC().Format(time.RFC3339)}
}

func (o *Orchestrator) setback(d types.Device, event types.DemandResponseEvent, snap Snapshot) (types.DeviceCommand, float64) {
	params := until(event)
	params["setbackC"] = strconv.FormatFloat(o.policy.ThermalSetbackC, 'f', 1, 64)
	return types.DeviceCommand{Type: types.CommandSetSetpoint, Parameters: params},
		snap.drawW(d) * thermalReductionPerC * o.policy.ThermalSetbackC
}

// peakShaving defers deferrable loads and sets back thermostats.
func (o *Orchestrator) peakShaving(event types.DemandResponseEvent, snap Snapshot, now time.Time) []types.DemandResponseAction {
	priority, at := priorityFor(event, now)
	var actions []types.DemandResponseAction
	for _, d := range snap.Devices {
		if !shedable(d) {
			continue
		}
		var cmd types.DeviceCommand
		var reduction float64
		switch {
		case d.Deferrable:
			cmd, reduction = types.DeviceCommand{Type: types.CommandDefer, Parameters: until(event)}, snap.drawW(d)
		case isThermal(d):
			cmd, reduction = o.setback(d, event, snap)
		default:
			continue
		}
		actions = append(actions, types.DemandResponseAction{
			DeviceID:       d.ID,
			Command:        cmd,
			PowerReduction: reduction,
			Priority:       priority,
			ScheduledAt:    at,
		})
	}
	return actions
}

// loadReduction sheds the largest loads first until the target is met.
func (o *Orchestrator) loadReduction(event types.DemandResponseEvent, snap Snapshot, now time.Time) []types.DemandResponseAction {
	priority, at := priorityFor(event, now)
	devices := make([]types.Device, 0, len(snap.Devices))
	for _, d := range snap.Devices {
		if shedable(d) {
			devices = append(devices, d)
		}
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return snap.drawW(devices[i]) > snap.drawW(devices[j])
	})

	var actions []types.DemandResponseAction
	var total float64
	for _, d := range devices {
		if total >= event.TargetReduction {
			break
		}
		cmd, reduction := types.DeviceCommand{Type: types.CommandTurnOff, Parameters: until(event)}, snap.drawW(d)
		if isThermal(d) {
			cmd, reduction = o.setback(d, event, snap)
		}
		total += reduction
		actions = append(actions, types.DemandResponseAction{
			DeviceID:       d.ID,
			Command:        cmd,
			PowerReduction: reduction,
			Priority:       priority,
			ScheduledAt:    at,
		})
	}
	return actions
}

// frequencyRegulation needs a fast response: discharge the battery and
// pause EV charging right away.
func (o *Orchestrator) frequencyRegulation(event types.DemandResponseEvent, snap Snapshot, now time.Time) []types.DemandResponseAction {
	var actions []types.DemandResponseAction
	if a, ok := batteryDischarge(event, snap, now); ok {
		actions = append(actions, a)
	}
	for _, d := range snap.Devices {
		if d.Controllable && d.Type == types.DeviceTypeEVCharger {
			actions = append(actions, types.DemandResponseAction{
				DeviceID:       d.ID,
				Command:        types.DeviceCommand{Type: types.CommandPauseCharging, Parameters: until(event)},
				PowerReduction: snap.drawW(d),
				Priority:       types.DRPriorityImmediate,
				ScheduledAt:    now,
			})
		}
	}
	return actions
}

// emergencyResponse turns off every controllable load and discharges the
// battery.
func (o *Orchestrator) emergencyResponse(event types.DemandResponseEvent, snap Snapshot, now time.Time) []types.DemandResponseAction {
	var actions []types.DemandResponseAction
	if a, ok := batteryDischarge(event, snap, now); ok {
		actions = append(actions, a)
	}
	for _, d := range snap.Devices {
		if !shedable(d) {
			continue
		}
		actions = append(actions, types.DemandResponseAction{
			DeviceID:       d.ID,
			Command:        types.DeviceCommand{Type: types.CommandTurnOff, Parameters: until(event)},
			PowerReduction: snap.drawW(d),
			Priority:       types.DRPriorityImmediate,
			ScheduledAt:    now,
		})
	}
	return actions
}

func batteryDischarge(event types.DemandResponseEvent, snap Snapshot, now time.Time) (types.DemandResponseAction, bool) {
	b := snap.Battery
	if b == nil || b.MaxDischargeKW <= 0 || b.SOC <= b.MinSOC {
		return types.DemandResponseAction{}, false
	}
	// never discharge more than the energy above the reserve over the event
	availableKWH := b.CapacityKWH * (b.SOC - b.MinSOC) / 100
	kw := b.MaxDischargeKW
	if hours := event.Duration().Hours(); hours > 0 {
		kw = math.Min(kw, availableKWH/hours)
	}
	if kw <= 0 {
		return types.DemandResponseAction{}, false
	}
	params := until(event)
	params["kw"] = strconv.FormatFloat(kw, 'f', 2, 64)
	return types.DemandResponseAction{
		DeviceID:       b.DeviceID,
		Command:        types.DeviceCommand{Type: types.CommandDischargeBatt, Parameters: params},
		PowerReduction: kw * 1000,
		Priority:       types.DRPriorityImmediate,
		ScheduledAt:    now,
	}, true
}
