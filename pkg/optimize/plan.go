package optimize

import (
	"time"

	"github.com/google/uuid"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// BuildPlan converts strategies into an ordered plan. Actions are numbered
// from 1 in strategy order; a strategy may contribute several actions.
func BuildPlan(strategies []types.OptimizationStrategy, now time.Time) *types.OptimizationPlan {
	plan := &types.OptimizationPlan{
		ID:        uuid.NewString(),
		CreatedAt: now,
		Status:    types.PlanPending,
	}
	for _, s := range strategies {
		for _, cmd := range Commands(s) {
			plan.Actions = append(plan.Actions, types.OptimizationAction{
				ID:              uuid.NewString(),
				ExecutionOrder:  len(plan.Actions) + 1,
				StrategyName:    s.Name,
				DeviceID:        deviceFor(s),
				Command:         cmd,
				ExecutionStatus: types.ExecutionPending,
			})
		}
	}
	return plan
}

func deviceFor(s types.OptimizationStrategy) string {
	if s.TargetDeviceID != "" {
		return s.TargetDeviceID
	}
	if id := s.Parameters[ParamDeviceID]; id != "" {
		return id
	}
	return HomeDeviceID
}

func params(s types.OptimizationStrategy, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.Parameters[k]; ok {
			out[k] = v
		}
	}
	return out
}

// Commands returns the device commands that carry out a strategy.
func Commands(s types.OptimizationStrategy) []types.DeviceCommand {
	switch s.Type {
	case types.StrategyLoadShifting:
		return []types.DeviceCommand{{
			Type:       types.CommandDefer,
			Parameters: params(s, ParamFrom, ParamUntil),
		}}
	case types.StrategyPeakShaving:
		return []types.DeviceCommand{{
			Type:       types.CommandLimitPeakDemand,
			Parameters: params(s, ParamLimitKW, ParamFrom, ParamUntil),
		}}
	case types.StrategyBatteryOptimization:
		charge := types.DeviceCommand{
			Type: types.CommandChargeBattery,
			Parameters: map[string]string{
				ParamAt:   s.Parameters[ParamChargeAt],
				ParamMode: s.Parameters[ParamMode],
			},
		}
		if s.Parameters[ParamMode] != batteryModeArb {
			return []types.DeviceCommand{charge}
		}
		return []types.DeviceCommand{charge, {
			Type:       types.CommandDischargeBatt,
			Parameters: map[string]string{ParamAt: s.Parameters[ParamDischargeAt]},
		}}
	case types.StrategyThermalOptimization:
		return []types.DeviceCommand{{
			Type:       types.CommandSetSetpoint,
			Parameters: params(s, ParamSetpointC, ParamHVACMode, ParamUntil),
		}}
	case types.StrategyApplianceScheduling:
		return []types.DeviceCommand{{
			Type:       types.CommandScheduleRun,
			Parameters: params(s, ParamAt),
		}}
	default:
		return nil
	}
}
