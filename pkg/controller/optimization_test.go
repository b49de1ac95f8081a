package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

func TestExecutePlanDryRun(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (testEnv, *types.OptimizationPlan) {
		env := newTestEnv(t)
		s := testSettings()
		s.DryRun = true
		require.NoError(t, env.c.UpdateSettings(ctx, s))
		plan, err := env.c.CreatePlan(ctx, []types.OptimizationStrategy{
			{Name: "shift", Type: types.StrategyLoadShifting, TargetDeviceID: "water-heater"},
		})
		require.NoError(t, err)
		return env, plan
	}

	t.Run("By ID", func(t *testing.T) {
		env, plan := setup(t)

		got, err := env.c.ExecutePlanByID(ctx, plan.ID)
		assert.ErrorIs(t, err, types.ErrDryRun)
		assert.Equal(t, types.PlanPending, got.Status)
		env.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)

		stored, err := env.c.GetPlan(ctx, plan.ID)
		require.NoError(t, err)
		assert.Equal(t, types.PlanPending, stored.Status)
		assert.Equal(t, types.ExecutionPending, stored.Actions[0].ExecutionStatus)
	})

	t.Run("In Place", func(t *testing.T) {
		env, plan := setup(t)

		err := env.c.ExecutePlan(ctx, plan)
		assert.ErrorIs(t, err, types.ErrDryRun)
		env.cmd.AssertNotCalled(t, "SendCommand", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Nil Plan", func(t *testing.T) {
		env := newTestEnv(t)
		assert.ErrorIs(t, env.c.ExecutePlan(ctx, nil), types.ErrInvalidArgument)
	})
}
