package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAggregateStatus(t *testing.T) {
	plan := func(statuses ...ExecutionStatus) *OptimizationPlan {
		p := &OptimizationPlan{}
		for i, s := range statuses {
			p.Actions = append(p.Actions, OptimizationAction{ExecutionOrder: i + 1, ExecutionStatus: s})
		}
		return p
	}

	assert.Equal(t, PlanCompleted, plan(ExecutionCompleted, ExecutionCompleted, ExecutionCompleted).AggregateStatus())
	assert.Equal(t, PlanPartiallyCompleted, plan(ExecutionCompleted, ExecutionFailed, ExecutionCompleted).AggregateStatus())
	assert.Equal(t, PlanFailed, plan(ExecutionFailed, ExecutionFailed, ExecutionFailed).AggregateStatus())
	assert.Equal(t, PlanPartiallyCompleted, plan(ExecutionCompleted, ExecutionCancelled).AggregateStatus())
}

func TestTimeWindow(t *testing.T) {
	start := time.Date(2024, 6, 1, 10, 30, 0, 0, time.UTC)
	w := TimeWindow{Start: start, End: start.Add(3 * time.Hour)}
	assert.NoError(t, w.Validate())
	assert.Len(t, w.Hours(), 4)
	assert.True(t, w.Contains(start))
	assert.False(t, w.Contains(w.End))

	assert.ErrorIs(t, TimeWindow{Start: start, End: start}.Validate(), ErrInvalidArgument)
	assert.ErrorIs(t, TimeWindow{}.Validate(), ErrInvalidArgument)
}
