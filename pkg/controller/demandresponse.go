package controller

import (
	"context"
	"errors"

	"github.com/aaronseq12/NexusHome-IoT/pkg/demandresponse"
	"github.com/aaronseq12/NexusHome-IoT/pkg/metrics"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// HandleDemandResponse sheds load for a grid event against the current
// home state.
func (c *Controller) HandleDemandResponse(ctx context.Context, event types.DemandResponseEvent) (types.DemandResponseResult, error) {
	now := c.now()
	var (
		settings types.Settings
		state    homeState
	)
	err := c.db.View(ctx, func(ctx context.Context, r storage.Reader) error {
		var err error
		if settings, err = c.settings(ctx, r); err != nil {
			return err
		}
		state, err = readHomeState(ctx, r, now)
		return err
	})
	if err != nil {
		return types.DemandResponseResult{}, upstream(err)
	}

	snap := demandresponse.Snapshot{
		Devices:  state.Devices,
		Battery:  state.Battery,
		DeviceKW: state.Consumption.DeviceKW,
	}
	orch := demandresponse.New(c.commanderFor(settings), c.deferredFor(settings), settings.Policy)
	res, err := orch.Handle(ctx, event, snap, now)
	if err != nil {
		if errors.Is(err, types.ErrInvalidArgument) {
			return res, err
		}
		return res, upstream(err)
	}

	metrics.RecordDemandResponse(string(event.EventType), res.ReductionAchieved, res.TotalPowerReduction)
	c.emit(ctx, types.EventDemandResponseReported, "", res)
	return res, nil
}
