package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

// maxAlertRange bounds alert queries.
const maxAlertRange = 31 * 24 * time.Hour

// RegisterDevice creates or replaces a device.
func (c *Controller) RegisterDevice(ctx context.Context, d types.Device) (types.Device, error) {
	if d.ID == "" {
		return types.Device{}, fmt.Errorf("%w: device id is required", types.ErrInvalidArgument)
	}
	if d.Type == "" {
		return types.Device{}, fmt.Errorf("%w: device type is required", types.ErrInvalidArgument)
	}
	if d.RatedPowerW < 0 || d.CapacityKWH < 0 {
		return types.Device{}, fmt.Errorf("%w: rated power and capacity must not be negative", types.ErrInvalidArgument)
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = c.now()
	}
	if err := c.db.UpsertDevice(ctx, d); err != nil {
		return types.Device{}, upstream(err)
	}
	return d, nil
}

// Devices lists every registered device.
func (c *Controller) Devices(ctx context.Context) ([]types.Device, error) {
	devices, err := c.db.ListDevices(ctx)
	if err != nil {
		return nil, upstream(err)
	}
	return devices, nil
}

// Alerts returns the alerts raised in [start, end).
func (c *Controller) Alerts(ctx context.Context, start, end time.Time) ([]types.Alert, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", types.ErrInvalidArgument)
	}
	if end.Sub(start) > maxAlertRange {
		return nil, fmt.Errorf("%w: range cannot exceed %s", types.ErrInvalidArgument, maxAlertRange)
	}
	alerts, err := c.db.GetAlerts(ctx, start, end)
	if err != nil {
		return nil, upstream(err)
	}
	return alerts, nil
}
