package busmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus"
	"github.com/aaronseq12/NexusHome-IoT/pkg/types"
)

type MockCommander struct {
	mock.Mock
}

var _ bus.Commander = (*MockCommander)(nil)

func (m *MockCommander) SendCommand(ctx context.Context, deviceID string, cmd types.DeviceCommand) error {
	args := m.Called(ctx, deviceID, cmd)
	return args.Error(0)
}

type MockNotifier struct {
	mock.Mock
}

var _ bus.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, event types.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
