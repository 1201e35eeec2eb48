package ctlplane

import (
	"github.com/stretchr/testify/mock"
)

// MockControlPlaneClient is a mock implementation of ControlPlaneClient for testing.
type MockControlPlaneClient struct {
	mock.Mock
}

var _ ControlPlaneClient = (*MockControlPlaneClient)(nil)

func (m *MockControlPlaneClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockControlPlaneClient) RunCommand(command string) (string, error) {
	args := m.Called(command)
	return args.String(0), args.Error(1)
}

func (m *MockControlPlaneClient) RunCommandWithArgs(command string, params []string) (string, error) {
	args := m.Called(command, params)
	return args.String(0), args.Error(1)
}

func (m *MockControlPlaneClient) GetStatus() (*Status, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Status), args.Error(1)
}

func (m *MockControlPlaneClient) ListActions() ([]ActionInfo, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ActionInfo), args.Error(1)
}
