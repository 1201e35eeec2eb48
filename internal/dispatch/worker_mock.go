package dispatch

import (
	"github.com/stretchr/testify/mock"
)

// MockWorker is a mock implementation of Worker for testing.
type MockWorker struct {
	mock.Mock
}

func (m *MockWorker) RunCommand(command string) (string, error) {
	args := m.Called(command)
	return args.String(0), args.Error(1)
}

func (m *MockWorker) RunCommandWithArgs(command string, params []string) (string, error) {
	args := m.Called(command, params)
	return args.String(0), args.Error(1)
}
