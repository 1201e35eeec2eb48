package ctlplane

import (
	"grimm.is/speedctl/internal/dispatch"
)

// ControlPlaneClient defines the interface for communicating with the control plane.
// This interface enables mocking in unit tests.
type ControlPlaneClient interface {
	dispatch.Worker

	Close() error
	GetStatus() (*Status, error)
	ListActions() ([]ActionInfo, error)
}

var _ ControlPlaneClient = (*Client)(nil)
