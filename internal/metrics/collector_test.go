package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/speedctl/internal/ctlplane"
)

func TestCollector_Collect(t *testing.T) {
	r := newTestRegistry()
	cp := new(ctlplane.MockControlPlaneClient)
	cp.On("GetStatus").Return(&ctlplane.Status{Running: true, Actions: 8, InFlight: 1, Executed: 42}, nil).Once()
	cp.On("GetStatus").Return(nil, errors.New("dial unix: no such file")).Once()

	c := NewCollector(r, cp, nil, time.Minute)

	c.Collect()
	assert.Equal(t, 1.0, valueOf(t, r.ControlPlaneUp))
	assert.Equal(t, 8.0, valueOf(t, r.ControlPlaneActions))
	assert.Equal(t, 1.0, valueOf(t, r.ControlPlaneInFlight))
	assert.Equal(t, 42.0, valueOf(t, r.ControlPlaneExecuted))

	status, at, err := c.LastStatus()
	require.NoError(t, err)
	assert.Equal(t, 8, status.Actions)
	assert.False(t, at.IsZero())

	c.Collect()
	assert.Equal(t, 0.0, valueOf(t, r.ControlPlaneUp))

	status, _, err = c.LastStatus()
	assert.Error(t, err)
	require.NotNil(t, status, "last good status is kept")
	assert.Equal(t, 8, status.Actions)

	cp.AssertExpectations(t)
}

func TestCollector_StartStop(t *testing.T) {
	var polls atomic.Int32
	cp := new(ctlplane.MockControlPlaneClient)
	cp.On("GetStatus").Run(func(mock.Arguments) { polls.Add(1) }).Return(&ctlplane.Status{Running: true}, nil)

	c := NewCollector(newTestRegistry(), cp, nil, 10*time.Millisecond)

	done := make(chan struct{})
	go func() {
		c.Start(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return polls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
}
