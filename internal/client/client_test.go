package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/speedctl/internal/api"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/health"
	"grimm.is/speedctl/internal/metrics"
	"grimm.is/speedctl/internal/testutil"
)

// newAPIServer serves a real API backed by a mock worker.
func newAPIServer(t *testing.T, cfg *config.Config) (*httptest.Server, *dispatch.MockWorker) {
	t.Helper()

	reg := prometheus.NewRegistry()
	w := new(dispatch.MockWorker)
	s, err := api.NewServer(api.ServerOptions{
		Config:     cfg,
		Dispatcher: dispatch.New(nil, w, dispatch.WithLogger(testutil.QuietLogger())),
		Metrics:    metrics.NewRegistry(reg),
		Gatherer:   reg,
		Logger:     testutil.QuietLogger(),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts, w
}

func TestHTTPClient_InvokeRun(t *testing.T) {
	ts, w := newAPIServer(t, nil)
	w.On("RunCommandWithArgs", "speedtest run", []string{"3417"}).Return(`{"download":94.2}`, nil)

	payload, err := NewHTTPClient(ts.URL + "/").Invoke("run", "3417")
	require.NoError(t, err)
	assert.Equal(t, `{"download":94.2}`, payload)
	w.AssertExpectations(t)
}

func TestHTTPClient_InvokeSimpleUsesEndpoint(t *testing.T) {
	ts, w := newAPIServer(t, nil)
	w.On("RunCommand", "speedtest install-http").Return("installed", nil)

	payload, err := NewHTTPClient(ts.URL).Invoke("install-http")
	require.NoError(t, err)
	assert.Equal(t, "installed", payload)
}

func TestHTTPClient_ErrorMapping(t *testing.T) {
	ts, w := newAPIServer(t, nil)
	w.On("RunCommand", "speedtest version").Return("", errors.New("dial unix: no such file"))
	w.On("RunCommand", "speedtest showlog").
		Return("", &dispatch.WorkerError{Command: "speedtest showlog", ExitCode: 1, Payload: "no log file"})

	c := NewHTTPClient(ts.URL)

	_, err := c.Invoke("reboot")
	assert.ErrorIs(t, err, dispatch.ErrUnknownOperation)

	_, err = c.Invoke("run", "abc")
	assert.ErrorIs(t, err, dispatch.ErrInvalidArgument)

	_, err = c.Invoke("run", "1", "2")
	assert.ErrorIs(t, err, dispatch.ErrArgumentMismatch)

	_, err = c.Invoke("version")
	assert.ErrorIs(t, err, dispatch.ErrWorkerUnavailable)

	_, err = c.Invoke("showlog")
	var werr *dispatch.WorkerError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "no log file", werr.Payload)
	assert.Equal(t, "speedtest showlog", werr.Command)
}

func TestHTTPClient_RateLimited(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.RateLimitRequests = 1
	cfg.API.RateLimitInterval = "1h"

	ts, w := newAPIServer(t, cfg)
	w.On("RunCommandWithArgs", "speedtest run", []string{"0"}).Return("{}", nil)

	c := NewHTTPClient(ts.URL)
	_, err := c.Invoke("run")
	require.NoError(t, err)

	_, err = c.Invoke("run")
	var rl *RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, time.Hour, rl.RetryAfter)
}

func TestHTTPClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewHTTPClient(url, WithTimeout(time.Second)).Invoke("version")
	assert.ErrorIs(t, err, dispatch.ErrWorkerUnavailable)
}

func TestHTTPClient_Operations(t *testing.T) {
	ts, _ := newAPIServer(t, nil)

	ops, err := NewHTTPClient(ts.URL).Operations()
	require.NoError(t, err)
	require.Len(t, ops, 8)

	byName := make(map[string]RemoteOperation, len(ops))
	for _, op := range ops {
		byName[op.Name] = op
	}
	assert.Equal(t, "/api/speedtest/service/run", byName["run"].Path)
	assert.True(t, byName["run"].RateLimited)
	assert.Equal(t, "serverid", byName["run"].Params[0].Name)
	assert.False(t, byName["showlog"].RateLimited)
}

func TestHTTPClient_Health(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(health.Report{
			Status: health.StatusUnhealthy,
			Checks: map[string]health.Check{
				"control-plane": {Name: "control-plane", Status: health.StatusUnhealthy, Message: "connection refused"},
			},
		})
	}))
	defer ts.Close()

	report, err := NewHTTPClient(ts.URL).Health()
	require.NoError(t, err)
	assert.Equal(t, health.StatusUnhealthy, report.Status)
	assert.Equal(t, "connection refused", report.Checks["control-plane"].Message)
}

func TestHTTPClient_UnexpectedStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid API key"}`))
	}))
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).Operations()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "invalid API key")
}
