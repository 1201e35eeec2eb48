package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/ctlplane"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/metrics"
	"grimm.is/speedctl/internal/operation"
	"grimm.is/speedctl/internal/testutil"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	worker  *dispatch.MockWorker
	metrics *metrics.Registry
	audit   *audit.Store
}

type envOption func(*ServerOptions)

func withConfig(cfg *config.Config) envOption {
	return func(o *ServerOptions) { o.Config = cfg }
}

func withAudit(t *testing.T) envOption {
	return func(o *ServerOptions) {
		store, err := audit.NewStore(filepath.Join(t.TempDir(), "audit.db"), 30)
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })
		o.Audit = store
	}
}

func withClient(c ctlplane.ControlPlaneClient) envOption {
	return func(o *ServerOptions) { o.Client = c }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)
	m.SetKnownOperations(operation.Default().Names())

	w := new(dispatch.MockWorker)
	d := dispatch.New(nil, w, dispatch.WithObserver(m.ObserveInvocation))

	so := ServerOptions{
		Dispatcher: d,
		Metrics:    m,
		Gatherer:   reg,
		Logger:     testutil.QuietLogger(),
	}
	for _, opt := range opts {
		opt(&so)
	}

	s, err := NewServer(so)
	require.NoError(t, err)
	return &testEnv{server: s, handler: s.Handler(), worker: w, metrics: m, audit: so.Audit}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) get(path string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp), rr.Body.String())
	return resp
}

func TestNewServer_RequiresDispatcher(t *testing.T) {
	_, err := NewServer(ServerOptions{})
	assert.Error(t, err)
}

func TestOperations_Listing(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/speedtest/operations")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Operations []OperationInfo `json:"operations"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Operations, 8)

	byName := map[string]OperationInfo{}
	for _, op := range body.Operations {
		byName[op.Name] = op
	}
	assert.True(t, byName["run"].RateLimited)
	assert.True(t, byName["install-socket"].RateLimited)
	assert.False(t, byName["showstat"].RateLimited)
	assert.Equal(t, "/api/speedtest/service/installhttp", byName["install-http"].Path)
	require.Len(t, byName["run"].Params, 1)
	assert.Equal(t, "serverid", byName["run"].Params[0].Name)
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/speedtest/operations")
	generated := rr.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/api/speedtest/operations", nil)
	req.Header.Set(RequestIDHeader, "6F9619FF-8B86-D011-B42D-00C04FC964FF")
	rr = env.do(req)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", rr.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/api/speedtest/operations", nil)
	req.Header.Set(RequestIDHeader, "<script>")
	rr = env.do(req)
	assert.NotEqual(t, "<script>", rr.Header().Get(RequestIDHeader))
}

func TestHealth(t *testing.T) {
	cp := new(ctlplane.MockControlPlaneClient)
	cp.On("GetStatus").Return(&ctlplane.Status{Running: true, Actions: 8}, nil)

	env := newTestEnv(t, withClient(cp), withAudit(t))
	rr := env.get("/health")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"control-plane"`)
	assert.Contains(t, rr.Body.String(), `"audit"`)

	assert.Equal(t, http.StatusOK, env.get("/healthz").Code)
}

func TestHealth_ControlPlaneDown(t *testing.T) {
	cp := new(ctlplane.MockControlPlaneClient)
	cp.On("GetStatus").Return(nil, dispatch.ErrWorkerUnavailable)

	env := newTestEnv(t, withClient(cp))
	assert.Equal(t, http.StatusServiceUnavailable, env.get("/health").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.worker.On("RunCommand", "speedtest version").Return(`{"version":"1.2.0"}`, nil)

	require.Equal(t, http.StatusOK, env.get("/api/speedtest/service/version").Code)

	rr := env.get("/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, `speedctl_invocations_total{operation="version",outcome="ok"} 1`)
	assert.Contains(t, body, `speedctl_api_requests_total{method="GET",path="/api/speedtest/service/version",status="200"} 1`)
}

func TestOpenAPI(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/openapi.json")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "/api/speedtest/service/run/{serverid}")

	rr = env.get("/api/openapi.yaml")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/yaml", rr.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rr.Body.String(), "openapi:"))
}

func TestMaxBody(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.MaxBodyBytes = 16
	env := newTestEnv(t, withConfig(cfg))

	req := httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run",
		strings.NewReader(`{"serverid": 3417, "padding": "xxxxxxxxxxxxxxxx"}`))
	req.Header.Set("Content-Type", "application/json")
	rr := env.do(req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	env.worker.AssertNotCalled(t, "RunCommandWithArgs", mock.Anything, mock.Anything)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:5555", "192.0.2.1"},
		{"forwarded first", map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.1"}, "10.0.0.1:1", "198.51.100.7"},
		{"forwarded garbage", map[string]string{"X-Forwarded-For": "nope"}, "192.0.2.1:5555", "192.0.2.1"},
		{"real ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "10.0.0.1:1", "203.0.113.9"},
		{"no port", nil, "192.0.2.1", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, getClientIP(req))
		})
	}
}
