package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"grimm.is/speedctl/internal/audit"
	"grimm.is/speedctl/internal/config"
	"grimm.is/speedctl/internal/dispatch"
	"grimm.is/speedctl/internal/logging"
	"grimm.is/speedctl/internal/metrics"
)

const runPayload = `{"timestamp":"2021-05-01T10:00:00Z","serverid":3417,"download":93.12,"upload":11.8,"latency":12.4}`

func TestRun_ServerID3417(t *testing.T) {
	jsonReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run", strings.NewReader(`{"serverid": 3417}`))
		req.Header.Set("Content-Type", "application/json")
		return req
	}
	formReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run",
			strings.NewReader(url.Values{"serverid": {"3417"}}.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req
	}

	requests := map[string]func() *http.Request{
		"path segment": func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run/3417", nil)
		},
		"query": func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run?serverid=3417", nil)
		},
		"post path segment": func() *http.Request {
			return httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run/3417", nil)
		},
		"json body": jsonReq,
		"form body": formReq,
	}

	for name, build := range requests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			env.worker.On("RunCommandWithArgs", "speedtest run", []string{"3417"}).Return(runPayload, nil).Once()

			rr := env.do(build())

			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			assert.Equal(t, runPayload, rr.Body.String(), "payload must be passed through unmodified")
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			env.worker.AssertExpectations(t)
		})
	}
}

func TestRun_DefaultServerID(t *testing.T) {
	jsonReq := func(body string) func() *http.Request {
		return func() *http.Request {
			req := httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			return req
		}
	}

	requests := map[string]func() *http.Request{
		"no parameter": func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run", nil)
		},
		"empty query value": func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run?serverid=", nil)
		},
		"json null":        jsonReq(`{"serverid": null}`),
		"json without key": jsonReq(`{}`),
		"json empty body":  jsonReq(``),
	}

	for name, build := range requests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t)
			env.worker.On("RunCommandWithArgs", "speedtest run", []string{"0"}).Return("{}", nil).Once()

			rr := env.do(build())
			assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
			env.worker.AssertExpectations(t)
		})
	}
}

func TestSimpleOperations(t *testing.T) {
	endpoints := map[string]string{
		"version":       "speedtest version",
		"serverlist":    "speedtest serverlist",
		"showstat":      "speedtest showstat",
		"showlog":       "speedtest showlog",
		"deletelog":     "speedtest deletelog",
		"installhttp":   "speedtest install-http",
		"installsocket": "speedtest install-socket",
	}

	for endpoint, command := range endpoints {
		t.Run(endpoint, func(t *testing.T) {
			env := newTestEnv(t)
			env.worker.On("RunCommand", command).Return("OK\n", nil).Twice()

			for _, method := range []string{http.MethodGet, http.MethodPost} {
				rr := env.do(httptest.NewRequest(method, "/api/speedtest/service/"+endpoint, nil))
				require.Equal(t, http.StatusOK, rr.Code)
				assert.Equal(t, "OK\n", rr.Body.String())
				assert.Equal(t, "text/plain; charset=utf-8", rr.Header().Get("Content-Type"))
			}
			env.worker.AssertExpectations(t)
		})
	}
}

func TestSimpleOperations_IgnoreServerID(t *testing.T) {
	env := newTestEnv(t)
	env.worker.On("RunCommand", "speedtest showlog").Return("[]", nil).Once()

	rr := env.get("/api/speedtest/service/showlog?serverid=5")
	assert.Equal(t, http.StatusOK, rr.Code)
	env.worker.AssertExpectations(t)
}

func TestRun_InvalidServerID(t *testing.T) {
	for _, value := range []string{"abc", "-1", "1.5", "99999999999999999999"} {
		t.Run(value, func(t *testing.T) {
			env := newTestEnv(t)

			rr := env.get("/api/speedtest/service/run?serverid=" + url.QueryEscape(value))

			require.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decodeError(t, rr)
			assert.Contains(t, resp.Error, "serverid")
			assert.NotEmpty(t, resp.Details)
			env.worker.AssertNotCalled(t, "RunCommandWithArgs", mock.Anything, mock.Anything)
		})
	}
}

func TestRun_InvalidJSONTypes(t *testing.T) {
	for _, body := range []string{`{"serverid": null}`, `{"serverid": true}`, `{"serverid": -3}`, `{"serverid": [1]}`} {
		t.Run(body, func(t *testing.T) {
			env := newTestEnv(t)
			req := httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			rr := env.do(req)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			env.worker.AssertNotCalled(t, "RunCommandWithArgs", mock.Anything, mock.Anything)
		})
	}
}

func TestRun_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/api/speedtest/service/run", strings.NewReader(`{"serverid":`))
	req.Header.Set("Content-Type", "application/json")

	rr := env.do(req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	env.worker.AssertNotCalled(t, "RunCommandWithArgs", mock.Anything, mock.Anything)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantBody    string
		wantContent string
	}{
		{
			name:        "worker unavailable",
			err:         dispatch.ErrWorkerUnavailable,
			wantStatus:  http.StatusServiceUnavailable,
			wantBody:    "speedtest worker is unavailable",
			wantContent: "application/json",
		},
		{
			name:        "worker failure with payload",
			err:         &dispatch.WorkerError{ExitCode: 1, Payload: `{"error":"no servers"}`},
			wantStatus:  http.StatusBadGateway,
			wantBody:    `{"error":"no servers"}`,
			wantContent: "application/json",
		},
		{
			name:        "worker failure plain text",
			err:         &dispatch.WorkerError{ExitCode: 2, Payload: "Traceback (most recent call last)"},
			wantStatus:  http.StatusBadGateway,
			wantBody:    "Traceback (most recent call last)",
			wantContent: "text/plain; charset=utf-8",
		},
		{
			name:        "worker failure without payload",
			err:         &dispatch.WorkerError{ExitCode: 127},
			wantStatus:  http.StatusBadGateway,
			wantBody:    "exit code 127",
			wantContent: "application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.worker.On("RunCommandWithArgs", "speedtest run", []string{"0"}).Return("", tt.err).Once()

			rr := env.get("/api/speedtest/service/run")

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.wantBody)
			assert.Equal(t, tt.wantContent, rr.Header().Get("Content-Type"))
		})
	}
}

func TestUnknownEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.get("/api/speedtest/service/reboot")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, `unknown operation "reboot"`, decodeError(t, rr).Error)

	// Operation names are not endpoints
	rr = env.get("/api/speedtest/service/install-http")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.get("/api/speedtest/service/version/extra")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	env.worker.AssertNotCalled(t, "RunCommand", mock.Anything)
}

func TestUnknownEndpoint_Localized(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/speedtest/service/reboot", nil)
	req.Header.Set("Accept-Language", "de-DE,de;q=0.9")
	rr := env.do(req)

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, `unbekannte Operation "reboot"`, decodeError(t, rr).Error)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(httptest.NewRequest(http.MethodDelete, "/api/speedtest/service/deletelog", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET, POST", rr.Header().Get("Allow"))
	env.worker.AssertNotCalled(t, "RunCommand", mock.Anything)
}

func TestRateLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.RateLimitRequests = 2
	cfg.API.RateLimitInterval = "1h"
	env := newTestEnv(t, withConfig(cfg))
	env.worker.On("RunCommandWithArgs", "speedtest run", []string{"0"}).Return("{}", nil).Twice()
	env.worker.On("RunCommand", "speedtest showstat").Return("{}", nil).Times(3)

	run := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run", nil)
		req.RemoteAddr = remote
		return env.do(req).Code
	}

	assert.Equal(t, http.StatusOK, run("192.0.2.1:1000"))
	assert.Equal(t, http.StatusOK, run("192.0.2.1:1001"))

	req := httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run", nil)
	req.RemoteAddr = "192.0.2.1:1002"
	rr := env.do(req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "3600", rr.Header().Get("Retry-After"))

	// Reads are never limited
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/speedtest/service/showstat", nil)
		req.RemoteAddr = "192.0.2.1:1003"
		assert.Equal(t, http.StatusOK, env.do(req).Code)
	}

	rr = env.get("/metrics")
	assert.Contains(t, rr.Body.String(), `speedctl_rate_limited_total{operation="run"} 1`)
	env.worker.AssertExpectations(t)
}

func TestRateLimit_Disabled(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.API.RateLimitRequests = -1
	env := newTestEnv(t, withConfig(cfg))
	env.worker.On("RunCommand", "speedtest install-http").Return("installed", nil).Times(10)

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, env.get("/api/speedtest/service/installhttp").Code)
	}
}

func TestAudit_RecordsInvocations(t *testing.T) {
	env := newTestEnv(t, withAudit(t))
	env.worker.On("RunCommandWithArgs", "speedtest run", []string{"3417"}).Return(runPayload, nil).Once()
	env.worker.On("RunCommand", "speedtest version").Return("", dispatch.ErrWorkerUnavailable).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/speedtest/service/run/3417", nil)
	req.RemoteAddr = "198.51.100.20:4321"
	rr := env.do(req)
	require.Equal(t, http.StatusOK, rr.Code)
	requestID := rr.Header().Get(RequestIDHeader)

	require.Equal(t, http.StatusServiceUnavailable, env.get("/api/speedtest/service/version").Code)
	require.Equal(t, http.StatusBadRequest, env.get("/api/speedtest/service/run?serverid=x").Code)
	require.Equal(t, http.StatusNotFound, env.get("/api/speedtest/service/reboot").Code)

	records, err := env.audit.Query(audit.Filter{Operation: "run", Outcome: dispatch.OutcomeOK})
	require.NoError(t, err)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, []string{"3417"}, rec.Args)
	assert.Equal(t, "198.51.100.20", rec.ClientIP)
	assert.Equal(t, requestID, rec.RequestID)
	assert.Equal(t, len(runPayload), rec.PayloadLen)
	assert.Equal(t, "api", rec.Source)

	rr = env.get("/api/audit?limit=10")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp AuditResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(4), resp.Total)
	assert.Equal(t, 10, resp.Limit)

	outcomes := map[string]bool{}
	for _, r := range resp.Records {
		outcomes[r.Outcome] = true
	}
	assert.True(t, outcomes[dispatch.OutcomeOK])
	assert.True(t, outcomes[dispatch.OutcomeWorkerUnavailable])
	assert.True(t, outcomes[dispatch.OutcomeInvalidArgument])
	assert.True(t, outcomes[dispatch.OutcomeUnknownOperation])

	rr = env.get("/api/audit?outcome=invalid_argument")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, []string{"x"}, resp.Records[0].Args)
}

func TestAudit_UnknownEndpointsShareOneName(t *testing.T) {
	env := newTestEnv(t, withAudit(t))

	long := strings.Repeat("x", 500)
	for _, endpoint := range []string{"reboot", "drop-tables", long} {
		require.Equal(t, http.StatusNotFound, env.get("/api/speedtest/service/"+endpoint).Code)
	}

	records, err := env.audit.Query(audit.Filter{Operation: "reboot"})
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = env.audit.Query(audit.Filter{Operation: metrics.OperationLabelUnknown})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, dispatch.OutcomeUnknownOperation, rec.Outcome)
		assert.Less(t, len(rec.Error), 200)
	}
	assert.Contains(t, records[2].Error, "reboot")
}

func TestAudit_QueryValidation(t *testing.T) {
	env := newTestEnv(t, withAudit(t))

	assert.Equal(t, http.StatusBadRequest, env.get("/api/audit?limit=0").Code)
	assert.Equal(t, http.StatusBadRequest, env.get("/api/audit?limit=abc").Code)
	assert.Equal(t, http.StatusBadRequest, env.get("/api/audit?since=yesterday").Code)

	rr := env.get("/api/audit?since=24h&limit=5000")
	require.Equal(t, http.StatusOK, rr.Code)
	var resp AuditResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, maxAuditLimit, resp.Limit)
	assert.NotNil(t, resp.Records)

	since := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	assert.Equal(t, http.StatusOK, env.get("/api/audit?since="+since).Code)
}

func TestAudit_Disabled(t *testing.T) {
	env := newTestEnv(t)
	rr := env.get("/api/audit")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "audit trail is disabled", decodeError(t, rr).Error)
}

func TestAudit_LogFallback(t *testing.T) {
	var buf bytes.Buffer
	env := newTestEnv(t, func(o *ServerOptions) {
		o.AuditLog = true
		o.Logger = logging.New(logging.Config{Level: logging.LevelInfo, Output: &buf})
	})
	env.worker.On("RunCommand", "speedtest version").Return(`{"version":"cli"}`, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/api/speedtest/service/version", nil)
	req.RemoteAddr = "198.51.100.7:5000"
	require.Equal(t, http.StatusOK, env.do(req).Code)

	line := buf.String()
	assert.Contains(t, line, "AUDIT")
	assert.Contains(t, line, "operation=version")
	assert.Contains(t, line, "outcome=ok")
	assert.Contains(t, line, "client_ip=198.51.100.7")

	// The store stays authoritative for queries
	assert.Equal(t, http.StatusServiceUnavailable, env.get("/api/audit").Code)
}
