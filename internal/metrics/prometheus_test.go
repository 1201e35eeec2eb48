package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return NewRegistry(prometheus.NewRegistry())
}

// valueOf reads the current value of a counter or gauge.
func valueOf(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	if pb.Counter != nil {
		return pb.Counter.GetValue()
	}
	return pb.Gauge.GetValue()
}

func seriesCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 64)
	c.Collect(ch)
	close(ch)
	return len(ch)
}

func TestObserveInvocation(t *testing.T) {
	r := newTestRegistry()
	r.SetKnownOperations([]string{"run", "version"})

	r.ObserveInvocation("run", "ok", 20*time.Second)
	r.ObserveInvocation("run", "ok", 25*time.Second)
	r.ObserveInvocation("version", "worker_unavailable", time.Millisecond)
	r.ObserveInvocation("reboot", "unknown_operation", 0)
	r.ObserveInvocation("drop tables", "unknown_operation", 0)

	assert.Equal(t, 2.0, valueOf(t, r.InvocationsTotal.WithLabelValues("run", "ok")))
	assert.Equal(t, 1.0, valueOf(t, r.InvocationsTotal.WithLabelValues("version", "worker_unavailable")))
	assert.Equal(t, 2.0, valueOf(t, r.InvocationsTotal.WithLabelValues(OperationLabelUnknown, "unknown_operation")))
	assert.Equal(t, 1.0, valueOf(t, r.WorkerUnavailable))
	assert.Equal(t, 3, seriesCount(r.InvocationsTotal))
}

func TestRecordHelpers(t *testing.T) {
	r := newTestRegistry()

	r.RecordRateLimited("run")
	r.RecordAuditWrite(nil)
	r.RecordAuditWrite(errors.New("disk full"))
	r.RecordConfigReload(nil)
	r.RecordAPIRequest("GET", "/api/speedtest/service/{endpoint}", 200, 0.01)

	assert.Equal(t, 1.0, valueOf(t, r.RateLimited.WithLabelValues("run")))
	assert.Equal(t, 1.0, valueOf(t, r.AuditWrites.WithLabelValues("ok")))
	assert.Equal(t, 1.0, valueOf(t, r.AuditWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, valueOf(t, r.ConfigReload.WithLabelValues("success")))
	assert.Equal(t, 1.0, valueOf(t, r.APIRequests.WithLabelValues("GET", "/api/speedtest/service/{endpoint}", "200")))
}

func TestGetIsSingleton(t *testing.T) {
	assert.Same(t, Get(), Get())
}
