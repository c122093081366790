package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	return NewMetricsWithRegistry("auth-service", registry, registry)
}

// TestNewMetrics проверяет создание системы метрик
func TestNewMetrics(t *testing.T) {
	m := newTestMetrics()

	require.NotNil(t, m)
	assert.NotNil(t, m.LoginAttempts)
	assert.NotNil(t, m.DirectoryDuration)
	assert.NotNil(t, m.Tracer)
}

// TestNewMetrics_Twice проверяет повторную регистрацию в одном реестре
func TestNewMetrics_Twice(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewMetricsWithRegistry("auth-service", registry, registry)
	second := NewMetricsWithRegistry("auth-service", registry, registry)

	first.ObserveLogin("success", "", "local", time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(second.LoginAttempts.WithLabelValues("success", "", "local")))
}

// TestObserveLogin проверяет счетчики исходов входа
func TestObserveLogin(t *testing.T) {
	m := newTestMetrics()

	m.ObserveLogin("rejected", "invalid_credentials", "local", 10*time.Millisecond)
	m.ObserveLogin("rejected", "invalid_credentials", "local", 10*time.Millisecond)
	m.ObserveLogin("success", "", "directory", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("rejected", "invalid_credentials", "local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginAttempts.WithLabelValues("success", "", "directory")))
}

// TestGroupSyncAndAudit проверяет вспомогательные счетчики
func TestGroupSyncAndAudit(t *testing.T) {
	m := newTestMetrics()

	m.AddGroupSyncChanges("add", 2)
	m.AddGroupSyncChanges("remove", 0)
	m.IncAuditErrors("amqp")
	m.ObserveDirectory("ok", 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.GroupSyncChanges.WithLabelValues("add")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditErrors.WithLabelValues("amqp")))
}

// TestNilMetrics проверяет, что nil-метрики безопасны
func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveLogin("success", "", "local", time.Second)
	m.ObserveDirectory("ok", time.Second)
	m.AddGroupSyncChanges("add", 1)
	m.IncAuditErrors("log")

	_, span := m.StartSpan(context.Background(), "login")
	span.End()
}

// TestGetHandler проверяет обработчик метрик
func TestGetHandler(t *testing.T) {
	m := newTestMetrics()
	m.ObserveLogin("success", "", "local", time.Millisecond)

	w := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "auth_service_login_attempts_total")
}

// TestMiddleware проверяет сбор HTTP метрик
func TestMiddleware(t *testing.T) {
	m := newTestMetrics()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues(http.MethodGet, "/ready", "503")))
}

// TestInitializeOpenTelemetry проверяет установку провайдера трассировки
func TestInitializeOpenTelemetry(t *testing.T) {
	shutdown := InitializeOpenTelemetry("auth-service", "test")
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
