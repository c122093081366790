package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Metrics представляет систему метрик сервиса аутентификации
type Metrics struct {
	// HTTP метрики служебного сервера (health, metrics)
	RequestCount    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Метрики входа
	LoginAttempts     *prometheus.CounterVec
	LoginDuration     *prometheus.HistogramVec
	DirectoryDuration *prometheus.HistogramVec
	GroupSyncChanges  *prometheus.CounterVec
	AuditErrors       *prometheus.CounterVec

	// OpenTelemetry Tracer
	Tracer trace.Tracer `json:"-"`

	gatherer prometheus.Gatherer
}

// NewMetrics создает систему метрик в глобальном реестре Prometheus
func NewMetrics(serviceName string) *Metrics {
	return NewMetricsWithRegistry(serviceName, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry создает систему метрик в указанном реестре.
// Повторная регистрация возвращает уже зарегистрированные коллекторы.
func NewMetricsWithRegistry(serviceName string, registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	namespace := strings.ReplaceAll(serviceName, "-", "_")

	m := &Metrics{
		RequestCount: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		)),
		RequestDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		)),
		LoginAttempts: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "login",
				Name:      "attempts_total",
				Help:      "Login attempts by outcome, reason and backend",
			},
			[]string{"outcome", "reason", "backend"},
		)),
		LoginDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "login",
				Name:      "duration_seconds",
				Help:      "Duration of login attempts in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"outcome"},
		)),
		DirectoryDuration: register(registerer, prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "directory",
				Name:      "verify_duration_seconds",
				Help:      "Duration of directory verification in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"result"},
		)),
		GroupSyncChanges: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "directory",
				Name:      "group_sync_changes_total",
				Help:      "Local group membership changes applied by directory sync",
			},
			[]string{"action"},
		)),
		AuditErrors: register(registerer, prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "errors_total",
				Help:      "Audit events that could not be delivered",
			},
			[]string{"sink"},
		)),
		Tracer:   otel.Tracer(serviceName),
		gatherer: gatherer,
	}

	return m
}

// register регистрирует коллектор, возвращая ранее зарегистрированный при повторе
func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if err := registerer.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return collector
}

// ObserveLogin записывает исход попытки входа
func (m *Metrics) ObserveLogin(outcome, reason, backend string, duration time.Duration) {
	if m == nil {
		return
	}
	m.LoginAttempts.WithLabelValues(outcome, reason, backend).Inc()
	m.LoginDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveDirectory записывает длительность проверки в каталоге
func (m *Metrics) ObserveDirectory(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.DirectoryDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// AddGroupSyncChanges учитывает изменения членства в группах
func (m *Metrics) AddGroupSyncChanges(action string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.GroupSyncChanges.WithLabelValues(action).Add(float64(count))
}

// IncAuditErrors учитывает недоставленное событие аудита
func (m *Metrics) IncAuditErrors(sink string) {
	if m == nil {
		return
	}
	m.AuditErrors.WithLabelValues(sink).Inc()
}

// StartSpan открывает спан трассировки
func (m *Metrics) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if m == nil || m.Tracer == nil {
		return otel.Tracer("").Start(ctx, name, trace.WithAttributes(attrs...))
	}
	return m.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// GetHandler возвращает HTTP обработчик для эндпоинта /metrics
func (m *Metrics) GetHandler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Middleware создает middleware для сбора метрик
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, span := m.Tracer.Start(r.Context(), r.URL.Path)
		defer span.End()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		endpoint := r.URL.Path

		m.RequestCount.WithLabelValues(r.Method, endpoint, strconv.Itoa(wrapped.statusCode)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, endpoint).Observe(duration)

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
			attribute.Int("http.status_code", wrapped.statusCode),
			attribute.Float64("http.duration", duration),
		)
	})
}

// responseWriter обертка для перехвата статуса ответа
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader перехватывает установку статуса
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// InitializeOpenTelemetry устанавливает глобальный провайдер трассировки.
// Возвращает функцию остановки провайдера.
func InitializeOpenTelemetry(serviceName, version string) func(context.Context) error {
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)

	tp := tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.AlwaysSample())),
		tracesdk.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown
}
