package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Статусы здоровья
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker интерфейс для проверки здоровья сервиса
type HealthChecker interface {
	Check(ctx context.Context) *HealthStatus
}

// HealthStatus представляет статус здоровья сервиса
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]Status `json:"services,omitempty"`
	Version   string            `json:"version,omitempty"`
}

// Healthy сообщает, что сервис и все зависимости в порядке
func (h *HealthStatus) Healthy() bool {
	return h != nil && h.Status == StatusHealthy
}

// Status представляет статус зависимости
type Status struct {
	Status  string `json:"status"`
	Details string `json:"details,omitempty"`
}

// Probe проверка одной зависимости (postgres, redis, rabbitmq)
type Probe func(ctx context.Context) error

// DependencyHealthChecker проверяет зарегистрированные зависимости
type DependencyHealthChecker struct {
	version string
	timeout time.Duration

	mu     sync.RWMutex
	probes map[string]Probe
}

// NewDependencyHealthChecker создает проверку с таймаутом на каждую зависимость
func NewDependencyHealthChecker(version string, timeout time.Duration) *DependencyHealthChecker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &DependencyHealthChecker{
		version: version,
		timeout: timeout,
		probes:  make(map[string]Probe),
	}
}

// Register добавляет проверку зависимости
func (c *DependencyHealthChecker) Register(name string, probe Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = probe
}

// Check выполняет все проверки
func (c *DependencyHealthChecker) Check(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	result := &HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   c.version,
		Services:  make(map[string]Status, len(names)),
	}

	for _, name := range names {
		c.mu.RLock()
		probe := c.probes[name]
		c.mu.RUnlock()

		probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := probe(probeCtx)
		cancel()

		if err != nil {
			result.Status = StatusUnhealthy
			result.Services[name] = Status{Status: StatusUnhealthy, Details: err.Error()}
			continue
		}
		result.Services[name] = Status{Status: StatusHealthy}
	}

	return result
}

// Handler создает HTTP обработчик для health check эндпоинта
func Handler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())
		writeJSON(w, http.StatusOK, status)
	}
}

// ReadyHandler создает HTTP обработчик для ready check эндпоинта.
// Возвращает 503, если хотя бы одна зависимость недоступна.
func ReadyHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := checker.Check(r.Context())
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

// LiveHandler создает HTTP обработчик для live check эндпоинта
func LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	}
}

// SyncGRPC переносит результат проверки в gRPC health сервер
func SyncGRPC(ctx context.Context, checker HealthChecker, server *grpchealth.Server, service string) *HealthStatus {
	status := checker.Check(ctx)
	serving := healthpb.HealthCheckResponse_NOT_SERVING
	if status.Healthy() {
		serving = healthpb.HealthCheckResponse_SERVING
	}
	server.SetServingStatus(service, serving)
	server.SetServingStatus("", serving)
	return status
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
