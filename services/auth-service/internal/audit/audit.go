// Package audit передает события входа и выхода во внешний журнал аудита.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"SiteAuthPlatform/pkg/connection"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/metrics"
	"SiteAuthPlatform/pkg/rabbitmq"
)

// EventType тип события аудита
type EventType string

const (
	EventLoginSuccess EventType = "login_success"
	EventLoginFailure EventType = "login_failure"
	EventLogout       EventType = "logout"
)

// Event запись аудита (tenant, событие, адрес клиента, субъект)
type Event struct {
	ID           string    `json:"id"`
	TenantID     string    `json:"tenant_id"`
	Type         EventType `json:"event"`
	ActorAddress string    `json:"actor_address"`
	SubjectID    string    `json:"subject_id,omitempty"`
	SubjectLabel string    `json:"subject_label,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink принимает события аудита
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// LogSink пишет события в лог
type LogSink struct {
	logger logger.Logger
}

// NewLogSink создает LogSink
func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// Record пишет событие в лог
func (s *LogSink) Record(ctx context.Context, event Event) error {
	s.logger.Info("Audit event",
		logger.CtxField(ctx),
		logger.String("event_id", event.ID),
		logger.String("tenant_id", event.TenantID),
		logger.String("event", string(event.Type)),
		logger.String("actor_address", event.ActorAddress),
		logger.String("subject_id", event.SubjectID),
		logger.String("subject_label", event.SubjectLabel),
		logger.String("reason", event.Reason),
	)
	return nil
}

// Publisher публикует сообщение в брокер с повторами
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, retry connection.RetryConfig, options ...rabbitmq.PublishOption) error
}

// AMQPSink публикует события в RabbitMQ в формате JSON
type AMQPSink struct {
	publisher Publisher
	retry     connection.RetryConfig
}

// NewAMQPSink создает AMQPSink. Повторы ограничены retry и контекстом вызова.
func NewAMQPSink(publisher Publisher, retry connection.RetryConfig) *AMQPSink {
	return &AMQPSink{publisher: publisher, retry: retry}
}

// Record публикует событие, routing key равен auth.<тип события>
func (s *AMQPSink) Record(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = s.publisher.PublishWithRetry(ctx, body, s.retry,
		rabbitmq.WithMessageID(event.ID),
		rabbitmq.WithRoutingKey("auth."+string(event.Type)),
		rabbitmq.WithHeaders(amqp091.Table{"tenant_id": event.TenantID}),
	)
	if err != nil {
		return fmt.Errorf("failed to publish audit event: %w", err)
	}
	return nil
}

// MultiSink передает событие в несколько приемников и возвращает первую ошибку
type MultiSink []Sink

// Record передает событие во все приемники
func (m MultiSink) Record(ctx context.Context, event Event) error {
	var first error
	for _, sink := range m {
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// FireAndForget оборачивает Sink: ошибки записываются в лог и не возвращаются.
// Отмена запроса не прерывает запись, время записи ограничено timeout.
type FireAndForget struct {
	sink    Sink
	name    string
	timeout time.Duration
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewFireAndForget создает FireAndForget. name используется как метка метрики ошибок.
func NewFireAndForget(sink Sink, name string, timeout time.Duration, log logger.Logger, m *metrics.Metrics) *FireAndForget {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &FireAndForget{sink: sink, name: name, timeout: timeout, logger: log, metrics: m}
}

// Record заполняет ID и время события и передает его приемнику
func (f *FireAndForget) Record(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	if err := f.sink.Record(ctx, event); err != nil {
		f.metrics.IncAuditErrors(f.name)
		f.logger.Error("Failed to record audit event",
			logger.CtxField(ctx),
			logger.String("event_id", event.ID),
			logger.String("event", string(event.Type)),
			logger.Error(err))
	}
}
