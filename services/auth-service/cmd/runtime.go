package main

import (
	"context"
	"fmt"
	"time"

	"SiteAuthPlatform/pkg/connection"
	"SiteAuthPlatform/pkg/database"
	"SiteAuthPlatform/pkg/health"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/metrics"
	"SiteAuthPlatform/pkg/rabbitmq"
	"SiteAuthPlatform/pkg/ratelimit"
	"SiteAuthPlatform/pkg/redis"
	"SiteAuthPlatform/services/auth-service/internal/audit"
	"SiteAuthPlatform/services/auth-service/internal/directory"
	"SiteAuthPlatform/services/auth-service/internal/pkg/cipher"
	"SiteAuthPlatform/services/auth-service/internal/pkg/hash"
	"SiteAuthPlatform/services/auth-service/internal/pkg/password"
	"SiteAuthPlatform/services/auth-service/internal/pkg/totp"
	"SiteAuthPlatform/services/auth-service/internal/repository/postgres"
	"SiteAuthPlatform/services/auth-service/internal/service"
)

// auditTimeout ограничивает отправку одного события аудита
const auditTimeout = 5 * time.Second

// runtime подключения к внешним зависимостям процесса
type runtime struct {
	store   *postgres.Store
	secrets *cipher.SecretCipher
	limiter ratelimit.RateLimiter
	sink    audit.Sink
	health  *health.DependencyHealthChecker
	metrics *metrics.Metrics

	closers []func()
}

// openRuntime подключается к PostgreSQL и применяет схему, затем к Redis и
// RabbitMQ, если они включены. Каждая зависимость регистрируется в health.
func (a *app) openRuntime(ctx context.Context, m *metrics.Metrics) (*runtime, error) {
	log := a.logger
	rt := &runtime{
		secrets: cipher.NewSecretCipher(a.cfg.Security, log),
		health:  health.NewDependencyHealthChecker(serviceVersion, 2*time.Second),
		metrics: m,
	}

	if err := rt.secrets.Check(); err != nil {
		log.Warn("Key encryption secret key is not ready, secret operations will fail",
			logger.String("candidate_file", a.cfg.Security.CandidateKeyFile),
			logger.Error(err))
	}
	rt.health.Register("key_encryption_secret_key", func(context.Context) error {
		return rt.secrets.Check()
	})

	db, err := database.Connect(ctx, database.FromAppConfig(a.cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	rt.closers = append(rt.closers, db.Close)
	rt.health.Register("postgres", db.HealthCheck)

	rt.store = postgres.NewStore(db)
	if err := rt.store.Migrate(ctx); err != nil {
		rt.Close()
		return nil, err
	}
	log.Info("Database connected", logger.String("database", a.cfg.Database.Name))

	if a.cfg.Redis.Enabled {
		client, err := redis.Connect(ctx, redis.FromAppConfig(a.cfg.Redis))
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		rt.health.Register("redis", client.HealthCheck)
		rt.limiter = ratelimit.NewRedisRateLimiter(client.Client, "auth")
		log.Info("Redis connected, login rate limit enabled",
			logger.Int("per_minute", a.cfg.Login.RateLimitPerMinute))
	}

	sinks := audit.MultiSink{audit.NewLogSink(log)}
	if a.cfg.RabbitMQ.Enabled {
		rabbitConfig := rabbitmq.FromAppConfig(a.cfg.RabbitMQ)
		conn, err := rabbitmq.Connect(ctx, rabbitConfig)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = conn.Close() })
		rt.health.Register("rabbitmq", conn.HealthCheck)
		retry := connection.RetryConfig{
			MaxAttempts:  rabbitConfig.MaxRetries,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2,
			Jitter:       true,
		}
		sinks = append(sinks, audit.NewAMQPSink(rabbitmq.NewProducer(conn, rabbitConfig), retry))
		log.Info("RabbitMQ connected, audit events published",
			logger.String("exchange", rabbitConfig.Exchange))
	}
	rt.sink = sinks

	return rt, nil
}

// Close закрывает подключения в обратном порядке
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (a *app) selector() *directory.Selector {
	return directory.NewSelector(a.logger)
}

// coordinator собирает Coordinator поверх подключений runtime
func (a *app) coordinator(rt *runtime) *service.Coordinator {
	log := a.logger
	return service.NewCoordinator(service.Dependencies{
		Store:        rt.store,
		Hasher:       password.NewDigestHasher(0),
		TOTP:         totp.NewValidator(a.cfg.Login.TOTPWindow),
		Secrets:      rt.secrets,
		Selector:     a.selector(),
		Directory:    directory.NewVerifier(directory.NewLDAPDialer(a.cfg.Directory.BindTimeoutDuration(), a.cfg.Directory.UseTLS), rt.secrets, log, rt.metrics),
		Synchronizer: directory.NewGroupSynchronizer(log, rt.metrics),
		Replay:       service.NewReplayGuard(hash.NewTokenHasher()),
		Lockout:      service.NewLockoutPolicy(log),
		RateLimiter:  rt.limiter,
		Audit:        audit.NewFireAndForget(rt.sink, "audit", auditTimeout, log, rt.metrics),
		Metrics:      rt.metrics,
		Logger:       log,
	}, service.OptionsFromConfig(a.cfg.Login))
}
