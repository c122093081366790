package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"SiteAuthPlatform/pkg/health"
	"SiteAuthPlatform/pkg/logger"
	"SiteAuthPlatform/pkg/metrics"
)

const (
	healthSyncInterval = 10 * time.Second
	shutdownTimeout    = 30 * time.Second
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить служебный сервер (health, ready, metrics, gRPC health)",
		Long: `Подключается к PostgreSQL, Redis и RabbitMQ, применяет схему базы данных
и публикует состояние зависимостей по HTTP и через gRPC health.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.handleError(cmd, a.serve(cmd.Context()))
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log := a.logger

	shutdownTracing := metrics.InitializeOpenTelemetry(serviceName, serviceVersion)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("Failed to shutdown tracing", logger.Error(err))
		}
	}()

	m := metrics.NewMetrics(serviceName)
	rt, err := a.openRuntime(ctx, m)
	if err != nil {
		return err
	}
	defer rt.Close()

	grpcHealth := grpchealth.NewServer()
	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, grpcHealth)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", health.Handler(rt.health))
	mux.HandleFunc("/ready", health.ReadyHandler(rt.health))
	mux.HandleFunc("/live", health.LiveHandler())
	mux.Handle("/metrics", m.GetHandler())

	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler:           m.Middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", a.cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to listen grpc port %d: %w", a.cfg.GRPC.Port, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("HTTP server started", logger.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()
	go func() {
		log.Info("gRPC server started", logger.Int("port", a.cfg.GRPC.Port))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server failed: %w", err)
		}
	}()

	syncCtx, stopSync := context.WithCancel(ctx)
	defer stopSync()
	go a.syncHealth(syncCtx, rt.health, grpcHealth)

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down server...")
	case serveErr = <-errCh:
		log.Error("Server failed, shutting down", logger.Error(serveErr))
	}

	grpcHealth.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shutdown HTTP server", logger.Error(err))
	}
	grpcServer.GracefulStop()

	log.Info("Server stopped gracefully")
	return serveErr
}

// syncHealth периодически переносит состояние зависимостей в gRPC health
func (a *app) syncHealth(ctx context.Context, checker health.HealthChecker, server *grpchealth.Server) {
	ticker := time.NewTicker(healthSyncInterval)
	defer ticker.Stop()

	for {
		status := health.SyncGRPC(ctx, checker, server, serviceName)
		if !status.Healthy() {
			a.logger.Warn("Dependencies unhealthy", logger.Any("services", status.Services))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
