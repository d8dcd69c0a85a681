package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/warrantyvault-ai/internal/app"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/common"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/donut"
	"github.com/joseph-ayodele/warrantyvault-ai/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log, os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build service", "error", err)
		os.Exit(1)
	}

	// Ping DB to ensure connectivity
	if err := a.Store.Ping(ctx, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	if cfg.Donut.Preload {
		logger.Info("preloading structured field model", "model", cfg.Donut.ModelID)
		a.Preload(context.WithoutCancel(ctx))
	}

	srv := server.New(server.Config{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		OCRLabel:       a.OCRLabel,
	}, a.Processor, a.Models, a.Store, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// gRPC health for orchestrators
	var grpcServer *grpc.Server
	var healthServer *health.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
			os.Exit(1)
		}
		grpcServer = grpc.NewServer()
		healthServer = health.NewServer()
		grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
		reflection.Register(grpcServer)
		healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		go syncModelHealth(ctx, healthServer, a.Models)

		logger.Info("grpc health listening", "addr", cfg.Server.GRPCAddr)
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC serve error", "error", err)
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("warrantyvault listening", "addr", cfg.Server.HTTPAddr, "ocr", a.OCRLabel, "model", cfg.Donut.ModelID)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	if healthServer != nil {
		healthServer.Shutdown()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
	defer cancel()
	httpServer.SetKeepAlivesEnabled(false)
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed, forcing close", "error", err)
		_ = httpServer.Close()
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	a.Close(shutdownCtx)
	logger.Info("warrantyvault stopped")
}

// modelHealthService is the gRPC health service name tracking the field model.
const modelHealthService = "warrantyvault.donut"

// syncModelHealth mirrors the field model state into the gRPC health server.
func syncModelHealth(ctx context.Context, hs *health.Server, models *donut.Service) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		st := grpc_health_v1.HealthCheckResponse_SERVING
		if models.State() == donut.StateFailedRetryable {
			st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(modelHealthService, st)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
