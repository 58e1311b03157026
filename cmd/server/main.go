package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"ai-doll-conversation-service/internal/app"
	"ai-doll-conversation-service/internal/config"
	"ai-doll-conversation-service/internal/observability"
)

const (
	healthService   = "ai.doll.ConversationService"
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(context.Background()); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup always executes.
func run(ctx context.Context) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return goerr.Wrap(err, "failed to build application")
	}
	defer application.Shutdown()

	// Metrics and probes come up first so readiness can report NOT_READY.
	obs := observability.NewServer(cfg.Service.MetricsAddr, application.Ready)
	obs.Start()
	stopObs := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Observability shutdown did not complete")
		}
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor(application.Metrics)),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(application.Metrics)),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.Service.GRPCPort)
	if err != nil {
		stopObs()
		return goerr.Wrap(err, "failed to listen for gRPC", goerr.V("port", cfg.Service.GRPCPort))
	}

	if err := application.Start(ctx); err != nil {
		lis.Close()
		stopObs()
		return goerr.Wrap(err, "failed to start application")
	}
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           application.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.GRPCPort).Msg("gRPC health server started")
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Doll conversation API started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down servers")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP shutdown did not complete")
		}
		stopObs()
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}
