package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/civicpulse/receipts/internal/health"
)

const healthService = "civicpulse.receipts"

// healthServer exposes the standard gRPC health protocol for orchestrators
// that probe over gRPC. Serving status mirrors the periodic health report.
type healthServer struct {
	srv    *grpc.Server
	health *grpchealth.Server
	cancel context.CancelFunc
}

func startHealthServer(port int, checker *health.Checker, log *zap.Logger, errCh chan<- error) (*healthServer, error) {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("gRPC listen on :%d: %w", port, err)
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(log)))
	hs := grpchealth.NewServer()
	grpc_health_v1.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	ctx, cancel := context.WithCancel(context.Background())
	h := &healthServer{srv: srv, health: hs, cancel: cancel}
	h.sync(checker)
	go h.watch(ctx, checker, 15*time.Second)

	go func() {
		log.Info("receiptd gRPC health listening", zap.Int("port", port))
		if err := srv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC serve: %w", err)
		}
	}()
	return h, nil
}

func (h *healthServer) watch(ctx context.Context, checker *health.Checker, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.sync(checker)
		}
	}
}

func (h *healthServer) sync(checker *health.Checker) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !checker.Healthy() {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	h.health.SetServingStatus("", st)
	h.health.SetServingStatus(healthService, st)
}

// Stop marks the server as not serving and drains in-flight calls.
func (h *healthServer) Stop() {
	h.cancel()
	h.health.Shutdown()
	h.srv.GracefulStop()
}

// loggingInterceptor returns a gRPC unary server interceptor that logs each call.
func loggingInterceptor(log *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("grpc",
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("latency", time.Since(start)),
		)
		return resp, err
	}
}
