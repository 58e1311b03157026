package observability

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"ai-doll-conversation-service/internal/observability/metrics"
)

// Kinds of gRPC traffic. The server only carries orchestrator health checks and
// debugging reflection; anything else is unexpected.
const (
	KindHealth     = "health"
	KindReflection = "reflection"
	KindOther      = "other"
)

// MethodKind classifies a full gRPC method name.
func MethodKind(fullMethod string) string {
	service, _, _ := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	switch {
	case service == grpc_health_v1.Health_ServiceDesc.ServiceName:
		return KindHealth
	case strings.HasPrefix(service, "grpc.reflection."):
		return KindReflection
	default:
		return KindOther
	}
}

// methodName drops the package path, keeping Service/Method.
func methodName(fullMethod string) string {
	service, method, ok := strings.Cut(strings.TrimPrefix(fullMethod, "/"), "/")
	if !ok {
		return fullMethod
	}
	if i := strings.LastIndex(service, "."); i >= 0 {
		service = service[i+1:]
	}
	return service + "/" + method
}

// observe records one finished call. Health checks arrive every few seconds
// from the orchestrator, so they log at trace level.
func observe(m *metrics.Metrics, fullMethod string, err error, duration time.Duration, msg string) {
	kind := MethodKind(fullMethod)
	code := status.Code(err).String()
	m.RecordGRPCRequest(kind, methodName(fullMethod), code)

	level := zerolog.DebugLevel
	switch {
	case kind == KindHealth && err == nil:
		level = zerolog.TraceLevel
	case kind == KindOther:
		level = zerolog.WarnLevel
	}
	log.WithLevel(level).
		Str("kind", kind).
		Str("method", fullMethod).
		Str("code", code).
		Dur("duration", duration).
		Msg(msg)
}

// UnaryServerInterceptor returns a gRPC unary interceptor that records every
// call and the serving status each health check answers with.
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(m, info.FullMethod, err, time.Since(start), "gRPC unary call")

		if hc, ok := resp.(*grpc_health_v1.HealthCheckResponse); ok && err == nil {
			m.RecordHealthCheck(hc.GetStatus().String())
		}
		return resp, err
	}
}

// StreamServerInterceptor returns a gRPC stream interceptor. Health Watch and
// reflection streams pass through it.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(m, info.FullMethod, err, time.Since(start), "gRPC stream completed")
		return err
	}
}
