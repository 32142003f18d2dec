package rpcadapter

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/raftchat/raftchatd/pkg/log"
	"github.com/raftchat/raftchatd/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor stamps every unary call with a correlation id, logs its
// outcome, and records RPC metrics. Grounded on the teacher's
// pkg/api/interceptor.go shape, but for observability rather than
// read-only enforcement: spec.md has no read/write ACL of its own.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		correlationID := uuid.NewString()
		method := methodName(info.FullMethod)
		l := log.WithComponent("rpcadapter")
		timer := metrics.NewTimer()

		resp, err := handler(ctx, req)

		outcome := "ok"
		if err != nil {
			outcome = status.Code(err).String()
		}
		metrics.RPCRequestsTotal.WithLabelValues(method, outcome).Inc()
		timer.ObserveDurationVec(metrics.RPCRequestDuration, method)

		ev := l.Debug()
		if err != nil {
			ev = l.Warn().Err(err)
		}
		ev.Str("correlation_id", correlationID).
			Str("method", method).
			Str("outcome", outcome).
			Dur("elapsed", timer.Duration()).
			Msg("rpc handled")

		return resp, err
	}
}

func methodName(fullMethod string) string {
	parts := strings.Split(fullMethod, "/")
	if len(parts) == 0 {
		return fullMethod
	}
	return parts[len(parts)-1]
}
