// Copyright 2026 The TrustFabric Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package grpcx

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jonboulle/clockwork"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/authz"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/observability/logger"
	"github.com/trustfabric/trustfabric/internal/observability/metrics"
)

// internalService reports whether the method belongs to gRPC's own
// health or reflection services, which never carry caller identity.
func internalService(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.") ||
		strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

// UnaryRequestID stamps every RPC with a request id, honoring one
// supplied by the caller, and echoes it in the response headers.
func UnaryRequestID() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := ""
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			requestID = Carrier(md).Get(requestIDKey)
		}
		if requestID == "" {
			requestID = id.NewUUIDv7()
		}
		ctx = withRequestID(ctx, requestID)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDKey, requestID))
		return handler(ctx, req)
	}
}

// UnaryMetrics records RPC counts and latency by method and final
// status code, and logs one line per call.
func UnaryMetrics(m *metrics.Metrics, clock clockwork.Clock) grpc.UnaryServerInterceptor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := clock.Now()
		resp, err := handler(ctx, req)
		elapsed := clock.Since(start)

		code := status.Code(err)
		m.ObserveRPCRequest(info.FullMethod, code.String(), elapsed)

		if !internalService(info.FullMethod) {
			slog.InfoContext(ctx, "rpc completed",
				logger.RequestID(RequestIDFromContext(ctx)),
				logger.Operation(info.FullMethod),
				logger.String("code", code.String()),
				logger.Duration(elapsed.Milliseconds()),
			)
		}
		return resp, err
	}
}

// UnaryRecovery converts handler panics into Internal status errors
// so one bad request cannot take the listener down.
func UnaryRecovery() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.ErrorContext(ctx, "rpc panic recovered",
					logger.Operation(info.FullMethod),
					logger.String("panic", stringify(rec)),
				)
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// UnaryIdentity resolves the caller from RPC metadata and plants the
// subject in the context. RPCs without credentials pass through
// unauthenticated; presented credentials that fail to verify reject
// the call.
func UnaryIdentity(engine *authz.Engine) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if internalService(info.FullMethod) {
			return handler(ctx, req)
		}
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return handler(ctx, req)
		}
		carrier := Carrier(md)
		if carrier.Get("authorization") == "" && !engine.TrustInternal() {
			return handler(ctx, req)
		}
		subject, err := engine.Authenticate(ctx, carrier)
		if err != nil {
			return nil, apperr.ToGRPCStatus(err).Err()
		}
		return handler(withSubject(ctx, subject), req)
	}
}

// UnaryErrorMap translates tagged errors into gRPC statuses at the
// boundary. Errors that already are statuses pass unchanged.
func UnaryErrorMap() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return resp, apperr.ToGRPCStatus(err).Err()
	}
}

// UnaryClientRequestID propagates the request id onto outbound RPCs,
// minting one when the context carries none.
func UnaryClientRequestID() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		requestID := RequestIDFromContext(ctx)
		if requestID == "" {
			requestID = id.NewUUIDv7()
		}
		ctx = metadata.AppendToOutgoingContext(ctx, requestIDKey, requestID)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "non-string panic value"
}
