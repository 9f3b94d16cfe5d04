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

	"google.golang.org/grpc/metadata"

	"github.com/trustfabric/trustfabric/internal/authz"
)

const requestIDKey = "x-request-id"

// MD adapts gRPC metadata to the header-style carrier the authz
// engine reads. metadata.MD lowercases keys on both sides, so lookups
// stay case-insensitive like http.Header.
type MD struct {
	md metadata.MD
}

// Carrier wraps incoming metadata for the authz engine.
func Carrier(md metadata.MD) MD {
	return MD{md: md}
}

// Get returns the first value for the key, or "".
func (m MD) Get(key string) string {
	values := m.md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

var _ authz.Metadata = MD{}

type contextKey string

const (
	ctxRequestID contextKey = "grpc_request_id"
	ctxSubject   contextKey = "grpc_subject"
)

// RequestIDFromContext returns the request id stamped by the server
// interceptor, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// SubjectFromContext returns the authenticated caller, or nil when
// the RPC carried no credentials.
func SubjectFromContext(ctx context.Context) *authz.Subject {
	if v, ok := ctx.Value(ctxSubject).(*authz.Subject); ok {
		return v
	}
	return nil
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

func withSubject(ctx context.Context, subject *authz.Subject) context.Context {
	return context.WithValue(ctx, ctxSubject, subject)
}
