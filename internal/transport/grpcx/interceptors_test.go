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
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/authz"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/store/memory"
)

func unaryInfo(method string) *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: method}
}

// TestPurpose: Validates request-id stamping: a caller-supplied id is
// honored and a missing one is minted.
// Scope: Unit Test
// Test Case ID: RPC-01
func TestUnaryRequestID(t *testing.T) {
	interceptor := UnaryRequestID()

	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(requestIDKey, "req-abc"))
	var seen string
	_, err := interceptor(ctx, nil, unaryInfo("/tf.v1.Tenants/Get"), func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "req-abc", seen)

	_, err = interceptor(context.Background(), nil, unaryInfo("/tf.v1.Tenants/Get"), func(ctx context.Context, req any) (any, error) {
		seen = RequestIDFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, seen)
}

// TestPurpose: Validates tagged errors map to their gRPC codes at the
// boundary while existing statuses pass through unchanged.
// Scope: Unit Test
// Test Case ID: RPC-02
func TestUnaryErrorMap(t *testing.T) {
	interceptor := UnaryErrorMap()

	_, err := interceptor(context.Background(), nil, unaryInfo("/tf.v1.Roles/Get"), func(ctx context.Context, req any) (any, error) {
		return nil, apperr.E(apperr.NotFound, "role not found")
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.NotFound, st.Code())
	assert.Equal(t, "role not found", st.Message())

	original := status.Error(codes.AlreadyExists, "duplicate")
	_, err = interceptor(context.Background(), nil, unaryInfo("/tf.v1.Roles/Create"), func(ctx context.Context, req any) (any, error) {
		return nil, original
	})
	assert.Equal(t, original, err)

	_, err = interceptor(context.Background(), nil, unaryInfo("/tf.v1.Roles/Get"), func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
}

// TestPurpose: Validates a handler panic surfaces as an Internal
// status instead of crashing the server.
// Scope: Unit Test
// Test Case ID: RPC-03
func TestUnaryRecovery(t *testing.T) {
	interceptor := UnaryRecovery()

	_, err := interceptor(context.Background(), nil, unaryInfo("/tf.v1.Tenants/Get"), func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Equal(t, "internal error", st.Message())
}

// TestPurpose: Validates identity resolution from RPC metadata on the
// trusted edge, and pass-through for credential-less calls.
// Scope: Unit Test
// Security: Trusted-edge identity propagation
// Test Case ID: RPC-04
func TestUnaryIdentity_TrustedEdge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	engine := authz.New(memory.NewWithClock(clock), nil, cache.NewMemoryWithClock(clock), true, clock)
	interceptor := UnaryIdentity(engine)

	ctx := metadata.NewIncomingContext(context.Background(),
		metadata.Pairs(authz.HeaderUserID, "user-1", authz.HeaderTenantID, "tenant-1"))
	var subject *authz.Subject
	_, err := interceptor(ctx, nil, unaryInfo("/tf.v1.Tenants/Get"), func(ctx context.Context, req any) (any, error) {
		subject = SubjectFromContext(ctx)
		return nil, nil
	})
	require.NoError(t, err)
	require.NotNil(t, subject)
	assert.Equal(t, "user-1", subject.UserID)
	assert.Equal(t, "tenant-1", subject.TenantID)
	assert.True(t, subject.Trusted)

	// Health checks never resolve identity.
	_, err = interceptor(ctx, nil, unaryInfo("/grpc.health.v1.Health/Check"), func(ctx context.Context, req any) (any, error) {
		assert.Nil(t, SubjectFromContext(ctx))
		return nil, nil
	})
	require.NoError(t, err)
}

// TestPurpose: Validates untrusted mode passes credential-less calls
// through without a subject.
// Scope: Unit Test
// Test Case ID: RPC-05
func TestUnaryIdentity_NoCredentials(t *testing.T) {
	clock := clockwork.NewFakeClock()
	engine := authz.New(memory.NewWithClock(clock), nil, cache.NewMemoryWithClock(clock), false, clock)
	interceptor := UnaryIdentity(engine)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.MD{})
	_, err := interceptor(ctx, nil, unaryInfo("/tf.v1.Tenants/Get"), func(ctx context.Context, req any) (any, error) {
		assert.Nil(t, SubjectFromContext(ctx))
		return nil, nil
	})
	require.NoError(t, err)
}

// TestPurpose: Validates the metadata carrier returns the first value
// case-insensitively and "" when absent.
// Scope: Unit Test
// Test Case ID: RPC-06
func TestCarrier(t *testing.T) {
	md := metadata.Pairs("Authorization", "Bearer tok")
	carrier := Carrier(md)
	assert.Equal(t, "Bearer tok", carrier.Get("Authorization"))
	assert.Equal(t, "Bearer tok", carrier.Get("authorization"))
	assert.Equal(t, "", carrier.Get("x-missing"))
}
