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

package http

import (
	"context"

	"github.com/trustfabric/trustfabric/internal/authz"
	"github.com/trustfabric/trustfabric/internal/token"
)

type contextKey string

const (
	subjectKey contextKey = "subject"
	claimsKey  contextKey = "claims"
	serviceKey contextKey = "service_key"
)

// GetSubject retrieves the authenticated subject from context.
func GetSubject(ctx context.Context) *authz.Subject {
	if val, ok := ctx.Value(subjectKey).(*authz.Subject); ok {
		return val
	}
	return nil
}

// GetAccessClaims retrieves the validated access claims, when the
// request authenticated with a bearer token.
func GetAccessClaims(ctx context.Context) *token.AccessClaims {
	if val, ok := ctx.Value(claimsKey).(*token.AccessClaims); ok {
		return val
	}
	return nil
}

// GetServiceKey retrieves the signature-verified service key, when
// the request carried a valid signature.
func GetServiceKey(ctx context.Context) string {
	if val, ok := ctx.Value(serviceKey).(string); ok {
		return val
	}
	return ""
}

func withSubject(ctx context.Context, s *authz.Subject) context.Context {
	return context.WithValue(ctx, subjectKey, s)
}

func withClaims(ctx context.Context, c *token.AccessClaims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

func withServiceKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, serviceKey, key)
}
