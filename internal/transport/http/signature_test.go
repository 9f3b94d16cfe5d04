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
	"encoding/json"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/crypto"
)

func signedHeaders(t *testing.T, secret, method, path string, ts int64, nonce string, body []byte) http.Header {
	t.Helper()
	return http.Header{
		headerClientID:  {"billing-api"},
		headerTimestamp: {strconv.FormatInt(ts, 10)},
		headerNonce:     {nonce},
		headerSignature: {crypto.SignRequest(secret, method, path, ts, nonce, body)},
	}
}

// TestPurpose: Validates HMAC signature verification: a correctly
// signed request passes, a tampered one is refused and audited.
// Scope: Integration Test
// Security: Service-to-service authenticity (HMAC-SHA256)
// Test Case ID: SIG-01
func TestSignature_VerifyAndReject(t *testing.T) {
	ts := newTestServer(t, Config{RequireSignatures: true})
	_, secret, err := ts.svc.Create(context.Background(), "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)

	body, _ := json.Marshal(IntrospectRequest{Token: "whatever"})
	now := ts.clock.Now().Unix()

	headers := signedHeaders(t, secret, http.MethodPost, "/api/v1/auth/introspect", now, "nonce-1", body)
	rec := ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Wrong secret: refused and a security event lands.
	headers = signedHeaders(t, "wrong-secret", http.MethodPost, "/api/v1/auth/introspect", now, "nonce-2", body)
	rec = ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	events := ts.store.SecurityEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, audit.SecBadSignature, events[len(events)-1].EventType)
}

// TestPurpose: Validates nonce replay is refused even with a valid
// signature, and that a failed attempt still burns its nonce.
// Scope: Integration Test
// Security: Replay protection
// Test Case ID: SIG-02
func TestSignature_Replay(t *testing.T) {
	ts := newTestServer(t, Config{RequireSignatures: true})
	_, secret, err := ts.svc.Create(context.Background(), "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)

	body, _ := json.Marshal(IntrospectRequest{Token: "whatever"})
	now := ts.clock.Now().Unix()
	headers := signedHeaders(t, secret, http.MethodPost, "/api/v1/auth/introspect", now, "nonce-replay", body)

	rec := ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	require.Equal(t, http.StatusOK, rec.Code)

	// Same nonce again: refused as replay.
	rec = ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "nonce already used")

	events := ts.store.SecurityEvents()
	assert.Equal(t, audit.SecReplayDetected, events[len(events)-1].EventType)

	// A bad signature burns its nonce: the retry with a correct
	// signature on the same nonce is treated as replay.
	headers = signedHeaders(t, "wrong-secret", http.MethodPost, "/api/v1/auth/introspect", now, "nonce-burned", body)
	_ = ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	headers = signedHeaders(t, secret, http.MethodPost, "/api/v1/auth/introspect", now, "nonce-burned", body)
	rec = ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestPurpose: Validates timestamp skew limits and the optional
// signature mode.
// Scope: Integration Test
// Test Case ID: SIG-03
func TestSignature_SkewAndOptionalMode(t *testing.T) {
	ts := newTestServer(t, Config{RequireSignatures: true})
	_, secret, err := ts.svc.Create(context.Background(), "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)

	body, _ := json.Marshal(IntrospectRequest{Token: "x"})
	stale := ts.clock.Now().Add(-2 * time.Minute).Unix()
	headers := signedHeaders(t, secret, http.MethodPost, "/api/v1/auth/introspect", stale, "nonce-stale", body)
	rec := ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unsigned request in required mode: refused.
	rec = ts.do(t, http.MethodPost, "/api/v1/auth/introspect", IntrospectRequest{Token: "x"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "signature required")

	// Exempt paths pass unsigned even in required mode.
	rec = ts.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Optional mode: unsigned passes, a presented signature is still
	// verified.
	opt := newTestServer(t, Config{RequireSignatures: false})
	rec = opt.do(t, http.MethodPost, "/api/v1/auth/introspect", IntrospectRequest{Token: "x"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	badHeaders := signedHeaders(t, "wrong", http.MethodPost, "/api/v1/auth/introspect", opt.clock.Now().Unix(), "n1", body)
	rec = opt.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, badHeaders)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// TestPurpose: Validates a disabled service's signatures stop
// verifying.
// Scope: Integration Test
// Test Case ID: SIG-04
func TestSignature_DisabledService(t *testing.T) {
	ts := newTestServer(t, Config{RequireSignatures: true})
	account, secret, err := ts.svc.Create(context.Background(), "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)
	require.NoError(t, ts.svc.Disable(context.Background(), "admin", account.ID))

	body, _ := json.Marshal(IntrospectRequest{Token: "x"})
	headers := signedHeaders(t, secret, http.MethodPost, "/api/v1/auth/introspect", ts.clock.Now().Unix(), "nonce-d", body)
	rec := ts.doRaw(t, http.MethodPost, "/api/v1/auth/introspect", body, headers)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
