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

package s2s

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/crypto"
)

// TestPurpose: Validates outbound requests carry a verifiable HMAC
// signature over method, path, timestamp, nonce and body.
// Scope: Integration Test
// Security: Service-to-service request signing
// Test Case ID: S2S-01
func TestClient_SignsRequests(t *testing.T) {
	const secret = "shared-secret"
	clock := clockwork.NewFakeClockAt(time.Unix(1_700_000_000, 0))

	var verified bool
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts, err := strconv.ParseInt(r.Header.Get(headerTimestamp), 10, 64)
		require.NoError(t, err)
		gotBody, _ = io.ReadAll(r.Body)
		verified = crypto.VerifyRequest(secret,
			r.Method, r.URL.Path, ts,
			r.Header.Get(headerNonce), gotBody,
			r.Header.Get(headerSignature),
		)
		assert.Equal(t, "billing-api", r.Header.Get(headerClientID))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := New("billing-api", secret, WithClock(clock))

	resp, err := client.PostJSON(context.Background(), srv.URL+"/api/v1/auth/introspect", map[string]string{"token": "x"})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, verified)
	assert.JSONEq(t, `{"token":"x"}`, string(gotBody))

	// Body-less GET signs over the empty body hash.
	resp, err = client.Get(context.Background(), srv.URL+"/api/v1/capabilities")
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, verified)
	assert.Empty(t, gotBody)
}

// TestPurpose: Validates every request carries a fresh nonce so the
// receiver's replay guard never trips on legitimate traffic.
// Scope: Integration Test
// Security: Replay protection
// Test Case ID: S2S-02
func TestClient_FreshNoncePerRequest(t *testing.T) {
	seen := make(map[string]bool)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		nonce := r.Header.Get(headerNonce)
		assert.NotEmpty(t, nonce)
		assert.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}))
	defer srv.Close()

	client := New("billing-api", "secret")
	for range 5 {
		resp, err := client.Get(context.Background(), srv.URL+"/health")
		require.NoError(t, err)
		resp.Body.Close()
	}
	assert.Len(t, seen, 5)
}

// TestPurpose: Validates a tampered secret produces signatures the
// receiver rejects.
// Scope: Integration Test
// Test Case ID: S2S-03
func TestClient_WrongSecretFailsVerification(t *testing.T) {
	var verified bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts, _ := strconv.ParseInt(r.Header.Get(headerTimestamp), 10, 64)
		body, _ := io.ReadAll(r.Body)
		verified = crypto.VerifyRequest("expected-secret",
			r.Method, r.URL.Path, ts,
			r.Header.Get(headerNonce), body,
			r.Header.Get(headerSignature),
		)
	}))
	defer srv.Close()

	client := New("billing-api", "some-other-secret")
	resp, err := client.Get(context.Background(), srv.URL+"/api/v1/capabilities")
	require.NoError(t, err)
	resp.Body.Close()
	assert.False(t, verified)
}
