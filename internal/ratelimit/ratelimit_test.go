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

package ratelimit

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates the burst shape: exactly `attempts` requests
// pass before the bucket empties.
// Scope: Unit Test
// Test Case ID: RL-01
func TestUnkeyed_BurstThenReject(t *testing.T) {
	rl := NewUnkeyed(Bucket{Attempts: 5, Window: 15 * time.Minute})

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(), "attempt %d within burst", i)
	}
	assert.False(t, rl.Allow(), "sixth attempt exceeds burst")
	assert.Equal(t, 180, rl.RetryAfter())
}

// TestPurpose: Validates per-address isolation: exhausting one
// caller's bucket leaves other callers unaffected.
// Scope: Unit Test
// Test Case ID: RL-02
func TestByRemoteAddr_Isolation(t *testing.T) {
	rl := NewByRemoteAddr(Bucket{Attempts: 3, Window: time.Hour})

	reqA := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	reqA.RemoteAddr = "10.0.0.1:50000"
	reqB := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
	reqB.RemoteAddr = "10.0.0.2:50000"

	for i := 0; i < 3; i++ {
		assert.True(t, rl.AllowRequest(reqA))
	}
	assert.False(t, rl.AllowRequest(reqA))
	assert.True(t, rl.AllowRequest(reqB), "second caller has its own bucket")
}

// TestPurpose: Validates caller address extraction order: first
// X-Forwarded-For entry wins, then RemoteAddr host; an unknown
// address passes the request through.
// Scope: Unit Test
// Test Case ID: RL-03
func TestClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	assert.Equal(t, "10.0.0.9", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(req))

	unknown := httptest.NewRequest("GET", "/", nil)
	unknown.RemoteAddr = ""
	rl := NewByRemoteAddr(Bucket{Attempts: 1, Window: time.Hour})
	assert.True(t, rl.AllowRequest(unknown))
	assert.True(t, rl.AllowRequest(unknown), "unknown address never consumes a bucket")
}

// TestPurpose: Validates per-client quotas: limit 0 is unlimited,
// quotas are independent per client, and a changed quota takes
// effect on next use.
// Scope: Unit Test
// Test Case ID: RL-04
func TestByClientID(t *testing.T) {
	rl := NewByClientID()

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("svc-free", 0), "limit 0 means unlimited")
	}

	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow("svc-a", 2))
	}
	assert.False(t, rl.Allow("svc-a", 2))
	assert.True(t, rl.Allow("svc-b", 2), "clients have independent buckets")

	// Quota raise rebuilds the bucket
	assert.True(t, rl.Allow("svc-a", 10))
	assert.Equal(t, 30, rl.RetryAfter(2))
}
