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

// Package ratelimit provides the three limiter shapes the service
// uses: a single shared bucket, a per-remote-address bucket for
// anonymous endpoints, and a per-client bucket for app tokens. All
// three are leaky buckets on golang.org/x/time/rate with
// burst = attempts and refill rate = attempts/window.
package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Bucket describes a quota of Attempts per Window.
type Bucket struct {
	Attempts int
	Window   time.Duration
}

func (b Bucket) limit() rate.Limit {
	if b.Attempts <= 0 || b.Window <= 0 {
		return rate.Inf
	}
	return rate.Limit(float64(b.Attempts) / b.Window.Seconds())
}

// RetryAfterSeconds is the hint returned with a rejection: the time
// for one token to refill, rounded up.
func (b Bucket) RetryAfterSeconds() int {
	if b.Attempts <= 0 || b.Window <= 0 {
		return 0
	}
	per := b.Window / time.Duration(b.Attempts)
	secs := int(per / time.Second)
	if per%time.Second != 0 {
		secs++
	}
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Unkeyed is a single shared bucket.
type Unkeyed struct {
	bucket  Bucket
	limiter *rate.Limiter
}

// NewUnkeyed creates a shared limiter for the bucket.
func NewUnkeyed(b Bucket) *Unkeyed {
	return &Unkeyed{
		bucket:  b,
		limiter: rate.NewLimiter(b.limit(), b.Attempts),
	}
}

// Allow consumes one token if available.
func (u *Unkeyed) Allow() bool {
	return u.limiter.Allow()
}

// RetryAfter returns the rejection hint in seconds.
func (u *Unkeyed) RetryAfter() int {
	return u.bucket.RetryAfterSeconds()
}

// ByRemoteAddr keys a bucket per caller address. Used on anonymous
// endpoints (login, register, OTP send).
type ByRemoteAddr struct {
	bucket          Bucket
	mu              sync.Mutex
	addrs           map[string]*rate.Limiter
	cleanupInterval time.Duration
}

// NewByRemoteAddr creates a per-address limiter for the bucket.
func NewByRemoteAddr(b Bucket) *ByRemoteAddr {
	rl := &ByRemoteAddr{
		bucket:          b,
		addrs:           make(map[string]*rate.Limiter),
		cleanupInterval: 10 * time.Minute,
	}
	go rl.cleanup()
	return rl
}

// AllowRequest consumes one token from the caller's bucket. When the
// caller address cannot be determined the request passes with a
// warning rather than sharing one bucket across all callers.
func (rl *ByRemoteAddr) AllowRequest(r *http.Request) bool {
	addr := ClientIP(r)
	if addr == "" {
		slog.WarnContext(r.Context(), "rate limiter could not determine caller address",
			slog.String("path", r.URL.Path))
		return true
	}
	return rl.allow(addr)
}

// RetryAfter returns the rejection hint in seconds.
func (rl *ByRemoteAddr) RetryAfter() int {
	return rl.bucket.RetryAfterSeconds()
}

func (rl *ByRemoteAddr) allow(addr string) bool {
	rl.mu.Lock()
	limiter, ok := rl.addrs[addr]
	if !ok {
		limiter = rate.NewLimiter(rl.bucket.limit(), rl.bucket.Attempts)
		rl.addrs[addr] = limiter
	}
	rl.mu.Unlock()
	return limiter.Allow()
}

// cleanup resets the map every interval to free memory from drive-by
// addresses. Active callers get a fresh bucket on next request.
func (rl *ByRemoteAddr) cleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	for range ticker.C {
		rl.mu.Lock()
		rl.addrs = make(map[string]*rate.Limiter)
		rl.mu.Unlock()
	}
}

// ClientIP extracts the caller address: first entry of
// X-Forwarded-For when present, else the host part of RemoteAddr.
// Returns "" when neither is usable.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if r.RemoteAddr == "" {
		return ""
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type clientEntry struct {
	limiter     *rate.Limiter
	limitPerMin int
}

// ByClientID keys a per-minute bucket per authenticated service
// client. The quota travels in the app token; limit 0 means
// unlimited. Limiters are created lazily and rebuilt when a client's
// quota changes.
type ByClientID struct {
	mu      sync.Mutex
	clients map[string]*clientEntry
}

// NewByClientID creates an empty per-client limiter set.
func NewByClientID() *ByClientID {
	return &ByClientID{clients: make(map[string]*clientEntry)}
}

// Allow consumes one token from the client's bucket.
func (rl *ByClientID) Allow(clientID string, limitPerMin int) bool {
	if limitPerMin <= 0 {
		return true
	}

	rl.mu.Lock()
	entry, ok := rl.clients[clientID]
	if !ok || entry.limitPerMin != limitPerMin {
		b := Bucket{Attempts: limitPerMin, Window: time.Minute}
		entry = &clientEntry{
			limiter:     rate.NewLimiter(b.limit(), b.Attempts),
			limitPerMin: limitPerMin,
		}
		rl.clients[clientID] = entry
	}
	rl.mu.Unlock()

	return entry.limiter.Allow()
}

// RetryAfter returns the rejection hint for the client's quota.
func (rl *ByClientID) RetryAfter(limitPerMin int) int {
	return Bucket{Attempts: limitPerMin, Window: time.Minute}.RetryAfterSeconds()
}
