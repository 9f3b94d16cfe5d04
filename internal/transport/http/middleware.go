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
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/observability/logger"
	"github.com/trustfabric/trustfabric/internal/observability/metrics"
	"github.com/trustfabric/trustfabric/internal/ratelimit"
)

// LoggingMiddleware logs HTTP requests
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			slog.InfoContext(r.Context(), "http_request_start",
				logger.RequestID(middleware.GetReqID(r.Context())),
				logger.Method(r.Method),
				logger.Path(r.URL.Path),
				logger.RemoteAddr(r.RemoteAddr),
			)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				slog.InfoContext(r.Context(), "http_request_end",
					logger.RequestID(middleware.GetReqID(r.Context())),
					logger.Method(r.Method),
					logger.Path(r.URL.Path),
					logger.RemoteAddr(r.RemoteAddr),
					logger.UserAgent(r.UserAgent()),
					logger.StatusCode(ww.Status()),
					logger.Duration(time.Since(start).Milliseconds()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// MetricsMiddleware records the request counter, latency histogram
// and in-flight gauge. The route label is the chi pattern, not the
// raw path, to keep cardinality bounded.
func MetricsMiddleware(m *metrics.Metrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPInflightAdd(1)
			defer m.HTTPInflightAdd(-1)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			m.ObserveHTTPRequest(r.Method, route, ww.Status(), time.Since(start))
		})
	}
}

// CORSMiddleware answers preflight and tags responses for the
// configured origins. An empty allowlist disables CORS entirely.
func CORSMiddleware(allowedOrigins []string) func(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" && (allowed[origin] || allowed["*"]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Client-ID, X-Timestamp, X-Nonce, X-Signature")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireAuth authenticates the caller (bearer token, or trusted-edge
// metadata when the trust switch is on) and plants the subject in the
// request context.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.engine.TrustInternal() {
			subject, err := h.engine.Authenticate(ctx, r.Header)
			if err != nil {
				respondError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withSubject(ctx, subject)))
			return
		}

		subject, claims, err := h.engine.AuthenticateBearer(ctx, r.Header.Get("Authorization"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		ctx = withSubject(ctx, subject)
		ctx = withClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireCapability authenticates and enforces one capability key on
// every request in the group.
func (h *Handler) requireCapability(capKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, err := h.engine.RequireCapability(r.Context(), r.Header, capKey)
			if err != nil {
				if apperr.Is(err, apperr.PermissionDenied) {
					h.metrics.CapabilityCheck("denied")
				}
				respondError(w, r, err)
				return
			}
			h.metrics.CapabilityCheck("allowed")
			next.ServeHTTP(w, r.WithContext(withSubject(r.Context(), subject)))
		})
	}
}

// AdminAPIKeyHeader carries the deployment admin key on gated
// endpoints.
const AdminAPIKeyHeader = "X-Admin-API-Key"

// requireAdminKey gates deployment-level endpoints behind the static
// admin API key. Comparison is constant-time; an unset key closes the
// endpoints entirely. A wrong key is a permission denial, not an
// authentication failure, and is recorded as a security event.
func (h *Handler) requireAdminKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AdminAPIKey == "" {
			respondError(w, r, apperr.E(apperr.PermissionDenied, "admin API is disabled"))
			return
		}
		presented := r.Header.Get(AdminAPIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(presented), []byte(h.cfg.AdminAPIKey)) != 1 {
			h.audit.LogSecurity(r.Context(), audit.SecurityEvent{
				Type:     audit.SecBadAdminKey,
				Severity: "high",
				IP:       ratelimit.ClientIP(r),
				Path:     r.URL.Path,
				Method:   r.Method,
				Details:  "admin endpoint called with an invalid admin key",
			})
			respondError(w, r, apperr.E(apperr.PermissionDenied, "invalid admin key"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitByAddr applies a per-address bucket to anonymous endpoints.
func (h *Handler) limitByAddr(name string, rl *ratelimit.ByRemoteAddr) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.AllowRequest(r) {
				h.metrics.RateLimitRejected(name)
				respondError(w, r, apperr.RateLimited(rl.RetryAfter()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
