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

// Package http is the REST surface of the identity plane. Routing,
// middleware ordering and the request/response shapes live here;
// semantics live in the service packages.
package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/authz"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/identity"
	"github.com/trustfabric/trustfabric/internal/observability/metrics"
	"github.com/trustfabric/trustfabric/internal/ratelimit"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/svcaccount"
	"github.com/trustfabric/trustfabric/internal/tenant"
	"github.com/trustfabric/trustfabric/internal/token"
)

// Config holds the transport-level switches.
type Config struct {
	AllowedOrigins    []string
	RequireSignatures bool
	AdminAPIKey       string
	RequestTimeout    time.Duration
}

// RateLimits holds the per-endpoint anonymous buckets.
type RateLimits struct {
	Login    *ratelimit.ByRemoteAddr
	Register *ratelimit.ByRemoteAddr
	OTP      *ratelimit.ByRemoteAddr
}

// NewRateLimits builds the limiter set from quota shapes.
func NewRateLimits(login, register, otp ratelimit.Bucket) *RateLimits {
	return &RateLimits{
		Login:    ratelimit.NewByRemoteAddr(login),
		Register: ratelimit.NewByRemoteAddr(register),
		OTP:      ratelimit.NewByRemoteAddr(otp),
	}
}

// Handler holds HTTP handlers and dependencies
type Handler struct {
	identity *identity.Service
	tenants  *tenant.Service
	services *svcaccount.Service
	engine   *authz.Engine
	tokens   *token.Service
	store    store.Store
	cache    cache.Store
	metrics  *metrics.Metrics
	audit    audit.Logger
	clock    clockwork.Clock
	cfg      Config
	limits   *RateLimits
	// appTokens throttles app-token issuance per service key.
	appTokens *ratelimit.ByClientID
}

// NewHandler creates a new HTTP handler
func NewHandler(
	identityService *identity.Service,
	tenantService *tenant.Service,
	serviceAccounts *svcaccount.Service,
	engine *authz.Engine,
	tokens *token.Service,
	st store.Store,
	cacheStore cache.Store,
	m *metrics.Metrics,
	auditLogger audit.Logger,
	clock clockwork.Clock,
	cfg Config,
	limits *RateLimits,
) *Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	return &Handler{
		identity:  identityService,
		tenants:   tenantService,
		services:  serviceAccounts,
		engine:    engine,
		tokens:    tokens,
		store:     st,
		cache:     cacheStore,
		metrics:   m,
		audit:     auditLogger,
		clock:     clock,
		cfg:       cfg,
		limits:    limits,
		appTokens: ratelimit.NewByClientID(),
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(MetricsMiddleware(h.metrics))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.cfg.RequestTimeout))
	r.Use(CORSMiddleware(h.cfg.AllowedOrigins))
	r.Use(h.SignatureMiddleware)

	// Operational endpoints
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.Ready)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	r.Get("/.well-known/jwks.json", h.JWKS)

	r.Route("/api/v1", func(r chi.Router) {
		// Authentication
		r.Route("/auth", func(r chi.Router) {
			r.With(h.limitByAddr("register", h.limits.Register)).Post("/register", h.Register)
			r.With(h.limitByAddr("login", h.limits.Login)).Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/introspect", h.Introspect)
			r.With(h.requireAuth).Post("/logout", h.Logout)

			r.With(h.limitByAddr("otp", h.limits.OTP)).Post("/otp/send", h.SendOTP)
			r.With(h.limitByAddr("otp", h.limits.OTP)).Post("/otp/verify", h.VerifyOTP)

			r.Get("/oauth/google", h.GoogleStart)
			r.Get("/oauth/google/callback", h.GoogleCallback)
		})

		// First-boot seeding, admin-key gated
		r.With(h.requireAdminKey).Post("/bootstrap", h.Bootstrap)

		// Self-service
		r.Route("/me", func(r chi.Router) {
			r.Use(h.requireAuth)
			r.Get("/", h.Me)
			r.Put("/", h.UpdateProfile)
			r.Post("/password", h.ChangePassword)
			r.Get("/permissions", h.MyPermissions)
		})

		// Tenant lifecycle
		r.Route("/tenants", func(r chi.Router) {
			r.With(h.requireCapability(authz.CapTenantCreate)).Post("/", h.CreateTenant)
			r.With(h.requireCapability(authz.CapTenantRead)).Get("/{tenantID}", h.GetTenant)
			r.With(h.requireCapability(authz.CapTenantUpdate)).Put("/{tenantID}/state", h.SetTenantState)
		})

		// Org forest
		r.Route("/org/nodes", func(r chi.Router) {
			r.With(h.requireCapability(authz.CapOrgNodeCreate)).Post("/", h.CreateOrgNode)
			r.With(h.requireCapability(authz.CapOrgNodeRead)).Get("/", h.ListOrgNodes)
			r.With(h.requireCapability(authz.CapOrgNodeRead)).Get("/{nodeID}/descendants", h.OrgNodeDescendants)
			r.With(h.requireCapability(authz.CapOrgNodeUpdate)).Put("/{nodeID}/deactivate", h.DeactivateOrgNode)
		})

		// Roles and capabilities
		r.Route("/roles", func(r chi.Router) {
			r.With(h.requireCapability(authz.CapRoleCreate)).Post("/", h.CreateRole)
			r.With(h.requireCapability(authz.CapRoleRead)).Get("/", h.ListRoles)
			r.With(h.requireCapability(authz.CapCapabilityRead)).Get("/{roleID}/capabilities", h.RoleCapabilities)
			r.With(h.requireCapability(authz.CapCapabilityAssign)).Post("/{roleID}/capabilities", h.AssignCapability)
			r.With(h.requireCapability(authz.CapCapabilityUnassign)).Delete("/{roleID}/capabilities/{capID}", h.UnassignCapability)
		})
		r.With(h.requireCapability(authz.CapCapabilityRead)).Get("/capabilities", h.ListCapabilities)

		// Assignments
		r.Route("/assignments", func(r chi.Router) {
			r.With(h.requireCapability(authz.CapAssignmentCreate)).Post("/", h.CreateAssignment)
			r.With(h.requireCapability(authz.CapAssignmentRead)).Get("/", h.ListAssignments)
			r.With(h.requireCapability(authz.CapAssignmentEnd)).Put("/{assignmentID}/end", h.EndAssignment)
		})

		// Visibility grants
		r.Route("/visibility", func(r chi.Router) {
			r.With(h.requireCapability(authz.CapVisibilityCreate)).Post("/", h.GrantVisibility)
			r.With(h.requireCapability(authz.CapVisibilityRead)).Get("/", h.ListVisibility)
			r.With(h.requireCapability(authz.CapVisibilityRevoke)).Put("/{grantID}/revoke", h.RevokeVisibility)
		})

		// Service accounts, admin-key gated
		r.Route("/services", func(r chi.Router) {
			r.Post("/token", h.ServiceToken)

			r.Group(func(r chi.Router) {
				r.Use(h.requireAdminKey)
				r.Post("/", h.CreateService)
				r.Post("/{serviceID}/rotate", h.RotateService)
				r.Post("/{serviceID}/revoke", h.RevokeService)
				r.Post("/{serviceID}/permissions", h.GrantServicePermission)
				r.Get("/{serviceID}/permissions", h.ListServicePermissions)
			})
		})
	})

	return r
}

// HealthCheck reports liveness only; it never touches dependencies.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "trustfabric",
	})
}

// Ready reports readiness: the store and cache must both answer.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.store.HealthCheck(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": "store"})
		return
	}
	if err := h.cache.Health(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "reason": "cache"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// JWKS publishes the verification key set.
func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.tokens.PublicKeySet())
}
