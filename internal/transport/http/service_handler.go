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
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/token"
)

// CreateServiceRequest registers a machine identity. A zero
// rate_limit_per_min leaves the service's app tokens unthrottled.
type CreateServiceRequest struct {
	Key             string  `json:"key"`
	Label           string  `json:"label"`
	TenantID        *string `json:"tenant_id"`
	RateLimitPerMin int     `json:"rate_limit_per_min"`
}

// CreateService registers a service account. The response is the only
// time the plaintext secret appears.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	svc, secret, err := h.services.Create(r.Context(), "admin-api", req.TenantID, req.Key, req.Label, req.RateLimitPerMin)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"service_id": svc.ID,
		"key":        svc.Key,
		"secret":     secret,
	})
}

// RotateService replaces the service secret; the previous one keeps
// verifying through the grace window.
func (h *Handler) RotateService(w http.ResponseWriter, r *http.Request) {
	secret, err := h.services.Rotate(r.Context(), "admin-api", chi.URLParam(r, "serviceID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

// RevokeService disables the service immediately.
func (h *Handler) RevokeService(w http.ResponseWriter, r *http.Request) {
	if err := h.services.Disable(r.Context(), "admin-api", chi.URLParam(r, "serviceID")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "service disabled"})
}

// GrantServicePermissionRequest grants a permission key.
type GrantServicePermissionRequest struct {
	Permission string `json:"permission"`
}

// GrantServicePermission adds a permission to the service.
func (h *Handler) GrantServicePermission(w http.ResponseWriter, r *http.Request) {
	var req GrantServicePermissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.services.GrantPermission(r.Context(), "admin-api", chi.URLParam(r, "serviceID"), req.Permission); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"permission": req.Permission})
}

// ListServicePermissions lists the service's permission keys.
func (h *Handler) ListServicePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.services.Permissions(r.Context(), chi.URLParam(r, "serviceID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

// ServiceTokenRequest authenticates a service for an app token.
type ServiceTokenRequest struct {
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// issuancePerMin bounds app-token minting per service key. Issued
// tokens live for an hour, so a well-behaved caller needs a tiny
// fraction of this.
const issuancePerMin = 30

// ServiceToken exchanges service credentials for an app token.
func (h *Handler) ServiceToken(w http.ResponseWriter, r *http.Request) {
	var req ServiceTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !h.appTokens.Allow(req.Key, issuancePerMin) {
		h.metrics.RateLimitRejected("service_token")
		respondError(w, r, apperr.RateLimited(h.appTokens.RetryAfter(issuancePerMin)))
		return
	}

	appToken, err := h.services.IssueAppToken(r.Context(), req.Key, req.Secret)
	if err != nil {
		h.metrics.AuthEvent("service_token", "failure")
		respondError(w, r, err)
		return
	}

	h.metrics.AuthEvent("service_token", "success")
	h.metrics.TokenIssued(token.TypeApp)
	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": appToken,
		"token_type":   "Bearer",
	})
}
