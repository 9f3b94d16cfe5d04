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

	"github.com/trustfabric/trustfabric/internal/store"
)

// CreateTenantRequest creates a tenant.
type CreateTenantRequest struct {
	Slug  string `json:"slug"`
	Label string `json:"label"`
}

// CreateTenant provisions a tenant.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	tenant, err := h.tenants.CreateTenant(r.Context(), subject.UserID, req.Slug, req.Label)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tenantView(tenant))
}

// GetTenant fetches one tenant by ID.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.GetTenant(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tenantView(tenant))
}

// SetTenantStateRequest switches a tenant between active and
// suspended.
type SetTenantStateRequest struct {
	State string `json:"state"`
}

// SetTenantState suspends or reactivates a tenant.
func (h *Handler) SetTenantState(w http.ResponseWriter, r *http.Request) {
	var req SetTenantStateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	if err := h.tenants.SetTenantState(r.Context(), subject.UserID, chi.URLParam(r, "tenantID"), req.State); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"state": req.State})
}

// CreateOrgNodeRequest adds a node to the caller tenant's forest.
type CreateOrgNodeRequest struct {
	ParentID *string `json:"parent_id"`
	TypeCode string  `json:"type_code"`
	Label    string  `json:"label"`
}

// CreateOrgNode adds an org node under the caller's tenant.
func (h *Handler) CreateOrgNode(w http.ResponseWriter, r *http.Request) {
	var req CreateOrgNodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	node, err := h.tenants.CreateOrgNode(r.Context(), subject.UserID, subject.TenantID, req.ParentID, req.TypeCode, req.Label)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, orgNodeView(node))
}

// ListOrgNodes lists the caller tenant's org nodes.
func (h *Handler) ListOrgNodes(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	nodes, err := h.tenants.ListOrgNodes(r.Context(), subject.TenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(nodes, orgNodeView))
}

// OrgNodeDescendants lists the strict descendants of a node.
func (h *Handler) OrgNodeDescendants(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	nodes, err := h.tenants.OrgNodeDescendants(r.Context(), subject.TenantID, chi.URLParam(r, "nodeID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(nodes, orgNodeView))
}

// DeactivateOrgNode marks a node inactive; extant assignments keep
// working, new ones are refused.
func (h *Handler) DeactivateOrgNode(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	if err := h.tenants.DeactivateOrgNode(r.Context(), subject.UserID, subject.TenantID, chi.URLParam(r, "nodeID")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "node deactivated"})
}

// CreateRoleRequest creates a role in the caller's tenant.
type CreateRoleRequest struct {
	Label string `json:"label"`
}

// CreateRole creates a role.
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	role, err := h.tenants.CreateRole(r.Context(), subject.UserID, subject.TenantID, req.Label)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"role_id":   role.ID,
		"tenant_id": role.TenantID,
		"label":     role.Label,
	})
}

// ListRoles lists the caller tenant's roles.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	roles, err := h.tenants.ListRoles(r.Context(), subject.TenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(roles, func(role *store.Role) map[string]any {
		return map[string]any{"role_id": role.ID, "label": role.Label}
	}))
}

// AssignCapabilityRequest grants a capability key to a role.
type AssignCapabilityRequest struct {
	Key string `json:"key"`
}

// AssignCapability grants a capability to a role, creating the key on
// first use.
func (h *Handler) AssignCapability(w http.ResponseWriter, r *http.Request) {
	var req AssignCapabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	if err := h.tenants.AssignCapability(r.Context(), subject.UserID, subject.TenantID, chi.URLParam(r, "roleID"), req.Key); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"key": req.Key})
}

// UnassignCapability removes a capability from a role.
func (h *Handler) UnassignCapability(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	if err := h.tenants.UnassignCapability(r.Context(), subject.UserID, subject.TenantID, chi.URLParam(r, "roleID"), chi.URLParam(r, "capID")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "capability unassigned"})
}

// RoleCapabilities lists a role's capability set.
func (h *Handler) RoleCapabilities(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	caps, err := h.tenants.RoleCapabilities(r.Context(), subject.TenantID, chi.URLParam(r, "roleID"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(caps, capabilityView))
}

// ListCapabilities lists the global capability catalog.
func (h *Handler) ListCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.tenants.ListCapabilities(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(caps, capabilityView))
}

// CreateAssignmentRequest binds (user, role, org node).
type CreateAssignmentRequest struct {
	UserID    string `json:"user_id"`
	OrgNodeID string `json:"org_node_id"`
	RoleID    string `json:"role_id"`
}

// CreateAssignment opens an assignment window.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	assignment, err := h.tenants.CreateAssignment(r.Context(), subject.UserID, subject.TenantID, req.UserID, req.OrgNodeID, req.RoleID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, assignmentView(assignment))
}

// ListAssignments lists a user's active assignments in the caller's
// tenant.
func (h *Handler) ListAssignments(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondMessage(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	subject := GetSubject(r.Context())
	assignments, err := h.tenants.ListActiveAssignments(r.Context(), subject.TenantID, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(assignments, assignmentView))
}

// EndAssignment closes an assignment window now.
func (h *Handler) EndAssignment(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	if err := h.tenants.EndAssignment(r.Context(), subject.UserID, subject.TenantID, chi.URLParam(r, "assignmentID")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "assignment ended"})
}

// GrantVisibilityRequest opens a visibility window.
type GrantVisibilityRequest struct {
	UserID      string `json:"user_id"`
	OrgNodeID   string `json:"org_node_id"`
	AccessScope string `json:"access_scope"`
}

// GrantVisibility opens a visibility window for a user on a node.
func (h *Handler) GrantVisibility(w http.ResponseWriter, r *http.Request) {
	var req GrantVisibilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	grant, err := h.tenants.GrantVisibility(r.Context(), subject.UserID, subject.TenantID, req.UserID, req.OrgNodeID, req.AccessScope)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, visibilityView(grant))
}

// ListVisibility lists a user's active visibility grants.
func (h *Handler) ListVisibility(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondMessage(w, http.StatusBadRequest, "user_id query parameter is required")
		return
	}

	subject := GetSubject(r.Context())
	grants, err := h.tenants.ListActiveVisibility(r.Context(), subject.TenantID, userID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, mapSlice(grants, visibilityView))
}

// RevokeVisibility closes a visibility window now.
func (h *Handler) RevokeVisibility(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	if err := h.tenants.RevokeVisibility(r.Context(), subject.UserID, subject.TenantID, chi.URLParam(r, "grantID")); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "visibility revoked"})
}

func tenantView(t *store.Tenant) map[string]any {
	return map[string]any{
		"tenant_id": t.ID,
		"slug":      t.Slug,
		"label":     t.Label,
		"state":     t.State,
	}
}

func orgNodeView(n *store.OrgNode) map[string]any {
	view := map[string]any{
		"node_id":   n.ID,
		"type_code": n.TypeCode,
		"label":     n.Label,
		"active":    n.Active,
	}
	if n.ParentID != nil {
		view["parent_id"] = *n.ParentID
	}
	return view
}

func capabilityView(c *store.Capability) map[string]any {
	return map[string]any{"capability_id": c.ID, "key": c.Key}
}

func assignmentView(a *store.OrgAssignment) map[string]any {
	view := map[string]any{
		"assignment_id": a.ID,
		"user_id":       a.UserID,
		"org_node_id":   a.OrgNodeID,
		"role_id":       a.RoleID,
		"start_at":      a.StartAt,
	}
	if a.EndAt != nil {
		view["end_at"] = *a.EndAt
	}
	return view
}

func visibilityView(g *store.VisibilityGrant) map[string]any {
	view := map[string]any{
		"grant_id":     g.ID,
		"user_id":      g.UserID,
		"org_node_id":  g.OrgNodeID,
		"access_scope": g.AccessScope,
		"start_at":     g.StartAt,
	}
	if g.EndAt != nil {
		view["end_at"] = *g.EndAt
	}
	return view
}

func mapSlice[T any](in []T, f func(T) map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(in))
	for _, v := range in {
		out = append(out, f(v))
	}
	return out
}
