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

// Package tenant implements tenant lifecycle and the tenant-owned
// administration surface: org forest, roles, capability grants,
// assignments and visibility grants.
package tenant

import (
	"context"
	"regexp"

	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

var slugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Service carries the tenant administration operations.
type Service struct {
	store store.Store
	audit audit.Logger
	clock clockwork.Clock
}

// NewService creates a Service.
func NewService(st store.Store, auditLogger audit.Logger, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: st, audit: auditLogger, clock: clock}
}

// CreateTenant creates a tenant in the active state.
func (s *Service) CreateTenant(ctx context.Context, actorID, slug, label string) (*store.Tenant, error) {
	if !slugRe.MatchString(slug) {
		return nil, apperr.E(apperr.InvalidArgument, "slug must be lowercase alphanumeric with hyphens")
	}
	if label == "" {
		return nil, apperr.E(apperr.InvalidArgument, "label is required")
	}

	t := &store.Tenant{
		ID:        id.NewUUIDv7(),
		Slug:      slug,
		Label:     label,
		State:     store.TenantActive,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertTenant(ctx, t); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeTenantCreated,
		TenantID:   t.ID,
		ActorID:    actorID,
		TargetType: "tenant",
		TargetID:   t.ID,
		Metadata:   map[string]any{"slug": slug},
	})
	return t, nil
}

// GetTenant returns a tenant by ID.
func (s *Service) GetTenant(ctx context.Context, tenantID string) (*store.Tenant, error) {
	return s.store.FindTenantByID(ctx, tenantID)
}

// SetTenantState suspends or reactivates a tenant. A suspended
// tenant refuses all logins.
func (s *Service) SetTenantState(ctx context.Context, actorID, tenantID, state string) error {
	if state != store.TenantActive && state != store.TenantSuspended {
		return apperr.E(apperr.InvalidArgument, "state must be active or suspended")
	}
	if err := s.store.SetTenantState(ctx, tenantID, state); err != nil {
		return err
	}
	if state == store.TenantSuspended {
		s.audit.Log(ctx, audit.Event{
			Type:       audit.TypeTenantSuspended,
			TenantID:   tenantID,
			ActorID:    actorID,
			TargetType: "tenant",
			TargetID:   tenantID,
		})
	}
	return nil
}

// CreateOrgNode adds a node to the tenant's forest. The parent, when
// given, must live in the same tenant and be active.
func (s *Service) CreateOrgNode(ctx context.Context, actorID, tenantID string, parentID *string, typeCode, label string) (*store.OrgNode, error) {
	if typeCode == "" || label == "" {
		return nil, apperr.E(apperr.InvalidArgument, "type_code and label are required")
	}
	if parentID != nil {
		parent, err := s.store.FindOrgNodeByID(ctx, tenantID, *parentID)
		if err != nil {
			return nil, err
		}
		if !parent.Active {
			return nil, apperr.E(apperr.FailedPrecondition, "parent org node is inactive")
		}
	}

	n := &store.OrgNode{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		ParentID:  parentID,
		TypeCode:  typeCode,
		Label:     label,
		Active:    true,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertOrgNode(ctx, n); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeOrgNodeCreated,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "org_node",
		TargetID:   n.ID,
	})
	return n, nil
}

// ListOrgNodes returns the tenant's whole forest.
func (s *Service) ListOrgNodes(ctx context.Context, tenantID string) ([]*store.OrgNode, error) {
	return s.store.FindOrgNodesByTenant(ctx, tenantID)
}

// OrgNodeDescendants returns the strict descendants of a node.
func (s *Service) OrgNodeDescendants(ctx context.Context, tenantID, nodeID string) ([]*store.OrgNode, error) {
	return s.store.FindOrgNodeDescendants(ctx, tenantID, nodeID)
}

// DeactivateOrgNode blocks new assignments on the node. Extant
// assignments keep working until their end time.
func (s *Service) DeactivateOrgNode(ctx context.Context, actorID, tenantID, nodeID string) error {
	if err := s.store.SetOrgNodeActive(ctx, tenantID, nodeID, false); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       "org_node_deactivated",
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "org_node",
		TargetID:   nodeID,
	})
	return nil
}

// CreateRole creates a tenant-scoped role.
func (s *Service) CreateRole(ctx context.Context, actorID, tenantID, label string) (*store.Role, error) {
	if label == "" {
		return nil, apperr.E(apperr.InvalidArgument, "label is required")
	}
	r := &store.Role{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		Label:     label,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.InsertRole(ctx, r); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeRoleCreated,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "role",
		TargetID:   r.ID,
	})
	return r, nil
}

// ListRoles returns the tenant's roles.
func (s *Service) ListRoles(ctx context.Context, tenantID string) ([]*store.Role, error) {
	return s.store.FindRolesByTenant(ctx, tenantID)
}

// AssignCapability grants a capability key to a role, creating the
// capability row if this is the key's first use.
func (s *Service) AssignCapability(ctx context.Context, actorID, tenantID, roleID, capKey string) error {
	if capKey == "" {
		return apperr.E(apperr.InvalidArgument, "capability key is required")
	}
	if _, err := s.store.FindRoleByID(ctx, tenantID, roleID); err != nil {
		return err
	}
	cap, err := s.store.InsertCapabilityIfMissing(ctx, capKey)
	if err != nil {
		return err
	}
	if err := s.store.AssignCapabilityToRole(ctx, roleID, cap.ID); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeRoleAssigned,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "role",
		TargetID:   roleID,
		Metadata:   map[string]any{"capability": capKey},
	})
	return nil
}

// UnassignCapability removes a capability from a role.
func (s *Service) UnassignCapability(ctx context.Context, actorID, tenantID, roleID, capID string) error {
	if _, err := s.store.FindRoleByID(ctx, tenantID, roleID); err != nil {
		return err
	}
	if err := s.store.UnassignCapabilityFromRole(ctx, roleID, capID); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeRoleRevoked,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "role",
		TargetID:   roleID,
	})
	return nil
}

// ListCapabilities returns every known capability key.
func (s *Service) ListCapabilities(ctx context.Context) ([]*store.Capability, error) {
	return s.store.GetAllCapabilities(ctx)
}

// RoleCapabilities returns a role's capability set.
func (s *Service) RoleCapabilities(ctx context.Context, tenantID, roleID string) ([]*store.Capability, error) {
	if _, err := s.store.FindRoleByID(ctx, tenantID, roleID); err != nil {
		return nil, err
	}
	return s.store.GetRoleCapabilities(ctx, roleID)
}

// CreateAssignment binds a user to a role at an org node, starting
// now.
func (s *Service) CreateAssignment(ctx context.Context, actorID, tenantID, userID, orgNodeID, roleID string) (*store.OrgAssignment, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TenantID != tenantID {
		// Cross-tenant references surface as not_found to avoid
		// leaking existence across tenants.
		s.audit.LogSecurity(ctx, audit.SecurityEvent{
			Type:     audit.SecCrossTenantAttempt,
			Severity: "high",
			TenantID: tenantID,
			UserID:   actorID,
			Details:  "assignment referenced a user in another tenant",
		})
		return nil, apperr.E(apperr.NotFound, "user not found")
	}

	a := &store.OrgAssignment{
		ID:        id.NewUUIDv7(),
		TenantID:  tenantID,
		UserID:    userID,
		OrgNodeID: orgNodeID,
		RoleID:    roleID,
		StartAt:   s.clock.Now(),
	}
	if err := s.store.InsertOrgAssignment(ctx, a); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeRoleAssigned,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "assignment",
		TargetID:   a.ID,
		Metadata:   map[string]any{"user_id": userID, "role_id": roleID, "org_node_id": orgNodeID},
	})
	return a, nil
}

// EndAssignment closes the assignment window as of now.
func (s *Service) EndAssignment(ctx context.Context, actorID, tenantID, assignmentID string) error {
	if err := s.store.EndAssignment(ctx, tenantID, assignmentID, s.clock.Now()); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeRoleRevoked,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "assignment",
		TargetID:   assignmentID,
	})
	return nil
}

// ListActiveAssignments returns a user's currently-active
// assignments within the tenant.
func (s *Service) ListActiveAssignments(ctx context.Context, tenantID, userID string) ([]*store.OrgAssignment, error) {
	all, err := s.store.FindActiveAssignmentsForUser(ctx, userID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	var out []*store.OrgAssignment
	for _, a := range all {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	return out, nil
}

// GrantVisibility opens a data-visibility window for a user at an
// org node.
func (s *Service) GrantVisibility(ctx context.Context, actorID, tenantID, userID, orgNodeID, accessScope string) (*store.VisibilityGrant, error) {
	switch accessScope {
	case store.ScopeRead, store.ScopeWrite, store.ScopeAdmin:
	default:
		return nil, apperr.E(apperr.InvalidArgument, "access_scope must be read, write or admin")
	}
	if _, err := s.store.FindOrgNodeByID(ctx, tenantID, orgNodeID); err != nil {
		return nil, err
	}

	g := &store.VisibilityGrant{
		ID:          id.NewUUIDv7(),
		TenantID:    tenantID,
		UserID:      userID,
		OrgNodeID:   orgNodeID,
		AccessScope: accessScope,
		StartAt:     s.clock.Now(),
	}
	if err := s.store.InsertVisibilityGrant(ctx, g); err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeVisibilityGrant,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "visibility_grant",
		TargetID:   g.ID,
	})
	return g, nil
}

// RevokeVisibility closes a grant as of now.
func (s *Service) RevokeVisibility(ctx context.Context, actorID, tenantID, grantID string) error {
	if err := s.store.RevokeVisibilityGrant(ctx, tenantID, grantID, s.clock.Now()); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeVisibilityRevoke,
		TenantID:   tenantID,
		ActorID:    actorID,
		TargetType: "visibility_grant",
		TargetID:   grantID,
	})
	return nil
}

// ListActiveVisibility returns a user's currently-active grants.
func (s *Service) ListActiveVisibility(ctx context.Context, tenantID, userID string) ([]*store.VisibilityGrant, error) {
	return s.store.FindActiveVisibilityGrantsForUser(ctx, tenantID, userID, s.clock.Now())
}
