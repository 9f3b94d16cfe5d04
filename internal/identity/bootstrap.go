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

package identity

import (
	"context"
	"strings"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/authz"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

// BootstrapRequest seeds the first tenant and its superadmin.
type BootstrapRequest struct {
	TenantSlug    string `json:"tenant_slug"`
	TenantLabel   string `json:"tenant_label"`
	AdminEmail    string `json:"admin_email"`
	AdminPassword string `json:"admin_password"`
}

// BootstrapResult reports what was created.
type BootstrapResult struct {
	Tenant  *store.Tenant
	Admin   *store.User
	Session *Session
}

// Bootstrap runs exactly once on an empty deployment: it creates the
// first tenant, its root org node, a superadmin role holding the
// wildcard capability, seeds the capability catalog, and creates the
// admin user with an open session. A second call fails.
func (s *Service) Bootstrap(ctx context.Context, req BootstrapRequest) (*BootstrapResult, error) {
	done, err := s.store.IsBootstrapDone(ctx)
	if err != nil {
		return nil, err
	}
	if done {
		return nil, apperr.E(apperr.FailedPrecondition, "Bootstrap already completed")
	}

	if req.TenantSlug == "" || req.TenantLabel == "" {
		return nil, apperr.E(apperr.InvalidArgument, "tenant_slug and tenant_label are required")
	}
	if err := validateEmail(req.AdminEmail); err != nil {
		return nil, err
	}
	if err := validatePassword(req.AdminPassword); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	tenant := &store.Tenant{
		ID:        id.NewUUIDv7(),
		Slug:      req.TenantSlug,
		Label:     req.TenantLabel,
		State:     store.TenantActive,
		CreatedAt: now,
	}
	if err := s.store.InsertTenant(ctx, tenant); err != nil {
		return nil, err
	}

	root := &store.OrgNode{
		ID:        id.NewUUIDv7(),
		TenantID:  tenant.ID,
		TypeCode:  "root",
		Label:     req.TenantLabel,
		Active:    true,
		CreatedAt: now,
	}
	if err := s.store.InsertOrgNode(ctx, root); err != nil {
		return nil, err
	}

	// Seed the capability catalog so role grants never race lazy
	// creation.
	for _, key := range authz.All() {
		if _, err := s.store.InsertCapabilityIfMissing(ctx, key); err != nil {
			return nil, err
		}
	}
	wildcard, err := s.store.InsertCapabilityIfMissing(ctx, authz.Wildcard)
	if err != nil {
		return nil, err
	}

	role := &store.Role{
		ID:        id.NewUUIDv7(),
		TenantID:  tenant.ID,
		Label:     "superadmin",
		CreatedAt: now,
	}
	if err := s.store.InsertRole(ctx, role); err != nil {
		return nil, err
	}
	if err := s.store.AssignCapabilityToRole(ctx, role.ID, wildcard.ID); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.AdminPassword)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to hash password")
	}
	admin := &store.User{
		ID:           id.NewUUIDv7(),
		TenantID:     tenant.ID,
		Email:        req.AdminEmail,
		EmailLower:   strings.ToLower(req.AdminEmail),
		PasswordHash: &hash,
		Verified:     true,
		State:        store.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertUser(ctx, admin); err != nil {
		return nil, err
	}

	assignment := &store.OrgAssignment{
		ID:        id.NewUUIDv7(),
		TenantID:  tenant.ID,
		UserID:    admin.ID,
		OrgNodeID: root.ID,
		RoleID:    role.ID,
		StartAt:   now,
	}
	if err := s.store.InsertOrgAssignment(ctx, assignment); err != nil {
		return nil, err
	}

	pair, err := s.issueSession(ctx, admin)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeBootstrap,
		TenantID:   tenant.ID,
		ActorID:    admin.ID,
		TargetType: "tenant",
		TargetID:   tenant.ID,
		Metadata:   map[string]any{"tenant_slug": tenant.Slug},
	})
	return &BootstrapResult{
		Tenant:  tenant,
		Admin:   admin,
		Session: &Session{User: admin, Tokens: pair},
	}, nil
}
