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

package store

import (
	"context"
	"time"
)

// Store is the single contract between handlers and persistence.
// Finders are tenant-scoped where the entity is tenant-owned; callers
// must supply tenant_id for those. Implementations enforce
// uniqueness of (tenant_id, email_lower), tenant slug, capability
// key, service key, and one active OTP per (tenant, destination,
// purpose), reporting violations as already_exists. Absence is
// reported as not_found.
type Store interface {
	// Tenants
	FindTenantByID(ctx context.Context, id string) (*Tenant, error)
	FindTenantBySlug(ctx context.Context, slug string) (*Tenant, error)
	InsertTenant(ctx context.Context, t *Tenant) error
	SetTenantState(ctx context.Context, id, state string) error

	// Org nodes
	InsertOrgNode(ctx context.Context, n *OrgNode) error
	FindOrgNodeByID(ctx context.Context, tenantID, id string) (*OrgNode, error)
	FindOrgNodesByTenant(ctx context.Context, tenantID string) ([]*OrgNode, error)
	FindOrgNodeDescendants(ctx context.Context, tenantID, rootID string) ([]*OrgNode, error)
	SetOrgNodeActive(ctx context.Context, tenantID, id string, active bool) error

	// Roles
	InsertRole(ctx context.Context, r *Role) error
	FindRoleByID(ctx context.Context, tenantID, id string) (*Role, error)
	FindRolesByTenant(ctx context.Context, tenantID string) ([]*Role, error)

	// Capabilities
	InsertCapabilityIfMissing(ctx context.Context, key string) (*Capability, error)
	FindCapabilityByKey(ctx context.Context, key string) (*Capability, error)
	GetAllCapabilities(ctx context.Context) ([]*Capability, error)
	GetRoleCapabilities(ctx context.Context, roleID string) ([]*Capability, error)
	AssignCapabilityToRole(ctx context.Context, roleID, capID string) error
	UnassignCapabilityFromRole(ctx context.Context, roleID, capID string) error

	// Users
	InsertUser(ctx context.Context, u *User) error
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByTenantAndEmail(ctx context.Context, tenantID, emailLower string) (*User, error)
	UpdateUserFields(ctx context.Context, userID string, fields UserUpdate) error

	// Assignments
	InsertOrgAssignment(ctx context.Context, a *OrgAssignment) error
	EndAssignment(ctx context.Context, tenantID, assignmentID string, endAt time.Time) error
	FindActiveAssignmentsForUser(ctx context.Context, userID string, at time.Time) ([]*OrgAssignment, error)

	// Visibility grants
	InsertVisibilityGrant(ctx context.Context, g *VisibilityGrant) error
	RevokeVisibilityGrant(ctx context.Context, tenantID, grantID string, endAt time.Time) error
	FindVisibilityGrantsForUser(ctx context.Context, tenantID, userID string) ([]*VisibilityGrant, error)
	FindActiveVisibilityGrantsForUser(ctx context.Context, tenantID, userID string, at time.Time) ([]*VisibilityGrant, error)

	// Refresh tokens
	InsertRefreshToken(ctx context.Context, t *RefreshToken) error
	FindRefreshTokenByJTI(ctx context.Context, jti string) (*RefreshToken, error)
	RevokeRefreshTokenByJTI(ctx context.Context, jti string) error
	RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error
	// RotateRefreshToken revokes the predecessor and inserts the
	// successor in one write; a revoked or missing predecessor fails
	// the whole rotation.
	RotateRefreshToken(ctx context.Context, oldJTI string, next *RefreshToken) error
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)

	// OTPs
	InsertOTP(ctx context.Context, o *OTP) error
	FindActiveOTP(ctx context.Context, tenantID, destination, purpose string, at time.Time) (*OTP, error)
	FindOTPByID(ctx context.Context, otpID string) (*OTP, error)
	ConsumeOTP(ctx context.Context, otpID string, at time.Time) error
	IncrementOTPAttempts(ctx context.Context, otpID string) error

	// Service accounts
	InsertServiceAccount(ctx context.Context, svc *ServiceAccount, secret *ServiceSecret) error
	FindServiceByKey(ctx context.Context, key string) (*ServiceAccount, error)
	FindServiceByID(ctx context.Context, id string) (*ServiceAccount, error)
	// FindServiceByLookupHash matches the hash against current and
	// previous lookup hashes and returns the service with its secret
	// record.
	FindServiceByLookupHash(ctx context.Context, lookupHash string) (*ServiceAccount, *ServiceSecret, error)
	FindServiceSecret(ctx context.Context, svcID string) (*ServiceSecret, error)
	SetServiceState(ctx context.Context, id, state string) error
	RotateServiceSecret(ctx context.Context, svcID string, next SecretMaterial, prevExpiresAt time.Time) error
	GetServicePermissions(ctx context.Context, svcID string) ([]string, error)
	GrantServicePermission(ctx context.Context, svcID, permKey string) error

	// Audit
	InsertAuditEvent(ctx context.Context, e *AuditEvent) error
	InsertSecurityEvent(ctx context.Context, e *SecurityEvent) error

	// Misc
	HealthCheck(ctx context.Context) error
	IsBootstrapDone(ctx context.Context) (bool, error)
}
