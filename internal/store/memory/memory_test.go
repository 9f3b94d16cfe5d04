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

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

func seedTenant(t *testing.T, s *Store) *store.Tenant {
	t.Helper()
	tenant := &store.Tenant{
		ID:    id.NewUUIDv7(),
		Slug:  "acme-" + id.NewUUIDv7(),
		Label: "Acme",
		State: store.TenantActive,
	}
	require.NoError(t, s.InsertTenant(context.Background(), tenant))
	return tenant
}

// TestPurpose: Validates uniqueness constraints: tenant slug, user
// (tenant_id, email_lower), and service key all reject duplicates
// with already_exists, while the same email in another tenant is
// allowed.
// Scope: Unit Test
// Test Case ID: STO-01
func TestStore_Uniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := seedTenant(t, s)

	dup := &store.Tenant{ID: id.NewUUIDv7(), Slug: tenant.Slug, Label: "Copy", State: store.TenantActive}
	err := s.InsertTenant(ctx, dup)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	user := &store.User{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		Email: "Alice@Example.com", EmailLower: "alice@example.com",
		State: store.UserActive,
	}
	require.NoError(t, s.InsertUser(ctx, user))

	sameEmail := &store.User{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		Email: "ALICE@example.com", EmailLower: "alice@example.com",
		State: store.UserActive,
	}
	err = s.InsertUser(ctx, sameEmail)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	other := seedTenant(t, s)
	crossTenant := &store.User{
		ID: id.NewUUIDv7(), TenantID: other.ID,
		Email: "alice@example.com", EmailLower: "alice@example.com",
		State: store.UserActive,
	}
	assert.NoError(t, s.InsertUser(ctx, crossTenant), "same email in another tenant is fine")
}

// TestPurpose: Validates refresh rotation semantics: rotation revokes
// the predecessor and inserts the successor; rotating a revoked
// token fails without inserting anything.
// Scope: Unit Test
// Security: Refresh token replay (P3)
// Test Case ID: STO-02
func TestStore_RotateRefreshToken(t *testing.T) {
	s := New()
	ctx := context.Background()

	old := &store.RefreshToken{
		JTI: id.NewUUIDv7(), UserID: "user-1",
		TokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.InsertRefreshToken(ctx, old))

	next := &store.RefreshToken{
		JTI: id.NewUUIDv7(), UserID: "user-1",
		TokenHash: "h2", ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.RotateRefreshToken(ctx, old.JTI, next))

	rotated, err := s.FindRefreshTokenByJTI(ctx, old.JTI)
	require.NoError(t, err)
	assert.True(t, rotated.Revoked)

	// Replaying the rotation must fail and must not insert
	again := &store.RefreshToken{
		JTI: id.NewUUIDv7(), UserID: "user-1",
		TokenHash: "h3", ExpiresAt: time.Now().Add(time.Hour),
	}
	err = s.RotateRefreshToken(ctx, old.JTI, again)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.FailedPrecondition))
	_, err = s.FindRefreshTokenByJTI(ctx, again.JTI)
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

// TestPurpose: Validates the one-active-OTP invariant and that
// expiry or exhaustion frees the slot.
// Scope: Unit Test
// Test Case ID: STO-03
func TestStore_OTPSingleActive(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := NewWithClock(clock)
	ctx := context.Background()
	tenant := seedTenant(t, s)

	first := &store.OTP{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		Destination: "alice@example.com", Channel: store.ChannelEmail,
		Purpose: store.PurposeLogin, CodeHash: "h",
		MaxAttempts: 3, ExpiresAt: clock.Now().Add(5 * time.Minute),
	}
	require.NoError(t, s.InsertOTP(ctx, first))

	second := &store.OTP{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		Destination: "alice@example.com", Channel: store.ChannelEmail,
		Purpose: store.PurposeLogin, CodeHash: "h2",
		MaxAttempts: 3, ExpiresAt: clock.Now().Add(5 * time.Minute),
	}
	err := s.InsertOTP(ctx, second)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	// A different purpose has its own slot
	reset := &store.OTP{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		Destination: "alice@example.com", Channel: store.ChannelEmail,
		Purpose: store.PurposeResetPassword, CodeHash: "h3",
		MaxAttempts: 3, ExpiresAt: clock.Now().Add(5 * time.Minute),
	}
	require.NoError(t, s.InsertOTP(ctx, reset))

	// Exhausting attempts frees the slot
	for i := 0; i < 3; i++ {
		require.NoError(t, s.IncrementOTPAttempts(ctx, first.ID))
	}
	require.NoError(t, s.InsertOTP(ctx, second))

	// A consumed OTP is no longer active
	require.NoError(t, s.ConsumeOTP(ctx, second.ID, clock.Now()))
	_, err = s.FindActiveOTP(ctx, tenant.ID, "alice@example.com", store.PurposeLogin, clock.Now())
	assert.True(t, apperr.Is(err, apperr.NotFound))
	err = s.ConsumeOTP(ctx, second.ID, clock.Now())
	assert.True(t, apperr.Is(err, apperr.FailedPrecondition), "double consume is rejected")
}

// TestPurpose: Validates assignment time windows and that inactive
// org nodes refuse new assignments while extant ones keep working.
// Scope: Unit Test
// Test Case ID: STO-04
func TestStore_AssignmentsAndOrgNodes(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := seedTenant(t, s)
	now := time.Now()

	node := &store.OrgNode{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		TypeCode: "company", Label: "Root", Active: true,
	}
	require.NoError(t, s.InsertOrgNode(ctx, node))
	role := &store.Role{ID: id.NewUUIDv7(), TenantID: tenant.ID, Label: "Admin"}
	require.NoError(t, s.InsertRole(ctx, role))

	a := &store.OrgAssignment{
		ID: id.NewUUIDv7(), TenantID: tenant.ID, UserID: "user-1",
		OrgNodeID: node.ID, RoleID: role.ID, StartAt: now,
	}
	require.NoError(t, s.InsertOrgAssignment(ctx, a))

	active, err := s.FindActiveAssignmentsForUser(ctx, "user-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, active, 1)

	// Deactivating the node blocks new assignments, keeps extant ones
	require.NoError(t, s.SetOrgNodeActive(ctx, tenant.ID, node.ID, false))
	blocked := &store.OrgAssignment{
		ID: id.NewUUIDv7(), TenantID: tenant.ID, UserID: "user-2",
		OrgNodeID: node.ID, RoleID: role.ID, StartAt: now,
	}
	err = s.InsertOrgAssignment(ctx, blocked)
	assert.True(t, apperr.Is(err, apperr.FailedPrecondition))

	active, err = s.FindActiveAssignmentsForUser(ctx, "user-1", now.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, active, 1, "extant assignment survives deactivation")

	// Ending the assignment closes the window
	end := now.Add(2 * time.Minute)
	require.NoError(t, s.EndAssignment(ctx, tenant.ID, a.ID, end))
	active, err = s.FindActiveAssignmentsForUser(ctx, "user-1", end.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, active)
}

// TestPurpose: Validates descendants traversal over the org forest.
// Scope: Unit Test
// Test Case ID: STO-05
func TestStore_OrgNodeDescendants(t *testing.T) {
	s := New()
	ctx := context.Background()
	tenant := seedTenant(t, s)

	root := &store.OrgNode{ID: id.NewUUIDv7(), TenantID: tenant.ID, TypeCode: "company", Label: "Root", Active: true}
	require.NoError(t, s.InsertOrgNode(ctx, root))
	child := &store.OrgNode{ID: id.NewUUIDv7(), TenantID: tenant.ID, ParentID: &root.ID, TypeCode: "dept", Label: "Eng", Active: true}
	require.NoError(t, s.InsertOrgNode(ctx, child))
	grandchild := &store.OrgNode{ID: id.NewUUIDv7(), TenantID: tenant.ID, ParentID: &child.ID, TypeCode: "team", Label: "Platform", Active: true}
	require.NoError(t, s.InsertOrgNode(ctx, grandchild))
	sibling := &store.OrgNode{ID: id.NewUUIDv7(), TenantID: tenant.ID, TypeCode: "company", Label: "Other root", Active: true}
	require.NoError(t, s.InsertOrgNode(ctx, sibling))

	desc, err := s.FindOrgNodeDescendants(ctx, tenant.ID, root.ID)
	require.NoError(t, err)
	assert.Len(t, desc, 2)
	ids := []string{desc[0].ID, desc[1].ID}
	assert.Contains(t, ids, child.ID)
	assert.Contains(t, ids, grandchild.ID)
}

// TestPurpose: Validates secret rotation keeps the previous lookup
// hash resolvable until replaced again.
// Scope: Unit Test
// Security: Service secret grace window (S5)
// Test Case ID: STO-06
func TestStore_ServiceSecretRotation(t *testing.T) {
	s := New()
	ctx := context.Background()

	svc := &store.ServiceAccount{
		ID: id.NewUUIDv7(), Key: "svc-billing", Label: "Billing", State: store.ServiceActive,
	}
	secret := &store.ServiceSecret{
		ID: id.NewUUIDv7(), ServiceID: svc.ID,
		SecretEnc: "enc1", SecretHash: "hash1", LookupHash: "lookup1",
	}
	require.NoError(t, s.InsertServiceAccount(ctx, svc, secret))

	grace := time.Now().Add(24 * time.Hour)
	next := store.SecretMaterial{Enc: "enc2", Hash: "hash2", LookupHash: "lookup2"}
	require.NoError(t, s.RotateServiceSecret(ctx, svc.ID, next, grace))

	// Current hash resolves
	found, sec, err := s.FindServiceByLookupHash(ctx, "lookup2")
	require.NoError(t, err)
	assert.Equal(t, svc.ID, found.ID)
	assert.Equal(t, "hash2", sec.SecretHash)

	// Previous hash still resolves during grace
	_, sec, err = s.FindServiceByLookupHash(ctx, "lookup1")
	require.NoError(t, err)
	require.NotNil(t, sec.PrevLookupHash)
	assert.Equal(t, "lookup1", *sec.PrevLookupHash)
	require.NotNil(t, sec.PrevExpiresAt)
	assert.WithinDuration(t, grace, *sec.PrevExpiresAt, time.Second)
}

func TestStore_BootstrapDone(t *testing.T) {
	s := New()
	ctx := context.Background()

	done, err := s.IsBootstrapDone(ctx)
	require.NoError(t, err)
	assert.False(t, done)

	seedTenant(t, s)
	done, err = s.IsBootstrapDone(ctx)
	require.NoError(t, err)
	assert.True(t, done)
}
