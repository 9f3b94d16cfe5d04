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

package tenant

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/store/memory"
)

func newService(t *testing.T) (*Service, *memory.Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	st := memory.NewWithClock(clock)
	return NewService(st, audit.New(st), clock), st, clock
}

// TestPurpose: Validates tenant creation including slug validation
// and duplicate rejection.
// Scope: Unit Test
// Test Case ID: TEN-01
func TestTenant_Create(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tenant, err := svc.CreateTenant(ctx, "admin", "acme-corp", "Acme Corp")
	require.NoError(t, err)
	assert.Equal(t, store.TenantActive, tenant.State)

	_, err = svc.CreateTenant(ctx, "admin", "acme-corp", "Copy")
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	for _, bad := range []string{"", "Acme", "has space", "UPPER", "-lead", "trail-"} {
		_, err = svc.CreateTenant(ctx, "admin", bad, "Bad")
		assert.True(t, apperr.Is(err, apperr.InvalidArgument), "slug %q must be rejected", bad)
	}
}

// TestPurpose: Validates the org forest operations: parent must be
// active and same-tenant; deactivation blocks new children.
// Scope: Unit Test
// Test Case ID: TEN-02
func TestTenant_OrgNodes(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	tenant, err := svc.CreateTenant(ctx, "admin", "acme", "Acme")
	require.NoError(t, err)

	root, err := svc.CreateOrgNode(ctx, "admin", tenant.ID, nil, "company", "Root")
	require.NoError(t, err)
	child, err := svc.CreateOrgNode(ctx, "admin", tenant.ID, &root.ID, "dept", "Eng")
	require.NoError(t, err)

	desc, err := svc.OrgNodeDescendants(ctx, tenant.ID, root.ID)
	require.NoError(t, err)
	require.Len(t, desc, 1)
	assert.Equal(t, child.ID, desc[0].ID)

	require.NoError(t, svc.DeactivateOrgNode(ctx, "admin", tenant.ID, child.ID))
	_, err = svc.CreateOrgNode(ctx, "admin", tenant.ID, &child.ID, "team", "Blocked")
	assert.True(t, apperr.Is(err, apperr.FailedPrecondition))

	// Parent from another tenant is invisible
	other, err := svc.CreateTenant(ctx, "admin", "other", "Other")
	require.NoError(t, err)
	_, err = svc.CreateOrgNode(ctx, "admin", other.ID, &root.ID, "dept", "Cross")
	assert.True(t, apperr.Is(err, apperr.NotFound))
}

// TestPurpose: Validates role capability grant/unassign round trip
// with lazy capability creation.
// Scope: Unit Test
// Test Case ID: TEN-03
func TestTenant_RoleCapabilities(t *testing.T) {
	svc, st, _ := newService(t)
	ctx := context.Background()

	tenant, err := svc.CreateTenant(ctx, "admin", "acme", "Acme")
	require.NoError(t, err)
	role, err := svc.CreateRole(ctx, "admin", tenant.ID, "Manager")
	require.NoError(t, err)

	require.NoError(t, svc.AssignCapability(ctx, "admin", tenant.ID, role.ID, "org.node:read"))
	caps, err := svc.RoleCapabilities(ctx, tenant.ID, role.ID)
	require.NoError(t, err)
	require.Len(t, caps, 1)
	assert.Equal(t, "org.node:read", caps[0].Key)

	// Same key assigned to a second role reuses the capability row
	role2, err := svc.CreateRole(ctx, "admin", tenant.ID, "Viewer")
	require.NoError(t, err)
	require.NoError(t, svc.AssignCapability(ctx, "admin", tenant.ID, role2.ID, "org.node:read"))
	all, err := st.GetAllCapabilities(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, svc.UnassignCapability(ctx, "admin", tenant.ID, role.ID, caps[0].ID))
	caps, err = svc.RoleCapabilities(ctx, tenant.ID, role.ID)
	require.NoError(t, err)
	assert.Empty(t, caps)
}

// TestPurpose: Validates assignment creation refuses cross-tenant
// users and records a security event.
// Scope: Unit Test
// Security: Tenant isolation (P1)
// Test Case ID: TEN-04
func TestTenant_CrossTenantAssignmentRefused(t *testing.T) {
	svc, st, clock := newService(t)
	ctx := context.Background()

	tenantA, err := svc.CreateTenant(ctx, "admin", "tenant-a", "A")
	require.NoError(t, err)
	tenantB, err := svc.CreateTenant(ctx, "admin", "tenant-b", "B")
	require.NoError(t, err)

	node, err := svc.CreateOrgNode(ctx, "admin", tenantA.ID, nil, "company", "Root")
	require.NoError(t, err)
	role, err := svc.CreateRole(ctx, "admin", tenantA.ID, "Admin")
	require.NoError(t, err)

	outsider := &store.User{
		ID: id.NewUUIDv7(), TenantID: tenantB.ID,
		Email: "bob@example.com", EmailLower: "bob@example.com", State: store.UserActive,
	}
	require.NoError(t, st.InsertUser(ctx, outsider))

	_, err = svc.CreateAssignment(ctx, "admin", tenantA.ID, outsider.ID, node.ID, role.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.NotFound), "cross-tenant reads as not found")

	events := st.SecurityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, audit.SecCrossTenantAttempt, events[0].EventType)

	// A same-tenant user works, and ending closes the window
	insider := &store.User{
		ID: id.NewUUIDv7(), TenantID: tenantA.ID,
		Email: "ann@example.com", EmailLower: "ann@example.com", State: store.UserActive,
	}
	require.NoError(t, st.InsertUser(ctx, insider))
	a, err := svc.CreateAssignment(ctx, "admin", tenantA.ID, insider.ID, node.ID, role.ID)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	active, err := svc.ListActiveAssignments(ctx, tenantA.ID, insider.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	require.NoError(t, svc.EndAssignment(ctx, "admin", tenantA.ID, a.ID))
	clock.Advance(time.Second)
	active, err = svc.ListActiveAssignments(ctx, tenantA.ID, insider.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestTenant_Visibility(t *testing.T) {
	svc, st, clock := newService(t)
	ctx := context.Background()

	tenant, err := svc.CreateTenant(ctx, "admin", "acme", "Acme")
	require.NoError(t, err)
	node, err := svc.CreateOrgNode(ctx, "admin", tenant.ID, nil, "company", "Root")
	require.NoError(t, err)
	user := &store.User{
		ID: id.NewUUIDv7(), TenantID: tenant.ID,
		Email: "ann@example.com", EmailLower: "ann@example.com", State: store.UserActive,
	}
	require.NoError(t, st.InsertUser(ctx, user))

	_, err = svc.GrantVisibility(ctx, "admin", tenant.ID, user.ID, node.ID, "owner")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	g, err := svc.GrantVisibility(ctx, "admin", tenant.ID, user.ID, node.ID, store.ScopeRead)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	grants, err := svc.ListActiveVisibility(ctx, tenant.ID, user.ID)
	require.NoError(t, err)
	assert.Len(t, grants, 1)

	require.NoError(t, svc.RevokeVisibility(ctx, "admin", tenant.ID, g.ID))
	clock.Advance(time.Second)
	grants, err = svc.ListActiveVisibility(ctx, tenant.ID, user.ID)
	require.NoError(t, err)
	assert.Empty(t, grants)
}
