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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/authz"
)

// TestPurpose: Validates bootstrap runs once, seeds the capability
// catalog and wildcard superadmin, and refuses a second run.
// Scope: Unit Test
// Test Case ID: BOOT-01
func TestBootstrap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := BootstrapRequest{
		TenantSlug:    "platform",
		TenantLabel:   "Platform",
		AdminEmail:    "root@example.com",
		AdminPassword: "bootstrap-password",
	}
	result, err := f.svc.Bootstrap(ctx, req)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.True(t, result.Admin.Verified)
	assert.NotEmpty(t, result.Session.Tokens.AccessToken)

	// Capability catalog is seeded, wildcard included.
	caps, err := f.store.GetAllCapabilities(ctx)
	require.NoError(t, err)
	assert.Len(t, caps, len(authz.All())+1)

	// The admin passes any capability check through the wildcard.
	assignments, err := f.store.FindActiveAssignmentsForUser(ctx, result.Admin.ID, f.clock.Now())
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	roleCaps, err := f.store.GetRoleCapabilities(ctx, assignments[0].RoleID)
	require.NoError(t, err)
	require.Len(t, roleCaps, 1)
	assert.Equal(t, authz.Wildcard, roleCaps[0].Key)

	// The seeded session refreshes.
	_, err = f.svc.Refresh(ctx, result.Session.Tokens.RefreshToken)
	require.NoError(t, err)

	// Second run is refused.
	_, err = f.svc.Bootstrap(ctx, req)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.FailedPrecondition))

	// Admin can log in normally afterwards.
	_, err = f.svc.Login(ctx, "platform", "root@example.com", "bootstrap-password", "")
	require.NoError(t, err)
}
