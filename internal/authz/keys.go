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

package authz

// Wildcard grants every capability. Held by the bootstrap superadmin
// role.
const Wildcard = "*"

// Capability keys. The form is "domain.subject:verb"; keys are
// global and opaque to the engine.
const (
	CapTenantCreate = "tenant.tenant:create"
	CapTenantRead   = "tenant.tenant:read"
	CapTenantUpdate = "tenant.tenant:update"

	CapOrgNodeCreate = "org.node:create"
	CapOrgNodeRead   = "org.node:read"
	CapOrgNodeUpdate = "org.node:update"

	CapRoleCreate = "role.role:create"
	CapRoleRead   = "role.role:read"

	CapCapabilityAssign   = "role.capability:assign"
	CapCapabilityUnassign = "role.capability:unassign"
	CapCapabilityRead     = "role.capability:read"

	CapAssignmentCreate = "org.assignment:create"
	CapAssignmentEnd    = "org.assignment:end"
	CapAssignmentRead   = "org.assignment:read"

	CapVisibilityCreate = "visibility:create"
	CapVisibilityRevoke = "visibility:revoke"
	CapVisibilityRead   = "visibility:read"
)

// All enumerates the known keys, seeded into the capability table at
// bootstrap so role grants can reference them immediately.
func All() []string {
	return []string{
		CapTenantCreate, CapTenantRead, CapTenantUpdate,
		CapOrgNodeCreate, CapOrgNodeRead, CapOrgNodeUpdate,
		CapRoleCreate, CapRoleRead,
		CapCapabilityAssign, CapCapabilityUnassign, CapCapabilityRead,
		CapAssignmentCreate, CapAssignmentEnd, CapAssignmentRead,
		CapVisibilityCreate, CapVisibilityRevoke, CapVisibilityRead,
	}
}
