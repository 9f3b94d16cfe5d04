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

package postgres

import (
	"context"
	"time"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/store"
)

func (s *Store) InsertOrgAssignment(ctx context.Context, a *store.OrgAssignment) error {
	// Org node must be active and role must live in the same tenant
	var active bool
	err := s.pool.QueryRow(ctx, `
		SELECT active FROM org_nodes WHERE id = $1 AND tenant_id = $2
	`, a.OrgNodeID, a.TenantID).Scan(&active)
	if err != nil {
		return wrapErr(err, "org node not found")
	}
	if !active {
		return apperr.E(apperr.FailedPrecondition, "org node is inactive")
	}

	var roleExists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM roles WHERE id = $1 AND tenant_id = $2)
	`, a.RoleID, a.TenantID).Scan(&roleExists)
	if err != nil {
		return wrapErr(err, "")
	}
	if !roleExists {
		return apperr.E(apperr.NotFound, "role not found")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO org_assignments (id, tenant_id, user_id, org_node_id, role_id, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.TenantID, a.UserID, a.OrgNodeID, a.RoleID, a.StartAt, a.EndAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) EndAssignment(ctx context.Context, tenantID, assignmentID string, endAt time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE org_assignments SET end_at = $3
		WHERE id = $1 AND tenant_id = $2
	`, assignmentID, tenantID, endAt)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "assignment not found")
	}
	return nil
}

func (s *Store) FindActiveAssignmentsForUser(ctx context.Context, userID string, at time.Time) ([]*store.OrgAssignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, user_id, org_node_id, role_id, start_at, end_at
		FROM org_assignments
		WHERE user_id = $1 AND start_at <= $2 AND (end_at IS NULL OR end_at > $2)
	`, userID, at)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.OrgAssignment
	for rows.Next() {
		var a store.OrgAssignment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.UserID, &a.OrgNodeID, &a.RoleID, &a.StartAt, &a.EndAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) InsertVisibilityGrant(ctx context.Context, g *store.VisibilityGrant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO visibility_grants (id, tenant_id, user_id, org_node_id, access_scope, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, g.ID, g.TenantID, g.UserID, g.OrgNodeID, g.AccessScope, g.StartAt, g.EndAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) RevokeVisibilityGrant(ctx context.Context, tenantID, grantID string, endAt time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE visibility_grants SET end_at = $3
		WHERE id = $1 AND tenant_id = $2
	`, grantID, tenantID, endAt)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "visibility grant not found")
	}
	return nil
}

func (s *Store) FindVisibilityGrantsForUser(ctx context.Context, tenantID, userID string) ([]*store.VisibilityGrant, error) {
	return s.queryGrants(ctx, `
		SELECT id, tenant_id, user_id, org_node_id, access_scope, start_at, end_at
		FROM visibility_grants
		WHERE tenant_id = $1 AND user_id = $2
	`, tenantID, userID)
}

func (s *Store) FindActiveVisibilityGrantsForUser(ctx context.Context, tenantID, userID string, at time.Time) ([]*store.VisibilityGrant, error) {
	return s.queryGrants(ctx, `
		SELECT id, tenant_id, user_id, org_node_id, access_scope, start_at, end_at
		FROM visibility_grants
		WHERE tenant_id = $1 AND user_id = $2
			AND start_at <= $3 AND (end_at IS NULL OR end_at > $3)
	`, tenantID, userID, at)
}

func (s *Store) queryGrants(ctx context.Context, query string, args ...any) ([]*store.VisibilityGrant, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.VisibilityGrant
	for rows.Next() {
		var g store.VisibilityGrant
		if err := rows.Scan(&g.ID, &g.TenantID, &g.UserID, &g.OrgNodeID, &g.AccessScope, &g.StartAt, &g.EndAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
