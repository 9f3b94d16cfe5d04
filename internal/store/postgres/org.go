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

func (s *Store) InsertOrgNode(ctx context.Context, n *store.OrgNode) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.ParentID != nil {
		// Parent must live in the same tenant
		var parentTenant string
		err := s.pool.QueryRow(ctx, `
			SELECT tenant_id FROM org_nodes WHERE id = $1
		`, *n.ParentID).Scan(&parentTenant)
		if err != nil {
			return wrapErr(err, "parent org node not found")
		}
		if parentTenant != n.TenantID {
			return apperr.E(apperr.InvalidArgument, "parent org node not found in tenant")
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO org_nodes (id, tenant_id, parent_id, type_code, label, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.TenantID, n.ParentID, n.TypeCode, n.Label, n.Active, n.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) FindOrgNodeByID(ctx context.Context, tenantID, id string) (*store.OrgNode, error) {
	var n store.OrgNode
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, parent_id, type_code, label, active, created_at
		FROM org_nodes
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID).Scan(&n.ID, &n.TenantID, &n.ParentID, &n.TypeCode, &n.Label, &n.Active, &n.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "org node not found")
	}
	return &n, nil
}

func (s *Store) FindOrgNodesByTenant(ctx context.Context, tenantID string) ([]*store.OrgNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, parent_id, type_code, label, active, created_at
		FROM org_nodes
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.OrgNode
	for rows.Next() {
		var n store.OrgNode
		if err := rows.Scan(&n.ID, &n.TenantID, &n.ParentID, &n.TypeCode, &n.Label, &n.Active, &n.CreatedAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

// FindOrgNodeDescendants walks the forest downward from rootID and
// returns strict descendants.
func (s *Store) FindOrgNodeDescendants(ctx context.Context, tenantID, rootID string) ([]*store.OrgNode, error) {
	if _, err := s.FindOrgNodeByID(ctx, tenantID, rootID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT id, tenant_id, parent_id, type_code, label, active, created_at
			FROM org_nodes
			WHERE parent_id = $1 AND tenant_id = $2
			UNION ALL
			SELECT o.id, o.tenant_id, o.parent_id, o.type_code, o.label, o.active, o.created_at
			FROM org_nodes o
			JOIN descendants d ON o.parent_id = d.id
		)
		SELECT id, tenant_id, parent_id, type_code, label, active, created_at
		FROM descendants
	`, rootID, tenantID)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.OrgNode
	for rows.Next() {
		var n store.OrgNode
		if err := rows.Scan(&n.ID, &n.TenantID, &n.ParentID, &n.TypeCode, &n.Label, &n.Active, &n.CreatedAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) SetOrgNodeActive(ctx context.Context, tenantID, id string, active bool) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE org_nodes SET active = $3 WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, active)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "org node not found")
	}
	return nil
}
