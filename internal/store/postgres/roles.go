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
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

func (s *Store) InsertRole(ctx context.Context, r *store.Role) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO roles (id, tenant_id, label, created_at)
		VALUES ($1, $2, $3, $4)
	`, r.ID, r.TenantID, r.Label, r.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) FindRoleByID(ctx context.Context, tenantID, roleID string) (*store.Role, error) {
	var r store.Role
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, label, created_at
		FROM roles
		WHERE id = $1 AND tenant_id = $2
	`, roleID, tenantID).Scan(&r.ID, &r.TenantID, &r.Label, &r.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "role not found")
	}
	return &r, nil
}

func (s *Store) FindRolesByTenant(ctx context.Context, tenantID string) ([]*store.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, tenant_id, label, created_at
		FROM roles
		WHERE tenant_id = $1
		ORDER BY created_at
	`, tenantID)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.Role
	for rows.Next() {
		var r store.Role
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Label, &r.CreatedAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// InsertCapabilityIfMissing upserts on the unique key and returns the
// surviving row.
func (s *Store) InsertCapabilityIfMissing(ctx context.Context, key string) (*store.Capability, error) {
	var c store.Capability
	err := s.pool.QueryRow(ctx, `
		INSERT INTO capabilities (id, key, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET key = EXCLUDED.key
		RETURNING id, key, created_at
	`, id.NewUUIDv7(), key, time.Now()).Scan(&c.ID, &c.Key, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	return &c, nil
}

func (s *Store) FindCapabilityByKey(ctx context.Context, key string) (*store.Capability, error) {
	var c store.Capability
	err := s.pool.QueryRow(ctx, `
		SELECT id, key, created_at FROM capabilities WHERE key = $1
	`, key).Scan(&c.ID, &c.Key, &c.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "capability not found")
	}
	return &c, nil
}

func (s *Store) GetAllCapabilities(ctx context.Context) ([]*store.Capability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, key, created_at FROM capabilities ORDER BY key
	`)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.Capability
	for rows.Next() {
		var c store.Capability
		if err := rows.Scan(&c.ID, &c.Key, &c.CreatedAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) GetRoleCapabilities(ctx context.Context, roleID string) ([]*store.Capability, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.id, c.key, c.created_at
		FROM role_capabilities rc
		JOIN capabilities c ON c.id = rc.cap_id
		WHERE rc.role_id = $1
	`, roleID)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []*store.Capability
	for rows.Next() {
		var c store.Capability
		if err := rows.Scan(&c.ID, &c.Key, &c.CreatedAt); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) AssignCapabilityToRole(ctx context.Context, roleID, capID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO role_capabilities (role_id, cap_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, roleID, capID)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) UnassignCapabilityFromRole(ctx context.Context, roleID, capID string) error {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM role_capabilities WHERE role_id = $1 AND cap_id = $2
	`, roleID, capID)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "capability not assigned to role")
	}
	return nil
}
