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

func (s *Store) FindTenantByID(ctx context.Context, id string) (*store.Tenant, error) {
	var t store.Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, label, state, created_at
		FROM tenants
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Slug, &t.Label, &t.State, &t.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "tenant not found")
	}
	return &t, nil
}

func (s *Store) FindTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	var t store.Tenant
	err := s.pool.QueryRow(ctx, `
		SELECT id, slug, label, state, created_at
		FROM tenants
		WHERE slug = $1
	`, slug).Scan(&t.ID, &t.Slug, &t.Label, &t.State, &t.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "tenant not found")
	}
	return &t, nil
}

func (s *Store) InsertTenant(ctx context.Context, t *store.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, slug, label, state, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, t.ID, t.Slug, t.Label, t.State, t.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) SetTenantState(ctx context.Context, id, state string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE tenants SET state = $2 WHERE id = $1
	`, id, state)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "tenant not found")
	}
	return nil
}
