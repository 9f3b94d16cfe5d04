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

const secretColumns = `id, svc_id, secret_enc, secret_hash, lookup_hash,
	prev_secret_enc, prev_secret_hash, prev_lookup_hash, prev_expires_at,
	created_at, revoked_at`

func scanSecret(row interface{ Scan(...any) error }) (*store.ServiceSecret, error) {
	var sec store.ServiceSecret
	err := row.Scan(
		&sec.ID, &sec.ServiceID, &sec.SecretEnc, &sec.SecretHash, &sec.LookupHash,
		&sec.PrevSecretEnc, &sec.PrevSecretHash, &sec.PrevLookupHash, &sec.PrevExpiresAt,
		&sec.CreatedAt, &sec.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sec, nil
}

// InsertServiceAccount creates the account and its first secret in
// one transaction.
func (s *Store) InsertServiceAccount(ctx context.Context, svc *store.ServiceAccount, secret *store.ServiceSecret) error {
	now := time.Now()
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = now
	}
	if secret.CreatedAt.IsZero() {
		secret.CreatedAt = now
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(err, "")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO service_accounts (id, tenant_id, key, label, state, rate_limit_per_min, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, svc.ID, svc.TenantID, svc.Key, svc.Label, svc.State, svc.RateLimitPerMin, svc.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO service_secrets (id, svc_id, secret_enc, secret_hash, lookup_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, secret.ID, svc.ID, secret.SecretEnc, secret.SecretHash, secret.LookupHash, secret.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) FindServiceByKey(ctx context.Context, key string) (*store.ServiceAccount, error) {
	var svc store.ServiceAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key, label, state, rate_limit_per_min, created_at
		FROM service_accounts
		WHERE key = $1
	`, key).Scan(&svc.ID, &svc.TenantID, &svc.Key, &svc.Label, &svc.State, &svc.RateLimitPerMin, &svc.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "service not found")
	}
	return &svc, nil
}

func (s *Store) FindServiceByID(ctx context.Context, svcID string) (*store.ServiceAccount, error) {
	var svc store.ServiceAccount
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, key, label, state, rate_limit_per_min, created_at
		FROM service_accounts
		WHERE id = $1
	`, svcID).Scan(&svc.ID, &svc.TenantID, &svc.Key, &svc.Label, &svc.State, &svc.RateLimitPerMin, &svc.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "service not found")
	}
	return &svc, nil
}

func (s *Store) FindServiceByLookupHash(ctx context.Context, lookupHash string) (*store.ServiceAccount, *store.ServiceSecret, error) {
	sec, err := scanSecret(s.pool.QueryRow(ctx, `
		SELECT `+secretColumns+`
		FROM service_secrets
		WHERE revoked_at IS NULL AND (lookup_hash = $1 OR prev_lookup_hash = $1)
	`, lookupHash))
	if err != nil {
		return nil, nil, wrapErr(err, "service not found")
	}

	svc, err := s.FindServiceByID(ctx, sec.ServiceID)
	if err != nil {
		return nil, nil, err
	}
	return svc, sec, nil
}

func (s *Store) FindServiceSecret(ctx context.Context, svcID string) (*store.ServiceSecret, error) {
	sec, err := scanSecret(s.pool.QueryRow(ctx, `
		SELECT `+secretColumns+`
		FROM service_secrets
		WHERE svc_id = $1
	`, svcID))
	if err != nil {
		return nil, wrapErr(err, "service secret not found")
	}
	return sec, nil
}

func (s *Store) SetServiceState(ctx context.Context, svcID, state string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE service_accounts SET state = $2 WHERE id = $1
	`, svcID, state)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "service not found")
	}
	return nil
}

// RotateServiceSecret moves the current material into the previous
// slots with the grace expiry and installs the new material, all in
// one statement.
func (s *Store) RotateServiceSecret(ctx context.Context, svcID string, next store.SecretMaterial, prevExpiresAt time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE service_secrets SET
			prev_secret_enc = secret_enc,
			prev_secret_hash = secret_hash,
			prev_lookup_hash = lookup_hash,
			prev_expires_at = $2,
			secret_enc = $3,
			secret_hash = $4,
			lookup_hash = $5
		WHERE svc_id = $1
	`, svcID, prevExpiresAt, next.Enc, next.Hash, next.LookupHash)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "service secret not found")
	}
	return nil
}

func (s *Store) GetServicePermissions(ctx context.Context, svcID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT perm_key FROM service_permissions WHERE svc_id = $1
	`, svcID)
	if err != nil {
		return nil, wrapErr(err, "")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, wrapErr(err, "")
		}
		out = append(out, perm)
	}
	return out, rows.Err()
}

func (s *Store) GrantServicePermission(ctx context.Context, svcID, permKey string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO service_permissions (svc_id, perm_key)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, svcID, permKey)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}
