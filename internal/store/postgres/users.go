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
	"fmt"
	"strings"
	"time"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/store"
)

const userColumns = `id, tenant_id, email, email_lower, password_hash, display_name,
	verified, state, social_id, failed_login_attempts, locked_until, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*store.User, error) {
	var u store.User
	err := row.Scan(
		&u.ID, &u.TenantID, &u.Email, &u.EmailLower, &u.PasswordHash, &u.DisplayName,
		&u.Verified, &u.State, &u.SocialID, &u.FailedLoginAttempts, &u.LockedUntil,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) InsertUser(ctx context.Context, u *store.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.EmailLower == "" {
		u.EmailLower = strings.ToLower(u.Email)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (
			id, tenant_id, email, email_lower, password_hash, display_name,
			verified, state, social_id, failed_login_attempts, locked_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		u.ID, u.TenantID, u.Email, u.EmailLower, u.PasswordHash, u.DisplayName,
		u.Verified, u.State, u.SocialID, u.FailedLoginAttempts, u.LockedUntil,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, userID string) (*store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if err != nil {
		return nil, wrapErr(err, "user not found")
	}
	return u, nil
}

func (s *Store) FindUserByTenantAndEmail(ctx context.Context, tenantID, emailLower string) (*store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND email_lower = $2`,
		tenantID, strings.ToLower(emailLower)))
	if err != nil {
		return nil, wrapErr(err, "user not found")
	}
	return u, nil
}

// UpdateUserFields applies a partial update; nil fields are left
// unchanged.
func (s *Store) UpdateUserFields(ctx context.Context, userID string, fields store.UserUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{userID}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if fields.Email != nil {
		sets = append(sets, "email = "+arg(*fields.Email))
		sets = append(sets, "email_lower = "+arg(strings.ToLower(*fields.Email)))
	}
	if fields.DisplayName != nil {
		sets = append(sets, "display_name = "+arg(*fields.DisplayName))
	}
	if fields.PasswordHash != nil {
		sets = append(sets, "password_hash = "+arg(*fields.PasswordHash))
	}
	if fields.Verified != nil {
		sets = append(sets, "verified = "+arg(*fields.Verified))
	}
	if fields.State != nil {
		sets = append(sets, "state = "+arg(*fields.State))
	}
	if fields.SocialID != nil {
		sets = append(sets, "social_id = "+arg(*fields.SocialID))
	}
	if fields.FailedLoginAttempts != nil {
		sets = append(sets, "failed_login_attempts = "+arg(*fields.FailedLoginAttempts))
	}
	if fields.LockedUntil != nil {
		sets = append(sets, "locked_until = "+arg(*fields.LockedUntil))
	} else if fields.ClearLockedUntil {
		sets = append(sets, "locked_until = NULL")
	}

	query := fmt.Sprintf("UPDATE users SET %s WHERE id = $1", strings.Join(sets, ", "))
	result, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "user not found")
	}
	return nil
}
