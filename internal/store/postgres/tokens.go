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

func (s *Store) InsertRefreshToken(ctx context.Context, t *store.RefreshToken) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_tokens (jti, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.JTI, t.UserID, t.TokenHash, t.ExpiresAt, t.Revoked, t.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) FindRefreshTokenByJTI(ctx context.Context, jti string) (*store.RefreshToken, error) {
	var t store.RefreshToken
	err := s.pool.QueryRow(ctx, `
		SELECT jti, user_id, token_hash, expires_at, revoked, created_at
		FROM refresh_tokens
		WHERE jti = $1
	`, jti).Scan(&t.JTI, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt)
	if err != nil {
		return nil, wrapErr(err, "refresh token not found")
	}
	return &t, nil
}

func (s *Store) RevokeRefreshTokenByJTI(ctx context.Context, jti string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE jti = $1
	`, jti)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "refresh token not found")
	}
	return nil
}

func (s *Store) RevokeAllRefreshTokensForUser(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1
	`, userID)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

// RotateRefreshToken revokes the predecessor and inserts the
// successor in one transaction. A missing or already-revoked
// predecessor fails the whole rotation.
func (s *Store) RotateRefreshToken(ctx context.Context, oldJTI string, next *store.RefreshToken) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(err, "")
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE jti = $1 AND revoked = FALSE
	`, oldJTI)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.FailedPrecondition, "refresh token already revoked")
	}

	if next.CreatedAt.IsZero() {
		next.CreatedAt = time.Now()
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO refresh_tokens (jti, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`, next.JTI, next.UserID, next.TokenHash, next.ExpiresAt, next.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.pool.Exec(ctx, `
		DELETE FROM refresh_tokens WHERE expires_at < $1
	`, before)
	if err != nil {
		return 0, wrapErr(err, "")
	}
	return result.RowsAffected(), nil
}

func (s *Store) InsertOTP(ctx context.Context, o *store.OTP) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapErr(err, "")
	}
	defer tx.Rollback(ctx)

	var activeExists bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM otps
			WHERE tenant_id = $1 AND destination = $2 AND purpose = $3
				AND consumed_at IS NULL AND attempts < max_attempts AND expires_at > $4
		)
	`, o.TenantID, o.Destination, o.Purpose, o.CreatedAt).Scan(&activeExists)
	if err != nil {
		return wrapErr(err, "")
	}
	if activeExists {
		return apperr.E(apperr.AlreadyExists, "an active code already exists for this destination")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO otps (id, tenant_id, destination, channel, purpose, code_hash,
			attempts, max_attempts, expires_at, consumed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.TenantID, o.Destination, o.Channel, o.Purpose, o.CodeHash,
		o.Attempts, o.MaxAttempts, o.ExpiresAt, o.ConsumedAt, o.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) FindActiveOTP(ctx context.Context, tenantID, destination, purpose string, at time.Time) (*store.OTP, error) {
	var o store.OTP
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, destination, channel, purpose, code_hash,
			attempts, max_attempts, expires_at, consumed_at, created_at
		FROM otps
		WHERE tenant_id = $1 AND destination = $2 AND purpose = $3
			AND consumed_at IS NULL AND attempts < max_attempts AND expires_at > $4
		ORDER BY created_at DESC
		LIMIT 1
	`, tenantID, destination, purpose, at).Scan(
		&o.ID, &o.TenantID, &o.Destination, &o.Channel, &o.Purpose, &o.CodeHash,
		&o.Attempts, &o.MaxAttempts, &o.ExpiresAt, &o.ConsumedAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr(err, "no active code")
	}
	return &o, nil
}

func (s *Store) FindOTPByID(ctx context.Context, otpID string) (*store.OTP, error) {
	var o store.OTP
	err := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, destination, channel, purpose, code_hash,
			attempts, max_attempts, expires_at, consumed_at, created_at
		FROM otps
		WHERE id = $1
	`, otpID).Scan(
		&o.ID, &o.TenantID, &o.Destination, &o.Channel, &o.Purpose, &o.CodeHash,
		&o.Attempts, &o.MaxAttempts, &o.ExpiresAt, &o.ConsumedAt, &o.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr(err, "code not found")
	}
	return &o, nil
}

func (s *Store) ConsumeOTP(ctx context.Context, otpID string, at time.Time) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE otps SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL
	`, otpID, at)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.FailedPrecondition, "code already consumed")
	}
	return nil
}

func (s *Store) IncrementOTPAttempts(ctx context.Context, otpID string) error {
	result, err := s.pool.Exec(ctx, `
		UPDATE otps SET attempts = attempts + 1 WHERE id = $1
	`, otpID)
	if err != nil {
		return wrapErr(err, "")
	}
	if result.RowsAffected() == 0 {
		return apperr.E(apperr.NotFound, "code not found")
	}
	return nil
}
