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

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/store"
)

// Me returns the authenticated user's record.
func (s *Service) Me(ctx context.Context, userID string) (*store.User, error) {
	return s.store.FindUserByID(ctx, userID)
}

// UpdateProfile changes the user's display name.
func (s *Service) UpdateProfile(ctx context.Context, userID, displayName string) (*store.User, error) {
	if displayName == "" {
		return nil, apperr.E(apperr.InvalidArgument, "display name is required")
	}
	if err := s.store.UpdateUserFields(ctx, userID, store.UserUpdate{DisplayName: &displayName}); err != nil {
		return nil, err
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeUserUpdated,
		TenantID:   user.TenantID,
		ActorID:    userID,
		TargetType: "user",
		TargetID:   userID,
	})
	return user, nil
}

// ChangePassword verifies the current password, sets the new one and
// revokes every outstanding refresh token. Live access tokens keep
// working until they expire.
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.PasswordHash == nil {
		return apperr.E(apperr.FailedPrecondition, "account has no password set")
	}
	ok, err := s.hasher.Verify(currentPassword, *user.PasswordHash)
	if err != nil || !ok {
		return apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Wrap(apperr.Internal, err, "failed to hash password")
	}
	if err := s.store.UpdateUserFields(ctx, userID, store.UserUpdate{PasswordHash: &hash}); err != nil {
		return err
	}
	if err := s.store.RevokeAllRefreshTokensForUser(ctx, userID); err != nil {
		return err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypePasswordChanged,
		TenantID:   user.TenantID,
		ActorID:    userID,
		TargetType: "user",
		TargetID:   userID,
	})
	return nil
}
