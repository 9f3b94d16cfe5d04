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
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

// oauthStateTTL bounds how long a consent redirect may take before
// the state and its PKCE verifier expire.
const oauthStateTTL = 10 * time.Minute

// GoogleAuthURL returns the provider consent URL for the state value.
// A PKCE verifier is minted and held server-side keyed by state; the
// callback consumes both.
func (s *Service) GoogleAuthURL(ctx context.Context, state string) (string, error) {
	if s.google == nil {
		return "", apperr.E(apperr.FailedPrecondition, "social login is not enabled")
	}
	if state == "" {
		return "", apperr.E(apperr.InvalidArgument, "state is required")
	}

	verifier := oauth2.GenerateVerifier()
	ok, err := cache.PutOAuthState(ctx, s.cache, state, verifier, oauthStateTTL)
	if err != nil {
		return "", apperr.Wrap(apperr.Unavailable, err, "failed to store authorization state")
	}
	if !ok {
		return "", apperr.E(apperr.AlreadyExists, "state is already in use")
	}
	return s.google.AuthURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// CompleteGoogle finishes the Google redirect: the state is matched
// against the stored record, the authorization code is exchanged with
// the held PKCE verifier for a verified profile, the user is matched
// by email or auto-provisioned, and a session is issued.
// Auto-provisioned users are verified and have no password.
func (s *Service) CompleteGoogle(ctx context.Context, tenantSlug, code, state string) (*Session, error) {
	if s.google == nil {
		return nil, apperr.E(apperr.FailedPrecondition, "social login is not enabled")
	}
	if code == "" {
		return nil, apperr.E(apperr.InvalidArgument, "authorization code is required")
	}

	verifier, ok, err := cache.TakeOAuthState(ctx, s.cache, state)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "failed to load authorization state")
	}
	if !ok {
		return nil, apperr.E(apperr.Unauthenticated, "unknown or expired authorization state")
	}

	tenant, err := s.activeTenantBySlug(ctx, tenantSlug)
	if err != nil {
		return nil, err
	}

	profile, err := s.google.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, err
	}
	if !profile.EmailVerified {
		return nil, apperr.E(apperr.Unauthenticated, "provider email is not verified")
	}

	emailLower := strings.ToLower(profile.Email)
	user, err := s.store.FindUserByTenantAndEmail(ctx, tenant.ID, emailLower)
	switch {
	case err == nil:
		if user.State != store.UserActive {
			return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
		}
		// First social login on a password account links the subject.
		if user.SocialID == nil {
			update := store.UserUpdate{SocialID: &profile.Subject}
			if !user.Verified {
				verified := true
				update.Verified = &verified
			}
			if err := s.store.UpdateUserFields(ctx, user.ID, update); err != nil {
				return nil, err
			}
			user.SocialID = &profile.Subject
			user.Verified = true
		} else if *user.SocialID != profile.Subject {
			return nil, apperr.E(apperr.Unauthenticated, "account is linked to a different identity")
		}

	case apperr.Is(err, apperr.NotFound):
		now := s.clock.Now()
		user = &store.User{
			ID:         id.NewUUIDv7(),
			TenantID:   tenant.ID,
			Email:      profile.Email,
			EmailLower: emailLower,
			Verified:   true,
			State:      store.UserActive,
			SocialID:   &profile.Subject,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if profile.Name != "" {
			user.DisplayName = &profile.Name
		}
		if err := s.store.InsertUser(ctx, user); err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeSocialLogin,
		TenantID: tenant.ID,
		ActorID:  user.ID,
		Metadata: map[string]any{"provider": "google"},
	})
	return &Session{User: user, Tokens: pair}, nil
}
