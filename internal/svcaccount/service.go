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

// Package svcaccount manages machine identities for signed
// service-to-service calls: creation, secret rotation with a grace
// window, disabling, secret authentication and permission grants.
package svcaccount

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/token"
)

// RotationGrace is how long the previous secret keeps authenticating
// after a rotation.
const RotationGrace = 24 * time.Hour

// AppTokenTTL bounds issued app tokens.
const AppTokenTTL = time.Hour

// Service carries service-account operations.
type Service struct {
	store  store.Store
	box    *crypto.SecretBox
	hasher *crypto.PasswordHasher
	tokens *token.Service
	audit  audit.Logger
	clock  clockwork.Clock
}

// NewService creates a Service. box encrypts secret copies at rest;
// hasher produces the password-grade secret hashes.
func NewService(st store.Store, box *crypto.SecretBox, hasher *crypto.PasswordHasher, tokens *token.Service, auditLogger audit.Logger, clock clockwork.Clock) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: st, box: box, hasher: hasher, tokens: tokens, audit: auditLogger, clock: clock}
}

// Create registers a service account and returns the plaintext
// secret exactly once; it is never retrievable afterwards.
// rateLimitPerMin caps calls made with the service's app tokens; 0
// means unlimited.
func (s *Service) Create(ctx context.Context, actorID string, tenantID *string, key, label string, rateLimitPerMin int) (*store.ServiceAccount, string, error) {
	if key == "" || label == "" {
		return nil, "", apperr.E(apperr.InvalidArgument, "key and label are required")
	}
	if rateLimitPerMin < 0 {
		return nil, "", apperr.E(apperr.InvalidArgument, "rate_limit_per_min must not be negative")
	}

	secret := crypto.NewToken()
	material, err := s.material(secret)
	if err != nil {
		return nil, "", err
	}

	svc := &store.ServiceAccount{
		ID:              id.NewUUIDv7(),
		TenantID:        tenantID,
		Key:             key,
		Label:           label,
		State:           store.ServiceActive,
		RateLimitPerMin: rateLimitPerMin,
		CreatedAt:       s.clock.Now(),
	}
	record := &store.ServiceSecret{
		ID:         id.NewUUIDv7(),
		ServiceID:  svc.ID,
		SecretEnc:  material.Enc,
		SecretHash: material.Hash,
		LookupHash: material.LookupHash,
		CreatedAt:  svc.CreatedAt,
	}
	if err := s.store.InsertServiceAccount(ctx, svc, record); err != nil {
		return nil, "", err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeServiceCreated,
		ActorID:    actorID,
		TargetType: "service_account",
		TargetID:   svc.ID,
		Metadata:   map[string]any{"service_key": key},
	})
	return svc, secret, nil
}

// Rotate replaces the secret, keeping the previous one valid for
// RotationGrace. Returns the new plaintext secret once.
func (s *Service) Rotate(ctx context.Context, actorID, svcID string) (string, error) {
	if _, err := s.store.FindServiceByID(ctx, svcID); err != nil {
		return "", err
	}

	secret := crypto.NewToken()
	material, err := s.material(secret)
	if err != nil {
		return "", err
	}

	graceUntil := s.clock.Now().Add(RotationGrace)
	if err := s.store.RotateServiceSecret(ctx, svcID, material, graceUntil); err != nil {
		return "", err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeSecretRotated,
		ActorID:    actorID,
		TargetType: "service_account",
		TargetID:   svcID,
	})
	return secret, nil
}

// Disable cuts the service off. Signed requests and secret
// authentication both start failing immediately.
func (s *Service) Disable(ctx context.Context, actorID, svcID string) error {
	if err := s.store.SetServiceState(ctx, svcID, store.ServiceDisabled); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeServiceDisabled,
		ActorID:    actorID,
		TargetType: "service_account",
		TargetID:   svcID,
	})
	return nil
}

// AuthenticateSecret resolves a presented secret to its service
// account: deterministic lookup hash first, then a constant-time
// verify against the current hash, then the previous one while its
// grace window holds.
func (s *Service) AuthenticateSecret(ctx context.Context, secret string) (*store.ServiceAccount, error) {
	svc, record, err := s.store.FindServiceByLookupHash(ctx, crypto.HashToken(secret))
	if err != nil {
		return nil, apperr.E(apperr.Unauthenticated, "invalid service credentials")
	}
	if svc.State != store.ServiceActive {
		return nil, apperr.E(apperr.Unauthenticated, "invalid service credentials")
	}

	if ok, err := s.hasher.Verify(secret, record.SecretHash); err == nil && ok {
		return svc, nil
	}

	if record.PrevSecretHash != nil && record.PrevExpiresAt != nil && s.clock.Now().Before(*record.PrevExpiresAt) {
		if ok, err := s.hasher.Verify(secret, *record.PrevSecretHash); err == nil && ok {
			return svc, nil
		}
	}
	return nil, apperr.E(apperr.Unauthenticated, "invalid service credentials")
}

// IssueAppToken authenticates (key, secret) and mints an app token
// carrying the service's permissions and its per-minute quota.
func (s *Service) IssueAppToken(ctx context.Context, key, secret string) (string, error) {
	svc, err := s.AuthenticateSecret(ctx, secret)
	if err != nil {
		return "", err
	}
	if svc.Key != key {
		return "", apperr.E(apperr.Unauthenticated, "invalid service credentials")
	}

	scopes, err := s.store.GetServicePermissions(ctx, svc.ID)
	if err != nil {
		return "", err
	}
	return s.tokens.GenerateApp(svc.Key, svc.Label, scopes, svc.RateLimitPerMin, AppTokenTTL)
}

// SigningSecrets returns the plaintext secrets currently valid for a
// client key, newest first. The signature middleware tries them in
// order.
func (s *Service) SigningSecrets(ctx context.Context, clientKey string) (*store.ServiceAccount, []string, error) {
	svc, err := s.store.FindServiceByKey(ctx, clientKey)
	if err != nil {
		return nil, nil, err
	}
	if svc.State != store.ServiceActive {
		return nil, nil, apperr.E(apperr.Unauthenticated, "service is disabled")
	}

	record, err := s.store.FindServiceSecret(ctx, svc.ID)
	if err != nil {
		return nil, nil, err
	}

	current, err := s.box.Open(record.SecretEnc)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, err, "failed to decrypt service secret")
	}
	secrets := []string{current}

	if record.PrevSecretEnc != nil && record.PrevExpiresAt != nil && s.clock.Now().Before(*record.PrevExpiresAt) {
		if prev, err := s.box.Open(*record.PrevSecretEnc); err == nil {
			secrets = append(secrets, prev)
		}
	}
	return svc, secrets, nil
}

// GrantPermission adds a permission key to the service.
func (s *Service) GrantPermission(ctx context.Context, actorID, svcID, permKey string) error {
	if permKey == "" {
		return apperr.E(apperr.InvalidArgument, "permission key is required")
	}
	if err := s.store.GrantServicePermission(ctx, svcID, permKey); err != nil {
		return err
	}
	s.audit.Log(ctx, audit.Event{
		Type:       "service_permission_granted",
		ActorID:    actorID,
		TargetType: "service_account",
		TargetID:   svcID,
		Metadata:   map[string]any{"permission": permKey},
	})
	return nil
}

// Permissions lists the service's permission keys.
func (s *Service) Permissions(ctx context.Context, svcID string) ([]string, error) {
	return s.store.GetServicePermissions(ctx, svcID)
}

func (s *Service) material(secret string) (store.SecretMaterial, error) {
	enc, err := s.box.Seal(secret)
	if err != nil {
		return store.SecretMaterial{}, apperr.Wrap(apperr.Internal, err, "failed to encrypt service secret")
	}
	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return store.SecretMaterial{}, apperr.Wrap(apperr.Internal, err, "failed to hash service secret")
	}
	return store.SecretMaterial{
		Enc:        enc,
		Hash:       hash,
		LookupHash: crypto.HashToken(secret),
	}, nil
}
