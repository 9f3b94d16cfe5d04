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

package svcaccount

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/store/memory"
	"github.com/trustfabric/trustfabric/internal/token"
)

func newService(t *testing.T) (*Service, *token.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	st := memory.NewWithClock(clock)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := token.New(key, &key.PublicKey, token.Options{
		Issuer:     "trustfabric",
		Audience:   "trustfabric-api",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Clock:      clock,
	})

	// Light hashing parameters keep the test fast.
	hasher := crypto.NewPasswordHasher(1024, 1, 1, 16, 32)
	box := crypto.NewSecretBox("test-encryption-key")
	return NewService(st, box, hasher, tokens, audit.New(st), clock), tokens, clock
}

// TestPurpose: Validates service creation returns the secret once and
// that the secret authenticates afterwards.
// Scope: Unit Test
// Test Case ID: SVC-01
func TestService_CreateAndAuthenticate(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	account, secret, err := svc.Create(ctx, "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)
	require.NotEmpty(t, secret)

	got, err := svc.AuthenticateSecret(ctx, secret)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	_, err = svc.AuthenticateSecret(ctx, "wrong-secret")
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	_, _, err = svc.Create(ctx, "admin", nil, "billing-api", "Duplicate", 0)
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))
}

// TestPurpose: Validates rotation keeps the previous secret working
// through the grace window and cuts it off after expiry.
// Scope: Unit Test
// Test Case ID: SVC-02
func TestService_RotationGrace(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()

	account, oldSecret, err := svc.Create(ctx, "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)

	newSecret, err := svc.Rotate(ctx, "admin", account.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldSecret, newSecret)

	// Both secrets authenticate during grace.
	_, err = svc.AuthenticateSecret(ctx, newSecret)
	require.NoError(t, err)
	_, err = svc.AuthenticateSecret(ctx, oldSecret)
	require.NoError(t, err)

	clock.Advance(RotationGrace + time.Second)
	_, err = svc.AuthenticateSecret(ctx, newSecret)
	require.NoError(t, err)
	_, err = svc.AuthenticateSecret(ctx, oldSecret)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated), "previous secret must expire")
}

// TestPurpose: Validates SigningSecrets exposes current-then-previous
// plaintexts for HMAC verification and stops at grace expiry.
// Scope: Unit Test
// Test Case ID: SVC-03
func TestService_SigningSecrets(t *testing.T) {
	svc, _, clock := newService(t)
	ctx := context.Background()

	account, oldSecret, err := svc.Create(ctx, "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)

	_, secrets, err := svc.SigningSecrets(ctx, "billing-api")
	require.NoError(t, err)
	require.Equal(t, []string{oldSecret}, secrets)

	newSecret, err := svc.Rotate(ctx, "admin", account.ID)
	require.NoError(t, err)

	_, secrets, err = svc.SigningSecrets(ctx, "billing-api")
	require.NoError(t, err)
	assert.Equal(t, []string{newSecret, oldSecret}, secrets)

	clock.Advance(RotationGrace + time.Second)
	_, secrets, err = svc.SigningSecrets(ctx, "billing-api")
	require.NoError(t, err)
	assert.Equal(t, []string{newSecret}, secrets)
}

// TestPurpose: Validates disabled services stop authenticating and
// signing.
// Scope: Unit Test
// Test Case ID: SVC-04
func TestService_Disable(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	account, secret, err := svc.Create(ctx, "admin", nil, "billing-api", "Billing API", 0)
	require.NoError(t, err)
	require.NoError(t, svc.Disable(ctx, "admin", account.ID))

	_, err = svc.AuthenticateSecret(ctx, secret)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))
	_, _, err = svc.SigningSecrets(ctx, "billing-api")
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))
}

// TestPurpose: Validates app token issuance carries the service's
// granted permissions and its stored per-minute quota.
// Scope: Unit Test
// Test Case ID: SVC-05
func TestService_IssueAppToken(t *testing.T) {
	svc, tokens, _ := newService(t)
	ctx := context.Background()

	account, secret, err := svc.Create(ctx, "admin", nil, "billing-api", "Billing API", 60)
	require.NoError(t, err)
	assert.Equal(t, 60, account.RateLimitPerMin)
	require.NoError(t, svc.GrantPermission(ctx, "admin", account.ID, "invoices:read"))

	perms, err := svc.Permissions(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"invoices:read"}, perms)

	_, err = svc.IssueAppToken(ctx, "wrong-key", secret)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	raw, err := svc.IssueAppToken(ctx, "billing-api", secret)
	require.NoError(t, err)

	claims, err := tokens.ValidateApp(raw)
	require.NoError(t, err)
	assert.Equal(t, "billing-api", claims.ClientID)
	assert.Equal(t, []string{"invoices:read"}, claims.Scopes)
	assert.Equal(t, 60, claims.RateLimitPerMin)

	// A negative quota is refused at creation.
	_, _, err = svc.Create(ctx, "admin", nil, "other-api", "Other API", -1)
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
}
