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
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/store/memory"
	"github.com/trustfabric/trustfabric/internal/token"
)

type fixture struct {
	svc    *Service
	store  *memory.Store
	cache  cache.Store
	tokens *token.Service
	clock  *clockwork.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	st := memory.NewWithClock(clock)
	cacheStore := cache.NewMemoryWithClock(clock)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := token.New(key, &key.PublicKey, token.Options{
		Issuer:     "trustfabric",
		Audience:   "trustfabric-api",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		Clock:      clock,
	})

	hasher := crypto.NewPasswordHasher(1024, 1, 1, 16, 32)
	svc := NewService(st, cacheStore, tokens, hasher, nil, nil, audit.New(st), clock, Config{
		LockoutMaxAttempts: 3,
		LockoutDuration:    15 * time.Minute,
	})
	return &fixture{svc: svc, store: st, cache: cacheStore, tokens: tokens, clock: clock}
}

func (f *fixture) seedTenant(t *testing.T, slug string) *store.Tenant {
	t.Helper()
	tenant := &store.Tenant{
		ID:   id.NewUUIDv7(),
		Slug: slug, Label: slug, State: store.TenantActive, CreatedAt: f.clock.Now(),
	}
	require.NoError(t, f.store.InsertTenant(context.Background(), tenant))
	return tenant
}

// TestPurpose: Validates registration and password login, including
// the uniform error for bad tenant, bad email and bad password.
// Scope: Unit Test
// Test Case ID: IDN-01
func TestIdentity_RegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTenant(t, "acme")

	_, err := f.svc.Register(ctx, "acme", "not-an-email", "password123", "")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))
	_, err = f.svc.Register(ctx, "acme", "ann@example.com", "short", "")
	assert.True(t, apperr.Is(err, apperr.InvalidArgument))

	reg, err := f.svc.Register(ctx, "acme", "Ann@Example.com", "password123", "Ann")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", reg.User.EmailLower)
	assert.False(t, reg.User.Verified)

	// Registration opens a session right away.
	assert.NotEmpty(t, reg.Tokens.AccessToken)
	assert.NotEmpty(t, reg.Tokens.RefreshToken)
	intro := f.svc.Introspect(ctx, reg.Tokens.AccessToken)
	require.True(t, intro.Active)
	assert.Equal(t, reg.User.ID, intro.Subject)

	_, err = f.svc.Register(ctx, "acme", "ann@example.com", "password123", "")
	assert.True(t, apperr.Is(err, apperr.AlreadyExists))

	session, err := f.svc.Login(ctx, "acme", "ANN@example.com", "password123", "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, session.Tokens.AccessToken)
	assert.NotEmpty(t, session.Tokens.RefreshToken)

	for _, tc := range []struct{ slug, email, password string }{
		{"nosuch", "ann@example.com", "password123"},
		{"acme", "ghost@example.com", "password123"},
		{"acme", "ann@example.com", "wrong-password"},
	} {
		_, err := f.svc.Login(ctx, tc.slug, tc.email, tc.password, "10.0.0.1")
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.Unauthenticated))
		assert.Equal(t, msgInvalidCredentials, apperr.MessageOf(err))
	}
}

// TestPurpose: Validates account lockout after repeated failures and
// recovery after the lockout window.
// Scope: Unit Test
// Security: Brute force protection
// Test Case ID: IDN-02
func TestIdentity_Lockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTenant(t, "acme")
	_, err := f.svc.Register(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.svc.Login(ctx, "acme", "ann@example.com", "wrong", "10.0.0.1")
		require.Error(t, err)
	}

	events := f.store.SecurityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, audit.SecBruteForce, events[0].EventType)

	// Correct password is refused while locked.
	_, err = f.svc.Login(ctx, "acme", "ann@example.com", "password123", "10.0.0.1")
	require.Error(t, err)
	assert.Equal(t, msgInvalidCredentials, apperr.MessageOf(err))

	f.clock.Advance(16 * time.Minute)
	session, err := f.svc.Login(ctx, "acme", "ann@example.com", "password123", "10.0.0.1")
	require.NoError(t, err)
	require.NotNil(t, session)

	// Counter reset: one new failure does not lock again.
	_, _ = f.svc.Login(ctx, "acme", "ann@example.com", "wrong", "10.0.0.1")
	_, err = f.svc.Login(ctx, "acme", "ann@example.com", "password123", "10.0.0.1")
	require.NoError(t, err)
}

// TestPurpose: Validates refresh rotation and that replaying a
// rotated-out token revokes the whole refresh family.
// Scope: Unit Test
// Test Case ID: IDN-03
func TestIdentity_RefreshRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTenant(t, "acme")
	_, err := f.svc.Register(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)
	session, err := f.svc.Login(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, session.Tokens.RefreshJTI, rotated.Tokens.RefreshJTI)

	// Replay of the old token: refused, and the new token dies too.
	_, err = f.svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	_, err = f.svc.Refresh(ctx, rotated.Tokens.RefreshToken)
	require.Error(t, err, "family revoked after reuse")

	events := f.store.SecurityEvents()
	require.NotEmpty(t, events)
	assert.Equal(t, audit.SecReplayDetected, events[len(events)-1].EventType)
}

// TestPurpose: Validates refresh tokens stop working past their
// server-side expiry even with a valid signature window.
// Scope: Unit Test
// Test Case ID: IDN-04
func TestIdentity_RefreshExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTenant(t, "acme")
	_, err := f.svc.Register(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)
	session, err := f.svc.Login(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)

	f.clock.Advance(8 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))
}

// TestPurpose: Validates logout blacklists the access token and
// revokes the refresh record; introspection reflects both.
// Scope: Unit Test
// Test Case ID: IDN-05
func TestIdentity_LogoutAndIntrospect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTenant(t, "acme")
	reg, err := f.svc.Register(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)
	session, err := f.svc.Login(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)

	intro := f.svc.Introspect(ctx, session.Tokens.AccessToken)
	require.True(t, intro.Active)
	assert.Equal(t, reg.User.ID, intro.Subject)
	assert.Equal(t, "ann@example.com", intro.Email)

	claims, err := f.tokens.ValidateAccess(session.Tokens.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, claims, session.Tokens.RefreshToken))

	assert.False(t, f.svc.Introspect(ctx, session.Tokens.AccessToken).Active)
	_, err = f.svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.Error(t, err)

	// Garbage tokens introspect inactive, never error.
	assert.False(t, f.svc.Introspect(ctx, "garbage").Active)
}

// TestPurpose: Validates password change revokes outstanding refresh
// tokens.
// Scope: Unit Test
// Test Case ID: IDN-06
func TestIdentity_ChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTenant(t, "acme")
	reg, err := f.svc.Register(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)
	userID := reg.User.ID
	session, err := f.svc.Login(ctx, "acme", "ann@example.com", "password123", "")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, userID, "wrong", "newpassword1")
	assert.True(t, apperr.Is(err, apperr.Unauthenticated))

	require.NoError(t, f.svc.ChangePassword(ctx, userID, "password123", "newpassword1"))

	_, err = f.svc.Refresh(ctx, session.Tokens.RefreshToken)
	require.Error(t, err, "old sessions die with the password")

	_, err = f.svc.Login(ctx, "acme", "ann@example.com", "newpassword1", "")
	require.NoError(t, err)
}

// downTenantStore simulates a store outage on tenant lookup.
type downTenantStore struct {
	*memory.Store
}

func (s *downTenantStore) FindTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	return nil, apperr.E(apperr.Unavailable, "store is down")
}

// TestPurpose: Validates a store outage during login surfaces as an
// infrastructure error rather than the generic credential refusal.
// Scope: Unit Test
// Test Case ID: IDN-07
func TestIdentity_LoginStoreOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	hasher := crypto.NewPasswordHasher(1024, 1, 1, 16, 32)
	svc := NewService(&downTenantStore{f.store}, f.cache, f.tokens, hasher, nil, nil, audit.New(nil), f.clock, Config{})

	_, err := svc.Login(ctx, "acme", "ann@example.com", "password123", "10.0.0.1")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.Unavailable))
	assert.False(t, apperr.Is(err, apperr.Unauthenticated))
}
