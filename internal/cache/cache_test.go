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

package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisFromClient(client), mr
}

// TestPurpose: Validates basic set/get/exists semantics and TTL expiry
// for both Store implementations.
// Scope: Unit Test
// Test Case ID: CCH-01
func TestCache_Redis_SetGetExpire(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", 30*time.Second))

	val, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	exists, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	mr.FastForward(31 * time.Second)

	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: Validates SetNX mutual exclusion: of N claims on one
// nonce exactly one wins.
// Scope: Unit Test
// Security: Replay protection (P10)
// Test Case ID: CCH-02
func TestCache_Redis_SetNX_SingleWinner(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wins := make(chan bool, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ClaimNonce(ctx, store, "n-1", 2*time.Minute)
			require.NoError(t, err)
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for ok := range wins {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)

	seen, err := SeenNonce(ctx, store, "n-1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestCache_Redis_Blacklist(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	revoked, err := IsBlacklisted(ctx, store, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, SetBlacklist(ctx, store, "jti-1", time.Minute))

	revoked, err = IsBlacklisted(ctx, store, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	mr.FastForward(2 * time.Minute)
	revoked, err = IsBlacklisted(ctx, store, "jti-1")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestCache_Memory_TTLAndSetNX(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewMemoryWithClock(clock)
	ctx := context.Background()

	require.NoError(t, store.SetWithTTL(ctx, "k", "v", time.Minute))

	ok, err := store.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "present key must not be overwritten")

	clock.Advance(61 * time.Second)

	ok, err = store.SetNX(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired key is absent")

	val, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "other", val)
}

// TestPurpose: Validates OAuth state storage: a state holds its PKCE
// verifier, cannot be claimed twice, is consumed by one take, and
// dies with its TTL. Both implementations are covered.
// Scope: Unit Test
// Security: OAuth state binding
// Test Case ID: CCH-03
func TestCache_OAuthStateSingleUse(t *testing.T) {
	ctx := context.Background()

	run := func(t *testing.T, store Store, forward func(time.Duration)) {
		ok, err := PutOAuthState(ctx, store, "st-1", "verifier-1", 10*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = PutOAuthState(ctx, store, "st-1", "verifier-2", 10*time.Minute)
		require.NoError(t, err)
		assert.False(t, ok, "a pending state must not be overwritten")

		verifier, ok, err := TakeOAuthState(ctx, store, "st-1")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "verifier-1", verifier)

		_, ok, err = TakeOAuthState(ctx, store, "st-1")
		require.NoError(t, err)
		assert.False(t, ok, "a state is single-use")

		ok, err = PutOAuthState(ctx, store, "st-2", "verifier-3", 10*time.Minute)
		require.NoError(t, err)
		require.True(t, ok)
		forward(11 * time.Minute)
		_, ok, err = TakeOAuthState(ctx, store, "st-2")
		require.NoError(t, err)
		assert.False(t, ok, "expired state is absent")
	}

	t.Run("redis", func(t *testing.T) {
		store, mr := newRedisStore(t)
		run(t, store, func(d time.Duration) { mr.FastForward(d) })
	})
	t.Run("memory", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		run(t, NewMemoryWithClock(clock), clock.Advance)
	})
}
