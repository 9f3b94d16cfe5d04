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

// Package cache is the short-TTL keyed presence store shared by every
// identity-service replica. It holds revoked token JTIs, replay
// nonces, and service-auth caches. A present key may expire at any
// time at or after its TTL; callers never rely on exact timing.
package cache

import (
	"context"
	"time"
)

// Key prefixes. All callers go through the typed helpers below so the
// namespace stays in one place.
const (
	prefixBlacklist  = "blacklist:"
	prefixNonce      = "nonce:"
	prefixOAuthState = "oauthstate:"
	PrefixSvcAuth    = "svcauth:"
)

// Store is the blacklist / nonce store contract.
type Store interface {
	// SetWithTTL stores value under key for ttl.
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error

	// Get returns the value for key, or ("", false, nil) if absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Exists reports key presence without reading the value.
	Exists(ctx context.Context, key string) (bool, error)

	// SetNX stores value only if key is absent. Returns true when the
	// write won. Two concurrent writers of one key see exactly one true.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Health verifies the backing store is reachable.
	Health(ctx context.Context) error
}

// SetBlacklist marks a token JTI revoked for ttl.
func SetBlacklist(ctx context.Context, s Store, jti string, ttl time.Duration) error {
	return s.SetWithTTL(ctx, prefixBlacklist+jti, "1", ttl)
}

// IsBlacklisted reports whether a token JTI has been revoked.
func IsBlacklisted(ctx context.Context, s Store, jti string) (bool, error) {
	return s.Exists(ctx, prefixBlacklist+jti)
}

// ClaimNonce attempts to consume a replay nonce. Returns false when the
// nonce was already seen. The claim sticks even if the caller's
// signature check fails afterwards, which is deliberate: probing with
// a stolen nonce burns it.
func ClaimNonce(ctx context.Context, s Store, nonce string, ttl time.Duration) (bool, error) {
	return s.SetNX(ctx, prefixNonce+nonce, "1", ttl)
}

// SeenNonce reports whether a nonce has been consumed.
func SeenNonce(ctx context.Context, s Store, nonce string) (bool, error) {
	return s.Exists(ctx, prefixNonce+nonce)
}

// PutOAuthState stores the PKCE verifier under an authorization state
// value for ttl. Returns false when the state is already taken.
func PutOAuthState(ctx context.Context, s Store, state, verifier string, ttl time.Duration) (bool, error) {
	return s.SetNX(ctx, prefixOAuthState+state, verifier, ttl)
}

// TakeOAuthState consumes a state value, returning its verifier. A
// state is single-use: a second take answers absent.
func TakeOAuthState(ctx context.Context, s Store, state string) (string, bool, error) {
	verifier, ok, err := s.Get(ctx, prefixOAuthState+state)
	if err != nil || !ok {
		return "", false, err
	}
	if err := s.Delete(ctx, prefixOAuthState+state); err != nil {
		return "", false, err
	}
	return verifier, true, nil
}
