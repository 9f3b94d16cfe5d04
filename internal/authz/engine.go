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

// Package authz is the capability decision engine. A subject may do
// a capability if any of its active assignments carries a role whose
// capability set contains the key or the wildcard.
package authz

import (
	"context"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/token"
)

// Trusted-edge metadata keys. When the trust switch is on, interior
// hops read the subject from these instead of validating a JWT.
const (
	HeaderUserID   = "x-user-id"
	HeaderTenantID = "x-tenant-id"
)

// Metadata abstracts the request metadata carrier. http.Header
// satisfies it directly; gRPC metadata uses a small adapter.
type Metadata interface {
	Get(key string) string
}

// Subject is the authenticated caller of a request.
type Subject struct {
	UserID   string
	TenantID string
	Email    string
	// Trusted marks a subject materialized from trusted-edge
	// metadata rather than a validated token.
	Trusted bool
}

// Decision is the result of a capability check.
type Decision struct {
	Allowed           bool
	MatchedAssignment *store.OrgAssignment
}

// AuthContext is the full authorization picture for a subject.
type AuthContext struct {
	Capabilities map[string]bool
	Assignments  []*store.OrgAssignment
	ScopeNodes   []string
}

// Engine resolves capability decisions against the store.
type Engine struct {
	store         store.Store
	tokens        *token.Service
	cache         cache.Store
	trustInternal bool
	clock         clockwork.Clock
}

// New creates an Engine. trustInternal switches RequireCapability
// from bearer validation to trusted-edge header extraction.
func New(st store.Store, tokens *token.Service, cacheStore cache.Store, trustInternal bool, clock clockwork.Clock) *Engine {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Engine{
		store:         st,
		tokens:        tokens,
		cache:         cacheStore,
		trustInternal: trustInternal,
		clock:         clock,
	}
}

// TrustInternal reports the trust switch state.
func (e *Engine) TrustInternal() bool { return e.trustInternal }

// CheckCapability runs the v1 decision procedure: load the user's
// active assignments, load each role's capabilities, allow on
// wildcard or exact key. orgNodeID is accepted for forward
// compatibility; v1 does not restrict by ancestry.
func (e *Engine) CheckCapability(ctx context.Context, userID, orgNodeID, capKey string) (Decision, error) {
	assignments, err := e.store.FindActiveAssignmentsForUser(ctx, userID, e.clock.Now())
	if err != nil {
		return Decision{}, err
	}

	for _, a := range assignments {
		caps, err := e.store.GetRoleCapabilities(ctx, a.RoleID)
		if err != nil {
			return Decision{}, err
		}
		for _, c := range caps {
			if c.Key == Wildcard || c.Key == capKey {
				return Decision{Allowed: true, MatchedAssignment: a}, nil
			}
		}
	}
	return Decision{}, nil
}

// RequireCapability authenticates the caller and enforces capKey.
// In trust mode the subject comes from the edge-planted metadata and
// no capability check runs; otherwise the bearer token is validated
// (including the blacklist) and the check runs against the store.
func (e *Engine) RequireCapability(ctx context.Context, meta Metadata, capKey string) (*Subject, error) {
	if e.trustInternal {
		return e.trustedSubject(meta), nil
	}

	subject, _, err := e.AuthenticateBearer(ctx, meta.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	decision, err := e.CheckCapability(ctx, subject.UserID, "", capKey)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, apperr.E(apperr.PermissionDenied, "Missing capability: %s", capKey)
	}
	return subject, nil
}

// Authenticate materializes the caller without a capability check.
// Used by self-service endpoints.
func (e *Engine) Authenticate(ctx context.Context, meta Metadata) (*Subject, error) {
	if e.trustInternal {
		return e.trustedSubject(meta), nil
	}
	subject, _, err := e.AuthenticateBearer(ctx, meta.Get("Authorization"))
	return subject, err
}

// AuthenticateBearer validates a bearer access token, including the
// revocation blacklist, and returns the subject with its claims.
func (e *Engine) AuthenticateBearer(ctx context.Context, authHeader string) (*Subject, *token.AccessClaims, error) {
	raw, ok := stripBearer(authHeader)
	if !ok {
		return nil, nil, apperr.E(apperr.Unauthenticated, "missing bearer token")
	}

	claims, err := e.tokens.ValidateAccess(raw)
	if err != nil {
		return nil, nil, err
	}

	revoked, err := cache.IsBlacklisted(ctx, e.cache, claims.ID)
	if err != nil {
		return nil, nil, apperr.Wrap(apperr.Internal, err, "blacklist check failed")
	}
	if revoked {
		return nil, nil, apperr.E(apperr.Unauthenticated, "token revoked")
	}

	return &Subject{
		UserID:   claims.Subject,
		TenantID: claims.AppID,
		Email:    claims.Email,
	}, claims, nil
}

// GetAuthContext assembles the subject's capability set, active
// assignments and scope nodes.
func (e *Engine) GetAuthContext(ctx context.Context, userID, tenantID string) (*AuthContext, error) {
	assignments, err := e.store.FindActiveAssignmentsForUser(ctx, userID, e.clock.Now())
	if err != nil {
		return nil, err
	}

	authCtx := &AuthContext{Capabilities: make(map[string]bool)}
	seenNodes := make(map[string]bool)
	for _, a := range assignments {
		if a.TenantID != tenantID {
			continue
		}
		authCtx.Assignments = append(authCtx.Assignments, a)
		if !seenNodes[a.OrgNodeID] {
			seenNodes[a.OrgNodeID] = true
			authCtx.ScopeNodes = append(authCtx.ScopeNodes, a.OrgNodeID)
		}
		caps, err := e.store.GetRoleCapabilities(ctx, a.RoleID)
		if err != nil {
			return nil, err
		}
		for _, c := range caps {
			authCtx.Capabilities[c.Key] = true
		}
	}
	return authCtx, nil
}

// trustedSubject reads the edge-planted identity; absent headers
// fall back to nil UUIDs rather than failing.
func (e *Engine) trustedSubject(meta Metadata) *Subject {
	userID := meta.Get(HeaderUserID)
	if userID == "" {
		userID = id.Nil
	}
	tenantID := meta.Get(HeaderTenantID)
	if tenantID == "" {
		tenantID = id.Nil
	}
	return &Subject{UserID: userID, TenantID: tenantID, Trusted: true}
}

func stripBearer(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
