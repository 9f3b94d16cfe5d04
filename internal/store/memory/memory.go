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

// Package memory is the mutex-guarded in-memory Store used by test
// harnesses and local development. It enforces the same uniqueness
// constraints as the postgres implementation.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

// Store implements store.Store over plain maps.
type Store struct {
	mu    sync.RWMutex
	clock clockwork.Clock

	tenants       map[string]*store.Tenant
	orgNodes      map[string]*store.OrgNode
	roles         map[string]*store.Role
	capabilities  map[string]*store.Capability // by id
	capsByKey     map[string]*store.Capability
	roleCaps      map[string]map[string]bool // roleID -> capID set
	users         map[string]*store.User
	assignments   map[string]*store.OrgAssignment
	grants        map[string]*store.VisibilityGrant
	refreshTokens map[string]*store.RefreshToken // by JTI
	otps          map[string]*store.OTP
	services      map[string]*store.ServiceAccount
	secrets       map[string]*store.ServiceSecret // by service ID
	svcPerms      map[string]map[string]bool
	auditEvents   []*store.AuditEvent
	secEvents     []*store.SecurityEvent
}

// New creates an empty store on the real clock.
func New() *Store {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates an empty store with an injected clock.
func NewWithClock(clock clockwork.Clock) *Store {
	return &Store{
		clock:         clock,
		tenants:       make(map[string]*store.Tenant),
		orgNodes:      make(map[string]*store.OrgNode),
		roles:         make(map[string]*store.Role),
		capabilities:  make(map[string]*store.Capability),
		capsByKey:     make(map[string]*store.Capability),
		roleCaps:      make(map[string]map[string]bool),
		users:         make(map[string]*store.User),
		assignments:   make(map[string]*store.OrgAssignment),
		grants:        make(map[string]*store.VisibilityGrant),
		refreshTokens: make(map[string]*store.RefreshToken),
		otps:          make(map[string]*store.OTP),
		services:      make(map[string]*store.ServiceAccount),
		secrets:       make(map[string]*store.ServiceSecret),
		svcPerms:      make(map[string]map[string]bool),
	}
}

// Tenants

func (s *Store) FindTenantByID(_ context.Context, id string) (*store.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "tenant not found")
	}
	cp := *t
	return &cp, nil
}

func (s *Store) FindTenantBySlug(_ context.Context, slug string) (*store.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if t.Slug == slug {
			cp := *t
			return &cp, nil
		}
	}
	return nil, apperr.E(apperr.NotFound, "tenant not found")
}

func (s *Store) InsertTenant(_ context.Context, t *store.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.tenants {
		if existing.Slug == t.Slug {
			return apperr.E(apperr.AlreadyExists, "tenant slug already exists")
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock.Now()
	}
	cp := *t
	s.tenants[t.ID] = &cp
	return nil
}

func (s *Store) SetTenantState(_ context.Context, id, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return apperr.E(apperr.NotFound, "tenant not found")
	}
	t.State = state
	return nil
}

// Org nodes

func (s *Store) InsertOrgNode(_ context.Context, n *store.OrgNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.ParentID != nil {
		parent, ok := s.orgNodes[*n.ParentID]
		if !ok || parent.TenantID != n.TenantID {
			return apperr.E(apperr.InvalidArgument, "parent org node not found in tenant")
		}
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}
	cp := *n
	s.orgNodes[n.ID] = &cp
	return nil
}

func (s *Store) FindOrgNodeByID(_ context.Context, tenantID, id string) (*store.OrgNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.orgNodes[id]
	if !ok || n.TenantID != tenantID {
		return nil, apperr.E(apperr.NotFound, "org node not found")
	}
	cp := *n
	return &cp, nil
}

func (s *Store) FindOrgNodesByTenant(_ context.Context, tenantID string) ([]*store.OrgNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.OrgNode
	for _, n := range s.orgNodes {
		if n.TenantID == tenantID {
			cp := *n
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) FindOrgNodeDescendants(_ context.Context, tenantID, rootID string) ([]*store.OrgNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	root, ok := s.orgNodes[rootID]
	if !ok || root.TenantID != tenantID {
		return nil, apperr.E(apperr.NotFound, "org node not found")
	}

	// Downward BFS over (parent_id, id); strict descendants only.
	frontier := map[string]bool{rootID: true}
	var out []*store.OrgNode
	for len(frontier) > 0 {
		next := make(map[string]bool)
		for _, n := range s.orgNodes {
			if n.ParentID != nil && frontier[*n.ParentID] {
				cp := *n
				out = append(out, &cp)
				next[n.ID] = true
			}
		}
		frontier = next
	}
	return out, nil
}

func (s *Store) SetOrgNodeActive(_ context.Context, tenantID, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.orgNodes[id]
	if !ok || n.TenantID != tenantID {
		return apperr.E(apperr.NotFound, "org node not found")
	}
	n.Active = active
	return nil
}

// Roles

func (s *Store) InsertRole(_ context.Context, r *store.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now()
	}
	cp := *r
	s.roles[r.ID] = &cp
	return nil
}

func (s *Store) FindRoleByID(_ context.Context, tenantID, id string) (*store.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok || r.TenantID != tenantID {
		return nil, apperr.E(apperr.NotFound, "role not found")
	}
	cp := *r
	return &cp, nil
}

func (s *Store) FindRolesByTenant(_ context.Context, tenantID string) ([]*store.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Role
	for _, r := range s.roles {
		if r.TenantID == tenantID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Capabilities

func (s *Store) InsertCapabilityIfMissing(_ context.Context, key string) (*store.Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap, ok := s.capsByKey[key]; ok {
		cp := *cap
		return &cp, nil
	}
	cap := &store.Capability{
		ID:        id.NewUUIDv7(),
		Key:       key,
		CreatedAt: s.clock.Now(),
	}
	s.capabilities[cap.ID] = cap
	s.capsByKey[key] = cap
	cp := *cap
	return &cp, nil
}

func (s *Store) FindCapabilityByKey(_ context.Context, key string) (*store.Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cap, ok := s.capsByKey[key]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "capability not found")
	}
	cp := *cap
	return &cp, nil
}

func (s *Store) GetAllCapabilities(_ context.Context) ([]*store.Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.Capability, 0, len(s.capabilities))
	for _, cap := range s.capabilities {
		cp := *cap
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) GetRoleCapabilities(_ context.Context, roleID string) ([]*store.Capability, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.Capability
	for capID := range s.roleCaps[roleID] {
		if cap, ok := s.capabilities[capID]; ok {
			cp := *cap
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) AssignCapabilityToRole(_ context.Context, roleID, capID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[roleID]; !ok {
		return apperr.E(apperr.NotFound, "role not found")
	}
	if _, ok := s.capabilities[capID]; !ok {
		return apperr.E(apperr.NotFound, "capability not found")
	}
	if s.roleCaps[roleID] == nil {
		s.roleCaps[roleID] = make(map[string]bool)
	}
	s.roleCaps[roleID][capID] = true
	return nil
}

func (s *Store) UnassignCapabilityFromRole(_ context.Context, roleID, capID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roleCaps[roleID], capID)
	return nil
}

// Users

func (s *Store) InsertUser(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.TenantID == u.TenantID && existing.EmailLower == u.EmailLower {
			return apperr.E(apperr.AlreadyExists, "email already registered")
		}
	}
	now := s.clock.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) FindUserByID(_ context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "user not found")
	}
	cp := *u
	return &cp, nil
}

func (s *Store) FindUserByTenantAndEmail(_ context.Context, tenantID, emailLower string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	emailLower = strings.ToLower(emailLower)
	for _, u := range s.users {
		if u.TenantID == tenantID && u.EmailLower == emailLower {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.E(apperr.NotFound, "user not found")
}

func (s *Store) UpdateUserFields(_ context.Context, userID string, fields store.UserUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return apperr.E(apperr.NotFound, "user not found")
	}
	if fields.Email != nil {
		u.Email = *fields.Email
		u.EmailLower = strings.ToLower(*fields.Email)
	}
	if fields.DisplayName != nil {
		u.DisplayName = fields.DisplayName
	}
	if fields.PasswordHash != nil {
		u.PasswordHash = fields.PasswordHash
	}
	if fields.Verified != nil {
		u.Verified = *fields.Verified
	}
	if fields.State != nil {
		u.State = *fields.State
	}
	if fields.SocialID != nil {
		u.SocialID = fields.SocialID
	}
	if fields.FailedLoginAttempts != nil {
		u.FailedLoginAttempts = *fields.FailedLoginAttempts
	}
	if fields.LockedUntil != nil {
		u.LockedUntil = fields.LockedUntil
	}
	if fields.ClearLockedUntil {
		u.LockedUntil = nil
	}
	u.UpdatedAt = s.clock.Now()
	return nil
}

// Assignments

func (s *Store) InsertOrgAssignment(_ context.Context, a *store.OrgAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	node, ok := s.orgNodes[a.OrgNodeID]
	if !ok || node.TenantID != a.TenantID {
		return apperr.E(apperr.NotFound, "org node not found")
	}
	if !node.Active {
		return apperr.E(apperr.FailedPrecondition, "org node is inactive")
	}
	role, ok := s.roles[a.RoleID]
	if !ok || role.TenantID != a.TenantID {
		return apperr.E(apperr.NotFound, "role not found")
	}
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *Store) EndAssignment(_ context.Context, tenantID, assignmentID string, endAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[assignmentID]
	if !ok || a.TenantID != tenantID {
		return apperr.E(apperr.NotFound, "assignment not found")
	}
	a.EndAt = &endAt
	return nil
}

func (s *Store) FindActiveAssignmentsForUser(_ context.Context, userID string, at time.Time) ([]*store.OrgAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.OrgAssignment
	for _, a := range s.assignments {
		if a.UserID == userID && a.ActiveAt(at) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Visibility grants

func (s *Store) InsertVisibilityGrant(_ context.Context, g *store.VisibilityGrant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *g
	s.grants[g.ID] = &cp
	return nil
}

func (s *Store) RevokeVisibilityGrant(_ context.Context, tenantID, grantID string, endAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID]
	if !ok || g.TenantID != tenantID {
		return apperr.E(apperr.NotFound, "visibility grant not found")
	}
	g.EndAt = &endAt
	return nil
}

func (s *Store) FindVisibilityGrantsForUser(_ context.Context, tenantID, userID string) ([]*store.VisibilityGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.VisibilityGrant
	for _, g := range s.grants {
		if g.TenantID == tenantID && g.UserID == userID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) FindActiveVisibilityGrantsForUser(_ context.Context, tenantID, userID string, at time.Time) ([]*store.VisibilityGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*store.VisibilityGrant
	for _, g := range s.grants {
		if g.TenantID == tenantID && g.UserID == userID && g.ActiveAt(at) {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

// Refresh tokens

func (s *Store) InsertRefreshToken(_ context.Context, t *store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.clock.Now()
	}
	cp := *t
	s.refreshTokens[t.JTI] = &cp
	return nil
}

func (s *Store) FindRefreshTokenByJTI(_ context.Context, jti string) (*store.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refreshTokens[jti]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "refresh token not found")
	}
	cp := *t
	return &cp, nil
}

func (s *Store) RevokeRefreshTokenByJTI(_ context.Context, jti string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[jti]
	if !ok {
		return apperr.E(apperr.NotFound, "refresh token not found")
	}
	t.Revoked = true
	return nil
}

func (s *Store) RevokeAllRefreshTokensForUser(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (s *Store) RotateRefreshToken(_ context.Context, oldJTI string, next *store.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.refreshTokens[oldJTI]
	if !ok {
		return apperr.E(apperr.NotFound, "refresh token not found")
	}
	if old.Revoked {
		return apperr.E(apperr.FailedPrecondition, "refresh token already revoked")
	}
	old.Revoked = true
	if next.CreatedAt.IsZero() {
		next.CreatedAt = s.clock.Now()
	}
	cp := *next
	s.refreshTokens[next.JTI] = &cp
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for jti, t := range s.refreshTokens {
		if t.ExpiresAt.Before(before) {
			delete(s.refreshTokens, jti)
			n++
		}
	}
	return n, nil
}

// OTPs

func (s *Store) InsertOTP(_ context.Context, o *store.OTP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	for _, existing := range s.otps {
		if existing.TenantID == o.TenantID &&
			existing.Destination == o.Destination &&
			existing.Purpose == o.Purpose &&
			existing.ConsumedAt == nil &&
			existing.Attempts < existing.MaxAttempts &&
			now.Before(existing.ExpiresAt) {
			return apperr.E(apperr.AlreadyExists, "an active code already exists for this destination")
		}
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	cp := *o
	s.otps[o.ID] = &cp
	return nil
}

func (s *Store) FindActiveOTP(_ context.Context, tenantID, destination, purpose string, at time.Time) (*store.OTP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.otps {
		if o.TenantID == tenantID &&
			o.Destination == destination &&
			o.Purpose == purpose &&
			o.ConsumedAt == nil &&
			o.Attempts < o.MaxAttempts &&
			at.Before(o.ExpiresAt) {
			cp := *o
			return &cp, nil
		}
	}
	return nil, apperr.E(apperr.NotFound, "no active code")
}

func (s *Store) FindOTPByID(_ context.Context, otpID string) (*store.OTP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.otps[otpID]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "code not found")
	}
	cp := *o
	return &cp, nil
}

func (s *Store) ConsumeOTP(_ context.Context, otpID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[otpID]
	if !ok {
		return apperr.E(apperr.NotFound, "code not found")
	}
	if o.ConsumedAt != nil {
		return apperr.E(apperr.FailedPrecondition, "code already consumed")
	}
	o.ConsumedAt = &at
	return nil
}

func (s *Store) IncrementOTPAttempts(_ context.Context, otpID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.otps[otpID]
	if !ok {
		return apperr.E(apperr.NotFound, "code not found")
	}
	o.Attempts++
	return nil
}

// Service accounts

func (s *Store) InsertServiceAccount(_ context.Context, svc *store.ServiceAccount, secret *store.ServiceSecret) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.services {
		if existing.Key == svc.Key {
			return apperr.E(apperr.AlreadyExists, "service key already exists")
		}
	}
	if svc.CreatedAt.IsZero() {
		svc.CreatedAt = s.clock.Now()
	}
	if secret.CreatedAt.IsZero() {
		secret.CreatedAt = svc.CreatedAt
	}
	svcCp := *svc
	secCp := *secret
	s.services[svc.ID] = &svcCp
	s.secrets[svc.ID] = &secCp
	return nil
}

func (s *Store) FindServiceByKey(_ context.Context, key string) (*store.ServiceAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if svc.Key == key {
			cp := *svc
			return &cp, nil
		}
	}
	return nil, apperr.E(apperr.NotFound, "service not found")
}

func (s *Store) FindServiceByID(_ context.Context, id string) (*store.ServiceAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "service not found")
	}
	cp := *svc
	return &cp, nil
}

func (s *Store) FindServiceByLookupHash(_ context.Context, lookupHash string) (*store.ServiceAccount, *store.ServiceSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for svcID, sec := range s.secrets {
		if sec.RevokedAt != nil {
			continue
		}
		match := sec.LookupHash == lookupHash
		if !match && sec.PrevLookupHash != nil && *sec.PrevLookupHash == lookupHash {
			match = true
		}
		if match {
			svc, ok := s.services[svcID]
			if !ok {
				continue
			}
			svcCp := *svc
			secCp := *sec
			return &svcCp, &secCp, nil
		}
	}
	return nil, nil, apperr.E(apperr.NotFound, "service not found")
}

func (s *Store) FindServiceSecret(_ context.Context, svcID string) (*store.ServiceSecret, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.secrets[svcID]
	if !ok {
		return nil, apperr.E(apperr.NotFound, "service secret not found")
	}
	cp := *sec
	return &cp, nil
}

func (s *Store) SetServiceState(_ context.Context, id, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return apperr.E(apperr.NotFound, "service not found")
	}
	svc.State = state
	return nil
}

func (s *Store) RotateServiceSecret(_ context.Context, svcID string, next store.SecretMaterial, prevExpiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.secrets[svcID]
	if !ok {
		return apperr.E(apperr.NotFound, "service secret not found")
	}
	prevEnc := sec.SecretEnc
	prevHash := sec.SecretHash
	prevLookup := sec.LookupHash
	sec.PrevSecretEnc = &prevEnc
	sec.PrevSecretHash = &prevHash
	sec.PrevLookupHash = &prevLookup
	sec.PrevExpiresAt = &prevExpiresAt
	sec.SecretEnc = next.Enc
	sec.SecretHash = next.Hash
	sec.LookupHash = next.LookupHash
	return nil
}

func (s *Store) GetServicePermissions(_ context.Context, svcID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for perm := range s.svcPerms[svcID] {
		out = append(out, perm)
	}
	return out, nil
}

func (s *Store) GrantServicePermission(_ context.Context, svcID, permKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.services[svcID]; !ok {
		return apperr.E(apperr.NotFound, "service not found")
	}
	if s.svcPerms[svcID] == nil {
		s.svcPerms[svcID] = make(map[string]bool)
	}
	s.svcPerms[svcID][permKey] = true
	return nil
}

// Audit

func (s *Store) InsertAuditEvent(_ context.Context, e *store.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock.Now()
	}
	cp := *e
	s.auditEvents = append(s.auditEvents, &cp)
	return nil
}

func (s *Store) InsertSecurityEvent(_ context.Context, e *store.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock.Now()
	}
	cp := *e
	s.secEvents = append(s.secEvents, &cp)
	return nil
}

// AuditEvents returns a snapshot for test assertions.
func (s *Store) AuditEvents() []*store.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.AuditEvent, len(s.auditEvents))
	copy(out, s.auditEvents)
	return out
}

// SecurityEvents returns a snapshot for test assertions.
func (s *Store) SecurityEvents() []*store.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*store.SecurityEvent, len(s.secEvents))
	copy(out, s.secEvents)
	return out
}

// Misc

func (s *Store) HealthCheck(context.Context) error { return nil }

func (s *Store) IsBootstrapDone(_ context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tenants) > 0, nil
}
