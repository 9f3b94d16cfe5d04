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

// Package identity implements user authentication: registration,
// password login with lockout, refresh rotation, logout, token
// introspection, one-time codes, social login completion and the
// first-boot bootstrap.
package identity

import (
	"context"
	"crypto/subtle"
	"net/mail"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/oauthx"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/token"
)

// Credential failures all surface this message so callers cannot
// probe which part failed.
const msgInvalidCredentials = "invalid credentials"

// Config tunes the identity service. Zero values get defaults.
type Config struct {
	LockoutMaxAttempts int
	LockoutDuration    time.Duration
	OTPTTL             time.Duration
	OTPMaxAttempts     int
}

func (c Config) withDefaults() Config {
	if c.LockoutMaxAttempts <= 0 {
		c.LockoutMaxAttempts = 5
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = 15 * time.Minute
	}
	if c.OTPTTL <= 0 {
		c.OTPTTL = 5 * time.Minute
	}
	if c.OTPMaxAttempts <= 0 {
		c.OTPMaxAttempts = 5
	}
	return c
}

// Service carries the authentication flows.
type Service struct {
	store      store.Store
	cache      cache.Store
	tokens     *token.Service
	hasher     *crypto.PasswordHasher
	dispatcher Dispatcher
	google     *oauthx.GoogleProvider
	audit      audit.Logger
	clock      clockwork.Clock
	cfg        Config
}

// NewService creates the identity service. google may be nil when
// social login is disabled; dispatcher may be nil, which falls back
// to the log dispatcher.
func NewService(st store.Store, cacheStore cache.Store, tokens *token.Service, hasher *crypto.PasswordHasher, dispatcher Dispatcher, google *oauthx.GoogleProvider, auditLogger audit.Logger, clock clockwork.Clock, cfg Config) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if dispatcher == nil {
		dispatcher = &LogDispatcher{}
	}
	return &Service{
		store:      st,
		cache:      cacheStore,
		tokens:     tokens,
		hasher:     hasher,
		dispatcher: dispatcher,
		google:     google,
		audit:      auditLogger,
		clock:      clock,
		cfg:        cfg.withDefaults(),
	}
}

// Session is the result of a successful authentication.
type Session struct {
	User   *store.User
	Tokens token.TokenPair
}

// Register creates a password user in the tenant and opens their
// first session. The account starts unverified; verification happens
// through the verify_email OTP flow.
func (s *Service) Register(ctx context.Context, tenantSlug, email, password string, displayName string) (*Session, error) {
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	tenant, err := s.activeTenantBySlug(ctx, tenantSlug)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to hash password")
	}

	now := s.clock.Now()
	user := &store.User{
		ID:           id.NewUUIDv7(),
		TenantID:     tenant.ID,
		Email:        email,
		EmailLower:   strings.ToLower(email),
		PasswordHash: &hash,
		State:        store.UserActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if displayName != "" {
		user.DisplayName = &displayName
	}
	if err := s.store.InsertUser(ctx, user); err != nil {
		return nil, err
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:       audit.TypeUserCreated,
		TenantID:   tenant.ID,
		ActorID:    user.ID,
		TargetType: "user",
		TargetID:   user.ID,
		Metadata:   map[string]any{"email": user.EmailLower},
	})
	return &Session{User: user, Tokens: pair}, nil
}

// Login authenticates email and password within a tenant. Every
// failure mode answers with the same message; the distinction only
// reaches the audit trail.
func (s *Service) Login(ctx context.Context, tenantSlug, email, password, ip string) (*Session, error) {
	tenant, err := s.store.FindTenantBySlug(ctx, tenantSlug)
	switch {
	case apperr.Is(err, apperr.NotFound):
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	case err != nil:
		// A store outage is not a credential problem; let it surface
		// as internal/unavailable.
		return nil, err
	case tenant.State != store.TenantActive:
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}

	user, err := s.store.FindUserByTenantAndEmail(ctx, tenant.ID, strings.ToLower(email))
	switch {
	case apperr.Is(err, apperr.NotFound):
		// Burn comparable time so absent users are not distinguishable
		// by latency.
		_, _ = s.hasher.Verify(password, dummyHash)
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	case err != nil:
		return nil, err
	}

	now := s.clock.Now()
	if user.State != store.UserActive {
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}
	if user.PasswordHash == nil {
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}

	ok, err := s.hasher.Verify(password, *user.PasswordHash)
	if err != nil || !ok {
		s.recordFailedLogin(ctx, tenant, user, ip)
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}

	// Success resets the lockout counter.
	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		zero := 0
		_ = s.store.UpdateUserFields(ctx, user.ID, store.UserUpdate{
			FailedLoginAttempts: &zero,
			ClearLockedUntil:    true,
		})
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:      audit.TypeLoginSuccess,
		TenantID:  tenant.ID,
		ActorID:   user.ID,
		IPAddress: ip,
	})
	return &Session{User: user, Tokens: pair}, nil
}

// recordFailedLogin bumps the counter and locks the account once the
// threshold is crossed.
func (s *Service) recordFailedLogin(ctx context.Context, tenant *store.Tenant, user *store.User, ip string) {
	attempts := user.FailedLoginAttempts + 1
	update := store.UserUpdate{FailedLoginAttempts: &attempts}

	if attempts >= s.cfg.LockoutMaxAttempts {
		lockedUntil := s.clock.Now().Add(s.cfg.LockoutDuration)
		update.LockedUntil = &lockedUntil

		s.audit.Log(ctx, audit.Event{
			Type:       audit.TypeUserLocked,
			TenantID:   tenant.ID,
			TargetType: "user",
			TargetID:   user.ID,
			IPAddress:  ip,
			Metadata:   map[string]any{"failed_attempts": attempts},
		})
		s.audit.LogSecurity(ctx, audit.SecurityEvent{
			Type:     audit.SecBruteForce,
			Severity: "high",
			TenantID: tenant.ID,
			UserID:   user.ID,
			IP:       ip,
			Details:  "account locked after repeated failed logins",
		})
	} else {
		s.audit.Log(ctx, audit.Event{
			Type:      audit.TypeLoginFailed,
			TenantID:  tenant.ID,
			TargetID:  user.ID,
			IPAddress: ip,
		})
	}

	_ = s.store.UpdateUserFields(ctx, user.ID, update)
}

// Refresh rotates a refresh token: the presented token is validated
// against its server-side record, revoked, and replaced by a fresh
// pair. Presenting an already-revoked token revokes the user's whole
// refresh family.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	record, err := s.store.FindRefreshTokenByJTI(ctx, claims.ID)
	if err != nil {
		return nil, apperr.E(apperr.Unauthenticated, "refresh token not recognized")
	}
	if record.Revoked {
		// Reuse of a rotated-out token means the token leaked; cut the
		// whole family.
		_ = s.store.RevokeAllRefreshTokensForUser(ctx, record.UserID)
		s.audit.LogSecurity(ctx, audit.SecurityEvent{
			Type:     audit.SecReplayDetected,
			Severity: "high",
			UserID:   record.UserID,
			Details:  "revoked refresh token presented",
		})
		return nil, apperr.E(apperr.Unauthenticated, "refresh token revoked")
	}
	if subtle.ConstantTimeCompare([]byte(record.TokenHash), []byte(crypto.HashToken(refreshToken))) != 1 {
		return nil, apperr.E(apperr.Unauthenticated, "refresh token not recognized")
	}
	now := s.clock.Now()
	if !now.Before(record.ExpiresAt) {
		return nil, apperr.E(apperr.Unauthenticated, "refresh token expired")
	}

	user, err := s.store.FindUserByID(ctx, record.UserID)
	if err != nil || user.State != store.UserActive {
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}
	tenant, err := s.store.FindTenantByID(ctx, user.TenantID)
	if err != nil || tenant.State != store.TenantActive {
		return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
	}

	pair, err := s.tokens.GenerateTokenPair(user.ID, user.TenantID, "", user.Email)
	if err != nil {
		return nil, err
	}
	next := &store.RefreshToken{
		JTI:       pair.RefreshJTI,
		UserID:    user.ID,
		TokenHash: crypto.HashToken(pair.RefreshToken),
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
		CreatedAt: now,
	}
	if err := s.store.RotateRefreshToken(ctx, claims.ID, next); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeTokenRefreshed,
		TenantID: user.TenantID,
		ActorID:  user.ID,
	})
	return &Session{User: user, Tokens: pair}, nil
}

// Logout revokes the session: the refresh record is revoked and the
// access token's JTI is blacklisted for its remaining lifetime. A
// malformed refresh token does not fail the logout.
func (s *Service) Logout(ctx context.Context, access *token.AccessClaims, refreshToken string) error {
	if claims, err := s.tokens.ValidateRefresh(refreshToken); err == nil {
		_ = s.store.RevokeRefreshTokenByJTI(ctx, claims.ID)
	}

	ttl := s.tokens.AccessTTL()
	if access.ExpiresAt != nil {
		if remaining := access.ExpiresAt.Time.Sub(s.clock.Now()); remaining > 0 && remaining < ttl {
			ttl = remaining
		}
	}
	if err := cache.SetBlacklist(ctx, s.cache, access.ID, ttl); err != nil {
		return apperr.Wrap(apperr.Unavailable, err, "failed to blacklist access token")
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeLogout,
		TenantID: access.AppID,
		ActorID:  access.Subject,
	})
	return nil
}

// Introspection is the RFC 7662 style answer. Inactive answers carry
// no claims.
type Introspection struct {
	Active    bool   `json:"active"`
	Subject   string `json:"sub,omitempty"`
	TenantID  string `json:"tenant_id,omitempty"`
	Email     string `json:"email,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}

// Introspect reports whether an access token is live. It never
// returns an error for a bad token, only active=false.
func (s *Service) Introspect(ctx context.Context, tokenStr string) Introspection {
	claims, err := s.tokens.ValidateAccess(tokenStr)
	if err != nil {
		return Introspection{Active: false}
	}
	if revoked, err := cache.IsBlacklisted(ctx, s.cache, claims.ID); err != nil || revoked {
		return Introspection{Active: false}
	}

	out := Introspection{
		Active:    true,
		Subject:   claims.Subject,
		TenantID:  claims.AppID,
		Email:     claims.Email,
		TokenType: token.TypeAccess,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Unix()
	}
	return out
}

// issueSession mints a token pair and persists the refresh record.
func (s *Service) issueSession(ctx context.Context, user *store.User) (token.TokenPair, error) {
	pair, err := s.tokens.GenerateTokenPair(user.ID, user.TenantID, "", user.Email)
	if err != nil {
		return token.TokenPair{}, err
	}
	now := s.clock.Now()
	record := &store.RefreshToken{
		JTI:       pair.RefreshJTI,
		UserID:    user.ID,
		TokenHash: crypto.HashToken(pair.RefreshToken),
		ExpiresAt: now.Add(s.tokens.RefreshTTL()),
		CreatedAt: now,
	}
	if err := s.store.InsertRefreshToken(ctx, record); err != nil {
		return token.TokenPair{}, err
	}
	return pair, nil
}

func (s *Service) activeTenantBySlug(ctx context.Context, slug string) (*store.Tenant, error) {
	tenant, err := s.store.FindTenantBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if tenant.State != store.TenantActive {
		return nil, apperr.E(apperr.FailedPrecondition, "tenant is suspended")
	}
	return tenant, nil
}

// dummyHash keeps the not-found path as slow as the wrong-password
// path.
var dummyHash = func() string {
	h, err := crypto.DefaultPasswordHasher().Hash("dummy-password")
	if err != nil {
		return "$argon2id$v=19$m=65536,t=3,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	}
	return h
}()

func validateEmail(email string) error {
	if email == "" || len(email) > 254 {
		return apperr.E(apperr.InvalidArgument, "invalid email address")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.E(apperr.InvalidArgument, "invalid email address")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 8 {
		return apperr.E(apperr.InvalidArgument, "password must be at least 8 characters")
	}
	if len(password) > 128 {
		return apperr.E(apperr.InvalidArgument, "password must be at most 128 characters")
	}
	return nil
}
