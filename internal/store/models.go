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

// Package store defines the persistent entities of the identity plane
// and the single interface every handler goes through. Two
// implementations exist: postgres for deployments, memory for test
// harnesses.
package store

import "time"

// Tenant states
const (
	TenantActive    = "active"
	TenantSuspended = "suspended"
)

// User states
const (
	UserActive      = "active"
	UserSuspended   = "suspended"
	UserDeactivated = "deactivated"
)

// Service account states
const (
	ServiceActive   = "active"
	ServiceDisabled = "disabled"
)

// OTP channels
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

// OTP purposes
const (
	PurposeLogin         = "login"
	PurposeVerifyEmail   = "verify_email"
	PurposeVerifyPhone   = "verify_phone"
	PurposeResetPassword = "reset_password"
)

// Visibility access scopes
const (
	ScopeRead  = "read"
	ScopeWrite = "write"
	ScopeAdmin = "admin"
)

// Tenant is the top-level isolation unit. Never deleted while
// referenced; suspension cuts off every user in it.
type Tenant struct {
	ID        string
	Slug      string
	Label     string
	State     string
	CreatedAt time.Time
}

// OrgNode is a node in the per-tenant forest. Assignments are rooted
// at org nodes. An inactive node accepts no new assignments but
// extant ones keep working until their end time.
type OrgNode struct {
	ID        string
	TenantID  string
	ParentID  *string
	TypeCode  string
	Label     string
	Active    bool
	CreatedAt time.Time
}

// Role is a tenant-scoped bundle of capabilities.
type Role struct {
	ID        string
	TenantID  string
	Label     string
	CreatedAt time.Time
}

// Capability is a globally-keyed permission. Keys have the shape
// "domain.subject:verb"; the literal "*" is the superadmin wildcard.
type Capability struct {
	ID        string
	Key       string
	CreatedAt time.Time
}

// User belongs to exactly one tenant. PasswordHash is nil for
// social-only users. (TenantID, EmailLower) is unique.
type User struct {
	ID           string
	TenantID     string
	Email        string
	EmailLower   string
	PasswordHash *string
	DisplayName  *string
	Verified     bool
	State        string
	SocialID     *string

	FailedLoginAttempts int
	LockedUntil         *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserUpdate is a partial update of mutable user fields; nil means
// leave unchanged.
type UserUpdate struct {
	Email               *string
	DisplayName         *string
	PasswordHash        *string
	Verified            *bool
	State               *string
	SocialID            *string
	FailedLoginAttempts *int
	LockedUntil         *time.Time
	ClearLockedUntil    bool
}

// OrgAssignment binds (user, role, org node) over a time window. It
// is active at t iff StartAt <= t and (EndAt is nil or t < EndAt).
type OrgAssignment struct {
	ID        string
	TenantID  string
	UserID    string
	OrgNodeID string
	RoleID    string
	StartAt   time.Time
	EndAt     *time.Time
}

// ActiveAt reports whether the assignment window covers t.
func (a *OrgAssignment) ActiveAt(t time.Time) bool {
	if t.Before(a.StartAt) {
		return false
	}
	return a.EndAt == nil || t.Before(*a.EndAt)
}

// VisibilityGrant is a data-read scope, orthogonal to capability
// checks.
type VisibilityGrant struct {
	ID          string
	TenantID    string
	UserID      string
	OrgNodeID   string
	AccessScope string
	StartAt     time.Time
	EndAt       *time.Time
}

// ActiveAt reports whether the grant window covers t.
func (g *VisibilityGrant) ActiveAt(t time.Time) bool {
	if t.Before(g.StartAt) {
		return false
	}
	return g.EndAt == nil || t.Before(*g.EndAt)
}

// RefreshToken is the server-side record of an issued refresh token,
// keyed by JTI. The token string is never stored, only its hash.
type RefreshToken struct {
	JTI       string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// OTP is a one-time passcode record. At most one active OTP exists
// per (tenant, destination, purpose).
type OTP struct {
	ID          string
	TenantID    string
	Destination string
	Channel     string
	Purpose     string
	CodeHash    string
	Attempts    int
	MaxAttempts int
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
	CreatedAt   time.Time
}

// ServiceAccount is a machine identity for signed service-to-service
// calls. TenantID is nil for platform-level services.
// RateLimitPerMin caps calls made with the service's app tokens; 0
// means unlimited.
type ServiceAccount struct {
	ID              string
	TenantID        *string
	Key             string
	Label           string
	State           string
	RateLimitPerMin int
	CreatedAt       time.Time
}

// SecretMaterial is the stored form of one service secret: an
// encrypted copy for HMAC verification, a password-grade hash, and a
// deterministic lookup hash.
type SecretMaterial struct {
	Enc        string
	Hash       string
	LookupHash string
}

// ServiceSecret holds a service's current secret material plus the
// previous generation during the rotation grace window. A previous
// secret is never accepted after PrevExpiresAt.
type ServiceSecret struct {
	ID        string
	ServiceID string

	SecretEnc  string
	SecretHash string
	LookupHash string

	PrevSecretEnc  *string
	PrevSecretHash *string
	PrevLookupHash *string
	PrevExpiresAt  *time.Time

	CreatedAt time.Time
	RevokedAt *time.Time
}

// AuditEvent is an append-only business audit record.
type AuditEvent struct {
	ID            string
	TenantID      *string
	ActorUserID   *string
	ActorSvcID    *string
	EventTypeCode string
	TargetType    *string
	TargetID      *string
	EventData     map[string]any
	IP            *string
	UserAgent     *string
	CreatedAt     time.Time
}

// SecurityEvent is an append-only security audit record covering
// cross-tenant attempts, disabled-org access, brute force and the
// like.
type SecurityEvent struct {
	ID        string
	EventType string
	Severity  string
	TenantID  *string
	UserID    *string
	IP        string
	Path      string
	Method    string
	Details   string
	CreatedAt time.Time
}
