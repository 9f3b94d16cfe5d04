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

// Package audit records business and security audit events. Events
// go to the structured log (with secret redaction) and, when a store
// is attached, to the append-only audit tables. Audit failures never
// fail the request that produced them.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

// Event types
const (
	TypeLoginSuccess     = "login_success"
	TypeLoginFailed      = "login_failed"
	TypeTokenRefreshed   = "token_refreshed"
	TypeLogout           = "logout"
	TypeUserCreated      = "user_created"
	TypeUserUpdated      = "user_updated"
	TypeUserLocked       = "user_locked"
	TypePasswordChanged  = "password_changed"
	TypeOTPSent          = "otp_sent"
	TypeOTPVerified      = "otp_verified"
	TypeSocialLogin      = "social_login"
	TypeTenantCreated    = "tenant_created"
	TypeTenantSuspended  = "tenant_suspended"
	TypeOrgNodeCreated   = "org_node_created"
	TypeRoleCreated      = "role_created"
	TypeRoleAssigned     = "role_assigned"
	TypeRoleRevoked      = "role_revoked"
	TypeVisibilityGrant  = "visibility_granted"
	TypeVisibilityRevoke = "visibility_revoked"
	TypeServiceCreated   = "service_created"
	TypeSecretRotated    = "secret_rotated"
	TypeServiceDisabled  = "service_disabled"
	TypeBootstrap        = "bootstrap"
)

// Security event types
const (
	SecCrossTenantAttempt = "cross_tenant_attempt"
	SecBruteForce         = "brute_force"
	SecReplayDetected     = "replay_detected"
	SecBadSignature       = "bad_signature"
	SecBadAdminKey        = "bad_admin_key"
	SecDisabledOrgAccess  = "disabled_org_access"
)

// Event represents an auditable action
type Event struct {
	Type       string
	TenantID   string
	ActorID    string
	ActorSvcID string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
	Timestamp  time.Time
}

// SecurityEvent represents a security-relevant observation
type SecurityEvent struct {
	Type     string
	Severity string
	TenantID string
	UserID   string
	IP       string
	Path     string
	Method   string
	Details  string
}

// Logger defines the interface for audit logging
type Logger interface {
	Log(ctx context.Context, event Event)
	LogSecurity(ctx context.Context, event SecurityEvent)
}

// Recorder implements Logger over slog plus an optional store.
type Recorder struct {
	store store.Store
}

// New creates a Recorder. store may be nil; events then go to the
// log only.
func New(st store.Store) *Recorder {
	return &Recorder{store: st}
}

// Log records an audit event
func (r *Recorder) Log(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	attrs := []any{
		slog.String("audit_type", event.Type),
		slog.String("tenant_id", event.TenantID),
		slog.String("actor_id", event.ActorID),
		slog.Time("timestamp", event.Timestamp),
	}
	if event.TargetID != "" {
		attrs = append(attrs, slog.String("target_id", event.TargetID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}

	// Flatten metadata, redacting secrets
	if len(event.Metadata) > 0 {
		group := []any{}
		for k, v := range event.Metadata {
			if isSecret(k) {
				v = "[REDACTED]"
			}
			group = append(group, slog.Any(k, v))
		}
		attrs = append(attrs, slog.Group("metadata", group...))
	}

	slog.InfoContext(ctx, "AUDIT_EVENT", append(attrs, slog.String("component", "audit"))...)

	if r.store == nil {
		return
	}
	rec := &store.AuditEvent{
		ID:            id.NewUUIDv7(),
		EventTypeCode: event.Type,
		EventData:     redactMap(event.Metadata),
		CreatedAt:     event.Timestamp,
	}
	if event.TenantID != "" {
		rec.TenantID = &event.TenantID
	}
	if event.ActorID != "" {
		rec.ActorUserID = &event.ActorID
	}
	if event.ActorSvcID != "" {
		rec.ActorSvcID = &event.ActorSvcID
	}
	if event.TargetType != "" {
		rec.TargetType = &event.TargetType
	}
	if event.TargetID != "" {
		rec.TargetID = &event.TargetID
	}
	if event.IPAddress != "" {
		rec.IP = &event.IPAddress
	}
	if event.UserAgent != "" {
		rec.UserAgent = &event.UserAgent
	}
	if err := r.store.InsertAuditEvent(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to persist audit event",
			slog.String("audit_type", event.Type), slog.String("error", err.Error()))
	}
}

// LogSecurity records a security event
func (r *Recorder) LogSecurity(ctx context.Context, event SecurityEvent) {
	slog.WarnContext(ctx, "SECURITY_EVENT",
		slog.String("event_type", event.Type),
		slog.String("severity", event.Severity),
		slog.String("tenant_id", event.TenantID),
		slog.String("user_id", event.UserID),
		slog.String("ip", event.IP),
		slog.String("path", event.Path),
		slog.String("method", event.Method),
		slog.String("details", event.Details),
		slog.String("component", "audit"),
	)

	if r.store == nil {
		return
	}
	rec := &store.SecurityEvent{
		ID:        id.NewUUIDv7(),
		EventType: event.Type,
		Severity:  event.Severity,
		IP:        event.IP,
		Path:      event.Path,
		Method:    event.Method,
		Details:   event.Details,
	}
	if event.TenantID != "" {
		rec.TenantID = &event.TenantID
	}
	if event.UserID != "" {
		rec.UserID = &event.UserID
	}
	if err := r.store.InsertSecurityEvent(ctx, rec); err != nil {
		slog.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_type", event.Type), slog.String("error", err.Error()))
	}
}

func redactMap(m map[string]any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isSecret(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}

// isSecret checks if a key likely contains a secret
func isSecret(key string) bool {
	k := strings.ToLower(key)
	needles := []string{"password", "secret", "token", "key", "hash", "credential", "authorization"}
	for _, n := range needles {
		if strings.Contains(k, n) {
			return true
		}
	}
	return false
}
