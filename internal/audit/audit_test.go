package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustfabric/trustfabric/internal/store/memory"
)

// TestPurpose: Validates that sensitive keys are correctly identified as secrets to prevent them from being logged in plaintext.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Expected: Returns true for keys containing 'password', 'token', 'secret', etc., and false for non-sensitive keys.
// Test Case ID: AUD-01
func TestAudit_IsSecret(t *testing.T) {
	tests := []struct {
		key      string
		isSecret bool
	}{
		{"password", true},
		{"Password", true},
		{"PASSWORD", true},
		{"token", true},
		{"access_token", true},
		{"secret", true},
		{"api_key", true},
		{"hash", true},
		{"password_hash", true},
		{"credential", true},
		{"private_key", true},
		{"user_id", false},
		{"tenant_id", false},
		{"email", false},
		{"status", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isSecret(tt.key); got != tt.isSecret {
				t.Errorf("isSecret(%q) = %v, want %v", tt.key, got, tt.isSecret)
			}
		})
	}
}

// TestPurpose: Validates that persisted audit events carry redacted
// metadata and the actor/tenant references.
// Scope: Unit Test
// Security: Data Masking and Leakage Prevention (CWE-532)
// Test Case ID: AUD-02
func TestAudit_PersistsRedacted(t *testing.T) {
	st := memory.New()
	rec := New(st)

	rec.Log(context.Background(), Event{
		Type:     TypeLoginSuccess,
		TenantID: "tenant-1",
		ActorID:  "user-1",
		Metadata: map[string]any{
			"email":         "alice@example.com",
			"refresh_token": "super-sensitive",
		},
	})

	events := st.AuditEvents()
	require.Len(t, events, 1)
	e := events[0]
	assert.Equal(t, TypeLoginSuccess, e.EventTypeCode)
	require.NotNil(t, e.TenantID)
	assert.Equal(t, "tenant-1", *e.TenantID)
	require.NotNil(t, e.ActorUserID)
	assert.Equal(t, "user-1", *e.ActorUserID)
	assert.Equal(t, "alice@example.com", e.EventData["email"])
	assert.Equal(t, "[REDACTED]", e.EventData["refresh_token"])
}

func TestAudit_SecurityEvent(t *testing.T) {
	st := memory.New()
	rec := New(st)

	rec.LogSecurity(context.Background(), SecurityEvent{
		Type:     SecReplayDetected,
		Severity: "high",
		IP:       "203.0.113.7",
		Path:     "/api/v1/internal/sync",
		Method:   "POST",
		Details:  "nonce reuse",
	})

	events := st.SecurityEvents()
	require.Len(t, events, 1)
	assert.Equal(t, SecReplayDetected, events[0].EventType)
	assert.Equal(t, "high", events[0].Severity)
}
