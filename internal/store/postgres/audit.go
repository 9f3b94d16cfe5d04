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

package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/trustfabric/trustfabric/internal/store"
)

func (s *Store) InsertAuditEvent(ctx context.Context, e *store.AuditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var eventData []byte
	if e.EventData != nil {
		var err error
		eventData, err = json.Marshal(e.EventData)
		if err != nil {
			return wrapErr(err, "")
		}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, tenant_id, actor_user_id, actor_svc_id,
			event_type_code, target_type, target_id, event_data, ip, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.TenantID, e.ActorUserID, e.ActorSvcID,
		e.EventTypeCode, e.TargetType, e.TargetID, eventData, e.IP, e.UserAgent, e.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}

func (s *Store) InsertSecurityEvent(ctx context.Context, e *store.SecurityEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_events (id, event_type, severity, tenant_id, user_id,
			ip, path, method, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, e.ID, e.EventType, e.Severity, e.TenantID, e.UserID,
		e.IP, e.Path, e.Method, e.Details, e.CreatedAt)
	if err != nil {
		return wrapErr(err, "")
	}
	return nil
}
