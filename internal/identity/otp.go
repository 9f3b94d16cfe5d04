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
	"crypto/subtle"
	"log/slog"
	"strings"
	"time"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/id"
	"github.com/trustfabric/trustfabric/internal/store"
)

// OTPLength is the digit count of issued codes.
const OTPLength = 6

// Dispatcher delivers a one-time code over a channel. Implementations
// must not log the code.
type Dispatcher interface {
	Dispatch(ctx context.Context, channel, destination, code string) error
}

// LogDispatcher is the development dispatcher: it logs that a code
// was issued without the code itself. Real deployments plug in an
// email or SMS gateway.
type LogDispatcher struct{}

// Dispatch implements Dispatcher.
func (d *LogDispatcher) Dispatch(ctx context.Context, channel, destination, code string) error {
	slog.InfoContext(ctx, "otp dispatched",
		slog.String("channel", channel),
		slog.String("destination", destination),
		slog.Int("code_length", len(code)),
	)
	return nil
}

// OTPIssued identifies a sent code. The ID comes back on verify; the
// code itself only travels over the dispatch channel.
type OTPIssued struct {
	ID        string
	ExpiresAt time.Time
	TTL       time.Duration
}

// SendOTP issues a one-time code. At most one active code exists per
// (tenant, destination, purpose); sending while one is active fails
// with already_exists.
func (s *Service) SendOTP(ctx context.Context, tenantSlug, destination, channel, purpose string) (*OTPIssued, error) {
	switch channel {
	case store.ChannelEmail, store.ChannelSMS, store.ChannelWhatsApp:
	default:
		return nil, apperr.E(apperr.InvalidArgument, "unknown channel %q", channel)
	}
	switch purpose {
	case store.PurposeLogin, store.PurposeVerifyEmail, store.PurposeVerifyPhone, store.PurposeResetPassword:
	default:
		return nil, apperr.E(apperr.InvalidArgument, "unknown purpose %q", purpose)
	}
	if destination == "" {
		return nil, apperr.E(apperr.InvalidArgument, "destination is required")
	}

	tenant, err := s.activeTenantBySlug(ctx, tenantSlug)
	if err != nil {
		return nil, err
	}

	code := crypto.NewOTPCode(OTPLength)
	now := s.clock.Now()
	otp := &store.OTP{
		ID:          id.NewUUIDv7(),
		TenantID:    tenant.ID,
		Destination: strings.ToLower(destination),
		Channel:     channel,
		Purpose:     purpose,
		CodeHash:    crypto.HashToken(code),
		MaxAttempts: s.cfg.OTPMaxAttempts,
		ExpiresAt:   now.Add(s.cfg.OTPTTL),
		CreatedAt:   now,
	}
	if err := s.store.InsertOTP(ctx, otp); err != nil {
		return nil, err
	}
	if err := s.dispatcher.Dispatch(ctx, channel, destination, code); err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "failed to dispatch code")
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeOTPSent,
		TenantID: tenant.ID,
		Metadata: map[string]any{"channel": channel, "purpose": purpose},
	})
	return &OTPIssued{ID: otp.ID, ExpiresAt: otp.ExpiresAt, TTL: s.cfg.OTPTTL}, nil
}

// VerifyOTP checks a code against the record named by otpID. The
// attempt is counted before comparison, so guessing burns tries even
// on mismatch. A login-purpose verification returns a session; other
// purposes return nil.
func (s *Service) VerifyOTP(ctx context.Context, otpID, code string) (*Session, error) {
	if otpID == "" || code == "" {
		return nil, apperr.E(apperr.InvalidArgument, "otp_id and code are required")
	}

	otp, err := s.store.FindOTPByID(ctx, otpID)
	switch {
	case apperr.Is(err, apperr.NotFound):
		return nil, apperr.E(apperr.Unauthenticated, "invalid or expired code")
	case err != nil:
		return nil, err
	}

	now := s.clock.Now()
	if otp.ConsumedAt != nil || otp.Attempts >= otp.MaxAttempts || !now.Before(otp.ExpiresAt) {
		return nil, apperr.E(apperr.Unauthenticated, "invalid or expired code")
	}

	tenant, err := s.store.FindTenantByID(ctx, otp.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant.State != store.TenantActive {
		return nil, apperr.E(apperr.FailedPrecondition, "tenant is suspended")
	}

	if err := s.store.IncrementOTPAttempts(ctx, otp.ID); err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(otp.CodeHash), []byte(crypto.HashToken(code))) != 1 {
		return nil, apperr.E(apperr.Unauthenticated, "invalid or expired code")
	}
	if err := s.store.ConsumeOTP(ctx, otp.ID, now); err != nil {
		return nil, err
	}

	s.audit.Log(ctx, audit.Event{
		Type:     audit.TypeOTPVerified,
		TenantID: tenant.ID,
		Metadata: map[string]any{"purpose": otp.Purpose},
	})

	switch otp.Purpose {
	case store.PurposeLogin:
		user, err := s.store.FindUserByTenantAndEmail(ctx, tenant.ID, otp.Destination)
		if err != nil || user.State != store.UserActive {
			return nil, apperr.E(apperr.Unauthenticated, msgInvalidCredentials)
		}
		pair, err := s.issueSession(ctx, user)
		if err != nil {
			return nil, err
		}
		return &Session{User: user, Tokens: pair}, nil

	case store.PurposeVerifyEmail:
		if user, err := s.store.FindUserByTenantAndEmail(ctx, tenant.ID, otp.Destination); err == nil {
			verified := true
			_ = s.store.UpdateUserFields(ctx, user.ID, store.UserUpdate{Verified: &verified})
		}
	}
	return nil, nil
}
