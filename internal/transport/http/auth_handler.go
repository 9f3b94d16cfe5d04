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

package http

import (
	"net/http"

	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/identity"
	"github.com/trustfabric/trustfabric/internal/ratelimit"
	"github.com/trustfabric/trustfabric/internal/store"
	"github.com/trustfabric/trustfabric/internal/token"
)

// RegisterRequest represents registration data
type RegisterRequest struct {
	Tenant      string `json:"tenant"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// Register handles user registration in a tenant. A created account
// is immediately signed in.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.identity.Register(r.Context(), req.Tenant, req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.metrics.AuthEvent("register", "failure")
		respondError(w, r, err)
		return
	}

	h.metrics.AuthEvent("register", "success")
	h.metrics.TokenIssued(token.TypeAccess)
	h.metrics.TokenIssued(token.TypeRefresh)
	respondSession(w, http.StatusCreated, session)
}

// LoginRequest represents login credentials
type LoginRequest struct {
	Tenant   string `json:"tenant"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles password login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.identity.Login(r.Context(), req.Tenant, req.Email, req.Password, ratelimit.ClientIP(r))
	if err != nil {
		h.metrics.AuthEvent("login", "failure")
		respondError(w, r, err)
		return
	}

	h.metrics.AuthEvent("login", "success")
	h.metrics.TokenIssued(token.TypeAccess)
	h.metrics.TokenIssued(token.TypeRefresh)
	respondSession(w, http.StatusOK, session)
}

// RefreshRequest carries the refresh token to rotate.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh rotates a refresh token into a fresh pair.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.identity.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.metrics.AuthEvent("refresh", "failure")
		respondError(w, r, err)
		return
	}

	h.metrics.AuthEvent("refresh", "success")
	h.metrics.TokenIssued(token.TypeAccess)
	h.metrics.TokenIssued(token.TypeRefresh)
	respondSession(w, http.StatusOK, session)
}

// LogoutRequest carries the refresh token to revoke alongside the
// bearer access token.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the current session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	claims := GetAccessClaims(r.Context())
	if claims == nil {
		respondMessage(w, http.StatusBadRequest, "logout requires a bearer access token")
		return
	}
	if err := h.identity.Logout(r.Context(), claims, req.RefreshToken); err != nil {
		respondError(w, r, err)
		return
	}

	h.metrics.TokenRevoked()
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// IntrospectRequest carries the token to inspect.
type IntrospectRequest struct {
	Token string `json:"token"`
}

// Introspect reports token liveness; bad tokens answer active=false.
func (h *Handler) Introspect(w http.ResponseWriter, r *http.Request) {
	var req IntrospectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	respondJSON(w, http.StatusOK, h.identity.Introspect(r.Context(), req.Token))
}

// OTPSendRequest asks for a one-time code.
type OTPSendRequest struct {
	Tenant      string `json:"tenant"`
	Destination string `json:"destination"`
	Channel     string `json:"channel"`
	Purpose     string `json:"purpose"`
}

// SendOTP issues a one-time code. The response names the code record
// so the verify call can reference it; the code itself only travels
// over the dispatch channel.
func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPSendRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	issued, err := h.identity.SendOTP(r.Context(), req.Tenant, req.Destination, req.Channel, req.Purpose)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"otp_id":     issued.ID,
		"expires_in": int64(issued.TTL.Seconds()),
	})
}

// OTPVerifyRequest verifies a one-time code.
type OTPVerifyRequest struct {
	OTPID string `json:"otp_id"`
	Code  string `json:"code"`
}

// VerifyOTP checks a code; login-purpose success answers with a
// session.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req OTPVerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	session, err := h.identity.VerifyOTP(r.Context(), req.OTPID, req.Code)
	if err != nil {
		h.metrics.AuthEvent("otp_verify", "failure")
		respondError(w, r, err)
		return
	}

	h.metrics.AuthEvent("otp_verify", "success")
	if session != nil {
		respondSession(w, http.StatusOK, session)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "verified"})
}

// GoogleStart redirects the browser to the provider consent screen.
// The state and its PKCE verifier are held server-side until the
// callback returns.
func (h *Handler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = crypto.NewNonce()
	}
	url, err := h.identity.GoogleAuthURL(r.Context(), state)
	if err != nil {
		respondError(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// GoogleCallback completes the provider redirect. The tenant slug
// rides in the query because the provider echoes the redirect URL
// parameters back; the state must match a pending start.
func (h *Handler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	session, err := h.identity.CompleteGoogle(r.Context(), q.Get("tenant"), q.Get("code"), q.Get("state"))
	if err != nil {
		h.metrics.AuthEvent("social_login", "failure")
		respondError(w, r, err)
		return
	}

	h.metrics.AuthEvent("social_login", "success")
	respondSession(w, http.StatusOK, session)
}

// Bootstrap seeds the first tenant and superadmin.
func (h *Handler) Bootstrap(w http.ResponseWriter, r *http.Request) {
	var req identity.BootstrapRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.identity.Bootstrap(r.Context(), req)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"tenant_id":     result.Tenant.ID,
		"tenant_slug":   result.Tenant.Slug,
		"admin_user_id": result.Admin.ID,
		"access_token":  result.Session.Tokens.AccessToken,
		"refresh_token": result.Session.Tokens.RefreshToken,
		"expires_in":    result.Session.Tokens.ExpiresIn,
	})
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	user, err := h.identity.Me(r.Context(), subject.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, userView(user))
}

// UpdateProfileRequest carries the mutable profile fields.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// UpdateProfile changes the caller's display name.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	user, err := h.identity.UpdateProfile(r.Context(), subject.UserID, req.DisplayName)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, userView(user))
}

// ChangePasswordRequest carries the password rotation pair.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword rotates the caller's password and revokes their
// refresh tokens.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	subject := GetSubject(r.Context())
	if err := h.identity.ChangePassword(r.Context(), subject.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}

// MyPermissions returns the caller's capability set and scope nodes.
func (h *Handler) MyPermissions(w http.ResponseWriter, r *http.Request) {
	subject := GetSubject(r.Context())
	authCtx, err := h.engine.GetAuthContext(r.Context(), subject.UserID, subject.TenantID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	caps := make([]string, 0, len(authCtx.Capabilities))
	for key := range authCtx.Capabilities {
		caps = append(caps, key)
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"capabilities": caps,
		"scope_nodes":  authCtx.ScopeNodes,
	})
}

func respondSession(w http.ResponseWriter, status int, session *identity.Session) {
	respondJSON(w, status, map[string]any{
		"user_id":       session.User.ID,
		"email":         session.User.Email,
		"access_token":  session.Tokens.AccessToken,
		"refresh_token": session.Tokens.RefreshToken,
		"token_type":    "Bearer",
		"expires_in":    session.Tokens.ExpiresIn,
	})
}

func userView(u *store.User) map[string]any {
	view := map[string]any{
		"user_id":   u.ID,
		"tenant_id": u.TenantID,
		"email":     u.Email,
		"verified":  u.Verified,
		"state":     u.State,
	}
	if u.DisplayName != nil {
		view["display_name"] = *u.DisplayName
	}
	return view
}
