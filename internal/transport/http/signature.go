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
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/trustfabric/trustfabric/internal/audit"
	"github.com/trustfabric/trustfabric/internal/cache"
	"github.com/trustfabric/trustfabric/internal/crypto"
	"github.com/trustfabric/trustfabric/internal/ratelimit"
)

// Signature carrier headers. Query parameters of the same lowercased
// names are accepted as a fallback for clients that cannot set
// headers.
const (
	headerClientID  = "X-Client-ID"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerSignature = "X-Signature"
)

const (
	// maxSkew bounds the accepted clock drift on signed requests.
	maxSkew = 60 * time.Second
	// nonceTTL must cover at least twice the skew window so a replay
	// inside the window always finds its nonce claimed.
	nonceTTL = 120 * time.Second
	// denyTTL backs off repeated lookups of unknown or disabled
	// clients.
	denyTTL = 30 * time.Second

	maxSignedBody = 1 << 20
)

// signatureExempt prefixes skip verification: operational endpoints,
// key discovery, and browser-redirect flows that cannot carry
// signature headers.
var signatureExempt = []string{
	"/health",
	"/ready",
	"/metrics",
	"/.well-known/",
	"/api/v1/auth/oauth/",
}

// SignatureMiddleware verifies service-to-service HMAC signatures.
// When signatures are not required, unsigned requests pass through
// untouched; a presented signature is always verified. The nonce is
// claimed before the signature check so a failed probe still burns
// it.
func (h *Handler) SignatureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range signatureExempt {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		clientID := headerOrQuery(r, headerClientID)
		signature := headerOrQuery(r, headerSignature)
		if clientID == "" && signature == "" {
			if h.cfg.RequireSignatures {
				h.metrics.SignatureCheck("missing")
				respondMessage(w, http.StatusUnauthorized, "request signature required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		tsRaw := headerOrQuery(r, headerTimestamp)
		nonce := headerOrQuery(r, headerNonce)
		if clientID == "" || signature == "" || tsRaw == "" || nonce == "" {
			h.rejectSignature(w, r, clientID, "incomplete signature headers")
			return
		}

		ts, err := strconv.ParseInt(tsRaw, 10, 64)
		if err != nil {
			h.rejectSignature(w, r, clientID, "malformed timestamp")
			return
		}
		now := h.clock.Now()
		if d := now.Sub(time.Unix(ts, 0)); d > maxSkew || d < -maxSkew {
			h.rejectSignature(w, r, clientID, "timestamp outside accepted window")
			return
		}

		// Claim the nonce before verifying. The claim sticks even when
		// the signature turns out bad.
		fresh, err := cache.ClaimNonce(r.Context(), h.cache, nonce, nonceTTL)
		if err != nil {
			respondMessage(w, http.StatusServiceUnavailable, "replay store unavailable")
			return
		}
		if !fresh {
			h.metrics.SignatureCheck("replay")
			h.audit.LogSecurity(r.Context(), audit.SecurityEvent{
				Type:     audit.SecReplayDetected,
				Severity: "high",
				IP:       ratelimit.ClientIP(r),
				Path:     r.URL.Path,
				Method:   r.Method,
				Details:  "nonce reuse by client " + clientID,
			})
			respondMessage(w, http.StatusUnauthorized, "nonce already used")
			return
		}

		if denied, _ := h.cache.Exists(r.Context(), cache.PrefixSvcAuth+"deny:"+clientID); denied {
			h.rejectSignature(w, r, clientID, "unknown or disabled client")
			return
		}

		_, secrets, err := h.services.SigningSecrets(r.Context(), clientID)
		if err != nil {
			_ = h.cache.SetWithTTL(r.Context(), cache.PrefixSvcAuth+"deny:"+clientID, "1", denyTTL)
			h.rejectSignature(w, r, clientID, "unknown or disabled client")
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
		if err != nil || len(body) > maxSignedBody {
			h.rejectSignature(w, r, clientID, "unreadable or oversized body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ok := false
		for _, secret := range secrets {
			if crypto.VerifyRequest(secret, r.Method, r.URL.Path, ts, nonce, body, signature) {
				ok = true
				break
			}
		}
		if !ok {
			h.rejectSignature(w, r, clientID, "signature mismatch")
			return
		}

		h.metrics.SignatureCheck("valid")
		next.ServeHTTP(w, r.WithContext(withServiceKey(r.Context(), clientID)))
	})
}

func (h *Handler) rejectSignature(w http.ResponseWriter, r *http.Request, clientID, details string) {
	h.metrics.SignatureCheck("invalid")
	h.audit.LogSecurity(r.Context(), audit.SecurityEvent{
		Type:     audit.SecBadSignature,
		Severity: "medium",
		IP:       ratelimit.ClientIP(r),
		Path:     r.URL.Path,
		Method:   r.Method,
		Details:  details + " (client " + clientID + ")",
	})
	respondMessage(w, http.StatusUnauthorized, "invalid request signature")
}

func headerOrQuery(r *http.Request, header string) string {
	if v := r.Header.Get(header); v != "" {
		return v
	}
	name := strings.ToLower(strings.TrimPrefix(header, "X-"))
	name = strings.ReplaceAll(name, "-", "_")
	return r.URL.Query().Get(name)
}
