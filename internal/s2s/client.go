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

// Package s2s is the outbound half of the trust fabric: an HTTP
// client that signs every request with the service's shared secret so
// the peer's signature middleware can verify it.
package s2s

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/crypto"
)

// Signature carrier headers, mirrored from the inbound middleware.
const (
	headerClientID  = "X-Client-ID"
	headerTimestamp = "X-Timestamp"
	headerNonce     = "X-Nonce"
	headerSignature = "X-Signature"
	headerRequestID = "X-Request-ID"
)

const defaultTimeout = 15 * time.Second

// Client signs outbound requests with the service credentials. The
// transport carries W3C trace context, so downstream spans join the
// caller's trace.
type Client struct {
	http     *http.Client
	clientID string
	secret   string
	clock    clockwork.Clock
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport
// is still wrapped for trace propagation.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock injects the time source for signature timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// New builds a signing client for the given service identity.
func New(clientID, secret string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: defaultTimeout},
		clientID: clientID,
		secret:   secret,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.http.Transport = otelhttp.NewTransport(base)
	return c
}

// Do signs the request and sends it. The body, if any, is read fully
// to compute the signature and restored before sending; the signature
// covers method, path, timestamp, nonce and the body hash.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, apperr.Wrap(apperr.Internal, err, "failed to read request body")
		}
		req.Body = io.NopCloser(bytes.NewReader(body))
	}

	ts := c.clock.Now().Unix()
	nonce := crypto.NewNonce()

	req.Header.Set(headerClientID, c.clientID)
	req.Header.Set(headerTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(headerNonce, nonce)
	req.Header.Set(headerSignature, crypto.SignRequest(c.secret, req.Method, req.URL.Path, ts, nonce, body))

	if req.Header.Get(headerRequestID) == "" {
		if reqID := middleware.GetReqID(req.Context()); reqID != "" {
			req.Header.Set(headerRequestID, reqID)
		}
	}

	return c.http.Do(req)
}

// Get issues a signed GET.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// PostJSON issues a signed POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, url string, payload any) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperr.Wrap(apperr.InvalidArgument, err, "failed to encode request body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Do(req)
}
