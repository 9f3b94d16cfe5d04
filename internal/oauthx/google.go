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

// Package oauthx completes external identity-provider flows. Only the
// server-side half lives here: the code arrives from the provider
// redirect and is exchanged for profile claims.
package oauthx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/trustfabric/trustfabric/internal/apperr"
)

const (
	userinfoURL     = "https://openidconnect.googleapis.com/v1/userinfo"
	exchangeTimeout = 10 * time.Second
)

// Profile is the subset of the provider's userinfo the identity layer
// needs to provision or match an account.
type Profile struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// GoogleProvider exchanges authorization codes with Google and fetches
// the userinfo document.
type GoogleProvider struct {
	config *oauth2.Config
	client *http.Client
}

// NewGoogle builds a provider for the given OAuth client. redirectURL
// must match the console registration exactly.
func NewGoogle(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		client: &http.Client{Timeout: exchangeTimeout},
	}
}

// AuthURL returns the consent-screen URL for the given state value.
// Extra options carry the PKCE challenge.
func (p *GoogleProvider) AuthURL(state string, opts ...oauth2.AuthCodeOption) string {
	return p.config.AuthCodeURL(state, append([]oauth2.AuthCodeOption{oauth2.AccessTypeOnline}, opts...)...)
}

// Exchange trades the authorization code for tokens and returns the
// userinfo profile. Both calls carry a 10 second deadline regardless
// of the caller's context.
func (p *GoogleProvider) Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)

	tok, err := p.config.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unauthenticated, err, "authorization code exchange failed")
	}
	return p.fetchProfile(ctx, tok)
}

func (p *GoogleProvider) fetchProfile(ctx context.Context, tok *oauth2.Token) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, userinfoURL, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to build userinfo request")
	}
	tok.SetAuthHeader(req)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, err, "userinfo request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.E(apperr.Unauthenticated, "userinfo returned status %d", resp.StatusCode)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, apperr.Wrap(apperr.Internal, err, "failed to decode userinfo response")
	}
	if profile.Subject == "" || profile.Email == "" {
		return nil, apperr.E(apperr.Unauthenticated, "userinfo response missing subject or email")
	}
	return &profile, nil
}
