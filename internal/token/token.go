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

// Package token mints and validates the three JWT classes the service
// issues: user access tokens, refresh tokens and service app tokens.
// The `type` claim discriminates the classes; validating a token as
// the wrong class fails. Validation deliberately does not consult the
// revocation blacklist, that is the caller's concern.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/trustfabric/trustfabric/internal/apperr"
	"github.com/trustfabric/trustfabric/internal/id"
)

const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
	TypeApp     = "app"
)

// AccessClaims is the claim set of a user access token.
type AccessClaims struct {
	AppID string `json:"app_id"`
	OrgID string `json:"org_id,omitempty"`
	Email string `json:"email"`
	Type  string `json:"type"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim set of a refresh token. Deliberately
// minimal: the server-side refresh_tokens record carries the rest.
type RefreshClaims struct {
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// AppClaims is the claim set of a service-to-service app token.
type AppClaims struct {
	ClientID        string   `json:"client_id"`
	Name            string   `json:"name"`
	Scopes          []string `json:"scopes"`
	RateLimitPerMin int      `json:"rate_limit_per_min"`
	Type            string   `json:"type"`
	jwt.RegisteredClaims
}

// Options configures a Service.
type Options struct {
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Clock      clockwork.Clock
}

// Service signs and verifies tokens with a single RS256 key pair.
type Service struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	kid        string
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      clockwork.Clock
}

// New creates a Service from an in-memory key pair. Tests use this
// with a generated key.
func New(private *rsa.PrivateKey, public *rsa.PublicKey, opts Options) *Service {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		privateKey: private,
		publicKey:  public,
		kid:        keyID(public),
		issuer:     opts.Issuer,
		audience:   opts.Audience,
		accessTTL:  opts.AccessTTL,
		refreshTTL: opts.RefreshTTL,
		clock:      clock,
	}
}

// Load reads the PEM-encoded RSA key pair from disk once at startup.
func Load(privateKeyPath, publicKeyPath string, opts Options) (*Service, error) {
	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}
	private, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	pubPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key: %w", err)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	return New(private, public, opts), nil
}

// AccessTTL reports the configured access token lifetime. Used by the
// logout path to bound the blacklist TTL.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.refreshTTL }

// GenerateAccess mints an access token for the user. orgID may be
// empty when the subject has no org scope. Returns the token string
// and its JTI.
func (s *Service) GenerateAccess(userID, tenantID, orgID, email string) (string, string, error) {
	now := s.clock.Now()
	jti := id.NewUUIDv7()
	claims := AccessClaims{
		AppID: tenantID,
		OrgID: orgID,
		Email: email,
		Type:  TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// GenerateRefresh mints a refresh token for the user. Returns the
// token string and its JTI, which keys the server-side record.
func (s *Service) GenerateRefresh(userID string) (string, string, error) {
	now := s.clock.Now()
	jti := id.NewUUIDv7()
	claims := RefreshClaims{
		Type: TypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.refreshTTL)),
		},
	}
	signed, err := s.sign(claims)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

// TokenPair is the result of a successful login or refresh rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	RefreshJTI   string
	ExpiresIn    int64
}

// GenerateTokenPair mints a matched access and refresh token.
func (s *Service) GenerateTokenPair(userID, tenantID, orgID, email string) (TokenPair, error) {
	access, _, err := s.GenerateAccess(userID, tenantID, orgID, email)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshJTI, err := s.GenerateRefresh(userID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		RefreshJTI:   refreshJTI,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

// GenerateApp mints a service-to-service app token.
func (s *Service) GenerateApp(clientID, name string, scopes []string, rateLimitPerMin int, ttl time.Duration) (string, error) {
	now := s.clock.Now()
	claims := AppClaims{
		ClientID:        clientID,
		Name:            name,
		Scopes:          scopes,
		RateLimitPerMin: rateLimitPerMin,
		Type:            TypeApp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			ID:        id.NewUUIDv7(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return s.sign(claims)
}

// ValidateAccess verifies signature, expiry and class of an access
// token. It does not check the blacklist.
func (s *Service) ValidateAccess(tokenStr string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeAccess {
		return nil, apperr.E(apperr.Unauthenticated, "unexpected token type")
	}
	return claims, nil
}

// ValidateRefresh verifies signature, expiry and class of a refresh
// token.
func (s *Service) ValidateRefresh(tokenStr string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeRefresh {
		return nil, apperr.E(apperr.Unauthenticated, "unexpected token type")
	}
	return claims, nil
}

// ValidateApp verifies signature, expiry and class of an app token.
func (s *Service) ValidateApp(tokenStr string) (*AppClaims, error) {
	claims := &AppClaims{}
	if err := s.parse(tokenStr, claims); err != nil {
		return nil, err
	}
	if claims.Type != TypeApp {
		return nil, apperr.E(apperr.Unauthenticated, "unexpected token type")
	}
	return claims, nil
}

func (s *Service) sign(claims jwt.Claims) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = s.kid
	signed, err := tok.SignedString(s.privateKey)
	if err != nil {
		return "", apperr.Wrap(apperr.Internal, err, "failed to sign token")
	}
	return signed, nil
}

func (s *Service) parse(tokenStr string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.publicKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return apperr.E(apperr.Unauthenticated, "token expired")
		}
		return apperr.Wrap(apperr.Unauthenticated, err, "invalid token")
	}
	return nil
}
