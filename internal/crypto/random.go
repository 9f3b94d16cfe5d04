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

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// NewToken returns 256 bits of CSPRNG entropy in a URL-safe alphabet.
// Used for service secrets and opaque credentials.
func NewToken() string {
	b := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(fmt.Sprintf("csprng unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewNonce returns a 128-bit URL-safe nonce for request signing.
func NewNonce() string {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(fmt.Sprintf("csprng unavailable: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// NewOTPCode returns a numeric one-time code of the given length using
// rejection sampling so every digit is uniform.
func NewOTPCode(length int) string {
	const digits = "0123456789"
	code := make([]byte, length)
	buf := make([]byte, 1)
	for i := 0; i < length; {
		if _, err := io.ReadFull(rand.Reader, buf); err != nil {
			panic(fmt.Sprintf("csprng unavailable: %v", err))
		}
		// Reject values that would bias the modulo.
		if buf[0] >= 250 {
			continue
		}
		code[i] = digits[int(buf[0])%10]
		i++
	}
	return string(code)
}

// HashToken returns the deterministic sha256 lookup hash of a token,
// URL-safe encoded. Plaintext tokens are never stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
