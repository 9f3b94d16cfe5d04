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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// SignRequest computes the HMAC-SHA256 signature of a service-to-service
// request. The canonical payload is
//
//	method|path|unix_timestamp|nonce|hex(sha256(body))
//
// and the signature is hex-encoded. Pure and side-effect-free.
func SignRequest(secret, method, path string, timestamp int64, nonce string, body []byte) string {
	bodyHash := sha256.Sum256(body)
	payload := fmt.Sprintf("%s|%s|%d|%s|%s", method, path, timestamp, nonce, hex.EncodeToString(bodyHash[:]))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyRequest reports whether signature matches the canonical payload
// under secret. Comparison is constant-time.
func VerifyRequest(secret, method, path string, timestamp int64, nonce string, body []byte, signature string) bool {
	expected := SignRequest(secret, method, path, timestamp, nonce, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignDocument computes the MAC that authorizes a time-limited document
// content URL: .../documents/{id}/content?signature={mac}&expires={exp}.
func SignDocument(secret, documentID string, expiresUnix int64) string {
	payload := fmt.Sprintf("document:%s:%d", documentID, expiresUnix)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyDocument checks a document MAC in constant time. Expiry is the
// caller's concern; this only binds (id, expires) to the secret.
func VerifyDocument(secret, documentID string, expiresUnix int64, signature string) bool {
	expected := SignDocument(secret, documentID, expiresUnix)
	return hmac.Equal([]byte(expected), []byte(signature))
}
