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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates seal/open round trip, nonce freshness and
// key binding of the secret encryption.
// Scope: Unit Test
// Test Case ID: CRY-03
func TestSecretBox_RoundTrip(t *testing.T) {
	box := NewSecretBox("app-encryption-key")

	sealed, err := box.Seal("svc-secret-value")
	require.NoError(t, err)

	again, err := box.Seal("svc-secret-value")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")

	opened, err := box.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "svc-secret-value", opened)

	// Wrong key fails authentication
	other := NewSecretBox("different-key")
	_, err = other.Open(sealed)
	require.Error(t, err)

	_, err = box.Open("not-base64!!!")
	require.Error(t, err)
}
