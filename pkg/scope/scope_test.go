/*
 * Copyright 2026 Hearthlab.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodePrimaryPassesThrough(t *testing.T) {
	assert.Equal(t, "light.kitchen", Encode("light.kitchen", "primary", "primary"))
}

func TestEncodeScopesNonPrimary(t *testing.T) {
	assert.Equal(t, "light.kitchen@@cabin", Encode("light.kitchen", "cabin", "primary"))
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name         string
		entityID     string
		connectionID string
	}{
		{"non-primary", "light.kitchen", "cabin"},
		{"non-primary with dots", "sensor.outdoor.temp", "garage"},
		{"primary", "switch.porch", "primary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded := Encode(tt.entityID, tt.connectionID, "primary")
			addr := Decode(encoded, "primary")
			assert.Equal(t, tt.entityID, addr.Entity)
			assert.Equal(t, tt.connectionID, addr.Owner)
		})
	}
}

func TestDecodeBareBelongsToPrimary(t *testing.T) {
	addr := Decode("climate.hall", "primary")
	assert.Equal(t, "climate.hall", addr.Entity)
	assert.Equal(t, "primary", addr.Owner)
	assert.False(t, addr.Scoped("primary"))
}

func TestDecodeSplitsOnLastDelimiter(t *testing.T) {
	// A stored value that was double-encoded still resolves to the
	// outermost owner.
	addr := Decode("light.kitchen@@cabin@@attic", "primary")
	assert.Equal(t, "light.kitchen@@cabin", addr.Entity)
	assert.Equal(t, "attic", addr.Owner)
}

func TestDecodeNormalizesOwnerSegment(t *testing.T) {
	addr := Decode("light.kitchen@@Cabin Loft", "primary")
	assert.Equal(t, "cabin-loft", addr.Owner)
}

func TestAddressStringInvertsDecode(t *testing.T) {
	addr := Address{Entity: "light.kitchen", Owner: "cabin"}
	assert.Equal(t, "light.kitchen@@cabin", addr.String("primary"))
	assert.Equal(t, addr, Decode(addr.String("primary"), "primary"))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("light.kitchen"))
	assert.False(t, Valid("light.kitchen@@cabin"))
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Primary", "primary"},
		{"Cabin Loft", "cabin-loft"},
		{"  home_2  ", "home_2"},
		{"!!!", "connection"},
		{"", "connection"},
		{"Ümlaut", "mlaut"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeID(tt.in), "input %q", tt.in)
	}
}
