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

// Package scope encodes which hub connection owns an entity id. Entities
// from the primary connection keep their bare id; every other connection's
// entities carry an "@@<connection-id>" suffix.
package scope

import "strings"

// Delimiter separates an entity id from its owning connection id. Raw
// entity ids must never contain it; Valid enforces this at ingestion.
const Delimiter = "@@"

// Address is the parsed form of a possibly-scoped entity id. Owner is
// always a concrete connection id, never empty.
type Address struct {
	Entity string
	Owner  string
}

// Scoped reports whether the address belongs to a non-primary connection.
func (a Address) Scoped(primaryID string) bool {
	return a.Owner != primaryID
}

// String renders the address back to its wire form relative to primaryID.
func (a Address) String(primaryID string) string {
	return Encode(a.Entity, a.Owner, primaryID)
}

// Encode returns the wire form of an entity id owned by connectionID. The
// primary connection's ids pass through unchanged.
func Encode(entityID, connectionID, primaryID string) string {
	if connectionID == primaryID {
		return entityID
	}

	return entityID + Delimiter + connectionID
}

// Decode parses a possibly-scoped entity id. A bare id belongs to the
// primary connection. The connection-id segment is normalized the same way
// configured connection ids are, so values that round-tripped through
// storage still match their connection.
func Decode(value, primaryID string) Address {
	idx := strings.LastIndex(value, Delimiter)
	if idx < 0 {
		return Address{Entity: value, Owner: primaryID}
	}

	return Address{
		Entity: value[:idx],
		Owner:  NormalizeID(value[idx+len(Delimiter):]),
	}
}

// Valid reports whether a raw entity id is safe to scope: encoding an id
// that already contains the delimiter would make Decode ambiguous.
func Valid(entityID string) bool {
	return !strings.Contains(entityID, Delimiter)
}

// NormalizeID lowercases a connection id and maps every rune outside
// [a-z0-9_-] to '-'. An id that normalizes to nothing becomes "connection".
func NormalizeID(id string) string {
	var b strings.Builder

	for _, r := range strings.ToLower(strings.TrimSpace(id)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "connection"
	}

	return out
}
