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

package models

import "time"

// Attribute keys stamped onto every merged entity record.
const (
	AttrConnectionID   = "connection_id"
	AttrConnectionName = "connection_name"
	AttrFriendlyName   = "friendly_name"
)

// EntityRecord is one addressable entity as published by a hub. Records are
// replaced wholesale on every snapshot from their owning connection.
type EntityRecord struct {
	ID          string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes,omitempty"`
	LastUpdated time.Time      `json:"last_updated,omitempty"`
}

// Clone returns a deep-enough copy for merge stamping: the attribute map is
// copied, attribute values are shared.
func (e EntityRecord) Clone() EntityRecord {
	out := e
	out.Attributes = make(map[string]any, len(e.Attributes)+2)

	for k, v := range e.Attributes {
		out.Attributes[k] = v
	}

	return out
}
