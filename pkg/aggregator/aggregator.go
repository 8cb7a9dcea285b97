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

// Package aggregator merges per-connection entity snapshots into the one
// addressable table the rest of the panel consumes.
package aggregator

import (
	"fmt"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
	"github.com/hearthlab/panelmux/pkg/scope"
)

// ConnectionMeta is the display metadata stamped onto merged records.
type ConnectionMeta struct {
	ID   string
	Name string
}

// DisplayName returns the configured name, falling back to the id.
func (m ConnectionMeta) DisplayName() string {
	if m.Name != "" {
		return m.Name
	}

	return m.ID
}

// Merge recomputes the full merged entity table from every connection's
// current snapshot. Each snapshot is a complete replacement of its
// connection's address space, so the merge is total rather than
// incremental: partial merging would need its own invalidation logic for
// no benefit at this scale.
//
// Primary records keep their bare entity id; every other connection's
// records are scoped and get the connection's display name appended to
// their friendly name. Non-primary entity ids that already contain the
// scope delimiter cannot be encoded unambiguously and are dropped with a
// warning.
func Merge(
	snapshots map[string][]models.EntityRecord,
	primaryID string,
	meta map[string]ConnectionMeta,
	log logger.Logger) map[string]models.EntityRecord {
	size := 0
	for _, records := range snapshots {
		size += len(records)
	}

	table := make(map[string]models.EntityRecord, size)

	for connectionID, records := range snapshots {
		cm, ok := meta[connectionID]
		if !ok {
			cm = ConnectionMeta{ID: connectionID}
		}

		for _, record := range records {
			merged := record.Clone()
			merged.Attributes[models.AttrConnectionID] = connectionID
			merged.Attributes[models.AttrConnectionName] = cm.DisplayName()

			if connectionID != primaryID {
				if !scope.Valid(record.ID) {
					if log != nil {
						log.Warn().
							Str("connection_id", connectionID).
							Str("entity_id", record.ID).
							Msg("Dropping entity whose id contains the scope delimiter")
					}

					continue
				}

				merged.ID = scope.Encode(record.ID, connectionID, primaryID)
				merged.Attributes[models.AttrFriendlyName] = fmt.Sprintf("%s [%s]",
					friendlyName(record), cm.DisplayName())
			}

			table[merged.ID] = merged
		}
	}

	return table
}

func friendlyName(record models.EntityRecord) string {
	if name, ok := record.Attributes[models.AttrFriendlyName].(string); ok && name != "" {
		return name
	}

	return record.ID
}
