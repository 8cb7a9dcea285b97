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

package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
)

func testMeta() map[string]ConnectionMeta {
	return map[string]ConnectionMeta{
		"primary": {ID: "primary", Name: "Home"},
		"cabin":   {ID: "cabin", Name: "Cabin"},
	}
}

func TestMergeKitchenLightScenario(t *testing.T) {
	snapshots := map[string][]models.EntityRecord{
		"primary": {
			{ID: "light.kitchen", State: "on", Attributes: map[string]any{"friendly_name": "Kitchen Light"}},
		},
		"cabin": {
			{ID: "light.kitchen", State: "off", Attributes: map[string]any{"friendly_name": "Kitchen Light"}},
		},
	}

	table := Merge(snapshots, "primary", testMeta(), logger.NewTestLogger())

	require.Len(t, table, 2)
	assert.Equal(t, "on", table["light.kitchen"].State)
	assert.Equal(t, "off", table["light.kitchen@@cabin"].State)
	assert.Equal(t, "Kitchen Light [Cabin]", table["light.kitchen@@cabin"].Attributes["friendly_name"])
	assert.Equal(t, "Kitchen Light", table["light.kitchen"].Attributes["friendly_name"])
}

func TestMergeStampsConnectionAttributes(t *testing.T) {
	snapshots := map[string][]models.EntityRecord{
		"primary": {{ID: "switch.porch", State: "off"}},
		"cabin":   {{ID: "switch.porch", State: "on"}},
	}

	table := Merge(snapshots, "primary", testMeta(), logger.NewTestLogger())

	assert.Equal(t, "primary", table["switch.porch"].Attributes[models.AttrConnectionID])
	assert.Equal(t, "Home", table["switch.porch"].Attributes[models.AttrConnectionName])
	assert.Equal(t, "cabin", table["switch.porch@@cabin"].Attributes[models.AttrConnectionID])
	assert.Equal(t, "Cabin", table["switch.porch@@cabin"].Attributes[models.AttrConnectionName])
}

func TestMergeOneKeyPerConnectionEntityPair(t *testing.T) {
	snapshots := map[string][]models.EntityRecord{
		"primary": {
			{ID: "light.a", State: "on"},
			{ID: "light.b", State: "off"},
		},
		"cabin": {
			{ID: "light.a", State: "off"},
		},
		"garage": {
			{ID: "light.a", State: "unavailable"},
		},
	}

	meta := testMeta()
	meta["garage"] = ConnectionMeta{ID: "garage"}

	table := Merge(snapshots, "primary", meta, logger.NewTestLogger())

	assert.Len(t, table, 4)
	assert.Contains(t, table, "light.a")
	assert.Contains(t, table, "light.b")
	assert.Contains(t, table, "light.a@@cabin")
	assert.Contains(t, table, "light.a@@garage")
}

func TestMergeFallsBackToIDWithoutMeta(t *testing.T) {
	snapshots := map[string][]models.EntityRecord{
		"cabin": {{ID: "light.a", State: "on"}},
	}

	table := Merge(snapshots, "primary", nil, logger.NewTestLogger())

	record := table["light.a@@cabin"]
	assert.Equal(t, "cabin", record.Attributes[models.AttrConnectionName])
	assert.Equal(t, "light.a [cabin]", record.Attributes[models.AttrFriendlyName])
}

func TestMergeDropsUnscopableEntityIDs(t *testing.T) {
	snapshots := map[string][]models.EntityRecord{
		"cabin": {
			{ID: "light.ok", State: "on"},
			{ID: "light.bad@@thing", State: "on"},
		},
	}

	table := Merge(snapshots, "primary", testMeta(), logger.NewTestLogger())

	assert.Len(t, table, 1)
	assert.Contains(t, table, "light.ok@@cabin")
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	record := models.EntityRecord{ID: "light.a", State: "on", Attributes: map[string]any{"friendly_name": "A"}}
	snapshots := map[string][]models.EntityRecord{"cabin": {record}}

	_ = Merge(snapshots, "primary", testMeta(), logger.NewTestLogger())

	assert.Equal(t, "light.a", snapshots["cabin"][0].ID)
	assert.Equal(t, "A", snapshots["cabin"][0].Attributes["friendly_name"])
	assert.NotContains(t, snapshots["cabin"][0].Attributes, models.AttrConnectionID)
}
