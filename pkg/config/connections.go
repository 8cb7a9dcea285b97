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

package config

import (
	"fmt"

	"github.com/hearthlab/panelmux/pkg/models"
	"github.com/hearthlab/panelmux/pkg/scope"
)

// Normalized is the output of Normalize: the deduplicated connection list
// and the resolved primary connection id. Supervisors are rebuilt whenever
// this output changes, so Normalize must be deterministic.
type Normalized struct {
	Connections []models.ConnectionConfig
	PrimaryID   string
}

// Connection returns the config with the given id.
func (n *Normalized) Connection(id string) (models.ConnectionConfig, bool) {
	for _, c := range n.Connections {
		if c.ID == id {
			return c, true
		}
	}

	return models.ConnectionConfig{}, false
}

// Primary returns the primary connection's config.
func (n *Normalized) Primary() models.ConnectionConfig {
	c, _ := n.Connection(n.PrimaryID)
	return c
}

// Normalize produces the canonical connection list from a loaded service
// config. It is pure: identical input always yields identical output.
//
// Rules: an absent connections list is synthesized from the legacy flat
// fields; every id is normalized to a lowercase token-safe string with
// duplicate ids suffixed "-2", "-3", ... in encounter order; an auth method
// is defaulted from the presence of a static token; the requested primary
// id must exist, otherwise the first connection is primary.
func Normalize(cfg *ServiceConfig) Normalized {
	candidates := cfg.Connections

	if len(candidates) == 0 {
		candidates = []models.ConnectionConfig{{
			ID:          models.DefaultPrimaryID,
			URL:         cfg.URL,
			FallbackURL: cfg.FallbackURL,
			AuthMethod:  cfg.AuthMethod,
			Token:       cfg.Token,
			OAuthTokens: cfg.OAuthTokens,
		}}
	}

	out := make([]models.ConnectionConfig, 0, len(candidates))
	used := make(map[string]bool, len(candidates))

	for _, c := range candidates {
		candidate := c.ID
		if candidate == "" {
			candidate = c.Name
		}

		id := scope.NormalizeID(candidate)
		if candidate == "" {
			id = models.DefaultPrimaryID
		}

		for n := 2; used[id]; n++ {
			id = fmt.Sprintf("%s-%d", scope.NormalizeID(candidate), n)
			if candidate == "" {
				id = fmt.Sprintf("%s-%d", models.DefaultPrimaryID, n)
			}
		}

		used[id] = true
		c.ID = id

		if c.AuthMethod == "" {
			c.AuthMethod = models.AuthMethodOAuth
			if c.Token != "" {
				c.AuthMethod = models.AuthMethodToken
			}
		}

		out = append(out, c)
	}

	primary := scope.NormalizeID(cfg.PrimaryConnectionID)
	if cfg.PrimaryConnectionID == "" || !used[primary] {
		primary = out[0].ID
	}

	return Normalized{Connections: out, PrimaryID: primary}
}
