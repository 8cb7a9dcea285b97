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

// Package config loads and normalizes the panelmux service configuration,
// including the multi-connection hub table and its legacy single-hub shape.
package config

import (
	"context"
	"fmt"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
)

// RemoteStoreConfig points at the shared credential store used to hand the
// primary connection's OAuth session to other devices of the same client.
type RemoteStoreConfig struct {
	NATSURL string `json:"nats_url"`
	Bucket  string `json:"bucket,omitempty"`
}

// ServiceConfig is the persisted configuration for the panelmux service.
// The legacy flat fields describe a single hub and are folded into the
// connections list by Normalize.
type ServiceConfig struct {
	ListenAddr  string             `json:"listen_addr,omitempty"`
	APIKey      string             `json:"api_key,omitempty"`
	ClientScope string             `json:"client_scope,omitempty"`
	StateDir    string             `json:"state_dir,omitempty"`
	Logging     *logger.Config     `json:"logging,omitempty"`
	RemoteStore *RemoteStoreConfig `json:"remote_store,omitempty"`

	Connections         []models.ConnectionConfig `json:"connections,omitempty"`
	PrimaryConnectionID string                    `json:"primary_connection_id,omitempty"`

	// Legacy single-hub shape, still accepted.
	URL         string              `json:"url,omitempty"`
	FallbackURL string              `json:"fallback_url,omitempty"`
	AuthMethod  models.AuthMethod   `json:"auth_method,omitempty"`
	Token       string              `json:"token,omitempty"`
	OAuthTokens *models.OAuthTokens `json:"oauth_tokens,omitempty"`
}

const defaultListenAddr = ":8090"

// Load reads the config file, applies environment overrides and fills in
// defaults for absent scalar settings.
func Load(ctx context.Context, path string, log logger.Logger) (*ServiceConfig, error) {
	var cfg ServiceConfig

	loader := &FileConfigLoader{}
	if err := loader.Load(ctx, path, &cfg); err != nil {
		return nil, err
	}

	if err := NewEnvOverlay(log, "").Apply(&cfg); err != nil {
		return nil, fmt.Errorf("environment overlay: %w", err)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultListenAddr
	}

	return &cfg, nil
}
