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
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/hearthlab/panelmux/pkg/models"
)

// Persister writes an updated connection list back into persisted
// configuration. Supervisors use it to self-heal a connection's URL when
// the session was established over a different address than configured.
type Persister interface {
	PersistConnections(ctx context.Context, connections []models.ConnectionConfig, primaryID string) error
}

// FilePersister rewrites the JSON config file in place, replacing only the
// connection table and keeping every other setting as loaded.
type FilePersister struct {
	mu   sync.Mutex
	path string
}

// NewFilePersister creates a persister for the given config file path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// PersistConnections implements Persister. The write goes through a temp
// file and rename so a crash cannot truncate the config.
func (p *FilePersister) PersistConnections(ctx context.Context, connections []models.ConnectionConfig, primaryID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var cfg ServiceConfig

	loader := &FileConfigLoader{}
	if err := loader.Load(ctx, p.path, &cfg); err != nil {
		return err
	}

	cfg.Connections = connections
	cfg.PrimaryConnectionID = primaryID

	// The legacy flat fields are superseded by the list once we write one.
	cfg.URL = ""
	cfg.FallbackURL = ""
	cfg.AuthMethod = ""
	cfg.Token = ""
	cfg.OAuthTokens = nil

	data, err := json.MarshalIndent(&cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(p.path), "."+filepath.Base(p.path)+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return os.Rename(tmp, p.path)
}
