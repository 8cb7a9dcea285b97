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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "panelmux.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadReadsFileAndDefaults(t *testing.T) {
	path := writeConfigFile(t, `{
		"connections": [{"id": "home", "url": "http://hub.local:8123", "token": "tok"}]
	}`)

	cfg, err := Load(context.Background(), path, logger.NewTestLogger())
	require.NoError(t, err)

	assert.Equal(t, defaultListenAddr, cfg.ListenAddr)
	require.Len(t, cfg.Connections, 1)
	assert.Equal(t, "home", cfg.Connections[0].ID)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"), logger.NewTestLogger())
	assert.Error(t, err)
}

func TestEnvOverlayScalars(t *testing.T) {
	t.Setenv("PANELMUX_LISTEN_ADDR", ":9999")
	t.Setenv("PANELMUX_LOGGING_LEVEL", "debug")

	cfg := &ServiceConfig{ListenAddr: ":8090"}
	require.NoError(t, NewEnvOverlay(logger.NewTestLogger(), "").Apply(cfg))

	assert.Equal(t, ":9999", cfg.ListenAddr)
	require.NotNil(t, cfg.Logging)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestEnvOverlayLeavesNilSubConfigs(t *testing.T) {
	cfg := &ServiceConfig{}
	require.NoError(t, NewEnvOverlay(logger.NewTestLogger(), "PMXTEST_").Apply(cfg))
	assert.Nil(t, cfg.Logging)
	assert.Nil(t, cfg.RemoteStore)
}

func TestEnvOverlayRejectsNonPointer(t *testing.T) {
	err := NewEnvOverlay(logger.NewTestLogger(), "").Apply(ServiceConfig{})
	assert.ErrorIs(t, err, errDstMustBeStructPointer)
}

func TestFilePersisterRewritesConnections(t *testing.T) {
	path := writeConfigFile(t, `{
		"listen_addr": ":8080",
		"api_key": "secret",
		"url": "http://legacy.local:8123",
		"auth_method": "token",
		"token": "tok"
	}`)

	ctx := context.Background()
	connections := []models.ConnectionConfig{
		{ID: "primary", URL: "http://healed.local:8123", AuthMethod: models.AuthMethodToken, Token: "tok"},
	}

	p := NewFilePersister(path)
	require.NoError(t, p.PersistConnections(ctx, connections, "primary"))

	cfg, err := Load(ctx, path, logger.NewTestLogger())
	require.NoError(t, err)

	// Settings outside the connection table survive the rewrite.
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "secret", cfg.APIKey)

	// Legacy flat fields are superseded by the written list.
	assert.Empty(t, cfg.URL)
	require.Len(t, cfg.Connections, 1)
	assert.Equal(t, "http://healed.local:8123", cfg.Connections[0].URL)
	assert.Equal(t, "primary", cfg.PrimaryConnectionID)
}
