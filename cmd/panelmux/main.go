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

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/hearthlab/panelmux/pkg/config"
	"github.com/hearthlab/panelmux/pkg/credentials"
	"github.com/hearthlab/panelmux/pkg/httpapi"
	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/manager"
	"github.com/hearthlab/panelmux/pkg/router"
	"github.com/hearthlab/panelmux/pkg/version"
)

const defaultStateDir = "/var/lib/panelmux"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/panelmux/panelmux.json", "Path to panelmux config file")
	flag.Parse()

	ctx := context.Background()

	// Config loading happens before the real logger exists.
	bootLog, err := logger.New(&logger.Config{Level: "info", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("failed to initialize bootstrap logger: %w", err)
	}

	cfg, err := config.Load(ctx, *configPath, bootLog)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{Level: "info", Output: "stdout"}
	}

	mainLogger, err := logger.New(logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	stateDir := cfg.StateDir
	if stateDir == "" {
		stateDir = defaultStateDir
	}

	clientScope, err := ensureClientScope(stateDir, cfg.ClientScope)
	if err != nil {
		return fmt.Errorf("failed to resolve client scope: %w", err)
	}

	normalized := config.Normalize(cfg)
	if len(normalized.Connections) == 0 {
		return fmt.Errorf("no connections configured in %s", *configPath)
	}

	local, err := credentials.NewFileStore(filepath.Join(stateDir, "credentials.json"))
	if err != nil {
		return fmt.Errorf("failed to open credential store: %w", err)
	}

	var remote credentials.KVStore

	if cfg.RemoteStore != nil && cfg.RemoteStore.NATSURL != "" {
		remote, err = credentials.NewNatsStore(ctx, cfg.RemoteStore.NATSURL, cfg.RemoteStore.Bucket)
		if err != nil {
			// The shared store is an optimization, never a requirement.
			mainLogger.Warn().Err(err).Str("nats_url", cfg.RemoteStore.NATSURL).
				Msg("Shared credential store unavailable, continuing local-only")

			remote = nil
		}
	}

	credStore := credentials.NewStore(clientScope, normalized.PrimaryID, local, remote, mainLogger)

	mgr := manager.New(manager.Options{
		Config:      normalized,
		Credentials: credStore,
		Persister:   config.NewFilePersister(*configPath),
		Logger:      mainLogger,
	})

	mgr.Connect()

	api := httpapi.NewServer(mgr, router.New(mgr, mainLogger), cfg.APIKey, mainLogger)

	errCh := make(chan error, 1)

	go func() {
		errCh <- api.Start(cfg.ListenAddr)
	}()

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("config", *configPath).
		Str("listen_addr", cfg.ListenAddr).
		Int("connections", len(normalized.Connections)).
		Str("primary", normalized.PrimaryID).
		Msg("panelmux started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		mainLogger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			mainLogger.Error().Err(err).Msg("HTTP API failed")
		}
	}

	if err := api.Stop(ctx); err != nil {
		mainLogger.Warn().Err(err).Msg("HTTP API shutdown error")
	}

	mgr.Shutdown()

	if remote != nil {
		if err := remote.Close(); err != nil {
			mainLogger.Warn().Err(err).Msg("Error closing shared credential store")
		}
	}

	return local.Close()
}

// ensureClientScope returns the configured client scope, or a generated
// one persisted under the state dir so credentials stay attributable to
// this device across restarts.
func ensureClientScope(stateDir, configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	path := filepath.Join(stateDir, "client_scope")

	data, err := os.ReadFile(path)
	if err == nil {
		if s := strings.TrimSpace(string(data)); s != "" {
			return s, nil
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	generated := uuid.NewString()

	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return "", err
	}

	if err := os.WriteFile(path, []byte(generated+"\n"), 0o600); err != nil {
		return "", err
	}

	return generated, nil
}
