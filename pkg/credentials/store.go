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

package credentials

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
	"github.com/hearthlab/panelmux/pkg/scope"
)

const (
	kindToken = "token"
	kindOAuth = "oauth"
)

// Store persists credentials per (clientScope, connectionID). Static
// tokens never leave the local store; the primary connection's OAuth
// bundle is additionally mirrored to the shared remote store best-effort.
type Store struct {
	clientScope string
	primaryID   string
	local       KVStore
	remote      KVStore
	log         logger.Logger
}

// NewStore builds a Store. remote may be nil when no shared store is
// configured.
func NewStore(clientScope, primaryID string, local, remote KVStore, log logger.Logger) *Store {
	return &Store{
		clientScope: scope.NormalizeID(clientScope),
		primaryID:   primaryID,
		local:       local,
		remote:      remote,
		log:         log.WithComponent("credentials"),
	}
}

// key builds the scoped storage key for one connection's credential.
func (s *Store) key(connectionID, kind string) string {
	return fmt.Sprintf("%s.%s.%s", s.clientScope, scope.NormalizeID(connectionID), kind)
}

// legacyKey is the pre-client-scope key shape. It is purged on every
// scoped write so shared devices cannot leak credentials across clients.
func legacyKey(connectionID, kind string) string {
	return fmt.Sprintf("%s.%s", scope.NormalizeID(connectionID), kind)
}

// SaveToken stores a static token locally. Tokens are never synchronized
// remotely.
func (s *Store) SaveToken(ctx context.Context, connectionID, token string) error {
	if err := s.local.Put(ctx, s.key(connectionID, kindToken), []byte(token), 0); err != nil {
		return err
	}

	s.purgeLegacy(ctx, connectionID, kindToken)

	return nil
}

// LoadToken retrieves a static token from the local store.
func (s *Store) LoadToken(ctx context.Context, connectionID string) (string, bool, error) {
	value, found, err := s.local.Get(ctx, s.key(connectionID, kindToken))
	if err != nil || !found {
		return "", false, err
	}

	return string(value), true, nil
}

// SaveOAuth stores an OAuth bundle locally and, for the primary
// connection, pushes it to the shared remote store. The remote push is
// fire-and-forget: a failure is logged, never returned.
func (s *Store) SaveOAuth(ctx context.Context, connectionID string, tokens models.OAuthTokens) error {
	data, err := json.Marshal(&tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal oauth bundle: %w", err)
	}

	key := s.key(connectionID, kindOAuth)

	if err := s.local.Put(ctx, key, data, 0); err != nil {
		return err
	}

	s.purgeLegacy(ctx, connectionID, kindOAuth)

	if s.remote != nil && connectionID == s.primaryID {
		if err := s.remote.Put(ctx, key, data, 0); err != nil {
			s.log.Warn().Err(err).Str("connection_id", connectionID).Msg("Best-effort remote credential push failed")
		}
	}

	return nil
}

// LoadOAuth retrieves an OAuth bundle: local cache first, then the shared
// remote store. A remote hit is cached locally before being returned.
func (s *Store) LoadOAuth(ctx context.Context, connectionID string) (*models.OAuthTokens, bool, error) {
	key := s.key(connectionID, kindOAuth)

	data, found, err := s.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}

	if !found {
		if s.remote == nil {
			return nil, false, nil
		}

		data, found, err = s.remote.Get(ctx, key)
		if err != nil {
			s.log.Warn().Err(err).Str("connection_id", connectionID).Msg("Remote credential lookup failed")
			return nil, false, nil
		}

		if !found {
			return nil, false, nil
		}

		if err := s.local.Put(ctx, key, data, 0); err != nil {
			s.log.Warn().Err(err).Str("connection_id", connectionID).Msg("Failed to cache remote credential locally")
		}
	}

	var tokens models.OAuthTokens
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, false, fmt.Errorf("failed to parse oauth bundle: %w", err)
	}

	return &tokens, true, nil
}

// Clear removes one connection's local credentials. For the primary
// connection it also requests remote clearing. Other connections' entries
// are never touched.
func (s *Store) Clear(ctx context.Context, connectionID string) error {
	if err := s.local.Delete(ctx, s.key(connectionID, kindToken)); err != nil {
		return err
	}

	if err := s.local.Delete(ctx, s.key(connectionID, kindOAuth)); err != nil {
		return err
	}

	if s.remote != nil && connectionID == s.primaryID {
		if err := s.remote.Delete(ctx, s.key(connectionID, kindOAuth)); err != nil {
			s.log.Warn().Err(err).Str("connection_id", connectionID).Msg("Best-effort remote credential clear failed")
		}
	}

	return nil
}

func (s *Store) purgeLegacy(ctx context.Context, connectionID, kind string) {
	if err := s.local.Delete(ctx, legacyKey(connectionID, kind)); err != nil {
		s.log.Debug().Err(err).Str("connection_id", connectionID).Msg("Legacy credential purge failed")
	}
}
