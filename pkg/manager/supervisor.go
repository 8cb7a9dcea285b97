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

package manager

import (
	"context"
	"errors"
	"sync"

	"github.com/hearthlab/panelmux/pkg/hub"
	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
)

// supervisor drives one connection through its lifecycle: resolve auth
// material, connect (with the one-shot fallback URL for token auth),
// then hand the live transport its snapshot and connectivity wiring.
// After the initial outcome the transport's own reconnect loop takes
// over; the supervisor itself never retries.
type supervisor struct {
	m       *Manager
	cfg     models.ConnectionConfig
	primary bool
	log     logger.Logger

	mu        sync.Mutex
	state     State
	transport hub.Transport
}

func newSupervisor(m *Manager, cfg models.ConnectionConfig, primary bool) *supervisor {
	return &supervisor{
		m:       m,
		cfg:     cfg,
		primary: primary,
		log:     m.log.WithConnection(cfg.ID),
	}
}

func (s *supervisor) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *supervisor) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

func (s *supervisor) activeTransport() hub.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transport
}

// start runs the connect attempt. It is spawned once per Manager
// generation; every exit path leaves the supervisor in a stable state.
func (s *supervisor) start(ctx context.Context) {
	if s.cfg.URL == "" {
		s.log.Debug().Msg("No URL configured, connection stays idle")
		s.setState(StateIdle)

		return
	}

	auth, ok := s.resolveAuth(ctx)
	if !ok {
		s.log.Info().Msg("No credentials available, connection stays idle")
		s.setState(StateIdle)

		return
	}

	s.setState(StateConnecting)

	transport, resolvedURL, err := s.connect(ctx, auth)
	if err != nil {
		s.handleConnectError(ctx, err, resolvedURL)
		return
	}

	if ctx.Err() != nil {
		// Shutdown raced the dial; this transport was never registered.
		_ = transport.Close()
		return
	}

	s.mu.Lock()
	s.transport = transport
	s.state = StateReady
	s.mu.Unlock()

	s.m.setConnectionState(s.cfg.ID, models.ConnectionState{
		Connected:   true,
		ResolvedURL: resolvedURL,
	})

	// Registered after the connected state is recorded: a drop in the
	// window before registration replays through OnDisconnected and must
	// land on top of Connected=true, not under it.
	transport.OnReady(func() {
		s.m.setConnected(s.cfg.ID, true)
	})
	transport.OnDisconnected(func() {
		s.m.setConnected(s.cfg.ID, false)
	})

	if resolvedURL != s.cfg.URL {
		s.log.Info().Str("url", s.cfg.URL).Str("resolved_url", resolvedURL).
			Msg("Connection established via fallback URL, persisting")
		s.m.persistResolvedURL(ctx, s.cfg.ID, resolvedURL)
	}

	if err := transport.SubscribeEntities(ctx, func(records []models.EntityRecord) {
		s.m.applySnapshot(s.cfg.ID, records)
	}); err != nil {
		s.log.Warn().Err(err).Msg("Entity subscription failed")
	}

	s.log.Info().Str("url", resolvedURL).Msg("Connection ready")
}

// resolveAuth builds the Authenticator from explicit config first, stored
// credentials second. A missing credential is the normal not-yet-paired
// state, not an error.
func (s *supervisor) resolveAuth(ctx context.Context) (hub.Authenticator, bool) {
	switch s.cfg.AuthMethod {
	case models.AuthMethodToken:
		token := s.cfg.Token

		if token == "" && s.m.creds != nil {
			stored, found, err := s.m.creds.LoadToken(ctx, s.cfg.ID)
			if err != nil {
				s.log.Warn().Err(err).Msg("Failed to load stored token")
				return nil, false
			}

			if found {
				token = stored
			}
		}

		if token == "" {
			return nil, false
		}

		return hub.TokenAuth{Token: token}, true
	case models.AuthMethodOAuth:
		tokens := s.cfg.OAuthTokens

		if tokens == nil && s.m.creds != nil {
			stored, found, err := s.m.creds.LoadOAuth(ctx, s.cfg.ID)
			if err != nil {
				s.log.Warn().Err(err).Msg("Failed to load stored oauth bundle")
				return nil, false
			}

			if found {
				tokens = stored
			}
		}

		if tokens == nil {
			return nil, false
		}

		return hub.NewOAuthAuthenticator(s.cfg.URL, *tokens, s.persistRefreshed), true
	default:
		s.log.Warn().Str("auth_method", string(s.cfg.AuthMethod)).Msg("Unknown auth method")
		return nil, false
	}
}

// persistRefreshed stores a refreshed OAuth bundle so the next process
// start does not burn a refresh cycle.
func (s *supervisor) persistRefreshed(tokens models.OAuthTokens) {
	if s.m.creds == nil {
		return
	}

	go func() {
		if err := s.m.creds.SaveOAuth(context.Background(), s.cfg.ID, tokens); err != nil {
			s.log.Warn().Err(err).Msg("Failed to persist refreshed oauth bundle")
		}
	}()
}

// connect dials the configured URL. Token-auth connections get exactly
// one fallback attempt on the alternate URL, and only on this initial
// connect; OAuth cannot fall back because the token endpoint is bound to
// the configured host. The returned URL is the address last attempted,
// whether or not the dial succeeded.
func (s *supervisor) connect(ctx context.Context, auth hub.Authenticator) (hub.Transport, string, error) {
	transport, err := s.m.dial(ctx, s.cfg.URL, auth, s.log)
	if err == nil {
		return transport, s.cfg.URL, nil
	}

	if s.cfg.AuthMethod != models.AuthMethodToken || s.cfg.FallbackURL == "" ||
		errors.Is(err, hub.ErrAuthInvalid) {
		return nil, s.cfg.URL, err
	}

	s.log.Warn().Err(err).Str("url", s.cfg.URL).Str("fallback_url", s.cfg.FallbackURL).
		Msg("Primary URL unreachable, trying fallback")

	transport, ferr := s.m.dial(ctx, s.cfg.FallbackURL, auth, s.log)
	if ferr != nil {
		// Report the original failure; the fallback outcome goes to the log.
		s.log.Warn().Err(ferr).Str("fallback_url", s.cfg.FallbackURL).Msg("Fallback URL unreachable")
		return nil, s.cfg.FallbackURL, err
	}

	return transport, s.cfg.FallbackURL, nil
}

func (s *supervisor) handleConnectError(ctx context.Context, err error, attemptedURL string) {
	s.setState(StateDisconnected)
	// ResolvedURL records what was attempted so the API can surface it.
	s.m.setConnectionState(s.cfg.ID, models.ConnectionState{Connected: false, ResolvedURL: attemptedURL})

	if errors.Is(err, hub.ErrAuthInvalid) {
		s.log.Error().Err(err).Msg("Credentials rejected, clearing stored credentials")

		if s.m.creds != nil {
			if cerr := s.m.creds.Clear(ctx, s.cfg.ID); cerr != nil {
				s.log.Warn().Err(cerr).Msg("Failed to clear rejected credentials")
			}
		}

		if s.primary {
			s.m.flagAuthExpired()
		}

		return
	}

	s.log.Error().Err(err).Str("url", attemptedURL).Msg("Connection failed")
}
