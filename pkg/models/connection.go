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

// Package models defines the shared data types for the panelmux service.
package models

import "time"

// AuthMethod selects how a hub connection authenticates.
type AuthMethod string

const (
	AuthMethodOAuth AuthMethod = "oauth"
	AuthMethodToken AuthMethod = "token"
)

// DefaultPrimaryID is the connection id used when configuration does not
// name one. The primary connection's entity ids are presented unscoped.
const DefaultPrimaryID = "primary"

// ConnectionConfig describes one configured hub backend. Instances are
// immutable for the lifetime of a supervisor; changing configuration tears
// down and rebuilds every supervisor.
type ConnectionConfig struct {
	ID          string       `json:"id"`
	Name        string       `json:"name,omitempty"`
	URL         string       `json:"url"`
	FallbackURL string       `json:"fallback_url,omitempty"`
	AuthMethod  AuthMethod   `json:"auth_method"`
	Token       string       `json:"token,omitempty"`
	OAuthTokens *OAuthTokens `json:"oauth_tokens,omitempty"`
}

// DisplayName returns the configured name, falling back to the id.
func (c *ConnectionConfig) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}

	return c.ID
}

// OAuthTokens is the opaque token bundle for an oauth-authenticated hub.
type OAuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
}

// Expired reports whether the access token is past (or within skew of) its
// expiry. A zero expiry means the token never expires.
func (t *OAuthTokens) Expired(now time.Time, skew time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}

	return !now.Add(skew).Before(t.ExpiresAt)
}

// ConnectionState is the live health of one connection. It is written only
// by that connection's supervisor and read by the aggregator and router.
type ConnectionState struct {
	Connected   bool   `json:"connected"`
	ResolvedURL string `json:"resolved_url,omitempty"`
}
