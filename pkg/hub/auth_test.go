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

package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlab/panelmux/pkg/models"
)

func TestTokenAuth(t *testing.T) {
	tok, err := TokenAuth{Token: "abc"}.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	_, err = TokenAuth{}.AccessToken(context.Background())
	assert.Error(t, err)
}

func TestOAuthUsesCachedTokenWhileValid(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	auth := NewOAuthAuthenticator(srv.URL, models.OAuthTokens{
		AccessToken:  "cached",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil)

	tok, err := auth.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.Zero(t, calls)
}

func TestOAuthRefreshesExpiredToken(t *testing.T) {
	var updated *models.OAuthTokens

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "/auth/token", r.URL.Path)
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh", r.Form.Get("refresh_token"))
		assert.Equal(t, "panel-client", r.Form.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "fresh", "expires_in": 1800}`))
	}))
	defer srv.Close()

	auth := NewOAuthAuthenticator(srv.URL, models.OAuthTokens{
		AccessToken:  "stale",
		RefreshToken: "refresh",
		ClientID:     "panel-client",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}, func(t models.OAuthTokens) { updated = &t })

	tok, err := auth.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)

	require.NotNil(t, updated)
	assert.Equal(t, "fresh", updated.AccessToken)
	assert.Equal(t, "refresh", updated.RefreshToken)
	assert.False(t, updated.ExpiresAt.IsZero())
}

func TestOAuthRefreshRejectionIsAuthInvalid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	auth := NewOAuthAuthenticator(srv.URL, models.OAuthTokens{
		RefreshToken: "refresh",
	}, nil)

	_, err := auth.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrAuthInvalid)
}

func TestOAuthWithoutRefreshTokenIsAuthInvalid(t *testing.T) {
	auth := NewOAuthAuthenticator("http://hub.local", models.OAuthTokens{}, nil)

	_, err := auth.AccessToken(context.Background())
	assert.ErrorIs(t, err, ErrAuthInvalid)
}

func TestOAuthInvalidateForcesRefresh(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "fresh", "expires_in": 1800}`))
	}))
	defer srv.Close()

	auth := NewOAuthAuthenticator(srv.URL, models.OAuthTokens{
		AccessToken:  "cached",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil)

	auth.Invalidate()

	tok, err := auth.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok)
	assert.Equal(t, 1, calls)
}
