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
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hearthlab/panelmux/pkg/models"
)

// Authenticator supplies the access token for the websocket handshake.
type Authenticator interface {
	// AccessToken returns a token expected to be valid right now.
	AccessToken(ctx context.Context) (string, error)

	// Invalidate discards any cached short-lived token so the next
	// AccessToken call obtains a fresh one.
	Invalidate()
}

// TokenAuth authenticates with a static long-lived token.
type TokenAuth struct {
	Token string
}

func (t TokenAuth) AccessToken(_ context.Context) (string, error) {
	if t.Token == "" {
		return "", errNoAccessToken
	}

	return t.Token, nil
}

func (TokenAuth) Invalidate() {}

// tokenExpirySkew refreshes OAuth access tokens slightly before their
// nominal expiry so an in-flight handshake never races the deadline.
const tokenExpirySkew = 30 * time.Second

// OAuthAuthenticator authenticates with a cached OAuth bundle, refreshing
// the access token against the hub's token endpoint when needed.
type OAuthAuthenticator struct {
	mu         sync.Mutex
	baseURL    string
	tokens     models.OAuthTokens
	httpClient *http.Client
	onUpdate   func(models.OAuthTokens)
	now        func() time.Time
}

// NewOAuthAuthenticator creates an authenticator for the hub at baseURL.
// onUpdate, if non-nil, is called with the refreshed bundle so the caller
// can persist it; it must not block.
func NewOAuthAuthenticator(baseURL string, tokens models.OAuthTokens, onUpdate func(models.OAuthTokens)) *OAuthAuthenticator {
	return &OAuthAuthenticator{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		onUpdate:   onUpdate,
		now:        time.Now,
	}
}

func (o *OAuthAuthenticator) AccessToken(ctx context.Context) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.tokens.AccessToken != "" && !o.tokens.Expired(o.now(), tokenExpirySkew) {
		return o.tokens.AccessToken, nil
	}

	if err := o.refreshLocked(ctx); err != nil {
		return "", err
	}

	return o.tokens.AccessToken, nil
}

func (o *OAuthAuthenticator) Invalidate() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.tokens.AccessToken = ""
	o.tokens.ExpiresAt = time.Time{}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (o *OAuthAuthenticator) refreshLocked(ctx context.Context) error {
	if o.tokens.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token", ErrAuthInvalid)
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {o.tokens.RefreshToken},
	}
	if o.tokens.ClientID != "" {
		form.Set("client_id", o.tokens.ClientID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.baseURL+"/auth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: token refresh: %w", ErrConnectFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: token endpoint returned %d", ErrAuthInvalid, resp.StatusCode)
	default:
		return fmt.Errorf("%w: token endpoint returned %d", ErrConnectFailed, resp.StatusCode)
	}

	var tr tokenResponse

	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%w: decoding token response: %w", ErrConnectFailed, err)
	}

	o.tokens.AccessToken = tr.AccessToken
	o.tokens.ExpiresAt = time.Time{}

	if tr.ExpiresIn > 0 {
		o.tokens.ExpiresAt = o.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	if o.onUpdate != nil {
		o.onUpdate(o.tokens)
	}

	return nil
}
