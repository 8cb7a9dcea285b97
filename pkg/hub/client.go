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

// Package hub implements the websocket client for one state-sync hub
// backend: authenticated handshake, entity snapshot subscription, generic
// request/response messaging and transport-level reconnect.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
)

// Transport is the live connection surface consumed by the supervisor and
// router layers.
type Transport interface {
	SendMessage(ctx context.Context, payload map[string]any) (json.RawMessage, error)
	SubscribeEntities(ctx context.Context, handler func([]models.EntityRecord)) error
	OnReady(fn func())
	OnDisconnected(fn func())
	Close() error
}

const (
	initialReconnectWait = time.Second
	maxReconnectWait     = 30 * time.Second
)

// Client is a websocket connection to one hub. Once established it owns
// its own reconnect loop; initial connect failures are the caller's to
// handle.
type Client struct {
	baseURL string
	auth    Authenticator
	log     logger.Logger
	dialer  *websocket.Dialer

	// gorilla/websocket permits one concurrent writer per connection.
	writeMu sync.Mutex

	mu              sync.Mutex
	conn            *websocket.Conn
	pending         map[int64]chan serverFrame
	nextID          int64
	closed          bool
	subscribed      bool
	reconnectWait   time.Duration
	entityHandler   func([]models.EntityRecord)
	readyFns        []func()
	disconnectedFns []func()
}

var _ Transport = (*Client)(nil)

// Connect dials the hub at baseURL and completes the auth handshake. An
// auth_invalid response triggers exactly one token refresh and redial
// before ErrAuthInvalid is returned.
func Connect(ctx context.Context, baseURL string, auth Authenticator, log logger.Logger) (*Client, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		auth:          auth,
		log:           log,
		dialer:        websocket.DefaultDialer,
		pending:       make(map[int64]chan serverFrame),
		reconnectWait: initialReconnectWait,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	c.conn = conn

	go c.readLoop(conn)

	return c, nil
}

// BaseURL returns the URL this client was established against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 0; ; attempt++ {
		conn, err := c.dialOnce(ctx)
		if err == nil {
			return conn, nil
		}

		// An expired short-lived token looks like auth_invalid; one
		// refresh-and-redial distinguishes it from a revoked credential.
		if attempt == 0 && errors.Is(err, ErrAuthInvalid) {
			c.auth.Invalidate()
			continue
		}

		return nil, err
	}
}

func (c *Client) dialOnce(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := wsEndpoint(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	conn, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	for {
		var f serverFrame

		if err := conn.ReadJSON(&f); err != nil {
			conn.Close()
			return nil, fmt.Errorf("%w: handshake read: %w", ErrConnectFailed, err)
		}

		switch f.Type {
		case frameAuthRequired:
			token, err := c.auth.AccessToken(ctx)
			if err != nil {
				conn.Close()
				return nil, err
			}

			if err := conn.WriteJSON(authFrame{Type: frameAuth, AccessToken: token}); err != nil {
				conn.Close()
				return nil, fmt.Errorf("%w: handshake write: %w", ErrConnectFailed, err)
			}
		case frameAuthOK:
			return conn, nil
		case frameAuthInvalid:
			conn.Close()
			return nil, fmt.Errorf("%w: %s", ErrAuthInvalid, f.Message)
		default:
			conn.Close()
			return nil, fmt.Errorf("%w: %q", errUnexpectedFrame, f.Type)
		}
	}
}

// wsEndpoint maps the configured hub URL onto its websocket endpoint.
func wsEndpoint(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/api/websocket"

	return u.String(), nil
}

// SendMessage sends one request frame and waits for its result. The id
// field is owned by the client; callers must not set one.
func (c *Client) SendMessage(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	c.mu.Lock()

	if c.closed || c.conn == nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}

	c.nextID++
	id := c.nextID
	ch := make(chan serverFrame, 1)
	c.pending[id] = ch
	conn := c.conn

	c.mu.Unlock()

	msg := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		msg[k] = v
	}

	msg["id"] = id

	c.writeMu.Lock()
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()

	if err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("%w: write: %w", ErrClosed, err)
	}

	select {
	case f, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}

		if f.Success != nil && !*f.Success {
			ce := &CommandError{Message: "unknown error"}
			if f.Error != nil {
				ce.Code = f.Error.Code
				ce.Message = f.Error.Message
			}

			return nil, ce
		}

		return f.Result, nil
	case <-ctx.Done():
		c.dropPending(id)
		return nil, ctx.Err()
	}
}

// SubscribeEntities registers the snapshot handler and subscribes to the
// hub's entity stream. The subscription is re-established automatically
// after a reconnect.
func (c *Client) SubscribeEntities(ctx context.Context, handler func([]models.EntityRecord)) error {
	c.mu.Lock()
	c.entityHandler = handler
	c.subscribed = true
	c.mu.Unlock()

	_, err := c.SendMessage(ctx, map[string]any{"type": msgSubscribeEntities})

	return err
}

// OnReady registers a callback fired after every successful reconnect.
func (c *Client) OnReady(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readyFns = append(c.readyFns, fn)
}

// OnDisconnected registers a callback fired when the transport drops. If
// the connection is already down at registration time the callback fires
// immediately, so a drop racing the registration is never lost.
func (c *Client) OnDisconnected(fn func()) {
	c.mu.Lock()
	c.disconnectedFns = append(c.disconnectedFns, fn)
	down := c.conn == nil && !c.closed
	c.mu.Unlock()

	if down {
		fn()
	}
}

// Close shuts the connection down and stops the reconnect loop.
func (c *Client) Close() error {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil
	}

	c.closed = true
	conn := c.conn
	c.conn = nil
	c.failPendingLocked()

	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

		return conn.Close()
	}

	return nil
}

func (c *Client) dropPending(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pending, id)
}

// failPendingLocked aborts every in-flight call; receivers observe a
// closed channel and report ErrClosed.
func (c *Client) failPendingLocked() {
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		var f serverFrame

		if err := conn.ReadJSON(&f); err != nil {
			c.handleDisconnect(conn, err)
			return
		}

		switch f.Type {
		case frameEvent:
			c.mu.Lock()
			handler := c.entityHandler
			c.mu.Unlock()

			if handler != nil && f.Event != nil {
				handler(f.Event.Entities)
			}
		case frameResult:
			c.mu.Lock()
			ch := c.pending[f.ID]
			delete(c.pending, f.ID)
			c.mu.Unlock()

			if ch != nil {
				ch <- f
			}
		default:
			c.log.Debug().Str("frame_type", f.Type).Msg("Ignoring unknown frame")
		}
	}
}

func (c *Client) handleDisconnect(conn *websocket.Conn, cause error) {
	c.mu.Lock()

	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}

	c.conn = nil
	c.failPendingLocked()
	fns := append([]func(){}, c.disconnectedFns...)

	c.mu.Unlock()

	conn.Close()

	c.log.Warn().Err(cause).Str("url", c.baseURL).Msg("Hub connection lost")

	for _, fn := range fns {
		fn()
	}

	go c.reconnectLoop()
}

func (c *Client) setReconnectWait(d time.Duration) {
	c.mu.Lock()
	c.reconnectWait = d
	c.mu.Unlock()
}

func (c *Client) reconnectLoop() {
	c.mu.Lock()
	wait := c.reconnectWait
	c.mu.Unlock()

	for {
		time.Sleep(wait)

		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}

		conn, err := c.dial(context.Background())
		if err != nil {
			if errors.Is(err, ErrAuthInvalid) {
				// Retrying a revoked credential cannot succeed; the
				// connection stays down until re-authentication.
				c.log.Error().Err(err).Str("url", c.baseURL).Msg("Reconnect rejected, re-authentication required")
				return
			}

			c.log.Debug().Err(err).Str("url", c.baseURL).Dur("next_wait", wait).Msg("Reconnect attempt failed")

			wait = min(wait*2, maxReconnectWait)

			continue
		}

		c.mu.Lock()

		if c.closed {
			c.mu.Unlock()
			conn.Close()

			return
		}

		c.conn = conn
		subscribed := c.subscribed
		fns := append([]func(){}, c.readyFns...)

		c.mu.Unlock()

		go c.readLoop(conn)

		if subscribed {
			if _, err := c.SendMessage(context.Background(), map[string]any{"type": msgSubscribeEntities}); err != nil {
				c.log.Warn().Err(err).Str("url", c.baseURL).Msg("Failed to re-subscribe after reconnect")
			}
		}

		c.log.Info().Str("url", c.baseURL).Msg("Hub connection re-established")

		for _, fn := range fns {
			fn()
		}

		return
	}
}
