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

// Package manager supervises the configured hub connections: one
// supervisor per connection handles auth, connect, fallback and
// reconnect; the manager combines their snapshots into the merged entity
// table and exposes the live transports to the router.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/hearthlab/panelmux/pkg/aggregator"
	"github.com/hearthlab/panelmux/pkg/config"
	"github.com/hearthlab/panelmux/pkg/credentials"
	"github.com/hearthlab/panelmux/pkg/hub"
	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/models"
	"github.com/hearthlab/panelmux/pkg/router"
)

// Manager owns one configuration generation. Configuration changes build
// a new Manager and Shutdown the old one; a late completion from a
// previous generation can never mutate the new generation's state because
// the generations share no mutable state at all.
type Manager struct {
	cfg       config.Normalized
	creds     *credentials.Store
	persister config.Persister
	log       logger.Logger
	dial      DialFunc
	debounce  time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	supervisors   map[string]*supervisor
	states        map[string]models.ConnectionState
	snapshots     map[string][]models.EntityRecord
	meta          map[string]aggregator.ConnectionMeta
	table         map[string]models.EntityRecord
	authExpired   bool
	available     bool
	debounceTimer *time.Timer

	readyFns        []func()
	disconnectedFns []func()
	availabilityFns []func(available bool)
	authExpiredFns  []func()
}

var _ router.ConnectionProvider = (*Manager)(nil)

// New builds a Manager for the given normalized configuration. Call
// Connect to start the supervisors and Shutdown to tear the generation
// down.
func New(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	dial := opts.Dial
	if dial == nil {
		dial = func(ctx context.Context, baseURL string, auth hub.Authenticator, log logger.Logger) (hub.Transport, error) {
			return hub.Connect(ctx, baseURL, auth, log)
		}
	}

	debounce := opts.UnavailableDebounce
	if debounce == 0 {
		debounce = defaultUnavailableDebounce
	}

	meta := make(map[string]aggregator.ConnectionMeta, len(opts.Config.Connections))
	for _, c := range opts.Config.Connections {
		meta[c.ID] = aggregator.ConnectionMeta{ID: c.ID, Name: c.Name}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:         opts.Config,
		creds:       opts.Credentials,
		persister:   opts.Persister,
		log:         log.WithComponent("manager"),
		dial:        dial,
		debounce:    debounce,
		ctx:         ctx,
		cancel:      cancel,
		supervisors: make(map[string]*supervisor),
		states:      make(map[string]models.ConnectionState),
		snapshots:   make(map[string][]models.EntityRecord),
		meta:        meta,
		table:       make(map[string]models.EntityRecord),
	}
}

// Connect spins up one supervisor per configured connection. Each runs
// its connect attempt independently; failures become per-connection state
// rather than errors, since no single caller awaits a connect.
func (m *Manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	for _, c := range m.cfg.Connections {
		s := newSupervisor(m, c, c.ID == m.cfg.PrimaryID)
		m.supervisors[c.ID] = s

		go s.start(m.ctx)
	}
}

// Shutdown cancels the generation and closes every live transport. The
// Manager is unusable afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	m.closed = true

	if m.debounceTimer != nil {
		m.debounceTimer.Stop()
		m.debounceTimer = nil
	}

	transports := make([]hub.Transport, 0, len(m.supervisors))

	for _, s := range m.supervisors {
		if t := s.activeTransport(); t != nil {
			transports = append(transports, t)
		}
	}

	m.states = make(map[string]models.ConnectionState)
	m.snapshots = make(map[string][]models.EntityRecord)
	m.table = make(map[string]models.EntityRecord)

	m.mu.Unlock()

	m.cancel()

	for _, t := range transports {
		if err := t.Close(); err != nil {
			m.log.Warn().Err(err).Msg("Error closing transport during shutdown")
		}
	}
}

// Snapshot returns a copy of the merged entity table.
func (m *Manager) Snapshot() map[string]models.EntityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.EntityRecord, len(m.table))
	for k, v := range m.table {
		out[k] = v
	}

	return out
}

// ConnectionStates returns a copy of every connection's live state.
func (m *Manager) ConnectionStates() map[string]models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]models.ConnectionState, len(m.states))
	for k, v := range m.states {
		out[k] = v
	}

	return out
}

// AuthExpired reports whether the primary connection's credentials were
// explicitly rejected and the user must re-authenticate.
func (m *Manager) AuthExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.authExpired
}

// OnReady registers a callback fired whenever the primary connection
// becomes connected: once on first connect and again on every reconnect.
// Legacy single-connection call sites treat this as "the" connection.
func (m *Manager) OnReady(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readyFns = append(m.readyFns, fn)
}

// OnDisconnected registers a callback fired when the primary connection
// drops.
func (m *Manager) OnDisconnected(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.disconnectedFns = append(m.disconnectedFns, fn)
}

// OnAvailabilityChanged registers a callback for the debounced "any
// usable connection" signal backing the panel's unavailable banner.
func (m *Manager) OnAvailabilityChanged(fn func(available bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.availabilityFns = append(m.availabilityFns, fn)
}

// OnAuthExpired registers a callback fired when the primary connection's
// credentials are rejected.
func (m *Manager) OnAuthExpired(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.authExpiredFns = append(m.authExpiredFns, fn)
}

// PrimaryID implements router.ConnectionProvider.
func (m *Manager) PrimaryID() string {
	return m.cfg.PrimaryID
}

// IsConfigured implements router.ConnectionProvider.
func (m *Manager) IsConfigured(connectionID string) bool {
	_, ok := m.cfg.Connection(connectionID)
	return ok
}

// ActiveTransport implements router.ConnectionProvider.
func (m *Manager) ActiveTransport(connectionID string) (router.Sender, bool) {
	m.mu.Lock()
	s, ok := m.supervisors[connectionID]
	connected := ok && m.states[connectionID].Connected
	m.mu.Unlock()

	if !connected {
		return nil, false
	}

	t := s.activeTransport()
	if t == nil {
		return nil, false
	}

	return t, true
}

// AnyActiveTransport implements router.ConnectionProvider, preferring the
// primary connection.
func (m *Manager) AnyActiveTransport() (string, router.Sender, bool) {
	if t, ok := m.ActiveTransport(m.cfg.PrimaryID); ok {
		return m.cfg.PrimaryID, t, true
	}

	for _, c := range m.cfg.Connections {
		if t, ok := m.ActiveTransport(c.ID); ok {
			return c.ID, t, true
		}
	}

	return "", nil, false
}

func (m *Manager) supervisor(connectionID string) *supervisor {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.supervisors[connectionID]
}

// setConnectionState records a supervisor's connect outcome.
func (m *Manager) setConnectionState(connectionID string, state models.ConnectionState) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	previous := m.states[connectionID]
	m.states[connectionID] = state

	fns := m.connectivityTransitionLocked(connectionID, previous.Connected, state.Connected)

	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// setConnected flips one connection's connected flag from the transport's
// own ready/disconnected callbacks without touching the resolved URL.
func (m *Manager) setConnected(connectionID string, connected bool) {
	m.mu.Lock()

	if m.closed {
		m.mu.Unlock()
		return
	}

	state := m.states[connectionID]
	previous := state.Connected
	state.Connected = connected
	m.states[connectionID] = state

	fns := m.connectivityTransitionLocked(connectionID, previous, connected)

	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// connectivityTransitionLocked computes the callbacks owed for one
// connection's connectivity change: primary ready/disconnected events and
// the debounced availability signal.
func (m *Manager) connectivityTransitionLocked(connectionID string, was, is bool) []func() {
	var fns []func()

	if connectionID == m.cfg.PrimaryID && was != is {
		registered := m.readyFns
		if !is {
			registered = m.disconnectedFns
		}

		fns = append(fns, registered...)
	}

	if was == is {
		return fns
	}

	active := 0

	for _, s := range m.states {
		if s.Connected {
			active++
		}
	}

	switch {
	case active > 0:
		if m.debounceTimer != nil {
			m.debounceTimer.Stop()
			m.debounceTimer = nil
		}

		if !m.available {
			m.available = true

			for _, fn := range m.availabilityFns {
				fn := fn
				fns = append(fns, func() { fn(true) })
			}
		}
	case m.debounceTimer == nil:
		m.debounceTimer = time.AfterFunc(m.debounce, m.debouncedUnavailable)
	}

	return fns
}

// debouncedUnavailable fires after the debounce window with still no
// usable connection.
func (m *Manager) debouncedUnavailable() {
	m.mu.Lock()

	m.debounceTimer = nil

	if m.closed || !m.available {
		m.mu.Unlock()
		return
	}

	for _, s := range m.states {
		if s.Connected {
			m.mu.Unlock()
			return
		}
	}

	m.available = false
	fns := append([]func(bool){}, m.availabilityFns...)

	m.mu.Unlock()

	for _, fn := range fns {
		fn(false)
	}
}

// applySnapshot replaces one connection's snapshot and recomputes the
// merged table. The recompute is total: each snapshot already replaces
// its connection's whole address space.
func (m *Manager) applySnapshot(connectionID string, records []models.EntityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.snapshots[connectionID] = records
	m.table = aggregator.Merge(m.snapshots, m.cfg.PrimaryID, m.meta, m.log)
}

// flagAuthExpired latches the process-wide credentials-expired signal for
// the primary connection.
func (m *Manager) flagAuthExpired() {
	m.mu.Lock()

	if m.closed || m.authExpired {
		m.mu.Unlock()
		return
	}

	m.authExpired = true
	fns := append([]func(){}, m.authExpiredFns...)

	m.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// persistResolvedURL writes a connection's healed URL back into persisted
// configuration so a redirect or renamed host sticks across restarts.
func (m *Manager) persistResolvedURL(ctx context.Context, connectionID, resolvedURL string) {
	if m.persister == nil {
		return
	}

	m.mu.Lock()

	connections := make([]models.ConnectionConfig, len(m.cfg.Connections))
	copy(connections, m.cfg.Connections)

	for i := range connections {
		if connections[i].ID == connectionID {
			connections[i].URL = resolvedURL
		}
	}

	m.cfg.Connections = connections
	primaryID := m.cfg.PrimaryID

	m.mu.Unlock()

	if err := m.persister.PersistConnections(ctx, connections, primaryID); err != nil {
		m.log.Warn().Err(err).
			Str("connection_id", connectionID).
			Str("resolved_url", resolvedURL).
			Msg("Failed to persist self-healed URL")
	}
}
