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
	"time"

	"github.com/hearthlab/panelmux/pkg/config"
	"github.com/hearthlab/panelmux/pkg/credentials"
	"github.com/hearthlab/panelmux/pkg/hub"
	"github.com/hearthlab/panelmux/pkg/logger"
)

// State is the lifecycle state of one connection supervisor. A supervisor
// never resurrects: configuration changes build a fresh Manager with fresh
// supervisors instead.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// DialFunc opens an authenticated transport to a hub. Injectable for
// tests; the default wraps hub.Connect.
type DialFunc func(ctx context.Context, baseURL string, auth hub.Authenticator, log logger.Logger) (hub.Transport, error)

// defaultUnavailableDebounce delays the "no usable connection" signal so
// normal transport reconnects do not flicker the panel's banner. It is
// cosmetic, not a correctness mechanism.
const defaultUnavailableDebounce = 3 * time.Second

// Options configures a Manager generation.
type Options struct {
	Config              config.Normalized
	Credentials         *credentials.Store
	Persister           config.Persister
	Logger              logger.Logger
	Dial                DialFunc
	UnavailableDebounce time.Duration
}
