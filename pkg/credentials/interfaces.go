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

// Package credentials persists per-connection auth material: static tokens
// stay on the local device, OAuth bundles additionally ride a shared remote
// store so a second device under the same client scope can pick up the
// primary connection's session without re-authenticating.
package credentials

import (
	"context"
	"time"
)

// KVStore is the storage interface behind both the local device cache and
// the shared remote store.
type KVStore interface {
	// Get retrieves the value for key. The boolean reports whether the
	// key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. A zero ttl persists indefinitely;
	// backends with bucket-level retention may ignore it.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}
