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

// Package router fans one outbound panel message out to the hub
// connections owning its referenced entities and merges their responses.
package router

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/hearthlab/panelmux/pkg/logger"
	"github.com/hearthlab/panelmux/pkg/scope"
)

// The router understands exactly these address fields: a top-level
// entity_id (single address or list) and an entity_id nested under the
// service_data and target sub-objects. Every other field passes through
// unexamined.
const fieldEntityID = "entity_id"

var nestedAddressFields = []string{"service_data", "target"}

// Sender is the transport surface the router needs from a connection.
type Sender interface {
	SendMessage(ctx context.Context, payload map[string]any) (json.RawMessage, error)
}

// ConnectionProvider resolves connection ids to live transports.
type ConnectionProvider interface {
	// PrimaryID is the connection whose entity ids are unscoped.
	PrimaryID() string

	// IsConfigured reports whether the id names a configured connection.
	// Addresses scoped to unknown connections fall back to the primary.
	IsConfigured(connectionID string) bool

	// ActiveTransport returns the live transport for a connection, if any.
	ActiveTransport(connectionID string) (Sender, bool)

	// AnyActiveTransport returns some live transport, preferring the
	// primary connection's.
	AnyActiveTransport() (string, Sender, bool)
}

// Router dispatches panel messages across hub connections.
type Router struct {
	provider ConnectionProvider
	log      logger.Logger
}

func New(provider ConnectionProvider, log logger.Logger) *Router {
	return &Router{provider: provider, log: log.WithComponent("router")}
}

// Dispatch routes one message. Messages without addresses go whole to the
// primary (or any) active transport. Messages with addresses are split
// into one copy per owning connection, each copy carrying only that
// owner's bare entity ids, and sent sequentially in the order the owners
// were discovered.
//
// If any owner has no active transport the dispatch aborts with
// ConnectionUnavailableError. Because sends are sequential, owners
// dispatched before the failing one have already seen their copy: a
// multi-owner command reporting failure can still have had side effects
// on earlier hubs. That partial-failure property is part of the contract.
func (r *Router) Dispatch(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	owners := r.collectOwners(msg)
	traceID := uuid.NewString()

	if len(owners) == 0 {
		return r.dispatchUnaddressed(ctx, msg)
	}

	responses := make([]json.RawMessage, 0, len(owners))

	for _, owner := range owners {
		transport, ok := r.provider.ActiveTransport(owner)
		if !ok {
			r.log.Warn().Str("trace_id", traceID).Str("owner", owner).Msg("Owner unavailable, aborting dispatch")
			return nil, &ConnectionUnavailableError{ConnectionID: owner}
		}

		sub := r.rewrite(msg, owner)

		r.log.Debug().Str("trace_id", traceID).Str("owner", owner).Msg("Dispatching sub-message")

		resp, err := transport.SendMessage(ctx, sub)
		if err != nil {
			return nil, err
		}

		responses = append(responses, resp)
	}

	return mergeResponses(responses), nil
}

func (r *Router) dispatchUnaddressed(ctx context.Context, msg map[string]any) (json.RawMessage, error) {
	if transport, ok := r.provider.ActiveTransport(r.provider.PrimaryID()); ok {
		return transport.SendMessage(ctx, msg)
	}

	if _, transport, ok := r.provider.AnyActiveTransport(); ok {
		return transport.SendMessage(ctx, msg)
	}

	return nil, &ConnectionUnavailableError{}
}

// resolveOwner decodes one address value. An owner that is not currently
// configured is treated as primary-owned, with the raw value kept intact
// as the entity id.
func (r *Router) resolveOwner(value string) scope.Address {
	primaryID := r.provider.PrimaryID()

	addr := scope.Decode(value, primaryID)
	if addr.Owner != primaryID && !r.provider.IsConfigured(addr.Owner) {
		return scope.Address{Entity: value, Owner: primaryID}
	}

	return addr
}

// collectOwners gathers every referenced address and returns the distinct
// owners in discovery order.
func (r *Router) collectOwners(msg map[string]any) []string {
	var owners []string

	seen := make(map[string]bool)

	add := func(value string) {
		owner := r.resolveOwner(value).Owner
		if !seen[owner] {
			seen[owner] = true
			owners = append(owners, owner)
		}
	}

	walk := func(v any) {
		switch t := v.(type) {
		case string:
			add(t)
		case []any:
			for _, item := range t {
				if s, ok := item.(string); ok {
					add(s)
				}
			}
		case []string:
			for _, s := range t {
				add(s)
			}
		}
	}

	walk(msg[fieldEntityID])

	for _, field := range nestedAddressFields {
		if sub, ok := msg[field].(map[string]any); ok {
			walk(sub[fieldEntityID])
		}
	}

	return owners
}

// rewrite copies msg so that every address field holds only owner's bare
// entity ids. Address fields with nothing left for this owner are dropped
// from the copy.
func (r *Router) rewrite(msg map[string]any, owner string) map[string]any {
	out := make(map[string]any, len(msg))

	for k, v := range msg {
		out[k] = v
	}

	if value, kept := r.filterAddresses(out[fieldEntityID], owner); kept {
		out[fieldEntityID] = value
	} else {
		delete(out, fieldEntityID)
	}

	for _, field := range nestedAddressFields {
		sub, ok := out[field].(map[string]any)
		if !ok {
			continue
		}

		subCopy := make(map[string]any, len(sub))
		for k, v := range sub {
			subCopy[k] = v
		}

		if value, kept := r.filterAddresses(subCopy[fieldEntityID], owner); kept {
			subCopy[fieldEntityID] = value
		} else {
			delete(subCopy, fieldEntityID)
		}

		out[field] = subCopy
	}

	return out
}

// filterAddresses reduces one address field value to owner's bare ids,
// preserving the original single-versus-list shape.
func (r *Router) filterAddresses(v any, owner string) (any, bool) {
	switch t := v.(type) {
	case string:
		if addr := r.resolveOwner(t); addr.Owner == owner {
			return addr.Entity, true
		}

		return nil, false
	case []any:
		out := make([]any, 0, len(t))

		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				// Not an address; keep it in every copy.
				out = append(out, item)
				continue
			}

			if addr := r.resolveOwner(s); addr.Owner == owner {
				out = append(out, addr.Entity)
			}
		}

		return out, len(out) > 0
	case []string:
		out := make([]string, 0, len(t))

		for _, s := range t {
			if addr := r.resolveOwner(s); addr.Owner == owner {
				out = append(out, addr.Entity)
			}
		}

		return out, len(out) > 0
	default:
		return nil, false
	}
}

// mergeResponses shallow-merges responses that are all JSON objects,
// later groups winning on key collisions. Anything else returns the last
// response verbatim.
func mergeResponses(responses []json.RawMessage) json.RawMessage {
	if len(responses) == 0 {
		return nil
	}

	if len(responses) == 1 {
		return responses[0]
	}

	merged := make(map[string]json.RawMessage)

	for _, resp := range responses {
		var obj map[string]json.RawMessage

		if len(resp) == 0 || json.Unmarshal(resp, &obj) != nil || obj == nil {
			return responses[len(responses)-1]
		}

		for k, v := range obj {
			merged[k] = v
		}
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return responses[len(responses)-1]
	}

	return out
}
