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

package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthlab/panelmux/pkg/logger"
)

// fakeSender records every message it was handed and replies with a
// scripted response.
type fakeSender struct {
	id       string
	response json.RawMessage
	err      error
	sent     []map[string]any
	order    *[]string
}

func (f *fakeSender) SendMessage(_ context.Context, payload map[string]any) (json.RawMessage, error) {
	f.sent = append(f.sent, payload)

	if f.order != nil {
		*f.order = append(*f.order, f.id)
	}

	if f.err != nil {
		return nil, f.err
	}

	return f.response, nil
}

type fakeProvider struct {
	primaryID  string
	configured map[string]bool
	transports map[string]*fakeSender
}

func (p *fakeProvider) PrimaryID() string { return p.primaryID }

func (p *fakeProvider) IsConfigured(connectionID string) bool {
	return p.configured[connectionID]
}

func (p *fakeProvider) ActiveTransport(connectionID string) (Sender, bool) {
	t, ok := p.transports[connectionID]
	if !ok {
		return nil, false
	}

	return t, true
}

func (p *fakeProvider) AnyActiveTransport() (string, Sender, bool) {
	if t, ok := p.transports[p.primaryID]; ok {
		return p.primaryID, t, true
	}

	for id, t := range p.transports {
		return id, t, true
	}

	return "", nil, false
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		primaryID:  "primary",
		configured: map[string]bool{"primary": true, "cabin": true},
		transports: map[string]*fakeSender{},
	}
}

func newTestRouter(p *fakeProvider) *Router {
	return New(p, logger.NewTestLogger())
}

func TestDispatchPrimaryOnlyAddresses(t *testing.T) {
	p := newFakeProvider()
	primary := &fakeSender{id: "primary", response: json.RawMessage(`{}`)}
	p.transports["primary"] = primary

	msg := map[string]any{
		"type":      "call_service",
		"entity_id": []any{"light.kitchen", "light.hall"},
	}

	_, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, primary.sent, 1)
	assert.Equal(t, []any{"light.kitchen", "light.hall"}, primary.sent[0]["entity_id"])
	assert.Equal(t, "call_service", primary.sent[0]["type"])
}

func TestDispatchSplitsAcrossOwners(t *testing.T) {
	p := newFakeProvider()

	var order []string

	primary := &fakeSender{id: "primary", order: &order, response: json.RawMessage(`{"a": 1, "shared": "primary"}`)}
	cabin := &fakeSender{id: "cabin", order: &order, response: json.RawMessage(`{"b": 2, "shared": "cabin"}`)}
	p.transports["primary"] = primary
	p.transports["cabin"] = cabin

	msg := map[string]any{
		"type":      "call_service",
		"entity_id": []any{"light.kitchen", "light.kitchen@@cabin"},
	}

	resp, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)

	// One sub-message per owner, in discovery order, bare addresses only.
	assert.Equal(t, []string{"primary", "cabin"}, order)
	require.Len(t, primary.sent, 1)
	require.Len(t, cabin.sent, 1)
	assert.Equal(t, []any{"light.kitchen"}, primary.sent[0]["entity_id"])
	assert.Equal(t, []any{"light.kitchen"}, cabin.sent[0]["entity_id"])

	// Responses shallow-merge, second owner winning on collisions.
	var merged map[string]any
	require.NoError(t, json.Unmarshal(resp, &merged))
	assert.Equal(t, float64(1), merged["a"])
	assert.Equal(t, float64(2), merged["b"])
	assert.Equal(t, "cabin", merged["shared"])
}

func TestDispatchRewritesNestedFields(t *testing.T) {
	p := newFakeProvider()
	cabin := &fakeSender{id: "cabin", response: json.RawMessage(`{}`)}
	p.transports["cabin"] = cabin

	msg := map[string]any{
		"type": "call_service",
		"service_data": map[string]any{
			"entity_id":  "light.kitchen@@cabin",
			"brightness": 42,
		},
		"target": map[string]any{
			"entity_id": []any{"light.porch@@cabin"},
		},
	}

	_, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, cabin.sent, 1)
	sub := cabin.sent[0]

	serviceData, ok := sub["service_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "light.kitchen", serviceData["entity_id"])
	assert.Equal(t, 42, serviceData["brightness"])

	target, ok := sub["target"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"light.porch"}, target["entity_id"])

	// The original message is untouched.
	assert.Equal(t, "light.kitchen@@cabin", msg["service_data"].(map[string]any)["entity_id"])
}

func TestDispatchUnavailableOwnerAborts(t *testing.T) {
	p := newFakeProvider()

	var order []string

	primary := &fakeSender{id: "primary", order: &order, response: json.RawMessage(`{}`)}
	p.transports["primary"] = primary
	// cabin configured but no active transport

	msg := map[string]any{
		"entity_id": []any{"light.kitchen", "light.kitchen@@cabin"},
	}

	_, err := newTestRouter(p).Dispatch(context.Background(), msg)

	var unavailable *ConnectionUnavailableError

	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "cabin", unavailable.ConnectionID)
	assert.ErrorIs(t, err, ErrConnectionUnavailable)

	// Sequential fan-out: the primary group had already been sent when
	// the cabin group failed. That partial side effect is the contract.
	assert.Equal(t, []string{"primary"}, order)
}

func TestDispatchUnknownOwnerFallsBackToPrimary(t *testing.T) {
	p := newFakeProvider()
	primary := &fakeSender{id: "primary", response: json.RawMessage(`{}`)}
	p.transports["primary"] = primary

	msg := map[string]any{"entity_id": "light.kitchen@@gone"}

	_, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, primary.sent, 1)
	assert.Equal(t, "light.kitchen@@gone", primary.sent[0]["entity_id"])
}

func TestDispatchWithoutAddressesPrefersPrimary(t *testing.T) {
	p := newFakeProvider()
	primary := &fakeSender{id: "primary", response: json.RawMessage(`{"ok": true}`)}
	cabin := &fakeSender{id: "cabin", response: json.RawMessage(`{}`)}
	p.transports["primary"] = primary
	p.transports["cabin"] = cabin

	msg := map[string]any{"type": "get_config"}

	_, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)

	assert.Len(t, primary.sent, 1)
	assert.Empty(t, cabin.sent)
}

func TestDispatchWithoutAddressesUsesAnyWhenPrimaryDown(t *testing.T) {
	p := newFakeProvider()
	cabin := &fakeSender{id: "cabin", response: json.RawMessage(`{}`)}
	p.transports["cabin"] = cabin

	_, err := newTestRouter(p).Dispatch(context.Background(), map[string]any{"type": "ping"})
	require.NoError(t, err)
	assert.Len(t, cabin.sent, 1)
}

func TestDispatchWithoutAddressesNoTransports(t *testing.T) {
	p := newFakeProvider()

	_, err := newTestRouter(p).Dispatch(context.Background(), map[string]any{"type": "ping"})
	assert.ErrorIs(t, err, ErrConnectionUnavailable)
}

func TestDispatchNonObjectResponsesReturnLast(t *testing.T) {
	p := newFakeProvider()
	primary := &fakeSender{id: "primary", response: json.RawMessage(`[1, 2]`)}
	cabin := &fakeSender{id: "cabin", response: json.RawMessage(`[3]`)}
	p.transports["primary"] = primary
	p.transports["cabin"] = cabin

	msg := map[string]any{
		"entity_id": []any{"light.a", "light.a@@cabin"},
	}

	resp, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)
	assert.JSONEq(t, `[3]`, string(resp))
}

func TestDispatchSingleStringAddress(t *testing.T) {
	p := newFakeProvider()
	cabin := &fakeSender{id: "cabin", response: json.RawMessage(`{}`)}
	p.transports["cabin"] = cabin

	msg := map[string]any{"entity_id": "light.kitchen@@cabin"}

	_, err := newTestRouter(p).Dispatch(context.Background(), msg)
	require.NoError(t, err)

	require.Len(t, cabin.sent, 1)
	assert.Equal(t, "light.kitchen", cabin.sent[0]["entity_id"])
}
