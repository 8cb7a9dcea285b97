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
	"encoding/json"

	"github.com/hearthlab/panelmux/pkg/models"
)

// Frame types of the hub websocket protocol. The server opens with
// auth_required; after auth_ok every client frame carries a monotonically
// increasing id that the matching result frame echoes back.
const (
	frameAuthRequired = "auth_required"
	frameAuth         = "auth"
	frameAuthOK       = "auth_ok"
	frameAuthInvalid  = "auth_invalid"
	frameResult       = "result"
	frameEvent        = "event"

	msgSubscribeEntities = "subscribe_entities"
)

type serverFrame struct {
	ID      int64           `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *frameError     `json:"error,omitempty"`
	Event   *entityEvent    `json:"event,omitempty"`
	Message string          `json:"message,omitempty"`
}

type frameError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// entityEvent is a full snapshot of the sending hub's entity table.
type entityEvent struct {
	Entities []models.EntityRecord `json:"entities"`
}

type authFrame struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}
