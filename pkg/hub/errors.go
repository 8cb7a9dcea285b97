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
	"errors"
	"fmt"
)

var (
	// ErrAuthInvalid means the hub explicitly rejected our credentials.
	// Callers clear the cached credential instead of retrying.
	ErrAuthInvalid = errors.New("hub rejected authentication")

	// ErrConnectFailed wraps transport-level failures to establish a session.
	ErrConnectFailed = errors.New("failed to connect to hub")

	// ErrClosed is returned for operations on a closed client.
	ErrClosed = errors.New("hub connection closed")

	errUnexpectedFrame = errors.New("unexpected frame during handshake")
	errNoAccessToken   = errors.New("no access token available")
)

// CommandError is a hub-reported failure for one request/response call.
type CommandError struct {
	Code    string
	Message string
}

func (e *CommandError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("hub command failed: %s", e.Message)
	}

	return fmt.Sprintf("hub command failed (%s): %s", e.Code, e.Message)
}
