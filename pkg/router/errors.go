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
	"errors"
	"fmt"
)

// ErrConnectionUnavailable matches any ConnectionUnavailableError via
// errors.Is.
var ErrConnectionUnavailable = errors.New("connection unavailable")

// ConnectionUnavailableError is raised when a message's resolved owner has
// no active transport. The dispatch is aborted rather than silently
// skipping the owner: dropping one group could execute a command against
// some hubs but not others without any signal to the caller.
type ConnectionUnavailableError struct {
	ConnectionID string
}

func (e *ConnectionUnavailableError) Error() string {
	if e.ConnectionID == "" {
		return "no usable hub connection"
	}

	return fmt.Sprintf("hub connection %q is unavailable", e.ConnectionID)
}

func (e *ConnectionUnavailableError) Is(target error) bool {
	return target == ErrConnectionUnavailable
}
