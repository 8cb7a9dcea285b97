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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/hearthlab/panelmux/pkg/logger"
)

// ConfigLoader loads configuration into a destination struct.
type ConfigLoader interface {
	Load(ctx context.Context, path string, dst interface{}) error
}

// FileConfigLoader loads configuration from a local JSON file.
type FileConfigLoader struct{}

// Load implements ConfigLoader by reading and unmarshaling a JSON file.
func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	err = json.Unmarshal(data, dst)
	if err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}

// EnvOverlay applies PANELMUX_-prefixed environment variables on top of an
// already-loaded config struct. Variable names follow the json tags of the
// struct fields, uppercased, with nesting separated by underscores
// (PANELMUX_LISTEN_ADDR, PANELMUX_LOGGING_LEVEL, ...). Only scalar fields
// are overlaid; lists such as the connections table come from the file.
type EnvOverlay struct {
	logger logger.Logger
	prefix string
}

// NewEnvOverlay creates an overlay with the given variable prefix. An empty
// prefix defaults to "PANELMUX_".
func NewEnvOverlay(log logger.Logger, prefix string) *EnvOverlay {
	if prefix == "" {
		prefix = "PANELMUX_"
	}

	return &EnvOverlay{logger: log, prefix: prefix}
}

var errDstMustBeStructPointer = fmt.Errorf("dst must be a non-nil pointer to a struct")

// Apply walks dst and overwrites fields for which a matching environment
// variable is set.
func (e *EnvOverlay) Apply(dst interface{}) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() || v.Elem().Kind() != reflect.Struct {
		return errDstMustBeStructPointer
	}

	return e.applyStruct(v.Elem(), e.prefix)
}

func (e *EnvOverlay) applyStruct(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		if !field.CanSet() {
			continue
		}

		tag := strings.Split(t.Field(i).Tag.Get("json"), ",")[0]
		if tag == "" || tag == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(tag)

		if done, err := e.applyNested(field, envName); done {
			if err != nil {
				return err
			}

			continue
		}

		value, ok := os.LookupEnv(envName)
		if !ok {
			continue
		}

		if err := setScalar(field, value); err != nil {
			return fmt.Errorf("%s: %w", envName, err)
		}

		if e.logger != nil {
			e.logger.Debug().Str("env", envName).Msg("Applied environment override")
		}
	}

	return nil
}

// applyNested recurses into struct and *struct fields. It reports whether
// the field was handled as a nested struct.
func (e *EnvOverlay) applyNested(field reflect.Value, envName string) (bool, error) {
	switch {
	case field.Kind() == reflect.Struct:
		return true, e.applyStruct(field, envName+"_")
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		if field.IsNil() {
			if !envPrefixPresent(envName + "_") {
				return true, nil
			}

			field.Set(reflect.New(field.Type().Elem()))
		}

		return true, e.applyStruct(field.Elem(), envName+"_")
	default:
		return false, nil
	}
}

// envPrefixPresent reports whether any environment variable starts with the
// given prefix, so nil sub-configs are only allocated when something sets
// one of their fields.
func envPrefixPresent(prefix string) bool {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, prefix) {
			return true
		}
	}

	return false
}

func setScalar(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}

		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}
