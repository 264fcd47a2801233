/*
 * Copyright 2025 Carver Automation Corporation.
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
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
)

var (
	// ErrDstMustBeNonNilPointer indicates that the destination must be a non-nil pointer.
	ErrDstMustBeNonNilPointer = errors.New("dst must be a non-nil pointer")
	// ErrDstMustBePointerToStruct indicates that the destination must be a pointer to a struct.
	ErrDstMustBePointerToStruct = errors.New("dst must be a pointer to a struct")
)

// EnvConfigLoader loads configuration from environment variables named after
// json tags: with prefix MAPPER_, MAPPER_DATABASE_HOST sets Database.Host.
// <prefix>CONFIG_JSON, when set, replaces the per-field lookup entirely.
type EnvConfigLoader struct {
	logger logger.Logger
	prefix string
}

// NewEnvConfigLoader creates a new environment variable config loader.
func NewEnvConfigLoader(log logger.Logger, prefix string) *EnvConfigLoader {
	return &EnvConfigLoader{logger: log, prefix: prefix}
}

// Load implements ConfigLoader by reading from environment variables.
func (e *EnvConfigLoader) Load(_ context.Context, _ string, dst interface{}) error {
	if raw := os.Getenv(e.prefix + "CONFIG_JSON"); raw != "" {
		if err := json.Unmarshal([]byte(raw), dst); err != nil {
			return fmt.Errorf("failed to unmarshal %sCONFIG_JSON: %w", e.prefix, err)
		}

		e.logger.Info().Msg("Loaded configuration from CONFIG_JSON environment variable")

		return nil
	}

	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return ErrDstMustBeNonNilPointer
	}

	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return ErrDstMustBePointerToStruct
	}

	n := e.loadStruct(v, e.prefix)

	e.logger.Info().Int("fields", n).Msg("Loaded configuration from environment variables")

	return nil
}

// loadStruct fills v's tagged fields and returns how many were set.
func (e *EnvConfigLoader) loadStruct(v reflect.Value, prefix string) int {
	t := v.Type()
	set := 0

	for i := 0; i < t.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if !field.CanSet() {
			continue
		}

		name, _, _ := strings.Cut(fieldType.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}

		envName := prefix + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))

		ok, err := e.setField(field, envName)
		if err != nil {
			e.logger.Warn().
				Str("env", envName).
				Err(err).
				Msg("Ignoring environment variable")

			continue
		}

		if ok {
			set++
		}
	}

	return set
}

// setField assigns field from envName, recursing into nested structs.
// Nil struct pointers are only allocated when something beneath them is set.
func (e *EnvConfigLoader) setField(field reflect.Value, envName string) (bool, error) {
	if isDuration(field.Type()) {
		return e.setScalar(field, envName)
	}

	switch {
	case field.Kind() == reflect.Struct:
		return e.loadStruct(field, envName+"_") > 0, nil
	case field.Kind() == reflect.Ptr && field.Type().Elem().Kind() == reflect.Struct:
		fresh := reflect.New(field.Type().Elem())
		if !field.IsNil() {
			fresh.Elem().Set(field.Elem())
		}

		if e.loadStruct(fresh.Elem(), envName+"_") == 0 {
			return false, nil
		}

		field.Set(fresh)

		return true, nil
	}

	return e.setScalar(field, envName)
}

func (e *EnvConfigLoader) setScalar(field reflect.Value, envName string) (bool, error) {
	raw, ok := os.LookupEnv(envName)
	if !ok || raw == "" {
		return false, nil
	}

	if err := setFieldByKind(field, raw); err != nil {
		return false, fmt.Errorf("invalid value for %s: %w", envName, err)
	}

	e.logger.Debug().Str("env", envName).Str("value", "[set]").Msg("Loaded value from environment variable")

	return true, nil
}

// isDuration matches time.Duration and the named duration types that wrap it.
func isDuration(t reflect.Type) bool {
	return t.Kind() == reflect.Int64 && strings.HasSuffix(t.Name(), "Duration")
}

func setFieldByKind(field reflect.Value, raw string) error {
	if isDuration(field.Type()) {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}

		field.SetInt(int64(d))

		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}

		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}

		field.SetFloat(f)
	case reflect.Slice:
		// comma-separated for string slices, JSON otherwise
		if field.Type().Elem().Kind() == reflect.String && !strings.HasPrefix(strings.TrimSpace(raw), "[") {
			parts := strings.Split(raw, ",")
			slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))

			for i, p := range parts {
				slice.Index(i).SetString(strings.TrimSpace(p))
			}

			field.Set(slice)

			return nil
		}

		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	case reflect.Ptr:
		fresh := reflect.New(field.Type().Elem())
		if err := setFieldByKind(fresh.Elem(), raw); err != nil {
			return err
		}

		field.Set(fresh)
	case reflect.Invalid, reflect.Uintptr, reflect.Complex64, reflect.Complex128, reflect.Array,
		reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Struct, reflect.UnsafePointer:
		return json.Unmarshal([]byte(raw), field.Addr().Interface())
	}

	return nil
}
