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
	"path/filepath"
	"strings"

	"github.com/carverauto/serviceradar-mapper/pkg/kv"
)

var errKVKeyNotFound = errors.New("key not found in KV store")

// KVConfigLoader loads a JSON document from a KV store.
type KVConfigLoader struct {
	store kv.Store
	key   string
}

// NewKVConfigLoader reads key from store. An empty key becomes
// "config/<file name without extension>" of the path passed to Load.
func NewKVConfigLoader(store kv.Store, key string) *KVConfigLoader {
	return &KVConfigLoader{store: store, key: key}
}

func (k *KVConfigLoader) keyFor(path string) string {
	if k.key != "" {
		return k.key
	}

	base := filepath.Base(path)

	return "config/" + strings.TrimSuffix(base, filepath.Ext(base))
}

// Load implements ConfigLoader by fetching and unmarshaling data from the KV store.
func (k *KVConfigLoader) Load(ctx context.Context, path string, dst interface{}) error {
	key := k.keyFor(path)

	entry, found, err := k.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to get key '%s' from KV store: %w", key, err)
	}

	if !found {
		return fmt.Errorf("%w: '%s'", errKVKeyNotFound, key)
	}

	if err := json.Unmarshal(entry.Value, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from key '%s': %w", key, err)
	}

	return nil
}
