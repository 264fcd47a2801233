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
	"encoding/json"
	"strings"
)

const redacted = "[redacted]"

//nolint:gochecknoglobals // fixed key list
var sensitiveKeys = []string{"password", "community", "secret", "token"}

// SanitizeForLog renders cfg as JSON with credentials and passwords masked.
func SanitizeForLog(cfg interface{}) ([]byte, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	return json.Marshal(mask(doc))
}

func mask(v interface{}) interface{} {
	switch value := v.(type) {
	case map[string]interface{}:
		for k, inner := range value {
			if isSensitive(k) {
				if s, ok := inner.(string); ok && s != "" {
					value[k] = redacted
				}

				continue
			}

			value[k] = mask(inner)
		}
	case []interface{}:
		for i := range value {
			value[i] = mask(value[i])
		}
	}

	return v
}

func isSensitive(key string) bool {
	key = strings.ToLower(key)

	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}

	return false
}
