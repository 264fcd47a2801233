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

package db

import (
	"encoding/json"
	"fmt"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// encodeCandidateJSON renders the JSONB columns of a candidate. Nil
// collections are written as empty documents.
func encodeCandidateJSON(c *models.Candidate) (issues, evidence string, err error) {
	list := c.Issues
	if list == nil {
		list = []models.Issue{}
	}

	ib, err := json.Marshal(list)
	if err != nil {
		return "", "", fmt.Errorf("encode issues: %w", err)
	}

	ev := c.Evidence
	if ev == nil {
		ev = map[string]string{}
	}

	eb, err := json.Marshal(ev)
	if err != nil {
		return "", "", fmt.Errorf("encode evidence: %w", err)
	}

	return string(ib), string(eb), nil
}

func decodeCandidateJSON(c *models.Candidate, issues, evidence []byte) error {
	if len(issues) > 0 {
		if err := json.Unmarshal(issues, &c.Issues); err != nil {
			return fmt.Errorf("decode issues: %w", err)
		}
	}

	if len(evidence) > 0 {
		if err := json.Unmarshal(evidence, &c.Evidence); err != nil {
			return fmt.Errorf("decode evidence: %w", err)
		}
	}

	if len(c.Evidence) == 0 {
		c.Evidence = nil
	}

	return nil
}
