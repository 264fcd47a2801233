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

package topology

import (
	"net/netip"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// Strategy confidences, strongest first.
const (
	ConfidenceAddress        = 0.95
	ConfidenceExactName      = 0.8
	ConfidenceNormalizedName = 0.75
	ConfidenceNamePrefix     = 0.6
)

// Outcome of resolving one announcement.
type Outcome int

const (
	Unresolved Outcome = iota
	Resolved
	Ambiguous
)

// Resolution names the node an announcement refers to.
type Resolution struct {
	Outcome    Outcome
	NodeID     models.NodeID
	Confidence float64
	Reason     string
	Matches    []models.NodeID
}

// Strategy is one step of the identity resolution ladder.
type Strategy struct {
	Name       string
	Confidence float64
	Match      func(idx *NodeIndex, ev *models.AdjacencyEvidence) []models.NodeID
}

// DefaultStrategies is the resolution order used by the reconciler.
func DefaultStrategies() []Strategy {
	return []Strategy{
		{Name: "address", Confidence: ConfidenceAddress, Match: matchAddress},
		{Name: "exact_name", Confidence: ConfidenceExactName, Match: matchExactName},
		{Name: "normalized_name", Confidence: ConfidenceNormalizedName, Match: matchNormalizedName},
		{Name: "name_prefix", Confidence: ConfidenceNamePrefix, Match: matchNamePrefix},
	}
}

// Resolve runs strategies in order. The first strategy producing any match
// other than self decides: a single match resolves, several matches are
// ambiguous and stop the ladder.
func Resolve(idx *NodeIndex, strategies []Strategy, self models.NodeID, ev *models.AdjacencyEvidence) Resolution {
	for _, s := range strategies {
		matches := without(s.Match(idx, ev), self)

		switch len(matches) {
		case 0:
			continue
		case 1:
			return Resolution{Outcome: Resolved, NodeID: matches[0], Confidence: s.Confidence, Reason: s.Name, Matches: matches}
		default:
			return Resolution{Outcome: Ambiguous, Reason: s.Name, Matches: matches}
		}
	}

	return Resolution{Outcome: Unresolved}
}

func matchAddress(idx *NodeIndex, ev *models.AdjacencyEvidence) []models.NodeID {
	if ev.NeighborAddress == "" {
		return nil
	}

	addr, err := netip.ParseAddr(ev.NeighborAddress)
	if err != nil {
		return nil
	}

	return idx.ByAddress(addr)
}

func matchExactName(idx *NodeIndex, ev *models.AdjacencyEvidence) []models.NodeID {
	if ev.NeighborName == "" {
		return nil
	}

	return idx.ByName(ev.NeighborName)
}

func matchNormalizedName(idx *NodeIndex, ev *models.AdjacencyEvidence) []models.NodeID {
	if ev.NeighborName == "" {
		return nil
	}

	return idx.ByNormalizedName(ev.NeighborName)
}

func matchNamePrefix(idx *NodeIndex, ev *models.AdjacencyEvidence) []models.NodeID {
	if ev.NeighborName == "" {
		return nil
	}

	return idx.ByNamePrefix(ev.NeighborName)
}

func without(ids []models.NodeID, self models.NodeID) []models.NodeID {
	out := ids[:0:0]

	for _, id := range ids {
		if id != self {
			out = append(out, id)
		}
	}

	return out
}
