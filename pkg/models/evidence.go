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

package models

// Protocol tags the collector an adjacency was learned from.
type Protocol string

const (
	ProtocolLLDP      Protocol = "lldp"
	ProtocolCDP       Protocol = "cdp"
	ProtocolFDBARP    Protocol = "fdb_arp"
	ProtocolHeuristic Protocol = "heuristic"
)

// Weight is the inherent reliability of adjacencies reported by p.
func (p Protocol) Weight() float64 {
	switch p {
	case ProtocolLLDP, ProtocolCDP:
		return 1.0
	case ProtocolFDBARP:
		return 0.7
	case ProtocolHeuristic:
		return 0.4
	default:
		return 0.4
	}
}

// AdjacencyEvidence is one observed, not yet reconciled, neighbor relationship.
type AdjacencyEvidence struct {
	LocalNodeID       NodeID   `json:"local_node_id"`
	LocalInterface    string   `json:"local_interface"`
	NeighborName      string   `json:"neighbor_name"`
	NeighborAddress   string   `json:"neighbor_address,omitempty"`
	NeighborChassisID string   `json:"neighbor_chassis_id,omitempty"`
	RemoteInterface   string   `json:"remote_interface"`
	Protocol          Protocol `json:"protocol"`
}

func (e *AdjacencyEvidence) Weight() float64 {
	return e.Protocol.Weight()
}
