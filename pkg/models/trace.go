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

type TraceStatus string

const (
	TraceComplete TraceStatus = "complete"
	TracePartial  TraceStatus = "partial"
	TraceError    TraceStatus = "error"
)

// HopEvidence names the strategy that produced a hop.
type HopEvidence string

const (
	EvidenceRouteLookup HopEvidence = "route_lookup"
	EvidenceL2MacTrace  HopEvidence = "l2_mac_trace"
	EvidenceGraphSearch HopEvidence = "graph_search"
)

type Hop struct {
	NodeID           NodeID      `json:"node_id"`
	NodeName         string      `json:"node_name"`
	Address          string      `json:"address,omitempty"`
	IngressInterface string      `json:"ingress_interface,omitempty"`
	EgressInterface  string      `json:"egress_interface,omitempty"`
	Evidence         HopEvidence `json:"evidence"`
}

type LinkRef struct {
	LinkID LinkID  `json:"link_id"`
	Key    LinkKey `json:"key"`
}

// PathTraceResult is the answer to a trace request. It is never persisted.
type PathTraceResult struct {
	Source      string      `json:"source"`
	Destination string      `json:"destination"`
	Status      TraceStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
	Hops        []Hop       `json:"hops"`
	Links       []LinkRef   `json:"links"`
}
