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

import "time"

const EventTypeLinkUpdate = "link_update"

type LinkState string

const (
	LinkStateActive LinkState = "active"
	LinkStateDown   LinkState = "down"
)

// TopologyChangeEvent is published for every link status transition.
type TopologyChangeEvent struct {
	EventType       string    `json:"event_type"`
	LinkID          LinkID    `json:"link_id"`
	NodeID          NodeID    `json:"node_id"`
	NeighborNodeID  NodeID    `json:"neighbor_node_id"`
	LocalInterface  string    `json:"local_interface"`
	RemoteInterface string    `json:"remote_interface"`
	Protocol        string    `json:"protocol"`
	State           LinkState `json:"state"`
	Timestamp       time.Time `json:"timestamp"`
}
