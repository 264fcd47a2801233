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

// Package models holds the topology mapper's data model.
package models

import (
	"net/netip"
	"time"
)

// NodeID identifies a ManagedNode.
type NodeID int64

type NodeStatus string

const (
	NodeStatusUnknown     NodeStatus = "unknown"
	NodeStatusReachable   NodeStatus = "reachable"
	NodeStatusUnreachable NodeStatus = "unreachable"
)

type NodeRole string

const (
	RoleCore         NodeRole = "core"
	RoleDistribution NodeRole = "distribution"
	RoleAccess       NodeRole = "access"
	RoleEdge         NodeRole = "edge"
	RoleUnknown      NodeRole = "unknown"
)

// ManagedNode is a device known to the system.
type ManagedNode struct {
	ID         NodeID     `json:"id"`
	Address    netip.Addr `json:"address"`
	Name       string     `json:"name"`
	Hostname   string     `json:"hostname,omitempty"`
	Vendor     string     `json:"vendor,omitempty"`
	Model      string     `json:"model,omitempty"`
	OSVersion  string     `json:"os_version,omitempty"`
	DeviceType string     `json:"device_type,omitempty"`
	Role       NodeRole   `json:"role"`
	Status     NodeStatus `json:"status"`
	LastSeen   time.Time  `json:"last_seen"`
	CreatedAt  time.Time  `json:"created_at"`
}

// DisplayName is the name used when matching neighbor announcements.
func (n *ManagedNode) DisplayName() string {
	if n.Name != "" {
		return n.Name
	}

	return n.Hostname
}

// NodeAddress is an address configured on one of a node's interfaces.
type NodeAddress struct {
	NodeID    NodeID       `json:"node_id"`
	Interface string       `json:"interface"`
	Prefix    netip.Prefix `json:"prefix"`
	VRF       string       `json:"vrf,omitempty"`
}
