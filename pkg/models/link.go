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

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

type LinkStatus string

const (
	LinkActive   LinkStatus = "active"
	LinkInactive LinkStatus = "inactive"
	LinkDegraded LinkStatus = "degraded"
)

// Live reports whether the link currently carries traffic as far as we know.
func (s LinkStatus) Live() bool {
	return s == LinkActive || s == LinkDegraded
}

// LinkKey is the normalized endpoint pair of a link: the lower node id is
// always A. For a self-link the lexically smaller interface is A.
type LinkKey struct {
	ANode      NodeID `json:"a_node_id"`
	AInterface string `json:"a_interface"`
	BNode      NodeID `json:"b_node_id"`
	BInterface string `json:"b_interface"`
}

// NewLinkKey builds the normalized key for an edge reported from either side.
func NewLinkKey(localNode NodeID, localIf string, remoteNode NodeID, remoteIf string) LinkKey {
	if localNode > remoteNode || (localNode == remoteNode && localIf > remoteIf) {
		localNode, remoteNode = remoteNode, localNode
		localIf, remoteIf = remoteIf, localIf
	}

	return LinkKey{ANode: localNode, AInterface: localIf, BNode: remoteNode, BInterface: remoteIf}
}

// Touches reports whether node is one of the endpoints.
func (k LinkKey) Touches(node NodeID) bool {
	return k.ANode == node || k.BNode == node
}

// Other returns the opposite endpoint of node and the two interface names as
// seen from node.
func (k LinkKey) Other(node NodeID) (peer NodeID, localIf, remoteIf string) {
	if k.ANode == node {
		return k.BNode, k.AInterface, k.BInterface
	}

	return k.ANode, k.BInterface, k.AInterface
}

// SamePair reports whether both keys join the same two nodes.
func (k LinkKey) SamePair(o LinkKey) bool {
	return k.ANode == o.ANode && k.BNode == o.BNode
}

func (k LinkKey) String() string {
	return fmt.Sprintf("%d:%s<->%d:%s", k.ANode, k.AInterface, k.BNode, k.BInterface)
}

type LinkID int64

// Link is a reconciled edge of the topology graph.
type Link struct {
	ID         LinkID     `json:"id"`
	Key        LinkKey    `json:"key"`
	Status     LinkStatus `json:"status"`
	Protocols  []Protocol `json:"protocols"`
	Confidence float64    `json:"confidence"`
	FirstSeen  time.Time  `json:"first_seen"`
	LastSeen   time.Time  `json:"last_seen"`
}

// AddProtocol unions p into the provenance set, keeping it sorted.
func (l *Link) AddProtocol(p Protocol) bool {
	for _, existing := range l.Protocols {
		if existing == p {
			return false
		}
	}

	l.Protocols = append(l.Protocols, p)
	slices.Sort(l.Protocols)

	return true
}

// JoinProtocols renders a provenance set as "cdp,lldp".
func JoinProtocols(protocols []Protocol) string {
	parts := make([]string, len(protocols))
	for i, p := range protocols {
		parts[i] = string(p)
	}

	return strings.Join(parts, ",")
}

type ChangeReason string

const (
	ChangeCreated     ChangeReason = "created"
	ChangeReactivated ChangeReason = "reactivated"
	ChangeDeactivated ChangeReason = "deactivated"
	ChangeUpgraded    ChangeReason = "upgraded"
)

// LinkChange is a durable record of one link status transition.
type LinkChange struct {
	LinkID     LinkID       `json:"link_id"`
	NodeID     NodeID       `json:"node_id"`
	FromStatus LinkStatus   `json:"from_status,omitempty"`
	ToStatus   LinkStatus   `json:"to_status"`
	Reason     ChangeReason `json:"reason"`
	At         time.Time    `json:"at"`
}
