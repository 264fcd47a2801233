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
	"strings"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// minPrefixLen keeps very short announced names from prefix-matching
// half the inventory.
const minPrefixLen = 3

// NodeIndex is a read-only snapshot of the node inventory used to resolve
// neighbor announcements.
type NodeIndex struct {
	nodes      map[models.NodeID]*models.ManagedNode
	order      []models.NodeID
	byAddr     map[netip.Addr][]models.NodeID
	byName     map[string][]models.NodeID
	byNormName map[string][]models.NodeID
}

// NewNodeIndex indexes nodes by management address, node-local addresses,
// names and normalized names.
func NewNodeIndex(nodes []*models.ManagedNode, addrs []models.NodeAddress) *NodeIndex {
	idx := &NodeIndex{
		nodes:      make(map[models.NodeID]*models.ManagedNode, len(nodes)),
		byAddr:     make(map[netip.Addr][]models.NodeID),
		byName:     make(map[string][]models.NodeID),
		byNormName: make(map[string][]models.NodeID),
	}

	for _, node := range nodes {
		if node == nil {
			continue
		}

		idx.nodes[node.ID] = node
		idx.order = append(idx.order, node.ID)

		if node.Address.IsValid() {
			idx.addAddr(node.Address, node.ID)
		}

		for _, name := range []string{node.Name, node.Hostname} {
			if name == "" {
				continue
			}

			idx.byName[name] = appendUnique(idx.byName[name], node.ID)

			if norm := NormalizeName(name); norm != "" {
				idx.byNormName[norm] = appendUnique(idx.byNormName[norm], node.ID)
			}
		}
	}

	for _, addr := range addrs {
		if _, ok := idx.nodes[addr.NodeID]; ok && addr.Prefix.IsValid() {
			idx.addAddr(addr.Prefix.Addr(), addr.NodeID)
		}
	}

	return idx
}

func (idx *NodeIndex) addAddr(addr netip.Addr, id models.NodeID) {
	addr = addr.Unmap()
	idx.byAddr[addr] = appendUnique(idx.byAddr[addr], id)
}

// Node returns the indexed node with id, or nil.
func (idx *NodeIndex) Node(id models.NodeID) *models.ManagedNode {
	return idx.nodes[id]
}

// ByAddress returns every node owning addr.
func (idx *NodeIndex) ByAddress(addr netip.Addr) []models.NodeID {
	return idx.byAddr[addr.Unmap()]
}

// ByName returns nodes whose name or hostname equals name exactly.
func (idx *NodeIndex) ByName(name string) []models.NodeID {
	return idx.byName[name]
}

// ByNormalizedName returns nodes whose normalized name equals the
// normalized form of name.
func (idx *NodeIndex) ByNormalizedName(name string) []models.NodeID {
	return idx.byNormName[NormalizeName(name)]
}

// ByNamePrefix returns nodes where one normalized name is a prefix of the other.
func (idx *NodeIndex) ByNamePrefix(name string) []models.NodeID {
	norm := NormalizeName(name)
	if len(norm) < minPrefixLen {
		return nil
	}

	var out []models.NodeID

	for _, id := range idx.order {
		node := idx.nodes[id]

		for _, candidate := range []string{node.Name, node.Hostname} {
			other := NormalizeName(candidate)
			if len(other) < minPrefixLen {
				continue
			}

			if strings.HasPrefix(other, norm) || strings.HasPrefix(norm, other) {
				out = appendUnique(out, id)
			}
		}
	}

	return out
}

// NormalizeName lowercases name, drops any domain suffix and strips
// separators so "Core-SW1.example.net" and "core_sw1" compare equal.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	if _, err := netip.ParseAddr(name); err == nil {
		return name
	}

	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}

	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', ':':
			return -1
		default:
			return r
		}
	}, name)
}

func appendUnique(ids []models.NodeID, id models.NodeID) []models.NodeID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}

	return append(ids, id)
}
