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

package pathtrace

import (
	"cmp"
	"context"
	"fmt"
	"net/netip"
	"slices"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// ownership ties an address to the node and interface it lives on.
type ownership struct {
	node  *models.ManagedNode
	iface string
	vrf   string
	exact bool
}

type subnetOwner struct {
	prefix netip.Prefix
	own    ownership
}

// ownerIndex resolves addresses to nodes: an exact host address beats any
// subnet, and longer prefixes beat shorter ones.
type ownerIndex struct {
	exact   map[netip.Addr]ownership
	subnets []subnetOwner
}

func newOwnerIndex(nodes map[models.NodeID]*models.ManagedNode, ids []models.NodeID, addrs []models.NodeAddress) *ownerIndex {
	idx := &ownerIndex{exact: make(map[netip.Addr]ownership)}

	for _, id := range ids {
		n := nodes[id]
		if _, taken := idx.exact[n.Address]; !taken && n.Address.IsValid() {
			idx.exact[n.Address] = ownership{node: n, exact: true}
		}
	}

	for _, a := range addrs {
		n, ok := nodes[a.NodeID]
		if !ok || !a.Prefix.IsValid() {
			continue
		}

		host := a.Prefix.Addr().Unmap()
		if _, taken := idx.exact[host]; !taken {
			idx.exact[host] = ownership{node: n, iface: a.Interface, vrf: a.VRF, exact: true}
		}

		if a.Prefix.Bits() < host.BitLen() {
			idx.subnets = append(idx.subnets, subnetOwner{
				prefix: a.Prefix.Masked(),
				own:    ownership{node: n, iface: a.Interface, vrf: a.VRF},
			})
		}
	}

	slices.SortStableFunc(idx.subnets, func(a, b subnetOwner) int {
		if c := cmp.Compare(b.prefix.Bits(), a.prefix.Bits()); c != 0 {
			return c
		}

		return cmp.Compare(a.own.node.ID, b.own.node.ID)
	})

	return idx
}

func (idx *ownerIndex) owner(addr netip.Addr) (ownership, bool) {
	if own, ok := idx.exact[addr]; ok {
		return own, true
	}

	for _, s := range idx.subnets {
		if s.prefix.Contains(addr) {
			return s.own, true
		}
	}

	return ownership{}, false
}

// edge is a live link seen from one of its endpoints.
type edge struct {
	link     *models.Link
	peer     models.NodeID
	localIf  string
	remoteIf string
}

// graph holds every live link per node, ordered by discovery.
type graph struct {
	adj map[models.NodeID][]edge
}

func newGraph(links []*models.Link) *graph {
	live := make([]*models.Link, 0, len(links))

	for _, l := range links {
		if l.Status.Live() {
			live = append(live, l)
		}
	}

	slices.SortStableFunc(live, func(a, b *models.Link) int {
		if c := a.FirstSeen.Compare(b.FirstSeen); c != 0 {
			return c
		}

		return cmp.Compare(a.ID, b.ID)
	})

	g := &graph{adj: make(map[models.NodeID][]edge)}

	for _, l := range live {
		k := l.Key
		g.adj[k.ANode] = append(g.adj[k.ANode], edge{link: l, peer: k.BNode, localIf: k.AInterface, remoteIf: k.BInterface})
		g.adj[k.BNode] = append(g.adj[k.BNode], edge{link: l, peer: k.ANode, localIf: k.BInterface, remoteIf: k.AInterface})
	}

	return g
}

// on returns the live links leaving node through iface.
func (g *graph) on(node models.NodeID, iface string) []edge {
	if iface == "" {
		return nil
	}

	var out []edge

	for _, e := range g.adj[node] {
		if e.localIf == iface {
			out = append(out, e)
		}
	}

	return out
}

// between returns the first live link joining a and b, preferring one that
// leaves a through iface.
func (g *graph) between(a, b models.NodeID, iface string) (edge, bool) {
	var (
		found edge
		ok    bool
	)

	for _, e := range g.adj[a] {
		if e.peer != b {
			continue
		}

		if iface != "" && e.localIf == iface {
			return e, true
		}

		if !ok {
			found, ok = e, true
		}
	}

	return found, ok
}

// search runs a breadth-first search over active links. Neighbors are
// expanded in discovery order, so the first shortest path found wins.
func (g *graph) search(w *walk) bool {
	src, dst := w.from.node.ID, w.to.node.ID

	type parent struct {
		via  edge
		prev models.NodeID
	}

	parents := map[models.NodeID]parent{src: {}}
	queue := []models.NodeID{src}

	for len(queue) > 0 && !hasKey(parents, dst) {
		cur := queue[0]
		queue = queue[1:]

		for _, e := range g.adj[cur] {
			if e.link.Status != models.LinkActive {
				continue
			}

			if _, seen := parents[e.peer]; seen {
				continue
			}

			parents[e.peer] = parent{via: e, prev: cur}
			queue = append(queue, e.peer)
		}
	}

	if !hasKey(parents, dst) {
		return false
	}

	var path []edge
	for at := dst; at != src; at = parents[at].prev {
		path = append(path, parents[at].via)
	}

	slices.Reverse(path)

	w.start(models.EvidenceGraphSearch)

	for _, e := range path {
		w.step(e, w.snap.nodes[e.peer], models.EvidenceGraphSearch)
	}

	return true
}

func hasKey[K comparable, V any](m map[K]V, k K) bool {
	_, ok := m[k]
	return ok
}

// snapshot is the inventory one trace works against.
type snapshot struct {
	nodes  map[models.NodeID]*models.ManagedNode
	addrs  map[models.NodeID][]models.NodeAddress
	owners *ownerIndex
	graph  *graph
}

func (t *Tracer) load(ctx context.Context) (*snapshot, error) {
	nodes, err := t.store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}

	addrs, err := t.store.ListNodeAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load node addresses: %w", err)
	}

	links, err := t.store.ListLinks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}

	snap := &snapshot{
		nodes: make(map[models.NodeID]*models.ManagedNode, len(nodes)),
		addrs: make(map[models.NodeID][]models.NodeAddress),
		graph: newGraph(links),
	}

	ids := make([]models.NodeID, 0, len(nodes))

	for _, n := range nodes {
		snap.nodes[n.ID] = n
		ids = append(ids, n.ID)
	}

	slices.Sort(ids)

	for _, a := range addrs {
		snap.addrs[a.NodeID] = append(snap.addrs[a.NodeID], a)
	}

	snap.owners = newOwnerIndex(snap.nodes, ids, addrs)

	return snap, nil
}

// vrfFor picks the routing context on node: the VRF of the ingress
// interface, else that of the longest local prefix covering dst.
func (s *snapshot) vrfFor(node models.NodeID, ingress string, dst netip.Addr) string {
	best := -1
	vrf := ""

	for _, a := range s.addrs[node] {
		if ingress != "" && a.Interface == ingress {
			return a.VRF
		}

		if a.Prefix.Masked().Contains(dst) && a.Prefix.Bits() > best {
			best = a.Prefix.Bits()
			vrf = a.VRF
		}
	}

	return vrf
}
