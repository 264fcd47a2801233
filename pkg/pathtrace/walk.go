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
	"context"
	"fmt"
	"net/netip"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// walk accumulates the hops of one strategy.
type walk struct {
	snap     *snapshot
	from, to ownership
	dst      netip.Addr

	hops    []models.Hop
	links   []models.LinkRef
	partial bool
	reason  string
}

func (w *walk) reset() {
	w.hops, w.links = nil, nil
	w.partial, w.reason = false, ""
}

func (w *walk) start(ev models.HopEvidence) {
	hop := hopFor(w.from.node, ev)
	hop.IngressInterface = w.from.iface
	w.hops = []models.Hop{hop}
}

// step leaves the current node through e and arrives at next.
func (w *walk) step(e edge, next *models.ManagedNode, ev models.HopEvidence) {
	w.hops[len(w.hops)-1].EgressInterface = e.localIf

	hop := hopFor(next, ev)
	hop.IngressInterface = e.remoteIf
	w.hops = append(w.hops, hop)

	if e.link != nil {
		w.links = append(w.links, models.LinkRef{LinkID: e.link.ID, Key: e.link.Key})
	}
}

// routeWalk follows live route lookups hop by hop. It returns true once the
// destination's owner is reached. On false, w.partial tells whether the
// result is final (loop, hop limit) or the graph search should take over.
func (t *Tracer) routeWalk(ctx context.Context, w *walk) bool {
	cur := w.from.node
	ingress := w.from.iface
	visited := map[models.NodeID]struct{}{cur.ID: {}}

	w.start(models.EvidenceRouteLookup)

	for i := 0; i < t.maxHops; i++ {
		if cur.ID == w.to.node.ID {
			return true
		}

		if err := ctx.Err(); err != nil {
			w.reason = err.Error()
			return false
		}

		vrf := w.snap.vrfFor(cur.ID, ingress, w.dst)

		route, err := t.agents.For(cur.DeviceType).GetRouteTo(ctx, t.target(cur), w.dst, vrf)
		if err != nil {
			w.reason = fmt.Sprintf("route lookup on %s failed: %v", cur.DisplayName(), err)
			return false
		}

		e, next, ok := t.nextHop(ctx, w.snap, cur, route, vrf)
		if !ok {
			w.reason = fmt.Sprintf("next hop from %s via %q unresolved", cur.DisplayName(), route.OutgoingInterface)
			return false
		}

		if _, seen := visited[next.ID]; seen {
			w.partial = true
			w.reason = fmt.Sprintf("routing loop: %s revisited from %s", next.DisplayName(), cur.DisplayName())

			return false
		}

		visited[next.ID] = struct{}{}
		w.step(e, next, models.EvidenceRouteLookup)

		cur, ingress = next, e.remoteIf
	}

	if cur.ID == w.to.node.ID {
		return true
	}

	w.partial = true
	w.reason = fmt.Sprintf("hop limit %d reached", t.maxHops)

	return false
}

// nextHop turns a route into the neighboring node: a link on the outgoing
// interface, else the port the next hop's MAC is learned on, else whichever
// node owns the next-hop address.
func (t *Tracer) nextHop(ctx context.Context, snap *snapshot, cur *models.ManagedNode,
	route *devagent.Route, vrf string) (edge, *models.ManagedNode, bool) {
	candidates := snap.graph.on(cur.ID, route.OutgoingInterface)

	if len(candidates) == 1 {
		return candidates[0], snap.nodes[candidates[0].peer], true
	}

	nh := route.NextHop
	if !nh.IsValid() || nh.IsUnspecified() {
		return edge{}, nil, false
	}

	var nhOwner *models.ManagedNode
	if own, ok := snap.owners.owner(nh); ok && own.exact && own.node.ID != cur.ID {
		nhOwner = own.node
	}

	// several links share the interface: the next-hop owner picks one
	for _, e := range candidates {
		if nhOwner != nil && e.peer == nhOwner.ID {
			return e, nhOwner, true
		}
	}

	if port := t.learnedPort(ctx, cur, nh, vrf); port != "" {
		if onPort := snap.graph.on(cur.ID, port); len(onPort) == 1 {
			return onPort[0], snap.nodes[onPort[0].peer], true
		}
	}

	if nhOwner == nil {
		return edge{}, nil, false
	}

	if e, ok := snap.graph.between(cur.ID, nhOwner.ID, route.OutgoingInterface); ok {
		return e, nhOwner, true
	}

	return edge{localIf: route.OutgoingInterface}, nhOwner, true
}

// learnedPort finds the local port addr's hardware address is learned on.
func (t *Tracer) learnedPort(ctx context.Context, node *models.ManagedNode, addr netip.Addr, vrf string) string {
	agent := t.agents.For(node.DeviceType)
	target := t.target(node)

	arps, err := agent.GetAddressResolutionTable(ctx, target, vrf)
	if err != nil {
		return ""
	}

	mac := macFor(arps, addr)
	if mac == "" {
		return ""
	}

	macs, err := agent.GetLearnedMacTable(ctx, target)
	if err != nil {
		return ""
	}

	return portFor(macs, mac)
}

func macFor(arps []devagent.ArpEntry, addr netip.Addr) string {
	for _, a := range arps {
		if a.IP.Unmap() == addr {
			return devagent.NormalizeMAC(a.MAC)
		}
	}

	return ""
}

func portFor(macs []devagent.MacEntry, mac string) string {
	for _, m := range macs {
		if devagent.NormalizeMAC(m.MAC) == mac && m.Interface != "" {
			return m.Interface
		}
	}

	return ""
}

// extendL2 chases the destination's MAC from the egress node towards the
// access port it is learned on. A non-empty return explains where it stopped.
func (t *Tracer) extendL2(ctx context.Context, w *walk) string {
	cur := w.to.node

	arps, err := t.agents.For(cur.DeviceType).GetAddressResolutionTable(ctx, t.target(cur), w.snap.vrfFor(cur.ID, "", w.dst))
	if err != nil {
		return fmt.Sprintf("address resolution on %s failed: %v", cur.DisplayName(), err)
	}

	mac := macFor(arps, w.dst)
	if mac == "" {
		return fmt.Sprintf("%s not in the address resolution table of %s", w.dst, cur.DisplayName())
	}

	seen := map[models.NodeID]struct{}{cur.ID: {}}

	for i := 0; i < t.maxL2Hops; i++ {
		macs, err := t.agents.For(cur.DeviceType).GetLearnedMacTable(ctx, t.target(cur))
		if err != nil {
			return fmt.Sprintf("learned MAC table of %s unavailable: %v", cur.DisplayName(), err)
		}

		port := portFor(macs, mac)
		if port == "" {
			return fmt.Sprintf("%s not learned on %s", mac, cur.DisplayName())
		}

		links := w.snap.graph.on(cur.ID, port)
		if len(links) != 1 {
			// no inter-device link behind the port: this is the host-facing port
			w.hops[len(w.hops)-1].EgressInterface = port
			return ""
		}

		e := links[0]
		if _, ok := seen[e.peer]; ok {
			return fmt.Sprintf("MAC chase loop at %s", w.snap.nodes[e.peer].DisplayName())
		}

		seen[e.peer] = struct{}{}
		next := w.snap.nodes[e.peer]
		w.step(e, next, models.EvidenceL2MacTrace)
		cur = next
	}

	return fmt.Sprintf("L2 hop limit %d reached", t.maxL2Hops)
}
