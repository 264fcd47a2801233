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

package mapper

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/topology"
)

// collection is one device's adjacency evidence plus the raw tables it was
// correlated from.
type collection struct {
	evidence []models.AdjacencyEvidence
	macs     int
	arps     int
}

// targetFor builds the agent target for addr. profiles are the job's
// credentials; nil means the configured ones.
func (e *DiscoveryEngine) targetFor(addr netip.Addr, id models.NodeID, deviceType string,
	profiles []devagent.Credentials) devagent.Target {
	if len(profiles) == 0 {
		profiles = e.config.Credentials
	}

	return devagent.Target{
		NodeID:      id,
		Address:     addr,
		DeviceType:  deviceType,
		Credentials: e.credentialsOr(addr, profiles),
	}
}

// collectEvidence reads the neighbor, learned-MAC and address-resolution
// tables of target. The neighbor table is required; the other two are
// best-effort and only feed fdb_arp inference.
func (e *DiscoveryEngine) collectEvidence(ctx context.Context, target devagent.Target) (*collection, error) {
	agent := e.agents.For(target.DeviceType)

	var (
		neighbors        []devagent.Neighbor
		macs             []devagent.MacEntry
		arps             []devagent.ArpEntry
		nErr, mErr, aErr error
		g                errgroup.Group
	)

	g.Go(func() error {
		neighbors, nErr = agent.GetNeighbors(ctx, target)
		return nil
	})

	g.Go(func() error {
		macs, mErr = agent.GetLearnedMacTable(ctx, target)
		return nil
	})

	g.Go(func() error {
		arps, aErr = agent.GetAddressResolutionTable(ctx, target, "")
		return nil
	})

	_ = g.Wait()

	if nErr != nil {
		return nil, fmt.Errorf("neighbor table of %s: %w", target.Address, nErr)
	}

	if mErr != nil {
		e.logger.Debug().Err(mErr).Str("address", target.Address.String()).Msg("learned MAC table unavailable")
	}

	if aErr != nil {
		e.logger.Debug().Err(aErr).Str("address", target.Address.String()).Msg("address resolution table unavailable")
	}

	arpByMAC := make(map[string][]netip.Addr, len(arps))
	for _, a := range arps {
		if mac := devagent.NormalizeMAC(a.MAC); mac != "" && a.IP.IsValid() {
			arpByMAC[mac] = append(arpByMAC[mac], a.IP)
		}
	}

	out := &collection{macs: len(macs), arps: len(arps)}
	covered := make(map[string]struct{}, len(neighbors))

	for _, n := range neighbors {
		ev := models.AdjacencyEvidence{
			LocalNodeID:       target.NodeID,
			LocalInterface:    n.LocalInterface,
			NeighborName:      n.NeighborName,
			NeighborAddress:   n.NeighborAddress,
			NeighborChassisID: n.ChassisID,
			RemoteInterface:   n.RemoteInterface,
			Protocol:          n.Protocol,
		}

		// a MAC chassis id can be resolved through the local ARP cache
		if ev.NeighborAddress == "" {
			if ips := arpByMAC[devagent.NormalizeMAC(n.ChassisID)]; len(ips) == 1 {
				ev.NeighborAddress = ips[0].String()
			}
		}

		covered[n.LocalInterface] = struct{}{}
		out.evidence = append(out.evidence, ev)
	}

	if len(macs) == 0 || len(arpByMAC) == 0 {
		return out, nil
	}

	inferred, err := e.inferFromForwarding(ctx, target, macs, arpByMAC, covered)
	if err != nil {
		e.logger.Debug().Err(err).Str("address", target.Address.String()).Msg("fdb correlation skipped")
		return out, nil
	}

	out.evidence = append(out.evidence, inferred...)

	return out, nil
}

// inferFromForwarding turns learned MACs into fdb_arp evidence. A port only
// yields an edge when exactly one managed node is learned behind it and no
// neighbor protocol already describes it.
func (e *DiscoveryEngine) inferFromForwarding(ctx context.Context, target devagent.Target, macs []devagent.MacEntry,
	arpByMAC map[string][]netip.Addr, covered map[string]struct{}) ([]models.AdjacencyEvidence, error) {
	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	addrs, err := e.store.ListNodeAddresses(ctx)
	if err != nil {
		return nil, err
	}

	idx := topology.NewNodeIndex(nodes, addrs)
	perPort := make(map[string]map[models.NodeID]netip.Addr)

	for _, m := range macs {
		if m.EntryType != devagent.MacLearned || m.Interface == "" {
			continue
		}

		if _, ok := covered[m.Interface]; ok {
			continue
		}

		for _, ip := range arpByMAC[devagent.NormalizeMAC(m.MAC)] {
			ids := idx.ByAddress(ip)
			if len(ids) != 1 || ids[0] == target.NodeID {
				continue
			}

			if perPort[m.Interface] == nil {
				perPort[m.Interface] = make(map[models.NodeID]netip.Addr)
			}

			perPort[m.Interface][ids[0]] = ip
		}
	}

	var out []models.AdjacencyEvidence

	for port, peers := range perPort {
		if len(peers) != 1 {
			continue
		}

		for id, ip := range peers {
			out = append(out, models.AdjacencyEvidence{
				LocalNodeID:     target.NodeID,
				LocalInterface:  port,
				NeighborName:    idx.Node(id).DisplayName(),
				NeighborAddress: ip.String(),
				Protocol:        models.ProtocolFDBARP,
			})
		}
	}

	slices.SortFunc(out, func(a, b models.AdjacencyEvidence) int {
		return strings.Compare(a.LocalInterface, b.LocalInterface)
	})

	return out, nil
}
