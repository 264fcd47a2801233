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
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scope"
	"github.com/carverauto/serviceradar-mapper/pkg/topology"
)

func defaultResolver() HostResolver {
	return net.DefaultResolver
}

type frontierEntry struct {
	addr    netip.Addr
	depth   int // remaining hops
	chassis bool
}

// frontier is a FIFO queue in which chassis devices jump ahead of their
// peers at the same remaining depth.
type frontier struct {
	entries []frontierEntry
}

func (f *frontier) push(e frontierEntry) {
	f.entries = append(f.entries, e)
}

func (f *frontier) len() int {
	return len(f.entries)
}

func (f *frontier) pop() frontierEntry {
	pick := 0
	head := f.entries[0].depth

	for i := 0; i < len(f.entries) && f.entries[i].depth == head; i++ {
		if f.entries[i].chassis {
			pick = i
			break
		}
	}

	e := f.entries[pick]
	f.entries = append(f.entries[:pick], f.entries[pick+1:]...)

	return e
}

// crawlState is per-crawl bookkeeping.
type crawlState struct {
	filter    *scope.Filter
	creds     []devagent.Credentials
	queue     frontier
	seen      map[netip.Addr]struct{}
	names     map[string]netip.Addr // neighbor names already resolved in this crawl
	inspected map[netip.Addr]*models.Candidate
	result    CrawlResult
}

// crawl walks neighbor tables breadth-first from the seed, bounded by depth,
// node count and scope.
func (e *DiscoveryEngine) crawl(ctx context.Context, j *job, params *CrawlParams) (*CrawlResult, error) {
	seed, err := e.crawlSeed(ctx, params)
	if err != nil {
		return nil, err
	}

	filter, err := e.jobFilter(params.Scope)
	if err != nil {
		return nil, err
	}

	creds, err := e.jobCredentials(params.Credentials)
	if err != nil {
		return nil, err
	}

	maxDepth := e.config.CrawlMaxDepth
	if params.MaxDepth != nil {
		maxDepth = max(*params.MaxDepth, 0)
	}

	maxNodes := params.MaxNodes
	if maxNodes <= 0 {
		maxNodes = e.config.CrawlMaxNodes
	}

	st := &crawlState{
		filter:    filter,
		creds:     creds,
		seen:      map[netip.Addr]struct{}{seed: {}},
		names:     make(map[string]netip.Addr),
		inspected: make(map[netip.Addr]*models.Candidate),
	}

	st.queue.push(frontierEntry{addr: seed, depth: maxDepth})
	j.logf(logLevelInfo, "crawl from %s, max depth %d, max nodes %d", seed, maxDepth, maxNodes)

	for st.queue.len() > 0 {
		if err := ctx.Err(); err != nil {
			return &st.result, err
		}

		if st.result.Visited >= maxNodes {
			st.result.CapHit = true
			st.result.Pending = st.queue.len()
			j.logf(logLevelWarn, "node cap %d reached with %d addresses still queued", maxNodes, st.result.Pending)

			break
		}

		if st.result.Visited > 0 && e.config.CrawlDispatchDelay > 0 {
			select {
			case <-time.After(e.config.CrawlDispatchDelay):
			case <-ctx.Done():
				return &st.result, ctx.Err()
			}
		}

		entry := st.queue.pop()
		st.result.Visited++
		j.update(func(c *models.JobCounts) { c.Visited++ })

		if err := e.visit(ctx, j, st, entry); err != nil {
			if errors.Is(err, context.Canceled) {
				return &st.result, err
			}

			j.logf(logLevelWarn, "%s: %v", entry.addr, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return &st.result, err
	}

	e.autoApprove(ctx, j)

	j.logf(logLevelInfo, "crawl visited %d devices, saw %d edges, created %d candidates",
		st.result.Visited, st.result.EdgesSeen, st.result.CandidatesCreated)

	return &st.result, nil
}

func (e *DiscoveryEngine) crawlSeed(ctx context.Context, params *CrawlParams) (netip.Addr, error) {
	if params.SeedNodeID != 0 {
		node, err := e.store.GetNode(ctx, params.SeedNodeID)
		if errors.Is(err, db.ErrNodeNotFound) {
			return netip.Addr{}, fmt.Errorf("%w: %d", ErrNodeNotFound, params.SeedNodeID)
		}

		if err != nil {
			return netip.Addr{}, err
		}

		return node.Address, nil
	}

	addr, err := netip.ParseAddr(params.SeedAddress)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidAddress, params.SeedAddress)
	}

	return addr.Unmap(), nil
}

// knownNode returns the managed node owning addr when exactly one does.
func (e *DiscoveryEngine) knownNode(ctx context.Context, addr netip.Addr) (*models.ManagedNode, error) {
	nodes, err := e.store.FindNodesByAddress(ctx, addr)
	if err != nil {
		return nil, err
	}

	if len(nodes) != 1 {
		return nil, nil
	}

	return nodes[0], nil
}

func (e *DiscoveryEngine) visit(ctx context.Context, j *job, st *crawlState, entry frontierEntry) error {
	node, err := e.knownNode(ctx, entry.addr)
	if err != nil {
		return err
	}

	var (
		nodeID     models.NodeID
		deviceType string
	)

	if node != nil {
		nodeID = node.ID
		deviceType = node.DeviceType
	} else {
		cand := st.inspected[entry.addr]
		if cand == nil {
			if cand, err = e.crawlInspect(ctx, j, st, entry.addr); err != nil {
				return err
			}
		}

		if cand.HasIssue(models.IssueSNMPUnreachable) {
			j.logf(logLevelInfo, "%s: no identity, neighbors not collected", entry.addr)
			return nil
		}

		deviceType = cand.DeviceType
	}

	coll, err := e.collectEvidence(ctx, e.targetFor(entry.addr, nodeID, deviceType, st.creds))
	if err != nil {
		return err
	}

	idx, err := e.nodeIndex(ctx)
	if err != nil {
		return err
	}

	neighbors := make([]netip.Addr, 0, len(coll.evidence))

	for i := range coll.evidence {
		ev := &coll.evidence[i]

		addr, ok := e.neighborAddress(ctx, ev, st.names, idx)
		if !ok {
			j.logf(logLevelInfo, "%s: neighbor %q on %s has no resolvable address, edge skipped",
				entry.addr, ev.NeighborName, ev.LocalInterface)

			continue
		}

		ev.NeighborAddress = addr.String()
		if ev.NeighborName != "" {
			st.names[ev.NeighborName] = addr
		}

		neighbors = append(neighbors, addr)
	}

	st.result.EdgesSeen += len(coll.evidence)
	j.update(func(c *models.JobCounts) { c.EdgesSeen += len(coll.evidence) })

	if node != nil {
		if _, err := e.reconciler.Reconcile(ctx, node, coll.evidence); err != nil {
			j.logf(logLevelWarn, "%s: reconcile failed: %v", entry.addr, err)
		}
	}

	for _, addr := range neighbors {
		if _, ok := st.seen[addr]; ok {
			continue
		}

		if !st.filter.Contains(addr) {
			j.update(func(c *models.JobCounts) { c.OutOfScope++ })
			continue
		}

		if entry.depth == 0 {
			continue
		}

		st.seen[addr] = struct{}{}

		cand, err := e.crawlInspect(ctx, j, st, addr)
		if err != nil {
			return err
		}

		st.queue.push(frontierEntry{addr: addr, depth: entry.depth - 1, chassis: cand.ChassisCandidate})
	}

	return nil
}

// crawlInspect checks liveness itself since crawl targets were never swept.
func (e *DiscoveryEngine) crawlInspect(ctx context.Context, j *job, st *crawlState, addr netip.Addr) (*models.Candidate, error) {
	alive := e.prober.LivenessCheck(ctx, addr)

	cand := e.inspect(ctx, j.id, addr, st.creds)
	if !alive && cand.HasIssue(models.IssueSNMPUnreachable) {
		cand.Reachable = false
	}

	before := j.status().Counts.CandidatesCreated

	stored, err := e.recordCandidate(ctx, j, cand)
	if err != nil {
		return nil, err
	}

	if j.status().Counts.CandidatesCreated > before {
		st.result.CandidatesCreated++
	}

	st.inspected[addr] = stored

	return stored, nil
}

func (e *DiscoveryEngine) nodeIndex(ctx context.Context) (*topology.NodeIndex, error) {
	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return nil, err
	}

	addrs, err := e.store.ListNodeAddresses(ctx)
	if err != nil {
		return nil, err
	}

	return topology.NewNodeIndex(nodes, addrs), nil
}

// neighborAddress resolves where a neighbor can be reached: the announced
// address, an address-shaped name, a name already seen in this crawl, a
// unique managed node of that name, then DNS.
func (e *DiscoveryEngine) neighborAddress(ctx context.Context, ev *models.AdjacencyEvidence,
	names map[string]netip.Addr, idx *topology.NodeIndex) (netip.Addr, bool) {
	if addr, err := netip.ParseAddr(ev.NeighborAddress); err == nil {
		return addr.Unmap(), true
	}

	name := ev.NeighborName
	if name == "" {
		return netip.Addr{}, false
	}

	if addr, err := netip.ParseAddr(name); err == nil {
		return addr.Unmap(), true
	}

	if addr, ok := names[name]; ok {
		return addr, true
	}

	ids := idx.ByName(name)
	if len(ids) == 0 {
		ids = idx.ByNormalizedName(name)
	}

	if len(ids) == 1 {
		return idx.Node(ids[0]).Address, true
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	hosts, err := e.resolver.LookupHost(lookupCtx, name)
	if err != nil {
		return netip.Addr{}, false
	}

	for _, h := range hosts {
		if addr, err := netip.ParseAddr(h); err == nil {
			return addr.Unmap(), true
		}
	}

	return netip.Addr{}, false
}
