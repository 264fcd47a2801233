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
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/topology"
)

// RefreshNode re-reads one node's reachability, addresses and adjacency
// evidence and reconciles the result. An unreachable node or a failed
// neighbor collection leaves its links untouched.
func (e *DiscoveryEngine) RefreshNode(ctx context.Context, id models.NodeID) (*topology.Result, error) {
	node, err := e.store.GetNode(ctx, id)
	if errors.Is(err, db.ErrNodeNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	if err != nil {
		return nil, err
	}

	if !e.prober.LivenessCheck(ctx, node.Address) {
		node.Status = models.NodeStatusUnreachable
		e.saveNode(ctx, node)
		recordRefresh(ctx, "unreachable")

		return nil, fmt.Errorf("%w: %d at %s", ErrNodeUnreachable, id, node.Address)
	}

	node.Status = models.NodeStatusReachable
	node.LastSeen = e.now()
	e.saveNode(ctx, node)

	target := e.targetFor(node.Address, node.ID, node.DeviceType, nil)

	ifAddrs, err := e.agents.For(node.DeviceType).GetInterfaceAddresses(ctx, target)
	if err != nil {
		e.logger.Debug().Err(err).Int64("node_id", int64(id)).Msg("interface addresses unavailable")
	} else {
		rows := make([]models.NodeAddress, 0, len(ifAddrs))
		for _, a := range ifAddrs {
			rows = append(rows, models.NodeAddress{NodeID: id, Interface: a.Interface, Prefix: a.Prefix})
		}

		if err := e.store.ReplaceNodeAddresses(ctx, id, rows); err != nil {
			e.logger.Warn().Err(err).Int64("node_id", int64(id)).Msg("Failed to store interface addresses")
		}
	}

	coll, err := e.collectEvidence(ctx, target)
	if err != nil {
		recordRefresh(ctx, "collection_failed")
		return nil, err
	}

	res, err := e.reconciler.Reconcile(ctx, node, coll.evidence)
	if err != nil {
		recordRefresh(ctx, "reconcile_failed")
		return res, err
	}

	recordRefresh(ctx, "ok")

	e.logger.Debug().
		Int64("node_id", int64(id)).
		Int("evidence", len(coll.evidence)).
		Int("macs", coll.macs).
		Int("arps", coll.arps).
		Msg("Node refreshed")

	return res, nil
}

func (e *DiscoveryEngine) saveNode(ctx context.Context, node *models.ManagedNode) {
	if err := e.store.UpdateNode(ctx, node); err != nil {
		e.logger.Warn().Err(err).Int64("node_id", int64(node.ID)).Msg("Failed to update node status")
	}
}

// scheduleRefresh queues a node for collection without blocking.
func (e *DiscoveryEngine) scheduleRefresh(id models.NodeID) {
	select {
	case e.refreshQueue <- id:
	default:
		e.logger.Warn().Int64("node_id", int64(id)).Msg("Refresh queue full, node waits for the next cycle")
	}
}

func (e *DiscoveryEngine) refreshWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case id := <-e.refreshQueue:
			if _, err := e.RefreshNode(ctx, id); err != nil {
				e.logger.Info().Err(err).Int64("node_id", int64(id)).Msg("Initial node refresh failed")
			}
		}
	}
}

func (e *DiscoveryEngine) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.refreshAll(ctx)
		}
	}
}

// refreshAll refreshes every managed node over a bounded pool.
func (e *DiscoveryEngine) refreshAll(ctx context.Context) {
	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to list nodes for refresh")
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.RefreshWorkers)

	failed := 0

	var mu sync.Mutex

	for _, n := range nodes {
		id := n.ID

		g.Go(func() error {
			if _, err := e.RefreshNode(gctx, id); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()

				e.logger.Debug().Err(err).Int64("node_id", int64(id)).Msg("Node refresh failed")
			}

			return nil
		})
	}

	_ = g.Wait()

	e.logger.Info().Int("nodes", len(nodes)).Int("failed", failed).Msg("Refresh cycle finished")
}
