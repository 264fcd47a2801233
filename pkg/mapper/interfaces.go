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

	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/topology"
)

// Mapper is the management surface of the discovery engine and crawler.
type Mapper interface {
	// Start launches the job runners, the refresh loop and retention cleanup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the engine.
	Stop(ctx context.Context) error

	// StartDiscovery queues a discovery job over seeds and returns its id.
	StartDiscovery(ctx context.Context, params *DiscoveryParams) (string, error)

	// StartCrawl queues a neighbor crawl and returns its id.
	StartCrawl(ctx context.Context, params *CrawlParams) (string, error)

	GetJobStatus(ctx context.Context, jobID string) (*models.JobStatus, error)
	CancelJob(ctx context.Context, jobID string) error

	ApproveCandidate(ctx context.Context, id models.CandidateID) (models.NodeID, error)
	IgnoreCandidate(ctx context.Context, id models.CandidateID) error
	ListCandidates(ctx context.Context, jobID string) ([]*models.Candidate, error)
	RegisterNode(ctx context.Context, node *models.ManagedNode) (models.NodeID, error)

	// RefreshNode collects fresh evidence for one node and reconciles it.
	RefreshNode(ctx context.Context, id models.NodeID) (*topology.Result, error)
}

// Reconciler is the single writer of the link set.
type Reconciler interface {
	Reconcile(ctx context.Context, node *models.ManagedNode, evidence []models.AdjacencyEvidence) (*topology.Result, error)
}

// ApprovalHook is told about every node created from a candidate or by
// manual registration, e.g. to start a monitoring burst.
type ApprovalHook interface {
	NodeApproved(ctx context.Context, node *models.ManagedNode)
}

// ApprovalHookFunc adapts a function to ApprovalHook.
type ApprovalHookFunc func(ctx context.Context, node *models.ManagedNode)

func (f ApprovalHookFunc) NodeApproved(ctx context.Context, node *models.ManagedNode) {
	f(ctx, node)
}

// HostResolver turns neighbor names into addresses. *net.Resolver satisfies it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}
