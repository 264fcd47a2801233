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

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// autoApprove promotes this job's new candidates that the policy allows.
func (e *DiscoveryEngine) autoApprove(ctx context.Context, j *job) {
	if !e.config.AutoApproval.Enabled {
		return
	}

	for _, id := range j.createdCandidates() {
		if ctx.Err() != nil || j.terminated() {
			return
		}

		cand, err := e.store.GetCandidate(ctx, id)
		if err != nil {
			j.logf(logLevelWarn, "auto-approval: candidate %d: %v", id, err)
			continue
		}

		if !e.config.AutoApproval.Allows(cand) {
			continue
		}

		nodeID, err := e.promote(ctx, cand)
		if err != nil {
			j.logf(logLevelWarn, "auto-approval of %s failed: %v", cand.Address, err)
			continue
		}

		j.update(func(c *models.JobCounts) { c.Approved++ })
		j.logf(logLevelInfo, "auto-approved %s as node %d", cand.Address, nodeID)
	}
}

// ApproveCandidate promotes a candidate into a managed node. Approving an
// already promoted candidate returns its node.
func (e *DiscoveryEngine) ApproveCandidate(ctx context.Context, id models.CandidateID) (models.NodeID, error) {
	cand, err := e.store.GetCandidate(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrCandidateNotFound) {
			return 0, fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
		}

		return 0, err
	}

	if cand.Status == models.CandidateApproved || cand.Status == models.CandidateExisting {
		if cand.NodeID != 0 {
			return cand.NodeID, nil
		}
	}

	if cand.HasBlockingIssue() {
		return 0, fmt.Errorf("%w: %d", ErrCandidateBlocked, id)
	}

	return e.promote(ctx, cand)
}

// IgnoreCandidate hides a candidate from approval.
func (e *DiscoveryEngine) IgnoreCandidate(ctx context.Context, id models.CandidateID) error {
	cand, err := e.store.GetCandidate(ctx, id)
	if err != nil {
		if errors.Is(err, db.ErrCandidateNotFound) {
			return fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
		}

		return err
	}

	if cand.Status == models.CandidateApproved {
		return fmt.Errorf("%w: %d is %s", ErrCandidateNotPending, id, cand.Status)
	}

	return e.store.SetCandidateStatus(ctx, id, models.CandidateIgnored, 0)
}

func (e *DiscoveryEngine) promote(ctx context.Context, cand *models.Candidate) (models.NodeID, error) {
	node := nodeFromCandidate(cand)

	nodeID, err := e.store.CreateNode(ctx, node)
	if errors.Is(err, db.ErrNodeExists) {
		// raced with another job or a manual registration
		existing, findErr := e.store.FindNodesByAddress(ctx, cand.Address)
		if findErr != nil || len(existing) == 0 {
			return 0, err
		}

		nodeID = existing[0].ID

		if err := e.store.SetCandidateStatus(ctx, cand.ID, models.CandidateExisting, nodeID); err != nil {
			return 0, err
		}

		return nodeID, nil
	}

	if err != nil {
		return 0, fmt.Errorf("create node: %w", err)
	}

	if err := e.store.SetCandidateStatus(ctx, cand.ID, models.CandidateApproved, nodeID); err != nil {
		return 0, err
	}

	node.ID = nodeID

	recordCandidate(ctx, models.CandidateApproved)
	e.onNodeCreated(ctx, node)

	return nodeID, nil
}

func nodeFromCandidate(cand *models.Candidate) *models.ManagedNode {
	name := cand.SysName
	if name == "" {
		name = cand.Hostname
	}

	if name == "" {
		name = cand.Address.String()
	}

	status := models.NodeStatusUnknown
	if cand.Reachable {
		status = models.NodeStatusReachable
	}

	return &models.ManagedNode{
		Address:    cand.Address,
		Name:       name,
		Hostname:   cand.Hostname,
		Vendor:     cand.Vendor,
		Model:      cand.Model,
		DeviceType: cand.DeviceType,
		Role:       models.RoleUnknown,
		Status:     status,
		LastSeen:   cand.LastSeen,
	}
}

// RegisterNode adds a node by hand and schedules its first collection.
func (e *DiscoveryEngine) RegisterNode(ctx context.Context, node *models.ManagedNode) (models.NodeID, error) {
	if node == nil || !node.Address.IsValid() {
		return 0, ErrInvalidAddress
	}

	if node.Name == "" {
		node.Name = node.Address.String()
	}

	if node.Role == "" {
		node.Role = models.RoleUnknown
	}

	if node.Status == "" {
		node.Status = models.NodeStatusUnknown
	}

	id, err := e.store.CreateNode(ctx, node)
	if err != nil {
		return 0, err
	}

	node.ID = id
	e.onNodeCreated(ctx, node)

	return id, nil
}

// onNodeCreated queues the first evidence collection and notifies hooks.
func (e *DiscoveryEngine) onNodeCreated(ctx context.Context, node *models.ManagedNode) {
	e.scheduleRefresh(node.ID)

	for _, hook := range e.hooks {
		hook.NodeApproved(ctx, node)
	}
}
