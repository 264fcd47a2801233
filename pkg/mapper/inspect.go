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
	"net/netip"
	"strconv"
	"strings"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scan"
)

// Confidence assigned when no identity query succeeded.
const (
	confidenceShellReachable = 0.2
	confidenceWebOnly        = 0.1
	confidenceLiveOnly       = 0.05
)

// inspect builds a candidate for one live address. It never fails: what
// could not be learned is expressed as issues and a lower confidence.
func (e *DiscoveryEngine) inspect(ctx context.Context, jobID string, addr netip.Addr,
	creds []devagent.Credentials) *models.Candidate {
	now := e.now()

	cand := &models.Candidate{
		JobID:     jobID,
		Address:   addr,
		Reachable: true,
		Status:    models.CandidateNew,
		Evidence:  make(map[string]string),
		FirstSeen: now,
		LastSeen:  now,
	}

	identity, used, err := e.probeIdentity(ctx, addr, creds)
	if err != nil {
		e.applyFallback(ctx, cand, err)
		return cand
	}

	e.rememberCredentials(addr, used)
	e.applyIdentity(ctx, cand, identity, used)

	return cand
}

// probeIdentity tries the primary profile, then the alternates in order.
func (e *DiscoveryEngine) probeIdentity(ctx context.Context, addr netip.Addr,
	creds []devagent.Credentials) (*devagent.Identity, devagent.Credentials, error) {
	agent := e.agents.Generic()
	lastErr := devagent.ErrNoIdentity

	for _, c := range creds {
		if err := ctx.Err(); err != nil {
			return nil, devagent.Credentials{}, err
		}

		identity, err := agent.Probe(ctx, addr, c)
		if err == nil {
			return identity, c, nil
		}

		lastErr = err
	}

	return nil, devagent.Credentials{}, lastErr
}

func (e *DiscoveryEngine) applyIdentity(ctx context.Context, cand *models.Candidate,
	identity *devagent.Identity, used devagent.Credentials) {
	cls := e.classifier.Classify(*identity)

	cand.SysName = identity.SysName
	cand.SysDescr = identity.SysDescr
	cand.SysObjectID = identity.SysObjectID
	cand.Hostname = identity.SysName
	cand.Vendor = cls.Vendor
	cand.Model = cls.Model
	cand.DeviceType = cls.DeviceType
	cand.VendorConfidence = cls.Confidence
	cand.ChassisCandidate = cls.Chassis
	cand.Evidence["credential"] = used.Name
	cand.Evidence["snmp_version"] = string(used.Version)

	if !cls.Matched {
		cand.AddIssue(models.Issue{
			Code:     models.IssueVendorUnknown,
			Severity: models.SeverityWarning,
			Hint:     "no vendor signature matched sysObjectID " + identity.SysObjectID,
		})
	}

	target := devagent.Target{Address: cand.Address, DeviceType: cls.DeviceType, Credentials: used}

	caps, err := e.agents.For(cls.DeviceType).Capabilities(ctx, target)
	if err != nil {
		cand.Evidence["capabilities"] = "error: " + err.Error()
		return
	}

	cand.Evidence["lldp"] = strconv.FormatBool(caps.LLDP)
	cand.Evidence["bridge_mib"] = strconv.FormatBool(caps.Bridge)
	cand.Evidence["qbridge_mib"] = strconv.FormatBool(caps.QBridge)

	// devices answering none of the discovery MIBs are hosts, not switches
	if !caps.Any() {
		return
	}

	missing := []struct {
		present bool
		code    string
		hint    string
	}{
		{caps.LLDP, models.IssueLLDPUnavailable, "LLDP-MIB not answered; neighbors can only be inferred"},
		{caps.Bridge, models.IssueBridgeMIBMissing, "BRIDGE-MIB not answered; learned MACs unavailable"},
		{caps.QBridge, models.IssueQBridgeMIBMissing, "Q-BRIDGE-MIB not answered; VLAN-aware MACs unavailable"},
	}

	for _, m := range missing {
		if !m.present {
			cand.AddIssue(models.Issue{Code: m.code, Severity: models.SeverityInfo, Hint: m.hint})
		}
	}
}

// applyFallback grades an address that answered liveness but no identity
// query, by which ports it exposes.
func (e *DiscoveryEngine) applyFallback(ctx context.Context, cand *models.Candidate, probeErr error) {
	cand.VendorConfidence = confidenceLiveOnly
	cand.AddIssue(models.Issue{
		Code:     models.IssueSNMPUnreachable,
		Severity: models.SeverityWarning,
		Hint:     "identity query failed: " + probeErr.Error(),
	})

	if errors.Is(probeErr, context.Canceled) {
		return
	}

	shell := e.openPorts(ctx, cand.Address, scan.ShellPorts)
	web := e.openPorts(ctx, cand.Address, scan.WebPorts)

	if len(shell)+len(web) > 0 {
		cand.Evidence["open_ports"] = joinPorts(append(shell, web...))
	}

	switch {
	case len(shell) > 0:
		cand.VendorConfidence = confidenceShellReachable
		cand.AddIssue(models.Issue{
			Code:     models.IssueMgmtPortReachable,
			Severity: models.SeverityWarning,
			Hint:     "management port reachable, identity query failed; check credentials/ACL",
		})
	case len(web) > 0:
		cand.VendorConfidence = confidenceWebOnly
		cand.AddIssue(models.Issue{
			Code:     models.IssueWebOnly,
			Severity: models.SeverityInfo,
			Hint:     "only web ports answer; likely an appliance or host",
		})
	}
}

func (e *DiscoveryEngine) openPorts(ctx context.Context, addr netip.Addr, ports []int) []int {
	var open []int

	for _, port := range ports {
		if e.prober.PortOpen(ctx, addr, port) {
			open = append(open, port)
		}
	}

	return open
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(p)
	}

	return strings.Join(parts, ",")
}

// recordCandidate checks an observation against the managed inventory and
// stores it. Observations for a job that has ended are dropped.
func (e *DiscoveryEngine) recordCandidate(ctx context.Context, j *job, cand *models.Candidate) (*models.Candidate, error) {
	if j.terminated() {
		return nil, context.Canceled
	}

	existing, err := e.store.FindNodesByAddress(ctx, cand.Address)
	if err != nil {
		return nil, fmt.Errorf("lookup existing node: %w", err)
	}

	switch {
	case len(existing) > 1:
		cand.AddIssue(models.Issue{
			Code:     models.IssueAddressConflict,
			Severity: models.SeverityBlocked,
			Hint:     fmt.Sprintf("address is configured on %d managed nodes", len(existing)),
		})
	case len(existing) == 1:
		cand.Status = models.CandidateExisting
		cand.NodeID = existing[0].ID
		e.touchNode(ctx, existing[0], cand)
	case cand.SysName != "":
		if err := e.checkNameConflict(ctx, cand); err != nil {
			return nil, err
		}
	}

	stored, err := e.store.UpsertCandidate(ctx, cand)
	if err != nil {
		return nil, fmt.Errorf("store candidate: %w", err)
	}

	if j.trackCandidate(stored.ID) {
		recordCandidate(ctx, stored.Status)
	}

	return stored, nil
}

func (e *DiscoveryEngine) checkNameConflict(ctx context.Context, cand *models.Candidate) error {
	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return fmt.Errorf("list nodes: %w", err)
	}

	for _, n := range nodes {
		if n.Address == cand.Address || !strings.EqualFold(n.DisplayName(), cand.SysName) {
			continue
		}

		cand.AddIssue(models.Issue{
			Code:     models.IssueNameConflict,
			Severity: models.SeverityBlocked,
			Hint:     fmt.Sprintf("sysName %q already belongs to node %d at %s", cand.SysName, n.ID, n.Address),
		})

		return nil
	}

	return nil
}

// touchNode refreshes reachability on a managed node re-observed by a job
// and fills identity fields it does not have yet.
func (e *DiscoveryEngine) touchNode(ctx context.Context, node *models.ManagedNode, cand *models.Candidate) {
	if cand.Reachable {
		node.Status = models.NodeStatusReachable
		node.LastSeen = cand.LastSeen
	} else {
		node.Status = models.NodeStatusUnreachable
	}

	if node.Vendor == "" {
		node.Vendor = cand.Vendor
	}

	if node.Model == "" {
		node.Model = cand.Model
	}

	if node.DeviceType == "" || node.DeviceType == devagent.DeviceTypeGeneric {
		if cand.DeviceType != "" {
			node.DeviceType = cand.DeviceType
		}
	}

	if node.Hostname == "" {
		node.Hostname = cand.SysName
	}

	if err := e.store.UpdateNode(ctx, node); err != nil {
		e.logger.Warn().Err(err).Int64("node_id", int64(node.ID)).Msg("Failed to update re-observed node")
	}
}
