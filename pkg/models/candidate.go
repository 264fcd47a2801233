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
	"net/netip"
	"time"
)

type CandidateStatus string

const (
	CandidateNew      CandidateStatus = "new"
	CandidateApproved CandidateStatus = "approved"
	CandidateExisting CandidateStatus = "existing"
	CandidateIgnored  CandidateStatus = "ignored"
)

type IssueSeverity string

const (
	SeverityInfo    IssueSeverity = "info"
	SeverityWarning IssueSeverity = "warning"
	SeverityBlocked IssueSeverity = "blocked"
)

// Issue codes attached to candidates.
const (
	IssueSNMPUnreachable     = "snmp_unreachable"
	IssueMgmtPortReachable   = "mgmt_port_reachable"
	IssueWebOnly             = "web_only"
	IssueVendorUnknown       = "vendor_unknown"
	IssueLLDPUnavailable     = "lldp_unavailable"
	IssueBridgeMIBMissing    = "bridge_mib_unavailable"
	IssueQBridgeMIBMissing   = "qbridge_mib_unavailable"
	IssueNameConflict        = "name_conflict"
	IssueAddressConflict     = "address_conflict"
	IssueIdentityUnavailable = "identity_unavailable"
)

// Issue explains why a candidate's identification is incomplete.
type Issue struct {
	Code     string        `json:"code"`
	Severity IssueSeverity `json:"severity"`
	Hint     string        `json:"hint"`
}

type CandidateID int64

// Candidate is an observation of one address during one job.
type Candidate struct {
	ID               CandidateID       `json:"id"`
	JobID            string            `json:"job_id"`
	Address          netip.Addr        `json:"address"`
	Hostname         string            `json:"hostname,omitempty"`
	SysName          string            `json:"sys_name,omitempty"`
	SysDescr         string            `json:"sys_descr,omitempty"`
	SysObjectID      string            `json:"sys_object_id,omitempty"`
	Vendor           string            `json:"vendor,omitempty"`
	Model            string            `json:"model,omitempty"`
	DeviceType       string            `json:"device_type,omitempty"`
	VendorConfidence float64           `json:"vendor_confidence"`
	ChassisCandidate bool              `json:"chassis_candidate"`
	Reachable        bool              `json:"reachable"`
	Issues           []Issue           `json:"issues"`
	Evidence         map[string]string `json:"evidence,omitempty"`
	Status           CandidateStatus   `json:"status"`
	NodeID           NodeID            `json:"node_id,omitempty"`
	FirstSeen        time.Time         `json:"first_seen"`
	LastSeen         time.Time         `json:"last_seen"`
}

// HasBlockingIssue reports whether any issue prevents automatic approval.
func (c *Candidate) HasBlockingIssue() bool {
	for _, issue := range c.Issues {
		if issue.Severity == SeverityBlocked {
			return true
		}
	}

	return false
}

// HasIssue reports whether an issue with code is attached.
func (c *Candidate) HasIssue(code string) bool {
	for _, issue := range c.Issues {
		if issue.Code == code {
			return true
		}
	}

	return false
}

// AddIssue attaches issue, replacing any existing issue with the same code.
func (c *Candidate) AddIssue(issue Issue) {
	for i := range c.Issues {
		if c.Issues[i].Code == issue.Code {
			c.Issues[i] = issue
			return
		}
	}

	c.Issues = append(c.Issues, issue)
}

// Merge folds a re-observation into c. Text fields are only overwritten by
// non-empty values, confidence is only raised, and the chassis flag is sticky.
// Status and identity of the row are left alone.
func (c *Candidate) Merge(obs *Candidate) {
	mergeString(&c.Hostname, obs.Hostname)
	mergeString(&c.SysName, obs.SysName)
	mergeString(&c.SysDescr, obs.SysDescr)
	mergeString(&c.SysObjectID, obs.SysObjectID)
	mergeString(&c.Vendor, obs.Vendor)
	mergeString(&c.Model, obs.Model)
	mergeString(&c.DeviceType, obs.DeviceType)

	switch {
	case obs.VendorConfidence > c.VendorConfidence:
		// a better identification supersedes the older diagnostics
		c.VendorConfidence = obs.VendorConfidence
		c.Issues = append([]Issue(nil), obs.Issues...)
	case obs.VendorConfidence == c.VendorConfidence:
		for _, issue := range obs.Issues {
			c.AddIssue(issue)
		}
	}

	c.ChassisCandidate = c.ChassisCandidate || obs.ChassisCandidate
	c.Reachable = c.Reachable || obs.Reachable

	if len(obs.Evidence) > 0 && c.Evidence == nil {
		c.Evidence = make(map[string]string, len(obs.Evidence))
	}

	for k, v := range obs.Evidence {
		if v != "" {
			c.Evidence[k] = v
		}
	}

	if obs.NodeID != 0 && c.NodeID == 0 {
		c.NodeID = obs.NodeID
	}

	if obs.Status == CandidateExisting && c.Status == CandidateNew {
		c.Status = CandidateExisting
	}

	if obs.LastSeen.After(c.LastSeen) {
		c.LastSeen = obs.LastSeen
	}
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}
