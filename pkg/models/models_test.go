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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewLinkKeyNormalizes(t *testing.T) {
	fromA := NewLinkKey(1, "eth1", 2, "eth2")
	fromB := NewLinkKey(2, "eth2", 1, "eth1")

	assert.Equal(t, fromA, fromB)
	assert.Equal(t, LinkKey{ANode: 1, AInterface: "eth1", BNode: 2, BInterface: "eth2"}, fromA)

	self := NewLinkKey(5, "ge-0/0/2", 5, "ge-0/0/1")
	assert.Equal(t, "ge-0/0/1", self.AInterface)
}

func TestLinkKeyOther(t *testing.T) {
	key := NewLinkKey(7, "Gi0/1", 3, "eth0")

	peer, local, remote := key.Other(7)
	assert.Equal(t, NodeID(3), peer)
	assert.Equal(t, "Gi0/1", local)
	assert.Equal(t, "eth0", remote)

	peer, local, remote = key.Other(3)
	assert.Equal(t, NodeID(7), peer)
	assert.Equal(t, "eth0", local)
	assert.Equal(t, "Gi0/1", remote)
}

func TestProtocolWeights(t *testing.T) {
	assert.InDelta(t, 1.0, ProtocolLLDP.Weight(), 1e-9)
	assert.InDelta(t, 1.0, ProtocolCDP.Weight(), 1e-9)
	assert.Greater(t, ProtocolCDP.Weight(), ProtocolFDBARP.Weight())
	assert.Greater(t, ProtocolFDBARP.Weight(), ProtocolHeuristic.Weight())
}

func TestAddProtocolKeepsSortedSet(t *testing.T) {
	l := &Link{}

	assert.True(t, l.AddProtocol(ProtocolLLDP))
	assert.True(t, l.AddProtocol(ProtocolCDP))
	assert.False(t, l.AddProtocol(ProtocolLLDP))

	assert.Equal(t, []Protocol{ProtocolCDP, ProtocolLLDP}, l.Protocols)
	assert.Equal(t, "cdp,lldp", JoinProtocols(l.Protocols))
}

func TestCandidateMerge(t *testing.T) {
	now := time.Now()

	c := &Candidate{
		SysName:          "core-1",
		VendorConfidence: 0.05,
		Status:           CandidateNew,
		Issues:           []Issue{{Code: IssueSNMPUnreachable, Severity: SeverityWarning}},
		LastSeen:         now.Add(-time.Minute),
	}

	c.Merge(&Candidate{
		Vendor:           "cisco",
		VendorConfidence: 0.9,
		ChassisCandidate: true,
		Reachable:        true,
		Evidence:         map[string]string{"snmp": "v2c"},
		LastSeen:         now,
	})

	assert.Equal(t, "core-1", c.SysName, "empty value must not overwrite")
	assert.Equal(t, "cisco", c.Vendor)
	assert.InDelta(t, 0.9, c.VendorConfidence, 1e-9)
	assert.True(t, c.ChassisCandidate)
	assert.Empty(t, c.Issues)
	assert.Equal(t, "v2c", c.Evidence["snmp"])

	// a weaker later observation changes nothing that matters
	c.Merge(&Candidate{
		VendorConfidence: 0.05,
		Issues:           []Issue{{Code: IssueSNMPUnreachable, Severity: SeverityWarning}},
	})

	assert.InDelta(t, 0.9, c.VendorConfidence, 1e-9)
	assert.True(t, c.ChassisCandidate)
	assert.False(t, c.HasIssue(IssueSNMPUnreachable))
	assert.Equal(t, now, c.LastSeen)
}

func TestHasBlockingIssue(t *testing.T) {
	c := &Candidate{}
	c.AddIssue(Issue{Code: IssueVendorUnknown, Severity: SeverityInfo})
	assert.False(t, c.HasBlockingIssue())

	c.AddIssue(Issue{Code: IssueNameConflict, Severity: SeverityBlocked})
	assert.True(t, c.HasBlockingIssue())
}
