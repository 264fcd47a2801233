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

//go:generate mockgen -destination=mock_agent.go -package=devagent github.com/carverauto/serviceradar-mapper/pkg/devagent Agent

// Package devagent reads normalized facts from managed devices over SNMP.
// Each vendor family gets its own Agent variant, selected by device type.
package devagent

import (
	"context"
	"errors"
	"net/netip"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

var (
	ErrUnsupportedSNMPVersion = errors.New("unsupported SNMP version")
	ErrNoIdentity             = errors.New("device returned no identity")
	ErrNoRoute                = errors.New("no route to destination")
	ErrSNMPError              = errors.New("SNMP error status")
)

type SNMPVersion string

const (
	SNMPVersion1  SNMPVersion = "v1"
	SNMPVersion2c SNMPVersion = "v2c"
	SNMPVersion3  SNMPVersion = "v3"
)

// Credentials is one SNMP credential profile.
type Credentials struct {
	Name            string      `json:"name"`
	Version         SNMPVersion `json:"version"`
	Community       string      `json:"community,omitempty"`
	Username        string      `json:"username,omitempty"`
	AuthProtocol    string      `json:"auth_protocol,omitempty"`
	AuthPassword    string      `json:"auth_password,omitempty"`
	PrivacyProtocol string      `json:"privacy_protocol,omitempty"`
	PrivacyPassword string      `json:"privacy_password,omitempty"`
	ContextName     string      `json:"context_name,omitempty"`
	Port            uint16      `json:"port,omitempty"`
}

// Target is a managed node as seen by an agent.
type Target struct {
	NodeID      models.NodeID
	Address     netip.Addr
	DeviceType  string
	Credentials Credentials
}

// Identity is the system group of a device.
type Identity struct {
	SysDescr    string
	SysObjectID string
	SysName     string
}

// Capabilities records which discovery MIBs a device answers.
type Capabilities struct {
	LLDP    bool
	Bridge  bool
	QBridge bool
}

// Any reports whether at least one indicator is present.
func (c Capabilities) Any() bool {
	return c.LLDP || c.Bridge || c.QBridge
}

// Neighbor is one row of a neighbor-discovery protocol table.
type Neighbor struct {
	LocalInterface  string
	RemoteInterface string
	NeighborName    string
	NeighborAddress string
	ChassisID       string
	Protocol        models.Protocol
}

type MacEntryType string

const (
	MacLearned MacEntryType = "learned"
	MacStatic  MacEntryType = "static"
	MacSelf    MacEntryType = "self"
	MacOther   MacEntryType = "other"
)

// MacEntry is one learned-MAC/forwarding-table row. MAC is lowercase,
// colon-separated.
type MacEntry struct {
	MAC       string
	VLAN      int
	Interface string
	EntryType MacEntryType
}

// ArpEntry maps a network address to a hardware address on a local segment.
type ArpEntry struct {
	IP        netip.Addr
	MAC       string
	Interface string
}

// Route is a device's forwarding decision for one destination.
type Route struct {
	Destination       netip.Prefix
	NextHop           netip.Addr
	OutgoingInterface string
	Protocol          string
	VRF               string
}

// InterfaceAddress is an address configured on a device interface.
type InterfaceAddress struct {
	Interface string
	Prefix    netip.Prefix
}

// Agent is a read-only view of a device. Every call is bounded by the
// client timeout and retry settings; no call is retried beyond that.
type Agent interface {
	Probe(ctx context.Context, addr netip.Addr, creds Credentials) (*Identity, error)
	Capabilities(ctx context.Context, target Target) (Capabilities, error)
	GetNeighbors(ctx context.Context, target Target) ([]Neighbor, error)
	GetLearnedMacTable(ctx context.Context, target Target) ([]MacEntry, error)
	GetAddressResolutionTable(ctx context.Context, target Target, vrf string) ([]ArpEntry, error)
	GetRouteTo(ctx context.Context, target Target, dest netip.Addr, vrf string) (*Route, error)
	GetInterfaceAddresses(ctx context.Context, target Target) ([]InterfaceAddress, error)
}
