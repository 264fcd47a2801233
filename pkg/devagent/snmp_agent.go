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

package devagent

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// SNMPAgent implements Agent for one dialect.
type SNMPAgent struct {
	dialect Dialect
	dial    Dialer
	logger  logger.Logger
}

var _ Agent = (*SNMPAgent)(nil)

func NewSNMPAgent(dialect Dialect, dial Dialer, log logger.Logger) *SNMPAgent {
	if len(dialect.NeighborProtocols) == 0 {
		dialect.NeighborProtocols = lldpFirst
	}

	return &SNMPAgent{dialect: dialect, dial: dial, logger: log}
}

// DeviceType returns the tag this variant serves.
func (a *SNMPAgent) DeviceType() string {
	return a.dialect.DeviceType
}

func (a *SNMPAgent) open(ctx context.Context, addr netip.Addr, creds Credentials) (Client, error) {
	if !addr.IsValid() {
		return nil, fmt.Errorf("%w: invalid address", ErrNoIdentity)
	}

	return a.dial(ctx, addr, creds)
}

func (a *SNMPAgent) closeClient(client Client, addr netip.Addr) {
	if err := client.Close(); err != nil {
		a.logger.Debug().Err(err).Str("target", addr.String()).Msg("closing SNMP session")
	}
}

// Probe reads the system group. It fails when none of the three objects
// come back.
func (a *SNMPAgent) Probe(ctx context.Context, addr netip.Addr, creds Credentials) (*Identity, error) {
	client, err := a.open(ctx, addr, creds)
	if err != nil {
		return nil, err
	}
	defer a.closeClient(client, addr)

	packet, err := client.Get([]string{oidSysDescr, oidSysObjectID, oidSysName})
	if err != nil {
		return nil, fmt.Errorf("system group from %s: %w", addr, err)
	}

	if packet.Error != gosnmp.NoError {
		return nil, fmt.Errorf("%w: %s from %s", ErrSNMPError, packet.Error, addr)
	}

	id := &Identity{}

	for _, pdu := range packet.Variables {
		if missing(pdu) {
			continue
		}

		switch "." + strings.TrimPrefix(pdu.Name, ".") {
		case oidSysDescr:
			id.SysDescr = pduString(pdu)
		case oidSysObjectID:
			id.SysObjectID = "." + strings.TrimPrefix(pduString(pdu), ".")
		case oidSysName:
			id.SysName = pduString(pdu)
		}
	}

	if id.SysDescr == "" && id.SysObjectID == "" && id.SysName == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoIdentity, addr)
	}

	return id, nil
}

// Capabilities checks each indicator with its own GET so a v1 noSuchName on
// one object does not hide the others.
func (a *SNMPAgent) Capabilities(ctx context.Context, target Target) (Capabilities, error) {
	client, err := a.open(ctx, target.Address, target.Credentials)
	if err != nil {
		return Capabilities{}, err
	}
	defer a.closeClient(client, target.Address)

	present := func(oid string) bool {
		packet, err := client.Get([]string{oid})
		if err != nil || packet.Error != gosnmp.NoError || len(packet.Variables) == 0 {
			return false
		}

		return !missing(packet.Variables[0])
	}

	return Capabilities{
		LLDP:    present(oidLLDPLocChassisID),
		Bridge:  present(oidDot1dBaseNumPorts),
		QBridge: present(oidDot1qVlanVersionNumber),
	}, nil
}

// GetNeighbors reads neighbor tables in dialect order. Rows from a later
// protocol are dropped when an earlier one already reported the same
// neighbor on the same port.
func (a *SNMPAgent) GetNeighbors(ctx context.Context, target Target) ([]Neighbor, error) {
	client, err := a.open(ctx, target.Address, target.Credentials)
	if err != nil {
		return nil, err
	}
	defer a.closeClient(client, target.Address)

	ifNames := interfaceNames(client)

	var (
		out      []Neighbor
		seen     = make(map[string]bool)
		lastErr  error
		answered bool
	)

	for _, proto := range a.dialect.NeighborProtocols {
		var rows []Neighbor

		switch proto {
		case models.ProtocolLLDP:
			rows, err = walkLLDP(client, ifNames)
		case models.ProtocolCDP:
			rows, err = walkCDP(client, ifNames)
		default:
			continue
		}

		if err != nil {
			lastErr = err

			a.logger.Debug().Err(err).
				Str("target", target.Address.String()).
				Str("protocol", string(proto)).
				Msg("neighbor table walk failed")

			continue
		}

		answered = true

		for _, n := range rows {
			key := n.LocalInterface + "|" + neighborKey(n)
			if seen[key] {
				continue
			}

			seen[key] = true

			out = append(out, n)
		}
	}

	if !answered && lastErr != nil {
		return nil, lastErr
	}

	return out, nil
}

func neighborKey(n Neighbor) string {
	name := strings.ToLower(n.NeighborName)
	if i := strings.IndexByte(name, '.'); i > 0 {
		name = name[:i]
	}

	if name == "" {
		return n.NeighborAddress
	}

	return name
}

// GetLearnedMacTable prefers the VLAN-aware forwarding table and falls back
// to the plain bridge table.
func (a *SNMPAgent) GetLearnedMacTable(ctx context.Context, target Target) ([]MacEntry, error) {
	client, err := a.open(ctx, target.Address, target.Credentials)
	if err != nil {
		return nil, err
	}
	defer a.closeClient(client, target.Address)

	ifNames := interfaceNames(client)

	portIf, err := walkBridgePorts(client)
	if err != nil {
		return nil, err
	}

	entries, err := walkQBridgeFDB(client, portIf, ifNames)
	if err == nil && len(entries) > 0 {
		return entries, nil
	}

	return walkBridgeFDB(client, portIf, ifNames)
}

func (a *SNMPAgent) GetAddressResolutionTable(ctx context.Context, target Target, vrf string) ([]ArpEntry, error) {
	client, err := a.open(ctx, target.Address, a.dialect.withVRF(target.Credentials, vrf))
	if err != nil {
		return nil, err
	}
	defer a.closeClient(client, target.Address)

	return walkARP(client, interfaceNames(client))
}

func (a *SNMPAgent) GetRouteTo(ctx context.Context, target Target, dest netip.Addr, vrf string) (*Route, error) {
	client, err := a.open(ctx, target.Address, a.dialect.withVRF(target.Credentials, vrf))
	if err != nil {
		return nil, err
	}
	defer a.closeClient(client, target.Address)

	route, err := lookupRoute(client, interfaceNames(client), dest.Unmap())
	if err != nil {
		return nil, fmt.Errorf("route to %s on %s: %w", dest, target.Address, err)
	}

	route.VRF = vrf

	return route, nil
}

func (a *SNMPAgent) GetInterfaceAddresses(ctx context.Context, target Target) ([]InterfaceAddress, error) {
	client, err := a.open(ctx, target.Address, target.Credentials)
	if err != nil {
		return nil, err
	}
	defer a.closeClient(client, target.Address)

	return walkInterfaceAddresses(client, interfaceNames(client))
}

// interfaceNames maps ifIndex to ifName, or ifDescr when ifXTable is absent.
func interfaceNames(client Client) map[int]string {
	names := make(map[int]string)

	collect := func(root string) {
		_ = client.Walk(root, func(pdu gosnmp.SnmpPDU) error {
			idx, ok := oidIndex(pdu.Name, root)
			if !ok || len(idx) != 1 {
				return nil
			}

			if name := pduString(pdu); name != "" {
				names[idx[0]] = name
			}

			return nil
		})
	}

	collect(oidIfName)

	if len(names) == 0 {
		collect(oidIfDescr)
	}

	return names
}

func ifName(names map[int]string, ifIndex int) string {
	if name, ok := names[ifIndex]; ok {
		return name
	}

	if ifIndex <= 0 {
		return ""
	}

	return fmt.Sprintf("ifIndex-%d", ifIndex)
}

func sortNeighbors(rows []Neighbor) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].LocalInterface != rows[j].LocalInterface {
			return rows[i].LocalInterface < rows[j].LocalInterface
		}

		return rows[i].NeighborName < rows[j].NeighborName
	})
}
