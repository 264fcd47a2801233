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
	"fmt"

	"github.com/gosnmp/gosnmp"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const (
	lldpAddrSubtypeIPv4 = 1
	ipv4Length          = 4
)

type lldpRow struct {
	localPort int
	chassis   string
	portID    []byte
	portDesc  string
	sysName   string
	address   string
}

// walkLLDP reads lldpRemTable. Rows are indexed timeMark.localPortNum.remIndex.
func walkLLDP(client Client, ifNames map[int]string) ([]Neighbor, error) {
	rows := make(map[string]*lldpRow)
	order := make([]string, 0)

	row := func(idx []int) *lldpRow {
		key := indexKey(idx)

		r, ok := rows[key]
		if !ok {
			r = &lldpRow{localPort: idx[1]}
			rows[key] = r
			order = append(order, key)
		}

		return r
	}

	err := client.Walk(oidLLDPRemTable, func(pdu gosnmp.SnmpPDU) error {
		col, idx, ok := tableColumn(pdu.Name, oidLLDPRemTable)
		if !ok || len(idx) < 3 {
			return nil
		}

		r := row(idx[:3])

		switch col {
		case lldpRemChassisID:
			r.chassis = formatChassisID(pduBytes(pdu))
		case lldpRemPortID:
			r.portID = pduBytes(pdu)
		case lldpRemPortDesc:
			r.portDesc = pduString(pdu)
		case lldpRemSysName:
			r.sysName = pduString(pdu)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lldp remote table: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}

	// management addresses live in the index: ...remIndex.subtype.len.addr
	_ = client.Walk(oidLLDPRemManAddrTable, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidLLDPRemManAddrTable)
		if !ok || len(idx) < 5+ipv4Length {
			return nil
		}

		if idx[3] != lldpAddrSubtypeIPv4 || idx[4] != ipv4Length {
			return nil
		}

		r, ok := rows[indexKey(idx[:3])]
		if !ok || r.address != "" {
			return nil
		}

		if addr, ok := addrFromIndex(idx[5 : 5+ipv4Length]); ok {
			r.address = addr.String()
		}

		return nil
	})

	localPorts := lldpLocalPorts(client)
	out := make([]Neighbor, 0, len(rows))

	for _, key := range order {
		r := rows[key]

		local := localPorts[r.localPort]
		if local == "" {
			local = ifName(ifNames, r.localPort)
		}

		out = append(out, Neighbor{
			LocalInterface:  local,
			RemoteInterface: remotePort(r),
			NeighborName:    r.sysName,
			NeighborAddress: r.address,
			ChassisID:       r.chassis,
			Protocol:        models.ProtocolLLDP,
		})
	}

	sortNeighbors(out)

	return out, nil
}

// remotePort prefers a printable port id and falls back to the description
// when the id is a raw MAC.
func remotePort(r *lldpRow) string {
	if printable(r.portID) {
		return formatChassisID(r.portID)
	}

	if r.portDesc != "" {
		return r.portDesc
	}

	return formatChassisID(r.portID)
}

func lldpLocalPorts(client Client) map[int]string {
	ports := make(map[int]string)

	_ = client.Walk(oidLLDPLocPortDesc, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidLLDPLocPortDesc)
		if !ok || len(idx) != 1 {
			return nil
		}

		if desc := pduString(pdu); desc != "" {
			ports[idx[0]] = desc
		}

		return nil
	})

	return ports
}

type cdpRow struct {
	ifIndex  int
	deviceID string
	port     string
	address  string
}

// walkCDP reads cdpCacheTable. Rows are indexed ifIndex.deviceIndex.
func walkCDP(client Client, ifNames map[int]string) ([]Neighbor, error) {
	rows := make(map[string]*cdpRow)
	order := make([]string, 0)

	err := client.Walk(oidCDPCacheTable, func(pdu gosnmp.SnmpPDU) error {
		col, idx, ok := tableColumn(pdu.Name, oidCDPCacheTable)
		if !ok || len(idx) != 2 {
			return nil
		}

		key := indexKey(idx)

		r, ok := rows[key]
		if !ok {
			r = &cdpRow{ifIndex: idx[0]}
			rows[key] = r
			order = append(order, key)
		}

		switch col {
		case cdpCacheDeviceID:
			r.deviceID = pduString(pdu)
		case cdpCacheDevicePort:
			r.port = pduString(pdu)
		case cdpCacheAddress:
			if addr, ok := pduAddr(pdu); ok {
				r.address = addr.String()
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cdp cache table: %w", err)
	}

	out := make([]Neighbor, 0, len(rows))

	for _, key := range order {
		r := rows[key]

		out = append(out, Neighbor{
			LocalInterface:  ifName(ifNames, r.ifIndex),
			RemoteInterface: r.port,
			NeighborName:    r.deviceID,
			NeighborAddress: r.address,
			Protocol:        models.ProtocolCDP,
		})
	}

	sortNeighbors(out)

	return out, nil
}
