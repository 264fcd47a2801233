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
	"net"
	"net/netip"
	"sort"

	"github.com/gosnmp/gosnmp"
)

// walkARP reads ipNetToMediaPhysAddress, indexed ifIndex.a.b.c.d.
func walkARP(client Client, ifNames map[int]string) ([]ArpEntry, error) {
	var out []ArpEntry

	err := client.Walk(oidIPNetToMediaPhysAddress, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidIPNetToMediaPhysAddress)
		if !ok || len(idx) != 1+ipv4Length {
			return nil
		}

		addr, ok := addrFromIndex(idx[1:])
		if !ok {
			return nil
		}

		mac := FormatMAC(pduBytes(pdu))
		if mac == "" {
			return nil
		}

		out = append(out, ArpEntry{IP: addr, MAC: mac, Interface: ifName(ifNames, idx[0])})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("arp table: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].IP.Less(out[j].IP) })

	return out, nil
}

func maskBits(mask netip.Addr) (int, bool) {
	if !mask.Is4() {
		return 0, false
	}

	ones, bits := net.IPMask(mask.AsSlice()).Size()
	if bits == 0 {
		return 0, false
	}

	return ones, true
}

// walkInterfaceAddresses joins ipAdEntIfIndex and ipAdEntNetMask.
func walkInterfaceAddresses(client Client, ifNames map[int]string) ([]InterfaceAddress, error) {
	ifIndexes := make(map[netip.Addr]int)

	err := client.Walk(oidIPAdEntIfIndex, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidIPAdEntIfIndex)
		if !ok {
			return nil
		}

		addr, ok := addrFromIndex(idx)
		if !ok {
			return nil
		}

		if n, ok := pduInt(pdu); ok {
			ifIndexes[addr] = int(n)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ip address table: %w", err)
	}

	masks := make(map[netip.Addr]int)

	_ = client.Walk(oidIPAdEntNetMask, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidIPAdEntNetMask)
		if !ok {
			return nil
		}

		addr, ok := addrFromIndex(idx)
		if !ok {
			return nil
		}

		if mask, ok := pduAddr(pdu); ok {
			if bits, ok := maskBits(mask); ok {
				masks[addr] = bits
			}
		}

		return nil
	})

	out := make([]InterfaceAddress, 0, len(ifIndexes))

	for addr, ifIndex := range ifIndexes {
		bits, ok := masks[addr]
		if !ok {
			bits = addr.BitLen()
		}

		out = append(out, InterfaceAddress{
			Interface: ifName(ifNames, ifIndex),
			Prefix:    netip.PrefixFrom(addr, bits),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Prefix.Addr().Less(out[j].Prefix.Addr()) })

	return out, nil
}

// ipRouteProto values (IP-MIB / IP-FORWARD-MIB)
//
//nolint:gochecknoglobals // lookup table
var routeProtocols = map[int64]string{
	1:  "other",
	2:  "local",
	3:  "static",
	4:  "icmp",
	8:  "rip",
	9:  "isis",
	13: "ospf",
	14: "bgp",
}

func routeProtocol(v int64) string {
	if p, ok := routeProtocols[v]; ok {
		return p
	}

	return fmt.Sprintf("proto-%d", v)
}

type routeRow struct {
	prefix  netip.Prefix
	nextHop netip.Addr
	ifIndex int
	proto   int64
}

// lookupRoute walks the forwarding table and performs a longest-prefix match
// locally. ipCidrRouteTable is tried first, then the legacy ipRouteTable.
func lookupRoute(client Client, ifNames map[int]string, dest netip.Addr) (*Route, error) {
	rows := cidrRoutes(client)
	if len(rows) == 0 {
		rows = legacyRoutes(client)
	}

	var (
		best  *routeRow
		found bool
	)

	for i := range rows {
		r := &rows[i]
		if !r.prefix.Contains(dest) {
			continue
		}

		if !found || r.prefix.Bits() > best.prefix.Bits() {
			best = r
			found = true
		}
	}

	if !found {
		return nil, ErrNoRoute
	}

	route := &Route{
		Destination:       best.prefix,
		OutgoingInterface: ifName(ifNames, best.ifIndex),
		Protocol:          routeProtocol(best.proto),
	}

	// 0.0.0.0 as next hop marks a directly connected route
	if best.nextHop.IsValid() && !best.nextHop.IsUnspecified() {
		route.NextHop = best.nextHop
	}

	return route, nil
}

// cidrRoutes reads ipCidrRouteTable, indexed dest.mask.tos.nextHop.
func cidrRoutes(client Client) []routeRow {
	rows := make(map[string]*routeRow)
	order := make([]string, 0)

	parse := func(root string, set func(*routeRow, gosnmp.SnmpPDU)) {
		_ = client.Walk(root, func(pdu gosnmp.SnmpPDU) error {
			idx, ok := oidIndex(pdu.Name, root)
			if !ok || len(idx) != 13 {
				return nil
			}

			key := indexKey(idx)

			r, ok := rows[key]
			if !ok {
				dest, okD := addrFromIndex(idx[0:4])
				mask, okM := addrFromIndex(idx[4:8])
				hop, okH := addrFromIndex(idx[9:13])

				bits, okB := maskBits(mask)
				if !okD || !okM || !okH || !okB {
					return nil
				}

				r = &routeRow{prefix: netip.PrefixFrom(dest, bits).Masked(), nextHop: hop}
				rows[key] = r
				order = append(order, key)
			}

			set(r, pdu)

			return nil
		})
	}

	parse(oidIPCidrRouteIfIndex, func(r *routeRow, pdu gosnmp.SnmpPDU) {
		if n, ok := pduInt(pdu); ok {
			r.ifIndex = int(n)
		}
	})
	parse(oidIPCidrRouteProto, func(r *routeRow, pdu gosnmp.SnmpPDU) {
		if n, ok := pduInt(pdu); ok {
			r.proto = n
		}
	})

	out := make([]routeRow, 0, len(order))
	for _, key := range order {
		out = append(out, *rows[key])
	}

	return out
}

// legacyRoutes reads ipRouteTable, indexed by destination only.
func legacyRoutes(client Client) []routeRow {
	masks := make(map[netip.Addr]int)
	hops := make(map[netip.Addr]netip.Addr)
	ifIndexes := make(map[netip.Addr]int)
	protos := make(map[netip.Addr]int64)

	var order []netip.Addr

	walk := func(root string, fn func(dest netip.Addr, pdu gosnmp.SnmpPDU)) {
		_ = client.Walk(root, func(pdu gosnmp.SnmpPDU) error {
			idx, ok := oidIndex(pdu.Name, root)
			if !ok {
				return nil
			}

			if dest, ok := addrFromIndex(idx); ok {
				fn(dest, pdu)
			}

			return nil
		})
	}

	walk(oidIPRouteMask, func(dest netip.Addr, pdu gosnmp.SnmpPDU) {
		mask, ok := pduAddr(pdu)
		if !ok {
			return
		}

		if bits, ok := maskBits(mask); ok {
			masks[dest] = bits
			order = append(order, dest)
		}
	})
	walk(oidIPRouteNextHop, func(dest netip.Addr, pdu gosnmp.SnmpPDU) {
		if hop, ok := pduAddr(pdu); ok {
			hops[dest] = hop
		}
	})
	walk(oidIPRouteIfIndex, func(dest netip.Addr, pdu gosnmp.SnmpPDU) {
		if n, ok := pduInt(pdu); ok {
			ifIndexes[dest] = int(n)
		}
	})
	walk(oidIPRouteProto, func(dest netip.Addr, pdu gosnmp.SnmpPDU) {
		if n, ok := pduInt(pdu); ok {
			protos[dest] = n
		}
	})

	out := make([]routeRow, 0, len(order))

	for _, dest := range order {
		out = append(out, routeRow{
			prefix:  netip.PrefixFrom(dest, masks[dest]).Masked(),
			nextHop: hops[dest],
			ifIndex: ifIndexes[dest],
			proto:   protos[dest],
		})
	}

	return out
}
