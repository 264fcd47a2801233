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
	"sort"

	"github.com/gosnmp/gosnmp"
)

// dot1dTpFdbStatus / dot1qTpFdbStatus values
const (
	fdbStatusOther   = 1
	fdbStatusInvalid = 2
	fdbStatusLearned = 3
	fdbStatusSelf    = 4
	fdbStatusMgmt    = 5
)

func entryType(status int64) MacEntryType {
	switch status {
	case fdbStatusLearned:
		return MacLearned
	case fdbStatusSelf:
		return MacSelf
	case fdbStatusMgmt:
		return MacStatic
	default:
		return MacOther
	}
}

// walkBridgePorts maps bridge port numbers to ifIndex.
func walkBridgePorts(client Client) (map[int]int, error) {
	ports := make(map[int]int)

	err := client.Walk(oidDot1dBasePortIfIndex, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidDot1dBasePortIfIndex)
		if !ok || len(idx) != 1 {
			return nil
		}

		if ifIndex, ok := pduInt(pdu); ok {
			ports[idx[0]] = int(ifIndex)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bridge port map: %w", err)
	}

	return ports, nil
}

func bridgePortName(port int, portIf map[int]int, ifNames map[int]string) string {
	if ifIndex, ok := portIf[port]; ok {
		return ifName(ifNames, ifIndex)
	}

	return fmt.Sprintf("bridge-port-%d", port)
}

// fdbStatuses walks a status column into a map keyed by row index.
func fdbStatuses(client Client, root string) map[string]int64 {
	out := make(map[string]int64)

	_ = client.Walk(root, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, root)
		if !ok {
			return nil
		}

		if v, ok := pduInt(pdu); ok {
			out[indexKey(idx)] = v
		}

		return nil
	})

	return out
}

// walkQBridgeFDB reads dot1qTpFdbTable, indexed fdbId.mac. The filtering
// database id is reported as the VLAN.
func walkQBridgeFDB(client Client, portIf map[int]int, ifNames map[int]string) ([]MacEntry, error) {
	statuses := fdbStatuses(client, oidDot1qTpFdbStatus)

	var out []MacEntry

	err := client.Walk(oidDot1qTpFdbPort, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidDot1qTpFdbPort)
		if !ok || len(idx) != 1+macByteLength {
			return nil
		}

		entry, ok := fdbEntry(pdu, idx[1:], statuses[indexKey(idx)], portIf, ifNames)
		if !ok {
			return nil
		}

		entry.VLAN = idx[0]
		out = append(out, entry)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("q-bridge fdb: %w", err)
	}

	sortMacEntries(out)

	return out, nil
}

// walkBridgeFDB reads dot1dTpFdbTable, indexed by mac.
func walkBridgeFDB(client Client, portIf map[int]int, ifNames map[int]string) ([]MacEntry, error) {
	statuses := fdbStatuses(client, oidDot1dTpFdbStatus)

	var out []MacEntry

	err := client.Walk(oidDot1dTpFdbPort, func(pdu gosnmp.SnmpPDU) error {
		idx, ok := oidIndex(pdu.Name, oidDot1dTpFdbPort)
		if !ok || len(idx) != macByteLength {
			return nil
		}

		if entry, ok := fdbEntry(pdu, idx, statuses[indexKey(idx)], portIf, ifNames); ok {
			out = append(out, entry)
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bridge fdb: %w", err)
	}

	sortMacEntries(out)

	return out, nil
}

func fdbEntry(pdu gosnmp.SnmpPDU, macIdx []int, status int64, portIf map[int]int, ifNames map[int]string) (MacEntry, bool) {
	if status == fdbStatusInvalid {
		return MacEntry{}, false
	}

	port, ok := pduInt(pdu)
	if !ok || port <= 0 {
		return MacEntry{}, false
	}

	mac := macFromIndex(macIdx)
	if mac == "" {
		return MacEntry{}, false
	}

	if status == 0 {
		status = fdbStatusOther
	}

	return MacEntry{
		MAC:       mac,
		Interface: bridgePortName(int(port), portIf, ifNames),
		EntryType: entryType(status),
	}, true
}

func sortMacEntries(entries []MacEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MAC != entries[j].MAC {
			return entries[i].MAC < entries[j].MAC
		}

		return entries[i].VLAN < entries[j].VLAN
	})
}
