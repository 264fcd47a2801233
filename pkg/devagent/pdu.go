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
	"net/netip"
	"strconv"
	"strings"
	"unicode"

	"github.com/gosnmp/gosnmp"
)

const macByteLength = 6

// missing reports a Get varbind that carries no value.
func missing(pdu gosnmp.SnmpPDU) bool {
	switch pdu.Type {
	case gosnmp.NoSuchObject, gosnmp.NoSuchInstance, gosnmp.EndOfMibView, gosnmp.Null:
		return true
	default:
		return pdu.Value == nil
	}
}

func pduBytes(pdu gosnmp.SnmpPDU) []byte {
	switch v := pdu.Value.(type) {
	case []byte:
		return v
	case string:
		return []byte(v)
	default:
		return nil
	}
}

func pduString(pdu gosnmp.SnmpPDU) string {
	switch v := pdu.Value.(type) {
	case []byte:
		return strings.TrimRight(string(v), "\x00 ")
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func pduInt(pdu gosnmp.SnmpPDU) (int64, bool) {
	switch pdu.Type {
	case gosnmp.Integer, gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Uinteger32, gosnmp.TimeTicks, gosnmp.Counter64:
		return gosnmp.ToBigInt(pdu.Value).Int64(), true
	default:
		return 0, false
	}
}

// pduAddr decodes an IpAddress varbind or a raw four-byte octet string.
func pduAddr(pdu gosnmp.SnmpPDU) (netip.Addr, bool) {
	switch v := pdu.Value.(type) {
	case string:
		addr, err := netip.ParseAddr(v)
		return addr, err == nil
	case []byte:
		if len(v) == 4 || len(v) == 16 {
			addr, ok := netip.AddrFromSlice(v)
			return addr.Unmap(), ok
		}
	}

	return netip.Addr{}, false
}

// oidIndex returns the numeric sub-identifiers that follow root in name.
func oidIndex(name, root string) ([]int, bool) {
	name = "." + strings.TrimPrefix(name, ".")
	root = "." + strings.TrimPrefix(root, ".")

	if !strings.HasPrefix(name, root+".") {
		return nil, false
	}

	parts := strings.Split(name[len(root)+1:], ".")
	out := make([]int, 0, len(parts))

	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, false
		}

		out = append(out, n)
	}

	return out, true
}

// tableColumn splits a table entry OID into its column and row index.
func tableColumn(name, table string) (string, []int, bool) {
	idx, ok := oidIndex(name, table)
	if !ok || len(idx) < 2 {
		return "", nil, false
	}

	return strconv.Itoa(idx[0]), idx[1:], true
}

func indexKey(idx []int) string {
	parts := make([]string, len(idx))
	for i, n := range idx {
		parts[i] = strconv.Itoa(n)
	}

	return strings.Join(parts, ".")
}

func addrFromIndex(idx []int) (netip.Addr, bool) {
	if len(idx) != 4 {
		return netip.Addr{}, false
	}

	var b [4]byte

	for i, n := range idx {
		if n < 0 || n > 255 {
			return netip.Addr{}, false
		}

		b[i] = byte(n)
	}

	return netip.AddrFrom4(b), true
}

func macFromIndex(idx []int) string {
	if len(idx) != macByteLength {
		return ""
	}

	b := make([]byte, macByteLength)

	for i, n := range idx {
		if n < 0 || n > 255 {
			return ""
		}

		b[i] = byte(n)
	}

	return FormatMAC(b)
}

// FormatMAC renders six bytes as lowercase colon-separated hex.
func FormatMAC(mac []byte) string {
	if len(mac) != macByteLength {
		return ""
	}

	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}

// NormalizeMAC accepts colon, dash, dotted-triplet or bare hex notation and
// returns lowercase colon-separated form, or "" when s is not a MAC.
func NormalizeMAC(s string) string {
	var hex strings.Builder

	for _, r := range strings.ToLower(s) {
		switch {
		case r == ':' || r == '-' || r == '.':
		case (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f'):
			hex.WriteRune(r)
		default:
			return ""
		}
	}

	h := hex.String()
	if len(h) != macByteLength*2 {
		return ""
	}

	return strings.Join([]string{h[0:2], h[2:4], h[4:6], h[6:8], h[8:10], h[10:12]}, ":")
}

// formatChassisID renders an LLDP identifier. Six raw bytes are a MAC.
func formatChassisID(b []byte) string {
	if len(b) == macByteLength && !printable(b) {
		return FormatMAC(b)
	}

	return strings.TrimRight(string(b), "\x00 ")
}

func printable(b []byte) bool {
	for _, c := range b {
		if c > unicode.MaxASCII || !unicode.IsPrint(rune(c)) {
			return false
		}
	}

	return len(b) > 0
}
