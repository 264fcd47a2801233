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

package scope

import (
	"fmt"
	"net/netip"
	"strings"
)

const (
	// DefaultMaxTargets bounds how many addresses one job may expand to.
	DefaultMaxTargets = 4096

	// prefixes shorter than this keep their network and broadcast addresses
	broadcastMask = 31
)

// Expansion is the result of expanding a seed list.
type Expansion struct {
	Targets   []netip.Addr
	Truncated bool
}

// ExpandSeeds turns seed expressions into a de-duplicated, ordered address
// list. Any unparseable seed fails the whole expansion. For IPv4 prefixes
// shorter than /31 the network and broadcast addresses are skipped.
func ExpandSeeds(seeds []string, maxTargets int) (Expansion, error) {
	if maxTargets <= 0 {
		maxTargets = DefaultMaxTargets
	}

	var out Expansion

	seen := make(map[netip.Addr]struct{})

	add := func(addr netip.Addr) bool {
		if _, dup := seen[addr]; dup {
			return true
		}

		if len(out.Targets) >= maxTargets {
			out.Truncated = true
			return false
		}

		seen[addr] = struct{}{}
		out.Targets = append(out.Targets, addr)

		return true
	}

	for _, raw := range seeds {
		seed := strings.TrimSpace(raw)
		if seed == "" {
			continue
		}

		if err := expandOne(seed, add); err != nil {
			return Expansion{}, fmt.Errorf("%w %q: %w", ErrInvalidSeed, seed, err)
		}

		if out.Truncated {
			break
		}
	}

	return out, nil
}

func expandOne(seed string, add func(netip.Addr) bool) error {
	if strings.Contains(seed, "/") {
		p, err := netip.ParsePrefix(seed)
		if err != nil {
			return err
		}

		p = p.Masked()
		first, last := p.Addr(), lastAddr(p)

		if p.Addr().Is4() && p.Bits() < broadcastMask {
			first, last = first.Next(), last.Prev()
		}

		walk(first, last, add)

		return nil
	}

	if from, to, ok := strings.Cut(seed, "-"); ok {
		start, end, err := parseDashRange(from, to)
		if err != nil {
			return err
		}

		walk(start, end, add)

		return nil
	}

	addr, err := netip.ParseAddr(seed)
	if err != nil {
		return err
	}

	add(addr.Unmap())

	return nil
}

func walk(first, last netip.Addr, add func(netip.Addr) bool) {
	for addr := first; addr.IsValid() && addr.Compare(last) <= 0; addr = addr.Next() {
		if !add(addr) {
			return
		}
	}
}
