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

// Package scope decides which addresses discovery and crawling may touch, and
// expands seed expressions into target lists.
package scope

import (
	"errors"
	"fmt"
	"net/netip"
	"sort"
	"strings"
)

var (
	ErrInvalidSeed  = errors.New("invalid seed")
	ErrInvalidRange = errors.New("invalid scope range")
)

// Reason explains why an address was dropped.
type Reason string

const (
	Allowed       Reason = ""
	DropLoopback  Reason = "loopback"
	DropMulticast Reason = "multicast"
	DropLinkLocal Reason = "link_local"
	DropReserved  Reason = "unspecified"
	DropExcluded  Reason = "excluded"
	DropNotInside Reason = "outside_include"
	DropBroadcast Reason = "broadcast"
)

// Config is the administrator-facing form of a Filter.
type Config struct {
	Include       []string `json:"include"`
	Exclude       []string `json:"exclude"`
	PreferPrivate bool     `json:"prefer_private"`
}

// Filter applies include/exclude ranges on top of the always-dropped classes.
type Filter struct {
	include       []netip.Prefix
	exclude       []netip.Prefix
	preferPrivate bool
}

// NewFilter parses cfg. Ranges may be prefixes, single addresses or dash ranges.
func NewFilter(cfg Config) (*Filter, error) {
	include, err := parsePrefixes(cfg.Include)
	if err != nil {
		return nil, err
	}

	exclude, err := parsePrefixes(cfg.Exclude)
	if err != nil {
		return nil, err
	}

	return &Filter{include: include, exclude: exclude, preferPrivate: cfg.PreferPrivate}, nil
}

// Merge returns a filter that applies both f and other: excludes and includes
// are combined, and the private preference is kept if either asks for it.
func (f *Filter) Merge(other *Filter) *Filter {
	if other == nil {
		return f
	}

	if f == nil {
		return other
	}

	return &Filter{
		include:       append(append([]netip.Prefix(nil), f.include...), other.include...),
		exclude:       append(append([]netip.Prefix(nil), f.exclude...), other.exclude...),
		preferPrivate: f.preferPrivate || other.preferPrivate,
	}
}

// Check returns Allowed or the reason addr must not be probed.
func (f *Filter) Check(addr netip.Addr) Reason {
	addr = addr.Unmap()

	switch {
	case !addr.IsValid() || addr.IsUnspecified():
		return DropReserved
	case addr.IsLoopback():
		return DropLoopback
	case addr.IsMulticast():
		return DropMulticast
	case addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast():
		return DropLinkLocal
	case addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}):
		return DropBroadcast
	}

	if f == nil {
		return Allowed
	}

	for _, p := range f.exclude {
		if p.Contains(addr) {
			return DropExcluded
		}
	}

	if len(f.include) == 0 {
		return Allowed
	}

	for _, p := range f.include {
		if p.Contains(addr) {
			return Allowed
		}
	}

	return DropNotInside
}

// Contains is Check(addr) == Allowed.
func (f *Filter) Contains(addr netip.Addr) bool {
	return f.Check(addr) == Allowed
}

// Apply partitions addrs into kept and a per-reason drop count. Kept addresses
// are ordered private-first when the filter prefers private space.
func (f *Filter) Apply(addrs []netip.Addr) ([]netip.Addr, map[Reason]int) {
	kept := make([]netip.Addr, 0, len(addrs))
	dropped := make(map[Reason]int)

	for _, addr := range addrs {
		if reason := f.Check(addr); reason != Allowed {
			dropped[reason]++
			continue
		}

		kept = append(kept, addr.Unmap())
	}

	if f != nil && f.preferPrivate {
		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].IsPrivate() && !kept[j].IsPrivate()
		})
	}

	return kept, dropped
}

// PrefersPrivate reports whether private space is ordered first.
func (f *Filter) PrefersPrivate() bool {
	return f != nil && f.preferPrivate
}

func parsePrefixes(values []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(values))

	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		prefixes, err := parseRangeExpr(raw)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidRange, raw, err)
		}

		out = append(out, prefixes...)
	}

	return out, nil
}

// parseRangeExpr turns "10.0.0.0/8", "10.0.0.1" or "10.0.0.1-10.0.0.9" into
// covering prefixes.
func parseRangeExpr(raw string) ([]netip.Prefix, error) {
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return nil, err
		}

		return []netip.Prefix{p.Masked()}, nil
	}

	if from, to, ok := strings.Cut(raw, "-"); ok {
		start, end, err := parseDashRange(from, to)
		if err != nil {
			return nil, err
		}

		return rangeToPrefixes(start, end), nil
	}

	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return nil, err
	}

	addr = addr.Unmap()

	return []netip.Prefix{netip.PrefixFrom(addr, addr.BitLen())}, nil
}

func parseDashRange(from, to string) (netip.Addr, netip.Addr, error) {
	start, err := netip.ParseAddr(strings.TrimSpace(from))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	to = strings.TrimSpace(to)

	// "10.0.0.1-20" shorthand keeps the leading octets of start
	if !strings.ContainsAny(to, ".:") && start.Is4() {
		octets := start.As4()
		to = fmt.Sprintf("%d.%d.%d.%s", octets[0], octets[1], octets[2], to)
	}

	end, err := netip.ParseAddr(to)
	if err != nil {
		return netip.Addr{}, netip.Addr{}, err
	}

	start, end = start.Unmap(), end.Unmap()

	if start.BitLen() != end.BitLen() || end.Less(start) {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("range end %s before start %s", end, start)
	}

	return start, end, nil
}

// rangeToPrefixes returns the minimal prefix cover of [start, end].
func rangeToPrefixes(start, end netip.Addr) []netip.Prefix {
	var out []netip.Prefix

	for {
		bits := start.BitLen()

		for bits > 0 {
			p := netip.PrefixFrom(start, bits-1).Masked()
			if p.Addr() != start || lastAddr(p).Compare(end) > 0 {
				break
			}

			bits--
		}

		p := netip.PrefixFrom(start, bits)
		out = append(out, p)

		last := lastAddr(p)
		if last.Compare(end) >= 0 {
			return out
		}

		start = last.Next()
	}
}

func lastAddr(p netip.Prefix) netip.Addr {
	addr := p.Masked().Addr()
	b := addr.AsSlice()

	hostBits := addr.BitLen() - p.Bits()
	for i := len(b) - 1; i >= 0 && hostBits > 0; i-- {
		n := hostBits
		if n > 8 {
			n = 8
		}

		b[i] |= byte(1<<n - 1)
		hostBits -= n
	}

	out, _ := netip.AddrFromSlice(b)

	return out
}
