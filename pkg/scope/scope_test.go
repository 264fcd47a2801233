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
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addrs(t *testing.T, values ...string) []netip.Addr {
	t.Helper()

	out := make([]netip.Addr, 0, len(values))
	for _, v := range values {
		out = append(out, netip.MustParseAddr(v))
	}

	return out
}

func TestExpandSeeds(t *testing.T) {
	tests := []struct {
		name      string
		seeds     []string
		max       int
		want      []string
		truncated bool
		wantErr   bool
	}{
		{
			name:  "slash 30 drops network and broadcast",
			seeds: []string{"192.168.1.0/30"},
			want:  []string{"192.168.1.1", "192.168.1.2"},
		},
		{
			name:  "slash 31 keeps both",
			seeds: []string{"10.0.0.0/31"},
			want:  []string{"10.0.0.0", "10.0.0.1"},
		},
		{
			name:  "dash range shorthand",
			seeds: []string{"10.0.0.5-7"},
			want:  []string{"10.0.0.5", "10.0.0.6", "10.0.0.7"},
		},
		{
			name:  "duplicates collapse",
			seeds: []string{"10.0.0.1", "10.0.0.1-10.0.0.2", " 10.0.0.2 "},
			want:  []string{"10.0.0.1", "10.0.0.2"},
		},
		{
			name:      "cap truncates",
			seeds:     []string{"10.0.0.0/24"},
			max:       3,
			want:      []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"},
			truncated: true,
		},
		{
			name:    "garbage fails",
			seeds:   []string{"10.0.0.1", "not-an-address"},
			wantErr: true,
		},
		{
			name:    "reversed range fails",
			seeds:   []string{"10.0.0.9-10.0.0.1"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandSeeds(tt.seeds, tt.max)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidSeed)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, addrs(t, tt.want...), got.Targets)
			assert.Equal(t, tt.truncated, got.Truncated)
		})
	}
}

func TestFilterAlwaysDrops(t *testing.T) {
	f, err := NewFilter(Config{})
	require.NoError(t, err)

	assert.Equal(t, DropLoopback, f.Check(netip.MustParseAddr("127.0.0.1")))
	assert.Equal(t, DropMulticast, f.Check(netip.MustParseAddr("224.0.0.5")))
	assert.Equal(t, DropLinkLocal, f.Check(netip.MustParseAddr("169.254.10.10")))
	assert.Equal(t, DropLinkLocal, f.Check(netip.MustParseAddr("fe80::1")))
	assert.Equal(t, DropReserved, f.Check(netip.MustParseAddr("0.0.0.0")))
	assert.Equal(t, Allowed, f.Check(netip.MustParseAddr("8.8.8.8")))
}

func TestFilterIncludeExclude(t *testing.T) {
	f, err := NewFilter(Config{
		Include: []string{"10.0.0.0/16"},
		Exclude: []string{"10.0.5.0/24", "10.0.0.10-10.0.0.12"},
	})
	require.NoError(t, err)

	assert.Equal(t, Allowed, f.Check(netip.MustParseAddr("10.0.1.1")))
	assert.Equal(t, DropExcluded, f.Check(netip.MustParseAddr("10.0.5.77")))
	assert.Equal(t, DropExcluded, f.Check(netip.MustParseAddr("10.0.0.11")))
	assert.Equal(t, Allowed, f.Check(netip.MustParseAddr("10.0.0.13")))
	assert.Equal(t, DropNotInside, f.Check(netip.MustParseAddr("192.168.0.1")))
}

func TestFilterApplyCountsAndOrders(t *testing.T) {
	f, err := NewFilter(Config{Exclude: []string{"10.9.9.9"}, PreferPrivate: true})
	require.NoError(t, err)

	kept, dropped := f.Apply(addrs(t, "8.8.8.8", "10.0.0.1", "127.0.0.1", "10.9.9.9", "1.1.1.1", "192.168.0.1"))

	assert.Equal(t, addrs(t, "10.0.0.1", "192.168.0.1", "8.8.8.8", "1.1.1.1"), kept)
	assert.Equal(t, 1, dropped[DropLoopback])
	assert.Equal(t, 1, dropped[DropExcluded])
}

func TestNewFilterRejectsBadRange(t *testing.T) {
	_, err := NewFilter(Config{Include: []string{"10.0.0.0/33"}})
	require.ErrorIs(t, err, ErrInvalidRange)
}

func TestRangeToPrefixes(t *testing.T) {
	got := rangeToPrefixes(netip.MustParseAddr("10.0.0.1"), netip.MustParseAddr("10.0.0.9"))

	want := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.1/32"),
		netip.MustParsePrefix("10.0.0.2/31"),
		netip.MustParsePrefix("10.0.0.4/30"),
		netip.MustParsePrefix("10.0.0.8/31"),
	}

	assert.Equal(t, want, got)
}
