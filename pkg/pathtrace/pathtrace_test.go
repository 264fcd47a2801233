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

package pathtrace

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

var errNoAnswer = errors.New("no answer")

// device is what one node answers to the tracer's read-only queries.
type device struct {
	routes map[netip.Addr]*devagent.Route // by destination
	arps   []devagent.ArpEntry
	macs   []devagent.MacEntry
}

// labAgent serves every node of a test network; unknown queries fail.
type labAgent struct {
	devices map[netip.Addr]*device
}

func (l *labAgent) For(string) devagent.Agent { return l }

func (l *labAgent) dev(t devagent.Target) (*device, error) {
	d, ok := l.devices[t.Address]
	if !ok {
		return nil, errNoAnswer
	}

	return d, nil
}

func (*labAgent) Probe(context.Context, netip.Addr, devagent.Credentials) (*devagent.Identity, error) {
	return nil, errNoAnswer
}

func (*labAgent) Capabilities(context.Context, devagent.Target) (devagent.Capabilities, error) {
	return devagent.Capabilities{}, errNoAnswer
}

func (*labAgent) GetNeighbors(context.Context, devagent.Target) ([]devagent.Neighbor, error) {
	return nil, errNoAnswer
}

func (l *labAgent) GetLearnedMacTable(_ context.Context, t devagent.Target) ([]devagent.MacEntry, error) {
	d, err := l.dev(t)
	if err != nil {
		return nil, err
	}

	return d.macs, nil
}

func (l *labAgent) GetAddressResolutionTable(_ context.Context, t devagent.Target, _ string) ([]devagent.ArpEntry, error) {
	d, err := l.dev(t)
	if err != nil {
		return nil, err
	}

	return d.arps, nil
}

func (l *labAgent) GetRouteTo(_ context.Context, t devagent.Target, dest netip.Addr, _ string) (*devagent.Route, error) {
	d, err := l.dev(t)
	if err != nil {
		return nil, err
	}

	r, ok := d.routes[dest]
	if !ok {
		return nil, devagent.ErrNoRoute
	}

	return r, nil
}

func (*labAgent) GetInterfaceAddresses(context.Context, devagent.Target) ([]devagent.InterfaceAddress, error) {
	return nil, errNoAnswer
}

type lab struct {
	store *db.MemoryStore
	agent *labAgent
	nodes map[string]*models.ManagedNode
	epoch time.Time
}

func newLab(t *testing.T, names ...string) *lab {
	t.Helper()

	l := &lab{
		store: db.NewMemoryStore(),
		agent: &labAgent{devices: make(map[netip.Addr]*device)},
		nodes: make(map[string]*models.ManagedNode),
		epoch: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	for i, name := range names {
		n := &models.ManagedNode{Address: netip.AddrFrom4([4]byte{10, 0, 0, byte(i + 1)}), Name: name}

		id, err := l.store.CreateNode(context.Background(), n)
		require.NoError(t, err)

		n.ID = id
		l.nodes[name] = n
		l.agent.devices[n.Address] = &device{routes: make(map[netip.Addr]*devagent.Route)}
	}

	return l
}

func (l *lab) dev(name string) *device {
	return l.agent.devices[l.nodes[name].Address]
}

func (l *lab) subnet(t *testing.T, name, iface, prefix string) {
	t.Helper()

	ctx := context.Background()
	n := l.nodes[name]

	var rows []models.NodeAddress

	all, err := l.store.ListNodeAddresses(ctx)
	require.NoError(t, err)

	for _, a := range all {
		if a.NodeID == n.ID {
			rows = append(rows, a)
		}
	}

	rows = append(rows, models.NodeAddress{NodeID: n.ID, Interface: iface, Prefix: netip.MustParsePrefix(prefix)})
	require.NoError(t, l.store.ReplaceNodeAddresses(ctx, n.ID, rows))
}

// link joins a:aIf to b:bIf; age orders discovery, smaller is older.
func (l *lab) link(t *testing.T, a, aIf, b, bIf string, age int, status models.LinkStatus) models.LinkID {
	t.Helper()

	seen := l.epoch.Add(time.Duration(age) * time.Minute)

	id, err := l.store.InsertLink(context.Background(), &models.Link{
		Key:        models.NewLinkKey(l.nodes[a].ID, aIf, l.nodes[b].ID, bIf),
		Protocols:  []models.Protocol{models.ProtocolLLDP},
		Confidence: 0.95,
		Status:     status,
		FirstSeen:  seen,
		LastSeen:   seen,
	})
	require.NoError(t, err)

	return id
}

func (l *lab) route(name, dst, out, nextHop string) {
	r := &devagent.Route{OutgoingInterface: out}
	if nextHop != "" {
		r.NextHop = netip.MustParseAddr(nextHop)
	}

	l.dev(name).routes[netip.MustParseAddr(dst)] = r
}

func (l *lab) tracer(opts ...Option) *Tracer {
	return NewTracer(l.store, l.agent, nil, logger.NewTestLogger(), opts...)
}

func names(hops []models.Hop) []string {
	out := make([]string, len(hops))
	for i, h := range hops {
		out[i] = h.NodeName
	}

	return out
}

// threeRouters is r1 -ge0/ge0- r2 -ge1/ge0- r3 with a user subnet behind r1
// and a server subnet behind r3.
func threeRouters(t *testing.T) *lab {
	t.Helper()

	l := newLab(t, "r1", "r2", "r3")
	l.subnet(t, "r1", "vlan1", "192.168.1.1/24")
	l.subnet(t, "r3", "vlan3", "192.168.3.1/24")
	l.link(t, "r1", "ge0", "r2", "ge0", 1, models.LinkActive)
	l.link(t, "r2", "ge1", "r3", "ge0", 2, models.LinkActive)

	return l
}

func TestTraceRouteWalk(t *testing.T) {
	l := threeRouters(t)
	l.route("r1", "192.168.3.77", "ge0", "10.0.0.2")
	l.route("r2", "192.168.3.77", "ge1", "10.0.0.3")
	l.dev("r3").arps = []devagent.ArpEntry{{IP: netip.MustParseAddr("192.168.3.77"), MAC: "AA-BB-CC-00-00-77", Interface: "vlan3"}}
	l.dev("r3").macs = []devagent.MacEntry{{MAC: "aa:bb:cc:00:00:77", Interface: "ge5", EntryType: devagent.MacLearned}}

	res := l.tracer().Trace(context.Background(), "192.168.1.50", "192.168.3.77")

	require.Equal(t, models.TraceComplete, res.Status, res.Message)
	assert.Equal(t, []string{"r1", "r2", "r3"}, names(res.Hops))
	require.Len(t, res.Links, 2)

	for _, h := range res.Hops {
		assert.Equal(t, models.EvidenceRouteLookup, h.Evidence)
	}

	assert.Equal(t, "vlan1", res.Hops[0].IngressInterface)
	assert.Equal(t, "ge0", res.Hops[0].EgressInterface)
	assert.Equal(t, "ge0", res.Hops[1].IngressInterface)
	assert.Equal(t, "ge1", res.Hops[1].EgressInterface)
	assert.Equal(t, "ge5", res.Hops[2].EgressInterface, "L2 extension finds the host port")
}

func TestTraceRoutingLoopIsPartial(t *testing.T) {
	l := threeRouters(t)
	l.route("r1", "192.168.3.77", "ge0", "10.0.0.2")
	l.route("r2", "192.168.3.77", "ge0", "10.0.0.1")

	res := l.tracer().Trace(context.Background(), "192.168.1.50", "192.168.3.77")

	assert.Equal(t, models.TracePartial, res.Status)
	assert.Contains(t, res.Message, "routing loop")
	assert.Equal(t, []string{"r1", "r2"}, names(res.Hops))
}

func TestTraceHopLimit(t *testing.T) {
	l := threeRouters(t)
	l.route("r1", "192.168.3.77", "ge0", "10.0.0.2")
	l.route("r2", "192.168.3.77", "ge1", "10.0.0.3")

	res := l.tracer(WithMaxHops(1)).Trace(context.Background(), "192.168.1.50", "192.168.3.77")

	assert.Equal(t, models.TracePartial, res.Status)
	assert.Contains(t, res.Message, "hop limit 1")
}

func TestTraceFallsBackToGraphSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	agent := devagent.NewMockAgent(ctrl)

	l := threeRouters(t)

	agent.EXPECT().GetRouteTo(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, devagent.ErrNoRoute)
	agent.EXPECT().GetAddressResolutionTable(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errNoAnswer)

	tracer := NewTracer(l.store, staticAgents{agent}, nil, logger.NewTestLogger())
	res := tracer.Trace(context.Background(), "192.168.1.50", "192.168.3.77")

	require.Equal(t, models.TraceComplete, res.Status)
	assert.Equal(t, []string{"r1", "r2", "r3"}, names(res.Hops))

	for _, h := range res.Hops {
		assert.Equal(t, models.EvidenceGraphSearch, h.Evidence)
	}

	assert.True(t, strings.HasPrefix(res.Message, "address resolution on r3 failed"))
}

type staticAgents struct{ devagent.Agent }

func (s staticAgents) For(string) devagent.Agent { return s.Agent }

func TestTraceNoPathReturnsEndpoints(t *testing.T) {
	l := newLab(t, "r1", "r2", "r3")
	l.link(t, "r1", "ge0", "r2", "ge0", 1, models.LinkActive)
	l.link(t, "r2", "ge1", "r3", "ge0", 2, models.LinkInactive)

	res := l.tracer().Trace(context.Background(), "10.0.0.1", "10.0.0.3")

	assert.Equal(t, models.TracePartial, res.Status)
	assert.Equal(t, []string{"r1", "r3"}, names(res.Hops))
	assert.Empty(t, res.Links)
}

func TestTraceTiesBrokenByDiscoveryOrder(t *testing.T) {
	l := newLab(t, "a", "b", "c", "d")
	l.link(t, "a", "p1", "b", "p1", 5, models.LinkActive)
	l.link(t, "b", "p2", "d", "p1", 1, models.LinkActive)
	l.link(t, "a", "p2", "c", "p1", 2, models.LinkActive)
	l.link(t, "c", "p2", "d", "p2", 3, models.LinkActive)

	tracer := l.tracer()
	first := tracer.Trace(context.Background(), "10.0.0.1", "10.0.0.4")

	require.Equal(t, models.TraceComplete, first.Status)
	assert.Equal(t, []string{"a", "c", "d"}, names(first.Hops), "a-c was discovered before a-b")

	for i := 0; i < 5; i++ {
		assert.Equal(t, first, tracer.Trace(context.Background(), "10.0.0.1", "10.0.0.4"))
	}
}

func TestTraceL2Chase(t *testing.T) {
	l := newLab(t, "core", "acc")
	l.subnet(t, "core", "vlan20", "172.20.0.1/24")
	l.link(t, "core", "te1", "acc", "uplink", 1, models.LinkActive)

	l.dev("core").arps = []devagent.ArpEntry{{IP: netip.MustParseAddr("172.20.0.9"), MAC: "00:00:5e:00:53:09"}}
	l.dev("core").macs = []devagent.MacEntry{{MAC: "00:00:5e:00:53:09", Interface: "te1"}}
	l.dev("acc").macs = []devagent.MacEntry{{MAC: "00:00:5e:00:53:09", Interface: "fa0/7"}}

	res := l.tracer().Trace(context.Background(), "10.0.0.1", "172.20.0.9")

	require.Equal(t, models.TraceComplete, res.Status, res.Message)
	require.Equal(t, []string{"core", "acc"}, names(res.Hops))
	assert.Equal(t, models.EvidenceL2MacTrace, res.Hops[1].Evidence)
	assert.Equal(t, "te1", res.Hops[0].EgressInterface)
	assert.Equal(t, "uplink", res.Hops[1].IngressInterface)
	assert.Equal(t, "fa0/7", res.Hops[1].EgressInterface)
	require.Len(t, res.Links, 1)
}

func TestTraceEndpoints(t *testing.T) {
	l := threeRouters(t)
	tracer := l.tracer()

	res := tracer.Trace(context.Background(), "172.16.0.1", "192.168.3.77")
	assert.Equal(t, models.TraceError, res.Status)
	assert.Contains(t, res.Message, "source")

	res = tracer.Trace(context.Background(), "bogus", "192.168.3.77")
	assert.Equal(t, models.TraceError, res.Status)

	res = tracer.Trace(context.Background(), "192.168.1.50", "10.0.0.1")
	require.Equal(t, models.TraceComplete, res.Status)
	assert.Equal(t, []string{"r1"}, names(res.Hops))
}

func TestOwnerIndexPrefersExactHost(t *testing.T) {
	l := newLab(t, "r1", "r2")
	l.subnet(t, "r1", "vlan1", "192.168.1.1/24")
	l.subnet(t, "r2", "vlan1", "192.168.1.2/24")
	l.subnet(t, "r2", "vlan9", "192.168.1.128/25")

	snap, err := l.tracer().load(context.Background())
	require.NoError(t, err)

	own, ok := snap.owners.owner(netip.MustParseAddr("192.168.1.2"))
	require.True(t, ok)
	assert.Equal(t, "r2", own.node.Name)
	assert.True(t, own.exact)

	own, ok = snap.owners.owner(netip.MustParseAddr("192.168.1.50"))
	require.True(t, ok)
	assert.Equal(t, "r1", own.node.Name, "equal prefixes resolve to the lowest node id")

	own, ok = snap.owners.owner(netip.MustParseAddr("192.168.1.200"))
	require.True(t, ok)
	assert.Equal(t, "r2", own.node.Name, "longest prefix wins")
	assert.Equal(t, "vlan9", own.iface)

	_, ok = snap.owners.owner(netip.MustParseAddr("8.8.8.8"))
	assert.False(t, ok)
}
