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

package topology

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.TopologyChangeEvent
	err    error
}

func (p *recordingPublisher) PublishLinkUpdate(_ context.Context, event models.TopologyChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return p.err
}

func (p *recordingPublisher) states() []models.LinkState {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.LinkState, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.State)
	}

	return out
}

type fixture struct {
	store *db.MemoryStore
	pub   *recordingPublisher
	rec   *Reconciler
	nodes map[string]*models.ManagedNode
}

func newFixture(t *testing.T, nodes ...*models.ManagedNode) *fixture {
	t.Helper()

	f := &fixture{
		store: db.NewMemoryStore(),
		pub:   &recordingPublisher{},
		nodes: make(map[string]*models.ManagedNode),
	}

	for _, n := range nodes {
		id, err := f.store.CreateNode(context.Background(), n)
		require.NoError(t, err)

		n.ID = id
		f.nodes[n.Name] = n
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	f.rec = NewReconciler(f.store, f.pub, logger.NewTestLogger(), WithClock(func() time.Time {
		now = now.Add(time.Second)
		return now
	}))

	return f
}

func twoSwitches(t *testing.T) *fixture {
	t.Helper()

	return newFixture(t,
		&models.ManagedNode{Name: "sw1", Address: netip.MustParseAddr("10.0.0.1")},
		&models.ManagedNode{Name: "sw2", Address: netip.MustParseAddr("10.0.0.2")},
	)
}

func lldp(local, name, addr, remote string) models.AdjacencyEvidence {
	return models.AdjacencyEvidence{
		LocalInterface:  local,
		NeighborName:    name,
		NeighborAddress: addr,
		RemoteInterface: remote,
		Protocol:        models.ProtocolLLDP,
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := twoSwitches(t)
	sw1 := f.nodes["sw1"]
	evidence := []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "10.0.0.2", "Gi0/2")}

	res, err := f.rec.Reconcile(ctx, sw1, evidence)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	res, err = f.rec.Reconcile(ctx, sw1, evidence)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Deactivated)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)

	link := links[0]
	assert.Equal(t, models.NewLinkKey(sw1.ID, "Gi0/1", f.nodes["sw2"].ID, "Gi0/2"), link.Key)
	assert.Equal(t, models.LinkActive, link.Status)
	assert.InDelta(t, ConfidenceAddress, link.Confidence, 1e-9)
	assert.Equal(t, []models.Protocol{models.ProtocolLLDP}, link.Protocols)

	// only the creation is an event
	assert.Equal(t, []models.LinkState{models.LinkStateActive}, f.pub.states())
}

func TestReconcileNormalizesReportsFromBothEnds(t *testing.T) {
	ctx := context.Background()
	f := twoSwitches(t)

	_, err := f.rec.Reconcile(ctx, f.nodes["sw1"], []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "", "Gi0/2")})
	require.NoError(t, err)

	cdp := lldp("Gi0/2", "sw1", "10.0.0.1", "Gi0/1")
	cdp.Protocol = models.ProtocolCDP

	res, err := f.rec.Reconcile(ctx, f.nodes["sw2"], []models.AdjacencyEvidence{cdp})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, []models.Protocol{models.ProtocolCDP, models.ProtocolLLDP}, links[0].Protocols)
	assert.InDelta(t, ConfidenceAddress, links[0].Confidence, 1e-9, "confidence is the best observed")
}

func TestReconcileDeactivatesAndReactivates(t *testing.T) {
	ctx := context.Background()
	f := twoSwitches(t)
	sw1 := f.nodes["sw1"]
	evidence := []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "10.0.0.2", "Gi0/2")}

	_, err := f.rec.Reconcile(ctx, sw1, evidence)
	require.NoError(t, err)

	res, err := f.rec.Reconcile(ctx, sw1, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1, "links are never deleted")
	assert.Equal(t, models.LinkInactive, links[0].Status)

	// an already inactive link is not deactivated twice
	res, err = f.rec.Reconcile(ctx, sw1, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Deactivated)

	res, err = f.rec.Reconcile(ctx, sw1, evidence)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Reactivated)

	changes, err := f.store.ListLinkChanges(ctx, links[0].ID)
	require.NoError(t, err)

	reasons := make([]models.ChangeReason, 0, len(changes))
	for _, c := range changes {
		reasons = append(reasons, c.Reason)
	}

	assert.Equal(t, []models.ChangeReason{models.ChangeCreated, models.ChangeDeactivated, models.ChangeReactivated}, reasons)
	assert.Equal(t,
		[]models.LinkState{models.LinkStateActive, models.LinkStateDown, models.LinkStateActive},
		f.pub.states())
}

func TestReconcileDeactivationWaitsForWholePass(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		&models.ManagedNode{Name: "core", Address: netip.MustParseAddr("10.0.0.1")},
		&models.ManagedNode{Name: "acc1", Address: netip.MustParseAddr("10.0.0.2")},
		&models.ManagedNode{Name: "acc2", Address: netip.MustParseAddr("10.0.0.3")},
	)
	core := f.nodes["core"]

	_, err := f.rec.Reconcile(ctx, core, []models.AdjacencyEvidence{
		lldp("Gi0/1", "acc1", "", "Gi0/48"),
		lldp("Gi0/2", "acc2", "", "Gi0/48"),
	})
	require.NoError(t, err)

	res, err := f.rec.Reconcile(ctx, core, []models.AdjacencyEvidence{lldp("Gi0/2", "acc2", "", "Gi0/48")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 1, res.Deactivated)

	acc2Links, err := f.store.ListLinksForNode(ctx, f.nodes["acc2"].ID)
	require.NoError(t, err)
	require.Len(t, acc2Links, 1)
	assert.Equal(t, models.LinkActive, acc2Links[0].Status)
}

func TestReconcileSkipsAmbiguousNames(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		&models.ManagedNode{Name: "core", Address: netip.MustParseAddr("10.0.0.1")},
		&models.ManagedNode{Name: "edge-a.site1", Address: netip.MustParseAddr("10.0.1.1")},
		&models.ManagedNode{Name: "edge_a.site2", Address: netip.MustParseAddr("10.0.2.1")},
	)

	res, err := f.rec.Reconcile(ctx, f.nodes["core"], []models.AdjacencyEvidence{
		lldp("Gi0/1", "EDGE-A", "", "ge-0/0/0"),
		lldp("Gi0/2", "unknown-host", "", "eth0"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Ambiguous)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 0, res.Created)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestReconcileFoldsPartialInterface(t *testing.T) {
	ctx := context.Background()
	f := twoSwitches(t)
	sw1 := f.nodes["sw1"]

	_, err := f.rec.Reconcile(ctx, sw1, []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "", "")})
	require.NoError(t, err)

	res, err := f.rec.Reconcile(ctx, sw1, []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "", "Gi0/2")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)

	_, localIf, remoteIf := links[0].Key.Other(sw1.ID)
	assert.Equal(t, "Gi0/1", localIf)
	assert.Equal(t, "Gi0/2", remoteIf)
}

func TestReconcileDegradedLinkUpgrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t,
		&models.ManagedNode{Name: "dist1", Address: netip.MustParseAddr("10.0.0.1")},
		&models.ManagedNode{Name: "access-sw9", Address: netip.MustParseAddr("10.0.0.9")},
	)
	dist := f.nodes["dist1"]

	weak := models.AdjacencyEvidence{
		LocalInterface: "Gi0/9",
		NeighborName:   "access",
		Protocol:       models.ProtocolFDBARP,
	}

	res, err := f.rec.Reconcile(ctx, dist, []models.AdjacencyEvidence{weak})
	require.NoError(t, err)
	require.Equal(t, 1, res.Created)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.LinkDegraded, links[0].Status)
	assert.InDelta(t, ConfidenceNamePrefix*models.ProtocolFDBARP.Weight(), links[0].Confidence, 1e-9)

	_, err = f.rec.Reconcile(ctx, dist, []models.AdjacencyEvidence{lldp("Gi0/9", "access-sw9", "10.0.0.9", "Gi0/1")})
	require.NoError(t, err)

	links, err = f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.LinkActive, links[0].Status)

	changes, err := f.store.ListLinkChanges(ctx, links[0].ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, models.ChangeUpgraded, changes[1].Reason)
	assert.Equal(t, models.LinkDegraded, changes[1].FromStatus)
}

// hiddenLinkStore hides existing links from the initial read, as if another
// pass inserted them after this one loaded its working set.
type hiddenLinkStore struct {
	*db.MemoryStore
}

func (hiddenLinkStore) ListLinksForNode(context.Context, models.NodeID) ([]*models.Link, error) {
	return nil, nil
}

func TestReconcileDuplicateInsertRereads(t *testing.T) {
	ctx := context.Background()
	f := twoSwitches(t)
	sw1, sw2 := f.nodes["sw1"], f.nodes["sw2"]

	_, err := f.store.InsertLink(ctx, &models.Link{
		Key:        models.NewLinkKey(sw1.ID, "Gi0/1", sw2.ID, "Gi0/2"),
		Status:     models.LinkActive,
		Protocols:  []models.Protocol{models.ProtocolCDP},
		Confidence: 0.8,
	})
	require.NoError(t, err)

	rec := NewReconciler(hiddenLinkStore{f.store}, nil, logger.NewTestLogger())

	res, err := rec.Reconcile(ctx, sw1, []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "10.0.0.2", "Gi0/2")})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 1, res.Updated)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, []models.Protocol{models.ProtocolCDP, models.ProtocolLLDP}, links[0].Protocols)
	assert.InDelta(t, 0.95, links[0].Confidence, 1e-9)
}

func TestReconcileIgnoresPublishFailure(t *testing.T) {
	ctx := context.Background()
	f := twoSwitches(t)
	f.pub.err = errors.New("nats down")

	res, err := f.rec.Reconcile(ctx, f.nodes["sw1"], []models.AdjacencyEvidence{lldp("Gi0/1", "sw2", "", "Gi0/2")})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
}

func TestReconcileRejectsForeignEvidence(t *testing.T) {
	f := twoSwitches(t)

	ev := lldp("Gi0/1", "sw2", "", "Gi0/2")
	ev.LocalNodeID = f.nodes["sw2"].ID

	_, err := f.rec.Reconcile(context.Background(), f.nodes["sw1"], []models.AdjacencyEvidence{ev})
	require.ErrorIs(t, err, ErrNodeMismatch)

	_, err = f.rec.Reconcile(context.Background(), nil, nil)
	require.ErrorIs(t, err, ErrNilNode)
}

func TestResolveLadder(t *testing.T) {
	nodes := []*models.ManagedNode{
		{ID: 1, Name: "core-sw1", Address: netip.MustParseAddr("10.0.0.1")},
		{ID: 2, Name: "dist-a", Hostname: "dist-a.example.net", Address: netip.MustParseAddr("10.0.0.2")},
		{ID: 3, Name: "wan-router-east", Address: netip.MustParseAddr("10.0.0.3")},
	}
	addrs := []models.NodeAddress{{NodeID: 3, Interface: "Gi0/0", Prefix: netip.MustParsePrefix("192.0.2.1/30")}}
	idx := NewNodeIndex(nodes, addrs)

	tests := []struct {
		name       string
		ev         models.AdjacencyEvidence
		outcome    Outcome
		node       models.NodeID
		confidence float64
	}{
		{"management address", models.AdjacencyEvidence{NeighborAddress: "10.0.0.1"}, Resolved, 1, ConfidenceAddress},
		{"interface address", models.AdjacencyEvidence{NeighborAddress: "192.0.2.1"}, Resolved, 3, ConfidenceAddress},
		{"exact hostname", models.AdjacencyEvidence{NeighborName: "dist-a.example.net"}, Resolved, 2, ConfidenceExactName},
		{"normalized name", models.AdjacencyEvidence{NeighborName: "CORE_SW1.lab.local"}, Resolved, 1, ConfidenceNormalizedName},
		{"name prefix", models.AdjacencyEvidence{NeighborName: "wan-router"}, Resolved, 3, ConfidenceNamePrefix},
		{"unknown name", models.AdjacencyEvidence{NeighborName: "edge-x"}, Unresolved, 0, 0},
		{"no match", models.AdjacencyEvidence{NeighborName: "zz"}, Unresolved, 0, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Resolve(idx, DefaultStrategies(), 99, &tc.ev)
			assert.Equal(t, tc.outcome, res.Outcome)
			assert.Equal(t, tc.node, res.NodeID)
			assert.InDelta(t, tc.confidence, res.Confidence, 1e-9)
		})
	}

	self := Resolve(idx, DefaultStrategies(), 1, &models.AdjacencyEvidence{NeighborAddress: "10.0.0.1"})
	assert.Equal(t, Unresolved, self.Outcome)
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "coresw1", NormalizeName("Core-SW1.example.net"))
	assert.Equal(t, "coresw1", NormalizeName("core_sw1"))
	assert.Equal(t, "10.0.0.1", NormalizeName("10.0.0.1"))
	assert.Empty(t, NormalizeName("  "))
}
