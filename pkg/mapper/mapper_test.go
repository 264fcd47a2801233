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

package mapper

import (
	"context"
	"encoding/json"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/kv"
	"github.com/carverauto/serviceradar-mapper/pkg/lease"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scan"
)

func candidateAt(t *testing.T, list []*models.Candidate, addr string) *models.Candidate {
	t.Helper()

	for _, c := range list {
		if c.Address == netip.MustParseAddr(addr) {
			return c
		}
	}

	require.Failf(t, "candidate missing", "no candidate for %s", addr)

	return nil
}

func TestDiscoverySlash30(t *testing.T) {
	network := newFakeNetwork()
	network.add("192.0.2.1", &fakeDevice{
		identity: ciscoIdentity("edge-1"),
		caps:     devagent.Capabilities{LLDP: true, Bridge: true, QBridge: true},
	})

	f := newFixture(t, network, newFakeProber().up("192.0.2.1").up("192.0.2.2"))
	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"192.0.2.0/30"}})
	require.NoError(t, err)

	status := f.wait(t, id)
	require.Equal(t, models.JobCompleted, status.State, status.Error)
	assert.Equal(t, 2, status.Counts.Total)
	assert.Equal(t, 2, status.Counts.Live)
	assert.Equal(t, 2, status.Counts.CandidatesCreated)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)
	require.Len(t, cands, 2)

	identified := candidateAt(t, cands, "192.0.2.1")
	assert.GreaterOrEqual(t, identified.VendorConfidence, 0.8)
	assert.Equal(t, devagent.DeviceTypeCisco, identified.DeviceType)
	assert.Equal(t, "edge-1", identified.SysName)
	assert.Empty(t, identified.Issues)

	silent := candidateAt(t, cands, "192.0.2.2")
	assert.InDelta(t, confidenceLiveOnly, silent.VendorConfidence, 1e-9)
	assert.True(t, silent.HasIssue(models.IssueSNMPUnreachable))

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestDiscoveryFallbackGrading(t *testing.T) {
	prober := newFakeProber().up("10.1.0.1", 22).up("10.1.0.2", 443).up("10.1.0.3")
	f := newFixture(t, newFakeNetwork(), prober)
	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.1.0.1-10.1.0.4"}})
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, f.wait(t, id).State)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)
	require.Len(t, cands, 3)

	shell := candidateAt(t, cands, "10.1.0.1")
	assert.InDelta(t, confidenceShellReachable, shell.VendorConfidence, 1e-9)
	assert.True(t, shell.HasIssue(models.IssueMgmtPortReachable))
	assert.True(t, shell.HasIssue(models.IssueSNMPUnreachable))
	assert.Equal(t, "22", shell.Evidence["open_ports"])

	web := candidateAt(t, cands, "10.1.0.2")
	assert.InDelta(t, confidenceWebOnly, web.VendorConfidence, 1e-9)
	assert.True(t, web.HasIssue(models.IssueWebOnly))

	bare := candidateAt(t, cands, "10.1.0.3")
	assert.InDelta(t, confidenceLiveOnly, bare.VendorConfidence, 1e-9)
}

func TestDiscoveryCapabilityIssues(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.2.0.1", &fakeDevice{identity: ciscoIdentity("acc-1"), caps: devagent.Capabilities{Bridge: true}})
	network.add("10.2.0.2", &fakeDevice{identity: &devagent.Identity{SysName: "nas", SysDescr: "Acme NAS firmware 4.2", SysObjectID: ".1.3.6.1.4.1.99999.1"}})

	f := newFixture(t, network, newFakeProber().up("10.2.0.1").up("10.2.0.2"))
	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.2.0.1", "10.2.0.2"}})
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, f.wait(t, id).State)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)

	sw := candidateAt(t, cands, "10.2.0.1")
	assert.True(t, sw.HasIssue(models.IssueLLDPUnavailable))
	assert.True(t, sw.HasIssue(models.IssueQBridgeMIBMissing))
	assert.False(t, sw.HasIssue(models.IssueBridgeMIBMissing))

	host := candidateAt(t, cands, "10.2.0.2")
	assert.True(t, host.HasIssue(models.IssueVendorUnknown))
	assert.False(t, host.HasIssue(models.IssueLLDPUnavailable), "hosts without discovery MIBs get no capability issues")
}

func TestDiscoveryInvalidSeedFailsJob(t *testing.T) {
	f := newFixture(t, newFakeNetwork(), newFakeProber())

	id, err := f.engine.StartDiscovery(context.Background(), &DiscoveryParams{Seeds: []string{"not-an-address"}})
	require.NoError(t, err)

	status := f.wait(t, id)
	assert.Equal(t, models.JobFailed, status.State)
	assert.NotEmpty(t, status.Error)
}

func TestDiscoveryRejectsEmptySeeds(t *testing.T) {
	f := newFixture(t, newFakeNetwork(), newFakeProber())

	_, err := f.engine.StartDiscovery(context.Background(), &DiscoveryParams{})
	require.ErrorIs(t, err, ErrNoSeedsProvided)
}

func TestDiscoveryScopeExcludes(t *testing.T) {
	f := newFixture(t, newFakeNetwork(), newFakeProber().up("10.3.0.1"), withConfig(func(cfg *Config) {
		cfg.Scope.Exclude = []string{"10.3.0.2/32"}
	}))

	id, err := f.engine.StartDiscovery(context.Background(), &DiscoveryParams{Seeds: []string{"10.3.0.1", "10.3.0.2", "127.0.0.1"}})
	require.NoError(t, err)

	status := f.wait(t, id)
	require.Equal(t, models.JobCompleted, status.State)
	assert.Equal(t, 1, status.Counts.Total)
	assert.Equal(t, 2, status.Counts.OutOfScope)
}

func TestDiscoveryAllOutOfScopeCompletes(t *testing.T) {
	f := newFixture(t, newFakeNetwork(), newFakeProber(), withConfig(func(cfg *Config) {
		cfg.Scope.Exclude = []string{"10.3.1.0/24"}
	}))

	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.3.1.0/30", "127.0.0.1"}})
	require.NoError(t, err)

	status := f.wait(t, id)
	require.Equal(t, models.JobCompleted, status.State, status.Error)
	assert.Equal(t, 0, status.Counts.Total)
	assert.Positive(t, status.Counts.OutOfScope)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestDiscoveryMarksExistingAndConflicts(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.4.0.1", &fakeDevice{identity: ciscoIdentity("known-1")})
	network.add("10.4.0.2", &fakeDevice{identity: ciscoIdentity("core-1")})

	f := newFixture(t, network, newFakeProber().up("10.4.0.1").up("10.4.0.2"))
	known := f.node(t, "10.4.0.1", "known-1")
	f.node(t, "10.9.9.9", "core-1")

	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.4.0.1", "10.4.0.2"}})
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, f.wait(t, id).State)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)

	existing := candidateAt(t, cands, "10.4.0.1")
	assert.Equal(t, models.CandidateExisting, existing.Status)
	assert.Equal(t, known.ID, existing.NodeID)

	conflict := candidateAt(t, cands, "10.4.0.2")
	assert.True(t, conflict.HasIssue(models.IssueNameConflict))
	assert.True(t, conflict.HasBlockingIssue())

	_, err = f.engine.ApproveCandidate(ctx, conflict.ID)
	require.ErrorIs(t, err, ErrCandidateBlocked)

	node, err := f.store.GetNode(ctx, known.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusReachable, node.Status)
	assert.Equal(t, "cisco", node.Vendor)
}

func TestDiscoveryAutoApproval(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.5.0.1", &fakeDevice{identity: ciscoIdentity("dist-1")})

	var (
		mu       sync.Mutex
		approved []string
	)

	hook := ApprovalHookFunc(func(_ context.Context, n *models.ManagedNode) {
		mu.Lock()
		approved = append(approved, n.Name)
		mu.Unlock()
	})

	f := newFixture(t, network, newFakeProber().up("10.5.0.1").up("10.5.0.2"),
		withConfig(func(cfg *Config) { cfg.AutoApproval = AutoApprovalPolicy{Enabled: true, MinConfidence: 0.8} }),
		withDeps(func(deps *Dependencies) { deps.Hooks = []ApprovalHook{hook} }))

	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.5.0.1", "10.5.0.2"}})
	require.NoError(t, err)

	status := f.wait(t, id)
	require.Equal(t, models.JobCompleted, status.State)
	assert.Equal(t, 1, status.Counts.Approved)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)

	promoted := candidateAt(t, cands, "10.5.0.1")
	assert.Equal(t, models.CandidateApproved, promoted.Status)
	require.NotZero(t, promoted.NodeID)

	assert.Equal(t, models.CandidateNew, candidateAt(t, cands, "10.5.0.2").Status)

	node, err := f.store.GetNode(ctx, promoted.NodeID)
	require.NoError(t, err)
	assert.Equal(t, "dist-1", node.Name)
	assert.Equal(t, devagent.DeviceTypeCisco, node.DeviceType)

	mu.Lock()
	assert.Equal(t, []string{"dist-1"}, approved)
	mu.Unlock()

	again, err := f.engine.ApproveCandidate(ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, promoted.NodeID, again)
}

func TestIgnoreCandidate(t *testing.T) {
	f := newFixture(t, newFakeNetwork(), newFakeProber().up("10.6.0.1"))
	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.6.0.1"}})
	require.NoError(t, err)
	require.Equal(t, models.JobCompleted, f.wait(t, id).State)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)
	require.Len(t, cands, 1)

	require.NoError(t, f.engine.IgnoreCandidate(ctx, cands[0].ID))

	stored, err := f.store.GetCandidate(ctx, cands[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.CandidateIgnored, stored.Status)

	require.ErrorIs(t, f.engine.IgnoreCandidate(ctx, 9999), ErrCandidateNotFound)
}

func TestJobQueueFull(t *testing.T) {
	prober := newFakeProber().up("10.7.0.1")
	prober.gate = make(chan struct{})

	f := newFixture(t, newFakeNetwork(), prober, withConfig(func(cfg *Config) { cfg.MaxActiveJobs = 1 }))
	ctx := context.Background()

	first, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.7.0.1"}})
	require.NoError(t, err)

	_, err = f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.7.0.2"}})
	require.ErrorIs(t, err, ErrJobQueueFull)

	close(prober.gate)
	assert.Equal(t, models.JobCompleted, f.wait(t, first).State)

	_, err = f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.7.0.2"}})
	require.NoError(t, err)
}

func TestCancelJobDiscardsResults(t *testing.T) {
	prober := newFakeProber().up("10.8.0.1")
	prober.gate = make(chan struct{})

	f := newFixture(t, newFakeNetwork(), prober)
	ctx := context.Background()

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.8.0.1"}})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, err := f.engine.GetJobStatus(ctx, id)
		return err == nil && st.State == models.JobRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, f.engine.CancelJob(ctx, id))
	close(prober.gate)

	status := f.wait(t, id)
	assert.Equal(t, models.JobCanceled, status.State)

	// a second cancel is a no-op
	require.NoError(t, f.engine.CancelJob(ctx, id))

	time.Sleep(50 * time.Millisecond)

	cands, err := f.engine.ListCandidates(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, cands)

	_, err = f.engine.GetJobStatus(ctx, "missing")
	require.ErrorIs(t, err, ErrJobNotFound)
}

func TestLeasedTargetFailsJob(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	other, err := lease.NewManager(store, "other-mapper", time.Minute)
	require.NoError(t, err)

	_, err = other.Acquire(ctx, "discovery:10.9.0.1")
	require.NoError(t, err)

	mine, err := lease.NewManager(store, "this-mapper", time.Minute)
	require.NoError(t, err)

	f := newFixture(t, newFakeNetwork(), newFakeProber().up("10.9.0.1"),
		withDeps(func(deps *Dependencies) { deps.Leases = mine }))

	id, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.9.0.1"}})
	require.NoError(t, err)

	status := f.wait(t, id)
	assert.Equal(t, models.JobFailed, status.State)
	assert.Contains(t, status.Error, ErrTargetLeased.Error())
}

func TestConcurrentJobsOnSameTargetAreExclusive(t *testing.T) {
	prober := newFakeProber().up("10.9.0.1")
	prober.gate = make(chan struct{})

	f := newFixture(t, newFakeNetwork(), prober, withConfig(func(cfg *Config) { cfg.MaxActiveJobs = 2 }))
	ctx := context.Background()

	first, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.9.0.1"}})
	require.NoError(t, err)

	// targets are counted only once the lease is held
	require.Eventually(t, func() bool {
		st, err := f.engine.GetJobStatus(ctx, first)
		return err == nil && st.Counts.Total == 1
	}, 5*time.Second, 10*time.Millisecond)

	second, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.9.0.1"}})
	require.NoError(t, err)

	blocked := f.wait(t, second)
	assert.Equal(t, models.JobFailed, blocked.State)
	assert.Contains(t, blocked.Error, ErrTargetLeased.Error())

	close(prober.gate)
	assert.Equal(t, models.JobCompleted, f.wait(t, first).State)

	// released on completion
	third, err := f.engine.StartDiscovery(ctx, &DiscoveryParams{Seeds: []string{"10.9.0.1"}})
	require.NoError(t, err)
	assert.Equal(t, models.JobCompleted, f.wait(t, third).State)
}

func TestRefreshNodeUnreachableKeepsLinks(t *testing.T) {
	ctrl := gomock.NewController(t)
	prober := scan.NewMockProber(ctrl)

	network := newFakeNetwork()
	network.add("10.10.0.1", &fakeDevice{neighbors: []devagent.Neighbor{lldp("eth1", "eth2", "sw-b", "10.10.0.2")}})

	f := newFixture(t, network, prober)
	a := f.node(t, "10.10.0.1", "sw-a")
	f.node(t, "10.10.0.2", "sw-b")

	ctx := context.Background()

	prober.EXPECT().LivenessCheck(gomock.Any(), a.Address).Return(true)

	res, err := f.engine.RefreshNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	prober.EXPECT().LivenessCheck(gomock.Any(), a.Address).Return(false)

	_, err = f.engine.RefreshNode(ctx, a.ID)
	require.ErrorIs(t, err, ErrNodeUnreachable)

	node, err := f.store.GetNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.NodeStatusUnreachable, node.Status)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, models.LinkActive, links[0].Status)

	_, err = f.engine.RefreshNode(ctx, 404)
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestRefreshNodeFailedCollectionKeepsLinks(t *testing.T) {
	network := newFakeNetwork()
	dev := &fakeDevice{neighbors: []devagent.Neighbor{lldp("eth1", "eth2", "sw-b", "10.11.0.2")}}
	network.add("10.11.0.1", dev)

	f := newFixture(t, network, newFakeProber().up("10.11.0.1"))
	a := f.node(t, "10.11.0.1", "sw-a")
	f.node(t, "10.11.0.2", "sw-b")

	ctx := context.Background()

	_, err := f.engine.RefreshNode(ctx, a.ID)
	require.NoError(t, err)

	network.mu.Lock()
	dev.neighborErr = errTimeout
	network.mu.Unlock()

	_, err = f.engine.RefreshNode(ctx, a.ID)
	require.Error(t, err)

	links, err := f.store.ListLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.True(t, links[0].Status.Live())
}

func TestRefreshNodeInfersForwardingAdjacency(t *testing.T) {
	network := newFakeNetwork()
	network.add("10.12.0.1", &fakeDevice{
		ifAddrs: []devagent.InterfaceAddress{{Interface: "vlan10", Prefix: netip.MustParsePrefix("10.12.10.1/24")}},
		macs: []devagent.MacEntry{
			{MAC: "00:11:22:33:44:55", VLAN: 10, Interface: "ge-0/0/5", EntryType: devagent.MacLearned},
			{MAC: "00:11:22:33:44:66", VLAN: 10, Interface: "ge-0/0/6", EntryType: devagent.MacLearned},
		},
		arps: []devagent.ArpEntry{
			{IP: netip.MustParseAddr("10.12.0.3"), MAC: "00:11:22:33:44:55"},
			{IP: netip.MustParseAddr("10.12.0.50"), MAC: "00:11:22:33:44:66"},
		},
	})

	f := newFixture(t, network, newFakeProber().up("10.12.0.1"))
	a := f.node(t, "10.12.0.1", "sw-a")
	c := f.node(t, "10.12.0.3", "ap-c")

	ctx := context.Background()

	res, err := f.engine.RefreshNode(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)

	links, err := f.store.ListLinksForNode(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, []models.Protocol{models.ProtocolFDBARP}, links[0].Protocols)

	_, localIf, _ := links[0].Key.Other(c.ID)
	assert.Empty(t, localIf)

	addrs, err := f.store.ListNodeAddresses(ctx)
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "vlan10", addrs[0].Interface)
}

func TestJobLogTruncation(t *testing.T) {
	j := newJob(context.Background(), "j", models.JobDiscovery, "t", 2, nil)

	for i := 0; i < 5; i++ {
		j.logf(logLevelInfo, "entry %d", i)
	}

	st := j.status()
	require.Len(t, st.Log, 3)
	assert.True(t, st.Truncated)
	assert.Equal(t, truncationMarker, st.Log[2].Message)
}

func TestAutoApprovalPolicy(t *testing.T) {
	policy := AutoApprovalPolicy{Enabled: true, MinConfidence: 0.8, RequireReachable: true}

	tests := []struct {
		name string
		cand models.Candidate
		want bool
	}{
		{"eligible", models.Candidate{Status: models.CandidateNew, VendorConfidence: 0.9, Reachable: true}, true},
		{"low confidence", models.Candidate{Status: models.CandidateNew, VendorConfidence: 0.2, Reachable: true}, false},
		{"unreachable", models.Candidate{Status: models.CandidateNew, VendorConfidence: 0.9}, false},
		{"already existing", models.Candidate{Status: models.CandidateExisting, VendorConfidence: 0.9, Reachable: true}, false},
		{"blocked", models.Candidate{
			Status: models.CandidateNew, VendorConfidence: 0.9, Reachable: true,
			Issues: []models.Issue{{Code: models.IssueNameConflict, Severity: models.SeverityBlocked}},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.Allows(&tt.cand))
		})
	}

	assert.False(t, AutoApprovalPolicy{}.Allows(&tests[0].cand))
}

func TestConfigDurations(t *testing.T) {
	var cfg Config

	require.NoError(t, json.Unmarshal([]byte(`{
		"timeout": "5s",
		"crawl_dispatch_delay": "250ms",
		"refresh_interval": "10m",
		"crawl_max_depth": 2,
		"auto_approval": {"enabled": true, "min_confidence": 0.9}
	}`), &cfg))

	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.CrawlDispatchDelay)
	assert.Equal(t, 10*time.Minute, cfg.RefreshInterval)
	assert.Equal(t, 2, cfg.CrawlMaxDepth)
	assert.True(t, cfg.AutoApproval.Enabled)

	out, err := json.Marshal(&cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"refresh_interval":"10m0s"`)

	require.Error(t, json.Unmarshal([]byte(`{"timeout":"soon"}`), &cfg))
}

func TestNewDiscoveryEngineValidation(t *testing.T) {
	_, err := NewDiscoveryEngine(nil, Dependencies{})
	require.ErrorIs(t, err, ErrConfigNil)

	_, err = NewDiscoveryEngine(&Config{}, Dependencies{})
	require.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewDiscoveryEngine(&Config{AutoApproval: AutoApprovalPolicy{MinConfidence: 2}}, Dependencies{})
	require.ErrorIs(t, err, ErrInvalidConfidence)
}
