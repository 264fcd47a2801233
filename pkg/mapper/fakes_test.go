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
	"errors"
	"net/netip"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scan"
	"github.com/carverauto/serviceradar-mapper/pkg/topology"
)

var errTimeout = errors.New("request timeout")

const ciscoDescr = "Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(4)E7, RELEASE SOFTWARE (fc2)"

// fakeDevice is what one address answers over SNMP.
type fakeDevice struct {
	identity    *devagent.Identity
	caps        devagent.Capabilities
	neighbors   []devagent.Neighbor
	neighborErr error
	macs        []devagent.MacEntry
	arps        []devagent.ArpEntry
	ifAddrs     []devagent.InterfaceAddress
}

// fakeNetwork is a devagent.Agent answering from a table of devices.
type fakeNetwork struct {
	mu      sync.Mutex
	devices map[netip.Addr]*fakeDevice
	// neighborCreds is the profile of the last neighbor read per address.
	neighborCreds map[netip.Addr]devagent.Credentials
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		devices:       make(map[netip.Addr]*fakeDevice),
		neighborCreds: make(map[netip.Addr]devagent.Credentials),
	}
}

func (n *fakeNetwork) credsUsed(addr string) devagent.Credentials {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.neighborCreds[netip.MustParseAddr(addr)]
}

func (n *fakeNetwork) add(addr string, d *fakeDevice) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.devices[netip.MustParseAddr(addr)] = d
}

func (n *fakeNetwork) device(addr netip.Addr) (*fakeDevice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	d, ok := n.devices[addr]

	return d, ok
}

func (n *fakeNetwork) Probe(_ context.Context, addr netip.Addr, _ devagent.Credentials) (*devagent.Identity, error) {
	d, ok := n.device(addr)
	if !ok || d.identity == nil {
		return nil, errTimeout
	}

	id := *d.identity

	return &id, nil
}

func (n *fakeNetwork) Capabilities(_ context.Context, t devagent.Target) (devagent.Capabilities, error) {
	d, ok := n.device(t.Address)
	if !ok {
		return devagent.Capabilities{}, errTimeout
	}

	return d.caps, nil
}

func (n *fakeNetwork) GetNeighbors(_ context.Context, t devagent.Target) ([]devagent.Neighbor, error) {
	n.mu.Lock()
	n.neighborCreds[t.Address] = t.Credentials
	n.mu.Unlock()

	d, ok := n.device(t.Address)
	if !ok {
		return nil, errTimeout
	}

	if d.neighborErr != nil {
		return nil, d.neighborErr
	}

	return slices.Clone(d.neighbors), nil
}

func (n *fakeNetwork) GetLearnedMacTable(_ context.Context, t devagent.Target) ([]devagent.MacEntry, error) {
	d, ok := n.device(t.Address)
	if !ok {
		return nil, errTimeout
	}

	return slices.Clone(d.macs), nil
}

func (n *fakeNetwork) GetAddressResolutionTable(_ context.Context, t devagent.Target, _ string) ([]devagent.ArpEntry, error) {
	d, ok := n.device(t.Address)
	if !ok {
		return nil, errTimeout
	}

	return slices.Clone(d.arps), nil
}

func (*fakeNetwork) GetRouteTo(context.Context, devagent.Target, netip.Addr, string) (*devagent.Route, error) {
	return nil, devagent.ErrNoRoute
}

func (n *fakeNetwork) GetInterfaceAddresses(_ context.Context, t devagent.Target) ([]devagent.InterfaceAddress, error) {
	d, ok := n.device(t.Address)
	if !ok {
		return nil, errTimeout
	}

	return slices.Clone(d.ifAddrs), nil
}

// fakeProber answers liveness from a set; a non-nil gate holds every
// liveness check until it is closed.
type fakeProber struct {
	alive map[netip.Addr]bool
	ports map[netip.Addr][]int
	gate  chan struct{}
}

func newFakeProber() *fakeProber {
	return &fakeProber{alive: make(map[netip.Addr]bool), ports: make(map[netip.Addr][]int)}
}

func (p *fakeProber) up(addr string, ports ...int) *fakeProber {
	a := netip.MustParseAddr(addr)
	p.alive[a] = true
	p.ports[a] = ports

	return p
}

func (p *fakeProber) LivenessCheck(ctx context.Context, addr netip.Addr) bool {
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return false
		}
	}

	return p.alive[addr]
}

func (p *fakeProber) PortOpen(_ context.Context, addr netip.Addr, port int) bool {
	return slices.Contains(p.ports[addr], port)
}

func depth(n int) *int { return &n }

type fakeResolver map[string][]string

func (r fakeResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if addrs, ok := r[host]; ok {
		return addrs, nil
	}

	return nil, errTimeout
}

type fixture struct {
	engine *DiscoveryEngine
	store  *db.MemoryStore
	net    *fakeNetwork
}

type fixtureOption func(cfg *Config, deps *Dependencies)

func withConfig(fn func(cfg *Config)) fixtureOption {
	return func(cfg *Config, _ *Dependencies) { fn(cfg) }
}

func withDeps(fn func(deps *Dependencies)) fixtureOption {
	return func(_ *Config, deps *Dependencies) { fn(deps) }
}

func newFixture(t *testing.T, network *fakeNetwork, prober scan.Prober, opts ...fixtureOption) *fixture {
	t.Helper()

	log := logger.NewTestLogger()
	store := db.NewMemoryStore()

	registry := devagent.NewRegistry(devagent.NewDialer(devagent.ClientConfig{Timeout: time.Second}), log)
	for _, dt := range []string{
		devagent.DeviceTypeGeneric, devagent.DeviceTypeCisco, devagent.DeviceTypeNXOS,
		devagent.DeviceTypeJuniper, devagent.DeviceTypeArista, devagent.DeviceTypeUbiquiti,
	} {
		registry.Register(dt, network)
	}

	cfg := &Config{
		Credentials: []devagent.Credentials{{Name: "primary", Version: devagent.SNMPVersion2c, Community: "public"}},
	}

	deps := Dependencies{
		Store:      store,
		Agents:     registry,
		Prober:     prober,
		Reconciler: topology.NewReconciler(store, nil, log),
		Resolver:   fakeResolver{},
		Logger:     log,
	}

	for _, opt := range opts {
		opt(cfg, &deps)
	}

	engine, err := NewDiscoveryEngine(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_ = engine.Stop(ctx)
	})

	return &fixture{engine: engine, store: store, net: network}
}

func (f *fixture) node(t *testing.T, addr, name string) *models.ManagedNode {
	t.Helper()

	n := &models.ManagedNode{Address: netip.MustParseAddr(addr), Name: name, DeviceType: devagent.DeviceTypeGeneric}

	id, err := f.store.CreateNode(context.Background(), n)
	require.NoError(t, err)

	n.ID = id

	return n
}

func (f *fixture) wait(t *testing.T, jobID string) *models.JobStatus {
	t.Helper()

	var status *models.JobStatus

	require.Eventually(t, func() bool {
		st, err := f.engine.GetJobStatus(context.Background(), jobID)
		if err != nil {
			return false
		}

		status = st

		return st.State.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	return status
}

func ciscoIdentity(name string) *devagent.Identity {
	return &devagent.Identity{SysName: name, SysDescr: ciscoDescr, SysObjectID: ".1.3.6.1.4.1.9.1.1208"}
}

func lldp(local, remote, name, addr string) devagent.Neighbor {
	return devagent.Neighbor{
		LocalInterface:  local,
		RemoteInterface: remote,
		NeighborName:    name,
		NeighborAddress: addr,
		Protocol:        models.ProtocolLLDP,
	}
}
