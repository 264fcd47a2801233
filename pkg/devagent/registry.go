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
	"sync"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// Device type tags stored on managed nodes.
const (
	DeviceTypeGeneric  = "generic"
	DeviceTypeCisco    = "cisco_ios"
	DeviceTypeNXOS     = "cisco_nxos"
	DeviceTypeJuniper  = "juniper_junos"
	DeviceTypeArista   = "arista_eos"
	DeviceTypeUbiquiti = "ubiquiti"
)

// Dialect captures how one vendor family differs on the wire.
type Dialect struct {
	DeviceType string
	// NeighborProtocols is the order in which neighbor tables are read.
	// The first protocol that yields rows wins.
	NeighborProtocols []models.Protocol
	// ScopeVRF rewrites credentials so queries land in the named VRF.
	ScopeVRF func(creds Credentials, vrf string) Credentials
}

func (d Dialect) withVRF(creds Credentials, vrf string) Credentials {
	if vrf == "" || d.ScopeVRF == nil {
		return creds
	}

	return d.ScopeVRF(creds, vrf)
}

// contextScopedVRF selects the VRF through the SNMPv3 context name.
func contextScopedVRF(creds Credentials, vrf string) Credentials {
	if creds.Version == SNMPVersion3 {
		creds.ContextName = vrf
	}

	return creds
}

// communitySuffixVRF uses community@vrf for v1/v2c and the context for v3.
func communitySuffixVRF(creds Credentials, vrf string) Credentials {
	if creds.Version == SNMPVersion3 {
		creds.ContextName = vrf
		return creds
	}

	creds.Community = creds.Community + "@" + vrf

	return creds
}

// communityPrefixVRF uses vrf@community for v1/v2c and the context for v3.
func communityPrefixVRF(creds Credentials, vrf string) Credentials {
	if creds.Version == SNMPVersion3 {
		creds.ContextName = vrf
		return creds
	}

	creds.Community = vrf + "@" + creds.Community

	return creds
}

//nolint:gochecknoglobals // built-in dialects
var (
	lldpFirst = []models.Protocol{models.ProtocolLLDP, models.ProtocolCDP}
	cdpFirst  = []models.Protocol{models.ProtocolCDP, models.ProtocolLLDP}

	builtinDialects = []Dialect{
		{DeviceType: DeviceTypeGeneric, NeighborProtocols: lldpFirst, ScopeVRF: contextScopedVRF},
		{DeviceType: DeviceTypeCisco, NeighborProtocols: cdpFirst, ScopeVRF: communitySuffixVRF},
		{DeviceType: DeviceTypeNXOS, NeighborProtocols: cdpFirst, ScopeVRF: contextScopedVRF},
		{DeviceType: DeviceTypeJuniper, NeighborProtocols: lldpFirst, ScopeVRF: communityPrefixVRF},
		{DeviceType: DeviceTypeArista, NeighborProtocols: lldpFirst, ScopeVRF: contextScopedVRF},
		{DeviceType: DeviceTypeUbiquiti, NeighborProtocols: lldpFirst},
	}
)

// Registry hands out one Agent per device type. Unknown tags get the
// generic variant.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]Agent
	fallback Agent
}

// NewRegistry builds the built-in SNMP variants around a shared dialer.
func NewRegistry(dial Dialer, log logger.Logger) *Registry {
	r := &Registry{agents: make(map[string]Agent, len(builtinDialects))}

	for _, d := range builtinDialects {
		r.agents[d.DeviceType] = NewSNMPAgent(d, dial, log)
	}

	r.fallback = r.agents[DeviceTypeGeneric]

	return r
}

// Register installs or replaces the agent for a device type.
func (r *Registry) Register(deviceType string, agent Agent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.agents[deviceType] = agent

	if deviceType == DeviceTypeGeneric {
		r.fallback = agent
	}
}

// For returns the agent for a device type tag.
func (r *Registry) For(deviceType string) Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.agents[deviceType]; ok {
		return a
	}

	return r.fallback
}

// Generic returns the agent used before a device type is known.
func (r *Registry) Generic() Agent {
	return r.For(DeviceTypeGeneric)
}
