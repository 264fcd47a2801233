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

//go:generate mockgen -destination=mock_prober.go -package=scan github.com/carverauto/serviceradar-mapper/pkg/scan Prober

// Package scan implements liveness and port-reachability probes and the
// bounded sweep that drives them.
package scan

import (
	"context"
	"errors"
	"net/netip"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
)

var (
	ErrICMPUnavailable = errors.New("icmp sockets unavailable")
	ErrInvalidTarget   = errors.New("invalid probe target")
)

const defaultProbeTimeout = 2 * time.Second

// Prober answers the two reachability questions discovery asks.
type Prober interface {
	// LivenessCheck reports whether addr answers at all.
	LivenessCheck(ctx context.Context, addr netip.Addr) bool

	// PortOpen reports whether a TCP connection to addr:port completes.
	PortOpen(ctx context.Context, addr netip.Addr, port int) bool
}

// Shell and web ports used by the fallback capability scan.
var (
	ShellPorts = []int{22, 23}
	WebPorts   = []int{80, 443, 8080, 8443}

	// LivenessPorts are tried when ICMP is not available.
	LivenessPorts = []int{22, 23, 80, 443}
)

// NewProber returns an ICMP-backed prober, or a TCP-connect prober if ICMP
// sockets cannot be opened on this host.
func NewProber(timeout time.Duration, pingsPerSecond int, log logger.Logger) Prober {
	tcp := NewTCPProber(timeout, log)

	icmpProber, err := NewICMPProber(timeout, pingsPerSecond, tcp, log)
	if err != nil {
		log.Warn().Err(err).Ints("ports", LivenessPorts).
			Msg("ICMP unavailable, falling back to TCP-connect liveness")

		return tcp
	}

	return icmpProber
}
