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

package scan

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
)

// TCPProber probes with plain TCP connects.
type TCPProber struct {
	timeout time.Duration
	ports   []int
	logger  logger.Logger
}

var _ Prober = (*TCPProber)(nil)

func NewTCPProber(timeout time.Duration, log logger.Logger) *TCPProber {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	return &TCPProber{timeout: timeout, ports: LivenessPorts, logger: log}
}

// LivenessCheck treats an accepted or actively refused connection on any of
// the liveness ports as proof the host is up.
func (p *TCPProber) LivenessCheck(ctx context.Context, addr netip.Addr) bool {
	for _, port := range p.ports {
		open, refused := p.dial(ctx, addr, port)
		if open || refused {
			return true
		}

		if ctx.Err() != nil {
			return false
		}
	}

	return false
}

func (p *TCPProber) PortOpen(ctx context.Context, addr netip.Addr, port int) bool {
	open, _ := p.dial(ctx, addr, port)

	return open
}

func (p *TCPProber) dial(ctx context.Context, addr netip.Addr, port int) (open, refused bool) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var dialer net.Dialer

	conn, err := dialer.DialContext(probeCtx, "tcp", net.JoinHostPort(addr.String(), strconv.Itoa(port)))
	if err != nil {
		return false, errors.Is(err, syscall.ECONNREFUSED)
	}

	if err := conn.Close(); err != nil {
		p.logger.Debug().Err(err).Str("target", addr.String()).Msg("failed to close probe connection")
	}

	return true, false
}
