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
	"fmt"
	"net"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/time/rate"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
)

const (
	icmpProtocolIPv4     = 1
	defaultPingsPerSec   = 500
	icmpReadBufferLength = 1500
)

//nolint:gochecknoglobals // echo payload is constant
var echoPayload = []byte("serviceradar-mapper")

type echoWaiter struct {
	addr netip.Addr
	done chan struct{}
}

// ICMPProber sends echo requests on one shared socket and matches replies by
// sequence number and source. Non-IPv4 targets and port probes go to TCP.
type ICMPProber struct {
	conn       *icmp.PacketConn
	privileged bool
	id         int
	seq        atomic.Uint32
	timeout    time.Duration
	limiter    *rate.Limiter
	tcp        *TCPProber
	logger     logger.Logger

	mu      sync.Mutex
	waiters map[uint16]echoWaiter
}

var _ Prober = (*ICMPProber)(nil)

// NewICMPProber opens an unprivileged datagram ICMP socket, or a raw one when
// that is not permitted.
func NewICMPProber(timeout time.Duration, pingsPerSecond int, tcp *TCPProber, log logger.Logger) (*ICMPProber, error) {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	if pingsPerSecond <= 0 {
		pingsPerSecond = defaultPingsPerSec
	}

	privileged := false

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		privileged = true

		conn, err = icmp.ListenPacket("ip4:icmp", "0.0.0.0")
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrICMPUnavailable, err)
		}
	}

	p := &ICMPProber{
		conn:       conn,
		privileged: privileged,
		id:         os.Getpid() & 0xffff,
		timeout:    timeout,
		limiter:    rate.NewLimiter(rate.Limit(pingsPerSecond), pingsPerSecond/10+1),
		tcp:        tcp,
		logger:     log,
		waiters:    make(map[uint16]echoWaiter),
	}

	go p.readReplies()

	return p, nil
}

func (p *ICMPProber) LivenessCheck(ctx context.Context, addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.Is4() {
		return p.tcp.LivenessCheck(ctx, addr)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return false
	}

	seq := uint16(p.seq.Add(1))
	waiter := echoWaiter{addr: addr, done: make(chan struct{})}

	p.mu.Lock()
	p.waiters[seq] = waiter
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiters, seq)
		p.mu.Unlock()
	}()

	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Body: &icmp.Echo{ID: p.id, Seq: int(seq), Data: echoPayload},
	}

	wire, err := msg.Marshal(nil)
	if err != nil {
		return false
	}

	if _, err := p.conn.WriteTo(wire, p.destination(addr)); err != nil {
		p.logger.Debug().Err(err).Str("target", addr.String()).Msg("echo send failed")
		return false
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case <-waiter.done:
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *ICMPProber) PortOpen(ctx context.Context, addr netip.Addr, port int) bool {
	return p.tcp.PortOpen(ctx, addr, port)
}

// Close releases the socket and stops the reply reader.
func (p *ICMPProber) Close() error {
	return p.conn.Close()
}

func (p *ICMPProber) destination(addr netip.Addr) net.Addr {
	if p.privileged {
		return &net.IPAddr{IP: addr.AsSlice()}
	}

	return &net.UDPAddr{IP: addr.AsSlice()}
}

func (p *ICMPProber) readReplies() {
	buf := make([]byte, icmpReadBufferLength)

	for {
		n, peer, err := p.conn.ReadFrom(buf)
		if err != nil {
			return
		}

		msg, err := icmp.ParseMessage(icmpProtocolIPv4, buf[:n])
		if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
			continue
		}

		echo, ok := msg.Body.(*icmp.Echo)
		if !ok {
			continue
		}

		// the kernel rewrites the id on datagram sockets
		if p.privileged && echo.ID != p.id {
			continue
		}

		p.deliver(uint16(echo.Seq), peerAddr(peer))
	}
}

func (p *ICMPProber) deliver(seq uint16, from netip.Addr) {
	p.mu.Lock()
	defer p.mu.Unlock()

	waiter, ok := p.waiters[seq]
	if !ok || waiter.addr != from {
		return
	}

	close(waiter.done)
	delete(p.waiters, seq)
}

func peerAddr(addr net.Addr) netip.Addr {
	var ip net.IP

	switch a := addr.(type) {
	case *net.IPAddr:
		ip = a.IP
	case *net.UDPAddr:
		ip = a.IP
	default:
		return netip.Addr{}
	}

	out, _ := netip.AddrFromSlice(ip)

	return out.Unmap()
}
