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

// Package pathtrace answers which devices traffic between two addresses
// crosses, from live route lookups, the reconciled link set and learned MACs.
package pathtrace

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const (
	DefaultMaxHops   = 32
	DefaultMaxL2Hops = 8

	tracerName = "serviceradar.mapper.pathtrace"
)

var (
	ErrUnresolvedEndpoint = errors.New("address does not belong to a managed node")
	ErrInvalidEndpoint    = errors.New("invalid trace endpoint")
)

// Store is the read-only view of the inventory a trace needs.
type Store interface {
	ListNodes(ctx context.Context) ([]*models.ManagedNode, error)
	ListNodeAddresses(ctx context.Context) ([]models.NodeAddress, error)
	ListLinks(ctx context.Context) ([]*models.Link, error)
}

// AgentSource picks the device agent for a device type.
type AgentSource interface {
	For(deviceType string) devagent.Agent
}

// CredentialSource supplies the SNMP profile to query a node with.
type CredentialSource interface {
	CredentialsFor(addr netip.Addr) devagent.Credentials
}

// Tracer implements path traces. It never writes.
type Tracer struct {
	store     Store
	agents    AgentSource
	creds     CredentialSource
	maxHops   int
	maxL2Hops int
	logger    logger.Logger
	tracer    trace.Tracer
}

type Option func(*Tracer)

func WithMaxHops(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.maxHops = n
		}
	}
}

func WithMaxL2Hops(n int) Option {
	return func(t *Tracer) {
		if n > 0 {
			t.maxL2Hops = n
		}
	}
}

// NewTracer builds a Tracer.
func NewTracer(store Store, agents AgentSource, creds CredentialSource, log logger.Logger, opts ...Option) *Tracer {
	t := &Tracer{
		store:     store,
		agents:    agents,
		creds:     creds,
		maxHops:   DefaultMaxHops,
		maxL2Hops: DefaultMaxL2Hops,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Trace returns the path from src to dst. The result is never nil; failures
// are reported through its status and message.
func (t *Tracer) Trace(ctx context.Context, src, dst string) *models.PathTraceResult {
	ctx, span := t.tracer.Start(ctx, "Trace", trace.WithAttributes(
		attribute.String("trace.source", src),
		attribute.String("trace.destination", dst),
	))
	defer span.End()

	res := t.trace(ctx, src, dst)

	span.SetAttributes(
		attribute.String("trace.status", string(res.Status)),
		attribute.Int("trace.hops", len(res.Hops)),
	)

	if res.Status == models.TraceError {
		span.SetStatus(codes.Error, res.Message)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	t.logger.Debug().
		Str("source", src).
		Str("destination", dst).
		Str("status", string(res.Status)).
		Int("hops", len(res.Hops)).
		Msg("path traced")

	return res
}

func (t *Tracer) trace(ctx context.Context, src, dst string) *models.PathTraceResult {
	res := &models.PathTraceResult{Source: src, Destination: dst, Hops: []models.Hop{}, Links: []models.LinkRef{}}

	srcAddr, err := parseEndpoint(src)
	if err != nil {
		return failed(res, err)
	}

	dstAddr, err := parseEndpoint(dst)
	if err != nil {
		return failed(res, err)
	}

	snap, err := t.load(ctx)
	if err != nil {
		return failed(res, err)
	}

	from, ok := snap.owners.owner(srcAddr)
	if !ok {
		return failed(res, fmt.Errorf("%w: source %s", ErrUnresolvedEndpoint, srcAddr))
	}

	to, ok := snap.owners.owner(dstAddr)
	if !ok {
		return failed(res, fmt.Errorf("%w: destination %s", ErrUnresolvedEndpoint, dstAddr))
	}

	w := &walk{snap: snap, from: from, to: to, dst: dstAddr}

	switch {
	case from.node.ID == to.node.ID:
		w.start(models.EvidenceGraphSearch)
		w.hops[0].EgressInterface = to.iface
	case t.routeWalk(ctx, w):
	case w.partial:
		res.Status = models.TracePartial
		res.Message = w.reason
		res.Hops, res.Links = w.hops, append(res.Links, w.links...)

		return res
	default:
		if w.reason != "" {
			t.logger.Debug().Str("destination", dst).Str("reason", w.reason).Msg("route walk abandoned, searching link graph")
		}

		w.reset()

		if !snap.graph.search(w) {
			res.Status = models.TracePartial
			res.Message = "no path between endpoints in the link set"
			res.Hops = []models.Hop{hopFor(from.node, models.EvidenceGraphSearch), hopFor(to.node, models.EvidenceGraphSearch)}

			return res
		}
	}

	res.Status = models.TraceComplete

	if !to.exact {
		if msg := t.extendL2(ctx, w); msg != "" {
			res.Message = msg
		}
	}

	res.Hops, res.Links = w.hops, append(res.Links, w.links...)

	return res
}

func parseEndpoint(s string) (netip.Addr, error) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidEndpoint, s)
	}

	return addr.Unmap(), nil
}

func failed(res *models.PathTraceResult, err error) *models.PathTraceResult {
	res.Status = models.TraceError
	res.Message = err.Error()

	return res
}

func hopFor(node *models.ManagedNode, ev models.HopEvidence) models.Hop {
	return models.Hop{
		NodeID:   node.ID,
		NodeName: node.DisplayName(),
		Address:  node.Address.String(),
		Evidence: ev,
	}
}

func (t *Tracer) target(node *models.ManagedNode) devagent.Target {
	var creds devagent.Credentials
	if t.creds != nil {
		creds = t.creds.CredentialsFor(node.Address)
	}

	return devagent.Target{NodeID: node.ID, Address: node.Address, DeviceType: node.DeviceType, Credentials: creds}
}
