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

// Package topology reconciles adjacency evidence into the stored link set.
// The Reconciler is the only writer of topology_links.
package topology

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// DegradedThreshold is the confidence below which links are stored degraded.
const DegradedThreshold = 0.5

// Publisher receives one event per link status transition.
type Publisher interface {
	PublishLinkUpdate(ctx context.Context, event models.TopologyChangeEvent) error
}

// Store is the persistence the reconciler needs.
type Store interface {
	db.LinkStore
	ListNodes(ctx context.Context) ([]*models.ManagedNode, error)
	ListNodeAddresses(ctx context.Context) ([]models.NodeAddress, error)
}

// Result counts what one reconciliation pass did.
type Result struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Skipped     int `json:"skipped"`
	Ambiguous   int `json:"ambiguous"`
	Deactivated int `json:"deactivated"`
	Reactivated int `json:"reactivated"`
}

type Reconciler struct {
	store      Store
	publisher  Publisher
	strategies []Strategy
	logger     logger.Logger
	now        func() time.Time

	// passes touching the same links must not interleave
	mu sync.Mutex
}

type Option func(*Reconciler)

func WithStrategies(strategies []Strategy) Option {
	return func(r *Reconciler) { r.strategies = strategies }
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// NewReconciler creates a reconciler. publisher may be nil.
func NewReconciler(store Store, publisher Publisher, log logger.Logger, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:      store,
		publisher:  publisher,
		strategies: DefaultStrategies(),
		logger:     log,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// pass is the working state of one Reconcile call.
type pass struct {
	node        *models.ManagedNode
	now         time.Time
	links       []*models.Link
	preexisting map[models.LinkID]struct{}
	confirmed   map[models.LinkID]struct{}
	result      Result
}

// Reconcile applies one complete evidence set collected from node. Links
// touching node that the set does not re-observe are deactivated afterwards,
// so callers must only pass the result of a successful collection.
func (r *Reconciler) Reconcile(ctx context.Context, node *models.ManagedNode, evidence []models.AdjacencyEvidence) (*Result, error) {
	if node == nil || node.ID == 0 {
		return nil, ErrNilNode
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	nodes, err := r.store.ListNodes(ctx)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}

	addrs, err := r.store.ListNodeAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("load node addresses: %w", err)
	}

	links, err := r.store.ListLinksForNode(ctx, node.ID)
	if err != nil {
		return nil, fmt.Errorf("load links: %w", err)
	}

	idx := NewNodeIndex(nodes, addrs)

	p := &pass{
		node:        node,
		now:         r.now(),
		links:       links,
		preexisting: make(map[models.LinkID]struct{}, len(links)),
		confirmed:   make(map[models.LinkID]struct{}),
	}

	for _, link := range links {
		p.preexisting[link.ID] = struct{}{}
	}

	for i := range evidence {
		ev := &evidence[i]

		if ev.LocalNodeID != 0 && ev.LocalNodeID != node.ID {
			return &p.result, fmt.Errorf("%w: %d != %d", ErrNodeMismatch, ev.LocalNodeID, node.ID)
		}

		if err := r.apply(ctx, idx, p, ev); err != nil {
			return &p.result, err
		}
	}

	if err := r.deactivateUnconfirmed(ctx, p); err != nil {
		return &p.result, err
	}

	r.logger.Info().
		Int64("node_id", int64(node.ID)).
		Int("evidence", len(evidence)).
		Int("created", p.result.Created).
		Int("updated", p.result.Updated).
		Int("skipped", p.result.Skipped).
		Int("ambiguous", p.result.Ambiguous).
		Int("deactivated", p.result.Deactivated).
		Int("reactivated", p.result.Reactivated).
		Msg("topology reconciled")

	return &p.result, nil
}

func (r *Reconciler) apply(ctx context.Context, idx *NodeIndex, p *pass, ev *models.AdjacencyEvidence) error {
	res := Resolve(idx, r.strategies, p.node.ID, ev)

	switch res.Outcome {
	case Ambiguous:
		p.result.Ambiguous++
		p.result.Skipped++
		recordEvidence(ctx, ev.Protocol, "ambiguous")

		r.logger.Warn().
			Int64("node_id", int64(p.node.ID)).
			Str("neighbor", ev.NeighborName).
			Str("strategy", res.Reason).
			Int("matches", len(res.Matches)).
			Msg("ambiguous neighbor identity, edge skipped")

		return nil
	case Unresolved:
		p.result.Skipped++
		recordEvidence(ctx, ev.Protocol, "unresolved")

		r.logger.Debug().
			Int64("node_id", int64(p.node.ID)).
			Str("neighbor", ev.NeighborName).
			Str("neighbor_address", ev.NeighborAddress).
			Msg("neighbor not a managed node, edge skipped")

		return nil
	case Resolved:
	}

	recordEvidence(ctx, ev.Protocol, res.Reason)

	confidence := res.Confidence * ev.Weight()
	key := models.NewLinkKey(p.node.ID, ev.LocalInterface, res.NodeID, ev.RemoteInterface)

	if link := p.find(key); link != nil {
		return r.confirm(ctx, p, link, fillKey(link.Key, key), ev.Protocol, confidence)
	}

	return r.insert(ctx, p, key, ev.Protocol, confidence)
}

// find returns the working link for key: an exact match, or a link between
// the same nodes where one side's interface is unknown in either row.
func (p *pass) find(key models.LinkKey) *models.Link {
	for _, link := range p.links {
		if link.Key == key {
			return link
		}
	}

	for _, link := range p.links {
		if link.Key.SamePair(key) &&
			interfaceCompatible(link.Key.AInterface, key.AInterface) &&
			interfaceCompatible(link.Key.BInterface, key.BInterface) {
			return link
		}
	}

	return nil
}

func interfaceCompatible(stored, observed string) bool {
	return stored == observed || stored == "" || observed == ""
}

func fillKey(stored, observed models.LinkKey) models.LinkKey {
	if stored.AInterface == "" {
		stored.AInterface = observed.AInterface
	}

	if stored.BInterface == "" {
		stored.BInterface = observed.BInterface
	}

	return stored
}

func statusFor(confidence float64) models.LinkStatus {
	if confidence < DegradedThreshold {
		return models.LinkDegraded
	}

	return models.LinkActive
}

func (r *Reconciler) insert(ctx context.Context, p *pass, key models.LinkKey, proto models.Protocol, confidence float64) error {
	link := &models.Link{
		Key:        key,
		Status:     statusFor(confidence),
		Protocols:  []models.Protocol{proto},
		Confidence: confidence,
		FirstSeen:  p.now,
		LastSeen:   p.now,
	}

	id, err := r.store.InsertLink(ctx, link)
	if errors.Is(err, db.ErrLinkExists) {
		// written concurrently from the other endpoint's pass
		stored, getErr := r.store.GetLink(ctx, key)
		if getErr != nil {
			return fmt.Errorf("re-read link %s: %w", key, getErr)
		}

		p.links = append(p.links, stored)

		return r.confirm(ctx, p, stored, key, proto, confidence)
	}

	if err != nil {
		return fmt.Errorf("insert link %s: %w", key, err)
	}

	link.ID = id
	p.links = append(p.links, link)
	p.confirmed[id] = struct{}{}
	p.result.Created++

	return r.transition(ctx, p, link, "", models.ChangeCreated, string(proto))
}

func (r *Reconciler) confirm(
	ctx context.Context, p *pass, link *models.Link, key models.LinkKey, proto models.Protocol, confidence float64,
) error {
	prev := link.Status
	prevKey := link.Key

	link.Key = key
	link.LastSeen = p.now
	link.AddProtocol(proto)
	link.Confidence = max(link.Confidence, confidence)
	link.Status = statusFor(link.Confidence)

	err := r.store.UpdateLink(ctx, link)
	if errors.Is(err, db.ErrLinkExists) && key != prevKey {
		// the filled-in key already names another row; keep ours as stored
		link.Key = prevKey
		err = r.store.UpdateLink(ctx, link)
	}

	if err != nil {
		return fmt.Errorf("update link %d: %w", link.ID, err)
	}

	p.confirmed[link.ID] = struct{}{}
	p.result.Updated++

	switch {
	case prev == link.Status:
		return nil
	case prev == models.LinkInactive:
		p.result.Reactivated++
		return r.transition(ctx, p, link, prev, models.ChangeReactivated, string(proto))
	default:
		return r.transition(ctx, p, link, prev, models.ChangeUpgraded, string(proto))
	}
}

func (r *Reconciler) deactivateUnconfirmed(ctx context.Context, p *pass) error {
	for _, link := range p.links {
		if _, ok := p.preexisting[link.ID]; !ok {
			continue
		}

		if _, ok := p.confirmed[link.ID]; ok || !link.Status.Live() {
			continue
		}

		prev := link.Status
		link.Status = models.LinkInactive

		if err := r.store.UpdateLink(ctx, link); err != nil {
			return fmt.Errorf("deactivate link %d: %w", link.ID, err)
		}

		p.result.Deactivated++

		if err := r.transition(ctx, p, link, prev, models.ChangeDeactivated, models.JoinProtocols(link.Protocols)); err != nil {
			return err
		}
	}

	return nil
}

// transition records the change durably and publishes it. Publish failures
// are logged; the change log is the record of truth.
func (r *Reconciler) transition(
	ctx context.Context, p *pass, link *models.Link, from models.LinkStatus, reason models.ChangeReason, protocol string,
) error {
	if err := r.store.AppendLinkChange(ctx, models.LinkChange{
		LinkID:     link.ID,
		NodeID:     p.node.ID,
		FromStatus: from,
		ToStatus:   link.Status,
		Reason:     reason,
		At:         p.now,
	}); err != nil {
		return fmt.Errorf("record change for link %d: %w", link.ID, err)
	}

	recordTransition(ctx, reason)

	peer, localIf, remoteIf := link.Key.Other(p.node.ID)

	r.logger.Debug().
		Int64("link_id", int64(link.ID)).
		Int64("node_id", int64(p.node.ID)).
		Int64("neighbor_node_id", int64(peer)).
		Str("reason", string(reason)).
		Str("status", string(link.Status)).
		Msg("link status changed")

	if r.publisher == nil {
		return nil
	}

	state := models.LinkStateActive
	if !link.Status.Live() {
		state = models.LinkStateDown
	}

	if err := r.publisher.PublishLinkUpdate(ctx, models.TopologyChangeEvent{
		EventType:       models.EventTypeLinkUpdate,
		LinkID:          link.ID,
		NodeID:          p.node.ID,
		NeighborNodeID:  peer,
		LocalInterface:  localIf,
		RemoteInterface: remoteIf,
		Protocol:        protocol,
		State:           state,
		Timestamp:       p.now,
	}); err != nil {
		r.logger.Warn().Err(err).Int64("link_id", int64(link.ID)).Msg("failed to publish link update")
	}

	return nil
}
