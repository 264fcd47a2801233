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

package db

import (
	"context"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

type candidateKey struct {
	job  string
	addr netip.Addr
}

// MemoryStore is an in-process Store with the same uniqueness rules as the
// SQL schema. Values are copied in and out.
type MemoryStore struct {
	mu sync.Mutex

	nextNode      models.NodeID
	nextCandidate models.CandidateID
	nextLink      models.LinkID

	nodes      map[models.NodeID]*models.ManagedNode
	addresses  map[models.NodeID][]models.NodeAddress
	candidates map[models.CandidateID]*models.Candidate
	byJobAddr  map[candidateKey]models.CandidateID
	links      map[models.LinkID]*models.Link
	byKey      map[models.LinkKey]models.LinkID
	changes    []models.LinkChange
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:      make(map[models.NodeID]*models.ManagedNode),
		addresses:  make(map[models.NodeID][]models.NodeAddress),
		candidates: make(map[models.CandidateID]*models.Candidate),
		byJobAddr:  make(map[candidateKey]models.CandidateID),
		links:      make(map[models.LinkID]*models.Link),
		byKey:      make(map[models.LinkKey]models.LinkID),
	}
}

func (*MemoryStore) Close() {}

func copyNode(n *models.ManagedNode) *models.ManagedNode {
	c := *n
	return &c
}

func copyCandidate(c *models.Candidate) *models.Candidate {
	out := *c
	out.Issues = slices.Clone(c.Issues)
	out.Evidence = maps.Clone(c.Evidence)

	return &out
}

func copyLink(l *models.Link) *models.Link {
	out := *l
	out.Protocols = slices.Clone(l.Protocols)

	return &out
}

func (m *MemoryStore) GetNode(_ context.Context, id models.NodeID) (*models.ManagedNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	return copyNode(n), nil
}

func (m *MemoryStore) ListNodes(_ context.Context) ([]*models.ManagedNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.ManagedNode, 0, len(m.nodes))
	for _, n := range m.nodes {
		out = append(out, copyNode(n))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemoryStore) FindNodesByAddress(_ context.Context, addr netip.Addr) ([]*models.ManagedNode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addr = addr.Unmap()

	var out []*models.ManagedNode

	for id, n := range m.nodes {
		match := n.Address == addr

		for _, a := range m.addresses[id] {
			if a.Prefix.Addr() == addr {
				match = true
			}
		}

		if match {
			out = append(out, copyNode(n))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (m *MemoryStore) CreateNode(_ context.Context, node *models.ManagedNode) (models.NodeID, error) {
	if !node.Address.IsValid() {
		return 0, ErrInvalidAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range m.nodes {
		if n.Address == node.Address {
			return 0, fmt.Errorf("%w: %s", ErrNodeExists, node.Address)
		}
	}

	m.nextNode++

	node.ID = m.nextNode
	if node.CreatedAt.IsZero() {
		node.CreatedAt = time.Now().UTC()
	}

	node.Role = orRole(node.Role)
	node.Status = orStatus(node.Status)
	m.nodes[node.ID] = copyNode(node)

	return node.ID, nil
}

func (m *MemoryStore) UpdateNode(_ context.Context, node *models.ManagedNode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.nodes[node.ID]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, node.ID)
	}

	updated := copyNode(node)
	updated.Address = existing.Address
	updated.CreatedAt = existing.CreatedAt
	m.nodes[node.ID] = updated

	return nil
}

func (m *MemoryStore) ReplaceNodeAddresses(_ context.Context, id models.NodeID, addrs []models.NodeAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := make([]models.NodeAddress, 0, len(addrs))

	for _, a := range addrs {
		if !a.Prefix.IsValid() {
			continue
		}

		a.NodeID = id
		kept = append(kept, a)
	}

	m.addresses[id] = kept

	return nil
}

func (m *MemoryStore) ListNodeAddresses(_ context.Context) ([]models.NodeAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.NodeAddress
	for _, addrs := range m.addresses {
		out = append(out, addrs...)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].NodeID != out[j].NodeID {
			return out[i].NodeID < out[j].NodeID
		}

		if out[i].Interface != out[j].Interface {
			return out[i].Interface < out[j].Interface
		}

		return out[i].Prefix.Addr().Less(out[j].Prefix.Addr())
	})

	return out, nil
}

func (m *MemoryStore) UpsertCandidate(_ context.Context, obs *models.Candidate) (*models.Candidate, error) {
	if !obs.Address.IsValid() {
		return nil, ErrInvalidAddress
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := candidateKey{job: obs.JobID, addr: obs.Address}

	if id, ok := m.byJobAddr[key]; ok {
		existing := m.candidates[id]
		existing.Merge(obs)

		return copyCandidate(existing), nil
	}

	c := copyCandidate(obs)

	now := time.Now().UTC()
	if c.FirstSeen.IsZero() {
		c.FirstSeen = now
	}

	if c.LastSeen.IsZero() {
		c.LastSeen = c.FirstSeen
	}

	if c.Status == "" {
		c.Status = models.CandidateNew
	}

	m.nextCandidate++
	c.ID = m.nextCandidate
	m.candidates[c.ID] = c
	m.byJobAddr[key] = c.ID

	return copyCandidate(c), nil
}

func (m *MemoryStore) GetCandidate(_ context.Context, id models.CandidateID) (*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}

	return copyCandidate(c), nil
}

func (m *MemoryStore) ListCandidates(_ context.Context, jobID string) ([]*models.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.Candidate

	for _, c := range m.candidates {
		if c.JobID == jobID {
			out = append(out, copyCandidate(c))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Address.Less(out[j].Address) })

	return out, nil
}

func (m *MemoryStore) SetCandidateStatus(_ context.Context, id models.CandidateID, status models.CandidateStatus, node models.NodeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.candidates[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}

	c.Status = status
	if node != 0 {
		c.NodeID = node
	}

	return nil
}

func (m *MemoryStore) DeleteCandidatesBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64

	for id, c := range m.candidates {
		if c.LastSeen.Before(cutoff) && c.Status != models.CandidateApproved {
			delete(m.candidates, id)
			delete(m.byJobAddr, candidateKey{job: c.JobID, addr: c.Address})
			n++
		}
	}

	return n, nil
}

func (m *MemoryStore) GetLink(_ context.Context, key models.LinkKey) (*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, key)
	}

	return copyLink(m.links[id]), nil
}

func (m *MemoryStore) sortedLinks(keep func(*models.Link) bool) []*models.Link {
	var out []*models.Link

	for _, l := range m.links {
		if keep(l) {
			out = append(out, copyLink(l))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].FirstSeen.Equal(out[j].FirstSeen) {
			return out[i].FirstSeen.Before(out[j].FirstSeen)
		}

		return out[i].ID < out[j].ID
	})

	return out
}

func (m *MemoryStore) ListLinks(_ context.Context) ([]*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedLinks(func(*models.Link) bool { return true }), nil
}

func (m *MemoryStore) ListLinksForNode(_ context.Context, node models.NodeID) ([]*models.Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedLinks(func(l *models.Link) bool { return l.Key.Touches(node) }), nil
}

func (m *MemoryStore) InsertLink(_ context.Context, link *models.Link) (models.LinkID, error) {
	if link.Key.ANode == 0 || link.Key.BNode == 0 {
		return 0, ErrInvalidLinkKey
	}

	key := models.NewLinkKey(link.Key.ANode, link.Key.AInterface, link.Key.BNode, link.Key.BInterface)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byKey[key]; ok {
		return 0, fmt.Errorf("%w: %s", ErrLinkExists, key)
	}

	m.nextLink++

	link.ID = m.nextLink
	link.Key = key

	m.links[link.ID] = copyLink(link)
	m.byKey[key] = link.ID

	return link.ID, nil
}

func (m *MemoryStore) UpdateLink(_ context.Context, link *models.Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.links[link.ID]
	if !ok {
		return fmt.Errorf("%w: id %d", ErrLinkNotFound, link.ID)
	}

	key := models.NewLinkKey(link.Key.ANode, link.Key.AInterface, link.Key.BNode, link.Key.BInterface)

	if key != existing.Key {
		if other, taken := m.byKey[key]; taken && other != link.ID {
			return fmt.Errorf("%w: %s", ErrLinkExists, key)
		}

		delete(m.byKey, existing.Key)
		m.byKey[key] = link.ID
	}

	updated := copyLink(link)
	updated.Key = key
	updated.FirstSeen = existing.FirstSeen
	m.links[link.ID] = updated

	return nil
}

func (m *MemoryStore) AppendLinkChange(_ context.Context, change models.LinkChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.changes = append(m.changes, change)

	return nil
}

func (m *MemoryStore) ListLinkChanges(_ context.Context, id models.LinkID) ([]models.LinkChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.LinkChange

	for _, c := range m.changes {
		if c.LinkID == id {
			out = append(out, c)
		}
	}

	return out, nil
}
