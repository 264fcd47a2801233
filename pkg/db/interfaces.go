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

// Package db persists managed nodes, discovery candidates and topology links.
package db

import (
	"context"
	"net/netip"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

// NodeStore owns managed_nodes and node_addresses.
type NodeStore interface {
	GetNode(ctx context.Context, id models.NodeID) (*models.ManagedNode, error)
	ListNodes(ctx context.Context) ([]*models.ManagedNode, error)
	// FindNodesByAddress matches the management address and any
	// interface address of a node.
	FindNodesByAddress(ctx context.Context, addr netip.Addr) ([]*models.ManagedNode, error)
	CreateNode(ctx context.Context, node *models.ManagedNode) (models.NodeID, error)
	UpdateNode(ctx context.Context, node *models.ManagedNode) error
	ReplaceNodeAddresses(ctx context.Context, id models.NodeID, addrs []models.NodeAddress) error
	ListNodeAddresses(ctx context.Context) ([]models.NodeAddress, error)
}

// CandidateStore owns discovery_candidates.
type CandidateStore interface {
	// UpsertCandidate inserts by (job, address) or merges into the existing
	// row, returning the stored result.
	UpsertCandidate(ctx context.Context, c *models.Candidate) (*models.Candidate, error)
	GetCandidate(ctx context.Context, id models.CandidateID) (*models.Candidate, error)
	ListCandidates(ctx context.Context, jobID string) ([]*models.Candidate, error)
	SetCandidateStatus(ctx context.Context, id models.CandidateID, status models.CandidateStatus, node models.NodeID) error
	DeleteCandidatesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// LinkStore owns topology_links and topology_link_changes.
type LinkStore interface {
	GetLink(ctx context.Context, key models.LinkKey) (*models.Link, error)
	ListLinks(ctx context.Context) ([]*models.Link, error)
	ListLinksForNode(ctx context.Context, node models.NodeID) ([]*models.Link, error)
	// InsertLink returns ErrLinkExists when the normalized key is taken.
	InsertLink(ctx context.Context, link *models.Link) (models.LinkID, error)
	UpdateLink(ctx context.Context, link *models.Link) error
	AppendLinkChange(ctx context.Context, change models.LinkChange) error
	ListLinkChanges(ctx context.Context, id models.LinkID) ([]models.LinkChange, error)
}

// Store is the full persistence surface of the mapper.
type Store interface {
	NodeStore
	CandidateStore
	LinkStore
	Close()
}
