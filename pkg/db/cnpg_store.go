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
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const (
	pgUniqueViolation = "23505"

	// attempts at the insert-or-merge loop before giving up on a racing writer
	maxUpsertAttempts = 3
)

// CNPGStore implements Store on PostgreSQL.
type CNPGStore struct {
	pool   *pgxpool.Pool
	logger logger.Logger
}

var _ Store = (*CNPGStore)(nil)

func NewCNPGStore(pool *pgxpool.Pool, log logger.Logger) *CNPGStore {
	return &CNPGStore{pool: pool, logger: log}
}

func (s *CNPGStore) Close() {
	s.pool.Close()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func parseAddr(s string) netip.Addr {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}
	}

	return addr
}

// Nodes

const nodeColumns = `id, host(address), name, hostname, vendor, model, os_version,
	device_type, role, status, last_seen, created_at`

func scanNode(row pgx.Row) (*models.ManagedNode, error) {
	var (
		n        models.ManagedNode
		id       int64
		addr     string
		role     string
		status   string
		lastSeen *time.Time
	)

	if err := row.Scan(&id, &addr, &n.Name, &n.Hostname, &n.Vendor, &n.Model, &n.OSVersion,
		&n.DeviceType, &role, &status, &lastSeen, &n.CreatedAt); err != nil {
		return nil, err
	}

	n.ID = models.NodeID(id)
	n.Address = parseAddr(addr)
	n.Role = models.NodeRole(role)
	n.Status = models.NodeStatus(status)

	if lastSeen != nil {
		n.LastSeen = *lastSeen
	}

	return &n, nil
}

func collectNodes(rows pgx.Rows) ([]*models.ManagedNode, error) {
	defer rows.Close()

	var out []*models.ManagedNode

	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: node: %w", ErrDatabaseError, err)
		}

		out = append(out, n)
	}

	return out, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}

	return &t
}

func (s *CNPGStore) GetNode(ctx context.Context, id models.NodeID) (*models.ManagedNode, error) {
	n, err := scanNode(s.pool.QueryRow(ctx, `SELECT `+nodeColumns+` FROM managed_nodes WHERE id = $1`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNodeNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: get node: %w", ErrDatabaseError, err)
	}

	return n, nil
}

func (s *CNPGStore) ListNodes(ctx context.Context) ([]*models.ManagedNode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+nodeColumns+` FROM managed_nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list nodes: %w", ErrDatabaseError, err)
	}

	return collectNodes(rows)
}

func (s *CNPGStore) FindNodesByAddress(ctx context.Context, addr netip.Addr) ([]*models.ManagedNode, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+nodeColumns+` FROM managed_nodes
		WHERE address = $1::inet
		   OR id IN (SELECT node_id FROM node_addresses WHERE host = $1::inet)
		ORDER BY id`, addr.String())
	if err != nil {
		return nil, fmt.Errorf("%w: find nodes by address: %w", ErrDatabaseError, err)
	}

	return collectNodes(rows)
}

func (s *CNPGStore) CreateNode(ctx context.Context, node *models.ManagedNode) (models.NodeID, error) {
	if !node.Address.IsValid() {
		return 0, ErrInvalidAddress
	}

	createdAt := node.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id int64

	err := s.pool.QueryRow(ctx, `INSERT INTO managed_nodes
		(address, name, hostname, vendor, model, os_version, device_type, role, status, last_seen, created_at)
		VALUES ($1::inet, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		node.Address.String(), node.Name, node.Hostname, node.Vendor, node.Model, node.OSVersion,
		node.DeviceType, string(orRole(node.Role)), string(orStatus(node.Status)),
		nullableTime(node.LastSeen), createdAt,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrNodeExists, node.Address)
	}

	if err != nil {
		return 0, fmt.Errorf("%w: create node: %w", ErrDatabaseError, err)
	}

	node.ID = models.NodeID(id)
	node.CreatedAt = createdAt

	return node.ID, nil
}

func (s *CNPGStore) UpdateNode(ctx context.Context, node *models.ManagedNode) error {
	tag, err := s.pool.Exec(ctx, `UPDATE managed_nodes SET
		name = $2, hostname = $3, vendor = $4, model = $5, os_version = $6,
		device_type = $7, role = $8, status = $9, last_seen = $10
		WHERE id = $1`,
		int64(node.ID), node.Name, node.Hostname, node.Vendor, node.Model, node.OSVersion,
		node.DeviceType, string(orRole(node.Role)), string(orStatus(node.Status)), nullableTime(node.LastSeen),
	)
	if err != nil {
		return fmt.Errorf("%w: update node: %w", ErrDatabaseError, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrNodeNotFound, node.ID)
	}

	return nil
}

func (s *CNPGStore) ReplaceNodeAddresses(ctx context.Context, id models.NodeID, addrs []models.NodeAddress) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrDatabaseError, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM node_addresses WHERE node_id = $1`, int64(id)); err != nil {
		return fmt.Errorf("%w: clear node addresses: %w", ErrDatabaseError, err)
	}

	batch := &pgx.Batch{}

	for _, a := range addrs {
		if !a.Prefix.IsValid() {
			continue
		}

		batch.Queue(`INSERT INTO node_addresses (node_id, interface, prefix, host, vrf)
			VALUES ($1, $2, $3::cidr, $4::inet, $5)
			ON CONFLICT (node_id, interface, host) DO UPDATE SET prefix = EXCLUDED.prefix, vrf = EXCLUDED.vrf`,
			int64(id), a.Interface, a.Prefix.Masked().String(), a.Prefix.Addr().String(), a.VRF)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("%w: insert node addresses: %w", ErrDatabaseError, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit node addresses: %w", ErrDatabaseError, err)
	}

	return nil
}

func (s *CNPGStore) ListNodeAddresses(ctx context.Context) ([]models.NodeAddress, error) {
	rows, err := s.pool.Query(ctx, `SELECT node_id, interface, host(host), masklen(prefix), vrf
		FROM node_addresses ORDER BY node_id, interface, host`)
	if err != nil {
		return nil, fmt.Errorf("%w: list node addresses: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.NodeAddress

	for rows.Next() {
		var (
			id   int64
			a    models.NodeAddress
			host string
			bits int
		)

		if err := rows.Scan(&id, &a.Interface, &host, &bits, &a.VRF); err != nil {
			return nil, fmt.Errorf("%w: scan node address: %w", ErrDatabaseError, err)
		}

		a.NodeID = models.NodeID(id)
		a.Prefix = netip.PrefixFrom(parseAddr(host), bits)
		out = append(out, a)
	}

	return out, rows.Err()
}

func orRole(r models.NodeRole) models.NodeRole {
	if r == "" {
		return models.RoleUnknown
	}

	return r
}

func orStatus(s models.NodeStatus) models.NodeStatus {
	if s == "" {
		return models.NodeStatusUnknown
	}

	return s
}

// Candidates

const candidateColumns = `id, job_id, host(address), hostname, sys_name, sys_descr, sys_object_id,
	vendor, model, device_type, vendor_confidence, chassis_candidate, reachable,
	issues, evidence, status, node_id, first_seen, last_seen`

func scanCandidate(row pgx.Row) (*models.Candidate, error) {
	var (
		c        models.Candidate
		id       int64
		addr     string
		issues   []byte
		evidence []byte
		status   string
		nodeID   *int64
	)

	if err := row.Scan(&id, &c.JobID, &addr, &c.Hostname, &c.SysName, &c.SysDescr, &c.SysObjectID,
		&c.Vendor, &c.Model, &c.DeviceType, &c.VendorConfidence, &c.ChassisCandidate, &c.Reachable,
		&issues, &evidence, &status, &nodeID, &c.FirstSeen, &c.LastSeen); err != nil {
		return nil, err
	}

	c.ID = models.CandidateID(id)
	c.Address = parseAddr(addr)
	c.Status = models.CandidateStatus(status)

	if nodeID != nil {
		c.NodeID = models.NodeID(*nodeID)
	}

	if err := decodeCandidateJSON(&c, issues, evidence); err != nil {
		return nil, err
	}

	return &c, nil
}

func nullableNode(id models.NodeID) *int64 {
	if id == 0 {
		return nil
	}

	v := int64(id)

	return &v
}

func (s *CNPGStore) UpsertCandidate(ctx context.Context, obs *models.Candidate) (*models.Candidate, error) {
	if !obs.Address.IsValid() {
		return nil, ErrInvalidAddress
	}

	for attempt := 0; attempt < maxUpsertAttempts; attempt++ {
		stored, retry, err := s.upsertCandidateOnce(ctx, obs)
		if err != nil {
			return nil, err
		}

		if !retry {
			return stored, nil
		}

		s.logger.Debug().
			Str("job_id", obs.JobID).
			Str("target", obs.Address.String()).
			Int("attempt", attempt+1).
			Msg("candidate insert raced another writer, retrying as merge")
	}

	return nil, fmt.Errorf("%w: candidate %s/%s kept conflicting", ErrDatabaseError, obs.JobID, obs.Address)
}

func (s *CNPGStore) upsertCandidateOnce(ctx context.Context, obs *models.Candidate) (*models.Candidate, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("%w: begin: %w", ErrDatabaseError, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanCandidate(tx.QueryRow(ctx, `SELECT `+candidateColumns+` FROM discovery_candidates
		WHERE job_id = $1 AND address = $2::inet FOR UPDATE`, obs.JobID, obs.Address.String()))

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		stored, inserted, err := insertCandidate(ctx, tx, obs)
		if err != nil || !inserted {
			return nil, !inserted && err == nil, err
		}

		return stored, false, tx.Commit(ctx)
	case err != nil:
		return nil, false, fmt.Errorf("%w: read candidate: %w", ErrDatabaseError, err)
	}

	existing.Merge(obs)

	issues, evidence, err := encodeCandidateJSON(existing)
	if err != nil {
		return nil, false, err
	}

	if _, err := tx.Exec(ctx, `UPDATE discovery_candidates SET
		hostname = $2, sys_name = $3, sys_descr = $4, sys_object_id = $5, vendor = $6, model = $7,
		device_type = $8, vendor_confidence = $9, chassis_candidate = $10, reachable = $11,
		issues = $12::jsonb, evidence = $13::jsonb, status = $14, node_id = $15, last_seen = $16
		WHERE id = $1`,
		int64(existing.ID), existing.Hostname, existing.SysName, existing.SysDescr, existing.SysObjectID,
		existing.Vendor, existing.Model, existing.DeviceType, existing.VendorConfidence,
		existing.ChassisCandidate, existing.Reachable, issues, evidence, string(existing.Status),
		nullableNode(existing.NodeID), existing.LastSeen,
	); err != nil {
		return nil, false, fmt.Errorf("%w: update candidate: %w", ErrDatabaseError, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("%w: commit candidate: %w", ErrDatabaseError, err)
	}

	return existing, false, nil
}

// insertCandidate reports inserted=false when another writer created the
// row between our read and write.
func insertCandidate(ctx context.Context, tx pgx.Tx, obs *models.Candidate) (*models.Candidate, bool, error) {
	c := *obs

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

	issues, evidence, err := encodeCandidateJSON(&c)
	if err != nil {
		return nil, false, err
	}

	var id int64

	err = tx.QueryRow(ctx, `INSERT INTO discovery_candidates
		(job_id, address, hostname, sys_name, sys_descr, sys_object_id, vendor, model, device_type,
		 vendor_confidence, chassis_candidate, reachable, issues, evidence, status, node_id, first_seen, last_seen)
		VALUES ($1, $2::inet, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb, $14::jsonb, $15, $16, $17, $18)
		ON CONFLICT (job_id, address) DO NOTHING
		RETURNING id`,
		c.JobID, c.Address.String(), c.Hostname, c.SysName, c.SysDescr, c.SysObjectID, c.Vendor, c.Model,
		c.DeviceType, c.VendorConfidence, c.ChassisCandidate, c.Reachable, issues, evidence,
		string(c.Status), nullableNode(c.NodeID), c.FirstSeen, c.LastSeen,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("%w: insert candidate: %w", ErrDatabaseError, err)
	}

	c.ID = models.CandidateID(id)

	return &c, true, nil
}

func (s *CNPGStore) GetCandidate(ctx context.Context, id models.CandidateID) (*models.Candidate, error) {
	c, err := scanCandidate(s.pool.QueryRow(ctx, `SELECT `+candidateColumns+` FROM discovery_candidates WHERE id = $1`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: get candidate: %w", ErrDatabaseError, err)
	}

	return c, nil
}

func (s *CNPGStore) ListCandidates(ctx context.Context, jobID string) ([]*models.Candidate, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+candidateColumns+` FROM discovery_candidates
		WHERE job_id = $1 ORDER BY address`, jobID)
	if err != nil {
		return nil, fmt.Errorf("%w: list candidates: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []*models.Candidate

	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan candidate: %w", ErrDatabaseError, err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

func (s *CNPGStore) SetCandidateStatus(ctx context.Context, id models.CandidateID, status models.CandidateStatus, node models.NodeID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE discovery_candidates
		SET status = $2, node_id = COALESCE($3, node_id) WHERE id = $1`,
		int64(id), string(status), nullableNode(node))
	if err != nil {
		return fmt.Errorf("%w: set candidate status: %w", ErrDatabaseError, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %d", ErrCandidateNotFound, id)
	}

	return nil
}

func (s *CNPGStore) DeleteCandidatesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM discovery_candidates
		WHERE last_seen < $1 AND status <> $2`, cutoff, string(models.CandidateApproved))
	if err != nil {
		return 0, fmt.Errorf("%w: prune candidates: %w", ErrDatabaseError, err)
	}

	return tag.RowsAffected(), nil
}

// Links

const linkColumns = `id, a_node_id, a_interface, b_node_id, b_interface, status,
	protocols, confidence, first_seen, last_seen`

func scanLink(row pgx.Row) (*models.Link, error) {
	var (
		l         models.Link
		id        int64
		aNode     int64
		bNode     int64
		status    string
		protocols []string
	)

	if err := row.Scan(&id, &aNode, &l.Key.AInterface, &bNode, &l.Key.BInterface, &status,
		&protocols, &l.Confidence, &l.FirstSeen, &l.LastSeen); err != nil {
		return nil, err
	}

	for _, p := range protocols {
		l.Protocols = append(l.Protocols, models.Protocol(p))
	}

	l.ID = models.LinkID(id)
	l.Key.ANode = models.NodeID(aNode)
	l.Key.BNode = models.NodeID(bNode)
	l.Status = models.LinkStatus(status)

	return &l, nil
}

func collectLinks(rows pgx.Rows) ([]*models.Link, error) {
	defer rows.Close()

	var out []*models.Link

	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan link: %w", ErrDatabaseError, err)
		}

		out = append(out, l)
	}

	return out, rows.Err()
}

func (s *CNPGStore) GetLink(ctx context.Context, key models.LinkKey) (*models.Link, error) {
	l, err := scanLink(s.pool.QueryRow(ctx, `SELECT `+linkColumns+` FROM topology_links
		WHERE a_node_id = $1 AND a_interface = $2 AND b_node_id = $3 AND b_interface = $4`,
		int64(key.ANode), key.AInterface, int64(key.BNode), key.BInterface))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrLinkNotFound, key)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: get link: %w", ErrDatabaseError, err)
	}

	return l, nil
}

func (s *CNPGStore) ListLinks(ctx context.Context) ([]*models.Link, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+linkColumns+` FROM topology_links ORDER BY first_seen, id`)
	if err != nil {
		return nil, fmt.Errorf("%w: list links: %w", ErrDatabaseError, err)
	}

	return collectLinks(rows)
}

func (s *CNPGStore) ListLinksForNode(ctx context.Context, node models.NodeID) ([]*models.Link, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+linkColumns+` FROM topology_links
		WHERE a_node_id = $1 OR b_node_id = $1 ORDER BY first_seen, id`, int64(node))
	if err != nil {
		return nil, fmt.Errorf("%w: list links for node: %w", ErrDatabaseError, err)
	}

	return collectLinks(rows)
}

// protocolStrings never returns nil; the column is NOT NULL.
func protocolStrings(protocols []models.Protocol) []string {
	out := make([]string, 0, len(protocols))
	for _, p := range protocols {
		out = append(out, string(p))
	}

	return out
}

func (s *CNPGStore) InsertLink(ctx context.Context, link *models.Link) (models.LinkID, error) {
	if link.Key.ANode == 0 || link.Key.BNode == 0 {
		return 0, ErrInvalidLinkKey
	}

	// callers may hand us an un-normalized key
	key := models.NewLinkKey(link.Key.ANode, link.Key.AInterface, link.Key.BNode, link.Key.BInterface)

	protocols := protocolStrings(link.Protocols)

	var id int64

	err := s.pool.QueryRow(ctx, `INSERT INTO topology_links
		(a_node_id, a_interface, b_node_id, b_interface, status, protocols, confidence, first_seen, last_seen)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		int64(key.ANode), key.AInterface, int64(key.BNode), key.BInterface, string(link.Status),
		protocols, link.Confidence, link.FirstSeen, link.LastSeen,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", ErrLinkExists, key)
	}

	if err != nil {
		return 0, fmt.Errorf("%w: insert link: %w", ErrDatabaseError, err)
	}

	link.ID = models.LinkID(id)
	link.Key = key

	return link.ID, nil
}

func (s *CNPGStore) UpdateLink(ctx context.Context, link *models.Link) error {
	tag, err := s.pool.Exec(ctx, `UPDATE topology_links SET
		a_interface = $2, b_interface = $3, status = $4, protocols = $5, confidence = $6, last_seen = $7
		WHERE id = $1`,
		int64(link.ID), link.Key.AInterface, link.Key.BInterface, string(link.Status),
		protocolStrings(link.Protocols), link.Confidence, link.LastSeen,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrLinkExists, link.Key)
	}

	if err != nil {
		return fmt.Errorf("%w: update link: %w", ErrDatabaseError, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrLinkNotFound, link.ID)
	}

	return nil
}

func (s *CNPGStore) AppendLinkChange(ctx context.Context, change models.LinkChange) error {
	if _, err := s.pool.Exec(ctx, `INSERT INTO topology_link_changes
		(link_id, node_id, from_status, to_status, reason, changed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		int64(change.LinkID), int64(change.NodeID), string(change.FromStatus), string(change.ToStatus),
		string(change.Reason), change.At,
	); err != nil {
		return fmt.Errorf("%w: append link change: %w", ErrDatabaseError, err)
	}

	return nil
}

func (s *CNPGStore) ListLinkChanges(ctx context.Context, id models.LinkID) ([]models.LinkChange, error) {
	rows, err := s.pool.Query(ctx, `SELECT link_id, node_id, from_status, to_status, reason, changed_at
		FROM topology_link_changes WHERE link_id = $1 ORDER BY changed_at, id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("%w: list link changes: %w", ErrDatabaseError, err)
	}
	defer rows.Close()

	var out []models.LinkChange

	for rows.Next() {
		var (
			linkID, nodeID   int64
			from, to, reason string
			change           models.LinkChange
		)

		if err := rows.Scan(&linkID, &nodeID, &from, &to, &reason, &change.At); err != nil {
			return nil, fmt.Errorf("%w: scan link change: %w", ErrDatabaseError, err)
		}

		change.LinkID = models.LinkID(linkID)
		change.NodeID = models.NodeID(nodeID)
		change.FromStatus = models.LinkStatus(from)
		change.ToStatus = models.LinkStatus(to)
		change.Reason = models.ChangeReason(reason)
		out = append(out, change)
	}

	return out, rows.Err()
}
