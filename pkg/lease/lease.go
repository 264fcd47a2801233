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

// Package lease implements advisory, TTL-bounded leases over a revisioned KV
// store. A lease marks a target (a seed range, a crawl root) as being worked on
// by one owner; it never blocks, and an expired lease may be taken over.
package lease

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/kv"
)

var (
	ErrHeld     = errors.New("lease held")
	ErrLost     = errors.New("lease lost")
	ErrBadTTL   = errors.New("lease ttl must be positive")
	errBadOwner = errors.New("lease owner is required")
)

type record struct {
	Owner     string    `json:"owner"`
	Target    string    `json:"target"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Lease is a held lease. It is not safe for concurrent Renew calls.
type Lease struct {
	Key       string
	Target    string
	Owner     string
	ExpiresAt time.Time

	revision uint64
	manager  *Manager
}

// Manager hands out leases from a Store.
type Manager struct {
	store  kv.Store
	owner  string
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithPrefix namespaces lease keys.
func WithPrefix(prefix string) Option {
	return func(m *Manager) { m.prefix = prefix }
}

func NewManager(store kv.Store, owner string, ttl time.Duration, opts ...Option) (*Manager, error) {
	if ttl <= 0 {
		return nil, ErrBadTTL
	}

	if owner == "" {
		return nil, errBadOwner
	}

	m := &Manager{
		store:  store,
		owner:  owner,
		ttl:    ttl,
		prefix: "lease",
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// TTL returns the lease duration.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Key maps a free-form target to a KV-safe key.
func (m *Manager) Key(target string) string {
	sum := sha256.Sum256([]byte(target))

	return m.prefix + "." + hex.EncodeToString(sum[:12])
}

// Acquire takes the lease for target. Any existing lease that has not expired
// yields ErrHeld, including one this manager handed out to another job; an
// expired one is taken over.
func (m *Manager) Acquire(ctx context.Context, target string) (*Lease, error) {
	key := m.Key(target)
	now := m.now()

	rec := record{Owner: m.owner, Target: target, ExpiresAt: now.Add(m.ttl)}

	payload, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}

	rev, err := m.store.Create(ctx, key, payload)
	if err == nil {
		return m.lease(key, rec, rev), nil
	}

	if !errors.Is(err, kv.ErrConflict) {
		return nil, fmt.Errorf("acquire %s: %w", target, err)
	}

	entry, found, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", target, err)
	}

	if !found {
		// released between our Create and Get
		rev, err = m.store.Create(ctx, key, payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrHeld, target)
		}

		return m.lease(key, rec, rev), nil
	}

	var current record
	if jsonErr := json.Unmarshal(entry.Value, &current); jsonErr == nil && now.Before(current.ExpiresAt) {
		return nil, fmt.Errorf("%w: %s (owner %s until %s)", ErrHeld, target, current.Owner,
			current.ExpiresAt.Format(time.RFC3339))
	}

	rev, err = m.store.Update(ctx, key, payload, entry.Revision)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHeld, target)
	}

	return m.lease(key, rec, rev), nil
}

func (m *Manager) lease(key string, rec record, rev uint64) *Lease {
	return &Lease{
		Key:       key,
		Target:    rec.Target,
		Owner:     rec.Owner,
		ExpiresAt: rec.ExpiresAt,
		revision:  rev,
		manager:   m,
	}
}

// Renew pushes the expiry out by one TTL. ErrLost means another owner took
// the lease over after it expired.
func (l *Lease) Renew(ctx context.Context) error {
	rec := record{Owner: l.Owner, Target: l.Target, ExpiresAt: l.manager.now().Add(l.manager.ttl)}

	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	rev, err := l.manager.store.Update(ctx, l.Key, payload, l.revision)
	if errors.Is(err, kv.ErrConflict) {
		return fmt.Errorf("%w: %s", ErrLost, l.Target)
	}

	if err != nil {
		return err
	}

	l.revision = rev
	l.ExpiresAt = rec.ExpiresAt

	return nil
}

// Release drops the lease if we still hold it.
func (l *Lease) Release(ctx context.Context) error {
	entry, found, err := l.manager.store.Get(ctx, l.Key)
	if err != nil {
		return err
	}

	if !found || entry.Revision != l.revision {
		return nil
	}

	return l.manager.store.Delete(ctx, l.Key)
}

// KeepAlive renews l every TTL/3 until ctx is done. onLost is called once if
// the lease cannot be renewed.
func (l *Lease) KeepAlive(ctx context.Context, onLost func(error)) {
	interval := l.manager.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Renew(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}

				if onLost != nil {
					onLost(err)
				}

				return
			}
		}
	}
}
