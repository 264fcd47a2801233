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

package kv

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a process-local Store for single-instance deployments and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	seq     uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}

	entry.Value = append([]byte(nil), entry.Value...)

	return entry, true, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.write(key, value), nil
}

func (m *MemoryStore) Create(_ context.Context, key string, value []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; ok {
		return 0, fmt.Errorf("%w: %s", ErrConflict, key)
	}

	return m.write(key, value), nil
}

func (m *MemoryStore) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.entries[key]
	if !ok || current.Revision != revision {
		return 0, fmt.Errorf("%w: %s at revision %d", ErrConflict, key, revision)
	}

	return m.write(key, value), nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)

	return nil
}

func (*MemoryStore) Close() error { return nil }

func (m *MemoryStore) write(key string, value []byte) uint64 {
	m.seq++
	m.entries[key] = Entry{Key: key, Value: append([]byte(nil), value...), Revision: m.seq}

	return m.seq
}

var _ Store = (*MemoryStore)(nil)
