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

// Package kv provides the revisioned key-value store used for job leases and
// remote configuration.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned when a Create finds the key present or an Update
	// finds a revision other than the one expected.
	ErrConflict    = errors.New("kv revision conflict")
	ErrKeyNotFound = errors.New("kv key not found")
)

// Entry is a value with the revision it was written at.
type Entry struct {
	Key      string
	Value    []byte
	Revision uint64
}

// Store is a key-value store with compare-and-swap writes. Every mutation is a
// single-record operation.
type Store interface {
	// Get returns the current entry. found is false when the key is absent.
	Get(ctx context.Context, key string) (entry Entry, found bool, err error)

	// Put writes value unconditionally.
	Put(ctx context.Context, key string, value []byte) (uint64, error)

	// Create writes value only if key does not exist.
	Create(ctx context.Context, key string, value []byte) (uint64, error)

	// Update writes value only if the key is still at revision.
	Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
