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
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore is a Store backed by a JetStream key-value bucket.
type NatsStore struct {
	nc     *nats.Conn
	kv     jetstream.KeyValue
	ownsNC bool
}

// NewNatsStore dials natsURL and opens (or creates) bucket. A positive ttl is
// applied at bucket level so abandoned keys age out.
func NewNatsStore(ctx context.Context, natsURL, bucket string, ttl time.Duration, opts ...nats.Option) (*NatsStore, error) {
	nc, err := nats.Connect(natsURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	store, err := NewNatsStoreFromConn(ctx, nc, bucket, ttl)
	if err != nil {
		nc.Close()

		return nil, err
	}

	store.ownsNC = true

	return store, nil
}

// NewNatsStoreFromConn opens bucket on an existing connection. The caller
// keeps ownership of nc.
func NewNatsStoreFromConn(ctx context.Context, nc *nats.Conn, bucket string, ttl time.Duration) (*NatsStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	config := jetstream.KeyValueConfig{
		Bucket:  bucket,
		History: 1,
	}

	if ttl > 0 {
		config.TTL = ttl
	}

	bucketKV, err := js.CreateOrUpdateKeyValue(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", bucket, err)
	}

	return &NatsStore{nc: nc, kv: bucketKV}, nil
}

func (n *NatsStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	entry, err := n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return Entry{}, false, nil
	}

	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return Entry{Key: key, Value: entry.Value(), Revision: entry.Revision()}, true, nil
}

func (n *NatsStore) Put(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := n.kv.Put(ctx, key, value)
	if err != nil {
		return 0, fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return rev, nil
}

func (n *NatsStore) Create(ctx context.Context, key string, value []byte) (uint64, error) {
	rev, err := n.kv.Create(ctx, key, value)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return 0, fmt.Errorf("%w: %s", ErrConflict, key)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to create key %s: %w", key, err)
	}

	return rev, nil
}

func (n *NatsStore) Update(ctx context.Context, key string, value []byte, revision uint64) (uint64, error) {
	rev, err := n.kv.Update(ctx, key, value, revision)
	if errors.Is(err, jetstream.ErrKeyExists) {
		return 0, fmt.Errorf("%w: %s at revision %d", ErrConflict, key, revision)
	}

	if err != nil {
		return 0, fmt.Errorf("failed to update key %s: %w", key, err)
	}

	return rev, nil
}

func (n *NatsStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (n *NatsStore) Close() error {
	if n.ownsNC {
		n.nc.Close()
	}

	return nil
}

var _ Store = (*NatsStore)(nil)
