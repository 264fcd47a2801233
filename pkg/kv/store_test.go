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
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	require.Eventually(t, func() bool {
		return srv.JetStreamEnabled()
	}, 5*time.Second, 50*time.Millisecond, "embedded NATS server not ready for JetStream")

	t.Cleanup(srv.Shutdown)

	return srv
}

// exerciseStore checks the compare-and-swap contract every Store must honor.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()

	ctx := context.Background()

	_, found, err := store.Get(ctx, "lease.a")
	require.NoError(t, err)
	assert.False(t, found)

	rev, err := store.Create(ctx, "lease.a", []byte("one"))
	require.NoError(t, err)

	_, err = store.Create(ctx, "lease.a", []byte("two"))
	require.ErrorIs(t, err, ErrConflict)

	entry, found, err := store.Get(ctx, "lease.a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("one"), entry.Value)
	assert.Equal(t, rev, entry.Revision)

	_, err = store.Update(ctx, "lease.a", []byte("stale"), rev+100)
	require.ErrorIs(t, err, ErrConflict)

	newRev, err := store.Update(ctx, "lease.a", []byte("three"), rev)
	require.NoError(t, err)
	assert.Greater(t, newRev, rev)

	require.NoError(t, store.Delete(ctx, "lease.a"))
	require.NoError(t, store.Delete(ctx, "lease.missing"))

	_, found, err = store.Get(ctx, "lease.a")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.Put(ctx, "config.mapper", []byte("{}"))
	require.NoError(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestNatsStore(t *testing.T) {
	srv := runJetStreamServer(t)

	store, err := NewNatsStore(context.Background(), srv.ClientURL(), "mapper-test", time.Minute)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	exerciseStore(t, store)
}
