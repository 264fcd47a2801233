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

package natsutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

func startJetStream(t *testing.T) *nats.Conn {
	t.Helper()

	srv, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	nc, err := Connect(&models.NATSConfig{URL: srv.ClientURL()}, logger.NewTestLogger())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	return nc
}

func TestPublishLinkUpdate(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc := startJetStream(t)

	pub, err := CreateEventPublisher(ctx, nc, "", "", nil, logger.NewTestLogger())
	require.NoError(t, err)

	sub, err := nc.SubscribeSync(SubjectLinkUpdate)
	require.NoError(t, err)

	require.NoError(t, pub.PublishLinkUpdate(ctx, models.TopologyChangeEvent{
		LinkID:          12,
		NodeID:          1,
		NeighborNodeID:  2,
		LocalInterface:  "Gi0/1",
		RemoteInterface: "ge-0/0/1",
		Protocol:        "lldp",
		State:           models.LinkStateDown,
	}))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)

	var event struct {
		CloudEvent
		Data models.TopologyChangeEvent `json:"data"`
	}

	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, "1.0", event.SpecVersion)
	assert.Equal(t, eventTypeLinkUpdate, event.Type)
	assert.Equal(t, SubjectLinkUpdate, event.Subject)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.EventTypeLinkUpdate, event.Data.EventType)
	assert.Equal(t, models.LinkID(12), event.Data.LinkID)
	assert.Equal(t, models.LinkStateDown, event.Data.State)
	assert.False(t, event.Data.Timestamp.IsZero())

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, DefaultStream)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)
}

func TestCreateEventPublisherExtendsExistingStream(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	nc := startJetStream(t)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{Name: "events", Subjects: []string{"events.>"}})
	require.NoError(t, err)

	_, err = CreateEventPublisher(ctx, nc, "", "events", nil, logger.NewTestLogger())
	require.NoError(t, err)

	stream, err := js.Stream(ctx, "events")
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"events.>", SubjectLinkUpdate}, info.Config.Subjects)
}

func TestCreateEventPublisherRequiresConnection(t *testing.T) {
	_, err := CreateEventPublisher(context.Background(), nil, "", "", nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errNilConnection)
}

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		want     []string
	}{
		{"adds subject when list empty", nil, []string{SubjectLinkUpdate}},
		{"keeps list when wildcard matches", []string{"topology.*"}, []string{"topology.*"}},
		{"keeps list when greater wildcard matches", []string{">"}, []string{">"}},
		{"appends when unmatched", []string{"events.>"}, []string{"events.>", SubjectLinkUpdate}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, ensureSubjectList(append([]string(nil), tc.subjects...), SubjectLinkUpdate))
		})
	}
}

func TestMatchesSubject(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern  string
		subject  string
		expected bool
	}{
		{"topology.link_update", "topology.link_update", true},
		{"topology.*", "topology.link_update", true},
		{"topology.>", "topology.link_update", true},
		{"topology.>", "topology", false},
		{"topology.*.x", "topology.link_update", false},
		{"events.*", "topology.link_update", false},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.expected, matchesSubject(tc.pattern, tc.subject), "%s vs %s", tc.pattern, tc.subject)
	}
}

func TestTLSConfigRequiresAllFiles(t *testing.T) {
	tlsConf, err := TLSConfig(&models.NATSConfig{})
	require.NoError(t, err)
	assert.Nil(t, tlsConf)

	_, err = TLSConfig(&models.NATSConfig{TLS: &models.TLSConfig{CertFile: "client.pem"}})
	require.ErrorIs(t, err, ErrTLSIncomplete)

	assert.Equal(t, "/etc/serviceradar/certs/ca.pem", resolvePath("/etc/serviceradar/certs", "ca.pem"))
	assert.Equal(t, "/abs/ca.pem", resolvePath("/etc/serviceradar/certs", "/abs/ca.pem"))
}
