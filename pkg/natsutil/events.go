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

// Package natsutil publishes topology change events to NATS JetStream.
package natsutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const (
	// SubjectLinkUpdate carries one event per link status transition.
	SubjectLinkUpdate = "topology.link_update"
	DefaultStream     = "topology"

	eventTypeLinkUpdate = "com.carverauto.serviceradar.topology.link_update"
	defaultSource       = "serviceradar/mapper"
)

var errNilConnection = errors.New("nats connection is nil")

// CloudEvent is the CloudEvents 1.0 JSON envelope.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype,omitempty"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// EventPublisher provides methods for publishing CloudEvents to NATS JetStream.
type EventPublisher struct {
	js     jetstream.JetStream
	stream string
	source string
	logger logger.Logger
}

// NewEventPublisher creates a new EventPublisher for the specified stream.
func NewEventPublisher(js jetstream.JetStream, streamName string, log logger.Logger) *EventPublisher {
	return &EventPublisher{
		js:     js,
		stream: streamName,
		source: defaultSource,
		logger: log,
	}
}

// PublishLinkUpdate publishes one link transition.
func (p *EventPublisher) PublishLinkUpdate(ctx context.Context, change models.TopologyChangeEvent) error {
	if change.EventType == "" {
		change.EventType = models.EventTypeLinkUpdate
	}

	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	event := CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          p.source,
		Type:            eventTypeLinkUpdate,
		DataContentType: "application/json",
		Subject:         SubjectLinkUpdate,
		Time:            &change.Timestamp,
		Data:            change,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal link update event: %w", err)
	}

	ack, err := p.js.Publish(ctx, event.Subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish link update event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Int64("link_id", int64(change.LinkID)).
		Str("state", string(change.State)).
		Uint64("seq", ack.Sequence).
		Msg("published link update")

	return nil
}

// CreateEventPublisher ensures the stream exists and covers the link update
// subject, then returns a publisher bound to it. A non-empty domain selects
// a JetStream domain.
func CreateEventPublisher(
	ctx context.Context, nc *nats.Conn, domain, streamName string, subjects []string, log logger.Logger,
) (*EventPublisher, error) {
	if nc == nil {
		return nil, errNilConnection
	}

	if streamName == "" {
		streamName = DefaultStream
	}

	var (
		js  jetstream.JetStream
		err error
	)

	if domain != "" {
		js, err = jetstream.NewWithDomain(nc, domain)
	} else {
		js, err = jetstream.New(nc)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, streamName, subjects, log); err != nil {
		return nil, err
	}

	return NewEventPublisher(js, streamName, log), nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name string, subjects []string, log logger.Logger) error {
	stream, err := js.Stream(ctx, name)
	if err != nil {
		if !isStreamMissingErr(err) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}

		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: ensureSubjectList(append([]string(nil), subjects...), SubjectLinkUpdate),
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", name, err)
		}

		log.Info().Str("stream", name).Msg("created JetStream stream")

		return nil
	}

	cfg := stream.CachedInfo().Config

	merged := ensureSubjectList(append([]string(nil), cfg.Subjects...), SubjectLinkUpdate)
	if len(merged) == len(cfg.Subjects) {
		return nil
	}

	cfg.Subjects = merged

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add %s to stream %s: %w", SubjectLinkUpdate, name, err)
	}

	log.Info().Str("stream", name).Strs("subjects", merged).Msg("extended stream subjects")

	return nil
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}

// ensureSubjectList appends subject unless an existing pattern already covers it.
func ensureSubjectList(subjects []string, subject string) []string {
	for _, existing := range subjects {
		if matchesSubject(existing, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject applies NATS wildcard rules: "*" matches one token, ">" the rest.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, token := range pt {
		if token == ">" {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if token != "*" && token != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}
