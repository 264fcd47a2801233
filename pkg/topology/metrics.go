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

package topology

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const meterName = "serviceradar.mapper.topology"

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	transitionCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	evidenceCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	transitions, err := meter.Int64Counter(
		"mapper_topology_link_transitions_total",
		metric.WithDescription("Link status transitions written by the reconciler"),
	)
	if err != nil {
		otel.Handle(err)
	}
	transitionCounter = transitions

	evidence, err := meter.Int64Counter(
		"mapper_topology_evidence_total",
		metric.WithDescription("Adjacency evidence items processed, by resolution outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	evidenceCounter = evidence
}

func recordTransition(ctx context.Context, reason models.ChangeReason) {
	meterOnce.Do(initMeter)
	if transitionCounter == nil {
		return
	}

	transitionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
}

func recordEvidence(ctx context.Context, protocol models.Protocol, outcome string) {
	meterOnce.Do(initMeter)
	if evidenceCounter == nil {
		return
	}

	evidenceCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("protocol", string(protocol)),
		attribute.String("outcome", outcome),
	))
}
