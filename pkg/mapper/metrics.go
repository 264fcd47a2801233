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

package mapper

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/serviceradar-mapper/pkg/models"
)

const meterName = "serviceradar.mapper"

var (
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	meterOnce sync.Once
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	jobCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	candidateCounter metric.Int64Counter
	//nolint:gochecknoglobals // metrics instruments are shared across the process intentionally
	refreshCounter metric.Int64Counter
)

func initMeter() {
	meter := otel.Meter(meterName)

	jobs, err := meter.Int64Counter(
		"mapper_jobs_total",
		metric.WithDescription("Discovery and crawl job state changes"),
	)
	if err != nil {
		otel.Handle(err)
	}
	jobCounter = jobs

	candidates, err := meter.Int64Counter(
		"mapper_candidates_total",
		metric.WithDescription("Candidates recorded, by resulting status"),
	)
	if err != nil {
		otel.Handle(err)
	}
	candidateCounter = candidates

	refreshes, err := meter.Int64Counter(
		"mapper_node_refresh_total",
		metric.WithDescription("Per-node evidence refreshes, by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	refreshCounter = refreshes
}

func recordJob(ctx context.Context, kind models.JobKind, state models.JobState) {
	meterOnce.Do(initMeter)
	if jobCounter == nil {
		return
	}

	jobCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("state", string(state)),
	))
}

func recordCandidate(ctx context.Context, status models.CandidateStatus) {
	meterOnce.Do(initMeter)
	if candidateCounter == nil {
		return
	}

	candidateCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func recordRefresh(ctx context.Context, outcome string) {
	meterOnce.Do(initMeter)
	if refreshCounter == nil {
		return
	}

	refreshCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
