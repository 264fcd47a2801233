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
	"errors"
	"net/netip"
	"sync"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scan"
	"github.com/carverauto/serviceradar-mapper/pkg/scope"
)

// runDiscovery expands seeds, drops out-of-scope targets, sweeps for
// liveness and inspects whatever answered.
func (e *DiscoveryEngine) runDiscovery(ctx context.Context, j *job, params *DiscoveryParams) error {
	expansion, err := scope.ExpandSeeds(params.Seeds, e.config.MaxTargets)
	if err != nil {
		return err
	}

	if expansion.Truncated {
		j.logf(logLevelWarn, "seed expansion truncated at %d targets", e.config.MaxTargets)
	}

	filter, err := e.jobFilter(params.Scope)
	if err != nil {
		return err
	}

	creds, err := e.jobCredentials(params.Credentials)
	if err != nil {
		return err
	}

	targets, dropped := filter.Apply(expansion.Targets)

	outOfScope := 0
	for reason, n := range dropped {
		outOfScope += n
		j.logf(logLevelInfo, "%d targets dropped: %s", n, reason)
	}

	j.update(func(c *models.JobCounts) {
		c.Total = len(targets)
		c.OutOfScope = outOfScope
	})

	if len(targets) == 0 {
		j.logf(logLevelInfo, "no targets left in scope, %d dropped", outOfScope)
		return nil
	}

	j.logf(logLevelInfo, "sweeping %d targets", len(targets))

	workers := scan.PoolSize(len(targets), e.config.SweepWorkersPerCPU, scan.HardMaxSweepWorkers)
	live := make([]netip.Addr, 0, len(targets))

	for res := range scan.Sweep(ctx, e.prober, targets, workers) {
		j.update(func(c *models.JobCounts) { c.Scanned++ })

		if res.Alive {
			live = append(live, res.Addr)
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	j.update(func(c *models.JobCounts) { c.Live = len(live) })
	j.logf(logLevelInfo, "%d of %d targets answered", len(live), len(targets))

	e.inspectAll(ctx, j, live, creds)

	if err := ctx.Err(); err != nil {
		return err
	}

	e.autoApprove(ctx, j)

	return nil
}

// inspectAll runs deep inspection over a bounded pool. Failures are per
// target and never abort the job.
func (e *DiscoveryEngine) inspectAll(ctx context.Context, j *job, addrs []netip.Addr, creds []devagent.Credentials) {
	workers := min(e.config.InspectWorkers, len(addrs))
	if workers == 0 {
		return
	}

	work := make(chan netip.Addr, workers*defaultConcurrencyMultiplier)

	var wg sync.WaitGroup

	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			for addr := range work {
				if ctx.Err() != nil {
					continue
				}

				if _, err := e.inspectAndRecord(ctx, j, addr, creds); err != nil && !errors.Is(err, context.Canceled) {
					j.logf(logLevelWarn, "%s: %v", addr, err)
				}
			}
		}()
	}

	for _, addr := range addrs {
		select {
		case work <- addr:
		case <-ctx.Done():
		}

		if ctx.Err() != nil {
			break
		}
	}

	close(work)
	wg.Wait()
}

func (e *DiscoveryEngine) inspectAndRecord(ctx context.Context, j *job, addr netip.Addr,
	creds []devagent.Credentials) (*models.Candidate, error) {
	cand := e.inspect(ctx, j.id, addr, creds)

	return e.recordCandidate(ctx, j, cand)
}
