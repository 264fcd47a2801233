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

package scan

import (
	"context"
	"net/netip"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
)

const (
	defaultConcurrencyMultiplier = 2
	defaultWorkersPerCPU         = 16

	// HardMaxSweepWorkers caps a liveness pool regardless of host size.
	HardMaxSweepWorkers = 256
)

// Result is the outcome of one liveness probe.
type Result struct {
	Addr      netip.Addr
	Alive     bool
	RespTime  time.Duration
	CheckedAt time.Time
}

// PoolSize sizes a sweep pool from the target count and the host's logical
// CPU count, never exceeding hardCap.
func PoolSize(targets, perCPU, hardCap int) int {
	if perCPU <= 0 {
		perCPU = defaultWorkersPerCPU
	}

	if hardCap <= 0 || hardCap > HardMaxSweepWorkers {
		hardCap = HardMaxSweepWorkers
	}

	size := hostCPUs() * perCPU
	if targets < size {
		size = targets
	}

	if size > hardCap {
		size = hardCap
	}

	if size < 1 {
		size = 1
	}

	return size
}

func hostCPUs() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}

	return runtime.NumCPU()
}

// Sweep probes every target with a fixed pool of workers. The work channel
// holds at most workers*2 pending targets. Results arrive in completion order
// and the channel is closed when all probes finish or ctx is canceled.
func Sweep(ctx context.Context, prober Prober, targets []netip.Addr, workers int) <-chan Result {
	if workers <= 0 {
		workers = 1
	}

	results := make(chan Result, workers)
	work := make(chan netip.Addr, workers*defaultConcurrencyMultiplier)

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for addr := range work {
				start := time.Now()
				alive := prober.LivenessCheck(ctx, addr)

				select {
				case <-ctx.Done():
					return
				case results <- Result{Addr: addr, Alive: alive, RespTime: time.Since(start), CheckedAt: time.Now()}:
				}
			}
		}()
	}

	go func() {
		defer close(work)

		for _, addr := range targets {
			select {
			case <-ctx.Done():
				return
			case work <- addr:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	return results
}
