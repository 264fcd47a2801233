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

import "errors"

var (
	// ErrDiscoveryStopTimeout occurs when the discovery engine fails to stop within the timeout period.
	ErrDiscoveryStopTimeout  = errors.New("discovery engine stop timed out")
	ErrDiscoveryShuttingDown = errors.New("discovery engine is shutting down")
	ErrJobNotFound           = errors.New("job not found")
	ErrJobNotActive          = errors.New("job not found or not active")
	ErrJobQueueFull          = errors.New("job queue full, cannot enqueue job")
	ErrTargetLeased          = errors.New("target is leased by another job")
	ErrNoSeedsProvided       = errors.New("no seeds provided")
	ErrNoCrawlSeed           = errors.New("crawl requires a seed node or seed address")
	ErrNoCredentials         = errors.New("no SNMP credential profile configured")

	ErrConfigNil            = errors.New("config cannot be nil")
	ErrStoreRequired        = errors.New("store is required")
	ErrAgentsRequired       = errors.New("device agent registry is required")
	ErrProberRequired       = errors.New("liveness prober is required")
	ErrReconcilerRequired   = errors.New("link reconciler is required")
	ErrInvalidMaxActiveJobs = errors.New("max_active_jobs must be greater than 0")
	ErrInvalidWorkers       = errors.New("inspect_workers must be greater than 0")
	ErrInvalidConfidence    = errors.New("auto_approval.min_confidence must be within [0,1]")

	ErrCandidateNotFound   = errors.New("candidate not found")
	ErrCandidateBlocked    = errors.New("candidate has a blocking issue")
	ErrCandidateNotPending = errors.New("candidate already resolved")
	ErrNodeNotFound        = errors.New("managed node not found")
	ErrInvalidAddress      = errors.New("invalid management address")
	ErrNodeUnreachable     = errors.New("managed node unreachable")
)
