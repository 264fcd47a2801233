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

// Package mapper runs discovery jobs and neighbor crawls, promotes
// candidates into managed nodes and keeps node adjacencies fresh.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/kv"
	"github.com/carverauto/serviceradar-mapper/pkg/lease"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scan"
	"github.com/carverauto/serviceradar-mapper/pkg/scope"
)

const (
	defaultFallbackTimeout = 10 * time.Second
	leaseReleaseTimeout    = 5 * time.Second
	maxCleanupInterval     = time.Hour
	refreshQueueSize       = 64
)

// Dependencies are the collaborators a DiscoveryEngine drives.
type Dependencies struct {
	Store      db.Store
	Agents     *devagent.Registry
	Prober     scan.Prober
	Classifier *devagent.Classifier
	Reconciler Reconciler
	// Leases defaults to an in-memory manager when nil.
	Leases *lease.Manager
	// Resolver defaults to net.DefaultResolver when nil.
	Resolver HostResolver
	Hooks    []ApprovalHook
	Logger   logger.Logger
}

// DiscoveryEngine implements Mapper.
type DiscoveryEngine struct {
	config     *Config
	store      db.Store
	agents     *devagent.Registry
	prober     scan.Prober
	classifier *devagent.Classifier
	reconciler Reconciler
	leases     *lease.Manager
	resolver   HostResolver
	hooks      []ApprovalHook
	logger     logger.Logger
	filter     *scope.Filter

	mu            sync.RWMutex
	activeJobs    map[string]*job
	completedJobs map[string]*job
	jobChan       chan *job
	refreshQueue  chan models.NodeID
	done          chan struct{}
	wg            sync.WaitGroup
	stopOnce      sync.Once

	credMu sync.RWMutex
	creds  map[netip.Addr]devagent.Credentials // last working profile per address

	now func() time.Time
}

var _ Mapper = (*DiscoveryEngine)(nil)

// NewDiscoveryEngine validates config, fills defaults and builds an engine.
func NewDiscoveryEngine(config *Config, deps Dependencies) (*DiscoveryEngine, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid discovery engine configuration: %w", err)
	}

	if err := validateDependencies(&deps); err != nil {
		return nil, err
	}

	applyDefaults(config)

	filter, err := scope.NewFilter(config.Scope)
	if err != nil {
		return nil, fmt.Errorf("invalid discovery scope: %w", err)
	}

	if deps.Leases == nil {
		deps.Leases, err = lease.NewManager(kv.NewMemoryStore(), "mapper-"+uuid.NewString(), config.LeaseTTL)
		if err != nil {
			return nil, err
		}
	}

	if deps.Classifier == nil {
		deps.Classifier = devagent.NewClassifier(devagent.DefaultSignatures, config.ChassisMarkers)
	}

	if deps.Resolver == nil {
		deps.Resolver = defaultResolver()
	}

	return &DiscoveryEngine{
		config:        config,
		store:         deps.Store,
		agents:        deps.Agents,
		prober:        deps.Prober,
		classifier:    deps.Classifier,
		reconciler:    deps.Reconciler,
		leases:        deps.Leases,
		resolver:      deps.Resolver,
		hooks:         deps.Hooks,
		logger:        deps.Logger,
		filter:        filter,
		activeJobs:    make(map[string]*job),
		completedJobs: make(map[string]*job),
		jobChan:       make(chan *job, config.MaxActiveJobs),
		refreshQueue:  make(chan models.NodeID, refreshQueueSize),
		done:          make(chan struct{}),
		creds:         make(map[netip.Addr]devagent.Credentials),
		now:           time.Now,
	}, nil
}

func validateConfig(config *Config) error {
	if config == nil {
		return ErrConfigNil
	}

	if config.MaxActiveJobs < 0 {
		return ErrInvalidMaxActiveJobs
	}

	if config.InspectWorkers < 0 || config.RefreshWorkers < 0 {
		return ErrInvalidWorkers
	}

	if c := config.AutoApproval.MinConfidence; c < 0 || c > 1 {
		return ErrInvalidConfidence
	}

	return nil
}

func validateDependencies(deps *Dependencies) error {
	switch {
	case deps.Store == nil:
		return ErrStoreRequired
	case deps.Agents == nil:
		return ErrAgentsRequired
	case deps.Prober == nil:
		return ErrProberRequired
	case deps.Reconciler == nil:
		return ErrReconcilerRequired
	}

	if deps.Logger == nil {
		deps.Logger = logger.NewTestLogger()
	}

	return nil
}

func applyDefaults(c *Config) {
	setInt := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}

	setDuration := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}

	setInt(&c.MaxActiveJobs, defaultMaxActiveJobs)
	setInt(&c.InspectWorkers, defaultInspectWorkers)
	setInt(&c.MaxTargets, scope.DefaultMaxTargets)
	setInt(&c.MaxLogEntries, defaultMaxLogEntries)
	setInt(&c.PingsPerSecond, defaultPingsPerSecond)
	setInt(&c.CrawlMaxDepth, defaultCrawlMaxDepth)
	setInt(&c.CrawlMaxNodes, defaultCrawlMaxNodes)
	setInt(&c.RefreshWorkers, defaultRefreshWorkers)

	setInt(&c.MaxAlternateCredentials, defaultMaxAlternateCredentials)

	if c.Retries < 0 {
		c.Retries = defaultSNMPRetries
	}

	setDuration(&c.LivenessTimeout, defaultLivenessTimeout)
	setDuration(&c.Timeout, defaultSNMPTimeout)
	setDuration(&c.LeaseTTL, defaultLeaseTTL)
	setDuration(&c.ResultRetention, defaultResultRetention)
	setDuration(&c.CandidateRetention, defaultCandidateRetention)

	if c.AutoApproval.MinConfidence == 0 {
		c.AutoApproval.MinConfidence = defaultMinApprovalConfidence
	}
}

// Start launches the job workers, the retention cleanup and, when an
// interval is configured, the periodic refresh loop.
func (e *DiscoveryEngine) Start(ctx context.Context) error {
	e.logger.Info().
		Int("max_active_jobs", e.config.MaxActiveJobs).
		Int("inspect_workers", e.config.InspectWorkers).
		Dur("refresh_interval", e.config.RefreshInterval).
		Msg("Starting discovery engine")

	e.wg.Add(e.config.MaxActiveJobs)

	for i := 0; i < e.config.MaxActiveJobs; i++ {
		go e.worker(ctx, i)
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.cleanupRoutine(ctx)
	}()

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()
		e.refreshWorker(ctx)
	}()

	if e.config.RefreshInterval > 0 {
		e.wg.Add(1)

		go func() {
			defer e.wg.Done()
			e.refreshLoop(ctx)
		}()
	}

	return nil
}

// Stop cancels every active job and waits for the workers to exit.
func (e *DiscoveryEngine) Stop(ctx context.Context) error {
	e.logger.Info().Msg("Stopping discovery engine")

	e.mu.RLock()
	for _, j := range e.activeJobs {
		j.cancel()
	}
	e.mu.RUnlock()

	e.stopOnce.Do(func() { close(e.done) })

	waitChan := make(chan struct{})

	go func() {
		e.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		e.logger.Info().Msg("Discovery engine stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn().Err(ctx.Err()).Msg("Discovery engine stop interrupted")
		return ctx.Err()
	case <-time.After(defaultFallbackTimeout):
		return ErrDiscoveryStopTimeout
	}
}

func (e *DiscoveryEngine) stopping() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// StartDiscovery queues a discovery job. Seed parsing happens when the job
// runs, so malformed seeds fail the job rather than the call.
func (e *DiscoveryEngine) StartDiscovery(ctx context.Context, params *DiscoveryParams) (string, error) {
	if params == nil || len(params.Seeds) == 0 {
		return "", ErrNoSeedsProvided
	}

	target := "discovery:" + strings.Join(params.Seeds, ",")

	return e.enqueue(ctx, models.JobDiscovery, target, func(ctx context.Context, j *job) error {
		return e.runDiscovery(ctx, j, params)
	})
}

// StartCrawl queues a neighbor crawl rooted at a node id or an address.
func (e *DiscoveryEngine) StartCrawl(ctx context.Context, params *CrawlParams) (string, error) {
	if params == nil || (params.SeedNodeID == 0 && params.SeedAddress == "") {
		return "", ErrNoCrawlSeed
	}

	target := "crawl:" + params.SeedAddress
	if params.SeedNodeID != 0 {
		target = fmt.Sprintf("crawl:node-%d", params.SeedNodeID)
	}

	return e.enqueue(ctx, models.JobCrawl, target, func(ctx context.Context, j *job) error {
		_, err := e.crawl(ctx, j, params)
		return err
	})
}

func (e *DiscoveryEngine) enqueue(ctx context.Context, kind models.JobKind, target string,
	run func(ctx context.Context, j *job) error) (string, error) {
	if e.stopping() {
		return "", ErrDiscoveryShuttingDown
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.activeJobs) >= e.config.MaxActiveJobs {
		return "", ErrJobQueueFull
	}

	// jobs outlive the request that started them
	j := newJob(context.WithoutCancel(ctx), uuid.New().String(), kind, target, e.config.MaxLogEntries, run)

	e.activeJobs[j.id] = j

	select {
	case e.jobChan <- j:
		e.logger.Info().Str("job_id", j.id).Str("kind", string(kind)).Str("target", target).Msg("Job enqueued")
	default:
		j.cancel()
		delete(e.activeJobs, j.id)

		return "", ErrJobQueueFull
	}

	recordJob(ctx, kind, models.JobPending)

	return j.id, nil
}

func (e *DiscoveryEngine) worker(ctx context.Context, workerID int) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case j := <-e.jobChan:
			e.logger.Debug().Int("worker", workerID).Str("job_id", j.id).Msg("Worker picked up job")
			e.runJob(j)
		}
	}
}

// runJob holds the target lease for the whole run.
func (e *DiscoveryEngine) runJob(j *job) {
	if !j.setRunning() {
		// canceled while still queued
		e.retire(j)
		return
	}

	held, err := e.leases.Acquire(j.ctx, j.target)
	if err != nil {
		if errors.Is(err, lease.ErrHeld) {
			err = fmt.Errorf("%w: %s", ErrTargetLeased, j.target)
		}

		e.complete(j, err)

		return
	}

	keepCtx, stopKeepAlive := context.WithCancel(j.ctx)

	var keepWG sync.WaitGroup

	keepWG.Add(1)

	go func() {
		defer keepWG.Done()

		held.KeepAlive(keepCtx, func(lostErr error) {
			j.logf(logLevelWarn, "lease on %s lost: %v", j.target, lostErr)
		})
	}()

	runErr := j.run(j.ctx, j)

	stopKeepAlive()
	keepWG.Wait()

	releaseCtx, cancel := context.WithTimeout(context.Background(), leaseReleaseTimeout)
	if err := held.Release(releaseCtx); err != nil {
		e.logger.Warn().Err(err).Str("target", j.target).Msg("Failed to release job lease")
	}

	cancel()

	e.complete(j, runErr)
}

func (e *DiscoveryEngine) complete(j *job, runErr error) {
	state := models.JobCompleted
	msg := ""

	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled) && j.ctx.Err() != nil:
		state = models.JobCanceled
		msg = "job canceled"
	default:
		state = models.JobFailed
		msg = runErr.Error()
		j.logf(logLevelError, "job failed: %v", runErr)
	}

	// turning terminal and leaving activeJobs happen under one lock
	e.mu.Lock()
	finished := j.finish(state, msg)
	delete(e.activeJobs, j.id)
	e.completedJobs[j.id] = j
	e.mu.Unlock()

	j.cancel()

	if finished {
		recordJob(context.Background(), j.kind, state)

		e.logger.Info().
			Str("job_id", j.id).
			Str("state", string(state)).
			Str("error", msg).
			Msg("Job finished")
	}
}

func (e *DiscoveryEngine) retire(j *job) {
	j.cancel()

	e.mu.Lock()
	delete(e.activeJobs, j.id)
	e.completedJobs[j.id] = j
	e.mu.Unlock()
}

func (e *DiscoveryEngine) GetJobStatus(_ context.Context, jobID string) (*models.JobStatus, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if j, ok := e.activeJobs[jobID]; ok {
		return j.status(), nil
	}

	if j, ok := e.completedJobs[jobID]; ok {
		return j.status(), nil
	}

	return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
}

// CancelJob stops a pending or running job. Results produced after the
// cancel are discarded.
func (e *DiscoveryEngine) CancelJob(ctx context.Context, jobID string) error {
	e.mu.Lock()

	j, ok := e.activeJobs[jobID]
	if !ok {
		done, known := e.completedJobs[jobID]
		e.mu.Unlock()

		if known && done.status().State == models.JobCanceled {
			return nil
		}

		if known {
			return fmt.Errorf("%w: %s", ErrJobNotActive, jobID)
		}

		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	if j.finish(models.JobCanceled, "job canceled by user") {
		recordJob(ctx, j.kind, models.JobCanceled)
	}

	j.cancel()

	delete(e.activeJobs, jobID)
	e.completedJobs[jobID] = j
	e.mu.Unlock()

	e.logger.Info().Str("job_id", jobID).Msg("Job canceled")

	return nil
}

// cleanupRoutine drops expired job results and aged-out candidates.
func (e *DiscoveryEngine) cleanupRoutine(ctx context.Context) {
	interval := min(e.config.ResultRetention/2, maxCleanupInterval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.cleanup(ctx)
		}
	}
}

func (e *DiscoveryEngine) cleanup(ctx context.Context) {
	now := e.now()
	cutoff := now.Add(-e.config.ResultRetention)

	e.mu.Lock()
	for id, j := range e.completedJobs {
		if st := j.status(); !st.EndTime.IsZero() && st.EndTime.Before(cutoff) {
			delete(e.completedJobs, id)
		}
	}
	e.mu.Unlock()

	removed, err := e.store.DeleteCandidatesBefore(ctx, now.Add(-e.config.CandidateRetention))
	if err != nil {
		e.logger.Warn().Err(err).Msg("Failed to expire discovery candidates")
		return
	}

	if removed > 0 {
		e.logger.Info().Int64("removed", removed).Msg("Expired discovery candidates")
	}
}

func (e *DiscoveryEngine) ListCandidates(ctx context.Context, jobID string) ([]*models.Candidate, error) {
	return e.store.ListCandidates(ctx, jobID)
}

// rememberCredentials records the profile that last answered at addr.
func (e *DiscoveryEngine) rememberCredentials(addr netip.Addr, creds devagent.Credentials) {
	e.credMu.Lock()
	e.creds[addr] = creds
	e.credMu.Unlock()
}

// CredentialsFor returns the profile that last answered at addr, or the
// primary profile.
func (e *DiscoveryEngine) CredentialsFor(addr netip.Addr) devagent.Credentials {
	return e.credentialsOr(addr, e.config.Credentials)
}

// credentialsOr prefers a remembered profile, then the first of profiles.
func (e *DiscoveryEngine) credentialsOr(addr netip.Addr, profiles []devagent.Credentials) devagent.Credentials {
	e.credMu.RLock()
	creds, ok := e.creds[addr]
	e.credMu.RUnlock()

	if ok || len(profiles) == 0 {
		return creds
	}

	return profiles[0]
}

// jobCredentials picks the per-job profiles, the configured ones otherwise.
func (e *DiscoveryEngine) jobCredentials(override []devagent.Credentials) ([]devagent.Credentials, error) {
	creds := override
	if len(creds) == 0 {
		creds = e.config.Credentials
	}

	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	if limit := 1 + e.config.MaxAlternateCredentials; len(creds) > limit {
		creds = creds[:limit]
	}

	return creds, nil
}

// jobFilter layers a per-job scope over the configured one.
func (e *DiscoveryEngine) jobFilter(override *scope.Config) (*scope.Filter, error) {
	if override == nil {
		return e.filter, nil
	}

	extra, err := scope.NewFilter(*override)
	if err != nil {
		return nil, err
	}

	return e.filter.Merge(extra), nil
}
