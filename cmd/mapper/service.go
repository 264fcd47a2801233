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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/serviceradar-mapper/pkg/db"
	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/kv"
	"github.com/carverauto/serviceradar-mapper/pkg/lease"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/mapper"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/natsutil"
	"github.com/carverauto/serviceradar-mapper/pkg/pathtrace"
	"github.com/carverauto/serviceradar-mapper/pkg/scan"
	"github.com/carverauto/serviceradar-mapper/pkg/topology"
)

const defaultLeaseBucket = "serviceradar-mapper-leases"

// service owns every long-lived resource of the mapper process.
type service struct {
	cfg    *mapper.Config
	logger logger.Logger

	store  db.Store
	pool   *pgxpool.Pool
	nc     *nats.Conn
	leases kv.Store
	prober scan.Prober

	engine *mapper.DiscoveryEngine
	tracer *pathtrace.Tracer

	seeds     []string
	crawlSeed string
}

func newService(ctx context.Context, cfg *mapper.Config, log logger.Logger) (*service, error) {
	s := &service{cfg: cfg, logger: log}

	if err := s.build(ctx); err != nil {
		s.close()
		return nil, err
	}

	return s, nil
}

func (s *service) build(ctx context.Context) error {
	if err := s.openStore(ctx); err != nil {
		return err
	}

	publisher, leases, err := s.openNATS(ctx)
	if err != nil {
		return err
	}

	dialer := devagent.NewDialer(devagent.ClientConfig{Timeout: s.cfg.Timeout, Retries: s.cfg.Retries})
	agents := devagent.NewRegistry(dialer, s.logger)

	s.prober = scan.NewProber(s.cfg.LivenessTimeout, s.cfg.PingsPerSecond, s.logger)

	var reconcilerPublisher topology.Publisher
	if publisher != nil {
		reconcilerPublisher = publisher
	}

	reconciler := topology.NewReconciler(s.store, reconcilerPublisher, logger.New(s.logger.WithComponent("topology")))

	s.engine, err = mapper.NewDiscoveryEngine(s.cfg, mapper.Dependencies{
		Store:      s.store,
		Agents:     agents,
		Prober:     s.prober,
		Reconciler: reconciler,
		Leases:     leases,
		Hooks:      []mapper.ApprovalHook{mapper.ApprovalHookFunc(s.nodeApproved)},
		Logger:     s.logger,
	})
	if err != nil {
		return err
	}

	s.tracer = pathtrace.NewTracer(s.store, agents, s.engine, logger.New(s.logger.WithComponent("pathtrace")))

	return nil
}

// openStore uses CNPG when a database is configured, memory otherwise.
func (s *service) openStore(ctx context.Context) error {
	if s.cfg.Database == nil || s.cfg.Database.Host == "" {
		s.logger.Warn().Msg("No database configured, topology state is kept in memory")
		s.store = db.NewMemoryStore()

		return nil
	}

	pool, err := db.NewPool(ctx, s.cfg.Database, s.logger)
	if err != nil {
		return err
	}

	s.pool = pool

	if err := db.RunMigrations(ctx, pool, s.logger); err != nil {
		return err
	}

	s.store = db.NewCNPGStore(pool, s.logger)

	return nil
}

// openNATS connects the event publisher and the lease bucket. Without a NATS
// URL events are not published and leases stay process-local.
func (s *service) openNATS(ctx context.Context) (*natsutil.EventPublisher, *lease.Manager, error) {
	natsCfg := s.cfg.NATS
	if natsCfg == nil || natsCfg.URL == "" {
		s.logger.Warn().Msg("No NATS configured, topology events are not published")
		return nil, nil, nil
	}

	nc, err := natsutil.Connect(natsCfg, s.logger)
	if err != nil {
		return nil, nil, err
	}

	s.nc = nc

	publisher, err := natsutil.CreateEventPublisher(ctx, nc, natsCfg.Domain, natsCfg.Stream, natsCfg.Subjects, s.logger)
	if err != nil {
		return nil, nil, err
	}

	bucket := natsCfg.LeaseBucket
	if bucket == "" {
		bucket = defaultLeaseBucket
	}

	store, err := kv.NewNatsStoreFromConn(ctx, nc, bucket, 0)
	if err != nil {
		return nil, nil, err
	}

	s.leases = store

	leases, err := lease.NewManager(store, leaseOwner(), s.cfg.LeaseTTL)
	if err != nil {
		return nil, nil, err
	}

	return publisher, leases, nil
}

func leaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "mapper"
	}

	return host + "-" + uuid.NewString()[:8]
}

func (s *service) nodeApproved(_ context.Context, node *models.ManagedNode) {
	s.logger.Info().
		Int64("node_id", int64(node.ID)).
		Str("address", node.Address.String()).
		Str("device_type", node.DeviceType).
		Msg("Managed node added")
}

// Start runs the engine and submits the jobs requested on the command line.
func (s *service) Start(ctx context.Context) error {
	if err := s.engine.Start(ctx); err != nil {
		return err
	}

	if len(s.seeds) > 0 {
		id, err := s.engine.StartDiscovery(ctx, &mapper.DiscoveryParams{Seeds: s.seeds})
		if err != nil {
			return fmt.Errorf("failed to start discovery: %w", err)
		}

		s.logger.Info().Str("job_id", id).Strs("seeds", s.seeds).Msg("Discovery submitted")
	}

	if s.crawlSeed != "" {
		id, err := s.engine.StartCrawl(ctx, &mapper.CrawlParams{SeedAddress: s.crawlSeed})
		if err != nil {
			return fmt.Errorf("failed to start crawl: %w", err)
		}

		s.logger.Info().Str("job_id", id).Str("seed", s.crawlSeed).Msg("Crawl submitted")
	}

	return nil
}

func (s *service) Stop(ctx context.Context) error {
	return s.engine.Stop(ctx)
}

// trace runs one path trace and writes the result as JSON.
func (s *service) trace(ctx context.Context, w io.Writer, src, dst string) error {
	res := s.tracer.Trace(ctx, src, dst)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(res); err != nil {
		return err
	}

	if res.Status == models.TraceError {
		return fmt.Errorf("trace failed: %s", res.Message)
	}

	return nil
}

func (s *service) close() {
	if s.prober != nil {
		if c, ok := s.prober.(io.Closer); ok {
			_ = c.Close()
		}
	}

	if s.leases != nil {
		_ = s.leases.Close()
	}

	if s.nc != nil {
		s.nc.Close()
	}

	switch {
	case s.store != nil:
		s.store.Close()
	case s.pool != nil:
		s.pool.Close()
	}
}
