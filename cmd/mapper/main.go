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
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/serviceradar-mapper/pkg/config"
	"github.com/carverauto/serviceradar-mapper/pkg/kv"
	"github.com/carverauto/serviceradar-mapper/pkg/lifecycle"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/mapper"
	"github.com/carverauto/serviceradar-mapper/pkg/version"
)

const (
	serviceName         = "serviceradar-mapper"
	shutdownTimeout     = 30 * time.Second
	defaultConfigBucket = "serviceradar-config"
)

var (
	errFailedToLoadMapperConfig    = errors.New("failed to load mapper configuration")
	errFailedToInitDiscoveryEngine = errors.New("failed to initialize discovery engine")
	errTraceEndpoints              = errors.New("-trace-from and -trace-to must be given together")
)

type options struct {
	configFile string
	configKey  string
	discover   string
	crawl      string
	traceFrom  string
	traceTo    string
	version    bool
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	var opts options

	flag.StringVar(&opts.configFile, "config", "/etc/serviceradar/mapper.json", "Path to mapper config file")
	flag.StringVar(&opts.configKey, "config-key", "", "KV key holding the config when CONFIG_SOURCE=kv")
	flag.StringVar(&opts.discover, "discover", "", "Comma-separated seeds to discover once the service is up")
	flag.StringVar(&opts.crawl, "crawl", "", "Address to start a neighbor crawl from once the service is up")
	flag.StringVar(&opts.traceFrom, "trace-from", "", "Trace source address; prints the path and exits")
	flag.StringVar(&opts.traceTo, "trace-to", "", "Trace destination address")
	flag.BoolVar(&opts.version, "version", false, "Print the version and exit")
	flag.Parse()

	if opts.version {
		fmt.Println(version.GetFullVersion())
		return nil
	}

	if (opts.traceFrom == "") != (opts.traceTo == "") {
		return errTraceEndpoints
	}

	ctx := context.Background()

	cfg, err := loadConfig(ctx, &opts)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadMapperConfig, err)
	}

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, "mapper", cfg.Logging)
	if err != nil {
		return err
	}

	defer func() {
		if err := lifecycle.ShutdownLogger(); err != nil {
			log.Printf("Failed to shutdown logger: %v", err)
		}
	}()

	if safe, err := config.SanitizeForLog(cfg); err == nil {
		mainLogger.Debug().RawJSON("config", safe).Msg("Configuration loaded")
	}

	shutdownTracing := initTelemetry(ctx, cfg.Logging, mainLogger)
	defer shutdownTracing()

	svc, err := newService(ctx, cfg, mainLogger)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToInitDiscoveryEngine, err)
	}
	defer svc.close()

	if opts.traceFrom != "" {
		return svc.trace(ctx, os.Stdout, opts.traceFrom, opts.traceTo)
	}

	if opts.discover != "" {
		svc.seeds = splitList(opts.discover)
	}

	svc.crawlSeed = opts.crawl

	mainLogger.Info().
		Str("service", serviceName).
		Str("version", version.GetFullVersion()).
		Msg("Starting topology mapper")

	return lifecycle.Run(ctx, svc, mainLogger, shutdownTimeout)
}

// loadConfig reads the mapper config. CONFIG_SOURCE=kv pulls it from the
// NATS KV bucket named by CONFIG_KV_BUCKET on the server at NATS_URL.
func loadConfig(ctx context.Context, opts *options) (*mapper.Config, error) {
	bootLogger, err := lifecycle.CreateComponentLogger(ctx, "config", nil)
	if err != nil {
		return nil, err
	}

	loader := config.NewConfig(bootLogger)

	if strings.EqualFold(os.Getenv("CONFIG_SOURCE"), "kv") {
		url := envOr("NATS_URL", nats.DefaultURL)

		store, err := kv.NewNatsStore(ctx, url, envOr("CONFIG_KV_BUCKET", defaultConfigBucket), 0)
		if err != nil {
			// the loader falls back to the file when no store is reachable
			bootLogger.Warn().Err(err).Str("url", url).Msg("Config KV store unavailable")
		} else {
			defer func() { _ = store.Close() }()

			loader.SetKVStore(store, opts.configKey)
		}
	}

	var cfg mapper.Config

	if err := loader.LoadAndValidate(ctx, opts.configFile, &cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	return &cfg, nil
}

// initTelemetry installs the OTLP metric and trace providers and returns the
// tracer shutdown. A disabled exporter leaves the instruments as no-ops.
func initTelemetry(ctx context.Context, logCfg *logger.Config, log logger.Logger) func() {
	var otelCfg *logger.OTelConfig

	if logCfg != nil {
		otelCfg = &logCfg.OTel
	}

	_, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{ServiceName: serviceName, OTel: otelCfg})
	switch {
	case errors.Is(err, logger.ErrOTelMetricsDisabled):
		log.Debug().Msg("OTel metrics export disabled")
	case err != nil:
		log.Warn().Err(err).Msg("Failed to initialize OTel metrics")
	}

	tp, err := logger.InitializeTracing(ctx, serviceName, otelCfg)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize OTel tracing")

		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
