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
	"encoding/json"
	"fmt"
	"time"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/models"
	"github.com/carverauto/serviceradar-mapper/pkg/scope"
)

const (
	defaultMaxActiveJobs           = 4
	defaultInspectWorkers          = 16
	defaultMaxAlternateCredentials = 3
	defaultMaxLogEntries           = 500
	defaultPingsPerSecond          = 200
	defaultLivenessTimeout         = 2 * time.Second
	defaultSNMPTimeout             = 3 * time.Second
	defaultSNMPRetries             = 1
	defaultCrawlMaxDepth           = 3
	defaultCrawlMaxNodes           = 256
	defaultRefreshInterval         = 15 * time.Minute
	defaultRefreshWorkers          = 4
	defaultLeaseTTL                = 5 * time.Minute
	defaultResultRetention         = 24 * time.Hour
	defaultCandidateRetention      = 7 * 24 * time.Hour
	defaultMinApprovalConfidence   = 0.8

	defaultConcurrencyMultiplier = 2
)

// AutoApprovalPolicy gates promotion of candidates into managed nodes.
type AutoApprovalPolicy struct {
	Enabled          bool    `json:"enabled"`
	MinConfidence    float64 `json:"min_confidence"`
	RequireReachable bool    `json:"require_reachable"`
}

// Allows reports whether c may be promoted without an operator.
func (p AutoApprovalPolicy) Allows(c *models.Candidate) bool {
	if !p.Enabled || c.Status != models.CandidateNew {
		return false
	}

	if c.VendorConfidence < p.MinConfidence {
		return false
	}

	if p.RequireReachable && !c.Reachable {
		return false
	}

	return !c.HasBlockingIssue()
}

// Config configures the discovery engine, crawler and refresh loop.
type Config struct {
	MaxActiveJobs           int                    `json:"max_active_jobs"`
	InspectWorkers          int                    `json:"inspect_workers"`
	SweepWorkersPerCPU      int                    `json:"sweep_workers_per_cpu"`
	MaxTargets              int                    `json:"max_targets"`
	MaxAlternateCredentials int                    `json:"max_alternate_credentials"`
	MaxLogEntries           int                    `json:"max_log_entries"`
	PingsPerSecond          int                    `json:"pings_per_second"`
	LivenessTimeout         time.Duration          `json:"liveness_timeout"`
	Timeout                 time.Duration          `json:"timeout"`
	Retries                 int                    `json:"retries"`
	CrawlDispatchDelay      time.Duration          `json:"crawl_dispatch_delay"`
	CrawlMaxDepth           int                    `json:"crawl_max_depth"`
	CrawlMaxNodes           int                    `json:"crawl_max_nodes"`
	RefreshInterval         time.Duration          `json:"refresh_interval"`
	RefreshWorkers          int                    `json:"refresh_workers"`
	LeaseTTL                time.Duration          `json:"lease_ttl"`
	ResultRetention         time.Duration          `json:"result_retention"`
	CandidateRetention      time.Duration          `json:"candidate_retention"`
	ChassisMarkers          []string               `json:"chassis_markers,omitempty"`
	AutoApproval            AutoApprovalPolicy     `json:"auto_approval"`
	Credentials             []devagent.Credentials `json:"credentials"`
	Scope                   scope.Config           `json:"scope"`
	Database                *models.DatabaseConfig `json:"database,omitempty"`
	NATS                    *models.NATSConfig     `json:"nats,omitempty"`
	Logging                 *logger.Config         `json:"logging,omitempty"`
}

// Validate reports settings NewDiscoveryEngine would reject.
func (c *Config) Validate() error {
	if err := validateConfig(c); err != nil {
		return err
	}

	if _, err := scope.NewFilter(c.Scope); err != nil {
		return fmt.Errorf("scope: %w", err)
	}

	return nil
}

// ApplyDefaults fills every unset limit, timeout and interval with the value
// NewDiscoveryEngine would use.
func (c *Config) ApplyDefaults() {
	applyDefaults(c)
}

// UnmarshalJSON reads durations as "30s" style strings.
func (c *Config) UnmarshalJSON(data []byte) error {
	type Alias Config

	aux := &struct {
		LivenessTimeout    string `json:"liveness_timeout"`
		Timeout            string `json:"timeout"`
		CrawlDispatchDelay string `json:"crawl_dispatch_delay"`
		RefreshInterval    string `json:"refresh_interval"`
		LeaseTTL           string `json:"lease_ttl"`
		ResultRetention    string `json:"result_retention"`
		CandidateRetention string `json:"candidate_retention"`
		*Alias
	}{
		Alias: (*Alias)(c),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"liveness_timeout", aux.LivenessTimeout, &c.LivenessTimeout},
		{"timeout", aux.Timeout, &c.Timeout},
		{"crawl_dispatch_delay", aux.CrawlDispatchDelay, &c.CrawlDispatchDelay},
		{"refresh_interval", aux.RefreshInterval, &c.RefreshInterval},
		{"lease_ttl", aux.LeaseTTL, &c.LeaseTTL},
		{"result_retention", aux.ResultRetention, &c.ResultRetention},
		{"candidate_retention", aux.CandidateRetention, &c.CandidateRetention},
	}

	for _, d := range durations {
		if d.value == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s format: %w", d.name, err)
		}

		*d.dst = parsed
	}

	return nil
}

// MarshalJSON writes durations back in the form UnmarshalJSON reads.
func (c *Config) MarshalJSON() ([]byte, error) {
	type Alias Config

	return json.Marshal(&struct {
		LivenessTimeout    string `json:"liveness_timeout"`
		Timeout            string `json:"timeout"`
		CrawlDispatchDelay string `json:"crawl_dispatch_delay"`
		RefreshInterval    string `json:"refresh_interval"`
		LeaseTTL           string `json:"lease_ttl"`
		ResultRetention    string `json:"result_retention"`
		CandidateRetention string `json:"candidate_retention"`
		*Alias
	}{
		LivenessTimeout:    c.LivenessTimeout.String(),
		Timeout:            c.Timeout.String(),
		CrawlDispatchDelay: c.CrawlDispatchDelay.String(),
		RefreshInterval:    c.RefreshInterval.String(),
		LeaseTTL:           c.LeaseTTL.String(),
		ResultRetention:    c.ResultRetention.String(),
		CandidateRetention: c.CandidateRetention.String(),
		Alias:              (*Alias)(c),
	})
}

// DiscoveryParams describes one discovery job.
type DiscoveryParams struct {
	Seeds []string `json:"seeds"`
	// Credentials overrides the configured profiles; the first entry is primary.
	Credentials []devagent.Credentials `json:"credentials,omitempty"`
	Scope       *scope.Config          `json:"scope,omitempty"`
}

// CrawlParams describes one neighbor crawl. A nil MaxDepth or a zero MaxNodes
// uses the configured default; MaxDepth 0 collects the seed only.
type CrawlParams struct {
	SeedNodeID  models.NodeID          `json:"seed_node_id,omitempty"`
	SeedAddress string                 `json:"seed_address,omitempty"`
	MaxDepth    *int                   `json:"max_depth,omitempty"`
	MaxNodes    int                    `json:"max_nodes"`
	Credentials []devagent.Credentials `json:"credentials,omitempty"`
	Scope       *scope.Config          `json:"scope,omitempty"`
}

// CrawlResult summarizes a finished crawl.
type CrawlResult struct {
	Visited           int  `json:"visited"`
	EdgesSeen         int  `json:"edges_seen"`
	CandidatesCreated int  `json:"candidates_created"`
	CapHit            bool `json:"cap_hit"`
	Pending           int  `json:"pending"`
}
