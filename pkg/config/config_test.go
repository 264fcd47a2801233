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

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/serviceradar-mapper/pkg/devagent"
	"github.com/carverauto/serviceradar-mapper/pkg/kv"
	"github.com/carverauto/serviceradar-mapper/pkg/logger"
	"github.com/carverauto/serviceradar-mapper/pkg/mapper"
)

const sampleConfig = `{
	"max_active_jobs": 2,
	"timeout": "5s",
	"refresh_interval": "10m",
	"credentials": [{"name": "lab", "version": "v2c", "community": "s3cret"}],
	"scope": {"include": ["10.0.0.0/8"]},
	"auto_approval": {"enabled": true, "min_confidence": 0.9}
}`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mapper.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	var cfg mapper.Config

	err := NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), writeConfig(t, sampleConfig), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxActiveJobs)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 10*time.Minute, cfg.RefreshInterval)
	require.Len(t, cfg.Credentials, 1)
	assert.Equal(t, devagent.SNMPVersion("v2c"), cfg.Credentials[0].Version)
	assert.True(t, cfg.AutoApproval.Enabled)
	assert.Nil(t, cfg.Database)
}

func TestLoadValidates(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	var cfg mapper.Config

	err := NewConfig(nil).LoadAndValidate(context.Background(),
		writeConfig(t, `{"auto_approval": {"min_confidence": 1.5}}`), &cfg)
	require.ErrorIs(t, err, mapper.ErrInvalidConfidence)

	err = NewConfig(nil).LoadAndValidate(context.Background(),
		writeConfig(t, `{"scope": {"include": ["not-a-range"]}}`), &cfg)
	require.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("MAPPER_MAX_ACTIVE_JOBS", "3")
	t.Setenv("MAPPER_TIMEOUT", "750ms")
	t.Setenv("MAPPER_SCOPE_INCLUDE", "10.0.0.0/8, 192.168.0.0/16")
	t.Setenv("MAPPER_AUTO_APPROVAL_ENABLED", "true")
	t.Setenv("MAPPER_AUTO_APPROVAL_MIN_CONFIDENCE", "0.85")
	t.Setenv("MAPPER_CREDENTIALS", `[{"name":"lab","version":"v2c","community":"public"}]`)
	t.Setenv("MAPPER_DATABASE_HOST", "cnpg-rw")
	t.Setenv("MAPPER_DATABASE_MAX_CONNECTIONS", "8")
	t.Setenv("MAPPER_RETRIES", "many")

	var cfg mapper.Config

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))

	assert.Equal(t, 3, cfg.MaxActiveJobs)
	assert.Equal(t, 750*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Scope.Include)
	assert.True(t, cfg.AutoApproval.Enabled)
	assert.InDelta(t, 0.85, cfg.AutoApproval.MinConfidence, 1e-9)
	require.Len(t, cfg.Credentials, 1)
	assert.Equal(t, "public", cfg.Credentials[0].Community)
	assert.Zero(t, cfg.Retries, "unparseable values are skipped")

	require.NotNil(t, cfg.Database)
	assert.Equal(t, "cnpg-rw", cfg.Database.Host)
	assert.Equal(t, int32(8), cfg.Database.MaxConnections)
	assert.Nil(t, cfg.NATS, "untouched sections stay nil")
	assert.Nil(t, cfg.Logging)
}

func TestLoadFromEnvJSON(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "TOPO_")
	t.Setenv("TOPO_CONFIG_JSON", sampleConfig)
	t.Setenv("TOPO_MAX_ACTIVE_JOBS", "9")

	var cfg mapper.Config

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, 2, cfg.MaxActiveJobs, "CONFIG_JSON wins over individual variables")
	assert.Equal(t, 5*time.Second, cfg.Timeout)
}

func TestLoadFromKV(t *testing.T) {
	ctx := context.Background()
	t.Setenv("CONFIG_SOURCE", "kv")

	store := kv.NewMemoryStore()
	_, err := store.Put(ctx, "config/mapper", []byte(`{"max_active_jobs": 7}`))
	require.NoError(t, err)

	loader := NewConfig(logger.NewTestLogger())

	var cfg mapper.Config
	require.ErrorIs(t, loader.LoadAndValidate(ctx, "/etc/serviceradar/mapper.json", &cfg), errKVStoreNotSet)

	loader.SetKVStore(store, "")
	require.NoError(t, loader.LoadAndValidate(ctx, "/etc/serviceradar/mapper.json", &cfg))
	assert.Equal(t, 7, cfg.MaxActiveJobs)
}

func TestLoadFromKVFallsBackToFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	loader := NewConfig(logger.NewTestLogger())
	loader.SetKVStore(kv.NewMemoryStore(), "config/absent")

	var cfg mapper.Config
	require.NoError(t, loader.LoadAndValidate(context.Background(), writeConfig(t, sampleConfig), &cfg))
	assert.Equal(t, 2, cfg.MaxActiveJobs)

	err := loader.LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg)
	require.ErrorIs(t, err, errLoadConfigFailed)
	require.ErrorIs(t, err, errKVKeyNotFound)
}

func TestInvalidConfigSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg mapper.Config
	require.ErrorIs(t, NewConfig(nil).LoadAndValidate(context.Background(), "", &cfg), errInvalidConfigSource)
}

func TestEnvLoaderRejectsNonStruct(t *testing.T) {
	l := NewEnvConfigLoader(logger.NewTestLogger(), "X_")

	var n int
	require.ErrorIs(t, l.Load(context.Background(), "", &n), ErrDstMustBePointerToStruct)
	require.ErrorIs(t, l.Load(context.Background(), "", nil), ErrDstMustBeNonNilPointer)
}

func TestSanitizeForLog(t *testing.T) {
	cfg := &mapper.Config{
		Credentials: []devagent.Credentials{{Name: "lab", Community: "s3cret", AuthPassword: "hunter2"}},
	}

	out, err := SanitizeForLog(cfg)
	require.NoError(t, err)

	assert.NotContains(t, string(out), "s3cret")
	assert.NotContains(t, string(out), "hunter2")
	assert.Contains(t, string(out), `"name":"lab"`)
	assert.Contains(t, string(out), redacted)
}
