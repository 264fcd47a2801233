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

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDebugOverridesLevel(t *testing.T) {
	err := Init(context.Background(), &Config{Level: "error", Debug: true, Output: "stdout"})
	require.NoError(t, err)

	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	err := Init(context.Background(), &Config{Level: "chatty"})
	assert.Error(t, err)
}

func TestSetDebug(t *testing.T) {
	SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, GetLogger().GetLevel())

	SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, GetLogger().GetLevel())
}

func TestZerologWithComponent(t *testing.T) {
	var buf bytes.Buffer

	l := New(zerolog.New(&buf))
	child := l.WithComponent("crawler")
	child.Info().Msg("hello")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))

	assert.Equal(t, "crawler", entry["component"])
	assert.Equal(t, "hello", entry["message"])
}

func TestZerologSetDebug(t *testing.T) {
	l := New(zerolog.New(&bytes.Buffer{}).Level(zerolog.WarnLevel))

	l.SetDebug(true)
	assert.Equal(t, zerolog.DebugLevel, l.GetLevel())

	l.SetDebug(false)
	assert.Equal(t, zerolog.InfoLevel, l.GetLevel())
}

func TestDurationUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "string", input: `"5s"`, want: 5 * time.Second},
		{name: "nanoseconds", input: `1000000`, want: time.Millisecond},
		{name: "bad string", input: `"soon"`, wantErr: true},
		{name: "bool", input: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Duration

			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, time.Duration(d))
		})
	}
}

func TestMultiWriterFansOut(t *testing.T) {
	var a, b bytes.Buffer

	n, err := NewMultiWriter(&a, &b).Write([]byte("line\n"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, "line\n", a.String())
	assert.Equal(t, "line\n", b.String())
}

func TestNewOTELWriterRequiresEndpoint(t *testing.T) {
	_, err := NewOTELWriter(context.Background(), OTelConfig{Enabled: true})
	require.ErrorIs(t, err, ErrOTelEndpointRequired)

	_, err = NewOTELWriter(context.Background(), OTelConfig{})
	require.ErrorIs(t, err, ErrOTelLoggingDisabled)
}

func TestInitializeMetricsDisabled(t *testing.T) {
	_, err := InitializeMetrics(context.Background(), MetricsConfig{})
	require.ErrorIs(t, err, ErrOTelMetricsDisabled)
}
