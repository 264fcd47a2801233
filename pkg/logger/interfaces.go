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
	"io"

	"github.com/rs/zerolog"
)

// Logger is the logging surface injected into every mapper component.
type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	WithFields(fields map[string]interface{}) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// Zerolog adapts a zerolog.Logger value to Logger.
type Zerolog struct {
	zerolog.Logger
}

// New wraps l so it satisfies Logger.
func New(l zerolog.Logger) *Zerolog {
	return &Zerolog{Logger: l}
}

func (z *Zerolog) WithComponent(component string) zerolog.Logger {
	return z.Logger.With().Str("component", component).Logger()
}

func (z *Zerolog) WithFields(fields map[string]interface{}) zerolog.Logger {
	return z.Logger.With().Fields(fields).Logger()
}

func (z *Zerolog) SetLevel(level zerolog.Level) {
	z.Logger = z.Logger.Level(level)
}

func (z *Zerolog) SetDebug(debug bool) {
	if debug {
		z.SetLevel(zerolog.DebugLevel)
		return
	}

	z.SetLevel(zerolog.InfoLevel)
}

// NewTestLogger creates a no-op logger for testing that discards all output
func NewTestLogger() Logger {
	return New(zerolog.New(io.Discard).Level(zerolog.Disabled))
}
