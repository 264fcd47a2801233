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

package lifecycle

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/carverauto/serviceradar-mapper/pkg/logger"
)

// CreateLogger builds an injectable logger without touching the global one.
// If config is nil the environment defaults are used.
func CreateLogger(ctx context.Context, config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	level, err := config.ParseLevel()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	output, err := config.Writer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.New(zerolog.New(output).Level(level).With().Timestamp().Logger()), nil
}

// CreateComponentLogger creates a logger tagged with a component field.
func CreateComponentLogger(ctx context.Context, component string, config *logger.Config) (logger.Logger, error) {
	base, err := CreateLogger(ctx, config)
	if err != nil {
		return nil, err
	}

	return logger.New(base.WithComponent(component)), nil
}

// ShutdownLogger shuts down the logger, flushing any pending logs.
func ShutdownLogger() error {
	return logger.Shutdown()
}
