// Copyright 2025 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/separation-core/pkg/sentry"
)

// ApplyEnv overrides host settings from the environment. Unset variables keep the
// file value; unparsable ones are reported and ignored.
//
// Recognised variables: METRICS_PORT, API_PORT, TICK_INTERVAL_MS, SIM_DT_SECONDS,
// SENTRY_DSN, REPORT_SCHEDULE, AUTO_START.
func ApplyEnv(cfg FullConfig, log *zap.SugaredLogger) FullConfig {
	out := cfg.Clone()
	a := &out.Agent

	if v, ok := envInt("METRICS_PORT", log); ok {
		a.MetricsPort = v
	}

	if v, ok := envInt("API_PORT", log); ok {
		a.APIPort = v
	}

	if v, ok := envInt("TICK_INTERVAL_MS", log); ok {
		a.TickInterval = time.Duration(v) * time.Millisecond
	}

	if v, ok := lookup("SIM_DT_SECONDS"); ok {
		dt, err := strconv.ParseFloat(v, 64)
		if err != nil {
			sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to parse SIM_DT_SECONDS %q: %w", v, err)
		} else {
			a.SimulationStep = dt
		}
	}

	if v, ok := lookup("SENTRY_DSN"); ok {
		a.SentryDSN = v
	}

	if v, ok := lookup("REPORT_SCHEDULE"); ok {
		a.ReportSchedule = v
	}

	if v, ok := lookup("AUTO_START"); ok {
		start, err := strconv.ParseBool(v)
		if err != nil {
			sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to parse AUTO_START %q: %w", v, err)
		} else {
			a.AutoStart = start
		}
	}

	return out
}

// LoadWithEnvOverrides loads the config file and applies the environment on top.
//
// Order of precedence (highest to lowest):
// 1. Environment variables
// 2. Config file values
// 3. Default values
func LoadWithEnvOverrides(ctx context.Context, m *FileManager, log *zap.SugaredLogger) (FullConfig, error) {
	cfg, err := m.Load(ctx)
	if err != nil {
		return FullConfig{}, err
	}

	cfg = ApplyEnv(cfg, log)
	if err := cfg.Validate(); err != nil {
		return FullConfig{}, fmt.Errorf("after environment overrides: %w", err)
	}

	return cfg, nil
}

func lookup(key string) (string, bool) {
	v := os.Getenv(key)

	return v, v != ""
}

func envInt(key string, log *zap.SugaredLogger) (int, bool) {
	v, ok := lookup(key)
	if !ok {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeWarning, log, "Failed to parse %s %q: %w", key, v, err)

		return 0, false
	}

	return n, true
}
