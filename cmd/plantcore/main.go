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

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/united-manufacturing-hub/separation-core/pkg/api"
	"github.com/united-manufacturing-hub/separation-core/pkg/config"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/control"
	"github.com/united-manufacturing-hub/separation-core/pkg/logger"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/sentry"
)

// appVersion is set at build time with -ldflags "-X main.appVersion=<semver>".
var appVersion = constants.DefaultAppVersion

// shutdownTimeout bounds the graceful shutdown of the HTTP servers.
const shutdownTimeout = 3 * time.Second

func main() {
	logger.Initialize()

	defer func() { _ = logger.Sync() }()

	log := logger.For(logger.ComponentCore)
	log.Infof("Starting plant core %s", appVersion)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	manager := config.NewFileManager(config.PathFromEnv())

	cfg, err := config.LoadWithEnvOverrides(ctx, manager, log)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to load config from %s: %w", manager.Path(), err)
		os.Exit(1)
	}

	sentry.InitSentry(appVersion, cfg.Agent.SentryDSN, true)

	controlLoop, err := control.NewControlLoop(cfg)
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to create control loop: %w", err)
		os.Exit(1)
	}

	metricsServer := metrics.SetupMetricsEndpoint(fmt.Sprintf(":%d", cfg.Agent.MetricsPort))
	metrics.RegisterDebugProvider("plant", controlLoop)

	reporter, err := control.NewReporter(cfg.Agent.ReportSchedule, controlLoop.Snapshots())
	if err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to schedule plant summary: %w", err)
		os.Exit(1)
	}

	reporter.Start()
	defer reporter.Stop()

	apiServer := api.NewServer(controlLoop, controlLoop.Snapshots(), cfg, logger.For(logger.ComponentAPI))

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return controlLoop.Execute(groupCtx)
	})

	group.Go(func() error {
		return apiServer.Start()
	})

	group.Go(func() error {
		<-groupCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := apiServer.Stop(shutdownCtx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown operator API: %w", err)
		}

		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			sentry.ReportIssuef(sentry.IssueTypeError, log, "Failed to shutdown metrics server: %w", err)
		}

		return nil
	})

	if err := group.Wait(); err != nil {
		sentry.ReportIssuef(sentry.IssueTypeError, log, "Plant core stopped: %w", err)
	}

	log.Info("Plant core stopped")
}
