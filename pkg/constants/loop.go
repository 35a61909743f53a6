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

package constants

import "time"

const (
	// DefaultTickerTime is the wall-clock interval between two plant ticks.
	// Each tick advances the simulation by DefaultSimulationStep seconds.
	DefaultTickerTime = 100 * time.Millisecond

	// DefaultSimulationStep is the simulated time (seconds) covered by one tick.
	DefaultSimulationStep = 1.0

	// StarvationThreshold defines when to consider the tick loop starved.
	// If no tick has completed for this duration, the starvation
	// detector will log warnings and record metrics.
	StarvationThreshold = 15 * time.Second

	// TickOverrunFactor is the multiple of the ticker time above which a tick
	// is reported as an error instead of a warning.
	TickOverrunFactor = 2

	// CommandQueueSize bounds operator commands waiting for the next tick.
	CommandQueueSize = 64

	// CommandTimeout is how long an operator command waits for the tick loop to pick it up.
	CommandTimeout = 5 * time.Second

	// DefaultReportSchedule is the cron schedule of the periodic plant summary.
	DefaultReportSchedule = "@every 1m"

	// DefaultMetricsPort exposes /metrics.
	DefaultMetricsPort = 8080

	// DefaultAPIPort exposes the operator API.
	DefaultAPIPort = 8081

	// DefaultConfigPath is where the plant configuration is read from.
	DefaultConfigPath = "/data/plant.yaml"

	// DefaultAppVersion is the version reported when the binary is built without ldflags.
	DefaultAppVersion = "0.0.0-dev"

	// DefaultProductionEnvironment and DefaultDevelopmentEnvironment are reported to sentry.
	DefaultProductionEnvironment  = "production"
	DefaultDevelopmentEnvironment = "development"
)
