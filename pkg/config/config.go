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

// Package config loads the plant configuration from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
	"github.com/united-manufacturing-hub/separation-core/pkg/sim"
)

// ErrInvalidConfig is returned by FullConfig.Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// AgentConfig holds the host settings of the plant core process.
type AgentConfig struct {
	MetricsPort int `yaml:"metricsPort" json:"metricsPort"`
	APIPort     int `yaml:"apiPort" json:"apiPort"`
	// TickInterval is the wall-clock time between two ticks.
	TickInterval time.Duration `yaml:"tickInterval" json:"tickInterval"`
	// SimulationStep is the simulated time in seconds advanced by one tick.
	SimulationStep float64 `yaml:"simulationStep" json:"simulationStep"`
	SentryDSN      string  `yaml:"sentryDsn,omitempty" json:"-"`
	ReportSchedule string  `yaml:"reportSchedule" json:"reportSchedule"`
	// AutoStart starts the cascade start-up sequence right after boot.
	AutoStart bool `yaml:"autoStart" json:"autoStart"`
}

// FullConfig is the complete configuration file.
type FullConfig struct {
	Agent      AgentConfig  `yaml:"agent" json:"agent"`
	Plant      plant.Config `yaml:",inline" json:"plant"`
	Simulation sim.Config   `yaml:"simulation" json:"simulation"`
}

// DefaultAgentConfig returns the built-in host settings.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MetricsPort:    constants.DefaultMetricsPort,
		APIPort:        constants.DefaultAPIPort,
		TickInterval:   constants.DefaultTickerTime,
		SimulationStep: constants.DefaultSimulationStep,
		ReportSchedule: constants.DefaultReportSchedule,
	}
}

// Default returns the configuration used when no file exists.
func Default() FullConfig {
	return FullConfig{
		Agent:      DefaultAgentConfig(),
		Plant:      plant.DefaultConfig(),
		Simulation: sim.DefaultConfig(),
	}
}

// Clone creates a deep copy of FullConfig.
func (c FullConfig) Clone() FullConfig {
	var clone FullConfig
	_ = deepcopy.Copy(&clone, &c)

	return clone
}

// Validate checks every section.
func (c FullConfig) Validate() error {
	if err := c.Agent.Validate(); err != nil {
		return err
	}

	if err := c.Plant.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	if err := c.Simulation.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	return nil
}

// Validate checks the host settings.
func (a AgentConfig) Validate() error {
	for name, port := range map[string]int{"metricsPort": a.MetricsPort, "apiPort": a.APIPort} {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("%w: %s %d outside 1-65535", ErrInvalidConfig, name, port)
		}
	}

	if a.MetricsPort == a.APIPort {
		return fmt.Errorf("%w: metrics and api share port %d", ErrInvalidConfig, a.APIPort)
	}

	if a.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	}

	if !(a.SimulationStep > 0) {
		return fmt.Errorf("%w: simulation step must be positive", ErrInvalidConfig)
	}

	if _, err := cron.ParseStandard(a.ReportSchedule); err != nil {
		return fmt.Errorf("%w: report schedule %q: %w", ErrInvalidConfig, a.ReportSchedule, err)
	}

	return nil
}
