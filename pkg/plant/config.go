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

package plant

import (
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/integrity"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid plant config")

// LoopConfig binds a PID loop to the snapshot variable it controls.
type LoopConfig struct {
	pid.Config `yaml:",inline"`
	PV         string `yaml:"pv" json:"pv"`
}

// Config is everything a Core is built from.
type Config struct {
	Loops       []LoopConfig            `yaml:"loops" json:"loops"`
	Cascade     cascade.Config          `yaml:"cascade" json:"cascade"`
	Constraints []constraint.Constraint `yaml:"constraints" json:"constraints"`
	Interlocks  []constraint.Interlock  `yaml:"interlocks" json:"interlocks"`
	Gates       []integrity.GateSpec    `yaml:"gates" json:"gates"`
}

// DefaultLoops returns the tuned slave loops of the plant.
func DefaultLoops() []LoopConfig {
	return []LoopConfig{
		{
			Config: pid.Config{
				Tag: constants.LoopFeedTemp, Kp: 1.4, Ki: 0.025, Kd: 0,
				PVMin: 0, PVMax: 120, SPMin: 20, SPMax: 85, OPMin: 0, OPMax: 100,
				AntiWindupGain: 0.5, DerivativeFilter: 0.5, SPRateLimit: 1, OPRateLimit: 10,
			},
			PV: constants.VarFeedTemp,
		},
		{
			Config: pid.Config{
				Tag: constants.LoopFeedFlow, Kp: 3.3, Ki: 0.6, Kd: 0,
				PVMin: 0, PVMax: 20, SPMin: 0, SPMax: constants.MaxFeedFlowM3H, OPMin: 0, OPMax: 100,
				AntiWindupGain: 0.5, DerivativeFilter: 0.5, SPRateLimit: 0.5, OPRateLimit: 20,
			},
			PV: constants.VarFeedFlow,
		},
		{
			Config: pid.Config{
				Tag: constants.LoopBowlSpeed, Kp: 0.03, Ki: 0.0015, Kd: 0,
				PVMin: 0, PVMax: 3500, SPMin: 0, SPMax: constants.MaxBowlSpeedRPM, OPMin: 0, OPMax: 100,
				AntiWindupGain: 0.5, DerivativeFilter: 0.5, SPRateLimit: 50, OPRateLimit: 10,
			},
			PV: constants.VarBowlSpeed,
		},
	}
}

// DefaultConfig returns the commissioning configuration of the plant.
func DefaultConfig() Config {
	return Config{
		Loops:       DefaultLoops(),
		Cascade:     cascade.DefaultConfig(),
		Constraints: constraint.DefaultConstraints(),
		Interlocks:  constraint.DefaultInterlocks(),
		Gates:       integrity.DefaultGateSpecs(),
	}
}

// Validate checks every section and the references between them.
func (c Config) Validate() error {
	tags := map[string]struct{}{}

	for _, l := range c.Loops {
		if err := l.Config.Validate(); err != nil {
			return errors.Join(ErrInvalidConfig, err)
		}

		if _, dup := tags[l.Tag]; dup {
			return fmt.Errorf("%w: loop %q defined twice", ErrInvalidConfig, l.Tag)
		}

		if l.PV == "" {
			return fmt.Errorf("%w: loop %q has no pv variable", ErrInvalidConfig, l.Tag)
		}

		tags[l.Tag] = struct{}{}
	}

	if err := c.Cascade.Validate(); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	for _, slave := range cascade.Slaves {
		tag := c.Cascade.Slave(slave).Tag
		if _, ok := tags[tag]; !ok {
			return fmt.Errorf("%w: cascade %s slave %q is not a configured loop", ErrInvalidConfig, slave, tag)
		}
	}

	if err := constraint.ValidateRules(c.Constraints, c.Interlocks); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	if _, err := integrity.NewGates(c.Gates); err != nil {
		return errors.Join(ErrInvalidConfig, err)
	}

	return nil
}
