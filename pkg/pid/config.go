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

package pid

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid loop configuration")

// Config is the immutable tuning and range configuration of one loop.
type Config struct {
	Tag string `yaml:"tag" json:"tag"`

	Kp float64 `yaml:"kp" json:"kp"`
	Ki float64 `yaml:"ki" json:"ki"`
	Kd float64 `yaml:"kd" json:"kd"`

	PVMin float64 `yaml:"pvMin" json:"pvMin"`
	PVMax float64 `yaml:"pvMax" json:"pvMax"`
	SPMin float64 `yaml:"spMin" json:"spMin"`
	SPMax float64 `yaml:"spMax" json:"spMax"`
	OPMin float64 `yaml:"opMin" json:"opMin"`
	OPMax float64 `yaml:"opMax" json:"opMax"`

	// AntiWindupGain is the back-calculation gain applied while the output is saturated.
	AntiWindupGain float64 `yaml:"antiWindupGain" json:"antiWindupGain"`
	// DerivativeFilter is the exponential filter coefficient of the derivative term, in [0,1).
	DerivativeFilter float64 `yaml:"derivativeFilter" json:"derivativeFilter"`
	// SPRateLimit is the maximum setpoint change in engineering units per second. 0 disables.
	SPRateLimit float64 `yaml:"spRateLimit" json:"spRateLimit"`
	// OPRateLimit is the maximum output change in percent per second. 0 disables.
	OPRateLimit float64 `yaml:"opRateLimit" json:"opRateLimit"`
}

// Validate checks the configuration for values the loop cannot operate with.
func (c Config) Validate() error {
	if c.Tag == "" {
		return fmt.Errorf("%w: empty tag", ErrInvalidConfig)
	}

	if c.OPMin >= c.OPMax {
		return fmt.Errorf("%w: %s: opMin %g must be below opMax %g", ErrInvalidConfig, c.Tag, c.OPMin, c.OPMax)
	}

	if c.SPMin > c.SPMax {
		return fmt.Errorf("%w: %s: spMin %g exceeds spMax %g", ErrInvalidConfig, c.Tag, c.SPMin, c.SPMax)
	}

	if c.PVMin > c.PVMax {
		return fmt.Errorf("%w: %s: pvMin %g exceeds pvMax %g", ErrInvalidConfig, c.Tag, c.PVMin, c.PVMax)
	}

	if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 || c.AntiWindupGain < 0 {
		return fmt.Errorf("%w: %s: gains must not be negative", ErrInvalidConfig, c.Tag)
	}

	if c.DerivativeFilter < 0 || c.DerivativeFilter >= 1 {
		return fmt.Errorf("%w: %s: derivative filter %g outside [0,1)", ErrInvalidConfig, c.Tag, c.DerivativeFilter)
	}

	if c.SPRateLimit < 0 || c.OPRateLimit < 0 {
		return fmt.Errorf("%w: %s: rate limits must not be negative", ErrInvalidConfig, c.Tag)
	}

	return nil
}
