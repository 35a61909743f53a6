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

package cascade

import (
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/separation-core/pkg/alarm"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid cascade config")

// SlaveConfig maps the master demand onto one slave loop setpoint.
type SlaveConfig struct {
	Tag   string  `yaml:"tag" json:"tag"`
	SPMin float64 `yaml:"spMin" json:"spMin"`
	SPMax float64 `yaml:"spMax" json:"spMax"`
	// MaxRatePerSec bounds the setpoint change in engineering units per second. 0 disables.
	MaxRatePerSec float64 `yaml:"maxRatePerSec" json:"maxRatePerSec"`
	// StartupSP is commanded when the slave is started by the sequence.
	StartupSP float64 `yaml:"startupSp" json:"startupSp"`
	// Inverted maps higher demand to a lower setpoint.
	Inverted bool `yaml:"inverted" json:"inverted"`
}

// Timeouts in seconds per sequence wait. 0 disables the timeout.
type Timeouts struct {
	HeaterWarmup    float64 `yaml:"heaterWarmup" json:"heaterWarmup"`
	CentrifugeStart float64 `yaml:"centrifugeStart" json:"centrifugeStart"`
	ChemistryStart  float64 `yaml:"chemistryStart" json:"chemistryStart"`
	FeedStart       float64 `yaml:"feedStart" json:"feedStart"`
	Stability       float64 `yaml:"stability" json:"stability"`
}

// Overrides holds the constraint flag thresholds and the setpoint cuts applied when they rise.
type Overrides struct {
	VibrationHigh       float64 `yaml:"vibrationHigh" json:"vibrationHigh"`
	TorqueHigh          float64 `yaml:"torqueHigh" json:"torqueHigh"`
	VibrationFlowCut    float64 `yaml:"vibrationFlowCut" json:"vibrationFlowCut"`
	VibrationSpeedCut   float64 `yaml:"vibrationSpeedCut" json:"vibrationSpeedCut"`
	TorqueFlowCut       float64 `yaml:"torqueFlowCut" json:"torqueFlowCut"`
	TempLowFlowFraction float64 `yaml:"tempLowFlowFraction" json:"tempLowFlowFraction"`
}

// Config configures the master quality loop and the start-up sequence.
type Config struct {
	// Target is the oil-in-water setpoint of the master loop in ppm.
	Target    float64 `yaml:"target" json:"target"`
	Kp        float64 `yaml:"kp" json:"kp"`
	Ki        float64 `yaml:"ki" json:"ki"`
	DemandMin float64 `yaml:"demandMin" json:"demandMin"`
	DemandMax float64 `yaml:"demandMax" json:"demandMax"`

	Temperature SlaveConfig `yaml:"temperature" json:"temperature"`
	Flow        SlaveConfig `yaml:"flow" json:"flow"`
	Speed       SlaveConfig `yaml:"speed" json:"speed"`

	MinEffectiveTemp  float64 `yaml:"minEffectiveTemp" json:"minEffectiveTemp"`
	MinOperatingSpeed float64 `yaml:"minOperatingSpeed" json:"minOperatingSpeed"`
	MinFeedFlow       float64 `yaml:"minFeedFlow" json:"minFeedFlow"`
	PHMin             float64 `yaml:"phMin" json:"phMin"`
	PHMax             float64 `yaml:"phMax" json:"phMax"`
	ChemistryEnabled  bool    `yaml:"chemistryEnabled" json:"chemistryEnabled"`

	// StabilityWindow is the trailing window in seconds a PV must stay within StabilityTolerance percent of its mean.
	StabilityWindow    float64 `yaml:"stabilityWindow" json:"stabilityWindow"`
	StabilityTolerance float64 `yaml:"stabilityTolerance" json:"stabilityTolerance"`

	Timeouts      Timeouts  `yaml:"timeouts" json:"timeouts"`
	Overrides     Overrides `yaml:"overrides" json:"overrides"`
	AlarmCapacity int       `yaml:"alarmCapacity" json:"alarmCapacity"`
}

// DefaultConfig returns the commissioning values of the plant.
func DefaultConfig() Config {
	return Config{
		Target:    15,
		Kp:        2,
		Ki:        0.1,
		DemandMin: 0,
		DemandMax: 100,
		Temperature: SlaveConfig{
			Tag: constants.LoopFeedTemp, SPMin: 60, SPMax: 80, MaxRatePerSec: 0.5, StartupSP: 70,
		},
		Flow: SlaveConfig{
			Tag: constants.LoopFeedFlow, SPMin: 4, SPMax: 12, MaxRatePerSec: 0.2, StartupSP: 8, Inverted: true,
		},
		Speed: SlaveConfig{
			Tag: constants.LoopBowlSpeed, SPMin: 2400, SPMax: 3200, MaxRatePerSec: 10, StartupSP: 2800,
		},
		MinEffectiveTemp:   60,
		MinOperatingSpeed:  2400,
		MinFeedFlow:        4,
		PHMin:              6.5,
		PHMax:              8.5,
		ChemistryEnabled:   true,
		StabilityWindow:    30,
		StabilityTolerance: 2,
		Timeouts: Timeouts{
			HeaterWarmup:    600,
			CentrifugeStart: 180,
			ChemistryStart:  300,
			FeedStart:       120,
			Stability:       300,
		},
		Overrides: Overrides{
			VibrationHigh:       3.5,
			TorqueHigh:          585,
			VibrationFlowCut:    0.20,
			VibrationSpeedCut:   100,
			TorqueFlowCut:       0.15,
			TempLowFlowFraction: 0.5,
		},
		AlarmCapacity: alarm.DefaultCapacity,
	}
}

// Validate rejects configurations the orchestrator cannot run with.
func (c Config) Validate() error {
	if c.Kp < 0 || c.Ki < 0 {
		return fmt.Errorf("%w: negative master gain", ErrInvalidConfig)
	}

	if c.DemandMin >= c.DemandMax {
		return fmt.Errorf("%w: demandMin %g >= demandMax %g", ErrInvalidConfig, c.DemandMin, c.DemandMax)
	}

	tags := map[string]struct{}{}

	for _, s := range []SlaveConfig{c.Temperature, c.Flow, c.Speed} {
		if s.Tag == "" {
			return fmt.Errorf("%w: slave without tag", ErrInvalidConfig)
		}

		if _, dup := tags[s.Tag]; dup {
			return fmt.Errorf("%w: slave tag %q used twice", ErrInvalidConfig, s.Tag)
		}

		tags[s.Tag] = struct{}{}

		if s.SPMin >= s.SPMax {
			return fmt.Errorf("%w: %s: spMin %g >= spMax %g", ErrInvalidConfig, s.Tag, s.SPMin, s.SPMax)
		}

		if s.MaxRatePerSec < 0 {
			return fmt.Errorf("%w: %s: negative rate limit", ErrInvalidConfig, s.Tag)
		}

		if s.StartupSP < s.SPMin || s.StartupSP > s.SPMax {
			return fmt.Errorf("%w: %s: startup setpoint %g outside [%g, %g]", ErrInvalidConfig, s.Tag, s.StartupSP, s.SPMin, s.SPMax)
		}
	}

	if c.PHMin >= c.PHMax {
		return fmt.Errorf("%w: phMin %g >= phMax %g", ErrInvalidConfig, c.PHMin, c.PHMax)
	}

	if c.StabilityWindow <= 0 || c.StabilityTolerance <= 0 {
		return fmt.Errorf("%w: stability window and tolerance must be positive", ErrInvalidConfig)
	}

	t := c.Timeouts
	if t.HeaterWarmup < 0 || t.CentrifugeStart < 0 || t.ChemistryStart < 0 || t.FeedStart < 0 || t.Stability < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}

	o := c.Overrides
	for _, cut := range []float64{o.VibrationFlowCut, o.TorqueFlowCut, o.TempLowFlowFraction} {
		if cut < 0 || cut > 1 {
			return fmt.Errorf("%w: override fraction %g outside [0, 1]", ErrInvalidConfig, cut)
		}
	}

	if o.VibrationSpeedCut < 0 {
		return fmt.Errorf("%w: negative speed cut", ErrInvalidConfig)
	}

	return nil
}

func (c Config) timeout(seq Sequence) float64 {
	switch seq {
	case SequenceHeaterWarmup:
		return c.Timeouts.HeaterWarmup
	case SequenceCentrifugeStart:
		return c.Timeouts.CentrifugeStart
	case SequenceChemistryStart:
		return c.Timeouts.ChemistryStart
	case SequenceFeedStart:
		return c.Timeouts.FeedStart
	case SequenceHeaterStable, SequenceCentrifugeStable, SequenceChemistryStable, SequenceFeedStable:
		return c.Timeouts.Stability
	default:
		return 0
	}
}

// Slave returns the configuration of one slave loop.
func (c Config) Slave(s Slave) SlaveConfig {
	switch s {
	case SlaveTemperature:
		return c.Temperature
	case SlaveFlow:
		return c.Flow
	default:
		return c.Speed
	}
}
