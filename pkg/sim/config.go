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

package sim

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Feed describes the incoming produced-water stream.
type Feed struct {
	WaterFraction  float64 `yaml:"waterFraction" json:"waterFraction"`
	OilFraction    float64 `yaml:"oilFraction" json:"oilFraction"`
	SolidsFraction float64 `yaml:"solidsFraction" json:"solidsFraction"`

	WaterDensity  float64 `yaml:"waterDensity" json:"waterDensity"`
	OilDensity    float64 `yaml:"oilDensity" json:"oilDensity"`
	SolidsDensity float64 `yaml:"solidsDensity" json:"solidsDensity"`
	// Salinity in mg/L raises the water density.
	Salinity float64 `yaml:"salinity" json:"salinity"`

	// FineDroplet is the diameter in microns of the fine oil fraction that decides water quality.
	FineDroplet float64 `yaml:"fineDroplet" json:"fineDroplet"`
	// FineFraction is the share of the oil carried in fine droplets. Coarse oil is always recovered.
	FineFraction float64 `yaml:"fineFraction" json:"fineFraction"`
	SolidsD50    float64 `yaml:"solidsD50" json:"solidsD50"`

	// WaterViscosity in mPa·s at 25 °C, falling by ViscosityTempCoeff per °C (Arrhenius form).
	WaterViscosity     float64 `yaml:"waterViscosity" json:"waterViscosity"`
	ViscosityTempCoeff float64 `yaml:"viscosityTempCoeff" json:"viscosityTempCoeff"`

	EmulsionStability  float64 `yaml:"emulsionStability" json:"emulsionStability"`
	InterfacialTension float64 `yaml:"interfacialTension" json:"interfacialTension"`
	DemulsifierDose    float64 `yaml:"demulsifierDose" json:"demulsifierDose"`
	DemulsifierEff     float64 `yaml:"demulsifierEff" json:"demulsifierEff"`
	SolidsSphericity   float64 `yaml:"solidsSphericity" json:"solidsSphericity"`
}

// Bowl is the decanter geometry in millimetres.
type Bowl struct {
	Diameter float64 `yaml:"diameter" json:"diameter"`
	Length   float64 `yaml:"length" json:"length"`
}

// Lag is a first-order actuator response: the output settles at Offset + Gain·op with time constant Tau seconds.
type Lag struct {
	Gain   float64 `yaml:"gain" json:"gain"`
	Offset float64 `yaml:"offset" json:"offset"`
	Tau    float64 `yaml:"tau" json:"tau"`
}

// Config of the driving simulation.
type Config struct {
	Seed int64 `yaml:"seed" json:"seed"`

	Heater Lag `yaml:"heater" json:"heater"`
	Drive  Lag `yaml:"drive" json:"drive"`
	Pump   Lag `yaml:"pump" json:"pump"`

	Feed Feed `yaml:"feed" json:"feed"`
	Bowl Bowl `yaml:"bowl" json:"bowl"`

	// AnalyzerPeriod is the time in seconds between two oil-in-water samples.
	AnalyzerPeriod float64 `yaml:"analyzerPeriod" json:"analyzerPeriod"`
	// InitialOIW is reported until the first sample with feed running.
	InitialOIW float64 `yaml:"initialOiw" json:"initialOiw"`
	PH         float64 `yaml:"pH" json:"pH"`
	// Noise is the relative one-sigma measurement noise.
	Noise float64 `yaml:"noise" json:"noise"`
}

// DefaultFeed is the design feed of the separation train.
func DefaultFeed() Feed {
	return Feed{
		WaterFraction:      0.75,
		OilFraction:        0.20,
		SolidsFraction:     0.05,
		WaterDensity:       1000,
		OilDensity:         890,
		SolidsDensity:      2650,
		Salinity:           35000,
		FineDroplet:        2,
		FineFraction:       1e-4,
		SolidsD50:          80,
		WaterViscosity:     1.0,
		ViscosityTempCoeff: 0.025,
		EmulsionStability:  0.3,
		InterfacialTension: 25,
		DemulsifierDose:    50,
		DemulsifierEff:     0.7,
		SolidsSphericity:   0.8,
	}
}

// DefaultConfig returns a simulation matched to the default loop tuning.
func DefaultConfig() Config {
	return Config{
		Seed:           1,
		Heater:         Lag{Gain: 0.7, Offset: 25, Tau: 60},
		Drive:          Lag{Gain: 32, Tau: 20},
		Pump:           Lag{Gain: 0.15, Tau: 5},
		Feed:           DefaultFeed(),
		Bowl:           Bowl{Diameter: 400, Length: 1100},
		AnalyzerPeriod: 30,
		InitialOIW:     25,
		PH:             7.2,
		Noise:          0.001,
	}
}

// Validate checks the model parameters.
func (c Config) Validate() error {
	for name, lag := range map[string]Lag{"heater": c.Heater, "drive": c.Drive, "pump": c.Pump} {
		if lag.Tau <= 0 || lag.Gain <= 0 {
			return fmt.Errorf("%w: %s lag needs positive gain and tau", ErrInvalidConfig, name)
		}
	}

	f := c.Feed
	if sum := f.WaterFraction + f.OilFraction + f.SolidsFraction; sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: feed fractions sum to %.3f", ErrInvalidConfig, sum)
	}

	if f.FineFraction < 0 || f.FineFraction > 1 {
		return fmt.Errorf("%w: fine fraction %.3g outside [0,1]", ErrInvalidConfig, f.FineFraction)
	}

	if f.WaterViscosity <= 0 || f.FineDroplet <= 0 || f.SolidsD50 <= 0 || f.InterfacialTension <= 0 {
		return fmt.Errorf("%w: feed properties must be positive", ErrInvalidConfig)
	}

	if c.Bowl.Diameter <= 0 || c.Bowl.Length <= 0 {
		return fmt.Errorf("%w: bowl geometry must be positive", ErrInvalidConfig)
	}

	if c.AnalyzerPeriod <= 0 {
		return fmt.Errorf("%w: analyzer period must be positive", ErrInvalidConfig)
	}

	if c.Noise < 0 {
		return fmt.Errorf("%w: negative noise", ErrInvalidConfig)
	}

	return nil
}
