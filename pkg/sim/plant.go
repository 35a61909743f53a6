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

// Package sim is the driving simulation of the separation train: first-order heater, bowl drive
// and feed pump responses, and a Stokes/sigma separation model that produces the water quality.
package sim

import (
	"math"
	"math/rand"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/integrity"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
)

// Actuators are the controller outputs in percent driving the plant.
type Actuators struct {
	Heater float64 `json:"heater"`
	Drive  float64 `json:"drive"`
	Pump   float64 `json:"pump"`
}

// ActuatorsFrom reads the slave loop outputs of a tick.
func ActuatorsFrom(out plant.Outputs) Actuators {
	return Actuators{
		Heater: out.Output(constants.LoopFeedTemp),
		Drive:  out.Output(constants.LoopBowlSpeed),
		Pump:   out.Output(constants.LoopFeedFlow),
	}
}

// State is the true process state, before measurement noise.
type State struct {
	Time       float64    `json:"time"`
	FeedTemp   float64    `json:"feedTemp"`
	BowlSpeed  float64    `json:"bowlSpeed"`
	FeedFlow   float64    `json:"feedFlow"`
	Separation Separation `json:"separation"`
	// OIW is the last analyzer sample.
	OIW          float64 `json:"oiw"`
	SinceSample  float64 `json:"sinceSample"`
	AnalyzerDown bool    `json:"analyzerDown"`
}

// Plant advances the process one step at a time. It is not safe for concurrent use.
type Plant struct {
	cfg   Config
	rng   *rand.Rand
	state State
}

// New returns a cold, stopped plant.
func New(cfg Config) (*Plant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Plant{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		state: State{
			FeedTemp: cfg.Heater.Offset,
			OIW:      cfg.InitialOIW,
		},
	}, nil
}

// State returns the true process state.
func (p *Plant) State() State {
	return p.state
}

// SetAnalyzerHealthy raises or clears the oil-in-water analyzer fault flag.
func (p *Plant) SetAnalyzerHealthy(healthy bool) {
	p.state.AnalyzerDown = !healthy
}

// Step advances the plant by dt seconds. The enforced limits act on the actuators:
// a heater trip forces the heater off, speed and feed caps bound the settling values.
func (p *Plant) Step(act Actuators, limits constraint.Limits, dt float64) plant.Readings {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return p.Readings()
	}

	s := p.state
	s.Time += dt

	heater := act.Heater
	if limits.HeaterOff {
		heater = 0
	}

	s.FeedTemp = lag(s.FeedTemp, settle(p.cfg.Heater, heater), p.cfg.Heater.Tau, dt)
	s.BowlSpeed = lag(s.BowlSpeed, limits.ClampSpeed(settle(p.cfg.Drive, act.Drive)), p.cfg.Drive.Tau, dt)
	s.FeedFlow = lag(s.FeedFlow, limits.ClampFeedRate(settle(p.cfg.Pump, act.Pump)), p.cfg.Pump.Tau, dt)
	s.Separation = Separate(p.cfg.Feed, p.cfg.Bowl, s.FeedTemp, s.BowlSpeed, s.FeedFlow)

	s.SinceSample += dt
	if s.SinceSample >= p.cfg.AnalyzerPeriod {
		s.SinceSample = 0

		if s.FeedFlow > 0.1 {
			s.OIW = s.Separation.OIW
		}

		s.OIW = math.Max(0, p.noisy(s.OIW))
	}

	p.state = s

	return p.Readings()
}

// Readings returns the measured values of the current state.
func (p *Plant) Readings() plant.Readings {
	s := p.state
	sep := s.Separation
	power := integrity.ExpectedPower(s.BowlSpeed) + 0.3*s.FeedFlow

	healthy := 1.0
	if s.AnalyzerDown {
		healthy = 0
	}

	return plant.Readings{
		constants.VarFeedTemp:     p.noisy(s.FeedTemp),
		constants.VarFeedFlow:     p.noisy(s.FeedFlow),
		constants.VarFeedPressure: p.noisy(150 + 10*s.FeedFlow),
		constants.VarBowlSpeed:    p.noisy(s.BowlSpeed),
		constants.VarDifferential: p.noisy(10 + 0.25*s.FeedFlow),
		constants.VarVibration:    p.noisy(1 + s.BowlSpeed/2000),
		constants.VarTorque:       p.noisy(200 + 25*s.FeedFlow),
		constants.VarBearingTemp:  p.noisy(40 + s.BowlSpeed/100),
		constants.VarMotorTemp:    p.noisy(45 + power/2),
		constants.VarPondDepth:    p.noisy(135),
		constants.VarPower:        p.noisy(power),
		constants.VarOIW:          s.OIW,
		constants.VarOIWValid:     healthy,
		constants.VarPH:           p.noisy(p.cfg.PH),
		constants.VarOilOut:       p.noisy(sep.OilOut),
		constants.VarWaterOut:     p.noisy(sep.WaterOut),
		constants.VarSolidsOut:    p.noisy(sep.SolidsOut),
	}
}

func (p *Plant) noisy(v float64) float64 {
	if p.cfg.Noise == 0 {
		return v
	}

	return v * (1 + p.cfg.Noise*p.rng.NormFloat64())
}

func settle(l Lag, op float64) float64 {
	return l.Offset + l.Gain*clamp(op, 0, 100)
}

// lag moves x towards target with time constant tau, exactly for a constant target over dt.
func lag(x, target, tau, dt float64) float64 {
	return target + (x-target)*math.Exp(-dt/tau)
}
