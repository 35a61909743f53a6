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

// Package pid implements the single-loop PID controller used for every slave loop of the plant.
// All operations are pure: they take a State by value and return the next State.
package pid

import (
	"math"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
)

// Mode is the operating mode of a loop.
type Mode string

const (
	ModeOff  Mode = "OFF"
	ModeMan  Mode = "MAN"
	ModeAuto Mode = "AUTO"
	ModeCas  Mode = "CAS"
)

// Valid reports whether m is one of the four loop modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeOff, ModeMan, ModeAuto, ModeCas:
		return true
	default:
		return false
	}
}

// Automatic reports whether the loop computes its own output.
func (m Mode) Automatic() bool {
	return m == ModeAuto || m == ModeCas
}

// SaturationDir tells which output limit the loop is pinned against.
type SaturationDir string

const (
	SaturationNone SaturationDir = ""
	SaturationHi   SaturationDir = "HI"
	SaturationLo   SaturationDir = "LO"
)

// FaultReason explains why a loop is faulted.
type FaultReason string

const (
	FaultNone      FaultReason = ""
	FaultInvalidPV FaultReason = "INVALID_PV"
	FaultInvalidDT FaultReason = "INVALID_DT"
)

// State is the complete dynamic state of one loop.
type State struct {
	Mode     Mode    `json:"mode"`
	PV       float64 `json:"pv"`
	SP       float64 `json:"sp"`
	SPTarget float64 `json:"spTarget"`
	OP       float64 `json:"op"`
	OPManual float64 `json:"opManual"`

	Error      float64 `json:"error"`
	Integral   float64 `json:"integral"`
	Derivative float64 `json:"derivative"`
	LastPV     float64 `json:"lastPv"`
	LastError  float64 `json:"lastError"`
	HasLastPV  bool    `json:"hasLastPv"`

	Saturated     bool          `json:"saturated"`
	SaturationDir SaturationDir `json:"saturationDir"`

	Enabled     bool        `json:"enabled"`
	Faulted     bool        `json:"faulted"`
	FaultReason FaultReason `json:"faultReason"`

	// LastUpdate is the simulated time in seconds of the last accepted step.
	LastUpdate float64 `json:"lastUpdate"`
}

// Result is the outcome of one Step.
type Result struct {
	State     State
	Output    float64
	Saturated bool
	Error     float64
}

// NewState returns a loop in MAN at the output midpoint with the setpoint at the middle of its range.
func NewState(cfg Config) State {
	op := clamp(constants.OutputBias, cfg.OPMin, cfg.OPMax)
	sp := (cfg.SPMin + cfg.SPMax) / 2

	return State{
		Mode:     ModeMan,
		PV:       sp,
		SP:       sp,
		SPTarget: sp,
		OP:       op,
		OPManual: op,
		Enabled:  true,
	}
}

// Step advances the loop by dt seconds with the measured value pv.
// Non-finite pv or non-positive dt fault the loop and hold the previous output.
func Step(state State, pv float64, cfg Config, dt float64) Result {
	s := state

	if !isFinite(pv) {
		s.Faulted = true
		s.FaultReason = FaultInvalidPV

		return hold(s)
	}

	if !isFinite(dt) || dt <= 0 {
		s.Faulted = true
		s.FaultReason = FaultInvalidDT

		return hold(s)
	}

	s.Faulted = false
	s.FaultReason = FaultNone
	s.PV = pv
	s.LastUpdate += dt

	switch {
	case !s.Enabled || s.Mode == ModeOff:
		s = stepOff(s)
	case s.Mode == ModeMan:
		s = stepManual(s, cfg)
	default:
		s = stepAutomatic(s, cfg, dt)
	}

	s.LastPV = pv
	s.HasLastPV = true

	return Result{State: s, Output: s.OP, Saturated: s.Saturated, Error: s.Error}
}

func hold(s State) Result {
	return Result{State: s, Output: s.OP, Saturated: s.Saturated, Error: s.Error}
}

func stepOff(s State) State {
	s.Integral = 0
	s.Derivative = 0
	s.Error = s.SP - s.PV
	s.LastError = s.Error
	s.Saturated = false
	s.SaturationDir = SaturationNone

	return s
}

func stepManual(s State, cfg Config) State {
	s.OP = clamp(s.OPManual, cfg.OPMin, cfg.OPMax)
	s.Error = s.SP - s.PV
	s.LastError = s.Error
	s.Derivative = 0
	s.Integral = backSolveIntegral(s.OP, cfg.Kp*s.Error, 0)
	s.Saturated = false
	s.SaturationDir = SaturationNone

	return s
}

func stepAutomatic(s State, cfg Config, dt float64) State {
	s.SP = clamp(rateLimit(s.SP, s.SPTarget, cfg.SPRateLimit*dt), cfg.SPMin, cfg.SPMax)

	e := s.SP - s.PV
	p := cfg.Kp * e

	// Derivative on measurement, so setpoint steps do not kick the output.
	dpv := 0.0
	if s.HasLastPV {
		dpv = (s.PV - s.LastPV) / dt
	}

	alpha := cfg.DerivativeFilter
	s.Derivative = finiteOr(alpha*s.Derivative+(1-alpha)*(-cfg.Kd*dpv), 0)

	windingUp := s.Saturated &&
		((s.SaturationDir == SaturationHi && e > 0) || (s.SaturationDir == SaturationLo && e < 0))
	if !windingUp {
		s.Integral += cfg.Ki * e * dt
	}

	raw := constants.OutputBias + p + s.Integral + s.Derivative
	if math.IsNaN(raw) {
		raw = s.OP
	}

	clamped := clamp(raw, cfg.OPMin, cfg.OPMax)

	switch {
	case raw > cfg.OPMax:
		s.Saturated, s.SaturationDir = true, SaturationHi
	case raw < cfg.OPMin:
		s.Saturated, s.SaturationDir = true, SaturationLo
	default:
		s.Saturated, s.SaturationDir = false, SaturationNone
	}

	if s.Saturated {
		s.Integral += cfg.AntiWindupGain * (clamped - raw) * dt
	}

	if !isFinite(s.Integral) {
		s.Integral = finiteOr(backSolveIntegral(clamped, p, s.Derivative), 0)
	}

	s.OP = clamp(rateLimit(s.OP, clamped, cfg.OPRateLimit*dt), cfg.OPMin, cfg.OPMax)
	s.Error = e
	s.LastError = e

	return s
}

// backSolveIntegral returns the integral that makes bias+P+I+D equal op.
func backSolveIntegral(op, p, d float64) float64 {
	return op - constants.OutputBias - p - d
}

// rateLimit moves from current toward target by at most maxStep. maxStep <= 0 disables the limit.
func rateLimit(current, target, maxStep float64) float64 {
	if maxStep <= 0 {
		return target
	}

	delta := target - current
	if delta > maxStep {
		return current + maxStep
	}

	if delta < -maxStep {
		return current - maxStep
	}

	return target
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}

	return math.Max(lo, math.Min(hi, v))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOr(v, fallback float64) float64 {
	if isFinite(v) {
		return v
	}

	return fallback
}
