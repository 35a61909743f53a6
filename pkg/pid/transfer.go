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

// ErrUnknownMode is returned by SetMode for a mode outside OFF/MAN/AUTO/CAS.
var ErrUnknownMode = errors.New("unknown loop mode")

// SetMode switches the loop mode without a step in the output.
func SetMode(state State, mode Mode, cfg Config) (State, error) {
	if !mode.Valid() {
		return state, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	s := state
	if s.Mode == mode {
		return s, nil
	}

	switch mode {
	case ModeAuto, ModeCas:
		// Re-derive the integral from the current output so the first automatic step starts where MAN left off.
		s.Derivative = 0
		s.Integral = backSolveIntegral(s.OP, cfg.Kp*(s.SP-s.PV), 0)
		s.Saturated = false
		s.SaturationDir = SaturationNone
	case ModeMan:
		s.OPManual = s.OP
	case ModeOff:
		s.Integral = 0
		s.Derivative = 0
		s.Saturated = false
		s.SaturationDir = SaturationNone
	}

	s.Mode = mode

	return s, nil
}

// SetSetpoint commands a new setpoint target, clamped to the setpoint range.
// In AUTO and CAS the working setpoint ramps toward it; otherwise it is taken over immediately.
func SetSetpoint(state State, sp float64, cfg Config) State {
	s := state
	if !isFinite(sp) {
		return s
	}

	s.SPTarget = clamp(sp, cfg.SPMin, cfg.SPMax)

	if !s.Mode.Automatic() {
		s.SP = s.SPTarget
		if s.Mode == ModeMan {
			s.Integral = backSolveIntegral(s.OP, cfg.Kp*(s.SP-s.PV), 0)
		}
	}

	return s
}

// SetManualOutput stores the manual output. In MAN it becomes the output at once.
func SetManualOutput(state State, op float64, cfg Config) State {
	s := state
	if !isFinite(op) {
		return s
	}

	s.OPManual = clamp(op, cfg.OPMin, cfg.OPMax)

	if s.Mode == ModeMan {
		s.OP = s.OPManual
		s.Integral = backSolveIntegral(s.OP, cfg.Kp*(s.SP-s.PV), 0)
	}

	return s
}

// SetEnabled enables or disables the loop. A disabled loop holds its output like OFF.
func SetEnabled(state State, enabled bool) State {
	s := state
	s.Enabled = enabled

	if !enabled {
		s.Integral = 0
		s.Derivative = 0
	}

	return s
}
