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

package constraint

import (
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
)

// Interlock thresholds above the nameplate limits.
const (
	VibrationTripMMS      = 7.1
	MotorOverTempTripC    = 90.0
	FeedPressureHystKPa   = 20.0
	FeedPressureResetSecs = 30.0
)

func ptr(v float64) *float64 {
	return &v
}

// DefaultConstraints returns the nameplate protection rules of the decanter train.
func DefaultConstraints() []Constraint {
	return []Constraint{
		{ID: "C-BOWL-SPEED-MAX", Variable: constants.VarBowlSpeed, Severity: SeverityHard, Max: ptr(constants.MaxBowlSpeedRPM), Unit: "rpm", Action: ActionAlarmOnly},
		{ID: "C-BOWL-SPEED-MIN", Variable: constants.VarBowlSpeed, Severity: SeveritySoft, Min: ptr(constants.MinBowlSpeedRPM), Unit: "rpm", Action: ActionAlarmOnly, Bypassable: true},
		{ID: "C-DIFFERENTIAL-MAX", Variable: constants.VarDifferential, Severity: SeverityHard, Max: ptr(constants.MaxDifferentialRPM), Unit: "rpm", Action: ActionAlarmOnly},
		{ID: "C-TORQUE-MAX", Variable: constants.VarTorque, Severity: SeverityHard, Max: ptr(constants.MaxTorqueNm), Unit: "Nm", Action: ActionStopFeed},
		{ID: "C-VIBRATION-MAX", Variable: constants.VarVibration, Severity: SeverityHard, Max: ptr(constants.MaxVibrationMMS), Unit: "mm/s", Action: ActionReduceSpeed},
		{ID: "C-BEARING-TEMP-MAX", Variable: constants.VarBearingTemp, Severity: SeverityTrip, Max: ptr(constants.MaxBearingTempC), Unit: "°C", Action: ActionStopCentrifuge},
		{ID: "C-MOTOR-TEMP-MAX", Variable: constants.VarMotorTemp, Severity: SeverityHard, Max: ptr(constants.MaxMotorTempC), Unit: "°C", Action: ActionReduceSpeed},
		{ID: "C-FEED-FLOW-MAX", Variable: constants.VarFeedFlow, Severity: SeverityHard, Max: ptr(constants.MaxFeedFlowM3H), Unit: "m³/h", Action: ActionAlarmOnly},
		{ID: "C-FEED-TEMP-MIN", Variable: constants.VarFeedTemp, Severity: SeveritySoft, Min: ptr(constants.MinFeedTempC), Unit: "°C", Action: ActionAlarmOnly, Bypassable: true},
		{ID: "C-FEED-TEMP-MAX", Variable: constants.VarFeedTemp, Severity: SeverityHard, Max: ptr(constants.MaxFeedTempC), Unit: "°C", Action: ActionTripHeater},
		{ID: "C-FEED-PRESSURE-MAX", Variable: constants.VarFeedPressure, Severity: SeverityHard, Max: ptr(constants.MaxFeedPressureKPa), Unit: "kPa", Action: ActionAlarmOnly},
		{ID: "C-POND-DEPTH", Variable: constants.VarPondDepth, Severity: SeveritySoft, Min: ptr(constants.MinPondDepthMM), Max: ptr(constants.MaxPondDepthMM), Unit: "mm", Action: ActionAlarmOnly, Bypassable: true},
		{ID: "C-POWER-MAX", Variable: constants.VarPower, Severity: SeverityHard, Max: ptr(constants.MaxMotorPowerKW), Unit: "kW", Action: ActionReduceSpeed},
	}
}

// DefaultInterlocks returns the hard-wired interlocks of the decanter train.
func DefaultInterlocks() []Interlock {
	return []Interlock{
		{
			ID:   "IL-VIBRATION-TRIP",
			Type: InterlockTrip,
			Conditions: []Condition{
				{Variable: constants.VarVibration, Operator: OpGreater, Threshold: VibrationTripMMS, Hysteresis: 0.5},
			},
			Logic:         LogicAnd,
			Action:        ActionStopCentrifuge,
			Active:        true,
			ResetRequired: true,
		},
		{
			// Feed is only permitted once the bowl is up to operating speed.
			ID:   "IL-FEED-PERMISSIVE",
			Type: InterlockPermissive,
			Conditions: []Condition{
				{Variable: constants.VarBowlSpeed, Operator: OpLess, Threshold: constants.MinBowlSpeedRPM, Hysteresis: 50},
			},
			Logic:  LogicAnd,
			Action: ActionStopFeed,
			Active: true,
		},
		{
			ID:   "IL-FEED-PRESSURE-HIGH",
			Type: InterlockSafety,
			Conditions: []Condition{
				{Variable: constants.VarFeedPressure, Operator: OpGreater, Threshold: constants.MaxFeedPressureKPa, Hysteresis: FeedPressureHystKPa},
			},
			Logic:      LogicAnd,
			Action:     ActionCloseValve,
			Active:     true,
			AutoReset:  true,
			ResetDelay: FeedPressureResetSecs,
		},
		{
			ID:   "IL-MOTOR-OVERTEMP",
			Type: InterlockSafety,
			Conditions: []Condition{
				{Variable: constants.VarMotorTemp, Operator: OpGreater, Threshold: MotorOverTempTripC, Hysteresis: 5},
			},
			Logic:         LogicAnd,
			Action:        ActionStopCentrifuge,
			Active:        true,
			ResetRequired: true,
		},
	}
}

// Default returns an engine state with the default rule set.
func Default() State {
	return NewState(DefaultConstraints(), DefaultInterlocks())
}
