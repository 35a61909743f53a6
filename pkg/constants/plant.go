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

// Equipment nameplate limits of the decanter centrifuge train.
// These are fixed by the equipment vendor and must not be tuned.
const (
	MaxBowlSpeedRPM    = 3200.0
	MinBowlSpeedRPM    = 1800.0
	MaxDifferentialRPM = 25.0
	MaxTorqueNm        = 650.0
	MaxVibrationMMS    = 4.5
	MaxBearingTempC    = 80.0
	MaxMotorTempC      = 85.0
	MaxFeedFlowM3H     = 15.0
	MinFeedTempC       = 55.0
	MaxFeedTempC       = 85.0
	MaxFeedPressureKPa = 400.0
	MinPondDepthMM     = 100.0
	MaxPondDepthMM     = 170.0
	MaxMotorPowerKW    = 75.0
)

// Controller conventions shared by every loop in the plant.
const (
	// OutputBias is the controller output midpoint every PID and the master loop add to P+I+D.
	// Empirical plant constant, kept as-is pending process engineering review.
	OutputBias = 50.0

	// PowerSpeedTolerance is the allowed relative deviation of motor power from the
	// cubic power-vs-speed law. Empirical plant constant, kept as-is pending review.
	PowerSpeedTolerance = 0.30

	// DeviationWarningFraction flags a loop whose PV is further than this fraction from SP.
	DeviationWarningFraction = 0.10
)

// Snapshot variable names consumed by the control core.
const (
	VarFeedFlow     = "feedFlow"
	VarFeedTemp     = "feedTemp"
	VarFeedPressure = "feedPressure"
	VarBowlSpeed    = "bowlSpeed"
	VarDifferential = "differential"
	VarVibration    = "vibration"
	VarTorque       = "torqueProxy"
	VarBearingTemp  = "bearingTemp"
	VarMotorTemp    = "motorTemp"
	VarPondDepth    = "pondDepth"
	VarPower        = "power"
	VarOIW          = "oiw"
	VarPH           = "pH"
	VarOIWValid     = "oiwValid"
	VarOilOut       = "oilOut"
	VarWaterOut     = "waterOut"
	VarSolidsOut    = "solidsOut"
)

// Loop tags of the three slave loops and the master quality loop.
const (
	LoopFeedTemp  = "TIC-101"
	LoopFeedFlow  = "FIC-101"
	LoopBowlSpeed = "SIC-101"
	LoopMaster    = "AIC-101"
)
