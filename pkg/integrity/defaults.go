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

package integrity

import "github.com/united-manufacturing-hub/separation-core/pkg/constants"

func ptr(v float64) *float64 {
	return &v
}

// DefaultGateSpecs returns the gate set of the separation train.
func DefaultGateSpecs() []GateSpec {
	return []GateSpec{
		{
			ID: "G-FEED-FLOW", Variable: constants.VarFeedFlow, Mode: ModeHard,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(20)},
				{Kind: KindRate, MaxPctPerSec: 50, Floor: 5},
			},
		},
		{
			ID: "G-FEED-TEMP", Variable: constants.VarFeedTemp, Mode: ModeHard,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(120)},
				{Kind: KindRate, MaxPctPerSec: 10, Floor: 10},
			},
		},
		{
			ID: "G-BOWL-SPEED", Variable: constants.VarBowlSpeed, Mode: ModeHard,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(3500)},
				{Kind: KindRate, MaxPctPerSec: 20, Floor: 1000},
			},
		},
		{
			ID: "G-VIBRATION", Variable: constants.VarVibration, Mode: ModeHard,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(50)},
			},
		},
		{
			ID: "G-OIW", Variable: constants.VarOIW, Mode: ModeSoft,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(2000)},
				{Kind: KindStaleness, MaxAge: 120},
				{Kind: KindConsistency, Name: "analyzerHealthy", Expression: constants.VarOIWValid + " >= 0.5", FailStatus: StatusInvalid},
			},
		},
		{
			ID: "G-PH", Variable: constants.VarPH, Mode: ModeSoft,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(14)},
				{Kind: KindRate, MaxPctPerSec: 20, Floor: 1},
			},
		},
		{
			ID: "G-POWER", Variable: constants.VarPower, Mode: ModeSoft,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(90)},
				{Kind: KindConsistency, Builtin: BuiltinCubicPowerSpeed},
			},
		},
		{
			ID: "G-MASS-BALANCE", Variable: constants.VarWaterOut, Mode: ModeReportOnly,
			Rules: []RuleSpec{
				{Kind: KindRange, Min: ptr(0), Max: ptr(20)},
				{
					Kind:         KindPhysics,
					Inlet:        constants.VarFeedFlow,
					Outlets:      []string{constants.VarOilOut, constants.VarWaterOut, constants.VarSolidsOut},
					TolerancePct: 5,
				},
			},
		},
	}
}

// DefaultGates builds DefaultGateSpecs. The default set is known to be valid.
func DefaultGates() []Gate {
	gates, err := NewGates(DefaultGateSpecs())
	if err != nil {
		panic(err)
	}

	return gates
}
