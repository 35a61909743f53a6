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
	"github.com/united-manufacturing-hub/separation-core/pkg/alarm"
	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/integrity"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
)

// Readings are the raw named process and equipment values of one tick.
type Readings map[string]float64

// LoopOutput is the externally visible state of one loop after a tick.
type LoopOutput struct {
	Mode      pid.Mode          `json:"mode"`
	PV        float64           `json:"pv"`
	SP        float64           `json:"sp"`
	OP        float64           `json:"op"`
	Saturated bool              `json:"saturated"`
	Direction pid.SaturationDir `json:"direction,omitempty"`
	Faulted   bool              `json:"faulted"`
}

// Outputs is what one tick hands to the simulation and the display layer.
type Outputs struct {
	Tick uint64  `json:"tick"`
	Time float64 `json:"time"`

	Limits     constraint.Limits `json:"limits"`
	Equipment  constraint.Status `json:"equipment"`
	Tripped    bool              `json:"tripped"`
	Violations []string          `json:"violations,omitempty"`

	Sequence  cascade.Sequence    `json:"sequence"`
	Mode      cascade.Mode        `json:"mode"`
	Master    cascade.MasterState `json:"master"`
	Setpoints cascade.Setpoints   `json:"setpoints"`

	Loops       map[string]LoopOutput               `json:"loops"`
	Diagnostics []pid.Diagnostic                    `json:"diagnostics"`
	Integrity   map[string]integrity.ValidatedValue `json:"integrity"`
	Worst       integrity.Status                    `json:"worst"`
	Alarms      []alarm.Alarm                       `json:"alarms"`
}

// Output returns the controller output of a loop, or 0 for an unknown tag.
func (o Outputs) Output(tag string) float64 {
	return o.Loops[tag].OP
}

// Snapshot is the complete observable state of a Core.
type Snapshot struct {
	Outputs Outputs              `json:"outputs"`
	Loops   map[string]pid.State `json:"loopStates"`
	Engine  constraint.State     `json:"engine"`
	Cascade cascade.State        `json:"cascade"`
	// Gates are reported without their rules.
	Gates []integrity.Gate `json:"gates"`
}
