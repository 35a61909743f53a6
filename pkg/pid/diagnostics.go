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
	"fmt"
	"math"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
)

// HealthStatus is the outcome of Diagnose.
type HealthStatus string

const (
	HealthOK      HealthStatus = "OK"
	HealthWarning HealthStatus = "WARNING"
	HealthFault   HealthStatus = "FAULT"
)

// Diagnostic is the health of one loop with the reasons behind it.
type Diagnostic struct {
	Tag     string       `json:"tag"`
	Status  HealthStatus `json:"status"`
	Reasons []string     `json:"reasons,omitempty"`
}

// Diagnose classifies the loop health.
func Diagnose(state State, cfg Config) Diagnostic {
	d := Diagnostic{Tag: cfg.Tag, Status: HealthOK}

	if state.Faulted {
		d.Status = HealthFault
		d.Reasons = append(d.Reasons, "fault: "+string(state.FaultReason))

		return d
	}

	if state.Saturated {
		d.Reasons = append(d.Reasons, "output saturated "+string(state.SaturationDir))
	}

	if state.PV < cfg.PVMin || state.PV > cfg.PVMax {
		d.Reasons = append(d.Reasons, fmt.Sprintf("pv %.2f outside [%g, %g]", state.PV, cfg.PVMin, cfg.PVMax))
	}

	reference := math.Abs(state.SP)
	if reference == 0 {
		reference = cfg.SPMax - cfg.SPMin
	}

	if math.Abs(state.PV-state.SP) > constants.DeviationWarningFraction*reference {
		d.Reasons = append(d.Reasons, fmt.Sprintf("pv %.2f deviates from sp %.2f", state.PV, state.SP))
	}

	if len(d.Reasons) > 0 {
		d.Status = HealthWarning
	}

	return d
}
