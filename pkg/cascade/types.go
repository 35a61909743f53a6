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

// Package cascade orchestrates the master quality loop and the start-up sequence of the slave loops.
// Step is pure: it takes the State by value and returns the next State with the loop commands to apply.
package cascade

import (
	"time"

	"github.com/united-manufacturing-hub/separation-core/pkg/alarm"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
)

// Mode of the master loop.
type Mode string

const (
	ModeOff        Mode = "OFF"
	ModeSlaveOnly  Mode = "SLAVE_ONLY"
	ModeCascade    Mode = "CASCADE"
	// ModeConstraint is held while an equipment constraint overrides the cascade.
	ModeConstraint Mode = "CONSTRAINT"
)

// Slave names one of the three slave loops.
type Slave string

const (
	SlaveTemperature Slave = "temperature"
	SlaveFlow        Slave = "flow"
	SlaveSpeed       Slave = "speed"
)

// Slaves lists the slave loops in start-up order.
var Slaves = []Slave{SlaveTemperature, SlaveSpeed, SlaveFlow}

// Setpoints commanded to the slave loops.
type Setpoints struct {
	Temperature float64 `json:"temperature"`
	Flow        float64 `json:"flow"`
	Speed       float64 `json:"speed"`
}

// Get returns the setpoint of one slave.
func (s Setpoints) Get(slave Slave) float64 {
	switch slave {
	case SlaveTemperature:
		return s.Temperature
	case SlaveFlow:
		return s.Flow
	default:
		return s.Speed
	}
}

func (s *Setpoints) set(slave Slave, v float64) {
	switch slave {
	case SlaveTemperature:
		s.Temperature = v
	case SlaveFlow:
		s.Flow = v
	default:
		s.Speed = v
	}
}

// MasterState is the state of the oil-in-water quality loop.
type MasterState struct {
	Enabled       bool              `json:"enabled"`
	Target        float64           `json:"target"`
	PV            float64           `json:"pv"`
	Error         float64           `json:"error"`
	Integral      float64           `json:"integral"`
	Demand        float64           `json:"demand"`
	Saturated     bool              `json:"saturated"`
	SaturationDir pid.SaturationDir `json:"saturationDir,omitempty"`
}

// Flags are the equipment constraint flags the orchestrator reacts to.
type Flags struct {
	VibrationHigh    bool `json:"vibrationHigh"`
	TorqueHigh       bool `json:"torqueHigh"`
	TempLow          bool `json:"tempLow"`
	PHOutOfBand      bool `json:"phOutOfBand"`
	EquipmentLimited bool `json:"equipmentLimited"`
	// AnyActive mirrors Active() for snapshot readers.
	AnyActive        bool `json:"anyActive"`
}

// Active reports whether any flag forces the cascade out of CASCADE_ACTIVE. pH only alarms.
func (f Flags) Active() bool {
	return f.VibrationHigh || f.TorqueHigh || f.TempLow || f.EquipmentLimited
}

// Trackers holds one stability window per watched PV.
type Trackers struct {
	Temperature Tracker `json:"temperature"`
	Flow        Tracker `json:"flow"`
	Speed       Tracker `json:"speed"`
	PH          Tracker `json:"ph"`
}

func (t Trackers) get(slave Slave) Tracker {
	switch slave {
	case SlaveTemperature:
		return t.Temperature
	case SlaveFlow:
		return t.Flow
	default:
		return t.Speed
	}
}

// State is everything the orchestrator carries from one tick to the next.
type State struct {
	Sequence Sequence `json:"sequence"`
	Mode     Mode     `json:"mode"`
	// Elapsed is the time in seconds spent in the current sequence state.
	Elapsed     float64     `json:"elapsed"`
	Master      MasterState `json:"master"`
	Setpoints   Setpoints   `json:"setpoints"`
	Trackers    Trackers    `json:"trackers"`
	Flags       Flags       `json:"flags"`
	Alarms      alarm.List  `json:"alarms"`
	FaultReason string      `json:"faultReason,omitempty"`
	Time        float64     `json:"time"`
}

// NewState returns an idle orchestrator.
func NewState(cfg Config) State {
	return State{
		Sequence: SequenceIdle,
		Mode:     ModeOff,
		Master: MasterState{
			Target: cfg.Target,
			Demand: constants.OutputBias,
		},
		Setpoints: startupSetpoints(cfg),
		Alarms:    alarm.NewList(cfg.AlarmCapacity),
	}
}

func startupSetpoints(cfg Config) Setpoints {
	return Setpoints{
		Temperature: cfg.Temperature.StartupSP,
		Flow:        cfg.Flow.StartupSP,
		Speed:       cfg.Speed.StartupSP,
	}
}

// SlaveModes are the current modes of the slave loops.
type SlaveModes struct {
	Temperature pid.Mode `json:"temperature"`
	Flow        pid.Mode `json:"flow"`
	Speed       pid.Mode `json:"speed"`
}

func (m SlaveModes) get(slave Slave) pid.Mode {
	switch slave {
	case SlaveTemperature:
		return m.Temperature
	case SlaveFlow:
		return m.Flow
	default:
		return m.Speed
	}
}

// Input is what the orchestrator sees of the plant in one tick.
type Input struct {
	OIW       float64
	OIWValid  bool
	FeedTemp  float64
	FeedFlow  float64
	BowlSpeed float64
	PH        float64
	Vibration float64
	Torque    float64

	Modes     SlaveModes
	Equipment constraint.Status
	Limits    constraint.Limits

	DT float64
	// Now stamps raised alarms.
	Now time.Time
}

// LoopCommand is a change the orchestrator asks for on a slave loop.
type LoopCommand struct {
	Tag      string   `json:"tag"`
	Mode     pid.Mode `json:"mode,omitempty"`
	Setpoint *float64 `json:"setpoint,omitempty"`
	Output   *float64 `json:"output,omitempty"`
}

// Transition records one sequence change.
type Transition struct {
	Event  string   `json:"event"`
	From   Sequence `json:"from"`
	To     Sequence `json:"to"`
	Reason string   `json:"reason,omitempty"`
}

// Result is the outcome of Step and of the operator commands.
type Result struct {
	State       State         `json:"state"`
	Commands    []LoopCommand `json:"commands,omitempty"`
	Transitions []Transition  `json:"transitions,omitempty"`
	Raised      []alarm.Alarm `json:"raised,omitempty"`
}
