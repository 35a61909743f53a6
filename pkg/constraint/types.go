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

// Severity of a constraint violation.
type Severity string

const (
	SeveritySoft Severity = "SOFT"
	SeverityHard Severity = "HARD"
	SeverityTrip Severity = "TRIP"
)

// Action is the corrective action of a constraint or interlock.
type Action string

const (
	ActionNone           Action = ""
	ActionStopFeed       Action = "STOP_FEED"
	ActionCloseValve     Action = "CLOSE_VALVE"
	ActionStopCentrifuge Action = "STOP_CENTRIFUGE"
	ActionReduceSpeed    Action = "REDUCE_SPEED"
	ActionTripHeater     Action = "TRIP_HEATER"
	ActionAlarmOnly      Action = "ALARM_ONLY"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionNone, ActionStopFeed, ActionCloseValve, ActionStopCentrifuge,
		ActionReduceSpeed, ActionTripHeater, ActionAlarmOnly:
		return true
	default:
		return false
	}
}

// InterlockType decides how a triggered interlock weighs on the overall status.
type InterlockType string

const (
	InterlockPermissive InterlockType = "PERMISSIVE"
	InterlockTrip       InterlockType = "TRIP"
	InterlockSafety     InterlockType = "SAFETY"
)

// Operator compares a condition variable against its threshold.
type Operator string

const (
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpEqual        Operator = "=="
	OpNotEqual     Operator = "!="
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpGreater, OpGreaterEqual, OpLess, OpLessEqual, OpEqual, OpNotEqual:
		return true
	default:
		return false
	}
}

// Logic combines the conditions of an interlock.
type Logic string

const (
	LogicAnd Logic = "AND"
	LogicOr  Logic = "OR"
)

// Status is the overall equipment protection status. Higher ordinals are worse.
type Status string

const (
	StatusNormal  Status = "NORMAL"
	StatusAlarm   Status = "ALARM"
	StatusLimited Status = "LIMITED"
	StatusLockout Status = "LOCKOUT"
	StatusTrip    Status = "TRIP"
)

// Ordinal returns the severity rank of the status, NORMAL being 0.
func (s Status) Ordinal() int {
	switch s {
	case StatusAlarm:
		return 1
	case StatusLimited:
		return 2
	case StatusLockout:
		return 3
	case StatusTrip:
		return 4
	default:
		return 0
	}
}

func worst(a, b Status) Status {
	if b.Ordinal() > a.Ordinal() {
		return b
	}

	return a
}

// Snapshot holds the named equipment readings of one tick.
type Snapshot map[string]float64

// Constraint is a min/max protection rule on one variable.
type Constraint struct {
	ID         string   `yaml:"id" json:"id"`
	Variable   string   `yaml:"variable" json:"variable"`
	Severity   Severity `yaml:"severity" json:"severity"`
	Min        *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Unit       string   `yaml:"unit" json:"unit"`
	Action     Action   `yaml:"action" json:"action"`
	Bypassable bool     `yaml:"bypassable" json:"bypassable"`
	Bypassed   bool     `yaml:"bypassed" json:"bypassed"`

	Violated      bool    `yaml:"-" json:"violated"`
	ViolationTime float64 `yaml:"-" json:"violationTime"`
	Value         float64 `yaml:"-" json:"value"`
	Evaluated     bool    `yaml:"-" json:"evaluated"`
	// Latched is set by a TRIP-severity violation and cleared only by ResetTrip.
	Latched bool `yaml:"-" json:"latched"`
}

// Condition is one comparison of an interlock.
type Condition struct {
	Variable   string   `yaml:"variable" json:"variable"`
	Operator   Operator `yaml:"operator" json:"operator"`
	Threshold  float64  `yaml:"threshold" json:"threshold"`
	Hysteresis float64  `yaml:"hysteresis" json:"hysteresis"`
	Met        bool     `yaml:"-" json:"met"`
}

// Interlock forces an equipment action while its combined condition holds.
type Interlock struct {
	ID         string        `yaml:"id" json:"id"`
	Type       InterlockType `yaml:"type" json:"type"`
	Conditions []Condition   `yaml:"conditions" json:"conditions"`
	Logic      Logic         `yaml:"logic" json:"logic"`
	Action     Action        `yaml:"action" json:"action"`
	// Active arms the interlock. Disarmed interlocks are not evaluated.
	Active bool `yaml:"active" json:"active"`
	// AutoReset clears the interlock once its condition has been false for ResetDelay seconds.
	// Non-latching interlocks with neither AutoReset nor ResetRequired follow their condition directly.
	AutoReset     bool    `yaml:"autoReset" json:"autoReset"`
	ResetRequired bool    `yaml:"resetRequired" json:"resetRequired"`
	ResetDelay    float64 `yaml:"resetDelay" json:"resetDelay"`

	Triggered    bool    `yaml:"-" json:"triggered"`
	TriggerTime  float64 `yaml:"-" json:"triggerTime"`
	ConditionMet bool    `yaml:"-" json:"conditionMet"`
	ClearedFor   float64 `yaml:"-" json:"clearedFor"`
}

// Latching reports whether a triggered interlock holds until ResetInterlock.
// TRIP interlocks always latch, whatever their reset flags say.
func (il Interlock) Latching() bool {
	return il.ResetRequired || il.Type == InterlockTrip
}

// Limits are the optional caps the engine imposes on the actuators.
type Limits struct {
	Speed        *float64 `json:"speed,omitempty"`
	FeedRate     *float64 `json:"feedRate,omitempty"`
	Differential *float64 `json:"differential,omitempty"`
	HeaterOff    bool     `json:"heaterOff"`
}

func capAt(current *float64, value float64) *float64 {
	if current != nil && *current <= value {
		return current
	}

	return &value
}

// ClampSpeed caps v at the enforced speed limit, if any.
func (l Limits) ClampSpeed(v float64) float64 {
	if l.Speed != nil && v > *l.Speed {
		return *l.Speed
	}

	return v
}

// ClampFeedRate caps v at the enforced feed-rate limit, if any.
func (l Limits) ClampFeedRate(v float64) float64 {
	if l.FeedRate != nil && v > *l.FeedRate {
		return *l.FeedRate
	}

	return v
}

// ClampDifferential caps v at the enforced differential limit, if any.
func (l Limits) ClampDifferential(v float64) float64 {
	if l.Differential != nil && v > *l.Differential {
		return *l.Differential
	}

	return v
}

// AuditEntry records an operator action against the engine.
type AuditEntry struct {
	ID       string  `json:"id"`
	Time     float64 `json:"time"`
	Action   string  `json:"action"`
	Target   string  `json:"target"`
	Accepted bool    `json:"accepted"`
	Reason   string  `json:"reason,omitempty"`
}

// AuditCapacity bounds the audit log.
const AuditCapacity = 100

// EventKind classifies an Event.
type EventKind string

const (
	EventConstraintViolated EventKind = "CONSTRAINT_VIOLATED"
	EventConstraintCleared  EventKind = "CONSTRAINT_CLEARED"
	EventInterlockTriggered EventKind = "INTERLOCK_TRIGGERED"
	EventInterlockCleared   EventKind = "INTERLOCK_CLEARED"
	EventTripLatched        EventKind = "TRIP_LATCHED"
)

// Event is an edge observed during one Evaluate call.
type Event struct {
	Kind    EventKind `json:"kind"`
	Source  string    `json:"source"`
	Action  Action    `json:"action,omitempty"`
	Message string    `json:"message"`
}

// State is everything the engine carries from one tick to the next.
type State struct {
	Constraints []Constraint `json:"constraints"`
	Interlocks  []Interlock  `json:"interlocks"`
	TripLatched bool         `json:"tripLatched"`
	TripSource  string       `json:"tripSource,omitempty"`
	Audit       []AuditEntry `json:"audit"`
	// Time is the simulated time in seconds of the last evaluation.
	Time float64 `json:"time"`
}

// Result is the outcome of one Evaluate call.
type Result struct {
	State      State    `json:"state"`
	Status     Status   `json:"status"`
	Limits     Limits   `json:"limits"`
	Tripped    bool     `json:"tripped"`
	Violations []string `json:"violations,omitempty"`
	Events     []Event  `json:"events,omitempty"`
}
