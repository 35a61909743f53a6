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

// Package constraint implements the equipment constraint and interlock engine.
// Evaluate is a pure function of the previous State and the current Snapshot.
package constraint

import (
	"fmt"
	"math"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
)

// NewState returns an engine state holding copies of the given rules.
func NewState(constraints []Constraint, interlocks []Interlock) State {
	return State{
		Constraints: append([]Constraint(nil), constraints...),
		Interlocks:  cloneInterlocks(interlocks),
	}
}

// Evaluate checks every constraint and interlock against the snapshot and returns the enforced limits.
func Evaluate(state State, snapshot Snapshot, dt float64) Result {
	next := State{
		Constraints: append([]Constraint(nil), state.Constraints...),
		Interlocks:  cloneInterlocks(state.Interlocks),
		TripLatched: state.TripLatched,
		TripSource:  state.TripSource,
		Audit:       state.Audit,
		Time:        state.Time,
	}

	if dt > 0 && !math.IsInf(dt, 0) {
		next.Time += dt
	} else {
		dt = 0
	}

	res := Result{Status: StatusNormal}

	for i := range next.Constraints {
		evaluateConstraint(&next, &next.Constraints[i], snapshot, &res)
	}

	for i := range next.Interlocks {
		evaluateInterlock(&next.Interlocks[i], snapshot, dt, next.Time, &res)
	}

	if next.TripLatched {
		res.Tripped = true
		res.Status = StatusTrip
	}

	res.State = next

	return res
}

func evaluateConstraint(state *State, c *Constraint, snapshot Snapshot, res *Result) {
	wasViolated := c.Violated

	value, ok := snapshot[c.Variable]
	if !ok || math.IsNaN(value) {
		c.Evaluated = false
		c.Violated = false
	} else {
		c.Evaluated = true
		c.Value = value
		c.Violated = !(c.Bypassable && c.Bypassed) &&
			((c.Min != nil && value < *c.Min) || (c.Max != nil && value > *c.Max))
	}

	switch {
	case c.Violated && !wasViolated:
		c.ViolationTime = state.Time
		res.Events = append(res.Events, Event{
			Kind:    EventConstraintViolated,
			Source:  c.ID,
			Action:  c.Action,
			Message: fmt.Sprintf("%s %.2f %s outside limits", c.Variable, value, c.Unit),
		})
	case !c.Violated && wasViolated:
		res.Events = append(res.Events, Event{Kind: EventConstraintCleared, Source: c.ID, Message: c.Variable + " back within limits"})
	}

	if c.Violated {
		res.Violations = append(res.Violations, c.ID)

		switch c.Severity {
		case SeveritySoft:
			res.Status = worst(res.Status, StatusAlarm)
		case SeverityHard:
			res.Status = worst(res.Status, StatusLimited)
		case SeverityTrip:
			if !c.Latched {
				res.Events = append(res.Events, Event{Kind: EventTripLatched, Source: c.ID, Action: c.Action, Message: c.Variable + " trip latched"})
			}

			c.Latched = true
			res.Tripped = true
			res.Status = worst(res.Status, StatusTrip)

			if !state.TripLatched {
				state.TripLatched = true
				state.TripSource = c.ID
			}
		}

		if c.Severity != SeveritySoft && c.Max != nil {
			capVariable(&res.Limits, c.Variable, *c.Max)
		}
	}

	if (c.Violated && c.Severity != SeveritySoft) || c.Latched {
		applyAction(&res.Limits, c.Action)
	}
}

func evaluateInterlock(il *Interlock, snapshot Snapshot, dt, now float64, res *Result) {
	if !il.Active {
		return
	}

	for i := range il.Conditions {
		cond := &il.Conditions[i]

		value, ok := snapshot[cond.Variable]
		if !ok || math.IsNaN(value) {
			cond.Met = false

			continue
		}

		cond.Met = conditionMet(cond.Operator, value, cond.Threshold, cond.Hysteresis, cond.Met)
	}

	il.ConditionMet = combine(il.Logic, il.Conditions)

	switch {
	case il.ConditionMet:
		il.ClearedFor = 0

		if !il.Triggered {
			il.Triggered = true
			il.TriggerTime = now
			res.Events = append(res.Events, Event{
				Kind:    EventInterlockTriggered,
				Source:  il.ID,
				Action:  il.Action,
				Message: fmt.Sprintf("%s interlock %s triggered", il.Type, il.ID),
			})
		}
	case il.Triggered && !il.Latching():
		il.ClearedFor += dt
		if !il.AutoReset || il.ClearedFor >= il.ResetDelay {
			il.Triggered = false
			il.ClearedFor = 0
			res.Events = append(res.Events, Event{Kind: EventInterlockCleared, Source: il.ID, Message: "interlock " + il.ID + " cleared"})
		}
	}

	if !il.Triggered {
		return
	}

	applyAction(&res.Limits, il.Action)

	switch {
	case il.Type == InterlockTrip:
		res.Tripped = true
		res.Status = worst(res.Status, StatusTrip)
	case il.ResetRequired:
		res.Status = worst(res.Status, StatusLockout)
	default:
		res.Status = worst(res.Status, StatusLimited)
	}
}

// conditionMet compares value against threshold. Once a condition is met the threshold
// shifts by the hysteresis so the condition only clears after crossing back past the band.
func conditionMet(op Operator, value, threshold, hysteresis float64, wasMet bool) bool {
	h := math.Abs(hysteresis)

	switch op {
	case OpGreater:
		if wasMet {
			return value > threshold-h
		}

		return value > threshold
	case OpGreaterEqual:
		if wasMet {
			return value >= threshold-h
		}

		return value >= threshold
	case OpLess:
		if wasMet {
			return value < threshold+h
		}

		return value < threshold
	case OpLessEqual:
		if wasMet {
			return value <= threshold+h
		}

		return value <= threshold
	case OpEqual:
		return math.Abs(value-threshold) <= h
	case OpNotEqual:
		return math.Abs(value-threshold) > h
	default:
		return false
	}
}

func combine(logic Logic, conditions []Condition) bool {
	if len(conditions) == 0 {
		return false
	}

	if logic == LogicOr {
		for _, c := range conditions {
			if c.Met {
				return true
			}
		}

		return false
	}

	for _, c := range conditions {
		if !c.Met {
			return false
		}
	}

	return true
}

func capVariable(limits *Limits, variable string, value float64) {
	switch variable {
	case constants.VarBowlSpeed:
		limits.Speed = capAt(limits.Speed, value)
	case constants.VarFeedFlow:
		limits.FeedRate = capAt(limits.FeedRate, value)
	case constants.VarDifferential:
		limits.Differential = capAt(limits.Differential, value)
	}
}

func applyAction(limits *Limits, action Action) {
	switch action {
	case ActionStopFeed, ActionCloseValve:
		limits.FeedRate = capAt(limits.FeedRate, 0)
	case ActionStopCentrifuge:
		limits.Speed = capAt(limits.Speed, 0)
		limits.FeedRate = capAt(limits.FeedRate, 0)
	case ActionReduceSpeed:
		limits.Speed = capAt(limits.Speed, constants.MinBowlSpeedRPM)
	case ActionTripHeater:
		limits.HeaterOff = true
	case ActionNone, ActionAlarmOnly:
	}
}

func cloneInterlocks(in []Interlock) []Interlock {
	if in == nil {
		return nil
	}

	out := make([]Interlock, len(in))
	for i, il := range in {
		out[i] = il
		out[i].Conditions = append([]Condition(nil), il.Conditions...)
	}

	return out
}
