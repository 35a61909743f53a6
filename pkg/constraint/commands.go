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
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrUnknownInterlock  = errors.New("unknown interlock")
	ErrUnknownConstraint = errors.New("unknown constraint")
	ErrResetNotRequired  = errors.New("interlock does not require a manual reset")
	ErrConditionStillMet = errors.New("interlock condition is still met")
	ErrNotBypassable     = errors.New("constraint is not bypassable")
	ErrTripActive        = errors.New("trip condition is still active")
)

// ResetInterlock clears a latched interlock: a TRIP interlock or one that requires a manual reset.
// It is refused if the interlock resets itself or its condition still holds.
func ResetInterlock(state State, id string) (State, error) {
	next := copyState(state)

	idx := -1

	for i := range next.Interlocks {
		if next.Interlocks[i].ID == id {
			idx = i

			break
		}
	}

	var err error

	switch {
	case idx < 0:
		err = fmt.Errorf("reset %q: %w", id, ErrUnknownInterlock)
	case !next.Interlocks[idx].Latching():
		err = fmt.Errorf("reset %q: %w", id, ErrResetNotRequired)
	case next.Interlocks[idx].ConditionMet:
		err = fmt.Errorf("reset %q: %w", id, ErrConditionStillMet)
	default:
		next.Interlocks[idx].Triggered = false
		next.Interlocks[idx].ClearedFor = 0
	}

	return audit(next, "RESET_INTERLOCK", id, err), err
}

// BypassConstraint sets or clears the bypass of a bypassable constraint.
func BypassConstraint(state State, id string, bypassed bool) (State, error) {
	next := copyState(state)

	action := "BYPASS_CONSTRAINT"
	if !bypassed {
		action = "UNBYPASS_CONSTRAINT"
	}

	idx := -1

	for i := range next.Constraints {
		if next.Constraints[i].ID == id {
			idx = i

			break
		}
	}

	var err error

	switch {
	case idx < 0:
		err = fmt.Errorf("bypass %q: %w", id, ErrUnknownConstraint)
	case !next.Constraints[idx].Bypassable:
		err = fmt.Errorf("bypass %q: %w", id, ErrNotBypassable)
	default:
		next.Constraints[idx].Bypassed = bypassed
	}

	return audit(next, action, id, err), err
}

// ResetTrip clears the latched equipment trip once no TRIP-severity constraint is violated.
func ResetTrip(state State) (State, error) {
	next := copyState(state)

	var err error

	for _, c := range next.Constraints {
		if c.Severity == SeverityTrip && c.Violated {
			err = fmt.Errorf("reset trip: %s: %w", c.ID, ErrTripActive)

			break
		}
	}

	if err == nil {
		next.TripLatched = false
		next.TripSource = ""

		for i := range next.Constraints {
			next.Constraints[i].Latched = false
		}
	}

	return audit(next, "RESET_TRIP", state.TripSource, err), err
}

// Interlock returns the interlock with the given id.
func (s State) Interlock(id string) (Interlock, bool) {
	for _, il := range s.Interlocks {
		if il.ID == id {
			return il, true
		}
	}

	return Interlock{}, false
}

// Constraint returns the constraint with the given id.
func (s State) Constraint(id string) (Constraint, bool) {
	for _, c := range s.Constraints {
		if c.ID == id {
			return c, true
		}
	}

	return Constraint{}, false
}

func audit(state State, action, target string, err error) State {
	entry := AuditEntry{
		ID:       uuid.NewString(),
		Time:     state.Time,
		Action:   action,
		Target:   target,
		Accepted: err == nil,
	}
	if err != nil {
		entry.Reason = err.Error()
	}

	start := 0
	if len(state.Audit)+1 > AuditCapacity {
		start = len(state.Audit) + 1 - AuditCapacity
	}

	entries := make([]AuditEntry, 0, len(state.Audit)-start+1)
	entries = append(entries, state.Audit[start:]...)
	state.Audit = append(entries, entry)

	return state
}

func copyState(state State) State {
	next := state
	next.Constraints = append([]Constraint(nil), state.Constraints...)
	next.Interlocks = cloneInterlocks(state.Interlocks)

	return next
}
