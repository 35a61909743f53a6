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

package cascade

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotIdle is returned by Start outside IDLE.
	ErrNotIdle = errors.New("cascade is not idle")
	// ErrNotFaulted is returned by ResetFault outside FAULT.
	ErrNotFaulted = errors.New("cascade is not faulted")
	// ErrNotRunning is returned by Stop when no sequence is running.
	ErrNotRunning = errors.New("cascade is not running")
	// ErrUnknownAlarm is returned when acknowledging an alarm id that is not held or already acknowledged.
	ErrUnknownAlarm = errors.New("unknown or acknowledged alarm")
)

// Start begins the start-up sequence from IDLE.
func Start(state State, cfg Config, now time.Time) (Result, error) {
	if state.Sequence != SequenceIdle {
		return Result{State: state}, fmt.Errorf("start in %s: %w", state.Sequence, ErrNotIdle)
	}

	res := Result{}
	fire(&state, EventStart, cfg, "operator start", now, &res)
	res.State = state

	return res, nil
}

// Stop shuts the sequence down: the master is disabled and every slave goes to MAN at 0 %.
func Stop(state State, cfg Config, now time.Time) (Result, error) {
	if !state.Sequence.Running() {
		return Result{State: state}, fmt.Errorf("stop in %s: %w", state.Sequence, ErrNotRunning)
	}

	res := Result{}
	fire(&state, EventStop, cfg, "operator stop", now, &res)
	res.State = state

	return res, nil
}

// ResetFault returns a faulted sequence to IDLE.
func ResetFault(state State, cfg Config, now time.Time) (Result, error) {
	if state.Sequence != SequenceFault {
		return Result{State: state}, fmt.Errorf("reset in %s: %w", state.Sequence, ErrNotFaulted)
	}

	res := Result{}
	fire(&state, EventReset, cfg, "operator reset", now, &res)
	state.FaultReason = ""
	res.State = state

	return res, nil
}

// AcknowledgeAlarm marks one alarm as acknowledged.
func AcknowledgeAlarm(state State, id string) (State, error) {
	list, ok := state.Alarms.Acknowledge(id)
	if !ok {
		return state, fmt.Errorf("acknowledge %q: %w", id, ErrUnknownAlarm)
	}

	state.Alarms = list

	return state, nil
}

// AcknowledgeAllAlarms marks every alarm as acknowledged.
func AcknowledgeAllAlarms(state State) State {
	state.Alarms = state.Alarms.AcknowledgeAll()

	return state
}
