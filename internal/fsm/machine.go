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

// Package fsm evaluates transitions of state machines whose current state is owned by the caller.
// Each transition builds a fresh looplab/fsm instance positioned at the caller's state, so a
// Machine holds no mutable state and can be shared freely.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/looplab/fsm"
)

// ErrTransitionRefused is returned when an event is not allowed from the current state.
var ErrTransitionRefused = errors.New("transition refused")

// Transition records one state change.
type Transition struct {
	Event string `json:"event"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// Machine is an immutable transition table.
type Machine struct {
	name   string
	events []fsm.EventDesc
}

// NewMachine creates a machine from its transition table.
func NewMachine(name string, events []fsm.EventDesc) *Machine {
	copied := make([]fsm.EventDesc, len(events))
	for i, e := range events {
		copied[i] = fsm.EventDesc{Name: e.Name, Src: append([]string(nil), e.Src...), Dst: e.Dst}
	}

	return &Machine{name: name, events: copied}
}

// Name returns the machine name used in errors.
func (m *Machine) Name() string {
	return m.name
}

func (m *Machine) instance(current string, entered *Transition) *fsm.FSM {
	return fsm.NewFSM(
		current,
		fsm.Events(m.events),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				if entered != nil {
					*entered = Transition{Event: e.Event, From: e.Src, To: e.Dst}
				}
			},
		},
	)
}

// Fire applies event to current and returns the resulting transition.
// An event whose destination equals current is accepted and reports To == From.
func (m *Machine) Fire(ctx context.Context, current, event string) (Transition, error) {
	if ctx.Err() != nil {
		return Transition{}, ctx.Err()
	}

	var entered Transition

	err := m.instance(current, &entered).Event(ctx, event)
	if err != nil {
		var noTransition fsm.NoTransitionError
		if errors.As(err, &noTransition) && noTransition.Err == nil {
			return Transition{Event: event, From: current, To: current}, nil
		}

		return Transition{}, fmt.Errorf("%w: %s: event %q in state %q: %w", ErrTransitionRefused, m.name, event, current, err)
	}

	return entered, nil
}

// Can reports whether event may fire in current.
func (m *Machine) Can(current, event string) bool {
	return m.instance(current, nil).Can(event)
}

// Events lists the events that may fire in current, sorted.
func (m *Machine) Events(current string) []string {
	events := m.instance(current, nil).AvailableTransitions()
	sort.Strings(events)

	return events
}

// States lists every state that appears in the table, sorted.
func (m *Machine) States() []string {
	seen := map[string]struct{}{}

	for _, e := range m.events {
		seen[e.Dst] = struct{}{}
		for _, src := range e.Src {
			seen[src] = struct{}{}
		}
	}

	states := make([]string, 0, len(seen))
	for s := range seen {
		states = append(states, s)
	}

	sort.Strings(states)

	return states
}
