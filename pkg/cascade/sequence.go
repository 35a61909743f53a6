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
	"github.com/looplab/fsm"

	seqfsm "github.com/united-manufacturing-hub/separation-core/internal/fsm"
)

// Sequence is a state of the start-up sequence.
type Sequence string

const (
	SequenceIdle               Sequence = "IDLE"
	SequenceHeaterWarmup       Sequence = "HEATER_WARMUP"
	SequenceHeaterStable       Sequence = "HEATER_STABLE"
	SequenceCentrifugeStart    Sequence = "CENTRIFUGE_START"
	SequenceCentrifugeStable   Sequence = "CENTRIFUGE_STABLE"
	SequenceChemistryStart     Sequence = "CHEMISTRY_START"
	SequenceChemistryStable    Sequence = "CHEMISTRY_STABLE"
	SequenceFeedStart          Sequence = "FEED_START"
	SequenceFeedStable         Sequence = "FEED_STABLE"
	SequenceCascadeReady       Sequence = "CASCADE_READY"
	SequenceCascadeActive      Sequence = "CASCADE_ACTIVE"
	SequenceConstraintOverride Sequence = "CONSTRAINT_OVERRIDE"
	SequenceFault              Sequence = "FAULT"
	SequenceShutdown           Sequence = "SHUTDOWN"
)

// Sequences lists every state in start-up order; the index is the metrics ordinal.
var Sequences = []Sequence{
	SequenceIdle,
	SequenceHeaterWarmup,
	SequenceHeaterStable,
	SequenceCentrifugeStart,
	SequenceCentrifugeStable,
	SequenceChemistryStart,
	SequenceChemistryStable,
	SequenceFeedStart,
	SequenceFeedStable,
	SequenceCascadeReady,
	SequenceCascadeActive,
	SequenceConstraintOverride,
	SequenceFault,
	SequenceShutdown,
}

// Ordinal returns the position of s in Sequences, or -1.
func (s Sequence) Ordinal() int {
	for i, seq := range Sequences {
		if seq == s {
			return i
		}
	}

	return -1
}

// Running reports whether the sequence is somewhere between start and shutdown.
func (s Sequence) Running() bool {
	switch s {
	case SequenceIdle, SequenceFault, SequenceShutdown, "":
		return false
	default:
		return true
	}
}

// Drives reports whether the cascade owns the setpoint of the slave in this state.
func (s Sequence) Drives(slave Slave) bool {
	if !s.Running() {
		return false
	}

	ord := s.Ordinal()

	switch slave {
	case SlaveTemperature:
		return ord >= SequenceHeaterWarmup.Ordinal()
	case SlaveSpeed:
		return ord >= SequenceCentrifugeStart.Ordinal()
	case SlaveFlow:
		return ord >= SequenceFeedStart.Ordinal()
	default:
		return false
	}
}

// feeding reports whether feed is on and constraint flags apply.
func (s Sequence) feeding() bool {
	return s.Drives(SlaveFlow)
}

// Sequencer events.
const (
	EventStart              = "start"
	EventWarm               = "warm"
	EventHeaterStable       = "heater_stable"
	EventAtSpeed            = "at_speed"
	EventCentrifugeStable   = "centrifuge_stable"
	EventSkipChemistry      = "skip_chemistry"
	EventChemistryDosed     = "chemistry_dosed"
	EventChemistryStable    = "chemistry_stable"
	EventFeedEstablished    = "feed_established"
	EventFeedStable         = "feed_stable"
	EventActivate           = "activate"
	EventConstraint         = "constraint"
	EventConstraintsCleared = "constraints_cleared"
	EventQualityLost        = "quality_lost"
	EventTimeout            = "timeout"
	EventTrip               = "trip"
	EventStop               = "stop"
	EventStopped            = "stopped"
	EventReset              = "reset"
)

func names(seqs ...Sequence) []string {
	out := make([]string, len(seqs))
	for i, s := range seqs {
		out[i] = string(s)
	}

	return out
}

var runningStates = names(
	SequenceHeaterWarmup, SequenceHeaterStable,
	SequenceCentrifugeStart, SequenceCentrifugeStable,
	SequenceChemistryStart, SequenceChemistryStable,
	SequenceFeedStart, SequenceFeedStable,
	SequenceCascadeReady, SequenceCascadeActive, SequenceConstraintOverride,
)

var timedStates = names(
	SequenceHeaterWarmup, SequenceHeaterStable,
	SequenceCentrifugeStart, SequenceCentrifugeStable,
	SequenceChemistryStart, SequenceChemistryStable,
	SequenceFeedStart, SequenceFeedStable,
)

var sequenceTransitions = []fsm.EventDesc{
	{Name: EventStart, Src: names(SequenceIdle), Dst: string(SequenceHeaterWarmup)},
	{Name: EventWarm, Src: names(SequenceHeaterWarmup), Dst: string(SequenceHeaterStable)},
	{Name: EventHeaterStable, Src: names(SequenceHeaterStable), Dst: string(SequenceCentrifugeStart)},
	{Name: EventAtSpeed, Src: names(SequenceCentrifugeStart), Dst: string(SequenceCentrifugeStable)},
	{Name: EventCentrifugeStable, Src: names(SequenceCentrifugeStable), Dst: string(SequenceChemistryStart)},
	{Name: EventSkipChemistry, Src: names(SequenceCentrifugeStable), Dst: string(SequenceFeedStart)},
	{Name: EventChemistryDosed, Src: names(SequenceChemistryStart), Dst: string(SequenceChemistryStable)},
	{Name: EventChemistryStable, Src: names(SequenceChemistryStable), Dst: string(SequenceFeedStart)},
	{Name: EventFeedEstablished, Src: names(SequenceFeedStart), Dst: string(SequenceFeedStable)},
	{Name: EventFeedStable, Src: names(SequenceFeedStable), Dst: string(SequenceCascadeReady)},
	{Name: EventActivate, Src: names(SequenceCascadeReady), Dst: string(SequenceCascadeActive)},
	{Name: EventConstraint, Src: names(SequenceCascadeActive), Dst: string(SequenceConstraintOverride)},
	{Name: EventConstraintsCleared, Src: names(SequenceConstraintOverride), Dst: string(SequenceCascadeReady)},
	{Name: EventQualityLost, Src: names(SequenceCascadeActive), Dst: string(SequenceCascadeReady)},
	{Name: EventTimeout, Src: timedStates, Dst: string(SequenceFault)},
	{Name: EventTrip, Src: runningStates, Dst: string(SequenceFault)},
	{Name: EventStop, Src: runningStates, Dst: string(SequenceShutdown)},
	{Name: EventStopped, Src: names(SequenceShutdown), Dst: string(SequenceIdle)},
	{Name: EventReset, Src: names(SequenceFault), Dst: string(SequenceIdle)},
}

var sequencer = seqfsm.NewMachine("cascade sequence", sequenceTransitions)

// Events lists the sequencer events accepted in s.
func (s Sequence) Events() []string {
	return sequencer.Events(string(s))
}
