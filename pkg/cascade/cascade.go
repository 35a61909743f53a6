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
	"context"
	"fmt"
	"math"
	"time"

	"github.com/united-manufacturing-hub/separation-core/pkg/alarm"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
)

// Alarm tags raised by the orchestrator.
const (
	TagSequence  = "SEQUENCE"
	TagVibration = "VIBRATION-HIGH"
	TagTorque    = "TORQUE-HIGH"
	TagFeedTemp  = "FEED-TEMP-LOW"
	TagPH        = "PH-BAND"
	TagQuality   = "OIW-QUALITY"
	TagEquipment = "EQUIPMENT-LIMITED"
)

// Step advances the orchestrator by in.DT seconds. Within one tick the order is fixed:
// constraint flags and their overrides, at most one sequence transition, the master loop,
// then the enforced limits on the slave setpoints.
func Step(state State, in Input, cfg Config) Result {
	next := state
	res := Result{}

	if !(in.DT > 0) || math.IsInf(in.DT, 0) {
		res.State = next

		return res
	}

	next.Time += in.DT
	next.Elapsed += in.DT

	size := windowSize(cfg.StabilityWindow, in.DT)
	next.Trackers = Trackers{
		Temperature: next.Trackers.Temperature.push(in.FeedTemp, size),
		Flow:        next.Trackers.Flow.push(in.FeedFlow, size),
		Speed:       next.Trackers.Speed.push(in.BowlSpeed, size),
		PH:          next.Trackers.PH.push(in.PH, size),
	}

	if !math.IsNaN(in.OIW) && !math.IsInf(in.OIW, 0) {
		next.Master.PV = in.OIW
	}

	updateFlags(&next, in, cfg, &res)
	advanceSequence(&next, in, cfg, &res)

	if next.Sequence == SequenceCascadeActive && next.Mode == ModeCascade && in.OIWValid {
		runMaster(&next, in, cfg, &res)
	} else {
		next.Master.Saturated = false
		next.Master.SaturationDir = pid.SaturationNone
	}

	next.Setpoints.Flow = in.Limits.ClampFeedRate(next.Setpoints.Flow)
	next.Setpoints.Speed = in.Limits.ClampSpeed(next.Setpoints.Speed)

	res.State = next

	return res
}

func computeFlags(in Input, cfg Config) Flags {
	f := Flags{
		VibrationHigh:    in.Vibration > cfg.Overrides.VibrationHigh,
		TorqueHigh:       in.Torque > cfg.Overrides.TorqueHigh,
		TempLow:          in.FeedTemp < cfg.MinEffectiveTemp,
		PHOutOfBand:      in.PH < cfg.PHMin || in.PH > cfg.PHMax,
		EquipmentLimited: in.Equipment == constraint.StatusLimited || in.Equipment == constraint.StatusLockout,
	}
	f.AnyActive = f.Active()

	return f
}

// updateFlags raises flags while feed is on. Vibration and torque cut the setpoints once per
// rising edge; low feed temperature caps flow on every tick.
func updateFlags(s *State, in Input, cfg Config, res *Result) {
	if !s.Sequence.feeding() {
		s.Flags = Flags{}

		return
	}

	prev := s.Flags
	flags := computeFlags(in, cfg)
	o := cfg.Overrides

	if flags.VibrationHigh && !prev.VibrationHigh {
		s.Setpoints.Flow = math.Max(0, s.Setpoints.Flow*(1-o.VibrationFlowCut))
		s.Setpoints.Speed = math.Max(0, s.Setpoints.Speed-o.VibrationSpeedCut)
		raise(s, TagVibration, alarm.PriorityHigh, fmt.Sprintf("vibration %.2f mm/s above %.2f, flow and speed cut", in.Vibration, o.VibrationHigh), in.Now, res)
	}

	if flags.TorqueHigh && !prev.TorqueHigh {
		s.Setpoints.Flow = math.Max(0, s.Setpoints.Flow*(1-o.TorqueFlowCut))
		raise(s, TagTorque, alarm.PriorityHigh, fmt.Sprintf("torque %.0f above %.0f, flow cut", in.Torque, o.TorqueHigh), in.Now, res)
	}

	if flags.TempLow {
		s.Setpoints.Flow = math.Min(s.Setpoints.Flow, math.Max(0, in.FeedFlow*o.TempLowFlowFraction))

		if !prev.TempLow {
			raise(s, TagFeedTemp, alarm.PriorityMedium, fmt.Sprintf("feed temperature %.1f below %.1f, flow capped", in.FeedTemp, cfg.MinEffectiveTemp), in.Now, res)
		}
	}

	if flags.PHOutOfBand && !prev.PHOutOfBand {
		raise(s, TagPH, alarm.PriorityLow, fmt.Sprintf("pH %.2f outside [%.1f, %.1f]", in.PH, cfg.PHMin, cfg.PHMax), in.Now, res)
	}

	if flags.EquipmentLimited && !prev.EquipmentLimited {
		raise(s, TagEquipment, alarm.PriorityHigh, "equipment constraint engine reports "+string(in.Equipment), in.Now, res)
	}

	s.Flags = flags
}

func slaveStable(s *State, in Input, cfg Config, slave Slave) bool {
	return in.Modes.get(slave).Automatic() && s.Trackers.get(slave).Stable(cfg.StabilityTolerance)
}

func phInBand(ph float64, cfg Config) bool {
	return ph >= cfg.PHMin && ph <= cfg.PHMax
}

// advanceSequence fires at most one transition.
func advanceSequence(s *State, in Input, cfg Config, res *Result) {
	if s.Sequence.Running() && in.Equipment == constraint.StatusTrip {
		fire(s, EventTrip, cfg, "equipment trip", in.Now, res)

		return
	}

	event, reason := nextEvent(s, in, cfg)
	if event == "" {
		if limit := cfg.timeout(s.Sequence); limit > 0 && s.Elapsed >= limit {
			fire(s, EventTimeout, cfg, fmt.Sprintf("%s timed out after %.0f s", s.Sequence, s.Elapsed), in.Now, res)
		}

		return
	}

	fire(s, event, cfg, reason, in.Now, res)
}

func nextEvent(s *State, in Input, cfg Config) (string, string) {
	switch s.Sequence {
	case SequenceHeaterWarmup:
		if in.FeedTemp >= cfg.MinEffectiveTemp {
			return EventWarm, fmt.Sprintf("feed temperature %.1f reached %.1f", in.FeedTemp, cfg.MinEffectiveTemp)
		}
	case SequenceHeaterStable:
		if slaveStable(s, in, cfg, SlaveTemperature) {
			return EventHeaterStable, "feed temperature stable"
		}
	case SequenceCentrifugeStart:
		if in.BowlSpeed >= cfg.MinOperatingSpeed {
			return EventAtSpeed, fmt.Sprintf("bowl speed %.0f reached %.0f", in.BowlSpeed, cfg.MinOperatingSpeed)
		}
	case SequenceCentrifugeStable:
		if slaveStable(s, in, cfg, SlaveSpeed) {
			if cfg.ChemistryEnabled {
				return EventCentrifugeStable, "bowl speed stable"
			}

			return EventSkipChemistry, "bowl speed stable, chemistry disabled"
		}
	case SequenceChemistryStart:
		if phInBand(in.PH, cfg) {
			return EventChemistryDosed, fmt.Sprintf("pH %.2f in band", in.PH)
		}
	case SequenceChemistryStable:
		if phInBand(in.PH, cfg) && s.Trackers.PH.Stable(cfg.StabilityTolerance) {
			return EventChemistryStable, "pH stable"
		}
	case SequenceFeedStart:
		if in.FeedFlow >= cfg.MinFeedFlow {
			return EventFeedEstablished, fmt.Sprintf("feed flow %.2f reached %.2f", in.FeedFlow, cfg.MinFeedFlow)
		}
	case SequenceFeedStable:
		if slaveStable(s, in, cfg, SlaveFlow) {
			return EventFeedStable, "feed flow stable"
		}
	case SequenceCascadeReady:
		if in.OIWValid && !s.Flags.Active() &&
			slaveStable(s, in, cfg, SlaveTemperature) &&
			slaveStable(s, in, cfg, SlaveSpeed) &&
			slaveStable(s, in, cfg, SlaveFlow) {
			return EventActivate, "slaves stable and quality valid"
		}
	case SequenceCascadeActive:
		if s.Flags.Active() {
			return EventConstraint, "equipment constraint active"
		}

		if !in.OIWValid {
			return EventQualityLost, "oil-in-water reading invalid"
		}
	case SequenceConstraintOverride:
		if !s.Flags.Active() {
			return EventConstraintsCleared, "constraints cleared"
		}
	case SequenceShutdown:
		return EventStopped, "shutdown complete"
	case SequenceIdle, SequenceFault:
	}

	return "", ""
}

// fire runs one sequencer transition and its entry actions.
func fire(s *State, event string, cfg Config, reason string, now time.Time, res *Result) {
	tr, err := sequencer.Fire(context.Background(), string(s.Sequence), event)
	if err != nil {
		tr.From, tr.To, tr.Event = string(s.Sequence), string(SequenceFault), event
		reason = err.Error()
	}

	from, to := Sequence(tr.From), Sequence(tr.To)
	s.Sequence = to
	s.Elapsed = 0

	res.Transitions = append(res.Transitions, Transition{Event: tr.Event, From: from, To: to, Reason: reason})

	if from == SequenceCascadeActive && (to == SequenceCascadeReady || to == SequenceConstraintOverride) {
		s.Master.Enabled = false
		s.Mode = ModeSlaveOnly
		if to == SequenceConstraintOverride {
			s.Mode = ModeConstraint
		}

		for _, slave := range Slaves {
			res.Commands = append(res.Commands, LoopCommand{Tag: cfg.Slave(slave).Tag, Mode: pid.ModeAuto})
		}
	}

	if event == EventQualityLost {
		raise(s, TagQuality, alarm.PriorityHigh, "quality reading lost, master disabled", now, res)
	}

	switch to {
	case SequenceHeaterWarmup:
		s.Mode = ModeSlaveOnly
		s.FaultReason = ""
		s.Setpoints = startupSetpoints(cfg)
		s.Master = MasterState{Target: cfg.Target, Demand: constants.OutputBias}
		startSlave(s, SlaveTemperature, cfg, res)
	case SequenceCentrifugeStart:
		startSlave(s, SlaveSpeed, cfg, res)
	case SequenceFeedStart:
		startSlave(s, SlaveFlow, cfg, res)
	case SequenceCascadeActive:
		s.Mode = ModeCascade
		s.Master.Enabled = true
		s.Master.Target = cfg.Target
		// Preload so the first demand equals the last one.
		s.Master.Integral = s.Master.Demand - constants.OutputBias + cfg.Kp*(cfg.Target-s.Master.PV)

		for _, slave := range Slaves {
			res.Commands = append(res.Commands, LoopCommand{Tag: cfg.Slave(slave).Tag, Mode: pid.ModeCas})
		}
	case SequenceFault:
		s.Mode = ModeOff
		s.Master.Enabled = false
		s.FaultReason = reason

		for _, slave := range Slaves {
			res.Commands = append(res.Commands, LoopCommand{Tag: cfg.Slave(slave).Tag, Mode: pid.ModeMan})
		}

		raise(s, TagSequence, alarm.PriorityCritical, "sequence fault: "+reason, now, res)
	case SequenceShutdown:
		s.Mode = ModeOff
		s.Master.Enabled = false

		for _, slave := range Slaves {
			zero := 0.0
			res.Commands = append(res.Commands, LoopCommand{Tag: cfg.Slave(slave).Tag, Mode: pid.ModeMan, Output: &zero})
		}
	case SequenceIdle:
		s.Mode = ModeOff
	case SequenceCascadeReady:
		if from == SequenceConstraintOverride {
			s.Mode = ModeSlaveOnly
		}
	case SequenceHeaterStable, SequenceCentrifugeStable, SequenceChemistryStart, SequenceChemistryStable,
		SequenceFeedStable, SequenceConstraintOverride:
	}
}

// startSlave puts one slave in AUTO at its start-up setpoint. Limits clamp it again at the end of the tick.
func startSlave(s *State, slave Slave, cfg Config, res *Result) {
	sp := cfg.Slave(slave).StartupSP
	s.Setpoints.set(slave, sp)
	res.Commands = append(res.Commands, LoopCommand{Tag: cfg.Slave(slave).Tag, Mode: pid.ModeAuto, Setpoint: &sp})
}

// runMaster computes the demand from the quality error and maps it onto the slave setpoints.
// Demand rises when oil-in-water is above target.
func runMaster(s *State, in Input, cfg Config, res *Result) {
	m := s.Master
	m.Target = cfg.Target
	m.PV = in.OIW
	m.Error = cfg.Target - in.OIW

	raw := constants.OutputBias - cfg.Kp*m.Error + m.Integral
	if math.IsNaN(raw) {
		raw = m.Demand
	}

	m.Demand = math.Max(cfg.DemandMin, math.Min(cfg.DemandMax, raw))

	switch {
	case raw > cfg.DemandMax:
		m.Saturated, m.SaturationDir = true, pid.SaturationHi
	case raw < cfg.DemandMin:
		m.Saturated, m.SaturationDir = true, pid.SaturationLo
	default:
		m.Saturated, m.SaturationDir = false, pid.SaturationNone
	}

	drive := -m.Error
	windingUp := (m.SaturationDir == pid.SaturationHi && drive > 0) ||
		(m.SaturationDir == pid.SaturationLo && drive < 0)

	if !windingUp {
		if next := m.Integral + cfg.Ki*drive*in.DT; !math.IsNaN(next) && !math.IsInf(next, 0) {
			m.Integral = next
		}
	}

	s.Master = m

	if m.Saturated {
		raise(s, constants.LoopMaster, alarm.PriorityMedium, fmt.Sprintf("master demand saturated %s", m.SaturationDir), in.Now, res)
	}

	for _, slave := range Slaves {
		sc := cfg.Slave(slave)
		target := mapDemand(m.Demand, cfg, sc)
		s.Setpoints.set(slave, rateLimit(s.Setpoints.Get(slave), target, sc.MaxRatePerSec*in.DT))
	}
}

// mapDemand maps a demand linearly onto the slave setpoint range.
func mapDemand(demand float64, cfg Config, sc SlaveConfig) float64 {
	frac := (demand - cfg.DemandMin) / (cfg.DemandMax - cfg.DemandMin)
	span := sc.SPMax - sc.SPMin

	if sc.Inverted {
		return sc.SPMax - frac*span
	}

	return sc.SPMin + frac*span
}

func rateLimit(current, target, maxStep float64) float64 {
	if maxStep <= 0 {
		return target
	}

	return current + math.Max(-maxStep, math.Min(maxStep, target-current))
}

func raise(s *State, tag string, priority alarm.Priority, message string, at time.Time, res *Result) {
	list, added := s.Alarms.Raise(tag, priority, message, at)
	if !added {
		return
	}

	s.Alarms = list
	res.Raised = append(res.Raised, list.Items[len(list.Items)-1])
}
