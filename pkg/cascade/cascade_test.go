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

package cascade_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/separation-core/pkg/alarm"
	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
)

var now = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func nominal() cascade.Input {
	return cascade.Input{
		OIW:       15,
		OIWValid:  true,
		FeedTemp:  70,
		FeedFlow:  8,
		BowlSpeed: 2800,
		PH:        7.2,
		Vibration: 2,
		Torque:    400,
		Modes: cascade.SlaveModes{
			Temperature: pid.ModeAuto,
			Flow:        pid.ModeAuto,
			Speed:       pid.ModeAuto,
		},
		Equipment: constraint.StatusNormal,
		DT:        1,
		Now:       now,
	}
}

func active(cfg cascade.Config) cascade.State {
	s := cascade.NewState(cfg)
	s.Sequence = cascade.SequenceCascadeActive
	s.Mode = cascade.ModeCascade
	s.Master.Enabled = true

	return s
}

func commandFor(cmds []cascade.LoopCommand, tag string) []cascade.LoopCommand {
	var out []cascade.LoopCommand

	for _, c := range cmds {
		if c.Tag == tag {
			out = append(out, c)
		}
	}

	return out
}

func started(cfg cascade.Config) cascade.State {
	res, err := cascade.Start(cascade.NewState(cfg), cfg, now)
	Expect(err).NotTo(HaveOccurred())

	return res.State
}

var _ = Describe("Cascade orchestrator", func() {
	var cfg cascade.Config

	BeforeEach(func() {
		cfg = cascade.DefaultConfig()
	})

	Describe("start-up sequence", func() {
		It("walks from IDLE to CASCADE_ACTIVE on a healthy plant", func() {
			res, err := cascade.Start(cascade.NewState(cfg), cfg, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State.Sequence).To(Equal(cascade.SequenceHeaterWarmup))
			Expect(res.State.Mode).To(Equal(cascade.ModeSlaveOnly))

			tic := commandFor(res.Commands, constants.LoopFeedTemp)
			Expect(tic).To(HaveLen(1))
			Expect(tic[0].Mode).To(Equal(pid.ModeAuto))
			Expect(*tic[0].Setpoint).To(Equal(cfg.Temperature.StartupSP))

			path := []cascade.Sequence{res.State.Sequence}
			commands := []cascade.LoopCommand{}
			state := res.State

			for i := 0; i < 200 && state.Sequence != cascade.SequenceCascadeActive; i++ {
				step := cascade.Step(state, nominal(), cfg)
				for _, tr := range step.Transitions {
					path = append(path, tr.To)
				}

				commands = append(commands, step.Commands...)
				state = step.State
			}

			Expect(path).To(Equal([]cascade.Sequence{
				cascade.SequenceHeaterWarmup,
				cascade.SequenceHeaterStable,
				cascade.SequenceCentrifugeStart,
				cascade.SequenceCentrifugeStable,
				cascade.SequenceChemistryStart,
				cascade.SequenceChemistryStable,
				cascade.SequenceFeedStart,
				cascade.SequenceFeedStable,
				cascade.SequenceCascadeReady,
				cascade.SequenceCascadeActive,
			}))
			Expect(state.Mode).To(Equal(cascade.ModeCascade))
			Expect(state.Master.Enabled).To(BeTrue())

			Expect(commandFor(commands, constants.LoopBowlSpeed)[0].Mode).To(Equal(pid.ModeAuto))
			Expect(commandFor(commands, constants.LoopFeedFlow)[0].Mode).To(Equal(pid.ModeAuto))

			for _, tag := range []string{constants.LoopFeedTemp, constants.LoopFeedFlow, constants.LoopBowlSpeed} {
				cmds := commandFor(commands, tag)
				Expect(cmds[len(cmds)-1].Mode).To(Equal(pid.ModeCas))
			}
		})

		It("skips chemistry when it is disabled", func() {
			cfg.ChemistryEnabled = false
			state := started(cfg)

			var seen []cascade.Sequence

			for i := 0; i < 200 && state.Sequence != cascade.SequenceCascadeActive; i++ {
				step := cascade.Step(state, nominal(), cfg)
				for _, tr := range step.Transitions {
					seen = append(seen, tr.To)
				}

				state = step.State
			}

			Expect(state.Sequence).To(Equal(cascade.SequenceCascadeActive))
			Expect(seen).NotTo(ContainElement(cascade.SequenceChemistryStart))
			Expect(seen).NotTo(ContainElement(cascade.SequenceChemistryStable))
		})

		It("waits for a slave in MAN before declaring it stable", func() {
			state := started(cfg)
			in := nominal()
			in.Modes.Temperature = pid.ModeMan

			for i := 0; i < 100; i++ {
				state = cascade.Step(state, in, cfg).State
			}

			Expect(state.Sequence).To(Equal(cascade.SequenceHeaterStable))
		})

		It("faults at the heater warm-up timeout and never before", func() {
			Expect(cfg.Timeouts.HeaterWarmup).To(Equal(600.0))

			state := started(cfg)
			in := nominal()
			in.FeedTemp = 40

			for i := 1; i < 600; i++ {
				state = cascade.Step(state, in, cfg).State
				Expect(state.Sequence).To(Equal(cascade.SequenceHeaterWarmup), "faulted early at t=%d", i)
			}

			res := cascade.Step(state, in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceFault))
			Expect(res.State.Mode).To(Equal(cascade.ModeOff))
			Expect(res.State.FaultReason).To(ContainSubstring("timed out"))
			Expect(res.Raised).To(HaveLen(1))
			Expect(res.Raised[0].Priority).To(Equal(alarm.PriorityCritical))
			Expect(res.Raised[0].Tag).To(Equal(cascade.TagSequence))

			for _, c := range res.Commands {
				Expect(c.Mode).To(Equal(pid.ModeMan))
			}

			// FAULT is terminal.
			for i := 0; i < 10; i++ {
				res = cascade.Step(res.State, nominal(), cfg)
			}

			Expect(res.State.Sequence).To(Equal(cascade.SequenceFault))
		})

		It("faults on an equipment trip from any running state", func() {
			state := started(cfg)
			in := nominal()
			in.Equipment = constraint.StatusTrip

			res := cascade.Step(state, in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceFault))
			Expect(res.Transitions[0].Event).To(Equal(cascade.EventTrip))
		})

		It("ignores a trip while idle", func() {
			in := nominal()
			in.Equipment = constraint.StatusTrip

			res := cascade.Step(cascade.NewState(cfg), in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceIdle))
		})
	})

	Describe("operator commands", func() {
		It("refuses to start unless idle", func() {
			_, err := cascade.Start(started(cfg), cfg, now)
			Expect(errors.Is(err, cascade.ErrNotIdle)).To(BeTrue())
		})

		It("resets a fault back to IDLE", func() {
			state := started(cfg)
			in := nominal()
			in.Equipment = constraint.StatusTrip
			state = cascade.Step(state, in, cfg).State

			res, err := cascade.ResetFault(state, cfg, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State.Sequence).To(Equal(cascade.SequenceIdle))
			Expect(res.State.FaultReason).To(BeEmpty())

			_, err = cascade.ResetFault(res.State, cfg, now)
			Expect(errors.Is(err, cascade.ErrNotFaulted)).To(BeTrue())
		})

		It("shuts down with every slave in MAN at 0 % and then idles", func() {
			res, err := cascade.Stop(active(cfg), cfg, now)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.State.Sequence).To(Equal(cascade.SequenceShutdown))
			Expect(res.State.Mode).To(Equal(cascade.ModeOff))
			Expect(res.State.Master.Enabled).To(BeFalse())
			Expect(res.Commands).To(HaveLen(3))

			for _, c := range res.Commands {
				Expect(c.Mode).To(Equal(pid.ModeMan))
				Expect(*c.Output).To(Equal(0.0))
			}

			next := cascade.Step(res.State, nominal(), cfg)
			Expect(next.State.Sequence).To(Equal(cascade.SequenceIdle))

			_, err = cascade.Stop(next.State, cfg, now)
			Expect(errors.Is(err, cascade.ErrNotRunning)).To(BeTrue())
		})

		It("acknowledges alarms", func() {
			in := nominal()
			in.OIW = 45
			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.Raised).To(HaveLen(1))

			state, err := cascade.AcknowledgeAlarm(res.State, res.Raised[0].ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(state.Alarms.Active()).To(BeEmpty())

			_, err = cascade.AcknowledgeAlarm(state, res.Raised[0].ID)
			Expect(errors.Is(err, cascade.ErrUnknownAlarm)).To(BeTrue())

			state = cascade.AcknowledgeAllAlarms(state)
			Expect(state.Alarms.Active()).To(BeEmpty())
		})
	})

	Describe("master loop", func() {
		It("saturates HI on a large quality error", func() {
			in := nominal()
			in.OIW = 45

			res := cascade.Step(active(cfg), in, cfg)
			m := res.State.Master

			Expect(m.Error).To(Equal(-30.0))
			Expect(m.Demand).To(Equal(100.0))
			Expect(m.Saturated).To(BeTrue())
			Expect(m.SaturationDir).To(Equal(pid.SaturationHi))
			Expect(m.Integral).To(Equal(0.0))
			Expect(res.State.Alarms.HasActive(constants.LoopMaster)).To(BeTrue())
		})

		It("stops integrating while saturated and unwinds once the error flips", func() {
			in := nominal()
			in.OIW = 45
			state := active(cfg)

			for i := 0; i < 5; i++ {
				state = cascade.Step(state, in, cfg).State
				Expect(state.Master.Integral).To(Equal(0.0))
			}

			in.OIW = 10
			state = cascade.Step(state, in, cfg).State
			Expect(state.Master.Saturated).To(BeFalse())
			Expect(state.Master.Demand).To(Equal(40.0))
			Expect(state.Master.Integral).To(BeNumerically("~", -0.5, 1e-12))
		})

		It("maps demand onto the slaves with inverted flow and rate limits", func() {
			in := nominal()
			in.OIW = 45

			sp := cascade.Step(active(cfg), in, cfg).State.Setpoints
			Expect(sp.Temperature).To(BeNumerically("~", 70.5, 1e-9))
			Expect(sp.Flow).To(BeNumerically("~", 7.8, 1e-9))
			Expect(sp.Speed).To(BeNumerically("~", 2810, 1e-9))
		})

		It("continues at the last demand when cascade activates", func() {
			state := cascade.NewState(cfg)
			state.Sequence = cascade.SequenceCascadeReady
			state.Mode = cascade.ModeSlaveOnly
			state.Master.Demand = 62

			in := nominal()
			in.OIW = 20

			for i := 0; i < 40 && state.Sequence != cascade.SequenceCascadeActive; i++ {
				state = cascade.Step(state, in, cfg).State
			}

			Expect(state.Sequence).To(Equal(cascade.SequenceCascadeActive))
			Expect(state.Master.Demand).To(BeNumerically("~", 62, 1e-9))
		})

		It("disables the master and holds setpoints when quality is lost", func() {
			in := nominal()
			in.OIW = 45
			state := cascade.Step(active(cfg), in, cfg).State
			held := state.Setpoints

			in.OIWValid = false
			res := cascade.Step(state, in, cfg)

			Expect(res.State.Sequence).To(Equal(cascade.SequenceCascadeReady))
			Expect(res.State.Mode).To(Equal(cascade.ModeSlaveOnly))
			Expect(res.State.Master.Enabled).To(BeFalse())
			Expect(res.State.Setpoints).To(Equal(held))
			Expect(res.State.Alarms.HasActive(cascade.TagQuality)).To(BeTrue())

			for _, c := range res.Commands {
				Expect(c.Mode).To(Equal(pid.ModeAuto))
			}
		})
	})

	Describe("constraint overrides", func() {
		It("cuts flow and speed once when vibration rises", func() {
			in := nominal()
			in.Vibration = 4

			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceConstraintOverride))
			Expect(res.State.Setpoints.Flow).To(BeNumerically("~", 6.4, 1e-9))
			Expect(res.State.Setpoints.Speed).To(BeNumerically("~", 2700, 1e-9))
			Expect(res.State.Alarms.HasActive(cascade.TagVibration)).To(BeTrue())

			again := cascade.Step(res.State, in, cfg)
			Expect(again.State.Setpoints).To(Equal(res.State.Setpoints))

			in.Vibration = 2
			cleared := cascade.Step(again.State, in, cfg)
			Expect(cleared.State.Sequence).To(Equal(cascade.SequenceCascadeReady))
		})

		It("cuts flow by 15 % on high torque", func() {
			in := nominal()
			in.Torque = 600

			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.State.Setpoints.Flow).To(BeNumerically("~", 6.8, 1e-9))
		})

		It("caps flow at half the current feed while feed temperature is low", func() {
			in := nominal()
			in.FeedTemp = 58
			in.FeedFlow = 7

			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.State.Setpoints.Flow).To(BeNumerically("~", 3.5, 1e-9))

			in.FeedFlow = 6
			res = cascade.Step(res.State, in, cfg)
			Expect(res.State.Setpoints.Flow).To(BeNumerically("~", 3, 1e-9))
		})

		It("only alarms on pH out of band", func() {
			in := nominal()
			in.PH = 9

			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceCascadeActive))
			Expect(res.State.Alarms.HasActive(cascade.TagPH)).To(BeTrue())
		})

		It("leaves CASCADE_ACTIVE when the engine limits equipment", func() {
			in := nominal()
			in.Equipment = constraint.StatusLimited

			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceConstraintOverride))
			Expect(res.State.Mode).To(Equal(cascade.ModeConstraint))
			Expect(res.State.Master.Enabled).To(BeFalse())
			Expect(res.State.Flags.AnyActive).To(BeTrue())

			res = cascade.Step(res.State, nominal(), cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceCascadeReady))
			Expect(res.State.Mode).To(Equal(cascade.ModeSlaveOnly))
			Expect(res.State.Flags.AnyActive).To(BeFalse())
		})

		It("stays in SLAVE_ONLY when quality is lost", func() {
			in := nominal()
			in.OIWValid = false

			res := cascade.Step(active(cfg), in, cfg)
			Expect(res.State.Sequence).To(Equal(cascade.SequenceCascadeReady))
			Expect(res.State.Mode).To(Equal(cascade.ModeSlaveOnly))
		})

		It("clamps setpoints to the enforced limits", func() {
			limit := 5.0
			speed := 2000.0

			state := cascade.NewState(cfg)
			state.Sequence = cascade.SequenceFeedStable

			in := nominal()
			in.Limits = constraint.Limits{FeedRate: &limit, Speed: &speed}

			sp := cascade.Step(state, in, cfg).State.Setpoints
			Expect(sp.Flow).To(Equal(5.0))
			Expect(sp.Speed).To(Equal(2000.0))
		})
	})

	It("ignores non-positive dt", func() {
		in := nominal()
		in.DT = 0
		state := started(cfg)

		res := cascade.Step(state, in, cfg)
		Expect(res.State).To(Equal(state))
	})

	Describe("sequence table", func() {
		It("leaves FAULT only through reset", func() {
			Expect(cascade.SequenceFault.Events()).To(Equal([]string{cascade.EventReset}))
		})

		It("can stop from every running state", func() {
			for _, seq := range cascade.Sequences {
				if seq.Running() {
					Expect(seq.Events()).To(ContainElement(cascade.EventStop), string(seq))
				}
			}
		})

		It("gives every state a distinct ordinal", func() {
			seen := map[int]bool{}
			for _, seq := range cascade.Sequences {
				Expect(seen[seq.Ordinal()]).To(BeFalse())
				seen[seq.Ordinal()] = true
			}

			Expect(cascade.Sequence("BOGUS").Ordinal()).To(Equal(-1))
		})
	})
})
