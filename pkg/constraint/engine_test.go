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

package constraint_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
)

func nominal() constraint.Snapshot {
	return constraint.Snapshot{
		constants.VarBowlSpeed:    2800,
		constants.VarDifferential: 10,
		constants.VarTorque:       300,
		constants.VarVibration:    2,
		constants.VarBearingTemp:  60,
		constants.VarMotorTemp:    70,
		constants.VarFeedFlow:     8,
		constants.VarFeedTemp:     65,
		constants.VarFeedPressure: 200,
		constants.VarPondDepth:    140,
		constants.VarPower:        40,
	}
}

func with(snapshot constraint.Snapshot, variable string, value float64) constraint.Snapshot {
	out := make(constraint.Snapshot, len(snapshot))
	for k, v := range snapshot {
		out[k] = v
	}

	out[variable] = value

	return out
}

func ptr(v float64) *float64 {
	return &v
}

var _ = Describe("Constraint engine", func() {
	var state constraint.State

	BeforeEach(func() {
		state = constraint.Default()
	})

	It("reports NORMAL without limits for a healthy plant", func() {
		res := constraint.Evaluate(state, nominal(), 1)

		Expect(res.Status).To(Equal(constraint.StatusNormal))
		Expect(res.Tripped).To(BeFalse())
		Expect(res.Limits.Speed).To(BeNil())
		Expect(res.Limits.FeedRate).To(BeNil())
		Expect(res.Limits.Differential).To(BeNil())
		Expect(res.Violations).To(BeEmpty())
		Expect(res.State.Time).To(Equal(1.0))
	})

	It("accepts the default rule set", func() {
		Expect(constraint.ValidateRules(constraint.DefaultConstraints(), constraint.DefaultInterlocks())).To(Succeed())
	})

	It("carries every nameplate limit in the default rule set", func() {
		maxima := map[string]float64{}
		for _, c := range constraint.DefaultConstraints() {
			if c.Max != nil {
				maxima[c.ID] = *c.Max
			}
		}

		Expect(maxima).To(HaveKeyWithValue("C-BOWL-SPEED-MAX", 3200.0))
		Expect(maxima).To(HaveKeyWithValue("C-DIFFERENTIAL-MAX", 25.0))
		Expect(maxima).To(HaveKeyWithValue("C-TORQUE-MAX", 650.0))
		Expect(maxima).To(HaveKeyWithValue("C-VIBRATION-MAX", 4.5))
		Expect(maxima).To(HaveKeyWithValue("C-BEARING-TEMP-MAX", 80.0))
		Expect(maxima).To(HaveKeyWithValue("C-MOTOR-TEMP-MAX", 85.0))
		Expect(maxima).To(HaveKeyWithValue("C-FEED-FLOW-MAX", 15.0))
		Expect(maxima).To(HaveKeyWithValue("C-FEED-TEMP-MAX", 85.0))
		Expect(maxima).To(HaveKeyWithValue("C-FEED-PRESSURE-MAX", 400.0))
		Expect(maxima).To(HaveKeyWithValue("C-POND-DEPTH", 170.0))
		Expect(maxima).To(HaveKeyWithValue("C-POWER-MAX", 75.0))
	})

	It("does not modify the state passed in", func() {
		_ = constraint.Evaluate(state, with(nominal(), constants.VarVibration, 8), 1)

		il, ok := state.Interlock("IL-VIBRATION-TRIP")
		Expect(ok).To(BeTrue())
		Expect(il.Triggered).To(BeFalse())
		Expect(il.Conditions[0].Met).To(BeFalse())
	})

	Describe("constraints", func() {
		It("takes the minimum of violated maxima as the enforced limit", func() {
			s := constraint.NewState([]constraint.Constraint{
				{ID: "SPEED-A", Variable: constants.VarBowlSpeed, Severity: constraint.SeverityHard, Max: ptr(3000)},
				{ID: "SPEED-B", Variable: constants.VarBowlSpeed, Severity: constraint.SeverityHard, Max: ptr(2800)},
			}, nil)

			res := constraint.Evaluate(s, constraint.Snapshot{constants.VarBowlSpeed: 3100}, 1)

			Expect(res.Limits.Speed).NotTo(BeNil())
			Expect(*res.Limits.Speed).To(Equal(2800.0))
			Expect(res.Status).To(Equal(constraint.StatusLimited))
			Expect(res.Violations).To(ConsistOf("SPEED-A", "SPEED-B"))
		})

		It("maps feed flow and differential maxima onto their limits", func() {
			res := constraint.Evaluate(state, with(with(nominal(), constants.VarFeedFlow, 16), constants.VarDifferential, 30), 1)

			Expect(*res.Limits.FeedRate).To(Equal(15.0))
			Expect(*res.Limits.Differential).To(Equal(25.0))
		})

		It("raises only ALARM for soft violations", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarPondDepth, 90), 1)

			Expect(res.Status).To(Equal(constraint.StatusAlarm))
			Expect(res.Violations).To(ConsistOf("C-POND-DEPTH"))
			Expect(res.Limits.Speed).To(BeNil())
		})

		It("applies the corrective action of a hard violation", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarTorque, 700), 1)
			Expect(*res.Limits.FeedRate).To(Equal(0.0))

			res = constraint.Evaluate(state, with(nominal(), constants.VarFeedTemp, 90), 1)
			Expect(res.Limits.HeaterOff).To(BeTrue())

			res = constraint.Evaluate(state, with(nominal(), constants.VarPower, 80), 1)
			Expect(*res.Limits.Speed).To(Equal(constants.MinBowlSpeedRPM))
		})

		It("emits violation and clear events on edges only", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarPondDepth, 90), 1)
			Expect(res.Events).To(ContainElement(HaveField("Kind", constraint.EventConstraintViolated)))

			res = constraint.Evaluate(res.State, with(nominal(), constants.VarPondDepth, 90), 1)
			Expect(res.Events).To(BeEmpty())

			res = constraint.Evaluate(res.State, nominal(), 1)
			Expect(res.Events).To(ConsistOf(HaveField("Kind", constraint.EventConstraintCleared)))
		})

		It("skips constraints whose variable is missing", func() {
			snap := nominal()
			delete(snap, constants.VarPondDepth)

			res := constraint.Evaluate(state, snap, 1)
			c, _ := res.State.Constraint("C-POND-DEPTH")
			Expect(c.Evaluated).To(BeFalse())
			Expect(c.Violated).To(BeFalse())
		})

		It("never violates a bypassed bypassable constraint", func() {
			s, err := constraint.BypassConstraint(state, "C-POND-DEPTH", true)
			Expect(err).NotTo(HaveOccurred())

			res := constraint.Evaluate(s, with(nominal(), constants.VarPondDepth, 90), 1)
			Expect(res.Status).To(Equal(constraint.StatusNormal))

			s, err = constraint.BypassConstraint(res.State, "C-POND-DEPTH", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(constraint.Evaluate(s, with(nominal(), constants.VarPondDepth, 90), 1).Status).To(Equal(constraint.StatusAlarm))
		})

		It("refuses to bypass non-bypassable or unknown constraints and audits the attempt", func() {
			s, err := constraint.BypassConstraint(state, "C-BEARING-TEMP-MAX", true)
			Expect(errors.Is(err, constraint.ErrNotBypassable)).To(BeTrue())
			Expect(s.Audit).To(HaveLen(1))
			Expect(s.Audit[0].Accepted).To(BeFalse())
			Expect(s.Audit[0].Target).To(Equal("C-BEARING-TEMP-MAX"))

			_, err = constraint.BypassConstraint(state, "NOPE", true)
			Expect(errors.Is(err, constraint.ErrUnknownConstraint)).To(BeTrue())
		})

		It("bounds the audit log", func() {
			s := state
			for range constraint.AuditCapacity + 50 {
				s, _ = constraint.BypassConstraint(s, "C-POND-DEPTH", true)
			}

			Expect(s.Audit).To(HaveLen(constraint.AuditCapacity))
		})
	})

	Describe("trip latching", func() {
		It("latches a TRIP-severity violation until ResetTrip", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarBearingTemp, 85), 1)
			Expect(res.Status).To(Equal(constraint.StatusTrip))
			Expect(res.Tripped).To(BeTrue())
			Expect(*res.Limits.Speed).To(Equal(0.0))
			Expect(*res.Limits.FeedRate).To(Equal(0.0))
			Expect(res.State.TripSource).To(Equal("C-BEARING-TEMP-MAX"))

			_, err := constraint.ResetTrip(res.State)
			Expect(errors.Is(err, constraint.ErrTripActive)).To(BeTrue())

			res = constraint.Evaluate(res.State, nominal(), 1)
			Expect(res.Status).To(Equal(constraint.StatusTrip))
			Expect(*res.Limits.Speed).To(Equal(0.0))

			s, err := constraint.ResetTrip(res.State)
			Expect(err).NotTo(HaveOccurred())

			res = constraint.Evaluate(s, nominal(), 1)
			Expect(res.Status).To(Equal(constraint.StatusNormal))
			Expect(res.Limits.Speed).To(BeNil())
		})
	})

	Describe("interlocks", func() {
		It("keeps a manual-reset trip interlock triggered after its condition clears", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarVibration, 8), 1)
			Expect(res.Status).To(Equal(constraint.StatusTrip))
			Expect(res.Events).To(ContainElement(HaveField("Kind", constraint.EventInterlockTriggered)))
			Expect(*res.Limits.Speed).To(Equal(0.0))

			res = constraint.Evaluate(res.State, nominal(), 1)
			il, _ := res.State.Interlock("IL-VIBRATION-TRIP")
			Expect(il.Triggered).To(BeTrue())
			Expect(il.ConditionMet).To(BeFalse())
			Expect(res.Status).To(Equal(constraint.StatusTrip))
		})

		DescribeTable("latches by type and reset flags once the condition clears",
			func(kind constraint.InterlockType, resetRequired, autoReset, latched bool, held constraint.Status) {
				s := constraint.NewState(nil, []constraint.Interlock{{
					ID:            "IL-X",
					Type:          kind,
					Conditions:    []constraint.Condition{{Variable: "x", Operator: constraint.OpGreater, Threshold: 10}},
					Logic:         constraint.LogicAnd,
					Action:        constraint.ActionStopFeed,
					Active:        true,
					AutoReset:     autoReset,
					ResetRequired: resetRequired,
					ResetDelay:    1,
				}})

				res := constraint.Evaluate(s, constraint.Snapshot{"x": 20}, 1)
				for range 3 {
					res = constraint.Evaluate(res.State, constraint.Snapshot{"x": 0}, 1)
				}

				il, _ := res.State.Interlock("IL-X")
				Expect(il.Triggered).To(Equal(latched))
				Expect(res.Status).To(Equal(held))

				reset, err := constraint.ResetInterlock(res.State, "IL-X")
				if !latched {
					Expect(errors.Is(err, constraint.ErrResetNotRequired)).To(BeTrue())

					return
				}

				Expect(err).NotTo(HaveOccurred())
				Expect(constraint.Evaluate(reset, constraint.Snapshot{"x": 0}, 1).Status).To(Equal(constraint.StatusNormal))
			},
			Entry("trip without reset flags", constraint.InterlockTrip, false, false, true, constraint.StatusTrip),
			Entry("trip with auto reset", constraint.InterlockTrip, false, true, true, constraint.StatusTrip),
			Entry("trip with manual reset", constraint.InterlockTrip, true, false, true, constraint.StatusTrip),
			Entry("safety with manual reset", constraint.InterlockSafety, true, false, true, constraint.StatusLockout),
			Entry("safety with manual and auto reset", constraint.InterlockSafety, true, true, true, constraint.StatusLockout),
			Entry("safety with auto reset", constraint.InterlockSafety, false, true, false, constraint.StatusNormal),
			Entry("safety without reset flags", constraint.InterlockSafety, false, false, false, constraint.StatusNormal),
			Entry("permissive without reset flags", constraint.InterlockPermissive, false, false, false, constraint.StatusNormal),
		)

		It("refuses a reset while the condition is still met", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarVibration, 8), 1)

			_, err := constraint.ResetInterlock(res.State, "IL-VIBRATION-TRIP")
			Expect(errors.Is(err, constraint.ErrConditionStillMet)).To(BeTrue())

			res = constraint.Evaluate(res.State, nominal(), 1)
			s, err := constraint.ResetInterlock(res.State, "IL-VIBRATION-TRIP")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Audit[len(s.Audit)-1].Accepted).To(BeTrue())

			Expect(constraint.Evaluate(s, nominal(), 1).Status).To(Equal(constraint.StatusNormal))
		})

		It("rejects resets of self-resetting or unknown interlocks", func() {
			_, err := constraint.ResetInterlock(state, "IL-FEED-PRESSURE-HIGH")
			Expect(errors.Is(err, constraint.ErrResetNotRequired)).To(BeTrue())

			_, err = constraint.ResetInterlock(state, "IL-NOPE")
			Expect(errors.Is(err, constraint.ErrUnknownInterlock)).To(BeTrue())
		})

		It("reports LOCKOUT for a triggered safety interlock that needs a manual reset", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarMotorTemp, 95), 1)
			Expect(res.Status).To(Equal(constraint.StatusLockout))
			Expect(res.Tripped).To(BeFalse())
		})

		It("auto-resets after the condition has been clear for the reset delay", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarFeedPressure, 420), 10)
			Expect(res.Status).To(Equal(constraint.StatusLimited))
			Expect(*res.Limits.FeedRate).To(Equal(0.0))

			// Inside the hysteresis band the condition still holds.
			res = constraint.Evaluate(res.State, with(nominal(), constants.VarFeedPressure, 390), 10)
			il, _ := res.State.Interlock("IL-FEED-PRESSURE-HIGH")
			Expect(il.ConditionMet).To(BeTrue())

			for range 2 {
				res = constraint.Evaluate(res.State, with(nominal(), constants.VarFeedPressure, 370), 10)
				il, _ = res.State.Interlock("IL-FEED-PRESSURE-HIGH")
				Expect(il.Triggered).To(BeTrue())
			}

			res = constraint.Evaluate(res.State, with(nominal(), constants.VarFeedPressure, 370), 10)
			il, _ = res.State.Interlock("IL-FEED-PRESSURE-HIGH")
			Expect(il.Triggered).To(BeFalse())
			Expect(res.Status).To(Equal(constraint.StatusNormal))
			Expect(res.Events).To(ContainElement(HaveField("Kind", constraint.EventInterlockCleared)))
		})

		It("follows the condition directly for a non-latching permissive", func() {
			res := constraint.Evaluate(state, with(nominal(), constants.VarBowlSpeed, 1000), 1)
			Expect(res.Status).To(Equal(constraint.StatusLimited))
			Expect(*res.Limits.FeedRate).To(Equal(0.0))

			res = constraint.Evaluate(res.State, with(nominal(), constants.VarBowlSpeed, 2000), 1)
			il, _ := res.State.Interlock("IL-FEED-PERMISSIVE")
			Expect(il.Triggered).To(BeFalse())
			Expect(res.Limits.FeedRate).To(BeNil())
		})

		It("skips disarmed interlocks", func() {
			s := constraint.NewState(nil, []constraint.Interlock{{
				ID:         "IL-OFF",
				Type:       constraint.InterlockTrip,
				Conditions: []constraint.Condition{{Variable: "x", Operator: constraint.OpGreater, Threshold: 1}},
				Logic:      constraint.LogicAnd,
				Action:     constraint.ActionStopFeed,
			}})

			res := constraint.Evaluate(s, constraint.Snapshot{"x": 5}, 1)
			Expect(res.Status).To(Equal(constraint.StatusNormal))
		})

		It("combines conditions with AND and OR", func() {
			conditions := []constraint.Condition{
				{Variable: "a", Operator: constraint.OpGreater, Threshold: 1},
				{Variable: "b", Operator: constraint.OpGreater, Threshold: 1},
			}
			and := constraint.Interlock{ID: "AND", Type: constraint.InterlockSafety, Conditions: conditions, Logic: constraint.LogicAnd, Action: constraint.ActionAlarmOnly, Active: true}
			or := and
			or.ID = "OR"
			or.Logic = constraint.LogicOr

			res := constraint.Evaluate(constraint.NewState(nil, []constraint.Interlock{and, or}), constraint.Snapshot{"a": 2, "b": 0}, 1)

			a, _ := res.State.Interlock("AND")
			o, _ := res.State.Interlock("OR")
			Expect(a.Triggered).To(BeFalse())
			Expect(o.Triggered).To(BeTrue())
		})

		It("treats a missing variable as a condition that is not met", func() {
			res := constraint.Evaluate(state, constraint.Snapshot{}, 1)
			il, _ := res.State.Interlock("IL-FEED-PERMISSIVE")
			Expect(il.Triggered).To(BeFalse())
		})
	})

	Describe("hysteresis", func() {
		It("keeps a condition with threshold 50 and hysteresis 5 met until the value falls to 45", func() {
			s := constraint.NewState(nil, []constraint.Interlock{{
				ID:         "IL-LEVEL",
				Type:       constraint.InterlockSafety,
				Conditions: []constraint.Condition{{Variable: "level", Operator: constraint.OpGreater, Threshold: 50, Hysteresis: 5}},
				Logic:      constraint.LogicAnd,
				Action:     constraint.ActionAlarmOnly,
				Active:     true,
			}})

			met := func(value float64) bool {
				res := constraint.Evaluate(s, constraint.Snapshot{"level": value}, 1)
				s = res.State
				il, _ := s.Interlock("IL-LEVEL")

				return il.Conditions[0].Met
			}

			Expect(met(49)).To(BeFalse())
			Expect(met(51)).To(BeTrue())
			Expect(met(49)).To(BeTrue())
			Expect(met(45.5)).To(BeTrue())
			Expect(met(45)).To(BeFalse())
			Expect(met(48)).To(BeFalse())
			Expect(met(50.1)).To(BeTrue())
		})

		DescribeTable("shifts the threshold only once met",
			func(op constraint.Operator, value float64, wasMet, expected bool) {
				Expect(constraint.ConditionMet(op, value, 50, 5, wasMet)).To(Equal(expected))
			},
			Entry("> not yet met", constraint.OpGreater, 48.0, false, false),
			Entry("> held inside band", constraint.OpGreater, 48.0, true, true),
			Entry(">= at shifted threshold", constraint.OpGreaterEqual, 45.0, true, true),
			Entry(">= below shifted threshold", constraint.OpGreaterEqual, 44.9, true, false),
			Entry("< not yet met", constraint.OpLess, 52.0, false, false),
			Entry("< held inside band", constraint.OpLess, 52.0, true, true),
			Entry("<= at shifted threshold", constraint.OpLessEqual, 55.0, true, true),
			Entry("< beyond band", constraint.OpLess, 55.0, true, false),
			Entry("== within tolerance", constraint.OpEqual, 53.0, false, true),
			Entry("== outside tolerance", constraint.OpEqual, 56.0, true, false),
			Entry("!= outside tolerance", constraint.OpNotEqual, 56.0, false, true),
			Entry("!= within tolerance", constraint.OpNotEqual, 52.0, true, false),
		)
	})

	Describe("ValidateRules", func() {
		It("rejects duplicate ids", func() {
			rules := constraint.DefaultConstraints()
			rules = append(rules, rules[0])
			Expect(errors.Is(constraint.ValidateRules(rules, nil), constraint.ErrInvalidRule)).To(BeTrue())
		})

		It("rejects unknown operators", func() {
			il := constraint.DefaultInterlocks()
			il[0].Conditions[0].Operator = "=>"
			Expect(errors.Is(constraint.ValidateRules(nil, il), constraint.ErrInvalidRule)).To(BeTrue())
		})

		It("rejects unknown actions", func() {
			c := constraint.DefaultConstraints()
			c[0].Action = "EXPLODE"
			Expect(errors.Is(constraint.ValidateRules(c, nil), constraint.ErrInvalidRule)).To(BeTrue())
		})
	})
})
