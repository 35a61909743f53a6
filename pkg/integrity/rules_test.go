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

package integrity_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/integrity"
)

var _ = Describe("Rules", func() {
	Describe("status ordering", func() {
		It("ranks VALID < WARNING < STALE < MISSING < INVALID", func() {
			order := []integrity.Status{
				integrity.StatusValid, integrity.StatusWarning, integrity.StatusStale,
				integrity.StatusMissing, integrity.StatusInvalid,
			}
			for i, s := range order {
				Expect(s.Rank()).To(Equal(i))
			}
		})
	})

	Describe("RangeRule", func() {
		rule := integrity.RangeRule{Min: 0, Max: 100}

		DescribeTable("confidence decays near the edges",
			func(value float64, status integrity.Status, confidence float64) {
				r := rule.Check(integrity.Context{Value: value})
				Expect(r.Status).To(Equal(status))
				Expect(r.Confidence).To(BeNumerically("~", confidence, 1e-9))
			},
			Entry("centre", 50.0, integrity.StatusValid, 100.0),
			Entry("edge band boundary", 10.0, integrity.StatusValid, 100.0),
			Entry("inside lower band", 5.0, integrity.StatusValid, 75.0),
			Entry("inside upper band", 98.0, integrity.StatusValid, 60.0),
			Entry("at the limit", 100.0, integrity.StatusValid, 50.0),
			Entry("below", -0.1, integrity.StatusInvalid, 0.0),
			Entry("above", 100.1, integrity.StatusInvalid, 0.0),
		)
	})

	Describe("PhysicsRule", func() {
		rule := integrity.PhysicsRule{Inlet: "in", Outlets: []string{"a", "b"}, TolerancePct: 5}

		check := func(in, a, b float64) integrity.RuleResult {
			return rule.Check(integrity.Context{Related: map[string]float64{"in": in, "a": a, "b": b}})
		}

		It("accepts a balance within tolerance", func() {
			r := check(10, 4.8, 5)
			Expect(r.Status).To(Equal(integrity.StatusValid))
			Expect(r.Confidence).To(BeNumerically("~", 80, 1e-9))
		})

		It("warns up to twice the tolerance", func() {
			r := check(10, 4.3, 5)
			Expect(r.Status).To(Equal(integrity.StatusWarning))
			Expect(r.Confidence).To(BeNumerically("~", 30, 1e-9))
		})

		It("invalidates beyond twice the tolerance", func() {
			r := check(10, 3, 5)
			Expect(r.Status).To(Equal(integrity.StatusInvalid))
			Expect(r.Confidence).To(Equal(0.0))
		})

		It("uses the gated value when no inlet is named", func() {
			r := integrity.PhysicsRule{Outlets: []string{"a"}, TolerancePct: 5}.
				Check(integrity.Context{Value: 4, Related: map[string]float64{"a": 4}})
			Expect(r.Status).To(Equal(integrity.StatusValid))
		})

		It("warns when an outlet is missing", func() {
			r := rule.Check(integrity.Context{Related: map[string]float64{"in": 10, "a": 5}})
			Expect(r.Status).To(Equal(integrity.StatusWarning))
		})

		It("handles a zero inlet", func() {
			Expect(check(0, 0, 0).Status).To(Equal(integrity.StatusValid))
			Expect(check(0, 1, 0).Status).To(Equal(integrity.StatusInvalid))
		})
	})

	Describe("RateRule", func() {
		rule := integrity.RateRule{MaxPctPerSec: 10, Floor: 1}

		DescribeTable("classifies the relative change per second",
			func(value, dt float64, status integrity.Status, confidence float64) {
				r := rule.Check(integrity.Context{Value: value, Previous: 10, HasPrevious: true, DT: dt})
				Expect(r.Status).To(Equal(status))
				Expect(r.Confidence).To(BeNumerically("~", confidence, 1e-9))
			},
			Entry("slow change", 10.5, 1.0, integrity.StatusValid, 80.0),
			Entry("above the limit", 12.0, 1.0, integrity.StatusWarning, 50.0),
			Entry("above twice the limit", 13.0, 1.0, integrity.StatusInvalid, 0.0),
			Entry("same change over a longer tick", 13.0, 3.0, integrity.StatusValid, 60.0),
		)

		It("passes without a previous value", func() {
			Expect(rule.Check(integrity.Context{Value: 1000, DT: 1}).Status).To(Equal(integrity.StatusValid))
		})

		It("measures changes near zero against the floor", func() {
			r := integrity.RateRule{MaxPctPerSec: 10, Floor: 10}.
				Check(integrity.Context{Value: 0.5, Previous: 0, HasPrevious: true, DT: 1})
			Expect(r.Status).To(Equal(integrity.StatusValid))
		})
	})

	Describe("StalenessRule", func() {
		rule := integrity.StalenessRule{MaxAge: 60}

		It("grades the age of a reading", func() {
			Expect(rule.Check(integrity.Context{Age: 20, HasAge: true}).Confidence).To(Equal(100.0))
			Expect(rule.Check(integrity.Context{Age: 45, HasAge: true}).Confidence).To(BeNumerically("~", 75, 1e-9))

			r := rule.Check(integrity.Context{Age: 61, HasAge: true})
			Expect(r.Status).To(Equal(integrity.StatusStale))
			Expect(r.Confidence).To(Equal(25.0))
		})

		It("passes readings without an age", func() {
			Expect(rule.Check(integrity.Context{}).Status).To(Equal(integrity.StatusValid))
		})
	})

	Describe("expression consistency rules", func() {
		It("evaluates a boolean expression over related values", func() {
			rule, err := integrity.NewExpressionRule("outletBalance", "abs(value - (oilOut + waterOut)) < 2", "")
			Expect(err).NotTo(HaveOccurred())

			ok := rule.Check(integrity.Context{Value: 10, Related: map[string]float64{"oilOut": 1, "waterOut": 8.5}})
			Expect(ok.Status).To(Equal(integrity.StatusValid))

			bad := rule.Check(integrity.Context{Value: 10, Related: map[string]float64{"oilOut": 1, "waterOut": 5}})
			Expect(bad.Status).To(Equal(integrity.StatusWarning))
			Expect(bad.Confidence).To(Equal(50.0))
		})

		It("fails with the configured status", func() {
			rule, err := integrity.NewExpressionRule("analyzer", "oiwValid >= 0.5", integrity.StatusInvalid)
			Expect(err).NotTo(HaveOccurred())

			r := rule.Check(integrity.Context{Value: 30, Related: map[string]float64{"oiwValid": 0}})
			Expect(r.Status).To(Equal(integrity.StatusInvalid))
			Expect(r.Confidence).To(Equal(0.0))
		})

		It("fails when a referenced value is missing", func() {
			rule, err := integrity.NewExpressionRule("needsX", "value < x", "")
			Expect(err).NotTo(HaveOccurred())

			r := rule.Check(integrity.Context{Value: 1, Related: map[string]float64{}})
			Expect(r.Status).To(Equal(integrity.StatusWarning))
			Expect(r.Note).To(ContainSubstring("missing x"))
		})

		It("supports min and max", func() {
			rule, err := integrity.NewExpressionRule("bounded", "max(value, a) <= 10 && min(value, a) >= 1", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(rule.Check(integrity.Context{Value: 5, Related: map[string]float64{"a": 9}}).Status).To(Equal(integrity.StatusValid))
			Expect(rule.Check(integrity.Context{Value: 5, Related: map[string]float64{"a": 11}}).Status).To(Equal(integrity.StatusWarning))
		})

		It("rejects expressions that do not compile", func() {
			_, err := integrity.NewExpressionRule("broken", "(value > 1", "")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("cubic power-vs-speed rule", func() {
		rule := integrity.CubicPowerSpeedRule("")

		It("accepts power within 30% of the cubic law", func() {
			r := rule.Check(integrity.Context{Value: 60, Related: map[string]float64{constants.VarBowlSpeed: 3200}})
			Expect(r.Status).To(Equal(integrity.StatusValid))
		})

		It("warns when power deviates more than 30%", func() {
			r := rule.Check(integrity.Context{Value: 30, Related: map[string]float64{constants.VarBowlSpeed: 3200}})
			Expect(r.Status).To(Equal(integrity.StatusWarning))
		})

		It("skips a stopped bowl", func() {
			r := rule.Check(integrity.Context{Value: 5, Related: map[string]float64{constants.VarBowlSpeed: 100}})
			Expect(r.Status).To(Equal(integrity.StatusValid))
		})

		It("scales with the cube of the speed", func() {
			Expect(integrity.ExpectedPower(1600)).To(BeNumerically("~", integrity.ReferencePowerKW/8, 1e-9))
		})
	})
})
