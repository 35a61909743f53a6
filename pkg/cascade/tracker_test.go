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
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
)

var _ = Describe("Tracker", func() {
	fill := func(values ...float64) cascade.Tracker {
		var t cascade.Tracker
		for _, v := range values {
			t = t.Push(v, 4)
		}

		return t
	}

	It("derives the window size from the step", func() {
		Expect(cascade.WindowSize(30, 1)).To(Equal(30))
		Expect(cascade.WindowSize(30, 0.5)).To(Equal(60))
		Expect(cascade.WindowSize(1, 10)).To(Equal(2))
	})

	It("is not stable before the window is full", func() {
		t := fill(10, 10, 10)
		Expect(t.Full()).To(BeFalse())
		Expect(t.Stable(5)).To(BeFalse())
	})

	It("is stable within tolerance of the mean", func() {
		t := fill(100, 101, 99, 100)
		Expect(t.Mean()).To(BeNumerically("~", 100, 1e-9))
		Expect(t.MaxDeviation()).To(BeNumerically("~", 1, 1e-9))
		Expect(t.Stable(1)).To(BeTrue())
		Expect(t.Stable(0.5)).To(BeFalse())
	})

	It("keeps only the trailing window", func() {
		t := fill(0, 0, 0, 0, 50, 50, 50, 50)
		Expect(t.Mean()).To(Equal(50.0))
		Expect(t.Stable(0.1)).To(BeTrue())
	})

	It("does not share samples with earlier copies", func() {
		a := fill(1, 2, 3, 4)
		b := a.Push(100, 4)

		Expect(a.Mean()).To(Equal(2.5))
		Expect(b.Mean()).To(BeNumerically(">", 2.5))
	})

	It("ignores non-finite samples", func() {
		t := fill(5, 5)
		t = t.Push(math.NaN(), 4).Push(math.Inf(1), 4)
		Expect(t.Count).To(Equal(2))
	})

	It("restarts when the window size changes", func() {
		t := fill(5, 5, 5, 5).Push(5, 8)
		Expect(t.Count).To(Equal(1))
	})
})

var _ = Describe("Config", func() {
	It("accepts the defaults", func() {
		Expect(cascade.DefaultConfig().Validate()).To(Succeed())
	})

	DescribeTable("rejects",
		func(mutate func(*cascade.Config)) {
			cfg := cascade.DefaultConfig()
			mutate(&cfg)
			Expect(errors.Is(cfg.Validate(), cascade.ErrInvalidConfig)).To(BeTrue())
		},
		Entry("negative gain", func(c *cascade.Config) { c.Kp = -1 }),
		Entry("empty demand range", func(c *cascade.Config) { c.DemandMax = c.DemandMin }),
		Entry("slave without tag", func(c *cascade.Config) { c.Flow.Tag = "" }),
		Entry("duplicate slave tag", func(c *cascade.Config) { c.Flow.Tag = c.Speed.Tag }),
		Entry("inverted slave range", func(c *cascade.Config) { c.Speed.SPMin = 4000 }),
		Entry("startup setpoint out of range", func(c *cascade.Config) { c.Temperature.StartupSP = 95 }),
		Entry("pH band", func(c *cascade.Config) { c.PHMin = 9 }),
		Entry("zero stability window", func(c *cascade.Config) { c.StabilityWindow = 0 }),
		Entry("negative timeout", func(c *cascade.Config) { c.Timeouts.FeedStart = -1 }),
		Entry("flow cut above one", func(c *cascade.Config) { c.Overrides.TorqueFlowCut = 1.5 }),
	)
})
