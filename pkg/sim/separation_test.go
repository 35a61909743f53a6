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

package sim_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/united-manufacturing-hub/separation-core/pkg/sim"
)

var _ = Describe("Separation model", func() {
	feed := sim.DefaultFeed()
	bowl := sim.Bowl{Diameter: 400, Length: 1100}

	It("computes the bowl acceleration", func() {
		Expect(sim.GForce(bowl, 3500)).To(BeNumerically("~", 2739, 1))
		Expect(sim.GForce(bowl, 0)).To(BeZero())
	})

	It("thins the water as it heats", func() {
		Expect(sim.Viscosity(feed, 25)).To(BeNumerically("~", 1e-3, 1e-12))
		Expect(sim.Viscosity(feed, 65)).To(BeNumerically("<", sim.Viscosity(feed, 25)))
	})

	It("hinders settling at high solids load", func() {
		v := sim.StokesVelocity(25e-6, 100, 0.001, 1000, 1)
		Expect(v).To(BeNumerically(">", 0))
		Expect(sim.Hindered(v, 0.2)).To(BeNumerically("<", v))
		Expect(sim.Hindered(v, 0.64)).To(BeZero())
	})

	It("bounds the demulsifier coverage", func() {
		Expect(sim.LangmuirCoverage(0)).To(BeZero())
		Expect(sim.LangmuirCoverage(50)).To(And(BeNumerically(">", 0), BeNumerically("<", 1)))
	})

	It("balances the outlets against the feed", func() {
		s := sim.Separate(feed, bowl, 70, 2800, 8)

		Expect(s.OilOut + s.WaterOut + s.SolidsOut).To(BeNumerically("~", 8, 1e-9))
		Expect(s.OIW).To(BeNumerically("~", 11.2, 0.5))
	})

	DescribeTable("improves water quality with each slave",
		func(better, worse [3]float64) {
			b := sim.Separate(feed, bowl, better[0], better[1], better[2])
			w := sim.Separate(feed, bowl, worse[0], worse[1], worse[2])
			Expect(b.OIW).To(BeNumerically("<", w.OIW))
		},
		Entry("hotter feed", [3]float64{75, 2800, 8}, [3]float64{65, 2800, 8}),
		Entry("faster bowl", [3]float64{70, 3000, 8}, [3]float64{70, 2600, 8}),
		Entry("less feed", [3]float64{70, 2800, 6}, [3]float64{70, 2800, 10}),
	)

	It("reports no oil in water without water", func() {
		Expect(sim.Separate(feed, bowl, 70, 2800, 0).OIW).To(BeZero())
	})
})
