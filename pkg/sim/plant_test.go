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
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
	"github.com/united-manufacturing-hub/separation-core/pkg/sim"
)

func quiet() sim.Config {
	cfg := sim.DefaultConfig()
	cfg.Noise = 0

	return cfg
}

var _ = Describe("Plant", func() {
	It("rejects an invalid model", func() {
		cfg := sim.DefaultConfig()
		cfg.Feed.OilFraction = 0.5

		_, err := sim.New(cfg)
		Expect(err).To(MatchError(sim.ErrInvalidConfig))
	})

	It("starts cold and stopped", func() {
		p, err := sim.New(quiet())
		Expect(err).NotTo(HaveOccurred())

		r := p.Readings()
		Expect(r[constants.VarFeedTemp]).To(BeNumerically("==", 25))
		Expect(r[constants.VarBowlSpeed]).To(BeZero())
		Expect(r[constants.VarOIW]).To(BeNumerically("==", 25))
		Expect(r[constants.VarOIWValid]).To(BeNumerically("==", 1))
	})

	It("settles each actuator at its steady state", func() {
		p, _ := sim.New(quiet())

		var r plant.Readings
		for i := 0; i < 600; i++ {
			r = p.Step(sim.Actuators{Heater: 64.3, Drive: 87.5, Pump: 50}, constraint.Limits{}, 1)
		}

		Expect(r[constants.VarFeedTemp]).To(BeNumerically("~", 25+0.7*64.3, 0.01))
		Expect(r[constants.VarBowlSpeed]).To(BeNumerically("~", 2800, 0.1))
		Expect(r[constants.VarFeedFlow]).To(BeNumerically("~", 7.5, 0.01))
		Expect(r[constants.VarOilOut] + r[constants.VarWaterOut] + r[constants.VarSolidsOut]).To(BeNumerically("~", r[constants.VarFeedFlow], 1e-9))
	})

	It("applies the enforced limits to the actuators", func() {
		p, _ := sim.New(quiet())

		stop := 0.0
		slow := 1800.0
		limits := constraint.Limits{FeedRate: &stop, Speed: &slow, HeaterOff: true}

		var r plant.Readings
		for i := 0; i < 600; i++ {
			r = p.Step(sim.Actuators{Heater: 100, Drive: 100, Pump: 100}, limits, 1)
		}

		Expect(r[constants.VarFeedTemp]).To(BeNumerically("~", 25, 0.01))
		Expect(r[constants.VarBowlSpeed]).To(BeNumerically("~", 1800, 0.1))
		Expect(r[constants.VarFeedFlow]).To(BeNumerically("~", 0, 0.01))
	})

	It("samples oil-in-water once per analyzer period", func() {
		p, _ := sim.New(quiet())
		act := sim.Actuators{Heater: 64.3, Drive: 87.5, Pump: 50}

		for i := 0; i < 29; i++ {
			Expect(p.Step(act, constraint.Limits{}, 1)[constants.VarOIW]).To(BeNumerically("==", 25))
		}

		Expect(p.Step(act, constraint.Limits{}, 1)[constants.VarOIW]).NotTo(BeNumerically("==", 25))
	})

	It("reports an analyzer fault", func() {
		p, _ := sim.New(quiet())
		p.SetAnalyzerHealthy(false)

		Expect(p.Step(sim.Actuators{}, constraint.Limits{}, 1)[constants.VarOIWValid]).To(BeZero())
	})

	It("is deterministic for a seed", func() {
		a, _ := sim.New(sim.DefaultConfig())
		b, _ := sim.New(sim.DefaultConfig())
		act := sim.Actuators{Heater: 50, Drive: 50, Pump: 50}

		for i := 0; i < 50; i++ {
			Expect(a.Step(act, constraint.Limits{}, 1)).To(Equal(b.Step(act, constraint.Limits{}, 1)))
		}
	})

	It("ignores a non-positive step", func() {
		p, _ := sim.New(quiet())
		p.Step(sim.Actuators{}, constraint.Limits{}, 0)

		Expect(p.State().Time).To(BeZero())
	})
})

var _ = Describe("Closed loop", func() {
	It("takes the cold plant through start-up into cascade control", func() {
		core, err := plant.NewCore(plant.DefaultConfig(), zap.NewNop().Sugar())
		Expect(err).NotTo(HaveOccurred())

		for _, l := range core.Config().Loops {
			Expect(core.SetLoopOutput(l.Tag, 0)).To(Succeed())
		}

		p, err := sim.New(sim.DefaultConfig())
		Expect(err).NotTo(HaveOccurred())

		out := core.Tick(p.Readings(), 1)
		Expect(core.StartCascade()).To(Succeed())

		visited := []cascade.Sequence{cascade.SequenceHeaterWarmup}

		for i := 0; i < 2000 && out.Sequence != cascade.SequenceCascadeActive; i++ {
			out = core.Tick(p.Step(sim.ActuatorsFrom(out), out.Limits, 1), 1)

			if out.Sequence != visited[len(visited)-1] {
				visited = append(visited, out.Sequence)
			}
		}

		Expect(visited).To(Equal([]cascade.Sequence{
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

		for i := 0; i < 600; i++ {
			out = core.Tick(p.Step(sim.ActuatorsFrom(out), out.Limits, 1), 1)
			Expect(out.Sequence).NotTo(Equal(cascade.SequenceFault))
		}
	})
})
