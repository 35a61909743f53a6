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
	"math"

	"gonum.org/v1/gonum/stat"
)

// Tracker is a fixed-size ring buffer over the trailing samples of one PV.
type Tracker struct {
	Samples []float64 `json:"samples"`
	Next    int       `json:"next"`
	Count   int       `json:"count"`
}

// windowSize converts a window in seconds into a sample count at the given step.
func windowSize(window, dt float64) int {
	if dt <= 0 {
		return 2
	}

	return max(2, int(math.Round(window/dt)))
}

// push returns a tracker with v appended. A change of size restarts the window.
// Non-finite samples are ignored.
func (t Tracker) push(v float64, size int) Tracker {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return t
	}

	if len(t.Samples) != size {
		t = Tracker{Samples: make([]float64, size)}
	} else {
		t.Samples = append([]float64(nil), t.Samples...)
	}

	t.Samples[t.Next] = v
	t.Next = (t.Next + 1) % size
	t.Count = min(t.Count+1, size)

	return t
}

func (t Tracker) window() []float64 {
	return t.Samples[:t.Count]
}

// Full reports whether the tracker has seen a whole window.
func (t Tracker) Full() bool {
	return len(t.Samples) > 0 && t.Count == len(t.Samples)
}

// Mean of the samples held.
func (t Tracker) Mean() float64 {
	if t.Count == 0 {
		return 0
	}

	return stat.Mean(t.window(), nil)
}

// MaxDeviation is the largest absolute distance of a sample from the mean.
func (t Tracker) MaxDeviation() float64 {
	mean := t.Mean()
	dev := 0.0

	for _, v := range t.window() {
		dev = math.Max(dev, math.Abs(v-mean))
	}

	return dev
}

// Stable reports whether the full window stays within tolerancePct percent of its mean.
func (t Tracker) Stable(tolerancePct float64) bool {
	if !t.Full() {
		return false
	}

	return t.MaxDeviation() <= tolerancePct/100*math.Abs(t.Mean())
}
