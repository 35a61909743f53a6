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

package integrity

import (
	"fmt"
	"math"
)

// RangeRule flags values outside [Min, Max]. Confidence falls from 100 to 50 within
// the outer tenth of the span at either edge.
type RangeRule struct {
	Min float64
	Max float64
}

func (RangeRule) Kind() RuleKind { return KindRange }

func (r RangeRule) Check(ctx Context) RuleResult {
	v := ctx.Value
	if v < r.Min || v > r.Max {
		return RuleResult{Status: StatusInvalid, Confidence: 0, Note: fmt.Sprintf("%g outside [%g, %g]", v, r.Min, r.Max)}
	}

	edge := 0.1 * (r.Max - r.Min)
	if edge <= 0 {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	distance := math.Min(v-r.Min, r.Max-v)
	if distance >= edge {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	return RuleResult{Status: StatusValid, Confidence: 50 + 50*distance/edge, Note: "near range limit"}
}

// PhysicsRule checks a conservation balance: the outlets must sum to the inlet within TolerancePct.
// An empty Inlet uses the gated value itself.
type PhysicsRule struct {
	Inlet        string
	Outlets      []string
	TolerancePct float64
}

func (PhysicsRule) Kind() RuleKind { return KindPhysics }

func (r PhysicsRule) Check(ctx Context) RuleResult {
	inlet := ctx.Value
	if r.Inlet != "" {
		v, ok := ctx.Related[r.Inlet]
		if !ok {
			return RuleResult{Status: StatusWarning, Confidence: 50, Note: "inlet " + r.Inlet + " unavailable"}
		}

		inlet = v
	}

	sum := 0.0

	for _, name := range r.Outlets {
		v, ok := ctx.Related[name]
		if !ok {
			return RuleResult{Status: StatusWarning, Confidence: 50, Note: "outlet " + name + " unavailable"}
		}

		sum += v
	}

	const eps = 1e-9
	if math.Abs(inlet) < eps {
		if math.Abs(sum) < eps {
			return RuleResult{Status: StatusValid, Confidence: 100}
		}

		return RuleResult{Status: StatusInvalid, Confidence: 0, Note: "outlet flow without inlet flow"}
	}

	errPct := math.Abs(inlet-sum) / math.Abs(inlet) * 100
	tol := r.TolerancePct

	confidence := 0.0
	if tol > 0 {
		confidence = clampConfidence(100 - 50*errPct/tol)
	}

	note := fmt.Sprintf("balance error %.1f%%", errPct)

	switch {
	case errPct <= tol:
		return RuleResult{Status: StatusValid, Confidence: confidence}
	case errPct <= 2*tol:
		return RuleResult{Status: StatusWarning, Confidence: confidence, Note: note}
	default:
		return RuleResult{Status: StatusInvalid, Confidence: confidence, Note: note}
	}
}

// RateRule limits the relative change per second. The change is taken relative to
// max(|previous|, Floor) so values near zero do not produce huge rates.
type RateRule struct {
	MaxPctPerSec float64
	Floor        float64
}

func (RateRule) Kind() RuleKind { return KindRate }

func (r RateRule) Check(ctx Context) RuleResult {
	if !ctx.HasPrevious || ctx.DT <= 0 || r.MaxPctPerSec <= 0 {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	base := math.Max(math.Abs(ctx.Previous), r.Floor)
	if base <= 0 {
		base = 1
	}

	rate := math.Abs(ctx.Value-ctx.Previous) * 100 / base / ctx.DT
	note := fmt.Sprintf("rate %.1f%%/s", rate)

	switch {
	case rate > 2*r.MaxPctPerSec:
		return RuleResult{Status: StatusInvalid, Confidence: 0, Note: note}
	case rate > r.MaxPctPerSec:
		return RuleResult{Status: StatusWarning, Confidence: 50, Note: note}
	default:
		return RuleResult{Status: StatusValid, Confidence: clampConfidence(100 - 40*rate/r.MaxPctPerSec)}
	}
}

// ConsistencyRule checks an arbitrary predicate against the related values.
type ConsistencyRule struct {
	Name string
	// Predicate returns whether the value is consistent, and a note when it is not.
	Predicate  func(ctx Context) (bool, string)
	FailStatus Status
}

func (ConsistencyRule) Kind() RuleKind { return KindConsistency }

func (r ConsistencyRule) Check(ctx Context) RuleResult {
	if r.Predicate == nil {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	ok, note := r.Predicate(ctx)
	if ok {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	status := r.FailStatus
	if status == "" {
		status = StatusWarning
	}

	confidence := 50.0
	if status == StatusInvalid {
		confidence = 0
	}

	if note == "" {
		note = r.Name + " failed"
	}

	return RuleResult{Status: status, Confidence: confidence, Note: note}
}

// StalenessRule flags readings that have not changed for longer than MaxAge seconds.
type StalenessRule struct {
	MaxAge float64
}

func (StalenessRule) Kind() RuleKind { return KindStaleness }

func (r StalenessRule) Check(ctx Context) RuleResult {
	if !ctx.HasAge || r.MaxAge <= 0 {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	if ctx.Age > r.MaxAge {
		return RuleResult{Status: StatusStale, Confidence: 25, Note: fmt.Sprintf("unchanged for %.0fs", ctx.Age)}
	}

	half := r.MaxAge / 2
	if ctx.Age <= half {
		return RuleResult{Status: StatusValid, Confidence: 100}
	}

	return RuleResult{Status: StatusValid, Confidence: 100 - 50*(ctx.Age-half)/half}
}

func clampConfidence(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
