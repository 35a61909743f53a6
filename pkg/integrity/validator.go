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

// Package integrity gates measured and calculated values before the control core trusts them.
package integrity

import (
	"math"
	"strings"
)

// Check runs every gate against the readings of one tick. It never drops a value:
// a HARD gate whose worst rule is INVALID emits the last good value instead of the raw reading.
func Check(gates []Gate, in Input) Report {
	report := Report{
		Values: make(map[string]ValidatedValue, len(gates)),
		Gates:  make([]Gate, len(gates)),
		Worst:  StatusValid,
	}

	related := make(map[string]float64, len(in.Equipment)+len(in.Values))
	for k, v := range in.Equipment {
		related[k] = v
	}

	for k, v := range in.Values {
		related[k] = v
	}

	for i, gate := range gates {
		next, value := checkGate(gate, in, related)
		report.Gates[i] = next
		report.Values[gate.Variable] = value
		report.Worst = worse(report.Worst, value.Status)

		if value.Substituted {
			report.Substitutions = append(report.Substitutions, gate.Variable)
		}
	}

	return report
}

func checkGate(gate Gate, in Input, related map[string]float64) (Gate, ValidatedValue) {
	out := ValidatedValue{
		Variable:  gate.Variable,
		Source:    gate.ID,
		Timestamp: in.Time,
	}

	raw, ok := in.Values[gate.Variable]
	if !ok || math.IsNaN(raw) {
		out.Status = StatusMissing
		out.Confidence = 0
		out.Notes = []string{"no reading"}

		if fallback, has := fallbackValue(gate); has {
			out.Value = fallback
			out.Substituted = true
		}

		gate.Violations++

		return gate, out
	}

	ctx := Context{
		Variable: gate.Variable,
		Value:    raw,
		Related:  related,
		DT:       in.DT,
	}

	if prev, has := in.Previous[gate.Variable]; has {
		ctx.Previous, ctx.HasPrevious = prev, true
	} else if gate.HasLastValue {
		ctx.Previous, ctx.HasPrevious = gate.LastValue, true
	}

	if age, has := in.Ages[gate.Variable]; has {
		ctx.Age, ctx.HasAge = age, true
	}

	status := StatusValid
	confidence := 100.0

	var notes []string

	for _, rule := range gate.Rules {
		r := rule.Check(ctx)
		status = worse(status, r.Status)
		confidence = math.Min(confidence, r.Confidence)

		if r.Note != "" {
			notes = append(notes, string(rule.Kind())+": "+r.Note)
		}
	}

	out.Raw = raw
	out.Value = raw
	out.Status = status
	out.Confidence = confidence
	out.Notes = notes

	switch gate.Mode {
	case ModeHard:
		if status == StatusInvalid {
			out.Value = substitute(gate, raw)
			out.Substituted = true
			out.Confidence = 0
		}
	case ModeReportOnly:
		if status.Rank() > StatusWarning.Rank() {
			out.Notes = append(out.Notes, "reported "+string(status)+" as WARNING")
			out.Status = StatusWarning
		}
	case ModeSoft:
	}

	if status.Usable() {
		gate.LastGood, gate.HasLastGood = raw, true
	}

	if status != StatusValid {
		gate.Violations++
	}

	gate.LastValue, gate.HasLastValue = out.Value, true

	return gate, out
}

// substitute picks the value a HARD gate emits instead of an INVALID reading.
func substitute(gate Gate, raw float64) float64 {
	if v, ok := fallbackValue(gate); ok {
		return v
	}

	for _, rule := range gate.Rules {
		if r, ok := rule.(RangeRule); ok {
			return math.Max(r.Min, math.Min(r.Max, raw))
		}
	}

	return raw
}

func fallbackValue(gate Gate) (float64, bool) {
	if gate.HasLastGood {
		return gate.LastGood, true
	}

	if gate.HasLastValue {
		return gate.LastValue, true
	}

	return 0, false
}

// CanProceed reports whether every required variable is present and usable.
// The second return value lists the variables that block.
func CanProceed(values map[string]ValidatedValue, required []string) (bool, []string) {
	var blocking []string

	for _, name := range required {
		v, ok := values[name]
		if !ok || !v.Status.Usable() {
			blocking = append(blocking, name)
		}
	}

	return len(blocking) == 0, blocking
}

// Summary renders the non-valid values as one line, for logs.
func (r Report) Summary() string {
	var parts []string

	for _, gate := range r.Gates {
		v := r.Values[gate.Variable]
		if v.Status != StatusValid {
			parts = append(parts, gate.Variable+"="+string(v.Status))
		}
	}

	if len(parts) == 0 {
		return "all valid"
	}

	return strings.Join(parts, " ")
}
