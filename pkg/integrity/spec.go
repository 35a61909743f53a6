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
	"errors"
	"fmt"
)

// ErrInvalidGate is returned when a gate description cannot be turned into a gate.
var ErrInvalidGate = errors.New("invalid integrity gate")

// BuiltinCubicPowerSpeed names the builtin power-vs-speed consistency check.
const BuiltinCubicPowerSpeed = "cubicPowerSpeed"

// RuleSpec is the configuration form of a rule. Only the fields of its Kind are used.
type RuleSpec struct {
	Kind RuleKind `yaml:"kind" json:"kind"`

	Min *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max *float64 `yaml:"max,omitempty" json:"max,omitempty"`

	Inlet        string   `yaml:"inlet,omitempty" json:"inlet,omitempty"`
	Outlets      []string `yaml:"outlets,omitempty" json:"outlets,omitempty"`
	TolerancePct float64  `yaml:"tolerancePct,omitempty" json:"tolerancePct,omitempty"`

	MaxPctPerSec float64 `yaml:"maxPctPerSec,omitempty" json:"maxPctPerSec,omitempty"`
	Floor        float64 `yaml:"floor,omitempty" json:"floor,omitempty"`

	Name       string `yaml:"name,omitempty" json:"name,omitempty"`
	Expression string `yaml:"expression,omitempty" json:"expression,omitempty"`
	Builtin    string `yaml:"builtin,omitempty" json:"builtin,omitempty"`
	FailStatus Status `yaml:"failStatus,omitempty" json:"failStatus,omitempty"`

	MaxAge float64 `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
}

// GateSpec is the configuration form of a gate.
type GateSpec struct {
	ID       string     `yaml:"id" json:"id"`
	Variable string     `yaml:"variable" json:"variable"`
	Mode     GateMode   `yaml:"mode" json:"mode"`
	Rules    []RuleSpec `yaml:"rules" json:"rules"`
}

// NewRule builds the rule described by spec.
func NewRule(spec RuleSpec) (Rule, error) {
	switch spec.Kind {
	case KindRange:
		if spec.Min == nil || spec.Max == nil || *spec.Min > *spec.Max {
			return nil, fmt.Errorf("%w: RANGE needs min <= max", ErrInvalidGate)
		}

		return RangeRule{Min: *spec.Min, Max: *spec.Max}, nil
	case KindPhysics:
		if len(spec.Outlets) == 0 || spec.TolerancePct <= 0 {
			return nil, fmt.Errorf("%w: PHYSICS needs outlets and a positive tolerance", ErrInvalidGate)
		}

		return PhysicsRule{Inlet: spec.Inlet, Outlets: append([]string(nil), spec.Outlets...), TolerancePct: spec.TolerancePct}, nil
	case KindRate:
		if spec.MaxPctPerSec <= 0 || spec.Floor < 0 {
			return nil, fmt.Errorf("%w: RATE needs a positive limit and a non-negative floor", ErrInvalidGate)
		}

		return RateRule{MaxPctPerSec: spec.MaxPctPerSec, Floor: spec.Floor}, nil
	case KindConsistency:
		switch spec.FailStatus {
		case "", StatusWarning, StatusStale, StatusInvalid:
		default:
			return nil, fmt.Errorf("%w: CONSISTENCY fail status %q", ErrInvalidGate, spec.FailStatus)
		}

		if spec.Builtin == BuiltinCubicPowerSpeed {
			return CubicPowerSpeedRule(spec.FailStatus), nil
		}

		if spec.Builtin != "" {
			return nil, fmt.Errorf("%w: unknown builtin %q", ErrInvalidGate, spec.Builtin)
		}

		if spec.Expression == "" {
			return nil, fmt.Errorf("%w: CONSISTENCY needs an expression or a builtin", ErrInvalidGate)
		}

		name := spec.Name
		if name == "" {
			name = spec.Expression
		}

		rule, err := NewExpressionRule(name, spec.Expression, spec.FailStatus)
		if err != nil {
			return nil, errors.Join(ErrInvalidGate, err)
		}

		return rule, nil
	case KindStaleness:
		if spec.MaxAge <= 0 {
			return nil, fmt.Errorf("%w: STALENESS needs a positive maxAge", ErrInvalidGate)
		}

		return StalenessRule{MaxAge: spec.MaxAge}, nil
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidGate, spec.Kind)
	}
}

// NewGate builds a gate from its description.
func NewGate(spec GateSpec) (Gate, error) {
	if spec.ID == "" || spec.Variable == "" {
		return Gate{}, fmt.Errorf("%w: gate needs an id and a variable", ErrInvalidGate)
	}

	switch spec.Mode {
	case ModeHard, ModeSoft, ModeReportOnly:
	default:
		return Gate{}, fmt.Errorf("%w: %s: unknown mode %q", ErrInvalidGate, spec.ID, spec.Mode)
	}

	gate := Gate{ID: spec.ID, Variable: spec.Variable, Mode: spec.Mode}

	for _, rs := range spec.Rules {
		rule, err := NewRule(rs)
		if err != nil {
			return Gate{}, fmt.Errorf("gate %s: %w", spec.ID, err)
		}

		gate.Rules = append(gate.Rules, rule)
	}

	return gate, nil
}

// NewGates builds every gate and rejects duplicate ids or variables.
func NewGates(specs []GateSpec) ([]Gate, error) {
	gates := make([]Gate, 0, len(specs))
	ids := map[string]struct{}{}
	vars := map[string]struct{}{}

	for _, spec := range specs {
		if _, dup := ids[spec.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate gate id %q", ErrInvalidGate, spec.ID)
		}

		if _, dup := vars[spec.Variable]; dup {
			return nil, fmt.Errorf("%w: variable %q gated twice", ErrInvalidGate, spec.Variable)
		}

		gate, err := NewGate(spec)
		if err != nil {
			return nil, err
		}

		ids[spec.ID] = struct{}{}
		vars[spec.Variable] = struct{}{}
		gates = append(gates, gate)
	}

	return gates, nil
}
