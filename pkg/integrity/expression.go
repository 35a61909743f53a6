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
	"math"

	"github.com/Knetic/govaluate"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
)

// ValueParameter is the name the gated reading is bound to inside an expression.
const ValueParameter = "value"

var errArguments = errors.New("expected numeric arguments")

var expressionFunctions = map[string]govaluate.ExpressionFunction{
	"abs": func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, errArguments
		}

		v, ok := args[0].(float64)
		if !ok {
			return nil, errArguments
		}

		return math.Abs(v), nil
	},
	"max": func(args ...interface{}) (interface{}, error) {
		return fold(args, math.Max)
	},
	"min": func(args ...interface{}) (interface{}, error) {
		return fold(args, math.Min)
	},
}

func fold(args []interface{}, f func(a, b float64) float64) (interface{}, error) {
	if len(args) == 0 {
		return nil, errArguments
	}

	acc, ok := args[0].(float64)
	if !ok {
		return nil, errArguments
	}

	for _, a := range args[1:] {
		v, ok := a.(float64)
		if !ok {
			return nil, errArguments
		}

		acc = f(acc, v)
	}

	return acc, nil
}

// NewExpressionRule compiles a boolean expression over the related values into a consistency rule.
// The gated reading is available as "value", e.g. "abs(value - (oilOut + waterOut)) < 2".
func NewExpressionRule(name, expression string, failStatus Status) (ConsistencyRule, error) {
	compiled, err := govaluate.NewEvaluableExpressionWithFunctions(expression, expressionFunctions)
	if err != nil {
		return ConsistencyRule{}, fmt.Errorf("compile consistency rule %q: %w", name, err)
	}

	vars := compiled.Vars()

	predicate := func(ctx Context) (bool, string) {
		params := make(map[string]interface{}, len(vars))

		for _, v := range vars {
			if v == ValueParameter {
				params[v] = ctx.Value

				continue
			}

			related, ok := ctx.Related[v]
			if !ok {
				return false, "missing " + v + " for " + name
			}

			params[v] = related
		}

		result, err := compiled.Evaluate(params)
		if err != nil {
			return false, fmt.Sprintf("%s: %v", name, err)
		}

		ok, isBool := result.(bool)
		if !isBool {
			return false, name + " is not a boolean expression"
		}

		if !ok {
			return false, name + " violated"
		}

		return true, ""
	}

	return ConsistencyRule{Name: name, Predicate: predicate, FailStatus: failStatus}, nil
}

// Reference operating point of the cubic power-vs-speed law.
const (
	ReferenceSpeedRPM = constants.MaxBowlSpeedRPM
	ReferencePowerKW  = 62.0
	// minPowerCheckSpeed avoids dividing by a near-zero expected power on a stopped bowl.
	minPowerCheckSpeed = 300.0
)

// ExpectedPower returns the motor power predicted by the cubic law for the given bowl speed.
func ExpectedPower(speedRPM float64) float64 {
	ratio := speedRPM / ReferenceSpeedRPM

	return ReferencePowerKW * ratio * ratio * ratio
}

// CubicPowerSpeedRule checks that the gated power reading follows the cubic law of the bowl
// speed within constants.PowerSpeedTolerance.
func CubicPowerSpeedRule(failStatus Status) ConsistencyRule {
	return ConsistencyRule{
		Name:       "cubicPowerSpeed",
		FailStatus: failStatus,
		Predicate: func(ctx Context) (bool, string) {
			speed, ok := ctx.Related[constants.VarBowlSpeed]
			if !ok {
				return false, "missing " + constants.VarBowlSpeed + " for cubicPowerSpeed"
			}

			if speed < minPowerCheckSpeed {
				return true, ""
			}

			expected := ExpectedPower(speed)
			deviation := math.Abs(ctx.Value-expected) / expected
			if deviation > constants.PowerSpeedTolerance {
				return false, fmt.Sprintf("power %.1fkW deviates %.0f%% from %.1fkW expected at %.0frpm",
					ctx.Value, deviation*100, expected, speed)
			}

			return true, ""
		},
	}
}
