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

package constraint

import (
	"errors"
	"fmt"
)

// ErrInvalidRule is returned by ValidateRules.
var ErrInvalidRule = errors.New("invalid constraint rule")

// ValidateRules rejects rule sets the engine cannot evaluate.
func ValidateRules(constraints []Constraint, interlocks []Interlock) error {
	seen := make(map[string]struct{}, len(constraints)+len(interlocks))

	for _, c := range constraints {
		if c.ID == "" || c.Variable == "" {
			return fmt.Errorf("%w: constraint needs an id and a variable", ErrInvalidRule)
		}

		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, c.ID)
		}

		seen[c.ID] = struct{}{}

		switch c.Severity {
		case SeveritySoft, SeverityHard, SeverityTrip:
		default:
			return fmt.Errorf("%w: %s: unknown severity %q", ErrInvalidRule, c.ID, c.Severity)
		}

		if !c.Action.Valid() {
			return fmt.Errorf("%w: %s: unknown action %q", ErrInvalidRule, c.ID, c.Action)
		}

		if c.Min == nil && c.Max == nil {
			return fmt.Errorf("%w: %s: needs min or max", ErrInvalidRule, c.ID)
		}

		if c.Min != nil && c.Max != nil && *c.Min > *c.Max {
			return fmt.Errorf("%w: %s: min exceeds max", ErrInvalidRule, c.ID)
		}
	}

	for _, il := range interlocks {
		if il.ID == "" {
			return fmt.Errorf("%w: interlock needs an id", ErrInvalidRule)
		}

		if _, dup := seen[il.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidRule, il.ID)
		}

		seen[il.ID] = struct{}{}

		switch il.Type {
		case InterlockPermissive, InterlockTrip, InterlockSafety:
		default:
			return fmt.Errorf("%w: %s: unknown interlock type %q", ErrInvalidRule, il.ID, il.Type)
		}

		if il.Logic != LogicAnd && il.Logic != LogicOr {
			return fmt.Errorf("%w: %s: unknown logic %q", ErrInvalidRule, il.ID, il.Logic)
		}

		if !il.Action.Valid() {
			return fmt.Errorf("%w: %s: unknown action %q", ErrInvalidRule, il.ID, il.Action)
		}

		if len(il.Conditions) == 0 {
			return fmt.Errorf("%w: %s: no conditions", ErrInvalidRule, il.ID)
		}

		for _, cond := range il.Conditions {
			if !cond.Operator.Valid() {
				return fmt.Errorf("%w: %s: unknown operator %q", ErrInvalidRule, il.ID, cond.Operator)
			}
		}

		if il.ResetDelay < 0 {
			return fmt.Errorf("%w: %s: negative reset delay", ErrInvalidRule, il.ID)
		}
	}

	return nil
}
