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

// Status of a validated value. Rank orders them from best to worst.
type Status string

const (
	StatusValid   Status = "VALID"
	StatusWarning Status = "WARNING"
	StatusStale   Status = "STALE"
	StatusMissing Status = "MISSING"
	StatusInvalid Status = "INVALID"
)

// Rank returns VALID=0, WARNING=1, STALE=2, MISSING=3, INVALID=4.
func (s Status) Rank() int {
	switch s {
	case StatusValid:
		return 0
	case StatusWarning:
		return 1
	case StatusStale:
		return 2
	case StatusMissing:
		return 3
	case StatusInvalid:
		return 4
	default:
		return 4
	}
}

// Usable reports whether downstream logic may act on a value with this status.
func (s Status) Usable() bool {
	return s == StatusValid || s == StatusWarning
}

func worse(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}

	return a
}

// GateMode decides what a gate emits when its rules fail.
type GateMode string

const (
	// ModeHard substitutes the last good value when the worst status is INVALID.
	ModeHard GateMode = "HARD"
	// ModeSoft emits the raw value with the computed status.
	ModeSoft GateMode = "SOFT"
	// ModeReportOnly emits the raw value and never reports worse than WARNING.
	ModeReportOnly GateMode = "REPORT_ONLY"
)

type RuleKind string

const (
	KindRange       RuleKind = "RANGE"
	KindPhysics     RuleKind = "PHYSICS"
	KindRate        RuleKind = "RATE"
	KindConsistency RuleKind = "CONSISTENCY"
	KindStaleness   RuleKind = "STALENESS"
)

// Context is what a rule sees of the current tick.
type Context struct {
	Variable string
	Value    float64
	// Related holds every other reading of the tick, for physics and consistency rules.
	Related     map[string]float64
	Previous    float64
	HasPrevious bool
	DT          float64
	// Age is the time in seconds since the reading last changed.
	Age    float64
	HasAge bool
}

type RuleResult struct {
	Status     Status
	Confidence float64
	Note       string
}

// Rule is one check of a gate. Check must be a total function of its input.
type Rule interface {
	Kind() RuleKind
	Check(ctx Context) RuleResult
}

// Gate guards one variable.
type Gate struct {
	ID       string   `json:"id"`
	Variable string   `json:"variable"`
	Mode     GateMode `json:"mode"`
	Rules    []Rule   `json:"-"`

	LastGood     float64 `json:"lastGood"`
	HasLastGood  bool    `json:"hasLastGood"`
	LastValue    float64 `json:"lastValue"`
	HasLastValue bool    `json:"hasLastValue"`
	Violations   int     `json:"violations"`
}

// ValidatedValue is the gated view of one variable.
type ValidatedValue struct {
	Variable    string   `json:"variable"`
	Value       float64  `json:"value"`
	Raw         float64  `json:"raw"`
	Status      Status   `json:"status"`
	Confidence  float64  `json:"confidence"`
	Source      string   `json:"source"`
	Timestamp   float64  `json:"timestamp"`
	Notes       []string `json:"notes,omitempty"`
	Substituted bool     `json:"substituted"`
}

// Input is everything Check needs for one tick.
type Input struct {
	Values   map[string]float64
	Previous map[string]float64
	// Equipment carries readings not gated themselves but referenced by rules.
	Equipment map[string]float64
	Ages      map[string]float64
	DT        float64
	// Time is the simulated time stamped onto every validated value.
	Time float64
}

type Report struct {
	Values        map[string]ValidatedValue `json:"values"`
	Gates         []Gate                    `json:"gates"`
	Worst         Status                    `json:"worst"`
	Substitutions []string                  `json:"substitutions,omitempty"`
}
