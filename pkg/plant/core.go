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

// Package plant owns every state record of the control core and runs one tick at a time:
// integrity validation, constraint evaluation, the cascade step, then the slave loops.
// A Core is not safe for concurrent use; Tick and the operator commands must be called
// from the same goroutine.
package plant

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/separation-core/pkg/alarm"
	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/integrity"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
	"github.com/united-manufacturing-hub/separation-core/pkg/sentry"
)

const instance = "core"

// Core is one control-core instance.
type Core struct {
	cfg      Config
	loopCfgs map[string]LoopConfig
	order    []string

	loops   map[string]pid.State
	engine  constraint.State
	cascade cascade.State
	gates   []integrity.Gate

	previous  Readings
	changedAt map[string]float64
	last      Outputs

	time float64
	tick uint64

	now    func() time.Time
	logger *zap.SugaredLogger
}

// NewCore validates cfg and builds an idle core.
func NewCore(cfg Config, logger *zap.SugaredLogger) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gates, err := integrity.NewGates(cfg.Gates)
	if err != nil {
		return nil, errors.Join(ErrInvalidConfig, err)
	}

	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	c := &Core{
		cfg:       cfg,
		loopCfgs:  make(map[string]LoopConfig, len(cfg.Loops)),
		loops:     make(map[string]pid.State, len(cfg.Loops)),
		engine:    constraint.NewState(cfg.Constraints, cfg.Interlocks),
		cascade:   cascade.NewState(cfg.Cascade),
		gates:     gates,
		changedAt: map[string]float64{},
		now:       time.Now,
		logger:    logger,
	}

	for _, l := range cfg.Loops {
		c.loopCfgs[l.Tag] = l
		c.order = append(c.order, l.Tag)
		c.loops[l.Tag] = pid.NewState(l.Config)
	}

	metrics.InitErrorCounter(metrics.ComponentPlantCore, instance)

	return c, nil
}

// Config returns the configuration the core was built from.
func (c *Core) Config() Config {
	return c.cfg
}

// Tick advances the core by dt seconds.
func (c *Core) Tick(raw Readings, dt float64) Outputs {
	if !(dt > 0) || math.IsInf(dt, 0) {
		metrics.IncErrorCountAndLog(metrics.ComponentPlantCore, instance, fmt.Errorf("invalid tick step %v", dt), c.logger)

		return c.last
	}

	c.tick++
	c.time += dt

	report := integrity.Check(c.gates, integrity.Input{
		Values:    raw,
		Previous:  c.previous,
		Equipment: c.equipment(),
		Ages:      c.ages(raw),
		DT:        dt,
		Time:      c.time,
	})
	c.gates = report.Gates
	c.observeIntegrity(report)

	snapshot := make(constraint.Snapshot, len(raw))
	for k, v := range raw {
		snapshot[k] = v
	}

	for k, v := range report.Values {
		if v.Status == integrity.StatusMissing && !v.Substituted {
			continue
		}

		snapshot[k] = v.Value
	}

	eng := constraint.Evaluate(c.engine, snapshot, dt)
	c.engine = eng.State
	c.observeEngine(eng)

	res := cascade.Step(c.cascade, c.cascadeInput(raw, snapshot, report, eng, dt), c.cfg.Cascade)
	c.applyCascade(res)

	out := Outputs{
		Tick:        c.tick,
		Time:        c.time,
		Limits:      eng.Limits,
		Equipment:   eng.Status,
		Tripped:     eng.Tripped,
		Violations:  eng.Violations,
		Loops:       make(map[string]LoopOutput, len(c.order)),
		Integrity:   report.Values,
		Worst:       report.Worst,
		Diagnostics: make([]pid.Diagnostic, 0, len(c.order)),
	}

	for _, tag := range c.order {
		c.stepLoop(tag, snapshot, dt, &out)
	}

	out.Sequence = c.cascade.Sequence
	out.Mode = c.cascade.Mode
	out.Master = c.cascade.Master
	out.Setpoints = c.cascade.Setpoints
	out.Alarms = c.cascade.Alarms.Active()

	c.previous = make(Readings, len(raw))
	for k, v := range raw {
		c.previous[k] = v
	}

	c.last = out

	return out
}

// ages tracks how long each reading has held its current value.
func (c *Core) ages(raw Readings) map[string]float64 {
	ages := make(map[string]float64, len(raw))

	for k, v := range raw {
		prev, seen := c.previous[k]
		if _, tracked := c.changedAt[k]; !tracked || !seen || prev != v {
			c.changedAt[k] = c.time
		}

		ages[k] = c.time - c.changedAt[k]
	}

	return ages
}

// equipment exposes the last commanded setpoints to consistency rules.
func (c *Core) equipment() map[string]float64 {
	sp := c.cascade.Setpoints

	return map[string]float64{
		"setpointTemperature": sp.Temperature,
		"setpointFlow":        sp.Flow,
		"setpointSpeed":       sp.Speed,
	}
}

func (c *Core) observeIntegrity(report integrity.Report) {
	for _, gate := range report.Gates {
		v := report.Values[gate.Variable]
		metrics.UpdateGate(gate.ID, v.Status.Rank(), v.Confidence)
	}

	for _, name := range report.Substitutions {
		v := report.Values[name]
		c.logger.Debugf("Gate %s substituted %s: raw %.3f replaced by %.3f (%s)", v.Source, name, v.Raw, v.Value, v.Status)
	}
}

func (c *Core) observeEngine(eng constraint.Result) {
	metrics.UpdateEngineStatus(eng.Status.Ordinal())

	for _, ev := range eng.Events {
		switch ev.Kind {
		case constraint.EventTripLatched:
			c.logger.Warnf("Trip latched by %s: %s", ev.Source, ev.Message)
			c.raise(ev.Source, alarm.PriorityCritical, ev.Message)
			sentry.ReportTrip(c.logger, ev.Source, string(ev.Action), errors.New(ev.Message))
		case constraint.EventInterlockTriggered:
			metrics.IncInterlockTrip(ev.Source)

			il, _ := eng.State.Interlock(ev.Source)
			if il.Latching() {
				c.logger.Warnf("Interlock %s latched, action %s", ev.Source, ev.Action)
				c.raise(ev.Source, alarm.PriorityCritical, ev.Message)
				sentry.ReportTrip(c.logger, ev.Source, string(ev.Action), errors.New(ev.Message))
			} else {
				c.logger.Warnf("Interlock %s triggered, action %s", ev.Source, ev.Action)
				c.raise(ev.Source, alarm.PriorityHigh, ev.Message)
			}
		case constraint.EventConstraintViolated:
			con, _ := eng.State.Constraint(ev.Source)
			if con.Severity == constraint.SeveritySoft {
				c.logger.Infof("Constraint %s violated: %s", ev.Source, ev.Message)
				c.raise(ev.Source, alarm.PriorityLow, ev.Message)
			} else {
				c.logger.Warnf("Constraint %s violated: %s", ev.Source, ev.Message)
				c.raise(ev.Source, alarm.PriorityHigh, ev.Message)
			}
		case constraint.EventConstraintCleared, constraint.EventInterlockCleared:
			c.logger.Infof("%s: %s", ev.Source, ev.Message)
		}
	}
}

func (c *Core) raise(tag string, priority alarm.Priority, message string) {
	c.cascade.Alarms, _ = c.cascade.Alarms.Raise(tag, priority, message, c.now())
}

func (c *Core) cascadeInput(raw Readings, snapshot constraint.Snapshot, report integrity.Report, eng constraint.Result, dt float64) cascade.Input {
	value := func(name string) float64 {
		if v, ok := snapshot[name]; ok {
			return v
		}

		return math.NaN()
	}

	oiw := value(constants.VarOIW)
	oiwValid := !math.IsNaN(oiw)

	if v, gated := report.Values[constants.VarOIW]; gated {
		oiwValid = v.Status.Usable()
	}

	if flag, ok := raw[constants.VarOIWValid]; ok {
		oiwValid = oiwValid && flag >= 0.5
	}

	mode := func(slave cascade.Slave) pid.Mode {
		return c.loops[c.cfg.Cascade.Slave(slave).Tag].Mode
	}

	return cascade.Input{
		OIW:       oiw,
		OIWValid:  oiwValid,
		FeedTemp:  value(constants.VarFeedTemp),
		FeedFlow:  value(constants.VarFeedFlow),
		BowlSpeed: value(constants.VarBowlSpeed),
		PH:        value(constants.VarPH),
		Vibration: value(constants.VarVibration),
		Torque:    value(constants.VarTorque),
		Modes: cascade.SlaveModes{
			Temperature: mode(cascade.SlaveTemperature),
			Flow:        mode(cascade.SlaveFlow),
			Speed:       mode(cascade.SlaveSpeed),
		},
		Equipment: eng.Status,
		Limits:    eng.Limits,
		DT:        dt,
		Now:       c.now(),
	}
}

// applyCascade takes over the orchestrator result: loop commands first, then the
// setpoints of every slave the sequence currently drives.
func (c *Core) applyCascade(res cascade.Result) {
	for _, tr := range res.Transitions {
		c.logger.Infof("Sequence %s -> %s on %s: %s", tr.From, tr.To, tr.Event, tr.Reason)

		if tr.To == cascade.SequenceFault {
			sentry.ReportSequenceFault(c.logger, string(tr.From), errors.New(tr.Reason))
		}
	}

	for _, a := range res.Raised {
		c.logger.Infof("Alarm %s [%s]: %s", a.Tag, a.Priority, a.Message)
	}

	for _, cmd := range res.Commands {
		if err := c.applyLoopCommand(cmd); err != nil {
			metrics.IncErrorCountAndLog(metrics.ComponentCascade, cmd.Tag, err, c.logger)
		}
	}

	c.cascade = res.State

	for _, slave := range cascade.Slaves {
		if !c.cascade.Sequence.Drives(slave) {
			continue
		}

		tag := c.cfg.Cascade.Slave(slave).Tag
		c.loops[tag] = pid.SetSetpoint(c.loops[tag], c.cascade.Setpoints.Get(slave), c.loopCfgs[tag].Config)
	}

	metrics.UpdateCascade(c.cascade.Master.Demand, c.cascade.Sequence.Ordinal())
}

func (c *Core) applyLoopCommand(cmd cascade.LoopCommand) error {
	state, ok := c.loops[cmd.Tag]
	if !ok {
		return fmt.Errorf("loop %q: %w", cmd.Tag, ErrUnknownLoop)
	}

	cfg := c.loopCfgs[cmd.Tag].Config

	if cmd.Mode != "" {
		next, err := pid.SetMode(state, cmd.Mode, cfg)
		if err != nil {
			return err
		}

		state = next
	}

	if cmd.Setpoint != nil {
		state = pid.SetSetpoint(state, *cmd.Setpoint, cfg)
	}

	if cmd.Output != nil {
		state = pid.SetManualOutput(state, *cmd.Output, cfg)
	}

	c.loops[cmd.Tag] = state

	return nil
}

func (c *Core) stepLoop(tag string, snapshot constraint.Snapshot, dt float64, out *Outputs) {
	lc := c.loopCfgs[tag]

	pv, ok := snapshot[lc.PV]
	if !ok {
		pv = math.NaN()
	}

	res := pid.Step(c.loops[tag], pv, lc.Config, dt)
	c.loops[tag] = res.State

	if res.State.Faulted {
		metrics.IncErrorCountAndLog(metrics.ComponentControlLoop, tag, fmt.Errorf("loop faulted: %s", res.State.FaultReason), c.logger)
	}

	out.Loops[tag] = LoopOutput{
		Mode:      res.State.Mode,
		PV:        res.State.PV,
		SP:        res.State.SP,
		OP:        res.Output,
		Saturated: res.Saturated,
		Direction: res.State.SaturationDir,
		Faulted:   res.State.Faulted,
	}
	out.Diagnostics = append(out.Diagnostics, pid.Diagnose(res.State, lc.Config))

	metrics.UpdateLoop(tag, res.State.PV, res.State.SP, res.Output, string(res.State.Mode))
}

// Last returns the outputs of the most recent tick.
func (c *Core) Last() Outputs {
	return c.last
}

// Snapshot returns the current state records. Maps are copied; nested slices are shared.
func (c *Core) Snapshot() Snapshot {
	loops := make(map[string]pid.State, len(c.loops))
	for k, v := range c.loops {
		loops[k] = v
	}

	gates := make([]integrity.Gate, len(c.gates))
	for i, g := range c.gates {
		g.Rules = nil
		gates[i] = g
	}

	return Snapshot{
		Outputs: c.last,
		Loops:   loops,
		Engine:  c.engine,
		Cascade: c.cascade,
		Gates:   gates,
	}
}
