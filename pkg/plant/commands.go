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

package plant

import (
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
)

// ErrUnknownLoop is returned for a loop tag the core does not own.
var ErrUnknownLoop = errors.New("unknown loop")

// ErrCascadeOwned is returned for a setpoint change on a slave loop while the cascade drives it.
var ErrCascadeOwned = errors.New("loop is driven by the cascade")

// record counts and logs one operator command.
func (c *Core) record(command string, err error) error {
	metrics.RecordCommand(command, err == nil)

	if err != nil {
		metrics.IncErrorCountAndLog(metrics.ComponentPlantCore, command, fmt.Errorf("operator command refused: %w", err), c.logger)

		return err
	}

	c.logger.Infof("Operator command %s accepted", command)

	return nil
}

// StartCascade begins the start-up sequence from IDLE.
func (c *Core) StartCascade() error {
	res, err := cascade.Start(c.cascade, c.cfg.Cascade, c.now())
	if err == nil {
		c.applyCascade(res)
	}

	return c.record("start", err)
}

// StopCascade drives the plant from any running state to SHUTDOWN.
func (c *Core) StopCascade() error {
	res, err := cascade.Stop(c.cascade, c.cfg.Cascade, c.now())
	if err == nil {
		c.applyCascade(res)
	}

	return c.record("stop", err)
}

// ResetFault returns a faulted sequence to IDLE.
func (c *Core) ResetFault() error {
	res, err := cascade.ResetFault(c.cascade, c.cfg.Cascade, c.now())
	if err == nil {
		c.applyCascade(res)
	}

	return c.record("reset_fault", err)
}

func (c *Core) AcknowledgeAlarm(id string) error {
	next, err := cascade.AcknowledgeAlarm(c.cascade, id)
	if err == nil {
		c.cascade = next
	}

	return c.record("ack_alarm", err)
}

func (c *Core) AcknowledgeAllAlarms() {
	c.cascade = cascade.AcknowledgeAllAlarms(c.cascade)
	_ = c.record("ack_all_alarms", nil)
}

// ResetInterlock clears a latched interlock. The attempt is audited either way.
func (c *Core) ResetInterlock(id string) error {
	next, err := constraint.ResetInterlock(c.engine, id)
	c.engine = next

	return c.record("reset_interlock", err)
}

// BypassConstraint sets or clears the bypass of a bypassable constraint.
func (c *Core) BypassConstraint(id string, bypassed bool) error {
	next, err := constraint.BypassConstraint(c.engine, id, bypassed)
	c.engine = next

	return c.record("bypass_constraint", err)
}

// ResetTrip clears the trip latch once no trip condition holds.
func (c *Core) ResetTrip() error {
	next, err := constraint.ResetTrip(c.engine)
	c.engine = next

	return c.record("reset_trip", err)
}

// SetLoopMode performs a bumpless mode transfer on one loop.
func (c *Core) SetLoopMode(tag string, mode pid.Mode) error {
	err := c.manual(tag, false, func(state pid.State, cfg pid.Config) (pid.State, error) {
		return pid.SetMode(state, mode, cfg)
	})

	return c.record("set_mode", err)
}

// SetLoopSetpoint sets a loop target. The loop ramps towards it at its setpoint rate.
func (c *Core) SetLoopSetpoint(tag string, sp float64) error {
	err := c.manual(tag, true, func(state pid.State, cfg pid.Config) (pid.State, error) {
		return pid.SetSetpoint(state, sp, cfg), nil
	})

	return c.record("set_setpoint", err)
}

// SetLoopOutput sets the manual output of a loop.
func (c *Core) SetLoopOutput(tag string, op float64) error {
	err := c.manual(tag, false, func(state pid.State, cfg pid.Config) (pid.State, error) {
		return pid.SetManualOutput(state, op, cfg), nil
	})

	return c.record("set_output", err)
}

func (c *Core) manual(tag string, setpoint bool, change func(pid.State, pid.Config) (pid.State, error)) error {
	state, ok := c.loops[tag]
	if !ok {
		return fmt.Errorf("loop %q: %w", tag, ErrUnknownLoop)
	}

	for _, slave := range cascade.Slaves {
		if setpoint && c.cfg.Cascade.Slave(slave).Tag == tag && c.cascade.Sequence.Drives(slave) {
			return fmt.Errorf("loop %q in %s: %w", tag, c.cascade.Sequence, ErrCascadeOwned)
		}
	}

	next, err := change(state, c.loopCfgs[tag].Config)
	if err != nil {
		return fmt.Errorf("loop %q: %w", tag, err)
	}

	c.loops[tag] = next

	return nil
}
