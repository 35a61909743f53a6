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

// Package control runs the plant core on a fixed ticker.
//
// The package is responsible for:
// - Driving plant.Core and the process simulation one tick at a time
// - Serialising operator commands onto the tick goroutine
// - Watching tick durations and detecting a starved loop
// - Publishing snapshots of the plant state for external readers
//
// plant.Core is not safe for concurrent use. Every access to it goes through the
// tick goroutine: commands are queued by Submit and drained at the start of a tick.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/separation-core/pkg/config"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/logger"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
	"github.com/united-manufacturing-hub/separation-core/pkg/sentry"
	"github.com/united-manufacturing-hub/separation-core/pkg/sim"
	"github.com/united-manufacturing-hub/separation-core/pkg/starvationchecker"
)

// ControlLoop owns the plant core and the simulated process.
//
// One tick:
// 1. Run queued operator commands
// 2. Tick the core with the readings of the previous simulation step
// 3. Step the simulation with the new controller outputs and enforced limits
// 4. Publish a snapshot and mark the tick for the starvation checker
type ControlLoop struct {
	tickerTime        time.Duration
	step              float64
	core              *plant.Core
	plant             *sim.Plant
	readings          plant.Readings
	commands          chan command
	logger            *zap.SugaredLogger
	starvationChecker *starvationchecker.StarvationChecker
	snapshotManager   *SnapshotManager
	currentTick       uint64
	autoStart         bool
	startedAt         time.Time
	history           []float64
}

// NewControlLoop builds the plant core and the simulation from cfg.
// Every loop is parked in MAN at 0 % output until an operator or the cascade takes it over.
func NewControlLoop(cfg config.FullConfig) (*ControlLoop, error) {
	log := logger.For(logger.ComponentControlLoop)
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	if cfg.Agent.TickInterval <= 0 || cfg.Agent.SimulationStep <= 0 {
		return nil, fmt.Errorf("%w: tick interval and simulation step must be positive", config.ErrInvalidConfig)
	}

	core, err := plant.NewCore(cfg.Plant, logger.For(logger.ComponentPlantCore))
	if err != nil {
		return nil, fmt.Errorf("create plant core: %w", err)
	}

	process, err := sim.New(cfg.Simulation)
	if err != nil {
		return nil, fmt.Errorf("create simulation: %w", err)
	}

	for _, l := range cfg.Plant.Loops {
		if err := core.SetLoopOutput(l.Tag, 0); err != nil {
			return nil, fmt.Errorf("park loop %s: %w", l.Tag, err)
		}
	}

	metrics.InitErrorCounter(metrics.ComponentControlLoop, "main")

	now := time.Now()
	snapshotManager := NewSnapshotManager()
	snapshotManager.UpdateSnapshot(&SystemSnapshot{
		SnapshotTime: now,
		StartedAt:    now,
		Plant:        core.Snapshot(),
		Simulation:   process.State(),
	})

	return &ControlLoop{
		tickerTime:      cfg.Agent.TickInterval,
		step:            cfg.Agent.SimulationStep,
		core:            core,
		plant:           process,
		readings:        process.Readings(),
		commands:        make(chan command, constants.CommandQueueSize),
		logger:          log,
		snapshotManager: snapshotManager,
		autoStart:       cfg.Agent.AutoStart,
		startedAt:       now,
	}, nil
}

// Execute runs ticks until ctx is cancelled.
//
// A tick longer than the ticker interval is logged as a warning. A tick longer than
// constants.TickOverrunFactor intervals is counted as an error and reported to sentry.
func (c *ControlLoop) Execute(ctx context.Context) error {
	c.starvationChecker = starvationchecker.NewStarvationChecker(constants.StarvationThreshold)
	defer c.starvationChecker.Stop()

	if c.autoStart {
		if err := c.core.StartCascade(); err != nil {
			c.logger.Warnf("Auto start refused: %v", err)
		}
	}

	ticker := time.NewTicker(c.tickerTime)
	defer ticker.Stop()

	c.logger.Infof("Control loop started, interval %s, %g s per tick", c.tickerTime, c.step)

	for {
		select {
		case <-ctx.Done():
			c.logger.Infof("Control loop stopped after %d ticks", c.currentTick)

			return nil
		case <-ticker.C:
			start := time.Now()
			err := c.Reconcile(ctx)
			cycleTime := time.Since(start)

			c.watchdog(cycleTime)
			metrics.ObserveTickTime(metrics.ComponentControlLoop, "main", cycleTime)

			if err != nil {
				if errors.Is(err, context.Canceled) {
					c.logger.Infof("Control loop cancelled")

					return nil
				}

				metrics.IncErrorCountAndLog(metrics.ComponentControlLoop, "main", err, c.logger)
				sentry.ReportIssuef(sentry.IssueTypeError, c.logger, "Control loop error: %v", err)

				return err
			}
		}
	}
}

// Reconcile performs one tick. It must only be called from the goroutine running Execute,
// or from tests driving the loop by hand.
func (c *ControlLoop) Reconcile(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.currentTick++
	c.drainCommands()

	out := c.core.Tick(c.readings, c.step)
	c.readings = c.plant.Step(sim.ActuatorsFrom(out), out.Limits, c.step)

	state := c.plant.State()
	c.history = appendQuality(c.history, state.OIW)

	c.snapshotManager.UpdateSnapshot(&SystemSnapshot{
		Tick:           c.currentTick,
		SnapshotTime:   time.Now(),
		StartedAt:      c.startedAt,
		Plant:          c.core.Snapshot(),
		Simulation:     state,
		QualityHistory: c.history,
	})

	if c.starvationChecker != nil {
		c.starvationChecker.MarkTick()
	}

	return nil
}

func (c *ControlLoop) watchdog(cycleTime time.Duration) {
	if cycleTime <= c.tickerTime {
		return
	}

	if cycleTime > constants.TickOverrunFactor*c.tickerTime {
		err := fmt.Errorf("tick %d took %s, more than %d× the %s interval", c.currentTick, cycleTime, constants.TickOverrunFactor, c.tickerTime)
		metrics.IncErrorCountAndLog(metrics.ComponentControlLoop, "overrun", err, c.logger)
		sentry.ReportIssue(err, sentry.IssueTypeError, c.logger)

		return
	}

	c.logger.Warnf("Tick %d took %s, longer than the %s interval", c.currentTick, cycleTime, c.tickerTime)
}

// Snapshots returns the snapshot manager readers use.
func (c *ControlLoop) Snapshots() *SnapshotManager {
	return c.snapshotManager
}

// GetDebugInfo serves the latest snapshot on the metrics debug endpoint.
func (c *ControlLoop) GetDebugInfo() interface{} {
	return c.snapshotManager.GetSnapshot()
}
