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

package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
)

// ErrCommandTimeout is returned when the tick loop did not run a command within constants.CommandTimeout.
var ErrCommandTimeout = errors.New("command not processed in time")

// command is an operator action waiting for the next tick.
type command struct {
	name  string
	apply func() error
	done  chan error
}

// Submit queues an operator action on the plant core and waits until the tick loop has run it.
// The action runs on the tick goroutine before the next plant tick.
func (c *ControlLoop) Submit(ctx context.Context, name string, apply func(*plant.Core) error) error {
	return c.enqueue(ctx, name, func() error { return apply(c.core) })
}

// SetAnalyzerHealthy injects or clears an oil-in-water analyzer fault in the simulation.
func (c *ControlLoop) SetAnalyzerHealthy(ctx context.Context, healthy bool) error {
	return c.enqueue(ctx, "analyzer_health", func() error {
		c.plant.SetAnalyzerHealthy(healthy)
		c.logger.Infof("Simulated analyzer healthy=%t", healthy)

		return nil
	})
}

func (c *ControlLoop) enqueue(ctx context.Context, name string, apply func() error) error {
	ctx, cancel := context.WithTimeout(ctx, constants.CommandTimeout)
	defer cancel()

	cmd := command{name: name, apply: apply, done: make(chan error, 1)}

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return c.timedOut(name, ctx.Err())
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return c.timedOut(name, ctx.Err())
	}
}

func (c *ControlLoop) timedOut(name string, cause error) error {
	err := fmt.Errorf("%w: %s: %w", ErrCommandTimeout, name, cause)
	metrics.IncErrorCountAndLog(metrics.ComponentControlLoop, name, err, c.logger)

	return err
}

// drainCommands runs the commands queued before this tick started.
func (c *ControlLoop) drainCommands() {
	for n := len(c.commands); n > 0; n-- {
		cmd := <-c.commands
		cmd.done <- cmd.apply()
	}
}
