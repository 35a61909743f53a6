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

package starvationchecker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/separation-core/pkg/logger"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/sentry"
)

// DefaultCheckInterval is how often the background goroutine compares the last tick to the threshold.
const DefaultCheckInterval = time.Second

// StarvationChecker watches the plant tick loop from a separate goroutine and
// reports when no tick has completed for longer than the threshold.
//
// The tick loop calls MarkTick after every completed tick. Because the check runs
// on its own ticker, starvation is reported even when the tick loop is blocked.
//
// When starvation is detected, it:
// - adds the starved seconds to the starvation metric
// - reports a warning through sentry.
type StarvationChecker struct {
	lastTick            time.Time
	ctx                 context.Context //nolint:containedctx // background service lifecycle
	logger              *zap.SugaredLogger
	cancel              context.CancelFunc
	wg                  sync.WaitGroup
	stopOnce            sync.Once
	starvationThreshold time.Duration
	checkInterval       time.Duration
	starved             bool
	mutex               sync.RWMutex
}

// NewStarvationChecker starts a checker that looks for starvation every DefaultCheckInterval.
// It must be stopped with Stop.
func NewStarvationChecker(threshold time.Duration) *StarvationChecker {
	return NewStarvationCheckerWithInterval(threshold, DefaultCheckInterval)
}

// NewStarvationCheckerWithInterval starts a checker with a custom check interval.
func NewStarvationCheckerWithInterval(threshold, interval time.Duration) *StarvationChecker {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	checker := &StarvationChecker{
		starvationThreshold: threshold,
		checkInterval:       interval,
		lastTick:            time.Now(),
		logger:              logger.For(logger.ComponentStarvationChecker),
		ctx:                 ctx,
		cancel:              cancel,
	}

	checker.wg.Add(1)

	go checker.checkStarvationLoop()

	checker.logger.Infof("Starvation checker created with threshold %s", threshold)

	return checker
}

func (s *StarvationChecker) checkStarvationLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.check()
		}
	}
}

func (s *StarvationChecker) check() {
	s.mutex.Lock()
	sinceLastTick := time.Since(s.lastTick)
	s.starved = sinceLastTick > s.starvationThreshold
	starved := s.starved
	s.mutex.Unlock()

	if !starved {
		s.logger.Debugf("Tick loop is healthy, last tick was %.2f seconds ago", sinceLastTick.Seconds())

		return
	}

	starvationTime := sinceLastTick.Seconds()
	metrics.AddStarvationTime(starvationTime)
	sentry.ReportIssuef(sentry.IssueTypeWarning, s.logger, "[StarvationChecker.check] Tick loop starvation detected: %.2f seconds since last tick", starvationTime)
}

// Stop terminates the background goroutine. Calling it more than once is safe.
func (s *StarvationChecker) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping starvation checker")
		s.cancel()
		s.wg.Wait()
		s.logger.Info("Starvation checker stopped")
	})
}

// MarkTick records that a tick has just completed and clears the starved flag.
func (s *StarvationChecker) MarkTick() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastTick = time.Now()
	s.starved = false
}

// LastTick returns when the most recent tick completed.
func (s *StarvationChecker) LastTick() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.lastTick
}

// Starved reports whether the last background check found the loop starved.
func (s *StarvationChecker) Starved() bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return s.starved
}
