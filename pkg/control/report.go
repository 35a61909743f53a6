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
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/united-manufacturing-hub/separation-core/pkg/logger"
)

// Reporter logs a one-line plant summary on a cron schedule.
type Reporter struct {
	cron      *cron.Cron
	snapshots *SnapshotManager
	logger    *zap.SugaredLogger
}

// NewReporter schedules the summary. schedule accepts the standard five-field cron
// format and descriptors such as "@every 1m".
func NewReporter(schedule string, snapshots *SnapshotManager) (*Reporter, error) {
	r := &Reporter{
		cron:      cron.New(),
		snapshots: snapshots,
		logger:    logger.For(logger.ComponentReport),
	}

	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return nil, fmt.Errorf("schedule plant summary %q: %w", schedule, err)
	}

	return r, nil
}

// Start runs the schedule in the background.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) report() {
	snapshot := r.snapshots.GetSnapshot()
	if snapshot == nil {
		return
	}

	r.logger.Info(Summary(*snapshot, time.Now()))
}

// Summary renders the plant state as one line.
func Summary(s SystemSnapshot, now time.Time) string {
	out := s.Plant.Outputs

	var b strings.Builder

	fmt.Fprintf(&b, "tick %s, %s simulated", humanize.Comma(int64(s.Tick)), time.Duration(out.Time*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(&b, " | sequence %s (%s)", out.Sequence, out.Mode)
	fmt.Fprintf(&b, " | equipment %s", out.Equipment)

	if out.Tripped {
		b.WriteString(" TRIPPED")
	}

	fmt.Fprintf(&b, " | demand %s", humanize.FormatFloat("#,###.#", out.Master.Demand))
	fmt.Fprintf(&b, " | oiw %s", quality(s.QualityHistory))
	fmt.Fprintf(&b, " | %d active alarms", len(out.Alarms))
	fmt.Fprintf(&b, " | started %s", humanize.RelTime(s.StartedAt, now, "ago", "from now"))

	return b.String()
}

func quality(history []float64) string {
	switch len(history) {
	case 0:
		return "n/a"
	case 1:
		return fmt.Sprintf("%.1f ppm", history[0])
	}

	mean, std := stat.MeanStdDev(history, nil)

	return fmt.Sprintf("%.1f ppm (mean %.1f, sd %.2f, max %.1f over %d samples)",
		history[len(history)-1], mean, std, floats.Max(history), len(history))
}
