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
	"sync"
	"time"

	"github.com/tiendc/go-deepcopy"

	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
	"github.com/united-manufacturing-hub/separation-core/pkg/sim"
)

// qualityHistorySize is the number of analyzer samples kept for the summary report.
const qualityHistorySize = 600

// SystemSnapshot is the state of the plant after one tick, shared with readers
// outside the tick goroutine.
type SystemSnapshot struct {
	Tick         uint64         `json:"tick"`
	SnapshotTime time.Time      `json:"snapshotTime"`
	StartedAt    time.Time      `json:"startedAt"`
	Plant        plant.Snapshot `json:"plant"`
	Simulation   sim.State      `json:"simulation"`
	// QualityHistory holds the most recent oil-in-water readings, oldest first.
	QualityHistory []float64 `json:"qualityHistory"`
}

// SnapshotManager stores the latest SystemSnapshot.
type SnapshotManager struct {
	mu           sync.RWMutex
	lastSnapshot *SystemSnapshot
}

// NewSnapshotManager creates a manager holding an empty snapshot.
func NewSnapshotManager() *SnapshotManager {
	return &SnapshotManager{
		lastSnapshot: &SystemSnapshot{
			SnapshotTime: time.Now(),
			StartedAt:    time.Now(),
		},
	}
}

// UpdateSnapshot replaces the stored snapshot. The caller must not modify it afterwards.
func (s *SnapshotManager) UpdateSnapshot(snapshot *SystemSnapshot) {
	if s == nil || snapshot == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSnapshot = snapshot
}

// GetSnapshot returns the stored snapshot. Treat it as read-only.
func (s *SnapshotManager) GetSnapshot() *SystemSnapshot {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastSnapshot
}

// GetDeepCopySnapshot returns a copy of the stored snapshot that the caller may modify.
func (s *SnapshotManager) GetDeepCopySnapshot() (SystemSnapshot, error) {
	if s == nil {
		return SystemSnapshot{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var snapshotCopy SystemSnapshot
	if err := deepcopy.Copy(&snapshotCopy, s.lastSnapshot); err != nil {
		return SystemSnapshot{}, err
	}

	return snapshotCopy, nil
}

// appendQuality returns history with v appended, dropping the oldest samples beyond the window.
func appendQuality(history []float64, v float64) []float64 {
	out := make([]float64, 0, min(len(history)+1, qualityHistorySize))
	if len(history) >= qualityHistorySize {
		history = history[len(history)-qualityHistorySize+1:]
	}

	out = append(out, history...)

	return append(out, v)
}
