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

// Package alarm holds the bounded, deduplicated alarm list raised by the cascade orchestrator.
package alarm

import (
	"time"

	"github.com/google/uuid"
)

// Priority of an alarm.
type Priority string

const (
	PriorityCritical Priority = "CRITICAL"
	PriorityHigh     Priority = "HIGH"
	PriorityMedium   Priority = "MEDIUM"
	PriorityLow      Priority = "LOW"
)

// DefaultCapacity is the number of alarms kept before the oldest is dropped.
const DefaultCapacity = 50

type Alarm struct {
	ID           string    `json:"id"`
	Tag          string    `json:"tag"`
	Priority     Priority  `json:"priority"`
	Message      string    `json:"message"`
	Timestamp    time.Time `json:"timestamp"`
	Acknowledged bool      `json:"acknowledged"`
}

// List is an append-only alarm list with a fixed capacity.
// Methods never modify the receiver; they return the updated list.
type List struct {
	Capacity int     `json:"capacity"`
	Items    []Alarm `json:"items"`
}

// NewList returns an empty list. A capacity <= 0 selects DefaultCapacity.
func NewList(capacity int) List {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return List{Capacity: capacity}
}

// Raise appends an alarm unless an unacknowledged alarm with the same tag is already present.
// The second return value reports whether the alarm was added.
func (l List) Raise(tag string, priority Priority, message string, at time.Time) (List, bool) {
	if l.HasActive(tag) {
		return l, false
	}

	capacity := l.Capacity
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	items := make([]Alarm, 0, min(len(l.Items)+1, capacity))

	start := 0
	if len(l.Items)+1 > capacity {
		start = len(l.Items) + 1 - capacity
	}

	items = append(items, l.Items[start:]...)
	items = append(items, Alarm{
		ID:        uuid.NewString(),
		Tag:       tag,
		Priority:  priority,
		Message:   message,
		Timestamp: at,
	})

	return List{Capacity: capacity, Items: items}, true
}

// HasActive reports whether an unacknowledged alarm with this tag exists.
func (l List) HasActive(tag string) bool {
	for _, a := range l.Items {
		if a.Tag == tag && !a.Acknowledged {
			return true
		}
	}

	return false
}

// Acknowledge marks the alarm with the given id as acknowledged.
func (l List) Acknowledge(id string) (List, bool) {
	for i, a := range l.Items {
		if a.ID != id {
			continue
		}

		if a.Acknowledged {
			return l, false
		}

		items := append([]Alarm(nil), l.Items...)
		items[i].Acknowledged = true

		return List{Capacity: l.Capacity, Items: items}, true
	}

	return l, false
}

// AcknowledgeAll marks every alarm as acknowledged.
func (l List) AcknowledgeAll() List {
	items := append([]Alarm(nil), l.Items...)
	for i := range items {
		items[i].Acknowledged = true
	}

	return List{Capacity: l.Capacity, Items: items}
}

// Active returns the unacknowledged alarms, oldest first.
func (l List) Active() []Alarm {
	var active []Alarm

	for _, a := range l.Items {
		if !a.Acknowledged {
			active = append(active, a)
		}
	}

	return active
}

// Len returns the number of alarms held.
func (l List) Len() int {
	return len(l.Items)
}
