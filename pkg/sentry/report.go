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

package sentry

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

type IssueType string

const (
	IssueTypeWarning IssueType = "warning"
	IssueTypeError   IssueType = "error"
	IssueTypeFatal   IssueType = "fatal"
)

// DebounceInterval is the minimum time between two reports with the same title and level.
const DebounceInterval = 2 * time.Hour

var (
	debounceMu     sync.Mutex
	shouldDebounce = true
	lastSent       = map[string]time.Time{}
)

// SetDebounce toggles debouncing; tests disable it to observe every report.
func SetDebounce(value bool) {
	debounceMu.Lock()
	defer debounceMu.Unlock()

	shouldDebounce = value
	lastSent = map[string]time.Time{}
}

// allow reports whether a report with this key may be sent now and records it.
func allow(key string, now time.Time) bool {
	debounceMu.Lock()
	defer debounceMu.Unlock()

	if !shouldDebounce {
		return true
	}

	if last, ok := lastSent[key]; ok && now.Sub(last) < DebounceInterval {
		return false
	}

	lastSent[key] = now

	return true
}

func ReportIssue(err error, issueType IssueType, log *zap.SugaredLogger) {
	ReportIssueWithContext(err, issueType, log, nil)
}

func ReportIssuef(issueType IssueType, log *zap.SugaredLogger, template string, args ...interface{}) {
	ReportIssue(fmt.Errorf(template, args...), issueType, log)
}

// ReportIssueWithContext logs the issue and forwards it to sentry with the context as tags.
// Fatal issues panic after flushing.
func ReportIssueWithContext(err error, issueType IssueType, log *zap.SugaredLogger, context map[string]interface{}) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	switch issueType {
	case IssueTypeFatal:
		log.Error("The plant core has encountered a fatal error and will now terminate.")
		log.Errorf("Error: %s", err)
		log.Errorf("Stack trace: %s", string(debug.Stack()))
		sendSentryEvent(createSentryEvent(sentry.LevelFatal, err, context))
		sentry.Flush(5 * time.Second)
		log.Panic("Fatal error")
	case IssueTypeError:
		log.Error(err)

		if allow("error:"+getMeaningfulErrorTitle(err), time.Now()) {
			sendSentryEvent(createSentryEvent(sentry.LevelError, err, context))
		}
	case IssueTypeWarning:
		log.Warn(err)

		if allow("warning:"+getMeaningfulErrorTitle(err), time.Now()) {
			sendSentryEvent(createSentryEvent(sentry.LevelWarning, err, context))
		}
	}
}

// ReportTrip reports a latched equipment trip or lockout.
func ReportTrip(log *zap.SugaredLogger, interlockID string, action string, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]interface{}{
		"operation": "trip",
		"interlock": interlockID,
		"action":    action,
	})
}

// ReportSequenceFault reports a start-up sequence that entered FAULT.
func ReportSequenceFault(log *zap.SugaredLogger, fromState string, err error) {
	ReportIssueWithContext(err, IssueTypeError, log, map[string]interface{}{
		"operation":      "sequence_fault",
		"sequence_state": fromState,
	})
}
