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
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/getsentry/sentry-go"
	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"go.uber.org/zap"
)

var (
	enabledMu sync.RWMutex
	enabled   bool
)

// Enabled reports whether InitSentry configured a client.
func Enabled() bool {
	enabledMu.RLock()
	defer enabledMu.RUnlock()

	return enabled
}

func setEnabled(value bool) {
	enabledMu.Lock()
	defer enabledMu.Unlock()

	enabled = value
}

// Environment derives the sentry environment from the application version.
// Versions without a pre-release suffix are production builds.
func Environment(appVersion string) string {
	version, err := semver.NewVersion(appVersion)
	if err != nil {
		return constants.DefaultDevelopmentEnvironment
	}

	if version.Prerelease() == "" {
		return constants.DefaultProductionEnvironment
	}

	return constants.DefaultDevelopmentEnvironment
}

// InitSentry initializes sentry for the given version and DSN.
// An empty DSN or the local development version leaves reporting disabled; issues are then only logged.
func InitSentry(appVersion string, dsn string, debounceErrors bool) {
	SetDebounce(debounceErrors)
	setEnabled(false)

	if dsn == "" {
		zap.S().Debug("Sentry disabled: no DSN configured")

		return
	}

	if appVersion == "" || appVersion == constants.DefaultAppVersion {
		zap.S().Debug("Sentry disabled for local development build")

		return
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:           dsn,
		Environment:   Environment(appVersion),
		Release:       "plantcore@" + appVersion,
		EnableTracing: false,
	})
	if err != nil {
		zap.S().Errorf("Failed to initialize Sentry: %s", err)

		return
	}

	setEnabled(true)
}

func getMeaningfulErrorTitle(err error) string {
	message := err.Error()

	idx := strings.IndexAny(message, ".,:")
	if idx > 0 {
		message = message[:idx]
	}

	if len(message) > 100 {
		message = message[:97] + "..."
	}

	return message
}

func createSentryEvent(level sentry.Level, err error, context map[string]interface{}) *sentry.Event {
	event := sentry.NewEvent()
	event.Level = level
	event.Message = err.Error()
	event.Exception = []sentry.Exception{{
		Type:       getMeaningfulErrorTitle(err),
		Value:      err.Error(),
		Stacktrace: sentry.ExtractStacktrace(err),
	}}
	event.Fingerprint = []string{"{{ default }}", "level: " + string(level)}

	if len(context) == 0 {
		return event
	}

	event.Tags = make(map[string]string, len(context))

	keys := make([]string, 0, len(context))
	for key := range context {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		switch value := context[key].(type) {
		case string, bool, int, int64, float64:
			event.Tags[key] = fmt.Sprintf("%v", value)
		default:
			if event.Extra == nil {
				event.Extra = make(map[string]interface{})
			}

			event.Extra[key] = value
		}

		// Group trips and sequence faults by what happened, not by when.
		if key == "operation" || key == "interlock" || key == "sequence_state" {
			event.Fingerprint = append(event.Fingerprint, fmt.Sprintf("%s: %v", key, context[key]))
		}
	}

	return event
}

func sendSentryEvent(event *sentry.Event) {
	if !Enabled() {
		return
	}

	sentry.CurrentHub().Clone().CaptureEvent(event)
}
