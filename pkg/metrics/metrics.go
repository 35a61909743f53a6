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

package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/united-manufacturing-hub/separation-core/pkg/logger"
	"github.com/united-manufacturing-hub/separation-core/pkg/sentry"
	"go.uber.org/zap"
)

const (
	// Component Labels.
	ComponentControlLoop      = "control_loop"
	ComponentPlantCore        = "plant_core"
	ComponentCascade          = "cascade"
	ComponentConstraintEngine = "constraint_engine"
	ComponentIntegrity        = "integrity"
	ComponentSimulation       = "simulation"
	ComponentAPI              = "api"
	ComponentConfigManager    = "config_manager"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "separation"
	subsystem = "core"

	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	tickTime = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_duration_milliseconds",
			Help:      "Wall-clock time taken by one plant tick (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.95: 0.01,
				0.99: 0.01,
			},
		},
		[]string{"component", "instance"},
	)

	starvationSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tick_starved_total_seconds",
			Help:      "Total seconds the tick loop was starved",
		},
	)

	loopValue = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "loop_value",
			Help:      "Current PV, SP and OP of a control loop",
		},
		[]string{"tag", "signal"},
	)

	loopMode = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "loop_mode",
			Help:      "Current mode of a control loop (0=OFF, 1=MAN, 2=AUTO, 3=CAS)",
		},
		[]string{"tag"},
	)

	cascadeDemand = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cascade_master_demand_percent",
			Help:      "Master quality loop demand (0-100)",
		},
	)

	cascadeSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cascade_sequence_state",
			Help:      "Ordinal of the start-up sequence state (0=IDLE ... 10=CASCADE_ACTIVE, 11=CONSTRAINT_OVERRIDE, 12=FAULT, 13=SHUTDOWN)",
		},
	)

	engineStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "constraint_engine_status",
			Help:      "Overall equipment protection status (0=NORMAL, 1=ALARM, 2=LIMITED, 3=LOCKOUT, 4=TRIP)",
		},
	)

	interlockTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "interlock_trips_total",
			Help:      "Number of rising edges of each interlock",
		},
		[]string{"interlock"},
	)

	gateStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "integrity_gate_status",
			Help:      "Worst rule status of an integrity gate (0=VALID, 1=WARNING, 2=STALE, 3=MISSING, 4=INVALID)",
		},
		[]string{"gate"},
	)

	gateConfidence = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "integrity_gate_confidence_percent",
			Help:      "Confidence of the last validated value of an integrity gate",
		},
		[]string{"gate"},
	)

	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operator_commands_total",
			Help:      "Operator commands by kind and outcome",
		},
		[]string{"command", "accepted"},
	)
)

// DebugProvider returns a JSON-serializable view served under /debug/plant.
type DebugProvider interface {
	GetDebugInfo() interface{}
}

var debugRegistry struct {
	providers map[string]DebugProvider
	mu        sync.RWMutex
}

// RegisterDebugProvider exposes a provider on the /debug/plant endpoint.
func RegisterDebugProvider(name string, provider DebugProvider) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	if debugRegistry.providers == nil {
		debugRegistry.providers = make(map[string]DebugProvider)
	}

	debugRegistry.providers[name] = provider
}

// UnregisterDebugProvider removes a provider from the registry.
func UnregisterDebugProvider(name string) {
	debugRegistry.mu.Lock()
	defer debugRegistry.mu.Unlock()

	delete(debugRegistry.providers, name)
}

// HandleDebug serves every registered provider as one JSON object keyed by provider name.
func HandleDebug(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

		return
	}

	debugRegistry.mu.RLock()
	defer debugRegistry.mu.RUnlock()

	response := make(map[string]interface{}, len(debugRegistry.providers))
	for name, provider := range debugRegistry.providers {
		response[name] = provider.GetDebugInfo()
	}

	body, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		http.Error(w, "Failed to encode debug info", http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// SetupMetricsEndpoint starts an HTTP server to expose metrics
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/plant", HandleDebug)

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sentry.ReportIssue(err, sentry.IssueTypeFatal, logger.For(logger.ComponentMetrics))
		}
	}()

	return server
}

// IncErrorCountAndLog increments the error counter for a component and logs a debug message if a logger is provided.
func IncErrorCountAndLog(component, instance string, err error, logger *zap.SugaredLogger) {
	IncErrorCount(component, instance)

	if logger != nil {
		logger.Debugf("Component %s instance %s failed: %v", component, instance, err)
	}
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// ObserveTickTime records the wall-clock time of one tick.
func ObserveTickTime(component, instance string, duration time.Duration) {
	tickTime.WithLabelValues(component, instance).Observe(float64(duration.Milliseconds()))
}

// AddStarvationTime increases the starvation counter by the specified seconds.
func AddStarvationTime(seconds float64) {
	starvationSeconds.Add(seconds)
}

// UpdateLoop publishes the latest values of a control loop.
func UpdateLoop(tag string, pv, sp, op float64, mode string) {
	loopValue.WithLabelValues(tag, "pv").Set(pv)
	loopValue.WithLabelValues(tag, "sp").Set(sp)
	loopValue.WithLabelValues(tag, "op").Set(op)
	loopMode.WithLabelValues(tag).Set(getModeValue(mode))
}

func getModeValue(mode string) float64 {
	switch mode {
	case "OFF":
		return 0
	case "MAN":
		return 1
	case "AUTO":
		return 2
	case "CAS":
		return 3
	default:
		return -1
	}
}

// UpdateCascade publishes the master demand and sequence ordinal.
func UpdateCascade(demand float64, sequenceOrdinal int) {
	cascadeDemand.Set(demand)
	cascadeSequence.Set(float64(sequenceOrdinal))
}

// UpdateEngineStatus publishes the overall constraint engine status ordinal.
func UpdateEngineStatus(statusOrdinal int) {
	engineStatus.Set(float64(statusOrdinal))
}

// IncInterlockTrip counts a rising edge of an interlock.
func IncInterlockTrip(interlockID string) {
	interlockTrips.WithLabelValues(interlockID).Inc()
}

// UpdateGate publishes the status ordinal and confidence of an integrity gate.
func UpdateGate(gateID string, statusOrdinal int, confidence float64) {
	gateStatus.WithLabelValues(gateID).Set(float64(statusOrdinal))
	gateConfidence.WithLabelValues(gateID).Set(confidence)
}

// RecordCommand counts an operator command.
func RecordCommand(command string, accepted bool) {
	acceptedStr := "false"
	if accepted {
		acceptedStr = "true"
	}

	commandsTotal.WithLabelValues(command, acceptedStr).Inc()
}
