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

package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/united-manufacturing-hub/separation-core/pkg/config"
	"github.com/united-manufacturing-hub/separation-core/pkg/control"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
)

type modeRequest struct {
	Mode pid.Mode `json:"mode"`
}

// valueRequest uses a pointer so a missing value is told apart from zero.
type valueRequest struct {
	Value *float64 `json:"value"`
}

type bypassRequest struct {
	Bypassed bool `json:"bypassed"`
}

type analyzerRequest struct {
	Healthy bool `json:"healthy"`
}

type acceptedResponse struct {
	Command  string `json:"command"`
	Accepted bool   `json:"accepted"`
}

func (s *Server) health(c *gin.Context) {
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) current(c *gin.Context) (control.SystemSnapshot, bool) {
	snap, err := s.snapshots.GetDeepCopySnapshot()
	if err != nil {
		s.logger.Errorf("Failed to copy snapshot: %v", err)
		writeJSON(c, http.StatusInternalServerError, errorResponse{Error: "snapshot unavailable"})

		return control.SystemSnapshot{}, false
	}

	return snap, true
}

func (s *Server) snapshot(c *gin.Context) {
	if snap, ok := s.current(c); ok {
		writeJSON(c, http.StatusOK, snap)
	}
}

func (s *Server) outputs(c *gin.Context) {
	if snap, ok := s.current(c); ok {
		writeJSON(c, http.StatusOK, snap.Plant.Outputs)
	}
}

func (s *Server) alarms(c *gin.Context) {
	if snap, ok := s.current(c); ok {
		writeJSON(c, http.StatusOK, snap.Plant.Cascade.Alarms.Active())
	}
}

func (s *Server) audit(c *gin.Context) {
	if snap, ok := s.current(c); ok {
		writeJSON(c, http.StatusOK, snap.Plant.Engine.Audit)
	}
}

func (s *Server) configYAML(c *gin.Context) {
	body, err := config.Marshal(s.cfg)
	if err != nil {
		writeError(c, err)

		return
	}

	c.Data(http.StatusOK, "application/yaml; charset=utf-8", body)
}

// command returns a handler running apply through the controller.
func (s *Server) command(name string, apply func(*plant.Core) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.submit(c, name, apply)
	}
}

func (s *Server) submit(c *gin.Context, name string, apply func(*plant.Core) error) {
	if err := s.ctl.Submit(c.Request.Context(), name, apply); err != nil {
		writeError(c, err)

		return
	}

	writeJSON(c, http.StatusOK, acceptedResponse{Command: name, Accepted: true})
}

func (s *Server) acknowledge(c *gin.Context) {
	id := c.Param("id")
	s.submit(c, "ack_alarm", func(core *plant.Core) error { return core.AcknowledgeAlarm(id) })
}

func (s *Server) acknowledgeAll(c *gin.Context) {
	s.submit(c, "ack_all_alarms", func(core *plant.Core) error {
		core.AcknowledgeAllAlarms()

		return nil
	})
}

func (s *Server) resetInterlock(c *gin.Context) {
	id := c.Param("id")
	s.submit(c, "reset_interlock", func(core *plant.Core) error { return core.ResetInterlock(id) })
}

func (s *Server) bypass(c *gin.Context) {
	var req bypassRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)

		return
	}

	id := c.Param("id")
	s.submit(c, "bypass_constraint", func(core *plant.Core) error { return core.BypassConstraint(id, req.Bypassed) })
}

func (s *Server) loopMode(c *gin.Context) {
	var req modeRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)

		return
	}

	tag := c.Param("tag")
	s.submit(c, "set_mode", func(core *plant.Core) error { return core.SetLoopMode(tag, req.Mode) })
}

func (s *Server) loopSetpoint(c *gin.Context) {
	value, ok := s.value(c)
	if !ok {
		return
	}

	tag := c.Param("tag")
	s.submit(c, "set_setpoint", func(core *plant.Core) error { return core.SetLoopSetpoint(tag, value) })
}

func (s *Server) loopOutput(c *gin.Context) {
	value, ok := s.value(c)
	if !ok {
		return
	}

	tag := c.Param("tag")
	s.submit(c, "set_output", func(core *plant.Core) error { return core.SetLoopOutput(tag, value) })
}

func (s *Server) value(c *gin.Context) (float64, bool) {
	var req valueRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)

		return 0, false
	}

	if req.Value == nil {
		writeError(c, fmt.Errorf("%w: value is required", errBadRequest))

		return 0, false
	}

	return *req.Value, true
}

func (s *Server) analyzer(c *gin.Context) {
	var req analyzerRequest
	if err := bind(c, &req); err != nil {
		writeError(c, err)

		return
	}

	if err := s.ctl.SetAnalyzerHealthy(c.Request.Context(), req.Healthy); err != nil {
		writeError(c, err)

		return
	}

	writeJSON(c, http.StatusOK, acceptedResponse{Command: "analyzer_health", Accepted: true})
}
