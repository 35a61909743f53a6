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

// Package api serves the operator HTTP interface of the plant core.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/united-manufacturing-hub/separation-core/pkg/config"
	"github.com/united-manufacturing-hub/separation-core/pkg/control"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
)

// Controller runs operator actions on the tick goroutine.
type Controller interface {
	Submit(ctx context.Context, name string, apply func(*plant.Core) error) error
	SetAnalyzerHealthy(ctx context.Context, healthy bool) error
}

// SnapshotSource hands out copies of the latest plant snapshot.
type SnapshotSource interface {
	GetDeepCopySnapshot() (control.SystemSnapshot, error)
}

// Server is the operator API.
type Server struct {
	server    *http.Server
	router    *gin.Engine
	logger    *zap.SugaredLogger
	ctl       Controller
	snapshots SnapshotSource
	cfg       config.FullConfig
}

// NewServer builds the router. cfg is the effective configuration: its agent section
// selects the port and the whole document is served on /api/v1/config.
func NewServer(ctl Controller, snapshots SnapshotSource, cfg config.FullConfig, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:    logger,
		ctl:       ctl,
		snapshots: snapshots,
		cfg:       cfg,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.loggingMiddleware())

	router.GET("/healthz", s.health)

	v1 := router.Group("/api/v1")
	v1.GET("/snapshot", s.snapshot)
	v1.GET("/outputs", s.outputs)
	v1.GET("/alarms", s.alarms)
	v1.GET("/audit", s.audit)
	v1.GET("/config", s.configYAML)

	v1.POST("/cascade/start", s.command("start", (*plant.Core).StartCascade))
	v1.POST("/cascade/stop", s.command("stop", (*plant.Core).StopCascade))
	v1.POST("/cascade/reset", s.command("reset_fault", (*plant.Core).ResetFault))
	v1.POST("/trip/reset", s.command("reset_trip", (*plant.Core).ResetTrip))

	v1.POST("/alarms/ack", s.acknowledgeAll)
	v1.POST("/alarms/:id/ack", s.acknowledge)
	v1.POST("/interlocks/:id/reset", s.resetInterlock)
	v1.PUT("/constraints/:id/bypass", s.bypass)

	v1.PUT("/loops/:tag/mode", s.loopMode)
	v1.PUT("/loops/:tag/setpoint", s.loopSetpoint)
	v1.PUT("/loops/:tag/output", s.loopOutput)

	v1.PUT("/simulation/analyzer", s.analyzer)

	s.router = router
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Agent.APIPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the router, for tests and for embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on the configured API port until Stop is called.
func (s *Server) Start() error {
	s.logger.Infow("Starting operator API", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("operator API: %w", err)
	}

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping operator API")

	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		s.logger.Debugw("API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
