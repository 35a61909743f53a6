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
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"

	"github.com/united-manufacturing-hub/separation-core/pkg/cascade"
	"github.com/united-manufacturing-hub/separation-core/pkg/constraint"
	"github.com/united-manufacturing-hub/separation-core/pkg/control"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
	"github.com/united-manufacturing-hub/separation-core/pkg/pid"
	"github.com/united-manufacturing-hub/separation-core/pkg/plant"
)

var errBadRequest = errors.New("bad request")

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps command errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, pid.ErrUnknownMode):
		return http.StatusBadRequest
	case errors.Is(err, plant.ErrUnknownLoop),
		errors.Is(err, constraint.ErrUnknownInterlock),
		errors.Is(err, constraint.ErrUnknownConstraint),
		errors.Is(err, cascade.ErrUnknownAlarm):
		return http.StatusNotFound
	case errors.Is(err, control.ErrCommandTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

func writeJSON(c *gin.Context, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		metrics.IncErrorCount(metrics.ComponentAPI, c.FullPath())
		c.Data(http.StatusInternalServerError, "application/json; charset=utf-8", []byte(`{"error":"encoding failed"}`))

		return
	}

	c.Data(status, "application/json; charset=utf-8", body)
}

func writeError(c *gin.Context, err error) {
	writeJSON(c, statusFor(err), errorResponse{Error: err.Error()})
}

// bind decodes the JSON request body into v and rejects unknown fields.
func bind(c *gin.Context, v any) error {
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}

	return nil
}
