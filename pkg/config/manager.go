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

package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/united-manufacturing-hub/separation-core/pkg/constants"
	"github.com/united-manufacturing-hub/separation-core/pkg/logger"
	"github.com/united-manufacturing-hub/separation-core/pkg/metrics"
)

// maxReadRetries bounds the attempts to read the config file.
const maxReadRetries = 3

// FileManager reads the plant configuration from disk.
type FileManager struct {
	path     string
	readFile func(string) ([]byte, error)
	backoff  func() backoff.BackOff
	logger   *zap.SugaredLogger
}

// NewFileManager returns a manager for the file at path.
func NewFileManager(path string) *FileManager {
	return &FileManager{
		path:     path,
		readFile: os.ReadFile,
		backoff: func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxReadRetries)
		},
		logger: logger.For(logger.ComponentConfigManager),
	}
}

// PathFromEnv returns PLANT_CONFIG or the default config path.
func PathFromEnv() string {
	if p := os.Getenv("PLANT_CONFIG"); p != "" {
		return p
	}

	return constants.DefaultConfigPath
}

// Path returns the config file location.
func (m *FileManager) Path() string {
	return m.path
}

// Load reads and validates the config file. A missing file yields the defaults.
// Sections absent from the file keep their default values.
func (m *FileManager) Load(ctx context.Context) (FullConfig, error) {
	var data []byte

	missing := false
	read := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}

		b, err := m.readFile(m.path)
		if errors.Is(err, fs.ErrNotExist) {
			missing = true

			return nil
		}

		if err != nil {
			return fmt.Errorf("read %s: %w", m.path, err)
		}

		data = b

		return nil
	}

	notify := func(err error, wait time.Duration) {
		m.logger.Warnf("Reading config failed, retrying in %s: %v", wait, err)
	}

	if err := backoff.RetryNotify(read, backoff.WithContext(m.backoff(), ctx), notify); err != nil {
		metrics.IncErrorCountAndLog(metrics.ComponentConfigManager, "load", err, m.logger)

		return FullConfig{}, err
	}

	if missing {
		m.logger.Infof("No config file at %s, using defaults", m.path)

		return Default(), nil
	}

	cfg, err := Parse(data)
	if err != nil {
		metrics.IncErrorCountAndLog(metrics.ComponentConfigManager, "load", err, m.logger)

		return FullConfig{}, fmt.Errorf("%s: %w", m.path, err)
	}

	m.logger.Infof("Loaded config from %s", m.path)

	return cfg, nil
}

// Parse decodes a YAML document over the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (FullConfig, error) {
	cfg := Default()

	if len(bytes.TrimSpace(data)) > 0 {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)

		if err := dec.Decode(&cfg); err != nil {
			return FullConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return FullConfig{}, err
	}

	return cfg, nil
}

// Marshal renders cfg as YAML.
func Marshal(cfg FullConfig) ([]byte, error) {
	var buf bytes.Buffer

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(cfg); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
