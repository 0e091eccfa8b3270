// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package dispatch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configVersion = "1"

const (
	defaultConfigDir  = ".hlid"
	defaultConfigFile = "run.yaml"
)

// RunConfig is the full set of tunables for one dispatcher run, loaded from
// a YAML file with environment-variable overrides, mirroring the teacher's
// project configuration layer.
type RunConfig struct {
	Version string `yaml:"version"`

	// Pool sizing and memory budget, per spec.md §3 MemoryBudget.
	NThreads          int `yaml:"nthreads"`
	TotalMemoryLimit  int `yaml:"total_memory_limit_mb"`
	BaseMemoryLimit   int `yaml:"base_memory_limit_mb"`
	OOMThresholdMB    int `yaml:"oom_threshold_mb"`

	// Batch and unpack sizing, per spec.md §4.1/§4.4.
	ComputationsPerProcess int `yaml:"computations_per_process"`
	MaxPerTemplate         int `yaml:"max_per_template"`
	UnpackLowWater         int `yaml:"unpack_low_water"`
	UnpackHighWater        int `yaml:"unpack_high_water"`
	MinThreshold           int `yaml:"min_threshold"`

	// SecondaryArity is the fixed number of secondary fields in every
	// input, database, and output record, used by the default record
	// schema when no custom one is configured.
	SecondaryArity int `yaml:"secondary_arity"`

	// Engine invocation, per spec.md §6.
	EngineBinaryPath string        `yaml:"engine_binary_path"`
	ScriptPath       string        `yaml:"script_path"`
	ExtraFlags       []string      `yaml:"extra_flags"`
	Timeout          time.Duration `yaml:"timeout"`

	// Filesystem layout.
	InputFile    string `yaml:"input_file"`
	OutputDir    string `yaml:"output_dir"`
	StagingDir   string `yaml:"staging_dir"`
	DatabaseDir  string `yaml:"database_dir"`
	GiveupLogPath string `yaml:"giveup_log_path"`

	// Observability.
	MetricsAddr string `yaml:"metrics_addr"`
}

// applyEnvOverrides lets a small set of operational knobs be overridden at
// container-run time without editing the checked-in config file, mirroring
// the teacher's CIE_CONFIG_PATH / env-override convention.
func (c *RunConfig) applyEnvOverrides() {
	if v := os.Getenv("HLID_TOTAL_MEMORY_LIMIT_MB"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.TotalMemoryLimit = n
		}
	}
	if v := os.Getenv("HLID_NTHREADS"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			c.NThreads = n
		}
	}
	if v := os.Getenv("HLID_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
}

func parsePositiveInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid positive integer %q", s)
	}
	return n, nil
}

// DefaultRunConfig returns a RunConfig with the defaults a fresh `hlid init`
// would write out.
func DefaultRunConfig() *RunConfig {
	return &RunConfig{
		Version:                configVersion,
		NThreads:               4,
		TotalMemoryLimit:       4096,
		BaseMemoryLimit:        256,
		OOMThresholdMB:         512,
		ComputationsPerProcess: 64,
		MaxPerTemplate:         512 * 1024,
		UnpackLowWater:         1000,
		UnpackHighWater:        5000,
		MinThreshold:           500,
		SecondaryArity:         1,
		Timeout:                10 * time.Minute,
		OutputDir:              "output",
		StagingDir:             "staging",
		DatabaseDir:            "db",
		GiveupLogPath:          "giveup.log",
	}
}

// LoadRunConfig loads a RunConfig from configPath, or discovers
// <dir>/.hlid/run.yaml by walking up from the current directory if
// configPath is empty.
func LoadRunConfig(configPath string) (*RunConfig, error) {
	if configPath == "" {
		configPath = os.Getenv("HLID_CONFIG_PATH")
	}
	if configPath == "" {
		var err error
		configPath, err = findRunConfig()
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) //nolint:gosec // G304: path comes from config discovery or explicit flag
	if err != nil {
		return nil, NewFileError("read configuration file", configPath, err)
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewFileError("parse configuration file", configPath, err)
	}

	if cfg.Version != configVersion {
		return nil, NewFileError(
			"configuration version check",
			configPath,
			fmt.Errorf("version %q is not supported (expected %q)", cfg.Version, configVersion),
		)
	}

	cfg.applyEnvOverrides()
	return &cfg, nil
}

// SaveRunConfig writes cfg to configPath as YAML, creating the parent
// directory if needed.
func SaveRunConfig(cfg *RunConfig, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return NewFileError("encode configuration", configPath, err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return NewFileError("create configuration directory", dir, err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return NewFileError("write configuration file", configPath, err)
	}
	return nil
}

// RunConfigPath returns <dir>/.hlid/run.yaml.
func RunConfigPath(dir string) string {
	return filepath.Join(dir, defaultConfigDir, defaultConfigFile)
}

func findRunConfig() (string, error) {
	if p := os.Getenv("HLID_CONFIG_PATH"); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		return "", NewFileError("locate configuration file", p, fmt.Errorf("HLID_CONFIG_PATH set but file does not exist"))
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", NewFileError("determine working directory", "", err)
	}

	for {
		candidate := RunConfigPath(dir)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", NewFileError("locate configuration file", candidate, fmt.Errorf("no run.yaml found in this or any parent directory"))
		}
		dir = parent
	}
}
