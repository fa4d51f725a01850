// Package config holds process-wide system parameters. Parameters come from a
// single environment variable carrying a JSON object, optionally overlaid by a
// YAML settings file supplied by the embedder. They are read once.
package config

import (
	"encoding/json"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/cubeworks/cuberepo/internal/logger"
)

const (
	// ParamsEnvVar names the environment variable carrying the JSON params
	ParamsEnvVar = "CUBEREPO_PARAMS"
	// EnvLevelVar is injected into classpath coordinates as "env" when absent
	EnvLevelVar = "ENV_LEVEL"

	// ParamUser overrides the acting user for the whole process
	ParamUser = "user"
	// ParamEnv overrides the environment level
	ParamEnv = "env"
)

// Settings are embedder-supplied knobs, loadable from YAML
type Settings struct {
	// ReleaseQuietPeriod is how long releaseCubes waits after taking the
	// application lock so in-flight readers drain. Zero disables the wait.
	ReleaseQuietPeriod time.Duration

	Broadcast struct {
		// RatePerSecond throttles outgoing change notifications
		RatePerSecond float64
		// Burst is the notification burst size
		Burst int
	}
}

// DefaultSettings returns the built-in settings
func DefaultSettings() Settings {
	var s Settings
	s.ReleaseQuietPeriod = 10 * time.Second
	s.Broadcast.RatePerSecond = 100
	s.Broadcast.Burst = 500
	return s
}

// settingsFile is the YAML shape; durations travel as strings ("10s", "2m")
type settingsFile struct {
	ReleaseQuietPeriod string `yaml:"release_quiet_period"`
	Broadcast          struct {
		RatePerSecond float64 `yaml:"rate"`
		Burst         int     `yaml:"burst"`
	} `yaml:"broadcast"`
}

// LoadSettings reads a YAML settings file, overlaying the defaults. Keys the
// file omits keep their default values.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	var f settingsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return s, err
	}
	if f.ReleaseQuietPeriod != "" {
		d, err := time.ParseDuration(f.ReleaseQuietPeriod)
		if err != nil {
			return s, err
		}
		s.ReleaseQuietPeriod = d
	}
	if f.Broadcast.RatePerSecond > 0 {
		s.Broadcast.RatePerSecond = f.Broadcast.RatePerSecond
	}
	if f.Broadcast.Burst > 0 {
		s.Broadcast.Burst = f.Broadcast.Burst
	}
	return s, nil
}

var (
	paramsMu sync.Mutex
	params   map[string]string
)

// SystemParams returns the process-wide parameter map, reading the params
// environment variable on first use
func SystemParams() map[string]string {
	paramsMu.Lock()
	defer paramsMu.Unlock()
	if params != nil {
		return params
	}
	params = map[string]string{}
	raw := os.Getenv(ParamsEnvVar)
	if raw == "" {
		return params
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		logger.Warn("ignoring malformed system params", "var", ParamsEnvVar, "error", err)
		return params
	}
	for k, v := range decoded {
		if s, ok := v.(string); ok {
			params[k] = s
		}
	}
	return params
}

// SystemParam returns one parameter, or empty when unset
func SystemParam(key string) string {
	return SystemParams()[key]
}

// EnvLevel returns the configured environment level, or empty
func EnvLevel() string {
	if v := SystemParam(ParamEnv); v != "" {
		return v
	}
	return os.Getenv(EnvLevelVar)
}

// ResetForTest clears the cached params so tests can vary the environment
func ResetForTest() {
	paramsMu.Lock()
	params = nil
	paramsMu.Unlock()
}
