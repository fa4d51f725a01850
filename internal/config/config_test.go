package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 10*time.Second, s.ReleaseQuietPeriod)
	assert.Positive(t, s.Broadcast.RatePerSecond)
	assert.Positive(t, s.Broadcast.Burst)
}

func TestLoadSettingsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cuberepo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("release_quiet_period: 2s\nbroadcast:\n  rate: 7\n"), 0o644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, s.ReleaseQuietPeriod)
	assert.EqualValues(t, 7, s.Broadcast.RatePerSecond)
	// untouched keys keep their defaults
	assert.Positive(t, s.Broadcast.Burst)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSystemParams(t *testing.T) {
	ResetForTest()
	t.Setenv(ParamsEnvVar, `{"user":"svc-batch","env":"qa"}`)
	defer ResetForTest()

	assert.Equal(t, "svc-batch", SystemParam(ParamUser))
	assert.Equal(t, "qa", EnvLevel())
}

func TestSystemParamsMalformed(t *testing.T) {
	ResetForTest()
	t.Setenv(ParamsEnvVar, `{not json`)
	defer ResetForTest()

	assert.Empty(t, SystemParam(ParamUser))
}

func TestEnvLevelFallsBackToEnvVar(t *testing.T) {
	ResetForTest()
	t.Setenv(ParamsEnvVar, "")
	t.Setenv(EnvLevelVar, "staging")
	defer ResetForTest()

	assert.Equal(t, "staging", EnvLevel())
}
