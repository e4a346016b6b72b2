// pkg/config/config_test.go

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadFromDefaultsWithoutFile(t *testing.T) {
	s, err := LoadFrom(t.TempDir())
	require.NoError(t, err)

	d := Defaults()
	assert.Equal(t, d.ServicePort, s.ServicePort)
	assert.Equal(t, d.InstallTimeout, s.InstallTimeout)
	assert.Equal(t, d.ReadyAttempts, s.ReadyAttempts)
	assert.NotEmpty(t, s.InstallDir)
	assert.NotEmpty(t, s.WorkspaceDir)
}

func TestLoadFromFileOverrides(t *testing.T) {
	dir := t.TempDir()

	overrides := map[string]interface{}{
		"service_port":      19193,
		"ready_attempts":    4,
		"install_timeout":   "90s",
		"workspace_dir":     "/tmp/attest-test-workspace",
		"benchmark_timeout": "2m",
	}
	raw, err := yaml.Marshal(overrides)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "attest.yaml"), raw, 0644))

	s, err := LoadFrom(dir)
	require.NoError(t, err)

	assert.Equal(t, 19193, s.ServicePort)
	assert.Equal(t, 4, s.ReadyAttempts)
	assert.Equal(t, 90*time.Second, s.InstallTimeout)
	assert.Equal(t, 2*time.Minute, s.BenchmarkTimeout)
	assert.Equal(t, "/tmp/attest-test-workspace", s.WorkspaceDir)

	// Untouched keys keep defaults.
	assert.Equal(t, Defaults().QueryTimeout, s.QueryTimeout)
}

func TestDefaultsAreSane(t *testing.T) {
	d := Defaults()

	assert.Equal(t, 9193, d.ServicePort)
	assert.Equal(t, 5*time.Minute, d.InstallTimeout)
	assert.Equal(t, 10*time.Minute, d.BenchmarkTimeout)
	assert.GreaterOrEqual(t, d.ReadyAttempts, 1)
	assert.Greater(t, d.ReadyDelay, time.Duration(0))
}
