// pkg/config/config.go

package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/attest/pkg/xdg"
	cerr "github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Settings holds the tunables for the installer and orchestration
// subsystem. Everything has a default; an optional attest.yaml in the XDG
// config dir and ATTEST_* environment variables override.
type Settings struct {
	// InstallDir receives downloaded engine binaries.
	InstallDir string `mapstructure:"install_dir"`
	// WorkspaceDir holds the benchmark workspace (manifest + mods tree).
	WorkspaceDir string `mapstructure:"workspace_dir"`
	// ConnectionDir receives per-provider connection config files.
	ConnectionDir string `mapstructure:"connection_dir"`
	// RecordPath is the persisted installation record.
	RecordPath string `mapstructure:"record_path"`

	// ServicePort is the query engine's well-known service port.
	ServicePort int `mapstructure:"service_port"`

	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	StartupDelay      time.Duration `mapstructure:"startup_delay"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"`
	ReadyAttempts     int           `mapstructure:"ready_attempts"`
	ReadyDelay        time.Duration `mapstructure:"ready_delay"`
	QueryTimeout      time.Duration `mapstructure:"query_timeout"`
	InstallTimeout    time.Duration `mapstructure:"install_timeout"`
	BenchmarkTimeout  time.Duration `mapstructure:"benchmark_timeout"`
	SchemaPollRetries int           `mapstructure:"schema_poll_retries"`
	SchemaPollDelay   time.Duration `mapstructure:"schema_poll_delay"`
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		InstallDir:    xdg.DataPath("bin"),
		WorkspaceDir:  xdg.DataPath("workspace"),
		ConnectionDir: defaultConnectionDir(),
		RecordPath:    xdg.StatePath("installation.json"),

		ServicePort: 9193,

		SettleDelay:       2 * time.Second,
		StartupDelay:      5 * time.Second,
		ReadyTimeout:      5 * time.Second,
		ReadyAttempts:     10,
		ReadyDelay:        3 * time.Second,
		QueryTimeout:      60 * time.Second,
		InstallTimeout:    5 * time.Minute,
		BenchmarkTimeout:  10 * time.Minute,
		SchemaPollRetries: 5,
		SchemaPollDelay:   5 * time.Second,
	}
}

// The query engine only reads connection config from its own config dir,
// so this one path deliberately lives outside the attest XDG tree.
func defaultConnectionDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".steampipe", "config")
}

// Load reads settings from the optional config file and environment.
func Load() (Settings, error) {
	return LoadFrom(filepath.Dir(xdg.ConfigPath("attest.yaml")))
}

// LoadFrom reads settings with an explicit config directory, for tests.
func LoadFrom(dir string) (Settings, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("attest")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("ATTEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !cerr.As(err, &notFound) {
			return Settings{}, cerr.Wrap(err, "read attest.yaml")
		}
		// No config file is the normal case.
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, cerr.Wrap(err, "unmarshal settings")
	}
	return s, nil
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("install_dir", d.InstallDir)
	v.SetDefault("workspace_dir", d.WorkspaceDir)
	v.SetDefault("connection_dir", d.ConnectionDir)
	v.SetDefault("record_path", d.RecordPath)
	v.SetDefault("service_port", d.ServicePort)
	v.SetDefault("settle_delay", d.SettleDelay)
	v.SetDefault("startup_delay", d.StartupDelay)
	v.SetDefault("ready_timeout", d.ReadyTimeout)
	v.SetDefault("ready_attempts", d.ReadyAttempts)
	v.SetDefault("ready_delay", d.ReadyDelay)
	v.SetDefault("query_timeout", d.QueryTimeout)
	v.SetDefault("install_timeout", d.InstallTimeout)
	v.SetDefault("benchmark_timeout", d.BenchmarkTimeout)
	v.SetDefault("schema_poll_retries", d.SchemaPollRetries)
	v.SetDefault("schema_poll_delay", d.SchemaPollDelay)
}
