package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, "app:\n  name: scamwatch\n"))
	require.NoError(t, err)

	assert.Equal(t, "scamwatch", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Environment)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 100, cfg.Portal.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Portal.Timeout)
	assert.Equal(t, "claude-haiku-20250306", cfg.Anthropic.Model)

	assert.Equal(t, 15*time.Minute, cfg.Jobs.ScanInterval())
	assert.Equal(t, "0 2 * * *", cfg.Jobs.NightlyCronSpec())

	assert.Equal(t, 60.0, cfg.Detection.RuleWeight)
	assert.Equal(t, 40.0, cfg.Detection.BehavioralWeight)
	assert.Equal(t, 0.9, cfg.Detection.Thresholds.Critical)
	assert.Equal(t, 0.7, cfg.Detection.Thresholds.High)
	assert.Equal(t, 0.4, cfg.Detection.Thresholds.Medium)
	assert.Equal(t, 100, cfg.Detection.MaxAIReviewsPerRun)
	assert.Equal(t, 20, cfg.Detection.MaxAIReviewsPerDay)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
jobs:
  scan_interval_minutes: 5
  nightly_hour: 3
  nightly_minute: 30
detection:
  thresholds:
    critical: 0.95
    high: 0.8
    medium: 0.5
`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Jobs.ScanInterval())
	assert.Equal(t, "30 3 * * *", cfg.Jobs.NightlyCronSpec())
	assert.Equal(t, 0.95, cfg.Detection.Thresholds.Critical)
	assert.Equal(t, 0.8, cfg.Detection.Thresholds.High)
	assert.Equal(t, 0.5, cfg.Detection.Thresholds.Medium)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SCAMWATCH_DATABASE_HOST", "db.internal")
	t.Setenv("SCAMWATCH_PORTAL_API_KEY", "secret-token")

	cfg, err := Load(writeConfigFile(t, "app:\n  name: scamwatch\n"))
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "secret-token", cfg.Portal.APIKey)
}

func TestDatabaseDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "scamwatch",
		Password: "pw",
		DBName:   "scamwatch",
		SSLMode:  "disable",
	}
	assert.Equal(t, "postgres://scamwatch:pw@localhost:5432/scamwatch?sslmode=disable", c.DSN())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Detection: DetectionConfig{
				RuleWeight:       60,
				BehavioralWeight: 40,
				Thresholds:       ThresholdsConfig{Critical: 0.9, High: 0.7, Medium: 0.4},
			},
			Jobs: JobsConfig{ScanIntervalMinutes: 15, NightlyHour: 2},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Detection.Thresholds.Critical = 1.2 },
			wantErr: "must be in [0,1]",
		},
		{
			name:    "threshold below zero",
			mutate:  func(c *Config) { c.Detection.Thresholds.Medium = -0.1 },
			wantErr: "must be in [0,1]",
		},
		{
			name:    "unordered thresholds",
			mutate:  func(c *Config) { c.Detection.Thresholds.High = 0.95 },
			wantErr: "must be ordered",
		},
		{
			name:    "negative weight",
			mutate:  func(c *Config) { c.Detection.RuleWeight = -1 },
			wantErr: "non-negative",
		},
		{
			name:    "negative review limit",
			mutate:  func(c *Config) { c.Detection.MaxAIReviewsPerDay = -5 },
			wantErr: "non-negative",
		},
		{
			name:    "zero scan interval",
			mutate:  func(c *Config) { c.Jobs.ScanIntervalMinutes = 0 },
			wantErr: "must be positive",
		},
		{
			name:    "nightly hour out of range",
			mutate:  func(c *Config) { c.Jobs.NightlyHour = 24 },
			wantErr: "nightly_hour",
		},
		{
			name:    "nightly minute out of range",
			mutate:  func(c *Config) { c.Jobs.NightlyMinute = 60 },
			wantErr: "nightly_minute",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
