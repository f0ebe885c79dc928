//                           _       _
// __      _____  __ ___   ___  __ _| |_ ___
// \ \ /\ / / _ \/ _` \ \ / / |/ _` | __/ _ \
//  \ V  V /  __/ (_| |\ V /| | (_| | ||  __/
//   \_/\_/ \___|\__,_| \_/ |_|\__,_|\__\___|
//
//  Copyright © 2016 - 2024 Weaviate B.V. All rights reserved.
//
//  CONTACT: hello@weaviate.io
//

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	logger, _ := test.NewNullLogger()

	t.Run("yaml file", func(t *testing.T) {
		path := writeConfig(t, "wavestore.yaml", `
persistence:
  dataPath: /var/lib/wavestore
  savingSnapshotPeriod: 50
monitoring:
  enabled: true
  port: 9090
`)
		cfg, err := LoadConfig(Flags{ConfigFile: path}, logger)
		require.NoError(t, err)
		assert.Equal(t, "/var/lib/wavestore", cfg.Persistence.DataPath)
		assert.Equal(t, int64(50), cfg.Persistence.SavingSnapshotPeriod)
		assert.Equal(t, DefaultOpenStreamsCacheSize, cfg.Persistence.OpenStreamsCacheSize)
		assert.True(t, cfg.Monitoring.Enabled)
		assert.Equal(t, 9090, cfg.Monitoring.Port)
		assert.Equal(t, DefaultAdminConcurrency, cfg.Admin.Concurrency)
		assert.Equal(t, "/var/lib/wavestore/deltas", cfg.Persistence.DeltasPath())
	})

	t.Run("json file", func(t *testing.T) {
		path := writeConfig(t, "wavestore.json",
			`{"persistence": {"dataPath": "/data", "openStreamsCacheSize": 8}, "admin": {"concurrency": 2}}`)
		cfg, err := LoadConfig(Flags{ConfigFile: path}, logger)
		require.NoError(t, err)
		assert.Equal(t, "/data", cfg.Persistence.DataPath)
		assert.Equal(t, 8, cfg.Persistence.OpenStreamsCacheSize)
		assert.Equal(t, 2, cfg.Admin.Concurrency)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeConfig(t, "wavestore.toml", "x = 1")
		_, err := LoadConfig(Flags{ConfigFile: path}, logger)
		assert.ErrorContains(t, err, "unsupported config file extension")
	})

	t.Run("explicit file must exist", func(t *testing.T) {
		_, err := LoadConfig(Flags{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}, logger)
		assert.Error(t, err)
	})

	t.Run("env overrides file, flags override env", func(t *testing.T) {
		path := writeConfig(t, "wavestore.yaml", "persistence:\n  dataPath: /from-file\n")
		t.Setenv("PERSISTENCE_DATA_PATH", "/from-env")
		t.Setenv("PERSISTENCE_SAVING_SNAPSHOT_PERIOD", "7")
		t.Setenv("PROMETHEUS_MONITORING_ENABLED", "on")

		cfg, err := LoadConfig(Flags{ConfigFile: path}, logger)
		require.NoError(t, err)
		assert.Equal(t, "/from-env", cfg.Persistence.DataPath)
		assert.Equal(t, int64(7), cfg.Persistence.SavingSnapshotPeriod)
		assert.True(t, cfg.Monitoring.Enabled)

		cfg, err = LoadConfig(Flags{ConfigFile: path, DataPath: "/from-flag"}, logger)
		require.NoError(t, err)
		assert.Equal(t, "/from-flag", cfg.Persistence.DataPath)
	})

	t.Run("invalid env values", func(t *testing.T) {
		t.Setenv("PERSISTENCE_DATA_PATH", "/data")
		for env, value := range map[string]string{
			"PERSISTENCE_SAVING_SNAPSHOT_PERIOD":  "0",
			"PERSISTENCE_OPEN_STREAMS_CACHE_SIZE": "many",
			"PROMETHEUS_MONITORING_PORT":          "eighty",
			"ADMIN_CONCURRENCY":                   "-1",
		} {
			t.Run(env, func(t *testing.T) {
				t.Setenv(env, value)
				_, err := LoadConfig(Flags{ConfigFile: writeConfig(t, "c.yaml", "{}")}, logger)
				assert.Error(t, err)
			})
		}
	})

	t.Run("data path is required", func(t *testing.T) {
		_, err := LoadConfig(Flags{ConfigFile: writeConfig(t, "c.yaml", "{}")}, logger)
		assert.ErrorContains(t, err, "persistence.dataPath must be set")
	})
}

func TestValidate(t *testing.T) {
	valid := Defaults()
	valid.Persistence.DataPath = "/data"
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero snapshot period", func(c *Config) { c.Persistence.SavingSnapshotPeriod = 0 }},
		{"zero cache size", func(c *Config) { c.Persistence.OpenStreamsCacheSize = 0 }},
		{"bad monitoring port", func(c *Config) { c.Monitoring.Enabled = true; c.Monitoring.Port = 70000 }},
		{"zero admin concurrency", func(c *Config) { c.Admin.Concurrency = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
