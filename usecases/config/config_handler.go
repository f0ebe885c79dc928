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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigFile           = "./wavestore.conf.yaml"
	DefaultSavingSnapshotPeriod = 100
	DefaultOpenStreamsCacheSize = 1024
	DefaultMonitoringPort       = 2112
	DefaultAdminConcurrency     = 4
)

// Flags are the command line options that influence config loading.
type Flags struct {
	ConfigFile string `long:"config-file" description:"path to config file (default: ./wavestore.conf.yaml)"`
	DataPath   string `long:"data-path" description:"root directory of the wavelet stores, overrides the config file"`
}

type Config struct {
	Persistence Persistence `json:"persistence" yaml:"persistence"`
	Monitoring  Monitoring  `json:"monitoring" yaml:"monitoring"`
	Admin       Admin       `json:"admin" yaml:"admin"`
}

type Persistence struct {
	DataPath             string `json:"dataPath" yaml:"dataPath"`
	SavingSnapshotPeriod int64  `json:"savingSnapshotPeriod" yaml:"savingSnapshotPeriod"`
	OpenStreamsCacheSize int    `json:"openStreamsCacheSize" yaml:"openStreamsCacheSize"`
}

func (p Persistence) Validate() error {
	if p.DataPath == "" {
		return fmt.Errorf("persistence.dataPath must be set")
	}
	if p.SavingSnapshotPeriod <= 0 {
		return fmt.Errorf("persistence.savingSnapshotPeriod must be greater than 0")
	}
	if p.OpenStreamsCacheSize <= 0 {
		return fmt.Errorf("persistence.openStreamsCacheSize must be greater than 0")
	}
	return nil
}

// DeltasPath is the root of the delta store.
func (p Persistence) DeltasPath() string {
	return filepath.Join(p.DataPath, "deltas")
}

// SnapshotsPath is the root of the snapshot store.
func (p Persistence) SnapshotsPath() string {
	return filepath.Join(p.DataPath, "snapshots")
}

// BlocksPath is the bbolt file of the block store.
func (p Persistence) BlocksPath() string {
	return filepath.Join(p.DataPath, "blocks.db")
}

type Monitoring struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Port    int  `json:"port" yaml:"port"`
}

func (m Monitoring) Validate() error {
	if m.Enabled && (m.Port <= 0 || m.Port > 65535) {
		return fmt.Errorf("monitoring.port must be a valid port, got %d", m.Port)
	}
	return nil
}

type Admin struct {
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

func (a Admin) Validate() error {
	if a.Concurrency <= 0 {
		return fmt.Errorf("admin.concurrency must be greater than 0")
	}
	return nil
}

func Defaults() Config {
	return Config{
		Persistence: Persistence{
			SavingSnapshotPeriod: DefaultSavingSnapshotPeriod,
			OpenStreamsCacheSize: DefaultOpenStreamsCacheSize,
		},
		Monitoring: Monitoring{Port: DefaultMonitoringPort},
		Admin:      Admin{Concurrency: DefaultAdminConcurrency},
	}
}

func (c Config) Validate() error {
	if err := c.Persistence.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Monitoring.Validate(); err != nil {
		return configErr(err)
	}
	if err := c.Admin.Validate(); err != nil {
		return configErr(err)
	}
	return nil
}

// LoadConfig builds the config from, in increasing precedence, defaults, the
// config file, environment variables and command line flags. A missing
// default config file is not an error; a missing explicit one is.
func LoadConfig(flags Flags, logger logrus.FieldLogger) (Config, error) {
	config := Defaults()

	configFileName := flags.ConfigFile
	if configFileName == "" {
		configFileName = DefaultConfigFile
	}

	file, err := os.ReadFile(configFileName)
	if err != nil && (flags.ConfigFile != "" || !os.IsNotExist(err)) {
		return config, configErr(errors.Wrapf(err, "read config file %q", configFileName))
	}

	if len(file) > 0 {
		logger.WithField("action", "config_load").
			WithField("config_file_path", configFileName).
			Debug("loading config file")
		if err := parseConfigFile(file, configFileName, &config); err != nil {
			return config, configErr(err)
		}
	}

	if err := FromEnv(&config); err != nil {
		return config, configErr(err)
	}

	if flags.DataPath != "" {
		config.Persistence.DataPath = flags.DataPath
	}

	return config, config.Validate()
}

func parseConfigFile(file []byte, name string, config *Config) error {
	switch ext := filepath.Ext(name); ext {
	case ".json":
		if err := json.Unmarshal(file, config); err != nil {
			return fmt.Errorf("error unmarshalling the json config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(file, config); err != nil {
			return fmt.Errorf("error unmarshalling the yaml config file: %w", err)
		}
	case "":
		return fmt.Errorf("config file does not have a file ending, got '%s'", name)
	default:
		return fmt.Errorf("unsupported config file extension '%s', use .yaml or .json", ext)
	}
	return nil
}

func configErr(err error) error {
	return fmt.Errorf("invalid config: %w", err)
}
