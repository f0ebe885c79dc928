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
	"strconv"

	"github.com/pkg/errors"

	entcfg "github.com/weaviate/wavestore/entities/config"
)

// FromEnv takes a *Config as it will respect initial config that has been
// provided by other means (e.g. a config file) and will only extend those that
// are set
func FromEnv(config *Config) error {
	if v := os.Getenv("PERSISTENCE_DATA_PATH"); v != "" {
		config.Persistence.DataPath = v
	}

	if v := os.Getenv("PERSISTENCE_SAVING_SNAPSHOT_PERIOD"); v != "" {
		asInt, err := entcfg.PositiveInt("PERSISTENCE_SAVING_SNAPSHOT_PERIOD", v)
		if err != nil {
			return err
		}
		config.Persistence.SavingSnapshotPeriod = int64(asInt)
	}

	if v := os.Getenv("PERSISTENCE_OPEN_STREAMS_CACHE_SIZE"); v != "" {
		asInt, err := entcfg.PositiveInt("PERSISTENCE_OPEN_STREAMS_CACHE_SIZE", v)
		if err != nil {
			return err
		}
		config.Persistence.OpenStreamsCacheSize = asInt
	}

	if entcfg.Enabled(os.Getenv("PROMETHEUS_MONITORING_ENABLED")) {
		config.Monitoring.Enabled = true
	}

	if v := os.Getenv("PROMETHEUS_MONITORING_PORT"); v != "" {
		asInt, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "parse PROMETHEUS_MONITORING_PORT as int")
		}
		config.Monitoring.Port = asInt
	}

	if v := os.Getenv("ADMIN_CONCURRENCY"); v != "" {
		asInt, err := entcfg.PositiveInt("ADMIN_CONCURRENCY", v)
		if err != nil {
			return err
		}
		config.Admin.Concurrency = asInt
	}

	return nil
}
