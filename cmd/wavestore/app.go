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

package main

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/wavestore/adapters/repos/wavelets"
	"github.com/weaviate/wavestore/adapters/repos/wavelets/blocks"
	"github.com/weaviate/wavestore/usecases/admin"
	"github.com/weaviate/wavestore/usecases/config"
	"github.com/weaviate/wavestore/usecases/monitoring"
)

// app wires the stores for the duration of one command.
type app struct {
	config    config.Config
	logger    logrus.FieldLogger
	metrics   *monitoring.PrometheusMetrics
	deltas    *wavelets.DeltaStore
	snapshots *wavelets.SnapshotStore
	blocks    *blocks.Store
	admin     *admin.Admin
	cancel    context.CancelFunc
}

func newApp(ctx context.Context, opts *Options, logger logrus.FieldLogger) (*app, error) {
	cfg, err := config.LoadConfig(opts.Flags, logger)
	if err != nil {
		return nil, err
	}

	a := &app{config: cfg, logger: logger}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = monitoring.NewPrometheusMetrics(registry)

	listen := opts.MetricsListen
	if listen == "" && cfg.Monitoring.Enabled {
		listen = fmt.Sprintf(":%d", cfg.Monitoring.Port)
	}
	if listen != "" {
		serveCtx, cancel := context.WithCancel(ctx)
		a.cancel = cancel
		addr, err := monitoring.Serve(serveCtx, listen, registry, a.metrics, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		logger.WithField("action", "metrics_server").WithField("addr", addr.String()).Info("serving metrics")
	}

	if err := a.openStores(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStores() error {
	p := a.config.Persistence
	cacheSize := wavelets.WithCacheSize(p.OpenStreamsCacheSize)

	var err error
	if a.deltas, err = wavelets.NewDeltaStore(p.DeltasPath(), a.logger, a.metrics, cacheSize); err != nil {
		return err
	}
	if a.snapshots, err = wavelets.NewSnapshotStore(p.SnapshotsPath(), a.logger, a.metrics, cacheSize); err != nil {
		return err
	}
	if a.blocks, err = blocks.NewStore(p.BlocksPath(), a.logger); err != nil {
		return err
	}

	a.admin, err = admin.New(a.deltas, a.snapshots, a.blocks, admin.Config{
		SavingSnapshotPeriod: p.SavingSnapshotPeriod,
		Concurrency:          a.config.Admin.Concurrency,
	}, a.logger, a.metrics)
	return err
}

func (a *app) close() error {
	var result *multierror.Error
	ctx := context.Background()
	if a.deltas != nil {
		if err := a.deltas.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.snapshots != nil {
		if err := a.snapshots.Shutdown(ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.blocks != nil {
		if err := a.blocks.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	return errors.Wrap(result.ErrorOrNil(), "close stores")
}
