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

package monitoring

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	enterrors "github.com/weaviate/wavestore/entities/errors"
)

type countingListener struct {
	net.Listener
	count prometheus.Gauge
}

func CountingListener(l net.Listener, g prometheus.Gauge) net.Listener {
	return &countingListener{Listener: l, count: g}
}

func (c *countingListener) Accept() (net.Conn, error) {
	conn, err := c.Listener.Accept()
	if err != nil {
		return nil, err
	}
	c.count.Inc()
	return &countingConn{Conn: conn, count: c.count}, nil
}

type countingConn struct {
	net.Conn
	count prometheus.Gauge
	once  sync.Once
}

// Close decrements the gauge on the first call only.
func (c *countingConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() {
		c.count.Dec()
	})
	return err
}

// Serve exposes gatherer on addr under /metrics until ctx is done. The
// listener is bound before Serve returns, so a bind error is reported
// synchronously.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer,
	pm *PrometheusMetrics, logger logrus.FieldLogger,
) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %q", addr)
	}
	if pm != nil {
		l = CountingListener(l, pm.MetricsConnections)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	enterrors.GoWrapper(func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("action", "metrics_server").WithError(err).Error("metrics server stopped")
		}
	}, logger)
	enterrors.GoWrapper(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithField("action", "metrics_server").WithError(err).Warn("shut down metrics server")
		}
	}, logger)

	return l.Addr(), nil
}
