package main

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"propetl/internal/config"
	"propetl/internal/metrics"
	"propetl/internal/metrics/datadog"
	"propetl/internal/metrics/prompush"
)

// setupMetrics installs the configured metrics backend and returns a func
// that flushes (and closes) it. With no backend configured the nop backend
// stays in place.
func setupMetrics(cfg config.Pipeline, log *zap.Logger) (func(), error) {
	m := cfg.Metrics
	switch m.Backend {
	case "", "none":
		log.Debug("metrics disabled")
		return func() {}, nil

	case "prompush":
		b, err := prompush.NewBackend(cfg.Job, m.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		log.Info("metrics backend", zap.String("backend", m.Backend), zap.String("url", m.PushgatewayURL), zap.String("job", cfg.Job))
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush", zap.Error(err))
			}
		}, nil

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  m.Namespace,
			GlobalTags: append([]string{"job:" + cfg.Job}, m.Tags...),
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		log.Info("metrics backend", zap.String("backend", m.Backend), zap.String("addr", m.DatadogAddr))
		return func() {
			if err := metrics.Flush(); err != nil {
				log.Warn("metrics flush", zap.Error(err))
			}
			if err := b.Close(); err != nil {
				log.Warn("metrics close", zap.Error(err))
			}
		}, nil
	}
	return nil, errors.Newf("unknown metrics backend %q", m.Backend)
}
