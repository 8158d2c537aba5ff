package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/c360studio/semdict/bootstrap"
	"github.com/c360studio/semdict/cache"
	"github.com/c360studio/semdict/config"
	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/event"
	"github.com/c360studio/semdict/metric"
	"github.com/c360studio/semdict/storage"
	"github.com/c360studio/semdict/tracing"
)

// services holds a wired dictionary and everything it depends on.
type services struct {
	dict     *dictionary.Dictionary
	dir      *bootstrap.Directory
	registry *prometheus.Registry
	tracer   *tracing.Provider

	nc      *nats.Conn
	cluster *cache.Cluster[*dictionary.Registry]
	store   *storage.ModelStore

	logger *slog.Logger
}

// newServices wires a dictionary from cfg. With useNATS false the NATS
// settings are ignored and the dictionary runs node-local.
func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger, useNATS bool) (s *services, err error) {
	s = &services{logger: logger}
	defer func() {
		if err != nil {
			s.Close(context.Background())
		}
	}()

	if s.tracer, err = tracing.NewProvider(ctx, cfg.Tracing); err != nil {
		return nil, fmt.Errorf("create tracer: %w", err)
	}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := metric.NewMetrics()
	if err := metrics.Register(s.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	opts := []dictionary.Option{
		dictionary.WithLogger(logger),
		dictionary.WithMetrics(metrics),
		dictionary.WithTracer(s.tracer.Tracer()),
	}

	if useNATS && cfg.NATS.URL != "" {
		if s.nc, err = connectToNATS(cfg.NATS.URL, logger); err != nil {
			return nil, err
		}
		js, err := jetstream.New(s.nc)
		if err != nil {
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		if s.cluster, err = cache.NewCluster[*dictionary.Registry](ctx, js, cfg.NATS.CacheBucket, logger); err != nil {
			return nil, err
		}
		if err := s.cluster.Start(ctx); err != nil {
			return nil, fmt.Errorf("start cluster cache: %w", err)
		}
		if s.store, err = storage.NewModelStore(ctx, js, cfg.NATS.ModelBucket); err != nil {
			return nil, err
		}
		opts = append(opts,
			dictionary.WithCache(s.cluster),
			dictionary.WithEvents(event.NewEmitter(s.nc, cfg.NATS.EventPrefix, logger)),
		)
		logger.Info("Cluster mode", "node", s.cluster.Node(), "cache_bucket", cfg.NATS.CacheBucket, "model_bucket", cfg.NATS.ModelBucket)
	}

	s.dict = dictionary.New(opts...)

	if !cfg.Dictionary.SkipBuiltin {
		s.dict.Register(bootstrap.NewBuiltin(logger))
	}
	if cfg.Dictionary.ModelsDir != "" {
		if s.dir, err = bootstrap.NewDirectory(cfg.Dictionary.ModelsDir, cfg.Dictionary.Patterns, logger); err != nil {
			return nil, err
		}
		s.dict.Register(s.dir)
	}
	if s.store != nil {
		s.dict.Register(bootstrap.NewStore(s.store, logger))
	}
	return s, nil
}

// Close releases NATS resources and flushes traces.
func (s *services) Close(ctx context.Context) {
	if s.cluster != nil {
		if err := s.cluster.Stop(); err != nil {
			s.logger.Warn("Failed to stop cluster cache", "error", err)
		}
	}
	if s.nc != nil {
		if err := s.nc.Drain(); err != nil {
			s.logger.Warn("Failed to drain NATS connection", "error", err)
		}
	}
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			s.logger.Warn("Failed to flush traces", "error", err)
		}
	}
}

func connectToNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	logger.Info("Connecting to NATS", "url", url)

	nc, err := nats.Connect(url,
		nats.Name(appName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, wrapNATSError(err, url)
	}

	logger.Info("Connected to NATS", "url", url)
	return nc, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	if errors.Is(err, nats.ErrNoServers) ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker run -p 4222:4222 nats -js

Or unset nats.url (SEMDICT_NATS_URL) to run a single node.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}
