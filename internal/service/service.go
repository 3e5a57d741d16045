package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"reqmon/internal/alerts"
	"reqmon/internal/config"
	"reqmon/internal/handlers"
	"reqmon/internal/kafka"
	"reqmon/internal/logger"
	"reqmon/internal/middleware"
	"reqmon/internal/pipeline"
	"reqmon/internal/profile"
	"reqmon/internal/rules"
	"reqmon/internal/storage"
	"reqmon/internal/worker"
)

const (
	statsInterval   = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	drainTimeout    = 15 * time.Second
)

// Service is the high-level coordinator: it serves the API, keeps the
// monitoring profile fresh and runs the evaluation workers.
type Service struct {
	cfg *config.Config

	cache      *profile.Cache
	pipeline   *pipeline.Pipeline
	workerPool *worker.Pool
	sinks      *alerts.Multi
	producer   *kafka.Producer
	store      *storage.AlertStore
	httpServer *http.Server

	started time.Time
}

// New wires every component from cfg. Sinks are opened here so that a bad
// sink configuration fails before the listener starts.
func New(cfg *config.Config) (*Service, error) {
	s := &Service{cfg: cfg}

	if err := s.initSinks(); err != nil {
		return nil, err
	}

	s.cache = profile.NewCache(profile.NewFileProvider(cfg.Profile.Path), cfg.Profile.RefreshInterval)

	s.pipeline = pipeline.New(pipeline.Config{
		Source:      s.cache,
		Factory:     rules.DefaultFactory(),
		Engine:      rules.NewEngine(rules.DefaultRegistry()),
		Sink:        s.sinks,
		QueueSize:   cfg.Pipeline.QueueSize,
		SinkTimeout: cfg.Pipeline.SinkTimeout,
	})

	s.workerPool = worker.NewPool(worker.Config{
		Processor: s.pipeline,
		Queue:     s.pipeline.Queue(),
		Workers:   cfg.Pipeline.Workers,
		Timeout:   cfg.Pipeline.SinkTimeout + 5*time.Second,
	})

	s.initHTTPServer()
	return s, nil
}

// initSinks opens every enabled alert sink
func (s *Service) initSinks() error {
	log := logger.WithComponent("service")
	cfg := s.cfg.Alerts

	var sinks []alerts.Sink
	fail := func(err error) error {
		alerts.NewMulti(sinks...).Close()
		return err
	}

	if cfg.File.Enabled {
		fs, err := alerts.NewFileSink(cfg.File.Dir)
		if err != nil {
			return fail(fmt.Errorf("file sink: %w", err))
		}
		sinks = append(sinks, fs)
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Producer)
		if err != nil {
			return fail(fmt.Errorf("kafka sink: %w", err))
		}
		s.producer = producer
		sinks = append(sinks, alerts.NewKafkaSink(producer, cfg.Kafka.Topic))
		log.Info().
			Strs("brokers", cfg.Kafka.Brokers).
			Str("topic", cfg.Kafka.Topic).
			Msg("kafka producer initialized")
	}

	if cfg.SQLite.Enabled {
		store, err := storage.Open(cfg.SQLite)
		if err != nil {
			return fail(fmt.Errorf("sqlite sink: %w", err))
		}
		s.store = store
		sinks = append(sinks, alerts.NewStoreSink(store))
	}

	for i, wh := range cfg.Webhooks {
		url := wh.URL()
		if url == "" {
			log.Warn().Int("index", i).Str("url_env", wh.URLEnv).Msg("webhook url not set, sink disabled")
			continue
		}
		sinks = append(sinks, alerts.NewWebhookSink(url, wh.Timeout))
	}

	s.sinks = alerts.NewMulti(sinks...)
	if len(sinks) == 0 {
		log.Warn().Msg("no alert sinks enabled, alerts will only be logged")
	}
	log.Info().Strs("sinks", s.sinks.Names()).Msg("alert sinks initialized")
	return nil
}

// initHTTPServer initializes the HTTP server with handlers
func (s *Service) initHTTPServer() {
	mux := http.NewServeMux()
	api := func(h http.Handler) http.Handler {
		return middleware.Chain(h, middleware.Recovery, middleware.Logging, middleware.CORS)
	}

	mux.Handle("/api/v1/config", api(handlers.NewConfigHandler(s.cache)))
	mux.Handle("/api/v1/requests", api(handlers.NewIngestHandler(handlers.IngestConfig{
		Submitter:   s.pipeline,
		MaxBodySize: s.cfg.HTTP.MaxBodySize,
	})))
	if s.store != nil {
		mux.Handle("/api/v1/alerts", api(handlers.NewAlertsHandler(s.store)))
	}

	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  s.cfg.HTTP.ReadTimeout,
		WriteTimeout: s.cfg.HTTP.WriteTimeout,
		IdleTimeout:  s.cfg.HTTP.IdleTimeout,
	}
}

// Handler returns the routed API.
func (s *Service) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run starts background goroutines and blocks until ctx is cancelled or a
// component fails, then shuts down gracefully.
func (s *Service) Run(ctx context.Context) error {
	log := logger.WithComponent("service")
	log.Info().Msg("service starting")
	s.started = time.Now()

	prof := s.cache.Refresh(ctx)
	log.Info().
		Str("path", s.cfg.Profile.Path).
		Int("domains", len(prof.Domains)).
		Int("rules", len(prof.Rules)).
		Msg("monitoring profile loaded")

	s.workerPool.Start()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("stopping HTTP server")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
		return nil
	})

	g.Go(func() error {
		return s.cache.Run(gctx)
	})

	if s.cfg.Profile.Watch {
		g.Go(func() error {
			// The periodic refresh still runs if the watcher cannot start.
			if err := profile.Watch(gctx, s.cfg.Profile.Path, s.cache); err != nil {
				log.Error().Err(err).Msg("profile watch disabled")
			}
			return nil
		})
	}

	g.Go(func() error {
		s.reportStats(gctx)
		return nil
	})

	err := g.Wait()
	if err != nil {
		log.Error().Err(err).Msg("service component failed")
	} else {
		log.Info().Msg("shutdown signal received")
	}

	s.shutdown()
	return err
}

// shutdown drains queued evaluations and closes the sinks. The HTTP server
// is already stopped when this runs.
func (s *Service) shutdown() {
	log := logger.WithComponent("service")
	log.Info().Msg("initiating graceful shutdown")

	s.pipeline.Close()

	done := make(chan struct{})
	go func() {
		s.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers stopped gracefully")
	case <-time.After(drainTimeout):
		log.Warn().Msg("worker shutdown timeout - closing sinks anyway")
	}

	log.Info().Msg("closing alert sinks")
	if err := s.sinks.Close(); err != nil {
		log.Error().Err(err).Msg("alert sink close error")
	}

	log.Info().Msg("service stopped gracefully")
}

// reportStats periodically logs statistics
func (s *Service) reportStats(ctx context.Context) {
	log := logger.WithComponent("service")
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.stats()
			ev := log.Info().
				Uint64("worker_processed", st.Worker.Processed).
				Uint64("worker_failed", st.Worker.Failed).
				Uint64("submitted", st.Pipeline.Submitted).
				Uint64("dropped", st.Pipeline.Dropped).
				Uint64("alerts", st.Pipeline.Alerts).
				Int("queue_size", st.Pipeline.QueueLength)
			if st.Producer != nil {
				ev = ev.
					Uint64("producer_sent", st.Producer.MessagesSent).
					Uint64("producer_failed", st.Producer.MessagesFailed)
			}
			ev.Msg("stats")
		}
	}
}

// Stats is the body of GET /stats
type Stats struct {
	Uptime   string               `json:"uptime"`
	Worker   worker.Stats         `json:"worker"`
	Pipeline pipeline.Stats       `json:"pipeline"`
	Profile  ProfileStats         `json:"profile"`
	Sinks    []string             `json:"sinks"`
	Producer *kafka.ProducerStats `json:"producer,omitempty"`
}

// ProfileStats describes the current profile snapshot
type ProfileStats struct {
	Path     string    `json:"path"`
	LoadedAt time.Time `json:"loaded_at"`
	Domains  int       `json:"domains"`
	Rules    int       `json:"rules"`
}

func (s *Service) stats() Stats {
	st := Stats{
		Uptime:   time.Since(s.started).Round(time.Second).String(),
		Worker:   s.workerPool.Stats(),
		Pipeline: s.pipeline.Stats(),
		Profile: ProfileStats{
			Path:     s.cfg.Profile.Path,
			LoadedAt: s.cache.LoadedAt(),
		},
		Sinks: s.sinks.Names(),
	}
	if prof, err := s.cache.Current(); err == nil {
		st.Profile.Domains = len(prof.Domains)
		st.Profile.Rules = len(prof.Rules)
	}
	if s.producer != nil {
		ps := s.producer.Stats()
		st.Producer = &ps
	}
	return st
}

// healthHandler reports whether a profile snapshot is available
func (s *Service) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if _, err := s.cache.Current(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// statsHandler returns current statistics
func (s *Service) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.stats())
}
