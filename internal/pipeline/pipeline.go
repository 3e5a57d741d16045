// Package pipeline evaluates accepted requests against the monitoring
// profile in the background and hands the resulting alerts to the sinks.
package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"reqmon/internal/alerts"
	"reqmon/internal/logger"
	"reqmon/internal/metrics"
	"reqmon/internal/models"
	"reqmon/internal/profile"
	"reqmon/internal/rules"
)

// Config wires a Pipeline.
type Config struct {
	Source    profile.Source
	Factory   *rules.Factory
	Engine    *rules.Engine
	Sink      alerts.Sink
	QueueSize int
	// SinkTimeout bounds one hand-off to the sink.
	SinkTimeout time.Duration
}

// Pipeline owns the evaluation queue. Submit feeds it from the transport,
// and a worker.Pool drains it by calling Process.
type Pipeline struct {
	source      profile.Source
	factory     *rules.Factory
	engine      *rules.Engine
	sink        alerts.Sink
	sinkTimeout time.Duration
	log         zerolog.Logger

	mu     sync.RWMutex
	queue  chan *models.Envelope
	closed bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	alerted   atomic.Uint64
}

// New returns a pipeline. Missing factory or engine default to the built-in
// rule types.
func New(cfg Config) *Pipeline {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = 5 * time.Second
	}
	if cfg.Factory == nil {
		cfg.Factory = rules.DefaultFactory()
	}
	if cfg.Engine == nil {
		cfg.Engine = rules.NewEngine(rules.DefaultRegistry())
	}

	metrics.PipelineQueueCapacity.Set(float64(cfg.QueueSize))

	return &Pipeline{
		source:      cfg.Source,
		factory:     cfg.Factory,
		engine:      cfg.Engine,
		sink:        cfg.Sink,
		sinkTimeout: cfg.SinkTimeout,
		log:         logger.WithComponent("pipeline"),
		queue:       make(chan *models.Envelope, cfg.QueueSize),
	}
}

// Queue is the channel the worker pool consumes.
func (p *Pipeline) Queue() <-chan *models.Envelope {
	return p.queue
}

// Submit schedules env for evaluation without blocking. It reports false
// when the queue is full or closed and the evaluation was dropped.
func (p *Pipeline) Submit(env *models.Envelope) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.drop(env, "pipeline closed")
		return false
	}

	select {
	case p.queue <- env:
		p.submitted.Add(1)
		metrics.PipelineQueueSize.Set(float64(len(p.queue)))
		return true
	default:
		p.drop(env, "evaluation queue full")
		return false
	}
}

func (p *Pipeline) drop(env *models.Envelope, reason string) {
	p.dropped.Add(1)
	metrics.PipelineDroppedTotal.Inc()
	p.log.Warn().
		Str("envelope_id", env.ID).
		Str("url", env.Request.URL).
		Int("queue_capacity", cap(p.queue)).
		Msg(reason + ", evaluation dropped")
}

// Close stops accepting submissions and closes the queue so the worker
// pool can drain it. It is safe to call more than once.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.queue)
}

// Process evaluates one request against the current profile and hands any
// alerts to the sink. Rule build failures and sink failures are logged and
// never returned.
func (p *Pipeline) Process(ctx context.Context, env *models.Envelope) error {
	start := time.Now()
	log := p.log.With().
		Str("envelope_id", env.ID).
		Str("url", env.Request.URL).
		Logger()

	prof := p.snapshot()

	defs, errs := p.factory.BuildAll(prof.Rules)
	for _, err := range errs {
		metrics.RulesBuildErrors.Inc()
		log.Error().Err(err).Msg("failed to build rule, rule dropped")
	}

	found := p.engine.Execute(env.Request, defs)
	metrics.PipelineEvaluationDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Int("rules", len(defs)).
		Int("alerts", len(found)).
		Msgf("Loaded %d rules, generated %d alerts", len(defs), len(found))

	if len(found) == 0 {
		return nil
	}
	p.alerted.Add(uint64(len(found)))

	if p.sink == nil {
		return nil
	}
	sctx, cancel := context.WithTimeout(ctx, p.sinkTimeout)
	defer cancel()
	if err := p.sink.Append(sctx, alerts.NewRecord(env, found)); err != nil {
		log.Error().Err(err).Int("alerts", len(found)).Msg("failed to persist alerts")
	}
	return nil
}

// snapshot returns the profile to evaluate with. An absent snapshot is
// treated as an empty profile.
func (p *Pipeline) snapshot() *profile.Profile {
	if p.source == nil {
		return profile.Empty()
	}
	prof, err := p.source.Current()
	if err != nil {
		if !errors.Is(err, profile.ErrNoProfile) {
			p.log.Error().Err(err).Msg("failed to read monitoring profile")
		}
		return profile.Empty()
	}
	if prof == nil {
		return profile.Empty()
	}
	return prof
}

// Stats returns pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Submitted:     p.submitted.Load(),
		Dropped:       p.dropped.Load(),
		Alerts:        p.alerted.Load(),
		QueueLength:   len(p.queue),
		QueueCapacity: cap(p.queue),
	}
}

// Stats holds pipeline counters.
type Stats struct {
	Submitted     uint64 `json:"submitted"`
	Dropped       uint64 `json:"dropped"`
	Alerts        uint64 `json:"alerts"`
	QueueLength   int    `json:"queue_length"`
	QueueCapacity int    `json:"queue_capacity"`
}
