package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"reqmon/internal/logger"
	"reqmon/internal/metrics"
	"reqmon/internal/models"
)

// Processor handles one queued envelope.
type Processor interface {
	Process(ctx context.Context, env *models.Envelope) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, env *models.Envelope) error

func (f ProcessorFunc) Process(ctx context.Context, env *models.Envelope) error {
	return f(ctx, env)
}

// Pool manages a pool of workers that consume envelopes from a queue
type Pool struct {
	processor Processor
	queue     <-chan *models.Envelope
	workers   int
	timeout   time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// Metrics
	processed atomic.Uint64
	failed    atomic.Uint64
	panics    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Processor Processor
	Queue     <-chan *models.Envelope
	Workers   int
	// Timeout bounds the processing of a single envelope.
	Timeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		processor: cfg.Processor,
		queue:     cfg.Queue,
		workers:   cfg.Workers,
		timeout:   cfg.Timeout,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing envelopes
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Dur("timeout", p.timeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop stops all workers. Envelopes already queued are processed before the
// workers exit.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().
		Uint64("processed", p.processed.Load()).
		Uint64("failed", p.failed.Load()).
		Msg("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()
	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	for {
		select {
		case <-p.ctx.Done():
			p.drain()
			return

		case env, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(context.Background(), env)
		}
	}
}

// drain processes whatever is still buffered without blocking.
func (p *Pool) drain() {
	for {
		select {
		case env, ok := <-p.queue:
			if !ok {
				return
			}
			p.handle(context.Background(), env)
		default:
			return
		}
	}
}

func (p *Pool) handle(parent context.Context, env *models.Envelope) {
	metrics.PipelineQueueSize.Set(float64(len(p.queue)))

	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	if err := p.process(ctx, env); err != nil {
		log := logger.WithComponent("worker")
		log.Error().
			Err(err).
			Str("envelope_id", env.ID).
			Str("request_id", env.RequestID).
			Str("url", env.Request.URL).
			Msg("failed to process request")
		p.failed.Add(1)
		metrics.WorkerFailedTotal.Inc()
		return
	}
	p.processed.Add(1)
	metrics.WorkerProcessedTotal.Inc()
}

// process runs the processor and turns a panic into an error so that one
// bad envelope does not take the worker down.
func (p *Pool) process(ctx context.Context, env *models.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log := logger.WithComponent("worker")
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
			p.panics.Add(1)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processor.Process(ctx, env)
}

// Stats returns worker pool statistics
func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Panics    uint64 `json:"panics"`
}
