package worker_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"reqmon/internal/models"
	"reqmon/internal/worker"
)

// MockProcessor is a mock implementation of Processor for testing
type MockProcessor struct {
	processed  atomic.Uint64
	failed     atomic.Uint64
	shouldFail bool
	delay      time.Duration
}

func (m *MockProcessor) Process(ctx context.Context, env *models.Envelope) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.shouldFail {
		m.failed.Add(1)
		return context.DeadlineExceeded
	}
	m.processed.Add(1)
	return nil
}

func newEnvelope() *models.Envelope {
	return models.NewEnvelope(models.RequestDescriptor{
		URL:       "https://example.com/",
		Method:    "GET",
		Headers:   map[string]string{},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWorkerPool_ProcessEnvelopes(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &MockProcessor{}

	pool := worker.NewPool(worker.Config{
		Processor: mock,
		Queue:     ch,
		Workers:   2,
	})

	pool.Start()
	defer pool.Stop()

	numEnvelopes := 25
	for i := 0; i < numEnvelopes; i++ {
		ch <- newEnvelope()
	}

	waitFor(t, func() bool { return pool.Stats().Processed == uint64(numEnvelopes) })

	if mock.processed.Load() != uint64(numEnvelopes) {
		t.Errorf("expected %d processed, got %d", numEnvelopes, mock.processed.Load())
	}
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &MockProcessor{delay: 5 * time.Millisecond}

	pool := worker.NewPool(worker.Config{
		Processor: mock,
		Queue:     ch,
		Workers:   2,
	})

	pool.Start()

	for i := 0; i < 20; i++ {
		ch <- newEnvelope()
	}

	// Stop should drain what is already queued
	pool.Stop()

	if mock.processed.Load() != 20 {
		t.Errorf("expected 20 processed after shutdown, got %d", mock.processed.Load())
	}
}

func TestWorkerPool_ClosedQueue(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	mock := &MockProcessor{}

	pool := worker.NewPool(worker.Config{
		Processor: mock,
		Queue:     ch,
		Workers:   3,
	})
	pool.Start()

	ch <- newEnvelope()
	close(ch)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after queue was closed")
	}
	if mock.processed.Load() != 1 {
		t.Errorf("expected 1 processed, got %d", mock.processed.Load())
	}
}

func TestWorkerPool_ErrorHandling(t *testing.T) {
	ch := make(chan *models.Envelope, 100)
	mock := &MockProcessor{shouldFail: true}

	pool := worker.NewPool(worker.Config{
		Processor: mock,
		Queue:     ch,
		Workers:   1,
	})

	pool.Start()
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		ch <- newEnvelope()
	}

	waitFor(t, func() bool { return pool.Stats().Failed == 5 })

	if pool.Stats().Processed != 0 {
		t.Errorf("expected no successes, got %d", pool.Stats().Processed)
	}
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	ch := make(chan *models.Envelope, 10)
	var calls atomic.Uint64

	pool := worker.NewPool(worker.Config{
		Processor: worker.ProcessorFunc(func(ctx context.Context, env *models.Envelope) error {
			if calls.Add(1) == 1 {
				panic(errors.New("boom"))
			}
			return nil
		}),
		Queue:   ch,
		Workers: 1,
	})

	pool.Start()
	defer pool.Stop()

	ch <- newEnvelope()
	ch <- newEnvelope()

	waitFor(t, func() bool { return calls.Load() == 2 })
	waitFor(t, func() bool { return pool.Stats().Processed == 1 })

	stats := pool.Stats()
	if stats.Panics != 1 || stats.Failed != 1 {
		t.Errorf("expected 1 panic and 1 failure, got %+v", stats)
	}
}

func TestWorkerPool_Timeout(t *testing.T) {
	ch := make(chan *models.Envelope, 1)
	deadlines := make(chan bool, 1)

	pool := worker.NewPool(worker.Config{
		Processor: worker.ProcessorFunc(func(ctx context.Context, env *models.Envelope) error {
			_, ok := ctx.Deadline()
			deadlines <- ok
			return nil
		}),
		Queue:   ch,
		Workers: 1,
		Timeout: time.Second,
	})

	pool.Start()
	defer pool.Stop()

	ch <- newEnvelope()

	select {
	case ok := <-deadlines:
		if !ok {
			t.Error("expected processing context to carry a deadline")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("envelope was not processed")
	}
}
