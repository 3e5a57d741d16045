package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrSinkClosed is returned by Append after Close.
var ErrSinkClosed = errors.New("sink is closed")

// FileSink appends records as JSON lines to one file per UTC day, named
// alerts_YYYYMMDD.jsonl.
type FileSink struct {
	dir string
	now func() time.Time

	mu     sync.Mutex
	day    string
	file   *os.File
	closed bool
}

// NewFileSink creates dir if needed and returns a sink writing into it.
func NewFileSink(dir string) (*FileSink, error) {
	if dir == "" {
		return nil, errors.New("alert directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create alert directory: %w", err)
	}
	return &FileSink{
		dir: dir,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *FileSink) Name() string { return "file_jsonl:" + s.dir }

// Path returns the file records appended at t are written to.
func (s *FileSink) Path(t time.Time) string {
	return filepath.Join(s.dir, fmt.Sprintf("alerts_%s.jsonl", t.UTC().Format("20060102")))
}

func (s *FileSink) Append(_ context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if err := s.rotate(s.now()); err != nil {
		return err
	}
	// One write per record keeps concurrent appends from interleaving.
	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// rotate makes sure the open file belongs to the day of t.
func (s *FileSink) rotate(t time.Time) error {
	day := t.UTC().Format("20060102")
	if s.file != nil && s.day == day {
		return nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return fmt.Errorf("close %s: %w", s.file.Name(), err)
		}
		s.file = nil
	}

	f, err := os.OpenFile(s.Path(t), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open alert file: %w", err)
	}
	s.file = f
	s.day = day
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
