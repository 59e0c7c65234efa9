package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"studyrag/internal/adapter/bundle"
	"studyrag/internal/port"
)

// ErrSessionClosed is returned by Acquire after Close.
var ErrSessionClosed = errors.New("session closed")

// Resources are the long-lived objects a query path needs. They are safe for
// concurrent use.
type Resources struct {
	Bundle    *bundle.Bundle
	Embedder  port.Embedder
	Retriever port.Retriever
}

// OpenFunc loads Resources. It runs at most once per Shared.
type OpenFunc func(ctx context.Context) (*Resources, error)

// Shared lazily opens Resources on first Acquire and hands the same instance
// to every caller. The embedder is closed once Close has been called and
// every acquired reference has been released.
type Shared struct {
	mu     sync.Mutex
	open   OpenFunc
	logger *slog.Logger
	res    *Resources
	refs   int
	closed bool
}

// NewShared creates a handle over open. Teardown errors that happen after
// Close has returned are reported through logger.
func NewShared(open OpenFunc, logger *slog.Logger) *Shared {
	return &Shared{open: open, logger: logger}
}

// Acquire returns the shared Resources and a release func that must be
// called when the caller is done with them. A failed open is not cached.
func (s *Shared) Acquire(ctx context.Context) (*Resources, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, nil, ErrSessionClosed
	}
	if s.res == nil {
		res, err := s.open(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.res = res
	}
	s.refs++

	var once sync.Once
	release := func() {
		once.Do(s.release)
	}
	return s.res, release, nil
}

func (s *Shared) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs--
	if s.closed && s.refs == 0 {
		if err := s.teardown(); err != nil {
			s.logger.Warn("failed to close embedder", "error", err)
		}
	}
}

// Refs returns the number of outstanding references.
func (s *Shared) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Close stops further Acquire calls. Resources are torn down now if nothing
// holds them, otherwise when the last reference is released.
func (s *Shared) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.refs == 0 {
		return s.teardown()
	}
	return nil
}

func (s *Shared) teardown() error {
	if s.res == nil {
		return nil
	}
	res := s.res
	s.res = nil
	if c, ok := res.Embedder.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
