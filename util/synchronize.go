package util

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

type synchronizer struct {
	name     string
	expected int64
	calls    atomic.Int64
	handler  func(error)

	mu       sync.Mutex
	firstErr error
}

// Synchronize returns a report function that must be called exactly n times,
// once by each of n concurrent jobs. After the n-th report handler is invoked
// once with the first non nil error reported, or nil. Calling the report
// function more than n times panics, as does n == 0.
func Synchronize(handler func(error), n int, name string) func(error) {
	if n <= 0 {
		panic(fmt.Sprintf("synchronize %s: job count must be positive, got %d", name, n))
	}

	s := &synchronizer{
		name:     name,
		expected: int64(n),
		handler:  handler,
	}

	return s.report
}

func (s *synchronizer) report(err error) {
	if err != nil {
		s.mu.Lock()
		if s.firstErr == nil {
			s.firstErr = err
		}
		s.mu.Unlock()
	}

	calls := s.calls.Inc()

	switch {
	case calls < s.expected:
		return
	case calls > s.expected:
		panic(fmt.Sprintf("synchronize %s: reported %d times, expected %d", s.name, calls, s.expected))
	}

	s.mu.Lock()
	firstErr := s.firstErr
	s.mu.Unlock()

	s.handler(firstErr)
}
