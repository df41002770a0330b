package queue

import (
	"log/slog"

	"github.com/jonboulle/clockwork"
)

type settings struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	workers int
	failed  FailedSink
}

// Option configures a queue.
type Option func(*settings)

// WithClock sets the clock that runs job delays.
func WithClock(clock clockwork.Clock) Option {
	return func(s *settings) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the queue logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithWorkers sets how many jobs run concurrently.
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithFailedSink sets where exhausted jobs go. LogFailed is the default.
func WithFailedSink(sink FailedSink) Option {
	return func(s *settings) {
		if sink != nil {
			s.failed = sink
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		clock:   clockwork.NewRealClock(),
		logger:  slog.Default(),
		workers: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.failed == nil {
		s.failed = LogFailed(s.logger)
	}
	return s
}
