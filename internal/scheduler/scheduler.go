package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/nvidiautil/internal/collector"
	"codeberg.org/mutker/nvidiautil/internal/errors"
	"codeberg.org/mutker/nvidiautil/internal/logger"
)

// Scheduler runs every processor sequentially on a fixed-rate timeline.
// At most one loop is active per Scheduler.
type Scheduler struct {
	mu         sync.Mutex
	processors []collector.Processor
	logger     logger.Logger
	period     time.Duration
	cancel     context.CancelFunc
	done       chan struct{}
	ticks      atomic.Uint64
}

func New(log logger.Logger, processors ...collector.Processor) *Scheduler {
	if log == nil {
		log = logger.Nop()
	}

	return &Scheduler{
		processors: processors,
		logger:     log,
	}
}

// Add registers another processor. It takes effect on the next Start.
func (s *Scheduler) Add(p collector.Processor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processors = append(s.processors, p)
}

// Start ticks once immediately and then every period. A running loop is
// stopped first, so calling Start again only changes the period.
//
// Start and Stop wait for an in-flight tick to finish and must not be
// called from an Observer.
func (s *Scheduler) Start(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errors.New().WithData(ErrInvalidInterval, period.String())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	processors := make([]collector.Processor, len(s.processors))
	copy(processors, s.processors)

	s.period = period
	s.cancel = cancel
	s.done = done

	go s.loop(loopCtx, period, processors, done)

	s.logger.Debug().
		Dur("period", period).
		Int("collectors", len(processors)).
		Msg("Scheduler started")

	return nil
}

// Stop cancels the loop and waits for it to exit. No tick runs after Stop
// returns. Stopping an idle scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopLocked() {
		s.logger.Debug().Msg("Scheduler stopped")
	}
}

func (s *Scheduler) stopLocked() bool {
	if s.cancel == nil {
		return false
	}

	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil

	return true
}

// Running reports whether a loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return false
	}

	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Period returns the period of the most recent Start.
func (s *Scheduler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// Ticks returns the number of ticks run since creation.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Tick runs every processor once on the caller's goroutine.
func (s *Scheduler) Tick(ctx context.Context) {
	s.mu.Lock()
	processors := make([]collector.Processor, len(s.processors))
	copy(processors, s.processors)
	s.mu.Unlock()

	s.tick(ctx, processors)
}

func (s *Scheduler) loop(ctx context.Context, period time.Duration, processors []collector.Processor, done chan struct{}) {
	defer close(done)

	s.tick(ctx, processors)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			s.tick(ctx, processors)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, processors []collector.Processor) {
	s.ticks.Add(1)

	for _, p := range processors {
		if ctx.Err() != nil {
			return
		}

		if err := p.Process(ctx); err != nil {
			s.logger.Warn().
				Err(err).
				Str("collector", p.Name()).
				Msg("Collector cycle failed")
		}
	}
}
