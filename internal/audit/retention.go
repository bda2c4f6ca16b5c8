package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/provio-systems/provio/pkg/logging"
)

// Sweeper periodically removes audit events past their retention
// expiry. Permanent and security-flagged events are never removed.
type Sweeper struct {
	trail    *Trail
	logger   *logging.Logger
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewSweeper(trail *Trail, interval time.Duration, logger *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sweeper{trail: trail, interval: interval, logger: logger}
}

// Start begins the sweep loop.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sweeper already running")
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	s.logger.Info("retention sweeper starting", "interval", s.interval.String())

	s.wg.Add(1)
	go s.run(ctx)
	return nil
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.trail.SweepExpired(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "retention sweep failed", "error", err)
		return
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "retention sweep removed expired events", "removed", removed)
	}
}
