package scrape

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/arzwatch/arzwatch/pkg/logger"
)

// Scheduler triggers manager runs on a fixed interval. It owns its cron
// handle with an explicit Start/Stop lifecycle; a tick that fires while the
// same family's previous run is still executing is skipped, never run
// concurrently against the same session pool.
type Scheduler struct {
	managers []*Manager
	interval time.Duration
	// initialRun fires every manager once at Start, before the first tick.
	initialRun bool
	log        *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
	wg      sync.WaitGroup
	cancel  context.CancelFunc
}

// NewScheduler builds a scheduler over the given managers.
func NewScheduler(managers []*Manager, interval time.Duration, initialRun bool, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scrape-scheduler")
	}
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Scheduler{
		managers:   managers,
		interval:   interval,
		initialRun: initialRun,
		log:        log,
	}
}

func (s *Scheduler) Name() string { return "scrape-scheduler" }

// Start registers the periodic jobs and, when configured, kicks off an
// immediate first run for every manager on a background goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cron = cron.New()

	spec := fmt.Sprintf("@every %s", s.interval)
	for _, manager := range s.managers {
		manager := manager
		guard := make(chan struct{}, 1)

		job := func() {
			select {
			case guard <- struct{}{}:
			default:
				s.log.WithField("source", manager.Source()).
					Warn("previous run still in flight; tick skipped")
				return
			}
			defer func() { <-guard }()

			s.wg.Add(1)
			defer s.wg.Done()
			manager.Run(runCtx, nil, true)
		}

		if _, err := s.cron.AddFunc(spec, job); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", manager.Source(), err)
		}
		if s.initialRun {
			go job()
		}
	}

	s.cron.Start()
	s.running = true
	s.log.WithField("interval", s.interval.String()).Info("scrape scheduler started")
	return nil
}

// Stop halts the cron handle and waits for in-flight runs, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cronHandle := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.mu.Unlock()

	stopped := cronHandle.Stop()
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-stopped.Done()
		s.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("scrape scheduler stopped")
	return nil
}
