package workers

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairchat/contract"
	"pairchat/errors"
)

const (
	defaultRestartInterval    = 200 * time.Millisecond
	defaultMaxRestartInterval = 5 * time.Second
)

// RestartObserver is told about every restart of a crashed worker.
type RestartObserver interface {
	ObserveWorkerRestart(worker string)
}

type SupervisorConfig struct {
	// RestartInterval is the delay before the first restart. Each further
	// consecutive crash doubles it, up to MaxRestartInterval.
	RestartInterval    time.Duration
	MaxRestartInterval time.Duration
	Observer           RestartObserver // may be nil
}

// Supervisor keeps the background workers of the server alive: the
// liveness monitor and the process sampler. A worker that panics or fails
// is restarted with capped exponential backoff. A worker that returns nil
// is done. Cancelling the parent context or calling Stop ends them all.
type Supervisor struct {
	log     *slog.Logger
	conf    SupervisorConfig
	wg      sync.WaitGroup
	workers []contract.Worker

	mu       sync.Mutex
	cancel   context.CancelFunc
	stopped  bool
	restarts map[string]int
}

func NewSupervisor(log *slog.Logger, conf SupervisorConfig) *Supervisor {
	if conf.RestartInterval <= 0 {
		conf.RestartInterval = defaultRestartInterval
	}
	if conf.MaxRestartInterval < conf.RestartInterval {
		conf.MaxRestartInterval = max(defaultMaxRestartInterval, conf.RestartInterval)
	}
	return &Supervisor{log: log, conf: conf, restarts: make(map[string]int)}
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.workers = append(s.workers, worker...)
	return s
}

// Run blocks until every worker has returned.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.cancel = cancel
	s.mu.Unlock()

	for _, worker := range s.workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

// Start runs one worker under supervision in its own goroutine.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	go func() {
		defer s.wg.Done()
		delay := s.conf.RestartInterval
		for {
			startedAt := time.Now()
			err := runGuarded(ctx, worker)
			switch {
			case ctx.Err() != nil:
				s.log.Info("Worker stopped", "worker", name)
				return
			case err == nil:
				s.log.Info("Worker finished", "worker", name)
				return
			}

			// A run longer than the ceiling counts as healthy: start over.
			if time.Since(startedAt) > s.conf.MaxRestartInterval {
				delay = s.conf.RestartInterval
			}
			restarts := s.recordRestart(name)
			s.log.Warn("Worker crashed, restarting",
				"worker", name, "error", err, "restarts", restarts, "backoff", delay)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(2*delay, s.conf.MaxRestartInterval)
		}
	}()
}

func runGuarded(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

func (s *Supervisor) recordRestart(name string) int {
	s.mu.Lock()
	s.restarts[name]++
	n := s.restarts[name]
	s.mu.Unlock()
	if s.conf.Observer != nil {
		s.conf.Observer.ObserveWorkerRestart(name)
	}
	return n
}

// Restarts returns how many times the named worker was restarted.
func (s *Supervisor) Restarts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts[name]
}

// Stop cancels the supervised workers. Safe to call before Run or twice.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}
