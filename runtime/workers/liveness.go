package workers

import (
	"context"
	"log/slog"
	"time"

	"pairchat/runtime"
)

// SessionSource is the part of the registry the monitor needs.
type SessionSource interface {
	ListAll() []*runtime.Session
	Sweep(now time.Time) int
}

// Reaper tears down a session declared dead.
type Reaper interface {
	Expire(s *runtime.Session)
}

type TickReport struct {
	Pinged  int
	Evicted int
	Swept   int
}

// LivenessMonitor is the only actor allowed to declare a session dead for
// silence. A session pinged on one tick that has not answered by the next
// one is evicted, so eviction happens within two intervals.
type LivenessMonitor struct {
	log      *slog.Logger
	sessions SessionSource
	reaper   Reaper
	interval time.Duration
	clock    func() time.Time
}

func NewLivenessMonitor(log *slog.Logger, sessions SessionSource, reaper Reaper, interval time.Duration) *LivenessMonitor {
	return &LivenessMonitor{
		log:      log,
		sessions: sessions,
		reaper:   reaper,
		interval: interval,
		clock:    time.Now,
	}
}

func (m *LivenessMonitor) Run(ctx context.Context) error {
	m.log.Info("Starting liveness monitor", "interval", m.interval)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report := m.Tick(m.clock())
			if report.Evicted > 0 || report.Swept > 0 {
				m.log.Info("Heartbeat tick",
					"pinged", report.Pinged,
					"evicted", report.Evicted,
					"tombstones_swept", report.Swept)
			}
		}
	}
}

// Tick runs one heartbeat round. Transitions are CAS based: a pong racing
// with the tick either lands before the kill and saves the session, or
// arrives too late and is ignored.
func (m *LivenessMonitor) Tick(now time.Time) TickReport {
	var report TickReport
	for _, s := range m.sessions.ListAll() {
		switch s.Liveness() {
		case runtime.AwaitingPong:
			if s.Kill() {
				m.log.Debug("Session missed heartbeat", "session_id", s.ID(), "nickname", s.Nickname())
				m.reaper.Expire(s)
				report.Evicted++
			}
		case runtime.Alive:
			if !s.AwaitPong() {
				continue
			}
			link := s.Link()
			if link == nil {
				continue
			}
			if err := link.Ping(); err != nil {
				m.log.Debug("Ping failed", "session_id", s.ID(), "error", err)
			}
			report.Pinged++
		}
	}
	report.Swept = m.sessions.Sweep(now)
	return report
}
