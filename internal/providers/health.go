package providers

import (
	"sync"
	"time"
)

// statsWindow is the rolling window for latency and error-rate reporting.
const statsWindow = time.Hour

// degraded / unhealthy error-rate thresholds.
const (
	degradedErrorRate  = 0.1
	unhealthyErrorRate = 0.5
)

type observation struct {
	at      time.Time
	latency time.Duration
	failed  bool
}

// callStats tracks a provider's rolling latency and error rate over the
// last hour. Providers record every upstream call; Health() snapshots.
type callStats struct {
	mu  sync.Mutex
	obs []observation
}

func (s *callStats) record(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(time.Now())
	s.obs = append(s.obs, observation{at: time.Now(), latency: latency, failed: err != nil})
}

// prune drops observations older than the window. Caller holds the lock.
func (s *callStats) prune(now time.Time) {
	cutoff := now.Add(-statsWindow)
	i := 0
	for i < len(s.obs) && s.obs[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.obs = append(s.obs[:0], s.obs[i:]...)
	}
}

// snapshot returns (avg latency ms, error rate) over the window.
func (s *callStats) snapshot() (float64, float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prune(time.Now())

	if len(s.obs) == 0 {
		return 0, 0
	}

	var total time.Duration
	failures := 0
	for _, o := range s.obs {
		total += o.latency
		if o.failed {
			failures++
		}
	}
	avgMs := float64(total.Milliseconds()) / float64(len(s.obs))
	return avgMs, float64(failures) / float64(len(s.obs))
}

// health builds the standard health report from the rolling stats.
func (s *callStats) health(deps map[string]string) Health {
	avgMs, errRate := s.snapshot()

	status := StatusHealthy
	if errRate >= unhealthyErrorRate {
		status = StatusUnhealthy
	} else if errRate >= degradedErrorRate {
		status = StatusDegraded
	}

	return Health{
		Status:       status,
		LastCheck:    time.Now(),
		AvgLatencyMs: avgMs,
		ErrorRate1h:  errRate,
		Dependencies: deps,
	}
}
