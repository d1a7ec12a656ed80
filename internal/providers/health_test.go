package providers

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCallStatsHealthyWithNoObservations(t *testing.T) {
	var s callStats
	h := s.health(map[string]string{"api": "https://example.com"})
	assert.Equal(t, StatusHealthy, h.Status)
	assert.Zero(t, h.ErrorRate1h)
	assert.Zero(t, h.AvgLatencyMs)
	assert.Equal(t, "https://example.com", h.Dependencies["api"])
}

func TestCallStatsErrorRateGrading(t *testing.T) {
	var s callStats
	for i := 0; i < 9; i++ {
		s.record(10*time.Millisecond, nil)
	}
	assert.Equal(t, StatusHealthy, s.health(nil).Status)

	// 1 failure in 10 hits the degraded threshold.
	s.record(10*time.Millisecond, errors.New("boom"))
	h := s.health(nil)
	assert.Equal(t, StatusDegraded, h.Status)
	assert.InDelta(t, 0.1, h.ErrorRate1h, 1e-9)

	// Push past half failures.
	for i := 0; i < 10; i++ {
		s.record(10*time.Millisecond, errors.New("boom"))
	}
	assert.Equal(t, StatusUnhealthy, s.health(nil).Status)
}

func TestCallStatsAverageLatency(t *testing.T) {
	var s callStats
	s.record(10*time.Millisecond, nil)
	s.record(30*time.Millisecond, nil)

	avgMs, errRate := s.snapshot()
	assert.InDelta(t, 20.0, avgMs, 1e-9)
	assert.Zero(t, errRate)
}
