// Package providers defines the SignalProvider capability interface and
// the default provider set: source-code hosting (github), social graph
// (twitter), on-chain identity registry (erc8004), marketplace adoption
// (clawhub), and community reputation (moltbook).
package providers

import (
	"context"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

// Recommended signal TTLs in seconds. On-chain data moves slowly; error
// fallbacks expire fast so a transient outage does not pin a zero score.
const (
	TTLOnChain  = 3600
	TTLOffChain = 1800
	TTLError    = 120
)

// Metadata describes a provider's capabilities.
type Metadata struct {
	Name          string              `json:"name"`
	Version       string              `json:"version"`
	Description   string              `json:"description"`
	SubjectTypes  []trust.SubjectType `json:"supported_subject_types"`
	Namespaces    []string            `json:"supported_namespaces"`
	SignalTypes   []string            `json:"signal_types_offered"`
	SoftRateLimit int                 `json:"soft_rate_limit"`
}

// Request carries one typed subject to a provider.
type Request struct {
	Subject trust.Subject
	Context trust.Context
}

// HealthStatus grades a provider's recent behaviour.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusDegraded  HealthStatus = "degraded"
	StatusUnhealthy HealthStatus = "unhealthy"
)

// Health is a point-in-time provider health report.
type Health struct {
	Status       HealthStatus      `json:"status"`
	LastCheck    time.Time         `json:"last_check"`
	AvgLatencyMs float64           `json:"rolling_avg_latency_ms"`
	ErrorRate1h  float64           `json:"rolling_error_rate_1h"`
	Dependencies map[string]string `json:"dependency_map,omitempty"`
}

// Provider is the signal-provider capability. Implementations are value
// types registered into a list; there is no inheritance.
//
// Evaluate must not fail for "subject not found" (return an empty slice),
// must honour the context deadline, and must clamp score and confidence to
// [0,1]. Transport and auth errors may be returned as errors, or absorbed
// into a single zero-score low-confidence signal with an "error" evidence
// key (the soft-error shape).
type Provider interface {
	Metadata() Metadata
	Supports(subject trust.Subject) bool
	Evaluate(ctx context.Context, req Request) ([]trust.Signal, error)
	Health(ctx context.Context) Health
}

// newSignal builds a clamped signal in the provider's name.
func newSignal(provider, signalType string, subject trust.Subject, score, confidence float64, evidence map[string]interface{}, ttl int) trust.Signal {
	return trust.Signal{
		Provider:   provider,
		Type:       signalType,
		Subject:    subject.Key(),
		Score:      clamp01(score),
		Confidence: clamp01(confidence),
		Evidence:   evidence,
		ProducedAt: time.Now(),
		TTLSeconds: ttl,
	}
}

// softErrorSignal is the fraud-shaped fallback for soft failures: zero
// score, low confidence, short TTL, with the error recorded as evidence.
func softErrorSignal(provider, signalType string, subject trust.Subject, err error) trust.Signal {
	return newSignal(provider, signalType, subject, 0, 0.3, map[string]interface{}{
		"error": err.Error(),
	}, TTLError)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// capped clamps v by ceiling and scales to [0,1]. Provider scores are
// sums of capped inputs times fixed weights, which keeps them bounded,
// monotonic and saturating.
func capped(v, ceiling float64) float64 {
	if v <= 0 {
		return 0
	}
	if v >= ceiling {
		return 1
	}
	return v / ceiling
}
