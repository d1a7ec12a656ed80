// Package trust defines the domain types shared across the evaluation
// engine: subjects, signals, identity links, and the TrustResult contract
// returned to callers.
package trust

import (
	"fmt"
	"time"
)

// SubjectType classifies what kind of thing is being evaluated.
type SubjectType string

const (
	SubjectAgent       SubjectType = "agent"
	SubjectSkill       SubjectType = "skill"
	SubjectInteraction SubjectType = "interaction"
)

// Subject identifies the thing being evaluated. Namespace is a lowercase
// ecosystem tag ("github", "erc8004", "clawhub", ...); ID is opaque and
// interpreted per provider (it may contain '/', ':' or '#').
type Subject struct {
	Type      SubjectType `json:"type"`
	Namespace string      `json:"namespace"`
	ID        string      `json:"id"`
}

// Key returns the canonical "<namespace>:<id>" form. Keys are
// case-preserving and compared case-sensitively.
func (s Subject) Key() string {
	return s.Namespace + ":" + s.ID
}

func (s Subject) String() string {
	return fmt.Sprintf("%s(%s)", s.Key(), s.Type)
}

// Action is the caller-declared intent behind an evaluation.
type Action string

const (
	ActionInstall  Action = "install"
	ActionExecute  Action = "execute"
	ActionDelegate Action = "delegate"
	ActionTransact Action = "transact"
	ActionReview   Action = "review"
)

// Context carries per-query caller context. Transact and delegate actions
// escalate the risk bucket one step.
type Context struct {
	Action Action `json:"action,omitempty"`
}

// Signal is a provider's scored observation about a subject. Score 0 means
// "untrustworthy with the reported confidence", not "no data". Absence of
// data is expressed by returning no signals at all.
type Signal struct {
	Provider   string                 `json:"provider"`
	Type       string                 `json:"signal_type"`
	Subject    string                 `json:"subject"`
	Score      float64                `json:"score"`
	Confidence float64                `json:"confidence"`
	Evidence   map[string]interface{} `json:"evidence,omitempty"`
	ProducedAt time.Time              `json:"produced_at"`
	TTLSeconds int                    `json:"ttl_seconds"`
}

// FraudSeverity grades a fraud heuristic hit.
type FraudSeverity string

const (
	SeverityLow    FraudSeverity = "low"
	SeverityMedium FraudSeverity = "medium"
	SeverityHigh   FraudSeverity = "high"
)

// Fraud signal kinds emitted by the pipeline heuristics.
const (
	FraudNoSignals      = "no_signals"
	FraudNoProviders    = "no_providers"
	FraudLowTrustSignal = "low_trust_signal"
)

// FraudSignal records a heuristic red flag attached to a result.
type FraudSignal struct {
	Kind     string                 `json:"kind"`
	Severity FraudSeverity          `json:"severity"`
	Provider string                 `json:"provider,omitempty"`
	Detail   string                 `json:"detail,omitempty"`
	Evidence map[string]interface{} `json:"evidence,omitempty"`
}

// UnresolvedProvider records a provider that failed or timed out during
// fan-out. Failures are local: they never abort the evaluation.
type UnresolvedProvider struct {
	Provider string `json:"provider"`
	Reason   string `json:"reason"`
}

// RiskLevel buckets the adjusted score.
type RiskLevel string

const (
	RiskMinimal  RiskLevel = "minimal"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Recommendation is the machine-actionable verdict.
type Recommendation string

const (
	RecommendAllow   Recommendation = "allow"
	RecommendInstall Recommendation = "install"
	RecommendReview  Recommendation = "review"
	RecommendCaution Recommendation = "caution"
	RecommendDeny    Recommendation = "deny"
)

// EntityType is derived from the subject's namespace and id shape.
type EntityType string

const (
	EntityAgent     EntityType = "agent"
	EntityRepo      EntityType = "repo"
	EntitySkill     EntityType = "skill"
	EntityDeveloper EntityType = "developer"
	EntityUnknown   EntityType = "unknown"
)

// TrustResult is the stable cross-boundary contract with the HTTP adapter.
// TrustScore is 0-100 rounded to two decimals; Confidence is 0-1 rounded
// to four decimals.
type TrustResult struct {
	SubjectKey     string               `json:"subject_key"`
	TrustScore     float64              `json:"trust_score"`
	Confidence     float64              `json:"confidence"`
	RiskLevel      RiskLevel            `json:"risk_level"`
	Recommendation Recommendation       `json:"recommendation"`
	EntityType     EntityType           `json:"entity_type"`
	Label          string               `json:"label"`
	Signals        []Signal             `json:"signals"`
	FraudSignals   []FraudSignal        `json:"fraud_signals"`
	Unresolved     []UnresolvedProvider `json:"unresolved"`
	EvaluatedAt    time.Time            `json:"evaluated_at"`
	QueryID        string               `json:"query_id"`
}
