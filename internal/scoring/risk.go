package scoring

import (
	"strings"

	"github.com/clawtrust/engine/internal/trust"
)

// evTrustLambda is the disagreement penalty coefficient: the midpoint of
// the [0.1, 0.2] stable-honest-equilibrium band.
const evTrustLambda = 0.15

// evTrustRangeGate is the minimum score spread before the penalty applies.
const evTrustRangeGate = 0.4

// AdjustForStability applies the evolutionary-stability penalty: when two
// or more signals disagree widely (score range above the gate), the
// projected score is scaled down by (1 - lambda*range). The adjustment
// never increases a score.
func AdjustForStability(projected float64, signals []trust.Signal) float64 {
	if len(signals) < 2 {
		return clamp01(projected)
	}

	lo, hi := 1.0, 0.0
	for _, sig := range signals {
		s := clamp01(sig.Score)
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}

	r := hi - lo
	if r <= evTrustRangeGate {
		return clamp01(projected)
	}
	return clamp01(projected * (1 - evTrustLambda*r))
}

// RiskBucket maps an adjusted [0,1] score to a risk level.
func RiskBucket(score float64) trust.RiskLevel {
	switch {
	case score >= 0.8:
		return trust.RiskMinimal
	case score >= 0.6:
		return trust.RiskLow
	case score >= 0.4:
		return trust.RiskMedium
	case score >= 0.2:
		return trust.RiskHigh
	default:
		return trust.RiskCritical
	}
}

// ApplyContext escalates the bucket one step toward critical for
// high-stakes actions (transact, delegate). Other actions are a no-op.
func ApplyContext(level trust.RiskLevel, ctx trust.Context) trust.RiskLevel {
	if ctx.Action != trust.ActionTransact && ctx.Action != trust.ActionDelegate {
		return level
	}
	switch level {
	case trust.RiskMinimal:
		return trust.RiskLow
	case trust.RiskLow:
		return trust.RiskMedium
	case trust.RiskMedium:
		return trust.RiskHigh
	case trust.RiskHigh:
		return trust.RiskCritical
	default:
		return trust.RiskCritical
	}
}

// Recommend is deterministic from (bucket, adjusted score). The low bucket
// distinguishes install (score >= 0.7) from plain allow.
func Recommend(level trust.RiskLevel, score float64) trust.Recommendation {
	switch level {
	case trust.RiskMinimal:
		return trust.RecommendAllow
	case trust.RiskLow:
		if score >= 0.7 {
			return trust.RecommendInstall
		}
		return trust.RecommendAllow
	case trust.RiskMedium:
		return trust.RecommendReview
	case trust.RiskHigh:
		return trust.RecommendCaution
	default:
		return trust.RecommendDeny
	}
}

// DetectEntityType derives the entity kind from the subject's namespace
// and id shape.
func DetectEntityType(subject trust.Subject) trust.EntityType {
	switch subject.Namespace {
	case "erc8004", "twitter", "moltbook", "wallet", "ens", "did", "email":
		return trust.EntityAgent
	case "github":
		if strings.Contains(subject.ID, "/") {
			return trust.EntityRepo
		}
		return trust.EntityDeveloper
	case "clawhub":
		if strings.HasPrefix(subject.ID, "skill/") || strings.Contains(subject.ID, "/") {
			return trust.EntitySkill
		}
		return trust.EntityDeveloper
	default:
		return trust.EntityUnknown
	}
}

var entityNouns = map[trust.EntityType]string{
	trust.EntityAgent:     "agent",
	trust.EntityRepo:      "repository",
	trust.EntitySkill:     "skill",
	trust.EntityDeveloper: "developer",
	trust.EntityUnknown:   "subject",
}

var labelPhrases = map[trust.Recommendation]string{
	trust.RecommendAllow:   "✅ Trusted %s, safe to proceed",
	trust.RecommendInstall: "👍 Reputable %s, okay to install",
	trust.RecommendReview:  "🔍 Unproven %s, review before use",
	trust.RecommendCaution: "⚠️ Risky %s, proceed with caution",
	trust.RecommendDeny:    "⛔ Untrusted %s, do not proceed",
}

// Label produces the human-facing phrase for a (entity, recommendation)
// pair. Presentation only; carries no semantics.
func Label(entity trust.EntityType, rec trust.Recommendation) string {
	noun, ok := entityNouns[entity]
	if !ok {
		noun = "subject"
	}
	phrase, ok := labelPhrases[rec]
	if !ok {
		phrase = "🔍 Unproven %s, review before use"
	}
	return strings.Replace(phrase, "%s", noun, 1)
}
