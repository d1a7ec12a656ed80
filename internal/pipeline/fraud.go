package pipeline

import (
	"fmt"

	"github.com/clawtrust/engine/internal/trust"
)

// Thresholds for the low-trust-high-confidence heuristic: a provider that
// is confident a subject is bad deserves a flag even when fusion with
// other signals softens the aggregate.
const (
	lowTrustScoreCeiling    = 0.1
	lowTrustConfidenceFloor = 0.7
)

// scanFraud runs the heuristics over the collected signals. An empty set
// is itself a red flag; otherwise each confidently-bad signal is surfaced
// individually with its provider and evidence.
func scanFraud(signals []trust.Signal) []trust.FraudSignal {
	if len(signals) == 0 {
		return []trust.FraudSignal{{
			Kind:     trust.FraudNoSignals,
			Severity: trust.SeverityHigh,
			Detail:   "no provider produced a signal for this subject",
		}}
	}

	var out []trust.FraudSignal
	for _, sig := range signals {
		if sig.Score < lowTrustScoreCeiling && sig.Confidence > lowTrustConfidenceFloor {
			out = append(out, trust.FraudSignal{
				Kind:     trust.FraudLowTrustSignal,
				Severity: trust.SeverityMedium,
				Provider: sig.Provider,
				Detail:   fmt.Sprintf("%s reported score %.2f with confidence %.2f", sig.Provider, sig.Score, sig.Confidence),
				Evidence: sig.Evidence,
			})
		}
	}
	return out
}
