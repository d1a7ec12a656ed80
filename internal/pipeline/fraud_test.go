package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrust/engine/internal/trust"
)

func TestScanFraudEmptySet(t *testing.T) {
	flags := scanFraud(nil)
	require.Len(t, flags, 1)
	assert.Equal(t, trust.FraudNoSignals, flags[0].Kind)
	assert.Equal(t, trust.SeverityHigh, flags[0].Severity)
}

func TestScanFraudLowTrustBoundaries(t *testing.T) {
	cases := []struct {
		score, confidence float64
		flagged           bool
	}{
		{0.05, 0.9, true},
		{0.0, 1.0, true},
		{0.1, 0.9, false},  // score at the ceiling is not "below"
		{0.05, 0.7, false}, // confidence at the floor is not "above"
		{0.5, 0.9, false},
	}
	for _, tc := range cases {
		flags := scanFraud([]trust.Signal{{
			Provider: "prov", Score: tc.score, Confidence: tc.confidence,
			Evidence: map[string]interface{}{"reason": "blocklisted"},
		}})
		if tc.flagged {
			require.Len(t, flags, 1, "score=%.2f conf=%.2f", tc.score, tc.confidence)
			assert.Equal(t, trust.FraudLowTrustSignal, flags[0].Kind)
			assert.Equal(t, trust.SeverityMedium, flags[0].Severity)
			assert.Equal(t, "prov", flags[0].Provider)
			assert.Equal(t, "blocklisted", flags[0].Evidence["reason"])
		} else {
			assert.Empty(t, flags, "score=%.2f conf=%.2f", tc.score, tc.confidence)
		}
	}
}
