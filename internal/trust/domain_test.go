package trust

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectKey(t *testing.T) {
	s := Subject{Type: SubjectAgent, Namespace: "github", ID: "octocat/hello-world"}
	assert.Equal(t, "github:octocat/hello-world", s.Key())
	assert.Equal(t, "github:octocat/hello-world(agent)", s.String())

	// Keys are case-preserving.
	assert.NotEqual(t, Subject{Namespace: "github", ID: "OctoCat"}.Key(),
		Subject{Namespace: "github", ID: "octocat"}.Key())
}

func TestVerificationMethodConfidence(t *testing.T) {
	cases := []struct {
		method VerificationMethod
		want   float64
	}{
		{MethodWalletSigned, 0.95},
		{MethodManual, 0.90},
		{MethodTextChallenge, 0.80},
		{MethodRegistryDeclared, 0.70},
		{VerificationMethod("something_else"), 0.70},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, tc.method.Confidence(), 1e-9, string(tc.method))
	}
}
