package trust

import "time"

// VerificationMethod is how an identity link was proven.
type VerificationMethod string

const (
	MethodWalletSigned     VerificationMethod = "wallet_signed"
	MethodTextChallenge    VerificationMethod = "text_challenge"
	MethodRegistryDeclared VerificationMethod = "registry_declared"
	MethodManual           VerificationMethod = "manual"
)

// Confidence returns the fixed method-to-confidence mapping. Unrecognised
// methods get the registry-declared floor.
func (m VerificationMethod) Confidence() float64 {
	switch m {
	case MethodWalletSigned:
		return 0.95
	case MethodManual:
		return 0.90
	case MethodTextChallenge:
		return 0.80
	case MethodRegistryDeclared:
		return 0.70
	default:
		return 0.70
	}
}

// IdentityLink is a symmetric verified-equivalence edge between two
// (namespace, id) endpoints. A self-link A<->A marks A itself as verified.
type IdentityLink struct {
	A              Subject                `json:"a"`
	B              Subject                `json:"b"`
	Method         VerificationMethod     `json:"method"`
	Confidence     float64                `json:"confidence"`
	Evidence       map[string]interface{} `json:"evidence,omitempty"`
	VerifiedAt     time.Time              `json:"verified_at"`
	AttestationRef string                 `json:"attestation_ref,omitempty"`
}
