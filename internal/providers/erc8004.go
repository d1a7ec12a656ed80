package providers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

// registrationSelector is the 4-byte selector for registrationData(uint256)
// on the ERC-8004 identity registry.
const registrationSelector = "0x2e7cf307"

// serviceKinds are the endpoint categories counted by the
// service_diversity signal.
var serviceKinds = []string{"agent-protocol", "tool-protocol", "naming", "identifier", "web", "email"}

// Registration is the decoded on-chain registration document.
type Registration struct {
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	Active         *bool          `json:"active,omitempty"`
	Services       []AgentService `json:"services,omitempty"`
	SupportedTrust []string       `json:"supportedTrust,omitempty"`
}

// AgentService is one declared service endpoint.
type AgentService struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Version  string `json:"version,omitempty"`
}

// ERC8004Provider reads agent registrations from an on-chain identity
// registry over JSON-RPC. Subjects are addressed by their integer
// registration id.
type ERC8004Provider struct {
	client       *Client
	rpcURL       string
	registryAddr string
	stats        callStats
}

func NewERC8004(rpcURL, registryAddr string) *ERC8004Provider {
	return &ERC8004Provider{
		client:       NewClient(0),
		rpcURL:       rpcURL,
		registryAddr: registryAddr,
	}
}

func (p *ERC8004Provider) Metadata() Metadata {
	return Metadata{
		Name:          "erc8004",
		Version:       "1.0.0",
		Description:   "On-chain agent identity and service diversity from the ERC-8004 registry",
		SubjectTypes:  []trust.SubjectType{trust.SubjectAgent},
		Namespaces:    []string{"erc8004"},
		SignalTypes:   []string{"identity_on_chain", "service_diversity"},
		SoftRateLimit: 120,
	}
}

func (p *ERC8004Provider) Supports(subject trust.Subject) bool {
	return subject.Namespace == "erc8004"
}

func (p *ERC8004Provider) Health(ctx context.Context) Health {
	return p.stats.health(map[string]string{
		"rpc":      p.rpcURL,
		"registry": p.registryAddr,
	})
}

func (p *ERC8004Provider) Evaluate(ctx context.Context, req Request) ([]trust.Signal, error) {
	start := time.Now()
	reg, err := p.fetchRegistration(ctx, req.Subject.ID)
	p.stats.record(time.Since(start), err)
	if err != nil {
		return []trust.Signal{softErrorSignal("erc8004", "identity_on_chain", req.Subject, err)}, nil
	}
	if reg == nil {
		return nil, nil
	}

	return []trust.Signal{
		p.identitySignal(req.Subject, reg),
		p.diversitySignal(req.Subject, reg),
	}, nil
}

func (p *ERC8004Provider) identitySignal(subject trust.Subject, reg *Registration) trust.Signal {
	flags := 0
	if reg.Name != "" {
		flags++
	}
	if reg.Description != "" {
		flags++
	}
	active := reg.Active == nil || *reg.Active
	if active {
		flags++
	}
	if len(reg.Services) > 0 {
		flags++
	}
	if len(reg.SupportedTrust) > 0 {
		flags++
	}

	score := float64(flags) / 5
	confidence := 0.3 + 0.08*float64(flags)

	evidence := map[string]interface{}{
		"name":            reg.Name,
		"has_description": reg.Description != "",
		"active":          active,
		"service_count":   len(reg.Services),
		"supported_trust": reg.SupportedTrust,
	}
	return newSignal("erc8004", "identity_on_chain", subject, score, confidence, evidence, TTLOnChain)
}

func (p *ERC8004Provider) diversitySignal(subject trust.Subject, reg *Registration) trust.Signal {
	kinds := make(map[string]bool)
	for _, svc := range reg.Services {
		if kind := classifyService(svc); kind != "" {
			kinds[kind] = true
		}
	}

	score := float64(len(kinds)) / float64(len(serviceKinds))
	confidence := 0.3 + 0.1*float64(len(kinds))
	if confidence > 0.8 {
		confidence = 0.8
	}

	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	evidence := map[string]interface{}{
		"service_kinds": names,
		"service_count": len(reg.Services),
	}
	return newSignal("erc8004", "service_diversity", subject, score, confidence, evidence, TTLOnChain)
}

// classifyService maps a declared service to one of the diversity kinds.
func classifyService(svc AgentService) string {
	name := strings.ToLower(svc.Name)
	endpoint := strings.ToLower(svc.Endpoint)
	switch {
	case strings.Contains(name, "a2a") || strings.Contains(name, "agent"):
		return "agent-protocol"
	case strings.Contains(name, "mcp") || strings.Contains(name, "tool"):
		return "tool-protocol"
	case name == "ens" || strings.HasSuffix(endpoint, ".eth"):
		return "naming"
	case name == "did" || strings.HasPrefix(endpoint, "did:"):
		return "identifier"
	case name == "email" || strings.HasPrefix(endpoint, "mailto:") || strings.Contains(endpoint, "@"):
		return "email"
	case name == "web" || strings.HasPrefix(endpoint, "http"):
		return "web"
	default:
		return ""
	}
}

// LinkedIdentifiers extracts cross-namespace identities declared in the
// registration's services. The resolver materialises these as
// registry-declared links. Recognised service names: ens, did, github,
// twitter / x.
func (p *ERC8004Provider) LinkedIdentifiers(ctx context.Context, id string) ([]trust.Subject, error) {
	reg, err := p.fetchRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, nil
	}

	var out []trust.Subject
	for _, svc := range reg.Services {
		if sub, ok := serviceToSubject(svc); ok {
			out = append(out, sub)
		}
	}
	return out, nil
}

// serviceToSubject parses a service endpoint into a (namespace, id) pair.
// The parser is permissive about URL prefixes and idempotent: feeding an
// already-stripped value back in yields the same result.
func serviceToSubject(svc AgentService) (trust.Subject, bool) {
	endpoint := strings.TrimSpace(svc.Endpoint)
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimSuffix(endpoint, "/")
	if endpoint == "" {
		return trust.Subject{}, false
	}

	switch strings.ToLower(svc.Name) {
	case "ens":
		return trust.Subject{Type: trust.SubjectAgent, Namespace: "ens", ID: endpoint}, true
	case "did":
		return trust.Subject{Type: trust.SubjectAgent, Namespace: "did", ID: endpoint}, true
	case "github":
		endpoint = strings.TrimPrefix(endpoint, "github.com/")
		return trust.Subject{Type: trust.SubjectAgent, Namespace: "github", ID: endpoint}, true
	case "twitter", "x":
		endpoint = strings.TrimPrefix(endpoint, "twitter.com/")
		endpoint = strings.TrimPrefix(endpoint, "x.com/")
		endpoint = strings.TrimPrefix(endpoint, "@")
		return trust.Subject{Type: trust.SubjectAgent, Namespace: "twitter", ID: endpoint}, true
	default:
		return trust.Subject{}, false
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	ID      int           `json:"id"`
}

type rpcResponse struct {
	Result string `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// fetchRegistration eth_calls the registry and decodes the returned bytes
// as a JSON registration document. A missing registration (empty return
// data) is absence, not an error.
func (p *ERC8004Provider) fetchRegistration(ctx context.Context, id string) (*Registration, error) {
	agentID, ok := new(big.Int).SetString(strings.TrimSpace(id), 10)
	if !ok || agentID.Sign() < 0 {
		return nil, nil
	}

	data := registrationSelector + fmt.Sprintf("%064x", agentID)
	req := rpcRequest{
		JSONRPC: "2.0",
		Method:  "eth_call",
		Params: []interface{}{
			map[string]string{"to": p.registryAddr, "data": data},
			"latest",
		},
		ID: 1,
	}

	var resp rpcResponse
	if err := p.client.PostJSON(ctx, p.rpcURL, req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("eth_call failed: %s (code %d)", resp.Error.Message, resp.Error.Code)
	}

	blob, err := decodeABIBytes(resp.Result)
	if err != nil {
		return nil, fmt.Errorf("decode registration for id %s: %w", id, err)
	}
	if len(blob) == 0 {
		return nil, nil
	}

	var reg Registration
	if err := json.Unmarshal(blob, &reg); err != nil {
		return nil, fmt.Errorf("registration for id %s is not valid JSON: %w", id, err)
	}
	return &reg, nil
}

// decodeABIBytes unwraps a single ABI-encoded dynamic `bytes` return
// value: word 0 is the offset, the word at the offset is the length,
// followed by the payload.
func decodeABIBytes(result string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(result, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if len(raw) < 64 {
		return nil, fmt.Errorf("return data too short (%d bytes)", len(raw))
	}

	offset := new(big.Int).SetBytes(raw[:32])
	if !offset.IsInt64() || offset.Int64()+32 > int64(len(raw)) {
		return nil, fmt.Errorf("offset out of range")
	}
	o := offset.Int64()

	length := new(big.Int).SetBytes(raw[o : o+32])
	if !length.IsInt64() || o+32+length.Int64() > int64(len(raw)) {
		return nil, fmt.Errorf("length out of range")
	}
	return raw[o+32 : o+32+length.Int64()], nil
}
