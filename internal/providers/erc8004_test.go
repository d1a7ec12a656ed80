package providers

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrust/engine/internal/trust"
)

// abiEncodeBytes wraps a payload as a single ABI dynamic `bytes` return
// value: offset word, length word, right-padded payload.
func abiEncodeBytes(payload []byte) string {
	padded := len(payload)
	if rem := padded % 32; rem != 0 {
		padded += 32 - rem
	}
	buf := make([]byte, 64+padded)
	buf[31] = 0x20
	lengthWord, _ := hex.DecodeString(fmt.Sprintf("%064x", len(payload)))
	copy(buf[32:64], lengthWord)
	copy(buf[64:], payload)
	return "0x" + hex.EncodeToString(buf)
}

func erc8004TestServer(t *testing.T, registrations map[string]Registration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "eth_call", req.Method)

		call := req.Params[0].(map[string]interface{})
		data := call["data"].(string)
		require.True(t, strings.HasPrefix(data, registrationSelector))

		// The argument word is the zero-padded agent id.
		id := strings.TrimLeft(strings.TrimPrefix(data, registrationSelector), "0")
		reg, ok := registrations[id]
		if !ok {
			json.NewEncoder(w).Encode(map[string]string{"jsonrpc": "2.0", "result": "0x"})
			return
		}
		blob, err := json.Marshal(reg)
		require.NoError(t, err)
		json.NewEncoder(w).Encode(map[string]string{"jsonrpc": "2.0", "result": abiEncodeBytes(blob)})
	}))
}

func TestDecodeABIBytes(t *testing.T) {
	payload := []byte(`{"name":"crab"}`)
	decoded, err := decodeABIBytes(abiEncodeBytes(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, decoded)

	// Empty return data is absence.
	decoded, err = decodeABIBytes("0x")
	require.NoError(t, err)
	assert.Empty(t, decoded)

	_, err = decodeABIBytes("0xzz")
	assert.Error(t, err)

	_, err = decodeABIBytes("0x"+strings.Repeat("00", 40))
	assert.Error(t, err, "truncated return data")
}

func TestERC8004Evaluate(t *testing.T) {
	active := true
	srv := erc8004TestServer(t, map[string]Registration{
		// hex 2a == decimal 42
		"2a": {
			Name:        "crab-agent",
			Description: "an agent",
			Active:      &active,
			Services: []AgentService{
				{Name: "A2A", Endpoint: "https://agent.example.com/a2a"},
				{Name: "MCP", Endpoint: "https://agent.example.com/mcp"},
				{Name: "ens", Endpoint: "crab.eth"},
			},
			SupportedTrust: []string{"reputation"},
		},
	})
	defer srv.Close()

	p := NewERC8004(srv.URL, "0x8004c0ffee0000000000000000000000000000aa")
	subject := trust.Subject{Type: trust.SubjectAgent, Namespace: "erc8004", ID: "42"}

	signals, err := p.Evaluate(context.Background(), Request{Subject: subject})
	require.NoError(t, err)
	require.Len(t, signals, 2)

	identity := signals[0]
	assert.Equal(t, "identity_on_chain", identity.Type)
	// All five completeness flags set.
	assert.InDelta(t, 1.0, identity.Score, 1e-9)
	assert.InDelta(t, 0.7, identity.Confidence, 1e-9)
	assert.Equal(t, TTLOnChain, identity.TTLSeconds)

	diversity := signals[1]
	assert.Equal(t, "service_diversity", diversity.Type)
	// agent-protocol, tool-protocol, naming out of six kinds.
	assert.InDelta(t, 0.5, diversity.Score, 1e-9)
	assert.InDelta(t, 0.6, diversity.Confidence, 1e-9)
}

func TestERC8004MissingRegistrationIsAbsence(t *testing.T) {
	srv := erc8004TestServer(t, nil)
	defer srv.Close()
	p := NewERC8004(srv.URL, "0x8004c0ffee0000000000000000000000000000aa")

	signals, err := p.Evaluate(context.Background(), Request{
		Subject: trust.Subject{Namespace: "erc8004", ID: "999"},
	})
	require.NoError(t, err)
	assert.Empty(t, signals)

	// Non-numeric ids are skipped without an RPC round trip.
	signals, err = p.Evaluate(context.Background(), Request{
		Subject: trust.Subject{Namespace: "erc8004", ID: "not-a-number"},
	})
	require.NoError(t, err)
	assert.Empty(t, signals)
}

func TestERC8004RPCErrorBecomesSoftSignal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"error":   map[string]interface{}{"code": -32000, "message": "execution reverted"},
		})
	}))
	defer srv.Close()
	p := NewERC8004(srv.URL, "0x8004c0ffee0000000000000000000000000000aa")

	signals, err := p.Evaluate(context.Background(), Request{
		Subject: trust.Subject{Namespace: "erc8004", ID: "42"},
	})
	require.NoError(t, err)
	require.Len(t, signals, 1)
	assert.Zero(t, signals[0].Score)
	assert.Contains(t, signals[0].Evidence, "error")
}

func TestERC8004LinkedIdentifiers(t *testing.T) {
	srv := erc8004TestServer(t, map[string]Registration{
		"7": {
			Name: "linked-agent",
			Services: []AgentService{
				{Name: "github", Endpoint: "https://github.com/octo-dev"},
				{Name: "x", Endpoint: "https://x.com/@octo"},
				{Name: "ens", Endpoint: "octo.eth"},
				{Name: "web", Endpoint: "https://octo.example.com"},
			},
		},
	})
	defer srv.Close()
	p := NewERC8004(srv.URL, "0x8004c0ffee0000000000000000000000000000aa")

	linked, err := p.LinkedIdentifiers(context.Background(), "7")
	require.NoError(t, err)
	require.Len(t, linked, 3, "web services are not identity links")
	assert.Equal(t, "github:octo-dev", linked[0].Key())
	assert.Equal(t, "twitter:octo", linked[1].Key())
	assert.Equal(t, "ens:octo.eth", linked[2].Key())
}

func TestServiceToSubjectIsIdempotent(t *testing.T) {
	cases := []struct {
		svc  AgentService
		want string
	}{
		{AgentService{Name: "github", Endpoint: "https://github.com/octocat"}, "github:octocat"},
		{AgentService{Name: "github", Endpoint: "octocat"}, "github:octocat"},
		{AgentService{Name: "twitter", Endpoint: "https://twitter.com/@crab"}, "twitter:crab"},
		{AgentService{Name: "x", Endpoint: "x.com/crab"}, "twitter:crab"},
		{AgentService{Name: "ens", Endpoint: "crab.eth"}, "ens:crab.eth"},
		{AgentService{Name: "did", Endpoint: "did:web:example.com"}, "did:did:web:example.com"},
	}
	for _, tc := range cases {
		first, ok := serviceToSubject(tc.svc)
		require.True(t, ok, tc.svc.Endpoint)
		assert.Equal(t, tc.want, first.Key())

		// Feeding the stripped id back in yields the same subject.
		again, ok := serviceToSubject(AgentService{Name: tc.svc.Name, Endpoint: first.ID})
		require.True(t, ok)
		assert.Equal(t, first, again)
	}

	_, ok := serviceToSubject(AgentService{Name: "web", Endpoint: "https://example.com"})
	assert.False(t, ok)
	_, ok = serviceToSubject(AgentService{Name: "github", Endpoint: ""})
	assert.False(t, ok)
}
