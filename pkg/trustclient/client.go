// Package trustclient is a thin typed client for the trust engine's REST
// surface, for agents and installers embedding a go/no-go check. It is
// dependency-free and mirrors the engine's stable JSON contract.
package trustclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Subject identifies the thing to evaluate.
type Subject struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace"`
	ID        string `json:"id"`
}

// Result is the engine's verdict. TrustScore is 0-100; Confidence 0-1.
type Result struct {
	SubjectKey     string    `json:"subject_key"`
	TrustScore     float64   `json:"trust_score"`
	Confidence     float64   `json:"confidence"`
	RiskLevel      string    `json:"risk_level"`
	Recommendation string    `json:"recommendation"`
	EntityType     string    `json:"entity_type"`
	Label          string    `json:"label"`
	EvaluatedAt    time.Time `json:"evaluated_at"`
	QueryID        string    `json:"query_id"`
}

// Config holds the client configuration.
type Config struct {
	EngineURL string
	Timeout   time.Duration
}

// Client talks to a running trust engine.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client. An empty EngineURL targets a local engine.
func New(cfg Config) *Client {
	if cfg.EngineURL == "" {
		cfg.EngineURL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

// Evaluate asks the engine for a trust verdict on the subject. action may
// be empty; "transact" and "delegate" escalate the risk bucket.
func (c *Client) Evaluate(ctx context.Context, subject Subject, action string) (*Result, error) {
	payload := map[string]interface{}{"subject": subject}
	if action != "" {
		payload["context"] = map[string]string{"action": action}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EngineURL+"/api/v1/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return nil, fmt.Errorf("engine returned %d: %s", resp.StatusCode, apiErr.Error)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Allowed is the one-line gate: evaluate and report whether the verdict
// permits the action.
func (c *Client) Allowed(ctx context.Context, subject Subject, action string) (bool, *Result, error) {
	result, err := c.Evaluate(ctx, subject, action)
	if err != nil {
		return false, nil, err
	}
	ok := result.Recommendation == "allow" || result.Recommendation == "install"
	return ok, result, nil
}
