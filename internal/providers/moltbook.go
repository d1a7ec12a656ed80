package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

// MoltbookProvider scores community reputation for moltbook handles.
// Without an API key the provider is a graceful no-op.
type MoltbookProvider struct {
	client  *Client
	baseURL string
	enabled bool
	stats   callStats
}

func NewMoltbook(baseURL, apiKey string) *MoltbookProvider {
	return &MoltbookProvider{
		client:  NewClient(0).WithBearer(apiKey),
		baseURL: strings.TrimRight(baseURL, "/"),
		enabled: apiKey != "",
	}
}

func (p *MoltbookProvider) Metadata() Metadata {
	return Metadata{
		Name:          "moltbook",
		Version:       "1.0.0",
		Description:   "Community reputation from the Moltbook API",
		SubjectTypes:  []trust.SubjectType{trust.SubjectAgent},
		Namespaces:    []string{"moltbook"},
		SignalTypes:   []string{"community_reputation"},
		SoftRateLimit: 120,
	}
}

func (p *MoltbookProvider) Supports(subject trust.Subject) bool {
	return subject.Namespace == "moltbook"
}

func (p *MoltbookProvider) Health(ctx context.Context) Health {
	deps := map[string]string{"moltbook_api": p.baseURL}
	if !p.enabled {
		deps["credentials"] = "missing"
	}
	return p.stats.health(deps)
}

type moltbookUser struct {
	Name      string    `json:"name"`
	Karma     int       `json:"karma"`
	Followers int       `json:"followers"`
	Claimed   bool      `json:"claimed"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *MoltbookProvider) Evaluate(ctx context.Context, req Request) ([]trust.Signal, error) {
	if !p.enabled {
		return nil, nil
	}

	start := time.Now()
	var user moltbookUser
	err := p.client.GetJSON(ctx, fmt.Sprintf("%s/api/v1/users/%s", p.baseURL, req.Subject.ID), &user)
	p.stats.record(time.Since(start), err)
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return []trust.Signal{softErrorSignal("moltbook", "community_reputation", req.Subject, err)}, nil
	}

	claimed := 0.0
	if user.Claimed {
		claimed = 1
	}
	active := 0.0
	if user.Active {
		active = 1
	}
	ageYears := time.Since(user.CreatedAt).Hours() / (24 * 365)

	score := 0.35*capped(float64(user.Karma), 5000) +
		0.25*capped(float64(user.Followers), 1000) +
		0.15*claimed +
		0.10*active +
		0.15*capped(ageYears, 2)

	confidence := 0.4
	if user.Karma > 0 {
		confidence += 0.15
	}
	if user.Claimed {
		confidence += 0.15
	}
	if ageYears > 0.5 {
		confidence += 0.1
	}

	evidence := map[string]interface{}{
		"karma":            user.Karma,
		"followers":        user.Followers,
		"claimed":          user.Claimed,
		"active":           user.Active,
		"account_age_days": int(time.Since(user.CreatedAt).Hours() / 24),
	}
	return []trust.Signal{newSignal("moltbook", "community_reputation", req.Subject, score, confidence, evidence, TTLOffChain)}, nil
}
