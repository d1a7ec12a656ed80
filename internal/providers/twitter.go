package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

const twitterDefaultBaseURL = "https://api.twitter.com"

// TwitterProvider scores social presence for handles in the twitter
// namespace. Without a bearer token the provider is a graceful no-op.
type TwitterProvider struct {
	client  *Client
	baseURL string
	enabled bool
	stats   callStats
}

func NewTwitter(bearerToken, baseURL string) *TwitterProvider {
	if baseURL == "" {
		baseURL = twitterDefaultBaseURL
	}
	return &TwitterProvider{
		client:  NewClient(0).WithBearer(bearerToken),
		baseURL: strings.TrimRight(baseURL, "/"),
		enabled: bearerToken != "",
	}
}

func (p *TwitterProvider) Metadata() Metadata {
	return Metadata{
		Name:          "twitter",
		Version:       "1.0.0",
		Description:   "Social presence from the X/Twitter v2 API",
		SubjectTypes:  []trust.SubjectType{trust.SubjectAgent},
		Namespaces:    []string{"twitter"},
		SignalTypes:   []string{"social_presence"},
		SoftRateLimit: 300,
	}
}

func (p *TwitterProvider) Supports(subject trust.Subject) bool {
	return subject.Namespace == "twitter"
}

func (p *TwitterProvider) Health(ctx context.Context) Health {
	deps := map[string]string{"twitter_api": p.baseURL}
	if !p.enabled {
		deps["credentials"] = "missing"
	}
	return p.stats.health(deps)
}

type twitterUser struct {
	Data struct {
		ID            string    `json:"id"`
		Username      string    `json:"username"`
		CreatedAt     time.Time `json:"created_at"`
		Verified      bool      `json:"verified"`
		Description   string    `json:"description"`
		PublicMetrics struct {
			Followers int `json:"followers_count"`
			Tweets    int `json:"tweet_count"`
			Listed    int `json:"listed_count"`
		} `json:"public_metrics"`
	} `json:"data"`
}

func (p *TwitterProvider) Evaluate(ctx context.Context, req Request) ([]trust.Signal, error) {
	if !p.enabled {
		return nil, nil
	}

	start := time.Now()
	handle := strings.TrimPrefix(req.Subject.ID, "@")
	url := fmt.Sprintf("%s/2/users/by/username/%s?user.fields=created_at,public_metrics,verified,description", p.baseURL, handle)

	var user twitterUser
	err := p.client.GetJSON(ctx, url, &user)
	p.stats.record(time.Since(start), err)
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return []trust.Signal{softErrorSignal("twitter", "social_presence", req.Subject, err)}, nil
	}
	if user.Data.ID == "" {
		return nil, nil
	}

	m := user.Data.PublicMetrics
	ageYears := time.Since(user.Data.CreatedAt).Hours() / (24 * 365)

	verified := 0.0
	if user.Data.Verified {
		verified = 1
	}
	hasBio := 0.0
	if strings.TrimSpace(user.Data.Description) != "" {
		hasBio = 1
	}

	score := 0.25*capped(ageYears, 5) +
		0.30*capped(float64(m.Followers), 10000) +
		0.15*capped(float64(m.Tweets), 5000) +
		0.10*capped(float64(m.Listed), 100) +
		0.15*verified +
		0.05*hasBio

	confidence := 0.4
	if m.Followers > 0 {
		confidence += 0.15
	}
	if m.Tweets > 0 {
		confidence += 0.1
	}
	if ageYears > 1 {
		confidence += 0.1
	}

	evidence := map[string]interface{}{
		"followers":        m.Followers,
		"tweets":           m.Tweets,
		"listed":           m.Listed,
		"verified":         user.Data.Verified,
		"has_bio":          hasBio == 1,
		"account_age_days": int(time.Since(user.Data.CreatedAt).Hours() / 24),
	}
	return []trust.Signal{newSignal("twitter", "social_presence", req.Subject, score, confidence, evidence, TTLOffChain)}, nil
}
