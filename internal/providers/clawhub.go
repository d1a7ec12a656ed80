package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

// ClawHubProvider scores marketplace adoption for published skills and
// their authors. IDs use a "skill/" or "author/" prefix; a bare id is
// treated as an author handle.
type ClawHubProvider struct {
	client  *Client
	baseURL string
	stats   callStats
}

func NewClawHub(baseURL, apiKey string) *ClawHubProvider {
	client := NewClient(0)
	if apiKey != "" {
		client = client.WithBearer(apiKey)
	}
	return &ClawHubProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *ClawHubProvider) Metadata() Metadata {
	return Metadata{
		Name:          "clawhub",
		Version:       "1.0.0",
		Description:   "Skill adoption and author portfolio from the ClawHub marketplace",
		SubjectTypes:  []trust.SubjectType{trust.SubjectAgent, trust.SubjectSkill},
		Namespaces:    []string{"clawhub"},
		SignalTypes:   []string{"skill_adoption", "author_portfolio"},
		SoftRateLimit: 120,
	}
}

func (p *ClawHubProvider) Supports(subject trust.Subject) bool {
	return subject.Namespace == "clawhub"
}

func (p *ClawHubProvider) Health(ctx context.Context) Health {
	return p.stats.health(map[string]string{"clawhub_api": p.baseURL})
}

type clawhubSkill struct {
	Slug            string    `json:"slug"`
	Author          string    `json:"author"`
	InstallsCurrent int       `json:"installs_current"`
	InstallsTotal   int       `json:"installs_total"`
	Stars           int       `json:"stars"`
	Downloads       int       `json:"downloads"`
	Comments        int       `json:"comments"`
	VersionCount    int       `json:"version_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type clawhubAuthor struct {
	Name          string    `json:"name"`
	SkillCount    int       `json:"skill_count"`
	TotalInstalls int       `json:"total_installs"`
	TotalStars    int       `json:"total_stars"`
	TopSkill      *struct {
		Slug     string `json:"slug"`
		Installs int    `json:"installs"`
	} `json:"top_skill,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *ClawHubProvider) Evaluate(ctx context.Context, req Request) ([]trust.Signal, error) {
	start := time.Now()
	signals, err := p.evaluate(ctx, req.Subject)
	p.stats.record(time.Since(start), err)
	return signals, err
}

func (p *ClawHubProvider) evaluate(ctx context.Context, subject trust.Subject) ([]trust.Signal, error) {
	switch {
	case strings.HasPrefix(subject.ID, "skill/"):
		return p.evaluateSkill(ctx, subject, strings.TrimPrefix(subject.ID, "skill/"))
	case strings.HasPrefix(subject.ID, "author/"):
		return p.evaluateAuthor(ctx, subject, strings.TrimPrefix(subject.ID, "author/"))
	default:
		return p.evaluateAuthor(ctx, subject, subject.ID)
	}
}

func (p *ClawHubProvider) evaluateSkill(ctx context.Context, subject trust.Subject, slug string) ([]trust.Signal, error) {
	var skill clawhubSkill
	err := p.client.GetJSON(ctx, fmt.Sprintf("%s/api/v1/skills/%s", p.baseURL, slug), &skill)
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return []trust.Signal{softErrorSignal("clawhub", "skill_adoption", subject, err)}, nil
	}

	daysSinceUpdate := time.Since(skill.UpdatedAt).Hours() / 24
	recency := 0.0
	if daysSinceUpdate < 90 {
		recency = (90 - daysSinceUpdate) / 90
	}

	score := 0.30*capped(float64(skill.InstallsCurrent), 1000) +
		0.15*capped(float64(skill.InstallsTotal), 5000) +
		0.15*capped(float64(skill.Stars), 200) +
		0.10*capped(float64(skill.Downloads), 10000) +
		0.10*capped(float64(skill.Comments), 50) +
		0.10*capped(float64(skill.VersionCount), 20) +
		0.10*recency

	confidence := 0.4
	if skill.InstallsTotal > 10 {
		confidence += 0.2
	}
	if skill.Comments > 0 {
		confidence += 0.1
	}
	if skill.VersionCount > 1 {
		confidence += 0.1
	}

	evidence := map[string]interface{}{
		"installs_current":  skill.InstallsCurrent,
		"installs_total":    skill.InstallsTotal,
		"stars":             skill.Stars,
		"downloads":         skill.Downloads,
		"comments":          skill.Comments,
		"version_count":     skill.VersionCount,
		"days_since_update": int(daysSinceUpdate),
	}
	return []trust.Signal{newSignal("clawhub", "skill_adoption", subject, score, confidence, evidence, TTLOffChain)}, nil
}

func (p *ClawHubProvider) evaluateAuthor(ctx context.Context, subject trust.Subject, name string) ([]trust.Signal, error) {
	var author clawhubAuthor
	err := p.client.GetJSON(ctx, fmt.Sprintf("%s/api/v1/authors/%s", p.baseURL, name), &author)
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return []trust.Signal{softErrorSignal("clawhub", "author_portfolio", subject, err)}, nil
	}

	// Breakout: a single runaway skill counts for the author even when the
	// rest of the portfolio is thin.
	breakout := 0.0
	topInstalls := 0
	if author.TopSkill != nil {
		topInstalls = author.TopSkill.Installs
		breakout = capped(float64(topInstalls), 1000)
	}

	score := 0.30*capped(float64(author.SkillCount), 10) +
		0.40*capped(float64(author.TotalInstalls), 5000) +
		0.30*breakout

	confidence := 0.4
	if author.SkillCount > 1 {
		confidence += 0.15
	}
	if author.TotalInstalls > 50 {
		confidence += 0.2
	}

	evidence := map[string]interface{}{
		"skill_count":        author.SkillCount,
		"total_installs":     author.TotalInstalls,
		"total_stars":        author.TotalStars,
		"top_skill_installs": topInstalls,
	}
	return []trust.Signal{newSignal("clawhub", "author_portfolio", subject, score, confidence, evidence, TTLOffChain)}, nil
}
