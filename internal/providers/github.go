package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

const githubDefaultBaseURL = "https://api.github.com"

// GitHubProvider scores developer accounts (id "owner") and repositories
// (id "owner/repo") in the github namespace.
type GitHubProvider struct {
	client  *Client
	baseURL string
	stats   callStats
}

// NewGitHub builds the provider. token may be empty (unauthenticated
// requests work with a lower rate limit); baseURL "" uses the public API.
func NewGitHub(token, baseURL string) *GitHubProvider {
	client := NewClient(0).WithHeader("Accept", "application/vnd.github+json")
	if token != "" {
		client = client.WithBearer(token)
	}
	if baseURL == "" {
		baseURL = githubDefaultBaseURL
	}
	return &GitHubProvider{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *GitHubProvider) Metadata() Metadata {
	return Metadata{
		Name:          "github",
		Version:       "1.0.0",
		Description:   "Developer reputation and repository health from the GitHub API",
		SubjectTypes:  []trust.SubjectType{trust.SubjectAgent, trust.SubjectSkill},
		Namespaces:    []string{"github"},
		SignalTypes:   []string{"author_reputation", "repo_health"},
		SoftRateLimit: 60,
	}
}

func (p *GitHubProvider) Supports(subject trust.Subject) bool {
	return subject.Namespace == "github"
}

func (p *GitHubProvider) Health(ctx context.Context) Health {
	return p.stats.health(map[string]string{"github_api": p.baseURL})
}

type githubUser struct {
	Login       string    `json:"login"`
	Followers   int       `json:"followers"`
	PublicRepos int       `json:"public_repos"`
	CreatedAt   time.Time `json:"created_at"`
}

type githubRepo struct {
	FullName        string    `json:"full_name"`
	StargazersCount int       `json:"stargazers_count"`
	ForksCount      int       `json:"forks_count"`
	OpenIssuesCount int       `json:"open_issues_count"`
	PushedAt        time.Time `json:"pushed_at"`
	License         *struct {
		Key string `json:"key"`
	} `json:"license"`
}

func (p *GitHubProvider) Evaluate(ctx context.Context, req Request) ([]trust.Signal, error) {
	start := time.Now()
	signals, err := p.evaluate(ctx, req.Subject)
	p.stats.record(time.Since(start), err)
	return signals, err
}

func (p *GitHubProvider) evaluate(ctx context.Context, subject trust.Subject) ([]trust.Signal, error) {
	owner, repo := splitRepoID(subject.ID)
	if owner == "" {
		return nil, nil
	}
	if repo == "" {
		return p.evaluateAuthor(ctx, subject, owner)
	}
	return p.evaluateRepo(ctx, subject, owner, repo)
}

func (p *GitHubProvider) evaluateAuthor(ctx context.Context, subject trust.Subject, owner string) ([]trust.Signal, error) {
	var user githubUser
	err := p.client.GetJSON(ctx, fmt.Sprintf("%s/users/%s", p.baseURL, owner), &user)
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return []trust.Signal{softErrorSignal("github", "author_reputation", subject, err)}, nil
	}

	ageYears := time.Since(user.CreatedAt).Hours() / (24 * 365)
	score := 0.40*capped(float64(user.Followers), 1000) +
		0.25*capped(float64(user.PublicRepos), 50) +
		0.35*capped(ageYears, 5)

	// Confidence grows with the number of populated dimensions; a bare
	// account stays at the single-observation ceiling.
	confidence := 0.4
	if user.Followers > 0 {
		confidence += 0.15
	}
	if user.PublicRepos > 0 {
		confidence += 0.15
	}
	if ageYears > 1 {
		confidence += 0.1
	}

	evidence := map[string]interface{}{
		"followers":        user.Followers,
		"public_repos":     user.PublicRepos,
		"account_age_days": int(time.Since(user.CreatedAt).Hours() / 24),
	}
	return []trust.Signal{newSignal("github", "author_reputation", subject, score, confidence, evidence, TTLOffChain)}, nil
}

func (p *GitHubProvider) evaluateRepo(ctx context.Context, subject trust.Subject, owner, repo string) ([]trust.Signal, error) {
	var r githubRepo
	err := p.client.GetJSON(ctx, fmt.Sprintf("%s/repos/%s/%s", p.baseURL, owner, repo), &r)
	if err != nil {
		if NotFound(err) {
			return nil, nil
		}
		return []trust.Signal{softErrorSignal("github", "repo_health", subject, err)}, nil
	}

	daysSincePush := time.Since(r.PushedAt).Hours() / 24
	recency := 0.0
	if daysSincePush < 90 {
		recency = (90 - daysSincePush) / 90
	}

	issueRatio := 0.0
	if r.StargazersCount > 0 {
		issueRatio = capped(float64(r.OpenIssuesCount)/float64(r.StargazersCount), 1)
	}

	licensed := 0.0
	if r.License != nil && r.License.Key != "" {
		licensed = 1
	}

	// Best-effort enrichment; a failure here degrades confidence, not the
	// whole signal.
	commits := p.countItems(ctx, fmt.Sprintf("%s/repos/%s/%s/commits?per_page=30", p.baseURL, owner, repo))
	contributors := p.countItems(ctx, fmt.Sprintf("%s/repos/%s/%s/contributors?per_page=20", p.baseURL, owner, repo))
	hasCI := p.hasWorkflows(ctx, owner, repo)

	ci := 0.0
	if hasCI {
		ci = 1
	}

	score := 0.20*capped(float64(r.StargazersCount), 500) +
		0.10*capped(float64(r.ForksCount), 100) +
		0.20*recency +
		0.10*(1-issueRatio) +
		0.05*licensed +
		0.05*ci +
		0.15*capped(float64(commits), 30) +
		0.15*capped(float64(contributors), 20)

	confidence := 0.5
	if commits >= 0 {
		confidence += 0.15
	}
	if contributors >= 0 {
		confidence += 0.15
	}

	evidence := map[string]interface{}{
		"stars":            r.StargazersCount,
		"forks":            r.ForksCount,
		"days_since_push":  int(daysSincePush),
		"open_issue_ratio": issueRatio,
		"has_license":      licensed == 1,
		"has_ci":           hasCI,
		"recent_commits":   commits,
		"contributors":     contributors,
	}
	return []trust.Signal{newSignal("github", "repo_health", subject, score, confidence, evidence, TTLOffChain)}, nil
}

// countItems returns the length of a JSON array endpoint, or -1 on error.
func (p *GitHubProvider) countItems(ctx context.Context, url string) int {
	var items []map[string]interface{}
	if err := p.client.GetJSON(ctx, url, &items); err != nil {
		return -1
	}
	return len(items)
}

func (p *GitHubProvider) hasWorkflows(ctx context.Context, owner, repo string) bool {
	var entries []map[string]interface{}
	url := fmt.Sprintf("%s/repos/%s/%s/contents/.github/workflows", p.baseURL, owner, repo)
	if err := p.client.GetJSON(ctx, url, &entries); err != nil {
		return false
	}
	return len(entries) > 0
}

// splitRepoID separates "owner" from "owner/repo". Extra path segments
// beyond the first slash belong to the repo name.
func splitRepoID(id string) (owner, repo string) {
	parts := strings.SplitN(id, "/", 2)
	owner = parts[0]
	if len(parts) == 2 {
		repo = parts[1]
	}
	return owner, repo
}
