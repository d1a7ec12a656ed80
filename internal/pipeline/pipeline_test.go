package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawtrust/engine/internal/cache"
	"github.com/clawtrust/engine/internal/graph"
	"github.com/clawtrust/engine/internal/providers"
	"github.com/clawtrust/engine/internal/trust"
)

// stubProvider is a scriptable provider: fixed signals or an error, with
// an optional delay, and an invocation counter for coalescing assertions.
type stubProvider struct {
	name       string
	namespaces []string
	signals    []trust.Signal
	err        error
	delay      time.Duration

	calls int32
	mu    sync.Mutex
	seen  []string
}

func (s *stubProvider) Metadata() providers.Metadata {
	return providers.Metadata{Name: s.name, Version: "test", Namespaces: s.namespaces}
}

func (s *stubProvider) Supports(subject trust.Subject) bool {
	for _, ns := range s.namespaces {
		if ns == subject.Namespace {
			return true
		}
	}
	return false
}

func (s *stubProvider) Evaluate(ctx context.Context, req providers.Request) ([]trust.Signal, error) {
	atomic.AddInt32(&s.calls, 1)
	s.mu.Lock()
	s.seen = append(s.seen, req.Subject.Key())
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}

	out := make([]trust.Signal, len(s.signals))
	for i, sig := range s.signals {
		sig.Provider = s.name
		sig.Subject = req.Subject.Key()
		sig.ProducedAt = time.Now()
		out[i] = sig
	}
	return out, nil
}

func (s *stubProvider) Health(ctx context.Context) providers.Health {
	return providers.Health{Status: providers.StatusHealthy, LastCheck: time.Now()}
}

func (s *stubProvider) callCount() int {
	return int(atomic.LoadInt32(&s.calls))
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Cache == nil {
		mem := cache.NewMemory(time.Hour)
		t.Cleanup(mem.Close)
		opts.Cache = mem
	}
	return New(opts)
}

func githubSubject(id string) trust.Subject {
	return trust.Subject{Type: trust.SubjectAgent, Namespace: "github", ID: id}
}

func TestEvaluateRejectsInvalidSubject(t *testing.T) {
	p := newTestPipeline(t, Options{Providers: []providers.Provider{
		&stubProvider{name: "stub", namespaces: []string{"github"}},
	}})

	_, err := p.Evaluate(context.Background(), trust.Subject{Namespace: "github"}, trust.Context{})
	assert.ErrorIs(t, err, ErrInvalidSubject)

	_, err = p.Evaluate(context.Background(), trust.Subject{ID: "octocat"}, trust.Context{})
	assert.ErrorIs(t, err, ErrInvalidSubject)
}

func TestEvaluateSingleStrongSignal(t *testing.T) {
	stub := &stubProvider{
		name:       "stub",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "account_reputation", Score: 0.9, Confidence: 0.9}},
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}})

	result, err := p.Evaluate(context.Background(), githubSubject("octocat"), trust.Context{})
	require.NoError(t, err)

	assert.Equal(t, "github:octocat", result.SubjectKey)
	assert.InDelta(t, 86.00, result.TrustScore, 1e-9)
	assert.InDelta(t, 0.9, result.Confidence, 1e-9)
	assert.Equal(t, trust.RiskMinimal, result.RiskLevel)
	assert.Equal(t, trust.RecommendAllow, result.Recommendation)
	assert.Equal(t, trust.EntityDeveloper, result.EntityType)
	assert.Len(t, result.Signals, 1)
	assert.Empty(t, result.FraudSignals)
	assert.Empty(t, result.Unresolved)
	assert.NotEmpty(t, result.QueryID)
	assert.False(t, result.EvaluatedAt.IsZero())
}

func TestEvaluateNoSignalsIsNeutral(t *testing.T) {
	// A provider that supports the namespace but finds nothing: vacuous
	// verdict, zero confidence, flagged.
	stub := &stubProvider{name: "stub", namespaces: []string{"github"}}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}})

	result, err := p.Evaluate(context.Background(), githubSubject("ghost"), trust.Context{})
	require.NoError(t, err)

	assert.InDelta(t, 50.00, result.TrustScore, 1e-9)
	assert.InDelta(t, 0.0, result.Confidence, 1e-9)
	assert.Equal(t, trust.RiskMedium, result.RiskLevel)
	assert.Equal(t, trust.RecommendReview, result.Recommendation)
	require.Len(t, result.FraudSignals, 1)
	assert.Equal(t, trust.FraudNoSignals, result.FraudSignals[0].Kind)
	assert.Equal(t, trust.SeverityHigh, result.FraudSignals[0].Severity)
}

func TestEvaluateDogmaticDisagreement(t *testing.T) {
	believer := &stubProvider{
		name:       "believer",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "endorsement", Score: 1, Confidence: 1}},
	}
	skeptic := &stubProvider{
		name:       "skeptic",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "blocklist", Score: 0, Confidence: 1}},
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{believer, skeptic}})

	result, err := p.Evaluate(context.Background(), githubSubject("contested"), trust.Context{})
	require.NoError(t, err)

	// Dogmatic conflict averages to 0.5, then the disagreement penalty
	// scales by (1 - 0.15*1.0).
	assert.InDelta(t, 42.50, result.TrustScore, 1e-9)
	assert.InDelta(t, 1.0, result.Confidence, 1e-9)
	assert.Equal(t, trust.RiskMedium, result.RiskLevel)
	assert.Equal(t, trust.RecommendReview, result.Recommendation)
}

func TestEvaluateFlagsConfidentZeroScore(t *testing.T) {
	stub := &stubProvider{
		name:       "stub",
		namespaces: []string{"github"},
		signals: []trust.Signal{
			{Type: "blocklist", Score: 0.05, Confidence: 0.9},
			{Type: "activity", Score: 0.2, Confidence: 0.4},
		},
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}})

	result, err := p.Evaluate(context.Background(), githubSubject("shady"), trust.Context{})
	require.NoError(t, err)

	require.Len(t, result.FraudSignals, 1)
	flag := result.FraudSignals[0]
	assert.Equal(t, trust.FraudLowTrustSignal, flag.Kind)
	assert.Equal(t, trust.SeverityMedium, flag.Severity)
	assert.Equal(t, "stub", flag.Provider)

	// Strongly negative evidence lands at least in the high-risk band.
	assert.Contains(t, []trust.RiskLevel{trust.RiskHigh, trust.RiskCritical}, result.RiskLevel)
}

func TestEvaluateNoProvidersDenies(t *testing.T) {
	mem := cache.NewMemory(time.Hour)
	t.Cleanup(mem.Close)
	stub := &stubProvider{name: "stub", namespaces: []string{"github"}}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}, Cache: mem})

	subject := trust.Subject{Type: trust.SubjectAgent, Namespace: "gitlab", ID: "whoever"}
	result, err := p.Evaluate(context.Background(), subject, trust.Context{})
	require.NoError(t, err)

	assert.Zero(t, result.TrustScore)
	assert.Zero(t, result.Confidence)
	assert.Equal(t, trust.RiskCritical, result.RiskLevel)
	assert.Equal(t, trust.RecommendDeny, result.Recommendation)
	require.Len(t, result.FraudSignals, 1)
	assert.Equal(t, trust.FraudNoProviders, result.FraudSignals[0].Kind)
	assert.Zero(t, stub.callCount())

	// The synthetic verdict is not cached: a provider registered later
	// must take effect on the next query.
	assert.Zero(t, mem.Size(context.Background()))
}

func TestEvaluateContextEscalation(t *testing.T) {
	stub := &stubProvider{
		name:       "stub",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "account_reputation", Score: 0.9, Confidence: 0.9}},
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}})

	result, err := p.Evaluate(context.Background(), githubSubject("octocat"),
		trust.Context{Action: trust.ActionTransact})
	require.NoError(t, err)

	// Same 86.00 score, but transact demotes minimal to low; 0.86 >= 0.7
	// in the low bucket recommends install.
	assert.InDelta(t, 86.00, result.TrustScore, 1e-9)
	assert.Equal(t, trust.RiskLow, result.RiskLevel)
	assert.Equal(t, trust.RecommendInstall, result.Recommendation)
}

func TestEvaluateCachesResult(t *testing.T) {
	stub := &stubProvider{
		name:       "stub",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "account_reputation", Score: 0.9, Confidence: 0.9}},
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}})
	ctx := context.Background()

	first, err := p.Evaluate(ctx, githubSubject("octocat"), trust.Context{})
	require.NoError(t, err)
	second, err := p.Evaluate(ctx, githubSubject("octocat"), trust.Context{})
	require.NoError(t, err)

	assert.Equal(t, first.QueryID, second.QueryID, "cache hit returns the stored result")
	assert.Equal(t, 1, stub.callCount())

	// Invalidation forces a recomputation.
	p.Invalidate(ctx, "github:octocat")
	third, err := p.Evaluate(ctx, githubSubject("octocat"), trust.Context{})
	require.NoError(t, err)
	assert.NotEqual(t, first.QueryID, third.QueryID)
	assert.Equal(t, 2, stub.callCount())
}

func TestEvaluateCoalescesConcurrentQueries(t *testing.T) {
	stub := &stubProvider{
		name:       "slow",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "account_reputation", Score: 0.9, Confidence: 0.9}},
		delay:      100 * time.Millisecond,
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}})

	const callers = 8
	results := make([]*trust.TrustResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = p.Evaluate(context.Background(), githubSubject("octocat"), trust.Context{})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, stub.callCount(), "identical concurrent queries perform exactly one upstream evaluation")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].QueryID, results[i].QueryID)
	}
}

func TestEvaluateProviderFailureIsLocal(t *testing.T) {
	healthy := &stubProvider{
		name:       "healthy",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "account_reputation", Score: 0.9, Confidence: 0.9}},
	}
	broken := &stubProvider{
		name:       "broken",
		namespaces: []string{"github"},
		err:        errors.New("upstream 503"),
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{healthy, broken}})

	result, err := p.Evaluate(context.Background(), githubSubject("octocat"), trust.Context{})
	require.NoError(t, err)

	assert.Len(t, result.Signals, 1)
	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, "broken", result.Unresolved[0].Provider)
	assert.Contains(t, result.Unresolved[0].Reason, "upstream 503")
	assert.InDelta(t, 86.00, result.TrustScore, 1e-9)
}

func TestEvaluateProviderTimeout(t *testing.T) {
	fast := &stubProvider{
		name:       "fast",
		namespaces: []string{"github"},
		signals:    []trust.Signal{{Type: "account_reputation", Score: 0.9, Confidence: 0.9}},
	}
	stuck := &stubProvider{
		name:       "stuck",
		namespaces: []string{"github"},
		delay:      time.Second,
	}
	p := newTestPipeline(t, Options{
		Providers:       []providers.Provider{fast, stuck},
		ProviderTimeout: 50 * time.Millisecond,
	})

	start := time.Now()
	result, err := p.Evaluate(context.Background(), githubSubject("octocat"), trust.Context{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond, "slow provider must be abandoned, not awaited")

	assert.Len(t, result.Signals, 1)
	require.Len(t, result.Unresolved, 1)
	assert.Equal(t, "stuck", result.Unresolved[0].Provider)
	assert.Contains(t, result.Unresolved[0].Reason, "timed out")
}

func TestEvaluateFansOutAcrossCohort(t *testing.T) {
	g := graph.New()
	a := githubSubject("octocat")
	b := trust.Subject{Type: trust.SubjectAgent, Namespace: "twitter", ID: "octocat"}
	g.AddLink(a, b, trust.MethodTextChallenge, nil, "")

	stub := &stubProvider{
		name:       "multi",
		namespaces: []string{"github", "twitter"},
		signals:    []trust.Signal{{Type: "presence", Score: 0.8, Confidence: 0.6}},
	}
	p := newTestPipeline(t, Options{Providers: []providers.Provider{stub}, Graph: g})

	result, err := p.Evaluate(context.Background(), a, trust.Context{})
	require.NoError(t, err)

	assert.Equal(t, 2, stub.callCount())
	assert.ElementsMatch(t, []string{"github:octocat", "twitter:octocat"}, stub.seen)
	assert.Len(t, result.Signals, 2)
	assert.Equal(t, "github:octocat", result.SubjectKey, "result is keyed by the canonical subject")
}

func TestResultTTLUsesShortestSignalTTL(t *testing.T) {
	p := newTestPipeline(t, Options{Providers: []providers.Provider{
		&stubProvider{name: "stub", namespaces: []string{"github"}},
	}})

	assert.Equal(t, DefaultResultTTL, p.resultTTL(nil))
	assert.Equal(t, DefaultResultTTL, p.resultTTL([]trust.Signal{{TTLSeconds: 3600}}))
	assert.Equal(t, 120*time.Second, p.resultTTL([]trust.Signal{
		{TTLSeconds: 3600}, {TTLSeconds: 120}, {TTLSeconds: 0},
	}))
}

func TestHealthReportsEveryProvider(t *testing.T) {
	p := newTestPipeline(t, Options{Providers: []providers.Provider{
		&stubProvider{name: "a", namespaces: []string{"github"}},
		&stubProvider{name: "b", namespaces: []string{"twitter"}},
	}})

	report := p.Health(context.Background())
	require.Len(t, report, 2)
	assert.Equal(t, "a", report[0].Provider)
	assert.Equal(t, providers.StatusHealthy, report[0].Status)
}
