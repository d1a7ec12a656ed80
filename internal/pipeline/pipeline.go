// Package pipeline orchestrates a trust evaluation: cache probe, in-flight
// deduplication, identity resolution, parallel provider fan-out with
// per-provider timeouts, fraud heuristics, opinion fusion, and risk
// mapping. Provider failures are always local; the pipeline itself errors
// only on programmer mistakes.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/clawtrust/engine/internal/cache"
	"github.com/clawtrust/engine/internal/graph"
	"github.com/clawtrust/engine/internal/metrics"
	"github.com/clawtrust/engine/internal/providers"
	"github.com/clawtrust/engine/internal/resolver"
	"github.com/clawtrust/engine/internal/scoring"
	"github.com/clawtrust/engine/internal/trust"
)

// DefaultProviderTimeout caps each provider's wall-clock budget.
const DefaultProviderTimeout = 10 * time.Second

// DefaultResultTTL is the cache lifetime when no signal carries a TTL.
const DefaultResultTTL = 300 * time.Second

// ErrInvalidSubject is returned for subjects missing a namespace or id.
var ErrInvalidSubject = errors.New("subject requires a namespace and an id")

// Publisher receives every freshly computed result (not cache hits).
// The websocket stream adapter implements it.
type Publisher interface {
	Publish(result *trust.TrustResult)
}

// Options configures a Pipeline. Zero values get sensible defaults; an
// empty Providers list auto-builds the default set from Credentials.
type Options struct {
	Providers       []providers.Provider
	Credentials     providers.Credentials
	ProviderTimeout time.Duration
	DefaultTTL      time.Duration
	Graph           *graph.Graph
	Cache           cache.Store
	Metrics         *metrics.Metrics
	Publisher       Publisher
}

// ProviderHealth is one row of the aggregated health report.
type ProviderHealth struct {
	Provider string                 `json:"provider"`
	Status   providers.HealthStatus `json:"status"`
	Health   providers.Health       `json:"health"`
}

// Pipeline is safe for concurrent use. Distinct subjects evaluate fully
// in parallel; identical concurrent queries coalesce onto one flight.
type Pipeline struct {
	providers  []providers.Provider
	timeout    time.Duration
	defaultTTL time.Duration
	graph      *graph.Graph
	resolver   *resolver.Resolver
	cache      cache.Store
	metrics    *metrics.Metrics
	publisher  Publisher

	flight singleflight.Group
}

// New assembles a pipeline. The resolver's registry extractor is taken
// from the first registered provider that implements it (the ERC-8004
// provider in the default set).
func New(opts Options) *Pipeline {
	if len(opts.Providers) == 0 {
		opts.Providers = providers.DefaultSet(opts.Credentials)
	}
	if opts.ProviderTimeout <= 0 {
		opts.ProviderTimeout = DefaultProviderTimeout
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultResultTTL
	}
	if opts.Graph == nil {
		opts.Graph = graph.New()
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemory(0)
	}

	var extractor resolver.RegistryExtractor
	for _, p := range opts.Providers {
		if ex, ok := p.(resolver.RegistryExtractor); ok {
			extractor = ex
			break
		}
	}

	return &Pipeline{
		providers:  opts.Providers,
		timeout:    opts.ProviderTimeout,
		defaultTTL: opts.DefaultTTL,
		graph:      opts.Graph,
		resolver:   resolver.New(opts.Graph, extractor),
		cache:      opts.Cache,
		metrics:    opts.Metrics,
		publisher:  opts.Publisher,
	}
}

// Graph exposes the identity graph for hydration and challenge callbacks.
func (p *Pipeline) Graph() *graph.Graph { return p.graph }

// Invalidate drops a cached result.
func (p *Pipeline) Invalidate(ctx context.Context, subjectKey string) {
	p.cache.Invalidate(ctx, subjectKey)
	p.countCacheOp("invalidate")
}

// Health aggregates each registered provider's health report.
func (p *Pipeline) Health(ctx context.Context) []ProviderHealth {
	out := make([]ProviderHealth, 0, len(p.providers))
	for _, prov := range p.providers {
		h := prov.Health(ctx)
		out = append(out, ProviderHealth{
			Provider: prov.Metadata().Name,
			Status:   h.Status,
			Health:   h,
		})
	}
	return out
}

// Close releases pipeline-owned resources (the in-memory cache sweeper).
func (p *Pipeline) Close() {
	if closer, ok := p.cache.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Evaluate runs the full pipeline for one subject. Concurrent calls for
// the same subject key perform exactly one upstream evaluation; all
// callers receive the shared result.
func (p *Pipeline) Evaluate(ctx context.Context, subject trust.Subject, evalCtx trust.Context) (*trust.TrustResult, error) {
	if subject.Namespace == "" || subject.ID == "" {
		return nil, ErrInvalidSubject
	}
	if subject.Type == "" {
		subject.Type = trust.SubjectAgent
	}
	key := subject.Key()

	if result, ok := p.cache.Get(ctx, key); ok {
		p.countCacheOp("hit")
		return result, nil
	}
	p.countCacheOp("miss")

	// The in-flight table is the singleflight group: the key is held for
	// the duration of the computation and released when it settles, even
	// on panic, so a failed flight never poisons the key.
	value, err, shared := p.flight.Do(key, func() (interface{}, error) {
		// A racing caller may have populated the cache between our probe
		// and the flight registration.
		if result, ok := p.cache.Get(ctx, key); ok {
			return result, nil
		}
		return p.compute(ctx, subject, evalCtx, key)
	})
	if err != nil {
		return nil, err
	}
	if shared && p.metrics != nil {
		p.metrics.CoalescedEvaluations.Inc()
	}
	return value.(*trust.TrustResult), nil
}

// compute is the cache-miss path: resolve, fan out, score, publish.
func (p *Pipeline) compute(ctx context.Context, subject trust.Subject, evalCtx trust.Context, key string) (*trust.TrustResult, error) {
	started := time.Now()

	resolution := p.resolver.Resolve(ctx, subject)

	type dispatch struct {
		provider providers.Provider
		subject  trust.Subject
	}
	var dispatches []dispatch
	for _, member := range resolution.All {
		for _, prov := range p.providers {
			if prov.Supports(member) {
				dispatches = append(dispatches, dispatch{provider: prov, subject: member})
			}
		}
	}

	entity := scoring.DetectEntityType(subject)

	if len(dispatches) == 0 {
		result := p.noProvidersResult(subject, evalCtx, entity)
		p.publish(result, entity, started)
		return result, nil
	}

	type outcome struct {
		provider string
		signals  []trust.Signal
		err      error
	}
	results := make(chan outcome, len(dispatches))
	var wg sync.WaitGroup

	for _, d := range dispatches {
		wg.Add(1)
		go func(d dispatch) {
			defer wg.Done()
			name := d.provider.Metadata().Name

			pctx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			done := make(chan outcome, 1)
			go func() {
				signals, err := d.provider.Evaluate(pctx, providers.Request{Subject: d.subject, Context: evalCtx})
				done <- outcome{provider: name, signals: signals, err: err}
			}()

			callStart := time.Now()
			select {
			case o := <-done:
				p.observeProvider(name, callStart, o.err)
				results <- o
			case <-pctx.Done():
				// Abandon the slow task; its goroutine drains into the
				// buffered channel and is collected.
				p.observeProvider(name, callStart, pctx.Err())
				results <- outcome{provider: name, err: fmt.Errorf("timed out after %s", p.timeout)}
			}
		}(d)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	signals := make([]trust.Signal, 0, len(dispatches))
	var unresolved []trust.UnresolvedProvider
	for o := range results {
		if o.err != nil {
			slog.Debug("provider unresolved", "provider", o.provider, "subject", key, "err", o.err)
			unresolved = append(unresolved, trust.UnresolvedProvider{Provider: o.provider, Reason: o.err.Error()})
			continue
		}
		signals = append(signals, o.signals...)
	}

	fraudSignals := scanFraud(signals)

	fused := scoring.FuseAll(signals)
	projected := scoring.Project(fused)
	adjusted := scoring.AdjustForStability(projected, signals)
	level := scoring.ApplyContext(scoring.RiskBucket(adjusted), evalCtx)
	recommendation := scoring.Recommend(level, adjusted)

	result := &trust.TrustResult{
		SubjectKey:     key,
		TrustScore:     round(adjusted*100, 2),
		Confidence:     round(1-fused.U, 4),
		RiskLevel:      level,
		Recommendation: recommendation,
		EntityType:     entity,
		Label:          scoring.Label(entity, recommendation),
		Signals:        signals,
		FraudSignals:   fraudSignals,
		Unresolved:     unresolved,
		EvaluatedAt:    time.Now(),
		QueryID:        uuid.NewString(),
	}

	p.cache.Put(ctx, key, result, p.resultTTL(signals))
	p.countCacheOp("put")
	p.publish(result, entity, started)
	return result, nil
}

// noProvidersResult is the synthetic verdict for a subject no registered
// provider can speak to. It is not cached: registering a provider should
// take effect immediately.
func (p *Pipeline) noProvidersResult(subject trust.Subject, evalCtx trust.Context, entity trust.EntityType) *trust.TrustResult {
	return &trust.TrustResult{
		SubjectKey:     subject.Key(),
		TrustScore:     0,
		Confidence:     0,
		RiskLevel:      trust.RiskCritical,
		Recommendation: trust.RecommendDeny,
		EntityType:     entity,
		Label:          scoring.Label(entity, trust.RecommendDeny),
		Signals:        []trust.Signal{},
		FraudSignals: []trust.FraudSignal{{
			Kind:     trust.FraudNoProviders,
			Severity: trust.SeverityHigh,
			Detail:   fmt.Sprintf("no registered provider supports namespace %q", subject.Namespace),
		}},
		EvaluatedAt: time.Now(),
		QueryID:     uuid.NewString(),
	}
}

// resultTTL is min(all signal TTLs, default).
func (p *Pipeline) resultTTL(signals []trust.Signal) time.Duration {
	ttl := p.defaultTTL
	for _, sig := range signals {
		if sig.TTLSeconds <= 0 {
			continue
		}
		if d := time.Duration(sig.TTLSeconds) * time.Second; d < ttl {
			ttl = d
		}
	}
	return ttl
}

func (p *Pipeline) publish(result *trust.TrustResult, entity trust.EntityType, started time.Time) {
	if p.metrics != nil {
		p.metrics.EvaluationsTotal.WithLabelValues(string(result.Recommendation)).Inc()
		p.metrics.EvaluationDuration.WithLabelValues(string(entity)).Observe(time.Since(started).Seconds())
		p.metrics.TrustScore.WithLabelValues(string(entity)).Observe(result.TrustScore)
	}
	if p.publisher != nil {
		p.publisher.Publish(result)
	}
}

func (p *Pipeline) observeProvider(name string, start time.Time, err error) {
	if p.metrics == nil {
		return
	}
	outcome := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	}
	p.metrics.ProviderRequests.WithLabelValues(name, outcome).Inc()
	p.metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

func (p *Pipeline) countCacheOp(op string) {
	if p.metrics != nil {
		p.metrics.CacheOps.WithLabelValues(op).Inc()
	}
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
