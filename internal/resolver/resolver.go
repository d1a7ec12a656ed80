// Package resolver expands a subject into its verified-identity cohort.
// Its only side effect is opportunistic: links declared in an ERC-8004
// registration are materialised into the graph as a read-through, so the
// graph itself is the resolver's cache.
package resolver

import (
	"context"
	"log/slog"

	"github.com/clawtrust/engine/internal/graph"
	"github.com/clawtrust/engine/internal/trust"
)

// RegistryExtractor is the slice of the on-chain provider the resolver
// needs: the cross-namespace identities a registration declares.
type RegistryExtractor interface {
	LinkedIdentifiers(ctx context.Context, id string) ([]trust.Subject, error)
}

// Resolution is the cohort for one subject. All is Canonical followed by
// Linked, so it is never empty.
type Resolution struct {
	Canonical trust.Subject
	Linked    []trust.Subject
	All       []trust.Subject
}

// Resolver carries no cache of its own.
type Resolver struct {
	graph    *graph.Graph
	registry RegistryExtractor
}

// New builds a resolver. registry may be nil, which disables registry
// link extraction.
func New(g *graph.Graph, registry RegistryExtractor) *Resolver {
	return &Resolver{graph: g, registry: registry}
}

// Resolve returns the transitive-closure cohort for the subject, bounded
// to the graph's hop cap. Registry extraction failures are swallowed: the
// cohort degrades to whatever the graph already knows.
func (r *Resolver) Resolve(ctx context.Context, subject trust.Subject) Resolution {
	r.extractRegistryLinks(ctx, subject)

	linked := r.graph.Reachable(subject, graph.DefaultMaxHops)
	// Cohort members inherit the original subject type so providers see a
	// consistently typed request.
	for i := range linked {
		linked[i].Type = subject.Type
	}

	all := make([]trust.Subject, 0, len(linked)+1)
	all = append(all, subject)
	all = append(all, linked...)

	return Resolution{Canonical: subject, Linked: linked, All: all}
}

// extractRegistryLinks materialises registry-declared links for an
// erc8004 subject the graph has not seen neighbours for. The
// has-neighbours guard keeps the read-through idempotent and makes
// concurrent resolves of the same subject converge on the same link set.
func (r *Resolver) extractRegistryLinks(ctx context.Context, subject trust.Subject) {
	if subject.Namespace != "erc8004" || r.registry == nil {
		return
	}
	if r.graph.HasNeighbours(subject) {
		return
	}

	declared, err := r.registry.LinkedIdentifiers(ctx, subject.ID)
	if err != nil {
		slog.Debug("registry link extraction failed", "subject", subject.Key(), "err", err)
		return
	}

	for _, linked := range declared {
		r.graph.AddLink(subject, linked, trust.MethodRegistryDeclared, map[string]interface{}{
			"source": "erc8004_registration",
		}, "")
	}
}
