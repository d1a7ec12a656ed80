// Package graph holds the in-memory identity graph: a symmetric weighted
// multigraph of verified equivalence links between (namespace, id) pairs.
// The graph is an in-process mirror; durable storage belongs to the
// external persistence collaborator and is hydrated at startup.
package graph

import (
	"sort"
	"sync"
	"time"

	"github.com/clawtrust/engine/internal/trust"
)

// DefaultMaxHops bounds transitive closure regardless of graph shape.
const DefaultMaxHops = 3

// Graph is safe for concurrent use. Reads dominate: writes happen only
// during hydration, opportunistic registry extraction, and challenge
// callbacks.
type Graph struct {
	mu sync.RWMutex

	// Canonical link key -> link. The key is order-independent: the
	// lexicographically smaller subject key comes first, so AddLink(a, b)
	// and AddLink(b, a) address the same edge.
	links map[string]*trust.IdentityLink

	// Subject key -> neighbour key -> link, for O(1) adjacency lookup.
	adjacency map[string]map[string]*trust.IdentityLink
}

func New() *Graph {
	return &Graph{
		links:     make(map[string]*trust.IdentityLink),
		adjacency: make(map[string]map[string]*trust.IdentityLink),
	}
}

func linkKey(a, b trust.Subject) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}

// AddLink inserts or refreshes the symmetric edge between a and b. Adding
// the same pair twice is idempotent and updates method, confidence,
// evidence and verified-at in place. A self-link a<->a is accepted as the
// canonical "a is verified" marker.
func (g *Graph) AddLink(a, b trust.Subject, method trust.VerificationMethod, evidence map[string]interface{}, attestationRef string) *trust.IdentityLink {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := linkKey(a, b)
	link, exists := g.links[key]
	if !exists {
		link = &trust.IdentityLink{A: a, B: b}
		g.links[key] = link
		g.index(a.Key(), b.Key(), link)
		g.index(b.Key(), a.Key(), link)
	}

	link.Method = method
	link.Confidence = method.Confidence()
	link.Evidence = evidence
	link.VerifiedAt = time.Now()
	if attestationRef != "" {
		link.AttestationRef = attestationRef
	}
	return link
}

func (g *Graph) index(from, to string, link *trust.IdentityLink) {
	if g.adjacency[from] == nil {
		g.adjacency[from] = make(map[string]*trust.IdentityLink)
	}
	g.adjacency[from][to] = link
}

// LinksOf returns copies of every edge touching the subject.
func (g *Graph) LinksOf(subject trust.Subject) []trust.IdentityLink {
	g.mu.RLock()
	defer g.mu.RUnlock()

	neighbours := g.adjacency[subject.Key()]
	out := make([]trust.IdentityLink, 0, len(neighbours))
	for _, key := range sortedKeys(neighbours) {
		out = append(out, *neighbours[key])
	}
	return out
}

// Linked reports whether a direct edge exists between a and b.
func (g *Graph) Linked(a, b trust.Subject) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.links[linkKey(a, b)]
	return ok
}

// HasNeighbours reports whether the subject has any edge to a subject
// other than itself. The resolver uses this as its extraction guard.
func (g *Graph) HasNeighbours(subject trust.Subject) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	key := subject.Key()
	for neighbour := range g.adjacency[key] {
		if neighbour != key {
			return true
		}
	}
	return false
}

// Size returns the number of distinct edges (self-loops included).
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.links)
}

// Reachable performs a bounded BFS from the subject and returns every
// endpoint within maxHops, excluding the subject itself. Iteration order
// is deterministic: neighbours are visited in sorted key order. A visited
// set protects against cycles; maxHops <= 0 falls back to DefaultMaxHops.
func (g *Graph) Reachable(subject trust.Subject, maxHops int) []trust.Subject {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	start := subject.Key()
	visited := map[string]bool{start: true}
	var out []trust.Subject

	frontier := []string{start}

	for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, cur := range frontier {
			for _, neighbourKey := range sortedKeys(g.adjacency[cur]) {
				if visited[neighbourKey] {
					continue
				}
				visited[neighbourKey] = true

				link := g.adjacency[cur][neighbourKey]
				endpoint := link.A
				if endpoint.Key() != neighbourKey {
					endpoint = link.B
				}
				out = append(out, endpoint)
				next = append(next, neighbourKey)
			}
		}
		frontier = next
	}
	return out
}

func sortedKeys(m map[string]*trust.IdentityLink) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
