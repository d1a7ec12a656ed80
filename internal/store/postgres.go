// Package store is the Postgres persistence driver for identity links.
// The engine holds only an in-memory mirror; this store hydrates it at
// startup and records links verified by the external challenge workflow.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/clawtrust/engine/internal/graph"
	"github.com/clawtrust/engine/internal/trust"
)

const schema = `
CREATE TABLE IF NOT EXISTS identity_links (
    link_key        TEXT PRIMARY KEY,
    a_type          TEXT NOT NULL,
    a_namespace     TEXT NOT NULL,
    a_id            TEXT NOT NULL,
    b_type          TEXT NOT NULL,
    b_namespace     TEXT NOT NULL,
    b_id            TEXT NOT NULL,
    method          TEXT NOT NULL,
    confidence      DOUBLE PRECISION NOT NULL,
    evidence        JSONB,
    verified_at     TIMESTAMPTZ NOT NULL,
    attestation_ref TEXT
)`

// Postgres persists identity links.
type Postgres struct {
	db *sql.DB
}

// Open connects and verifies connectivity.
func Open(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (s *Postgres) Close() error {
	return s.db.Close()
}

// Migrate creates the identity_links table if missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate identity_links: %w", err)
	}
	return nil
}

// Upsert writes a link, keyed by the same order-independent canonical key
// the in-memory graph uses.
func (s *Postgres) Upsert(ctx context.Context, link trust.IdentityLink) error {
	evidence, err := json.Marshal(link.Evidence)
	if err != nil {
		return fmt.Errorf("encode link evidence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identity_links
			(link_key, a_type, a_namespace, a_id, b_type, b_namespace, b_id,
			 method, confidence, evidence, verified_at, attestation_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (link_key) DO UPDATE SET
			method = EXCLUDED.method,
			confidence = EXCLUDED.confidence,
			evidence = EXCLUDED.evidence,
			verified_at = EXCLUDED.verified_at,
			attestation_ref = EXCLUDED.attestation_ref`,
		canonicalKey(link.A, link.B),
		string(link.A.Type), link.A.Namespace, link.A.ID,
		string(link.B.Type), link.B.Namespace, link.B.ID,
		string(link.Method), link.Confidence, evidence,
		link.VerifiedAt, link.AttestationRef,
	)
	if err != nil {
		return fmt.Errorf("upsert identity link: %w", err)
	}
	return nil
}

// LoadAll returns every persisted link.
func (s *Postgres) LoadAll(ctx context.Context) ([]trust.IdentityLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a_type, a_namespace, a_id, b_type, b_namespace, b_id,
		       method, confidence, evidence, verified_at, attestation_ref
		FROM identity_links`)
	if err != nil {
		return nil, fmt.Errorf("load identity links: %w", err)
	}
	defer rows.Close()

	var links []trust.IdentityLink
	for rows.Next() {
		var link trust.IdentityLink
		var aType, bType, method string
		var evidence []byte
		var attestationRef sql.NullString

		if err := rows.Scan(
			&aType, &link.A.Namespace, &link.A.ID,
			&bType, &link.B.Namespace, &link.B.ID,
			&method, &link.Confidence, &evidence,
			&link.VerifiedAt, &attestationRef,
		); err != nil {
			return nil, fmt.Errorf("scan identity link: %w", err)
		}

		link.A.Type = trust.SubjectType(aType)
		link.B.Type = trust.SubjectType(bType)
		link.Method = trust.VerificationMethod(method)
		link.AttestationRef = attestationRef.String
		if len(evidence) > 0 {
			if err := json.Unmarshal(evidence, &link.Evidence); err != nil {
				slog.Warn("identity link has corrupt evidence, dropping it", "key", canonicalKey(link.A, link.B), "err", err)
			}
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// Hydrate loads every persisted link into the graph and returns the count.
func (s *Postgres) Hydrate(ctx context.Context, g *graph.Graph) (int, error) {
	links, err := s.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	for _, link := range links {
		g.AddLink(link.A, link.B, link.Method, link.Evidence, link.AttestationRef)
	}
	return len(links), nil
}

func canonicalKey(a, b trust.Subject) string {
	ka, kb := a.Key(), b.Key()
	if kb < ka {
		ka, kb = kb, ka
	}
	return ka + "|" + kb
}
