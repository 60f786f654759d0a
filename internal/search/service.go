package search

import (
	"context"
	"log/slog"

	"dealdesk/api/internal/deal"
)

// Service is the facade that tries Meilisearch first and falls back to PG.
type Service struct {
	meili *Meili
	pgfts *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	return &Service{meili: meili, pgfts: pgfts}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "meilisearch"}
		}
		slog.Warn("meilisearch error, falling back to postgres", "error", err)
	}

	if s.pgfts == nil {
		return Response{Results: []Result{}, Query: q.Text, Source: "none"}
	}
	results, total, err := s.pgfts.Search(ctx, q)
	if err != nil {
		slog.Error("postgres search failed", "error", err)
		return Response{Results: []Result{}, Query: q.Text, Source: "postgres"}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text, Source: "postgres"}
}

// IndexVersions pushes version documents to Meilisearch without waiting.
func (s *Service) IndexVersions(snaps ...deal.Snapshot) {
	if s.meili == nil || !s.meili.Healthy() || len(snaps) == 0 {
		return
	}
	records := make([]VersionRecord, 0, len(snaps))
	for _, snap := range snaps {
		records = append(records, RecordFromSnapshot(snap))
	}
	go func() {
		if err := s.meili.IndexVersions(records); err != nil {
			slog.Warn("index versions", "count", len(records), "error", err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
