package search

import (
	"context"

	"dealdesk/api/internal/store"
)

type versionSearcher interface {
	SearchVersions(ctx context.Context, query, propertyID string, limit int) ([]store.SearchHit, error)
}

// PgFTS answers queries from the property_versions table.
type PgFTS struct {
	db versionSearcher
}

func NewPgFTS(db versionSearcher) *PgFTS {
	return &PgFTS{db: db}
}

func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	hits, err := p.db.SearchVersions(ctx, q.Text, q.PropertyID, limit+q.Offset)
	if err != nil {
		return nil, 0, err
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if q.LatestOnly && !hit.IsLatest {
			continue
		}
		results = append(results, Result{
			PropertyID:   hit.PropertyID,
			Version:      hit.Version,
			Address:      hit.Address,
			Market:       hit.Market,
			IsLatest:     hit.IsLatest,
			IsHistorical: hit.IsHistorical,
		})
	}
	total := len(results)
	if q.Offset >= len(results) {
		return []Result{}, total, nil
	}
	return results[q.Offset:], total, nil
}
