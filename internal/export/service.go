package export

import (
	"context"
	"fmt"

	"dealdesk/api/internal/deal"
)

// SnapshotSource loads the version being exported.
type SnapshotSource interface {
	GetVersion(ctx context.Context, propertyID, version string) (deal.Snapshot, error)
}

type Service struct {
	source     SnapshotSource
	chromePath string
}

func NewService(source SnapshotSource, chromePath string) *Service {
	return &Service{source: source, chromePath: chromePath}
}

func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	snap, err := s.source.GetVersion(ctx, req.PropertyID, req.Version)
	if err != nil {
		return nil, err
	}
	base := sanitizeFilename(snap.PropertyID + " " + snap.Version)

	switch req.Format {
	case FormatPDF:
		html, err := RenderDealSheetHTML(NewTemplateData(snap))
		if err != nil {
			return nil, fmt.Errorf("render template: %w", err)
		}
		return exportPDF(ctx, s.chromePath, html, base)
	case FormatXLSX:
		return exportXLSX(snap, base)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
