package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/metrics"
	"dealdesk/api/internal/store"
)

const msgSaveAsDraftIncomplete = "Save As with form changes requires propertyDetails, underwritingInputs, brokers and tenants"

// SaveAsInput forks a version. The draft fields are all-or-nothing: either
// none is sent and the source is copied, or all four are sent.
type SaveAsInput struct {
	ExpectedRevision   *int                     `json:"expectedRevision" validate:"required,gte=0"`
	PropertyDetails    *deal.PropertyDetails    `json:"propertyDetails,omitempty"`
	UnderwritingInputs *deal.UnderwritingInputs `json:"underwritingInputs,omitempty"`
	Brokers            *[]deal.Broker           `json:"brokers,omitempty" validate:"omitnil,dive"`
	Tenants            *[]deal.Tenant           `json:"tenants,omitempty" validate:"omitnil,dive"`
}

func (in SaveAsInput) hasDraft() bool {
	return in.PropertyDetails != nil || in.UnderwritingInputs != nil || in.Brokers != nil || in.Tenants != nil
}

func (in SaveAsInput) completeDraft() bool {
	return in.PropertyDetails != nil && in.UnderwritingInputs != nil && in.Brokers != nil && in.Tenants != nil
}

// forkContent decides what the new lineage member will hold.
func (in SaveAsInput) forkContent(source deal.Snapshot, now time.Time) (deal.Content, error) {
	if !in.hasDraft() {
		return source.Content.Clone(), nil
	}
	if !in.completeDraft() {
		return deal.Content{}, deal.Validation(msgSaveAsDraftIncomplete)
	}
	return deal.PrepareContent(source.PropertyDetails.Address, deal.Content{
		PropertyDetails:    *in.PropertyDetails,
		UnderwritingInputs: *in.UnderwritingInputs,
		Brokers:            *in.Brokers,
		Tenants:            *in.Tenants,
	}, now)
}

// SaveAsNextVersion creates the next lineage member from sourceVersion and
// historicalizes the previous latest. The source revision is never changed.
func (s *Service) SaveAsNextVersion(ctx context.Context, actor, propertyID, sourceVersion string, in SaveAsInput) (snap deal.Snapshot, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveMutation(string(deal.ActionSaveAs), outcomeOf(err), time.Since(started).Seconds())
	}()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return deal.Snapshot{}, deal.Validation("actor is required")
	}

	expectedRevision, err := requireRevision(in.ExpectedRevision)
	if err != nil {
		return deal.Snapshot{}, err
	}

	source, err := s.GetVersion(ctx, propertyID, sourceVersion)
	if err != nil {
		return deal.Snapshot{}, err
	}
	if source.Revision != expectedRevision {
		return deal.Snapshot{}, deal.RevisionMismatch()
	}

	now := s.now()
	content, err := in.forkContent(source, now)
	if err != nil {
		return deal.Snapshot{}, err
	}

	result, err := s.store.ForkVersion(ctx, store.ForkParams{
		PropertyID:       propertyID,
		SourceVersion:    sourceVersion,
		ExpectedRevision: expectedRevision,
		Content:          content,
		UpdatedBy:        actor,
		Now:              now,
		NextVersion:      deal.NextVersion,
	})
	switch {
	case errors.Is(err, store.ErrRevisionConflict):
		return deal.Snapshot{}, deal.RevisionMismatch()
	case errors.Is(err, store.ErrNotFound):
		return deal.Snapshot{}, deal.NotFound("Property version not found")
	case err != nil:
		return deal.Snapshot{}, err
	}
	created := result.Snapshot

	auditErr := s.recordAudit(ctx, deal.AuditEntry{
		PropertyID: propertyID,
		Version:    created.Version,
		Revision:   0,
		UpdatedBy:  actor,
		Action:     deal.ActionSaveAs,
		Changes:    []deal.Change{{Field: "version", OldValue: sourceVersion, NewValue: created.Version}},
		CreatedAt:  now,
	})
	s.afterCommit(created, deal.ActionSaveAs, actor)
	s.afterFork(context.WithoutCancel(ctx), propertyID, result.Historicalized)
	return created, auditErr
}

// afterFork archives and re-indexes the versions that just became read-only.
func (s *Service) afterFork(ctx context.Context, propertyID string, historicalized []string) {
	if s.archive == nil && s.search == nil {
		return
	}
	for _, version := range historicalized {
		snap, err := s.store.FindVersion(ctx, propertyID, version)
		if err != nil {
			slog.Warn("load historicalized version", "property_id", propertyID, "version", version, "error", err)
			continue
		}
		if s.search != nil {
			s.search.IndexVersions(snap)
		}
		if s.archive != nil {
			if err := s.archive.Put(ctx, snap); err != nil {
				slog.Warn("archive historicalized version", "property_id", propertyID, "version", version, "error", err)
			}
		}
	}
}
