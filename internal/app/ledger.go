package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/metrics"
	"dealdesk/api/internal/store"
)

const msgHistoricalReadOnly = "Historical versions are read-only"

// mutation derives the content to persist from the current snapshot.
type mutation func(current deal.Snapshot, now time.Time) (deal.Content, error)

// loadEditable returns the version only while it can still change in place.
func (s *Service) loadEditable(ctx context.Context, propertyID, version string) (deal.Snapshot, error) {
	snap, err := s.GetVersion(ctx, propertyID, version)
	if err != nil {
		return deal.Snapshot{}, err
	}
	if snap.IsHistorical {
		return deal.Snapshot{}, deal.Conflict(msgHistoricalReadOnly)
	}
	return snap, nil
}

// mutate runs load, validate, conditional commit and audit for every
// in-place write. The conditional commit is the only concurrency control: a
// writer holding a stale revision gets CONFLICT and nothing is written.
//
// When the commit succeeds but the audit entry cannot be stored or spooled,
// the committed snapshot is returned together with an *AuditWriteError.
func (s *Service) mutate(
	ctx context.Context,
	actor string,
	action deal.Action,
	propertyID, version string,
	expectedRevision int,
	apply mutation,
) (snap deal.Snapshot, err error) {
	started := time.Now()
	defer func() {
		metrics.ObserveMutation(string(action), outcomeOf(err), time.Since(started).Seconds())
	}()

	actor = strings.TrimSpace(actor)
	if actor == "" {
		return deal.Snapshot{}, deal.Validation("actor is required")
	}

	current, err := s.loadEditable(ctx, propertyID, version)
	if err != nil {
		return deal.Snapshot{}, err
	}

	now := s.now()
	content, err := apply(current, now)
	if err != nil {
		return deal.Snapshot{}, err
	}

	updated, err := s.store.CommitVersion(ctx, store.CommitParams{
		PropertyID:       propertyID,
		Version:          version,
		ExpectedRevision: expectedRevision,
		Content:          content,
		UpdatedBy:        actor,
		Now:              now,
	})
	if errors.Is(err, store.ErrRevisionConflict) {
		return deal.Snapshot{}, deal.RevisionMismatch()
	}
	if err != nil {
		return deal.Snapshot{}, err
	}

	auditErr := s.recordAudit(ctx, deal.AuditEntry{
		PropertyID: propertyID,
		Version:    version,
		Revision:   updated.Revision,
		UpdatedBy:  actor,
		Action:     action,
		Changes:    deal.DiffContent(current.Content, updated.Content),
		CreatedAt:  now,
	})
	s.afterCommit(updated, action, actor)
	return updated, auditErr
}

// requireRevision rejects a missing expected revision instead of reading it
// as zero, which would pass the guard on any unedited version.
func requireRevision(rev *int) (int, error) {
	if rev == nil {
		return 0, deal.Validation("expectedRevision is required")
	}
	if *rev < 0 {
		return 0, deal.Validation("expectedRevision must be a non-negative integer")
	}
	return *rev, nil
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	kind, ok := deal.KindOf(err)
	if !ok {
		return metrics.OutcomeError
	}
	switch kind {
	case deal.KindConflict:
		return metrics.OutcomeConflict
	case deal.KindValidation:
		return metrics.OutcomeValidation
	case deal.KindNotFound:
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeError
}

// SaveVersionInput is a full replacement of a version's content.
type SaveVersionInput struct {
	ExpectedRevision   *int                    `json:"expectedRevision" validate:"required,gte=0"`
	PropertyDetails    deal.PropertyDetails    `json:"propertyDetails"`
	UnderwritingInputs deal.UnderwritingInputs `json:"underwritingInputs"`
	Brokers            []deal.Broker           `json:"brokers" validate:"required,dive"`
	Tenants            []deal.Tenant           `json:"tenants" validate:"required,dive"`
}

func (in SaveVersionInput) content() deal.Content {
	return deal.Content{
		PropertyDetails:    in.PropertyDetails,
		UnderwritingInputs: in.UnderwritingInputs,
		Brokers:            in.Brokers,
		Tenants:            in.Tenants,
	}
}

// SaveCurrentVersion replaces the content of an editable version. Both rosters
// must be present; an empty list clears a roster, a missing one is rejected.
func (s *Service) SaveCurrentVersion(ctx context.Context, actor, propertyID, version string, in SaveVersionInput) (deal.Snapshot, error) {
	expectedRevision, err := requireRevision(in.ExpectedRevision)
	if err != nil {
		return deal.Snapshot{}, err
	}
	if in.Brokers == nil || in.Tenants == nil {
		return deal.Snapshot{}, deal.Validation("brokers and tenants are required")
	}
	return s.mutate(ctx, actor, deal.ActionUpdateVersion, propertyID, version, expectedRevision,
		func(current deal.Snapshot, now time.Time) (deal.Content, error) {
			return deal.PrepareContent(current.PropertyDetails.Address, in.content(), now)
		})
}
