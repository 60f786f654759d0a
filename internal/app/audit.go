package app

import (
	"context"
	"errors"
	"log/slog"

	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/metrics"
	"dealdesk/api/internal/util"
)

// recordAudit appends the entry for a mutation that has already committed.
// A database failure diverts the entry to the spool; only when that fails
// too does the caller get an *AuditWriteError.
func (s *Service) recordAudit(ctx context.Context, entry deal.AuditEntry) error {
	ctx = context.WithoutCancel(ctx)
	entry.ID = util.NewID("")
	if entry.Changes == nil {
		entry.Changes = []deal.Change{}
	}
	entry.ChangedFieldCount = len(entry.Changes)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	err := s.store.InsertAudit(ctx, entry)
	if err == nil {
		return nil
	}
	slog.Error("audit insert failed",
		"property_id", entry.PropertyID,
		"version", entry.Version,
		"revision", entry.Revision,
		"action", entry.Action,
		"error", err,
	)

	if s.spool != nil {
		spoolErr := s.spool.Push(ctx, entry)
		if spoolErr == nil {
			metrics.AuditSpooled()
			slog.Warn("audit entry spooled for replay", "audit_id", entry.ID, "property_id", entry.PropertyID, "version", entry.Version)
			return nil
		}
		slog.Error("audit spool push failed", "audit_id", entry.ID, "error", spoolErr)
		err = errors.Join(err, spoolErr)
	}

	return &AuditWriteError{
		PropertyID: entry.PropertyID,
		Version:    entry.Version,
		Revision:   entry.Revision,
		Action:     entry.Action,
		Err:        err,
	}
}

// ReplayAudit writes a spooled entry back. Inserts are keyed on the entry id,
// so replaying the same entry twice stores it once.
func (s *Service) ReplayAudit(ctx context.Context, entry deal.AuditEntry) error {
	return s.store.InsertAudit(ctx, entry)
}
