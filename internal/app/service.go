package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"dealdesk/api/internal/archive"
	"dealdesk/api/internal/config"
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/export"
	"dealdesk/api/internal/mirror"
	"dealdesk/api/internal/search"
	"dealdesk/api/internal/store"
)

type dataStore interface {
	Ping(ctx context.Context) error
	FindVersion(ctx context.Context, propertyID, version string) (deal.Snapshot, error)
	ListVersions(ctx context.Context, propertyID string) ([]deal.VersionSummary, error)
	CountVersions(ctx context.Context) (int, error)
	InsertVersion(ctx context.Context, snap deal.Snapshot) error
	CommitVersion(ctx context.Context, p store.CommitParams) (deal.Snapshot, error)
	ForkVersion(ctx context.Context, p store.ForkParams) (store.ForkResult, error)
	InsertAudit(ctx context.Context, entry deal.AuditEntry) error
	ListAudit(ctx context.Context, propertyID, version string) ([]deal.AuditEntry, error)
}

type auditSpool interface {
	Push(ctx context.Context, entry deal.AuditEntry) error
}

type versionIndexer interface {
	IndexVersions(snaps ...deal.Snapshot)
	Search(ctx context.Context, q search.Query) search.Response
}

type lineageMirror interface {
	Record(snap deal.Snapshot, action deal.Action, actor string) (mirror.CommitInfo, error)
	History(propertyID, version string, limit int) ([]mirror.CommitInfo, error)
}

type snapshotArchive interface {
	Put(ctx context.Context, snap deal.Snapshot) error
	Get(ctx context.Context, propertyID, version string) (deal.Snapshot, error)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	now     func() time.Time
	spool   auditSpool
	search  versionIndexer
	mirror  lineageMirror
	archive snapshotArchive
	export  *export.Service
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithSpool(spool auditSpool) Option {
	return func(s *Service) { s.spool = spool }
}

func WithSearch(index versionIndexer) Option {
	return func(s *Service) { s.search = index }
}

func WithMirror(m lineageMirror) Option {
	return func(s *Service) { s.mirror = m }
}

func WithArchive(a snapshotArchive) Option {
	return func(s *Service) { s.archive = a }
}

func New(cfg config.Config, dataStore dataStore, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		store: dataStore,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	s.export = export.NewService(s, cfg.ChromePath)
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) VersionCount(ctx context.Context) (int, error) {
	return s.store.CountVersions(ctx)
}

func (s *Service) GetVersion(ctx context.Context, propertyID, version string) (deal.Snapshot, error) {
	snap, err := s.store.FindVersion(ctx, propertyID, version)
	if errors.Is(err, store.ErrNotFound) {
		return deal.Snapshot{}, deal.NotFound("Property version not found")
	}
	if err != nil {
		return deal.Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) ListVersions(ctx context.Context, propertyID string) ([]deal.VersionSummary, error) {
	return s.store.ListVersions(ctx, propertyID)
}

func (s *Service) ListAudit(ctx context.Context, propertyID, version string) ([]deal.AuditEntry, error) {
	return s.store.ListAudit(ctx, propertyID, version)
}

// History lists the mirror commits recorded for one version.
func (s *Service) History(propertyID, version string, limit int) ([]mirror.CommitInfo, error) {
	if s.mirror == nil {
		return nil, domainError(http.StatusNotFound, "MIRROR_DISABLED", "Lineage mirror is not configured", nil)
	}
	return s.mirror.History(propertyID, version, limit)
}

// ArchivedVersion reads the frozen copy written when a version became
// historical.
func (s *Service) ArchivedVersion(ctx context.Context, propertyID, version string) (deal.Snapshot, error) {
	if s.archive == nil {
		return deal.Snapshot{}, domainError(http.StatusNotFound, "ARCHIVE_DISABLED", "Snapshot archive is not configured", nil)
	}
	snap, err := s.archive.Get(ctx, propertyID, version)
	if errors.Is(err, archive.ErrNotArchived) {
		return deal.Snapshot{}, deal.NotFound("Archived version not found")
	}
	if err != nil {
		return deal.Snapshot{}, err
	}
	return snap, nil
}

func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text, Source: "none"}
	}
	return s.search.Search(ctx, q)
}

func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	return s.export.Export(ctx, req)
}

// afterCommit pushes an accepted snapshot to the optional side channels. None
// of them can fail the request.
func (s *Service) afterCommit(snap deal.Snapshot, action deal.Action, actor string) {
	if s.search != nil {
		s.search.IndexVersions(snap)
	}
	if s.mirror != nil {
		if _, err := s.mirror.Record(snap, action, actor); err != nil {
			slog.Warn("mirror record failed", "property_id", snap.PropertyID, "version", snap.Version, "error", err)
		}
	}
}
