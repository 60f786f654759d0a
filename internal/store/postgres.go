package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"dealdesk/api/internal/deal"
)

const pgUniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const versionColumns = `id, property_id, version, revision, is_latest, is_historical,
	property_details, underwriting_inputs, updated_by, created_at, updated_at`

func scanVersion(row interface{ Scan(...any) error }) (string, deal.Snapshot, error) {
	var (
		rowID      string
		snap       deal.Snapshot
		detailsRaw []byte
		inputsRaw  []byte
	)
	if err := row.Scan(
		&rowID,
		&snap.PropertyID,
		&snap.Version,
		&snap.Revision,
		&snap.IsLatest,
		&snap.IsHistorical,
		&detailsRaw,
		&inputsRaw,
		&snap.UpdatedBy,
		&snap.CreatedAt,
		&snap.UpdatedAt,
	); err != nil {
		return "", deal.Snapshot{}, err
	}
	if err := json.Unmarshal(detailsRaw, &snap.PropertyDetails); err != nil {
		return "", deal.Snapshot{}, fmt.Errorf("decode property details: %w", err)
	}
	if err := json.Unmarshal(inputsRaw, &snap.UnderwritingInputs); err != nil {
		return "", deal.Snapshot{}, fmt.Errorf("decode underwriting inputs: %w", err)
	}
	return rowID, snap, nil
}

func (s *PostgresStore) FindVersion(ctx context.Context, propertyID, version string) (deal.Snapshot, error) {
	rowID, snap, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM property_versions
		WHERE property_id=$1 AND version=$2
	`, propertyID, version))
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("get property version: %w", err)
	}
	if err := loadChildren(ctx, s.db, rowID, &snap.Content); err != nil {
		return deal.Snapshot{}, err
	}
	return snap, nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, propertyID string) ([]deal.VersionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, version, revision, is_latest, is_historical, updated_by, updated_at
		FROM property_versions
		WHERE property_id=$1
		ORDER BY updated_at DESC, version DESC
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list property versions: %w", err)
	}
	defer rows.Close()

	items := make([]deal.VersionSummary, 0)
	for rows.Next() {
		var item deal.VersionSummary
		if err := rows.Scan(
			&item.PropertyID,
			&item.Version,
			&item.Revision,
			&item.IsLatest,
			&item.IsHistorical,
			&item.UpdatedBy,
			&item.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan property version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate property versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountVersions(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM property_versions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count property versions: %w", err)
	}
	return count, nil
}

// InsertVersion stores a new lineage member as given. Used for seeding.
func (s *PostgresStore) InsertVersion(ctx context.Context, snap deal.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert version tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := insertVersion(ctx, tx, snap); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert version: %w", err)
	}
	return nil
}

// CommitVersion bumps the revision of an editable version only if it still
// holds the expected revision, and replaces its children in the same
// transaction. A lost race returns ErrRevisionConflict with nothing written.
func (s *PostgresStore) CommitVersion(ctx context.Context, p CommitParams) (deal.Snapshot, error) {
	details, inputs, err := encodeContent(p.Content)
	if err != nil {
		return deal.Snapshot{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("begin commit tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rowID, snap, err := scanVersion(tx.QueryRowContext(ctx, `
		UPDATE property_versions
		SET property_details=$4::jsonb, underwriting_inputs=$5::jsonb, updated_by=$6, updated_at=$7,
			revision=revision+1
		WHERE property_id=$1 AND version=$2 AND revision=$3 AND is_historical=FALSE
		RETURNING `+versionColumns,
		p.PropertyID, p.Version, p.ExpectedRevision, details, inputs, p.UpdatedBy, p.Now,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return deal.Snapshot{}, ErrRevisionConflict
	}
	if err != nil {
		return deal.Snapshot{}, fmt.Errorf("commit property version: %w", err)
	}

	if err := replaceChildren(ctx, tx, rowID, p.Content); err != nil {
		return deal.Snapshot{}, err
	}
	if err := tx.Commit(); err != nil {
		return deal.Snapshot{}, fmt.Errorf("commit property version tx: %w", err)
	}

	snap.Content = p.Content.Clone()
	return snap, nil
}

// ForkVersion creates the next lineage member from a source version. The
// whole lineage is row-locked so label selection, historicalization and the
// insert observe one consistent lineage.
func (s *PostgresStore) ForkVersion(ctx context.Context, p ForkParams) (ForkResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ForkResult{}, fmt.Errorf("begin fork tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT version, revision
		FROM property_versions
		WHERE property_id=$1
		ORDER BY created_at
		FOR UPDATE
	`, p.PropertyID)
	if err != nil {
		return ForkResult{}, fmt.Errorf("lock lineage: %w", err)
	}
	var labels []string
	sourceRevision := -1
	for rows.Next() {
		var label string
		var revision int
		if err := rows.Scan(&label, &revision); err != nil {
			rows.Close()
			return ForkResult{}, fmt.Errorf("scan lineage: %w", err)
		}
		labels = append(labels, label)
		if label == p.SourceVersion {
			sourceRevision = revision
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return ForkResult{}, fmt.Errorf("iterate lineage: %w", err)
	}

	if sourceRevision < 0 {
		return ForkResult{}, ErrNotFound
	}
	if sourceRevision != p.ExpectedRevision {
		return ForkResult{}, ErrRevisionConflict
	}

	next, err := p.NextVersion(labels)
	if err != nil {
		return ForkResult{}, err
	}

	historicalized, err := markLatestAsHistorical(ctx, tx, p.PropertyID, p.Now)
	if err != nil {
		return ForkResult{}, err
	}

	snap := deal.Snapshot{
		PropertyID: p.PropertyID,
		Version:    next,
		Revision:   0,
		IsLatest:   true,
		UpdatedBy:  p.UpdatedBy,
		CreatedAt:  p.Now,
		UpdatedAt:  p.Now,
		Content:    p.Content.Clone(),
	}
	if _, err := insertVersion(ctx, tx, snap); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.SQLState() == pgUniqueViolation {
			return ForkResult{}, ErrRevisionConflict
		}
		return ForkResult{}, err
	}
	if err := tx.Commit(); err != nil {
		return ForkResult{}, fmt.Errorf("commit fork tx: %w", err)
	}
	return ForkResult{Snapshot: snap, Historicalized: historicalized}, nil
}

func markLatestAsHistorical(ctx context.Context, q queryer, propertyID string, now time.Time) ([]string, error) {
	rows, err := q.QueryContext(ctx, `
		UPDATE property_versions
		SET is_latest=FALSE, is_historical=TRUE, updated_at=$2
		WHERE property_id=$1 AND is_latest=TRUE
		RETURNING version
	`, propertyID, now)
	if err != nil {
		return nil, fmt.Errorf("mark latest historical: %w", err)
	}
	defer rows.Close()

	labels := make([]string, 0, 1)
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("scan historicalized version: %w", err)
		}
		labels = append(labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate historicalized versions: %w", err)
	}
	return labels, nil
}

func insertVersion(ctx context.Context, q queryer, snap deal.Snapshot) (string, error) {
	details, inputs, err := encodeContent(snap.Content)
	if err != nil {
		return "", err
	}
	rowID := uuid.NewString()
	_, err = q.ExecContext(ctx, `
		INSERT INTO property_versions (id, property_id, version, revision, is_latest, is_historical,
			property_details, underwriting_inputs, updated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11)
	`, rowID, snap.PropertyID, snap.Version, snap.Revision, snap.IsLatest, snap.IsHistorical,
		details, inputs, snap.UpdatedBy, snap.CreatedAt, snap.UpdatedAt)
	if err != nil {
		return "", fmt.Errorf("insert property version: %w", err)
	}
	if err := insertChildren(ctx, q, rowID, snap.Content); err != nil {
		return "", err
	}
	return rowID, nil
}

func encodeContent(c deal.Content) (string, string, error) {
	details, err := json.Marshal(c.PropertyDetails)
	if err != nil {
		return "", "", fmt.Errorf("marshal property details: %w", err)
	}
	inputs, err := json.Marshal(c.UnderwritingInputs)
	if err != nil {
		return "", "", fmt.Errorf("marshal underwriting inputs: %w", err)
	}
	return string(details), string(inputs), nil
}

// replaceChildren swaps the broker and tenant rows of a version wholesale.
func replaceChildren(ctx context.Context, q queryer, rowID string, c deal.Content) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM brokers WHERE property_version_id=$1`, rowID); err != nil {
		return fmt.Errorf("delete brokers: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM tenants WHERE property_version_id=$1`, rowID); err != nil {
		return fmt.Errorf("delete tenants: %w", err)
	}
	return insertChildren(ctx, q, rowID, c)
}

func insertChildren(ctx context.Context, q queryer, rowID string, c deal.Content) error {
	for i, b := range c.Brokers {
		_, err := q.ExecContext(ctx, `
			INSERT INTO brokers (property_version_id, position, id, name, phone, email, company,
				is_deleted, deleted_at, deleted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, rowID, i, b.ID, b.Name, b.Phone, b.Email, b.Company, b.IsDeleted, nullTime(b.DeletedAt), nullString(b.DeletedBy))
		if err != nil {
			return fmt.Errorf("insert broker %s: %w", b.ID, err)
		}
	}
	for i, t := range c.Tenants {
		_, err := q.ExecContext(ctx, `
			INSERT INTO tenants (property_version_id, position, id, tenant_name, credit_type, square_feet,
				rent_psf, annual_escalations, lease_start, lease_end, lease_type, renew, downtime_months,
				ti_psf, lc_psf, is_vacant, is_deleted, deleted_at, deleted_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		`, rowID, i, t.ID, t.TenantName, t.CreditType, t.SquareFeet, t.RentPsf, t.AnnualEscalations,
			t.LeaseStart, t.LeaseEnd, t.LeaseType, t.Renew, t.DowntimeMonths, t.TIPsf, t.LCPsf,
			t.IsVacant, t.IsDeleted, nullTime(t.DeletedAt), nullString(t.DeletedBy))
		if err != nil {
			return fmt.Errorf("insert tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

func loadChildren(ctx context.Context, q queryer, rowID string, c *deal.Content) error {
	brokerRows, err := q.QueryContext(ctx, `
		SELECT id, name, phone, email, company, is_deleted, deleted_at, deleted_by
		FROM brokers
		WHERE property_version_id=$1
		ORDER BY position
	`, rowID)
	if err != nil {
		return fmt.Errorf("list brokers: %w", err)
	}
	defer brokerRows.Close()

	c.Brokers = make([]deal.Broker, 0)
	for brokerRows.Next() {
		var (
			b         deal.Broker
			deletedAt sql.NullTime
			deletedBy sql.NullString
		)
		if err := brokerRows.Scan(&b.ID, &b.Name, &b.Phone, &b.Email, &b.Company, &b.IsDeleted, &deletedAt, &deletedBy); err != nil {
			return fmt.Errorf("scan broker: %w", err)
		}
		b.DeletedAt = timePtr(deletedAt)
		b.DeletedBy = deletedBy.String
		c.Brokers = append(c.Brokers, b)
	}
	if err := brokerRows.Err(); err != nil {
		return fmt.Errorf("iterate brokers: %w", err)
	}

	tenantRows, err := q.QueryContext(ctx, `
		SELECT id, tenant_name, credit_type, square_feet, rent_psf, annual_escalations, lease_start,
			lease_end, lease_type, renew, downtime_months, ti_psf, lc_psf, is_vacant, is_deleted,
			deleted_at, deleted_by
		FROM tenants
		WHERE property_version_id=$1
		ORDER BY position
	`, rowID)
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	defer tenantRows.Close()

	c.Tenants = make([]deal.Tenant, 0)
	for tenantRows.Next() {
		var (
			t         deal.Tenant
			deletedAt sql.NullTime
			deletedBy sql.NullString
		)
		if err := tenantRows.Scan(
			&t.ID, &t.TenantName, &t.CreditType, &t.SquareFeet, &t.RentPsf, &t.AnnualEscalations,
			&t.LeaseStart, &t.LeaseEnd, &t.LeaseType, &t.Renew, &t.DowntimeMonths, &t.TIPsf, &t.LCPsf,
			&t.IsVacant, &t.IsDeleted, &deletedAt, &deletedBy,
		); err != nil {
			return fmt.Errorf("scan tenant: %w", err)
		}
		t.DeletedAt = timePtr(deletedAt)
		t.DeletedBy = deletedBy.String
		c.Tenants = append(c.Tenants, t)
	}
	if err := tenantRows.Err(); err != nil {
		return fmt.Errorf("iterate tenants: %w", err)
	}
	return nil
}

// InsertAudit appends an audit entry. Re-inserting an entry with the same id
// is a no-op so spooled entries can be replayed safely.
func (s *PostgresStore) InsertAudit(ctx context.Context, entry deal.AuditEntry) error {
	changes := entry.Changes
	if changes == nil {
		changes = []deal.Change{}
	}
	encoded, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_logs (id, property_id, version, revision, updated_by, action, changes, changed_field_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9)
		ON CONFLICT (id) DO NOTHING
	`, entry.ID, entry.PropertyID, entry.Version, entry.Revision, entry.UpdatedBy, string(entry.Action),
		string(encoded), entry.ChangedFieldCount, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, propertyID, version string) ([]deal.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, property_id, version, revision, updated_by, action, changes, changed_field_count, created_at
		FROM audit_logs
		WHERE property_id=$1 AND version=$2
		ORDER BY created_at DESC, revision DESC
	`, propertyID, version)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	items := make([]deal.AuditEntry, 0)
	for rows.Next() {
		var (
			item       deal.AuditEntry
			action     string
			changesRaw []byte
		)
		if err := rows.Scan(
			&item.ID,
			&item.PropertyID,
			&item.Version,
			&item.Revision,
			&item.UpdatedBy,
			&action,
			&changesRaw,
			&item.ChangedFieldCount,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		item.Action = deal.Action(action)
		if err := json.Unmarshal(changesRaw, &item.Changes); err != nil {
			return nil, fmt.Errorf("decode audit changes: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit logs: %w", err)
	}
	return items, nil
}

// SearchVersions is the database fallback for version search.
func (s *PostgresStore) SearchVersions(ctx context.Context, query, propertyID string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT property_id, version, property_details->>'address', property_details->>'market',
			is_latest, is_historical, updated_at
		FROM property_versions
		WHERE ($2 = '' OR property_id = $2)
		  AND ($1 = '' OR search_vector @@ plainto_tsquery('simple', $1)
		       OR property_details->>'address' ILIKE '%' || $1 || '%')
		ORDER BY is_latest DESC, updated_at DESC
		LIMIT $3
	`, query, propertyID, limit)
	if err != nil {
		return nil, fmt.Errorf("search property versions: %w", err)
	}
	defer rows.Close()

	hits := make([]SearchHit, 0)
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.PropertyID, &hit.Version, &hit.Address, &hit.Market, &hit.IsLatest, &hit.IsHistorical, &hit.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return hits, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
