package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk/api/internal/archive"
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/mirror"
	"dealdesk/api/internal/search"
	"dealdesk/api/internal/spool"
)

const analyst = "analyst@example.com"

type recordingIndexer struct {
	mu      sync.Mutex
	indexed []deal.Snapshot
}

func (r *recordingIndexer) IndexVersions(snaps ...deal.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, snaps...)
}

func (r *recordingIndexer) Search(_ context.Context, q search.Query) search.Response {
	return search.Response{Results: []search.Result{{PropertyID: "property-1", Version: "1.1"}}, Total: 1, Query: q.Text, Source: "test"}
}

type recordingArchive struct {
	mu   sync.Mutex
	puts []deal.Snapshot
}

func (r *recordingArchive) Put(_ context.Context, snap deal.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts = append(r.puts, snap)
	return nil
}

func (r *recordingArchive) Get(_ context.Context, propertyID, version string) (deal.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.puts) - 1; i >= 0; i-- {
		if r.puts[i].PropertyID == propertyID && r.puts[i].Version == version {
			return r.puts[i], nil
		}
	}
	return deal.Snapshot{}, archive.ErrNotArchived
}

func requireKind(t *testing.T, err error, kind deal.Kind) {
	t.Helper()
	got, ok := deal.KindOf(err)
	require.True(t, ok, "expected %s error, got %v", kind, err)
	require.Equal(t, kind, got, "error %v", err)
}

func TestGetVersionNotFound(t *testing.T) {
	svc := newTestService(newFakeStore())
	_, err := svc.GetVersion(context.Background(), "property-1", "9.9")
	require.ErrorIs(t, err, deal.ErrNotFound)
	assert.Contains(t, err.Error(), "Property version not found")
}

func TestSaveCurrentVersionBumpsRevisionAndAudits(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)

	in := saveInputFrom(baseSnapshot())
	in.PropertyDetails.Market = "Raleigh"
	updated, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", in)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Revision)
	assert.Equal(t, analyst, updated.UpdatedBy)
	assert.True(t, updated.UpdatedAt.Equal(testNow), "updatedAt %s", updated.UpdatedAt)

	entries, err := svc.ListAudit(context.Background(), "property-1", "1.1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.NotEmpty(t, entry.ID, "audit entry id must be assigned")
	assert.Equal(t, deal.ActionUpdateVersion, entry.Action)
	assert.Equal(t, 1, entry.Revision)
	assert.Equal(t, analyst, entry.UpdatedBy)
	assert.Equal(t, 1, entry.ChangedFieldCount)
	assert.Equal(t, []deal.Change{{Field: "propertyDetails.market", OldValue: "Charlotte", NewValue: "Raleigh"}}, entry.Changes)
}

func TestSaveCurrentVersionUnchangedContentStillBumpsRevision(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)

	updated, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", saveInputFrom(baseSnapshot()))
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Revision)

	entries, _ := svc.ListAudit(context.Background(), "property-1", "1.1")
	require.Len(t, entries, 1)
	assert.Zero(t, entries[0].ChangedFieldCount)
}

func TestSaveCurrentVersionStaleRevisionConflicts(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)
	ctx := context.Background()

	_, err := svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", saveInputFrom(baseSnapshot()))
	require.NoError(t, err, "first save")

	stale := saveInputFrom(baseSnapshot())
	stale.PropertyDetails.Market = "Durham"
	_, err = svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", stale)
	requireKind(t, err, deal.KindConflict)
	assert.Contains(t, err.Error(), "Revision mismatch detected. Reload latest data.")
	assert.Equal(t, 1, fs.auditCount(), "conflicting save must not audit")

	current, err := svc.GetVersion(ctx, "property-1", "1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, current.Revision)
	assert.Equal(t, "Charlotte", current.PropertyDetails.Market, "conflicting save leaked state")
}

func TestSaveCurrentVersionRequiresRevisionAndRosters(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name    string
		mutate  func(in *SaveVersionInput)
		message string
	}{
		{
			name:    "missing revision",
			mutate:  func(in *SaveVersionInput) { in.ExpectedRevision = nil },
			message: "expectedRevision is required",
		},
		{
			name:    "negative revision",
			mutate:  func(in *SaveVersionInput) { in.ExpectedRevision = revision(-1) },
			message: "expectedRevision must be a non-negative integer",
		},
		{
			name:    "missing brokers",
			mutate:  func(in *SaveVersionInput) { in.Brokers = nil },
			message: "brokers and tenants are required",
		},
		{
			name:    "missing tenants",
			mutate:  func(in *SaveVersionInput) { in.Tenants = nil },
			message: "brokers and tenants are required",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := newFakeStore(baseSnapshot())
			svc := newTestService(fs)

			in := saveInputFrom(baseSnapshot())
			tc.mutate(&in)
			_, err := svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", in)
			requireKind(t, err, deal.KindValidation)
			assert.Contains(t, err.Error(), tc.message)

			current, err := svc.GetVersion(ctx, "property-1", "1.1")
			require.NoError(t, err)
			assert.Zero(t, current.Revision)
			assert.Len(t, current.Brokers, 1, "roster must survive a rejected save")
			assert.Zero(t, fs.auditCount())
		})
	}
}

func TestSaveCurrentVersionAcceptsEmptyRosters(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))

	in := saveInputFrom(baseSnapshot())
	in.Brokers = []deal.Broker{}
	updated, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", in)
	require.NoError(t, err)
	assert.Empty(t, updated.Brokers)
}

func TestSaveCurrentVersionRejectsHistorical(t *testing.T) {
	snap := baseSnapshot()
	snap.IsHistorical = true
	snap.IsLatest = false
	svc := newTestService(newFakeStore(snap))

	_, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", saveInputFrom(snap))
	requireKind(t, err, deal.KindConflict)
	assert.Contains(t, err.Error(), "Historical versions are read-only")
}

func TestSaveCurrentVersionRejectsAddressChange(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)

	in := saveInputFrom(baseSnapshot())
	in.PropertyDetails.Address = "1 Elsewhere Rd"
	_, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", in)
	requireKind(t, err, deal.KindValidation)
	assert.Zero(t, fs.auditCount(), "rejected save must not audit")
}

func TestSaveCurrentVersionRejectsOversubscribedSpace(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))

	in := saveInputFrom(baseSnapshot())
	in.Tenants[0].SquareFeet = 1100
	_, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", in)
	requireKind(t, err, deal.KindValidation)
}

func TestSaveCurrentVersionRejectsVacantImpersonation(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))

	in := saveInputFrom(baseSnapshot())
	in.Tenants = append(in.Tenants, deal.Tenant{ID: deal.VacantTenantID, TenantName: "Sneaky", SquareFeet: 10, LeaseStart: "2025-01-02", LeaseEnd: "2026-01-01"})
	_, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", in)
	requireKind(t, err, deal.KindValidation)
}

func TestSaveCurrentVersionRequiresActor(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))
	_, err := svc.SaveCurrentVersion(context.Background(), "  ", "property-1", "1.1", saveInputFrom(baseSnapshot()))
	requireKind(t, err, deal.KindValidation)
}

func TestConcurrentSavesFirstWriterWins(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)

	const writers = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, conflicted := 0, 0
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := saveInputFrom(baseSnapshot())
			in.PropertyDetails.Market = "Market " + string(rune('A'+i))
			_, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", in)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, deal.ErrConflict):
				conflicted++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicted)
	assert.Equal(t, 1, fs.auditCount(), "exactly one audit entry")
	current, err := svc.GetVersion(context.Background(), "property-1", "1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, current.Revision)
}

func TestBrokerLifecycle(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)
	ctx := context.Background()

	created, err := svc.CreateBroker(ctx, analyst, "property-1", "1.1", 0, deal.BrokerInput{
		Name: "Dana Broker", Phone: "555-0100", Email: "dana@example.com", Company: "Acme",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, created.Revision)
	require.Len(t, created.Brokers, 2)
	newID := created.Brokers[1].ID
	assert.Regexp(t, `^broker-`, newID)

	name := "Dana B."
	updated, err := svc.UpdateBroker(ctx, analyst, "property-1", "1.1", newID, 1, deal.BrokerPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Dana B.", updated.Brokers[1].Name)
	assert.Equal(t, "dana@example.com", updated.Brokers[1].Email, "patch should only touch name")

	deleted, err := svc.SoftDeleteBroker(ctx, analyst, "property-1", "1.1", newID, 2)
	require.NoError(t, err)
	b := deleted.Brokers[1]
	assert.True(t, b.IsDeleted)
	assert.Equal(t, analyst, b.DeletedBy)
	require.NotNil(t, b.DeletedAt)
	assert.True(t, b.DeletedAt.Equal(testNow))

	_, err = svc.SoftDeleteBroker(ctx, analyst, "property-1", "1.1", newID, 3)
	requireKind(t, err, deal.KindValidation)

	_, err = svc.UpdateBroker(ctx, analyst, "property-1", "1.1", "broker-missing", 3, deal.BrokerPatch{Name: &name})
	requireKind(t, err, deal.KindNotFound)

	entries, _ := svc.ListAudit(ctx, "property-1", "1.1")
	wantActions := []deal.Action{deal.ActionDeleteBroker, deal.ActionUpdateBroker, deal.ActionCreateBroker}
	require.Len(t, entries, len(wantActions))
	for i, want := range wantActions {
		assert.Equal(t, want, entries[i].Action, "entry %d", i)
		assert.Equal(t, "brokers", entries[i].Changes[0].Field, "broker change is reported on the whole roster")
	}
}

func TestTenantLifecycleRederivesVacantSpace(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)
	ctx := context.Background()

	sf := 400.0
	updated, err := svc.UpdateTenant(ctx, analyst, "property-1", "1.1", "tenant-1", 0, deal.TenantPatch{SquareFeet: &sf})
	require.NoError(t, err)
	vacant := updated.Tenants[len(updated.Tenants)-1]
	assert.True(t, vacant.IsVacant)
	assert.Equal(t, 600.0, vacant.SquareFeet)

	created, err := svc.CreateTenant(ctx, analyst, "property-1", "1.1", 1, deal.TenantInput{
		TenantName: "Bakery", SquareFeet: 100, LeaseStart: "2025-02-01", LeaseEnd: "2028-01-01",
	})
	require.NoError(t, err)
	require.Len(t, created.Tenants, 3)
	assert.Equal(t, deal.VacantTenantID, created.Tenants[2].ID, "vacant row must stay last")
	assert.Equal(t, 500.0, created.Tenants[2].SquareFeet)

	deleted, err := svc.SoftDeleteTenant(ctx, analyst, "property-1", "1.1", "tenant-1", 2)
	require.NoError(t, err)
	assert.Equal(t, 900.0, deleted.Tenants[len(deleted.Tenants)-1].SquareFeet, "deleted tenant space returns to vacant")
	assert.True(t, deleted.Tenants[0].IsDeleted)
	assert.Equal(t, analyst, deleted.Tenants[0].DeletedBy)
}

func TestTenantRulesRejectBadMutations(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))
	ctx := context.Background()

	name := "Not vacant"
	_, err := svc.UpdateTenant(ctx, analyst, "property-1", "1.1", deal.VacantTenantID, 0, deal.TenantPatch{TenantName: &name})
	requireKind(t, err, deal.KindValidation)

	_, err = svc.SoftDeleteTenant(ctx, analyst, "property-1", "1.1", deal.VacantTenantID, 0)
	requireKind(t, err, deal.KindValidation)

	_, err = svc.SoftDeleteBroker(ctx, analyst, "property-1", "1.1", deal.VacantTenantID, 0)
	requireKind(t, err, deal.KindValidation)

	_, err = svc.CreateTenant(ctx, analyst, "property-1", "1.1", 0, deal.TenantInput{
		TenantName: "Too big", SquareFeet: 800, LeaseStart: "2025-02-01", LeaseEnd: "2026-01-01",
	})
	requireKind(t, err, deal.KindValidation)

	_, err = svc.CreateTenant(ctx, analyst, "property-1", "1.1", 0, deal.TenantInput{
		TenantName: "Too early", SquareFeet: 10, LeaseStart: "2024-12-31", LeaseEnd: "2026-01-01",
	})
	requireKind(t, err, deal.KindValidation)

	end := "2031-01-03"
	_, err = svc.UpdateTenant(ctx, analyst, "property-1", "1.1", "tenant-1", 0, deal.TenantPatch{LeaseEnd: &end})
	requireKind(t, err, deal.KindValidation)

	_, err = svc.UpdateTenant(ctx, analyst, "property-1", "1.1", "tenant-404", 0, deal.TenantPatch{TenantName: &name})
	requireKind(t, err, deal.KindNotFound)
}

func TestRosterMutationWithStaleRevisionConflicts(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)

	_, err := svc.CreateBroker(context.Background(), analyst, "property-1", "1.1", 5, deal.BrokerInput{
		Name: "Late", Phone: "1", Email: "late@example.com", Company: "Slow",
	})
	requireKind(t, err, deal.KindConflict)
	assert.Zero(t, fs.auditCount(), "conflict must not audit")
}

func versionAt(version string, revision int, latest bool) deal.Snapshot {
	snap := baseSnapshot()
	snap.Version = version
	snap.Revision = revision
	snap.IsLatest = latest
	snap.IsHistorical = !latest
	return snap
}

func TestSaveAsCopiesSourceAndHistoricalizesLatest(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	svc := newTestService(fs)
	ctx := context.Background()

	created, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{ExpectedRevision: revision(0)})
	require.NoError(t, err)
	assert.Equal(t, "1.2", created.Version)
	assert.Zero(t, created.Revision)
	assert.True(t, created.IsLatest)
	assert.False(t, created.IsHistorical)
	assert.Equal(t, baseSnapshot().PropertyDetails, created.PropertyDetails, "fork without a draft copies the source")
	assert.Len(t, created.Tenants, 2)

	source, err := svc.GetVersion(ctx, "property-1", "1.1")
	require.NoError(t, err)
	assert.True(t, source.IsHistorical)
	assert.False(t, source.IsLatest)
	assert.Zero(t, source.Revision, "fork must not change the source revision")

	_, err = svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", saveInputFrom(source))
	requireKind(t, err, deal.KindConflict)

	entries, _ := svc.ListAudit(ctx, "property-1", "1.2")
	require.Len(t, entries, 1, "one audit entry on the new version")
	assert.Equal(t, deal.ActionSaveAs, entries[0].Action)
	assert.Zero(t, entries[0].Revision)
	assert.Equal(t, []deal.Change{{Field: "version", OldValue: "1.1", NewValue: "1.2"}}, entries[0].Changes)

	sourceEntries, _ := svc.ListAudit(ctx, "property-1", "1.1")
	assert.Empty(t, sourceEntries, "source version must not be audited")
}

func TestSaveAsFromHistoricalUsesHighestLabel(t *testing.T) {
	fs := newFakeStore(
		versionAt("1.1", 2, false),
		versionAt("1.3", 0, true),
		versionAt("1.2", 1, false),
	)
	svc := newTestService(fs)
	ctx := context.Background()

	created, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{ExpectedRevision: revision(2)})
	require.NoError(t, err)
	assert.Equal(t, "1.4", created.Version)

	versions, err := svc.ListVersions(ctx, "property-1")
	require.NoError(t, err)
	var latest []string
	for _, v := range versions {
		if v.IsLatest {
			latest = append(latest, v.Version)
		}
	}
	assert.Equal(t, []string{"1.4"}, latest, "exactly one latest version")
}

func TestSaveAsWithDraft(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))
	ctx := context.Background()

	source := baseSnapshot()
	details := source.PropertyDetails
	details.Market = "Raleigh"
	inputs := source.UnderwritingInputs
	brokers := source.Content.Clone().Brokers
	tenants := source.Content.Clone().Tenants

	created, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{
		ExpectedRevision:   revision(0),
		PropertyDetails:    &details,
		UnderwritingInputs: &inputs,
		Brokers:            &brokers,
		Tenants:            &tenants,
	})
	require.NoError(t, err)
	assert.Equal(t, "Raleigh", created.PropertyDetails.Market, "draft was not applied")

	source, err = svc.GetVersion(ctx, "property-1", "1.1")
	require.NoError(t, err)
	assert.Equal(t, "Charlotte", source.PropertyDetails.Market, "draft must not touch the source")
}

func TestSaveAsRejections(t *testing.T) {
	ctx := context.Background()
	source := baseSnapshot()

	t.Run("missing revision", func(t *testing.T) {
		fs := newFakeStore(baseSnapshot())
		svc := newTestService(fs)
		_, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{})
		requireKind(t, err, deal.KindValidation)
		assert.Contains(t, err.Error(), "expectedRevision is required")
		count, _ := fs.CountVersions(ctx)
		assert.Equal(t, 1, count, "rejected fork created a version")
	})

	t.Run("stale revision", func(t *testing.T) {
		fs := newFakeStore(baseSnapshot())
		svc := newTestService(fs)
		_, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{ExpectedRevision: revision(3)})
		requireKind(t, err, deal.KindConflict)
		count, _ := fs.CountVersions(ctx)
		assert.Equal(t, 1, count, "conflicting fork created a version")
	})

	t.Run("partial draft", func(t *testing.T) {
		svc := newTestService(newFakeStore(baseSnapshot()))
		details := source.PropertyDetails
		_, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{ExpectedRevision: revision(0), PropertyDetails: &details})
		requireKind(t, err, deal.KindValidation)
		assert.Contains(t, err.Error(), msgSaveAsDraftIncomplete)
	})

	t.Run("address change", func(t *testing.T) {
		svc := newTestService(newFakeStore(baseSnapshot()))
		details := source.PropertyDetails
		details.Address = "1 Elsewhere Rd"
		inputs := source.UnderwritingInputs
		brokers := source.Content.Clone().Brokers
		tenants := source.Content.Clone().Tenants
		_, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{
			ExpectedRevision: revision(0),
			PropertyDetails:  &details, UnderwritingInputs: &inputs, Brokers: &brokers, Tenants: &tenants,
		})
		requireKind(t, err, deal.KindValidation)
	})

	t.Run("malformed label in lineage", func(t *testing.T) {
		svc := newTestService(newFakeStore(baseSnapshot(), versionAt("draft", 0, false)))
		_, err := svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{ExpectedRevision: revision(0)})
		requireKind(t, err, deal.KindValidation)
		assert.Contains(t, err.Error(), "Invalid version format: draft")
	})

	t.Run("unknown source", func(t *testing.T) {
		svc := newTestService(newFakeStore())
		_, err := svc.SaveAsNextVersion(ctx, analyst, "property-9", "1.1", SaveAsInput{ExpectedRevision: revision(0)})
		requireKind(t, err, deal.KindNotFound)
	})
}

func TestAuditFallsBackToSpoolAndReplays(t *testing.T) {
	mr := miniredis.RunT(t)
	sp, err := spool.NewRedisSpool("redis://" + mr.Addr())
	require.NoError(t, err)
	defer sp.Close()

	fs := newFakeStore(baseSnapshot())
	fs.insertAuditFn = func(context.Context, deal.AuditEntry) error { return errors.New("audit table unavailable") }
	svc := newTestService(fs, WithSpool(sp))
	ctx := context.Background()

	in := saveInputFrom(baseSnapshot())
	in.PropertyDetails.Market = "Raleigh"
	updated, err := svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", in)
	require.NoError(t, err, "spooled audit must not fail the save")
	assert.Equal(t, 1, updated.Revision)
	n, err := sp.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	fs.insertAuditFn = nil
	replayed, err := sp.Drain(ctx, 10, svc.ReplayAudit)
	require.NoError(t, err)
	assert.Equal(t, 1, replayed)

	entries, _ := svc.ListAudit(ctx, "property-1", "1.1")
	require.Len(t, entries, 1)
	assert.Equal(t, "Raleigh", entries[0].Changes[0].NewValue)

	require.NoError(t, svc.ReplayAudit(ctx, entries[0]), "second replay")
	assert.Equal(t, 1, fs.auditCount(), "replay must be idempotent")
}

func TestAuditWriteFailureStillReturnsCommittedSnapshot(t *testing.T) {
	fs := newFakeStore(baseSnapshot())
	fs.insertAuditFn = func(context.Context, deal.AuditEntry) error { return errors.New("audit table unavailable") }
	svc := newTestService(fs)

	updated, err := svc.SaveCurrentVersion(context.Background(), analyst, "property-1", "1.1", saveInputFrom(baseSnapshot()))
	var auditErr *AuditWriteError
	require.ErrorAs(t, err, &auditErr)
	assert.Equal(t, 1, auditErr.Revision)
	assert.Equal(t, deal.ActionUpdateVersion, auditErr.Action)
	assert.Equal(t, 1, updated.Revision, "committed snapshot should be returned")
	_, ok := deal.KindOf(err)
	assert.False(t, ok, "audit failure must not look like a domain error")
}

func TestCommitHooksIndexMirrorAndArchive(t *testing.T) {
	indexer := &recordingIndexer{}
	archived := &recordingArchive{}
	repo := mirror.New(t.TempDir())
	svc := newTestService(newFakeStore(baseSnapshot()),
		WithSearch(indexer), WithArchive(archived), WithMirror(repo))
	ctx := context.Background()

	in := saveInputFrom(baseSnapshot())
	in.PropertyDetails.Market = "Raleigh"
	_, err := svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", in)
	require.NoError(t, err)
	_, err = svc.SaveAsNextVersion(ctx, analyst, "property-1", "1.1", SaveAsInput{ExpectedRevision: revision(1)})
	require.NoError(t, err)

	indexed := map[string]int{}
	for _, snap := range indexer.indexed {
		indexed[snap.Version]++
	}
	assert.Equal(t, map[string]int{"1.1": 2, "1.2": 1}, indexed)
	require.Len(t, archived.puts, 1, "the historicalized source is archived")
	assert.Equal(t, "1.1", archived.puts[0].Version)
	assert.True(t, archived.puts[0].IsHistorical)

	frozen, err := svc.ArchivedVersion(ctx, "property-1", "1.1")
	require.NoError(t, err)
	assert.Equal(t, "Raleigh", frozen.PropertyDetails.Market)
	assert.Equal(t, 1, frozen.Revision)

	_, err = svc.ArchivedVersion(ctx, "property-1", "1.2")
	requireKind(t, err, deal.KindNotFound)

	history, err := svc.History("property-1", "1.1", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Contains(t, history[0].Message, "UPDATE_VERSION")

	resp := svc.Search(ctx, search.Query{Text: "charlotte"})
	assert.Equal(t, "test", resp.Source, "search goes through the indexer")
	assert.Equal(t, 1, resp.Total)
}

func TestOptionalSideChannelsReportDisabled(t *testing.T) {
	svc := newTestService(newFakeStore(baseSnapshot()))
	var domainErr *DomainError

	_, err := svc.History("property-1", "1.1", 10)
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "MIRROR_DISABLED", domainErr.Code)

	_, err = svc.ArchivedVersion(context.Background(), "property-1", "1.1")
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ARCHIVE_DISABLED", domainErr.Code)
}

func TestBootstrapSeedsOnce(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	require.NoError(t, svc.Bootstrap(ctx))
	seeded, err := svc.GetVersion(ctx, "property-1", "1.1")
	require.NoError(t, err, "seed missing")
	assert.True(t, seeded.IsLatest)
	assert.Zero(t, seeded.Revision)
	assert.True(t, seeded.Tenants[len(seeded.Tenants)-1].IsVacant, "seed roster ends with the vacant row")

	_, err = svc.SaveCurrentVersion(ctx, analyst, "property-1", "1.1", saveInputFrom(seeded))
	require.NoError(t, err, "seed should pass every save rule")
	require.NoError(t, svc.Bootstrap(ctx))

	again, err := svc.GetVersion(ctx, "property-1", "1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Revision, "bootstrap must not overwrite existing data")
}
