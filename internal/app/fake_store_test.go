package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"dealdesk/api/internal/config"
	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/store"
)

var testNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

// fakeStore keeps versions in memory. Its conditional commit holds a mutex
// for the compare and the write, which is the property the database
// guarantees with a single guarded UPDATE.
type fakeStore struct {
	mu       sync.Mutex
	versions map[string]deal.Snapshot
	audit    []deal.AuditEntry

	pingFn        func(context.Context) error
	insertAuditFn func(context.Context, deal.AuditEntry) error
	commitFn      func(context.Context, store.CommitParams) (deal.Snapshot, error)
}

func newFakeStore(snaps ...deal.Snapshot) *fakeStore {
	f := &fakeStore{versions: map[string]deal.Snapshot{}}
	for _, snap := range snaps {
		f.versions[versionKey(snap.PropertyID, snap.Version)] = snap
	}
	return f
}

func versionKey(propertyID, version string) string {
	return propertyID + "@" + version
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) FindVersion(_ context.Context, propertyID, version string) (deal.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.versions[versionKey(propertyID, version)]
	if !ok {
		return deal.Snapshot{}, store.ErrNotFound
	}
	snap.Content = snap.Content.Clone()
	return snap, nil
}

func (f *fakeStore) ListVersions(_ context.Context, propertyID string) ([]deal.VersionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []deal.VersionSummary{}
	for _, snap := range f.versions {
		if snap.PropertyID == propertyID {
			out = append(out, snap.Summary())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (f *fakeStore) CountVersions(context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.versions), nil
}

func (f *fakeStore) InsertVersion(_ context.Context, snap deal.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[versionKey(snap.PropertyID, snap.Version)] = snap
	return nil
}

func (f *fakeStore) CommitVersion(ctx context.Context, p store.CommitParams) (deal.Snapshot, error) {
	if f.commitFn != nil {
		return f.commitFn(ctx, p)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	key := versionKey(p.PropertyID, p.Version)
	snap, ok := f.versions[key]
	if !ok || snap.IsHistorical || snap.Revision != p.ExpectedRevision {
		return deal.Snapshot{}, store.ErrRevisionConflict
	}
	snap.Revision++
	snap.Content = p.Content.Clone()
	snap.UpdatedBy = p.UpdatedBy
	snap.UpdatedAt = p.Now
	f.versions[key] = snap
	return snap, nil
}

func (f *fakeStore) ForkVersion(_ context.Context, p store.ForkParams) (store.ForkResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var labels []string
	for _, snap := range f.versions {
		if snap.PropertyID == p.PropertyID {
			labels = append(labels, snap.Version)
		}
	}
	source, ok := f.versions[versionKey(p.PropertyID, p.SourceVersion)]
	if !ok {
		return store.ForkResult{}, store.ErrNotFound
	}
	if source.Revision != p.ExpectedRevision {
		return store.ForkResult{}, store.ErrRevisionConflict
	}
	next, err := p.NextVersion(labels)
	if err != nil {
		return store.ForkResult{}, err
	}

	var historicalized []string
	for key, snap := range f.versions {
		if snap.PropertyID == p.PropertyID && snap.IsLatest {
			snap.IsLatest = false
			snap.IsHistorical = true
			snap.UpdatedAt = p.Now
			f.versions[key] = snap
			historicalized = append(historicalized, snap.Version)
		}
	}
	created := deal.Snapshot{
		PropertyID: p.PropertyID,
		Version:    next,
		IsLatest:   true,
		UpdatedBy:  p.UpdatedBy,
		CreatedAt:  p.Now,
		UpdatedAt:  p.Now,
		Content:    p.Content.Clone(),
	}
	f.versions[versionKey(p.PropertyID, next)] = created
	return store.ForkResult{Snapshot: created, Historicalized: historicalized}, nil
}

func (f *fakeStore) InsertAudit(ctx context.Context, entry deal.AuditEntry) error {
	if f.insertAuditFn != nil {
		if err := f.insertAuditFn(ctx, entry); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.audit {
		if existing.ID == entry.ID {
			return nil
		}
	}
	f.audit = append(f.audit, entry)
	return nil
}

func (f *fakeStore) ListAudit(_ context.Context, propertyID, version string) ([]deal.AuditEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []deal.AuditEntry{}
	for i := len(f.audit) - 1; i >= 0; i-- {
		if f.audit[i].PropertyID == propertyID && f.audit[i].Version == version {
			out = append(out, f.audit[i])
		}
	}
	return out, nil
}

func (f *fakeStore) auditCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audit)
}

func testConfig() config.Config {
	return config.Config{
		DefaultActor: "mock.user@assessment.local",
		TokenSecret:  "test-secret",
	}
}

func newTestService(fs *fakeStore, opts ...Option) *Service {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(testConfig(), fs, opts...)
}

// baseSnapshot is an editable version whose roster already satisfies every
// space rule.
func baseSnapshot() deal.Snapshot {
	content := deal.Content{
		PropertyDetails: deal.PropertyDetails{
			Address:        "504 N Ashe Ave, Dunn, NC 28334",
			Market:         "Charlotte",
			BuildingSizeSf: 1000,
		},
		UnderwritingInputs: deal.UnderwritingInputs{
			EstStartDate:    "2025-01-01",
			HoldPeriodYears: 5,
		},
		Brokers: []deal.Broker{
			{ID: "broker-1", Name: "Ashay Kandylia", Phone: "555", Email: "a@example.com", Company: "Agile"},
		},
		Tenants: []deal.Tenant{
			{ID: "tenant-1", TenantName: "Pizza", SquareFeet: 300, RentPsf: 18, LeaseStart: "2025-01-02", LeaseEnd: "2027-01-01"},
		},
	}
	content.Tenants = deal.NormalizeTenants(content.Tenants, content.PropertyDetails.BuildingSizeSf, testNow)
	return deal.Snapshot{
		PropertyID: "property-1",
		Version:    "1.1",
		Revision:   0,
		IsLatest:   true,
		UpdatedBy:  "seed",
		CreatedAt:  testNow.Add(-time.Hour),
		UpdatedAt:  testNow.Add(-time.Hour),
		Content:    content,
	}
}

func revision(n int) *int {
	return &n
}

func saveInputFrom(snap deal.Snapshot) SaveVersionInput {
	c := snap.Content.Clone()
	return SaveVersionInput{
		ExpectedRevision:   revision(snap.Revision),
		PropertyDetails:    c.PropertyDetails,
		UnderwritingInputs: c.UnderwritingInputs,
		Brokers:            c.Brokers,
		Tenants:            c.Tenants,
	}
}
