package deal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTenantsDerivesVacantSpace(t *testing.T) {
	tenants := []Tenant{
		{ID: "t1", SquareFeet: 300, LeaseStart: "2025-01-02", LeaseEnd: "2027-01-01"},
	}

	out := NormalizeTenants(tenants, 1000, fixedNow)
	require.Len(t, out, 2)
	vacant := out[1]
	assert.Equal(t, VacantTenantID, vacant.ID)
	assert.True(t, vacant.IsVacant)
	assert.Equal(t, 700.0, vacant.SquareFeet)
	assert.Equal(t, "VACANT", vacant.TenantName)
	assert.Equal(t, "N/A", vacant.CreditType)
	assert.Equal(t, "N/A", vacant.LeaseType)
	assert.Equal(t, "N/A", vacant.Renew)
	assert.Zero(t, vacant.RentPsf)
	assert.Equal(t, "2025-01-02", vacant.LeaseStart)
	assert.Equal(t, "2027-01-01", vacant.LeaseEnd)
}

func TestNormalizeTenantsDropsCallerVacantRowsAndKeepsOrder(t *testing.T) {
	tenants := []Tenant{
		{ID: "b", SquareFeet: 100, LeaseStart: "2026-01-01", LeaseEnd: "2027-01-01"},
		{ID: VacantTenantID, SquareFeet: 12345, IsVacant: true},
		{ID: "a", SquareFeet: 50, IsDeleted: true},
		{ID: "other-vacant", IsVacant: true},
	}

	out := NormalizeTenants(tenants, 1000, fixedNow)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].ID)
	assert.Equal(t, "a", out[1].ID)
	assert.Equal(t, VacantTenantID, out[2].ID)
	assert.Equal(t, 900.0, out[2].SquareFeet, "deleted rows do not occupy space")
	assert.Equal(t, "2026-01-01", out[2].LeaseStart)
}

func TestNormalizeTenantsClampsVacantSpaceAtZero(t *testing.T) {
	out := NormalizeTenants([]Tenant{{ID: "t1", SquareFeet: 1100}}, 1000, fixedNow)
	assert.Zero(t, out[len(out)-1].SquareFeet)
}

func TestNormalizeTenantsWithoutActiveRowsFallsBackToNow(t *testing.T) {
	out := NormalizeTenants(nil, 500, fixedNow)
	require.Len(t, out, 1)
	assert.Equal(t, 500.0, out[0].SquareFeet)
	assert.Equal(t, "2026-03-04T05:06:07.890Z", out[0].LeaseStart)
	assert.Equal(t, out[0].LeaseStart, out[0].LeaseEnd)
}

func TestValidateSpaceRejectsOverAllocation(t *testing.T) {
	tenants := NormalizeTenants([]Tenant{
		{ID: "t1", SquareFeet: 600, LeaseStart: "2025-02-01", LeaseEnd: "2026-01-01"},
		{ID: "t2", SquareFeet: 500, LeaseStart: "2025-02-01", LeaseEnd: "2026-01-01"},
	}, 1000, fixedNow)

	err := ValidateSpace(1000, "2025-01-01", 5, tenants)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestValidateSpaceLeaseWindow(t *testing.T) {
	tests := []struct {
		name    string
		hold    int
		start   string
		end     string
		wantErr bool
	}{
		{name: "inside window", hold: 5, start: "2025-01-02", end: "2027-01-01"},
		{name: "ends exactly at hold", hold: 1, start: "2025-01-02", end: "2026-01-02"},
		{name: "ends past hold", hold: 1, start: "2025-01-02", end: "2030-01-01", wantErr: true},
		{name: "starts before property", hold: 5, start: "2024-12-31", end: "2025-06-01", wantErr: true},
		{name: "timestamp lease dates", hold: 2, start: "2025-03-01T00:00:00.000Z", end: "2027-03-01T00:00:00.000Z"},
		{name: "unparseable start", hold: 5, start: "soon", end: "2026-01-01", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tenants := []Tenant{{ID: "t1", SquareFeet: 10, LeaseStart: tc.start, LeaseEnd: tc.end}}
			err := ValidateSpace(1000, "2025-01-01", tc.hold, tenants)
			if tc.wantErr {
				require.Error(t, err)
				kind, ok := KindOf(err)
				require.True(t, ok)
				assert.Equal(t, KindValidation, kind)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSpaceIgnoresDeletedAndVacantRows(t *testing.T) {
	tenants := []Tenant{
		{ID: "old", SquareFeet: 5000, LeaseStart: "1999-01-01", LeaseEnd: "2099-01-01", IsDeleted: true},
		{ID: VacantTenantID, SquareFeet: 5000, LeaseStart: "1999-01-01", LeaseEnd: "2099-01-01", IsVacant: true},
	}
	assert.NoError(t, ValidateSpace(1000, "2025-01-01", 1, tenants))
}

func TestPrepareContentRejectsAddressChange(t *testing.T) {
	draft := sampleContent()
	draft.PropertyDetails.Address = "1 Elsewhere Rd"

	_, err := PrepareContent("504 N Ashe Ave, Dunn, NC 28334", draft, fixedNow)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestPrepareContentNormalizesRoster(t *testing.T) {
	draft := sampleContent()
	draft.Tenants[1].SquareFeet = 1
	draft.Tenants = append(draft.Tenants, Tenant{ID: "tenant-2", SquareFeet: 200, LeaseStart: "2025-06-01", LeaseEnd: "2028-01-01"})

	out, err := PrepareContent(draft.PropertyDetails.Address, draft, fixedNow)
	require.NoError(t, err)
	require.Len(t, out.Tenants, 3)
	assert.Equal(t, "tenant-2", out.Tenants[1].ID)
	assert.Equal(t, 500.0, out.Tenants[2].SquareFeet)
	assert.Len(t, draft.Tenants, 3, "draft is not modified")
}
