package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dealdesk/api/internal/deal"
	"dealdesk/api/internal/store"
)

const (
	seedPropertyID = "property-1"
	seedVersion    = "1.1"
)

// SeedSnapshot is the demo deal a fresh database starts with.
func SeedSnapshot(actor string, now time.Time) deal.Snapshot {
	details := deal.PropertyDetails{
		Address:           "504 N Ashe Ave 504 N Ashe Ave, Dunn, NC 28334",
		Market:            "Charlotte",
		SubMarket:         "Southwest Charlotte",
		PropertyType:      "Industrial",
		PropertySubType:   "Multi Tenant",
		Zoning:            "Light Industrial",
		ZoningDetails:     "M-1",
		ListingType:       "Broker Listed",
		BusinessPlan:      "Light Value Add",
		SellerType:        "Unsophisticated | Private Investor",
		LastTradePrice:    349583,
		LastTradeDate:     "2025-02-09",
		AskingPrice:       1250000,
		BidAmount:         1515000,
		YearOneCapRate:    5.8,
		StabilizedCapRate: 6.2,
		Vintage:           1989,
		BuildingSizeSf:    90012,
		WarehouseSf:       24512,
		OfficeSf:          13562,
		PropertySizeAcres: 34,
		CoverageRatio:     20,
		OutdoorStorage:    "Yes",
		ConstructionType:  "Hybrid",
		ClearHeightFt:     32,
		DockDoors:         12,
		DriveInDoors:      2,
		HeavyPower:        "Yes",
		SprinklerType:     "Wet",
	}
	tenants := []deal.Tenant{{
		ID:                "tenant-1",
		TenantName:        "Grandma's Pizza",
		CreditType:        "National",
		SquareFeet:        12000,
		RentPsf:           18,
		AnnualEscalations: 5,
		LeaseStart:        "2025-10-25",
		LeaseEnd:          "2030-10-25",
		LeaseType:         "NNN",
		Renew:             "Yes",
		DowntimeMonths:    2,
		TIPsf:             7,
		LCPsf:             2.5,
	}}

	return deal.Snapshot{
		PropertyID: seedPropertyID,
		Version:    seedVersion,
		Revision:   0,
		IsLatest:   true,
		UpdatedBy:  actor,
		CreatedAt:  now,
		UpdatedAt:  now,
		Content: deal.Content{
			PropertyDetails: details,
			UnderwritingInputs: deal.UnderwritingInputs{
				AcqFee:          10,
				Promote:         6,
				PrefHurdle:      30,
				EstStartDate:    "2020-10-25",
				HoldPeriodYears: 5,
				ClosingCostsPct: 5,
			},
			Brokers: []deal.Broker{{
				ID:      "broker-1",
				Name:    "Ashay Kandylia",
				Phone:   "+1 (555) 867-5309",
				Email:   "example@company.com",
				Company: "Agile Infoways",
			}},
			Tenants: deal.NormalizeTenants(tenants, details.BuildingSizeSf, now),
		},
	}
}

// Bootstrap inserts the demo deal unless it already exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	_, err := s.store.FindVersion(ctx, seedPropertyID, seedVersion)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	snap := SeedSnapshot(s.cfg.DefaultActor, s.now())
	if err := s.store.InsertVersion(ctx, snap); err != nil {
		return err
	}
	slog.Info("seeded property version", "property_id", snap.PropertyID, "version", snap.Version)
	if s.search != nil {
		s.search.IndexVersions(snap)
	}
	return nil
}
