package deal

import "time"

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 890_000_000, time.UTC)

func sampleContent() Content {
	return Content{
		PropertyDetails: PropertyDetails{
			Address:        "504 N Ashe Ave, Dunn, NC 28334",
			Market:         "Charlotte",
			PropertyType:   "Industrial",
			BuildingSizeSf: 1000,
		},
		UnderwritingInputs: UnderwritingInputs{
			EstStartDate:    "2025-01-01",
			HoldPeriodYears: 5,
		},
		Brokers: []Broker{
			{ID: "broker-1", Name: "Ashay", Phone: "555", Email: "a@example.com", Company: "Agile"},
		},
		Tenants: []Tenant{
			{ID: "tenant-1", TenantName: "Pizza", SquareFeet: 300, RentPsf: 18, LeaseStart: "2025-01-02", LeaseEnd: "2027-01-01"},
			{ID: VacantTenantID, TenantName: "VACANT", SquareFeet: 700, LeaseStart: "2025-01-02", LeaseEnd: "2027-01-01", IsVacant: true},
		},
	}
}
