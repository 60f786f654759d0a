// Package deal holds the property version aggregate and the pure rules that
// govern it: tenant space accounting, payload identity, audit diffs and
// version label arithmetic. Nothing in here performs I/O.
package deal

import "time"

// VacantTenantID is the reserved id of the system-managed vacant space row.
const VacantTenantID = "vacant-row"

type PropertyDetails struct {
	Address           string  `json:"address" validate:"required"`
	Market            string  `json:"market"`
	SubMarket         string  `json:"subMarket"`
	PropertyType      string  `json:"propertyType"`
	PropertySubType   string  `json:"propertySubType"`
	Zoning            string  `json:"zoning"`
	ZoningDetails     string  `json:"zoningDetails"`
	ListingType       string  `json:"listingType"`
	BusinessPlan      string  `json:"businessPlan"`
	SellerType        string  `json:"sellerType"`
	LastTradePrice    float64 `json:"lastTradePrice" validate:"gte=0"`
	LastTradeDate     string  `json:"lastTradeDate"`
	AskingPrice       float64 `json:"askingPrice" validate:"gte=0"`
	BidAmount         float64 `json:"bidAmount" validate:"gte=0"`
	YearOneCapRate    float64 `json:"yearOneCapRate"`
	StabilizedCapRate float64 `json:"stabilizedCapRate"`
	Vintage           int     `json:"vintage" validate:"gte=0"`
	BuildingSizeSf    float64 `json:"buildingSizeSf" validate:"gte=0"`
	WarehouseSf       float64 `json:"warehouseSf" validate:"gte=0"`
	OfficeSf          float64 `json:"officeSf" validate:"gte=0"`
	PropertySizeAcres float64 `json:"propertySizeAcres" validate:"gte=0"`
	CoverageRatio     float64 `json:"coverageRatio" validate:"gte=0"`
	OutdoorStorage    string  `json:"outdoorStorage"`
	ConstructionType  string  `json:"constructionType"`
	ClearHeightFt     float64 `json:"clearHeightFt" validate:"gte=0"`
	DockDoors         int     `json:"dockDoors" validate:"gte=0"`
	DriveInDoors      int     `json:"driveInDoors" validate:"gte=0"`
	HeavyPower        string  `json:"heavyPower"`
	SprinklerType     string  `json:"sprinklerType"`
}

type UnderwritingInputs struct {
	ListPrice              float64 `json:"listPrice" validate:"gte=0"`
	Bid                    float64 `json:"bid" validate:"gte=0"`
	GPEquityStack          float64 `json:"gpEquityStack"`
	LPEquityStack          float64 `json:"lpEquityStack"`
	AcqFee                 float64 `json:"acqFee"`
	AMFee                  float64 `json:"amFee"`
	Promote                float64 `json:"promote"`
	PrefHurdle             float64 `json:"prefHurdle"`
	PropMgmtFee            float64 `json:"propMgmtFee"`
	EstStartDate           string  `json:"estStartDate" validate:"required"`
	HoldPeriodYears        int     `json:"holdPeriodYears" validate:"gte=0"`
	ClosingCostsPct        float64 `json:"closingCostsPct"`
	SaleCostsPct           float64 `json:"saleCostsPct"`
	VacancyPct             float64 `json:"vacancyPct"`
	AnnualCapexReservesPct float64 `json:"annualCapexReservesPct"`
	AnnualAdminExpPct      float64 `json:"annualAdminExpPct"`
	ExpenseInflationPct    float64 `json:"expenseInflationPct"`
	ExitCapRate            float64 `json:"exitCapRate"`
}

type Broker struct {
	ID        string     `json:"id" validate:"required"`
	Name      string     `json:"name" validate:"required"`
	Phone     string     `json:"phone" validate:"required"`
	Email     string     `json:"email" validate:"required,email"`
	Company   string     `json:"company" validate:"required"`
	IsDeleted bool       `json:"isDeleted"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
	DeletedBy string     `json:"deletedBy,omitempty"`
}

type Tenant struct {
	ID                string     `json:"id" validate:"required"`
	TenantName        string     `json:"tenantName" validate:"required"`
	CreditType        string     `json:"creditType"`
	SquareFeet        float64    `json:"squareFeet" validate:"gte=0"`
	RentPsf           float64    `json:"rentPsf" validate:"gte=0"`
	AnnualEscalations float64    `json:"annualEscalations" validate:"gte=0"`
	LeaseStart        string     `json:"leaseStart" validate:"required"`
	LeaseEnd          string     `json:"leaseEnd" validate:"required"`
	LeaseType         string     `json:"leaseType"`
	Renew             string     `json:"renew"`
	DowntimeMonths    int        `json:"downtimeMonths" validate:"gte=0"`
	TIPsf             float64    `json:"tiPsf" validate:"gte=0"`
	LCPsf             float64    `json:"lcPsf" validate:"gte=0"`
	IsVacant          bool       `json:"isVacant"`
	IsDeleted         bool       `json:"isDeleted"`
	DeletedAt         *time.Time `json:"deletedAt,omitempty"`
	DeletedBy         string     `json:"deletedBy,omitempty"`
}

// Content is the mutable part of a version: everything a save replaces.
type Content struct {
	PropertyDetails    PropertyDetails    `json:"propertyDetails"`
	UnderwritingInputs UnderwritingInputs `json:"underwritingInputs"`
	Brokers            []Broker           `json:"brokers" validate:"dive"`
	Tenants            []Tenant           `json:"tenants" validate:"dive"`
}

// Snapshot is one member of a property's lineage together with its children.
type Snapshot struct {
	PropertyID   string    `json:"propertyId"`
	Version      string    `json:"version"`
	Revision     int       `json:"revision"`
	IsLatest     bool      `json:"isLatest"`
	IsHistorical bool      `json:"isHistorical"`
	UpdatedBy    string    `json:"updatedBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Content
}

// VersionSummary is the listing projection of a Snapshot.
type VersionSummary struct {
	PropertyID   string    `json:"propertyId"`
	Version      string    `json:"version"`
	Revision     int       `json:"revision"`
	IsLatest     bool      `json:"isLatest"`
	IsHistorical bool      `json:"isHistorical"`
	UpdatedBy    string    `json:"updatedBy"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (s Snapshot) Summary() VersionSummary {
	return VersionSummary{
		PropertyID:   s.PropertyID,
		Version:      s.Version,
		Revision:     s.Revision,
		IsLatest:     s.IsLatest,
		IsHistorical: s.IsHistorical,
		UpdatedBy:    s.UpdatedBy,
		UpdatedAt:    s.UpdatedAt,
	}
}

type Action string

const (
	ActionUpdateVersion Action = "UPDATE_VERSION"
	ActionSaveAs        Action = "SAVE_AS"
	ActionCreateBroker  Action = "CREATE_BROKER"
	ActionUpdateBroker  Action = "UPDATE_BROKER"
	ActionDeleteBroker  Action = "DELETE_BROKER"
	ActionCreateTenant  Action = "CREATE_TENANT"
	ActionUpdateTenant  Action = "UPDATE_TENANT"
	ActionDeleteTenant  Action = "DELETE_TENANT"
)

// AuditEntry is an immutable record of one accepted mutation.
type AuditEntry struct {
	ID                string    `json:"id"`
	PropertyID        string    `json:"propertyId"`
	Version           string    `json:"version"`
	Revision          int       `json:"revision"`
	UpdatedBy         string    `json:"updatedBy"`
	Action            Action    `json:"action"`
	Changes           []Change  `json:"changes"`
	ChangedFieldCount int       `json:"changedFieldCount"`
	CreatedAt         time.Time `json:"createdAt"`
}

func cloneBrokers(in []Broker) []Broker {
	out := make([]Broker, len(in))
	copy(out, in)
	return out
}

func cloneTenants(in []Tenant) []Tenant {
	out := make([]Tenant, len(in))
	copy(out, in)
	return out
}

// Clone returns a copy whose child slices can be modified independently.
func (c Content) Clone() Content {
	c.Brokers = cloneBrokers(c.Brokers)
	c.Tenants = cloneTenants(c.Tenants)
	return c
}
