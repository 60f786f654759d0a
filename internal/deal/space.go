package deal

import (
	"time"
)

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// NormalizeTenants returns the canonical roster: caller rows that are not
// vacant, in their original order, followed by one freshly derived vacant
// row covering the space not occupied by live tenants.
//
// With no active rows there is no lease window to inherit and the vacant row
// starts and ends at now.
func NormalizeTenants(tenants []Tenant, buildingSizeSf float64, now time.Time) []Tenant {
	active := make([]Tenant, 0, len(tenants)+1)
	for _, t := range tenants {
		if t.IsVacant {
			continue
		}
		active = append(active, t)
	}

	vacantSf := buildingSizeSf - OccupiedSf(active)
	if vacantSf < 0 {
		vacantSf = 0
	}

	stamp := now.UTC().Format(isoMillis)
	leaseStart, leaseEnd := stamp, stamp
	if len(active) > 0 {
		leaseStart, leaseEnd = active[0].LeaseStart, active[0].LeaseEnd
	}

	return append(active, Tenant{
		ID:         VacantTenantID,
		TenantName: "VACANT",
		CreditType: "N/A",
		SquareFeet: vacantSf,
		LeaseStart: leaseStart,
		LeaseEnd:   leaseEnd,
		LeaseType:  "N/A",
		Renew:      "N/A",
		IsVacant:   true,
	})
}

// OccupiedSf sums the space of live, non-vacant tenants.
func OccupiedSf(tenants []Tenant) float64 {
	var total float64
	for _, t := range tenants {
		if t.IsVacant || t.IsDeleted {
			continue
		}
		total += t.SquareFeet
	}
	return total
}

// ValidateSpace enforces the area and lease window rules over live tenants.
// A lease may run at most holdPeriodYears whole years past its own start.
func ValidateSpace(buildingSizeSf float64, estStartDate string, holdPeriodYears int, tenants []Tenant) error {
	if OccupiedSf(tenants) > buildingSizeSf {
		return Validation("Total tenant square footage must be <= property space")
	}

	var propertyStart time.Time
	for _, t := range tenants {
		if t.IsVacant || t.IsDeleted {
			continue
		}
		if propertyStart.IsZero() {
			parsed, err := ParseDate(estStartDate)
			if err != nil {
				return Validation("Invalid estStartDate: %s", estStartDate)
			}
			propertyStart = parsed
		}

		leaseStart, err := ParseDate(t.LeaseStart)
		if err != nil {
			return Validation("Invalid leaseStart for tenant %s: %s", t.ID, t.LeaseStart)
		}
		leaseEnd, err := ParseDate(t.LeaseEnd)
		if err != nil {
			return Validation("Invalid leaseEnd for tenant %s: %s", t.ID, t.LeaseEnd)
		}

		if leaseStart.Before(propertyStart) {
			return Validation("Lease start cannot be before property start")
		}
		if leaseEnd.After(leaseStart.AddDate(holdPeriodYears, 0, 0)) {
			return Validation("Lease end cannot exceed start + hold period")
		}
	}
	return nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseDate accepts calendar dates and ISO timestamps. Values without a zone
// are read as UTC.
func ParseDate(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range dateLayouts {
		parsed, err := time.Parse(layout, value)
		if err == nil {
			return parsed.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// PrepareContent runs every rule a submitted draft must pass and returns the
// content to persist. currentAddress is the address recorded on the version
// being saved or forked; it can never change.
func PrepareContent(currentAddress string, draft Content, now time.Time) (Content, error) {
	if draft.PropertyDetails.Address != currentAddress {
		return Content{}, Validation("Property address is read-only")
	}
	if err := CheckPayload(draft.Brokers, draft.Tenants); err != nil {
		return Content{}, err
	}

	out := draft.Clone()
	out.Tenants = NormalizeTenants(draft.Tenants, draft.PropertyDetails.BuildingSizeSf, now)
	if err := out.validateSpace(); err != nil {
		return Content{}, err
	}
	return out, nil
}

func (c Content) validateSpace() error {
	return ValidateSpace(
		c.PropertyDetails.BuildingSizeSf,
		c.UnderwritingInputs.EstStartDate,
		c.UnderwritingInputs.HoldPeriodYears,
		c.Tenants,
	)
}
