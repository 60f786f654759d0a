package deal

import "time"

// BrokerInput is the caller-owned part of a broker.
type BrokerInput struct {
	Name    string `json:"name" validate:"required"`
	Phone   string `json:"phone" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Company string `json:"company" validate:"required"`
}

func (in BrokerInput) Broker(id string) Broker {
	return Broker{ID: id, Name: in.Name, Phone: in.Phone, Email: in.Email, Company: in.Company}
}

// BrokerPatch carries only the fields a caller sent; nil means keep.
type BrokerPatch struct {
	Name    *string `json:"name" validate:"omitnil,min=1"`
	Phone   *string `json:"phone" validate:"omitnil,min=1"`
	Email   *string `json:"email" validate:"omitnil,email"`
	Company *string `json:"company" validate:"omitnil,min=1"`
}

func (p BrokerPatch) Apply(b Broker) Broker {
	setIf(&b.Name, p.Name)
	setIf(&b.Phone, p.Phone)
	setIf(&b.Email, p.Email)
	setIf(&b.Company, p.Company)
	return b
}

// TenantInput is the caller-owned part of a tenant.
type TenantInput struct {
	TenantName        string  `json:"tenantName" validate:"required"`
	CreditType        string  `json:"creditType"`
	SquareFeet        float64 `json:"squareFeet" validate:"gte=0"`
	RentPsf           float64 `json:"rentPsf" validate:"gte=0"`
	AnnualEscalations float64 `json:"annualEscalations" validate:"gte=0"`
	LeaseStart        string  `json:"leaseStart" validate:"required"`
	LeaseEnd          string  `json:"leaseEnd" validate:"required"`
	LeaseType         string  `json:"leaseType"`
	Renew             string  `json:"renew"`
	DowntimeMonths    int     `json:"downtimeMonths" validate:"gte=0"`
	TIPsf             float64 `json:"tiPsf" validate:"gte=0"`
	LCPsf             float64 `json:"lcPsf" validate:"gte=0"`
}

func (in TenantInput) Tenant(id string) Tenant {
	return Tenant{
		ID:                id,
		TenantName:        in.TenantName,
		CreditType:        in.CreditType,
		SquareFeet:        in.SquareFeet,
		RentPsf:           in.RentPsf,
		AnnualEscalations: in.AnnualEscalations,
		LeaseStart:        in.LeaseStart,
		LeaseEnd:          in.LeaseEnd,
		LeaseType:         in.LeaseType,
		Renew:             in.Renew,
		DowntimeMonths:    in.DowntimeMonths,
		TIPsf:             in.TIPsf,
		LCPsf:             in.LCPsf,
	}
}

type TenantPatch struct {
	TenantName        *string  `json:"tenantName" validate:"omitnil,min=1"`
	CreditType        *string  `json:"creditType"`
	SquareFeet        *float64 `json:"squareFeet" validate:"omitnil,gte=0"`
	RentPsf           *float64 `json:"rentPsf" validate:"omitnil,gte=0"`
	AnnualEscalations *float64 `json:"annualEscalations" validate:"omitnil,gte=0"`
	LeaseStart        *string  `json:"leaseStart" validate:"omitnil,min=1"`
	LeaseEnd          *string  `json:"leaseEnd" validate:"omitnil,min=1"`
	LeaseType         *string  `json:"leaseType"`
	Renew             *string  `json:"renew"`
	DowntimeMonths    *int     `json:"downtimeMonths" validate:"omitnil,gte=0"`
	TIPsf             *float64 `json:"tiPsf" validate:"omitnil,gte=0"`
	LCPsf             *float64 `json:"lcPsf" validate:"omitnil,gte=0"`
}

func (p TenantPatch) Apply(t Tenant) Tenant {
	setIf(&t.TenantName, p.TenantName)
	setIf(&t.CreditType, p.CreditType)
	setIf(&t.SquareFeet, p.SquareFeet)
	setIf(&t.RentPsf, p.RentPsf)
	setIf(&t.AnnualEscalations, p.AnnualEscalations)
	setIf(&t.LeaseStart, p.LeaseStart)
	setIf(&t.LeaseEnd, p.LeaseEnd)
	setIf(&t.LeaseType, p.LeaseType)
	setIf(&t.Renew, p.Renew)
	setIf(&t.DowntimeMonths, p.DowntimeMonths)
	setIf(&t.TIPsf, p.TIPsf)
	setIf(&t.LCPsf, p.LCPsf)
	return t
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// AddBroker appends a broker. The id must not collide with any existing row,
// deleted or not.
func (c Content) AddBroker(b Broker) (Content, error) {
	out := c.Clone()
	out.Brokers = append(out.Brokers, b)
	if err := CheckPayload(out.Brokers, out.Tenants); err != nil {
		return Content{}, err
	}
	return out, nil
}

func (c Content) UpdateBroker(id string, patch BrokerPatch) (Content, error) {
	i, err := brokerIndex(c.Brokers, id)
	if err != nil {
		return Content{}, err
	}
	out := c.Clone()
	out.Brokers[i] = patch.Apply(out.Brokers[i])
	return out, nil
}

func (c Content) SoftDeleteBroker(id, actor string, now time.Time) (Content, error) {
	i, err := brokerIndex(c.Brokers, id)
	if err != nil {
		return Content{}, err
	}
	out := c.Clone()
	deletedAt := now.UTC().Truncate(time.Microsecond)
	out.Brokers[i].IsDeleted = true
	out.Brokers[i].DeletedAt = &deletedAt
	out.Brokers[i].DeletedBy = actor
	return out, nil
}

// AddTenant places a new tenant ahead of the vacant row and re-derives the
// vacant space.
func (c Content) AddTenant(t Tenant, now time.Time) (Content, error) {
	t.IsVacant = false
	t.IsDeleted = false
	out := c.Clone()
	out.Tenants = append(out.Tenants, t)
	return out.renormalize(now)
}

func (c Content) UpdateTenant(id string, patch TenantPatch, now time.Time) (Content, error) {
	i, err := tenantIndex(c.Tenants, id)
	if err != nil {
		return Content{}, err
	}
	out := c.Clone()
	out.Tenants[i] = patch.Apply(out.Tenants[i])
	return out.renormalize(now)
}

func (c Content) SoftDeleteTenant(id, actor string, now time.Time) (Content, error) {
	i, err := tenantIndex(c.Tenants, id)
	if err != nil {
		return Content{}, err
	}
	out := c.Clone()
	deletedAt := now.UTC().Truncate(time.Microsecond)
	out.Tenants[i].IsDeleted = true
	out.Tenants[i].DeletedAt = &deletedAt
	out.Tenants[i].DeletedBy = actor
	return out.renormalize(now)
}

func (c Content) renormalize(now time.Time) (Content, error) {
	if err := CheckPayload(c.Brokers, c.Tenants); err != nil {
		return Content{}, err
	}
	c.Tenants = NormalizeTenants(c.Tenants, c.PropertyDetails.BuildingSizeSf, now)
	if err := c.validateSpace(); err != nil {
		return Content{}, err
	}
	return c, nil
}
