package deal

import (
	"bytes"
	"encoding/json"
)

// Change is one field-level difference between two snapshots.
type Change struct {
	Field    string `json:"field"`
	OldValue any    `json:"oldValue"`
	NewValue any    `json:"newValue"`
}

// Value is a node in a diffable tree. The set of node kinds is closed:
// objects are walked field by field, lists and scalars are compared whole.
type Value interface {
	raw() any
}

type scalar struct{ v any }

func (s scalar) raw() any { return s.v }

type list struct{ v any }

func (l list) raw() any { return l.v }

type absent struct{}

func (absent) raw() any { return nil }

// Object is an ordered set of named values.
type Object struct {
	keys   []string
	fields map[string]Value
}

func NewObject() *Object {
	return &Object{fields: map[string]Value{}}
}

// Set adds or replaces a field, keeping first-insertion order.
func (o *Object) Set(key string, v Value) *Object {
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
	return o
}

func (o *Object) get(key string) Value {
	if v, ok := o.fields[key]; ok {
		return v
	}
	return absent{}
}

func (o *Object) raw() any {
	out := make(map[string]any, len(o.fields))
	for _, k := range o.keys {
		if _, missing := o.fields[k].(absent); missing {
			continue
		}
		out[k] = o.fields[k].raw()
	}
	return out
}

// Scalar wraps a primitive (string, number, bool or nil).
func Scalar(v any) Value { return scalar{v: v} }

// List wraps a collection that is compared and reported as a single value.
func List(v any) Value { return list{v: v} }

// Diff returns the field-level changes from old to updated. Paths are joined
// with dots; a difference at the top level of non-object values is reported
// under the field "root". Equal inputs yield an empty slice.
func Diff(old, updated Value) []Change {
	changes := diffAt("", old, updated)
	if changes == nil {
		return []Change{}
	}
	return changes
}

func diffAt(path string, old, updated Value) []Change {
	if sameValue(old, updated) {
		return nil
	}

	oldObj, oldIsObj := old.(*Object)
	newObj, newIsObj := updated.(*Object)
	if !oldIsObj || !newIsObj {
		field := path
		if field == "" {
			field = "root"
		}
		return []Change{{Field: field, OldValue: old.raw(), NewValue: updated.raw()}}
	}

	var changes []Change
	for _, key := range unionKeys(oldObj, newObj) {
		childPath := key
		if path != "" {
			childPath = path + "." + key
		}
		a, b := oldObj.get(key), newObj.get(key)

		_, aIsObj := a.(*Object)
		_, bIsObj := b.(*Object)
		if aIsObj && bIsObj {
			changes = append(changes, diffAt(childPath, a, b)...)
			continue
		}
		if !sameValue(a, b) {
			changes = append(changes, Change{Field: childPath, OldValue: a.raw(), NewValue: b.raw()})
		}
	}
	return changes
}

func unionKeys(a, b *Object) []string {
	keys := make([]string, 0, len(a.keys)+len(b.keys))
	seen := make(map[string]struct{}, len(a.keys)+len(b.keys))
	for _, set := range [][]string{a.keys, b.keys} {
		for _, k := range set {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	return keys
}

// sameValue compares canonical encodings. An absent value only equals
// another absent value.
func sameValue(a, b Value) bool {
	_, aAbsent := a.(absent)
	_, bAbsent := b.(absent)
	if aAbsent || bAbsent {
		return aAbsent && bAbsent
	}
	return bytes.Equal(canonical(a), canonical(b))
}

func canonical(v Value) []byte {
	encoded, err := json.Marshal(v.raw())
	if err != nil {
		// Only reachable with unsupported scalars; treat them as distinct.
		return []byte(err.Error())
	}
	return encoded
}

func (d PropertyDetails) DiffValue() Value {
	return NewObject().
		Set("address", Scalar(d.Address)).
		Set("market", Scalar(d.Market)).
		Set("subMarket", Scalar(d.SubMarket)).
		Set("propertyType", Scalar(d.PropertyType)).
		Set("propertySubType", Scalar(d.PropertySubType)).
		Set("zoning", Scalar(d.Zoning)).
		Set("zoningDetails", Scalar(d.ZoningDetails)).
		Set("listingType", Scalar(d.ListingType)).
		Set("businessPlan", Scalar(d.BusinessPlan)).
		Set("sellerType", Scalar(d.SellerType)).
		Set("lastTradePrice", Scalar(d.LastTradePrice)).
		Set("lastTradeDate", Scalar(d.LastTradeDate)).
		Set("askingPrice", Scalar(d.AskingPrice)).
		Set("bidAmount", Scalar(d.BidAmount)).
		Set("yearOneCapRate", Scalar(d.YearOneCapRate)).
		Set("stabilizedCapRate", Scalar(d.StabilizedCapRate)).
		Set("vintage", Scalar(d.Vintage)).
		Set("buildingSizeSf", Scalar(d.BuildingSizeSf)).
		Set("warehouseSf", Scalar(d.WarehouseSf)).
		Set("officeSf", Scalar(d.OfficeSf)).
		Set("propertySizeAcres", Scalar(d.PropertySizeAcres)).
		Set("coverageRatio", Scalar(d.CoverageRatio)).
		Set("outdoorStorage", Scalar(d.OutdoorStorage)).
		Set("constructionType", Scalar(d.ConstructionType)).
		Set("clearHeightFt", Scalar(d.ClearHeightFt)).
		Set("dockDoors", Scalar(d.DockDoors)).
		Set("driveInDoors", Scalar(d.DriveInDoors)).
		Set("heavyPower", Scalar(d.HeavyPower)).
		Set("sprinklerType", Scalar(d.SprinklerType))
}

func (u UnderwritingInputs) DiffValue() Value {
	return NewObject().
		Set("listPrice", Scalar(u.ListPrice)).
		Set("bid", Scalar(u.Bid)).
		Set("gpEquityStack", Scalar(u.GPEquityStack)).
		Set("lpEquityStack", Scalar(u.LPEquityStack)).
		Set("acqFee", Scalar(u.AcqFee)).
		Set("amFee", Scalar(u.AMFee)).
		Set("promote", Scalar(u.Promote)).
		Set("prefHurdle", Scalar(u.PrefHurdle)).
		Set("propMgmtFee", Scalar(u.PropMgmtFee)).
		Set("estStartDate", Scalar(u.EstStartDate)).
		Set("holdPeriodYears", Scalar(u.HoldPeriodYears)).
		Set("closingCostsPct", Scalar(u.ClosingCostsPct)).
		Set("saleCostsPct", Scalar(u.SaleCostsPct)).
		Set("vacancyPct", Scalar(u.VacancyPct)).
		Set("annualCapexReservesPct", Scalar(u.AnnualCapexReservesPct)).
		Set("annualAdminExpPct", Scalar(u.AnnualAdminExpPct)).
		Set("expenseInflationPct", Scalar(u.ExpenseInflationPct)).
		Set("exitCapRate", Scalar(u.ExitCapRate))
}

// DiffValue exposes the four mutable parts. Broker and tenant rosters are
// lists, so any change to a roster is reported once for the whole roster.
func (c Content) DiffValue() Value {
	return NewObject().
		Set("propertyDetails", c.PropertyDetails.DiffValue()).
		Set("underwritingInputs", c.UnderwritingInputs.DiffValue()).
		Set("brokers", List(orEmpty(c.Brokers))).
		Set("tenants", List(orEmpty(c.Tenants)))
}

// DiffContent is Diff over two versions' mutable content.
func DiffContent(old, updated Content) []Change {
	return Diff(old.DiffValue(), updated.DiffValue())
}

func orEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
