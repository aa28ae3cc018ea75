package model

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/sales-etl/internal/table"
)

// Shipping table column names after renaming.
const (
	ColShippingID      = "shipping_id"
	ColCustomerID      = "customer_id"
	ColStreetAddress   = "street_address"
	ColCity            = "city"
	ColState           = "state"
	ColCountry         = "country"
	ColPostalCode      = "postal_code"
	ColEffectiveStart  = "effective_start"
	ColEffectiveEnd    = "effective_end"
	ColRegionID        = "region_id"
	ColIsDuplicated    = "is_duplicated_shipping_id"
	ColDuplicateReason = "duplicate_reason"
	ColMissingAddress  = "is_missing_address"
)

// ShippingColumns lists the modelled shipping columns in canonical order.
var ShippingColumns = []string{
	ColShippingID,
	ColCustomerID,
	ColStreetAddress,
	ColCity,
	ColState,
	ColCountry,
	ColPostalCode,
	ColEffectiveStart,
	ColEffectiveEnd,
}

// ShippingRecord is one row of the shipping table. Any field may be null before repair.
type ShippingRecord struct {
	ShippingID     table.Value
	CustomerID     table.Value
	StreetAddress  table.Value
	City           table.Value
	State          table.Value
	Country        table.Value
	PostalCode     table.Value
	EffectiveStart table.Value
	EffectiveEnd   table.Value
}

// slots returns pointers to the record fields in ShippingColumns order.
func (r *ShippingRecord) slots() []*table.Value {
	return []*table.Value{
		&r.ShippingID,
		&r.CustomerID,
		&r.StreetAddress,
		&r.City,
		&r.State,
		&r.Country,
		&r.PostalCode,
		&r.EffectiveStart,
		&r.EffectiveEnd,
	}
}

// CheckShippingColumns returns an error naming the first modelled column missing from t.
func CheckShippingColumns(t *table.Table) error {
	for _, c := range ShippingColumns {
		if !t.Has(c) {
			return eris.Errorf("model: shipping table missing column %q", c)
		}
	}
	return nil
}

// ShippingAt reads row i of t into a record.
func ShippingAt(t *table.Table, i int) ShippingRecord {
	var r ShippingRecord
	for k, slot := range r.slots() {
		*slot = t.Get(i, ShippingColumns[k])
	}
	return r
}

// PutShipping writes the record back into row i of t. Unmodelled columns are untouched.
func PutShipping(t *table.Table, i int, r ShippingRecord) {
	for k, slot := range r.slots() {
		t.Set(i, ShippingColumns[k], *slot)
	}
}

// RegionRecord is one row of the region table.
type RegionRecord struct {
	RegionID table.Value
	State    table.Value
	Country  table.Value
	Market   table.Value
	Region   table.Value
}

// RegionAt reads row i of a region table.
func RegionAt(t *table.Table, i int) RegionRecord {
	return RegionRecord{
		RegionID: t.Get(i, "region_id"),
		State:    t.Get(i, "state"),
		Country:  t.Get(i, "country"),
		Market:   t.Get(i, "market"),
		Region:   t.Get(i, "region"),
	}
}
