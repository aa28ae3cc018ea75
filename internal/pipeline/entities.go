package pipeline

import (
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/config"
	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/reconcile"
	"github.com/sells-group/sales-etl/internal/repair"
	"github.com/sells-group/sales-etl/internal/table"
	"github.com/sells-group/sales-etl/internal/transform"
)

// Options carries the tunables of the entity transforms.
type Options struct {
	CustomerIDWidth int
	DateLayout      string
	CountryAliases  map[string]string
	RegionPatches   []transform.RegionPatch
}

// OptionsFrom builds transform options from configuration.
func OptionsFrom(cfg config.TransformConfig) Options {
	return Options{
		CustomerIDWidth: cfg.CustomerIDWidth,
		DateLayout:      cfg.DateLayout,
		CountryAliases:  cfg.AliasMap(),
		RegionPatches:   cfg.RegionPatches,
	}
}

// TransformFunc cleans one entity's source table, filling in rep as it goes.
// regions is the transformed region table and is only read by the shipping transform.
type TransformFunc func(src, regions *table.Table, opts Options, rep *model.StageReport) (*table.Table, error)

// TransformFor returns the transform of the named entity.
func TransformFor(entity string) (TransformFunc, error) {
	switch entity {
	case model.EntityCustomer:
		return TransformCustomer, nil
	case model.EntityInvoice:
		return TransformInvoice, nil
	case model.EntityProduct:
		return TransformProduct, nil
	case model.EntityRegion:
		return TransformRegion, nil
	case model.EntityShipping:
		return TransformShipping, nil
	}
	return nil, eris.Errorf("pipeline: unknown entity %q", entity)
}

// finish dedups t and records the row counts and missing values shared by every entity.
func finish(t *table.Table, rep *model.StageReport) *table.Table {
	t, dropped := transform.DropDuplicates(t)
	rep.DuplicateRows += dropped
	rep.MissingValues = transform.MissingValues(t)
	if rep.HasMissing() {
		rep.Warn("there are missing values in the dataset")
	}
	rep.RowsOut = t.Len()
	return t
}

func requireColumns(t *table.Table, entity string, columns ...string) error {
	for _, c := range columns {
		if !t.Has(c) {
			return eris.Errorf("pipeline: %s: column %q not present", entity, c)
		}
	}
	return nil
}

// TransformCustomer renames the short source columns, one-hot encodes the segment and
// standardizes customer ids.
func TransformCustomer(src, _ *table.Table, opts Options, rep *model.StageReport) (*table.Table, error) {
	t := src.Clone()
	rep.RowsIn = t.Len()
	if err := transform.NormalizeColumnNames(t); err != nil {
		return nil, err
	}
	if err := t.Rename(map[string]string{
		"cusid": "customer_id",
		"cusnm": "customer_name",
		"sgmnt": "customer_segment",
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: customer rename")
	}
	if err := requireColumns(t, model.EntityCustomer, "customer_id", "customer_segment"); err != nil {
		return nil, err
	}
	transform.NormalizeText(t, "customer_name")

	t, dropped := transform.DropDuplicates(t)
	rep.DuplicateRows = dropped

	if err := transform.OneHotEncode(t, "customer_segment"); err != nil {
		return nil, err
	}
	if n := transform.ExtractCustomerID(t, "customer_id"); n > 0 {
		rep.Warn(fmt.Sprintf("%d customer ids did not match the XX-123 form", n))
	}
	transform.StandardizeCustomerID(t, "customer_id", opts.CustomerIDWidth)
	return finish(t, rep), nil
}

// TransformInvoice lower-cases columns, converts dates to ISO form, one-hot encodes
// shipping mode and priority and rounds money columns to two places.
func TransformInvoice(src, _ *table.Table, opts Options, rep *model.StageReport) (*table.Table, error) {
	t := src.Clone()
	rep.RowsIn = t.Len()
	if err := transform.NormalizeColumnNames(t); err != nil {
		return nil, err
	}
	if err := requireColumns(t, model.EntityInvoice, "order_date", "ship_date", "ship_mode", "order_priority", "customer_id"); err != nil {
		return nil, err
	}

	for _, c := range []string{"order_date", "ship_date"} {
		if n := transform.StandardizeDate(t, c, opts.DateLayout); n > 0 {
			rep.Warn(fmt.Sprintf("%d %s values could not be parsed as dates", n, c))
		}
	}
	for _, c := range []string{"ship_mode", "order_priority"} {
		if err := transform.OneHotEncode(t, c); err != nil {
			return nil, err
		}
	}
	for _, c := range []string{"sale_value", "profit", "shipping_cost"} {
		transform.RoundFloat(t, c, 2)
	}
	transform.StandardizeCustomerID(t, "customer_id", opts.CustomerIDWidth)
	return finish(t, rep), nil
}

// TransformProduct snake-cases columns and one-hot encodes category and sub-category.
func TransformProduct(src, _ *table.Table, _ Options, rep *model.StageReport) (*table.Table, error) {
	t := src.Clone()
	rep.RowsIn = t.Len()
	if err := transform.NormalizeColumnNames(t); err != nil {
		return nil, err
	}
	for _, c := range []string{"category", "sub_category"} {
		if err := transform.OneHotEncode(t, c); err != nil {
			return nil, err
		}
	}
	return finish(t, rep), nil
}

// TransformRegion drops the exported row index, lower-cases columns and applies the
// region patches.
func TransformRegion(src, _ *table.Table, opts Options, rep *model.StageReport) (*table.Table, error) {
	t := src.Clone()
	rep.RowsIn = t.Len()
	t.DropColumn("index")
	if err := transform.NormalizeColumnNames(t); err != nil {
		return nil, err
	}
	if err := requireColumns(t, model.EntityRegion, model.ColState, model.ColCountry, model.ColRegionID); err != nil {
		return nil, err
	}
	transform.NormalizeText(t, model.ColState, model.ColCountry)
	rep.Patches = transform.ApplyRegionPatches(t, opts.RegionPatches)
	return finish(t, rep), nil
}

// TransformShipping repairs misaligned shipping rows, cleans them and reconciles them
// against the transformed regions. Rows without a region are dropped; duplicated
// shipping ids are kept and flagged.
func TransformShipping(src, regions *table.Table, opts Options, rep *model.StageReport) (*table.Table, error) {
	if regions == nil {
		return nil, eris.New("pipeline: shipping: transformed regions are required")
	}
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("entity", model.EntityShipping))

	rep.RowsIn = src.Len()
	t := src.Clone()
	if err := transform.NormalizeColumnNames(t); err != nil {
		return nil, err
	}
	t, nullIDs := transform.DropNullRows(t, "id")
	if nullIDs > 0 {
		rep.Warn(fmt.Sprintf("%d rows without a shipping id dropped", nullIDs))
	}
	if err := t.Rename(map[string]string{
		"id":         model.ColShippingID,
		"customerid": model.ColCustomerID,
		"effstart":   model.ColEffectiveStart,
		"effend":     model.ColEffectiveEnd,
		"streetadd":  model.ColStreetAddress,
	}); err != nil {
		return nil, eris.Wrap(err, "pipeline: shipping rename")
	}
	if err := model.CheckShippingColumns(t); err != nil {
		return nil, err
	}

	fixed, err := repair.NewEngine().Apply(t)
	if err != nil {
		return nil, err
	}
	rep.Repairs = fixed.Matched

	transform.StandardizeCustomerID(t, model.ColCustomerID, opts.CustomerIDWidth)
	if n := transform.CoerceInteger(t, model.ColShippingID); n > 0 {
		rep.Warn(fmt.Sprintf("%d shipping ids are not integers", n))
	}
	transform.StripQuotes(t, model.ColEffectiveStart)
	transform.StripQuotes(t, model.ColEffectiveEnd)
	for _, c := range []string{model.ColCity, model.ColState, model.ColCountry} {
		transform.StripLeadingQuotes(t, c)
	}
	transform.NormalizeText(t, model.ColCity, model.ColState, model.ColCountry, model.ColStreetAddress)
	for _, c := range []string{model.ColEffectiveStart, model.ColEffectiveEnd} {
		if n := transform.StandardizeDate(t, c, opts.DateLayout); n > 0 {
			rep.Warn(fmt.Sprintf("%d %s values could not be parsed as dates", n, c))
		}
	}
	if n := transform.ReplaceValues(t, model.ColCountry, opts.CountryAliases); n > 0 {
		log.Info("country aliases replaced", zap.Int("rows", n))
	}

	t, dropped := transform.DropDuplicates(t)
	rep.DuplicateRows = dropped

	res, err := reconcile.Reconcile(t, regions)
	if err != nil {
		return nil, err
	}
	summary := res.Summary
	rep.Reconciliation = &summary
	if summary.UnresolvedDropped > 0 {
		rep.Warn(fmt.Sprintf("%d joined rows without a region dropped", summary.UnresolvedDropped))
	}

	out := res.Table()
	rep.MissingValues = transform.MissingValues(out)
	// Null annotations mean "not flagged", not missing data.
	for _, c := range []string{model.ColIsDuplicated, model.ColDuplicateReason, model.ColMissingAddress} {
		delete(rep.MissingValues, c)
	}
	rep.RowsOut = out.Len()
	return out, nil
}
