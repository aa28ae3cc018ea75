// Package reconcile attaches region ids to shipping rows and classifies the
// duplicates produced by the many-to-many (state, country) join.
package reconcile

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

// Outcome tags how a joined shipping row was resolved.
type Outcome int

const (
	// Unique rows have a region and a shipping id seen once.
	Unique Outcome = iota
	// DuplicatedByCity rows share a shipping id whose rows all map to one region.
	DuplicatedByCity
	// DuplicatedByRegion rows share a shipping id whose rows map to two regions.
	DuplicatedByRegion
	// DuplicatedUnclassified rows share a shipping id mapping to three or more regions.
	DuplicatedUnclassified
	// Unresolved rows found no region and are dropped from the output.
	Unresolved
)

// Duplicate reasons written to the duplicate_reason column.
const (
	ReasonTwoCities  = "Shipping Associated with Two Cities"
	ReasonTwoRegions = "Shipping Associated with Two Regions"
)

// String returns a short name for the outcome.
func (o Outcome) String() string {
	switch o {
	case Unique:
		return "unique"
	case DuplicatedByCity:
		return "duplicated_by_city"
	case DuplicatedByRegion:
		return "duplicated_by_region"
	case DuplicatedUnclassified:
		return "duplicated_unclassified"
	case Unresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}

// Duplicated reports whether the outcome flags a duplicated shipping id.
func (o Outcome) Duplicated() bool {
	return o == DuplicatedByCity || o == DuplicatedByRegion || o == DuplicatedUnclassified
}

// Reason returns the duplicate_reason text, empty when there is none.
func (o Outcome) Reason() string {
	switch o {
	case DuplicatedByCity:
		return ReasonTwoCities
	case DuplicatedByRegion:
		return ReasonTwoRegions
	default:
		return ""
	}
}

// Row is one joined shipping row with its classification.
type Row struct {
	// Index is the row's position in the joined table.
	Index          int
	RegionID       table.Value
	Outcome        Outcome
	MissingAddress bool
}

// Result is the typed output of Reconcile.
type Result struct {
	Rows    []Row
	Summary model.Reconciliation

	joined *table.Table
}

// Reconcile left-joins shipping against regions on (state, country) and classifies
// every joined row. Neither input table is modified.
func Reconcile(shipping, regions *table.Table) (*Result, error) {
	if err := model.CheckShippingColumns(shipping); err != nil {
		return nil, eris.Wrap(err, "reconcile: shipping")
	}
	keys, err := regions.Select(model.ColState, model.ColCountry, model.ColRegionID)
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: region")
	}
	// Columns produced here are recomputed if the input already carries them.
	left := shipping.Clone()
	for _, c := range []string{model.ColRegionID, model.ColIsDuplicated, model.ColDuplicateReason, model.ColMissingAddress} {
		left.DropColumn(c)
	}

	joined, err := left.MergeLeft(keys, []string{model.ColState, model.ColCountry})
	if err != nil {
		return nil, eris.Wrap(err, "reconcile: join")
	}

	occurrences := make(map[string]int)
	regionsByID := make(map[string]map[string]struct{})
	for i := range joined.Len() {
		id := joined.Get(i, model.ColShippingID)
		if id.IsNull() {
			continue
		}
		occurrences[id.Str]++
		if rid := joined.Get(i, model.ColRegionID); rid.Valid {
			set, ok := regionsByID[id.Str]
			if !ok {
				set = make(map[string]struct{})
				regionsByID[id.Str] = set
			}
			set[rid.Str] = struct{}{}
		}
	}

	res := &Result{joined: joined, Rows: make([]Row, joined.Len())}
	res.Summary.JoinedRows = joined.Len()
	for i := range joined.Len() {
		row := Row{
			Index:          i,
			RegionID:       joined.Get(i, model.ColRegionID),
			MissingAddress: joined.Get(i, model.ColStreetAddress).IsNull(),
		}
		id := joined.Get(i, model.ColShippingID)

		switch {
		case row.RegionID.IsNull():
			row.Outcome = Unresolved
		case id.Valid && occurrences[id.Str] > 1:
			switch len(regionsByID[id.Str]) {
			case 1:
				row.Outcome = DuplicatedByCity
			case 2:
				row.Outcome = DuplicatedByRegion
			default:
				row.Outcome = DuplicatedUnclassified
			}
		default:
			row.Outcome = Unique
		}
		res.Rows[i] = row
		res.tally(row)
	}

	zap.L().With(zap.String("component", "reconcile")).Info("shipping regions reconciled",
		zap.Int("shipping_rows", shipping.Len()),
		zap.Int("joined_rows", res.Summary.JoinedRows),
		zap.Int("duplicated_by_city", res.Summary.DuplicatedByCity),
		zap.Int("duplicated_by_region", res.Summary.DuplicatedByRegion),
		zap.Int("unresolved_dropped", res.Summary.UnresolvedDropped),
	)
	return res, nil
}

func (r *Result) tally(row Row) {
	switch row.Outcome {
	case Unique:
		r.Summary.Unique++
	case DuplicatedByCity:
		r.Summary.DuplicatedByCity++
	case DuplicatedByRegion:
		r.Summary.DuplicatedByRegion++
	case DuplicatedUnclassified:
		r.Summary.DuplicatedUnclassified++
	case Unresolved:
		r.Summary.UnresolvedDropped++
		return
	}
	if row.MissingAddress {
		r.Summary.MissingAddress++
	}
}

// Table renders the annotated output: unresolved rows are dropped and the
// is_duplicated_shipping_id, duplicate_reason and is_missing_address columns are added.
func (r *Result) Table() *table.Table {
	cols := append(r.joined.Columns(), model.ColIsDuplicated, model.ColDuplicateReason, model.ColMissingAddress)
	out := table.New(cols)
	for _, row := range r.Rows {
		if row.Outcome == Unresolved {
			continue
		}
		vals := r.joined.Row(row.Index)
		vals = append(vals, flag(row.Outcome.Duplicated()), reason(row.Outcome), flag(row.MissingAddress))
		_ = out.AppendRow(vals) // width always matches cols
	}
	return out
}

// flag renders a set flag as "1" and an unset one as null.
func flag(b bool) table.Value {
	if b {
		return table.S("1")
	}
	return table.Null
}

func reason(o Outcome) table.Value {
	if r := o.Reason(); r != "" {
		return table.S(r)
	}
	return table.Null
}
