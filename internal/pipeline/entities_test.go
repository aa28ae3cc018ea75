package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sales-etl/internal/config"
	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/reconcile"
	"github.com/sells-group/sales-etl/internal/repair"
	"github.com/sells-group/sales-etl/internal/table"
	"github.com/sells-group/sales-etl/internal/transform"
)

func testOptions() Options {
	return Options{
		CustomerIDWidth: 18,
		DateLayout:      "2/1/2006",
		CountryAliases:  config.TransformConfig{CountryAliases: config.DefaultCountryAliases()}.AliasMap(),
		RegionPatches:   transform.DefaultRegionPatches(),
	}
}

func mustLoad(t *testing.T, columns []string, rows ...[]string) *table.Table {
	t.Helper()
	tb, err := table.Load(columns, rows)
	require.NoError(t, err)
	return tb
}

func col(tb *table.Table, column string) []string {
	var out []string
	for _, v := range tb.Column(column) {
		out = append(out, v.String())
	}
	return out
}

func TestTransformFor(t *testing.T) {
	for _, e := range model.Entities {
		fn, err := TransformFor(e)
		require.NoError(t, err)
		assert.NotNil(t, fn)
	}
	_, err := TransformFor("supplier")
	assert.Error(t, err)
}

func TestTransformCustomer(t *testing.T) {
	src := mustLoad(t, []string{"cusid", "cusnm", "sgmnt"},
		[]string{"00-CG-12520", "Claire Gute", "Consumer"},
		[]string{"00-DV-13045", "Darrin Van Huff", "Corporate"},
		[]string{"00-DV-13045", "Darrin Van Huff", "Corporate"},
	)
	rep := newReport(model.EntityCustomer, model.StageTransform)

	out, err := TransformCustomer(src, nil, testOptions(), &rep)
	require.NoError(t, err)
	assert.Equal(t, []string{"customer_id", "customer_name", "customer_segment_Consumer", "customer_segment_Corporate"}, out.Columns())
	assert.Equal(t, []string{"CG-125200000000000", "DV-130450000000000"}, col(out, "customer_id"))
	assert.Equal(t, []string{"1", "0"}, col(out, "customer_segment_Consumer"))
	assert.Equal(t, 3, rep.RowsIn)
	assert.Equal(t, 2, rep.RowsOut)
	assert.Equal(t, 1, rep.DuplicateRows)
	assert.Equal(t, 3, src.Len(), "source table untouched")
}

func TestTransformCustomer_MissingColumn(t *testing.T) {
	src := mustLoad(t, []string{"cusid"}, []string{"00-CG-12520"})
	rep := newReport(model.EntityCustomer, model.StageTransform)
	_, err := TransformCustomer(src, nil, testOptions(), &rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customer_segment")
}

func TestTransformInvoice(t *testing.T) {
	src := mustLoad(t,
		[]string{"Order_ID", "Order_Date", "Ship_Date", "Ship_Mode", "Order_Priority", "Customer_ID", "Sale_Value", "Profit", "Shipping_Cost"},
		[]string{"CA-2019-1", "08/11/2019", "11/11/2019", "Second Class", "Medium", "CG-12520", "261.9600", "41.9136", "35.456"},
		[]string{"CA-2019-2", "31/12/2019", "", "Standard Class", "High", "DV-13045", "14.62", "6.8714", "1.5"},
	)
	rep := newReport(model.EntityInvoice, model.StageTransform)

	out, err := TransformInvoice(src, nil, testOptions(), &rep)
	require.NoError(t, err)
	assert.Equal(t, []string{"2019-11-08", "2019-12-31"}, col(out, "order_date"))
	assert.Equal(t, []string{"2019-11-11", ""}, col(out, "ship_date"))
	assert.Equal(t, []string{"261.96", "14.62"}, col(out, "sale_value"))
	assert.Equal(t, []string{"41.91", "6.87"}, col(out, "profit"))
	assert.Equal(t, []string{"35.46", "1.5"}, col(out, "shipping_cost"))
	assert.Equal(t, []string{"CG-125200000000000", "DV-130450000000000"}, col(out, "customer_id"))
	assert.True(t, out.Has("ship_mode_Second Class"))
	assert.True(t, out.Has("order_priority_High"))
	assert.False(t, out.Has("ship_mode"))
	assert.Equal(t, 1, rep.MissingValues["ship_date"])
	assert.NotEmpty(t, rep.Warnings)
}

func TestTransformProduct(t *testing.T) {
	src := mustLoad(t, []string{"Product_ID", "Category", "Sub-Category"},
		[]string{"FUR/BOO-100012", "Furniture", "Bookcases"},
		[]string{"OFF/LAB-100002", "Office Supplies", "Labels"},
	)
	rep := newReport(model.EntityProduct, model.StageTransform)

	out, err := TransformProduct(src, nil, testOptions(), &rep)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"product_id",
		"category_Furniture", "category_Office Supplies",
		"sub_category_Bookcases", "sub_category_Labels",
	}, out.Columns())
}

func TestTransformRegion(t *testing.T) {
	src := mustLoad(t, []string{"index", "Region_ID", "State", "Country", "Region", "Market"},
		[]string{"0", "1", "Washington", "United States", "West", "US"},
		[]string{"1", "9", "Ulaanbaatar", "Mongolia", "Asia", "Asia"},
		[]string{"2", "9", "Ulaanbaatar", "Mongolia", "Asia", "Asia"},
	)
	rep := newReport(model.EntityRegion, model.StageTransform)

	out, err := TransformRegion(src, nil, testOptions(), &rep)
	require.NoError(t, err)
	assert.Equal(t, []string{"region_id", "state", "country", "region", "market"}, out.Columns())
	assert.Equal(t, []string{"West", "North Asia"}, col(out, "region"))
	assert.Equal(t, []string{"US", "APAC"}, col(out, "market"))
	assert.Equal(t, 2, rep.Patches["mongolia-north-asia"])
	assert.Equal(t, 0, rep.Patches["austria-central-eu"])
	assert.Equal(t, 1, rep.DuplicateRows)
}

var rawShippingColumns = []string{"id", "customerid", "streetadd", "city", "state", "country", "postal_code", "effstart", "effend"}

func regionFixture(t *testing.T) *table.Table {
	return mustLoad(t, []string{"region_id", "state", "country", "region", "market"},
		[]string{"1", "Washington", "United States", "West", "US"},
		[]string{"2", "California", "United States", "West", "US"},
		[]string{"3", "California", "United States", "Pacific", "US"},
	)
}

func TestTransformShipping(t *testing.T) {
	src := mustLoad(t, rawShippingColumns,
		// city glued onto the customer id, location fields shifted left
		[]string{"7", "CA-2090Seattle", "", "Washington", "United States", "98101", "01/02/2020", "31/12/2021", ""},
		[]string{"8", "DV-13045", "123 Main St", "Los Angeles", "\"California", "USA", "90001", "'05/03/2020'", "06/03/2021"},
		[]string{"9", "SO-20335", "1 Pine Rd", "Perth", "Western Australia", "Australia", "6000", "01/01/2020", "01/01/2021"},
		[]string{"", "XX-1", "", "", "", "", "", "", ""},
		[]string{"8", "DV-13045", "123 Main St", "Los Angeles", "\"California", "USA", "90001", "'05/03/2020'", "06/03/2021"},
	)
	rep := newReport(model.EntityShipping, model.StageTransform)

	out, err := TransformShipping(src, regionFixture(t), testOptions(), &rep)
	require.NoError(t, err)

	assert.Equal(t, 5, rep.RowsIn)
	assert.Equal(t, 1, rep.DuplicateRows)
	assert.Equal(t, 1, rep.Repairs[repair.RuleCustomerIDCity])
	require.NotNil(t, rep.Reconciliation)
	assert.Equal(t, 1, rep.Reconciliation.UnresolvedDropped)
	assert.Equal(t, 2, rep.Reconciliation.DuplicatedByRegion)

	require.Equal(t, 3, out.Len())
	assert.Equal(t, rep.RowsOut, out.Len())
	assert.Equal(t, []string{"7", "8", "8"}, col(out, model.ColShippingID))
	assert.Equal(t, []string{"CA-209000000000000", "DV-130450000000000", "DV-130450000000000"}, col(out, model.ColCustomerID))
	assert.Equal(t, []string{"Seattle", "Los Angeles", "Los Angeles"}, col(out, model.ColCity))
	assert.Equal(t, []string{"Washington", "California", "California"}, col(out, model.ColState))
	assert.Equal(t, []string{"United States", "United States", "United States"}, col(out, model.ColCountry))
	assert.Equal(t, []string{"98101", "90001", "90001"}, col(out, model.ColPostalCode))
	assert.Equal(t, []string{"2020-02-01", "2020-03-05", "2020-03-05"}, col(out, model.ColEffectiveStart))
	assert.Equal(t, []string{"1", "2", "3"}, col(out, model.ColRegionID))
	assert.Equal(t, []string{"", "1", "1"}, col(out, model.ColIsDuplicated))
	assert.Equal(t, []string{"", reconcile.ReasonTwoRegions, reconcile.ReasonTwoRegions}, col(out, model.ColDuplicateReason))
	assert.Equal(t, []string{"1", "", ""}, col(out, model.ColMissingAddress))
	assert.True(t, out.Get(0, model.ColIsDuplicated).IsNull())
	assert.NotContains(t, rep.MissingValues, model.ColIsDuplicated)
	assert.NotContains(t, rep.MissingValues, model.ColMissingAddress)
}

func TestTransformShipping_NeedsRegions(t *testing.T) {
	src := mustLoad(t, rawShippingColumns)
	rep := newReport(model.EntityShipping, model.StageTransform)
	_, err := TransformShipping(src, nil, testOptions(), &rep)
	assert.Error(t, err)
}
