package validate

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

func column(t *testing.T, name string, values ...string) *table.Table {
	t.Helper()
	rows := make([][]string, len(values))
	for i, v := range values {
		rows[i] = []string{v}
	}
	tbl, err := table.Load([]string{name}, rows)
	require.NoError(t, err)
	return tbl
}

func TestCustomerID(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"padded", "AB-123000000000000", false},
		{"lowercase prefix", "ab-123000000000000", false},
		{"unpadded", "AB-123", true},
		{"no dash", "AB1230000000000000", true},
		{"digit prefix", "1B-123000000000000", true},
		{"null", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CustomerID("customer_id")(column(t, "customer_id", tt.value))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, eris.Is(err, ErrInvalid))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProductID(t *testing.T) {
	assert.NoError(t, ProductID("product_id")(column(t, "product_id", "FUR/BOO-100012", "TEC/PHO-999999x")))

	err := ProductID("product_id")(column(t, "product_id", "FUR/BOO-100012", "ABC-123456"))
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "row 1")
}

func TestOrderID(t *testing.T) {
	assert.NoError(t, OrderID("order_id")(column(t, "order_id", "CA-2014-1")))
	assert.Error(t, OrderID("order_id")(column(t, "order_id", "c1-2014")))
}

func TestNumeric(t *testing.T) {
	assert.NoError(t, Numeric("v")(column(t, "v", "1", "2.5", "-3", "")))
	assert.Error(t, Numeric("v")(column(t, "v", "1", "abc")))
	for _, s := range []string{"NaN", "Inf", "-Infinity"} {
		assert.Error(t, Numeric("v")(column(t, "v", s)), s)
	}
	assert.Error(t, Numeric("v")(column(t, "other", "1")), "missing column")
}

func TestDate(t *testing.T) {
	assert.NoError(t, Date("d")(column(t, "d", "2020-01-31", "2020-01-31 10:00:00", "")))
	assert.Error(t, Date("d")(column(t, "d", "31/01/2020")))
	assert.Error(t, Date("d")(column(t, "d", "123 Main St")))
}

func TestBounds(t *testing.T) {
	assert.NoError(t, MinBound("q", 1)(column(t, "q", "1", "5", "")))
	assert.Error(t, MinBound("q", 1)(column(t, "q", "1", "0")))
	assert.Error(t, MinBound("q", 1)(column(t, "q", "x")))

	assert.NoError(t, Range("d", 0, 1)(column(t, "d", "0", "0.5", "1")))
	assert.Error(t, Range("d", 0, 1)(column(t, "d", "1.2")))
	assert.Error(t, Range("d", 0, 1)(column(t, "d", "-0.1")))
	assert.Error(t, Range("d", 0, 1)(column(t, "d", "NaN")))
	assert.Error(t, MinBound("q", 1)(column(t, "q", "+Inf")))
}

func TestForEntity(t *testing.T) {
	for _, e := range model.Entities {
		s, err := ForEntity(e)
		require.NoError(t, err, e)
		assert.Equal(t, e, s.Entity)
		assert.NotEmpty(t, s.Checks)
	}
	_, err := ForEntity("nope")
	assert.Error(t, err)
}

func TestSuite_InvoiceFailFast(t *testing.T) {
	cols := []string{"order_id", "line_no", "order_date", "ship_date", "customer_id", "product_id",
		"sale_value", "quantity", "profit", "shipping_cost", "discount"}
	good := []string{"CA-1", "1", "2020-01-01", "2020-01-03", "AB-123000000000000", "FUR/BOO-100012",
		"10.5", "2", "1.25", "3", "0.2"}
	bad := append([]string(nil), good...)
	bad[5] = "ABC-123456"

	s, err := ForEntity(model.EntityInvoice)
	require.NoError(t, err)

	tbl, err := table.Load(cols, [][]string{good})
	require.NoError(t, err)
	assert.NoError(t, s.Run(tbl))

	tbl, err = table.Load(cols, [][]string{good, bad})
	require.NoError(t, err)
	err = s.Run(tbl)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "product_id format")
}

func TestSuite_Shipping(t *testing.T) {
	cols := append(append([]string(nil), model.ShippingColumns...), model.ColRegionID)
	tbl, err := table.Load(cols, [][]string{
		{"1", "AB-123000000000000", "1 Main", "Austin", "Texas", "United States", "73301", "2020-01-01", "", "12"},
	})
	require.NoError(t, err)

	s, err := ForEntity(model.EntityShipping)
	require.NoError(t, err)
	assert.NoError(t, s.Run(tbl))

	tbl.Set(0, model.ColPostalCode, table.S("PO Box 1"))
	assert.Error(t, s.Run(tbl))
}
