package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/sales-etl/internal/config"
	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/reconcile"
	"github.com/sells-group/sales-etl/internal/store"
	"github.com/sells-group/sales-etl/internal/table"
	"github.com/sells-group/sales-etl/internal/transform"
)

const invoiceXML = `<?xml version="1.0" encoding="UTF-8"?>
<data>
  <row>
    <Order_ID>CA-2019-1</Order_ID><Line_No>1</Line_No>
    <Order_Date>08/11/2019</Order_Date><Ship_Date>11/11/2019</Ship_Date>
    <Ship_Mode>Second Class</Ship_Mode><Customer_ID>CG-12520</Customer_ID>
    <Product_ID>FUR/BOO-100012</Product_ID><Sale_Value>261.9600</Sale_Value>
    <Quantity>2</Quantity><Discount>0</Discount><Profit>41.9136</Profit>
    <Shipping_Cost>35.46</Shipping_Cost><Order_Priority>Medium</Order_Priority>
  </row>
  <row>
    <Order_ID>CA-2019-1</Order_ID><Line_No>2</Line_No>
    <Order_Date>08/11/2019</Order_Date><Ship_Date>11/11/2019</Ship_Date>
    <Ship_Mode>Standard Class</Ship_Mode><Customer_ID>CG-12520</Customer_ID>
    <Product_ID>OFF/LAB-100002</Product_ID><Sale_Value>14.62</Sale_Value>
    <Quantity>2</Quantity><Discount>0.2</Discount><Profit>6.8714</Profit>
    <Shipping_Cost>1.5</Shipping_Cost><Order_Priority>High</Order_Priority>
  </row>
</data>
`

const validProductJSON = `[
  {"Product_ID": "FUR/BOO-100012", "Category": "Furniture", "Sub-Category": "Bookcases", "Product_Name": "Bush Somerset"},
  {"Product_ID": "OFF/LAB-100002", "Category": "Office Supplies", "Sub-Category": "Labels", "Product_Name": "Avery"}
]`

const regionText = "Region_ID\tState\tCountry\tRegion\tMarket\n" +
	"0\t1\tWashington\tUnited States\tWest\tUS\n" +
	"1\t2\tCalifornia\tUnited States\tWest\tUS\n" +
	"2\t3\tCalifornia\tUnited States\tPacific\tUS\n" +
	"3\t4\tUlaanbaatar\tMongolia\tAsia\tAsia\n"

const shippingExtract = "Shipping Address Report\n" +
	"Generated,2020-06-01\n" +
	"Source,CRM\n" +
	"\n" +
	"Filter,All\n" +
	"Rows,3\n" +
	"id,customerid,streetadd,city,state,country,postal_code,effstart,effend\n" +
	"1,CG-12520,123 Main St,Seattle,Washington,US,98101,01/02/2020,31/12/2021\n" +
	"2,DV-13045,9 Elm St,Los Angeles,\"California,United States,90001,05/03/2020,06/03/2021\n" +
	"3,SO-20335,1 Pine Rd,Perth,Western Australia,Australia,6000,01/01/2020,01/01/2021\n" +
	"Total,3\n"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Paths: config.PathsConfig{
			Raw:         filepath.Join(root, "raw"),
			Source:      filepath.Join(root, "source"),
			Transformed: filepath.Join(root, "transformed"),
			Validated:   filepath.Join(root, "validated"),
		},
		Raw: config.RawConfig{
			Customer: "cust.xlsx",
			Invoice:  "invoice.xml",
			Product:  "product.json",
			Region:   "regiontxt",
			Shipping: "shippingaddress.csv",
		},
		Transform: config.TransformConfig{
			CustomerIDWidth: transform.DefaultCustomerIDWidth,
			DateLayout:      "2/1/2006",
			CountryAliases:  config.DefaultCountryAliases(),
			RegionPatches:   transform.DefaultRegionPatches(),
		},
		Warehouse: config.WarehouseConfig{Schema: "sales"},
	}
}

func writeRaw(t *testing.T, cfg *config.Config, entity, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.Paths.Raw, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Paths.Raw, cfg.Raw.File(entity)), []byte(content), 0o644))
}

func writeRawCustomers(t *testing.T, cfg *config.Config) {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("customers")
	require.NoError(t, err)
	for _, rowData := range [][]string{
		{"CUSID", "CUSNM", "SGMNT"},
		{"00-CG-12520", "Claire Gute", "Consumer"},
		{"00-DV-13045", "Darrin Van Huff", "Corporate"},
		{"00-DV-13045", "Darrin Van Huff", "Corporate"},
	} {
		row := sheet.AddRow()
		for _, cell := range rowData {
			row.AddCell().SetString(cell)
		}
	}
	require.NoError(t, os.MkdirAll(cfg.Paths.Raw, 0o755))
	require.NoError(t, f.Save(filepath.Join(cfg.Paths.Raw, cfg.Raw.Customer)))
}

func writeRawFixtures(t *testing.T, cfg *config.Config, productJSON string) {
	t.Helper()
	writeRawCustomers(t, cfg)
	writeRaw(t, cfg, model.EntityInvoice, invoiceXML)
	writeRaw(t, cfg, model.EntityProduct, productJSON)
	writeRaw(t, cfg, model.EntityRegion, regionText)
	writeRaw(t, cfg, model.EntityShipping, shippingExtract)
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func reportFor(run *model.Run, stage model.Stage, entity string) *model.StageReport {
	for i := range run.Reports {
		if run.Reports[i].Stage == stage && run.Reports[i].Entity == entity {
			return &run.Reports[i]
		}
	}
	return nil
}

func TestEntities(t *testing.T) {
	got, err := Entities(nil)
	require.NoError(t, err)
	assert.Equal(t, model.Entities, got)

	got, err = Entities([]string{model.EntityShipping, model.EntityCustomer})
	require.NoError(t, err)
	assert.Equal(t, []string{model.EntityCustomer, model.EntityShipping}, got)

	_, err = Entities([]string{"supplier"})
	assert.Error(t, err)
}

func TestRun_AllStages(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixtures(t, cfg, validProductJSON)
	st := newTestStore(t)
	ctx := context.Background()

	run, err := New(cfg, st).Run(ctx, model.StageAll, nil)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	require.Len(t, run.Reports, 15)
	for _, rep := range run.Reports {
		assert.Equal(t, model.RunStatusComplete, rep.Status, "%s %s: %s", rep.Stage, rep.Entity, rep.Error)
	}

	conv := reportFor(run, model.StageConvert, model.EntityCustomer)
	require.NotNil(t, conv)
	assert.Equal(t, 3, conv.RowsIn)

	cust := reportFor(run, model.StageTransform, model.EntityCustomer)
	require.NotNil(t, cust)
	assert.Equal(t, 2, cust.RowsOut)
	assert.Equal(t, 1, cust.DuplicateRows)

	region := reportFor(run, model.StageTransform, model.EntityRegion)
	require.NotNil(t, region)
	assert.Equal(t, 1, region.Patches["mongolia-north-asia"])

	ship := reportFor(run, model.StageTransform, model.EntityShipping)
	require.NotNil(t, ship)
	require.NotNil(t, ship.Reconciliation)
	assert.Equal(t, 1, ship.Reconciliation.Unique)
	assert.Equal(t, 2, ship.Reconciliation.DuplicatedByRegion)
	assert.Equal(t, 1, ship.Reconciliation.UnresolvedDropped)
	assert.Equal(t, 3, ship.RowsOut)

	shipping, err := table.ReadFile(filepath.Join(cfg.Paths.Validated, FileName(model.EntityShipping)))
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "2"}, col(shipping, model.ColShippingID))
	assert.Equal(t, []string{"United States", "United States", "United States"}, col(shipping, model.ColCountry))
	assert.Equal(t, []string{"Washington", "California", "California"}, col(shipping, model.ColState))
	assert.Equal(t, []string{"1", "2", "3"}, col(shipping, model.ColRegionID))
	assert.Equal(t, []string{"", reconcile.ReasonTwoRegions, reconcile.ReasonTwoRegions}, col(shipping, model.ColDuplicateReason))
	assert.Equal(t, []string{"2020-02-01", "2020-03-05", "2020-03-05"}, col(shipping, model.ColEffectiveStart))

	invoice, err := table.ReadFile(filepath.Join(cfg.Paths.Validated, FileName(model.EntityInvoice)))
	require.NoError(t, err)
	assert.Equal(t, []string{"2019-11-08", "2019-11-08"}, col(invoice, "order_date"))
	assert.Equal(t, []string{"261.96", "14.62"}, col(invoice, "sale_value"))
	assert.Equal(t, []string{"CG-125200000000000", "CG-125200000000000"}, col(invoice, "customer_id"))

	product, err := table.ReadFile(filepath.Join(cfg.Paths.Validated, FileName(model.EntityProduct)))
	require.NoError(t, err)
	assert.True(t, product.Has("sub_category_Bookcases"))
	assert.Equal(t, []string{"Bush Somerset", "Avery"}, col(product, "product_name"))

	stored, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, stored.Status)
	assert.Equal(t, model.StageAll, stored.Stage)
	assert.Len(t, stored.Reports, 15)
	require.NotNil(t, stored.CompletedAt)
}

func TestRun_ValidationFailureWritesNoValidatedFile(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixtures(t, cfg, `[{"Product_ID": "FUR-BOO-100012", "Category": "Furniture", "Sub-Category": "Bookcases"}]`)
	st := newTestStore(t)
	ctx := context.Background()

	run, err := New(cfg, st).Run(ctx, model.StageAll, nil)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStageFailed))
	assert.Contains(t, err.Error(), model.EntityProduct)
	assert.Equal(t, model.RunStatusFailed, run.Status)

	rep := reportFor(run, model.StageValidate, model.EntityProduct)
	require.NotNil(t, rep)
	assert.Equal(t, model.RunStatusFailed, rep.Status)
	assert.Contains(t, rep.Error, "product id")

	_, statErr := os.Stat(filepath.Join(cfg.Paths.Validated, FileName(model.EntityProduct)))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(cfg.Paths.Validated, FileName(model.EntityCustomer)))
	assert.NoError(t, statErr)

	stored, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.Error)
}

func TestRun_MissingRawFileStopsAfterConvert(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixtures(t, cfg, validProductJSON)
	require.NoError(t, os.Remove(filepath.Join(cfg.Paths.Raw, cfg.Raw.Shipping)))

	run, err := New(cfg, nil).Run(context.Background(), model.StageAll, nil)
	require.Error(t, err)
	assert.Equal(t, "local", run.ID)
	require.Len(t, run.Reports, 5, "only the convert stage ran")

	ship := reportFor(run, model.StageConvert, model.EntityShipping)
	require.NotNil(t, ship)
	assert.Equal(t, model.RunStatusFailed, ship.Status)
	assert.Contains(t, ship.Error, "file not found")

	cust := reportFor(run, model.StageConvert, model.EntityCustomer)
	require.NotNil(t, cust)
	assert.Equal(t, model.RunStatusComplete, cust.Status)

	_, statErr := os.Stat(cfg.Paths.Transformed)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_TransformSubset(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixtures(t, cfg, validProductJSON)
	e := New(cfg, nil)
	ctx := context.Background()

	_, err := e.Run(ctx, model.StageConvert, nil)
	require.NoError(t, err)

	run, err := e.Run(ctx, model.StageTransform, []string{model.EntityProduct})
	require.NoError(t, err)
	require.Len(t, run.Reports, 1)
	assert.Equal(t, model.EntityProduct, run.Reports[0].Entity)

	// Shipping without a transformed region table fails on its own.
	run, err = e.Run(ctx, model.StageTransform, []string{model.EntityShipping})
	require.Error(t, err)
	assert.Contains(t, run.Reports[0].Error, "transformed regions")
}

func TestRun_UnknownStage(t *testing.T) {
	st := newTestStore(t)
	_, err := New(testConfig(t), st).Run(context.Background(), model.Stage("publish"), nil)
	require.Error(t, err)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)
}

type fakeAcquirer struct {
	mu    sync.Mutex
	calls []string
	fail  string
}

func (f *fakeAcquirer) Acquire(_ context.Context, rawURL, destDir, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if strings.Contains(rawURL, f.fail) && f.fail != "" {
		return "", eris.New("fetcher: unexpected status 404")
	}
	path := filepath.Join(destDir, name)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, []byte("x"), 0o644)
}

func TestRun_Fetch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Fetch.URLs = map[string]string{
		model.EntityInvoice: "https://exports.example.com/invoice.xml",
		model.EntityRegion:  "ftp://ftp.example.com/regiontxt",
	}
	acq := &fakeAcquirer{fail: "ftp://"}
	e := New(cfg, nil)
	e.Acquirer = acq

	run, err := e.Run(context.Background(), model.StageFetch, []string{model.EntityCustomer, model.EntityInvoice, model.EntityRegion})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrStageFailed))
	assert.Len(t, acq.calls, 2)

	cust := reportFor(run, model.StageFetch, model.EntityCustomer)
	require.NotNil(t, cust)
	assert.Equal(t, model.RunStatusComplete, cust.Status)
	assert.Equal(t, []string{"no fetch url configured"}, cust.Warnings)

	inv := reportFor(run, model.StageFetch, model.EntityInvoice)
	require.NotNil(t, inv)
	assert.Equal(t, filepath.Join(cfg.Paths.Raw, "invoice.xml"), inv.Output)
	assert.FileExists(t, inv.Output)

	reg := reportFor(run, model.StageFetch, model.EntityRegion)
	require.NotNil(t, reg)
	assert.Equal(t, model.RunStatusFailed, reg.Status)
}

func TestRun_FetchNeedsAcquirer(t *testing.T) {
	_, err := New(testConfig(t), nil).Run(context.Background(), model.StageFetch, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no acquirer")
}

type loadCall struct {
	entity string
	rows   int
	keys   []string
}

type fakeLoader struct {
	calls []loadCall
}

func (f *fakeLoader) Load(_ context.Context, entity string, t *table.Table, keys []string) (int64, error) {
	f.calls = append(f.calls, loadCall{entity: entity, rows: t.Len(), keys: keys})
	return int64(t.Len()), nil
}

func TestRun_Load(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixtures(t, cfg, validProductJSON)
	e := New(cfg, nil)
	ctx := context.Background()

	_, err := e.Run(ctx, model.StageAll, []string{model.EntityCustomer, model.EntityProduct})
	require.NoError(t, err)

	loader := &fakeLoader{}
	e.Loader = loader
	e.Keys = func(entity string) []string {
		if entity == model.EntityCustomer {
			return []string{"customer_id"}
		}
		return nil
	}

	run, err := e.Run(ctx, model.StageLoad, []string{model.EntityCustomer, model.EntityProduct, model.EntityRegion})
	require.Error(t, err, "region was never validated")

	require.Len(t, loader.calls, 2)
	assert.Equal(t, loadCall{entity: model.EntityCustomer, rows: 2, keys: []string{"customer_id"}}, loader.calls[0])
	assert.Equal(t, model.EntityProduct, loader.calls[1].entity)
	assert.Nil(t, loader.calls[1].keys)

	cust := reportFor(run, model.StageLoad, model.EntityCustomer)
	require.NotNil(t, cust)
	assert.Equal(t, "sales.customer", cust.Output)
	assert.Equal(t, 2, cust.RowsOut)

	reg := reportFor(run, model.StageLoad, model.EntityRegion)
	require.NotNil(t, reg)
	assert.Equal(t, model.RunStatusFailed, reg.Status)
}

func TestRun_Cancelled(t *testing.T) {
	cfg := testConfig(t)
	writeRawFixtures(t, cfg, validProductJSON)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := New(cfg, nil).Run(ctx, model.StageConvert, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context canceled")
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Empty(t, run.Reports)
}
