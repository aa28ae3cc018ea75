// Package convert turns the raw entity exports (xlsx, xml, json, tab text and
// extract csv) into tables.
package convert

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/model"
	"github.com/sells-group/sales-etl/internal/table"
)

var (
	// ErrFileNotFound is returned when the raw file does not exist.
	ErrFileNotFound = eris.New("convert: file not found")
	// ErrConversion is returned when the raw file cannot be parsed into a table.
	ErrConversion = eris.New("convert: data could not be converted")
)

// Format names a raw file layout.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatXML     Format = "xml"
	FormatJSON    Format = "json"
	FormatTabText Format = "txt"
	FormatExtract Format = "extract"
)

// Func parses one raw file into a table.
type Func func(ctx context.Context, path string) (*table.Table, error)

// FormatFor returns the raw layout each entity is exported in.
func FormatFor(entity string) (Format, error) {
	switch entity {
	case model.EntityCustomer:
		return FormatXLSX, nil
	case model.EntityInvoice:
		return FormatXML, nil
	case model.EntityProduct:
		return FormatJSON, nil
	case model.EntityRegion:
		return FormatTabText, nil
	case model.EntityShipping:
		return FormatExtract, nil
	}
	return "", eris.Errorf("convert: unknown entity %q", entity)
}

func converter(f Format) (Func, error) {
	switch f {
	case FormatXLSX:
		return XLSX, nil
	case FormatXML:
		return XML, nil
	case FormatJSON:
		return JSON, nil
	case FormatTabText:
		return TabText, nil
	case FormatExtract:
		return Extract, nil
	}
	return nil, eris.Errorf("convert: unknown format %q", f)
}

// File converts path using the given format. Missing files wrap ErrFileNotFound and
// parse failures wrap ErrConversion.
func File(ctx context.Context, f Format, path string) (*table.Table, error) {
	fn, err := converter(f)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("component", "convert"), zap.String("path", path), zap.String("format", string(f)))

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Error("file not found")
			return nil, eris.Wrapf(ErrFileNotFound, "%s", path)
		}
		return nil, eris.Wrapf(err, "convert: stat %s", path)
	}

	t, err := fn(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "convert: cancelled")
		}
		log.Error("data could not be converted", zap.Error(err))
		return nil, eris.Wrapf(ErrConversion, "%s: %v", path, err)
	}
	log.Info("raw file converted", zap.Int("rows", t.Len()), zap.Int("columns", len(t.Columns())))
	return t, nil
}

// builder accumulates records whose columns are discovered as they appear.
type builder struct {
	columns []string
	index   map[string]int
	rows    []map[string]string
}

func newBuilder() *builder {
	return &builder{index: make(map[string]int)}
}

// add records one row given as ordered (column, value) pairs.
func (b *builder) add(keys, values []string) {
	row := make(map[string]string, len(keys))
	for i, k := range keys {
		if _, ok := b.index[k]; !ok {
			b.index[k] = len(b.columns)
			b.columns = append(b.columns, k)
		}
		row[k] = values[i]
	}
	b.rows = append(b.rows, row)
}

func (b *builder) table() (*table.Table, error) {
	rows := make([][]string, len(b.rows))
	for i, r := range b.rows {
		out := make([]string, len(b.columns))
		for k, v := range r {
			out[b.index[k]] = v
		}
		rows[i] = out
	}
	return table.Load(b.columns, rows)
}
