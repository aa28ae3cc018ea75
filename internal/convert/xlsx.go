package convert

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/sales-etl/internal/table"
)

// XLSX converts every sheet of a workbook. The first row of each sheet is its
// header; sheets are stacked in workbook order with columns unioned by name.
func XLSX(ctx context.Context, path string) (*table.Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: workbook has no sheets")
	}
	if len(f.Sheets) > 1 {
		zap.L().Warn("xlsx: concatenating multiple sheets",
			zap.String("component", "convert"),
			zap.String("path", path),
			zap.Int("sheets", len(f.Sheets)),
		)
	}

	b := newBuilder()
	for _, sheet := range f.Sheets {
		if err := readSheet(ctx, sheet, b); err != nil {
			return nil, err
		}
	}
	return b.table()
}

func readSheet(ctx context.Context, sheet *xlsx.Sheet, b *builder) error {
	var header []string
	for _, row := range sheet.Rows {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "xlsx: context cancelled")
		}
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if blank(cells) {
			continue
		}
		if header == nil {
			header = cells
			for i, h := range header {
				if h == "" {
					return eris.Errorf("xlsx: sheet %q: header column %d is empty", sheet.Name, i+1)
				}
			}
			continue
		}
		if len(cells) > len(header) {
			if !blank(cells[len(header):]) {
				return eris.Errorf("xlsx: sheet %q: row has %d cells, header has %d", sheet.Name, len(cells), len(header))
			}
			cells = cells[:len(header)]
		}
		b.add(header[:len(cells)], cells)
	}
	return nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
