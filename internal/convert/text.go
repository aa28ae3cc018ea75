package convert

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sales-etl/internal/table"
)

// streamDelimited reads delimiter-separated lines and sends them to a channel.
// Quotes carry no meaning: a field is the literal text between delimiters.
// Fields are trimmed, trailing empty fields dropped and blank lines skipped.
// Both channels are closed when processing completes.
func streamDelimited(ctx context.Context, r io.Reader, delim string) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "txt: context cancelled")
				return
			}

			line := scanner.Text()
			if strings.TrimSpace(line) == "" {
				continue
			}
			record := strings.Split(line, delim)
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}
			for len(record) > 0 && record[len(record)-1] == "" {
				record = record[:len(record)-1]
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "txt: context cancelled")
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errCh <- eris.Wrap(err, "txt: read line")
		}
	}()

	return rowCh, errCh
}

// TabText converts a tab-delimited export. When the header is one field shorter
// than the first data row, the leading field is an unnamed row index and is
// named "index".
func TabText(ctx context.Context, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "txt: open file")
	}
	defer f.Close() //nolint:errcheck

	rowCh, errCh := streamDelimited(ctx, f, "\t")
	var records [][]string
	for rec := range rowCh {
		records = append(records, rec)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.New("txt: file is empty")
	}

	header, rows := records[0], records[1:]
	if len(rows) > 0 && len(header) < len(rows[0]) {
		header = append([]string{"index"}, header...)
	}
	return table.Load(header, rows)
}

// extractPreamble is the number of report lines before the header of an extract CSV.
const extractPreamble = 6

// Extract converts a report-style CSV extract: six preamble lines, a header, the
// data rows and one trailing summary line. Each line is split on commas and
// blank tokens are dropped.
func Extract(ctx context.Context, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "extract: open file")
	}
	defer f.Close() //nolint:errcheck

	var lines [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "extract: context cancelled")
		}
		var tokens []string
		for _, tok := range strings.Split(scanner.Text(), ",") {
			if tok = strings.TrimSpace(tok); tok != "" {
				tokens = append(tokens, tok)
			}
		}
		lines = append(lines, tokens)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "extract: read line")
	}

	// preamble + header + trailer
	if len(lines) < extractPreamble+2 {
		return nil, eris.Errorf("extract: expected at least %d lines, got %d", extractPreamble+2, len(lines))
	}
	lines = lines[extractPreamble : len(lines)-1]
	return table.Load(lines[0], lines[1:])
}
