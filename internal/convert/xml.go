package convert

import (
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/sales-etl/internal/table"
)

// xmlRow captures every child element of a <row>.
type xmlRow struct {
	Fields []xmlField `xml:",any"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// streamXML decodes XML elements matching the given local name and sends them to a channel.
// Both channels are closed when processing completes.
func streamXML[T any](ctx context.Context, r io.Reader, elementName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != elementName {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// XML converts a document of <row> elements. Each child element becomes a column
// named after its tag; blank values are skipped and load as null.
func XML(ctx context.Context, path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "xml: open file")
	}
	defer f.Close() //nolint:errcheck

	b := newBuilder()
	rowCh, errCh := streamXML[xmlRow](ctx, f, "row")
	for row := range rowCh {
		var keys, values []string
		for _, field := range row.Fields {
			v := strings.TrimSpace(field.Value)
			if v == "" {
				continue
			}
			keys = append(keys, field.XMLName.Local)
			values = append(values, v)
		}
		b.add(keys, values)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return b.table()
}
