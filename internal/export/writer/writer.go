// Package writer renders export rows into downloadable artifacts.
package writer

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

var ErrUnsupportedFormat = errors.New("unsupported_export_format")

// Writer receives one header and then rows. Close flushes the artifact to
// the underlying io.Writer; it does not close it.
type Writer interface {
	WriteHeader(columns []string) error
	WriteRow(values []any) error
	Close() error
}

type Options struct {
	Title string
	// MaxPDFRows caps rows rendered into PDFs. Extra rows are counted and noted.
	MaxPDFRows int
	// MaxXLSXRows caps spreadsheet rows so the sheet stays inside excelize's
	// in-memory stream buffer and never spills to a temp file.
	MaxXLSXRows int
}

func New(format string, w io.Writer, opts Options) (Writer, error) {
	switch format {
	case "csv":
		return newCSV(w), nil
	case "xlsx":
		return newXLSX(w, opts)
	case "pdf":
		return newPDF(w, opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// FormatCell renders a value for text-based formats.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case decimal.Decimal:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}
