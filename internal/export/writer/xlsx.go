package writer

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Sheet1"
	// About 20k rows of report columns stays well under excelize's 16 MiB
	// StreamChunkSize, past which the sheet is buffered in a temp file.
	defaultMaxXLSXRows = 20000
)

// xlsxWriter buffers the sheet in memory and writes the workbook on Close.
// Rows past maxRows are counted and replaced by a note row.
type xlsxWriter struct {
	out       io.Writer
	file      *excelize.File
	stream    *excelize.StreamWriter
	row       int
	maxRows   int
	rows      int
	truncated int
}

func newXLSX(w io.Writer, opts Options) (*xlsxWriter, error) {
	f := excelize.NewFile()
	if opts.Title != "" {
		_ = f.SetDocProps(&excelize.DocProperties{Title: opts.Title, Creator: "opspulse"})
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open xlsx stream: %w", err)
	}
	maxRows := opts.MaxXLSXRows
	if maxRows <= 0 {
		maxRows = defaultMaxXLSXRows
	}
	// Header and note row share the sheet with the data.
	maxRows = min(maxRows, excelize.TotalRows-2)
	return &xlsxWriter{out: w, file: f, stream: sw, row: 1, maxRows: maxRows}, nil
}

func (x *xlsxWriter) WriteHeader(columns []string) error {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	return x.writeRow(values)
}

func (x *xlsxWriter) WriteRow(values []any) error {
	if x.rows >= x.maxRows {
		x.truncated++
		return nil
	}
	x.rows++
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = xlsxCell(v)
	}
	return x.writeRow(cells)
}

func (x *xlsxWriter) writeRow(values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	if err := x.stream.SetRow(cell, values); err != nil {
		return err
	}
	x.row++
	return nil
}

func (x *xlsxWriter) Close() error {
	defer x.file.Close()
	if x.truncated > 0 {
		note := fmt.Sprintf("%d more rows omitted; export as csv for the full dataset.", x.truncated)
		if err := x.writeRow([]any{note}); err != nil {
			return err
		}
	}
	if err := x.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx stream: %w", err)
	}
	if _, err := x.file.WriteTo(x.out); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func xlsxCell(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return val.InexactFloat64()
	case time.Time:
		return val.UTC()
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC()
	case string, int, int64, float64, nil:
		return val
	default:
		return FormatCell(val)
	}
}
