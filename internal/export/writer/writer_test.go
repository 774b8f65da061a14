package writer

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func TestFormatCell(t *testing.T) {
	ts := time.Date(2026, 3, 1, 8, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"a", "a"},
		{decimal.RequireFromString("12.5000"), "12.5"},
		{int64(42), "42"},
		{0.25, "0.25"},
		{ts, "2026-03-01T01:30:00Z"},
		{(*time.Time)(nil), ""},
	}
	for _, tc := range cases {
		if got := FormatCell(tc.in); got != tc.want {
			t.Fatalf("FormatCell(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCSVWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := New("csv", &buf, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.WriteHeader([]string{"date", "revenue"}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := w.WriteRow([]any{"2026-03-01", decimal.RequireFromString("600")}); err != nil {
		t.Fatalf("row: %v", err)
	}
	if err := w.WriteRow([]any{"2026-03-02", "a,b"}); err != nil {
		t.Fatalf("row: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	want := "date,revenue\n2026-03-01,600\n2026-03-02,\"a,b\"\n"
	if buf.String() != want {
		t.Fatalf("unexpected csv %q", buf.String())
	}
}

func TestXLSXWriter(t *testing.T) {
	var buf bytes.Buffer
	w, err := New("xlsx", &buf, Options{Title: "snapshots"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.WriteHeader([]string{"date", "orders"}); err != nil {
		t.Fatalf("header: %v", err)
	}
	if err := w.WriteRow([]any{"2026-03-01", int64(3)}); err != nil {
		t.Fatalf("row: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != "date" || rows[1][1] != "3" {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestXLSXWriterCapsRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := New("xlsx", &buf, Options{MaxXLSXRows: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = w.WriteHeader([]string{"date", "orders"})
	for i := 0; i < 5; i++ {
		if err := w.WriteRow([]any{"2026-03-01", int64(i)}); err != nil {
			t.Fatalf("row: %v", err)
		}
	}
	xw := w.(*xlsxWriter)
	if xw.rows != 2 || xw.truncated != 3 {
		t.Fatalf("expected 2 written and 3 truncated, got %d/%d", xw.rows, xw.truncated)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(sheetName)
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected header, 2 rows and a note, got %v", rows)
	}
	if rows[2][1] != "1" || !strings.HasPrefix(rows[3][0], "3 more rows omitted") {
		t.Fatalf("unexpected rows %v", rows)
	}
}

func TestXLSXWriterDefaultCap(t *testing.T) {
	w, err := New("xlsx", &bytes.Buffer{}, Options{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer w.Close()
	if got := w.(*xlsxWriter).maxRows; got != defaultMaxXLSXRows {
		t.Fatalf("expected default cap %d, got %d", defaultMaxXLSXRows, got)
	}
}

func TestPDFWriterCapsRows(t *testing.T) {
	var buf bytes.Buffer
	w, err := New("pdf", &buf, Options{Title: "alerts", MaxPDFRows: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_ = w.WriteHeader([]string{"metric", "value"})
	for i := 0; i < 5; i++ {
		if err := w.WriteRow([]any{"avg_ticket", int64(i)}); err != nil {
			t.Fatalf("row: %v", err)
		}
	}
	pw := w.(*pdfWriter)
	if pw.rows != 2 || pw.truncated != 3 {
		t.Fatalf("expected 2 rendered and 3 truncated, got %d/%d", pw.rows, pw.truncated)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "%PDF") {
		t.Fatalf("expected pdf output")
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := New("docx", &bytes.Buffer{}, Options{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
