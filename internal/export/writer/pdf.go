package writer

import (
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

const (
	defaultMaxPDFRows = 2000
	gridColumns       = 12
)

// pdfWriter lays rows out as they arrive; the document is only rendered on Close.
type pdfWriter struct {
	out       io.Writer
	m         core.Maroto
	maxRows   int
	rows      int
	truncated int
}

func newPDF(w io.Writer, opts Options) *pdfWriter {
	maxRows := opts.MaxPDFRows
	if maxRows <= 0 {
		maxRows = defaultMaxPDFRows
	}
	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)
	if opts.Title != "" {
		m.AddRow(12,
			text.NewCol(gridColumns, opts.Title, props.Text{
				Size:  14,
				Style: fontstyle.Bold,
				Align: align.Left,
			}),
		)
	}
	return &pdfWriter{out: w, m: m, maxRows: maxRows}
}

func (p *pdfWriter) WriteHeader(columns []string) error {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	p.m.AddRow(8, p.cols(values, props.Text{Size: 7, Style: fontstyle.Bold})...)
	return nil
}

func (p *pdfWriter) WriteRow(values []any) error {
	if p.rows >= p.maxRows {
		p.truncated++
		return nil
	}
	p.rows++
	p.m.AddRow(6, p.cols(values, props.Text{Size: 7})...)
	return nil
}

func (p *pdfWriter) Close() error {
	if p.truncated > 0 {
		p.m.AddRow(10,
			text.NewCol(gridColumns, fmt.Sprintf("%d more rows omitted; export as csv or xlsx for the full dataset.", p.truncated),
				props.Text{Size: 8, Style: fontstyle.Italic, Top: 3}),
		)
	}
	doc, err := p.m.Generate()
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	_, err = p.out.Write(doc.GetBytes())
	return err
}

// cols spreads values over the 12-column grid. Leftover width goes to the first column.
func (p *pdfWriter) cols(values []any, style props.Text) []core.Col {
	n := len(values)
	if n == 0 {
		return []core.Col{col.New(gridColumns)}
	}
	if n > gridColumns {
		n = gridColumns
	}
	width := gridColumns / n
	out := make([]core.Col, 0, n)
	for i := 0; i < n; i++ {
		w := width
		if i == 0 {
			w += gridColumns - width*n
		}
		out = append(out, text.NewCol(w, FormatCell(values[i]), style))
	}
	return out
}
