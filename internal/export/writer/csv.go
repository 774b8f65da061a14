package writer

import (
	"encoding/csv"
	"io"
)

const csvFlushEvery = 256

type csvWriter struct {
	w       *csv.Writer
	pending int
	record  []string
}

func newCSV(w io.Writer) *csvWriter {
	return &csvWriter{w: csv.NewWriter(w)}
}

func (c *csvWriter) WriteHeader(columns []string) error {
	return c.w.Write(columns)
}

func (c *csvWriter) WriteRow(values []any) error {
	c.record = c.record[:0]
	for _, v := range values {
		c.record = append(c.record, FormatCell(v))
	}
	if err := c.w.Write(c.record); err != nil {
		return err
	}
	c.pending++
	if c.pending >= csvFlushEvery {
		c.pending = 0
		c.w.Flush()
		return c.w.Error()
	}
	return nil
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	return c.w.Error()
}
