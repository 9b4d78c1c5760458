package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct {
	// QuoteAll wraps every field in double quotes, not only the ones that need it.
	QuoteAll bool
}

// NewCSVExporter builds a CSV exporter that quotes every field.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{QuoteAll: true}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	if e.QuoteAll {
		return renderQuoted(data), nil
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		if err := writer.Write(record(data.Headers, row)); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// renderQuoted writes RFC 4180 output with every field quoted, which
// encoding/csv.Writer cannot be configured to do.
func renderQuoted(data Dataset) []byte {
	buf := &bytes.Buffer{}
	writeQuotedLine(buf, data.Headers)
	for _, row := range data.Rows {
		writeQuotedLine(buf, record(data.Headers, row))
	}
	return buf.Bytes()
}

func writeQuotedLine(buf *bytes.Buffer, fields []string) {
	for i, field := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(field, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

func record(headers []string, row map[string]string) []string {
	out := make([]string, len(headers))
	for i, header := range headers {
		out[i] = row[header]
	}
	return out
}
