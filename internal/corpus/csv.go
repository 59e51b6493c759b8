package corpus

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// Source supplies ordered taxonomy rows for a build.
type Source interface {
	// Rows returns the taxonomy rows in source order.
	Rows() ([]Row, error)

	// ModTime reports when the source data last changed, for cache
	// freshness checks. The zero time means unknown.
	ModTime() (time.Time, error)
}

// CSVSource reads taxonomy rows from a CSV file with a header line
// containing the columns name, slug, url and description.
type CSVSource struct {
	Path string
}

// NewCSVSource creates a source for the given CSV file path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{Path: path}
}

// Rows reads and parses the CSV file.
func (s *CSVSource) Rows() ([]Row, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("opening tags CSV: %w", err)
	}
	defer f.Close()
	return ParseCSV(f)
}

// ModTime returns the CSV file's modification time.
func (s *CSVSource) ModTime() (time.Time, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return time.Time{}, fmt.Errorf("stat tags CSV: %w", err)
	}
	return info.ModTime(), nil
}

// ParseCSV parses taxonomy rows from CSV data. All required columns must be
// present in the header; field values are whitespace-trimmed. Validation of
// the row contents happens in the corpus builder, not here.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty tags CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}

	// Strip a UTF-8 BOM exported by spreadsheet tools.
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range []string{"name", "slug", "url", "description"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("missing column %q in tags CSV", required)
		}
	}

	field := func(record []string, name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}
		rows = append(rows, Row{
			Name:        field(record, "name"),
			Slug:        field(record, "slug"),
			URL:         field(record, "url"),
			Description: field(record, "description"),
		})
	}
	return rows, nil
}
