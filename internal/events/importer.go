// Package events imports calendar entries from reviewer-uploaded CSV files.
package events

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"gazette/internal/core"
)

// ImportResult summarizes one CSV import.
type ImportResult struct {
	Events  []core.Event
	Skipped int // rows dropped: placeholder rows and rows that failed to parse
	Errors  []string
}

// Header layout expected in uploads. A first row matching these names (in any
// case) is treated as a header and ignored.
var expectedColumns = []string{"title", "description", "location", "starts_at", "ends_at", "url", "image_url"}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"01/02/2006 15:04",
	"01/02/2006",
}

// ParseCSV reads events from r. Rows containing the word "example" in any
// field are treated as template placeholders left in the spreadsheet and are
// skipped, counted in Skipped. Malformed rows are skipped with a recorded
// error instead of failing the whole upload.
func ParseCSV(r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &ImportResult{}
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line++

		if line == 1 && isHeader(record) {
			continue
		}
		if isBlank(record) {
			continue
		}
		if containsExample(record) {
			result.Skipped++
			continue
		}

		event, err := parseRow(record)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("row %d: %v", line, err))
			continue
		}
		result.Events = append(result.Events, *event)
	}
	return result, nil
}

func isHeader(record []string) bool {
	if len(record) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(record[0]), expectedColumns[0])
}

func isBlank(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

func containsExample(record []string) bool {
	for _, field := range record {
		if strings.Contains(strings.ToLower(field), "example") {
			return true
		}
	}
	return false
}

func parseRow(record []string) (*core.Event, error) {
	if len(record) < 4 {
		return nil, fmt.Errorf("expected at least 4 columns, got %d", len(record))
	}

	field := func(i int) string {
		if i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	title := field(0)
	if title == "" {
		return nil, fmt.Errorf("missing title")
	}

	startsAt, err := parseDate(field(3))
	if err != nil {
		return nil, fmt.Errorf("bad starts_at %q", field(3))
	}
	endsAt := startsAt
	if raw := field(4); raw != "" {
		endsAt, err = parseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("bad ends_at %q", raw)
		}
	}

	return &core.Event{
		ID:          uuid.NewString(),
		Title:       title,
		Description: field(1),
		Location:    field(2),
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		URL:         field(5),
		ImageURL:    field(6),
	}, nil
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
