// Package marketdata provides the file-backed OHLCV pipeline: CSV ingestion,
// the sqlite bar store, and the in-memory price cache the analysts query.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/quantsmith/backcast/internal/domain"
)

// expectedHeader is the required CSV column set, in order.
var expectedHeader = []string{"date", "open", "high", "low", "close", "volume"}

// dateLayouts are the accepted date formats: ISO-8601 dates and datetimes.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseCSV reads one ticker's bar file. The file must carry the header
// `date,open,high,low,close,volume` and satisfy every bar invariant; any
// violation is a hard error — the engine never silently skips or
// re-interprets a malformed file.
func ParseCSV(ticker string, r io.Reader) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := validateHeader(header); err != nil {
		return nil, err
	}

	var bars []domain.Bar
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if len(record) != len(expectedHeader) {
			return nil, fmt.Errorf("line %d: expected %d columns, got %d", line, len(expectedHeader), len(record))
		}

		bar, err := parseBar(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("ticker %s: file contains no bars", ticker)
	}

	if err := domain.ValidateBarSeries(ticker, bars); err != nil {
		return nil, err
	}

	return bars, nil
}

// ParseCSVFile opens and parses a bar file from disk.
func ParseCSVFile(ticker, path string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open price file: %w", err)
	}
	defer f.Close()

	bars, err := ParseCSV(ticker, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

func validateHeader(header []string) error {
	if len(header) != len(expectedHeader) {
		return fmt.Errorf("expected header %v, got %v", expectedHeader, header)
	}
	for i, col := range header {
		if strings.ToLower(strings.TrimSpace(col)) != expectedHeader[i] {
			return fmt.Errorf("missing or misordered column: expected %q at position %d, got %q",
				expectedHeader[i], i, col)
		}
	}
	return nil
}

func parseBar(record []string) (domain.Bar, error) {
	date, err := ParseTimestamp(record[0])
	if err != nil {
		return domain.Bar{}, err
	}

	fields := make([]float64, 5)
	names := []string{"open", "high", "low", "close", "volume"}
	for i := 0; i < 5; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(record[i+1]), 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("invalid %s value %q", names[i], record[i+1])
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return domain.Bar{}, fmt.Errorf("non-finite %s value", names[i])
		}
		fields[i] = v
	}

	bar := domain.Bar{
		Date:   date,
		Open:   fields[0],
		High:   fields[1],
		Low:    fields[2],
		Close:  fields[3],
		Volume: fields[4],
	}
	if err := bar.Validate(); err != nil {
		return domain.Bar{}, err
	}
	return bar, nil
}

// ParseTimestamp parses an ISO-8601 date or datetime into a UTC timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: expected ISO-8601 date or datetime", s)
}
