package data

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Error types for match import
var (
	ErrCSVFormat = errors.New("CSV format error")
)

// PlaceholderPrefix marks a roster cell that names an unclaimed placeholder slot
const PlaceholderPrefix = "~"

// Match CSV columns. Only the roster and score columns are required.
const (
	ColumnID         = "id"
	ColumnSeason     = "season_id"
	ColumnOccurredAt = "occurred_at"
	ColumnA1         = "a1"
	ColumnA2         = "a2"
	ColumnB1         = "b1"
	ColumnB2         = "b2"
	ColumnScoreA     = "score_a"
	ColumnScoreB     = "score_b"
	ColumnRanked     = "ranked"
)

var rosterColumns = [4]string{ColumnA1, ColumnA2, ColumnB1, ColumnB2}

// CSVParseError represents an error encountered while parsing a CSV row
type CSVParseError struct {
	RowNumber int    `json:"row_number"`
	Field     string `json:"field"`
	Value     string `json:"value"`
	Message   string `json:"error"`
}

// Error implements the error interface
func (e CSVParseError) Error() string {
	return fmt.Sprintf("row %d, field '%s' (value: '%s'): %s", e.RowNumber, e.Field, e.Value, e.Message)
}

// MatchImportResult contains the matches parsed from a CSV source
type MatchImportResult struct {
	Matches        []Match         `json:"matches"`
	ParseErrors    []CSVParseError `json:"parse_errors,omitempty"`
	SkippedRows    []int           `json:"skipped_rows,omitempty"`
	TotalRows      int             `json:"total_rows"`
	SuccessfulRows int             `json:"successful_rows"`
}

// LoadMatchesFromCSV reads a match CSV file. seasonID is used for rows without a season column.
func LoadMatchesFromCSV(filename, seasonID string, config ImportConfig) (*MatchImportResult, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open %s: %v", ErrCSVFormat, filename, err)
	}
	defer func() { _ = file.Close() }()

	return ParseMatchesCSV(file, seasonID, config)
}

// ParseMatchesCSV parses match rows. A roster cell holds a player ID, or a placeholder slot ID
// prefixed with "~". Rows that fail to parse are reported in ParseErrors and left out.
func ParseMatchesCSV(reader io.Reader, seasonID string, config ImportConfig) (*MatchImportResult, error) {
	csvReader := csv.NewReader(reader)
	if config.Delimiter != "" {
		csvReader.Comma = rune(config.Delimiter[0])
	}
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", ErrCSVFormat, err)
	}

	result := &MatchImportResult{
		Matches:   []Match{},
		TotalRows: len(records),
	}
	if len(records) == 0 {
		return result, nil
	}

	columns, startRow, err := matchColumns(records[0], config.HasHeader)
	if err != nil {
		return nil, err
	}

	for rowIdx := startRow; rowIdx < len(records); rowIdx++ {
		row := records[rowIdx]
		if isEmptyRow(row) {
			result.SkippedRows = append(result.SkippedRows, rowIdx+1)
			continue
		}

		match, parseErr := parseMatchRow(row, rowIdx+1, columns, seasonID, config)
		if parseErr != nil {
			result.ParseErrors = append(result.ParseErrors, *parseErr)
			continue
		}

		result.Matches = append(result.Matches, *match)
		result.SuccessfulRows++
	}

	return result, nil
}

// matchColumns maps column names to indices. Without a header the documented column order is assumed.
func matchColumns(first []string, hasHeader bool) (map[string]int, int, error) {
	columns := make(map[string]int)
	if !hasHeader {
		order := []string{ColumnID, ColumnSeason, ColumnOccurredAt, ColumnA1, ColumnA2, ColumnB1, ColumnB2, ColumnScoreA, ColumnScoreB, ColumnRanked}
		for i, name := range order {
			columns[name] = i
		}
		return columns, 0, nil
	}

	for i, header := range first {
		columns[strings.TrimSpace(strings.ToLower(header))] = i
	}

	required := append(rosterColumns[:], ColumnScoreA, ColumnScoreB)
	for _, name := range required {
		if _, ok := columns[name]; !ok {
			return nil, 0, fmt.Errorf("%w: required column '%s' not found", ErrCSVFormat, name)
		}
	}
	return columns, 1, nil
}

func cell(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseMatchRow(row []string, rowNum int, columns map[string]int, seasonID string, config ImportConfig) (*Match, *CSVParseError) {
	match := Match{
		ID:           cell(row, columns, ColumnID),
		SeasonID:     cell(row, columns, ColumnSeason),
		RankedIntent: config.DefaultRanked,
	}
	if match.ID == "" {
		match.ID = uuid.NewString()
	}
	if match.SeasonID == "" {
		match.SeasonID = seasonID
	}

	occurred := cell(row, columns, ColumnOccurredAt)
	if occurred == "" {
		return nil, &CSVParseError{RowNumber: rowNum, Field: ColumnOccurredAt, Message: "occurrence time is required"}
	}
	at, err := ParseTimestamp(occurred)
	if err != nil {
		return nil, &CSVParseError{RowNumber: rowNum, Field: ColumnOccurredAt, Value: occurred, Message: err.Error()}
	}
	match.OccurredAt = at

	var slots [4]RosterSlot
	for i, name := range rosterColumns {
		value := cell(row, columns, name)
		if value == "" {
			return nil, &CSVParseError{RowNumber: rowNum, Field: name, Message: "roster cell is empty"}
		}
		if strings.HasPrefix(value, PlaceholderPrefix) {
			slotID := strings.TrimSpace(strings.TrimPrefix(value, PlaceholderPrefix))
			if slotID == "" {
				return nil, &CSVParseError{RowNumber: rowNum, Field: name, Value: value, Message: "placeholder needs a slot ID"}
			}
			slots[i] = RosterSlot{SlotID: slotID}
			continue
		}
		slots[i] = RosterSlot{SlotID: match.ID + "/" + name, PlayerID: value}
	}
	match.TeamA = [2]RosterSlot{slots[0], slots[1]}
	match.TeamB = [2]RosterSlot{slots[2], slots[3]}

	for _, field := range []string{ColumnScoreA, ColumnScoreB} {
		value := cell(row, columns, field)
		if value == "" {
			continue
		}
		score, err := strconv.Atoi(value)
		if err != nil {
			return nil, &CSVParseError{RowNumber: rowNum, Field: field, Value: value, Message: "score must be an integer"}
		}
		if field == ColumnScoreA {
			match.TeamAScore = IntPtr(score)
		} else {
			match.TeamBScore = IntPtr(score)
		}
	}

	if value := cell(row, columns, ColumnRanked); value != "" {
		ranked, err := strconv.ParseBool(value)
		if err != nil {
			return nil, &CSVParseError{RowNumber: rowNum, Field: ColumnRanked, Value: value, Message: "ranked must be a boolean"}
		}
		match.RankedIntent = ranked
	}

	if err := match.Validate(); err != nil {
		return nil, &CSVParseError{RowNumber: rowNum, Field: "match", Value: match.ID, Message: err.Error()}
	}

	return &match, nil
}

// ParseTimestamp accepts RFC 3339 timestamps or plain calendar days
func ParseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected RFC 3339 time or YYYY-MM-DD, got %q", value)
	}
	return t, nil
}

// isEmptyRow checks if a CSV row is empty or contains only whitespace
func isEmptyRow(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
