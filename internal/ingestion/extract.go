package ingestion

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned when a format tag is not recognised.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// requiredMarker is appended to required headers in generated templates.
const requiredMarker = " *"

// Format identifies a source file layout.
type Format string

const (
	FormatDelimited   Format = "delimited"
	FormatSpreadsheet Format = "spreadsheet"
	FormatStructured  Format = "structured"
)

// ParseFormat resolves a format tag or its file-extension alias.
func ParseFormat(tag string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), ".")) {
	case "delimited", "csv":
		return FormatDelimited, nil
	case "spreadsheet", "xlsx":
		return FormatSpreadsheet, nil
	case "structured", "json":
		return FormatStructured, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, tag)
	}
}

// Extension is the conventional file suffix for the format.
func (f Format) Extension() string {
	switch f {
	case FormatDelimited:
		return ".csv"
	case FormatSpreadsheet:
		return ".xlsx"
	case FormatStructured:
		return ".json"
	default:
		return ""
	}
}

// ContentType is the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatDelimited:
		return "text/csv; charset=utf-8"
	case FormatSpreadsheet:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatStructured:
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// ExtractOptions tunes extraction. HeaderRow is the 1-based sheet row holding
// the headers of a spreadsheet; zero means the first row.
type ExtractOptions struct {
	HeaderRow int
}

// Extract turns a payload into raw rows. Rows whose cells are all empty are
// dropped and do not count towards the total.
func Extract(format Format, payload []byte, opts ExtractOptions) ([]domain.RawRow, error) {
	switch format {
	case FormatDelimited:
		return extractDelimited(payload)
	case FormatSpreadsheet:
		return extractSpreadsheet(payload, opts)
	case FormatStructured:
		return extractStructured(payload)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, string(format))
	}
}

func extractDelimited(payload []byte) ([]domain.RawRow, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1

	header, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return []domain.RawRow{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	headers := cleanHeaders(header)

	rows := make([]domain.RawRow, 0)
	for number := 2; ; number++ {
		record, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row %d: %w", number, err)
		}
		if blankRecord(record) {
			continue
		}
		values := make(map[string]any, len(headers))
		for idx, name := range headers {
			if name == "" {
				continue
			}
			if idx < len(record) {
				values[name] = record[idx]
			} else {
				values[name] = nil
			}
		}
		rows = append(rows, domain.RawRow{Number: number, Values: values})
	}
	return rows, nil
}

func extractSpreadsheet(payload []byte, opts ExtractOptions) ([]domain.RawRow, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("excel file has no sheets")
		}
		sheet = sheets[0]
	}

	records, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}

	headerRow := opts.HeaderRow
	if headerRow <= 0 {
		headerRow = 1
	}
	if len(records) < headerRow {
		return []domain.RawRow{}, nil
	}
	headers := cleanHeaders(records[headerRow-1])

	dates := newDateCells(f, sheet)
	rows := make([]domain.RawRow, 0, len(records)-headerRow)
	for idx := headerRow; idx < len(records); idx++ {
		record := records[idx]
		if blankRecord(record) {
			continue
		}
		number := idx + 1
		values := make(map[string]any, len(headers))
		for col, name := range headers {
			if name == "" {
				continue
			}
			if col >= len(record) || record[col] == "" {
				values[name] = nil
				continue
			}
			values[name] = dates.value(col+1, number, record[col])
		}
		rows = append(rows, domain.RawRow{Number: number, Values: values})
	}
	return rows, nil
}

// dateCells converts serial numbers in date-formatted cells to time.Time.
type dateCells struct {
	file       *excelize.File
	sheet      string
	date1904   bool
	styleCache map[int]bool
}

func newDateCells(f *excelize.File, sheet string) *dateCells {
	dc := &dateCells{file: f, sheet: sheet, styleCache: make(map[int]bool)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		dc.date1904 = *props.Date1904
	}
	return dc
}

func (dc *dateCells) value(col, row int, raw string) any {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return raw
	}
	styleID, err := dc.file.GetCellStyle(dc.sheet, cell)
	if err != nil || styleID == 0 || !dc.isDateStyle(styleID) {
		return raw
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	ts, err := excelize.ExcelDateToTime(serial, dc.date1904)
	if err != nil {
		return raw
	}
	return ts
}

func (dc *dateCells) isDateStyle(styleID int) bool {
	if cached, ok := dc.styleCache[styleID]; ok {
		return cached
	}
	isDate := false
	if style, err := dc.file.GetStyle(styleID); err == nil && style != nil {
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		} else {
			isDate = isBuiltInDateFormat(style.NumFmt)
		}
	}
	dc.styleCache[styleID] = isDate
	return isDate
}

func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22:
		return true
	case id >= 27 && id <= 36:
		return true
	case id >= 45 && id <= 47:
		return true
	case id >= 50 && id <= 58:
		return true
	default:
		return false
	}
}

// isDateFormatCode looks for date or time tokens outside quoted literals and
// bracketed sections such as colours or locales.
func isDateFormatCode(code string) bool {
	inQuote, inBracket := false, false
	for i := 0; i < len(code); i++ {
		ch := code[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
		case inQuote:
		case ch == '\\':
			i++
		case ch == '[':
			inBracket = true
		case ch == ']':
			inBracket = false
		case inBracket:
		default:
			switch ch {
			case 'y', 'Y', 'm', 'M', 'd', 'D', 'h', 'H', 's', 'S':
				return true
			}
		}
	}
	return false
}

func extractStructured(payload []byte) ([]domain.RawRow, error) {
	decoder := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(payload, byteOrderMark)))
	decoder.UseNumber()

	var document any
	if err := decoder.Decode(&document); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}

	var items []any
	switch doc := document.(type) {
	case []any:
		items = doc
	case map[string]any:
		data, ok := doc["data"].([]any)
		if !ok {
			return nil, errors.New("json object must contain a \"data\" list")
		}
		items = data
	default:
		return nil, errors.New("json document must be a list or an object with a \"data\" list")
	}

	rows := make([]domain.RawRow, 0, len(items))
	for idx, item := range items {
		values, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("json row %d is not an object", idx+1)
		}
		rows = append(rows, domain.RawRow{Number: idx + 1, Values: values})
	}
	return rows, nil
}

func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, value := range raw {
		name := strings.TrimSpace(value)
		if trimmed, ok := strings.CutSuffix(name, requiredMarker); ok {
			name = strings.TrimSpace(trimmed)
		}
		headers[i] = name
	}
	return headers
}

func blankRecord(record []string) bool {
	for _, value := range record {
		if strings.TrimSpace(value) != "" {
			return false
		}
	}
	return true
}
