package validator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/shopspring/decimal"
)

var (
	affirmativeTokens = map[string]struct{}{
		"true": {}, "yes": {}, "si": {}, "sí": {}, "1": {}, "t": {},
	}
	negativeTokens = map[string]struct{}{
		"false": {}, "no": {}, "0": {}, "f": {}, "n": {}, "off": {},
	}

	dateLayout = "2006-01-02"

	// ISO-8601 forms only; fractional seconds are accepted by time.Parse
	// without being spelled out in the layout.
	datetimeLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04Z07:00",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		dateLayout,
	}
)

// CoercionError reports a value that could not be converted to a field kind.
type CoercionError struct {
	Value any
	Kind  domain.FieldKind
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("Could not convert value '%v' to type %s", e.Value, e.Kind)
}

// ValidateRow coerces one raw row against the schema. Each field is looked up
// by name first and by label second. The returned errors are human readable;
// a non-empty list means the row must be rejected as a whole. Fields that
// failed are absent from the returned row.
func ValidateRow(schema domain.FieldSchema, row domain.RawRow) (domain.ValidatedRow, []string) {
	validated := make(domain.ValidatedRow, schema.Len())
	var errs []string

	for _, field := range schema.Fields() {
		value := lookup(row.Values, field)
		if isEmpty(value) {
			if field.Required {
				errs = append(errs, fmt.Sprintf("Field '%s' is required", field.DisplayLabel()))
				continue
			}
			validated[field.Name] = nil
			continue
		}

		coerced, err := Coerce(field.Kind, value, schema.StrictBooleans())
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		validated[field.Name] = coerced
	}

	return validated, errs
}

func lookup(values map[string]any, field domain.FieldDef) any {
	value, ok := values[field.Name]
	if ok && !isEmpty(value) {
		return value
	}
	if byLabel, found := values[field.Label]; found {
		return byLabel
	}
	return value
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case []byte:
		return len(strings.TrimSpace(string(v))) == 0
	case json.Number:
		return v.String() == ""
	default:
		return false
	}
}

// Coerce converts a non-empty raw value to the Go type used for kind:
// int64, float64, decimal.Decimal, bool, time.Time or string.
func Coerce(kind domain.FieldKind, value any, strictBooleans bool) (any, error) {
	fail := &CoercionError{Value: value, Kind: kind}
	switch kind {
	case domain.FieldKindInteger:
		i, ok := toInteger(value)
		if !ok {
			return nil, fail
		}
		return i, nil
	case domain.FieldKindFloat:
		f, ok := toFloat(value)
		if !ok {
			return nil, fail
		}
		return f, nil
	case domain.FieldKindDecimal:
		d, ok := toDecimal(value)
		if !ok {
			return nil, fail
		}
		return d, nil
	case domain.FieldKindBoolean:
		b, ok := toBoolean(value, strictBooleans)
		if !ok {
			return nil, fail
		}
		return b, nil
	case domain.FieldKindDate:
		switch v := value.(type) {
		case domain.Date:
			return v, nil
		case time.Time:
			return domain.DateOf(v), nil
		}
		s, ok := stringValue(value)
		if !ok {
			return nil, fail
		}
		d, err := domain.ParseDate(strings.TrimSpace(s))
		if err != nil {
			return nil, fail
		}
		return d, nil
	case domain.FieldKindDatetime:
		if ts, ok := value.(time.Time); ok {
			return ts, nil
		}
		s, ok := stringValue(value)
		if !ok {
			return nil, fail
		}
		ts, err := parseDatetime(s)
		if err != nil {
			return nil, fail
		}
		return ts, nil
	default:
		return toText(value), nil
	}
}

func toInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint, uint8, uint16, uint32, uint64:
		u, _ := unsignedValue(v)
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case float32:
		return integralFloat(float64(v))
	case float64:
		return integralFloat(v)
	case decimal.Decimal:
		if !v.IsInteger() {
			return 0, false
		}
		return v.IntPart(), true
	case json.Number:
		return parseInteger(v.String())
	case string:
		return parseInteger(v)
	default:
		return 0, false
	}
}

func parseInteger(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i, true
	}
	// Allow float representations that can be losslessly converted to int.
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return integralFloat(f)
	}
	return 0, false
}

func integralFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Trunc(f) != f {
		return 0, false
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint, uint8, uint16, uint32, uint64:
		u, _ := unsignedValue(v)
		return float64(u), true
	case decimal.Decimal:
		return v.InexactFloat64(), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// toDecimal never routes string input through float64.
func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case decimal.Decimal:
		return v, true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(v))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		return d, err == nil
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, false
		}
		return decimal.NewFromFloat(v), true
	case float32:
		return decimal.NewFromFloat32(v), true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int8:
		return decimal.NewFromInt(int64(v)), true
	case int16:
		return decimal.NewFromInt(int64(v)), true
	case int32:
		return decimal.NewFromInt32(v), true
	case int64:
		return decimal.NewFromInt(v), true
	case uint, uint8, uint16, uint32, uint64:
		u, _ := unsignedValue(v)
		return decimal.NewFromBigInt(new(big.Int).SetUint64(u), 0), true
	default:
		return decimal.Decimal{}, false
	}
}

func unsignedValue(value any) (uint64, bool) {
	switch v := value.(type) {
	case uint:
		return uint64(v), true
	case uint8:
		return uint64(v), true
	case uint16:
		return uint64(v), true
	case uint32:
		return uint64(v), true
	case uint64:
		return v, true
	default:
		return 0, false
	}
}

func toBoolean(value any, strict bool) (bool, bool) {
	if b, ok := value.(bool); ok {
		return b, true
	}
	token := strings.ToLower(strings.TrimSpace(toText(value)))
	if _, ok := affirmativeTokens[token]; ok {
		return true, true
	}
	if !strict {
		return false, true
	}
	if _, ok := negativeTokens[token]; ok {
		return false, true
	}
	return false, false
}

func parseDatetime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range datetimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized datetime format")
}

func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	default:
		return "", false
	}
}

func toText(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case decimal.Decimal:
		return v.String()
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}
