package ingestion

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/shopspring/decimal"
)

// Serializable converts a value into something encoding/json can always
// marshal. It is applied to raw row data before it is stored with an error.
func Serializable(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Sprint(v)
		}
		return v
	case float32:
		return Serializable(float64(v))
	case domain.Date:
		return v.String()
	case time.Time:
		return v.Format(time.RFC3339Nano)
	case *time.Time:
		if v == nil {
			return nil
		}
		return Serializable(*v)
	case decimal.Decimal:
		return v.InexactFloat64()
	case []byte:
		return strings.ToValidUTF8(string(v), "\uFFFD")
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return Serializable(f)
		}
		return v.String()
	case map[string]any:
		return SerializableMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Serializable(item)
		}
		return out
	default:
		if _, err := json.Marshal(v); err != nil {
			return fmt.Sprint(v)
		}
		return v
	}
}

// SerializableMap applies Serializable to every value of m.
func SerializableMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for key, value := range m {
		out[key] = Serializable(value)
	}
	return out
}
