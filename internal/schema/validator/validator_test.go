package validator

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/rpattn/bulkimport/internal/domain"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesSchema(t *testing.T) domain.FieldSchema {
	t.Helper()
	schema, err := domain.NewFieldSchema([]domain.FieldDef{
		{Name: "date", Label: "Fecha", Required: true, Kind: domain.FieldKindDatetime},
		{Name: "cliente", Label: "Cliente", Required: true, Kind: domain.FieldKindText},
		{Name: "producto", Label: "Producto", Required: true, Kind: domain.FieldKindInteger},
		{Name: "cantidad", Label: "Cantidad", Kind: domain.FieldKindInteger},
		{Name: "precio", Label: "Precio", Required: true, Kind: domain.FieldKindDecimal},
	})
	require.NoError(t, err)
	return schema
}

func TestValidateRowSalesScenario(t *testing.T) {
	schema := salesSchema(t)
	row := domain.RawRow{Number: 2, Values: map[string]any{
		"date":     "2024-01-01T00:00:00",
		"cliente":  "Juan Pérez",
		"producto": "101",
		"cantidad": "5",
		"precio":   "29.99",
	}}

	validated, errs := ValidateRow(schema, row)
	require.Empty(t, errs)

	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), validated["date"])
	assert.Equal(t, "Juan Pérez", validated["cliente"])
	assert.Equal(t, int64(101), validated["producto"])
	assert.Equal(t, int64(5), validated["cantidad"])

	precio, ok := validated["precio"].(decimal.Decimal)
	require.True(t, ok, "precio should be a decimal, got %T", validated["precio"])
	assert.True(t, precio.Equal(decimal.RequireFromString("29.99")))
	assert.Equal(t, "29.99", precio.String())
}

func TestValidateRowMissingRequiredField(t *testing.T) {
	schema := salesSchema(t)
	row := domain.RawRow{Number: 3, Values: map[string]any{
		"date":     "2024-01-01T00:00:00",
		"cliente":  "",
		"producto": "101",
		"precio":   "29.99",
	}}

	validated, errs := ValidateRow(schema, row)
	assert.Equal(t, []string{"Field 'Cliente' is required"}, errs)
	_, present := validated["cliente"]
	assert.False(t, present, "required field that failed must be absent")

	value, present := validated["cantidad"]
	assert.True(t, present, "optional absent field is emitted as nil")
	assert.Nil(t, value)
}

func TestValidateRowFallsBackToLabel(t *testing.T) {
	schema := salesSchema(t)
	row := domain.RawRow{Number: 2, Values: map[string]any{
		"Fecha":    "2024-05-02 10:30:00",
		"Cliente":  "Ana",
		"Producto": "7",
		"Precio":   "10",
		"extra":    "ignored",
	}}

	validated, errs := ValidateRow(schema, row)
	require.Empty(t, errs)
	assert.Equal(t, "Ana", validated["cliente"])
	assert.Equal(t, int64(7), validated["producto"])
	_, present := validated["extra"]
	assert.False(t, present)
}

func TestValidateRowCoercionErrors(t *testing.T) {
	schema := salesSchema(t)
	row := domain.RawRow{Number: 4, Values: map[string]any{
		"date":     "01/02/2024",
		"cliente":  "Ana",
		"producto": "abc",
		"precio":   "12,50",
	}}

	validated, errs := ValidateRow(schema, row)
	assert.Equal(t, []string{
		"Could not convert value '01/02/2024' to type datetime",
		"Could not convert value 'abc' to type integer",
		"Could not convert value '12,50' to type decimal",
	}, errs)
	assert.NotContains(t, validated, "producto")
	assert.Equal(t, "Ana", validated["cliente"])
}

func TestValidateRowIsPure(t *testing.T) {
	schema := salesSchema(t)
	row := domain.RawRow{Number: 2, Values: map[string]any{
		"date": "2024-01-01", "cliente": "x", "producto": "1.0", "precio": "0.10",
	}}

	first, firstErrs := ValidateRow(schema, row)
	second, secondErrs := ValidateRow(schema, row)
	assert.Equal(t, first, second)
	assert.Equal(t, firstErrs, secondErrs)
	assert.Equal(t, "1.0", row.Values["producto"], "input must not be mutated")
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		name    string
		kind    domain.FieldKind
		value   any
		strict  bool
		want    any
		wantErr bool
	}{
		{name: "integer from string", kind: domain.FieldKindInteger, value: " 42 ", want: int64(42)},
		{name: "integer from integral float string", kind: domain.FieldKindInteger, value: "5.0", want: int64(5)},
		{name: "integer rejects fraction", kind: domain.FieldKindInteger, value: "5.5", wantErr: true},
		{name: "integer from json number", kind: domain.FieldKindInteger, value: json.Number("12"), want: int64(12)},
		{name: "integer from float64", kind: domain.FieldKindInteger, value: float64(3), want: int64(3)},
		{name: "integer rejects bool", kind: domain.FieldKindInteger, value: true, wantErr: true},
		{name: "integer from uint", kind: domain.FieldKindInteger, value: uint(7), want: int64(7)},
		{name: "integer from uint64", kind: domain.FieldKindInteger, value: uint64(1 << 40), want: int64(1 << 40)},
		{name: "integer rejects uint64 overflow", kind: domain.FieldKindInteger, value: uint64(math.MaxUint64), wantErr: true},
		{name: "float from string", kind: domain.FieldKindFloat, value: "2.5", want: 2.5},
		{name: "float from int", kind: domain.FieldKindFloat, value: 2, want: 2.0},
		{name: "float from int8", kind: domain.FieldKindFloat, value: int8(-3), want: -3.0},
		{name: "float from int16", kind: domain.FieldKindFloat, value: int16(300), want: 300.0},
		{name: "float from uint64", kind: domain.FieldKindFloat, value: uint64(9), want: 9.0},
		{name: "float rejects text", kind: domain.FieldKindFloat, value: "two", wantErr: true},
		{name: "boolean literal", kind: domain.FieldKindBoolean, value: false, want: false},
		{name: "boolean si", kind: domain.FieldKindBoolean, value: "Sí", want: true},
		{name: "boolean yes upper", kind: domain.FieldKindBoolean, value: "YES", want: true},
		{name: "boolean t", kind: domain.FieldKindBoolean, value: "t", want: true},
		{name: "boolean json number", kind: domain.FieldKindBoolean, value: json.Number("1"), want: true},
		{name: "boolean lenient garbage", kind: domain.FieldKindBoolean, value: "maybe", want: false},
		{name: "boolean strict negative", kind: domain.FieldKindBoolean, value: "no", strict: true, want: false},
		{name: "boolean strict garbage", kind: domain.FieldKindBoolean, value: "maybe", strict: true, wantErr: true},
		{name: "date iso", kind: domain.FieldKindDate, value: "2024-02-29", want: domain.DateOf(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC))},
		{name: "date rejects datetime text", kind: domain.FieldKindDate, value: "2024-02-29T10:00:00", wantErr: true},
		{name: "date native", kind: domain.FieldKindDate, value: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC), want: domain.DateOf(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))},
		{name: "date drops time of day", kind: domain.FieldKindDate, value: time.Date(2023, 1, 2, 15, 4, 0, 0, time.UTC), want: domain.DateOf(time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC))},
		{name: "date rejects number", kind: domain.FieldKindDate, value: json.Number("45000"), wantErr: true},
		{name: "datetime with offset", kind: domain.FieldKindDatetime, value: "2024-01-01T08:00:00Z", want: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)},
		{name: "datetime fractional", kind: domain.FieldKindDatetime, value: "2024-01-01T08:00:00.5", want: time.Date(2024, 1, 1, 8, 0, 0, 500000000, time.UTC)},
		{name: "text from number", kind: domain.FieldKindText, value: json.Number("3.10"), want: "3.10"},
		{name: "text from float", kind: domain.FieldKindText, value: 1.5, want: "1.5"},
		{name: "text keeps string", kind: domain.FieldKindText, value: "  padded ", want: "  padded "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Coerce(tt.kind, tt.value, tt.strict)
			if tt.wantErr {
				var coercionErr *CoercionError
				require.ErrorAs(t, err, &coercionErr)
				assert.Equal(t, tt.kind, coercionErr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoerceDecimalFromUnsigned(t *testing.T) {
	got, err := Coerce(domain.FieldKindDecimal, uint64(math.MaxUint64), false)
	require.NoError(t, err)
	assert.Equal(t, "18446744073709551615", got.(decimal.Decimal).String())
}

func TestCoerceDecimalIsExact(t *testing.T) {
	got, err := Coerce(domain.FieldKindDecimal, "0.1", false)
	require.NoError(t, err)
	sum := got.(decimal.Decimal).Add(decimal.RequireFromString("0.2"))
	assert.Equal(t, "0.3", sum.String())

	fromJSON, err := Coerce(domain.FieldKindDecimal, json.Number("19.95"), false)
	require.NoError(t, err)
	assert.Equal(t, "19.95", fromJSON.(decimal.Decimal).String())
}

func TestValidateRowStrictBooleanSchema(t *testing.T) {
	schema := domain.MustFieldSchema([]domain.FieldDef{
		{Name: "active", Label: "Activo", Kind: domain.FieldKindBoolean},
	}, domain.WithStrictBooleans())

	_, errs := ValidateRow(schema, domain.RawRow{Values: map[string]any{"Activo": "quizás"}})
	assert.Equal(t, []string{"Could not convert value 'quizás' to type boolean"}, errs)

	validated, errs := ValidateRow(schema, domain.RawRow{Values: map[string]any{"active": "off"}})
	assert.Empty(t, errs)
	assert.Equal(t, false, validated["active"])
}
