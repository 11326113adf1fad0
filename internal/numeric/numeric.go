// Package numeric isolates the mismatch between the arbitrary-precision
// decimals used at the storage boundary and ordinary JSON numbers.
package numeric

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Parse reads a decimal from its canonical string form.
func Parse(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse decimal %q: %w", raw, err)
	}

	return d, nil
}

// ToDecimal reports the decimal value of v when v holds a number. Strings,
// booleans and other types are not numeric.
func ToDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case *decimal.Decimal:
		if n == nil {
			return decimal.Zero, false
		}
		return *n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Zero, false
	}
}

// Plain converts a decimal into the number a JSON encoder should emit:
// integral values become int64, fractional values float64.
func Plain(d decimal.Decimal) any {
	if d.IsInteger() {
		if whole := d.BigInt(); whole.IsInt64() {
			return whole.Int64()
		}
	}

	return d.InexactFloat64()
}

// PlainValue walks v and replaces every decimal with its Plain form.
func PlainValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return Plain(val)
	case *decimal.Decimal:
		if val == nil {
			return nil
		}
		return Plain(*val)
	case map[string]any:
		return PlainMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = PlainValue(item)
		}
		return out
	case []decimal.Decimal:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Plain(item)
		}
		return out
	default:
		return v
	}
}

// PlainMap returns a copy of m with decimals converted for JSON encoding.
func PlainMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = PlainValue(v)
	}

	return out
}

// FromJSON walks a value decoded with json.Decoder.UseNumber and replaces
// every json.Number with a decimal.
func FromJSON(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		return Parse(val.String())
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			converted, err := FromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", k, err)
			}
			out[k] = converted
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			converted, err := FromJSON(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = converted
		}
		return out, nil
	default:
		return v, nil
	}
}
