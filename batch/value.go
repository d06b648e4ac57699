// Package batch executes a validated calculation plan over a tabular
// batch of employee rows, one pass per step, choosing a column-compiled
// path or a row-by-row path per step.
package batch

import "github.com/shopspring/decimal"

// ValueKind classifies a scalar for column storage and audit records.
type ValueKind string

const (
	KindNumber ValueKind = "number"
	KindBool   ValueKind = "bool"
	KindString ValueKind = "string"
	KindNull   ValueKind = "null"
)

func kindOf(v any) ValueKind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case string:
		return KindString
	case float64, float32, int, int32, int64, decimal.Decimal:
		return KindNumber
	default:
		return KindString
	}
}
