package batch

import (
	"fmt"
	"io"

	"github.com/Jeffail/gabs/v2"
	"github.com/shopspring/decimal"
)

// StepResultRecord is an audit record of one step's computed value for
// one row, emitted for calculation transparency and reproducibility.
// Append-only; the caller's persistence layer owns storage.
type StepResultRecord struct {
	RunID       string    `json:"run_id"`
	EmployeeRef string    `json:"employee_ref"`
	StepName    string    `json:"step_name"`
	Value       any       `json:"value"`
	ValueKind   ValueKind `json:"value_kind"`
}

// ResultSink receives step result records during execution. Writes are
// best-effort telemetry: the executor logs failures and continues, so a
// sink error never fails a calculation. Sinks shared across concurrent
// batches must be concurrency-safe; the executor calls Write inline.
type ResultSink interface {
	Write(rec StepResultRecord) error
}

// JSONLSink writes one JSON object per record, suitable for piping into
// an audit store.
type JSONLSink struct {
	W io.Writer
}

func (s *JSONLSink) Write(rec StepResultRecord) error {
	obj := gabs.New()
	obj.Set(rec.RunID, "run_id")
	obj.Set(rec.EmployeeRef, "employee_ref")
	obj.Set(rec.StepName, "step_name")
	obj.Set(sinkValue(rec.Value), "value")
	obj.Set(string(rec.ValueKind), "value_kind")

	if _, err := fmt.Fprintln(s.W, obj.String()); err != nil {
		return fmt.Errorf("writing step result record: %w", err)
	}
	return nil
}

// sinkValue renders decimals as strings so audit records never lose
// precision to JSON float encoding.
func sinkValue(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.String()
	}
	return v
}
