package batch

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"payplan/plan"
)

func bonusPlan() *plan.Plan {
	return &plan.Plan{
		Name: "annual_bonus",
		Inputs: []plan.InputDeclaration{
			{Name: "base_salary", Required: true},
			{Name: "raf", Required: true},
		},
		Steps: []plan.Step{
			{Name: "bonus", Expression: "base_salary * 0.15 * raf", Outputs: []string{"bonus"}},
		},
	}
}

func bonusTable() *Table {
	return FromRows([]map[string]any{
		{"employee_id": "E1", "base_salary": 100000, "raf": 1.1},
	})
}

func newTestExecutor(t *testing.T, opts Options, sink ResultSink) *Executor {
	t.Helper()
	e, err := NewExecutor(nil, opts, sink)
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}
	return e
}

func outputFloat(t *testing.T, tbl *Table, col string, row int) float64 {
	t.Helper()
	c, ok := tbl.Column(col)
	if !ok {
		t.Fatalf("column %q missing", col)
	}
	switch v := c.Value(row).(type) {
	case float64:
		return v
	case decimal.Decimal:
		return v.InexactFloat64()
	default:
		t.Fatalf("column %q row %d holds %T", col, row, v)
		return 0
	}
}

func TestExecuteBonusScenarioAllModes(t *testing.T) {
	for _, mode := range []PrecisionMode{PrecisionFast, PrecisionBalanced, PrecisionExact} {
		t.Run(string(mode), func(t *testing.T) {
			tbl := bonusTable()
			e := newTestExecutor(t, Options{PrecisionMode: mode}, nil)

			result, err := e.Execute(bonusPlan(), nil, tbl)
			if err != nil {
				t.Fatalf("Execute failed: %v", err)
			}
			if len(result.RowErrors) != 0 {
				t.Fatalf("unexpected row errors: %v", result.RowErrors)
			}

			got := outputFloat(t, tbl, "bonus", 0)
			if math.Abs(got-16500.00) > 0.01 {
				t.Errorf("bonus = %v, want 16500.00", got)
			}
		})
	}
}

func TestModesAgreeToQuantizationScale(t *testing.T) {
	rows := []map[string]any{
		{"employee_id": "E1", "base_salary": 83250.17, "raf": 1.07},
		{"employee_id": "E2", "base_salary": 59999.99, "raf": 0.93},
		{"employee_id": "E3", "base_salary": 120000.00, "raf": 1.25},
	}
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{
			{Name: "base_salary", Required: true},
			{Name: "raf", Required: true},
		},
		Steps: []plan.Step{
			{Name: "target", Expression: "base_salary * 0.2", Outputs: []string{"target"}},
			{Name: "bonus", Expression: "target * raf", Outputs: []string{"bonus"}},
		},
	}

	results := map[PrecisionMode][]float64{}
	for _, mode := range []PrecisionMode{PrecisionFast, PrecisionBalanced, PrecisionExact} {
		tbl := FromRows(rows)
		e := newTestExecutor(t, Options{PrecisionMode: mode}, nil)
		if _, err := e.Execute(p, nil, tbl); err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		vals := make([]float64, len(rows))
		for i := range rows {
			vals[i] = outputFloat(t, tbl, "bonus", i)
		}
		results[mode] = vals
	}

	for i := range rows {
		exact := results[PrecisionExact][i]
		for _, mode := range []PrecisionMode{PrecisionFast, PrecisionBalanced} {
			if math.Abs(results[mode][i]-exact) > 0.011 {
				t.Errorf("row %d: %s = %v, exact = %v; disagreement beyond scale", i, mode, results[mode][i], exact)
			}
		}
	}
}

func TestExecutePathSelection(t *testing.T) {
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{
			{Name: "base_salary", Required: true},
			{Name: "raf", Required: true},
		},
		Steps: []plan.Step{
			{Name: "simple", Expression: "base_salary * 0.1", Outputs: []string{"simple"}},
			{Name: "complex", Expression: "base_salary * 0.15 * raf", Outputs: []string{"complex"}},
		},
	}

	tbl := bonusTable()
	e := newTestExecutor(t, Options{PrecisionMode: PrecisionFast}, nil)
	result, err := e.Execute(p, nil, tbl)
	if err != nil {
		t.Fatal(err)
	}

	if result.Paths["simple"] != PathColumn {
		t.Errorf("simple step took %q, want column path", result.Paths["simple"])
	}
	if result.Paths["complex"] != PathRow {
		t.Errorf("complex step took %q, want row fallback", result.Paths["complex"])
	}
}

func TestExactModeAlwaysRowPath(t *testing.T) {
	tbl := bonusTable()
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{{Name: "base_salary", Required: true}},
		Steps: []plan.Step{
			{Name: "simple", Expression: "base_salary * 0.1", Outputs: []string{"out"}},
		},
	}
	e := newTestExecutor(t, Options{PrecisionMode: PrecisionExact}, nil)
	result, err := e.Execute(p, nil, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if result.Paths["simple"] != PathRow {
		t.Errorf("exact mode took %q, want row path", result.Paths["simple"])
	}
}

func TestExecuteFollowsSuggestedOrdering(t *testing.T) {
	// Declared backwards; the validator's ordering fixes it.
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{{Name: "base", Required: true}},
		Steps: []plan.Step{
			{Name: "total", Expression: "part * 2", Outputs: []string{"total"}},
			{Name: "part", Expression: "base * 0.1", Outputs: []string{"part"}},
		},
	}
	tbl := FromRows([]map[string]any{{"base": 100.0}})

	validation := plan.Validate(p)
	if !validation.Valid {
		t.Fatalf("plan invalid: %+v", validation)
	}

	e := newTestExecutor(t, Options{}, nil)
	result, err := e.Execute(p, validation.SuggestedOrdering, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if result.Order[0] != "part" || result.Order[1] != "total" {
		t.Errorf("execution order %v, want [part total]", result.Order)
	}
	if got := outputFloat(t, tbl, "total", 0); math.Abs(got-20) > 0.001 {
		t.Errorf("total = %v, want 20", got)
	}
}

func TestDivisionByZeroMarksRowAndContinues(t *testing.T) {
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{
			{Name: "a", Required: true},
			{Name: "b", Required: true},
		},
		Steps: []plan.Step{
			// Multi-term keeps it off the compiled path so the error is per-row.
			{Name: "ratio", Expression: "a / b * 1.0", Outputs: []string{"ratio"}},
		},
	}
	tbl := FromRows([]map[string]any{
		{"a": 10.0, "b": 2.0},
		{"a": 10.0, "b": 0.0},
		{"a": 9.0, "b": 3.0},
	})

	e := newTestExecutor(t, Options{PrecisionMode: PrecisionExact}, nil)
	result, err := e.Execute(p, nil, tbl)
	if err != nil {
		t.Fatalf("batch must not abort on a row error: %v", err)
	}

	if len(result.RowErrors) != 1 {
		t.Fatalf("RowErrors = %v, want exactly one", result.RowErrors)
	}
	if result.RowErrors[0].Row != 1 || result.RowErrors[0].Step != "ratio" {
		t.Errorf("RowErrors[0] = %+v", result.RowErrors[0])
	}

	col, _ := tbl.Column("ratio")
	if col.Value(1) != nil {
		t.Errorf("failed row output = %v, want null", col.Value(1))
	}
	if got := outputFloat(t, tbl, "ratio", 0); math.Abs(got-5) > 0.001 {
		t.Errorf("row 0 = %v, want 5", got)
	}
	if got := outputFloat(t, tbl, "ratio", 2); math.Abs(got-3) > 0.001 {
		t.Errorf("row 2 = %v, want 3", got)
	}
}

func TestNonFiniteResultDegradesToRowError(t *testing.T) {
	// math.Pow(-4, 0.5) is NaN on the compiled path; the op must fail so
	// the step degrades to row evaluation and the bad row is marked,
	// never panicking the batch or storing a non-finite value.
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{{Name: "base", Required: true}},
		Steps: []plan.Step{
			{Name: "root", Expression: "base ** 0.5", Outputs: []string{"root"}},
		},
	}

	for _, mode := range []PrecisionMode{PrecisionFast, PrecisionBalanced} {
		t.Run(string(mode), func(t *testing.T) {
			tbl := FromRows([]map[string]any{
				{"base": 9.0},
				{"base": -4.0},
			})
			e := newTestExecutor(t, Options{PrecisionMode: mode}, nil)

			result, err := e.Execute(p, nil, tbl)
			if err != nil {
				t.Fatalf("batch must not abort on a non-finite row: %v", err)
			}
			if result.Paths["root"] != PathRow {
				t.Errorf("step took %q, want row fallback", result.Paths["root"])
			}
			if len(result.RowErrors) != 1 || result.RowErrors[0].Row != 1 {
				t.Fatalf("RowErrors = %v, want exactly row 1", result.RowErrors)
			}

			col, _ := tbl.Column("root")
			if col.Value(1) != nil {
				t.Errorf("failed row output = %v, want null", col.Value(1))
			}
			if got := outputFloat(t, tbl, "root", 0); math.Abs(got-3) > 0.001 {
				t.Errorf("row 0 = %v, want 3", got)
			}
		})
	}
}

func TestFailFastAbortsBatch(t *testing.T) {
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{
			{Name: "a", Required: true},
			{Name: "b", Required: true},
		},
		Steps: []plan.Step{
			{Name: "ratio", Expression: "a / b * 1.0", Outputs: []string{"ratio"}},
		},
	}
	tbl := FromRows([]map[string]any{{"a": 10.0, "b": 0.0}})

	e := newTestExecutor(t, Options{PrecisionMode: PrecisionExact, FailFast: true}, nil)
	if _, err := e.Execute(p, nil, tbl); err == nil {
		t.Fatal("FailFast execution should abort on the first row error")
	}
}

func TestConditionFalseSuppressesOutputs(t *testing.T) {
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{
			{Name: "salary", Required: true},
			{Name: "eligible", Required: true},
		},
		Steps: []plan.Step{
			{Name: "bonus", Expression: "salary * 0.1", Condition: "eligible", Outputs: []string{"bonus"}},
		},
	}
	tbl := FromRows([]map[string]any{
		{"salary": 100.0, "eligible": true},
		{"salary": 200.0, "eligible": false},
	})

	e := newTestExecutor(t, Options{}, nil)
	result, err := e.Execute(p, nil, tbl)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.RowErrors) != 0 {
		t.Fatalf("suppression is not an error: %v", result.RowErrors)
	}
	if result.Paths["bonus"] != PathRow {
		t.Errorf("condition steps must take the row path, got %q", result.Paths["bonus"])
	}

	if got := outputFloat(t, tbl, "bonus", 0); math.Abs(got-10) > 0.001 {
		t.Errorf("eligible row = %v, want 10", got)
	}
	col, _ := tbl.Column("bonus")
	if col.Value(1) != nil {
		t.Errorf("suppressed row = %v, want null", col.Value(1))
	}
}

func TestBroadcastOutputs(t *testing.T) {
	p := &plan.Plan{
		Inputs: []plan.InputDeclaration{{Name: "salary", Required: true}},
		Steps: []plan.Step{
			{Name: "bonus", Expression: "salary * 0.1", Outputs: []string{"bonus", "bonus_audit"}},
		},
	}
	tbl := FromRows([]map[string]any{{"salary": 100.0}})

	e := newTestExecutor(t, Options{}, nil)
	if _, err := e.Execute(p, nil, tbl); err != nil {
		t.Fatal(err)
	}
	for _, col := range []string{"bonus", "bonus_audit"} {
		if got := outputFloat(t, tbl, col, 0); math.Abs(got-10) > 0.001 {
			t.Errorf("%s = %v, want 10", col, got)
		}
	}
}

func TestMissingRequiredInputColumn(t *testing.T) {
	tbl := FromRows([]map[string]any{{"base_salary": 100.0}})
	e := newTestExecutor(t, Options{}, nil)
	if _, err := e.Execute(bonusPlan(), nil, tbl); err == nil {
		t.Fatal("missing required column should fail before execution")
	}
}

type recordingSink struct {
	records []StepResultRecord
	fail    bool
}

func (s *recordingSink) Write(rec StepResultRecord) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.records = append(s.records, rec)
	return nil
}

func TestSinkReceivesOneRecordPerStepPerRow(t *testing.T) {
	sink := &recordingSink{}
	tbl := FromRows([]map[string]any{
		{"employee_id": "E1", "base_salary": 100000.0, "raf": 1.1},
		{"employee_id": "E2", "base_salary": 50000.0, "raf": 0.9},
	})

	e := newTestExecutor(t, Options{}, sink)
	result, err := e.Execute(bonusPlan(), nil, tbl)
	if err != nil {
		t.Fatal(err)
	}

	if len(sink.records) != 2 {
		t.Fatalf("got %d records, want 2", len(sink.records))
	}
	rec := sink.records[0]
	if rec.RunID != result.RunID {
		t.Errorf("record run_id = %q, want %q", rec.RunID, result.RunID)
	}
	if rec.EmployeeRef != "E1" {
		t.Errorf("record employee_ref = %q, want E1", rec.EmployeeRef)
	}
	if rec.StepName != "bonus" {
		t.Errorf("record step_name = %q", rec.StepName)
	}
	if rec.ValueKind != KindNumber {
		t.Errorf("record value_kind = %q, want number", rec.ValueKind)
	}
}

func TestSinkFailureNeverFailsTheBatch(t *testing.T) {
	sink := &recordingSink{fail: true}
	tbl := bonusTable()

	e := newTestExecutor(t, Options{}, sink)
	if _, err := e.Execute(bonusPlan(), nil, tbl); err != nil {
		t.Fatalf("sink failure surfaced as execution failure: %v", err)
	}
	if got := outputFloat(t, tbl, "bonus", 0); math.Abs(got-16500) > 0.01 {
		t.Errorf("bonus = %v, want 16500", got)
	}
}

func TestRunIDsAreUniquePerExecution(t *testing.T) {
	e := newTestExecutor(t, Options{}, nil)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		result, err := e.Execute(bonusPlan(), nil, bonusTable())
		if err != nil {
			t.Fatal(err)
		}
		if seen[result.RunID] {
			t.Fatalf("duplicate run id %q", result.RunID)
		}
		seen[result.RunID] = true
	}
}

func TestOrderingWithUnknownStepName(t *testing.T) {
	e := newTestExecutor(t, Options{}, nil)
	_, err := e.Execute(bonusPlan(), []string{"ghost"}, bonusTable())
	if err == nil {
		t.Fatal("unknown step in ordering should fail")
	}
	if want := fmt.Sprintf("ordering names unknown step %q", "ghost"); !strings.Contains(err.Error(), want) {
		t.Errorf("error %q, want mention of %q", err, want)
	}
}
